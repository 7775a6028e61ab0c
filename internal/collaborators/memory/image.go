package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/searshs/voicebridge/internal/collaborators"
)

const defaultUploadTTL = 24 * time.Hour

type uploadRecord struct {
	collaborators.UploadRequest
	used bool
}

// ImageIntake is an in-memory collaborators.ImageIntake. Image storage and
// any vision analysis of the uploaded file are out of scope (spec §1
// Non-goals); this type only issues and validates upload tokens.
type ImageIntake struct {
	mu      sync.Mutex
	tokens  map[string]*uploadRecord
	baseURL string
	ttl     time.Duration
}

// NewImageIntake returns an ImageIntake that renders upload URLs under
// baseURL (e.g. "https://upload.searshs.example"). A zero ttl uses
// defaultUploadTTL.
func NewImageIntake(baseURL string, ttl time.Duration) *ImageIntake {
	if ttl <= 0 {
		ttl = defaultUploadTTL
	}
	return &ImageIntake{
		tokens:  make(map[string]*uploadRecord),
		baseURL: baseURL,
		ttl:     ttl,
	}
}

func generateToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (i *ImageIntake) CreateUploadRequest(ctx context.Context, customerRef, email, applianceType, description, callID string) (collaborators.UploadRequest, error) {
	token, err := generateToken()
	if err != nil {
		return collaborators.UploadRequest{}, fmt.Errorf("collaborators/memory: generate upload token: %w", err)
	}

	req := collaborators.UploadRequest{
		Token:     token,
		ExpiresAt: time.Now().Add(i.ttl),
	}

	i.mu.Lock()
	i.tokens[token] = &uploadRecord{UploadRequest: req}
	i.mu.Unlock()

	return req, nil
}

func (i *ImageIntake) UploadURL(token string) string {
	return fmt.Sprintf("%s/upload/%s", i.baseURL, token)
}

// ValidateToken reports whether token is still usable. The three-way outcome
// (invalid / already used / expired / ok) mirrors the original image-upload
// flow's validation endpoint.
func (i *ImageIntake) ValidateToken(ctx context.Context, token string) (bool, string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	rec, ok := i.tokens[token]
	if !ok {
		return false, "invalid token"
	}
	if rec.used {
		return false, "token already used"
	}
	if time.Now().After(rec.ExpiresAt) {
		return false, "token expired"
	}
	rec.used = true
	return true, ""
}
