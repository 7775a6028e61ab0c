package signaling_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/searshs/voicebridge/internal/bridge"
	"github.com/searshs/voicebridge/internal/collaborators/memory"
	"github.com/searshs/voicebridge/internal/dispatcher"
	"github.com/searshs/voicebridge/internal/session"
	"github.com/searshs/voicebridge/internal/signaling"
)

func newTestHandler() (*signaling.Handler, session.Store) {
	store := session.NewMemStore()
	customers := memory.NewCustomerDirectory()
	dispatch := dispatcher.New(memory.NewScheduler(), customers, memory.NewImageIntake("https://u.example", 0), nil)
	h := signaling.New(store, customers, dispatch, bridge.Config{}, nil)
	return h, store
}

func TestIncomingCall_CreatesSessionAndReturnsTwiML(t *testing.T) {
	h, store := newTestHandler()
	mux := http.NewServeMux()
	h.Register(mux)

	form := url.Values{"CallSid": {"CA1"}, "From": {"+15551234567"}, "To": {"+18005551212"}}
	req := httptest.NewRequest(http.MethodPost, "/incoming-call", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Host = "example.com"
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "wss://example.com/media/CA1") {
		t.Errorf("TwiML missing expected media URL: %s", body)
	}
	if !strings.Contains(body, "<Stream") {
		t.Errorf("TwiML missing <Stream>: %s", body)
	}
	if !strings.Contains(body, `name="call_sid" value="CA1"`) {
		t.Errorf("TwiML missing call_sid Parameter: %s", body)
	}
	if !strings.Contains(body, `name="customer_phone" value="+15551234567"`) {
		t.Errorf("TwiML missing customer_phone Parameter: %s", body)
	}

	if _, ok := store.Get("CA1"); !ok {
		t.Errorf("expected session CA1 to be created")
	}
}

func TestIncomingCall_IdempotentOnRetry(t *testing.T) {
	h, store := newTestHandler()
	mux := http.NewServeMux()
	h.Register(mux)

	form := url.Values{"CallSid": {"CA1"}, "From": {"+1"}, "To": {"+1"}}
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/incoming-call", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: status = %d", i, rec.Code)
		}
	}
	if _, ok := store.Get("CA1"); !ok {
		t.Errorf("expected session to still exist after retried webhook")
	}
}

func TestCallStatus_TerminalEndsSession(t *testing.T) {
	h, store := newTestHandler()
	store.Create("CA1", "+1", "")

	mux := http.NewServeMux()
	h.Register(mux)

	form := url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}}
	req := httptest.NewRequest(http.MethodPost, "/call-status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, ok := store.Get("CA1"); ok {
		t.Errorf("expected session to be ended on terminal status")
	}
}

func TestCallStatus_NonTerminalLeavesSessionLive(t *testing.T) {
	h, store := newTestHandler()
	store.Create("CA1", "+1", "")

	mux := http.NewServeMux()
	h.Register(mux)

	form := url.Values{"CallSid": {"CA1"}, "CallStatus": {"ringing"}}
	req := httptest.NewRequest(http.MethodPost, "/call-status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if _, ok := store.Get("CA1"); !ok {
		t.Errorf("expected session to remain live after a non-terminal status")
	}
}

func TestGetSession_UnknownReturns404(t *testing.T) {
	h, _ := newTestHandler()
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/sessions/missing", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAddSessionContext_UpdatesState(t *testing.T) {
	h, store := newTestHandler()
	store.Create("CA1", "+1", "")

	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodPost, "/sessions/CA1/context", strings.NewReader(`{"appliance_type":"washer","zip_code":"90210"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	state, _ := store.Get("CA1")
	if state.Diagnostic.ApplianceType != "washer" || state.Scheduling.ZipCode != "90210" {
		t.Errorf("state not updated: %+v", state)
	}
}
