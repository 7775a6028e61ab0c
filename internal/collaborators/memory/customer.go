package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type customerRecord struct {
	ref     string
	phone   string
	name    string
	email   string
	zipCode string
	address string
}

// CustomerDirectory is an in-memory collaborators.CustomerDirectory, keyed by
// phone number.
type CustomerDirectory struct {
	mu      sync.Mutex
	byPhone map[string]*customerRecord
}

// NewCustomerDirectory returns an empty in-memory CustomerDirectory.
func NewCustomerDirectory() *CustomerDirectory {
	return &CustomerDirectory{byPhone: make(map[string]*customerRecord)}
}

func (d *CustomerDirectory) GetOrCreate(ctx context.Context, phone string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rec, ok := d.byPhone[phone]; ok {
		return rec.ref, nil
	}
	rec := &customerRecord{ref: uuid.NewString(), phone: phone}
	d.byPhone[phone] = rec
	return rec.ref, nil
}

// Update writes through whitelisted fields (name/email/zip_code/address) to
// the record matching customerRef. Unknown refs are a silent no-op: the
// dispatcher treats a missing customer record as nothing worth failing the
// call over.
func (d *CustomerDirectory) Update(ctx context.Context, customerRef string, fields map[string]string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var rec *customerRecord
	for _, r := range d.byPhone {
		if r.ref == customerRef {
			rec = r
			break
		}
	}
	if rec == nil {
		return nil
	}
	if v, ok := fields["name"]; ok {
		rec.name = v
	}
	if v, ok := fields["email"]; ok {
		rec.email = v
	}
	if v, ok := fields["zip_code"]; ok {
		rec.zipCode = v
	}
	if v, ok := fields["address"]; ok {
		rec.address = v
	}
	return nil
}
