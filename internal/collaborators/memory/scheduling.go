// Package memory provides in-memory implementations of the
// collaborators.Scheduler, collaborators.CustomerDirectory, and
// collaborators.ImageIntake interfaces, suitable for a single process
// instance. They exist because the relational persistence layer that would
// normally back them is explicitly out of scope (spec §1 Non-goals) — these
// give the core something real to call during development and tests.
package memory

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/searshs/voicebridge/internal/collaborators"
)

const confirmationAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateConfirmationCode produces "SHS-" followed by 8 random uppercase
// alphanumeric characters, for a total length of 12.
func generateConfirmationCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("SHS-")
	for _, b := range buf {
		sb.WriteByte(confirmationAlphabet[int(b)%len(confirmationAlphabet)])
	}
	return sb.String(), nil
}

// Scheduler is an in-memory collaborators.Scheduler. Slots are seeded via
// AddSlot (tests and fixture loading); Book/Cancel mutate them in place.
type Scheduler struct {
	mu           sync.Mutex
	slots        map[string]*collaborators.Slot
	appointments map[string]*collaborators.Appointment
}

var _ collaborators.Scheduler = (*Scheduler)(nil)

// NewScheduler returns an empty in-memory Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		slots:        make(map[string]*collaborators.Slot),
		appointments: make(map[string]*collaborators.Appointment),
	}
}

// AddSlot seeds a bookable slot, assigning it a new ID if one is not set.
func (s *Scheduler) AddSlot(slot collaborators.Slot) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if !slot.IsBlocked {
		slot.IsAvailable = true
	}
	cp := slot
	s.slots[slot.ID] = &cp
	return slot.ID
}

func (s *Scheduler) ListAvailableSlots(ctx context.Context, zipCode, applianceType, timePreference string) ([]collaborators.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []collaborators.Slot
	for _, slot := range s.slots {
		if !slot.IsAvailable || slot.IsBlocked {
			continue
		}
		if slot.ZipCode != zipCode || slot.ApplianceType != applianceType {
			continue
		}
		switch timePreference {
		case "morning":
			if slot.Start.Hour() >= 12 {
				continue
			}
		case "afternoon":
			if slot.Start.Hour() < 12 {
				continue
			}
		}
		matches = append(matches, *slot)
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].Date.Equal(matches[j].Date) {
			return matches[i].Date.Before(matches[j].Date)
		}
		return matches[i].Start.Before(matches[j].Start)
	})

	if len(matches) > 5 {
		matches = matches[:5]
	}
	return matches, nil
}

func (s *Scheduler) Book(ctx context.Context, slotID, customerRef, applianceType, issueDescription string) (*collaborators.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[slotID]
	if !ok {
		return nil, collaborators.ErrSlotNotFound
	}
	if !slot.IsAvailable || slot.IsBlocked {
		return nil, collaborators.ErrSlotUnavailable
	}

	code, err := generateConfirmationCode()
	if err != nil {
		return nil, fmt.Errorf("collaborators/memory: generate confirmation code: %w", err)
	}

	slot.IsAvailable = false

	appt := &collaborators.Appointment{
		ID:               uuid.NewString(),
		SlotID:           slotID,
		CustomerRef:      customerRef,
		ApplianceType:    applianceType,
		IssueDescription: issueDescription,
		ConfirmationCode: code,
		Status:           collaborators.AppointmentScheduled,
		TechnicianName:   slot.TechnicianName,
		Date:             slot.Date,
		Start:            slot.Start,
		End:              slot.End,
	}
	s.appointments[appt.ID] = appt
	return appt, nil
}

func (s *Scheduler) Cancel(ctx context.Context, appointmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appointments[appointmentID]
	if !ok {
		return collaborators.ErrAppointmentNotFound
	}
	if appt.Status == collaborators.AppointmentCompleted || appt.Status == collaborators.AppointmentCancelled {
		return fmt.Errorf("%w: status=%s", collaborators.ErrAppointmentTerminal, appt.Status)
	}
	appt.Status = collaborators.AppointmentCancelled
	if slot, ok := s.slots[appt.SlotID]; ok {
		slot.IsAvailable = true
	}
	return nil
}

// FormatAppointment renders the exact {confirmation_code, date_text,
// time_window_text, tech_name, appliance, description} shape that the
// out-of-scope REST layer also depends on (spec §9).
func (s *Scheduler) FormatAppointment(appt *collaborators.Appointment) collaborators.AppointmentDetails {
	return collaborators.AppointmentDetails{
		ConfirmationCode: appt.ConfirmationCode,
		DateText:         appt.Date.Format("Monday, January 2"),
		TimeWindowText:   formatTimeWindow(appt.Start, appt.End),
		TechName:         appt.TechnicianName,
		Appliance:        appt.ApplianceType,
		Description:      appt.IssueDescription,
	}
}

// formatTimeWindow renders "<start> to <end>" in 12-hour time with a
// leading zero on the hour stripped, matching the original service's
// strftime("%I:%M %p").lstrip("0") behavior.
func formatTimeWindow(start, end time.Time) string {
	return formatClock(start) + " to " + formatClock(end)
}

func formatClock(t time.Time) string {
	return strings.TrimPrefix(t.Format("03:04 PM"), "0")
}
