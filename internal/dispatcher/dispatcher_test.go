package dispatcher_test

import (
	"context"
	"testing"
	"time"

	"github.com/searshs/voicebridge/internal/collaborators"
	"github.com/searshs/voicebridge/internal/collaborators/memory"
	"github.com/searshs/voicebridge/internal/dispatcher"
	"github.com/searshs/voicebridge/internal/session"
)

func newState(callID string) *session.ConversationState {
	return &session.ConversationState{
		CallID:      callID,
		CustomerRef: "cust-1",
		StartedAt:   time.Now(),
		Phase:       session.PhaseGreeting,
	}
}

func TestExecute_UnknownToolFallsBackToText(t *testing.T) {
	d := dispatcher.New(memory.NewScheduler(), memory.NewCustomerDirectory(), memory.NewImageIntake("https://u.example", 0), nil)
	result, err := d.Execute(context.Background(), "not_a_real_tool", `{}`, newState("CA1"))
	if err != nil {
		t.Fatal(err)
	}
	if result != "Unknown tool: not_a_real_tool" {
		t.Errorf("got %q", result)
	}
}

func TestExecute_GetTroubleshootingSteps(t *testing.T) {
	d := dispatcher.New(memory.NewScheduler(), memory.NewCustomerDirectory(), memory.NewImageIntake("https://u.example", 0), nil)
	st := newState("CA1")
	result, err := d.Execute(context.Background(), "get_troubleshooting_steps", `{"appliance_type":"washer","symptom":"won't start"}`, st)
	if err != nil {
		t.Fatal(err)
	}
	if result == "" {
		t.Fatal("expected non-empty troubleshooting text")
	}
	if st.Diagnostic.ApplianceType != "washer" {
		t.Errorf("state not updated: %+v", st.Diagnostic)
	}
}

func TestExecute_CheckTechnicianAvailability_EmptyHasNoError(t *testing.T) {
	d := dispatcher.New(memory.NewScheduler(), memory.NewCustomerDirectory(), memory.NewImageIntake("https://u.example", 0), nil)
	st := newState("CA1")
	result, err := d.Execute(context.Background(), "check_technician_availability", `{"zip_code":"90210","appliance_type":"washer"}`, st)
	if err != nil {
		t.Fatal(err)
	}
	if result == "" {
		t.Fatal("expected a non-empty apology text")
	}
}

func TestExecute_BookAppointment_UnknownSlotReturnsErrorText(t *testing.T) {
	d := dispatcher.New(memory.NewScheduler(), memory.NewCustomerDirectory(), memory.NewImageIntake("https://u.example", 0), nil)
	st := newState("CA1")
	result, err := d.Execute(context.Background(), "book_appointment", `{"slot_id":"missing","appliance_type":"washer","issue_description":"leaking"}`, st)
	if err != nil {
		t.Fatal(err)
	}
	if result == "" {
		t.Fatal("expected a non-empty failure text")
	}
	if st.Outcome.ConfirmationCode != "" {
		t.Errorf("Outcome should remain empty on failed booking, got %+v", st.Outcome)
	}
}

func TestExecute_BookAppointment_Success(t *testing.T) {
	scheduler := memory.NewScheduler()
	start := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	slotID := scheduler.AddSlot(collaborators.Slot{
		TechnicianName: "Alex",
		ApplianceType:  "washer",
		ZipCode:        "90210",
		Date:           start,
		Start:          start,
		End:            start.Add(time.Hour),
	})

	d := dispatcher.New(scheduler, memory.NewCustomerDirectory(), memory.NewImageIntake("https://u.example", 0), nil)
	st := newState("CA1")
	result, err := d.Execute(context.Background(), "book_appointment",
		`{"slot_id":"`+slotID+`","appliance_type":"washer","issue_description":"leaking"}`, st)
	if err != nil {
		t.Fatal(err)
	}
	if st.Outcome.ConfirmationCode == "" {
		t.Fatal("expected confirmation code set on state")
	}
	if result == "" {
		t.Fatal("expected non-empty success text")
	}
}

func TestExecute_RequestImageUpload(t *testing.T) {
	d := dispatcher.New(memory.NewScheduler(), memory.NewCustomerDirectory(), memory.NewImageIntake("https://u.example", 0), nil)
	st := newState("CA1")
	result, err := d.Execute(context.Background(), "request_image_upload", `{"email":"a@b.com","appliance_type":"washer"}`, st)
	if err != nil {
		t.Fatal(err)
	}
	if !st.ImageRequest.Requested || st.ImageRequest.Token == "" {
		t.Errorf("expected image request recorded, got %+v", st.ImageRequest)
	}
	if result == "" {
		t.Fatal("expected non-empty confirmation text")
	}
}

func TestExecute_UpdateCustomerInfo(t *testing.T) {
	d := dispatcher.New(memory.NewScheduler(), memory.NewCustomerDirectory(), memory.NewImageIntake("https://u.example", 0), nil)
	st := newState("CA1")
	result, err := d.Execute(context.Background(), "update_customer_info", `{"name":"Jo Smith","zip_code":"90210"}`, st)
	if err != nil {
		t.Fatal(err)
	}
	if result != "Customer information updated." {
		t.Errorf("got %q", result)
	}
	if st.Scheduling.CustomerName != "Jo Smith" || st.Scheduling.ZipCode != "90210" {
		t.Errorf("state not updated: %+v", st.Scheduling)
	}
}
