// Package dispatcher implements the Tool Dispatcher: it decodes a model
// tool-call's arguments, mutates the owning call's session.ConversationState,
// invokes the relevant collaborator, and renders the user-facing text result
// the model reads back to the caller.
//
// Execute is called from the owning call's model-session receive goroutine,
// one tool call at a time — the Dispatcher itself does no locking around
// state.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/searshs/voicebridge/internal/collaborators"
	"github.com/searshs/voicebridge/internal/diagnostic"
	"github.com/searshs/voicebridge/internal/resilience"
	"github.com/searshs/voicebridge/internal/session"
)

// Dispatcher executes the five model-facing tools against a fixed set of
// collaborators. Each collaborator call is guarded by its own circuit
// breaker so a flaky backend degrades to the tool's error-text fallback
// instead of hanging a live call.
type Dispatcher struct {
	Scheduler   collaborators.Scheduler
	Customers   collaborators.CustomerDirectory
	ImageIntake collaborators.ImageIntake

	Logger *slog.Logger

	schedulerBreaker *resilience.CircuitBreaker
	customersBreaker *resilience.CircuitBreaker
	imagesBreaker    *resilience.CircuitBreaker
}

// New returns a Dispatcher wired to the given collaborators.
func New(scheduler collaborators.Scheduler, customers collaborators.CustomerDirectory, images collaborators.ImageIntake, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		Scheduler:        scheduler,
		Customers:        customers,
		ImageIntake:      images,
		Logger:           logger,
		schedulerBreaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "scheduler"}),
		customersBreaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "customers"}),
		imagesBreaker:    resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "image_intake"}),
	}
}

// Execute decodes argsJSON, dispatches to the named tool's handler, and
// returns the text the model should read back to the caller. It never
// returns a non-nil error for a well-formed tool call — collaborator
// failures and unknown tool names are both rendered as a text result instead
// (spec §4.4), matching the original agent's catch-all behavior.
func (d *Dispatcher) Execute(ctx context.Context, name string, argsJSON string, state *session.ConversationState) (string, error) {
	d.Logger.Info("executing tool", "tool", name, "call_id", state.CallID)

	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("dispatcher: decode arguments for %s: %w", name, err)
		}
	}

	var (
		result string
		err    error
	)
	switch name {
	case "get_troubleshooting_steps":
		result, err = d.getTroubleshootingSteps(args, state)
	case "check_technician_availability":
		result, err = d.checkAvailability(ctx, args, state)
	case "book_appointment":
		result, err = d.bookAppointment(ctx, args, state)
	case "request_image_upload":
		result, err = d.requestPhotoUpload(ctx, args, state)
	case "update_customer_info":
		result, err = d.updateCustomerInfo(ctx, args, state)
	default:
		return fmt.Sprintf("Unknown tool: %s", name), nil
	}
	if err != nil {
		d.Logger.Error("tool execution error", "tool", name, "call_id", state.CallID, "error", err)
		return "I encountered an issue while processing that. Let me try another approach.", nil
	}
	return result, nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func (d *Dispatcher) getTroubleshootingSteps(args map[string]any, state *session.ConversationState) (string, error) {
	applianceType := stringArg(args, "appliance_type")
	symptom := stringArg(args, "symptom")

	state.Diagnostic.ApplianceType = applianceType
	state.Diagnostic.PrimarySymptom = symptom

	steps := diagnostic.TroubleshootingSteps(applianceType, symptom)
	if len(steps) == 0 {
		return "I don't have specific troubleshooting steps for that issue, but general steps like checking power and resetting the appliance may help.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Troubleshooting steps for %s with '%s':\n", applianceType, symptom)
	for _, step := range steps {
		sb.WriteString("- ")
		sb.WriteString(step)
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (d *Dispatcher) checkAvailability(ctx context.Context, args map[string]any, state *session.ConversationState) (string, error) {
	zipCode := stringArg(args, "zip_code")
	applianceType := stringArg(args, "appliance_type")
	timePreference := stringArg(args, "preferred_time")
	if timePreference == "" {
		timePreference = "any"
	}

	normalized, ok := diagnostic.Normalize(applianceType)
	if !ok {
		normalized = strings.ToLower(applianceType)
	}

	var slots []collaborators.Slot
	err := d.schedulerBreaker.Execute(func() error {
		var ierr error
		slots, ierr = d.Scheduler.ListAvailableSlots(ctx, zipCode, normalized, timePreference)
		return ierr
	})
	if err != nil {
		return "", fmt.Errorf("check availability: %w", err)
	}
	if len(slots) == 0 {
		return fmt.Sprintf("I'm sorry, I couldn't find any available technicians for %s service in the %s area. Would you like to try a different date range or check nearby zip codes?", applianceType, zipCode), nil
	}

	state.Scheduling.ZipCode = zipCode

	var sb strings.Builder
	fmt.Fprintf(&sb, "Available appointments in %s:\n", zipCode)
	for i, slot := range slots {
		if i > 0 {
			sb.WriteByte('\n')
		}
		dateStr := slot.Date.Format("Monday, January 2")
		startStr := strings.TrimPrefix(slot.Start.Format("03:04 PM"), "0")
		endStr := strings.TrimPrefix(slot.End.Format("03:04 PM"), "0")
		fmt.Fprintf(&sb, "Slot %s: %s from %s to %s with %s", slot.ID, dateStr, startStr, endStr, slot.TechnicianName)
	}
	return sb.String(), nil
}

func (d *Dispatcher) bookAppointment(ctx context.Context, args map[string]any, state *session.ConversationState) (string, error) {
	slotID := stringArg(args, "slot_id")
	applianceType := stringArg(args, "appliance_type")
	issueDescription := stringArg(args, "issue_description")

	if state.CustomerRef != "" && d.Customers != nil {
		if err := d.customersBreaker.Execute(func() error {
			return d.Customers.Update(ctx, state.CustomerRef, map[string]string{"zip_code": state.Scheduling.ZipCode})
		}); err != nil {
			d.Logger.Warn("customer update failed during booking", "error", err, "call_id", state.CallID)
		}
	}

	normalized, ok := diagnostic.Normalize(applianceType)
	if !ok {
		normalized = strings.ToLower(applianceType)
	}

	var appt *collaborators.Appointment
	err := d.schedulerBreaker.Execute(func() error {
		var ierr error
		appt, ierr = d.Scheduler.Book(ctx, slotID, state.CustomerRef, normalized, issueDescription)
		return ierr
	})
	if err != nil {
		return fmt.Sprintf("I wasn't able to book that appointment: %s. Let me check other available times.", err), nil
	}

	state.Outcome.AppointmentID = appt.ID
	state.Outcome.ConfirmationCode = appt.ConfirmationCode

	details := d.Scheduler.FormatAppointment(appt)
	return fmt.Sprintf(
		"Appointment booked successfully!\nConfirmation Number: %s\nDate: %s\nTime: %s\nTechnician: %s\nService: %s - %s",
		details.ConfirmationCode, details.DateText, details.TimeWindowText, details.TechName, details.Appliance, details.Description,
	), nil
}

func (d *Dispatcher) requestPhotoUpload(ctx context.Context, args map[string]any, state *session.ConversationState) (string, error) {
	email := stringArg(args, "email")
	applianceType := stringArg(args, "appliance_type")
	if applianceType == "" {
		applianceType = state.Diagnostic.ApplianceType
	}
	description := stringArg(args, "specific_area")

	var req collaborators.UploadRequest
	err := d.imagesBreaker.Execute(func() error {
		var ierr error
		req, ierr = d.ImageIntake.CreateUploadRequest(ctx, state.CustomerRef, email, applianceType, state.Diagnostic.PrimarySymptom, state.CallID)
		return ierr
	})
	if err != nil {
		return "", fmt.Errorf("request photo upload: %w", err)
	}

	state.ImageRequest.Requested = true
	state.ImageRequest.Token = req.Token
	state.Scheduling.CustomerEmail = email

	instructions := fmt.Sprintf("I've sent an email to %s with a link to upload a photo", email)
	switch {
	case description != "":
		instructions += fmt.Sprintf(" of the %s", description)
	case applianceType != "":
		instructions += fmt.Sprintf(" of your %s", applianceType)
	}
	instructions += ". The link will be valid for 24 hours."
	return instructions, nil
}

func (d *Dispatcher) updateCustomerInfo(ctx context.Context, args map[string]any, state *session.ConversationState) (string, error) {
	fields := make(map[string]string)
	if name := stringArg(args, "name"); name != "" {
		fields["name"] = name
		state.Scheduling.CustomerName = name
	}
	if email := stringArg(args, "email"); email != "" {
		fields["email"] = email
		state.Scheduling.CustomerEmail = email
	}
	if zip := stringArg(args, "zip_code"); zip != "" {
		fields["zip_code"] = zip
		state.Scheduling.ZipCode = zip
	}
	if address := stringArg(args, "address"); address != "" {
		fields["address"] = address
		state.Scheduling.CustomerAddress = address
	}

	if state.CustomerRef != "" && d.Customers != nil && len(fields) > 0 {
		if err := d.customersBreaker.Execute(func() error {
			return d.Customers.Update(ctx, state.CustomerRef, fields)
		}); err != nil {
			return "", fmt.Errorf("update customer info: %w", err)
		}
	}
	return "Customer information updated.", nil
}
