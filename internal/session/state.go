// Package session defines the live per-call conversation state and the
// Session Store that owns it for the lifetime of a call.
package session

import "time"

// Phase is a coarse-grained label on the conversation's progress. It shapes
// the model's instructions; it is not a hard state machine — transitions are
// logged but never rejected.
type Phase string

const (
	PhaseGreeting          Phase = "greeting"
	PhaseIdentifyAppliance Phase = "identify_appliance"
	PhaseGatherSymptoms    Phase = "gather_symptoms"
	PhaseDiagnostic        Phase = "diagnostic"
	PhaseTroubleshooting   Phase = "troubleshooting"
	PhaseScheduling        Phase = "scheduling"
	PhaseConfirmation      Phase = "confirmation"
	PhaseImageCapture      Phase = "image_capture"
	PhaseClosing           Phase = "closing"
)

// DiagnosticInfo holds everything gathered about the appliance under
// discussion and the troubleshooting attempted so far.
type DiagnosticInfo struct {
	ApplianceType      string
	ApplianceBrand     string
	ApplianceModel     string
	ApplianceAgeYears  int
	PrimarySymptom     string
	AdditionalSymptoms []string
	ErrorCodes         []string
	UnusualSounds      string
	WhenStarted        string
	StepsTried         []string
	StepResults        map[string]string
	IssueResolved      bool
	ResolutionNotes    string
}

// SchedulingInfo holds everything needed to find and book a technician visit.
type SchedulingInfo struct {
	ZipCode              string
	PreferredDates       []string
	PreferredTimeOfDay   string
	SelectedTechnicianID string
	SelectedSlotID       string
	CustomerName         string
	CustomerEmail        string
	CustomerAddress      string
}

// ImageRequestInfo tracks an outstanding or completed image-upload request.
type ImageRequestInfo struct {
	Requested      bool
	Token          string
	AnalysisResult string
}

// OutcomeInfo records the result of a successful booking.
type OutcomeInfo struct {
	AppointmentID    string
	ConfirmationCode string
}

// ConversationState is the live state of one call, owned by the Session
// Store from creation until the call ends. It is mutated only by its own
// call — the Bridge (turn counter, key facts) and the Tool Dispatcher
// (diagnostic/scheduling/image/outcome fields) are the only writers. They run
// on two different goroutines of that call (the Bridge's model-to-carrier
// pump and the model session's receive loop) and write disjoint fields.
type ConversationState struct {
	CallID          string
	CallerIdentity  string
	CustomerRef     string
	StartedAt       time.Time
	LastInteraction time.Time
	TurnCount       int
	Phase           Phase

	Diagnostic   DiagnosticInfo
	Scheduling   SchedulingInfo
	ImageRequest ImageRequestInfo
	Outcome      OutcomeInfo

	KeyFacts []string
}

// maxFactLen bounds a single key fact to the testable property of ≤ 212
// stored characters ("User said: " is 11 chars + up to 200 of transcript + 1).
const maxFactLen = 212

// AddFact appends fact to KeyFacts unless it is already present (insertion
// order preserved, no duplicates). Facts longer than maxFactLen are
// truncated before the duplicate check.
func (s *ConversationState) AddFact(fact string) {
	if len(fact) > maxFactLen {
		fact = fact[:maxFactLen]
	}
	for _, f := range s.KeyFacts {
		if f == fact {
			return
		}
	}
	s.KeyFacts = append(s.KeyFacts, fact)
}

// TranscriptFact builds the "User said: <transcript[:200]>" fact string used
// by the Bridge when the model reports a completed user transcription.
func TranscriptFact(transcript string) string {
	const maxTranscript = 200
	if len(transcript) > maxTranscript {
		transcript = transcript[:maxTranscript]
	}
	return "User said: " + transcript
}
