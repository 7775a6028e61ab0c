// Package toolschema declares the fixed five-tool catalogue the Realtime
// Bridge advertises to the model on every call: get_troubleshooting_steps,
// check_technician_availability, book_appointment, request_image_upload, and
// update_customer_info. Unlike the teacher's budget-tiered catalogue, this
// set is small and always fully visible — there is no latency-tier
// calibration step here (see DESIGN.md).
package toolschema

// Definition is a single tool's JSON-Schema declaration, shaped to drop
// straight into both an MCP server's tool list and the model-realtime
// session.update payload's "tools" array.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// GetTroubleshootingSteps looks up troubleshooting guidance for an
// appliance/symptom pair.
var GetTroubleshootingSteps = Definition{
	Name:        "get_troubleshooting_steps",
	Description: "Look up troubleshooting steps for a customer-described appliance problem. Call this before offering any fix suggestions.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"appliance_type": map[string]any{
				"type":        "string",
				"description": "Free-form appliance description as the customer said it, e.g. 'washing machine' or 'fridge'.",
			},
			"symptom": map[string]any{
				"type":        "string",
				"description": "Free-form description of the problem, e.g. 'won't start' or 'leaking water'.",
			},
		},
		"required": []string{"appliance_type", "symptom"},
	},
}

// CheckTechnicianAvailability searches for open technician slots.
var CheckTechnicianAvailability = Definition{
	Name:        "check_technician_availability",
	Description: "Search for available repair appointment slots near the customer's zip code for a given appliance type.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"zip_code": map[string]any{
				"type":        "string",
				"description": "Customer's 5-digit zip code.",
			},
			"appliance_type": map[string]any{
				"type":        "string",
				"description": "Appliance needing a repair visit.",
			},
			"preferred_time": map[string]any{
				"type":        "string",
				"description": "Customer's time-of-day preference.",
				"enum":        []string{"morning", "afternoon", "any"},
			},
		},
		"required": []string{"zip_code", "appliance_type"},
	},
}

// BookAppointment confirms a repair visit against a previously returned slot.
var BookAppointment = Definition{
	Name:        "book_appointment",
	Description: "Book a repair appointment against a specific slot id returned by check_technician_availability.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"slot_id": map[string]any{
				"type":        "string",
				"description": "The slot id chosen from a prior check_technician_availability result.",
			},
			"appliance_type": map[string]any{
				"type":        "string",
				"description": "Appliance needing a repair visit.",
			},
			"issue_description": map[string]any{
				"type":        "string",
				"description": "Short summary of the problem for the technician.",
			},
		},
		"required": []string{"slot_id", "appliance_type", "issue_description"},
	},
}

// RequestImageUpload issues an upload link for the customer to send a photo.
var RequestImageUpload = Definition{
	Name:        "request_image_upload",
	Description: "Send the customer a link to upload a photo of their appliance or its error display, for follow-up review by a technician.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"email": map[string]any{
				"type":        "string",
				"description": "Email address to send the upload link to.",
			},
			"appliance_type": map[string]any{
				"type":        "string",
				"description": "Appliance the photo is of.",
			},
			"specific_area": map[string]any{
				"type":        "string",
				"description": "What the photo should show, e.g. 'the error code on the display'.",
			},
		},
		"required": []string{"email"},
	},
}

// UpdateCustomerInfo writes through customer-record fields gathered during
// the call.
var UpdateCustomerInfo = Definition{
	Name:        "update_customer_info",
	Description: "Save or update customer contact details gathered during the call.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type": "string",
			},
			"email": map[string]any{
				"type": "string",
			},
			"zip_code": map[string]any{
				"type": "string",
			},
			"address": map[string]any{
				"type": "string",
			},
		},
		"required": []string{},
	},
}

// All returns the fixed catalogue in the stable order the model is always
// shown it in.
func All() []Definition {
	return []Definition{
		GetTroubleshootingSteps,
		CheckTechnicianAvailability,
		BookAppointment,
		RequestImageUpload,
		UpdateCustomerInfo,
	}
}
