// Package prompt builds the system instruction for the model from embedded
// templates and the tenant's business context.
package prompt

import (
	_ "embed"
	"encoding/json"
	"strings"

	statex "github.com/frontdesk-ai/frontdesk/agent/state"
	tenantx "github.com/frontdesk-ai/frontdesk/agent/tenant"
)

//go:embed template/system.txt
var systemRaw string

// phaseGuidance steers the model per dialogue phase without ever letting it
// decide transitions; the state machine owns those.
var phaseGuidance = map[statex.State]string{
	statex.StateInitiated:      "Greet the customer and ask how you can help.",
	statex.StateGreeting:       "Greet the customer and ask how you can help.",
	statex.StateCollectingInfo: "Find out which service the customer wants, and collect their name and phone number.",
	statex.StateConsulting:     "Answer questions about services and prices. Offer to check available time slots.",
	statex.StateBooking:        "Help the customer pick a time slot and confirm the booking details.",
	statex.StateConfirming:     "Confirm the booking details back to the customer.",
	statex.StateCompleted:      "The booking is complete. Answer any remaining questions.",
	statex.StateFailed:         "Apologize for the earlier problem and offer to start over.",
}

// Render fills the embedded system template. Facts are serialized as JSON so
// the model sees exactly what the session has accumulated.
func Render(st statex.State, business tenantx.BusinessContext, facts statex.Facts) string {
	factsJSON := "{}"
	if len(facts) > 0 {
		if raw, err := json.Marshal(facts); err == nil {
			factsJSON = string(raw)
		}
	}

	replacer := strings.NewReplacer(
		"{business_name}", orDash(business.Name),
		"{business_description}", orDash(business.Description),
		"{service_catalog}", orDash(business.ServiceCatalog),
		"{product_catalog}", orDash(business.ProductCatalog),
		"{highlights}", orDash(business.Highlights),
		"{working_hours}", orDash(business.WorkingHours),
		"{phase}", string(st),
		"{phase_guidance}", phaseGuidance[st],
		"{facts}", factsJSON,
	)
	return strings.TrimSpace(replacer.Replace(systemRaw))
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
