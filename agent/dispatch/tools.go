package dispatch

import (
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v2"

	contractx "github.com/frontdesk-ai/frontdesk/agent/contract"
)

const (
	ToolListServices         = "list_services"
	ToolListSlots            = "list_slots"
	ToolFindOrCreateCustomer = "find_or_create_customer"
	ToolCreateBooking        = "create_booking"
	ToolCancelBooking        = "cancel_booking"
)

type paramSpec struct {
	Desc     string
	Required bool
}

type toolSpec struct {
	Name   string
	Desc   string
	Params map[string]paramSpec
}

// toolSpecs is the closed operation set exposed to the model. All parameters
// are strings; arguments are validated against the declared schema before
// the adapter is invoked.
var toolSpecs = []toolSpec{
	{
		Name: ToolListServices,
		Desc: "List the services the business offers, with prices and durations.",
		Params: map[string]paramSpec{
			"category": {Desc: "Optional category filter"},
		},
	},
	{
		Name: ToolListSlots,
		Desc: "List available time slots for a service within a date range.",
		Params: map[string]paramSpec{
			"service_id": {Desc: "Service id from list_services", Required: true},
			"start_date": {Desc: "First date to search, YYYY-MM-DD", Required: true},
			"end_date":   {Desc: "Last date to search, YYYY-MM-DD", Required: true},
		},
	},
	{
		Name: ToolFindOrCreateCustomer,
		Desc: "Look the customer up by phone, creating a record when absent. Safe to repeat.",
		Params: map[string]paramSpec{
			"phone": {Desc: "Customer phone with country code", Required: true},
			"name":  {Desc: "Customer name", Required: true},
		},
	},
	{
		Name: ToolCreateBooking,
		Desc: "Create a booking. Only call after the customer confirmed service, date and time.",
		Params: map[string]paramSpec{
			"customer_id": {Desc: "Customer id from find_or_create_customer", Required: true},
			"service_id":  {Desc: "Service id", Required: true},
			"date":        {Desc: "Booking date, YYYY-MM-DD", Required: true},
			"time":        {Desc: "Booking time, HH:MM", Required: true},
			"employee_id": {Desc: "Optional preferred staff member id"},
		},
	},
	{
		Name: ToolCancelBooking,
		Desc: "Cancel an existing booking by id.",
		Params: map[string]paramSpec{
			"booking_id": {Desc: "Booking id to cancel", Required: true},
		},
	},
}

func findToolSpec(name string) (toolSpec, bool) {
	for _, spec := range toolSpecs {
		if spec.Name == name {
			return spec, true
		}
	}
	return toolSpec{}, false
}

// toolParams renders the declared tools into the SDK's tool format.
func toolParams() []openaisdk.ChatCompletionToolUnionParam {
	params := make([]openaisdk.ChatCompletionToolUnionParam, 0, len(toolSpecs))
	for _, spec := range toolSpecs {
		properties := make(map[string]any, len(spec.Params))
		required := make([]string, 0, len(spec.Params))
		for name, p := range spec.Params {
			properties[name] = map[string]any{
				"type":        "string",
				"description": p.Desc,
			}
			if p.Required {
				required = append(required, name)
			}
		}

		params = append(params, openaisdk.ChatCompletionFunctionTool(openaisdk.FunctionDefinitionParam{
			Name:        spec.Name,
			Description: openaisdk.String(spec.Desc),
			Parameters: openaisdk.FunctionParameters{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		}))
	}
	return params
}

// validateArgs checks the argument map against the declared schema. A
// violation is a non-transient error fed back to the model, never a retry
// and never a turn abort.
func validateArgs(spec toolSpec, args map[string]any) error {
	for name, p := range spec.Params {
		raw, ok := args[name]
		if !ok {
			if p.Required {
				return fmt.Errorf("%w: %s: missing required argument %q", contractx.ErrSchemaViolation, spec.Name, name)
			}
			continue
		}
		s, isStr := raw.(string)
		if !isStr {
			return fmt.Errorf("%w: %s: argument %q must be a string", contractx.ErrSchemaViolation, spec.Name, name)
		}
		if p.Required && strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: %s: required argument %q is empty", contractx.ErrSchemaViolation, spec.Name, name)
		}
	}
	for name := range args {
		if _, ok := spec.Params[name]; !ok {
			return fmt.Errorf("%w: %s: unknown argument %q", contractx.ErrSchemaViolation, spec.Name, name)
		}
	}
	return nil
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return strings.TrimSpace(s)
}
