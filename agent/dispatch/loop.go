// Package dispatch runs the bounded model/tool round loop for a single turn.
// The model proposes tool calls from a closed set; the loop validates and
// executes them against the tenant's booking adapter, feeds results back, and
// classifies what happened into effects for the state machine.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	openaisdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rs/zerolog/log"

	bookingx "github.com/frontdesk-ai/frontdesk/agent/booking"
	contractx "github.com/frontdesk-ai/frontdesk/agent/contract"
	statex "github.com/frontdesk-ai/frontdesk/agent/state"
)

// DefaultMaxRounds caps a turn when the tenant does not override it.
const DefaultMaxRounds = 5

// ChatCompleter is the slice of the SDK client the loop needs. The real
// implementation is client.Chat.Completions.
type ChatCompleter interface {
	New(ctx context.Context, body openaisdk.ChatCompletionNewParams, opts ...option.RequestOption) (*openaisdk.ChatCompletion, error)
}

// Turn carries everything one dispatch run needs beyond the loop's own wiring.
type Turn struct {
	TenantID  string
	SessionID string
	System    string
	History   []statex.TranscriptEntry
	UserText  string
	Adapter   bookingx.Adapter
	MaxRounds int // 0 means DefaultMaxRounds
}

// Result is what one completed turn produced. FactsPatch holds only the keys
// this turn learned; the caller merges it into the session.
type Result struct {
	Text        string
	ToolInvoked bool
	Rounds      int
	Effects     statex.Effects
	FactsPatch  statex.Facts
}

type Loop struct {
	client      ChatCompleter
	model       string
	temperature float64
	recorder    contractx.AuditRecorder
	now         func() time.Time
}

func NewLoop(client ChatCompleter, model string, temperature float64, recorder contractx.AuditRecorder) (*Loop, error) {
	if client == nil {
		return nil, errors.New("chat client is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("model is required")
	}
	if recorder == nil {
		recorder = contractx.NopRecorder{}
	}
	return &Loop{
		client:      client,
		model:       model,
		temperature: temperature,
		recorder:    recorder,
		now:         time.Now,
	}, nil
}

// Run executes the round loop for one inbound event. It returns
// ErrDispatchExhausted when the model is still asking for tools at the round
// cap, and ErrModelInvoke when the provider call itself fails. Tool failures
// never abort the turn; they come back to the model as error results.
func (l *Loop) Run(ctx context.Context, turn Turn) (*Result, error) {
	if turn.Adapter == nil {
		return nil, fmt.Errorf("%w: turn has no booking adapter", contractx.ErrConfiguration)
	}
	maxRounds := turn.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}

	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(turn.History)+2)
	messages = append(messages, openaisdk.SystemMessage(turn.System))
	for _, entry := range turn.History {
		if entry.Role == "assistant" {
			messages = append(messages, openaisdk.AssistantMessage(entry.Text))
			continue
		}
		messages = append(messages, openaisdk.UserMessage(entry.Text))
	}
	messages = append(messages, openaisdk.UserMessage(turn.UserText))
	tools := toolParams()

	res := &Result{FactsPatch: statex.Facts{}}

	for round := 1; round <= maxRounds; round++ {
		completion, err := l.client.New(ctx, openaisdk.ChatCompletionNewParams{
			Model:       openaisdk.ChatModel(l.model),
			Messages:    messages,
			Tools:       tools,
			Temperature: openaisdk.Float(l.temperature),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: round %d: %w", contractx.ErrModelInvoke, round, err)
		}
		if len(completion.Choices) == 0 {
			return nil, fmt.Errorf("%w: round %d: empty choices", contractx.ErrModelInvoke, round)
		}

		msg := completion.Choices[0].Message
		res.Rounds = round

		if len(msg.ToolCalls) == 0 {
			res.Text = strings.TrimSpace(msg.Content)
			if res.Text == "" {
				return nil, fmt.Errorf("%w: round %d: empty reply", contractx.ErrModelInvoke, round)
			}
			return res, nil
		}

		res.ToolInvoked = true
		messages = append(messages, msg.ToParam())

		for _, call := range msg.ToolCalls {
			toolRes := l.executeToolCall(ctx, turn, call.Function.Name, call.Function.Arguments, res)
			payload, err := json.Marshal(toolRes)
			if err != nil {
				payload = []byte(`{"error":"internal: result not serializable"}`)
			}
			messages = append(messages, openaisdk.ToolMessage(string(payload), call.ID))
		}
	}

	return res, fmt.Errorf("%w: still requesting tools after %d rounds", contractx.ErrDispatchExhausted, maxRounds)
}

// executeToolCall validates one proposed call, runs it against the adapter,
// and folds the outcome into the result's effects and facts. The returned
// ToolResult is what the model sees next round.
func (l *Loop) executeToolCall(ctx context.Context, turn Turn, name, rawArgs string, res *Result) contractx.ToolResult {
	started := l.now()
	toolRes := l.execute(ctx, turn, name, rawArgs, res)
	l.audit(ctx, turn, name, rawArgs, toolRes, l.now().Sub(started))
	return toolRes
}

func (l *Loop) execute(ctx context.Context, turn Turn, name, rawArgs string, res *Result) contractx.ToolResult {
	toolRes := contractx.ToolResult{Tool: name}

	spec, ok := findToolSpec(name)
	if !ok {
		toolRes.Error = fmt.Sprintf("unknown tool %q", name)
		return toolRes
	}

	args := map[string]any{}
	if strings.TrimSpace(rawArgs) != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			toolRes.Error = fmt.Sprintf("arguments are not valid JSON: %v", err)
			return toolRes
		}
	}
	if err := validateArgs(spec, args); err != nil {
		toolRes.Error = err.Error()
		return toolRes
	}

	switch name {
	case ToolListServices:
		services, err := turn.Adapter.ListServices(ctx, stringArg(args, "category"))
		if err != nil {
			toolRes.Error = err.Error()
			res.Effects.Fatal = res.Effects.Fatal || fatal(err)
			return toolRes
		}
		toolRes.Result = services
		res.Effects.ServicesListed = true

	case ToolListSlots:
		serviceID := stringArg(args, "service_id")
		slots, err := turn.Adapter.ListSlots(ctx, serviceID, bookingx.DateRange{
			From: stringArg(args, "start_date"),
			To:   stringArg(args, "end_date"),
		})
		if err != nil {
			toolRes.Error = err.Error()
			res.Effects.Fatal = res.Effects.Fatal || fatal(err)
			return toolRes
		}
		toolRes.Result = slots
		res.Effects.SlotsListed = true
		res.FactsPatch[statex.FactServiceID] = serviceID

	case ToolFindOrCreateCustomer:
		phone := stringArg(args, "phone")
		custName := stringArg(args, "name")
		customerID, err := turn.Adapter.FindOrCreateCustomer(ctx, phone, custName)
		if err != nil {
			toolRes.Error = err.Error()
			res.Effects.Fatal = res.Effects.Fatal || fatal(err)
			return toolRes
		}
		toolRes.Result = map[string]string{"customer_id": customerID}
		res.Effects.CustomerResolved = true
		res.FactsPatch[statex.FactCustomerID] = customerID
		res.FactsPatch[statex.FactPhone] = phone
		res.FactsPatch[statex.FactName] = custName

	case ToolCreateBooking:
		slot := bookingx.Slot{
			Date:       stringArg(args, "date"),
			Time:       stringArg(args, "time"),
			ServiceID:  stringArg(args, "service_id"),
			EmployeeID: stringArg(args, "employee_id"),
		}
		customerID := stringArg(args, "customer_id")
		bookingID, err := turn.Adapter.CreateBooking(ctx, customerID, slot.ServiceID, slot)
		if err != nil {
			toolRes.Error = err.Error()
			if errors.Is(err, contractx.ErrSlotConflict) {
				res.Effects.BookingConflict = true
			} else {
				res.Effects.Fatal = res.Effects.Fatal || fatal(err)
			}
			return toolRes
		}
		toolRes.Result = map[string]string{"booking_id": bookingID}
		res.Effects.BookingCreated = true
		res.FactsPatch[statex.FactBookingID] = bookingID
		res.FactsPatch[statex.FactCustomerID] = customerID
		res.FactsPatch[statex.FactServiceID] = slot.ServiceID
		res.FactsPatch[statex.FactSelectedSlot] = slot.Date + " " + slot.Time

	case ToolCancelBooking:
		bookingID := stringArg(args, "booking_id")
		if err := turn.Adapter.CancelBooking(ctx, bookingID); err != nil {
			toolRes.Error = err.Error()
			if !errors.Is(err, contractx.ErrBookingNotFound) {
				res.Effects.Fatal = res.Effects.Fatal || fatal(err)
			}
			return toolRes
		}
		toolRes.Result = map[string]string{"cancelled": bookingID}
		res.Effects.BookingCancelled = true
		// An empty value reads as absent, which unblocks a fresh booking.
		res.FactsPatch[statex.FactBookingID] = ""
	}

	return toolRes
}

// fatal reports whether an adapter error should fail the whole session. Only
// context death qualifies; business errors go back to the model.
func fatal(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (l *Loop) audit(ctx context.Context, turn Turn, name, rawArgs string, toolRes contractx.ToolResult, elapsed time.Duration) {
	rec := contractx.ToolInvocationRecord{
		ID:        uuid.NewString(),
		TenantID:  turn.TenantID,
		SessionID: turn.SessionID,
		Tool:      name,
		Error:     toolRes.Error,
		LatencyMS: elapsed.Milliseconds(),
		CreatedAt: l.now().UTC(),
	}
	if strings.TrimSpace(rawArgs) != "" && json.Valid([]byte(rawArgs)) {
		rec.Args = json.RawMessage(rawArgs)
	}
	if toolRes.Result != nil {
		if raw, err := json.Marshal(toolRes.Result); err == nil {
			rec.Result = raw
		}
	}

	if err := l.recorder.RecordToolInvocation(ctx, rec); err != nil {
		log.Warn().
			Err(err).
			Str("tenant_id", turn.TenantID).
			Str("tool", name).
			Msg("tool_invocation_audit_failed")
	}
}
