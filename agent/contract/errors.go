package contract

import "errors"

// Turn-level failures. Only these escape Process back to the caller.
var (
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrSessionBusy       = errors.New("session is busy")
	ErrConfiguration     = errors.New("tenant configuration invalid")
	ErrDispatchExhausted = errors.New("dispatch loop exhausted")
	ErrTimeout           = errors.New("turn deadline exceeded")
)

// Adapter-level failures. These are folded back into the model context and
// never surface as turn-level errors.
var (
	ErrAdapterTransient    = errors.New("adapter transient failure")
	ErrAdapterNonTransient = errors.New("adapter non-transient failure")
	ErrSlotConflict        = errors.New("slot already taken")
	ErrBookingNotFound     = errors.New("booking not found")
)

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("tool call violates schema")
	ErrValidation      = errors.New("validation failed")
)
