package contract

import "context"

// AuditRecorder appends immutable message and tool-invocation records.
// Implementations must be safe for concurrent use.
type AuditRecorder interface {
	RecordMessage(ctx context.Context, rec MessageRecord) error
	RecordToolInvocation(ctx context.Context, rec ToolInvocationRecord) error
}

// NopRecorder discards all records. Used when auditing is not configured.
type NopRecorder struct{}

func (NopRecorder) RecordMessage(context.Context, MessageRecord) error {
	return nil
}

func (NopRecorder) RecordToolInvocation(context.Context, ToolInvocationRecord) error {
	return nil
}
