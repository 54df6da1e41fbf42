// Package audit appends immutable message and tool-invocation records to
// Postgres. Records are write-only for the core; the retention sweep is the
// only deleter.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	contractx "github.com/frontdesk-ai/frontdesk/agent/contract"
)

type messageRow struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID        string    `bun:"id,pk"`
	TenantID  string    `bun:"tenant_id"`
	SessionID string    `bun:"session_id"`
	Channel   string    `bun:"channel"`
	Sender    string    `bun:"sender"`
	Text      string    `bun:"text"`
	MediaRef  string    `bun:"media_ref"`
	CreatedAt time.Time `bun:"created_at"`
}

type toolInvocationRow struct {
	bun.BaseModel `bun:"table:tool_invocations,alias:ti"`

	ID        string    `bun:"id,pk"`
	TenantID  string    `bun:"tenant_id"`
	SessionID string    `bun:"session_id"`
	Tool      string    `bun:"tool"`
	Args      []byte    `bun:"args,type:jsonb"`
	Result    []byte    `bun:"result,type:jsonb"`
	Error     string    `bun:"error"`
	LatencyMS int64     `bun:"latency_ms"`
	CreatedAt time.Time `bun:"created_at"`
}

// Recorder implements contract.AuditRecorder over bun.
type Recorder struct {
	db *bun.DB
}

var _ contractx.AuditRecorder = (*Recorder)(nil)

func NewRecorder(db *bun.DB) (*Recorder, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &Recorder{db: db}, nil
}

func (r *Recorder) RecordMessage(ctx context.Context, rec contractx.MessageRecord) error {
	row := messageRow{
		ID:        rec.ID,
		TenantID:  rec.TenantID,
		SessionID: rec.SessionID,
		Channel:   string(rec.Channel),
		Sender:    rec.Sender,
		Text:      rec.Text,
		MediaRef:  rec.MediaRef,
		CreatedAt: rec.CreatedAt.UTC(),
	}
	if _, err := r.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert message record: %w", err)
	}
	return nil
}

func (r *Recorder) RecordToolInvocation(ctx context.Context, rec contractx.ToolInvocationRecord) error {
	row := toolInvocationRow{
		ID:        rec.ID,
		TenantID:  rec.TenantID,
		SessionID: rec.SessionID,
		Tool:      rec.Tool,
		Args:      rec.Args,
		Result:    rec.Result,
		Error:     rec.Error,
		LatencyMS: rec.LatencyMS,
		CreatedAt: rec.CreatedAt.UTC(),
	}
	if _, err := r.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert tool invocation record: %w", err)
	}
	return nil
}

// PurgeBefore deletes one tenant's records older than the cutoff. Returns
// how many rows went away across both tables.
func (r *Recorder) PurgeBefore(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	var purged int64

	res, err := r.db.NewDelete().
		Model((*messageRow)(nil)).
		Where("tenant_id = ?", tenantID).
		Where("created_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return purged, fmt.Errorf("purge messages: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		purged += n
	}

	res, err = r.db.NewDelete().
		Model((*toolInvocationRow)(nil)).
		Where("tenant_id = ?", tenantID).
		Where("created_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return purged, fmt.Errorf("purge tool invocations: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		purged += n
	}

	log.Debug().
		Str("tenant_id", tenantID).
		Int64("purged", purged).
		Time("cutoff", cutoff).
		Msg("audit_purged")
	return purged, nil
}
