package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	bookingx "github.com/frontdesk-ai/frontdesk/agent/booking"
	contractx "github.com/frontdesk-ai/frontdesk/agent/contract"
	dispatchx "github.com/frontdesk-ai/frontdesk/agent/dispatch"
	promptx "github.com/frontdesk-ai/frontdesk/agent/prompt"
	statex "github.com/frontdesk-ai/frontdesk/agent/state"
	tenantx "github.com/frontdesk-ai/frontdesk/agent/tenant"
)

type graphInput struct {
	Event   contractx.InboundEvent
	Tenant  *tenantx.Config
	Adapter bookingx.Adapter
}

// graphState is threaded through every node of the turn pipeline.
type graphState struct {
	Event   contractx.InboundEvent
	Tenant  *tenantx.Config
	Adapter bookingx.Adapter

	Session  *statex.Session
	Dispatch *dispatchx.Result
}

func validateEvent(in graphInput) (*graphState, error) {
	if in.Tenant == nil {
		return nil, fmt.Errorf("%w: tenant config is nil", contractx.ErrConfiguration)
	}
	if in.Adapter == nil {
		return nil, fmt.Errorf("%w: booking adapter is nil", contractx.ErrConfiguration)
	}
	if strings.TrimSpace(in.Event.UserID) == "" {
		return nil, fmt.Errorf("%w: event user id is empty", contractx.ErrValidation)
	}
	if !in.Event.Channel.Valid() {
		return nil, fmt.Errorf("%w: unknown channel %q", contractx.ErrValidation, in.Event.Channel)
	}
	if in.Tenant.Channel != "" && in.Event.Channel != in.Tenant.Channel {
		return nil, fmt.Errorf("%w: event channel %q does not match token channel %q",
			contractx.ErrValidation, in.Event.Channel, in.Tenant.Channel)
	}
	if strings.TrimSpace(in.Event.Text) == "" && strings.TrimSpace(in.Event.MediaRef) == "" {
		return nil, fmt.Errorf("%w: event carries neither text nor media", contractx.ErrValidation)
	}

	return &graphState{
		Event:   in.Event,
		Tenant:  in.Tenant,
		Adapter: in.Adapter,
	}, nil
}

// loadOrRotateSession loads the session for the (tenant, user, channel)
// triple, creating a fresh one when none exists or the stored one is
// terminal. Rotation carries the stored version forward so the
// compare-and-set on save stays monotonic.
func loadOrRotateSession(ctx context.Context, st *graphState, store statex.Store, now func() time.Time) (*graphState, error) {
	key := statex.Key{
		TenantID: st.Tenant.ID,
		UserID:   st.Event.UserID,
		Channel:  st.Event.Channel,
	}

	session, err := store.Load(ctx, key)
	switch {
	case errors.Is(err, statex.ErrStateNotFound):
		session = statex.NewSession(uuid.NewString(), key, now())
	case err != nil:
		return nil, fmt.Errorf("load session: %w", err)
	case session.State.Terminal():
		fresh := statex.NewSession(uuid.NewString(), key, now())
		fresh.Version = session.Version
		log.Debug().
			Str("tenant_id", key.TenantID).
			Str("old_session_id", session.ID).
			Str("old_state", string(session.State)).
			Msg("session_rotated")
		session = fresh
	}

	st.Session = session
	return st, nil
}

func runDispatch(ctx context.Context, st *graphState, loop *dispatchx.Loop) (*graphState, error) {
	userText := strings.TrimSpace(st.Event.Text)
	if userText == "" {
		userText = "(the customer sent an attachment)"
	}

	res, err := loop.Run(ctx, dispatchx.Turn{
		TenantID:  st.Tenant.ID,
		SessionID: st.Session.ID,
		System:    promptx.Render(st.Session.State, st.Tenant.Business, st.Session.Facts),
		History:   st.Session.Transcript,
		UserText:  userText,
		Adapter:   st.Adapter,
		MaxRounds: st.Tenant.MaxDispatchRounds,
	})
	if err != nil {
		return nil, err
	}

	st.Dispatch = res
	return st, nil
}

// advanceState folds the turn's learned facts into the session and runs the
// transition function. An empty string fact clears the key.
func advanceState(st *graphState, now func() time.Time) (*graphState, error) {
	for key, val := range st.Dispatch.FactsPatch {
		if s, isStr := val.(string); isStr && strings.TrimSpace(s) == "" {
			delete(st.Session.Facts, key)
			continue
		}
		st.Session.SetFact(key, val)
	}

	before := st.Session.State
	st.Session.State = statex.Advance(before, st.Session.Facts, st.Dispatch.Effects)
	st.Session.Touch(now())

	if st.Session.State != before {
		log.Info().
			Str("tenant_id", st.Tenant.ID).
			Str("session_id", st.Session.ID).
			Str("from", string(before)).
			Str("to", string(st.Session.State)).
			Msg("session_advanced")
	}
	return st, nil
}

// recordTurn appends the user and assistant messages to the audit trail.
// Audit failures never fail the turn.
func recordTurn(ctx context.Context, st *graphState, recorder contractx.AuditRecorder, now func() time.Time) (*graphState, error) {
	records := []contractx.MessageRecord{
		{
			ID:        uuid.NewString(),
			TenantID:  st.Tenant.ID,
			SessionID: st.Session.ID,
			Channel:   st.Event.Channel,
			Sender:    "user",
			Text:      st.Event.Text,
			MediaRef:  st.Event.MediaRef,
			CreatedAt: now().UTC(),
		},
		{
			ID:        uuid.NewString(),
			TenantID:  st.Tenant.ID,
			SessionID: st.Session.ID,
			Channel:   st.Event.Channel,
			Sender:    "assistant",
			Text:      st.Dispatch.Text,
			CreatedAt: now().UTC(),
		},
	}

	st.Session.AppendTranscript("user", st.Event.Text)
	st.Session.AppendTranscript("assistant", st.Dispatch.Text)

	for _, rec := range records {
		st.Session.MessageIDs = append(st.Session.MessageIDs, rec.ID)
		if err := recorder.RecordMessage(ctx, rec); err != nil {
			log.Warn().
				Err(err).
				Str("tenant_id", st.Tenant.ID).
				Str("session_id", st.Session.ID).
				Msg("message_audit_failed")
		}
	}
	return st, nil
}

func persistSession(ctx context.Context, st *graphState, store statex.Store) (*graphState, error) {
	if err := store.Save(ctx, st.Session, st.Tenant.SessionTTL); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return st, nil
}

func finalizeReply(st *graphState) (contractx.OutboundReply, error) {
	return contractx.OutboundReply{
		Text:         st.Dispatch.Text,
		ToolInvoked:  st.Dispatch.ToolInvoked,
		SessionState: string(st.Session.State),
	}, nil
}
