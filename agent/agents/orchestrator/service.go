// Package orchestrator drives one inbound event end to end: tenant
// resolution, session locking, the dispatch loop, the state transition, and
// persistence. Every processed event yields an OutboundReply, including
// handled failures.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	bookingx "github.com/frontdesk-ai/frontdesk/agent/booking"
	contractx "github.com/frontdesk-ai/frontdesk/agent/contract"
	dispatchx "github.com/frontdesk-ai/frontdesk/agent/dispatch"
	statex "github.com/frontdesk-ai/frontdesk/agent/state"
	tenantx "github.com/frontdesk-ai/frontdesk/agent/tenant"
)

const (
	defaultTurnTimeout = 60 * time.Second
	defaultLockTTL     = 30 * time.Second
	releaseTimeout     = 5 * time.Second
)

type Config struct {
	// TurnTimeout bounds one whole event, model and tool calls included.
	TurnTimeout time.Duration
	// LockTTL is the hold timeout on the per-session write lock. A crashed
	// worker's lock expires after this and the session becomes writable
	// again.
	LockTTL time.Duration
}

type Orchestrator struct {
	store    statex.Store
	tenants  tenantx.Registry
	loop     *dispatchx.Loop
	recorder contractx.AuditRecorder

	adapterOpts []bookingx.FactoryOption

	graphRunner compose.Runnable[graphInput, contractx.OutboundReply]

	turnTimeout time.Duration
	lockTTL     time.Duration
	now         func() time.Time
}

func New(
	store statex.Store,
	tenants tenantx.Registry,
	loop *dispatchx.Loop,
	recorder contractx.AuditRecorder,
	cfg Config,
	adapterOpts ...bookingx.FactoryOption,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if tenants == nil {
		return nil, errors.New("tenant registry is required")
	}
	if loop == nil {
		return nil, errors.New("dispatch loop is required")
	}
	if recorder == nil {
		recorder = contractx.NopRecorder{}
	}

	turnTimeout := cfg.TurnTimeout
	if turnTimeout <= 0 {
		turnTimeout = defaultTurnTimeout
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}

	o := &Orchestrator{
		store:       store,
		tenants:     tenants,
		loop:        loop,
		recorder:    recorder,
		adapterOpts: adapterOpts,
		turnTimeout: turnTimeout,
		lockTTL:     lockTTL,
		now:         time.Now,
	}

	graphRunner, err := o.compileProcessGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// Process handles one inbound event. The per-session lock is held for the
// whole turn; a concurrent event for the same (tenant, user, channel) triple
// fails fast with contract.ErrSessionBusy rather than queueing.
func (o *Orchestrator) Process(ctx context.Context, event contractx.InboundEvent) (contractx.OutboundReply, error) {
	cfg, err := o.tenants.Resolve(ctx, event.ChannelToken)
	if err != nil {
		return failureReply(err), err
	}

	adapter, err := bookingx.New(cfg.SystemKind, cfg.Credentials, o.adapterOpts...)
	if err != nil {
		return failureReply(err), err
	}

	key := statex.Key{TenantID: cfg.ID, UserID: event.UserID, Channel: event.Channel}
	if err := key.Validate(); err != nil {
		return failureReply(err), err
	}

	ctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	token, err := o.store.AcquireLock(ctx, key, o.lockTTL)
	if err != nil {
		return failureReply(err), err
	}
	defer func() {
		releaseCtx, releaseCancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer releaseCancel()
		if rerr := o.store.ReleaseLock(releaseCtx, key, token); rerr != nil {
			log.Warn().
				Err(rerr).
				Str("tenant_id", cfg.ID).
				Str("session_key", key.String()).
				Msg("lock_release_failed")
		}
	}()

	reply, err := o.graphRunner.Invoke(ctx, graphInput{
		Event:   event,
		Tenant:  cfg,
		Adapter: adapter,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = contractx.ErrTimeout
			o.failSession(context.WithoutCancel(ctx), cfg, key)
		}
		log.Error().
			Err(err).
			Str("tenant_id", cfg.ID).
			Str("session_key", key.String()).
			Msg("turn_failed")
		return failureReply(err), err
	}
	return reply, nil
}

// failSession marks the stored session failed after its turn was cut off
// mid-flight. Runs under a detached context because the turn's own context is
// already dead; the lock is still held here, so the write cannot interleave
// with another turn. A session that was never persisted has nothing to mark.
func (o *Orchestrator) failSession(ctx context.Context, cfg *tenantx.Config, key statex.Key) {
	ctx, cancel := context.WithTimeout(ctx, releaseTimeout)
	defer cancel()

	session, err := o.store.Load(ctx, key)
	if err != nil || session.State.Terminal() {
		return
	}

	session.State = statex.StateFailed
	session.Touch(o.now())
	if err := o.store.Save(ctx, session, cfg.SessionTTL); err != nil {
		log.Warn().
			Err(err).
			Str("tenant_id", cfg.ID).
			Str("session_id", session.ID).
			Msg("session_fail_not_recorded")
		return
	}
	log.Warn().
		Str("tenant_id", cfg.ID).
		Str("session_id", session.ID).
		Msg("session_failed")
}

// failureReply maps a turn-level error to a user-visible handled reply. The
// wire error string is carried alongside for the ingress layer.
func failureReply(err error) contractx.OutboundReply {
	reply := contractx.OutboundReply{Error: err.Error()}

	switch {
	case errors.Is(err, contractx.ErrSessionBusy):
		reply.Text = "I'm still working on your previous message, one moment please."
	case errors.Is(err, contractx.ErrDispatchExhausted):
		reply.Text = "I couldn't finish that request. Could you rephrase or try again?"
	case errors.Is(err, contractx.ErrTimeout):
		reply.Text = "That took too long on my side. Please try again."
	case errors.Is(err, contractx.ErrTenantNotFound), errors.Is(err, contractx.ErrConfiguration):
		reply.Text = "This assistant is not available right now."
	default:
		reply.Text = "Something went wrong on my side. Please try again."
	}
	return reply
}
