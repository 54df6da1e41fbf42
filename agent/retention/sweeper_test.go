package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tenantx "github.com/frontdesk-ai/frontdesk/agent/tenant"
)

type stubRegistry struct {
	policies []tenantx.RetentionPolicy
	err      error
}

func (s *stubRegistry) Resolve(context.Context, string) (*tenantx.Config, error) {
	return nil, errors.New("not used")
}

func (s *stubRegistry) ListActive(context.Context) ([]tenantx.RetentionPolicy, error) {
	return s.policies, s.err
}

type stubPurger struct {
	mu      sync.Mutex
	cutoffs map[string]time.Time
	err     error
}

func (s *stubPurger) PurgeBefore(_ context.Context, tenantID string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cutoffs == nil {
		s.cutoffs = make(map[string]time.Time)
	}
	s.cutoffs[tenantID] = cutoff
	if s.err != nil {
		return 0, s.err
	}
	return 2, nil
}

func TestSweepOncePurgesPerTenantWindow(t *testing.T) {
	t.Parallel()

	registry := &stubRegistry{policies: []tenantx.RetentionPolicy{
		{TenantID: "t-1", RetentionDays: 30},
		{TenantID: "t-2", RetentionDays: 7},
	}}
	purger := &stubPurger{}

	sweeper, err := NewSweeper(registry, purger, Config{})
	if err != nil {
		t.Fatalf("NewSweeper() error = %v", err)
	}
	now := time.Date(2026, 8, 31, 4, 0, 0, 0, time.UTC)
	sweeper.now = func() time.Time { return now }

	if err := sweeper.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}

	if got := purger.cutoffs["t-1"]; !got.Equal(now.AddDate(0, 0, -30)) {
		t.Fatalf("t-1 cutoff = %v", got)
	}
	if got := purger.cutoffs["t-2"]; !got.Equal(now.AddDate(0, 0, -7)) {
		t.Fatalf("t-2 cutoff = %v", got)
	}
}

func TestSweepOnceSkipsZeroRetention(t *testing.T) {
	t.Parallel()

	registry := &stubRegistry{policies: []tenantx.RetentionPolicy{
		{TenantID: "keep-forever", RetentionDays: 0},
	}}
	purger := &stubPurger{}

	sweeper, err := NewSweeper(registry, purger, Config{})
	if err != nil {
		t.Fatalf("NewSweeper() error = %v", err)
	}
	if err := sweeper.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}
	if len(purger.cutoffs) != 0 {
		t.Fatalf("purged tenants = %v, want none", purger.cutoffs)
	}
}

func TestSweepOncePropagatesPurgeError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("pg down")
	registry := &stubRegistry{policies: []tenantx.RetentionPolicy{
		{TenantID: "t-1", RetentionDays: 30},
	}}
	purger := &stubPurger{err: wantErr}

	sweeper, err := NewSweeper(registry, purger, Config{})
	if err != nil {
		t.Fatalf("NewSweeper() error = %v", err)
	}
	if err := sweeper.SweepOnce(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("SweepOnce() error = %v, want %v", err, wantErr)
	}
}

func TestSweepOnceListFailure(t *testing.T) {
	t.Parallel()

	registry := &stubRegistry{err: errors.New("pg down")}
	sweeper, err := NewSweeper(registry, &stubPurger{}, Config{})
	if err != nil {
		t.Fatalf("NewSweeper() error = %v", err)
	}
	if err := sweeper.SweepOnce(context.Background()); err == nil {
		t.Fatal("SweepOnce() error = nil, want failure")
	}
}
