package state

import (
	"errors"
	"fmt"
	"testing"
	"time"

	contractx "github.com/frontdesk-ai/frontdesk/agent/contract"
)

func TestKeyString(t *testing.T) {
	t.Parallel()

	key := Key{TenantID: "t-1", UserID: "u-9", Channel: contractx.ChannelTelegram}
	if got := key.String(); got != "tenant:t-1:user:u-9:telegram" {
		t.Fatalf("Key.String() = %q", got)
	}
}

func TestKeyValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  Key
	}{
		{"empty tenant", Key{UserID: "u", Channel: contractx.ChannelWeb}},
		{"empty user", Key{TenantID: "t", Channel: contractx.ChannelWeb}},
		{"unknown channel", Key{TenantID: "t", UserID: "u", Channel: "pager"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if err := tc.key.Validate(); !errors.Is(err, contractx.ErrValidation) {
				t.Fatalf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}

	valid := Key{TenantID: "t", UserID: "u", Channel: contractx.ChannelWhatsApp}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestFactsHasIgnoresBlankStrings(t *testing.T) {
	t.Parallel()

	facts := Facts{FactName: "  ", FactPhone: "+49170", FactServiceID: nil}
	if facts.Has(FactName) {
		t.Fatal("blank string counted as present")
	}
	if facts.Has(FactServiceID) {
		t.Fatal("nil value counted as present")
	}
	if !facts.Has(FactPhone) {
		t.Fatal("phone should be present")
	}
	if !facts.HasAny(FactName, FactPhone) {
		t.Fatal("HasAny should see phone")
	}
	if facts.HasAll(FactName, FactPhone) {
		t.Fatal("HasAll should fail on blank name")
	}
}

func TestNewSessionStartsInitiated(t *testing.T) {
	t.Parallel()

	key := Key{TenantID: "t-1", UserID: "u-1", Channel: contractx.ChannelWeb}
	s := NewSession("s-1", key, time.Now())

	if s.State != StateInitiated {
		t.Fatalf("State = %s, want %s", s.State, StateInitiated)
	}
	if s.Version != 0 {
		t.Fatalf("Version = %d, want 0", s.Version)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestAppendTranscriptCapsHistory(t *testing.T) {
	t.Parallel()

	key := Key{TenantID: "t-1", UserID: "u-1", Channel: contractx.ChannelWeb}
	s := NewSession("s-1", key, time.Now())

	s.AppendTranscript("user", "   ")
	if len(s.Transcript) != 0 {
		t.Fatal("blank text appended")
	}

	for i := 0; i < maxTranscriptEntries+5; i++ {
		s.AppendTranscript("user", fmt.Sprintf("message %d", i))
	}
	if len(s.Transcript) != maxTranscriptEntries {
		t.Fatalf("transcript length = %d, want %d", len(s.Transcript), maxTranscriptEntries)
	}
	if s.Transcript[0].Text != "message 5" {
		t.Fatalf("oldest entry = %q, want message 5", s.Transcript[0].Text)
	}
}

func TestSessionValidateRejectsUnknownState(t *testing.T) {
	t.Parallel()

	key := Key{TenantID: "t-1", UserID: "u-1", Channel: contractx.ChannelWeb}
	s := NewSession("s-1", key, time.Now())
	s.State = "negotiating"

	if err := s.Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}
}
