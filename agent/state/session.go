package state

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/frontdesk-ai/frontdesk/agent/contract"
)

// State is the dialogue phase of a session. The set is closed; transitions
// happen only through Advance.
type State string

const (
	StateInitiated      State = "initiated"
	StateGreeting       State = "greeting"
	StateCollectingInfo State = "collecting_info"
	StateConsulting     State = "consulting"
	StateBooking        State = "booking"
	StateConfirming     State = "confirming"
	StateCompleted      State = "completed"
	StateFailed         State = "failed"
)

// Terminal reports whether no further transitions are allowed. A new inbound
// event on a terminal session starts a fresh session instead.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

func (s State) Valid() bool {
	switch s {
	case StateInitiated, StateGreeting, StateCollectingInfo, StateConsulting,
		StateBooking, StateConfirming, StateCompleted, StateFailed:
		return true
	}
	return false
}

// Well-known fact keys. The Facts bag stays open for tenant-specific values,
// but state transitions only ever consult these.
const (
	FactName           = "name"
	FactPhone          = "phone"
	FactDesiredService = "desired_service"
	FactServiceID      = "service_id"
	FactSelectedSlot   = "selected_slot"
	FactCustomerID     = "customer_id"
	FactBookingID      = "booking_id"
)

// Facts is the open key/value bag of accumulated conversation data.
type Facts map[string]any

func (f Facts) Has(key string) bool {
	if f == nil {
		return false
	}
	v, ok := f[key]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s) != ""
	}
	return true
}

func (f Facts) HasAny(keys ...string) bool {
	for _, k := range keys {
		if f.Has(k) {
			return true
		}
	}
	return false
}

func (f Facts) HasAll(keys ...string) bool {
	for _, k := range keys {
		if !f.Has(k) {
			return false
		}
	}
	return true
}

func (f Facts) String(key string) string {
	if f == nil {
		return ""
	}
	s, _ := f[key].(string)
	return s
}

// Key identifies one session: one tenant, one end user, one channel.
type Key struct {
	TenantID string
	UserID   string
	Channel  contractx.Channel
}

func (k Key) String() string {
	return fmt.Sprintf("tenant:%s:user:%s:%s", k.TenantID, k.UserID, k.Channel)
}

func (k Key) Validate() error {
	if strings.TrimSpace(k.TenantID) == "" {
		return fmt.Errorf("%w: tenant id is empty", contractx.ErrValidation)
	}
	if strings.TrimSpace(k.UserID) == "" {
		return fmt.Errorf("%w: user id is empty", contractx.ErrValidation)
	}
	if !k.Channel.Valid() {
		return fmt.Errorf("%w: unknown channel %q", contractx.ErrValidation, k.Channel)
	}
	return nil
}

// TranscriptEntry is one prior exchange kept on the session so the model
// sees recent conversation history on the next turn.
type TranscriptEntry struct {
	Role string `json:"role"` // "user" | "assistant"
	Text string `json:"text"`
}

// maxTranscriptEntries bounds the history carried into the model context;
// older exchanges survive only as audit records.
const maxTranscriptEntries = 20

// Session is one conversation between one tenant and one end user on one
// channel.
type Session struct {
	ID       string            `json:"id"`
	TenantID string            `json:"tenant_id"`
	UserID   string            `json:"user_id"`
	Channel  contractx.Channel `json:"channel"`

	State State `json:"state"`
	Facts Facts `json:"facts,omitempty"`

	MessageIDs []string          `json:"message_ids,omitempty"`
	Transcript []TranscriptEntry `json:"transcript,omitempty"`

	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

func NewSession(id string, key Key, now time.Time) *Session {
	return &Session{
		ID:             id,
		TenantID:       key.TenantID,
		UserID:         key.UserID,
		Channel:        key.Channel,
		State:          StateInitiated,
		Facts:          make(Facts, 8),
		CreatedAt:      now.UTC(),
		LastActivityAt: now.UTC(),
	}
}

func (s *Session) Key() Key {
	return Key{TenantID: s.TenantID, UserID: s.UserID, Channel: s.Channel}
}

func (s *Session) Touch(now time.Time) {
	s.LastActivityAt = now.UTC()
}

// AppendTranscript records one exchange, dropping the oldest entries once
// the cap is reached.
func (s *Session) AppendTranscript(role, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	s.Transcript = append(s.Transcript, TranscriptEntry{Role: role, Text: text})
	if over := len(s.Transcript) - maxTranscriptEntries; over > 0 {
		s.Transcript = append(s.Transcript[:0:0], s.Transcript[over:]...)
	}
}

func (s *Session) SetFact(key string, val any) {
	if s.Facts == nil {
		s.Facts = make(Facts, 8)
	}
	s.Facts[key] = val
}

func (s *Session) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: session id is empty", contractx.ErrValidation)
	}
	if err := s.Key().Validate(); err != nil {
		return err
	}
	if !s.State.Valid() {
		return fmt.Errorf("%w: unknown session state %q", contractx.ErrValidation, s.State)
	}
	return nil
}
