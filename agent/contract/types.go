package contract

import (
	"encoding/json"
	"time"
)

// Channel is the transport an end user reached us through.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelVoice    Channel = "voice"
	ChannelWeb      Channel = "web"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelTelegram, ChannelWhatsApp, ChannelVoice, ChannelWeb:
		return true
	}
	return false
}

// InboundEvent is the normalized message handed over by the ingress layer.
type InboundEvent struct {
	ChannelToken string    `json:"channel_token"`
	UserID       string    `json:"user_id"`
	Channel      Channel   `json:"channel"`
	Text         string    `json:"text,omitempty"`
	MediaRef     string    `json:"media_ref,omitempty"`
	SentAt       time.Time `json:"sent_at"`
}

// OutboundReply is returned for every processed event, including handled
// failures.
type OutboundReply struct {
	Text         string `json:"text"`
	ToolInvoked  bool   `json:"tool_invoked"`
	SessionState string `json:"session_state"`
	Error        string `json:"error,omitempty"`
}

type ToolRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

type ToolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// MessageRecord is an append-only audit entry for one inbound or outbound
// turn. Never mutated once written; purged by the retention sweep.
type MessageRecord struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	SessionID string    `json:"session_id"`
	Channel   Channel   `json:"channel"`
	Sender    string    `json:"sender"` // "user" | "assistant"
	Text      string    `json:"text,omitempty"`
	MediaRef  string    `json:"media_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ToolInvocationRecord captures one capability-adapter call within a
// dispatch round, for audit and analytics only.
type ToolInvocationRecord struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	SessionID string          `json:"session_id"`
	Tool      string          `json:"tool"`
	Args      json.RawMessage `json:"args,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	LatencyMS int64           `json:"latency_ms"`
	CreatedAt time.Time       `json:"created_at"`
}
