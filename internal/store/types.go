package store

import (
	"errors"
	"time"
)

// ErrUnavailable wraps durable write failures.
var ErrUnavailable = errors.New("store unavailable")

// Outcome is the terminal per-channel result of one delivery attempt series.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeForbidden Outcome = "forbidden"
	OutcomeFailed    Outcome = "failed"
)

// SendResult records the terminal outcome for a single channel within one
// broadcast.
type SendResult struct {
	Channel  string  `json:"channel"`
	Outcome  Outcome `json:"status"`
	Attempts int     `json:"attempts,omitempty"`
	Error    string  `json:"err,omitempty"`
}

// LedgerStatus annotates whole-broadcast conditions on a ledger entry.
type LedgerStatus string

const (
	// LedgerNoChannels marks a broadcast attempted against an empty registry.
	LedgerNoChannels LedgerStatus = "no_channels"
)

// LedgerEntry is the immutable record of one broadcast. Appended once per
// Dispatcher invocation and never mutated afterwards.
type LedgerEntry struct {
	Kind        string       `json:"type"`
	Status      LedgerStatus `json:"status,omitempty"`
	FromChatID  int64        `json:"from_chat_id,omitempty"`
	MessageID   int          `json:"message_id,omitempty"`
	Results     []SendResult `json:"results"`
	OriginActor int64        `json:"origin_admin"`
	Time        time.Time    `json:"time"` // UTC
}

// OutboxStatus is the scheduled-send state machine. Transitions are
// one-directional: pending -> sending -> {sent | error | unknown_type}.
type OutboxStatus string

const (
	OutboxPending     OutboxStatus = "pending"
	OutboxSending     OutboxStatus = "sending"
	OutboxSent        OutboxStatus = "sent"
	OutboxError       OutboxStatus = "error"
	OutboxUnknownType OutboxStatus = "unknown_type"
)

// Terminal reports whether the status cannot change anymore.
func (s OutboxStatus) Terminal() bool {
	switch s {
	case OutboxSent, OutboxError, OutboxUnknownType:
		return true
	}
	return false
}

// Outbox entry kinds.
const (
	KindCopy = "copy"
	KindFile = "file"
)

// OutboxEntry is a scheduled send. Created pending; mutated only by the
// sweep; never deleted (kept for audit).
type OutboxEntry struct {
	ID   string `json:"id"`
	Kind string `json:"type"`

	// copy payload
	FromChatID int64 `json:"from_chat_id,omitempty"`
	MessageID  int   `json:"message_id,omitempty"`

	// file payload
	Text     string `json:"text,omitempty"`
	FilePath string `json:"file_path,omitempty"`

	SendAt      time.Time    `json:"send_at"` // UTC
	Status      OutboxStatus `json:"status"`
	OriginActor int64        `json:"origin_admin"`

	SentAt  *time.Time   `json:"sent_at,omitempty"`
	Error   string       `json:"err,omitempty"`
	Results []SendResult `json:"results,omitempty"`
}
