// Package transport defines the send capability the dispatcher consumes and
// the closed error taxonomy for delivery failures.
//
// The dispatcher never inspects concrete transport errors; adapters classify
// every failure into a SendError with a Kind before returning it.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MessageRef identifies a source message to be copied to destinations.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// DirectPayload is an ad-hoc text or file post (outbox "file" kind).
type DirectPayload struct {
	Text     string
	FilePath string
}

// Sender is the capability consumed from the chat transport.
//
// Copy re-posts an existing message to dest without a forward header.
// SendDirect delivers an ad-hoc text or document.
type Sender interface {
	Copy(ctx context.Context, dest string, ref MessageRef) error
	SendDirect(ctx context.Context, dest string, p DirectPayload) error
}

// ErrorKind partitions delivery failures.
type ErrorKind int

const (
	// KindTransient covers timeouts, network errors and rate-limit signals.
	// Transient failures are retried by the dispatcher.
	KindTransient ErrorKind = iota
	// KindPermanent means the destination revoked the sender's access
	// (blocked, kicked, channel deleted). Never retried; counts toward
	// auto-deregistration.
	KindPermanent
)

func (k ErrorKind) String() string {
	if k == KindPermanent {
		return "permanent"
	}
	return "transient"
}

// SendError is the only error type adapters return from send operations.
type SendError struct {
	Kind   ErrorKind
	Reason string
	// RetryAfter is a transport-suggested backoff (rate limiting); zero when
	// the transport gave none.
	RetryAfter time.Duration
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s: %s", e.Kind, e.Reason)
}

func Transient(reason string) *SendError {
	return &SendError{Kind: KindTransient, Reason: reason}
}

func Permanent(reason string) *SendError {
	return &SendError{Kind: KindPermanent, Reason: reason}
}

// IsPermanent reports whether err is a permanent-rejection send error.
func IsPermanent(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Kind == KindPermanent
}

// SuggestedWait returns the transport-suggested backoff, if any.
func SuggestedWait(err error) time.Duration {
	var se *SendError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}
