package telegram

import (
	"errors"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"signalbot/internal/transport"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	t.Run("nil passes through", func(t *testing.T) {
		if got := classify(nil); got != nil {
			t.Fatalf("classify(nil) = %v", got)
		}
	})

	t.Run("forbidden is permanent", func(t *testing.T) {
		err := classify(tele.ErrBlockedByUser)
		if !transport.IsPermanent(err) {
			t.Fatalf("expected permanent, got %v", err)
		}
	})

	t.Run("bad request is transient", func(t *testing.T) {
		err := classify(&tele.Error{Code: 400, Description: "Bad Request: message not found"})
		if transport.IsPermanent(err) {
			t.Fatalf("expected transient, got %v", err)
		}
	})

	t.Run("flood carries retry-after", func(t *testing.T) {
		flood := tele.FloodError{
			Error:      &tele.Error{Code: 429, Description: "Too Many Requests"},
			RetryAfter: 7,
		}
		err := classify(flood)
		if transport.IsPermanent(err) {
			t.Fatalf("expected transient, got %v", err)
		}
		if got := transport.SuggestedWait(err); got != 7*time.Second {
			t.Fatalf("SuggestedWait = %v, want 7s", got)
		}
	})

	t.Run("plain error is transient", func(t *testing.T) {
		err := classify(errors.New("connection reset"))
		var se *transport.SendError
		if !errors.As(err, &se) || se.Kind != transport.KindTransient {
			t.Fatalf("expected transient SendError, got %v", err)
		}
	})
}
