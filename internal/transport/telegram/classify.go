package telegram

import (
	"errors"
	"time"

	tele "gopkg.in/telebot.v4"

	"signalbot/internal/transport"
)

// classify maps telebot errors onto the closed transport error taxonomy.
//
// 401/403 mean the bot's access to the destination was revoked (blocked,
// kicked, channel deleted): permanent, never retried. Flood control carries
// the API-suggested wait. Everything else (timeouts, 5xx, network errors)
// is transient.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var fe tele.FloodError
	if errors.As(err, &fe) {
		return &transport.SendError{
			Kind:       transport.KindTransient,
			Reason:     fe.Error(),
			RetryAfter: time.Duration(fe.RetryAfter) * time.Second,
		}
	}

	var te *tele.Error
	if errors.As(err, &te) {
		switch te.Code {
		case 401, 403:
			return transport.Permanent(te.Description)
		}
		return transport.Transient(te.Description)
	}

	return transport.Transient(err.Error())
}
