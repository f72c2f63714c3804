// Package telegram adapts the transport capability to the Telegram Bot API
// via telebot.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	rtsup "signalbot/internal/runtime/supervisor"
	"signalbot/internal/transport"
	logx "signalbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// RatePerSec bounds outgoing Bot API calls globally. This protects the
	// API budget; per-channel pacing is the rate governor's job.
	RatePerSec int
	// SendTimeout bounds a single send attempt so a hung transport call
	// cannot stall a broadcast indefinitely.
	SendTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 25
	}
	return &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// Bot exposes the underlying telebot instance for handler registration.
func (a *Adapter) Bot() *tele.Bot { return a.bot }

// Start begins long polling. Telebot's Start() is a long-running loop; in
// some failure modes it can exit unexpectedly, so it runs under a restart
// loop and self-heals.
func (a *Adapter) Start(ctx context.Context) {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return
	}
	a.running = true
	a.sup = rtsup.New(ctx, a.log.With(logx.String("comp", "telegram.adapter")))

	a.sup.Go("telebot.stop_on_cancel", func(c context.Context) error {
		<-c.Done()
		if a.bot != nil {
			a.bot.Stop()
		}
		return nil
	})

	a.sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop()
		a.log.Info("polling stopped")
		if c.Err() == nil {
			return errors.New("poll loop exited unexpectedly")
		}
		return nil
	}, 500*time.Millisecond, 10*time.Second)
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	a.running = false
	a.runMu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

// Copy implements transport.Sender.
func (a *Adapter) Copy(ctx context.Context, dest string, ref transport.MessageRef) error {
	return a.call(ctx, func() error {
		src := tele.StoredMessage{
			MessageID: strconv.Itoa(ref.MessageID),
			ChatID:    ref.ChatID,
		}
		_, err := a.bot.Copy(destination(dest), src)
		return err
	})
}

// SendDirect implements transport.Sender.
func (a *Adapter) SendDirect(ctx context.Context, dest string, p transport.DirectPayload) error {
	return a.call(ctx, func() error {
		var err error
		if p.FilePath != "" {
			doc := &tele.Document{File: tele.FromDisk(p.FilePath), Caption: p.Text}
			_, err = a.bot.Send(destination(dest), doc)
		} else {
			_, err = a.bot.Send(destination(dest), p.Text)
		}
		return err
	})
}

// call applies the global limiter and per-attempt timeout, then classifies
// the transport error.
func (a *Adapter) call(ctx context.Context, fn func() error) error {
	if a.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.SendTimeout)
		defer cancel()
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return transport.Transient(err.Error())
	}

	// telebot calls are not ctx-aware; run the call and bound the wait.
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return classify(err)
	case <-ctx.Done():
		return transport.Transient("send attempt timed out: " + ctx.Err().Error())
	}
}

// destination resolves a stored channel identifier (numeric id or @handle)
// to a telebot recipient.
func destination(id string) tele.Recipient {
	return chatRecipient(id)
}

type chatRecipient string

func (r chatRecipient) Recipient() string { return string(r) }
