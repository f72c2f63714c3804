// Package router registers the admin command surface on the telebot
// instance. Only configured admin users get replies; everything else is
// dropped before any handler runs.
package router

import (
	"context"
	"runtime/debug"
	"time"

	tele "gopkg.in/telebot.v4"

	"signalbot/internal/dispatcher"
	"signalbot/internal/outbox"
	"signalbot/internal/registry"
	"signalbot/internal/store"
	logx "signalbot/pkg/logx"
)

type Router struct {
	bot  *tele.Bot
	reg  *registry.Registry
	disp *dispatcher.Dispatcher
	obx  *outbox.Service
	st   store.Store
	log  logx.Logger

	// admins returns the live admin list so config reloads take effect
	// without re-registering handlers.
	admins func() []int64

	// ctx is the app lifetime; broadcasts started from handlers are bound
	// to it, not to telebot's per-update processing.
	ctx context.Context
}

func New(bot *tele.Bot, reg *registry.Registry, disp *dispatcher.Dispatcher, obx *outbox.Service, st store.Store, admins func() []int64, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		bot:    bot,
		reg:    reg,
		disp:   disp,
		obx:    obx,
		st:     st,
		admins: admins,
		log:    log.With(logx.String("svc", "router")),
	}
}

// Register installs middleware and all command handlers. ctx bounds the
// work handlers kick off.
func (r *Router) Register(ctx context.Context) {
	r.ctx = ctx

	r.bot.Use(r.mwRecover, r.mwAdminOnly, r.mwRequestLog)

	r.bot.Handle("/start", r.handleStart)
	r.bot.Handle("/help", r.handleStart)
	r.bot.Handle("/getchatid", r.handleGetChatID)
	r.bot.Handle("/addchannel", r.handleAddChannel)
	r.bot.Handle("/removechannel", r.handleRemoveChannel)
	r.bot.Handle("/status", r.handleStatus)
	r.bot.Handle("/analytics", r.handleAnalytics)
	r.bot.Handle("/stats", r.handleStats)
	r.bot.Handle("/schedule", r.handleSchedule)
	r.bot.Handle("/sendfile", r.handleSendFile)

	// Any non-command admin message is broadcast as-is.
	r.bot.Handle(tele.OnText, r.handleBroadcast)
	r.bot.Handle(tele.OnPhoto, r.handleBroadcast)
	r.bot.Handle(tele.OnVideo, r.handleBroadcast)
	r.bot.Handle(tele.OnDocument, r.handleBroadcast)
	r.bot.Handle(tele.OnAudio, r.handleBroadcast)
	r.bot.Handle(tele.OnVoice, r.handleBroadcast)
}

func (r *Router) mwRecover(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			if p := recover(); p != nil {
				r.log.Error("handler panicked",
					logx.Any("panic", p),
					logx.String("stack", string(debug.Stack())))
				err = nil
			}
		}()
		return next(c)
	}
}

// mwAdminOnly drops updates from anyone not in the admin list. No reply is
// sent: the bot stays silent toward strangers.
func (r *Router) mwAdminOnly(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil || !isAdmin(r.admins(), sender.ID) {
			return nil
		}
		return next(c)
	}
}

func (r *Router) mwRequestLog(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		err := next(c)
		fields := []logx.Field{
			logx.Int64("from_id", senderID(c)),
			logx.String("text", firstToken(c.Text())),
			logx.Duration("dur", time.Since(start)),
		}
		if err != nil {
			r.log.Warn("request failed", append(fields, logx.Err(err))...)
			return err
		}
		// Keep INFO useful: quick requests go to DEBUG.
		if time.Since(start) >= 750*time.Millisecond {
			r.log.Info("request ok", fields...)
		} else {
			r.log.Debug("request ok", fields...)
		}
		return nil
	}
}

func isAdmin(admins []int64, id int64) bool {
	for _, a := range admins {
		if a == id {
			return true
		}
	}
	return false
}

func senderID(c tele.Context) int64 {
	if s := c.Sender(); s != nil {
		return s.ID
	}
	return 0
}
