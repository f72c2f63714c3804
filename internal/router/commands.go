package router

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"signalbot/internal/analytics"
	"signalbot/internal/store"
	"signalbot/internal/transport"
	logx "signalbot/pkg/logx"
	"signalbot/pkg/timeparse"
)

const helpText = `signalbot commands:
/addchannel <@name|id> - register a broadcast destination
/removechannel <@name|id> - deregister a destination
/status - registered channels and outbox depth
/analytics - delivery statistics
/stats - per-channel statistics
/schedule <when> - reply to a message to schedule it ("5m", "15:04", "tomorrow 10:00")
/sendfile <path> [caption] - broadcast a file from the bot host
/getchatid - show this chat's id

Any other message you send here is broadcast to all channels immediately.`

func (r *Router) handleStart(c tele.Context) error {
	return c.Send(helpText)
}

func (r *Router) handleGetChatID(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Chat == nil {
		return nil
	}
	return c.Send(fmt.Sprintf("chat id: %d", m.Chat.ID))
}

func (r *Router) handleAddChannel(c tele.Context) error {
	id, err := normalizeChannel(strings.Join(c.Args(), " "))
	if err != nil {
		return c.Send("usage: /addchannel <@name|id>")
	}
	added, aerr := r.reg.Add(r.ctx, id)
	if aerr != nil {
		return c.Send("could not save channel: " + aerr.Error())
	}
	if !added {
		return c.Send(id + " is already registered")
	}
	return c.Send(id + " registered")
}

func (r *Router) handleRemoveChannel(c tele.Context) error {
	id, err := normalizeChannel(strings.Join(c.Args(), " "))
	if err != nil {
		return c.Send("usage: /removechannel <@name|id>")
	}
	removed, rerr := r.reg.Remove(r.ctx, id)
	if rerr != nil {
		return c.Send("could not save channel list: " + rerr.Error())
	}
	if !removed {
		return c.Send(id + " is not registered")
	}
	return c.Send(id + " removed")
}

func (r *Router) handleStatus(c tele.Context) error {
	channels := r.reg.List(r.ctx)
	pending := 0
	for _, e := range r.obx.Entries(r.ctx) {
		if !e.Status.Terminal() {
			pending++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "channels: %d\n", len(channels))
	for _, ch := range channels {
		b.WriteString("  ")
		b.WriteString(ch)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "outbox: %d queued", pending)
	return c.Send(b.String())
}

func (r *Router) handleAnalytics(c tele.Context) error {
	sum := analytics.Summarize(r.st.Posts(r.ctx), r.reg.List(r.ctx))
	return c.Send(renderSummary(sum))
}

func (r *Router) handleStats(c tele.Context) error {
	sum := analytics.Summarize(r.st.Posts(r.ctx), r.reg.List(r.ctx))
	return c.Send(renderPerChannel(sum))
}

func (r *Router) handleSchedule(c tele.Context) error {
	m := c.Message()
	if m == nil || m.ReplyTo == nil {
		return c.Send("reply to the message you want to schedule: /schedule <when>")
	}
	spec := strings.TrimSpace(strings.Join(c.Args(), " "))
	at, err := timeparse.At(time.Now(), spec)
	if err != nil {
		return c.Send(`could not parse the time; try "5m", "2h", "15:04" or "tomorrow 10:00"`)
	}

	entry, err := r.obx.Schedule(r.ctx, store.OutboxEntry{
		Kind:        store.KindCopy,
		FromChatID:  m.ReplyTo.Chat.ID,
		MessageID:   m.ReplyTo.ID,
		SendAt:      at,
		OriginActor: senderID(c),
	})
	if err != nil {
		return c.Send("could not save the schedule: " + err.Error())
	}
	return c.Send(fmt.Sprintf("scheduled for %s (id %s)", at.Local().Format("2006-01-02 15:04"), entry.ID))
}

func (r *Router) handleSendFile(c tele.Context) error {
	args := c.Args()
	if len(args) == 0 {
		return c.Send("usage: /sendfile <path> [caption]")
	}
	payload := transport.DirectPayload{
		FilePath: args[0],
		Text:     strings.Join(args[1:], " "),
	}
	results, err := r.disp.Direct(r.ctx, payload, senderID(c))
	if err != nil {
		return c.Send("broadcast failed: " + err.Error())
	}
	return c.Send(renderResults(results))
}

// handleBroadcast fans out any plain admin message. Commands that did not
// match a registered route fall through to OnText; they are ignored rather
// than broadcast.
func (r *Router) handleBroadcast(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Chat == nil {
		return nil
	}
	if strings.HasPrefix(strings.TrimSpace(m.Text), "/") {
		return c.Send("unknown command; see /help")
	}

	ref := transport.MessageRef{ChatID: m.Chat.ID, MessageID: m.ID}
	results, err := r.disp.Broadcast(r.ctx, ref, senderID(c))
	if err != nil {
		r.log.Error("broadcast failed", logx.Err(err))
		return c.Send("broadcast failed: " + err.Error())
	}
	return c.Send(renderResults(results))
}

// normalizeChannel validates a destination identifier: a numeric chat id
// (possibly negative) is kept as-is, anything else must look like a public
// channel handle and gets the @ prefix added when missing.
func normalizeChannel(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty channel id")
	}
	if strings.ContainsAny(s, " \t\n") {
		return "", fmt.Errorf("channel id must be a single token")
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return s, nil
	}
	if !strings.HasPrefix(s, "@") {
		s = "@" + s
	}
	if len(s) < 2 {
		return "", fmt.Errorf("channel handle too short")
	}
	return s, nil
}

func firstToken(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t\n"); i >= 0 {
		s = s[:i]
	}
	// never log free-form message bodies
	if !strings.HasPrefix(s, "/") {
		return "<message>"
	}
	return s
}

func renderResults(results []store.SendResult) string {
	if len(results) == 0 {
		return "no channels registered; use /addchannel first"
	}
	ok, forbidden, failed := 0, 0, 0
	var problems []string
	for _, res := range results {
		switch res.Outcome {
		case store.OutcomeOK:
			ok++
		case store.OutcomeForbidden:
			forbidden++
			problems = append(problems, fmt.Sprintf("%s: removed (forbidden)", res.Channel))
		default:
			failed++
			problems = append(problems, fmt.Sprintf("%s: %s", res.Channel, res.Error))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "sent to %d/%d channels", ok, len(results))
	for _, p := range problems {
		b.WriteByte('\n')
		b.WriteString(p)
	}
	return b.String()
}

func renderSummary(sum analytics.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "broadcasts: %d (%d with no channels)\n", sum.Broadcasts, sum.NoChannels)
	fmt.Fprintf(&b, "sends: %d ok / %d forbidden / %d failed of %d\n",
		sum.Delivered, sum.Forbidden, sum.Failed, sum.Sends)
	fmt.Fprintf(&b, "success rate: %.1f%%\n", sum.SuccessRate()*100)
	fmt.Fprintf(&b, "registered channels: %d", sum.Registered)
	if len(sum.LastEntries) > 0 {
		b.WriteString("\nrecent:")
		for _, e := range sum.LastEntries {
			fmt.Fprintf(&b, "\n  %s %s (%d results)",
				e.Time.Local().Format("01-02 15:04"), e.Kind, len(e.Results))
		}
	}
	return b.String()
}

func renderPerChannel(sum analytics.Summary) string {
	if len(sum.PerChannel) == 0 {
		return "no deliveries recorded yet"
	}
	var b strings.Builder
	b.WriteString("per-channel:")
	for _, cs := range sum.PerChannel {
		fmt.Fprintf(&b, "\n%s: %d ok / %d forbidden / %d failed",
			cs.Channel, cs.OK, cs.Forbidden, cs.Failed)
	}
	return b.String()
}
