package relay

import (
	"fmt"
	"regexp"
	"time"

	"github.com/onnwee/lurker/chat"
	"github.com/onnwee/lurker/telemetry"
)

// Event kinds.
const (
	KindMessage      = "message"
	KindSub          = string(chat.KindSub)
	KindResub        = string(chat.KindResub)
	KindSubGift      = string(chat.KindSubGift)
	KindCommunitySub = string(chat.KindCommunitySub)
	KindJoin         = "join"
)

// Event is a relayed chat event.
type Event struct {
	Kind      string    `json:"kind"`
	Channel   string    `json:"channel"`
	User      string    `json:"user,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Mention   bool      `json:"mention,omitempty"`
	Months    int       `json:"months,omitempty"`
	Count     int       `json:"count,omitempty"`
	Plan      string    `json:"plan,omitempty"`
	Text      string    `json:"text,omitempty"`
	Time      time.Time `json:"time"`
}

// Summary renders e as a single operator log line.
func (e Event) Summary() string {
	withText := func(s string) string {
		if e.Text != "" {
			return s + ". Message: " + e.Text
		}
		return s
	}
	switch e.Kind {
	case KindMessage:
		return e.User + ": " + e.Text
	case KindSub:
		return withText(fmt.Sprintf("%s subscribed for %d months", e.User, e.Months))
	case KindResub:
		return withText(fmt.Sprintf("%s resubscribed with %s for %d months", e.User, e.Plan, e.Months))
	case KindSubGift:
		return fmt.Sprintf("%s gifted subscription to %s. %s is subscribed for %d months", e.User, e.Recipient, e.Recipient, e.Months)
	case KindCommunitySub:
		return fmt.Sprintf("%s randomly gifted %d subscriptions", e.User, e.Count)
	case KindJoin:
		return "joined #" + e.Channel
	}
	return e.Kind + " in #" + e.Channel
}

// Sink receives relayed events.
type Sink interface {
	Emit(Event)
}

// Router filters transport events through the current toggles and fans the
// selected ones out to its sinks.
type Router struct {
	commands *Commands
	sinks    []Sink
	mention  *regexp.Regexp
	now      func() time.Time
}

// mentionBoundary matches the characters allowed around a mention.
const mentionBoundary = `[!@#&*()+\-",.? ]`

// NewRouter builds a router for the bot owned by cmds.
func NewRouter(cmds *Commands, sinks ...Sink) *Router {
	name := regexp.QuoteMeta(cmds.Owner())
	return &Router{
		commands: cmds,
		sinks:    sinks,
		mention:  regexp.MustCompile(`(?i)(?:` + mentionBoundary + `|^)` + name + `(?:` + mentionBoundary + `|$)`),
		now:      time.Now,
	}
}

// IsMention reports whether text mentions the bot by name.
func (r *Router) IsMention(text string) bool { return r.mention.MatchString(text) }

func (r *Router) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = r.now()
	}
	telemetry.IncRelayed(e.Kind)
	for _, s := range r.sinks {
		s.Emit(e)
	}
}

// HandleMessage relays m when chat logging is on, or when it mentions the bot
// and mention logging is on. Owner commands are then handled.
func (r *Router) HandleMessage(m chat.Message) {
	t := r.commands.Toggles()
	mention := r.IsMention(m.Text)
	if t.Chat || (t.Mentions && mention) {
		r.emit(Event{Kind: KindMessage, Channel: m.Channel, User: m.User, Mention: mention, Text: m.Text, Time: m.Time})
	}
	r.commands.Handle(m)
}

// HandleSub relays subscription events according to the toggles. Gifts to the
// bot are relayed under receivedsubgifts even when gift logging is off.
func (r *Router) HandleSub(ev chat.SubEvent) {
	t := r.commands.Toggles()
	bot := r.commands.Owner()
	var relay bool
	switch ev.Kind {
	case chat.KindSub:
		relay = t.Subs
	case chat.KindResub:
		relay = t.Resubs
	case chat.KindSubGift:
		relay = t.SubGifts || (t.ReceivedSubGifts && ev.Recipient == bot)
	case chat.KindCommunitySub:
		relay = t.RandomSubGifts || (t.ReceivedSubGifts && ev.User == bot)
	}
	if !relay {
		return
	}
	plan := ev.PlanName
	if plan == "" {
		plan = ev.Plan
	}
	r.emit(Event{
		Kind:      string(ev.Kind),
		Channel:   ev.Channel,
		User:      ev.User,
		Recipient: ev.Recipient,
		Months:    ev.Months,
		Count:     ev.Count,
		Plan:      plan,
		Text:      ev.Text,
	})
}

// HandleSelfJoin relays the bot's own joins when join logging is on.
func (r *Router) HandleSelfJoin(channel string) {
	if r.commands.Toggles().Joins {
		r.emit(Event{Kind: KindJoin, Channel: channel})
	}
}
