package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/lurker/chat"
	"github.com/onnwee/lurker/config"
)

type said struct{ channel, text string }

type fakeSayer struct{ lines []said }

func (f *fakeSayer) Say(channel, text string) { f.lines = append(f.lines, said{channel, text}) }

type fakeSaver struct {
	saved []config.Settings
	err   error
}

func (f *fakeSaver) Save(s config.Settings) error {
	f.saved = append(f.saved, s)
	return f.err
}

type fixedCount int

func (n fixedCount) Len() int { return int(n) }

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureSink) Emit(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureSink) kinds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Kind
	}
	return out
}

func newFixture(log config.Toggles) (*Commands, *fakeSayer, *fakeSaver) {
	sayer := &fakeSayer{}
	saver := &fakeSaver{}
	s := config.Settings{UserName: "lurkbot", Token: "oauth:x", Prefix: "!", Log: log}
	return NewCommands(s, saver, sayer, fixedCount(42)), sayer, saver
}

func TestCommandsToggle(t *testing.T) {
	cmds, sayer, saver := newFixture(config.Toggles{})

	if !cmds.Handle(chat.Message{Channel: "alice", User: "lurkbot", Text: "!logchat"}) {
		t.Fatal("owner command not handled")
	}
	if !cmds.Toggles().Chat {
		t.Error("chat toggle not flipped")
	}
	if len(sayer.lines) != 1 || sayer.lines[0] != (said{"alice", "true"}) {
		t.Errorf("reply = %v, want [alice true]", sayer.lines)
	}
	if len(saver.saved) != 1 || !saver.saved[0].Log.Chat {
		t.Errorf("settings not persisted after toggle: %+v", saver.saved)
	}

	cmds.Handle(chat.Message{Channel: "alice", User: "lurkbot", Text: "!logchat"})
	if cmds.Toggles().Chat {
		t.Error("second toggle should flip back")
	}
	if len(saver.saved) != 2 {
		t.Errorf("saves = %d, want 2", len(saver.saved))
	}
}

func TestCommandsEveryToggle(t *testing.T) {
	cmds, _, _ := newFixture(config.Toggles{})
	for _, name := range config.ToggleNames {
		if !cmds.Handle(chat.Message{Channel: "c", User: "lurkbot", Text: "!log" + name}) {
			t.Errorf("!log%s not handled", name)
		}
	}
	all := config.Toggles{Chat: true, Mentions: true, Subs: true, Resubs: true, SubGifts: true, RandomSubGifts: true, ReceivedSubGifts: true, Joins: true}
	if got := cmds.Toggles(); got != all {
		t.Errorf("toggles = %+v, want all on", got)
	}
}

func TestCommandsIgnored(t *testing.T) {
	tests := []struct {
		name string
		msg  chat.Message
	}{
		{"other user", chat.Message{User: "mallory", Text: "!logchat"}},
		{"no prefix", chat.Message{User: "lurkbot", Text: "logchat"}},
		{"unknown command", chat.Message{User: "lurkbot", Text: "!logeverything"}},
		{"not a log command", chat.Message{User: "lurkbot", Text: "!dance"}},
		{"owner in other case", chat.Message{User: "LurkBot", Text: "!logchat"}},
		{"padded text", chat.Message{User: "lurkbot", Text: " !logchat "}},
		{"trailing words", chat.Message{User: "lurkbot", Text: "!logchat now"}},
		{"upper-case command", chat.Message{User: "lurkbot", Text: "!LOGCHAT"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds, sayer, saver := newFixture(config.Toggles{})
			if cmds.Handle(tt.msg) {
				t.Error("Handle() = true, want false")
			}
			if len(sayer.lines) != 0 || len(saver.saved) != 0 {
				t.Errorf("ignored message had side effects: say=%v save=%v", sayer.lines, saver.saved)
			}
			if cmds.Toggles() != (config.Toggles{}) {
				t.Error("toggles changed")
			}
		})
	}
}

func TestCommandsStatus(t *testing.T) {
	cmds, sayer, saver := newFixture(config.Toggles{Mentions: true, Joins: true})
	if !cmds.Handle(chat.Message{Channel: "alice", User: "lurkbot", Text: "!status"}) {
		t.Fatal("status not handled")
	}
	want := "Channels: 42, Log: chat = false, mentions = true, subs = false, resubs = false, subgifts = false, randomsubgifts = false, receivedsubgifts = false, joins = true"
	if len(sayer.lines) != 1 || sayer.lines[0].text != want {
		t.Errorf("status reply = %v\nwant %q", sayer.lines, want)
	}
	if len(saver.saved) != 0 {
		t.Error("status must not persist settings")
	}
}

func TestCommandsPersistFailureKeepsToggle(t *testing.T) {
	cmds, _, saver := newFixture(config.Toggles{})
	saver.err = errors.New("read-only filesystem")
	cmds.Handle(chat.Message{User: "lurkbot", Text: "!logsubs"})
	if !cmds.Toggles().Subs {
		t.Error("in-memory toggle should survive a failed save")
	}
}

func TestRouterMentions(t *testing.T) {
	cmds, _, _ := newFixture(config.Toggles{Mentions: true})
	r := NewRouter(cmds)
	tests := []struct {
		text string
		want bool
	}{
		{"hey lurkbot", true},
		{"@LurkBot hi", true},
		{"lurkbot", true},
		{"(lurkbot)", true},
		{"lurkbot, you there?", true},
		{"lurkbots are cool", false},
		{"notlurkbot", false},
		{"lurkbot_fan", false},
		{"hello world", false},
	}
	for _, tt := range tests {
		if got := r.IsMention(tt.text); got != tt.want {
			t.Errorf("IsMention(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestRouterMessages(t *testing.T) {
	tests := []struct {
		name    string
		toggles config.Toggles
		text    string
		want    int
	}{
		{"chat on", config.Toggles{Chat: true}, "hello", 1},
		{"all off", config.Toggles{}, "hello lurkbot", 0},
		{"mention only, no mention", config.Toggles{Mentions: true}, "hello", 0},
		{"mention only, mentioned", config.Toggles{Mentions: true}, "hello lurkbot", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds, _, _ := newFixture(tt.toggles)
			sink := &captureSink{}
			r := NewRouter(cmds, sink)
			r.HandleMessage(chat.Message{Channel: "alice", User: "bob", Text: tt.text})
			if len(sink.events) != tt.want {
				t.Errorf("events = %d, want %d", len(sink.events), tt.want)
			}
		})
	}
}

func TestRouterMessageRunsCommands(t *testing.T) {
	cmds, _, _ := newFixture(config.Toggles{})
	r := NewRouter(cmds)
	r.HandleMessage(chat.Message{Channel: "alice", User: "lurkbot", Text: "!logjoins"})
	if !cmds.Toggles().Joins {
		t.Error("command in message not handled")
	}
}

func TestRouterSubs(t *testing.T) {
	gift := chat.SubEvent{Kind: chat.KindSubGift, Channel: "alice", User: "carol", Recipient: "dave", Months: 1}
	giftToBot := chat.SubEvent{Kind: chat.KindSubGift, Channel: "alice", User: "carol", Recipient: "lurkbot"}
	community := chat.SubEvent{Kind: chat.KindCommunitySub, Channel: "alice", User: "carol", Count: 5}
	tests := []struct {
		name    string
		toggles config.Toggles
		ev      chat.SubEvent
		want    bool
	}{
		{"sub on", config.Toggles{Subs: true}, chat.SubEvent{Kind: chat.KindSub, Channel: "a"}, true},
		{"sub off", config.Toggles{Resubs: true}, chat.SubEvent{Kind: chat.KindSub, Channel: "a"}, false},
		{"resub on", config.Toggles{Resubs: true}, chat.SubEvent{Kind: chat.KindResub, Channel: "a"}, true},
		{"gift on", config.Toggles{SubGifts: true}, gift, true},
		{"gift off", config.Toggles{}, gift, false},
		{"gift to other, received only", config.Toggles{ReceivedSubGifts: true}, gift, false},
		{"gift to bot, received only", config.Toggles{ReceivedSubGifts: true}, giftToBot, true},
		{"gift to bot in other case", config.Toggles{ReceivedSubGifts: true}, chat.SubEvent{Kind: chat.KindSubGift, Channel: "alice", User: "carol", Recipient: "LurkBot"}, false},
		{"community by bot, received only", config.Toggles{ReceivedSubGifts: true}, chat.SubEvent{Kind: chat.KindCommunitySub, Channel: "alice", User: "lurkbot", Count: 1}, true},
		{"community on", config.Toggles{RandomSubGifts: true}, community, true},
		{"community off", config.Toggles{SubGifts: true}, community, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds, _, _ := newFixture(tt.toggles)
			sink := &captureSink{}
			NewRouter(cmds, sink).HandleSub(tt.ev)
			if got := len(sink.events) == 1; got != tt.want {
				t.Errorf("relayed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRouterSelfJoin(t *testing.T) {
	cmds, _, _ := newFixture(config.Toggles{Joins: true})
	sink := &captureSink{}
	r := NewRouter(cmds, sink)
	r.HandleSelfJoin("alice")
	if kinds := sink.kinds(); len(kinds) != 1 || kinds[0] != KindJoin {
		t.Errorf("events = %v, want [join]", kinds)
	}
	if sink.events[0].Time.IsZero() {
		t.Error("event time not stamped")
	}

	cmds.Handle(chat.Message{User: "lurkbot", Text: "!logjoins"})
	r.HandleSelfJoin("bob")
	if len(sink.events) != 1 {
		t.Error("join relayed after toggle off")
	}
}

func TestEventSummary(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{Event{Kind: KindMessage, User: "bob", Text: "hi"}, "bob: hi"},
		{Event{Kind: KindSub, User: "bob", Months: 1}, "bob subscribed for 1 months"},
		{Event{Kind: KindSub, User: "bob", Months: 1, Text: "yay"}, "bob subscribed for 1 months. Message: yay"},
		{Event{Kind: KindResub, User: "bob", Plan: "Tier 1", Months: 7}, "bob resubscribed with Tier 1 for 7 months"},
		{Event{Kind: KindSubGift, User: "carol", Recipient: "dave", Months: 2}, "carol gifted subscription to dave. dave is subscribed for 2 months"},
		{Event{Kind: KindCommunitySub, User: "carol", Count: 5}, "carol randomly gifted 5 subscriptions"},
		{Event{Kind: KindJoin, Channel: "alice"}, "joined #alice"},
	}
	for _, tt := range tests {
		if got := tt.ev.Summary(); got != tt.want {
			t.Errorf("Summary() = %q, want %q", got, tt.want)
		}
	}
}

func TestLogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	sink.Emit(Event{Kind: KindMessage, Channel: "alice", User: "bob", Text: "hi"})
	sink.Emit(Event{Kind: KindSub, Channel: "alice", User: "bob", Months: 3})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2", len(lines))
	}
	wantLevels := []string{"INFO", "WARN"}
	for i, line := range lines {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		if rec["level"] != wantLevels[i] {
			t.Errorf("line %d level = %v, want %s", i, rec["level"], wantLevels[i])
		}
		if rec["channel"] != "alice" {
			t.Errorf("line %d channel = %v", i, rec["channel"])
		}
	}
}

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return p.err
}

func TestNATSSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := &NATSSink{Conn: pub, Prefix: "lurker.events"}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sink.Emit(Event{Kind: KindSubGift, Channel: "alice", User: "carol", Recipient: "dave", Months: 1, Time: at})

	if len(pub.subjects) != 1 || pub.subjects[0] != "lurker.events.subgift.alice" {
		t.Fatalf("subjects = %v", pub.subjects)
	}
	var got Event
	if err := json.Unmarshal(pub.payloads[0], &got); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if got.Recipient != "dave" || got.User != "carol" || !got.Time.Equal(at) {
		t.Errorf("payload = %+v", got)
	}

	// Publish errors are logged, not propagated.
	pub.err = errors.New("nats: connection closed")
	sink.Emit(Event{Kind: KindJoin, Channel: "bob"})
	if len(pub.subjects) != 2 {
		t.Error("second publish not attempted")
	}
}

func TestConnectNATSUnreachable(t *testing.T) {
	if _, err := ConnectNATS("nats://127.0.0.1:1"); err == nil {
		t.Error("expected error connecting to a closed port")
	}
}
