package chat

import (
	"fmt"
	"strconv"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// Message is a chat line in a channel.
type Message struct {
	Channel     string
	User        string // login
	DisplayName string
	Text        string
	Time        time.Time
}

// SubKind classifies a subscription event.
type SubKind string

const (
	KindSub          SubKind = "sub"
	KindResub        SubKind = "resub"
	KindSubGift      SubKind = "subgift"
	KindCommunitySub SubKind = "communitysub"
)

// SubEvent is a subscription USERNOTICE.
type SubEvent struct {
	Kind      SubKind
	Channel   string
	User      string // login of the subscriber or gifter
	Display   string
	Recipient string // login of the gift recipient (subgift only)
	Months    int
	Count     int // gifts in a community sub
	Plan      string
	PlanName  string
	Text      string
}

// joinFailureNotices are NOTICE msg-ids that reject a JOIN.
var joinFailureNotices = map[string]bool{
	"msg_channel_suspended":              true,
	"msg_channel_blocked":                true,
	"msg_banned":                         true,
	"tos_ban":                            true,
	"msg_room_not_found":                 true,
	"msg_requires_verified_phone_number": true,
	"msg_verified_email":                 true,
}

func messageFrom(m twitch.PrivateMessage) Message {
	return Message{
		Channel:     m.Channel,
		User:        m.User.Name,
		DisplayName: m.User.DisplayName,
		Text:        m.Message,
		Time:        m.Time,
	}
}

// subEventFrom maps a USERNOTICE to a SubEvent. ok is false for notices that
// are not subscription events (raids, announcements, ...).
func subEventFrom(m twitch.UserNoticeMessage) (ev SubEvent, ok bool) {
	ev = SubEvent{
		Channel:  m.Channel,
		User:     m.User.Name,
		Display:  m.User.DisplayName,
		Plan:     m.MsgParams["msg-param-sub-plan"],
		PlanName: m.MsgParams["msg-param-sub-plan-name"],
		Text:     m.Message,
	}
	switch m.MsgID {
	case "sub":
		ev.Kind = KindSub
		ev.Months = intParam(m.MsgParams, "msg-param-cumulative-months")
	case "resub", "extendsub":
		ev.Kind = KindResub
		ev.Months = intParam(m.MsgParams, "msg-param-cumulative-months")
	case "subgift", "anonsubgift":
		ev.Kind = KindSubGift
		ev.Recipient = m.MsgParams["msg-param-recipient-user-name"]
		ev.Months = intParam(m.MsgParams, "msg-param-months")
	case "submysterygift", "anonsubmysterygift":
		ev.Kind = KindCommunitySub
		ev.Count = intParam(m.MsgParams, "msg-param-mass-gift-count")
	default:
		return SubEvent{}, false
	}
	return ev, true
}

// joinErrorFrom returns an ErrJoin for a NOTICE that rejects a join, or nil.
func joinErrorFrom(m twitch.NoticeMessage) error {
	if !joinFailureNotices[m.MsgID] {
		return nil
	}
	return fmt.Errorf("%w: #%s: %s: %s", ErrJoin, m.Channel, m.MsgID, m.Message)
}

func intParam(params map[string]string, key string) int {
	n, err := strconv.Atoi(params[key])
	if err != nil {
		return 0
	}
	return n
}
