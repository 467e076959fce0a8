package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// LogSink writes events to the operator log: chat and joins at info,
// subscription events at warn.
type LogSink struct {
	Logger *slog.Logger
}

// Emit logs e at info, or warn for subscription events.
func (s LogSink) Emit(e Event) {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	level := slog.LevelInfo
	switch e.Kind {
	case KindSub, KindResub, KindSubGift, KindCommunitySub:
		level = slog.LevelWarn
	}
	log.Log(context.Background(), level, e.Summary(),
		slog.String("kind", e.Kind),
		slog.String("channel", e.Channel),
		slog.String("component", "relay"))
}

// Publisher is the subset of *nats.Conn used by NATSSink.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes events as JSON on <Prefix>.<kind>.<channel>.
type NATSSink struct {
	Conn   Publisher
	Prefix string
}

// Subject returns the subject e is published on.
func (s *NATSSink) Subject(e Event) string {
	return s.Prefix + "." + e.Kind + "." + e.Channel
}

// Emit publishes e as JSON on its subject. Publish errors are logged.
func (s *NATSSink) Emit(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("encode relay event", slog.Any("err", err), slog.String("component", "relay"))
		return
	}
	if err := s.Conn.Publish(s.Subject(e), data); err != nil {
		slog.Warn("publish relay event", slog.String("subject", s.Subject(e)), slog.Any("err", err), slog.String("component", "relay"))
	}
}

// ConnectNATS dials url with unlimited reconnects.
func ConnectNATS(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("lurker"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", slog.Any("err", err), slog.String("component", "relay"))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()), slog.String("component", "relay"))
		}),
	)
}
