package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// DefaultReconnectDelay is the pause between connection attempts.
const DefaultReconnectDelay = 5 * time.Second

var (
	// ErrJoin reports a join that could not be sent or was rejected.
	ErrJoin = errors.New("chat: join failed")
	// ErrFatal reports a transport failure that retrying cannot fix.
	ErrFatal = errors.New("chat: fatal transport error")
	// ErrNotConnected is wrapped into ErrJoin when no connection is open.
	ErrNotConnected = errors.New("not connected")
)

// Config configures a Client.
type Config struct {
	Username       string
	OAuth          string // with or without the "oauth:" prefix
	ReconnectDelay time.Duration
	// IRCAddress overrides the library's default server (host:port).
	IRCAddress string
	// Insecure disables TLS; only useful against a local test server.
	Insecure bool
}

// Client is a reconnecting Twitch chat connection.
type Client struct {
	cfg Config

	mu  sync.Mutex
	irc *twitch.Client

	onConnected    func()
	onDisconnected func(error)
	onMessage      func(Message)
	onSub          func(SubEvent)
	onSelfJoin     func(channel string)
	onJoinError    func(channel string, err error)
}

// New returns a client for cfg. Register handlers before calling Run.
func New(cfg Config) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.OAuth != "" && !strings.HasPrefix(cfg.OAuth, "oauth:") {
		cfg.OAuth = "oauth:" + cfg.OAuth
	}
	return &Client{cfg: cfg}
}

func (c *Client) OnConnected(fn func()) { c.onConnected = fn }
func (c *Client) OnDisconnected(fn func(error)) { c.onDisconnected = fn }
func (c *Client) OnMessage(fn func(Message)) { c.onMessage = fn }
func (c *Client) OnSub(fn func(SubEvent)) { c.onSub = fn }
func (c *Client) OnSelfJoin(fn func(channel string)) { c.onSelfJoin = fn }
func (c *Client) OnJoinError(fn func(channel string, err error)) { c.onJoinError = fn }

// Join requests membership of channel on the open connection. The request is
// queued by the IRC client; rejections arrive later through OnJoinError.
func (c *Client) Join(_ context.Context, channel string) error {
	c.mu.Lock()
	irc := c.irc
	c.mu.Unlock()
	if irc == nil {
		return fmt.Errorf("%w: #%s: %w", ErrJoin, channel, ErrNotConnected)
	}
	irc.Join(channel)
	return nil
}

// Say sends text to channel. It is dropped when no connection is open.
func (c *Client) Say(channel, text string) {
	c.mu.Lock()
	irc := c.irc
	c.mu.Unlock()
	if irc == nil {
		slog.Warn("chat: say while disconnected", slog.String("channel", channel), slog.String("component", "chat"))
		return
	}
	irc.Say(channel, text)
}

func (c *Client) newIRC(ctx context.Context, connected *atomic.Bool) *twitch.Client {
	irc := twitch.NewClient(c.cfg.Username, c.cfg.OAuth)
	irc.Capabilities = []string{twitch.TagsCapability, twitch.CommandsCapability}
	if c.cfg.IRCAddress != "" {
		irc.IrcAddress = c.cfg.IRCAddress
	}
	if c.cfg.Insecure {
		irc.TLS = false
	}

	irc.OnConnect(func() {
		if ctx.Err() != nil {
			_ = irc.Disconnect()
			return
		}
		connected.Store(true)
		slog.Info("chat: connected", slog.String("user", c.cfg.Username), slog.String("component", "chat"))
		if c.onConnected != nil {
			c.onConnected()
		}
	})
	irc.OnPrivateMessage(func(m twitch.PrivateMessage) {
		if c.onMessage != nil {
			c.onMessage(messageFrom(m))
		}
	})
	irc.OnUserNoticeMessage(func(m twitch.UserNoticeMessage) {
		if ev, ok := subEventFrom(m); ok && c.onSub != nil {
			c.onSub(ev)
		}
	})
	irc.OnSelfJoinMessage(func(m twitch.UserJoinMessage) {
		if c.onSelfJoin != nil {
			c.onSelfJoin(m.Channel)
		}
	})
	irc.OnNoticeMessage(func(m twitch.NoticeMessage) {
		if err := joinErrorFrom(m); err != nil && c.onJoinError != nil {
			c.onJoinError(m.Channel, err)
		}
	})
	return irc
}

// Run connects and keeps reconnecting until ctx is done. It returns nil on
// cancellation and an ErrFatal-wrapped error when authentication fails.
func (c *Client) Run(ctx context.Context) error {
	for {
		var connected atomic.Bool
		irc := c.newIRC(ctx, &connected)
		c.mu.Lock()
		c.irc = irc
		c.mu.Unlock()

		stop := context.AfterFunc(ctx, func() { _ = irc.Disconnect() })
		err := irc.Connect()
		stop()

		c.mu.Lock()
		c.irc = nil
		c.mu.Unlock()

		if connected.Load() && c.onDisconnected != nil {
			c.onDisconnected(err)
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, twitch.ErrLoginAuthenticationFailed) {
			return fmt.Errorf("%w: %w", ErrFatal, err)
		}
		slog.Warn("chat: connection lost; reconnecting",
			slog.Any("err", err),
			slog.Duration("delay", c.cfg.ReconnectDelay),
			slog.String("component", "chat"))

		t := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}
