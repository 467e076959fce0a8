// Package relay routes chat events to the operator log and other sinks, and
// handles the owner's in-chat commands that toggle what gets relayed.
package relay

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/onnwee/lurker/chat"
	"github.com/onnwee/lurker/config"
	"github.com/onnwee/lurker/telemetry"
)

// Sayer sends a chat line.
type Sayer interface {
	Say(channel, text string)
}

// SettingsSaver persists settings after a toggle changes.
type SettingsSaver interface {
	Save(config.Settings) error
}

// Counter reports the number of known channels.
type Counter interface {
	Len() int
}

// Commands owns the settings. Only messages from the configured user name are
// treated as commands.
type Commands struct {
	mu       sync.Mutex
	settings config.Settings

	saver    SettingsSaver
	sayer    Sayer
	channels Counter
}

// NewCommands takes ownership of s.
func NewCommands(s config.Settings, saver SettingsSaver, sayer Sayer, channels Counter) *Commands {
	return &Commands{settings: s, saver: saver, sayer: sayer, channels: channels}
}

// Toggles returns a snapshot of the log toggles.
func (c *Commands) Toggles() config.Toggles {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.Log
}

// Owner returns the bot's own user name.
func (c *Commands) Owner() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.UserName
}

// Handle runs m as a command if it is one, and reports whether it was.
func (c *Commands) Handle(m chat.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Exact matches only: the sender login and the whole line.
	if m.User != c.settings.UserName {
		return false
	}
	cmd, ok := strings.CutPrefix(m.Text, c.settings.Prefix)
	if !ok {
		return false
	}

	if cmd == "status" {
		telemetry.IncCommand(cmd)
		c.sayer.Say(m.Channel, c.status())
		return true
	}
	name, ok := strings.CutPrefix(cmd, "log")
	if !ok {
		return false
	}
	flag := c.settings.Log.Field(name)
	if flag == nil {
		return false
	}
	*flag = !*flag
	telemetry.IncCommand(cmd)
	c.sayer.Say(m.Channel, fmt.Sprintf("%t", *flag))
	slog.Info("log toggle changed", slog.String("toggle", name), slog.Bool("value", *flag), slog.String("component", "relay"))

	if err := c.saver.Save(c.settings); err != nil {
		slog.Error("persist settings", slog.Any("err", err), slog.String("component", "relay"))
	}
	return true
}

func (c *Commands) status() string {
	n := 0
	if c.channels != nil {
		n = c.channels.Len()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Channels: %d, Log:", n)
	for i, name := range config.ToggleNames {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, " %s = %t", name, *c.settings.Log.Field(name))
	}
	return b.String()
}
