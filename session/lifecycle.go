package session

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"github.com/onnwee/lurker/telemetry"
)

// ChannelSource supplies the channel list to join.
type ChannelSource interface {
	List() []string
}

// Lifecycle turns transport connect/disconnect events into epoch transitions
// and join sequences.
type Lifecycle struct {
	Manager   *Manager
	Scheduler *Scheduler
	Channels  ChannelSource

	wg sync.WaitGroup
}

// HandleConnected starts a new epoch and its join sequence in the background.
func (l *Lifecycle) HandleConnected(ctx context.Context) Epoch {
	epoch := l.Manager.Connected()
	channels := l.Channels.List()
	telemetry.Inc(telemetry.ConnectEpochs)
	telemetry.UpdateConnectedGauge(true)
	telemetry.SetGauge(telemetry.ChannelsKnownGauge, len(channels))

	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	telemetry.LoggerWithCorr(ctx).Info("connected",
		slog.Uint64("epoch", uint64(epoch)),
		slog.Int("channels", len(channels)),
		slog.String("component", "session"))

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("join sequence panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())), slog.Uint64("epoch", uint64(epoch)), slog.String("component", "session"))
			}
		}()
		l.Scheduler.Run(ctx, epoch, channels)
	}()
	return epoch
}

// HandleDisconnected invalidates the current epoch. A running join sequence
// stops at its next check.
func (l *Lifecycle) HandleDisconnected(err error) {
	epoch, _ := l.Manager.Current()
	l.Manager.Disconnected()
	telemetry.Inc(telemetry.Disconnects)
	telemetry.UpdateConnectedGauge(false)
	attrs := []any{slog.Uint64("epoch", uint64(epoch)), slog.String("component", "session")}
	if err != nil {
		attrs = append(attrs, slog.Any("err", err))
	}
	slog.Warn("disconnected", attrs...)
}

// Wait blocks until every join sequence started so far has returned.
func (l *Lifecycle) Wait() { l.wg.Wait() }
