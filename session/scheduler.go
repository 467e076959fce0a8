package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/lurker/telemetry"
)

// DefaultJoinDelay is the pause between consecutive join requests.
const DefaultJoinDelay = time.Second

// Joiner issues a join request for one channel.
type Joiner interface {
	Join(ctx context.Context, channel string) error
}

// EpochChecker reports whether an epoch is still live.
type EpochChecker interface {
	IsCurrent(Epoch) bool
}

// Scheduler joins channels one at a time with a fixed delay in between,
// stopping as soon as its epoch goes stale.
type Scheduler struct {
	Joiner Joiner
	Epochs EpochChecker
	Delay  time.Duration
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	owner  Epoch // sequence allowed to bump joined
	joined int
}

func (s *Scheduler) delay() time.Duration {
	if s.Delay <= 0 {
		return DefaultJoinDelay
	}
	return s.Delay
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Joined returns the number of joins issued by the most recent sequence.
func (s *Scheduler) Joined() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined
}

func (s *Scheduler) reset(epoch Epoch) {
	s.mu.Lock()
	s.owner = epoch
	s.joined = 0
	s.mu.Unlock()
	telemetry.SetGauge(telemetry.ChannelsJoinedGauge, 0)
}

// count bumps the visible counter unless a newer sequence has taken it over.
func (s *Scheduler) count(epoch Epoch) {
	s.mu.Lock()
	if s.owner != epoch {
		s.mu.Unlock()
		return
	}
	s.joined++
	n := s.joined
	s.mu.Unlock()
	telemetry.SetGauge(telemetry.ChannelsJoinedGauge, n)
}

// Run walks channels in order under epoch and returns how many join requests
// it issued. A failed join is logged and the sequence moves on.
func (s *Scheduler) Run(ctx context.Context, epoch Epoch, channels []string) (issued int) {
	ctx, span := telemetry.StartSpan(ctx, "session.join_sequence", telemetry.EpochAttr(uint64(epoch)))
	defer func() { telemetry.EndSpan(span, nil) }()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "session"), slog.Uint64("epoch", uint64(epoch)))

	s.reset(epoch)
	log.Info("join sequence starting", slog.Int("channels", len(channels)), slog.Duration("delay", s.delay()))
	elapsed := telemetry.TimeFunc(telemetry.JoinSequenceDuration, func() {
		issued = s.run(ctx, log, epoch, channels)
	})
	log.Info("join sequence finished", slog.Int("issued", issued), slog.Duration("elapsed", elapsed))
	return issued
}

func (s *Scheduler) run(ctx context.Context, log *slog.Logger, epoch Epoch, channels []string) (issued int) {
	for i, ch := range channels {
		if !s.Epochs.IsCurrent(epoch) {
			log.Info("join sequence superseded", slog.Int("issued", issued), slog.Int("remaining", len(channels)-i))
			return issued
		}
		if ctx.Err() != nil {
			log.Info("join sequence cancelled", slog.Int("issued", issued))
			return issued
		}
		s.join(ctx, log, ch)
		issued++
		s.count(epoch)
		if i == len(channels)-1 {
			break
		}
		if err := s.sleep(ctx, s.delay()); err != nil {
			log.Info("join sequence cancelled", slog.Int("issued", issued))
			return issued
		}
	}
	return issued
}

func (s *Scheduler) join(ctx context.Context, log *slog.Logger, ch string) {
	ctx, span := telemetry.StartSpan(ctx, "session.join", telemetry.ChannelAttr(ch))
	telemetry.Inc(telemetry.JoinRequests)
	err := s.Joiner.Join(ctx, ch)
	telemetry.EndSpan(span, err)
	if err != nil {
		telemetry.Inc(telemetry.JoinErrors)
		log.Warn("join failed", slog.String("channel", ch), slog.Any("err", err))
		return
	}
	log.Debug("join requested", slog.String("channel", ch))
}
