// Package discovery grows the channel list from the platform's feed of live
// streams. The feed is ordered by viewer count, descending, so a pass stops at
// the first stream below the popularity threshold instead of scanning the
// whole (potentially unbounded) feed.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/lurker/channels"
	"github.com/onnwee/lurker/telemetry"
)

// DefaultThreshold is the minimum viewer count a stream needs to be considered.
const DefaultThreshold = 300

// ErrDiscovery marks a pass aborted by a feed error.
var ErrDiscovery = errors.New("discovery failed")

// StreamRecord is one live stream from the feed.
type StreamRecord struct {
	Viewers     int
	DisplayName string
	Login       string
}

// Feed yields live streams lazily in descending viewer order. A yielded error
// ends the sequence. Stopping iteration must stop further page fetches.
type Feed interface {
	LiveStreams(ctx context.Context) iter.Seq2[StreamRecord, error]
}

// Store is the subset of channels.Store discovery needs.
type Store interface {
	Contains(id string) bool
	Append(id string) bool
	List() []string
	Persist(ctx context.Context) error
}

// Result summarizes a pass.
type Result struct {
	Considered int // records at or above the threshold
	Added      int // new channels appended
	Skipped    int // records with names that fail validation
}

// Error reports a pass cut short by the feed. Progress up to the failure has
// already been persisted.
type Error struct {
	Result Result
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("discovery failed after %d streams: %v", e.Result.Considered, e.Err)
}

func (e *Error) Unwrap() []error { return []error{ErrDiscovery, e.Err} }

// Service runs discovery passes.
type Service struct {
	Feed  Feed
	Store Store
	// Threshold is the minimum viewer count; zero selects DefaultThreshold.
	Threshold int
}

func (s *Service) threshold() int {
	if s.Threshold <= 0 {
		return DefaultThreshold
	}
	return s.Threshold
}

// Discover runs one pass and returns the full channel list afterwards. On a
// feed error the list still contains (and storage holds) everything collected
// before the failure.
func (s *Service) Discover(ctx context.Context) ([]string, error) {
	_, err := s.DiscoverWithResult(ctx)
	return s.Store.List(), err
}

// DiscoverWithResult runs one pass and reports what it did.
func (s *Service) DiscoverWithResult(ctx context.Context) (res Result, err error) {
	threshold := s.threshold()
	ctx, span := telemetry.StartSpan(ctx, "discovery.pass", attribute.Int("discovery.threshold", threshold))
	defer func() {
		span.SetAttributes(
			attribute.Int("discovery.considered", res.Considered),
			attribute.Int("discovery.added", res.Added),
		)
		telemetry.EndSpan(span, err)
	}()

	var feedErr error
	telemetry.TimeFunc(telemetry.DiscoveryDuration, func() {
		res, feedErr = s.collect(ctx, threshold)
	})
	telemetry.Add(telemetry.StreamsConsidered, res.Considered)
	telemetry.Add(telemetry.ChannelsDiscovered, res.Added)

	// A cancelled pass still saves what it collected.
	if perr := s.Store.Persist(context.WithoutCancel(ctx)); perr != nil {
		telemetry.Inc(telemetry.ChannelPersistErrors)
		slog.Error("discovery: persist channel list", slog.Any("err", perr), slog.String("component", "discovery"))
	}

	if feedErr != nil {
		telemetry.Inc(telemetry.DiscoveryFailures)
		return res, &Error{Result: res, Err: feedErr}
	}
	slog.Info("discovery complete",
		slog.Int("considered", res.Considered),
		slog.Int("added", res.Added),
		slog.Int("skipped", res.Skipped),
		slog.Int("total", len(s.Store.List())),
		slog.String("component", "discovery"))
	return res, nil
}

// collect walks the feed until it drops below threshold, ends or fails.
func (s *Service) collect(ctx context.Context, threshold int) (res Result, feedErr error) {
	for rec, ferr := range s.Feed.LiveStreams(ctx) {
		if ferr != nil {
			feedErr = ferr
			break
		}
		if rec.Viewers < threshold {
			break
		}
		res.Considered++
		name := channels.Normalize(rec.DisplayName)
		if !channels.IsValid(name) {
			res.Skipped++
			slog.Debug("discovery: skipping invalid channel name", slog.String("display_name", rec.DisplayName), slog.String("component", "discovery"))
			continue
		}
		if s.Store.Contains(name) {
			continue
		}
		if s.Store.Append(name) {
			res.Added++
			slog.Debug("discovery: channel added", slog.String("channel", name), slog.Int("viewers", rec.Viewers), slog.String("component", "discovery"))
		}
	}
	return res, feedErr
}
