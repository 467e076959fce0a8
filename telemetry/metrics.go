// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	JoinRequests         prometheus.Counter
	JoinErrors           prometheus.Counter
	ConnectEpochs        prometheus.Counter
	Disconnects          prometheus.Counter
	StreamsConsidered    prometheus.Counter
	ChannelsDiscovered   prometheus.Counter
	DiscoveryFailures    prometheus.Counter
	RelayedEvents        *prometheus.CounterVec
	CommandsHandled      *prometheus.CounterVec
	ChannelPersistErrors prometheus.Counter

	// Histograms (seconds)
	DiscoveryDuration    prometheus.Observer
	JoinSequenceDuration prometheus.Observer

	// Gauges
	ChannelsJoinedGauge prometheus.Gauge
	ChannelsKnownGauge  prometheus.Gauge
	ConnectedGauge      prometheus.Gauge // 1=connected,0=not
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		JoinRequests = promauto.NewCounter(prometheus.CounterOpts{Name: "lurker_join_requests_total", Help: "Number of channel join requests issued"})
		JoinErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "lurker_join_errors_total", Help: "Number of channel joins reported as failed"})
		ConnectEpochs = promauto.NewCounter(prometheus.CounterOpts{Name: "lurker_connect_epochs_total", Help: "Number of connection epochs started"})
		Disconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "lurker_disconnects_total", Help: "Number of transport disconnects"})
		StreamsConsidered = promauto.NewCounter(prometheus.CounterOpts{Name: "lurker_discovery_streams_considered_total", Help: "Live streams evaluated by discovery"})
		ChannelsDiscovered = promauto.NewCounter(prometheus.CounterOpts{Name: "lurker_discovery_channels_added_total", Help: "Channels added to the list by discovery"})
		DiscoveryFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "lurker_discovery_failures_total", Help: "Discovery passes aborted by a feed error"})
		RelayedEvents = promauto.NewCounterVec(prometheus.CounterOpts{Name: "lurker_relayed_events_total", Help: "Chat events relayed to the operator log"}, []string{"kind"})
		CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{Name: "lurker_commands_total", Help: "Owner commands handled"}, []string{"command"})
		ChannelPersistErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "lurker_channel_persist_errors_total", Help: "Failed writes of the channel list"})
		DiscoveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "lurker_discovery_duration_seconds", Help: "Discovery pass duration seconds", Buckets: prometheus.DefBuckets})
		JoinSequenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "lurker_join_sequence_duration_seconds", Help: "Join sequence duration seconds", Buckets: prometheus.ExponentialBuckets(1, 4, 8)})
		ChannelsJoinedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "lurker_channels_joined", Help: "Channels joined in the current connection epoch"})
		ChannelsKnownGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "lurker_channels_known", Help: "Channels in the persisted list"})
		ConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "lurker_connected", Help: "Transport connected=1 disconnected=0"})
	})
}

// Inc increments c if it has been initialized.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// Add adds n to c if it has been initialized.
func Add(c prometheus.Counter, n int) {
	if c != nil && n > 0 {
		c.Add(float64(n))
	}
}

// SetGauge sets g to v if it has been initialized.
func SetGauge(g prometheus.Gauge, v int) {
	if g != nil {
		g.Set(float64(v))
	}
}

// UpdateConnectedGauge sets gauge to 1 if connected else 0.
func UpdateConnectedGauge(connected bool) {
	if ConnectedGauge == nil {
		return
	}
	if connected {
		ConnectedGauge.Set(1)
	} else {
		ConnectedGauge.Set(0)
	}
}

// IncRelayed counts a relayed event of kind.
func IncRelayed(kind string) {
	if RelayedEvents != nil {
		RelayedEvents.WithLabelValues(kind).Inc()
	}
}

// IncCommand counts a handled owner command.
func IncCommand(cmd string) {
	if CommandsHandled != nil {
		CommandsHandled.WithLabelValues(cmd).Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
