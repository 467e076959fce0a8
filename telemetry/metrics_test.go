package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsInitialized(t *testing.T) {
	Init()
	Init() // second call must not re-register

	if JoinRequests == nil || JoinErrors == nil || ConnectEpochs == nil {
		t.Error("join counters not initialized")
	}
	if DiscoveryDuration == nil || JoinSequenceDuration == nil {
		t.Error("histograms not initialized")
	}
	if ChannelsJoinedGauge == nil || ConnectedGauge == nil {
		t.Error("gauges not initialized")
	}
}

func TestCounterHelpers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(JoinRequests)
	Inc(JoinRequests)
	Add(JoinRequests, 2)
	Add(JoinRequests, 0)
	if got := testutil.ToFloat64(JoinRequests) - before; got != 3 {
		t.Errorf("JoinRequests delta = %v, want 3", got)
	}

	// nil-safe
	Inc(nil)
	Add(nil, 5)
	SetGauge(nil, 1)
}

func TestGaugeHelpers(t *testing.T) {
	Init()

	SetGauge(ChannelsJoinedGauge, 42)
	if got := testutil.ToFloat64(ChannelsJoinedGauge); got != 42 {
		t.Errorf("ChannelsJoinedGauge = %v, want 42", got)
	}
	UpdateConnectedGauge(true)
	if got := testutil.ToFloat64(ConnectedGauge); got != 1 {
		t.Errorf("ConnectedGauge = %v, want 1", got)
	}
	UpdateConnectedGauge(false)
	if got := testutil.ToFloat64(ConnectedGauge); got != 0 {
		t.Errorf("ConnectedGauge = %v, want 0", got)
	}
}

func TestLabelledCounters(t *testing.T) {
	Init()

	before := testutil.ToFloat64(RelayedEvents.WithLabelValues("sub"))
	IncRelayed("sub")
	if got := testutil.ToFloat64(RelayedEvents.WithLabelValues("sub")) - before; got != 1 {
		t.Errorf("relayed sub delta = %v, want 1", got)
	}
	IncCommand("status")
	if got := testutil.ToFloat64(CommandsHandled.WithLabelValues("status")); got < 1 {
		t.Errorf("commands status = %v, want >= 1", got)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})

	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil || metric.Histogram.GetSampleCount() == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if GetCorrelation(ctx) != "" {
		t.Error("expected empty correlation on bare context")
	}
	ctx = WithCorrelation(ctx, "epoch-7")
	if got := GetCorrelation(ctx); got != "epoch-7" {
		t.Errorf("GetCorrelation() = %q, want epoch-7", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
