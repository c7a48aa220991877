// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	once sync.Once

	// Counters
	BatchesDispatched    prometheus.Counter
	FetchFailures        prometheus.Counter
	UpdatesProcessed     prometheus.Counter
	UpdateFailures       prometheus.Counter
	Transcriptions       prometheus.Counter
	TranscriptionsFailed prometheus.Counter
	Syntheses            prometheus.Counter
	SynthesesFailed      prometheus.Counter
	Enrollments          prometheus.Counter

	// Histograms
	BatchSize      prometheus.Observer
	UpdateDuration prometheus.Observer

	// Gauges
	VIPUsersGauge prometheus.Gauge
	OffsetGauge   prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		BatchesDispatched = promauto.NewCounter(prometheus.CounterOpts{Name: "goftar_batches_total", Help: "Number of non-empty update batches dispatched"})
		FetchFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "goftar_fetch_failures_total", Help: "Number of failed getUpdates calls"})
		UpdatesProcessed = promauto.NewCounter(prometheus.CounterOpts{Name: "goftar_updates_processed_total", Help: "Number of updates handled to completion"})
		UpdateFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "goftar_update_failures_total", Help: "Number of updates that failed and were answered with the generic notice"})
		Transcriptions = promauto.NewCounter(prometheus.CounterOpts{Name: "goftar_transcriptions_total", Help: "Number of successful voice transcriptions"})
		TranscriptionsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "goftar_transcriptions_failed_total", Help: "Number of transcription calls with no usable result"})
		Syntheses = promauto.NewCounter(prometheus.CounterOpts{Name: "goftar_syntheses_total", Help: "Number of successful speech syntheses"})
		SynthesesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "goftar_syntheses_failed_total", Help: "Number of synthesis calls with no usable result"})
		Enrollments = promauto.NewCounter(prometheus.CounterOpts{Name: "goftar_vip_enrollments_total", Help: "Number of chats enrolled via the VIP code"})
		BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{Name: "goftar_batch_size", Help: "Updates per dispatched batch", Buckets: []float64{1, 2, 5, 10, 20, 50, 100}})
		UpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "goftar_update_duration_seconds", Help: "Per-update handling duration seconds", Buckets: prometheus.DefBuckets})
		VIPUsersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "goftar_vip_users", Help: "Current VIP allowlist size"})
		OffsetGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "goftar_update_offset", Help: "Next update id to be requested"})
	})
}

// SetVIPCount records the current allowlist size.
func SetVIPCount(n int) {
	if VIPUsersGauge != nil {
		VIPUsersGauge.Set(float64(n))
	}
}

// SetOffset records the persisted cursor position.
func SetOffset(n int) {
	if OffsetGauge != nil {
		OffsetGauge.Set(float64(n))
	}
}

// PollStats is a point-in-time snapshot of the poll pipeline counters,
// read back from the registered metrics for the status endpoint.
type PollStats struct {
	Batches          uint64 `json:"batches"`
	FetchFailures    uint64 `json:"fetch_failures"`
	UpdatesProcessed uint64 `json:"updates_processed"`
	UpdateFailures   uint64 `json:"update_failures"`
}

// SnapshotPollStats reads the current poll counter values. Zero before Init.
func SnapshotPollStats() PollStats {
	return PollStats{
		Batches:          counterValue(BatchesDispatched),
		FetchFailures:    counterValue(FetchFailures),
		UpdatesProcessed: counterValue(UpdatesProcessed),
		UpdateFailures:   counterValue(UpdateFailures),
	}
}

func counterValue(c prometheus.Counter) uint64 {
	if c == nil {
		return 0
	}
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return uint64(m.GetCounter().GetValue())
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if one is present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
