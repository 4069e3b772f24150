// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
)

var (
	once sync.Once

	// Counters
	ReconcileTicks      *prometheus.CounterVec
	ProbesFailed        prometheus.Counter
	MessagesSent        prometheus.Counter
	MessagesEdited      prometheus.Counter
	MessageEditsFailed  prometheus.Counter
	InteractionsHandled *prometheus.CounterVec
	BroadcastsFired     prometheus.Counter

	// Histograms (seconds)
	TickDuration prometheus.Observer

	// Gauges
	FollowedStreamsGauge prometheus.Gauge
	LiveStreamsGauge     prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ReconcileTicks = promauto.NewCounterVec(prometheus.CounterOpts{Name: "engine_reconcile_ticks_total", Help: "Reconcile loop ticks by loop name"}, []string{"loop"})
		ProbesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "engine_probes_failed_total", Help: "Upstream channel probes that failed"})
		MessagesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "engine_messages_sent_total", Help: "Chat messages sent"})
		MessagesEdited = promauto.NewCounter(prometheus.CounterOpts{Name: "engine_messages_edited_total", Help: "Chat messages edited in place"})
		MessageEditsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "engine_message_edits_failed_total", Help: "Chat message edits that failed"})
		InteractionsHandled = promauto.NewCounterVec(prometheus.CounterOpts{Name: "engine_interactions_handled_total", Help: "Interaction events handled by kind"}, []string{"kind"})
		BroadcastsFired = promauto.NewCounter(prometheus.CounterOpts{Name: "engine_checkin_broadcasts_total", Help: "Recurring check-in broadcasts sent"})
		TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "engine_tick_duration_seconds", Help: "Reconcile tick duration seconds", Buckets: prometheus.DefBuckets})
		FollowedStreamsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "engine_followed_streams", Help: "Currently followed stream channels"})
		LiveStreamsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "engine_live_streams", Help: "Followed channels currently observed live"})
	})
}

// CountTick increments the tick counter for a loop if metrics are initialized.
func CountTick(loop string) {
	if ReconcileTicks != nil {
		ReconcileTicks.WithLabelValues(loop).Inc()
	}
}

// CountInteraction increments the interaction counter for a kind.
func CountInteraction(kind string) {
	if InteractionsHandled != nil {
		InteractionsHandled.WithLabelValues(kind).Inc()
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

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// correlationAttrs exposes the context's correlation id as span attributes.
func correlationAttrs(ctx context.Context) []attribute.KeyValue {
	if corr := GetCorrelation(ctx); corr != "" {
		return []attribute.KeyValue{attribute.String("correlation_id", corr)}
	}
	return nil
}

// LogWith returns a logger annotated with the context's correlation id.
func LogWith(ctx context.Context, l *slog.Logger) *slog.Logger {
	if corr := GetCorrelation(ctx); corr != "" {
		return l.With(slog.String("corr", corr))
	}
	return l
}
