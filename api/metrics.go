package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	statsEventName   = "stats.request"
	statsEventDomain = "taskpilot"
	tracerName       = "taskpilot-api/api"
)

type statsRequestMetrics struct {
	logger          *log.Logger
	span            trace.Span
	start           time.Time
	authDuration    time.Duration
	fetchDuration   time.Duration
	narrateDuration time.Duration
	tasksScanned    int
	narrated        bool
	errorStage      string
}

func newStatsRequestMetrics(ctx context.Context, logger *log.Logger) (*statsRequestMetrics, context.Context) {
	m := &statsRequestMetrics{
		logger: logger,
		start:  time.Now(),
	}
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, statsEventName)
	m.span = span
	return m, spanCtx
}

func (m *statsRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *statsRequestMetrics) ObserveFetch(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.fetchDuration = duration
}

func (m *statsRequestMetrics) ObserveNarrate(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.narrateDuration = duration
}

func (m *statsRequestMetrics) SetTasksScanned(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksScanned = count
}

func (m *statsRequestMetrics) SetNarrated(narrated bool) {
	m.narrated = narrated
}

func (m *statsRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *statsRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	if m.span != nil {
		m.span.SetAttributes(
			attribute.Int("http.status_code", status),
			attribute.Int("tasks.scanned", m.tasksScanned),
			attribute.Bool("insights.narrated", m.narrated),
		)
		if m.errorStage != "" {
			m.span.SetAttributes(attribute.String("error.stage", m.errorStage))
		}
		if err != nil {
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}

	fields := log.Fields{
		"event.name":    statsEventName,
		"event.domain":  statsEventDomain,
		"route":         "/api/stats",
		"status":        status,
		"total_ms":      durationToMillis(time.Since(m.start)),
		"tasks_scanned": m.tasksScanned,
		"narrated":      m.narrated,
	}

	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.fetchDuration > 0 {
		fields["fetch_ms"] = durationToMillis(m.fetchDuration)
	}
	if m.narrateDuration > 0 {
		fields["narrate_ms"] = durationToMillis(m.narrateDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("observability.event")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
