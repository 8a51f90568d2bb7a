package agent

import (
	"context"
	"log/slog"
	"time"

	"mealagent"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedRuntime wraps a Runtime with comprehensive observability
// metrics around each processed turn.
type InstrumentedRuntime struct {
	runtime *Runtime
	tracer  trace.Tracer
	meter   metric.Meter
}

// NewInstrumentedRuntime initializes a new instrumented runtime.
func NewInstrumentedRuntime(runtime *Runtime, tracer trace.Tracer, meter metric.Meter) *InstrumentedRuntime {
	return &InstrumentedRuntime{
		runtime: runtime,
		tracer:  tracer,
		meter:   meter,
	}
}

// ProcessTurn runs the turn pipeline with full instrumentation.
func (r *InstrumentedRuntime) ProcessTurn(ctx context.Context, in TurnInput) (mealagent.RunResult, error) {
	ctx, span := r.tracer.Start(ctx, "InstrumentedRuntime.ProcessTurn")
	defer span.End()

	slog.Info("RUNTIME: Starting instrumented turn", "session_id", in.SessionID)

	turnsCounter, _ := r.meter.Int64Counter("agent_turns_total",
		metric.WithDescription("Total number of turns processed"))
	turnsFailedCounter, _ := r.meter.Int64Counter("agent_turns_failed_total",
		metric.WithDescription("Total number of turns that failed with an error"))
	clarificationsCounter, _ := r.meter.Int64Counter("agent_clarifications_total",
		metric.WithDescription("Total number of turns that asked the user for input"))
	itemsResolvedCounter, _ := r.meter.Int64Counter("agent_items_resolved_total",
		metric.WithDescription("Total number of items resolved across turns"))

	textSizeGauge, _ := r.meter.Int64Gauge("agent_turn_text_bytes",
		metric.WithDescription("Size of the raw turn text in bytes"))
	historyLengthGauge, _ := r.meter.Int64Gauge("agent_history_messages",
		metric.WithDescription("Number of history messages supplied with the turn"))

	turnDurationHist, _ := r.meter.Float64Histogram("agent_turn_duration_seconds",
		metric.WithDescription("Duration of turn processing in seconds"))
	confidenceHist, _ := r.meter.Float64Histogram("agent_turn_confidence",
		metric.WithDescription("Overall confidence of completed turns"))

	turnsCounter.Add(ctx, 1)
	textSizeGauge.Record(ctx, int64(len(in.Text)))
	historyLengthGauge.Record(ctx, int64(len(in.History)))

	start := time.Now()
	result, err := r.runtime.ProcessTurn(ctx, in)
	turnDurationHist.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("action", result.Action),
	))

	if err != nil {
		turnsFailedCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("action", result.Action),
		))
		span.SetStatus(codes.Error, "Turn processing failed")
		span.RecordError(err)
		return result, err
	}

	if result.Envelope.RequiresInput != nil {
		clarificationsCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("action", result.Action),
		))
	}
	if result.Draft != nil {
		itemsResolvedCounter.Add(ctx, int64(len(result.Draft.Items)))
	}
	confidenceHist.Record(ctx, result.Envelope.Confidence, metric.WithAttributes(
		attribute.String("action", result.Action),
	))

	span.AddEvent("Turn completed", trace.WithAttributes(
		attribute.String("action", result.Action),
		attribute.Bool("ok", result.OK),
		attribute.Float64("confidence", result.Envelope.Confidence),
		attribute.Int("meal_ids", len(result.Envelope.MealIDs)),
		attribute.Int("entry_ids", len(result.Envelope.EntryIDs)),
	))

	return result, nil
}
