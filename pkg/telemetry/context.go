package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles the logging, tracing and metrics pillars behind one
// handle.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	ctx = t.Logger.WithContext(ctx)
	return ctx
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown gracefully shuts down all telemetry components.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	// The metrics server keeps serving until process exit so scrapers can
	// observe the shutdown itself; only the tracer needs a flush.
	return t.Tracer.Shutdown(ctx)
}

// Flush forces all pending telemetry data to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// StartMetricsServer starts the metrics HTTP server if metrics are enabled.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer()
}

// InstrumentedContext carries the context, span, logger and timer for one
// instrumented operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation with logging, tracing, and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	logger := tel.Logger.WithField("operation", operation)
	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &InstrumentedContext{
		Ctx:    spanCtx,
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the instrumented operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span != nil {
		if err != nil {
			RecordError(ic.Span, err)
		} else {
			RecordSuccess(ic.Span)
		}
		ic.Span.End()
	}
}

// WithAppContext creates a context whose logger carries the app field.
func WithAppContext(ctx context.Context, appID string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}
	return tel.Logger.WithApp(appID).WithContext(ctx)
}

// RecordTransition instruments one lifecycle transition: a span around fn,
// plus the transition counter and latency histogram. An empty appID means
// the platform-wide state machine. Without telemetry in the context, fn
// runs bare.
func RecordTransition(ctx context.Context, appID, action string, fn func(context.Context) error) error {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return fn(ctx)
	}

	entity := "app"
	var span trace.Span
	if appID == "" {
		entity = "system"
		ctx, span = tel.Tracer.StartSystemSpan(ctx, action)
	} else {
		ctx, span = tel.Tracer.StartTransitionSpan(ctx, appID, action)
	}
	defer span.End()

	timer := NewTimer()
	err := fn(ctx)

	outcome := "dispatched"
	if err != nil {
		outcome = "rejected"
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}
	tel.Metrics.RecordTransition(entity, action, outcome)
	tel.Metrics.RecordTransitionDuration(entity, action, timer.Duration())

	return err
}

// RecordDispatch instruments one event handover: a span around fn plus the
// dispatch counter and latency histogram.
func RecordDispatch(ctx context.Context, engine, eventType string, fn func(context.Context) error) error {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return fn(ctx)
	}

	ctx, span := tel.Tracer.StartDispatchSpan(ctx, eventType, engine)
	defer span.End()

	timer := NewTimer()
	err := fn(ctx)

	status := "ok"
	if err != nil {
		status = "error"
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}
	tel.Metrics.RecordDispatch(engine, eventType, status, timer.Duration())

	return err
}

// RecordSettlement counts an applied runner settlement. Entity is "app" or
// "system".
func RecordSettlement(ctx context.Context, entity, status string) {
	if tel := FromTelemetryContext(ctx); tel != nil {
		tel.Metrics.RecordSettlement(entity, status)
	}
}

// RecordSettlementRejection counts a settlement rejected as unusable.
func RecordSettlementRejection(ctx context.Context, reason string) {
	if tel := FromTelemetryContext(ctx); tel != nil {
		tel.Metrics.RecordSettlementRejection(reason)
	}
}

// RecordCacheLookup counts one ephemeral cache lookup.
func RecordCacheLookup(ctx context.Context, hit bool) {
	if tel := FromTelemetryContext(ctx); tel != nil {
		tel.Metrics.RecordCacheLookup(hit)
	}
}

// RecordReleaseLookup counts one release endpoint lookup by status ("ok"
// or "error").
func RecordReleaseLookup(ctx context.Context, status string) {
	if tel := FromTelemetryContext(ctx); tel != nil {
		tel.Metrics.RecordReleaseLookup(status)
	}
}

// RecordErrorKind counts a classified lifecycle error. Empty kinds are
// ignored so unclassified failures do not pollute the label set.
func RecordErrorKind(ctx context.Context, kind string) {
	if kind == "" {
		return
	}
	if tel := FromTelemetryContext(ctx); tel != nil {
		tel.Metrics.RecordError(kind)
	}
}

// RecordPolicyDenial counts an operation blocked by a policy.
func RecordPolicyDenial(ctx context.Context, operation, policy string) {
	if tel := FromTelemetryContext(ctx); tel != nil {
		tel.Metrics.RecordPolicyDenial(operation, policy)
	}
}
