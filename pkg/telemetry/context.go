package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry provides a unified telemetry interface combining logging, tracing, metrics, and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Initialize logger
	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	// Initialize tracer
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	// Initialize metrics
	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	// Initialize event publisher
	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
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
	// Shutdown in reverse order of initialization
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}

	if err := t.Tracer.Shutdown(ctx); err != nil {
		return err
	}

	// Metrics server is not explicitly shut down here as it may need to continue
	// serving metrics until the very end of the application lifecycle

	return nil
}

// Flush forces all pending telemetry data to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// StartMetricsServer starts the metrics HTTP server if metrics are enabled.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer()
}

// Context Helpers for common instrumentation patterns

// InstrumentedContext creates a context with telemetry, logger fields, and a trace span.
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

	// Start trace span
	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	// Create logger with operation field
	logger := tel.Logger.WithField("operation", operation)

	// Add trace context to logger if available
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

// WithReloadContext creates a context enriched with dev-loop reload telemetry.
func WithReloadContext(ctx context.Context, reloadID, trigger string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	// Start reload span
	spanCtx, span := tel.Tracer.StartReloadSpan(ctx, reloadID)

	// Create reload-specific logger
	logger := tel.Logger.WithReloadID(reloadID).WithField("trigger", trigger)
	spanCtx = logger.WithContext(spanCtx)

	// Record reload started metric
	tel.Metrics.RecordReloadStarted(trigger)

	// Publish reload started event
	_ = tel.Events.PublishReloadStarted(reloadID, trigger)

	// Store the span and timer in context for later retrieval
	spanCtx = context.WithValue(spanCtx, reloadSpanKey{}, span)
	spanCtx = context.WithValue(spanCtx, reloadTimerKey{}, NewTimer())

	return spanCtx
}

// reloadSpanKey is the context key for reload spans.
type reloadSpanKey struct{}

// reloadTimerKey is the context key for reload timers.
type reloadTimerKey struct{}

// EndReloadContext completes the reload context, recording metrics and events.
func EndReloadContext(ctx context.Context, reloadID, status string, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	// Get the reload span from context
	if span, ok := ctx.Value(reloadSpanKey{}).(trace.Span); ok {
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	// Calculate duration from the timer WithReloadContext stored
	var duration time.Duration
	if timer, ok := ctx.Value(reloadTimerKey{}).(*Timer); ok {
		duration = timer.Duration()
	}

	// Record metrics
	tel.Metrics.RecordReloadCompleted(status, duration)

	// Publish events
	if err != nil {
		_ = tel.Events.PublishReloadFailed(reloadID, err.Error())
	} else {
		_ = tel.Events.PublishReloadCompleted(reloadID, status, duration)
	}
}

// WithChangeContext creates a context enriched with table-change telemetry.
func WithChangeContext(ctx context.Context, reloadID, changeID, tableID, kind string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	// Start change span
	spanCtx, span := tel.Tracer.StartChangeSpan(ctx, changeID, tableID, kind)

	// Create change-specific logger
	logger := tel.Logger.
		WithReloadID(reloadID).
		WithChangeID(changeID).
		WithTableID(tableID).
		WithField("kind", kind)
	spanCtx = logger.WithContext(spanCtx)

	// Publish change started event
	_ = tel.Events.PublishChangeStarted(reloadID, changeID, tableID, kind)

	// Store the span and timer in context
	spanCtx = context.WithValue(spanCtx, changeSpanKey{}, span)
	spanCtx = context.WithValue(spanCtx, changeTimerKey{}, NewTimer())

	return spanCtx
}

// changeSpanKey is the context key for table-change spans.
type changeSpanKey struct{}

// changeTimerKey is the context key for table-change timers.
type changeTimerKey struct{}

// EndChangeContext completes the table-change context, recording metrics and events.
func EndChangeContext(ctx context.Context, reloadID, changeID, tableID, kind, status string, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	// Get the span from context
	if span, ok := ctx.Value(changeSpanKey{}).(trace.Span); ok {
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	// Get the timer from context
	var duration time.Duration
	if timer, ok := ctx.Value(changeTimerKey{}).(*Timer); ok {
		duration = timer.Duration()
	}

	// Record metrics
	tel.Metrics.RecordTableChangeApplied(kind, status, duration)

	// Publish events
	if err != nil {
		_ = tel.Events.PublishChangeFailed(reloadID, changeID, tableID, err.Error())
	} else {
		_ = tel.Events.PublishChangeCompleted(reloadID, changeID, tableID, duration)
	}
}

// WithBackendContext creates a context enriched with backend-specific telemetry.
func WithBackendContext(ctx context.Context, backendName, backendVersion string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	// Create backend-specific logger
	logger := tel.Logger.WithBackend(backendName, backendVersion)
	return logger.WithContext(ctx)
}

// RecordBackendOperation records a backend call with metrics and tracing.
func RecordBackendOperation(ctx context.Context, backendName, operation string, fn func() error) error {
	tel := FromTelemetryContext(ctx)

	// Start span
	var span trace.Span
	if tel != nil {
		ctx, span = tel.Tracer.StartBackendSpan(ctx, backendName, operation)
		defer span.End()
	}

	// Start timer
	timer := NewTimer()

	// Execute operation
	err := fn()

	// Record metrics
	if tel != nil {
		duration := timer.Duration()
		tel.Metrics.RecordBackendCall(backendName, operation, duration)
		if err != nil {
			tel.Metrics.RecordBackendError(backendName, operation)
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
	}

	return err
}
