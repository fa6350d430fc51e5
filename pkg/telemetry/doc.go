// Package telemetry provides comprehensive observability instrumentation for the
// platform.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into a unified system
// for monitoring and debugging dev-loop reloads, infra reconciliation, and executor
// operations.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Async event system for audit and notifications
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "foundry"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context propagation:
//
//	logger := tel.Logger.NewComponentLogger("reconciler")
//	logger = logger.WithReloadID("reload-123").WithTableID("analytics.events_raw")
//	logger.Info("Starting table reconciliation")
//	logger.WithError(err).Error("Reconciliation failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into request flow and performance:
//
//	ctx, span := tel.Tracer.Start(ctx, "operation.name")
//	defer span.End()
//
//	// Add attributes
//	span.SetAttributes(
//	    attribute.String("table.id", tableID),
//	    attribute.String("operation", "create"),
//	)
//
//	// Record events
//	span.AddEvent("validation.complete")
//
//	// Record errors
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development), None
//
// # Metrics
//
// Prometheus metrics track system behavior and performance:
//
//	// Record a dev-loop reload cycle
//	tel.Metrics.RecordReloadStarted("file_change")
//	tel.Metrics.RecordReloadCompleted("succeeded", duration)
//
//	// Record a table-level change application
//	tel.Metrics.RecordTableChangeApplied("Updated", "succeeded", duration)
//
//	// Record backend (OLAP / state storage) calls
//	tel.Metrics.RecordBackendCall("clickhouse", "apply_ddl", duration)
//
//	// Record errors
//	tel.Metrics.RecordError("transient", "TIMEOUT")
//
// Metrics are exposed via HTTP at /metrics (default: :9090/metrics)
//
// # Event Publishing
//
// The event system provides async publishing with buffering and filtering:
//
//	// Publish events
//	tel.Events.PublishReloadStarted(reloadID, "file_change")
//	tel.Events.PublishChangeCompleted(reloadID, changeID, tableID, duration)
//	tel.Events.PublishDriftDetected(tableID, driftCount)
//
//	// Subscribe to events
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel("warning"))
//
// Event filters: FilterByLevel, FilterByType, FilterByReloadID, FilterByTableID
//
// # Context Helpers
//
// High-level helpers simplify common instrumentation patterns:
//
//	// Instrument an operation
//	ic := telemetry.StartOperation(ctx, "plan.execute",
//	    attribute.String("plan.id", planID))
//	defer ic.End(err)
//
//	ic.Logger.Info("Executing plan")
//
//	// Reload context
//	ctx = telemetry.WithReloadContext(ctx, reloadID, "file_change")
//	defer telemetry.EndReloadContext(ctx, reloadID, status, err)
//
//	// Table-change context
//	ctx = telemetry.WithChangeContext(ctx, reloadID, changeID, tableID, kind)
//	defer telemetry.EndChangeContext(ctx, reloadID, changeID, tableID, kind, status, err)
//
//	// Backend call
//	err := telemetry.RecordBackendOperation(ctx, "clickhouse", "apply_ddl", func() error {
//	    return backend.ApplyDDL(ctx, change)
//	})
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Development (verbose logging, stdout traces, full sampling)
//	cfg := telemetry.DevelopmentConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling)
//	cfg := telemetry.ProductionConfig()
//
//	// Custom configuration
//	cfg := &telemetry.Config{
//	    ServiceName: "foundry",
//	    ServiceVersion: "1.0.0",
//	    Environment: "staging",
//	    Logging: telemetry.LoggingConfig{
//	        Level: "info",
//	        Format: "json",
//	    },
//	    Tracing: telemetry.TracingConfig{
//	        Enabled: true,
//	        Exporter: "otlp",
//	        Endpoint: "otel-collector:4317",
//	        SamplingRate: 0.1,
//	    },
//	    Metrics: telemetry.MetricsConfig{
//	        Enabled: true,
//	        ListenAddress: ":9090",
//	    },
//	}
//
// # Performance Considerations
//
// The telemetry system is designed for minimal overhead:
//
//  - Structured logging uses zerolog's zero-allocation approach
//  - Tracing uses sampling to reduce data volume in production
//  - Metrics use Prometheus's efficient storage format
//  - Events are buffered and batched to reduce I/O
//  - All operations are non-blocking when possible
//
// Typical overhead: <1% CPU, <10MB memory for moderate workloads
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
//
// This ensures:
//  - All buffered events are published
//  - All pending traces are exported
//  - Metrics are finalized
//
// # Integration with the Core Platform
//
// No other package of this module imports telemetry; the dev loop, executor,
// reconciler and policy engine run uninstrumented. The package provides the
// helpers for such instrumentation:
//
//  1. Reload cycles: WithReloadContext / EndReloadContext
//  2. Table changes: WithChangeContext / EndChangeContext
//  3. Backends: RecordBackendOperation
//  4. Drift detection: PublishDriftDetected
//  5. Policy engine: PublishPolicyViolation
//
// # Exporters
//
// Tracing supports multiple exporters:
//
//  - "stdout": Print traces to stdout (development)
//  - "otlp": Export via OTLP/gRPC (production, works with collectors)
//  - "none": Generate traces but don't export (testing)
//
// Config.Validate also accepts "jaeger", but NewTracer rejects it as an
// unsupported exporter.
//
// Configure via TracingConfig.Exporter and TracingConfig.Endpoint
//
// # Common Metrics
//
// Key metrics exposed:
//
//  - foundry_reloads_started_total{trigger}
//  - foundry_reloads_completed_total{status}
//  - foundry_reload_duration_seconds{status}
//  - foundry_table_changes_applied_total{kind,status}
//  - foundry_table_change_duration_seconds{kind}
//  - foundry_backend_calls_total{backend,operation}
//  - foundry_backend_call_duration_seconds{backend,operation}
//  - foundry_errors_by_class_total{class}
//  - foundry_drift_detections_total{kind}
//  - foundry_active_reloads
//
// # Best Practices
//
//  1. Always use context to propagate telemetry
//  2. Use component-specific loggers for clarity
//  3. Add meaningful attributes to spans
//  4. Record both success and failure metrics
//  5. Use appropriate log levels
//  6. Filter events to avoid overwhelming subscribers
//  7. Monitor telemetry overhead in production
//  8. Configure sampling for high-volume systems
//  9. Always call defer span.End() after starting a span
//  10. Shut down gracefully to avoid data loss
//
// # Security Considerations
//
//  - Never log sensitive data (credentials, keys, tokens)
//  - Sanitize resource IDs if they contain PII
//  - Use secure connections (TLS) for trace exporters in production
//  - Limit metrics endpoint access via network policies
//  - Consider event data before adding to audit logs
//
package telemetry
