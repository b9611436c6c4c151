// Package telemetry provides observability instrumentation for the platform
// core: structured logging (zerolog), distributed tracing (OpenTelemetry)
// and metrics (Prometheus) behind one handle.
//
// # Usage
//
// Initialize telemetry at startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version.Version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx = tel.WithContext(ctx)
//
// # Structured logging
//
// Components receive child loggers with their own component field:
//
//	logger := tel.Logger.NewComponentLogger("app-controller")
//	logger.WithApp("calculator").Info("App install dispatched")
//	logger.WithError(err).Error("Dispatch failed")
//
// # Tracing
//
// Spans wrap controller operations and dispatches:
//
//	ctx, span := tel.Tracer.StartTransitionSpan(ctx, appID, "stop")
//	defer span.End()
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// # Metrics
//
// Key series exposed at /metrics:
//
//   - tipi_transitions_total{entity,action,outcome}
//   - tipi_transition_duration_seconds{entity,action}
//   - tipi_dispatches_total{engine,event_type,status}
//   - tipi_settlements_total{entity,status}
//   - tipi_settlement_rejections_total{reason}
//   - tipi_policy_denials_total{operation,policy}
//   - tipi_release_lookups_total{status}
//   - tipi_cache_lookups_total{result}
//   - tipi_errors_by_kind_total{kind}
//   - tipi_apps_by_status{status}
//
// The helpers RecordTransition and StartOperation bundle span, timer and
// counters for the common cases.
package telemetry
