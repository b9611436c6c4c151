package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestTelemetry(t *testing.T) *Telemetry {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Tracing.Enabled = false
	cfg.Logging.Level = "error"

	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = tel.Shutdown(ctx)
	})
	return tel
}

// Without telemetry in the context the wrappers degrade to plain calls.
func TestRecordTransitionWithoutTelemetry(t *testing.T) {
	wantErr := errors.New("rejected")

	called := false
	err := RecordTransition(context.Background(), "wiki", "start", func(context.Context) error {
		called = true
		return wantErr
	})

	if !called {
		t.Fatal("fn was not called")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("RecordTransition() error = %v, want %v", err, wantErr)
	}
}

func TestRecordTransitionCounts(t *testing.T) {
	tel := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())

	if err := RecordTransition(ctx, "wiki", "start", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("RecordTransition() error = %v", err)
	}
	if err := RecordTransition(ctx, "wiki", "start", func(context.Context) error { return errors.New("busy") }); err == nil {
		t.Fatal("RecordTransition() = nil, want the fn error")
	}
	if err := RecordTransition(ctx, "", "update", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("RecordTransition() error = %v", err)
	}

	tests := []struct {
		entity  string
		action  string
		outcome string
		want    float64
	}{
		{"app", "start", "dispatched", 1},
		{"app", "start", "rejected", 1},
		{"system", "update", "dispatched", 1},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(tel.Metrics.transitionsTotal.WithLabelValues(tt.entity, tt.action, tt.outcome))
		if got != tt.want {
			t.Errorf("transitions_total{%s,%s,%s} = %v, want %v", tt.entity, tt.action, tt.outcome, got, tt.want)
		}
	}
}

func TestRecordDispatchCounts(t *testing.T) {
	tel := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())

	if err := RecordDispatch(ctx, "spool", "install", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("RecordDispatch() error = %v", err)
	}
	if err := RecordDispatch(ctx, "nats", "restart", func(context.Context) error { return errors.New("down") }); err == nil {
		t.Fatal("RecordDispatch() = nil, want the fn error")
	}

	if got := testutil.ToFloat64(tel.Metrics.dispatchesTotal.WithLabelValues("spool", "install", "ok")); got != 1 {
		t.Errorf("dispatches_total{spool,install,ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(tel.Metrics.dispatchesTotal.WithLabelValues("nats", "restart", "error")); got != 1 {
		t.Errorf("dispatches_total{nats,restart,error} = %v, want 1", got)
	}
}

func TestRecordSettlementCounts(t *testing.T) {
	tel := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())

	RecordSettlement(ctx, "app", "running")
	RecordSettlement(ctx, "system", "RUNNING")
	RecordSettlementRejection(ctx, "invalid")

	if got := testutil.ToFloat64(tel.Metrics.settlementsTotal.WithLabelValues("app", "running")); got != 1 {
		t.Errorf("settlements_total{app,running} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(tel.Metrics.settlementsTotal.WithLabelValues("system", "RUNNING")); got != 1 {
		t.Errorf("settlements_total{system,RUNNING} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(tel.Metrics.settlementRejections.WithLabelValues("invalid")); got != 1 {
		t.Errorf("settlement_rejections_total{invalid} = %v, want 1", got)
	}
}

func TestRecordCacheLookupCounts(t *testing.T) {
	tel := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())

	RecordCacheLookup(ctx, true)
	RecordCacheLookup(ctx, false)
	RecordCacheLookup(ctx, false)

	if got := testutil.ToFloat64(tel.Metrics.cacheLookups.WithLabelValues("hit")); got != 1 {
		t.Errorf("cache_lookups_total{hit} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(tel.Metrics.cacheLookups.WithLabelValues("miss")); got != 2 {
		t.Errorf("cache_lookups_total{miss} = %v, want 2", got)
	}
}

func TestRecordErrorKindSkipsEmpty(t *testing.T) {
	tel := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())

	RecordErrorKind(ctx, "")
	RecordErrorKind(ctx, "operation_in_progress")

	if got := testutil.ToFloat64(tel.Metrics.errorsByKind.WithLabelValues("operation_in_progress")); got != 1 {
		t.Errorf("errors_by_kind_total{operation_in_progress} = %v, want 1", got)
	}
	// The empty kind must not have materialized a series.
	if count := testutil.CollectAndCount(tel.Metrics.errorsByKind); count != 1 {
		t.Errorf("errors_by_kind_total series = %d, want 1", count)
	}
}
