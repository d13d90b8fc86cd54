package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"gorm.io/gorm"
)

func TestClassifyJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: JobReasonDeadlineExceeded},
		{name: "wrapped_deadline", err: fmt.Errorf("sweep: %w", context.DeadlineExceeded), want: JobReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: JobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: JobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: JobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: JobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestJobMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg, Config{ServiceName: "fieldbooks", Environment: "test"})

	m.IncRun("accounting_sync_retry")
	m.IncRun("accounting_sync_retry")
	m.IncError("accounting_sync_retry", context.DeadlineExceeded)
	m.AddProcessed("accounting_sync_retry", "synced", 3)
	m.AddProcessed("accounting_sync_retry", "synced", 0)
	m.IncSkipped("accounting_sync_retry")
	m.ObserveDuration("accounting_sync_retry", 20*time.Millisecond)

	if got := testutil.ToFloat64(m.runs.WithLabelValues("accounting_sync_retry")); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("accounting_sync_retry", JobReasonDeadlineExceeded)); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if got := testutil.ToFloat64(m.processed.WithLabelValues("accounting_sync_retry", "synced")); got != 3 {
		t.Fatalf("expected 3 processed, got %v", got)
	}
	if got := testutil.ToFloat64(m.skipped.WithLabelValues("accounting_sync_retry")); got != 1 {
		t.Fatalf("expected 1 skipped, got %v", got)
	}
}

func TestJobMetricsDurationHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg, Config{ServiceName: "fieldbooks", Environment: "test"})

	m.ObserveDuration("certification_expiry_digest", 20*time.Millisecond)
	m.ObserveDuration("certification_expiry_digest", 2*time.Second)

	metric := findMetric(t, reg, "fieldbooks_job_duration_seconds", map[string]string{
		"job":     "certification_expiry_digest",
		"service": "fieldbooks",
		"env":     "test",
	})
	hist := metric.GetHistogram()
	if hist == nil {
		t.Fatalf("expected histogram sample")
	}
	if got := hist.GetSampleCount(); got != 2 {
		t.Fatalf("expected 2 samples, got %d", got)
	}
	if got := hist.GetSampleSum(); got < 2.0 || got > 2.1 {
		t.Fatalf("unexpected sample sum %v", got)
	}
}

func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if labelsMatch(metric, labels) {
				return metric
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return nil
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
