package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("org_id", "123"),
		attribute.String("invoice_id", "456"),
		attribute.String("document_type", "invoice"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "org_id" && attrs[1].Key != "org_id" {
		t.Fatalf("expected org_id to be retained")
	}
	if attrs[0].Key != "document_type" && attrs[1].Key != "document_type" {
		t.Fatalf("expected document_type to be retained")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordDocumentMutation(context.Background(), "invoice", "create")
	m.RecordBalanceAdjustment(context.Background(), "job_order")
	m.RecordSyncAttempt(context.Background(), "noop", "synced")

	Noop().RecordDocumentMutation(context.Background(), "invoice", "create")
}
