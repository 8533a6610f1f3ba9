package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "stripe"),
		attribute.String("order_id", "456"),
		attribute.String("outcome", "fulfilled"),
	)
	keys := make([]attribute.Key, 0, len(attrs))
	for _, attr := range attrs {
		keys = append(keys, attr.Key)
	}
	assert.ElementsMatch(t, []attribute.Key{"provider", "outcome"}, keys)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordFulfillment(ctx, "stripe", "fulfilled")
		m.AddLicensesIssued(ctx, 2)
		m.AddBonusPoints(ctx, "UAH", 10)
		m.RecordWebhookEvent(ctx, "stripe", "payment_intent.succeeded")
	})
}

func TestNoopMetrics(t *testing.T) {
	m := NewNoop()
	assert.NotNil(t, m)
	assert.NotPanics(t, func() {
		m.RecordFulfillment(context.Background(), "adyen", "already_processed")
	})
}
