package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestRecorderWithoutSDK(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	spanCtx, span := r.StartSpan(ctx, "inventory.test", attribute.String("product.id", "p-1"))
	assert.NotNil(t, spanCtx)
	span.End()

	assert.NotPanics(t, func() {
		r.StaleRead(ctx, "inventory:ledger:p-1")
		r.DroppedWrite(ctx, "inventory:ledger:p-1")
		r.RaceDelay(ctx, "p-1")
		r.DuplicateWrite(ctx, "p-1")
		r.Timeout(ctx, "fast_path", 3)
		r.WarmupServe(ctx, "background", true)
	})
}
