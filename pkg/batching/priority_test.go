package batching

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TensorScholar/cost-optimized-inference/pkg/models"
	"github.com/TensorScholar/cost-optimized-inference/pkg/observability"
)

func TestPriorityStrictLanes(t *testing.T) {
	b := NewPriorityBatcher(strategyWith(1, 10), observability.NewNoopLogger())
	ctx := context.Background()

	require.NoError(t, b.AddRequest(ctx, newBatchRequest(t, "batch job", models.PriorityBatch)))
	require.NoError(t, b.AddRequest(ctx, newBatchRequest(t, "standard job", models.PriorityStandard)))
	require.NoError(t, b.AddRequest(ctx, newBatchRequest(t, "express job", models.PriorityExpress)))

	batch, err := b.CollectBatch(ctx)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, models.PriorityExpress, batch.Priority())

	batch, err = b.CollectBatch(ctx)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, models.PriorityStandard, batch.Priority())

	batch, err = b.CollectBatch(ctx)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, models.PriorityBatch, batch.Priority())

	batch, err = b.CollectBatch(ctx)
	require.NoError(t, err)
	assert.Nil(t, batch)
}

func TestPriorityExpressCap(t *testing.T) {
	b := NewPriorityBatcher(strategyWith(1, 64), observability.NewNoopLogger())
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, b.AddRequest(ctx, newBatchRequest(t, fmt.Sprintf("express %d", i), models.PriorityExpress)))
	}
	batch, err := b.CollectBatch(ctx)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, 4, batch.Size(), "express lane is capped at 4")

	batch, err = b.CollectBatch(ctx)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, 3, batch.Size())
}

func TestPriorityLaneFIFO(t *testing.T) {
	b := NewPriorityBatcher(strategyWith(1, 10), observability.NewNoopLogger())
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		req := newBatchRequest(t, fmt.Sprintf("standard %d", i), models.PriorityStandard)
		ids = append(ids, req.ID.String())
		require.NoError(t, b.AddRequest(ctx, req))
	}
	batch, err := b.CollectBatch(ctx)
	require.NoError(t, err)
	require.NotNil(t, batch)
	for i, req := range batch.Requests {
		assert.Equal(t, ids[i], req.ID.String())
	}
}
