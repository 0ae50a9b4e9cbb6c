package vectorstore

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/stakeholder-rag/config"
	"github.com/fabfab/stakeholder-rag/database"
)

func TestPostgresStoreRanking(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_DB_INTEGRATION_TESTS=1 to run database connectivity checks")
	}

	cfg := config.Load()
	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	require.NoError(t, err)
	defer pool.Close()

	dim := cfg.Embeddings.Dimension
	require.NoError(t, database.EnsureVectorSchema(ctx, pool, dim))

	namespace := "it-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, "DELETE FROM rag_vectors WHERE namespace = $1", namespace)
	})

	makeVector := func(x, y float32) []float32 {
		vec := make([]float32, dim)
		vec[0], vec[1] = x, y
		return vec
	}

	idA, idB := uuid.NewString(), uuid.NewString()
	store := NewPostgresStore(pool, dim)
	require.NoError(t, store.Upsert(ctx, namespace, []Record{
		{ID: idA, Vector: makeVector(1, 0), Text: "Chunk A", Metadata: map[string]any{"doc_type": "upi_transaction"}},
		{ID: idB, Vector: makeVector(1, 1), Text: "Chunk B", Metadata: map[string]any{"doc_type": "partnership_sla"}},
	}))

	results, err := store.Query(ctx, Query{Namespace: namespace, Vector: makeVector(1, 0.1), TopK: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, idA, results[0].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Equal(t, "upi_transaction", results[0].Metadata["doc_type"])

	filtered, err := store.Query(ctx, Query{Namespace: namespace, Vector: makeVector(1, 0.1), TopK: 2, Filter: map[string]any{"doc_type": "partnership_sla"}})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, idB, filtered[0].ID)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Namespaces[namespace])
}
