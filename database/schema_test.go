package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureVectorSchemaRejectsInvalidDimension(t *testing.T) {
	err := EnsureVectorSchema(context.Background(), nil, 0)
	assert.ErrorContains(t, err, "dimension must be positive")
}

func TestEnsureVectorSchemaRejectsNilPool(t *testing.T) {
	err := EnsureVectorSchema(context.Background(), nil, 384)
	assert.ErrorContains(t, err, "pool is nil")
}
