// Package vectorstore holds chunk embeddings partitioned by namespace and answers
// nearest-neighbour queries over them.
package vectorstore

import (
	"context"
	"fmt"
	"math"
)

// Record is one vector to upsert.
type Record struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]any
}

// Query asks for the TopK nearest records in Namespace whose metadata contains every
// key/value pair of Filter.
type Query struct {
	Namespace string
	Vector    []float32
	TopK      int
	Filter    map[string]any
}

// Match is a ranked query result. Score is cosine similarity clamped to [0,1].
type Match struct {
	ID       string
	Score    float64
	Text     string
	Metadata map[string]any
}

type Stats struct {
	TotalVectors int            `json:"total_vectors"`
	Dimension    int            `json:"dimension"`
	Fullness     float64        `json:"index_fullness"`
	Namespaces   map[string]int `json:"namespaces"`
}

type Store interface {
	Upsert(ctx context.Context, namespace string, records []Record) error
	Query(ctx context.Context, q Query) ([]Match, error)
	Stats(ctx context.Context) (Stats, error)
}

func checkDimension(dimension int, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("vector is empty")
	}
	if dimension > 0 && len(vec) != dimension {
		return fmt.Errorf("vector dimension mismatch: expected %d, got %d", dimension, len(vec))
	}
	return nil
}

func clampScore(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
