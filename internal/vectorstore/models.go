// Package vectorstore provides the vector store boundary and its Qdrant
// implementation.
package vectorstore

import (
	"context"
	"errors"
)

var (
	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidCollectionName indicates a collection name failing validation.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrConnectionFailed indicates the store could not be reached.
	ErrConnectionFailed = errors.New("connection failed")
)

// Point is one vector store entry: an embedding plus a filterable metadata
// payload, addressable by its own point id. The point id is independent of
// the catalog id carried inside the payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Filter matches points whose payload fields equal the given values.
// String values match keywords; []string values match any of the keywords.
type Filter map[string]any

// Store is the vector store boundary consumed by the workers.
type Store interface {
	// Upsert writes points into a collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Delete removes all points matching the filter.
	Delete(ctx context.Context, collection string, filter Filter) error

	// Scroll pages through points matching the filter, payload only.
	Scroll(ctx context.Context, collection string, filter Filter, limit int) ([]Point, error)
}
