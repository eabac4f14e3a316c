// Package writer exports the results of a truth retrieval run to the configured sinks.
package writer

import (
	"context"
)

const moduleName = "writer"

// ItemWriter writes items of type T to a sink. Open is called once before the first
// Write, Close once after the last; items may be buffered until Close.
type ItemWriter[T any] interface {
	Open(ctx context.Context) error
	Write(ctx context.Context, items []T) error
	Close(ctx context.Context) error
}
