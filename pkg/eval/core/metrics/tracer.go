package metrics

import (
	"context"
)

// Tracer is an abstract interface for distributed tracing.
type Tracer interface {
	// StartSpan starts a span named name as a child of the span in ctx.
	//
	// Returns: a context carrying the new span, and a function ending it.
	// Call the returned function in a defer statement.
	StartSpan(ctx context.Context, name string, attributes map[string]interface{}) (context.Context, func())

	// RecordError records an error in the current span.
	//
	// module: the component where the error occurred (e.g. "cache", "aligner").
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent records an event in the current span.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
