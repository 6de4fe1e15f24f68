package tracing

import "context"

// Transaction is a unit of work that is not an incoming HTTP request, e.g. a one-shot command
type Transaction interface {
	Context() context.Context
	// SetResult records how the transaction went, e.g. "ok" or "failed"
	SetResult(result string)
	End()
}

type Span interface {
	SetLabel(key string, value string)
	End()
}

type Tracer interface {
	// BackgroundTx starts a transaction that is not tied to an incoming request
	BackgroundTx(ctx context.Context, name string) Transaction

	// StartSpan starts a span under whatever transaction ctx carries
	StartSpan(ctx context.Context, name string, spanType string) (Span, context.Context)
}
