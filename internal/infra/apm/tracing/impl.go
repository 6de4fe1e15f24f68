// tracing binds the domain tracing interfaces to Elastic APM
package tracing

import (
	"context"

	"go.elastic.co/apm"

	"github.com/lloydmeta/settle/internal/domain/tracing"
)

// NewTracer returns a Tracer reporting to the APM default tracer, looked up on every use so a
// tracer swapped in after startup is picked up
func NewTracer() tracing.Tracer {
	return &apmTracer{current: func() *apm.Tracer {
		return apm.DefaultTracer
	}}
}

type apmTracer struct {
	current func() *apm.Tracer
}

func (t *apmTracer) BackgroundTx(ctx context.Context, name string) tracing.Transaction {
	tx := t.current().StartTransaction(name, "command")
	return &apmTransaction{tx: tx, ctx: apm.ContextWithTransaction(ctx, tx)}
}

func (t *apmTracer) StartSpan(ctx context.Context, name string, spanType string) (tracing.Span, context.Context) {
	span, spanCtx := apm.StartSpan(ctx, name, spanType)
	return &apmSpan{span: span}, spanCtx
}

type apmTransaction struct {
	tx  *apm.Transaction
	ctx context.Context
}

func (t *apmTransaction) Context() context.Context {
	return t.ctx
}

func (t *apmTransaction) SetResult(result string) {
	t.tx.Result = result
}

func (t *apmTransaction) End() {
	t.tx.End()
}

type apmSpan struct {
	span *apm.Span
}

func (s *apmSpan) SetLabel(key string, value string) {
	s.span.Context.SetLabel(key, value)
}

func (s *apmSpan) End() {
	s.span.End()
}

// NoopTracer records nothing
type NoopTracer struct{}

func (NoopTracer) BackgroundTx(ctx context.Context, name string) tracing.Transaction {
	return noopTx{ctx: ctx}
}

func (NoopTracer) StartSpan(ctx context.Context, name string, spanType string) (tracing.Span, context.Context) {
	return noopSpan{}, ctx
}

type noopTx struct {
	ctx context.Context
}

func (n noopTx) Context() context.Context {
	return n.ctx
}

func (noopTx) SetResult(string) {}

func (noopTx) End() {}

type noopSpan struct{}

func (noopSpan) SetLabel(string, string) {}

func (noopSpan) End() {}
