package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.elastic.co/apm"
	"go.elastic.co/apm/apmtest"
)

func Test_apmTracer_records_spans_under_transaction(t *testing.T) {
	recorder := apmtest.NewRecordingTracer()
	defer recorder.Close()
	subject := &apmTracer{current: func() *apm.Tracer {
		return recorder.Tracer
	}}

	tx := subject.BackgroundTx(context.Background(), "reconcile")
	span, _ := subject.StartSpan(tx.Context(), "reconcile-apply", "db")
	span.SetLabel("keyspace", "vendor")
	span.End()
	tx.SetResult("ok")
	tx.End()
	recorder.Flush(nil)

	payloads := recorder.Payloads()
	require.Len(t, payloads.Transactions, 1)
	assert.Equal(t, "reconcile", payloads.Transactions[0].Name)
	assert.Equal(t, "ok", payloads.Transactions[0].Result)
	require.Len(t, payloads.Spans, 1)
	assert.Equal(t, "reconcile-apply", payloads.Spans[0].Name)
	assert.Equal(t, payloads.Transactions[0].ID, payloads.Spans[0].TransactionID)
}

type ctxKey struct{}

func Test_NoopTracer(t *testing.T) {
	ctx := context.WithValue(context.Background(), ctxKey{}, "v")
	tx := NoopTracer{}.BackgroundTx(ctx, "noop")
	assert.Equal(t, ctx, tx.Context())
	span, spanCtx := NoopTracer{}.StartSpan(ctx, "noop", "db")
	assert.Equal(t, ctx, spanCtx)
	span.SetLabel("a", "b")
	span.End()
	tx.End()
}
