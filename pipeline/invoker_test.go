package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/session"
)

var errBoom = errors.New("boom")

// fakeCaller records concurrency and delegates to fn
type fakeCaller struct {
	fn          func(ctx context.Context, rec session.Record) (any, error)
	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeCaller) Call(ctx context.Context, routine string, rec session.Record) (any, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.maxInFlight.Load()
		if n <= peak || f.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	return f.fn(ctx, rec)
}

func questionLen(_ context.Context, rec session.Record) (any, error) {
	q, _ := rec.Get("question")
	return int64(len(q.(string))), nil
}

func TestInvokeBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("one result per record with matching ids", func(t *testing.T) {
		caller := &fakeCaller{fn: questionLen}
		inv := NewInvoker(caller, InvokerOptions{Workers: 4, Logger: zaptest.NewLogger(t).Sugar()})

		batch := batchOf(record(1, "A"), record(2, "BB"), record(3, "CCC"))
		results, err := inv.InvokeBatch(ctx, batch, "square_len")
		require.NoError(t, err)
		require.Len(t, results, 3)

		got := map[int64]any{}
		for _, r := range results {
			got[r.RowID] = r.Response
		}
		assert.Equal(t, map[int64]any{1: int64(1), 2: int64(2), 3: int64(3)}, got)
		assert.Equal(t, int32(3), caller.calls.Load())
	})

	t.Run("empty batch", func(t *testing.T) {
		inv := NewInvoker(&fakeCaller{fn: questionLen}, InvokerOptions{Workers: 2})
		results, err := inv.InvokeBatch(ctx, batchOf(), "square_len")
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("concurrency is bounded by workers", func(t *testing.T) {
		caller := &fakeCaller{fn: func(ctx context.Context, rec session.Record) (any, error) {
			time.Sleep(5 * time.Millisecond)
			return questionLen(ctx, rec)
		}}
		inv := NewInvoker(caller, InvokerOptions{Workers: 3})

		var records []session.Record
		for i := int64(1); i <= 30; i++ {
			records = append(records, record(i, "Q"))
		}
		results, err := inv.InvokeBatch(ctx, batchOf(records...), "square_len")
		require.NoError(t, err)
		assert.Len(t, results, 30)
		assert.LessOrEqual(t, caller.maxInFlight.Load(), int32(3))
		assert.Greater(t, caller.maxInFlight.Load(), int32(1))
	})

	t.Run("first error aborts the batch", func(t *testing.T) {
		caller := &fakeCaller{fn: func(ctx context.Context, rec session.Record) (any, error) {
			id, _ := rec.Get("ROW_ID")
			if id.(int64) == 2 {
				return nil, errors.WrapInvocation(errBoom, "call failed")
			}
			return questionLen(ctx, rec)
		}}
		inv := NewInvoker(caller, InvokerOptions{Workers: 1})

		results, err := inv.InvokeBatch(ctx, batchOf(record(1, "A"), record(2, "B"), record(3, "C"), record(4, "D")), "r")
		require.Error(t, err)
		assert.Nil(t, results)
		assert.True(t, errors.IsInvocationError(err))
		assert.True(t, errors.Is(err, errBoom))
		assert.Contains(t, err.Error(), "row 2")
		// the single worker stops before the rows after the failure
		assert.Equal(t, int32(2), caller.calls.Load())
	})

	t.Run("retries invocation errors", func(t *testing.T) {
		var mu sync.Mutex
		attempts := map[int64]int{}
		caller := &fakeCaller{fn: func(ctx context.Context, rec session.Record) (any, error) {
			id, _ := rec.Get("ROW_ID")
			mu.Lock()
			attempts[id.(int64)]++
			n := attempts[id.(int64)]
			mu.Unlock()
			if n < 3 {
				return nil, errors.WrapInvocation(errBoom, "transient")
			}
			return questionLen(ctx, rec)
		}}
		inv := NewInvoker(caller, InvokerOptions{Workers: 2, MaxRetries: 2, RetryBackoff: time.Millisecond})

		results, err := inv.InvokeBatch(ctx, batchOf(record(1, "A"), record(2, "BB")), "r")
		require.NoError(t, err)
		assert.Len(t, results, 2)
		assert.Equal(t, map[int64]int{1: 3, 2: 3}, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		caller := &fakeCaller{fn: func(context.Context, session.Record) (any, error) {
			return nil, errors.WrapInvocation(errBoom, "always")
		}}
		inv := NewInvoker(caller, InvokerOptions{Workers: 1, MaxRetries: 1, RetryBackoff: time.Millisecond})

		_, err := inv.InvokeBatch(ctx, batchOf(record(1, "A")), "r")
		assert.True(t, errors.IsInvocationError(err))
		assert.Equal(t, int32(2), caller.calls.Load())
	})

	t.Run("configuration errors are not retried", func(t *testing.T) {
		caller := &fakeCaller{fn: func(context.Context, session.Record) (any, error) {
			return nil, errors.NewConfigurationError("routine missing")
		}}
		inv := NewInvoker(caller, InvokerOptions{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})

		_, err := inv.InvokeBatch(ctx, batchOf(record(1, "A")), "r")
		assert.True(t, errors.IsConfigurationError(err))
		assert.Equal(t, int32(1), caller.calls.Load())
	})

	t.Run("record without identifier", func(t *testing.T) {
		inv := NewInvoker(&fakeCaller{fn: questionLen}, InvokerOptions{Workers: 1})
		rec := session.NewRecord(session.Field{Name: "question", Value: "A"})

		_, err := inv.InvokeBatch(ctx, batchOf(rec), "r")
		assert.True(t, errors.Is(err, errors.ErrJoin))
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		caller := &fakeCaller{fn: questionLen}
		inv := NewInvoker(caller, InvokerOptions{Workers: 2})

		_, err := inv.InvokeBatch(cctx, batchOf(record(1, "A"), record(2, "B")), "r")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int32(0), caller.calls.Load())
	})
}

func TestInvokeBatch_SharedSession(t *testing.T) {
	var questions []string
	for i := 0; i < 64; i++ {
		questions = append(questions, string(rune('a'+i%26)))
	}
	s, _ := newTestSession(t, questions...)
	tagged, err := TagRows(questionsFrame(t, s), "ROW_ID")
	require.NoError(t, err)

	reader, err := tagged.Batches(t.Context(), 64)
	require.NoError(t, err)
	defer reader.Close()
	batch, err := reader.Next()
	require.NoError(t, err)

	inv := NewInvoker(s, InvokerOptions{Workers: 8})
	results, err := inv.InvokeBatch(t.Context(), batch, "square_len")
	require.NoError(t, err)
	require.Len(t, results, 64)

	ids := map[int64]bool{}
	for _, r := range results {
		ids[r.RowID] = true
		assert.Equal(t, int64(1), r.Response)
	}
	assert.Len(t, ids, 64)
}

func TestNewInvoker_DefaultsToLogicalCPUs(t *testing.T) {
	inv := NewInvoker(&fakeCaller{fn: questionLen}, InvokerOptions{})
	assert.Equal(t, LogicalCPUs(), inv.Workers())
	assert.Positive(t, inv.Workers())
}
