package batch

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pimstack/aipopulate/internal/model"
)

func items(n int) []model.BatchItem[int] {
	out := make([]model.BatchItem[int], 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.BatchItem[int]{ID: string(rune('a' + i)), Body: i})
	}
	return out
}

func TestProcessEmpty(t *testing.T) {
	resp := Process(context.Background(), nil, func(_ context.Context, item model.BatchItem[int]) (*int, error) {
		t.Fatal("transform must not run")
		return nil, nil
	}, Options{})
	require.NotNil(t, resp)
	assert.Empty(t, resp.Outputs)
	assert.Nil(t, resp.Error)
}

func TestProcessOneOutputPerItem(t *testing.T) {
	in := items(10)
	resp := Process(context.Background(), in, func(_ context.Context, item model.BatchItem[int]) (*int, error) {
		doubled := item.Body * 2
		return &doubled, nil
	}, Options{Parallelism: 4})

	require.Len(t, resp.Outputs, len(in))
	assert.Nil(t, resp.Error)

	ids := make([]string, 0, len(resp.Outputs))
	for _, out := range resp.Outputs {
		require.NotNil(t, out.Body)
		assert.Nil(t, out.Error)
		ids = append(ids, out.ID)
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}, ids)
}

func TestProcessItemFailureIsolated(t *testing.T) {
	in := items(3)
	resp := Process(context.Background(), in, func(_ context.Context, item model.BatchItem[int]) (*int, error) {
		if item.ID == "b" {
			return nil, errors.New("upstream rejected request")
		}
		v := item.Body
		return &v, nil
	}, Options{Parallelism: 2})

	require.Len(t, resp.Outputs, 3)
	assert.Nil(t, resp.Error)

	byID := map[string]model.BatchOutput[int]{}
	for _, out := range resp.Outputs {
		byID[out.ID] = out
	}
	require.NotNil(t, byID["b"].Error)
	assert.Equal(t, model.ErrCodeRequestFailed, byID["b"].Error.Code)
	assert.Contains(t, byID["b"].Error.Message, "upstream rejected")
	assert.Nil(t, byID["b"].Body)
	require.NotNil(t, byID["a"].Body)
	require.NotNil(t, byID["c"].Body)
}

func TestProcessPanicIsolated(t *testing.T) {
	in := items(2)
	resp := Process(context.Background(), in, func(_ context.Context, item model.BatchItem[int]) (*int, error) {
		if item.ID == "a" {
			panic("bad input shape")
		}
		v := item.Body
		return &v, nil
	}, Options{Parallelism: 1})

	require.Len(t, resp.Outputs, 2)
	byID := map[string]model.BatchOutput[int]{}
	for _, out := range resp.Outputs {
		byID[out.ID] = out
	}
	require.NotNil(t, byID["a"].Error)
	assert.Equal(t, model.ErrCodeInputProcessing, byID["a"].Error.Code)
	assert.Contains(t, byID["a"].Error.Message, "bad input shape")
	require.NotNil(t, byID["b"].Body)
}

func TestProcessNilOutputIsItemError(t *testing.T) {
	in := items(1)
	resp := Process(context.Background(), in, func(_ context.Context, _ model.BatchItem[int]) (*int, error) {
		return nil, nil
	}, Options{Parallelism: 1})

	require.Len(t, resp.Outputs, 1)
	require.NotNil(t, resp.Outputs[0].Error)
	assert.Equal(t, model.ErrCodeInputProcessing, resp.Outputs[0].Error.Code)
}

func TestProcessParallelismBound(t *testing.T) {
	var current, peak atomic.Int32
	in := items(20)
	Process(context.Background(), in, func(_ context.Context, item model.BatchItem[int]) (*int, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		v := item.Body
		return &v, nil
	}, Options{Parallelism: 3})

	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestProcessCancelledBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := Process(ctx, items(4), func(_ context.Context, item model.BatchItem[int]) (*int, error) {
		v := item.Body
		return &v, nil
	}, Options{Parallelism: 1})

	require.NotNil(t, resp.Error)
	assert.Equal(t, model.ErrCodeBatchFailed, resp.Error.Code)
}

func TestDefaultParallelismClamped(t *testing.T) {
	p := DefaultParallelism()
	assert.GreaterOrEqual(t, p, 16)
	assert.LessOrEqual(t, p, 128)
	if runtime.NumCPU()*8 >= 16 && runtime.NumCPU()*8 <= 128 {
		assert.Equal(t, runtime.NumCPU()*8, p)
	}
}
