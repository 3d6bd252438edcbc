package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySingle(t *testing.T) {
	r := NewRegistry()
	var calls []Result
	require.NoError(t, r.Register(1, ModeSingle, func(err error, res Result) {
		assert.NoError(t, err)
		calls = append(calls, res)
	}))
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Resolve(1, nil, json.RawMessage(`"ok"`), false))
	assert.False(t, r.Resolve(1, nil, json.RawMessage(`"again"`), false))

	require.Len(t, calls, 1)
	assert.Equal(t, `"ok"`, string(calls[0].Value))
	assert.True(t, calls[0].Done, "single results are always done")
	assert.Equal(t, 0, r.Len())
}

func TestRegistryStream(t *testing.T) {
	r := NewRegistry()
	var calls []Result
	require.NoError(t, r.Register(4, ModeStream, func(err error, res Result) {
		calls = append(calls, res)
	}))

	assert.True(t, r.Resolve(4, nil, json.RawMessage(`1`), false))
	assert.True(t, r.Has(4))
	assert.True(t, r.Resolve(4, nil, json.RawMessage(`2`), true))
	assert.False(t, r.Has(4))
	assert.False(t, r.Resolve(4, nil, json.RawMessage(`3`), false))

	require.Len(t, calls, 2)
	assert.False(t, calls[0].Done)
	assert.True(t, calls[1].Done)
}

func TestRegistryStreamError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	var gotErr error
	var gotRes Result
	require.NoError(t, r.Register(2, ModeStream, func(err error, res Result) {
		gotErr, gotRes = err, res
	}))

	assert.True(t, r.Resolve(2, boom, nil, false))
	assert.ErrorIs(t, gotErr, boom)
	assert.True(t, gotRes.Done)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	noop := func(error, Result) {}
	require.NoError(t, r.Register(1, ModeSingle, noop))
	assert.ErrorIs(t, r.Register(1, ModeStream, noop), ErrDuplicateID)
	assert.Error(t, r.Register(2, ModeSingle, nil))
}

func TestRegistryUnknownID(t *testing.T) {
	r := NewRegistry()
	assert.NotPanics(t, func() {
		assert.False(t, r.Resolve(42, nil, nil, true))
	})
}

func TestRegistryDrainInIDOrder(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("exited")
	var order []int64
	var streamRes Result
	for _, id := range []int64{3, 1, 2} {
		require.NoError(t, r.Register(id, ModeSingle, func(err error, res Result) {
			assert.ErrorIs(t, err, boom)
			assert.True(t, res.Done)
			order = append(order, id)
		}))
	}
	require.NoError(t, r.Register(5, ModeStream, func(err error, res Result) {
		order = append(order, 5)
		streamRes = res
	}))

	assert.Equal(t, 4, r.Drain(boom))
	assert.Equal(t, []int64{1, 2, 3, 5}, order)
	assert.Equal(t, `""`, string(streamRes.Value))
	assert.True(t, streamRes.Done)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.Drain(boom))
}

func TestRegistryForget(t *testing.T) {
	r := NewRegistry()
	fired := false
	require.NoError(t, r.Register(1, ModeSingle, func(error, Result) { fired = true }))

	assert.Equal(t, 1, r.Forget())
	assert.False(t, fired)
	assert.Equal(t, 0, r.Len())
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "single", ModeSingle.String())
	assert.Equal(t, "stream", ModeStream.String())
}

func TestMethodTable(t *testing.T) {
	table := NewMethodTable()
	table.Register("b", func(context.Context, json.RawMessage) (any, error) { return "b", nil })
	table.RegisterStream("a", func(_ context.Context, _ json.RawMessage, emit Emitter) (any, error) {
		return "a", emit(1)
	})

	assert.True(t, table.Has("a"))
	assert.False(t, table.Has("c"))
	assert.Equal(t, []string{"a", "b"}, table.Names())

	h, ok := table.lookup("b")
	require.True(t, ok)
	got, err := h(context.Background(), nil, func(any) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "b", got)

	var nilTable *MethodTable
	assert.False(t, nilTable.Has("a"))
	assert.Empty(t, nilTable.Names())
}

func TestQueue(t *testing.T) {
	q := newQueue[int]()
	assert.True(t, q.push(1))
	assert.True(t, q.push(2))
	q.close()
	assert.False(t, q.push(3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	batch, err := q.next(ctx)
	require.NoError(t, err, "queued items are handed out even after cancel")
	assert.Equal(t, []int{1, 2}, batch)

	_, err = q.next(context.Background())
	assert.ErrorIs(t, err, errQueueClosed)
}
