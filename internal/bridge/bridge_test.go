package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandlers() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		"echo": func(_ context.Context, raw json.RawMessage) (any, error) {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
		"fail": func(context.Context, json.RawMessage) (any, error) {
			return nil, errBoom
		},
		"panic": func(context.Context, json.RawMessage) (any, error) {
			panic("boom")
		},
	}
}

var errBoom = errors.New("boom")

func TestCall(t *testing.T) {
	b := New(echoHandlers(), 0)
	defer b.Close()

	var got map[string]int
	require.NoError(t, b.Invoke(context.Background(), "echo", map[string]int{"a": 1}, &got))
	assert.Equal(t, map[string]int{"a": 1}, got)

	err := b.Invoke(context.Background(), "fail", nil, nil)
	assert.ErrorIs(t, err, errBoom)

	var me *MethodError
	err = b.Invoke(context.Background(), "missing", nil, nil)
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "missing", me.Method)

	// A panicking handler fails its own request only.
	assert.Error(t, b.Invoke(context.Background(), "panic", nil, nil))
	require.NoError(t, b.Invoke(context.Background(), "echo", 7, nil))
	assert.Equal(t, uint64(5), b.Served())
}

func TestCall_IDsAreMonotonic(t *testing.T) {
	b := New(echoHandlers(), 4)
	defer b.Close()

	const n = 50
	ids := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := b.Call(context.Background(), "echo", i)
			assert.NoError(t, err)
			var v int
			assert.NoError(t, json.Unmarshal(resp.Result, &v))
			assert.Equal(t, i, v)
			ids <- resp.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := map[uint64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		assert.True(t, id >= 1 && id <= n)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestCall_OneAtATime(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0
	b := New(map[string]HandlerFunc{
		"work": func(context.Context, json.RawMessage) (any, error) {
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			return nil, nil
		},
	}, 8)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, b.Invoke(context.Background(), "work", nil, nil))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, peak)
}

func TestCall_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	b := New(map[string]HandlerFunc{
		"block": func(context.Context, json.RawMessage) (any, error) {
			<-release
			return nil, nil
		},
	}, 1)
	defer b.Close()
	defer close(release)

	go func() { _, _ = b.Call(context.Background(), "block", nil) }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Call(ctx, "block", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClose(t *testing.T) {
	b := New(echoHandlers(), 0)
	b.Close()
	b.Close()

	_, err := b.Call(context.Background(), "echo", 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCall_BadParams(t *testing.T) {
	b := New(echoHandlers(), 0)
	defer b.Close()
	_, err := b.Call(context.Background(), "echo", func() {})
	assert.Error(t, err)
	assert.Equal(t, uint64(0), b.Served())
}
