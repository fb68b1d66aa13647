// Package bridge decouples callers from the world engine: requests travel
// over a bounded channel to a single worker goroutine, which runs them one
// at a time and replies on a per-request channel.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize bounds the number of requests waiting for the worker.
const DefaultQueueSize = 64

// ErrClosed is returned by Call once the bridge has been closed.
var ErrClosed = errors.New("bridge closed")

// MethodError reports a request for a method with no handler.
type MethodError struct {
	Method string
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("unknown method %q", e.Method)
}

// HandlerFunc serves one method. params is the caller's argument encoded as
// JSON, or nil when the caller passed none.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Request is one queued call.
type Request struct {
	ID     uint64
	Method string
	Params json.RawMessage
}

// Response answers the Request with the same ID.
type Response struct {
	ID     uint64
	Result json.RawMessage
	Err    error
}

type envelope struct {
	ctx   context.Context
	req   Request
	reply chan Response
}

// Bridge owns the queue and its worker.
type Bridge struct {
	queue    chan envelope
	quit     chan struct{}
	done     chan struct{}
	once     sync.Once
	nextID   atomic.Uint64
	served   atomic.Uint64
	handlers map[string]HandlerFunc
	log      *slog.Logger
}

// New starts a bridge serving handlers. queueSize <= 0 selects
// DefaultQueueSize. The handler map must not be modified afterwards.
func New(handlers map[string]HandlerFunc, queueSize int) *Bridge {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	b := &Bridge{
		queue:    make(chan envelope, queueSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		handlers: handlers,
		log:      slog.Default().With("component", "bridge"),
	}
	go b.worker()
	return b
}

func (b *Bridge) worker() {
	defer close(b.done)
	for {
		select {
		case env := <-b.queue:
			env.reply <- b.serve(env)
		case <-b.quit:
			return
		}
	}
}

func (b *Bridge) serve(env envelope) (resp Response) {
	resp.ID = env.req.ID
	defer b.served.Add(1)

	if err := env.ctx.Err(); err != nil {
		resp.Err = err
		return resp
	}
	h, ok := b.handlers[env.req.Method]
	if !ok {
		resp.Err = &MethodError{Method: env.req.Method}
		return resp
	}
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handler panicked", "method", env.req.Method, "id", env.req.ID, "panic", r)
			resp.Result = nil
			resp.Err = fmt.Errorf("%s: handler panicked: %v", env.req.Method, r)
		}
	}()
	out, err := h(env.ctx, env.req.Params)
	if err != nil {
		resp.Err = err
		return resp
	}
	if out == nil {
		return resp
	}
	data, err := json.Marshal(out)
	if err != nil {
		resp.Err = fmt.Errorf("%s: encode result: %w", env.req.Method, err)
		return resp
	}
	resp.Result = data
	return resp
}

// Call queues method with params and waits for its response. The returned
// ID is the request's position in the bridge's monotonic sequence.
func (b *Bridge) Call(ctx context.Context, method string, params any) (Response, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return Response{}, fmt.Errorf("%s: encode params: %w", method, err)
		}
		raw = data
	}
	env := envelope{
		ctx:   ctx,
		req:   Request{ID: b.nextID.Add(1), Method: method, Params: raw},
		reply: make(chan Response, 1),
	}

	select {
	case <-b.quit:
		return Response{}, ErrClosed
	default:
	}
	select {
	case b.queue <- env:
	case <-b.quit:
		return Response{}, ErrClosed
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case resp := <-env.reply:
		return resp, resp.Err
	case <-b.quit:
		return Response{}, ErrClosed
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Invoke is Call followed by decoding the result into out. A nil out
// discards the result.
func (b *Bridge) Invoke(ctx context.Context, method string, params, out any) error {
	resp, err := b.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || resp.Result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// Served returns the number of requests the worker has answered.
func (b *Bridge) Served() uint64 {
	return b.served.Load()
}

// Close stops the worker after the request in progress, if any. Queued
// requests fail with ErrClosed. Safe to call more than once.
func (b *Bridge) Close() {
	b.once.Do(func() {
		close(b.quit)
		<-b.done
	})
}
