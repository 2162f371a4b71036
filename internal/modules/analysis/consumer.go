package analysis

import (
	"context"
	"sync"

	"github.com/techpress/core/internal/models"
)

// StreamState is the discriminated state of one field's streaming consumer.
// Consumption sites switch on the concrete type so every state is handled
// explicitly; there are no boolean flags to fall out of sync.
type StreamState interface{ streamState() }

// Idle: no request in flight, no value. Also the landing state after
// cancellation, which is not an error.
type Idle struct{}

// Loading: request sent, no chunk received yet.
type Loading struct{}

// Streaming: at least one chunk received. Partial grows monotonically: text
// by append, record lists by whole parsed records only.
type Streaming struct{ Partial FieldValue }

// Completed: terminal, stream closed normally.
type Completed struct{ Final FieldValue }

// Errored: terminal. Partial retains whatever records arrived before the
// failure, so a late rate-limit frame does not discard a usable Q&A list.
type Errored struct {
	Message string
	Partial FieldValue
}

func (Idle) streamState()      {}
func (Loading) streamState()   {}
func (Streaming) streamState() {}
func (Completed) streamState() {}
func (Errored) streamState()   {}

// RunFunc performs the actual request for a consumer. It must call emit for
// each progressive delta and return the final value or an error. The ctx is
// cancelled when the request is superseded or stopped.
type RunFunc func(ctx context.Context, emit func(delta FieldValue)) (FieldValue, error)

// Consumer turns one request/response exchange into progressive states and a
// terminal outcome. Single-flight per field: starting a new request cancels
// the previous one, and chunks from a superseded request never mutate state.
type Consumer struct {
	field models.Field

	mu     sync.Mutex
	state  StreamState
	cancel context.CancelFunc
	gen    uint64 // increments per StartStreaming; stale runs are ignored
}

// NewConsumer builds a consumer. When the field is already known completed
// (from prior orchestrator state), the consumer starts in Completed and
// StartStreaming becomes a no-op, so a remount never re-generates known-good
// content.
func NewConsumer(field models.Field, alreadyCompleted bool, existing FieldValue) *Consumer {
	c := &Consumer{field: field, state: Idle{}}
	if alreadyCompleted {
		c.state = Completed{Final: existing}
	}
	return c
}

// State returns the current state.
func (c *Consumer) State() StreamState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stop cancels any in-flight request. The state transitions to Idle, not
// Errored: an abandoned request is not a failure.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	switch c.state.(type) {
	case Loading, Streaming:
		c.state = Idle{}
	}
}

// StartStreaming runs one exchange to completion in the calling goroutine.
// Any prior in-flight request for this consumer is cancelled first. No-op if
// the field completed before the consumer was constructed.
func (c *Consumer) StartStreaming(ctx context.Context, run RunFunc) {
	c.mu.Lock()
	if _, done := c.state.(Completed); done {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.gen++
	gen := c.gen
	c.state = Loading{}
	c.mu.Unlock()

	defer cancel()

	final, err := run(runCtx, func(delta FieldValue) {
		c.applyDelta(gen, delta)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		// Superseded by a newer request; its result is no longer wanted.
		return
	}
	c.cancel = nil

	if runCtx.Err() != nil {
		c.state = Idle{}
		return
	}
	if err != nil {
		c.state = Errored{Message: err.Error(), Partial: c.partialLocked()}
		return
	}
	c.state = Completed{Final: final}
}

// applyDelta folds one progressive delta into the streaming state, dropping
// deltas from superseded requests.
func (c *Consumer) applyDelta(gen uint64, delta FieldValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}

	partial := c.partialLocked()
	partial.Text += delta.Text
	partial.QnA = append(partial.QnA, delta.QnA...)
	if delta.Toc != nil {
		partial.Toc = delta.Toc
	}
	if delta.Keywords != nil {
		partial.Keywords = delta.Keywords
	}
	c.state = Streaming{Partial: partial}
}

func (c *Consumer) partialLocked() FieldValue {
	switch st := c.state.(type) {
	case Streaming:
		return st.Partial
	case Errored:
		return st.Partial
	}
	return FieldValue{}
}
