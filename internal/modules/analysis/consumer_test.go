package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techpress/core/internal/models"
)

func TestConsumerCompletesAfterStreaming(t *testing.T) {
	c := NewConsumer(models.FieldInsight, false, FieldValue{})
	assert.IsType(t, Idle{}, c.State())

	var mid StreamState
	c.StartStreaming(context.Background(), func(_ context.Context, emit func(FieldValue)) (FieldValue, error) {
		emit(FieldValue{Text: "hel"})
		emit(FieldValue{Text: "lo"})
		mid = c.State()
		return FieldValue{Text: "hello"}, nil
	})

	streaming, ok := mid.(Streaming)
	require.True(t, ok)
	assert.Equal(t, "hello", streaming.Partial.Text)

	final, ok := c.State().(Completed)
	require.True(t, ok)
	assert.Equal(t, "hello", final.Final.Text)
}

func TestConsumerAccumulatesRecordDeltas(t *testing.T) {
	c := NewConsumer(models.FieldQnA, false, FieldValue{})

	c.StartStreaming(context.Background(), func(_ context.Context, emit func(FieldValue)) (FieldValue, error) {
		emit(FieldValue{QnA: []models.QnAItem{{Question: "q1", Answer: "a1"}}})
		emit(FieldValue{QnA: []models.QnAItem{{Question: "q2", Answer: "a2"}}})
		st := c.State().(Streaming)
		require.Len(t, st.Partial.QnA, 2)
		return st.Partial, nil
	})

	final := c.State().(Completed)
	assert.Len(t, final.Final.QnA, 2)
}

func TestConsumerNoOpWhenAlreadyCompleted(t *testing.T) {
	existing := FieldValue{Text: "stored"}
	c := NewConsumer(models.FieldSummary, true, existing)

	ran := false
	c.StartStreaming(context.Background(), func(context.Context, func(FieldValue)) (FieldValue, error) {
		ran = true
		return FieldValue{Text: "regenerated"}, nil
	})

	assert.False(t, ran)
	final, ok := c.State().(Completed)
	require.True(t, ok)
	assert.Equal(t, "stored", final.Final.Text)
}

func TestConsumerErrorRetainsPartial(t *testing.T) {
	c := NewConsumer(models.FieldQnA, false, FieldValue{})

	c.StartStreaming(context.Background(), func(_ context.Context, emit func(FieldValue)) (FieldValue, error) {
		emit(FieldValue{QnA: []models.QnAItem{{Question: "q1", Answer: "a1"}}})
		return FieldValue{}, errors.New("rate limited")
	})

	errored, ok := c.State().(Errored)
	require.True(t, ok)
	assert.Equal(t, "rate limited", errored.Message)
	assert.Len(t, errored.Partial.QnA, 1)
}

func TestConsumerStopReturnsToIdle(t *testing.T) {
	c := NewConsumer(models.FieldInsight, false, FieldValue{})

	started := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		c.StartStreaming(context.Background(), func(ctx context.Context, emit func(FieldValue)) (FieldValue, error) {
			emit(FieldValue{Text: "partial"})
			close(started)
			<-ctx.Done()
			return FieldValue{}, ctx.Err()
		})
	}()

	<-started
	c.Stop()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}

	// Cancellation is not an error.
	assert.IsType(t, Idle{}, c.State())
}

func TestConsumerSupersededRunIsIgnored(t *testing.T) {
	c := NewConsumer(models.FieldInsight, false, FieldValue{})

	started := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		c.StartStreaming(context.Background(), func(ctx context.Context, emit func(FieldValue)) (FieldValue, error) {
			emit(FieldValue{Text: "first"})
			close(started)
			<-ctx.Done()
			return FieldValue{Text: "first full"}, errors.New("aborted")
		})
	}()

	<-started
	// Starting a new request cancels the first; its late result must not
	// overwrite the second's.
	c.StartStreaming(context.Background(), func(context.Context, func(FieldValue)) (FieldValue, error) {
		return FieldValue{Text: "second"}, nil
	})
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("first stream did not unwind")
	}

	final, ok := c.State().(Completed)
	require.True(t, ok)
	assert.Equal(t, "second", final.Final.Text)
}
