package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMultiplexer_Invalid(t *testing.T) {
	_, err := NewMultiplexer[int](0)
	assert.Error(t, err)
}

func TestMultiplexer_Backpressure(t *testing.T) {
	mux, err := NewMultiplexer[int](2)
	require.NoError(t, err)
	mux.AddWriters(1)

	require.NoError(t, mux.Send(context.Background(), 1))
	require.NoError(t, mux.Send(context.Background(), 2))
	assert.Equal(t, 2, mux.Len())

	sent := make(chan error, 1)
	go func() {
		sent <- mux.Send(context.Background(), 3)
	}()
	select {
	case <-sent:
		t.Fatal("send into a full queue did not block")
	case <-time.After(50 * time.Millisecond):
	}

	item, ok := mux.Receive()
	require.True(t, ok)
	assert.Equal(t, 1, item)
	select {
	case err := <-sent:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("blocked send was not resumed")
	}

	mux.WriterDone()
	var rest []int
	for item := range mux.Items() {
		rest = append(rest, item)
	}
	assert.Equal(t, []int{2, 3}, rest)
	assert.NoError(t, mux.Err())
}

func TestMultiplexer_SendCancelled(t *testing.T) {
	mux, err := NewMultiplexer[int](1)
	require.NoError(t, err)
	mux.AddWriters(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, mux.Send(ctx, 1), context.Canceled)
	assert.Equal(t, 0, mux.Len())

	// A blocked sender is released by cancellation.
	require.NoError(t, mux.Send(context.Background(), 1))
	ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, mux.Send(ctx, 2), context.DeadlineExceeded)
	assert.Equal(t, 1, mux.Len())
}

func TestMultiplexer_ClosesAfterLastWriter(t *testing.T) {
	mux, err := NewMultiplexer[int](10)
	require.NoError(t, err)
	mux.AddWriters(3)

	mux.WriterDone()
	mux.WriterDone()
	assert.False(t, mux.Terminal())
	mux.WriterDone()
	assert.True(t, mux.Terminal())

	_, ok := mux.Receive()
	assert.False(t, ok)
	assert.Panics(t, mux.WriterDone)
}

func TestMultiplexer_FirstErrorWins(t *testing.T) {
	mux, err := NewMultiplexer[string](10)
	require.NoError(t, err)
	mux.AddWriters(2)

	first := errors.New("first")
	require.NoError(t, mux.Send(context.Background(), "a"))
	assert.True(t, mux.Fail(first))
	require.NoError(t, mux.Send(context.Background(), "b"))
	assert.False(t, mux.Fail(errors.New("second")))
	assert.False(t, mux.Fail(nil))
	mux.WriterDone()
	mux.WriterDone()

	// Everything buffered before the failure is still delivered.
	var items []string
	for {
		item, ok := mux.Receive()
		if !ok {
			break
		}
		items = append(items, item)
	}
	assert.Equal(t, []string{"a", "b"}, items)
	assert.Same(t, first, mux.Err())
}

func TestMultiplexer_CompleteIsIdempotent(t *testing.T) {
	mux, err := NewMultiplexer[int](1)
	require.NoError(t, err)
	mux.complete()
	mux.complete()
	<-mux.Done()
	assert.Equal(t, 1, mux.Cap())
}
