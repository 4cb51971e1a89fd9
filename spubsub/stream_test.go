package spubsub_test

import (
	"context"
	"testing"

	"github.com/gordian-engine/swift/internal/stest"
	"github.com/gordian-engine/swift/spubsub"
	"github.com/stretchr/testify/require"
)

func TestStream_Publish_panicsOnCalledTwice(t *testing.T) {
	t.Parallel()

	s := spubsub.NewStream[int]()
	s.Publish(1)

	require.Panics(t, func() {
		s.Publish(1)
	})
}

func TestStream_independentReaders(t *testing.T) {
	t.Parallel()

	head := spubsub.NewStream[int]()
	a, b := head, head

	w := head
	w = w.Publish(1)
	w = w.Publish(2)

	stest.IsSending(t, a.Ready)
	require.Equal(t, 1, a.Val)
	a = a.Next
	stest.IsSending(t, a.Ready)
	require.Equal(t, 2, a.Val)
	a = a.Next
	stest.NotSending(t, a.Ready)

	// The second reader sees the same sequence, independently.
	require.Equal(t, 1, b.Val)
	require.Equal(t, 2, b.Next.Val)

	w.Publish(3)
	stest.IsSending(t, a.Ready)
	require.Equal(t, 3, a.Val)
}

func TestStream_Wait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := spubsub.NewStream[string]()

	got := make(chan string, 1)
	go func() {
		v, _, err := s.Wait(ctx)
		if err == nil {
			got <- v
		}
	}()

	s.Publish("hello")
	require.Equal(t, "hello", stest.ReceiveSoon(t, got))
}

func TestStream_Wait_canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := spubsub.NewStream[string]()
	_, next, err := s.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Same(t, s, next)
}
