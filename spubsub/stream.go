// Package spubsub contains a single-publisher, many-subscriber stream.
//
// A tree shared by several connections publishes each newly verified chunk
// to a [Stream], so every connection can announce it to its own peer
// at its own pace.
package spubsub

import "context"

// Stream is one node of a linked list of published values.
// There is a single writer, and any number of readers
// each holding their own position in the list.
//
// Values behind every reader's position are garbage collected,
// so a reader that stops consuming must drop its reference.
type Stream[T any] struct {
	// Closed once Val and Next are set.
	Ready chan struct{}

	Next *Stream[T]
	Val  T
}

// NewStream returns an unpublished stream head.
func NewStream[T any]() *Stream[T] {
	return &Stream[T]{
		Ready: make(chan struct{}),
	}
}

// Publish sets s's value, links a new unpublished node,
// and then closes s.Ready.
// It returns the new node, where the next value is to be published.
//
// Publish panics if s has already been published.
func (s *Stream[T]) Publish(v T) *Stream[T] {
	s.Val = v
	s.Next = NewStream[T]()
	close(s.Ready)
	return s.Next
}

// Wait blocks until s is published or ctx is done.
// On success it returns the published value and the following node.
func (s *Stream[T]) Wait(ctx context.Context) (T, *Stream[T], error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, s, context.Cause(ctx)
	case <-s.Ready:
		return s.Val, s.Next, nil
	}
}
