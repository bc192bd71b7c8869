package mock

import (
	"context"
	"sync"

	"margin_maker/internal/core"
)

// MockBookStream is a scriptable core.IBookStream. Tests push messages with
// Push and close the channel with Finish to simulate a dropped feed.
type MockBookStream struct {
	mu           sync.Mutex
	ch           chan core.BookMessage
	unsubscribed bool
	closed       bool
}

func NewMockBookStream(buffer int) *MockBookStream {
	return &MockBookStream{ch: make(chan core.BookMessage, buffer)}
}

// Push delivers a message to the consumer.
func (s *MockBookStream) Push(msg core.BookMessage) {
	s.ch <- msg
}

// Finish closes the message channel, as a dropped connection would.
func (s *MockBookStream) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		close(s.ch)
		s.closed = true
	}
}

func (s *MockBookStream) Messages() <-chan core.BookMessage { return s.ch }

func (s *MockBookStream) Unsubscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribed = true
	return nil
}

func (s *MockBookStream) Close() {
	s.Finish()
}

// Unsubscribed reports whether Unsubscribe was called.
func (s *MockBookStream) Unsubscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribed
}

// Closed reports whether the stream was torn down.
func (s *MockBookStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// MockStreamDialer hands out pre-seeded streams, one per OpenBookStream call.
type MockStreamDialer struct {
	mu      sync.Mutex
	streams []*MockBookStream
	opened  int
	openErr error
}

func NewMockStreamDialer(streams ...*MockBookStream) *MockStreamDialer {
	return &MockStreamDialer{streams: streams}
}

func (d *MockStreamDialer) SetOpenError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = err
}

func (d *MockStreamDialer) OpenBookStream(ctx context.Context, pair string) (core.IBookStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	if d.opened >= len(d.streams) {
		// Idle stream; tests that run past their script see no more events.
		s := NewMockBookStream(1)
		d.opened++
		return s, nil
	}
	s := d.streams[d.opened]
	d.opened++
	return s, nil
}

// OpenCount returns how many streams were opened.
func (d *MockStreamDialer) OpenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}
