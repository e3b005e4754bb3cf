// Package stream adapts event transports to a pull based Source. A Source
// ends with io.EOF when the transport finished normally; any other error
// means the transport failed.
package stream

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/JetBrains/intellij-plugins-sub025/internal/sample"
)

// ErrClosed is returned when sending to a closed Chan.
var ErrClosed = errors.New("stream: send on closed stream")

// Source delivers events one at a time, in order.
type Source interface {
	Next(ctx context.Context) (sample.Event, error)
}

// Chan is an in-process Source fed by a producer goroutine.
type Chan struct {
	events chan sample.Event
	done   chan struct{}
	once   sync.Once
	err    error
}

func NewChan(buffer int) *Chan {
	return &Chan{
		events: make(chan sample.Event, buffer),
		done:   make(chan struct{}),
	}
}

// Send blocks until the event is queued, the context is done or the stream
// is closed.
func (c *Chan) Send(ctx context.Context, e sample.Event) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.events <- e:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the stream normally. Queued events are still delivered.
func (c *Chan) Close() {
	c.finish(io.EOF)
}

// Fail ends the stream with err. Queued events are still delivered.
func (c *Chan) Fail(err error) {
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	c.finish(err)
}

func (c *Chan) finish(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

func (c *Chan) Next(ctx context.Context) (sample.Event, error) {
	select {
	case e := <-c.events:
		return e, nil
	default:
	}
	select {
	case e := <-c.events:
		return e, nil
	case <-c.done:
		select {
		case e := <-c.events:
			return e, nil
		default:
			return sample.Event{}, c.err
		}
	case <-ctx.Done():
		return sample.Event{}, ctx.Err()
	}
}

// Slice is a Source replaying a fixed list of events.
type Slice struct {
	events []sample.Event
}

func NewSlice(events []sample.Event) *Slice {
	return &Slice{events: events}
}

func (s *Slice) Next(ctx context.Context) (sample.Event, error) {
	if err := ctx.Err(); err != nil {
		return sample.Event{}, err
	}
	if len(s.events) == 0 {
		return sample.Event{}, io.EOF
	}
	e := s.events[0]
	s.events = s.events[1:]
	return e, nil
}
