// Package rebuild runs derived-view rebuilds so that a newer rebuild of the
// same view supersedes any older one still in flight.
package rebuild

import (
	"context"
	"fmt"
	"sync"

	"github.com/JetBrains/intellij-plugins-sub025/internal/errorutil"
)

// Coordinator serializes the publication of rebuilt values of type T. The
// zero value is ready to use.
type Coordinator[T any] struct {
	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc

	latest    T
	hasLatest bool
}

// Run cancels any in-flight build and runs build. The result is published
// and returned only if no newer Run or Invalidate happened meanwhile,
// otherwise an error wrapping errorutil.ErrSuperseded is returned.
func (c *Coordinator[T]) Run(ctx context.Context, build func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.generation++
	generation := c.generation
	c.cancel = cancel
	c.mu.Unlock()

	v, err := build(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	if generation != c.generation {
		return zero, fmt.Errorf("rebuild: %w: generation %d", errorutil.ErrSuperseded, generation)
	}
	c.cancel = nil
	if err != nil {
		return zero, err
	}
	c.latest = v
	c.hasLatest = true
	return v, nil
}

// Latest returns the last published value.
func (c *Coordinator[T]) Latest() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest, c.hasLatest
}

// Invalidate drops the published value and supersedes the in-flight build.
func (c *Coordinator[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.generation++
	var zero T
	c.latest = zero
	c.hasLatest = false
}

// Generation returns the number of Run and Invalidate calls so far.
func (c *Coordinator[T]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}
