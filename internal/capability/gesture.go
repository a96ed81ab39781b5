package capability

import (
	"context"
	"sync"
)

// Gesture is a single-assignment result for an input action whose
// completion is reported asynchronously. The first of Complete, Fail or
// Cancel wins; later calls are ignored.
type Gesture struct {
	once   sync.Once
	done   chan struct{}
	result bool
	err    error
}

// NewGesture returns a pending gesture.
func NewGesture() *Gesture {
	return &Gesture{done: make(chan struct{})}
}

// Complete settles the gesture with the platform's verdict.
// It reports whether this call settled it.
func (g *Gesture) Complete(ok bool) bool {
	return g.settle(ok, nil)
}

// Fail settles the gesture with an error.
func (g *Gesture) Fail(err error) bool {
	return g.settle(false, err)
}

// Cancel settles the gesture with ErrGestureCancelled.
func (g *Gesture) Cancel() bool {
	return g.settle(false, ErrGestureCancelled)
}

// Done is closed once the gesture is settled.
func (g *Gesture) Done() <-chan struct{} {
	return g.done
}

// Await blocks until the gesture settles or ctx ends. When ctx ends first
// the gesture is cancelled and ctx.Err() returned.
func (g *Gesture) Await(ctx context.Context) (bool, error) {
	select {
	case <-g.done:
		return g.result, g.err
	case <-ctx.Done():
		g.Cancel()
		return false, ctx.Err()
	}
}

func (g *Gesture) settle(ok bool, err error) bool {
	settled := false
	g.once.Do(func() {
		g.result = ok
		g.err = err
		close(g.done)
		settled = true
	})
	return settled
}
