// ABOUTME: Sliding-window aggregator for raw PCM chunks
// ABOUTME: Queues chunks in arrival order and emits slide-sized windows once a full window is buffered
package window

import (
	"context"
	"fmt"
)

const (
	// DefaultWindowSize is the number of chunks buffered before a window is emitted
	DefaultWindowSize = 200
	// DefaultSlideSize is the number of chunks consumed per emitted window
	DefaultSlideSize = 100
)

// Aggregator turns a stream of chunks into windows.
//
// Every chunk is appended to a pending queue and counted. When the counter
// reaches windowSize, slideSize chunks are taken from the head of the queue,
// concatenated and emitted, and the counter is decremented by the number of
// chunks taken. The remaining windowSize-slideSize chunks stay queued and
// lead the next window.
//
// An Aggregator is not safe for concurrent use; Run owns it for its lifetime.
type Aggregator struct {
	windowSize int
	slideSize  int

	pending [][]byte
	counter int
}

// New creates an aggregator. slideSize larger than windowSize is accepted:
// the head removal then takes whatever is queued.
func New(windowSize, slideSize int) (*Aggregator, error) {
	if windowSize < 1 || slideSize < 1 {
		return nil, fmt.Errorf("window size and slide size must be positive, got %d/%d", windowSize, slideSize)
	}
	return &Aggregator{
		windowSize: windowSize,
		slideSize:  slideSize,
		pending:    make([][]byte, 0, windowSize),
	}, nil
}

// Push appends a chunk and returns a window when one is due.
func (a *Aggregator) Push(chunk []byte) ([]byte, bool) {
	a.pending = append(a.pending, chunk)
	a.counter++

	if a.counter < a.windowSize {
		return nil, false
	}

	n := a.slideSize
	if n > len(a.pending) {
		n = len(a.pending)
	}

	size := 0
	for _, c := range a.pending[:n] {
		size += len(c)
	}
	window := make([]byte, 0, size)
	for i := 0; i < n; i++ {
		window = append(window, a.pending[i]...)
		a.pending[i] = nil
	}
	a.pending = a.pending[n:]
	a.counter -= n

	return window, true
}

// Pending returns the number of queued chunks.
func (a *Aggregator) Pending() int {
	return len(a.pending)
}

// Counter returns the number of chunks received since the last window, less
// the chunks consumed into windows.
func (a *Aggregator) Counter() int {
	return a.counter
}

// Run pushes every chunk from in and sends due windows to out, blocking when
// out is full. It returns nil when in is closed, without emitting a partial
// window, and ctx.Err() when ctx is cancelled. out is closed on return.
func (a *Aggregator) Run(ctx context.Context, in <-chan []byte, out chan<- []byte) error {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-in:
			if !ok {
				return nil
			}
			window, due := a.Push(chunk)
			if !due {
				continue
			}
			select {
			case out <- window:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
