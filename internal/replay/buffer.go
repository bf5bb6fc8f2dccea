package replay

import (
	"errors"
	"fmt"
	"math/rand"

	"DeepTrader/internal/model"
)

// ErrInsufficientData means the buffer holds fewer transitions than the
// requested sample size. Callers wait for warm-up instead of treating this
// as fatal.
var ErrInsufficientData = errors.New("replay buffer holds fewer transitions than requested")

// Transition is one environment step. Once pushed it belongs to the buffer
// and is never mutated.
type Transition struct {
	State     []float64
	Action    model.Action
	Reward    float64
	NextState []float64
	Done      bool
}

// Buffer is a fixed-capacity ring of transitions with overwrite-oldest
// eviction and uniform random sampling. Not safe for concurrent use; the
// training loop is single-threaded.
type Buffer struct {
	buf  []Transition
	head int // next write position
	n    int
	rng  *rand.Rand
}

// NewBuffer creates an empty buffer. Capacity must be positive. The seed
// fixes the sampling stream so training runs are reproducible.
func NewBuffer(capacity int, seed int64) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("replay capacity must be positive, got %d", capacity)
	}
	return &Buffer{
		buf: make([]Transition, capacity),
		rng: rand.New(rand.NewSource(seed)),
	}, nil
}

// Push stores a transition, overwriting the oldest entry once the buffer
// is full. The state vectors are copied so later mutation of the caller's
// slices cannot reach stored transitions.
func (b *Buffer) Push(t Transition) {
	t.State = append([]float64(nil), t.State...)
	t.NextState = append([]float64(nil), t.NextState...)
	b.buf[b.head] = t
	b.head = (b.head + 1) % len(b.buf)
	if b.n < len(b.buf) {
		b.n++
	}
}

// Sample draws k distinct transitions uniformly at random. The returned
// slice is in unspecified order and shares state vectors with the buffer;
// callers must treat them as read-only.
func (b *Buffer) Sample(k int) ([]Transition, error) {
	if k <= 0 {
		return nil, fmt.Errorf("sample size must be positive, got %d", k)
	}
	if b.n < k {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrInsufficientData, b.n, k)
	}
	out := make([]Transition, k)
	for i, idx := range b.rng.Perm(b.n)[:k] {
		out[i] = b.buf[idx]
	}
	return out, nil
}

// Len reports the number of stored transitions.
func (b *Buffer) Len() int {
	return b.n
}

// Cap reports the fixed capacity.
func (b *Buffer) Cap() int {
	return len(b.buf)
}
