// Package filter smooths noisy potentiometer readings with fixed-window
// running averages.
package filter

import (
	"fmt"

	"github.com/cjeanneret/v2mini/internal/debug"
)

// Ring is a fixed-size circular buffer of samples that keeps a running sum.
// The slot to overwrite is chosen by the caller so several rings can share
// one write index.
type Ring struct {
	samples []int64
	sum     int64
}

// NewRing returns a ring of size n primed with n copies of v.
func NewRing(n int, v int64) *Ring {
	if n <= 0 {
		panic(fmt.Sprintf("filter: ring size must be positive, got %d", n))
	}
	r := &Ring{samples: make([]int64, n)}
	r.Prime(v)
	return r
}

// Prime fills every slot with v.
func (r *Ring) Prime(v int64) {
	for i := range r.samples {
		r.samples[i] = v
	}
	r.sum = v * int64(len(r.samples))
}

// Replace evicts the sample in slot i, stores v there and returns the new sum.
func (r *Ring) Replace(i int, v int64) int64 {
	r.sum -= r.samples[i]
	r.samples[i] = v
	r.sum += v
	return r.sum
}

// Len returns the window size.
func (r *Ring) Len() int {
	return len(r.samples)
}

// Sum returns the running sum of all slots. With tracing enabled the sum is
// verified against the slots first; a drift is logged and corrected.
func (r *Ring) Sum() int64 {
	if debug.IsEnabled(debug.LevelTrace) {
		if err := r.Check(); err != nil {
			debug.Error(err)
			r.sum = r.total()
		}
	}
	return r.sum
}

// Mean returns the truncated average of the window.
func (r *Ring) Mean() int64 {
	return r.Sum() / int64(len(r.samples))
}

// Check recomputes the sum from the slots and reports a mismatch with the
// running sum.
func (r *Ring) Check() error {
	if total := r.total(); total != r.sum {
		return fmt.Errorf("filter: running sum %d does not match samples total %d", r.sum, total)
	}
	return nil
}

func (r *Ring) total() int64 {
	var t int64
	for _, s := range r.samples {
		t += s
	}
	return t
}
