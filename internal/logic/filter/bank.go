package filter

// Bank holds one ring per channel. All rings share a single write index that
// advances once per full pass over the channels, so every window covers the
// same ticks.
type Bank struct {
	rings []*Ring
	index int
	ready []bool
}

// NewBank creates a bank of channels rings of the given window size.
// Rings are primed lazily with the first sample each channel receives.
func NewBank(channels, window int) *Bank {
	b := &Bank{
		rings: make([]*Ring, channels),
		ready: make([]bool, channels),
	}
	for i := range b.rings {
		b.rings[i] = NewRing(window, 0)
	}
	return b
}

// Prime fills the ring of channel ch with copies of v.
func (b *Bank) Prime(ch int, v int64) {
	b.rings[ch].Prime(v)
	b.ready[ch] = true
}

// Update stores raw in the current slot of channel ch and returns the
// filtered value. An unprimed channel is primed with raw first.
func (b *Bank) Update(ch int, raw int64) int64 {
	if !b.ready[ch] {
		b.Prime(ch, raw)
	}
	r := b.rings[ch]
	r.Replace(b.index, raw)
	return r.Mean()
}

// Value returns the current filtered value of channel ch.
func (b *Bank) Value(ch int) int64 {
	return b.rings[ch].Mean()
}

// Advance moves the shared write index to the next slot.
func (b *Bank) Advance() {
	b.index++
	if b.index == b.rings[0].Len() {
		b.index = 0
	}
}
