// internal/vad/buffer.go
package vad

import "sync"

// Buffer is a fixed-capacity ring of raw samples. Reading from the write
// cursor forward and wrapping around yields the last Cap() samples in the
// order they were written.
//
// Write and At are meant for a single producer. Only Write locks, and only
// against Snapshot, which may be called from any goroutine and copies under a
// read lock so it never observes a torn write.
type Buffer struct {
	mu   sync.RWMutex
	data []float32
	idx  int
}

// NewBuffer allocates a zeroed ring of the given capacity.
func NewBuffer(capacity int) (*Buffer, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &Buffer{data: make([]float32, capacity)}, nil
}

// Write stores x at the cursor, advances the cursor and returns the slot
// that was written.
func (b *Buffer) Write(x float32) int {
	b.mu.Lock()
	slot := b.idx
	b.data[slot] = x
	b.idx++
	if b.idx == len(b.data) {
		b.idx = 0
	}
	b.mu.Unlock()
	return slot
}

// At returns the sample stored in slot i modulo capacity. Negative offsets
// wrap, so At(cur - lag) looks lag samples into the past.
//
// At takes no lock and must only be called from the producer goroutine,
// the same one that calls Write.
func (b *Buffer) At(i int) float32 {
	n := len(b.data)
	i %= n
	if i < 0 {
		i += n
	}
	return b.data[i]
}

// Snapshot returns a copy of the buffer in chronological order.
func (b *Buffer) Snapshot() []float32 {
	return b.SnapshotInto(make([]float32, len(b.data)))
}

// SnapshotInto fills dst (which must hold Cap() samples) in chronological
// order and returns it.
func (b *Buffer) SnapshotInto(dst []float32) []float32 {
	if len(dst) != len(b.data) {
		panic("vad: snapshot destination has wrong length")
	}
	b.mu.RLock()
	n := copy(dst, b.data[b.idx:])
	copy(dst[n:], b.data[:b.idx])
	b.mu.RUnlock()
	return dst
}

// Cursor returns the slot the next Write will use.
func (b *Buffer) Cursor() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.idx
}

// Cap returns the buffer capacity in samples.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Reset zeroes the contents and rewinds the cursor.
func (b *Buffer) Reset() {
	b.mu.Lock()
	clear(b.data)
	b.idx = 0
	b.mu.Unlock()
}
