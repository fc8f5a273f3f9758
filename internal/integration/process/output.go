package process

import "sync"

// DefaultMaxOutput is the number of bytes retained per stream when no limit is configured.
const DefaultMaxOutput = 1 << 20

// OutputBuffer accumulates process output up to a fixed size.
// Once the limit is exceeded the oldest bytes are evicted.
type OutputBuffer struct {
	mu      sync.Mutex
	data    []byte
	limit   int
	dropped int64
}

// NewOutputBuffer creates a buffer retaining at most limit bytes.
// A limit <= 0 means unbounded.
func NewOutputBuffer(limit int) *OutputBuffer {
	return &OutputBuffer{limit: limit}
}

// Write appends p, evicting old data if needed. It never fails.
func (b *OutputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, p...)

	// Compact lazily so that a stream of small writes does not copy the
	// whole window every time.
	if b.limit > 0 && len(b.data) > 2*b.limit {
		b.compactLocked()
	}
	return len(p), nil
}

func (b *OutputBuffer) compactLocked() {
	excess := len(b.data) - b.limit
	if excess <= 0 {
		return
	}
	b.dropped += int64(excess)
	n := copy(b.data, b.data[excess:])
	b.data = b.data[:n]
}

// String returns the retained output.
func (b *OutputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit > 0 && len(b.data) > b.limit {
		b.compactLocked()
	}
	return string(b.data)
}

// Len returns the number of retained bytes.
func (b *OutputBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit > 0 && len(b.data) > b.limit {
		return b.limit
	}
	return len(b.data)
}

// Dropped returns how many bytes have been evicted so far.
func (b *OutputBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit > 0 && len(b.data) > b.limit {
		return b.dropped + int64(len(b.data)-b.limit)
	}
	return b.dropped
}

// Reset discards all retained output.
func (b *OutputBuffer) Reset() {
	b.mu.Lock()
	b.data = b.data[:0]
	b.dropped = 0
	b.mu.Unlock()
}
