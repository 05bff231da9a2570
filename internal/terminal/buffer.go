package terminal

import "sync"

// Buffer is a fixed-size ring holding the most recent shell output.
type Buffer struct {
	mu   sync.RWMutex
	data []byte
	size int
	head int
	full bool
}

func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = 1
	}
	return &Buffer{data: make([]byte, size), size: size}
}

// Write never fails; older bytes are overwritten once the ring is full.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if n >= b.size {
		copy(b.data, p[n-b.size:])
		b.head = 0
		b.full = true
		return n, nil
	}
	for _, c := range p {
		b.data[b.head] = c
		b.head = (b.head + 1) % b.size
		if b.head == 0 {
			b.full = true
		}
	}
	return n, nil
}

// Bytes returns a copy of the buffered output, oldest first.
func (b *Buffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.full {
		out := make([]byte, b.head)
		copy(out, b.data[:b.head])
		return out
	}
	out := make([]byte, 0, b.size)
	out = append(out, b.data[b.head:]...)
	out = append(out, b.data[:b.head]...)
	return out
}
