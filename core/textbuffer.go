package orchestration

import (
	"strings"
	"sync"
)

// textBuffer accumulates partial transcript chunks across one
// conversational turn. Append-only between resets.
type textBuffer struct {
	mu     sync.Mutex
	chunks []string
}

func newTextBuffer() *textBuffer {
	return &textBuffer{}
}

func (b *textBuffer) Append(chunk string) {
	b.mu.Lock()
	b.chunks = append(b.chunks, chunk)
	b.mu.Unlock()
}

func (b *textBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return strings.Join(b.chunks, "")
}

func (b *textBuffer) Reset() {
	b.mu.Lock()
	b.chunks = nil
	b.mu.Unlock()
}

func (b *textBuffer) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, chunk := range b.chunks {
		if strings.TrimSpace(chunk) != "" {
			return false
		}
	}
	return true
}
