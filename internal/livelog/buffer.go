// Package livelog implements the real-time log channel: an ephemeral
// reconnect buffer plus an organization-scoped subscriber hub.
package livelog

import (
	"strings"
	"sync"
	"time"
)

// Buffer is the ephemeral, TTL-bound store of in-progress output, keyed by
// task ID. It exists only while an execution is non-terminal; losing it
// degrades reconnect recovery but never correctness, since terminal reads
// fall back to the durable record.
type Buffer struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*bufferEntry
	now     func() time.Time
}

type bufferEntry struct {
	data      strings.Builder
	expiresAt time.Time
}

// NewBuffer creates a buffer whose entries expire ttl after their last
// append.
func NewBuffer(ttl time.Duration) *Buffer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Buffer{
		ttl:     ttl,
		entries: make(map[string]*bufferEntry),
		now:     time.Now,
	}
}

// Append adds a chunk to the task's buffer and refreshes its TTL.
func (b *Buffer) Append(taskID, chunk string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[taskID]
	if !ok || b.now().After(entry.expiresAt) {
		entry = &bufferEntry{}
		b.entries[taskID] = entry
	}
	entry.data.WriteString(chunk)
	entry.expiresAt = b.now().Add(b.ttl)
}

// Read returns the buffered content for the task, or false when nothing
// (unexpired) is buffered. Expired entries are evicted on access.
func (b *Buffer) Read(taskID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[taskID]
	if !ok {
		return "", false
	}
	if b.now().After(entry.expiresAt) {
		delete(b.entries, taskID)
		return "", false
	}
	return entry.data.String(), true
}

// Drop deletes the task's buffer. Called on terminal transition.
func (b *Buffer) Drop(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, taskID)
}

// Len returns the number of live entries, expired ones included until
// their next access.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
