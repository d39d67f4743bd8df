// Package inbox is the hand-off between the MQTT callback goroutines and the
// refresh loop: an unbounded FIFO with non-blocking pop.
package inbox

import "sync"

// Message is one decoded transport message.
type Message struct {
	Topic   string
	Payload map[string]any
}

// Stats counts inbox traffic since creation.
type Stats struct {
	Pushed   uint64 // messages queued
	Rejected uint64 // payloads dropped before queueing
	Pending  int    // messages waiting to be drained
}

// Inbox is safe for many producers and a single consumer.
type Inbox struct {
	mu       sync.Mutex
	items    []Message
	pushed   uint64
	rejected uint64
}

// New creates an empty inbox.
func New() *Inbox {
	return &Inbox{}
}

// Push queues a message. It never blocks on the consumer.
func (b *Inbox) Push(m Message) {
	b.mu.Lock()
	b.items = append(b.items, m)
	b.pushed++
	b.mu.Unlock()
}

// Reject records a payload that was dropped before reaching the queue.
func (b *Inbox) Reject() {
	b.mu.Lock()
	b.rejected++
	b.mu.Unlock()
}

// Pop removes the oldest message. ok is false when the inbox is empty.
func (b *Inbox) Pop() (m Message, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return Message{}, false
	}
	m = b.items[0]
	b.items[0] = Message{}
	b.items = b.items[1:]
	if len(b.items) == 0 {
		b.items = nil
	}
	return m, true
}

// Len returns the number of pending messages.
func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Empty reports whether no message is pending.
func (b *Inbox) Empty() bool {
	return b.Len() == 0
}

// Stats returns traffic counters.
func (b *Inbox) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Pushed: b.pushed, Rejected: b.rejected, Pending: len(b.items)}
}
