// Package pubsub implements the per-invoice broadcast bus (component F):
// every subscriber to an invoice gets its own bounded buffer, the scanner
// never blocks delivering to a slow one, and a lagging subscriber silently
// drops its oldest buffered update rather than stalling the publisher.
package pubsub

import (
	"sync"
	"time"

	"github.com/xmrgateway/xmrgateway/invoices"
)

// DefaultBufferSize is used by New when the caller doesn't care to tune it.
const DefaultBufferSize = 16

// Bus holds one broadcast topic per live invoice. It is safe for
// concurrent use; the scanner is expected to be its only publisher, with
// any number of concurrent subscribers and facade queries.
type Bus struct {
	bufferSize int

	mu     sync.Mutex
	topics map[invoices.ID]*topic
}

// New returns an empty Bus whose subscriber channels are each buffered to
// bufferSize entries.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		bufferSize: bufferSize,
		topics:     make(map[invoices.ID]*topic),
	}
}

// CreateTopic opens a topic for id, so that Subscribe can succeed for it.
// The Facade calls this when an invoice is created, before the topic has
// ever been published to.
func (b *Bus) CreateTopic(id invoices.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.topics[id]; ok {
		return
	}
	b.topics[id] = newTopic()
}

// Subscribe returns a new Subscriber to id's topic, or ok=false if no topic
// is open for id (the invoice doesn't exist, or has already been removed).
func (b *Bus) Subscribe(id invoices.ID) (sub *Subscriber, ok bool) {
	b.mu.Lock()
	t, ok := b.topics[id]
	b.mu.Unlock()

	if !ok {
		return nil, false
	}
	return t.subscribe(b.bufferSize), true
}

// Publish delivers inv to every current subscriber of its topic. It never
// blocks: a subscriber whose buffer is full has its oldest entry dropped to
// make room. Publish is a no-op if no topic is open for the invoice (it may
// have raced with Close).
func (b *Bus) Publish(id invoices.ID, inv *invoices.Invoice) {
	b.mu.Lock()
	t, ok := b.topics[id]
	b.mu.Unlock()

	if !ok {
		return
	}
	t.publish(inv)
}

// Close closes every subscriber channel on id's topic and removes the
// topic, so that a later Subscribe for the same id fails until CreateTopic
// is called again. The Facade calls this when an invoice is removed.
func (b *Bus) Close(id invoices.ID) {
	b.mu.Lock()
	t, ok := b.topics[id]
	delete(b.topics, id)
	b.mu.Unlock()

	if ok {
		t.closeAll()
	}
}

// Subscriber is one consumer's view onto an invoice's update stream.
type Subscriber struct {
	ch          chan *invoices.Invoice
	unsubscribe func()
}

// Recv performs a non-blocking poll: it returns immediately. inv is nil and
// closed is false if no update is currently buffered; closed is true if
// the topic has been closed (the invoice was removed) and no further
// updates will ever arrive.
func (s *Subscriber) Recv() (inv *invoices.Invoice, closed bool) {
	select {
	case inv, open := <-s.ch:
		if !open {
			return nil, true
		}
		return inv, false
	default:
		return nil, false
	}
}

// RecvTimeout waits up to d for an update, with the same return semantics
// as Recv.
func (s *Subscriber) RecvTimeout(d time.Duration) (inv *invoices.Invoice, closed bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case inv, open := <-s.ch:
		if !open {
			return nil, true
		}
		return inv, false
	case <-timer.C:
		return nil, false
	}
}

// BlockingRecv waits indefinitely for the next update. It only returns
// inv=nil, closed=true once the topic is closed and drained.
func (s *Subscriber) BlockingRecv() (inv *invoices.Invoice, closed bool) {
	v, open := <-s.ch
	if !open {
		return nil, true
	}
	return v, false
}

// Unsubscribe releases this subscriber's slot in its topic. Further Recv
// calls will see the channel as closed. Callers that no longer intend to
// read updates should call this so the topic doesn't keep delivering
// (and dropping) updates into a channel nobody drains.
func (s *Subscriber) Unsubscribe() {
	s.unsubscribe()
}
