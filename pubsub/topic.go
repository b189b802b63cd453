package pubsub

import (
	"sync"

	"github.com/xmrgateway/xmrgateway/invoices"
)

// topic is the broadcast channel set for a single invoice: every current
// subscriber gets its own buffered channel, fed independently.
type topic struct {
	mu   sync.Mutex
	subs map[*Subscriber]chan *invoices.Invoice
}

func newTopic() *topic {
	return &topic{subs: make(map[*Subscriber]chan *invoices.Invoice)}
}

func (t *topic) subscribe(bufferSize int) *Subscriber {
	ch := make(chan *invoices.Invoice, bufferSize)
	sub := &Subscriber{ch: ch}
	sub.unsubscribe = func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if c, ok := t.subs[sub]; ok {
			close(c)
			delete(t.subs, sub)
		}
	}

	t.mu.Lock()
	t.subs[sub] = ch
	t.mu.Unlock()

	return sub
}

// publish delivers inv to every subscriber's channel, dropping that
// subscriber's oldest buffered update first if its channel is full. This
// is the only place backpressure from a slow subscriber could otherwise
// reach the scanner, so it must never block.
func (t *topic) publish(inv *invoices.Invoice) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, ch := range t.subs {
		select {
		case ch <- inv:
		default:
			// Buffer is full: drop the oldest entry, then retry the
			// send. Another goroutine can't be reading from ch
			// concurrently with the drop because t.mu serializes all
			// publishes and unsubscribes against this channel's
			// lifetime, but a subscriber reading directly from Recv
			// races this drain harmlessly — at worst it reads the
			// value we were about to drop instead of dropping it,
			// which is equally valid eventually-consistent behavior.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- inv:
			default:
			}
		}
	}
}

func (t *topic) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for sub, ch := range t.subs {
		close(ch)
		delete(t.subs, sub)
	}
}
