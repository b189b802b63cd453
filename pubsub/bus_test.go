package pubsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xmrgateway/xmrgateway/invoices"
)

func TestSubscribeFailsWithoutTopic(t *testing.T) {
	b := New(4)
	_, ok := b.Subscribe(invoices.ID{CreationHeight: 1})
	require.False(t, ok)
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New(4)
	id := invoices.ID{CreationHeight: 1}
	b.CreateTopic(id)

	sub, ok := b.Subscribe(id)
	require.True(t, ok)

	inv := &invoices.Invoice{ID: id, AmountRequested: 100}
	b.Publish(id, inv)

	got, closed := sub.Recv()
	require.False(t, closed)
	require.Same(t, inv, got)
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := New(4)
	id := invoices.ID{CreationHeight: 2}
	b.CreateTopic(id)

	sub1, _ := b.Subscribe(id)
	sub2, _ := b.Subscribe(id)

	inv := &invoices.Invoice{ID: id}
	b.Publish(id, inv)

	got1, closed1 := sub1.Recv()
	got2, closed2 := sub2.Recv()
	require.False(t, closed1)
	require.False(t, closed2)
	require.Same(t, inv, got1)
	require.Same(t, inv, got2)
}

func TestCloseClosesSubscriberChannel(t *testing.T) {
	b := New(4)
	id := invoices.ID{CreationHeight: 3}
	b.CreateTopic(id)

	sub, _ := b.Subscribe(id)
	b.Close(id)

	_, closed := sub.BlockingRecv()
	require.True(t, closed)
}

func TestSubscribeAfterCloseFails(t *testing.T) {
	b := New(4)
	id := invoices.ID{CreationHeight: 4}
	b.CreateTopic(id)
	b.Close(id)

	_, ok := b.Subscribe(id)
	require.False(t, ok)
}

func TestLaggingSubscriberDropsOldestUpdate(t *testing.T) {
	b := New(2) // small buffer to force a drop
	id := invoices.ID{CreationHeight: 5}
	b.CreateTopic(id)

	sub, _ := b.Subscribe(id)

	first := &invoices.Invoice{ID: id, CurrentHeight: 1}
	second := &invoices.Invoice{ID: id, CurrentHeight: 2}
	third := &invoices.Invoice{ID: id, CurrentHeight: 3}

	b.Publish(id, first)
	b.Publish(id, second)
	b.Publish(id, third) // buffer full at 2; this should drop `first`

	got1, _ := sub.Recv()
	got2, _ := sub.Recv()

	require.Equal(t, uint64(2), got1.CurrentHeight)
	require.Equal(t, uint64(3), got2.CurrentHeight)

	_, closed := sub.Recv()
	require.False(t, closed)
}

func TestPublishNeverBlocksWithoutAReader(t *testing.T) {
	b := New(1)
	id := invoices.ID{CreationHeight: 6}
	b.CreateTopic(id)
	b.Subscribe(id)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(id, &invoices.Invoice{ID: id, CurrentHeight: uint64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with no reader draining the subscriber")
	}
}

func TestRecvTimeoutReturnsEmptyWhenNoUpdate(t *testing.T) {
	b := New(4)
	id := invoices.ID{CreationHeight: 7}
	b.CreateTopic(id)

	sub, _ := b.Subscribe(id)

	inv, closed := sub.RecvTimeout(20 * time.Millisecond)
	require.Nil(t, inv)
	require.False(t, closed)
}

func TestUnsubscribeClosesOnlyThatSubscriber(t *testing.T) {
	b := New(4)
	id := invoices.ID{CreationHeight: 8}
	b.CreateTopic(id)

	sub1, _ := b.Subscribe(id)
	sub2, _ := b.Subscribe(id)

	sub1.Unsubscribe()

	_, closed1 := sub1.BlockingRecv()
	require.True(t, closed1)

	inv := &invoices.Invoice{ID: id}
	b.Publish(id, inv)

	got2, closed2 := sub2.Recv()
	require.False(t, closed2)
	require.Same(t, inv, got2)
}
