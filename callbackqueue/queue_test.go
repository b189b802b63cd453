package callbackqueue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyBackoffGrowsThenCaps(t *testing.T) {
	p := DefaultPolicy()

	require.Equal(t, time.Second, p.ComputeDelay(1))
	require.Equal(t, time.Duration(1.5*float64(time.Second)), p.ComputeDelay(2))
	require.Equal(t, p.MaxDelay, p.ComputeDelay(1000))
}

func TestPolicyExhausted(t *testing.T) {
	p := Policy{MaxRetries: 3}
	require.False(t, p.Exhausted(3))
	require.True(t, p.Exhausted(4))
}

func TestQueueDeliversSuccessfulCallback(t *testing.T) {
	var mu sync.Mutex
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q := New(Config{QueueSize: 10, Workers: 2, Policy: DefaultPolicy()})
	defer q.Stop()

	err := q.Enqueue(context.Background(), srv.URL, map[string]interface{}{"id": "abc"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotBody != nil && gotBody["id"] == "abc"
	}, time.Second, 10*time.Millisecond)
}

func TestQueueRetriesOnFailureThenSucceeds(t *testing.T) {
	var attempts int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q := New(Config{
		QueueSize: 10,
		Workers:   1,
		Policy: Policy{
			MaxRetries:    10,
			BaseDelay:     5 * time.Millisecond,
			BackoffFactor: 1.0,
			MaxDelay:      20 * time.Millisecond,
		},
	})
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), srv.URL, map[string]string{"x": "y"}))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&attempts) >= 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueueDropsAfterMaxRetries(t *testing.T) {
	var attempts int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	q := New(Config{
		QueueSize: 10,
		Workers:   1,
		Policy: Policy{
			MaxRetries:    2,
			BaseDelay:     2 * time.Millisecond,
			BackoffFactor: 1.0,
			MaxDelay:      5 * time.Millisecond,
		},
	})
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), srv.URL, map[string]string{}))

	// 1 initial attempt + 2 retries = 3 total, then it must stop growing.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&attempts) == 3
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestEnqueueAfterStopFails(t *testing.T) {
	q := New(Config{QueueSize: 1, Workers: 1, Policy: DefaultPolicy()})
	q.Stop()

	err := q.Enqueue(context.Background(), "http://example.invalid", nil)
	require.ErrorIs(t, err, ErrStopped)
}

func TestEnqueueBlocksWhenFull(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q := New(Config{QueueSize: 1, Workers: 1, Policy: DefaultPolicy()})
	defer func() {
		close(block)
		q.Stop()
	}()

	// First item occupies the sole worker (blocked in the handler);
	// second fills the one-slot queue.
	require.NoError(t, q.Enqueue(context.Background(), srv.URL, 1))
	require.NoError(t, q.Enqueue(context.Background(), srv.URL, 2))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, srv.URL, 3)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
