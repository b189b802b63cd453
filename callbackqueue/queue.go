// Package callbackqueue implements the Callback Queue (component G): a
// bounded FIFO of pending HTTP callback deliveries, retried with
// exponential backoff, that applies backpressure to invoice creation once
// full.
package callbackqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrStopped is returned by Enqueue once the queue has been stopped.
var ErrStopped = errors.New("callbackqueue: queue is stopped")

// ErrFull is returned by TryEnqueue when the queue has no free capacity.
var ErrFull = errors.New("callbackqueue: queue is full")

// item is one pending or in-flight callback delivery.
type item struct {
	url     string
	payload interface{}
	attempt uint32
}

// Queue is a bounded FIFO of callback deliveries, drained by a fixed pool
// of worker goroutines that POST each item's payload as JSON and retry
// failures per Policy.
type Queue struct {
	policy  Policy
	client  *http.Client
	limiter *rate.Limiter

	pending chan item

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	stopped chan struct{}
	once    sync.Once
}

// Config configures a new Queue.
type Config struct {
	// QueueSize bounds how many items may be buffered awaiting a worker
	// at once; items waiting in a retry timer are not counted. Once this
	// capacity is reached, Enqueue blocks, TryEnqueue returns ErrFull and
	// Full reports true.
	QueueSize int

	// Workers is the number of concurrent delivery goroutines.
	Workers int

	// Policy governs the retry backoff schedule.
	Policy Policy

	// RatePerSecond caps the aggregate rate of outbound HTTP POSTs
	// across all workers, so a burst of retries can't hammer a flaky
	// endpoint (or the local network) harder than a well-behaved client
	// should.
	RatePerSecond float64

	// HTTPClient is used to deliver callbacks. If nil, a client with a
	// 10-second timeout is used.
	HTTPClient *http.Client
}

// New builds a Queue and starts its worker pool. Callers must call Stop
// when done.
func New(cfg Config) *Queue {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	limit := rate.Limit(cfg.RatePerSecond)
	if cfg.RatePerSecond <= 0 {
		limit = rate.Inf
	}

	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		policy:  cfg.Policy,
		client:  cfg.HTTPClient,
		limiter: rate.NewLimiter(limit, cfg.Workers),
		pending: make(chan item, cfg.QueueSize),
		cancel:  cancel,
		stopped: make(chan struct{}),
	}

	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}

	return q
}

// Enqueue adds a callback delivery for url carrying payload to the queue,
// blocking until there is room or ctx is done. This blocking is the
// mechanism by which a full queue applies backpressure to invoice
// creation: the Facade's new-invoice call will itself block here if the
// caller wired it through.
func (q *Queue) Enqueue(ctx context.Context, url string, payload interface{}) error {
	select {
	case <-q.stopped:
		return ErrStopped
	default:
	}

	select {
	case q.pending <- item{url: url, payload: payload, attempt: 1}:
		return nil
	case <-q.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len reports the number of deliveries currently buffered in the queue
// (not counting ones a worker has already dequeued for delivery, or ones
// parked in a detached retry timer). Intended for metrics reporting.
func (q *Queue) Len() int {
	return len(q.pending)
}

// Full reports whether the queue is currently at capacity. The Facade
// consults this before admitting a new invoice that carries a callback URL:
// per spec §4.G, a full queue is intentional backpressure against new work,
// not a reason to silently drop a callback.
func (q *Queue) Full() bool {
	return len(q.pending) == cap(q.pending)
}

// TryEnqueue adds a callback delivery without blocking: it returns ErrFull
// immediately if the queue has no free capacity, rather than waiting for
// room the way Enqueue does. The Scanner Loop uses this when publishing an
// update for an invoice that already exists (and so was already admitted
// past the Full() check at creation time): it must never block a tick
// indefinitely on a saturated queue.
func (q *Queue) TryEnqueue(url string, payload interface{}) error {
	select {
	case <-q.stopped:
		return ErrStopped
	default:
	}

	select {
	case q.pending <- item{url: url, payload: payload, attempt: 1}:
		return nil
	default:
		return ErrFull
	}
}

// Stop signals all workers to finish their current delivery and exit, and
// waits for them to do so. Items still queued or awaiting retry are
// abandoned.
func (q *Queue) Stop() {
	q.once.Do(func() {
		close(q.stopped)
		q.cancel()
	})
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case it := <-q.pending:
			q.deliver(ctx, it)
		case <-ctx.Done():
			return
		}
	}
}

func (q *Queue) deliver(ctx context.Context, it item) {
	if err := q.limiter.Wait(ctx); err != nil {
		return
	}

	body, err := json.Marshal(it.payload)
	if err != nil {
		log.Errorf("callbackqueue: failed to marshal payload for %s: %v", it.url, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.url, bytes.NewReader(body))
	if err != nil {
		log.Errorf("callbackqueue: failed to build request for %s: %v", it.url, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(req)
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return
		}
		err = fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}

	if q.policy.Exhausted(it.attempt) {
		log.Warnf("callbackqueue: dropping callback to %s after %d attempts: %v",
			it.url, it.attempt, err)
		return
	}

	delay := q.policy.ComputeDelay(it.attempt)
	it.attempt++

	// A retry timer runs detached from the worker pool's WaitGroup: per
	// spec, Stop abandons pending/scheduled retries rather than waiting
	// for them, so there is nothing for Stop to join here.
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			select {
			case q.pending <- it:
			case <-ctx.Done():
			}
		case <-ctx.Done():
		}
	}()
}
