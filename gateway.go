// Package xmrgateway ties together the Subaddress Allocator, Output
// Scanner, Output-Key Registry, Storage, Pub-Sub Bus, and Callback Queue
// into the Scanner Loop and Gateway Facade described by the governing
// design notes (components E and H). Everything else lives in a leaf
// package; this package is the one place that holds all of it at once.
package xmrgateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xmrgateway/xmrgateway/callbackqueue"
	"github.com/xmrgateway/xmrgateway/internal/httpapi"
	"github.com/xmrgateway/xmrgateway/invoices"
	"github.com/xmrgateway/xmrgateway/moneroutil"
	"github.com/xmrgateway/xmrgateway/monitoring"
	"github.com/xmrgateway/xmrgateway/pubsub"
	"github.com/xmrgateway/xmrgateway/subaddr"
)

// Status reports whether the Gateway's scanner task is running.
type Status int

const (
	// StatusStopped is the initial state, and the state after a clean Stop.
	StatusStopped Status = iota
	// StatusRunning means the scanner task is active.
	StatusRunning
	// StatusFailed means the scanner hit a fatal (non-retriable) error and
	// exited; Run must be called again (after the underlying problem is
	// fixed) to resume.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusRunning:
		return "running"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrAlreadyRunning is returned by Run if the scanner task is already
// active.
var ErrAlreadyRunning = errors.New("xmrgateway: gateway is already running")

// ErrCallbackQueueFull is returned by NewInvoice when a callback URL is
// supplied but the callback queue has no free capacity — the intentional
// backpressure of spec §4.G.
var ErrCallbackQueueFull = errors.New("xmrgateway: callback queue is full")

// Gateway is the public facade (component H): it owns every piece of
// engine state (storage handle, allocator, bus, callback queue, scanner
// task) and exposes the operations a merchant's application calls. There
// are no package-global singletons; every Gateway is independent.
type Gateway struct {
	cfg Config

	alloc   *subaddr.Allocator
	bus     *pubsub.Bus
	reg     *registry
	cbq     *callbackqueue.Queue
	metrics *monitoring.Metrics

	runMu   sync.Mutex
	status  Status
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// heightMu guards currentHeight, the most recently observed chain tip,
	// consulted by NewInvoice to stamp creation/expiration heights. It is
	// distinct from the scanner's own last-scanned-height bookkeeping,
	// which only the scanner goroutine ever touches.
	heightMu      sync.RWMutex
	currentHeight uint64

	// headerCache and txpoolTx are scanner-internal, in-memory-only state
	// (never persisted): a small window of recently scanned block hashes
	// for the reorg check (§4.E.2), and which txpool transaction hash most
	// recently justified each still-unconfirmed output key's provisional
	// transfer (§4.E.4). Both are rebuilt fresh after a restart from the
	// daemon's current state; losing them costs at most one tick's worth
	// of reorg/withdrawal precision, never correctness of persisted state.
	headerCache map[uint64][32]byte
	txpoolTx    map[[32]byte][32]byte
}

// Run starts the scanner task. It returns ErrAlreadyRunning if the scanner
// is already active. Build already resolved every configuration-time
// error, so Run itself only fails if the daemon's initial state can't be
// fetched or the allocator can't be restored.
func (g *Gateway) Run() error {
	g.runMu.Lock()
	defer g.runMu.Unlock()

	if g.status == StatusRunning {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())

	lastScanned, err := g.resolveInitialHeight(ctx)
	if err != nil {
		cancel()
		return err
	}

	if err := g.restoreAllocator(); err != nil {
		cancel()
		return err
	}

	if g.cfg.callback.QueueSize > 0 {
		g.cbq = callbackqueue.New(g.cfg.callback)
	}

	g.cancel = cancel
	g.status = StatusRunning

	g.wg.Add(1)
	go g.loop(ctx, lastScanned)

	return nil
}

// resolveInitialHeight implements spec §4.H's startup rule: persisted
// height if present, else the configured restore height, else the
// daemon's current tip (with a warning that burning-bug protection is
// degraded, since any output already sitting in blocks below the tip will
// never be scanned).
func (g *Gateway) resolveInitialHeight(ctx context.Context) (uint64, error) {
	if h, ok := g.cfg.store.GetHeight(); ok {
		return h, nil
	}
	if g.cfg.initialHeight != nil {
		return *g.cfg.initialHeight, nil
	}

	tip, err := g.cfg.daemon.GetHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("xmrgateway: fetching initial height: %w", err)
	}
	gtwyLog.Warnf("no persisted height and no restore height configured; "+
		"starting from current tip %d — burning-bug protection is degraded "+
		"for any output already confirmed below this height", tip)
	return tip, nil
}

// restoreAllocator rebuilds the allocator's high-water mark from every
// currently-live invoice's minor index.
func (g *Gateway) restoreAllocator() error {
	ids := g.cfg.store.InvoiceIDs()
	minors := make([]uint32, 0, len(ids))
	for _, id := range ids {
		minors = append(minors, id.Subaddress.Minor)
	}
	g.alloc.Restore(minors)
	return nil
}

// Stop signals the scanner to exit after the current tick boundary (never
// mid-block) and blocks until it has. Pending callback deliveries are
// abandoned. It is a no-op if the scanner isn't running.
func (g *Gateway) Stop() {
	g.runMu.Lock()
	if g.status != StatusRunning {
		g.runMu.Unlock()
		return
	}
	cancel := g.cancel
	g.runMu.Unlock()

	cancel()
	g.wg.Wait()

	if g.cbq != nil {
		g.cbq.Stop()
	}

	g.runMu.Lock()
	g.status = StatusStopped
	g.runMu.Unlock()
}

// Status reports whether the scanner task is running, stopped, or has
// failed.
func (g *Gateway) Status() Status {
	g.runMu.Lock()
	defer g.runMu.Unlock()
	return g.status
}

func (g *Gateway) setFailed() {
	g.runMu.Lock()
	g.status = StatusFailed
	g.runMu.Unlock()
}

// NewInvoice allocates a fresh subaddress and creates an invoice for
// amount piconero, requiring confirmationsRequired confirmations, expiring
// expirationInBlocks blocks after creation. description is opaque to the
// engine. If callback is non-empty, the invoice's updates are POSTed there
// (subject to ErrCallbackQueueFull backpressure at creation time).
func (g *Gateway) NewInvoice(amount, confirmationsRequired, expirationInBlocks uint64, description, callback string) (invoices.ID, error) {
	if callback != "" && g.cbq != nil && g.cbq.Full() {
		return invoices.ID{}, ErrCallbackQueueFull
	}

	minor, err := g.alloc.Allocate()
	if err != nil {
		return invoices.ID{}, err
	}

	height := g.snapshotHeight()

	spend, view, err := moneroutil.DeriveSubaddress(g.cfg.viewKey, g.cfg.primarySpendKey, g.cfg.accountIndex, minor)
	if err != nil {
		g.alloc.Release(minor)
		return invoices.ID{}, err
	}
	address, err := moneroutil.EncodeAddress(g.cfg.network, spend, view, true)
	if err != nil {
		g.alloc.Release(minor)
		return invoices.ID{}, err
	}

	id := invoices.ID{
		Subaddress:     invoices.SubaddressIndex{Major: g.cfg.accountIndex, Minor: minor},
		CreationHeight: height,
	}

	inv := &invoices.Invoice{
		ID:                    id,
		Address:               address,
		AmountRequested:       amount,
		ConfirmationsRequired: confirmationsRequired,
		CurrentHeight:         height,
		ExpirationHeight:      height + expirationInBlocks,
		CreationHeight:        height,
		Description:           description,
		Callback:              callback,
	}

	if err := g.cfg.store.InsertInvoice(id, inv); err != nil {
		g.alloc.Release(minor)
		return invoices.ID{}, err
	}
	if err := g.cfg.store.Flush(); err != nil {
		// Best effort: the invoice may or may not have made it to stable
		// storage. Surface the error rather than hand back an ID the
		// caller might rely on across a restart.
		return invoices.ID{}, err
	}

	g.bus.CreateTopic(id)

	return id, nil
}

// RemoveInvoice deletes an invoice and releases its subaddress index for
// reuse. Returns the Storage backend's error (storage.ErrInvoiceNotFound
// for MemDB) if id doesn't exist.
func (g *Gateway) RemoveInvoice(id invoices.ID) error {
	old, err := g.cfg.store.RemoveInvoice(id)
	if err != nil {
		return err
	}
	if err := g.cfg.store.Flush(); err != nil {
		return err
	}
	g.alloc.Release(old.ID.Subaddress.Minor)
	g.bus.Close(id)
	return nil
}

// InvoiceIDs returns every currently-tracked invoice ID.
func (g *Gateway) InvoiceIDs() []invoices.ID {
	return g.cfg.store.InvoiceIDs()
}

// GetInvoice returns the current state of invoice id, or ok=false if it
// doesn't exist.
func (g *Gateway) GetInvoice(id invoices.ID) (*invoices.Invoice, bool) {
	return g.cfg.store.GetInvoice(id)
}

// IsPaid reports whether invoice id's amount paid (including txpool-only
// transfers) has reached its requested amount. Returns false if id doesn't
// exist.
func (g *Gateway) IsPaid(id invoices.ID) bool {
	inv, ok := g.cfg.store.GetInvoice(id)
	return ok && inv.IsPaid()
}

// HTTPAPI returns an adapter implementing httpapi.Gateway over g, for
// wiring into internal/httpapi.New. A separate adapter type exists only
// because Go interface satisfaction requires identical method signatures:
// g.Subscribe returns a concrete *pubsub.Subscriber, while httpapi.Gateway
// (a leaf package that cannot import this one) declares its own narrow
// Subscriber interface.
func (g *Gateway) HTTPAPI() httpapi.Gateway {
	return gatewayAdapter{g}
}

type gatewayAdapter struct{ g *Gateway }

func (a gatewayAdapter) NewInvoice(amount, confirmationsRequired, expirationInBlocks uint64, description, callback string) (invoices.ID, error) {
	return a.g.NewInvoice(amount, confirmationsRequired, expirationInBlocks, description, callback)
}

func (a gatewayAdapter) RemoveInvoice(id invoices.ID) error { return a.g.RemoveInvoice(id) }

func (a gatewayAdapter) InvoiceIDs() []invoices.ID { return a.g.InvoiceIDs() }

func (a gatewayAdapter) GetInvoice(id invoices.ID) (*invoices.Invoice, bool) {
	return a.g.GetInvoice(id)
}

func (a gatewayAdapter) Subscribe(id invoices.ID) (httpapi.Subscriber, bool) {
	return a.g.Subscribe(id)
}

// Metrics returns the gateway's Prometheus metrics set, or nil if none was
// configured via Builder.Metrics.
func (g *Gateway) Metrics() *monitoring.Metrics {
	return g.metrics
}

// Subscribe returns a Subscriber delivering every future update to invoice
// id, or ok=false if id doesn't exist (or has already been removed).
func (g *Gateway) Subscribe(id invoices.ID) (*pubsub.Subscriber, bool) {
	return g.bus.Subscribe(id)
}

func (g *Gateway) snapshotHeight() uint64 {
	g.heightMu.RLock()
	defer g.heightMu.RUnlock()
	return g.currentHeight
}

func (g *Gateway) setSnapshotHeight(h uint64) {
	g.heightMu.Lock()
	g.currentHeight = h
	g.heightMu.Unlock()
}
