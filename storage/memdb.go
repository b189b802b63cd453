package storage

import (
	"sync"

	"github.com/xmrgateway/xmrgateway/invoices"
)

// MemDB is an in-memory Storage implementation. It is the reference backend
// the engine's own tests run against, and is equally valid for a gateway
// that accepts losing all state on restart.
//
// Flush is a no-op: every write is already
// visible to readers the instant it's made. MemDB exists to exercise the
// Storage contract, not to demonstrate durability.
type MemDB struct {
	mu sync.RWMutex

	invoices map[invoices.ID]*invoices.Invoice
	outputs  map[[32]byte]OutputKeyOwner
	height   uint64
	haveHt   bool
}

// NewMemDB returns an empty MemDB.
func NewMemDB() *MemDB {
	return &MemDB{
		invoices: make(map[invoices.ID]*invoices.Invoice),
		outputs:  make(map[[32]byte]OutputKeyOwner),
	}
}

// InsertInvoice implements Storage.
func (db *MemDB) InsertInvoice(id invoices.ID, inv *invoices.Invoice) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.invoices[id]; ok {
		return ErrInvoiceExists
	}
	db.invoices[id] = inv.Clone()
	return nil
}

// GetInvoice implements Storage.
func (db *MemDB) GetInvoice(id invoices.ID) (*invoices.Invoice, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	inv, ok := db.invoices[id]
	if !ok {
		return nil, false
	}
	return inv.Clone(), true
}

// UpdateInvoice implements Storage.
func (db *MemDB) UpdateInvoice(id invoices.ID, inv *invoices.Invoice) (*invoices.Invoice, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	old, ok := db.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	db.invoices[id] = inv.Clone()
	return old, nil
}

// RemoveInvoice implements Storage.
func (db *MemDB) RemoveInvoice(id invoices.ID) (*invoices.Invoice, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	old, ok := db.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	delete(db.invoices, id)
	return old, nil
}

// InvoiceIDs implements Storage.
func (db *MemDB) InvoiceIDs() []invoices.ID {
	db.mu.RLock()
	defer db.mu.RUnlock()

	ids := make([]invoices.ID, 0, len(db.invoices))
	for id := range db.invoices {
		ids = append(ids, id)
	}
	return ids
}

// IsEmpty implements Storage.
func (db *MemDB) IsEmpty() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return len(db.invoices) == 0
}

// RecordOutputKey implements Storage.
func (db *MemDB) RecordOutputKey(key [32]byte, owner OutputKeyOwner) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.outputs[key]; ok {
		return
	}
	db.outputs[key] = owner
}

// LookupOutputKey implements Storage.
func (db *MemDB) LookupOutputKey(key [32]byte) (OutputKeyOwner, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	owner, ok := db.outputs[key]
	return owner, ok
}

// GetHeight implements Storage.
func (db *MemDB) GetHeight() (uint64, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.height, db.haveHt
}

// SetHeight implements Storage.
func (db *MemDB) SetHeight(height uint64) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.height = height
	db.haveHt = true
}

// Flush implements Storage.
func (db *MemDB) Flush() error {
	return nil
}

var _ Storage = (*MemDB)(nil)
