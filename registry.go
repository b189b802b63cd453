package xmrgateway

import (
	"errors"

	"github.com/xmrgateway/xmrgateway/invoices"
	"github.com/xmrgateway/xmrgateway/storage"
)

// ErrBurningBug marks a rejected credit: a one-time output key reappeared
// attributed to a different invoice, or the same invoice at a different
// height, than the one it was first recorded against (spec §4.C). Never
// fatal — the scanner logs it at warn and continues with other outputs.
var ErrBurningBug = errors.New("xmrgateway: output key already credited elsewhere")

// registry consults and updates the output-key half of Storage (component C)
// to enforce invariant #4 of the governing design notes: the same one-time
// output key never credits two invoices, nor the same invoice twice at
// different heights. A second sighting of an already-recorded key is
// tolerated only when it is byte-for-byte the same (invoice, height) pair
// already on file — a benign re-sighting, not a new credit.
type registry struct {
	store storage.Storage
}

func newRegistry(store storage.Storage) *registry {
	return &registry{store: store}
}

// accept decides whether a candidate credit of key to (id, height) should be
// applied. ok=true and isNew=true means "credit it, and remember it, for the
// first time". ok=true and isNew=false means "already recorded identically;
// idempotent no-op, nothing new to persist". ok=false means "reject: this is
// either a burning-bug attempt or a key now claimed by a different owner".
func (r *registry) accept(key [32]byte, id invoices.ID, height uint64) (ok bool, isNew bool) {
	owner, exists := r.store.LookupOutputKey(key)
	if !exists {
		return true, true
	}

	if owner.InvoiceID == id && owner.Height == height {
		// The exact same (key, invoice, height) triple we already have
		// on file: a re-sighting across ticks of a transaction we've
		// already credited, not a new credit.
		return true, false
	}

	return false, false
}

// record persists key as owned by (id, height). Callers must only call this
// after accept has returned isNew=true for the same triple.
func (r *registry) record(key [32]byte, id invoices.ID, height uint64) {
	r.store.RecordOutputKey(key, storage.OutputKeyOwner{InvoiceID: id, Height: height})
}
