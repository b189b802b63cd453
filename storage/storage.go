// Package storage defines the persistence contract the payment engine
// depends on: invoices, the output-key registry, and the last-scanned
// height, under a uniform interface with an explicit, once-per-tick flush.
package storage

import (
	"errors"

	"github.com/xmrgateway/xmrgateway/invoices"
)

// ErrInvoiceExists is returned by InsertInvoice when the given ID is
// already present.
var ErrInvoiceExists = errors.New("storage: invoice already exists")

// ErrInvoiceNotFound is returned by UpdateInvoice and RemoveInvoice when the
// given ID is absent.
var ErrInvoiceNotFound = errors.New("storage: invoice not found")

// OutputKeyOwner identifies which invoice, at which height, an output key
// was first credited to. It is the value half of the output-key registry
// (component C) that guards against the "burning bug": a one-time output
// key reused across transactions.
type OutputKeyOwner struct {
	InvoiceID invoices.ID
	Height    uint64
}

// Storage is the full persistence contract the engine depends on. A
// conforming implementation must make every method safe for concurrent use,
// and must not reorder a write issued before a Flush call behind one issued
// after it.
//
// The engine batches one scan tick's writes and calls Flush exactly once
// per tick; a crash between a write and the following Flush must lose at
// most that one in-progress tick, never corrupt previously flushed state.
type Storage interface {
	// InsertInvoice adds a new invoice under id. It returns
	// ErrInvoiceExists if id is already present.
	InsertInvoice(id invoices.ID, inv *invoices.Invoice) error

	// GetInvoice returns the invoice stored under id, or ok=false if none
	// exists.
	GetInvoice(id invoices.ID) (inv *invoices.Invoice, ok bool)

	// UpdateInvoice replaces the invoice stored under id and returns the
	// value that was previously stored. It returns ErrInvoiceNotFound if
	// id is absent.
	UpdateInvoice(id invoices.ID, inv *invoices.Invoice) (old *invoices.Invoice, err error)

	// RemoveInvoice deletes the invoice stored under id and returns the
	// value that was stored. It returns ErrInvoiceNotFound if id is
	// absent.
	RemoveInvoice(id invoices.ID) (old *invoices.Invoice, err error)

	// InvoiceIDs returns every currently-stored invoice ID, in no
	// particular order.
	InvoiceIDs() []invoices.ID

	// IsEmpty reports whether zero invoices are currently stored.
	IsEmpty() bool

	// RecordOutputKey registers key as owned by owner. Calling it again
	// for a key already recorded with the identical owner is a no-op (a
	// benign re-sighting); recording it with a different owner is a
	// caller bug and the original owner is retained.
	RecordOutputKey(key [32]byte, owner OutputKeyOwner)

	// LookupOutputKey returns the owner previously recorded for key, or
	// ok=false if none exists.
	LookupOutputKey(key [32]byte) (owner OutputKeyOwner, ok bool)

	// GetHeight returns the most recently persisted scanned height, or
	// ok=false if none has ever been set.
	GetHeight() (height uint64, ok bool)

	// SetHeight persists the most recently scanned height.
	SetHeight(height uint64)

	// Flush persists all writes issued since the last Flush call to
	// stable storage. The engine calls this exactly once per scan tick.
	Flush() error
}
