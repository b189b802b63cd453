// Package storagetest is a backend-agnostic contract test suite for
// storage.Storage. Any implementation can be dropped in via Init and run
// through the full suite, the same way a new storage.Storage backend
// should be validated before being trusted with real invoices.
package storagetest

import (
	"testing"

	"github.com/xmrgateway/xmrgateway/invoices"
	"github.com/xmrgateway/xmrgateway/storage"
)

// Init is a closure used to construct a fresh storage.Storage instance and
// its cleanup function.
type Init func(t *testing.T) (storage.Storage, func())

type harness struct {
	t  *testing.T
	db storage.Storage
}

func newHarness(t *testing.T, init Init) (*harness, func()) {
	db, cleanup := init(t)
	return &harness{t: t, db: db}, cleanup
}

func (h *harness) insertInvoice(id invoices.ID, inv *invoices.Invoice, expErr error) {
	h.t.Helper()

	err := h.db.InsertInvoice(id, inv)
	if err != expErr {
		h.t.Fatalf("expected insert invoice error: %v, got: %v", expErr, err)
	}
}

func (h *harness) getInvoice(id invoices.ID) (*invoices.Invoice, bool) {
	h.t.Helper()
	return h.db.GetInvoice(id)
}

func (h *harness) updateInvoice(id invoices.ID, inv *invoices.Invoice, expErr error) *invoices.Invoice {
	h.t.Helper()

	old, err := h.db.UpdateInvoice(id, inv)
	if err != expErr {
		h.t.Fatalf("expected update invoice error: %v, got: %v", expErr, err)
	}
	return old
}

func (h *harness) removeInvoice(id invoices.ID, expErr error) *invoices.Invoice {
	h.t.Helper()

	old, err := h.db.RemoveInvoice(id)
	if err != expErr {
		h.t.Fatalf("expected remove invoice error: %v, got: %v", expErr, err)
	}
	return old
}

// Suite is the full backend-agnostic contract test: call it from a
// backend's own TestXxx function, passing an Init that builds a fresh
// instance of that backend.
func Suite(t *testing.T, init Init) {
	tests := []struct {
		name string
		run  func(*harness)
	}{
		{name: "insert and get invoice", run: testInsertAndGetInvoice},
		{name: "insert duplicate rejected", run: testInsertDuplicateRejected},
		{name: "update missing rejected", run: testUpdateMissingRejected},
		{name: "update returns old value", run: testUpdateReturnsOldValue},
		{name: "remove missing rejected", run: testRemoveMissingRejected},
		{name: "remove then reinsert", run: testRemoveThenReinsert},
		{name: "invoice ids and is empty", run: testInvoiceIDsAndIsEmpty},
		{name: "output key registry", run: testOutputKeyRegistry},
		{name: "height round trip", run: testHeightRoundTrip},
		{name: "flush does not error on empty backend", run: testFlushEmpty},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			h, cleanup := newHarness(t, init)
			defer cleanup()

			test.run(h)
		})
	}
}

func sampleInvoice(id invoices.ID) *invoices.Invoice {
	return &invoices.Invoice{
		ID:                    id,
		Address:               "sample-subaddress",
		AmountRequested:       1000,
		ConfirmationsRequired: 1,
		ExpirationHeight:      1000,
		CreationHeight:        id.CreationHeight,
	}
}

func testInsertAndGetInvoice(h *harness) {
	id := invoices.ID{CreationHeight: 1}
	inv := sampleInvoice(id)

	h.insertInvoice(id, inv, nil)

	got, ok := h.getInvoice(id)
	if !ok {
		h.t.Fatalf("expected invoice to be found")
	}
	if !got.Equal(inv) {
		h.t.Fatalf("round-tripped invoice does not match: got %+v, want %+v", got, inv)
	}
}

func testInsertDuplicateRejected(h *harness) {
	id := invoices.ID{CreationHeight: 2}
	inv := sampleInvoice(id)

	h.insertInvoice(id, inv, nil)
	h.insertInvoice(id, inv, storage.ErrInvoiceExists)
}

func testUpdateMissingRejected(h *harness) {
	id := invoices.ID{CreationHeight: 3}
	h.updateInvoice(id, sampleInvoice(id), storage.ErrInvoiceNotFound)
}

func testUpdateReturnsOldValue(h *harness) {
	id := invoices.ID{CreationHeight: 4}
	original := sampleInvoice(id)
	h.insertInvoice(id, original, nil)

	updated := original.Clone()
	updated.CurrentHeight = 9
	old := h.updateInvoice(id, updated, nil)
	if !old.Equal(original) {
		h.t.Fatalf("expected old value to equal original invoice")
	}

	got, _ := h.getInvoice(id)
	if !got.Equal(updated) {
		h.t.Fatalf("expected stored value to equal updated invoice")
	}
}

func testRemoveMissingRejected(h *harness) {
	id := invoices.ID{CreationHeight: 5}
	h.removeInvoice(id, storage.ErrInvoiceNotFound)
}

func testRemoveThenReinsert(h *harness) {
	id := invoices.ID{CreationHeight: 6}
	inv := sampleInvoice(id)
	h.insertInvoice(id, inv, nil)

	old := h.removeInvoice(id, nil)
	if !old.Equal(inv) {
		h.t.Fatalf("expected removed value to equal inserted invoice")
	}

	if _, ok := h.getInvoice(id); ok {
		h.t.Fatalf("expected invoice to be gone after removal")
	}

	h.insertInvoice(id, inv, nil)
	if _, ok := h.getInvoice(id); !ok {
		h.t.Fatalf("expected invoice to be reinsertable after removal")
	}
}

func testInvoiceIDsAndIsEmpty(h *harness) {
	if !h.db.IsEmpty() {
		h.t.Fatalf("expected fresh backend to be empty")
	}

	ids := []invoices.ID{
		{CreationHeight: 10},
		{CreationHeight: 11},
		{CreationHeight: 12},
	}
	for _, id := range ids {
		h.insertInvoice(id, sampleInvoice(id), nil)
	}

	if h.db.IsEmpty() {
		h.t.Fatalf("expected backend to be non-empty after inserts")
	}

	got := h.db.InvoiceIDs()
	if len(got) != len(ids) {
		h.t.Fatalf("expected %d invoice ids, got %d", len(ids), len(got))
	}

	seen := make(map[invoices.ID]bool, len(got))
	for _, id := range got {
		seen[id] = true
	}
	for _, id := range ids {
		if !seen[id] {
			h.t.Fatalf("expected invoice id %v to be present", id)
		}
	}
}

func testOutputKeyRegistry(h *harness) {
	key := [32]byte{1, 2, 3}
	id := invoices.ID{CreationHeight: 20}
	owner := storage.OutputKeyOwner{InvoiceID: id, Height: 100}

	if _, ok := h.db.LookupOutputKey(key); ok {
		h.t.Fatalf("expected unrecorded key to be absent")
	}

	h.db.RecordOutputKey(key, owner)

	got, ok := h.db.LookupOutputKey(key)
	if !ok {
		h.t.Fatalf("expected recorded key to be found")
	}
	if got != owner {
		h.t.Fatalf("expected owner %+v, got %+v", owner, got)
	}

	// Re-recording the identical owner is a no-op; a conflicting owner
	// must not overwrite the original (the output-key registry's whole
	// purpose is refusing to let a replayed output key move ownership).
	h.db.RecordOutputKey(key, storage.OutputKeyOwner{
		InvoiceID: invoices.ID{CreationHeight: 999},
		Height:    1,
	})
	got, ok = h.db.LookupOutputKey(key)
	if !ok || got != owner {
		h.t.Fatalf("expected original owner to be retained, got %+v", got)
	}
}

func testHeightRoundTrip(h *harness) {
	if _, ok := h.db.GetHeight(); ok {
		h.t.Fatalf("expected fresh backend to have no height")
	}

	h.db.SetHeight(12345)

	got, ok := h.db.GetHeight()
	if !ok {
		h.t.Fatalf("expected height to be set")
	}
	if got != 12345 {
		h.t.Fatalf("expected height 12345, got %d", got)
	}
}

func testFlushEmpty(h *harness) {
	if err := h.db.Flush(); err != nil {
		h.t.Fatalf("unexpected flush error: %v", err)
	}
}
