// Package invoices defines the central Invoice type tracked by the payment
// engine: its identity, the fields the scanner mutates, and the derived
// predicates (amount paid, confirmations, expiry) callers and subscribers
// actually care about.
package invoices

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"sort"
)

// ErrNotFound is returned when an operation references an invoice ID that
// doesn't exist.
var ErrNotFound = errors.New("invoices: invoice not found")

// ErrAlreadyExists is returned when an operation would create an invoice ID
// that already exists.
var ErrAlreadyExists = errors.New("invoices: invoice already exists")

// SubaddressIndex is a (major, minor) pair identifying a subaddress. Minor
// index 0 is reserved for the primary address and is never assigned to an
// invoice.
type SubaddressIndex struct {
	Major uint32
	Minor uint32
}

// ID uniquely and stably identifies an invoice for its lifetime: the
// subaddress it was assigned, paired with the block height at which it was
// created (so that, however unlikely, two invoices never collide even if a
// subaddress index were ever reused prematurely).
type ID struct {
	Subaddress    SubaddressIndex
	CreationHeight uint64
}

// String renders the ID in its 16-character, no-padding base64url wire
// form: 4 bytes of (major<<16)|minor in little-endian, followed by 8 bytes
// of creation height in little-endian.
func (id ID) String() string {
	var raw [12]byte
	packed := (id.Subaddress.Major << 16) | (id.Subaddress.Minor & 0xffff)
	binary.LittleEndian.PutUint32(raw[0:4], packed)
	binary.LittleEndian.PutUint64(raw[4:12], id.CreationHeight)
	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// ParseID parses the 16-character base64url wire form produced by String.
func ParseID(s string) (ID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return ID{}, err
	}
	if len(raw) != 12 {
		return ID{}, errors.New("invoices: malformed invoice id")
	}

	packed := binary.LittleEndian.Uint32(raw[0:4])
	height := binary.LittleEndian.Uint64(raw[4:12])

	return ID{
		Subaddress: SubaddressIndex{
			Major: packed >> 16,
			Minor: packed & 0xffff,
		},
		CreationHeight: height,
	}, nil
}

// Transfer is one credited output: an amount, and the height at which it
// was seen in a block, or nil if it has so far only been observed in the
// daemon's txpool.
type Transfer struct {
	Amount     uint64
	Height     *uint64
	OutputKey  [32]byte
}

// Invoice is the central entity the engine tracks: everything needed to
// decide whether, and how confidently, a payment has arrived.
type Invoice struct {
	ID ID

	// Address is the textual subaddress derived for this invoice.
	Address string

	// AmountRequested is the amount, in piconero, the invoice was created
	// for.
	AmountRequested uint64

	// ConfirmationsRequired is the minimum number of blocks (inclusive of
	// the paying block) before the invoice is considered confirmed. Zero
	// means "confirmed as soon as fully funded in any scanned block."
	ConfirmationsRequired uint64

	// CurrentHeight is the most recent block height the scanner has
	// observed, set on every invoice on every tick regardless of whether
	// it was credited.
	CurrentHeight uint64

	// ExpirationHeight is the absolute height at which this invoice's
	// subaddress expires if it isn't fully paid by then.
	ExpirationHeight uint64

	// CreationHeight is the height at which the invoice was created; it
	// duplicates ID.CreationHeight for convenience.
	CreationHeight uint64

	// Transfers is the ordered (by first-seen order), one-time-output-key
	// deduplicated set of credited outputs.
	Transfers []Transfer

	// Description is an opaque caller-supplied string (an order
	// reference, say); the engine never interprets it.
	Description string

	// Callback, if non-empty, is the URL the callback queue posts invoice
	// updates to.
	Callback string
}

// Clone returns a deep copy, so callers (and the pub-sub bus) can hand out
// snapshots no one else can mutate out from under the scanner.
func (inv *Invoice) Clone() *Invoice {
	out := *inv
	out.Transfers = make([]Transfer, len(inv.Transfers))
	copy(out.Transfers, inv.Transfers)
	return &out
}

// AmountPaid is the sum of every credited transfer's amount, including
// transfers still only seen in the txpool. (Open Question #2 in the
// governing design notes: txpool-only transfers do count toward amount
// paid; they just can't contribute to a confirmation count until mined.)
func (inv *Invoice) AmountPaid() uint64 {
	var total uint64
	for _, t := range inv.Transfers {
		total += t.Amount
	}
	return total
}

// Confirmations reports the invoice's confirmation count, and whether one
// is currently defined at all. It is defined iff AmountPaid() has reached
// AmountRequested using only *confirmed* (mined) transfers, in which case
// it equals CurrentHeight - h* + 1 where h* is the smallest height at which
// the running confirmed total first reached AmountRequested.
func (inv *Invoice) Confirmations() (confirmations uint64, defined bool) {
	confirmed := make([]Transfer, 0, len(inv.Transfers))
	for _, t := range inv.Transfers {
		if t.Height != nil {
			confirmed = append(confirmed, t)
		}
	}

	sort.Slice(confirmed, func(i, j int) bool {
		return *confirmed[i].Height < *confirmed[j].Height
	})

	var running uint64
	for _, t := range confirmed {
		running += t.Amount
		if running >= inv.AmountRequested {
			return inv.CurrentHeight - *t.Height + 1, true
		}
	}

	return 0, false
}

// IsConfirmed reports whether the invoice has accumulated at least
// ConfirmationsRequired confirmations.
func (inv *Invoice) IsConfirmed() bool {
	confs, defined := inv.Confirmations()
	return defined && confs >= inv.ConfirmationsRequired
}

// AwaitingConfirmation reports whether the invoice is fully funded by
// mined transfers but hasn't yet accumulated enough confirmations.
func (inv *Invoice) AwaitingConfirmation() bool {
	confs, defined := inv.Confirmations()
	return defined && confs < inv.ConfirmationsRequired
}

// IsExpired reports whether the invoice's subaddress has expired: its
// current height is at or past its expiration height, and it is not
// awaiting confirmation (an invoice already fully paid and accumulating
// confirmations is never treated as expired out from under the merchant).
func (inv *Invoice) IsExpired() bool {
	if inv.CurrentHeight < inv.ExpirationHeight {
		return false
	}
	return !inv.AwaitingConfirmation()
}

// IsPaid reports whether AmountPaid has reached AmountRequested, counting
// txpool-only transfers (see AmountPaid's doc comment).
func (inv *Invoice) IsPaid() bool {
	return inv.AmountPaid() >= inv.AmountRequested
}

// HasOutputKey reports whether the given one-time output key has already
// been recorded against this invoice, used to enforce invariant #3
// (an output key appears at most once per invoice).
func (inv *Invoice) HasOutputKey(key [32]byte) bool {
	for _, t := range inv.Transfers {
		if t.OutputKey == key {
			return true
		}
	}
	return false
}

// Equal reports whether two invoices are observably identical: the scanner
// uses this to decide whether a tick produced a change worth persisting
// and publishing (spec: "a tick with no observable change to an invoice
// emits nothing for it").
func (inv *Invoice) Equal(other *Invoice) bool {
	if other == nil {
		return false
	}
	if inv.ID != other.ID ||
		inv.Address != other.Address ||
		inv.AmountRequested != other.AmountRequested ||
		inv.ConfirmationsRequired != other.ConfirmationsRequired ||
		inv.CurrentHeight != other.CurrentHeight ||
		inv.ExpirationHeight != other.ExpirationHeight ||
		inv.CreationHeight != other.CreationHeight ||
		inv.Description != other.Description ||
		inv.Callback != other.Callback {
		return false
	}
	if len(inv.Transfers) != len(other.Transfers) {
		return false
	}
	for i := range inv.Transfers {
		a, b := inv.Transfers[i], other.Transfers[i]
		if a.Amount != b.Amount || a.OutputKey != b.OutputKey {
			return false
		}
		if (a.Height == nil) != (b.Height == nil) {
			return false
		}
		if a.Height != nil && *a.Height != *b.Height {
			return false
		}
	}
	return true
}
