// Package txscan implements the Output Scanner: given a view key, a set of
// tracked subaddress spend keys, and a transaction, it identifies which
// outputs belong to which tracked subaddress and decodes their amounts. It
// does no I/O and touches no global state, so it parallelizes trivially
// across transactions.
package txscan

import (
	"github.com/xmrgateway/xmrgateway/invoices"
	"github.com/xmrgateway/xmrgateway/moneroutil"
)

// Output is one output of a transaction being scanned, in the form the
// scanner needs: its one-time public key, its encrypted (or, for
// pre-RingCT transactions, cleartext) amount, and whether it carries a
// view tag.
type Output struct {
	// Key is the one-time output public key O_n.
	Key moneroutil.PublicKey

	// EncryptedAmount is the RingCT-masked amount. For a pre-RingCT
	// output, set ClearAmount instead and leave this zero.
	EncryptedAmount [8]byte

	// ClearAmount is the plaintext amount for a pre-RingCT output. It is
	// only consulted when RingCT is false.
	ClearAmount uint64

	// RingCT is true if EncryptedAmount should be decrypted; false if
	// ClearAmount should be used directly.
	RingCT bool

	// HasViewTag is true if ViewTag should be checked before attempting
	// full key recovery.
	HasViewTag bool
	ViewTag    byte
}

// Transaction is the subset of an on-chain (or txpool) transaction the
// scanner needs.
type Transaction struct {
	// TxPubKey is the transaction's main public key R.
	TxPubKey moneroutil.PublicKey

	// AdditionalPubKeys, if non-empty, must have exactly one entry per
	// Output and supplies the per-output tx pubkey used instead of
	// TxPubKey for that output's index (Monero's "additional tx pubkeys"
	// mechanism, used when a transaction pays more than one subaddress
	// account).
	AdditionalPubKeys []moneroutil.PublicKey

	Outputs []Output

	// UnlockTime is the transaction's unlock_time field. A non-zero
	// value means every output it contains is time-locked; per spec
	// §4.B.6 the scanner must refuse to credit any of them.
	UnlockTime uint64
}

// TrackedSubaddress identifies a subaddress the scanner should recognize
// outputs paying to, keyed by its public spend key.
type TrackedSubaddress struct {
	SpendKey  moneroutil.PublicKey
	InvoiceID invoices.ID
}

// Credit is one output found to belong to a tracked subaddress.
type Credit struct {
	// InvoiceID is the InvoiceID value from the TrackedSubaddress this
	// output matched, unmodified.
	InvoiceID invoices.ID

	// Amount is the decoded output amount. It is always zero if the
	// transaction is time-locked (UnlockTime != 0); the caller should
	// still record the output key via OutputKey so duplicate detection
	// has a stable record of having seen it, but must not treat the
	// amount as credited.
	Amount uint64

	// OutputKey is the one-time output public key O_n, the identity used
	// by the output-key registry for duplicate/burning-bug detection.
	OutputKey [32]byte

	// TimeLocked is true if this credit came from a transaction with a
	// non-zero unlock_time, in which case Amount is always 0.
	TimeLocked bool
}

// Scan examines every output of tx against the tracked set and returns one
// Credit per output that matches a tracked subaddress's spend key. It is
// pure: no I/O, no mutation of its inputs, safe to call concurrently for
// distinct transactions sharing the same read-only tracked slice.
func Scan(viewKey moneroutil.PrivateViewKey, tracked []TrackedSubaddress, tx Transaction) ([]Credit, error) {
	bySpendKey := make(map[moneroutil.PublicKey]invoices.ID, len(tracked))
	for _, ts := range tracked {
		bySpendKey[ts.SpendKey] = ts.InvoiceID
	}

	var credits []Credit

	for n, out := range tx.Outputs {
		txPubKey := tx.TxPubKey
		if len(tx.AdditionalPubKeys) == len(tx.Outputs) {
			txPubKey = tx.AdditionalPubKeys[n]
		}

		shared, err := moneroutil.DeriveSharedSecret(viewKey, txPubKey, uint64(n))
		if err != nil {
			return nil, err
		}

		if out.HasViewTag {
			if moneroutil.ViewTag(shared, uint64(n)) != out.ViewTag {
				continue
			}
		}

		candidate, err := moneroutil.DeriveOneTimeOutputOwnerCandidate(shared, uint64(n), out.Key)
		if err != nil {
			// Not every malformed output key is attributable to us;
			// skip it rather than aborting the whole scan.
			continue
		}

		invoiceID, owned := bySpendKey[candidate]
		if !owned {
			continue
		}

		var amount uint64
		timeLocked := tx.UnlockTime != 0
		if !timeLocked {
			if out.RingCT {
				amount = moneroutil.DecryptAmount(out.EncryptedAmount, shared)
			} else {
				amount = out.ClearAmount
			}
		}

		credits = append(credits, Credit{
			InvoiceID:  invoiceID,
			Amount:     amount,
			OutputKey:  [32]byte(out.Key),
			TimeLocked: timeLocked,
		})
	}

	return credits, nil
}
