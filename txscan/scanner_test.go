package txscan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xmrgateway/xmrgateway/invoices"
	"github.com/xmrgateway/xmrgateway/moneroutil"
)

// sendOutput builds an Output (and the tx pubkey it requires) paying
// amount to the given subaddress at output index n, simulating the sender
// side of the protocol exactly as moneroutil's own round-trip test does.
func sendOutput(t *testing.T, subSpend, subView moneroutil.PublicKey, n uint64, amount uint64, ringct bool) (moneroutil.PublicKey, Output) {
	t.Helper()

	r := moneroutil.HashToScalar([]byte("tx-secret"), subSpend[:], subView[:])
	txPubKey, err := moneroutil.ScalarMult(subSpend, r)
	require.NoError(t, err)

	rC, err := moneroutil.ScalarMult(subView, r)
	require.NoError(t, err)

	shared := moneroutil.HashToScalar(rC[:], varint(n))

	hsG := moneroutil.ScalarMultBase(moneroutil.HashToScalar(shared.Bytes(), varint(n)))
	outKey, err := moneroutil.AddPublicKeys(subSpend, hsG)
	require.NoError(t, err)

	out := Output{Key: outKey, RingCT: ringct}
	if ringct {
		out.EncryptedAmount = encryptAmount(amount, shared)
	} else {
		out.ClearAmount = amount
	}

	return txPubKey, out
}

func encryptAmount(amount uint64, shared moneroutil.Scalar) [8]byte {
	key := moneroutil.AmountKey(shared)
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(amount>>(8*uint(i))) ^ key[i]
	}
	return buf
}

func varint(v uint64) []byte {
	buf := make([]byte, 0, 10)
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

func testSubaddress(t *testing.T, seed string) (moneroutil.PrivateViewKey, moneroutil.PublicKey, moneroutil.PublicKey, moneroutil.PublicKey) {
	t.Helper()

	var viewKey moneroutil.PrivateViewKey
	digest := moneroutil.Keccak256([]byte(seed + "-view"))
	copy(viewKey[:], digest[:])
	primarySpend := moneroutil.ScalarMultBase(moneroutil.HashToScalar([]byte(seed + "-spend")))

	subSpend, subView, err := moneroutil.DeriveSubaddress(viewKey, primarySpend, 0, 1)
	require.NoError(t, err)

	return viewKey, primarySpend, subSpend, subView
}

func TestScanCreditsOwnedOutput(t *testing.T) {
	viewKey, _, subSpend, subView := testSubaddress(t, "owned")

	txPubKey, out := sendOutput(t, subSpend, subView, 0, 12345, true)

	invID := invoices.ID{CreationHeight: 1}
	tracked := []TrackedSubaddress{{SpendKey: subSpend, InvoiceID: invID}}
	tx := Transaction{TxPubKey: txPubKey, Outputs: []Output{out}}

	credits, err := Scan(viewKey, tracked, tx)
	require.NoError(t, err)
	require.Len(t, credits, 1)
	require.Equal(t, invID, credits[0].InvoiceID)
	require.Equal(t, uint64(12345), credits[0].Amount)
	require.False(t, credits[0].TimeLocked)
}

func TestScanIgnoresUnownedOutput(t *testing.T) {
	viewKey, _, _, _ := testSubaddress(t, "recipient")
	_, _, otherSpend, otherView := testSubaddress(t, "stranger")

	txPubKey, out := sendOutput(t, otherSpend, otherView, 0, 500, true)

	tracked := []TrackedSubaddress{{SpendKey: otherSpend, InvoiceID: invoices.ID{}}}
	// Scanning with a view key that isn't the recipient's should find
	// nothing, even though the tracked set nominally contains the payee.
	tx := Transaction{TxPubKey: txPubKey, Outputs: []Output{out}}

	credits, err := Scan(viewKey, tracked, tx)
	require.NoError(t, err)
	require.Empty(t, credits)
}

func TestScanClearAmountForNonRingCT(t *testing.T) {
	viewKey, _, subSpend, subView := testSubaddress(t, "legacy")

	txPubKey, out := sendOutput(t, subSpend, subView, 0, 777, false)

	invID := invoices.ID{CreationHeight: 2}
	tracked := []TrackedSubaddress{{SpendKey: subSpend, InvoiceID: invID}}
	tx := Transaction{TxPubKey: txPubKey, Outputs: []Output{out}}

	credits, err := Scan(viewKey, tracked, tx)
	require.NoError(t, err)
	require.Len(t, credits, 1)
	require.Equal(t, uint64(777), credits[0].Amount)
}

func TestScanTimeLockedOutputCreditsZero(t *testing.T) {
	viewKey, _, subSpend, subView := testSubaddress(t, "locked")

	txPubKey, out := sendOutput(t, subSpend, subView, 0, 999, true)

	invID := invoices.ID{CreationHeight: 3}
	tracked := []TrackedSubaddress{{SpendKey: subSpend, InvoiceID: invID}}
	tx := Transaction{TxPubKey: txPubKey, Outputs: []Output{out}, UnlockTime: 100}

	credits, err := Scan(viewKey, tracked, tx)
	require.NoError(t, err)
	require.Len(t, credits, 1)
	require.Equal(t, uint64(0), credits[0].Amount)
	require.True(t, credits[0].TimeLocked)
	// The output key is still surfaced so the caller can record it for
	// duplicate detection even though nothing was credited.
	require.Equal(t, [32]byte(out.Key), credits[0].OutputKey)
}

func TestScanViewTagShortCircuitsMismatch(t *testing.T) {
	viewKey, _, subSpend, subView := testSubaddress(t, "viewtag")

	txPubKey, out := sendOutput(t, subSpend, subView, 0, 1, true)
	out.HasViewTag = true
	out.ViewTag = 0xff // deliberately wrong; real tag computed separately

	invID := invoices.ID{CreationHeight: 4}
	tracked := []TrackedSubaddress{{SpendKey: subSpend, InvoiceID: invID}}
	tx := Transaction{TxPubKey: txPubKey, Outputs: []Output{out}}

	credits, err := Scan(viewKey, tracked, tx)
	require.NoError(t, err)
	// A wrong view tag must reject the output even though the full key
	// recovery would otherwise have succeeded.
	require.Empty(t, credits)
}

func TestScanMultipleOutputsOnlyCreditsOwned(t *testing.T) {
	viewKey, _, subSpend, subView := testSubaddress(t, "multi")
	_, _, otherSpend, otherView := testSubaddress(t, "multi-other")

	txPubKeyA, outA := sendOutput(t, subSpend, subView, 0, 100, true)
	_, outB := sendOutput(t, otherSpend, otherView, 1, 200, true)

	invID := invoices.ID{CreationHeight: 5}
	tracked := []TrackedSubaddress{{SpendKey: subSpend, InvoiceID: invID}}
	tx := Transaction{TxPubKey: txPubKeyA, Outputs: []Output{outA, outB}}

	credits, err := Scan(viewKey, tracked, tx)
	require.NoError(t, err)
	require.Len(t, credits, 1)
	require.Equal(t, uint64(100), credits[0].Amount)
}
