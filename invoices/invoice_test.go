package invoices

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func height(h uint64) *uint64 { return &h }

func TestIDWireRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		id   ID
	}{
		{
			name: "zero",
			id:   ID{Subaddress: SubaddressIndex{Major: 0, Minor: 0}, CreationHeight: 0},
		},
		{
			name: "typical",
			id:   ID{Subaddress: SubaddressIndex{Major: 0, Minor: 42}, CreationHeight: 3141592},
		},
		{
			name: "max-minor",
			id:   ID{Subaddress: SubaddressIndex{Major: 1, Minor: 0xffff}, CreationHeight: 1},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wire := tc.id.String()
			require.Len(t, wire, 16)

			got, err := ParseID(wire)
			require.NoError(t, err)
			require.Equal(t, tc.id, got)
		})
	}
}

func TestParseIDRejectsMalformed(t *testing.T) {
	_, err := ParseID("not-valid-base64!!")
	require.Error(t, err)

	_, err = ParseID("AAAA")
	require.Error(t, err)
}

func TestAmountPaidSumsAllTransfersIncludingTxpool(t *testing.T) {
	inv := &Invoice{
		AmountRequested: 1000,
		Transfers: []Transfer{
			{Amount: 250, Height: height(100), OutputKey: [32]byte{1}},
			{Amount: 500, Height: nil, OutputKey: [32]byte{2}},
		},
	}

	require.Equal(t, uint64(750), inv.AmountPaid())
	require.False(t, inv.IsPaid())
}

func TestConfirmationsExactPaymentZeroConfsRequired(t *testing.T) {
	// S1: exact payment, zero confirmations required.
	inv := &Invoice{
		AmountRequested:       1000,
		ConfirmationsRequired: 0,
		CurrentHeight:         100,
		Transfers: []Transfer{
			{Amount: 1000, Height: height(100), OutputKey: [32]byte{1}},
		},
	}

	confs, defined := inv.Confirmations()
	require.True(t, defined)
	require.Equal(t, uint64(1), confs)
	require.True(t, inv.IsConfirmed())
}

func TestConfirmationsMultiTransactionPayment(t *testing.T) {
	// S2: 250 at H, 750 at H+1, confirmations_required=2.
	inv := &Invoice{
		AmountRequested:       1000,
		ConfirmationsRequired: 2,
		CurrentHeight:         100,
		Transfers: []Transfer{
			{Amount: 250, Height: height(100), OutputKey: [32]byte{1}},
		},
	}
	_, defined := inv.Confirmations()
	require.False(t, defined)

	inv.CurrentHeight = 101
	inv.Transfers = append(inv.Transfers, Transfer{Amount: 750, Height: height(101), OutputKey: [32]byte{2}})
	confs, defined := inv.Confirmations()
	require.True(t, defined)
	require.Equal(t, uint64(1), confs)
	require.False(t, inv.IsConfirmed())

	inv.CurrentHeight = 102
	confs, defined = inv.Confirmations()
	require.True(t, defined)
	require.Equal(t, uint64(2), confs)
	require.True(t, inv.IsConfirmed())
}

func TestConfirmationsUndefinedWithoutMinedFunding(t *testing.T) {
	// Txpool-only transfers count toward amount paid but never toward a
	// confirmation count.
	inv := &Invoice{
		AmountRequested: 500,
		CurrentHeight:   10,
		Transfers: []Transfer{
			{Amount: 500, Height: nil, OutputKey: [32]byte{9}},
		},
	}

	require.True(t, inv.IsPaid())
	_, defined := inv.Confirmations()
	require.False(t, defined)
	require.True(t, inv.AwaitingConfirmation() == false) // undefined, not awaiting
	require.False(t, inv.IsConfirmed())
}

func TestIsExpiredBoundary(t *testing.T) {
	inv := &Invoice{
		AmountRequested:  1000,
		ExpirationHeight: 50,
		CurrentHeight:    49,
	}
	require.False(t, inv.IsExpired())

	inv.CurrentHeight = 50
	require.True(t, inv.IsExpired())
}

func TestIsExpiredNotWhileAwaitingConfirmation(t *testing.T) {
	inv := &Invoice{
		AmountRequested:       1000,
		ConfirmationsRequired: 10,
		ExpirationHeight:      50,
		CurrentHeight:         60,
		Transfers: []Transfer{
			{Amount: 1000, Height: height(55), OutputKey: [32]byte{3}},
		},
	}

	require.True(t, inv.AwaitingConfirmation())
	require.False(t, inv.IsExpired())
}

func TestHasOutputKeyDedup(t *testing.T) {
	inv := &Invoice{
		Transfers: []Transfer{{Amount: 1, OutputKey: [32]byte{7}}},
	}
	require.True(t, inv.HasOutputKey([32]byte{7}))
	require.False(t, inv.HasOutputKey([32]byte{8}))
}

func TestEqualIgnoresNothingObservable(t *testing.T) {
	a := &Invoice{
		ID:              ID{CreationHeight: 1},
		AmountRequested: 500,
		Transfers:       []Transfer{{Amount: 500, Height: height(10), OutputKey: [32]byte{1}}},
	}
	b := a.Clone()
	require.True(t, a.Equal(b))

	b.CurrentHeight = 11
	require.False(t, a.Equal(b))
}

func TestJSONRoundTrip(t *testing.T) {
	inv := &Invoice{
		ID:                    ID{Subaddress: SubaddressIndex{Major: 0, Minor: 5}, CreationHeight: 10},
		Address:               "some-subaddress",
		AmountRequested:       1000,
		ConfirmationsRequired: 2,
		CurrentHeight:         12,
		ExpirationHeight:      100,
		CreationHeight:        10,
		Description:           "order #42",
		Callback:              "https://example.com/hook",
		Transfers: []Transfer{
			{Amount: 400, Height: height(11), OutputKey: [32]byte{0xaa}},
			{Amount: 600, Height: nil, OutputKey: [32]byte{0xbb}},
		},
	}

	data, err := json.Marshal(inv)
	require.NoError(t, err)

	var got Invoice
	require.NoError(t, json.Unmarshal(data, &got))

	require.True(t, inv.Equal(&got))
}

func TestJSONIncludesDerivedFields(t *testing.T) {
	inv := &Invoice{
		ID:                    ID{CreationHeight: 1},
		AmountRequested:       1000,
		ConfirmationsRequired: 0,
		CurrentHeight:         5,
		Transfers: []Transfer{
			{Amount: 1000, Height: height(5), OutputKey: [32]byte{1}},
		},
	}

	data, err := json.Marshal(inv)
	require.NoError(t, err)

	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &generic))

	require.Equal(t, float64(1000), generic["amount_paid"])
	require.Equal(t, true, generic["is_confirmed"])
	require.Equal(t, true, generic["is_paid"])
}
