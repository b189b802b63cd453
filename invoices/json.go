package invoices

import "encoding/json"

// wireTransfer is the stable JSON form of a Transfer: Height is null for
// txpool-only transfers.
type wireTransfer struct {
	Amount    uint64  `json:"amount"`
	Height    *uint64 `json:"height"`
	OutputKey string  `json:"output_key"`
}

// wireInvoice is the stable JSON form of an Invoice, used both for HTTP
// callback bodies and for any external API that exposes invoice state. It
// includes the derived fields (amount_paid, confirmations, ...) so
// consumers never need to recompute them.
type wireInvoice struct {
	ID                    string         `json:"id"`
	Address               string         `json:"address"`
	AmountRequested       uint64         `json:"amount_requested"`
	AmountPaid            uint64         `json:"amount_paid"`
	ConfirmationsRequired uint64         `json:"confirmations_required"`
	Confirmations         *uint64        `json:"confirmations"`
	CurrentHeight         uint64         `json:"current_height"`
	ExpirationHeight      uint64         `json:"expiration_height"`
	CreationHeight        uint64         `json:"creation_height"`
	Transfers             []wireTransfer `json:"transfers"`
	Description           string         `json:"description"`
	Callback              string         `json:"callback,omitempty"`
	IsPaid                bool           `json:"is_paid"`
	IsConfirmed           bool           `json:"is_confirmed"`
	IsExpired             bool           `json:"is_expired"`
	AwaitingConfirmation  bool           `json:"awaiting_confirmation"`
}

// MarshalJSON renders the invoice in its stable wire form, including every
// derived predicate from §3 of the governing design notes.
func (inv *Invoice) MarshalJSON() ([]byte, error) {
	w := wireInvoice{
		ID:                    inv.ID.String(),
		Address:               inv.Address,
		AmountRequested:       inv.AmountRequested,
		AmountPaid:            inv.AmountPaid(),
		ConfirmationsRequired: inv.ConfirmationsRequired,
		CurrentHeight:         inv.CurrentHeight,
		ExpirationHeight:      inv.ExpirationHeight,
		CreationHeight:        inv.CreationHeight,
		Description:           inv.Description,
		Callback:              inv.Callback,
		IsPaid:                inv.IsPaid(),
		IsConfirmed:           inv.IsConfirmed(),
		IsExpired:             inv.IsExpired(),
		AwaitingConfirmation:  inv.AwaitingConfirmation(),
	}

	if confs, defined := inv.Confirmations(); defined {
		w.Confirmations = &confs
	}

	w.Transfers = make([]wireTransfer, len(inv.Transfers))
	for i, t := range inv.Transfers {
		w.Transfers[i] = wireTransfer{
			Amount:    t.Amount,
			Height:    t.Height,
			OutputKey: hexEncode(t.OutputKey[:]),
		}
	}

	return json.Marshal(w)
}

// UnmarshalJSON restores an Invoice from its stable wire form, the
// counterpart to MarshalJSON. Derived fields in the JSON (amount_paid,
// confirmations, is_paid, …) are ignored on the way back in; they are
// always recomputed from Transfers.
func (inv *Invoice) UnmarshalJSON(data []byte) error {
	var w wireInvoice
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	id, err := ParseID(w.ID)
	if err != nil {
		return err
	}

	inv.ID = id
	inv.Address = w.Address
	inv.AmountRequested = w.AmountRequested
	inv.ConfirmationsRequired = w.ConfirmationsRequired
	inv.CurrentHeight = w.CurrentHeight
	inv.ExpirationHeight = w.ExpirationHeight
	inv.CreationHeight = w.CreationHeight
	inv.Description = w.Description
	inv.Callback = w.Callback

	inv.Transfers = make([]Transfer, len(w.Transfers))
	for i, t := range w.Transfers {
		key, err := hexDecode32(t.OutputKey)
		if err != nil {
			return err
		}
		inv.Transfers[i] = Transfer{
			Amount:    t.Amount,
			Height:    t.Height,
			OutputKey: key,
		}
	}

	return nil
}

func hexEncode(b []byte) string {
	const table = "0123456789abcdef"
	out := make([]byte, 2*len(b))
	for i, c := range b {
		out[i*2] = table[c>>4]
		out[i*2+1] = table[c&0x0f]
	}
	return string(out)
}

func hexDecode32(s string) ([32]byte, error) {
	var out [32]byte
	if len(s) != 64 {
		return out, errBadOutputKeyHex
	}
	for i := 0; i < 32; i++ {
		hi, ok1 := hexNibble(s[i*2])
		lo, ok2 := hexNibble(s[i*2+1])
		if !ok1 || !ok2 {
			return out, errBadOutputKeyHex
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

var errBadOutputKeyHex = jsonError("invoices: malformed output key hex")

type jsonError string

func (e jsonError) Error() string { return string(e) }
