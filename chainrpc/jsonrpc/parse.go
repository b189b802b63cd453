package jsonrpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/xmrgateway/xmrgateway/chainrpc"
)

// txJSON mirrors the structure monerod emits for decode_as_json: true,
// restricted to the fields the scanner needs.
type txJSON struct {
	Version    int               `json:"version"`
	UnlockTime uint64            `json:"unlock_time"`
	Vin        []json.RawMessage `json:"vin"`
	Vout       []voutJSON        `json:"vout"`
	Extra      extraBytes        `json:"extra"`
	RctSig     *rctSigJSON       `json:"rct_signatures"`
}

// extraBytes decodes a transaction's extra field, which monerod's JSON
// encoding represents as an array of byte-sized integers rather than a
// base64 string.
type extraBytes []byte

func (e *extraBytes) UnmarshalJSON(data []byte) error {
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]byte, len(raw))
	for i, v := range raw {
		out[i] = byte(v)
	}
	*e = out
	return nil
}

type voutJSON struct {
	Amount uint64        `json:"amount"`
	Target targetJSON    `json:"target"`
}

// targetJSON covers both the legacy "key" target and the view-tag-bearing
// "tagged_key" target introduced for Monero's view tags feature.
type targetJSON struct {
	Key       string `json:"key"`
	TaggedKey *struct {
		Key     string `json:"key"`
		ViewTag string `json:"view_tag"`
	} `json:"tagged_key"`
}

type rctSigJSON struct {
	Type     int            `json:"type"`
	EcdhInfo []ecdhInfoJSON `json:"ecdhInfo"`
}

// ecdhInfoJSON holds the encrypted per-output amount. Pre-CLSAG encodings
// included a "mask" field alongside; bulletproofs+ onward carries only the
// 8-byte masked amount, which is all Scan ever needs.
type ecdhInfoJSON struct {
	Amount string `json:"amount"`
}

const (
	txExtraTagPubkey       = 0x01
	txExtraTagNonce        = 0x02
	txExtraTagAdditionalKeys = 0x04
)

// parseTransaction decodes a monerod decode_as_json transaction body into
// the chainrpc.Transaction shape the scanner consumes.
func parseTransaction(hashHex, asJSON string) (chainrpc.Transaction, error) {
	var tj txJSON
	if err := json.Unmarshal([]byte(asJSON), &tj); err != nil {
		return chainrpc.Transaction{}, fmt.Errorf("unmarshaling tx body: %w", err)
	}

	hash, err := decodeHash(hashHex)
	if err != nil {
		return chainrpc.Transaction{}, fmt.Errorf("tx hash: %w", err)
	}

	txPubKey, additional, err := parseExtra([]byte(tj.Extra))
	if err != nil {
		return chainrpc.Transaction{}, fmt.Errorf("parsing extra: %w", err)
	}

	outputs, err := parseOutputs(tj)
	if err != nil {
		return chainrpc.Transaction{}, fmt.Errorf("parsing outputs: %w", err)
	}

	return chainrpc.Transaction{
		Hash:              hash,
		TxPubKey:          txPubKey,
		AdditionalPubKeys: additional,
		Outputs:           outputs,
		UnlockTime:        tj.UnlockTime,
	}, nil
}

// parseExtra walks a transaction's raw extra field, a sequence of
// tag-prefixed records, pulling out the main tx pubkey (tag 0x01) and, if
// present, the additional-pubkeys record (tag 0x04) used when a
// transaction pays more than one subaddress account.
func parseExtra(extra []byte) (main [32]byte, additional [][32]byte, err error) {
	i := 0
	for i < len(extra) {
		tag := extra[i]
		i++

		switch tag {
		case txExtraTagPubkey:
			if i+32 > len(extra) {
				return main, nil, fmt.Errorf("truncated tx pubkey field")
			}
			copy(main[:], extra[i:i+32])
			i += 32

		case txExtraTagAdditionalKeys:
			count, n, ok := readVarint(extra[i:])
			if !ok {
				return main, nil, fmt.Errorf("truncated additional-pubkeys count")
			}
			i += n
			additional = make([][32]byte, 0, count)
			for k := uint64(0); k < count; k++ {
				if i+32 > len(extra) {
					return main, nil, fmt.Errorf("truncated additional pubkey")
				}
				var key [32]byte
				copy(key[:], extra[i:i+32])
				additional = append(additional, key)
				i += 32
			}

		case txExtraTagNonce:
			if i >= len(extra) {
				return main, nil, fmt.Errorf("truncated nonce length")
			}
			length := int(extra[i])
			i++
			if i+length > len(extra) {
				return main, nil, fmt.Errorf("truncated nonce payload")
			}
			i += length // encrypted payment IDs are not tracked by this gateway

		default:
			// Unknown or padding (0x00) tag: nothing to skip reliably
			// without its own length prefix, so stop. Any tx pubkey and
			// additional keys, which always precede padding, are already
			// captured.
			i = len(extra)
		}
	}
	return main, additional, nil
}

// readVarint decodes a Monero/LEB128-style unsigned varint, returning the
// value, the number of bytes consumed, and whether decoding succeeded.
func readVarint(b []byte) (uint64, int, bool) {
	var val uint64
	var shift uint
	for i, by := range b {
		val |= uint64(by&0x7f) << shift
		if by&0x80 == 0 {
			return val, i + 1, true
		}
		shift += 7
		if shift > 63 {
			return 0, 0, false
		}
	}
	return 0, 0, false
}

func parseOutputs(tj txJSON) ([]chainrpc.Output, error) {
	outputs := make([]chainrpc.Output, 0, len(tj.Vout))
	ringCT := tj.RctSig != nil

	for idx, v := range tj.Vout {
		keyHex := v.Target.Key
		hasViewTag := false
		var viewTag byte

		if v.Target.TaggedKey != nil {
			keyHex = v.Target.TaggedKey.Key
			hasViewTag = true
			tagBytes, err := hex.DecodeString(v.Target.TaggedKey.ViewTag)
			if err != nil || len(tagBytes) != 1 {
				return nil, fmt.Errorf("output %d: malformed view tag", idx)
			}
			viewTag = tagBytes[0]
		}

		keyBytes, err := hex.DecodeString(keyHex)
		if err != nil || len(keyBytes) != 32 {
			return nil, fmt.Errorf("output %d: malformed target key", idx)
		}
		var key [32]byte
		copy(key[:], keyBytes)

		out := chainrpc.Output{
			Key:         key,
			RingCT:      ringCT,
			ClearAmount: v.Amount,
			HasViewTag:  hasViewTag,
			ViewTag:     viewTag,
		}

		if ringCT && idx < len(tj.RctSig.EcdhInfo) {
			amtBytes, err := hex.DecodeString(tj.RctSig.EcdhInfo[idx].Amount)
			if err != nil {
				return nil, fmt.Errorf("output %d: malformed encrypted amount", idx)
			}
			// bulletproofs+ truncates the masked amount to 8 bytes; older
			// encodings zero-pad to the same width here.
			copy(out.EncryptedAmount[:], amtBytes)
		}

		outputs = append(outputs, out)
	}

	return outputs, nil
}
