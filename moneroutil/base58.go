package moneroutil

import "math/big"

// Monero's base58 alphabet is the same 58-character Bitcoin alphabet, but
// the encoding scheme itself is entirely different: input is split into
// 8-byte blocks (a final short block is allowed), and each block is encoded
// to a *fixed* number of base58 characters (padding with leading '1's),
// rather than Bitcoin's variable-length whole-buffer encoding. This is why
// no third-party base58 package in the retrieval pack (none target Monero)
// can be reused here — see DESIGN.md.
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// fullBlockSize and fullEncodedBlockSize are Monero's base58 block
// constants: 8 raw bytes encode to exactly 11 base58 characters.
const (
	fullBlockSize        = 8
	fullEncodedBlockSize = 11
)

// encodedBlockSizes[i] is the number of base58 characters a partial block
// of i raw bytes (0 < i < fullBlockSize) encodes to.
var encodedBlockSizes = [fullBlockSize + 1]int{0, 2, 3, 5, 6, 7, 9, 10, 11}

var base58Radix = big.NewInt(58)

// Base58Encode implements Monero's block-wise base58 encoding.
func Base58Encode(data []byte) string {
	var out []byte

	fullBlockCount := len(data) / fullBlockSize
	lastBlockSize := len(data) % fullBlockSize

	for i := 0; i < fullBlockCount; i++ {
		block := data[i*fullBlockSize : (i+1)*fullBlockSize]
		out = append(out, encodeBlock(block, fullEncodedBlockSize)...)
	}

	if lastBlockSize > 0 {
		block := data[fullBlockCount*fullBlockSize:]
		out = append(out, encodeBlock(block, encodedBlockSizes[lastBlockSize])...)
	}

	return string(out)
}

func encodeBlock(block []byte, encodedSize int) []byte {
	n := new(big.Int).SetBytes(block)

	out := make([]byte, encodedSize)
	for i := encodedSize - 1; i >= 0; i-- {
		var rem big.Int
		n.DivMod(n, base58Radix, &rem)
		out[i] = base58Alphabet[rem.Int64()]
	}

	return out
}

// Base58Decode implements the inverse of Base58Encode. It returns false if
// s is not validly-formed Monero base58 (wrong block sizes, characters
// outside the alphabet, or a block that decodes to a value too large for
// its declared raw size).
func Base58Decode(s string) ([]byte, bool) {
	fullBlockCount := len(s) / fullEncodedBlockSize
	lastEncodedSize := len(s) % fullEncodedBlockSize

	lastBlockSize := 0
	if lastEncodedSize > 0 {
		found := false
		for raw, enc := range encodedBlockSizes {
			if enc == lastEncodedSize {
				lastBlockSize = raw
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}

	var out []byte
	for i := 0; i < fullBlockCount; i++ {
		block, ok := decodeBlock(s[i*fullEncodedBlockSize:(i+1)*fullEncodedBlockSize], fullBlockSize)
		if !ok {
			return nil, false
		}
		out = append(out, block...)
	}

	if lastEncodedSize > 0 {
		block, ok := decodeBlock(s[fullBlockCount*fullEncodedBlockSize:], lastBlockSize)
		if !ok {
			return nil, false
		}
		out = append(out, block...)
	}

	return out, true
}

func decodeBlock(s string, rawSize int) ([]byte, bool) {
	n := new(big.Int)
	for i := 0; i < len(s); i++ {
		idx := indexInAlphabet(s[i])
		if idx < 0 {
			return nil, false
		}
		n.Mul(n, base58Radix)
		n.Add(n, big.NewInt(int64(idx)))
	}

	raw := n.Bytes()
	if len(raw) > rawSize {
		return nil, false
	}

	out := make([]byte, rawSize)
	copy(out[rawSize-len(raw):], raw)
	return out, true
}

func indexInAlphabet(c byte) int {
	for i := 0; i < len(base58Alphabet); i++ {
		if base58Alphabet[i] == c {
			return i
		}
	}
	return -1
}
