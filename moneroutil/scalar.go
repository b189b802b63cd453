package moneroutil

import "math/big"

// groupOrderHex is l = 2^252 + 27742317777372353535851937790883648493, the
// order of the edwards25519 prime-order subgroup.
const groupOrderHex = "1000000000000000000000000000000014def9dea2f79cd65812631a5cf5d3ed"

var groupOrder = mustBigIntFromHex(groupOrderHex)

func mustBigIntFromHex(h string) *big.Int {
	n, ok := new(big.Int).SetString(h, 16)
	if !ok {
		panic("moneroutil: invalid constant " + h)
	}
	return n
}

// Scalar is an integer modulo the edwards25519 group order l, stored as a
// little-endian 32-byte Key so it round-trips through the same wire
// encoding as a PublicKey or PrivateViewKey.
type Scalar Key

// ScalarFromBytes reduces an arbitrary-length little-endian byte string
// modulo l. Monero always feeds this a 32-byte Keccak-256 digest, but the
// reduction itself works for any length.
func ScalarFromBytes(b []byte) Scalar {
	n := new(big.Int).SetBytes(reverse(b))
	n.Mod(n, groupOrder)
	return scalarFromBigInt(n)
}

// ScalarFromUint64 returns the scalar representation of a small non-negative
// integer, used when deriving per-output scalars like the output index.
func ScalarFromUint64(v uint64) Scalar {
	return scalarFromBigInt(new(big.Int).SetUint64(v))
}

func scalarFromBigInt(n *big.Int) Scalar {
	var s Scalar
	b := n.Bytes() // big-endian, no leading zeros
	for i := 0; i < len(b) && i < KeySize; i++ {
		s[i] = b[len(b)-1-i]
	}
	return s
}

func (s Scalar) bigInt() *big.Int {
	return new(big.Int).SetBytes(reverse(s[:]))
}

// Add returns s + other, reduced modulo l.
func (s Scalar) Add(other Scalar) Scalar {
	n := new(big.Int).Add(s.bigInt(), other.bigInt())
	n.Mod(n, groupOrder)
	return scalarFromBigInt(n)
}

// Mul returns s * other, reduced modulo l.
func (s Scalar) Mul(other Scalar) Scalar {
	n := new(big.Int).Mul(s.bigInt(), other.bigInt())
	n.Mod(n, groupOrder)
	return scalarFromBigInt(n)
}

// Sub returns s - other, reduced modulo l.
func (s Scalar) Sub(other Scalar) Scalar {
	n := new(big.Int).Sub(s.bigInt(), other.bigInt())
	n.Mod(n, groupOrder)
	return scalarFromBigInt(n)
}

// Bytes returns the 32-byte little-endian encoding of the scalar.
func (s Scalar) Bytes() []byte {
	return Key(s).Bytes()
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
