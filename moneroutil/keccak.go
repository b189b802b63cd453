package moneroutil

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// Keccak256 computes the original (pre-NIST-padding) Keccak-256 digest of
// the concatenation of data, matching Monero's hash function everywhere it
// says "Keccak" in the spec (Hs, key derivations, view tags, the base58
// checksum). golang.org/x/crypto/sha3's "legacy" constructor exists
// specifically for chains, like this one and Ethereum's, that adopted
// Keccak before it was finalized into SHA-3 with different padding.
func Keccak256(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d) //nolint:errcheck // hash.Hash.Write never errors
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HashToScalar implements Monero's H_s: Keccak-256 the input, then reduce
// the result modulo the group order l so it is usable as an edwards25519
// scalar.
func HashToScalar(data ...[]byte) Scalar {
	digest := Keccak256(data...)
	return ScalarFromBytes(digest[:])
}

// viewTag returns the single-byte view tag for a shared secret: the first
// byte of Keccak256("view_tag" || sharedSecretInput || output_index), with
// output_index encoded as 8 little-endian bytes. ViewTag passes the bytes
// of the output's shared secret s_n as sharedSecretInput.
func viewTag(sharedSecretInput []byte, outputIndex uint64) byte {
	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], outputIndex)
	digest := Keccak256([]byte("view_tag"), sharedSecretInput, idx[:])
	return digest[0]
}

// AmountKey derives the 8-byte keystream RingCT XORs an output's encrypted
// amount against: the first 8 bytes of Keccak256("amount" || s_n).
func AmountKey(sharedSecret Scalar) [8]byte {
	digest := Keccak256([]byte("amount"), sharedSecret.Bytes())
	var key [8]byte
	copy(key[:], digest[:8])
	return key
}

// DecryptAmount recovers a RingCT output's cleartext amount given its
// on-chain encrypted form and the output's shared secret. Decryption is
// XOR, so it is also encryption; the same function applied twice is the
// identity.
func DecryptAmount(encrypted [8]byte, sharedSecret Scalar) uint64 {
	key := AmountKey(sharedSecret)
	var xored [8]byte
	for i := range xored {
		xored[i] = encrypted[i] ^ key[i]
	}
	return binary.LittleEndian.Uint64(xored[:])
}
