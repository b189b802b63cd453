package subaddr

import (
	"crypto/rand"
	"encoding/binary"
)

// randomSeed draws a seed from the OS CSPRNG for the unseeded (production)
// case; math/rand is only ever used downstream of it for the non-sensitive
// job of picking among already-unused minor indices.
func randomSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is already a fatal condition for the
		// process; fall back to a fixed seed rather than panic here.
		return 1
	}
	return int64(binary.LittleEndian.Uint64(buf[:]))
}
