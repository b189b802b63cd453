package moneroutil

import "math/big"

// edwards25519 is the curve Monero (like Ed25519) uses: the twisted Edwards
// curve -x^2 + y^2 = 1 + d*x^2*y^2 over the prime field F_p, p = 2^255-19.
var (
	fieldPrime = mustBigIntFromHex(
		"7fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffed")

	curveD = mustBigIntFromHex(
		"52036cee2b6ffe738cc740797779e89800700a4d4141d8ab75eb4dca135978a")

	basePointX = mustBigIntFromHex(
		"216936d3cd6e53fec0a4e231fdd6dc5c692cc7609525a7b2c9562d608f25d51")
	basePointY = mustBigIntFromHex(
		"6666666666666666666666666666666666666666666666666666666666658")
)

// point is an affine point on edwards25519, (X, Y) in F_p. The identity
// element is (0, 1).
type point struct {
	X, Y *big.Int
}

func newPoint(x, y *big.Int) *point {
	return &point{X: new(big.Int).Mod(x, fieldPrime), Y: new(big.Int).Mod(y, fieldPrime)}
}

func identityPoint() *point {
	return newPoint(big.NewInt(0), big.NewInt(1))
}

func basePoint() *point {
	return newPoint(new(big.Int).Set(basePointX), new(big.Int).Set(basePointY))
}

func fieldInverse(a *big.Int) *big.Int {
	// p is prime, so a^(p-2) mod p is a's inverse (Fermat's little theorem).
	exp := new(big.Int).Sub(fieldPrime, big.NewInt(2))
	return new(big.Int).Exp(a, exp, fieldPrime)
}

// add implements the (complete, for a=-1 twisted Edwards curves with
// non-square d) unified addition formula, which also correctly doubles a
// point when p == q.
func (p *point) add(q *point) *point {
	x1, y1 := p.X, p.Y
	x2, y2 := q.X, q.Y

	x1y2 := new(big.Int).Mul(x1, y2)
	y1x2 := new(big.Int).Mul(y1, x2)
	y1y2 := new(big.Int).Mul(y1, y2)
	x1x2 := new(big.Int).Mul(x1, x2)

	dxxyy := new(big.Int).Mul(curveD, new(big.Int).Mul(x1x2, y1y2))
	dxxyy.Mod(dxxyy, fieldPrime)

	xNum := new(big.Int).Add(x1y2, y1x2)
	xDen := new(big.Int).Add(big.NewInt(1), dxxyy)
	xDen.Mod(xDen, fieldPrime)

	yNum := new(big.Int).Add(y1y2, x1x2)
	yDen := new(big.Int).Sub(big.NewInt(1), dxxyy)
	yDen.Mod(yDen, fieldPrime)

	x3 := new(big.Int).Mul(xNum, fieldInverse(xDen))
	y3 := new(big.Int).Mul(yNum, fieldInverse(yDen))

	return newPoint(x3, y3)
}

// scalarMul computes s*P via straightforward double-and-add. Subaddress
// derivation is not in a hot loop (once per invoice, not per block), so
// constant-time multiplication is not required here.
func (p *point) scalarMul(s Scalar) *point {
	result := identityPoint()
	addend := p

	n := s.bigInt()
	for i := 0; i < n.BitLen(); i++ {
		if n.Bit(i) == 1 {
			result = result.add(addend)
		}
		addend = addend.add(addend)
	}
	return result
}

// equal reports whether p and q represent the same affine point.
func (p *point) equal(q *point) bool {
	return p.X.Cmp(q.X) == 0 && p.Y.Cmp(q.Y) == 0
}

// compress encodes the point as a 32-byte Monero/Ed25519 public key: the
// little-endian encoding of Y with the low bit of X packed into the top bit
// of the last byte.
func (p *point) compress() PublicKey {
	var out PublicKey
	yBytes := p.Y.Bytes() // big-endian
	for i, b := range yBytes {
		out[len(yBytes)-1-i] = b
	}
	if p.X.Bit(0) == 1 {
		out[31] |= 0x80
	}
	return out
}

// sqrtMod computes a square root of a modulo fieldPrime, relying on
// fieldPrime ≡ 5 (mod 8), which lets us use the standard Atkin-style
// candidate sqrt(a) = a^((p+3)/8) mod p with a single correction step.
func sqrtMod(a *big.Int) (*big.Int, bool) {
	if a.Sign() == 0 {
		return big.NewInt(0), true
	}

	exp := new(big.Int).Add(fieldPrime, big.NewInt(3))
	exp.Div(exp, big.NewInt(8))
	candidate := new(big.Int).Exp(a, exp, fieldPrime)

	sq := new(big.Int).Mul(candidate, candidate)
	sq.Mod(sq, fieldPrime)
	if sq.Cmp(new(big.Int).Mod(a, fieldPrime)) == 0 {
		return candidate, true
	}

	// Multiply by sqrt(-1) and check again; this covers the other
	// square-root branch on fields where p ≡ 5 (mod 8).
	two := big.NewInt(2)
	sqrtMinus1Exp := new(big.Int).Sub(fieldPrime, big.NewInt(1))
	sqrtMinus1Exp.Div(sqrtMinus1Exp, big.NewInt(4))
	sqrtMinus1 := new(big.Int).Exp(two, sqrtMinus1Exp, fieldPrime)

	candidate.Mul(candidate, sqrtMinus1)
	candidate.Mod(candidate, fieldPrime)

	sq.Mul(candidate, candidate)
	sq.Mod(sq, fieldPrime)
	if sq.Cmp(new(big.Int).Mod(a, fieldPrime)) == 0 {
		return candidate, true
	}

	return nil, false
}

// decompress recovers the affine point encoded by a compressed 32-byte
// Monero/Ed25519 public key, using the curve equation to recover X from Y.
func decompress(k PublicKey) (*point, bool) {
	yBytes := make([]byte, KeySize)
	copy(yBytes, k[:])
	xSignBit := yBytes[31] & 0x80
	yBytes[31] &= 0x7f

	y := new(big.Int).SetBytes(reverse(yBytes))
	if y.Cmp(fieldPrime) >= 0 {
		return nil, false
	}

	// x^2 = (y^2 - 1) / (d*y^2 + 1)
	y2 := new(big.Int).Mul(y, y)
	y2.Mod(y2, fieldPrime)

	num := new(big.Int).Sub(y2, big.NewInt(1))
	num.Mod(num, fieldPrime)

	den := new(big.Int).Mul(curveD, y2)
	den.Add(den, big.NewInt(1))
	den.Mod(den, fieldPrime)

	x2 := new(big.Int).Mul(num, fieldInverse(den))
	x2.Mod(x2, fieldPrime)

	x, ok := sqrtMod(x2)
	if !ok {
		return nil, false
	}

	if byte(x.Bit(0))<<7 != xSignBit && x.Sign() != 0 {
		x.Sub(fieldPrime, x)
		x.Mod(x, fieldPrime)
	}

	return newPoint(x, y), true
}
