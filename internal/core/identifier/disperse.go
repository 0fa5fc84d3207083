package identifier

import (
	"crypto/sha256"
	"encoding/binary"
	"math/bits"
)

// Disperser turns a monotonic sequence into an apparently random number
// with exactly digitLength digits. Implementations are pure.
type Disperser interface {
	Disperse(sequence uint64, digitLength int, prefix, scope string) uint64
}

// DisperserFunc adapts a function to Disperser.
type DisperserFunc func(sequence uint64, digitLength int, prefix, scope string) uint64

// Disperse implements Disperser.
func (f DisperserFunc) Disperse(sequence uint64, digitLength int, prefix, scope string) uint64 {
	return f(sequence, digitLength, prefix, scope)
}

// NewDisperser returns the Disperser for a strategy.
func NewDisperser(s Strategy) Disperser {
	if s == DispersionFeistel {
		return DisperserFunc(DisperseFeistel)
	}
	return DisperserFunc(Disperse)
}

// Per-length multipliers and moduli. Each modulus sits just under the range size.
var (
	primeMultipliers = map[int]uint64{
		5:  48271,
		6:  950627,
		7:  9765131,
		8:  97654321,
		9:  987654319,
		10: 9876543211,
	}
	primeModuli = map[int]uint64{
		5:  89989,
		6:  899981,
		7:  8999989,
		8:  89999999,
		9:  899999999,
		10: 8999999999,
	}
)

const fallbackMultiplier = 48271

// Disperse maps sequence into [10^(L-1), 10^L - 1] as
// min + ((sequence*M mod P) + O) mod rangeSize, where O is derived from "prefix:scope".
// The product is computed in 128 bits.
func Disperse(sequence uint64, digitLength int, prefix, scope string) uint64 {
	min, max := Bounds(digitLength)
	rangeSize := max - min + 1

	multiplier, ok := primeMultipliers[digitLength]
	if !ok {
		multiplier = fallbackMultiplier
	}
	modulus, ok := primeModuli[digitLength]
	if !ok {
		modulus = rangeSize - 1
	}
	if modulus == 0 {
		modulus = rangeSize
	}

	hi, lo := bits.Mul64(sequence, multiplier)
	mixed := bits.Rem64(hi, lo, modulus) % rangeSize
	offset := saltOffset(prefix, scope, rangeSize)

	// mixed and offset are both below rangeSize <= 9e18, so the sum fits.
	return min + (mixed+offset)%rangeSize
}

// saltOffset hashes "prefix:scope" into [0, rangeSize).
func saltOffset(prefix, scope string, rangeSize uint64) uint64 {
	sum := sha256.Sum256([]byte(saltString(prefix, scope)))
	return uint64(binary.BigEndian.Uint32(sum[:4])) % rangeSize
}

func saltString(prefix, scope string) string {
	if scope == "" {
		scope = GlobalScope
	}
	return prefix + ":" + scope
}

const feistelRounds = 4

// DisperseFeistel maps sequence through a keyed balanced Feistel network over
// the smallest even-bit domain covering the range, cycle walking until the
// value lands inside it. Sequences 1..capacity map onto the range bijectively.
func DisperseFeistel(sequence uint64, digitLength int, prefix, scope string) uint64 {
	min, max := Bounds(digitLength)
	rangeSize := max - min + 1

	halfBits := uint((bits.Len64(rangeSize-1) + 1) / 2)
	if halfBits == 0 {
		halfBits = 1
	}
	key := sha256.Sum256([]byte(saltString(prefix, scope)))

	// Sequences start at 1.
	x := sequence % rangeSize
	if x == 0 {
		x = rangeSize
	}
	x--

	for {
		x = feistel(x, halfBits, &key)
		if x < rangeSize {
			return min + x
		}
	}
}

func feistel(x uint64, halfBits uint, key *[32]byte) uint64 {
	mask := uint64(1)<<halfBits - 1
	left, right := x>>halfBits, x&mask
	for round := 0; round < feistelRounds; round++ {
		left, right = right, left^(roundValue(key, round, right)&mask)
	}
	return left<<halfBits | right
}

func roundValue(key *[32]byte, round int, half uint64) uint64 {
	var buf [41]byte
	copy(buf[:32], key[:])
	buf[32] = byte(round)
	binary.BigEndian.PutUint64(buf[33:], half)
	sum := sha256.Sum256(buf[:])
	return binary.BigEndian.Uint64(sum[:8])
}
