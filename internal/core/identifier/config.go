// Package identifier provides domain contracts for entity-prefixed identifier allocation.
package identifier

import (
	"fmt"
	"math"
)

const (
	// DefaultInitialLength is the digit length new keys start at (CL-10000 .. CL-99999).
	DefaultInitialLength = 5

	// DefaultMaxLength is the widest suffix the allocator escalates to.
	DefaultMaxLength = 10

	// DefaultMaxRetries bounds collision retries at a single digit length.
	DefaultMaxRetries = 50

	// DefaultMaxBatch bounds a single GenerateBatch call.
	DefaultMaxBatch = 1000

	// MaxSupportedLength is the widest digit length whose range fits in uint64.
	MaxSupportedLength = 19
)

// Strategy selects the dispersion function.
type Strategy int

const (
	// DispersionMultiplicative maps sequences with (seq*M mod P + salt) mod range.
	// Cheap, but not guaranteed to be collision free; the claim/registry
	// retry path absorbs its collisions.
	DispersionMultiplicative Strategy = iota

	// DispersionFeistel maps sequences through a keyed Feistel permutation
	// with cycle walking. Bijective over the whole range.
	DispersionFeistel
)

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	switch s {
	case DispersionFeistel:
		return "feistel"
	default:
		return "multiplicative"
	}
}

// ParseStrategy converts a configuration name into a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "", "multiplicative":
		return DispersionMultiplicative, nil
	case "feistel":
		return DispersionFeistel, nil
	default:
		return DispersionMultiplicative, fmt.Errorf("unknown dispersion strategy %q", name)
	}
}

// Options configures the allocator.
type Options struct {
	// InitialLength is the first digit length tried for every key.
	InitialLength int

	// MaxLength is the last digit length tried before CapacityExhausted.
	MaxLength int

	// MaxRetries is the number of attempts per digit length on collisions.
	MaxRetries int

	// MaxBatch is the largest count accepted by GenerateBatch.
	MaxBatch int

	// Strategy selects the dispersion function.
	Strategy Strategy
}

// DefaultOptions returns the standard allocator options.
func DefaultOptions() Options {
	return Options{
		InitialLength: DefaultInitialLength,
		MaxLength:     DefaultMaxLength,
		MaxRetries:    DefaultMaxRetries,
		MaxBatch:      DefaultMaxBatch,
		Strategy:      DispersionMultiplicative,
	}
}

// Validate checks option bounds.
func (o Options) Validate() error {
	if o.InitialLength < 1 || o.InitialLength > MaxSupportedLength {
		return fmt.Errorf("initial length %d out of range [1, %d]", o.InitialLength, MaxSupportedLength)
	}
	if o.MaxLength < o.InitialLength || o.MaxLength > MaxSupportedLength {
		return fmt.Errorf("max length %d out of range [%d, %d]", o.MaxLength, o.InitialLength, MaxSupportedLength)
	}
	if o.MaxRetries < 1 {
		return fmt.Errorf("max retries must be positive, got %d", o.MaxRetries)
	}
	if o.MaxBatch < 1 {
		return fmt.Errorf("max batch must be positive, got %d", o.MaxBatch)
	}
	return nil
}

// Bounds returns the inclusive [min, max] range of numbers with exactly digitLength digits.
func Bounds(digitLength int) (min, max uint64) {
	min = pow10(digitLength - 1)
	max = pow10(digitLength) - 1
	if digitLength >= 20 {
		max = math.MaxUint64
	}
	return min, max
}

// Capacity returns the count of distinct numbers with exactly digitLength digits.
func Capacity(digitLength int) uint64 {
	min, max := Bounds(digitLength)
	return max - min + 1
}

func pow10(n int) uint64 {
	r := uint64(1)
	for i := 0; i < n; i++ {
		r *= 10
	}
	return r
}
