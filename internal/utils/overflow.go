package utils

import (
	"fmt"
	"math"
)

// CheckMultiplyOverflow reports whether multiplying two uint64 values would
// overflow, without performing the multiplication.
func CheckMultiplyOverflow(a, b uint64) error {
	if a == 0 || b == 0 {
		return nil
	}

	if a > math.MaxUint64/b {
		return fmt.Errorf("multiplication overflow: %d * %d exceeds uint64 max", a, b)
	}

	return nil
}

// SafeMultiply multiplies two uint64 values, returning an error instead of
// silently wrapping on overflow.
func SafeMultiply(a, b uint64) (uint64, error) {
	if err := CheckMultiplyOverflow(a, b); err != nil {
		return 0, err
	}
	return a * b, nil
}

// Limits on untrusted sizes read from the stream. A length-prefixed list or
// string declares its own size inline; without a ceiling, a single
// corrupted or adversarial count would otherwise drive an allocation of
// unbounded size before a single byte of the declared data is even read.
const (
	// MaxListElements bounds how many elements a single length-prefixed
	// list may declare.
	MaxListElements = 1 << 24

	// MaxStringBytes bounds how many bytes a single length-prefixed or
	// null-terminated string may occupy.
	MaxStringBytes = 16 * 1024 * 1024

	// MaxTypeNestingDepth bounds the depth of the explicit frontier used
	// to walk a type-descriptor graph, guarding against pathological or
	// cyclic metadata rather than legitimate deep nesting.
	MaxTypeNestingDepth = 64
)

// ValidateCount validates that a count read from the stream (a list
// element count, a string length) is within the given ceiling.
func ValidateCount(count uint64, max uint64, description string) error {
	if count > max {
		return fmt.Errorf("%s: count %d exceeds maximum %d", description, count, max)
	}
	return nil
}

// CalculateListByteSize safely computes the number of raw bytes a
// length-prefixed list of elementCount elements of elementSize bytes each
// occupies in the stream, with overflow and ceiling checks.
func CalculateListByteSize(elementCount, elementSize uint64) (uint64, error) {
	if err := ValidateCount(elementCount, MaxListElements, "list element count"); err != nil {
		return 0, err
	}

	total, err := SafeMultiply(elementCount, elementSize)
	if err != nil {
		return 0, fmt.Errorf("list byte size overflow: %w", err)
	}

	return total, nil
}
