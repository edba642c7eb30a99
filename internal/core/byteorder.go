// Package core implements the hard core of the emtrace host-side decoder:
// byte-order detection, the metadata reader, header parsing, the recursive
// type-descriptor graph, and format-record decoding. It mirrors the layout
// of a self-describing binary metadata table the way the original HDF5
// implementation this package is modeled on mirrors the HDF5 superblock.
package core

import (
	"fmt"

	"github.com/tracehost/emtrace/internal/utils"
)

// ByteOrder is the outcome of running the byte-order detector (C1) over a
// self-identifying permutation.
type ByteOrder int

const (
	// LittleEndian means b[0]==0 and b ascends: {0,1,2,...,n-1}.
	LittleEndian ByteOrder = iota
	// BigEndian means b[0]==n-1 and b descends: {n-1,n-2,...,0}.
	BigEndian
)

// DetectByteOrder recovers the target's byte order from a permutation of
// {0..n-1}, 1 <= n <= 256. It returns an error for both "unknown" (a valid
// permutation that is neither strictly ascending nor strictly descending)
// and outright invalid input (duplicate byte, byte >= n, or n out of
// range): both abort decoding with a user-visible error, so there is no
// reason for callers to distinguish them.
func DetectByteOrder(b []byte) (ByteOrder, error) {
	n := len(b)
	if n < 1 || n > 256 {
		return 0, utils.NewError(utils.KindByteorderUndetectable, fmt.Sprintf("byteorder permutation length %d out of range [1,256]", n))
	}

	if isAscending(b) {
		return LittleEndian, nil
	}
	if isDescending(b) {
		return BigEndian, nil
	}

	if err := validatePermutation(b); err != nil {
		return 0, utils.WrapError(utils.KindByteorderUndetectable, "byteorder permutation invalid", err)
	}

	return 0, utils.NewError(utils.KindByteorderUndetectable, "byteorder permutation is neither ascending nor descending")
}

func isAscending(b []byte) bool {
	for i, v := range b {
		//nolint:gosec // G115: i bounded by len(b) <= 256
		if v != byte(i) {
			return false
		}
	}
	return true
}

func isDescending(b []byte) bool {
	n := len(b)
	for i, v := range b {
		//nolint:gosec // G115: n-1-i bounded by len(b) <= 256
		if v != byte(n-1-i) {
			return false
		}
	}
	return true
}

// validatePermutation reports a descriptive error when b is not a
// permutation of {0..n-1}: a duplicate byte or a byte >= n.
func validatePermutation(b []byte) error {
	n := len(b)
	seen := make([]bool, n)
	for i, v := range b {
		if int(v) >= n {
			return fmt.Errorf("byte %d at position %d is out of range for length %d", v, i, n)
		}
		if seen[v] {
			return fmt.Errorf("duplicate byte %d at position %d", v, i)
		}
		seen[v] = true
	}
	return nil
}
