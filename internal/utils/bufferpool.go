package utils

import "sync"

// scratchPool holds reusable byte slices for the stream value parser's
// null-terminated string reads, which accumulate a string one byte at a
// time. The metadata reader does not use it.
var scratchPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, 0, 64)
	},
}

// GetBuffer returns a byte slice of length size from the pool, growing the
// backing array if the pooled one is too small.
func GetBuffer(size int) []byte {
	buf := scratchPool.Get().([]byte)
	if cap(buf) < size {
		return make([]byte, size, size*2)
	}
	return buf[:size]
}

// ReleaseBuffer returns a buffer to the pool for reuse.
func ReleaseBuffer(buf []byte) {
	//nolint:staticcheck // SA6002: slice descriptor copy is acceptable for sync.Pool
	scratchPool.Put(buf[:0])
}
