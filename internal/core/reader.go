package core

import (
	"encoding/binary"
	"fmt"

	"github.com/tracehost/emtrace/internal/utils"
)

// Reader is a random-access reader over the metadata section bytes. It is
// stateless between calls: every primitive takes an explicit position and
// returns the position immediately following what it consumed, so recursive
// descents (the type-descriptor graph in particular) thread their cursor
// through return values and an explicit frontier rather than through a
// field mutated by nested calls.
type Reader struct {
	section   []byte
	sizeTSize uint8
	order     binary.ByteOrder
}

// NewReader constructs a Reader over section, configured with the word
// size and byte order recovered by the header decoder.
func NewReader(section []byte, sizeTSize uint8, order binary.ByteOrder) *Reader {
	return &Reader{section: section, sizeTSize: sizeTSize, order: order}
}

// Len returns the length of the underlying section buffer.
func (r *Reader) Len() int {
	return len(r.section)
}

// ConsumeAt returns the n bytes at pos and the position immediately after
// them.
func (r *Reader) ConsumeAt(pos int64, n int) (data []byte, next int64, err error) {
	if pos < 0 || n < 0 || pos+int64(n) > int64(len(r.section)) {
		return nil, pos, fmt.Errorf("read of %d bytes at offset %d exceeds section bounds (len=%d)", n, pos, len(r.section))
	}
	return r.section[pos : pos+int64(n)], pos + int64(n), nil
}

// ConsumeSizeTAt reads one size_t-sized word at pos, interpreted in the
// reader's byte order, and returns the position immediately after it.
func (r *Reader) ConsumeSizeTAt(pos int64) (value uint64, next int64, err error) {
	data, next, err := r.ConsumeAt(pos, int(r.sizeTSize))
	if err != nil {
		return 0, pos, utils.WrapError(utils.KindInternal, "consume size_t", err)
	}
	return DecodeUint(data, r.order), next, nil
}

// Order returns the reader's configured byte order, for callers (the
// stream value parser in particular) that must decode further words in
// the same order as the metadata table.
func (r *Reader) Order() binary.ByteOrder {
	return r.order
}

// SizeTSize returns the configured size_t width in bytes.
func (r *Reader) SizeTSize() uint8 {
	return r.sizeTSize
}

// ConsumePtrAt reads a word of the given width (used for the ptr_size
// field, which may differ from size_t_size) at pos, interpreted in the
// given byte order.
func (r *Reader) ConsumePtrAt(pos int64, width uint8, order binary.ByteOrder) (value uint64, next int64, err error) {
	data, next, err := r.ConsumeAt(pos, int(width))
	if err != nil {
		return 0, pos, utils.WrapError(utils.KindInternal, "consume ptr", err)
	}
	return DecodeUint(data, order), next, nil
}

// ReadCStringAt reads a NUL-terminated UTF-8 string starting at off, with
// the NUL excluded from the returned text.
func (r *Reader) ReadCStringAt(off int64) (string, error) {
	if off < 0 || off > int64(len(r.section)) {
		return "", fmt.Errorf("cstring offset %d out of bounds (len=%d)", off, len(r.section))
	}

	end := off
	for end < int64(len(r.section)) && r.section[end] != 0 {
		end++
		if end-off > utils.MaxStringBytes {
			return "", fmt.Errorf("cstring at offset %d exceeds %d bytes without a terminator", off, utils.MaxStringBytes)
		}
	}
	if end >= int64(len(r.section)) {
		return "", fmt.Errorf("cstring at offset %d runs off the end of the section without a NUL terminator", off)
	}

	return string(r.section[off:end]), nil
}

// DecodeUint interprets data (1, 2, 4, 8, or 16 bytes) as an unsigned
// integer in the given byte order. 16-byte (int128/uint128) words are
// truncated to their low 8 bytes on the assumption that no trace argument
// or metadata offset in practice exceeds 64 bits; only the representation
// width varies by target, not the values actually carried.
func DecodeUint(data []byte, order binary.ByteOrder) uint64 {
	switch len(data) {
	case 1:
		return uint64(data[0])
	case 2:
		return uint64(order.Uint16(data))
	case 4:
		return uint64(order.Uint32(data))
	case 8:
		return order.Uint64(data)
	case 16:
		if order == binary.LittleEndian {
			return order.Uint64(data[:8])
		}
		return order.Uint64(data[8:])
	default:
		// Defensive: header validation rejects any other width before a
		// Reader is ever constructed.
		var v uint64
		for i, b := range data {
			if order == binary.LittleEndian {
				v |= uint64(b) << (8 * uint(i))
			} else {
				v = v<<8 | uint64(b)
			}
		}
		return v
	}
}

// ValidWordSize reports whether n is one of the word sizes the format
// allows for size_t_size or ptr_size.
func ValidWordSize(n uint8) bool {
	switch n {
	case 1, 2, 4, 8, 16:
		return true
	default:
		return false
	}
}
