// Package emtrace decodes the compact trace records a minimal-overhead
// embedded tracing facility emits at runtime, using a self-describing
// metadata table recovered from the target binary (typically an ELF
// section) to reconstruct type-rich, human-readable lines.
package emtrace

import (
	"encoding/binary"

	"github.com/tracehost/emtrace/internal/core"
	"github.com/tracehost/emtrace/internal/utils"
	"github.com/tracehost/emtrace/internal/values"
)

// Decoder holds one parsed metadata table and the state needed to resolve
// trace-stream addresses against it: the detected header, a random-access
// reader over the section bytes, a section offset fixed once the stream's
// magic address is known, and a cache of previously decoded format
// records.
type Decoder struct {
	header  *core.Header
	reader  *core.Reader
	cache   *core.RecordCache
	offset  int64
	rebased bool
}

// NewDecoder parses the metadata table in section (C1-C3) and returns a
// Decoder ready to have its address space rebased against the trace
// stream's declared magic address. warn, if non-nil, is invoked with a
// human-readable message when the anchor is not found in section; this is
// not fatal, per the header decoder's contract.
func NewDecoder(section []byte, warn func(string)) (*Decoder, error) {
	h, err := core.ParseHeader(section, warn)
	if err != nil {
		return nil, err
	}

	return &Decoder{
		header: h,
		reader: core.NewReader(section, h.SizeTSize, h.Order),
		cache:  core.NewRecordCache(),
	}, nil
}

// Rebase fixes the decoder's section offset from the trace stream's first
// word: the observed magic_address, read little-endian off the stream and
// handed unshifted to the header's section-offset computation, which
// applies the align_pow shift. It must be called exactly once, before the
// first call to LookupOrParse.
func (d *Decoder) Rebase(magicAddress uint64) {
	d.offset = d.header.SectionOffset(magicAddress)
	d.rebased = true
}

// RebaseAddress applies align_pow and the fixed section offset to a raw
// little-endian stream address, producing the absolute section-relative
// position a FormatRecord lives at. Rebase must have been called first.
func (d *Decoder) RebaseAddress(raw uint64) int64 {
	//nolint:gosec // G115: shift result is bounds-checked against section length by the reader
	shifted := raw << d.header.AlignPow
	//nolint:gosec // G115: addresses are validated against section bounds when the record is parsed
	return int64(shifted) + d.offset
}

// LookupOrParse returns the FormatRecord at the given rebased address,
// parsing and caching it on first encounter. Every later call for the same
// address returns the identical record (at-most-once parsing).
func (d *Decoder) LookupOrParse(addr int64, withSrcLoc bool) (*core.FormatRecord, error) {
	if rec, ok := d.cache.Lookup(addr); ok {
		return rec, nil
	}

	rec, err := core.ParseFormatRecord(d.reader, d.header, addr, withSrcLoc)
	if err != nil {
		return nil, err
	}
	d.cache.Store(addr, rec)
	return rec, nil
}

// NewArgStream wraps read with the word size and byte order this
// decoder's header declared, so argument values are decoded consistently
// with the metadata table they were described by.
func (d *Decoder) NewArgStream(read values.ReadFunc) *values.Stream {
	return values.NewStream(read, d.header.SizeTSize, d.header.Order)
}

// PtrSize returns the configured pointer width in bytes, the size of each
// address word the trace stream carries.
func (d *Decoder) PtrSize() uint8 {
	return d.header.PtrSize
}

// AlignPow returns the configured address shift.
func (d *Decoder) AlignPow() uint8 {
	return d.header.AlignPow
}

// DecodeStreamAddress interprets the ptr_size-byte word raw as an unsigned
// integer, always little-endian per the fixed stream contract, independent
// of the metadata table's own detected byte order.
func DecodeStreamAddress(raw []byte) uint64 {
	return core.DecodeUint(raw, binary.LittleEndian)
}

// ReadArg pulls one argument value off stream for the given parameter.
func ReadArg(stream *values.Stream, p core.Param) (values.Value, error) {
	return values.Read(stream, p.TypeID, p.Info)
}

// ensureRebased is a defensive check used by the driver before the first
// record lookup; it is not required by the stream format itself (a
// misbehaving embedder of this package, not a malformed stream, is the
// only way to trip it).
func (d *Decoder) ensureRebased() error {
	if !d.rebased {
		return utils.NewError(utils.KindInternal, "decoder used before Rebase was called")
	}
	return nil
}
