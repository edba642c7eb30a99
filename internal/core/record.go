package core

import "github.com/tracehost/emtrace/internal/utils"

// FormatterID selects which rendering style a FormatRecord uses (C7).
type FormatterID uint64

const (
	// FormatterCurly is style 0: curly-brace positional formatting.
	FormatterCurly FormatterID = 0
	// FormatterNone is style 1 (or any unrecognized id): the format
	// string is returned unchanged.
	FormatterNone FormatterID = 1
	// FormatterPrintf is style 2: C-style printf formatting.
	FormatterPrintf FormatterID = 2
)

// Param is one parameter of a FormatRecord: its type name and the decoded
// TypeInfo tree describing how to pull it from the stream.
type Param struct {
	TypeID string
	Info   *TypeInfo
}

// FormatRecord is the fully decoded description of one trace site.
type FormatRecord struct {
	Addr        int64
	FmtString   string
	Params      []Param
	FormatterID FormatterID
	File        string
	Line        uint64
}

// ParseFormatRecord decodes one FormatRecord at the given rebased address.
// withSrcLoc controls whether the trailing file/line fields are present in
// the metadata layout at all (the emitter omits them entirely when source
// location was not requested at build time).
func ParseFormatRecord(r *Reader, h *Header, addr int64, withSrcLoc bool) (*FormatRecord, error) {
	base := addr
	pos := addr

	numArgs, pos, err := r.ConsumeSizeTAt(pos)
	if err != nil {
		return nil, utils.WrapError(utils.KindInternal, "read num_args", err)
	}

	fmtOff, pos, err := r.ConsumeSizeTAt(pos)
	if err != nil {
		return nil, utils.WrapError(utils.KindInternal, "read fmt_string_offset", err)
	}

	params := make([]Param, 0, numArgs)
	for i := uint64(0); i < numArgs; i++ {
		var typeNameOff, raw, numChildren uint64

		typeNameOff, pos, err = r.ConsumeSizeTAt(pos)
		if err != nil {
			return nil, utils.WrapError(utils.KindInternal, "read param type name offset", err)
		}
		raw, pos, err = r.ConsumeSizeTAt(pos)
		if err != nil {
			return nil, utils.WrapError(utils.KindInternal, "read param raw size", err)
		}
		numChildren, pos, err = r.ConsumeSizeTAt(pos)
		if err != nil {
			return nil, utils.WrapError(utils.KindInternal, "read param num_children", err)
		}

		//nolint:gosec // G115: offsets are section-relative and bounds-checked by ReadCStringAt
		typeName, err := r.ReadCStringAt(base + int64(typeNameOff))
		if err != nil {
			return nil, utils.WrapError(utils.KindInternal, "read param type name", err)
		}

		info := &TypeInfo{Size: decodeSize(raw, h.NullTerm, h.LengthPfx)}
		if numChildren > 0 {
			pos, err = decodeChildren(r, h, base, pos, info, numChildren)
			if err != nil {
				return nil, err
			}
		}

		params = append(params, Param{TypeID: typeName, Info: info})
	}

	formatterWord, pos, err := r.ConsumeSizeTAt(pos)
	if err != nil {
		return nil, utils.WrapError(utils.KindInternal, "read formatter_id", err)
	}

	var file string
	var line uint64
	if withSrcLoc {
		var fileOff uint64
		fileOff, pos, err = r.ConsumeSizeTAt(pos)
		if err != nil {
			return nil, utils.WrapError(utils.KindInternal, "read file_offset", err)
		}
		line, _, err = r.ConsumeSizeTAt(pos)
		if err != nil {
			return nil, utils.WrapError(utils.KindInternal, "read line", err)
		}
		//nolint:gosec // G115: offsets are section-relative and bounds-checked by ReadCStringAt
		file, err = r.ReadCStringAt(base + int64(fileOff))
		if err != nil {
			return nil, utils.WrapError(utils.KindInternal, "read file name", err)
		}
	}

	fmtString, err := r.ReadCStringAt(base + int64(fmtOff))
	if err != nil {
		return nil, utils.WrapError(utils.KindInternal, "read fmt string", err)
	}

	return &FormatRecord{
		Addr:        addr,
		FmtString:   fmtString,
		Params:      params,
		FormatterID: FormatterID(formatterWord),
		File:        file,
		Line:        line,
	}, nil
}

// RecordCache caches FormatRecords by rebased stream address, so that
// re-encountering the same trace site is at most one lookup. Parsing is
// at-most-once per address: the first lookup for an address parses and
// populates the cache; every later lookup for the same address returns the
// identical *FormatRecord.
type RecordCache struct {
	entries map[int64]*FormatRecord
}

// NewRecordCache constructs an empty cache.
func NewRecordCache() *RecordCache {
	return &RecordCache{entries: make(map[int64]*FormatRecord)}
}

// Lookup returns the cached FormatRecord for addr if present.
func (c *RecordCache) Lookup(addr int64) (*FormatRecord, bool) {
	rec, ok := c.entries[addr]
	return rec, ok
}

// Store caches rec under addr.
func (c *RecordCache) Store(addr int64, rec *FormatRecord) {
	c.entries[addr] = rec
}
