package emtrace

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracehost/emtrace/internal/core"
	"github.com/tracehost/emtrace/internal/utils"
	"github.com/tracehost/emtrace/internal/values"
)

// newHeaderOnlySection builds the anchor, sub-header, and rest block only;
// callers append one or more records after it with appendRecord.
func newHeaderOnlySection(alignPow uint8) []byte {
	var section []byte
	section = append(section, core.Magic...)

	// rest_rel is relative to magic_off (the anchor sits at offset 0
	// here), so it must span the anchor plus the 4-byte sub-header.
	restRel := len(core.Magic) + 4
	section = append(section, []byte{byte(restRel), 4, 4, alignPow}...)

	restOff := restRel
	for len(section) < restOff {
		section = append(section, 0)
	}
	section = append(section, []byte{0, 1, 2, 3}...) // ascending: little-endian
	section = append(section, word(0x8000)...)       // null_terminated sentinel
	section = append(section, word(0x4000)...)       // length_prefixed sentinel
	return section
}

// appendRecord appends one format record to section, with either zero or
// one scalar parameter, optionally carrying a file/line pair. It returns
// the updated section and the offset the record starts at.
func appendRecord(
	section []byte, numArgs uint64, paramType string, paramRawSize uint64,
	formatterID core.FormatterID, fmtString string, withSrcLoc bool, file string, line uint64,
) ([]byte, int) {
	recordOff := len(section)
	section = append(section, word(numArgs)...)
	fmtOffPos := len(section)
	section = append(section, word(0)...) // fmt_string_offset, patched below

	var typeNameOffPos int
	if numArgs > 0 {
		typeNameOffPos = len(section)
		section = append(section, word(0)...)            // param type_name_offset, patched below
		section = append(section, word(paramRawSize)...) // param raw size
		section = append(section, word(0)...)            // param num_children
	}

	section = append(section, word(uint64(formatterID))...)

	var fileOffPos int
	if withSrcLoc {
		fileOffPos = len(section)
		section = append(section, word(0)...)    // file_offset, patched below
		section = append(section, word(line)...) // line
	}

	var typeNameOff, fileOff, fmtOff int
	if numArgs > 0 {
		section, typeNameOff = appendCString(section, paramType)
	}
	if withSrcLoc {
		section, fileOff = appendCString(section, file)
	}
	section, fmtOff = appendCString(section, fmtString)

	// Every *_offset field is read as base+offset where base is the
	// record's own rebased address (SPEC_FULL.md C5), so each stored word
	// must be relative to recordOff, not an absolute section position.
	patchWord(section, fmtOffPos, uint64(fmtOff-recordOff))
	if numArgs > 0 {
		patchWord(section, typeNameOffPos, uint64(typeNameOff-recordOff))
	}
	if withSrcLoc {
		patchWord(section, fileOffPos, uint64(fileOff-recordOff))
	}

	return section, recordOff
}

// sliceReader returns a values.ReadFunc that serves data from a fixed byte
// slice: n bytes if available, otherwise whatever remains (simulating a
// stream truncated mid-value, never an error), and an empty slice once
// exhausted (clean end-of-stream).
func sliceReader(data []byte) values.ReadFunc {
	pos := 0
	return func(n int) ([]byte, error) {
		if pos >= len(data) {
			return nil, nil
		}
		end := pos + n
		if end > len(data) {
			end = len(data)
		}
		chunk := data[pos:end]
		pos = end
		return chunk, nil
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Scenario 4: a stream truncated two bytes into a four-byte argument is a
// fatal error, not a silently short value.
func TestDriverRunTruncationMidArgumentIsFatal(t *testing.T) {
	section := newHeaderOnlySection(0)
	section, recordOff := appendRecord(section, 1, "int32_t", 4, core.FormatterCurly, "x={}", false, "", 0)

	dec, err := NewDecoder(section, nil)
	require.NoError(t, err)
	dec.Rebase(0)

	stream := append(word(uint64(recordOff)), []byte{0x01, 0x02}...)

	var out bytes.Buffer
	drv := NewDriver(dec, DriverConfig{
		Read:   sliceReader(stream),
		Write:  &out,
		Logger: discardLogger(),
	})

	runErr := drv.Run()
	require.Error(t, runErr)
	require.True(t, utils.IsKind(runErr, utils.KindEndOfStream))

	var eos *values.EndOfStreamError
	require.True(t, errors.As(runErr, &eos))
	require.Equal(t, 2, len(eos.Leftover))
	require.Equal(t, 4, eos.Wanted)

	require.Empty(t, out.String())
}

// Scenario 5: a record whose format string references more arguments than
// it declares is a format error, logged and skipped, not fatal — the
// driver keeps reading subsequent records.
func TestDriverRunFormatErrorIsNonFatalAndContinues(t *testing.T) {
	section := newHeaderOnlySection(0)
	section, badOff := appendRecord(section, 1, "int32_t", 4, core.FormatterCurly, "{} {}", false, "", 0)
	section, goodOff := appendRecord(section, 1, "int32_t", 4, core.FormatterCurly, "y={}", false, "", 0)

	dec, err := NewDecoder(section, nil)
	require.NoError(t, err)
	dec.Rebase(0)

	var stream []byte
	stream = append(stream, word(uint64(badOff))...)
	stream = append(stream, word(7)...)
	stream = append(stream, word(uint64(goodOff))...)
	stream = append(stream, word(99)...)

	var out bytes.Buffer
	drv := NewDriver(dec, DriverConfig{
		Read:   sliceReader(stream),
		Write:  &out,
		Logger: discardLogger(),
	})

	require.NoError(t, drv.Run())
	require.Equal(t, "y=99", out.String())
}

// Scenario 6: two-line rendered text gets the source-location prefix on
// its first line and a matching-width indent, not the prefix, on its
// continuation lines.
func TestDriverRunMultiLineSourceLocAlignment(t *testing.T) {
	section := newHeaderOnlySection(0)
	section, recordOff := appendRecord(
		section, 0, "", 0, core.FormatterNone, "hello\nworld\n", true, "foo.c", 10,
	)

	dec, err := NewDecoder(section, nil)
	require.NoError(t, err)
	dec.Rebase(0)

	stream := word(uint64(recordOff))

	var out bytes.Buffer
	drv := NewDriver(dec, DriverConfig{
		Read:       sliceReader(stream),
		Write:      &out,
		SourceLoc:  SourceLocAbsolute,
		WithSrcLoc: true,
		Logger:     discardLogger(),
	})

	require.NoError(t, drv.Run())
	require.Equal(t, "foo.c:10: hello\n          world\n", out.String())
}

// minPathLength is a union across the whole run: a later, longer path
// widens the indent used for every subsequent continuation line, not just
// its own.
func TestDriverRunMinPathLengthGrowsAcrossRecords(t *testing.T) {
	section := newHeaderOnlySection(0)
	section, firstOff := appendRecord(section, 0, "", 0, core.FormatterNone, "one\ntwo\n", true, "a.c", 1)
	section, secondOff := appendRecord(section, 0, "", 0, core.FormatterNone, "three\nfour\n", true, "much-longer-name.c", 2)

	dec, err := NewDecoder(section, nil)
	require.NoError(t, err)
	dec.Rebase(0)

	var stream []byte
	stream = append(stream, word(uint64(firstOff))...)
	stream = append(stream, word(uint64(secondOff))...)

	var out bytes.Buffer
	drv := NewDriver(dec, DriverConfig{
		Read:       sliceReader(stream),
		Write:      &out,
		SourceLoc:  SourceLocAbsolute,
		WithSrcLoc: true,
		Logger:     discardLogger(),
	})

	require.NoError(t, drv.Run())

	// "a.c:1" is written (and its own continuation indented) before the
	// second, longer path has ever been seen, so its indent reflects only
	// its own width (5 + 2 = 7), not the eventual run-wide maximum.
	secondLoc := "much-longer-name.c:2"
	wantOut := "a.c:1: one\n" +
		spaces(2+len("a.c:1")) + "two\n" +
		secondLoc + ": three\n" +
		spaces(2+len(secondLoc)) + "four\n"
	require.Equal(t, wantOut, out.String())
}

func spaces(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}
