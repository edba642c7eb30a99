package emtrace

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/width"

	"github.com/tracehost/emtrace/internal/core"
	"github.com/tracehost/emtrace/internal/render"
	"github.com/tracehost/emtrace/internal/utils"
	"github.com/tracehost/emtrace/internal/values"
)

// SourceLocMode selects how (and whether) each emitted line is prefixed
// with its originating source location.
type SourceLocMode int

const (
	// SourceLocNone writes formatted text verbatim, with no prefix.
	SourceLocNone SourceLocMode = iota
	// SourceLocAbsolute prefixes with the file path exactly as recorded.
	SourceLocAbsolute
	// SourceLocRelative prefixes with the file path relative to the
	// current working directory.
	SourceLocRelative
)

// DriverConfig configures one run of the main read loop.
type DriverConfig struct {
	Read       values.ReadFunc
	Write      io.Writer
	SourceLoc  SourceLocMode
	WithSrcLoc bool // whether the metadata table carries file/line at all
	Logger     *slog.Logger
}

// Driver runs the read-decode-format-emit loop (C8): one FormatRecord
// lookup per incoming address, one render per record, and display-width
// aware multi-line alignment of the source-location prefix.
type Driver struct {
	dec    *Decoder
	cfg    DriverConfig
	logger *slog.Logger

	minPathLength  int
	newLineMissing bool
}

// NewDriver constructs a Driver over dec with the given configuration.
func NewDriver(dec *Decoder, cfg DriverConfig) *Driver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Driver{dec: dec, cfg: cfg, logger: logger, newLineMissing: true}
}

// Run executes the loop until clean end-of-stream. It returns a non-nil
// error only for fatal conditions (use before Rebase, a read error or short
// read starting a new record, a format record that cannot be parsed from
// the metadata table, or end-of-stream mid-argument); format errors, from
// rendering or from an argument's type descriptor, are logged and skipped
// per record, never returned.
func (drv *Driver) Run() error {
	if err := drv.dec.ensureRebased(); err != nil {
		return err
	}

	for {
		addrBytes, err := drv.cfg.Read(int(drv.dec.PtrSize()))
		if err != nil {
			return utils.WrapError(utils.KindShortRead, "read next record address", err)
		}
		if len(addrBytes) == 0 {
			return nil // clean EOF
		}
		if len(addrBytes) < int(drv.dec.PtrSize()) {
			return utils.WrapError(utils.KindShortRead, "stream ended mid-address", &values.EndOfStreamError{
				Leftover: addrBytes, Wanted: int(drv.dec.PtrSize()),
			})
		}

		raw := DecodeStreamAddress(addrBytes)
		addr := drv.dec.RebaseAddress(raw)

		rec, err := drv.dec.LookupOrParse(addr, drv.cfg.WithSrcLoc)
		if err != nil {
			return utils.WrapError(utils.KindInternal, "parse format record", err)
		}

		if err := drv.emitOne(rec); err != nil {
			return err
		}
	}
}

// emitOne parses rec's arguments, renders them, and writes the resulting
// line(s). A stream end-of-stream while parsing arguments is fatal; a
// format error, while parsing arguments or rendering, is logged and treated
// as soft.
func (drv *Driver) emitOne(rec *core.FormatRecord) error {
	stream := drv.dec.NewArgStream(drv.cfg.Read)

	args := make([]values.Value, 0, len(rec.Params))
	for _, p := range rec.Params {
		v, err := ReadArg(stream, p)
		if err != nil {
			if utils.IsKind(err, utils.KindEndOfStream) {
				drv.logger.Error("stream ended while parsing arguments",
					"fmt_string", rec.FmtString, "file", rec.File, "line", rec.Line,
					"parsed_args", len(args), "error", err)
				return err
			}
			if utils.IsKind(err, utils.KindFormatError) {
				drv.logger.Error("failed to parse arguments",
					"fmt_string", rec.FmtString, "file", rec.File, "line", rec.Line,
					"args", args, "error", err)
				return nil
			}
			return err
		}
		args = append(args, v)
	}

	text, err := render.Render(rec, args)
	if err != nil {
		drv.logger.Error("failed to format record",
			"fmt_string", rec.FmtString, "file", rec.File, "line", rec.Line,
			"args", args, "error", err)
		return nil
	}

	drv.writeLine(rec, text)
	return nil
}

// writeLine applies the source-location prefix policy and multi-line
// alignment described by the driver's state machine.
func (drv *Driver) writeLine(rec *core.FormatRecord, text string) {
	if drv.cfg.SourceLoc == SourceLocNone {
		fmt.Fprint(drv.cfg.Write, text)
		return
	}

	path := rec.File
	if drv.cfg.SourceLoc == SourceLocRelative {
		if cwd, err := os.Getwd(); err == nil {
			if rel, err := filepath.Rel(cwd, rec.File); err == nil {
				path = rel
			}
		}
	}

	loc := fmt.Sprintf("%s:%d", path, rec.Line)
	locWidth := displayWidth(loc)
	if locWidth > drv.minPathLength {
		drv.minPathLength = locWidth
	}
	padded := loc + strings.Repeat(" ", drv.minPathLength-locWidth)

	lines := strings.Split(text, "\n")
	trailingNewline := false
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
		trailingNewline = true
	}

	locationMissing := !drv.newLineMissing
	if drv.newLineMissing {
		fmt.Fprintf(drv.cfg.Write, "%s: ", padded)
	}

	drv.newLineMissing = false
	for i, line := range lines {
		switch {
		case i == 0:
		case locationMissing && i == 1:
			fmt.Fprintf(drv.cfg.Write, "\n%s: ", padded)
		default:
			fmt.Fprint(drv.cfg.Write, "\n"+strings.Repeat(" ", 2+drv.minPathLength))
		}
		fmt.Fprint(drv.cfg.Write, line)
	}

	if trailingNewline {
		fmt.Fprintln(drv.cfg.Write)
		drv.newLineMissing = true
	}
}

// displayWidth returns the terminal column width of s: East Asian wide and
// fullwidth runes count as two columns and every other rune as one.
// Combining runes are not treated as zero-width; each counts as one column.
func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			w += 2
		default:
			w++
		}
	}
	return w
}
