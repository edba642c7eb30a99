// Command emtrace decodes a target's live trace stream against the
// metadata table embedded in its ELF binary, printing one human-readable
// line per record.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/tracehost/emtrace"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	fs := flag.NewFlagSet("emtrace", flag.ContinueOnError)

	configPath := fs.String("config", ".emtrace.yaml", "path to a YAML defaults file")
	inputSpec := fs.String("input", "", "input stream: stdin, a file path, file://, tcp://host:port, or unix://path")
	fs.StringVar(inputSpec, "i", "", "shorthand for --input")
	sectionName := fs.String("section-name", "", "ELF section name carrying the metadata table")
	withSrcLoc := fs.String("with-src-loc", "", "source location mode: none, absolute, or relative")
	ptrSize := fs.Int("ptr-size", 0, "pointer width in bytes carried by trace-stream addresses")
	dumpInput := fs.String("dump-input", "", "tee raw stream bytes to this file for replay")
	debugScript := fs.Bool("debug-script", false, "enable verbose structured debug tracing")
	testMode := fs.Bool("test", false, "compare captured output against an embedded expected section")
	testSection := fs.String("test-section", "", "expected-output section name under --test")

	if err := fs.Parse(argv); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: emtrace [flags] <elf-file>")
		fs.PrintDefaults()
		return 2
	}
	elfPath := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	section := resolveString(wasSet(fs, "section-name"), *sectionName, cfg.SectionName, "SECTION", ".emtrace")
	srcLocMode := resolveString(wasSet(fs, "with-src-loc"), *withSrcLoc, cfg.WithSrcLoc, "WITH_SRC_LOC", "none")
	resolvedPtrSize := resolveInt(wasSet(fs, "ptr-size"), *ptrSize, cfg.PtrSize, "PTR_SIZE", 0)
	resolvedInput := resolveString(wasSet(fs, "input") || wasSet(fs, "i"), *inputSpec, cfg.Input, "INPUT", "stdin")
	resolvedDumpInput := resolveString(wasSet(fs, "dump-input"), *dumpInput, cfg.DumpInput, "DUMP_INPUT", "")
	resolvedTestSection := resolveString(wasSet(fs, "test-section"), *testSection, cfg.TestSection, "TEST_SECTION", ".emtrace.test.expected")
	resolvedTest := *testMode || cfg.Test

	level := slog.LevelInfo
	if *debugScript {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *debugScript {
		logger.Debug("resolved configuration", "section", section, "with_src_loc", srcLocMode,
			"ptr_size", resolvedPtrSize, "input", resolvedInput, "test", resolvedTest)
		logger.Debug("parsed config file", "config", spew.Sdump(cfg))
	}

	section = firstNonEmpty(section, ".emtrace")

	data, err := emtrace.LoadSection(elfPath, section)
	if err != nil {
		logger.Error("failed to load metadata section", "error", err)
		return 1
	}

	dec, err := emtrace.NewDecoder(data, func(msg string) { logger.Warn(msg) })
	if err != nil {
		logger.Error("failed to parse metadata table", "error", err)
		return 1
	}

	read, closeStream, err := dialInput(resolvedInput)
	if err != nil {
		logger.Error("failed to dial input stream", "error", err)
		return 1
	}
	defer closeStream()

	read, flushDump, err := teeDumpInput(read, resolvedDumpInput)
	if err != nil {
		logger.Error("failed to open dump-input file", "error", err)
		return 1
	}
	defer flushDump()

	if resolvedPtrSize != 0 && resolvedPtrSize != int(dec.PtrSize()) {
		logger.Warn("--ptr-size disagrees with the metadata table's own ptr_size; the table wins",
			"flag", resolvedPtrSize, "table", dec.PtrSize())
	}

	magicBytes, err := read(int(dec.PtrSize()))
	if err != nil || len(magicBytes) < int(dec.PtrSize()) {
		logger.Error("stream ended before the initial magic address", "error", err)
		return 1
	}
	dec.Rebase(emtrace.DecodeStreamAddress(magicBytes))

	mode, err := parseSourceLocMode(srcLocMode)
	if err != nil {
		logger.Error(err.Error())
		return 2
	}

	if resolvedTest {
		return runTestMode(dec, read, mode, elfPath, resolvedTestSection, logger)
	}

	drv := emtrace.NewDriver(dec, emtrace.DriverConfig{
		Read:       read,
		Write:      os.Stdout,
		SourceLoc:  mode,
		WithSrcLoc: mode != emtrace.SourceLocNone,
		Logger:     logger,
	})
	if err := drv.Run(); err != nil {
		logger.Error("fatal decoder error", "error", err)
		return 1
	}
	return 0
}

func runTestMode(dec *emtrace.Decoder, read func(int) ([]byte, error), mode emtrace.SourceLocMode, elfPath, testSection string, logger *slog.Logger) int {
	expected, err := emtrace.LoadExpectedSection(elfPath, testSection)
	if err != nil {
		logger.Error("failed to load expected test section", "error", err)
		return 1
	}

	harness := emtrace.NewTestHarness(expected)
	drv := emtrace.NewDriver(dec, emtrace.DriverConfig{
		Read:       read,
		Write:      harness.Sink(),
		SourceLoc:  mode,
		WithSrcLoc: mode != emtrace.SourceLocNone,
		Logger:     logger,
	})
	if err := drv.Run(); err != nil {
		logger.Error("fatal decoder error", "error", err)
		return 1
	}

	result, err := harness.Compare()
	if err != nil {
		logger.Error("failed to compute test diff", "error", err)
		return 1
	}
	if result.Match {
		fmt.Println("PASS")
		return 0
	}
	fmt.Println(result.Diff)
	return 1
}

func parseSourceLocMode(s string) (emtrace.SourceLocMode, error) {
	switch s {
	case "", "none":
		return emtrace.SourceLocNone, nil
	case "absolute":
		return emtrace.SourceLocAbsolute, nil
	case "relative":
		return emtrace.SourceLocRelative, nil
	default:
		return 0, fmt.Errorf("invalid --with-src-loc value %q: want none, absolute, or relative", s)
	}
}

// wasSet reports whether the named flag was explicitly passed on the
// command line, distinguishing "explicitly the zero value" from "not
// passed at all" for the environment-fallback precedence chain.
func wasSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// dialInput resolves an input-stream spec into a blocking ReadFunc,
// following the original tool's grammar: "stdin", a bare path (file),
// "file://path", "tcp://host:port" (or the 9-colon IPv6 form), and
// "unix://path".
func dialInput(spec string) (read func(int) ([]byte, error), closeFn func(), err error) {
	scheme, rest, hasScheme := strings.Cut(spec, "://")

	if !hasScheme {
		if spec == "stdin" {
			r := bufio.NewReader(os.Stdin)
			return readerFunc(r), func() {}, nil
		}
		return openFile(spec)
	}

	switch scheme {
	case "file":
		return openFile(rest)
	case "unix":
		conn, err := net.Dial("unix", rest)
		if err != nil {
			return nil, nil, err
		}
		return readerFunc(bufio.NewReader(conn)), func() { conn.Close() }, nil
	case "tcp":
		addr := rest
		if strings.Count(rest, ":") == 8 {
			// 9-colon IPv6 form: last segment is the port.
			idx := strings.LastIndex(rest, ":")
			addr = net.JoinHostPort(rest[:idx], rest[idx+1:])
		}
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return nil, nil, err
		}
		return readerFunc(bufio.NewReader(conn)), func() { conn.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unrecognized input stream scheme %q: want file, tcp, or unix", scheme)
	}
}

func openFile(path string) (func(int) ([]byte, error), func(), error) {
	//nolint:gosec // G304: operator-supplied CLI argument, the intended use of this tool
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return readerFunc(bufio.NewReader(f)), func() { f.Close() }, nil
}

// readerFunc adapts an io.Reader into the ReadFunc contract: block for up
// to n bytes, returning fewer only at EOF.
func readerFunc(r io.Reader) func(int) ([]byte, error) {
	return func(n int) ([]byte, error) {
		buf := make([]byte, n)
		read, err := io.ReadFull(r, buf)
		if err != nil && (err == io.EOF || err == io.ErrUnexpectedEOF) {
			return buf[:read], nil
		}
		if err != nil {
			return buf[:read], err
		}
		return buf, nil
	}
}

// teeDumpInput wraps read so every chunk it returns is also appended to
// path, when path is non-empty, for later replay.
func teeDumpInput(read func(int) ([]byte, error), path string) (func(int) ([]byte, error), func(), error) {
	if path == "" {
		return read, func() {}, nil
	}

	//nolint:gosec // G304: operator-supplied CLI argument
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}

	wrapped := func(n int) ([]byte, error) {
		data, err := read(n)
		if len(data) > 0 {
			_, _ = f.Write(data)
		}
		return data, err
	}
	return wrapped, func() { f.Close() }, nil
}
