package emtrace

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pmezard/go-difflib/difflib"
)

// TestHarness captures a Driver's output in memory and compares it against
// an expected byte blob recovered from a second ELF section (C9), so a
// target's recorded trace session can be replayed and checked for
// regressions without a live device.
type TestHarness struct {
	buf      bytes.Buffer
	expected []byte
}

// NewTestHarness constructs a harness that will compare captured output
// against expected (already trimmed of any trailing NUL padding by the
// section loader).
func NewTestHarness(expected []byte) *TestHarness {
	return &TestHarness{expected: expected}
}

// Sink returns the io.Writer the driver should write decoded lines to.
func (h *TestHarness) Sink() io.Writer {
	return &h.buf
}

// Result is the outcome of comparing captured output against the expected
// blob: whether they matched, and, if not, a unified diff.
type Result struct {
	Match bool
	Diff  string
}

// Compare diffs the captured output against the expected blob. A match
// yields Result{Match: true}; a mismatch yields a unified diff suitable
// for printing to stdout.
func (h *TestHarness) Compare() (Result, error) {
	got := h.buf.String()
	want := string(h.expected)

	if got == want {
		return Result{Match: true}, nil
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return Result{}, fmt.Errorf("render test mismatch diff: %w", err)
	}

	return Result{Match: false, Diff: text}, nil
}
