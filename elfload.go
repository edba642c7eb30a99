package emtrace

import (
	"bytes"
	"debug/elf"
	"fmt"

	"github.com/tracehost/emtrace/internal/utils"
)

// LoadSection opens the ELF file at path and returns the raw bytes of the
// named section. It is an external collaborator with respect to the hard
// core (C3 onward receive only the resulting []byte, never the ELF file
// handle) but a complete CLI binary needs the lookup, so it lives here
// rather than being assumed away.
func LoadSection(path, sectionName string) ([]byte, error) {
	//nolint:gosec // G304: path is an operator-supplied CLI argument, the intended use of this library
	f, err := elf.Open(path)
	if err != nil {
		return nil, utils.WrapError(utils.KindInternal, fmt.Sprintf("open ELF file %q", path), err)
	}
	defer f.Close()

	sec := f.Section(sectionName)
	if sec == nil {
		return nil, utils.NewError(utils.KindSectionMissing, fmt.Sprintf("section %q not found in %q", sectionName, path))
	}

	data, err := sec.Data()
	if err != nil {
		return nil, utils.WrapError(utils.KindInternal, fmt.Sprintf("read section %q", sectionName), err)
	}

	return data, nil
}

// LoadExpectedSection loads the named section (default
// ".emtrace.test.expected") and trims trailing NUL padding: ELF section
// padding to alignment boundaries routinely appends zero bytes that are
// not part of the recorded expectation.
func LoadExpectedSection(path, sectionName string) ([]byte, error) {
	data, err := LoadSection(path, sectionName)
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(data, "\x00"), nil
}
