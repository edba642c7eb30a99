package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tracehost/emtrace/internal/utils"
	"github.com/tracehost/emtrace/internal/values"
)

// renderValueCurly renders one Value under style 0's field spec mini
// language. A char/schar wrapper defaults to character rendering absent a
// trailing type letter; any other scalar uses spec directly as a Go fmt
// verb suffix. Lists use the "<sep>*<elem_spec>" extension.
func renderValueCurly(v values.Value, spec string) (string, error) {
	if v.Tag == values.TagList {
		return renderListCurly(v, spec)
	}

	if v.IsCharLike() && !endsInLetter(spec) {
		return fmt.Sprintf("%"+spec+"c", rune(v.Int())), nil
	}

	switch v.Tag {
	case values.TagSignedInt, values.TagChar, values.TagSChar:
		return formatIntSpec(spec, v.Int(), true)
	case values.TagUnsignedInt:
		return formatIntSpec(spec, int64(v.U), false)
	case values.TagBool:
		if spec == "" {
			return strconv.FormatBool(v.U != 0), nil
		}
		return fmt.Sprintf("%"+spec+"t", v.U != 0), nil
	case values.TagF32, values.TagF64:
		verb := "%" + spec + "g"
		if spec != "" && isAlpha(spec[len(spec)-1]) {
			verb = "%" + spec
		}
		return fmt.Sprintf(verb, v.F), nil
	case values.TagStr:
		return fmt.Sprintf("%"+spec+"s", v.S), nil
	default:
		return "", utils.NewError(utils.KindFormatError, "unsupported value tag for curly rendering")
	}
}

// formatIntSpec renders an integer per a Python-.format-like spec: an
// optional width/fill prefix followed by a single conversion letter
// (d, x, X, o, b); no trailing letter means decimal.
func formatIntSpec(spec string, i int64, signed bool) (string, error) {
	if spec == "" {
		if signed {
			return strconv.FormatInt(i, 10), nil
		}
		return strconv.FormatUint(uint64(i), 10), nil
	}

	last := spec[len(spec)-1]
	if !isAlpha(last) {
		if signed {
			return fmt.Sprintf("%"+spec+"d", i), nil
		}
		return fmt.Sprintf("%"+spec+"d", uint64(i)), nil
	}

	prefix := spec[:len(spec)-1]
	switch last {
	case 'd':
		if signed {
			return fmt.Sprintf("%"+prefix+"d", i), nil
		}
		return fmt.Sprintf("%"+prefix+"d", uint64(i)), nil
	case 'x':
		return fmt.Sprintf("%"+prefix+"x", uint64(i)), nil
	case 'X':
		return fmt.Sprintf("%"+prefix+"X", uint64(i)), nil
	case 'o':
		return fmt.Sprintf("%"+prefix+"o", uint64(i)), nil
	case 'b':
		return fmt.Sprintf("%"+prefix+"b", uint64(i)), nil
	case 'c':
		return fmt.Sprintf("%"+prefix+"c", rune(i)), nil
	default:
		return "", utils.NewError(utils.KindFormatError, fmt.Sprintf("unrecognized integer format letter %q", string(last)))
	}
}

// renderListCurly implements the "<sep>*<elem_spec>" extension: split on
// the first '*' (there is no escape for a literal '*' in sep), join
// elements with sep formatted by elem_spec.
// Absent a '*', fall back to the default bracketed container rendering.
func renderListCurly(v values.Value, spec string) (string, error) {
	star := strings.IndexByte(spec, '*')
	if star < 0 {
		return defaultListRendering(v)
	}

	sep := spec[:star]
	elemSpec := spec[star+1:]

	parts := make([]string, 0, len(v.List))
	for _, elem := range v.List {
		s, err := renderValueCurly(elem, elemSpec)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, sep), nil
}

func defaultListRendering(v values.Value) (string, error) {
	parts := make([]string, 0, len(v.List))
	for _, elem := range v.List {
		s, err := renderValueCurly(elem, "")
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return "[" + strings.Join(parts, ", ") + "]", nil
}

func endsInLetter(spec string) bool {
	return spec != "" && isAlpha(spec[len(spec)-1])
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func parseNonNegativeInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid non-negative integer %q", s)
	}
	return n, nil
}
