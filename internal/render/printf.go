package render

import (
	"fmt"
	"strings"

	"github.com/tracehost/emtrace/internal/utils"
	"github.com/tracehost/emtrace/internal/values"
)

// renderPrintf implements style 2: render fmtString against args the way
// C's printf would, translating each verb's C-specific length modifiers
// (l, ll, h, hh, z, j, t) away before handing the verb and a matching Go
// argument to fmt.Sprintf, since Go's fmt verbs are a strict subset of
// printf's and carry no length modifiers of their own.
func renderPrintf(fmtString string, args []values.Value) (string, error) {
	var goFmt strings.Builder
	goArgs := make([]interface{}, 0, len(args))
	next := 0

	runes := []rune(fmtString)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c != '%' {
			goFmt.WriteRune(c)
			continue
		}
		if i+1 < len(runes) && runes[i+1] == '%' {
			goFmt.WriteString("%%")
			i++
			continue
		}

		end, verb, flags, err := scanPrintfVerb(runes, i)
		if err != nil {
			return "", err
		}
		i = end

		if verb == '%' {
			goFmt.WriteString("%%")
			continue
		}

		if next >= len(args) {
			return "", utils.NewError(utils.KindFormatError, "printf format string references more arguments than were parsed")
		}
		arg, goVerb, convErr := convertPrintfArg(args[next], verb)
		if convErr != nil {
			return "", convErr
		}
		next++

		goFmt.WriteByte('%')
		goFmt.WriteString(flags)
		goFmt.WriteString(goVerb)
		goArgs = append(goArgs, arg)
	}

	return fmt.Sprintf(goFmt.String(), goArgs...), nil
}

// scanPrintfVerb scans one "%...X" conversion starting at the '%' rune at
// position start, returning the index of its final verb rune, the verb
// itself, and the flags/width/precision text (length modifiers stripped)
// to carry through to Go's fmt.
func scanPrintfVerb(runes []rune, start int) (end int, verb rune, flags string, err error) {
	var b strings.Builder
	i := start + 1
	for ; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == 'l' || c == 'h' || c == 'z' || c == 'j' || c == 't':
			// length modifier: drop it, Go's fmt has no equivalent.
			continue
		case isPrintfFlagOrWidth(c):
			b.WriteRune(c)
		case isPrintfConversion(c):
			return i, c, b.String(), nil
		default:
			return 0, 0, "", utils.NewError(utils.KindFormatError, fmt.Sprintf("unrecognized printf conversion character %q", string(c)))
		}
	}
	return 0, 0, "", utils.NewError(utils.KindFormatError, "unterminated printf conversion at end of format string")
}

func isPrintfFlagOrWidth(c rune) bool {
	return c == '-' || c == '+' || c == ' ' || c == '0' || c == '#' || c == '.' || (c >= '0' && c <= '9') || c == '*'
}

func isPrintfConversion(c rune) bool {
	switch c {
	case 'd', 'i', 'u', 'x', 'X', 'o', 'b', 'f', 'F', 'e', 'E', 'g', 'G', 's', 'c', 'p', '%':
		return true
	default:
		return false
	}
}

// convertPrintfArg maps a decoded Value plus a printf conversion letter to
// a Go interface{} argument and the corresponding Go fmt verb.
func convertPrintfArg(v values.Value, verb rune) (interface{}, string, error) {
	switch verb {
	case 'd', 'i':
		return v.Int(), "d", nil
	case 'u':
		return uint64(v.Int()), "d", nil
	case 'x':
		return uint64(v.Int()), "x", nil
	case 'X':
		return uint64(v.Int()), "X", nil
	case 'o':
		return uint64(v.Int()), "o", nil
	case 'b':
		return uint64(v.Int()), "b", nil
	case 'f', 'F':
		return floatOf(v), "f", nil
	case 'e', 'E':
		return floatOf(v), string(verb), nil
	case 'g', 'G':
		return floatOf(v), string(verb), nil
	case 's':
		if v.Tag == values.TagStr {
			return v.S, "s", nil
		}
		return valueString(v), "s", nil
	case 'c':
		return rune(v.Int()), "c", nil
	case 'p':
		return uint64(v.Int()), "#x", nil
	default:
		return nil, "", utils.NewError(utils.KindFormatError, fmt.Sprintf("unsupported printf conversion %q", string(verb)))
	}
}

func floatOf(v values.Value) float64 {
	if v.Tag == values.TagF32 || v.Tag == values.TagF64 {
		return v.F
	}
	return float64(v.Int())
}

func valueString(v values.Value) string {
	s, err := renderValueCurly(v, "")
	if err != nil {
		return ""
	}
	return s
}
