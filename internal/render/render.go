// Package render implements the formatter dispatch (C7): turning a decoded
// FormatRecord and its parsed argument Values into the line of text the
// driver writes out, under whichever of the three formatter styles the
// record's formatter_id selects.
package render

import (
	"strings"

	"github.com/tracehost/emtrace/internal/core"
	"github.com/tracehost/emtrace/internal/utils"
	"github.com/tracehost/emtrace/internal/values"
)

// Render dispatches on rec.FormatterID and returns the formatted line.
// Formatting failure is reported through err rather than panicking, so the
// driver can treat it as the soft error the spec requires: log and move on
// to the next record.
func Render(rec *core.FormatRecord, args []values.Value) (string, error) {
	switch rec.FormatterID {
	case core.FormatterCurly:
		return renderCurly(rec.FmtString, args)
	case core.FormatterPrintf:
		return renderPrintf(rec.FmtString, args)
	default:
		return rec.FmtString, nil
	}
}

// renderCurly implements style 0: "{}"-indexed positional placeholders,
// with "{{" / "}}" as literal brace escapes, auto-incrementing positional
// index when a placeholder carries no explicit one, and an optional
// ":<spec>" field specification.
func renderCurly(fmtString string, args []values.Value) (string, error) {
	var out strings.Builder
	next := 0

	runes := []rune(fmtString)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '{':
			if i+1 < len(runes) && runes[i+1] == '{' {
				out.WriteRune('{')
				i++
				continue
			}
			end := indexRune(runes, i+1, '}')
			if end < 0 {
				return "", utils.NewError(utils.KindFormatError, "unterminated '{' in format string")
			}
			field := string(runes[i+1 : end])
			idx, spec, err := parseField(field, &next)
			if err != nil {
				return "", err
			}
			if idx < 0 || idx >= len(args) {
				return "", utils.NewError(utils.KindFormatError, "format string references an argument index out of range")
			}
			rendered, err := renderValueCurly(args[idx], spec)
			if err != nil {
				return "", err
			}
			out.WriteString(rendered)
			i = end
		case '}':
			if i+1 < len(runes) && runes[i+1] == '}' {
				out.WriteRune('}')
				i++
				continue
			}
			return "", utils.NewError(utils.KindFormatError, "unmatched '}' in format string")
		default:
			out.WriteRune(c)
		}
	}

	return out.String(), nil
}

func indexRune(runes []rune, from int, target rune) int {
	for i := from; i < len(runes); i++ {
		if runes[i] == target {
			return i
		}
	}
	return -1
}

// parseField splits a "{...}" placeholder body into an argument index and
// a field spec. An empty or purely numeric body has no explicit spec; a
// body of the form "N:spec" or ":spec" supplies one. A placeholder with no
// explicit index consumes and advances *next.
func parseField(field string, next *int) (index int, spec string, err error) {
	idxPart := field
	if colon := strings.IndexByte(field, ':'); colon >= 0 {
		idxPart = field[:colon]
		spec = field[colon+1:]
	}

	if idxPart == "" {
		index = *next
		*next++
		return index, spec, nil
	}

	n, convErr := parseNonNegativeInt(idxPart)
	if convErr != nil {
		return 0, "", utils.WrapError(utils.KindFormatError, "invalid positional index in format string", convErr)
	}
	return n, spec, nil
}
