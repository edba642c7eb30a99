package render

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracehost/emtrace/internal/core"
	"github.com/tracehost/emtrace/internal/values"
)

func TestRenderCurlyBasic(t *testing.T) {
	rec := &core.FormatRecord{FmtString: "x={}, y={}", FormatterID: core.FormatterCurly}
	args := []values.Value{
		{Tag: values.TagSignedInt, I: 7},
		{Tag: values.TagStr, S: "hi"},
	}
	out, err := Render(rec, args)
	require.NoError(t, err)
	require.Equal(t, "x=7, y=hi", out)
}

func TestRenderCurlyExplicitIndex(t *testing.T) {
	rec := &core.FormatRecord{FmtString: "{1} then {0}", FormatterID: core.FormatterCurly}
	args := []values.Value{
		{Tag: values.TagSignedInt, I: 1},
		{Tag: values.TagSignedInt, I: 2},
	}
	out, err := Render(rec, args)
	require.NoError(t, err)
	require.Equal(t, "2 then 1", out)
}

func TestRenderCurlyHexSpec(t *testing.T) {
	rec := &core.FormatRecord{FmtString: "{:x}", FormatterID: core.FormatterCurly}
	args := []values.Value{{Tag: values.TagUnsignedInt, U: 255}}
	out, err := Render(rec, args)
	require.NoError(t, err)
	require.Equal(t, "ff", out)
}

func TestRenderCurlyCharDefaultsToCharacter(t *testing.T) {
	rec := &core.FormatRecord{FmtString: "{}", FormatterID: core.FormatterCurly}
	args := []values.Value{{Tag: values.TagChar, U: 'A'}}
	out, err := Render(rec, args)
	require.NoError(t, err)
	require.Equal(t, "A", out)
}

func TestRenderCurlyCharNumericWithTypeLetter(t *testing.T) {
	rec := &core.FormatRecord{FmtString: "{:d}", FormatterID: core.FormatterCurly}
	args := []values.Value{{Tag: values.TagChar, U: 65}}
	out, err := Render(rec, args)
	require.NoError(t, err)
	require.Equal(t, "65", out)
}

func TestRenderCurlyListWithSeparatorExtension(t *testing.T) {
	rec := &core.FormatRecord{FmtString: "[{:, *d}]", FormatterID: core.FormatterCurly}
	args := []values.Value{{
		Tag: values.TagList,
		List: []values.Value{
			{Tag: values.TagSignedInt, I: 1},
			{Tag: values.TagSignedInt, I: 2},
			{Tag: values.TagSignedInt, I: 3},
		},
	}}
	out, err := Render(rec, args)
	require.NoError(t, err)
	require.Equal(t, "[1, 2, 3]", out)
}

func TestRenderCurlyListDefaultRendering(t *testing.T) {
	rec := &core.FormatRecord{FmtString: "{}", FormatterID: core.FormatterCurly}
	args := []values.Value{{
		Tag:  values.TagList,
		List: []values.Value{{Tag: values.TagSignedInt, I: 1}, {Tag: values.TagSignedInt, I: 2}},
	}}
	out, err := Render(rec, args)
	require.NoError(t, err)
	require.Equal(t, "[1, 2]", out)
}

func TestRenderCurlyEscapedBraces(t *testing.T) {
	rec := &core.FormatRecord{FmtString: "{{literal}} {}", FormatterID: core.FormatterCurly}
	args := []values.Value{{Tag: values.TagSignedInt, I: 9}}
	out, err := Render(rec, args)
	require.NoError(t, err)
	require.Equal(t, "{literal} 9", out)
}

func TestRenderCurlyOutOfRangeIndexIsFormatError(t *testing.T) {
	rec := &core.FormatRecord{FmtString: "{} {}", FormatterID: core.FormatterCurly}
	args := []values.Value{{Tag: values.TagSignedInt, I: 1}}
	_, err := Render(rec, args)
	require.Error(t, err)
}

func TestRenderPrintfBasic(t *testing.T) {
	rec := &core.FormatRecord{FmtString: "count=%d name=%s", FormatterID: core.FormatterPrintf}
	args := []values.Value{
		{Tag: values.TagSignedInt, I: 3},
		{Tag: values.TagStr, S: "widget"},
	}
	out, err := Render(rec, args)
	require.NoError(t, err)
	require.Equal(t, "count=3 name=widget", out)
}

func TestRenderPrintfLengthModifiersStripped(t *testing.T) {
	rec := &core.FormatRecord{FmtString: "%lld and %zu", FormatterID: core.FormatterPrintf}
	args := []values.Value{
		{Tag: values.TagSignedInt, I: -5},
		{Tag: values.TagUnsignedInt, U: 9},
	}
	out, err := Render(rec, args)
	require.NoError(t, err)
	require.Equal(t, "-5 and 9", out)
}

func TestRenderPrintfHexAndPercentLiteral(t *testing.T) {
	rec := &core.FormatRecord{FmtString: "%x%% done", FormatterID: core.FormatterPrintf}
	args := []values.Value{{Tag: values.TagUnsignedInt, U: 0xab}}
	out, err := Render(rec, args)
	require.NoError(t, err)
	require.Equal(t, "ab% done", out)
}

func TestRenderNoneFormatterReturnsLiteral(t *testing.T) {
	rec := &core.FormatRecord{FmtString: "raw {} text", FormatterID: core.FormatterNone}
	out, err := Render(rec, nil)
	require.NoError(t, err)
	require.Equal(t, "raw {} text", out)
}

func TestRenderUnknownFormatterIDTreatedAsNone(t *testing.T) {
	rec := &core.FormatRecord{FmtString: "literal", FormatterID: core.FormatterID(99)}
	out, err := Render(rec, nil)
	require.NoError(t, err)
	require.Equal(t, "literal", out)
}
