package core

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeSize(t *testing.T) {
	const nullTerm = 0x8000
	const lengthPfx = 0x4000

	tests := []struct {
		name string
		raw  uint64
		want Size
	}{
		{name: "plain fixed size", raw: 4, want: Size{MinSize: 4}},
		{name: "null terminated", raw: nullTerm, want: Size{NullTerminated: true}},
		{name: "length prefixed", raw: lengthPfx, want: Size{LengthPrefixed: true}},
		{name: "length prefixed with min size", raw: lengthPfx | 8, want: Size{MinSize: 8, LengthPrefixed: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeSize(tt.raw, nullTerm, lengthPfx)
			require.Equal(t, tt.want, got)
		})
	}
}

// word writes v as a 4-byte little-endian size_t word.
func word(v uint64) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func TestDecodeChildrenFlatSiblings(t *testing.T) {
	// Layout: two children "x" and "y", both leaf int32_t, no grandchildren.
	// Names and type names are placed after the descriptor words; offsets
	// are relative to base (0).
	var section []byte
	section = append(section, word(0)...) // placeholder for num_children caller context (unused directly)

	descOff := len(section)
	_ = descOff

	// child 1 descriptor
	nameXOff := 200
	typeXOff := 210
	section = append(section, word(uint64(nameXOff))...)
	section = append(section, word(4)...) // raw size
	section = append(section, word(0)...) // num_children
	section = append(section, word(uint64(typeXOff))...)

	// child 2 descriptor
	nameYOff := 220
	typeYOff := 230
	section = append(section, word(uint64(nameYOff))...)
	section = append(section, word(4)...)
	section = append(section, word(0)...)
	section = append(section, word(uint64(typeYOff))...)

	for len(section) < 240 {
		section = append(section, 0)
	}
	putCString(section, nameXOff, "x")
	putCString(section, typeXOff, "int32_t")
	putCString(section, nameYOff, "y")
	putCString(section, typeYOff, "int32_t")

	r := NewReader(section, 4, binary.LittleEndian)
	h := &Header{NullTerm: 0x8000, LengthPfx: 0x4000}

	info := &TypeInfo{}
	pos, err := decodeChildren(r, h, 0, 4, info, 2)
	require.NoError(t, err)
	require.EqualValues(t, 4+4*4*2, pos)
	require.Len(t, info.Children, 2)
	require.Equal(t, "x", info.Children[0].Name)
	require.Equal(t, "int32_t", info.Children[0].TypeID)
	require.Equal(t, "y", info.Children[1].Name)
}

func putCString(section []byte, off int, s string) {
	copy(section[off:], s)
	section[off+len(s)] = 0
}

func TestDecodeChildrenNestedGrandchild(t *testing.T) {
	// Layout: one top-level child "a" (not a leaf), which itself declares
	// one child "b" (a leaf). Per the depth-first pre-order layout, "b"'s
	// descriptor immediately follows "a"'s, before any sibling of "a" would
	// appear. This exercises the frontier stack actually nesting a level
	// (push on childCount > 0) and then correctly restoring the parent
	// frame once the grandchild subtree is exhausted.
	var section []byte
	section = append(section, word(0)...) // placeholder, pos starts at 4

	nameAOff, typeAOff := 300, 310
	nameBOff, typeBOff := 320, 330

	// child "a" descriptor: declares 1 child of its own
	section = append(section, word(uint64(nameAOff))...)
	section = append(section, word(4)...) // raw size
	section = append(section, word(1)...) // num_children
	section = append(section, word(uint64(typeAOff))...)

	// grandchild "b" descriptor: a leaf
	section = append(section, word(uint64(nameBOff))...)
	section = append(section, word(4)...) // raw size
	section = append(section, word(0)...) // num_children
	section = append(section, word(uint64(typeBOff))...)

	for len(section) < 340 {
		section = append(section, 0)
	}
	putCString(section, nameAOff, "a")
	putCString(section, typeAOff, "struct_a")
	putCString(section, nameBOff, "b")
	putCString(section, typeBOff, "int32_t")

	r := NewReader(section, 4, binary.LittleEndian)
	h := &Header{NullTerm: 0x8000, LengthPfx: 0x4000}

	info := &TypeInfo{}
	pos, err := decodeChildren(r, h, 0, 4, info, 1)
	require.NoError(t, err)
	require.EqualValues(t, 4+4*4*2, pos)

	require.Len(t, info.Children, 1)
	a := info.Children[0]
	require.Equal(t, "a", a.Name)
	require.Equal(t, "struct_a", a.TypeID)
	require.False(t, a.Info.IsLeaf())

	require.Len(t, a.Info.Children, 1)
	b := a.Info.Children[0]
	require.Equal(t, "b", b.Name)
	require.Equal(t, "int32_t", b.TypeID)
	require.True(t, b.Info.IsLeaf())
}

func TestIsLeafAndListElementChild(t *testing.T) {
	leaf := &TypeInfo{}
	require.True(t, leaf.IsLeaf())

	withChildren := &TypeInfo{Children: []Child{{Name: "", TypeID: "int32_t"}}}
	require.False(t, withChildren.IsLeaf())

	elem, ok := withChildren.ListElementChild()
	require.True(t, ok)
	require.Equal(t, "int32_t", elem.TypeID)

	named := &TypeInfo{Children: []Child{{Name: "field", TypeID: "int32_t"}}}
	_, ok = named.ListElementChild()
	require.False(t, ok)
}
