package core

import "github.com/tracehost/emtrace/internal/utils"

// Size is the decoded form of a raw size_t size field: either a fixed
// minimum byte count, or one of the two sentinel encodings (null-terminated
// or length-prefixed).
type Size struct {
	MinSize        uint64
	LengthPrefixed bool
	NullTerminated bool
}

// decodeSize derives a Size from a raw size field and the header's two
// sentinel values: length_prefixed = (r & LP) == LP; null_terminated =
// (r & NT) == NT; min_size = r &^ (LP|NT).
func decodeSize(raw, nullTerm, lengthPfx uint64) Size {
	return Size{
		MinSize:        raw &^ (nullTerm | lengthPfx),
		LengthPrefixed: raw&lengthPfx == lengthPfx,
		NullTerminated: raw&nullTerm == nullTerm,
	}
}

// Child is one entry in a TypeInfo's children: its name (an empty string
// for a list's element type, by convention) and the nested type.
type Child struct {
	Name   string
	TypeID string
	Info   *TypeInfo
}

// TypeInfo is the recursive type-descriptor node used both to drive stream
// parsing (C6) and to pick a renderer (C7). Children is empty iff the type
// is a scalar leaf (integer, string, float, bool, char).
type TypeInfo struct {
	Size     Size
	Children []Child
}

// frame is one level of the explicit frontier used to walk the
// type-descriptor graph without native recursion: it tracks how many
// siblings remain to be read under a given parent node.
type frame struct {
	parent    *TypeInfo
	remaining uint64
}

// decodeChildren reads numChildren consecutive child descriptors starting
// at pos, attaching each one (and, depth-first, its own children) to info.
// Children are laid out depth-first pre-order immediately following their
// parent's num_children field, so the whole graph is read with a single
// forward-moving cursor and an explicit stack of (parent, remaining-siblings)
// frames — never a native recursive call — bounding memory by nesting depth
// rather than by node count.
//
// Per child: [child_name_off, raw_size, num_children, child_type_name_off],
// each a size_t word; the name and type-name texts are themselves read
// indirectly through those offsets, relative to base.
func decodeChildren(r *Reader, h *Header, base, pos int64, info *TypeInfo, numChildren uint64) (int64, error) {
	stack := []frame{{parent: info, remaining: numChildren}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.remaining == 0 {
			stack = stack[:len(stack)-1]
			continue
		}
		if len(stack) > utils.MaxTypeNestingDepth {
			return pos, utils.NewError(utils.KindInternal, "type descriptor nesting exceeds maximum depth")
		}

		var nameOff, raw, childCount, typeNameOff uint64
		var err error
		nameOff, pos, err = r.ConsumeSizeTAt(pos)
		if err != nil {
			return pos, utils.WrapError(utils.KindInternal, "read child name offset", err)
		}
		raw, pos, err = r.ConsumeSizeTAt(pos)
		if err != nil {
			return pos, utils.WrapError(utils.KindInternal, "read child raw size", err)
		}
		childCount, pos, err = r.ConsumeSizeTAt(pos)
		if err != nil {
			return pos, utils.WrapError(utils.KindInternal, "read child num_children", err)
		}
		typeNameOff, pos, err = r.ConsumeSizeTAt(pos)
		if err != nil {
			return pos, utils.WrapError(utils.KindInternal, "read child type name offset", err)
		}

		//nolint:gosec // G115: offsets are section-relative and bounds-checked by ReadCStringAt
		name, err := r.ReadCStringAt(base + int64(nameOff))
		if err != nil {
			return pos, utils.WrapError(utils.KindInternal, "read child name", err)
		}
		//nolint:gosec // G115: offsets are section-relative and bounds-checked by ReadCStringAt
		typeName, err := r.ReadCStringAt(base + int64(typeNameOff))
		if err != nil {
			return pos, utils.WrapError(utils.KindInternal, "read child type name", err)
		}

		child := Child{
			Name:   name,
			TypeID: typeName,
			Info:   &TypeInfo{Size: decodeSize(raw, h.NullTerm, h.LengthPfx)},
		}
		top.parent.Children = append(top.parent.Children, child)
		top.remaining--

		if childCount > 0 {
			stack = append(stack, frame{parent: child.Info, remaining: childCount})
		}
	}

	return pos, nil
}

// IsLeaf reports whether t is a scalar type with no children.
func (t *TypeInfo) IsLeaf() bool {
	return len(t.Children) == 0
}

// ListElementChild returns the single child describing a list's element
// type — the child whose name is the empty string — and whether it was
// found.
func (t *TypeInfo) ListElementChild() (Child, bool) {
	for _, c := range t.Children {
		if c.Name == "" {
			return c, true
		}
	}
	return Child{}, false
}
