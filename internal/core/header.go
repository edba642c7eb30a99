package core

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tracehost/emtrace/internal/utils"
)

// MagicHex is the 32-byte anchor the header decoder searches for in the
// metadata section. Its offset marks the origin against which every other
// offset in the table is relative.
const MagicHex = "d197f522d9269fd1ad703392f659dfd0fbecbd60971325e89201b25a385d9ec7"

// Magic is the decoded anchor bytes.
var Magic = mustDecodeHex(MagicHex)

func mustDecodeHex(s string) []byte {
	b := make([]byte, len(s)/2)
	for i := range b {
		hi := hexNibble(s[2*i])
		lo := hexNibble(s[2*i+1])
		b[i] = hi<<4 | lo
	}
	return b
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

// Header is the self-descriptive header at the front of the metadata
// table: the anchor's location, the word sizes and alignment it declares,
// and the byte order and sentinel values recovered from the rest block.
type Header struct {
	MagicOff    int64
	MagicFound  bool
	RestRel     uint8
	SizeTSize   uint8
	PtrSize     uint8
	AlignPow    uint8
	Order       binary.ByteOrder
	NullTerm    uint64
	LengthPfx   uint64
}

// ParseHeader locates the anchor in section, reads the 4-byte sub-header
// and the 3-word rest block, and runs byte-order detection on the first
// rest-block word. warn is invoked (not treated as fatal) when the anchor
// is missing, per the spec: metadata then starts at the section origin.
func ParseHeader(section []byte, warn func(string)) (*Header, error) {
	magicOff := bytes.Index(section, Magic)
	found := magicOff >= 0
	if !found {
		if warn != nil {
			warn("emtrace anchor not found in section; assuming metadata starts at section origin")
		}
		magicOff = 0
	}

	subHeaderOff := int64(magicOff) + int64(len(Magic))
	if subHeaderOff+4 > int64(len(section)) {
		return nil, utils.NewError(utils.KindInternal, "section too short for sub-header")
	}
	subHeader := section[subHeaderOff : subHeaderOff+4]
	restRel := subHeader[0]
	sizeTSize := subHeader[1]
	ptrSize := subHeader[2]
	alignPow := subHeader[3]

	if !ValidWordSize(sizeTSize) {
		return nil, utils.NewError(utils.KindInternal, fmt.Sprintf("invalid size_t_size %d", sizeTSize))
	}
	if !ValidWordSize(ptrSize) {
		return nil, utils.NewError(utils.KindInternal, fmt.Sprintf("invalid ptr_size %d", ptrSize))
	}

	restOff := int64(magicOff) + int64(restRel)
	wordLen := int64(sizeTSize)
	if restOff+3*wordLen > int64(len(section)) {
		return nil, utils.NewError(utils.KindInternal, "section too short for rest block")
	}

	byteOrderWord := section[restOff : restOff+wordLen]
	order, err := detectHeaderByteOrder(byteOrderWord)
	if err != nil {
		return nil, err
	}

	nullTerm := DecodeUint(section[restOff+wordLen:restOff+2*wordLen], order)
	lengthPfx := DecodeUint(section[restOff+2*wordLen:restOff+3*wordLen], order)

	return &Header{
		MagicOff:   int64(magicOff),
		MagicFound: found,
		RestRel:    restRel,
		SizeTSize:  sizeTSize,
		PtrSize:    ptrSize,
		AlignPow:   alignPow,
		Order:      order,
		NullTerm:   nullTerm,
		LengthPfx:  lengthPfx,
	}, nil
}

// detectHeaderByteOrder runs C1 over the byteorder_id word and maps its
// result onto an encoding/binary.ByteOrder for the rest of the decoder to
// use when reading metadata words.
func detectHeaderByteOrder(word []byte) (binary.ByteOrder, error) {
	order, err := DetectByteOrder(word)
	if err != nil {
		return nil, err
	}
	if order == LittleEndian {
		return binary.LittleEndian, nil
	}
	return binary.BigEndian, nil
}

// SectionOffset computes section_offset = magic_off - (magic_address
// shifted left by align_pow), where magic_address is the first ptr_size
// bytes read from the trace stream (always little-endian, per the fixed
// stream contract — see Rebase in the root package).
func (h *Header) SectionOffset(magicAddress uint64) int64 {
	shifted := magicAddress << h.AlignPow
	//nolint:gosec // G115: addresses are validated against section bounds by callers
	return h.MagicOff - int64(shifted)
}
