package values

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tracehost/emtrace/internal/core"
	"github.com/tracehost/emtrace/internal/utils"
)

// ReadFunc pulls exactly n bytes from the live trace stream, blocking until
// they are available. It may return fewer than n bytes only when the
// stream has ended; any other failure to produce n bytes is a protocol
// violation, not end-of-stream.
type ReadFunc func(n int) ([]byte, error)

// Stream wraps a ReadFunc with the word size and byte order needed to
// decode length-prefix counts and scalar values, carried over from the
// metadata table's detected header: the original source decodes both the
// metadata table and the live argument stream in the same byte order, so
// there is no separate "stream byte order" to detect.
type Stream struct {
	read      ReadFunc
	sizeTSize uint8
	order     binary.ByteOrder
}

// NewStream constructs a Stream over read, configured with the word size
// and byte order recovered from the metadata header.
func NewStream(read ReadFunc, sizeTSize uint8, order binary.ByteOrder) *Stream {
	return &Stream{read: read, sizeTSize: sizeTSize, order: order}
}

// EndOfStreamError reports that the stream ended while the parser still
// expected more bytes for the current argument. Leftover holds whatever
// partial bytes were returned before the short read; Wanted is how many
// bytes the caller asked for.
type EndOfStreamError struct {
	Leftover []byte
	Wanted   int
}

func (e *EndOfStreamError) Error() string {
	return fmt.Sprintf("end of stream: wanted %d bytes, got %d", e.Wanted, len(e.Leftover))
}

// take reads exactly n bytes, surfacing a short read as KindEndOfStream.
func (s *Stream) take(n int) ([]byte, error) {
	data, err := s.read(n)
	if err != nil {
		return nil, utils.WrapError(utils.KindInternal, "read from trace stream", err)
	}
	if len(data) < n {
		return nil, utils.WrapError(utils.KindEndOfStream, "read from trace stream", &EndOfStreamError{Leftover: data, Wanted: n})
	}
	return data, nil
}

// takeSizeT reads one size_t-sized count off the stream.
func (s *Stream) takeSizeT() (uint64, error) {
	data, err := s.take(int(s.sizeTSize))
	if err != nil {
		return 0, err
	}
	return core.DecodeUint(data, s.order), nil
}

// Reader is the per-type-name dispatch signature: given a Stream and the
// TypeInfo describing the argument's shape, it pulls the right number of
// bytes and returns a tagged Value. The byte width a reader consumes for a
// scalar comes from info.Size.MinSize, read off the wire by C4/C5 — not
// from the type name, since the same declared C type can vary in width
// across target architectures.
type Reader func(s *Stream, info *core.TypeInfo) (Value, error)

// registry is the closed set of recognized type names, mapping each to the
// *category* of reader it selects (signed, unsigned, char, schar, bool,
// float, string, list). It is populated in init so list-element dispatch,
// which recurses back through Read, has no initialization-order
// dependency on this map.
var registry map[string]Reader

func init() {
	registry = map[string]Reader{
		"signed": readSigned, "int": readSigned, "signed int": readSigned,
		"int32_t": readSigned, "long": readSigned, "signed long": readSigned,
		"long long": readSigned, "signed long long": readSigned, "int64_t": readSigned,
		"int128_t": readSigned, "short": readSigned, "signed short": readSigned,
		"int16_t": readSigned, "ssize_t": readSigned, "ptrdiff_t": readSigned,
		"intptr_t": readSigned,

		"signed char": readSChar, "int8_t": readSChar,

		"char": readChar, "unsigned char": readChar, "uint8_t": readChar,

		"unsigned": readUnsigned, "unsigned int": readUnsigned, "uint32_t": readUnsigned,
		"unsigned long": readUnsigned, "unsigned long long": readUnsigned, "uint64_t": readUnsigned,
		"uint128_t": readUnsigned, "uint16_t": readUnsigned, "size_t": readUnsigned,
		"uintptr_t": readUnsigned, "*": readUnsigned,

		"string": readString,
		"bool":   readBool, "_Bool": readBool,
		"float": readFloat, "double": readFloat,
		"list": readList,
	}
}

// Lookup returns the reader registered for typeName, or false if the name
// is not one of the closed set this decoder understands.
func Lookup(typeName string) (Reader, bool) {
	r, ok := registry[typeName]
	return r, ok
}

// Read pulls one value off s for the given type name and shape, using the
// closed-set registry. An unrecognized type name is a format error, not a
// stream error: the metadata table described a type the decoder has no
// reader for.
func Read(s *Stream, typeName string, info *core.TypeInfo) (Value, error) {
	r, ok := Lookup(typeName)
	if !ok {
		return Value{}, utils.NewError(utils.KindFormatError, fmt.Sprintf("unrecognized type name %q", typeName))
	}
	return r(s, info)
}

// scalarWidth validates and returns the declared width for a fixed-size
// scalar: length-prefixed or null-terminated sizing applies only to
// strings, so any scalar reader seeing either flag set is looking at a
// malformed type descriptor.
func scalarWidth(info *core.TypeInfo) (int, error) {
	if info.Size.LengthPrefixed || info.Size.NullTerminated {
		return 0, utils.NewError(utils.KindFormatError, "scalar type descriptor carries a string size flag")
	}
	return int(info.Size.MinSize), nil
}

func readSigned(s *Stream, info *core.TypeInfo) (Value, error) {
	width, err := scalarWidth(info)
	if err != nil {
		return Value{}, err
	}
	data, err := s.take(width)
	if err != nil {
		return Value{}, err
	}
	u := core.DecodeUint(data, s.order)
	return Value{Tag: TagSignedInt, I: signExtend(u, width)}, nil
}

func readUnsigned(s *Stream, info *core.TypeInfo) (Value, error) {
	width, err := scalarWidth(info)
	if err != nil {
		return Value{}, err
	}
	data, err := s.take(width)
	if err != nil {
		return Value{}, err
	}
	return Value{Tag: TagUnsignedInt, U: core.DecodeUint(data, s.order)}, nil
}

func requireByteWidth(info *core.TypeInfo, label string) error {
	width, err := scalarWidth(info)
	if err != nil {
		return err
	}
	if width != 1 {
		return utils.NewError(utils.KindFormatError, fmt.Sprintf("%s requires min_size 1, got %d", label, width))
	}
	return nil
}

func readChar(s *Stream, info *core.TypeInfo) (Value, error) {
	if err := requireByteWidth(info, "character type"); err != nil {
		return Value{}, err
	}
	data, err := s.take(1)
	if err != nil {
		return Value{}, err
	}
	return Value{Tag: TagChar, U: uint64(data[0])}, nil
}

func readSChar(s *Stream, info *core.TypeInfo) (Value, error) {
	if err := requireByteWidth(info, "signed char type"); err != nil {
		return Value{}, err
	}
	data, err := s.take(1)
	if err != nil {
		return Value{}, err
	}
	return Value{Tag: TagSChar, I: int64(int8(data[0]))}, nil
}

func readBool(s *Stream, info *core.TypeInfo) (Value, error) {
	if err := requireByteWidth(info, "bool type"); err != nil {
		return Value{}, err
	}
	data, err := s.take(1)
	if err != nil {
		return Value{}, err
	}
	return Value{Tag: TagBool, U: uint64(data[0])}, nil
}

func readFloat(s *Stream, info *core.TypeInfo) (Value, error) {
	width, err := scalarWidth(info)
	if err != nil {
		return Value{}, err
	}
	switch width {
	case 2, 4, 8:
	default:
		return Value{}, utils.NewError(utils.KindFormatError, fmt.Sprintf("float type requires min_size in {2,4,8}, got %d", width))
	}

	data, err := s.take(width)
	if err != nil {
		return Value{}, err
	}
	bits := core.DecodeUint(data, s.order)
	switch width {
	case 2:
		return Value{Tag: TagF32, F: float64(float16ToFloat32(uint16(bits)))}, nil
	case 4:
		return Value{Tag: TagF32, F: float64(math.Float32frombits(uint32(bits)))}, nil
	default:
		return Value{Tag: TagF64, F: math.Float64frombits(bits)}, nil
	}
}

// float16ToFloat32 converts an IEEE-754 binary16 bit pattern to float32.
// No library in the corpus provides binary16 conversion; this is a
// straightforward sign/exponent/mantissa bit-shuffle, including subnormal
// and infinity/NaN handling.
func float16ToFloat32(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h&0x7c00) >> 10
	mant := uint32(h & 0x03ff)

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal: normalize by shifting until the implicit bit appears.
		e := uint32(127 - 15 + 1)
		for mant&0x0400 == 0 {
			mant <<= 1
			e--
		}
		mant &^= 0x0400
		return math.Float32frombits(sign | (e << 23) | (mant << 13))
	case 0x1f:
		bits := sign | 0x7f800000
		if mant != 0 {
			bits |= mant << 13
		}
		return math.Float32frombits(bits)
	default:
		e := exp - 15 + 127
		return math.Float32frombits(sign | (e << 23) | (mant << 13))
	}
}

// signExtend sign-extends the low width bytes of u (already zero-extended
// by DecodeUint) to a full int64.
func signExtend(u uint64, width int) int64 {
	if width <= 0 || width >= 8 {
		return int64(u)
	}
	shift := uint(64 - width*8)
	return int64(u<<shift) >> shift
}

// readString reads a string argument per info.Size: a size_t length prefix
// followed by that many raw bytes, or a NUL-terminated run read one byte
// at a time off the stream (the stream has no random access, unlike the
// metadata section). The two encodings are mutually exclusive per C3's
// sentinel decoding.
func readString(s *Stream, info *core.TypeInfo) (Value, error) {
	switch {
	case info.Size.LengthPrefixed:
		n, err := s.takeSizeT()
		if err != nil {
			return Value{}, err
		}
		if err := utils.ValidateCount(n, utils.MaxStringBytes, "string length prefix"); err != nil {
			return Value{}, err
		}
		data, err := s.take(int(n))
		if err != nil {
			return Value{}, err
		}
		return Value{Tag: TagStr, S: string(data)}, nil

	case info.Size.NullTerminated:
		buf := utils.GetBuffer(0)
		defer utils.ReleaseBuffer(buf)
		for {
			b, err := s.take(1)
			if err != nil {
				return Value{}, err
			}
			if b[0] == 0 {
				break
			}
			buf = append(buf, b[0])
			if len(buf) > utils.MaxStringBytes {
				return Value{}, utils.NewError(utils.KindFormatError, "null-terminated string exceeds maximum length without a terminator")
			}
		}
		return Value{Tag: TagStr, S: string(buf)}, nil

	default:
		return Value{}, utils.NewError(utils.KindFormatError, "string type is neither length-prefixed nor null-terminated")
	}
}

// readList reads a size_t element count (or, for a fixed-size list,
// min_size elements) followed by that many elements of the child type
// named "" in info.Children, recursing back through Read for each element
// (the element type may itself be a list or any other registered type).
func readList(s *Stream, info *core.TypeInfo) (Value, error) {
	elem, ok := info.ListElementChild()
	if !ok {
		return Value{}, utils.NewError(utils.KindFormatError, "list type descriptor has no element child")
	}

	var count uint64
	if info.Size.LengthPrefixed {
		n, err := s.takeSizeT()
		if err != nil {
			return Value{}, err
		}
		count = n
	} else {
		count = info.Size.MinSize
	}
	if err := utils.ValidateCount(count, utils.MaxListElements, "list element count"); err != nil {
		return Value{}, err
	}

	items := make([]Value, 0, count)
	for i := uint64(0); i < count; i++ {
		v, err := Read(s, elem.TypeID, elem.Info)
		if err != nil {
			return Value{}, err
		}
		items = append(items, v)
	}
	return Value{Tag: TagList, List: items}, nil
}
