// Package wire implements the registry's tagged binary wire format: a
// format-string-driven packer/unpacker plus the packet
// tag enumeration and ERROR-packet encoding of errcode's numeric codes. It is
// grounded on the original C bpack.c/bpack.h (original_source/communication)
// and, for general binary-protocol shape, on the length-prefixed framing
// used throughout the pack (e.g. other_examples' pion-stun message.go and
// zp-j-dns msg.go).
package wire

import (
	"encoding/binary"
	"math"

	"krypt.co/registry/buffer"
	"krypt.co/registry/errcode"
)

// Packer drives a sequence of typed pack/unpack operations against a byte
// buffer using a format string. Recognized characters: 'l' (int64), 'd'
// (double), 's' (NUL-terminated text), 'b' (raw byte string), '<' (switch to
// little-endian, the default), '>' (switch to big-endian).
type Packer struct {
	buf *buffer.Buffer
}

// New returns a Packer over a fresh, empty buffer, ready for packing.
func New() *Packer {
	return &Packer{buf: buffer.New()}
}

// FromBytes returns a Packer over existing bytes, ready for unpacking.
func FromBytes(b []byte) *Packer {
	return &Packer{buf: buffer.FromBytes(b)}
}

// Bytes returns the packed byte sequence accumulated so far.
func (p *Packer) Bytes() []byte {
	return p.buf.View()
}

// Pack encodes args according to format, appending to the underlying buffer.
// args must supply, in order, one value per non-endianness format character:
// int64 for 'l', float64 for 'd', string for 's', []byte for 'b'.
func (p *Packer) Pack(format string, args ...interface{}) error {
	little := true
	argi := 0
	next := func() (interface{}, error) {
		if argi >= len(args) {
			return nil, errcode.New(errcode.INVALID_ARGUMENTS, errcode.KindArgument, "wire: too few arguments for format string")
		}
		v := args[argi]
		argi++
		return v, nil
	}

	for _, c := range format {
		switch c {
		case '<':
			little = true
		case '>':
			little = false
		case 'l':
			v, err := next()
			if err != nil {
				return err
			}
			i, ok := v.(int64)
			if !ok {
				return errcode.New(errcode.INVALID_ARGUMENTS, errcode.KindArgument, "wire: 'l' expects int64")
			}
			if err := packInt64(p.buf, i, little); err != nil {
				return err
			}
		case 'd':
			v, err := next()
			if err != nil {
				return err
			}
			d, ok := v.(float64)
			if !ok {
				return errcode.New(errcode.INVALID_ARGUMENTS, errcode.KindArgument, "wire: 'd' expects float64")
			}
			if err := packDouble(p.buf, d, little); err != nil {
				return err
			}
		case 's':
			v, err := next()
			if err != nil {
				return err
			}
			s, ok := v.(string)
			if !ok {
				return errcode.New(errcode.INVALID_ARGUMENTS, errcode.KindArgument, "wire: 's' expects string")
			}
			if err := packBlob(p.buf, []byte(s), little); err != nil {
				return err
			}
		case 'b':
			v, err := next()
			if err != nil {
				return err
			}
			raw, ok := v.([]byte)
			if !ok {
				return errcode.New(errcode.INVALID_ARGUMENTS, errcode.KindArgument, "wire: 'b' expects []byte")
			}
			if err := packBlob(p.buf, raw, little); err != nil {
				return err
			}
		default:
			return errcode.Newf(errcode.BPACK_INVALID_FORMAT, errcode.KindProtocol, "wire: unknown format character %q", c)
		}
	}
	return nil
}

// Unpack decodes values according to format into outs, which must be
// pointers in the same order as format's non-endianness characters: *int64
// for 'l', *float64 for 'd', *string for 's', *[]byte for 'b'. A nil pointer
// for any slot is an argument error. On error, outputs already written for
// earlier format characters remain valid; the caller owns them.
func (p *Packer) Unpack(format string, outs ...interface{}) error {
	little := true
	oi := 0
	next := func() (interface{}, error) {
		if oi >= len(outs) {
			return nil, errcode.New(errcode.INVALID_ARGUMENTS, errcode.KindArgument, "wire: too few outputs for format string")
		}
		v := outs[oi]
		oi++
		if v == nil {
			return nil, errcode.New(errcode.INVALID_ARGUMENTS, errcode.KindArgument, "wire: nil output pointer")
		}
		return v, nil
	}

	for _, c := range format {
		switch c {
		case '<':
			little = true
		case '>':
			little = false
		case 'l':
			out, err := next()
			if err != nil {
				return err
			}
			ptr, ok := out.(*int64)
			if !ok || ptr == nil {
				return errcode.New(errcode.INVALID_ARGUMENTS, errcode.KindArgument, "wire: 'l' expects *int64")
			}
			v, err := unpackInt64(p.buf, little)
			if err != nil {
				return err
			}
			*ptr = v
		case 'd':
			out, err := next()
			if err != nil {
				return err
			}
			ptr, ok := out.(*float64)
			if !ok || ptr == nil {
				return errcode.New(errcode.INVALID_ARGUMENTS, errcode.KindArgument, "wire: 'd' expects *float64")
			}
			v, err := unpackDouble(p.buf, little)
			if err != nil {
				return err
			}
			*ptr = v
		case 's':
			out, err := next()
			if err != nil {
				return err
			}
			ptr, ok := out.(*string)
			if !ok || ptr == nil {
				return errcode.New(errcode.INVALID_ARGUMENTS, errcode.KindArgument, "wire: 's' expects *string")
			}
			b, err := unpackBlob(p.buf, little)
			if err != nil {
				return err
			}
			*ptr = string(b)
		case 'b':
			out, err := next()
			if err != nil {
				return err
			}
			ptr, ok := out.(*[]byte)
			if !ok || ptr == nil {
				return errcode.New(errcode.INVALID_ARGUMENTS, errcode.KindArgument, "wire: 'b' expects *[]byte")
			}
			b, err := unpackBlob(p.buf, little)
			if err != nil {
				return err
			}
			*ptr = b
		default:
			return errcode.Newf(errcode.BPACK_INVALID_FORMAT, errcode.KindProtocol, "wire: unknown format character %q", c)
		}
	}
	return nil
}

func packInt64(buf *buffer.Buffer, v int64, little bool) error {
	var raw [8]byte
	if little {
		binary.LittleEndian.PutUint64(raw[:], uint64(v))
	} else {
		binary.BigEndian.PutUint64(raw[:], uint64(v))
	}
	for _, b := range raw {
		if err := buf.WriteByte(b); err != nil {
			return errcode.New(errcode.BPACK_WRITE, errcode.KindFailure, "wire: write failure packing int64")
		}
	}
	return nil
}

func unpackInt64(buf *buffer.Buffer, little bool) (int64, error) {
	var raw [8]byte
	for i := range raw {
		b, err := buf.ReadByte()
		if err != nil {
			return 0, errcode.New(errcode.BPACK_READ, errcode.KindFailure, "wire: read failure unpacking int64")
		}
		raw[i] = b
	}
	if little {
		return int64(binary.LittleEndian.Uint64(raw[:])), nil
	}
	return int64(binary.BigEndian.Uint64(raw[:])), nil
}

func packUint16(buf *buffer.Buffer, v uint16, little bool) error {
	var raw [2]byte
	if little {
		binary.LittleEndian.PutUint16(raw[:], v)
	} else {
		binary.BigEndian.PutUint16(raw[:], v)
	}
	for _, b := range raw {
		if err := buf.WriteByte(b); err != nil {
			return errcode.New(errcode.BPACK_WRITE, errcode.KindFailure, "wire: write failure packing exponent")
		}
	}
	return nil
}

func unpackUint16(buf *buffer.Buffer, little bool) (uint16, error) {
	var raw [2]byte
	for i := range raw {
		b, err := buf.ReadByte()
		if err != nil {
			return 0, errcode.New(errcode.BPACK_READ, errcode.KindFailure, "wire: read failure unpacking exponent")
		}
		raw[i] = b
	}
	if little {
		return binary.LittleEndian.Uint16(raw[:]), nil
	}
	return binary.BigEndian.Uint16(raw[:]), nil
}

// packBlob writes an 8-byte unsigned length prefix followed by the raw
// bytes; a string's on-the-wire form is identical, minus the NUL
// terminator. The original's trailing-NUL-for-safety behavior on blobs is
// not reproduced here; see DESIGN.md.
func packBlob(buf *buffer.Buffer, b []byte, little bool) error {
	if err := packInt64(buf, int64(len(b)), little); err != nil {
		return err
	}
	for _, c := range b {
		if err := buf.WriteByte(c); err != nil {
			return errcode.New(errcode.BPACK_WRITE, errcode.KindFailure, "wire: write failure packing blob body")
		}
	}
	return nil
}

func unpackBlob(buf *buffer.Buffer, little bool) ([]byte, error) {
	length, err := unpackInt64(buf, little)
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, errcode.New(errcode.BUNPACK_INVALID_DATA, errcode.KindProtocol, "wire: negative length prefix")
	}
	if length > math.MaxInt32 {
		// Guards against a hostile or corrupt length field driving an
		// unbounded allocation; the original's "length cannot be
		// allocated" memory-error maps to the same case here.
		return nil, errcode.New(errcode.MEMORY, errcode.KindResource, "wire: length prefix too large to allocate")
	}
	out := make([]byte, length)
	for i := range out {
		b, err := buf.ReadByte()
		if err != nil {
			return nil, errcode.New(errcode.BPACK_READ, errcode.KindFailure, "wire: read failure unpacking blob body")
		}
		out[i] = b
	}
	return out, nil
}
