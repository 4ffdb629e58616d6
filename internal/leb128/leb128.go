// Package leb128 implements the LEB128 variable-length integer encoding the
// WebAssembly binary format uses for every integer field: section sizes,
// indices, immediates, block-type encodings. Load* functions decode directly
// from a byte slice with no allocation, for use once a section has been
// sliced out of the module image; Decode* functions decode from an
// io.ByteReader, for use while still streaming a section in.
package leb128

import (
	"fmt"
	"io"
)

// EncodeUint32 returns v encoded as unsigned LEB128.
func EncodeUint32(v uint32) []byte { return EncodeUint64(uint64(v)) }

// EncodeUint64 returns v encoded as unsigned LEB128.
func EncodeUint64(v uint64) []byte {
	out := make([]byte, 0, 10)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

// EncodeInt32 returns v encoded as signed LEB128.
func EncodeInt32(v int32) []byte { return EncodeInt64(int64(v)) }

// EncodeInt64 returns v encoded as signed LEB128.
func EncodeInt64(v int64) []byte {
	out := make([]byte, 0, 10)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			out = append(out, b)
			return out
		}
		out = append(out, b|0x80)
	}
}

// LoadUint32 decodes an unsigned LEB128 value from the front of buf,
// returning the value and the number of bytes consumed.
func LoadUint32(buf []byte) (uint32, uint64, error) {
	v, n, err := loadUnsigned(buf, 32)
	return uint32(v), n, err
}

// LoadUint64 decodes an unsigned LEB128 value from the front of buf.
func LoadUint64(buf []byte) (uint64, uint64, error) {
	return loadUnsigned(buf, 64)
}

// LoadInt32 decodes a signed LEB128 value from the front of buf.
func LoadInt32(buf []byte) (int32, uint64, error) {
	v, n, err := loadSigned(buf, 32)
	return int32(v), n, err
}

// LoadInt64 decodes a signed LEB128 value from the front of buf.
func LoadInt64(buf []byte) (int64, uint64, error) {
	return loadSigned(buf, 64)
}

func loadUnsigned(buf []byte, width uint) (uint64, uint64, error) {
	var result uint64
	var shift uint
	for i := 0; i < len(buf); i++ {
		if shift >= width {
			return 0, 0, fmt.Errorf("leb128: overflow decoding uint%d", width)
		}
		b := buf[i]
		data := uint64(b & 0x7f)
		if remaining := width - shift; remaining < 7 && data>>remaining != 0 {
			return 0, 0, fmt.Errorf("leb128: overflow decoding uint%d", width)
		}
		result |= data << shift
		if b&0x80 == 0 {
			return result, uint64(i + 1), nil
		}
		shift += 7
	}
	return 0, 0, io.ErrUnexpectedEOF
}

func loadSigned(buf []byte, width uint) (int64, uint64, error) {
	var result int64
	var shift uint
	for i := 0; i < len(buf); i++ {
		if shift >= width {
			return 0, 0, fmt.Errorf("leb128: overflow decoding int%d", width)
		}
		b := buf[i]
		data := int64(b & 0x7f)
		if remaining := width - shift; remaining < 7 {
			// This byte carries more than the target width's remaining
			// bits. The extra bits are only a valid encoding of the same
			// number if they all equal its sign bit (the bit at position
			// width-1, i.e. bit remaining-1 of this byte).
			extraBits := 7 - remaining
			signBit := (data >> (remaining - 1)) & 1
			want := signBit * ((int64(1) << extraBits) - 1)
			if data>>remaining != want {
				return 0, 0, fmt.Errorf("leb128: overflow decoding int%d", width)
			}
		}
		result |= data << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < width && b&0x40 != 0 {
				result |= ^int64(0) << shift
			}
			return result, uint64(i + 1), nil
		}
	}
	return 0, 0, io.ErrUnexpectedEOF
}

// DecodeUint32 decodes an unsigned LEB128 value from r.
func DecodeUint32(r io.ByteReader) (uint32, uint64, error) {
	v, n, err := decodeUnsigned(r, 32)
	return uint32(v), n, err
}

// DecodeUint64 decodes an unsigned LEB128 value from r.
func DecodeUint64(r io.ByteReader) (uint64, uint64, error) {
	return decodeUnsigned(r, 64)
}

// DecodeInt32 decodes a signed LEB128 value from r.
func DecodeInt32(r io.ByteReader) (int32, uint64, error) {
	v, n, err := decodeSigned(r, 32)
	return int32(v), n, err
}

// DecodeInt64 decodes a signed LEB128 value from r.
func DecodeInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeSigned(r, 64)
}

// DecodeInt33AsInt64 decodes a 33-bit signed LEB128 value from r as an
// int64. The binary format uses this width for block types: it is one bit
// wider than a type index needs, so that the single negative byte encodings
// reserved for value types (i32, i64, f32, f64, funcref, the empty block
// type) remain distinguishable from a non-negative type index.
func DecodeInt33AsInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeSigned(r, 33)
}

func decodeUnsigned(r io.ByteReader, width uint) (uint64, uint64, error) {
	var result uint64
	var shift uint
	var n uint64
	for {
		if shift >= width {
			return 0, 0, fmt.Errorf("leb128: overflow decoding uint%d", width)
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		n++
		data := uint64(b & 0x7f)
		if remaining := width - shift; remaining < 7 && data>>remaining != 0 {
			return 0, 0, fmt.Errorf("leb128: overflow decoding uint%d", width)
		}
		result |= data << shift
		if b&0x80 == 0 {
			return result, n, nil
		}
		shift += 7
	}
}

func decodeSigned(r io.ByteReader, width uint) (int64, uint64, error) {
	var result int64
	var shift uint
	var n uint64
	for {
		if shift >= width {
			return 0, 0, fmt.Errorf("leb128: overflow decoding int%d", width)
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		n++
		data := int64(b & 0x7f)
		if remaining := width - shift; remaining < 7 {
			signFill := data >> remaining
			if signFill != 0 && signFill != (int64(1)<<(7-remaining))-1 {
				return 0, 0, fmt.Errorf("leb128: overflow decoding int%d", width)
			}
		}
		result |= data << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < width && b&0x40 != 0 {
				result |= ^int64(0) << shift
			}
			return result, n, nil
		}
	}
}
