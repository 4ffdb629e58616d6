// Package api includes the types end-users and internal packages use to
// exchange values with a WebAssembly module: ValueType, the tagged Value
// scalar, and the Memory/HostFunction seams a host implements.
package api

import (
	"fmt"
	"math"
)

// ValueType describes a numeric type used in WebAssembly 1.0 (20191205) plus
// the sign-extension, non-trapping float-to-int and bulk-memory proposals.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-valtype
type ValueType = byte

const (
	// ValueTypeI32 is a 32-bit integer.
	ValueTypeI32 ValueType = 0x7f
	// ValueTypeI64 is a 64-bit integer.
	ValueTypeI64 ValueType = 0x7e
	// ValueTypeF32 is a 32-bit floating point number.
	ValueTypeF32 ValueType = 0x7d
	// ValueTypeF64 is a 64-bit floating point number.
	ValueTypeF64 ValueType = 0x7c
	// ValueTypeFuncref is a function reference, the only reference type this
	// engine supports (table entries targeted by CALL_INDIRECT).
	ValueTypeFuncref ValueType = 0x70
)

// ValueTypeName returns the WebAssembly text format name of t, or "unknown"
// if t is not a recognized ValueType.
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeFuncref:
		return "funcref"
	}
	return "unknown"
}

// Value is a tagged scalar: a 64-bit raw bit pattern plus the ValueType that
// names which view of those bits is meaningful. Floats are always stored by
// their IEEE-754 bit pattern, never converted to/from float32/float64, so
// that NaN payloads survive reinterpret casts untouched.
//
// A Value's Type is expected to equal the declared result type of whatever
// instruction produced it; extracting the wrong view is a host-level bug,
// not a WebAssembly trap, and panics.
type Value struct {
	bits uint64
	Type ValueType
}

// I32 constructs a Value holding a 32-bit integer, stored sign-agnostic.
func I32(v int32) Value { return Value{bits: uint64(uint32(v)), Type: ValueTypeI32} }

// U32 constructs a Value holding a 32-bit integer from its unsigned view.
func U32(v uint32) Value { return Value{bits: uint64(v), Type: ValueTypeI32} }

// I64 constructs a Value holding a 64-bit integer.
func I64(v int64) Value { return Value{bits: uint64(v), Type: ValueTypeI64} }

// U64 constructs a Value holding a 64-bit integer from its unsigned view.
func U64(v uint64) Value { return Value{bits: v, Type: ValueTypeI64} }

// F32 constructs a Value holding a 32-bit float by its IEEE-754 bit pattern.
func F32(v float32) Value { return Value{bits: uint64(math.Float32bits(v)), Type: ValueTypeF32} }

// F64 constructs a Value holding a 64-bit float by its IEEE-754 bit pattern.
func F64(v float64) Value { return Value{bits: math.Float64bits(v), Type: ValueTypeF64} }

// Funcref constructs a Value holding a table-resolved function index.
func Funcref(index uint32) Value { return Value{bits: uint64(index), Type: ValueTypeFuncref} }

// TRUE is the canonical i32 value WebAssembly comparisons and predicates
// push for a true result.
var TRUE = I32(1)

// FALSE is the canonical i32 value WebAssembly comparisons and predicates
// push for a false result.
var FALSE = I32(0)

// Bool converts a Go bool to TRUE or FALSE.
func Bool(b bool) Value {
	if b {
		return TRUE
	}
	return FALSE
}

func (v Value) requireType(t ValueType) {
	if v.Type != t {
		panic(fmt.Sprintf("BUG: value tagged %s read as %s", ValueTypeName(v.Type), ValueTypeName(t)))
	}
}

// AsI32 returns the signed 32-bit view. Panics if Type != ValueTypeI32.
func (v Value) AsI32() int32 {
	v.requireType(ValueTypeI32)
	return int32(uint32(v.bits))
}

// AsU32 returns the unsigned 32-bit view. Panics if Type != ValueTypeI32.
func (v Value) AsU32() uint32 {
	v.requireType(ValueTypeI32)
	return uint32(v.bits)
}

// AsI64 returns the signed 64-bit view. Panics if Type != ValueTypeI64.
func (v Value) AsI64() int64 {
	v.requireType(ValueTypeI64)
	return int64(v.bits)
}

// AsU64 returns the unsigned 64-bit view. Panics if Type != ValueTypeI64.
func (v Value) AsU64() uint64 {
	v.requireType(ValueTypeI64)
	return v.bits
}

// AsF32 returns the float32 view, bit-exact. Panics if Type != ValueTypeF32.
func (v Value) AsF32() float32 {
	v.requireType(ValueTypeF32)
	return math.Float32frombits(uint32(v.bits))
}

// AsF64 returns the float64 view, bit-exact. Panics if Type != ValueTypeF64.
func (v Value) AsF64() float64 {
	v.requireType(ValueTypeF64)
	return math.Float64frombits(v.bits)
}

// AsI8 truncates to the low 8 bits and returns them as a signed int8. Used by
// I32_EXTEND8_S and the rare case a caller needs a byte-width view.
func (v Value) AsI8() int8 { return int8(uint8(v.bits)) }

// AsI16 truncates to the low 16 bits and returns them as a signed int16. Used by
// I32_EXTEND16_S.
func (v Value) AsI16() int16 { return int16(uint16(v.bits)) }

// AsShort returns the low 16 bits unsigned, as used by 16-bit memory stores.
func (v Value) AsShort() uint16 { return uint16(v.bits) }

// AsByte returns the low 8 bits unsigned, as used by 8-bit memory stores.
func (v Value) AsByte() byte { return byte(v.bits) }

// AsFuncref returns the table-resolved function index. Panics if
// Type != ValueTypeFuncref.
func (v Value) AsFuncref() uint32 {
	v.requireType(ValueTypeFuncref)
	return uint32(v.bits)
}

// Bits returns the raw 64-bit pattern backing v, regardless of Type. Used by
// reinterpret casts and by Memory/Instruction plumbing that moves values
// without caring what they mean.
func (v Value) Bits() uint64 { return v.bits }

// WithBits returns a copy of v with the same Type but a different raw
// pattern. Used by instructions that rewrite a value in place, such as
// COPYSIGN's sign-bit substitution.
func (v Value) WithBits(bits uint64) Value { return Value{bits: bits, Type: v.Type} }

// IsZero reports whether the raw bit pattern is the all-zero value,
// regardless of Type. Branch conditions (BR_IF, IF, SELECT) test this.
func (v Value) IsZero() bool { return v.bits == 0 }

func (v Value) String() string {
	switch v.Type {
	case ValueTypeI32:
		return fmt.Sprintf("i32:%d", v.AsI32())
	case ValueTypeI64:
		return fmt.Sprintf("i64:%d", v.AsI64())
	case ValueTypeF32:
		return fmt.Sprintf("f32:%g", v.AsF32())
	case ValueTypeF64:
		return fmt.Sprintf("f64:%g", v.AsF64())
	case ValueTypeFuncref:
		return fmt.Sprintf("funcref:%d", v.AsFuncref())
	default:
		return fmt.Sprintf("<unknown type %#x, bits %#x>", v.Type, v.bits)
	}
}

// Memory is a host-visible view over an instance's linear memory: typed
// loads/stores, grow/size, and the bulk-memory copy/init operations.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#memory-instances%E2%91%A0
type Memory interface {
	// Size returns the current size in pages (65536 bytes per page).
	Size() uint32

	// Grow attempts to grow memory by deltaPages pages and returns the
	// previous page count, or (0, false) if the growth would exceed the
	// instance's declared maximum.
	Grow(deltaPages uint32) (previousPages uint32, ok bool)

	ReadByte(offset uint32) (byte, bool)
	ReadUint16Le(offset uint32) (uint16, bool)
	ReadUint32Le(offset uint32) (uint32, bool)
	ReadUint64Le(offset uint32) (uint64, bool)
	Read(offset, byteCount uint32) ([]byte, bool)

	WriteByte(offset uint32, v byte) bool
	WriteUint16Le(offset uint32, v uint16) bool
	WriteUint32Le(offset uint32, v uint32) bool
	WriteUint64Le(offset uint32, v uint64) bool
	Write(offset uint32, v []byte) bool

	// Copy implements MEMORY_COPY: move byteCount bytes from src to dst,
	// correctly even when the ranges overlap.
	Copy(dst, src, byteCount uint32) bool

	// Fill implements MEMORY_FILL: set byteCount bytes starting at dst to
	// value.
	Fill(dst, byteCount uint32, value byte) bool

	// InitPassiveSegment implements MEMORY_INIT: copy byteCount bytes from
	// the passive data segment identified by segmentIndex, starting at
	// segOffset, to dst. Returns false (out of bounds) if the segment has
	// been dropped (DATA_DROP) or the range exceeds its length.
	InitPassiveSegment(segmentIndex uint32, dst, segOffset, byteCount uint32) bool

	// DropDataSegment implements DATA_DROP: the segment identified by
	// segmentIndex becomes permanently unavailable to InitPassiveSegment.
	DropDataSegment(segmentIndex uint32)
}

// HostFunction is the contract a host import satisfies (§6): given the
// calling instance's memory and the popped argument Values, return a result
// vector (possibly empty) or a trap/engine error. Each returned Value is
// pushed onto the operand stack in order.
type HostFunction func(mem Memory, args []Value) ([]Value, error)

// EncodeI32 encodes the input as the raw uint64 pattern of a ValueTypeI32.
// Kept for callers that work in raw uint64 rather than Value, mirroring how
// host bindings pass arguments across the FFI boundary.
func EncodeI32(input int32) uint64 { return uint64(uint32(input)) }

// EncodeI64 encodes the input as the raw uint64 pattern of a ValueTypeI64.
func EncodeI64(input int64) uint64 { return uint64(input) }

// EncodeF32 encodes the input as the raw uint64 pattern of a ValueTypeF32.
func EncodeF32(input float32) uint64 { return uint64(math.Float32bits(input)) }

// DecodeF32 decodes a raw uint64 pattern as a ValueTypeF32.
func DecodeF32(input uint64) float32 { return math.Float32frombits(uint32(input)) }

// EncodeF64 encodes the input as the raw uint64 pattern of a ValueTypeF64.
func EncodeF64(input float64) uint64 { return math.Float64bits(input) }

// DecodeF64 decodes a raw uint64 pattern as a ValueTypeF64.
func DecodeF64(input uint64) float64 { return math.Float64frombits(input) }
