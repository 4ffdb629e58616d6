package interpreter

import (
	"fmt"
	"math"

	"github.com/wasmi-project/wasmi/api"
	"github.com/wasmi-project/wasmi/internal/features"
	"github.com/wasmi-project/wasmi/internal/moremath"
	"github.com/wasmi-project/wasmi/internal/wasm"
)

// dispatchNumeric handles every opcode interpreter.go's main switch doesn't
// special-case itself: comparisons, arithmetic, bit-twiddling, conversions,
// sign-extension and the 0xFC-prefixed saturating-truncation/bulk-memory
// ops. Binary operators pop b then a, so a is the deeper operand (§4.1).
func (in *Interpreter) dispatchNumeric(instr *wasm.Instruction) {
	switch instr.Opcode {

	// --- i32 comparisons ---
	case wasm.OpcodeI32Eqz:
		in.stack.push(api.Bool(in.stack.pop().AsI32() == 0))
	case wasm.OpcodeI32Eq:
		in.i32Cmp(func(a, b int32) bool { return a == b })
	case wasm.OpcodeI32Ne:
		in.i32Cmp(func(a, b int32) bool { return a != b })
	case wasm.OpcodeI32LtS:
		in.i32Cmp(func(a, b int32) bool { return a < b })
	case wasm.OpcodeI32LtU:
		in.u32Cmp(func(a, b uint32) bool { return a < b })
	case wasm.OpcodeI32GtS:
		in.i32Cmp(func(a, b int32) bool { return a > b })
	case wasm.OpcodeI32GtU:
		in.u32Cmp(func(a, b uint32) bool { return a > b })
	case wasm.OpcodeI32LeS:
		in.i32Cmp(func(a, b int32) bool { return a <= b })
	case wasm.OpcodeI32LeU:
		in.u32Cmp(func(a, b uint32) bool { return a <= b })
	case wasm.OpcodeI32GeS:
		in.i32Cmp(func(a, b int32) bool { return a >= b })
	case wasm.OpcodeI32GeU:
		in.u32Cmp(func(a, b uint32) bool { return a >= b })

	// --- i64 comparisons ---
	case wasm.OpcodeI64Eqz:
		in.stack.push(api.Bool(in.stack.pop().AsI64() == 0))
	case wasm.OpcodeI64Eq:
		in.i64Cmp(func(a, b int64) bool { return a == b })
	case wasm.OpcodeI64Ne:
		in.i64Cmp(func(a, b int64) bool { return a != b })
	case wasm.OpcodeI64LtS:
		in.i64Cmp(func(a, b int64) bool { return a < b })
	case wasm.OpcodeI64LtU:
		in.u64Cmp(func(a, b uint64) bool { return a < b })
	case wasm.OpcodeI64GtS:
		in.i64Cmp(func(a, b int64) bool { return a > b })
	case wasm.OpcodeI64GtU:
		in.u64Cmp(func(a, b uint64) bool { return a > b })
	case wasm.OpcodeI64LeS:
		in.i64Cmp(func(a, b int64) bool { return a <= b })
	case wasm.OpcodeI64LeU:
		in.u64Cmp(func(a, b uint64) bool { return a <= b })
	case wasm.OpcodeI64GeS:
		in.i64Cmp(func(a, b int64) bool { return a >= b })
	case wasm.OpcodeI64GeU:
		in.u64Cmp(func(a, b uint64) bool { return a >= b })

	// --- f32 comparisons ---
	case wasm.OpcodeF32Eq:
		in.f32Cmp(func(a, b float32) bool { return a == b })
	case wasm.OpcodeF32Ne:
		in.f32Cmp(func(a, b float32) bool { return a != b })
	case wasm.OpcodeF32Lt:
		in.f32Cmp(func(a, b float32) bool { return a < b })
	case wasm.OpcodeF32Gt:
		in.f32Cmp(func(a, b float32) bool { return a > b })
	case wasm.OpcodeF32Le:
		in.f32Cmp(func(a, b float32) bool { return a <= b })
	case wasm.OpcodeF32Ge:
		in.f32Cmp(func(a, b float32) bool { return a >= b })

	// --- f64 comparisons ---
	case wasm.OpcodeF64Eq:
		in.f64Cmp(func(a, b float64) bool { return a == b })
	case wasm.OpcodeF64Ne:
		in.f64Cmp(func(a, b float64) bool { return a != b })
	case wasm.OpcodeF64Lt:
		in.f64Cmp(func(a, b float64) bool { return a < b })
	case wasm.OpcodeF64Gt:
		in.f64Cmp(func(a, b float64) bool { return a > b })
	case wasm.OpcodeF64Le:
		in.f64Cmp(func(a, b float64) bool { return a <= b })
	case wasm.OpcodeF64Ge:
		in.f64Cmp(func(a, b float64) bool { return a >= b })

	// --- i32 arithmetic/bitwise ---
	case wasm.OpcodeI32Clz:
		in.i32UnaryU(i32Clz)
	case wasm.OpcodeI32Ctz:
		in.i32UnaryU(i32Ctz)
	case wasm.OpcodeI32Popcnt:
		in.i32UnaryU(i32Popcnt)
	case wasm.OpcodeI32Add:
		in.i32BinU(func(a, b uint32) uint32 { return a + b })
	case wasm.OpcodeI32Sub:
		in.i32BinU(func(a, b uint32) uint32 { return a - b })
	case wasm.OpcodeI32Mul:
		in.i32BinU(func(a, b uint32) uint32 { return a * b })
	case wasm.OpcodeI32DivS:
		in.i32BinS(i32DivS)
	case wasm.OpcodeI32DivU:
		in.i32BinU(i32DivU)
	case wasm.OpcodeI32RemS:
		in.i32BinS(i32RemS)
	case wasm.OpcodeI32RemU:
		in.i32BinU(i32RemU)
	case wasm.OpcodeI32And:
		in.i32BinU(func(a, b uint32) uint32 { return a & b })
	case wasm.OpcodeI32Or:
		in.i32BinU(func(a, b uint32) uint32 { return a | b })
	case wasm.OpcodeI32Xor:
		in.i32BinU(func(a, b uint32) uint32 { return a ^ b })
	case wasm.OpcodeI32Shl:
		in.i32BinU(func(a, b uint32) uint32 { return a << (b & 31) })
	case wasm.OpcodeI32ShrS:
		in.i32BinS(func(a, b int32) int32 { return a >> (uint32(b) & 31) })
	case wasm.OpcodeI32ShrU:
		in.i32BinU(func(a, b uint32) uint32 { return a >> (b & 31) })
	case wasm.OpcodeI32Rotl:
		in.i32BinU(i32Rotl)
	case wasm.OpcodeI32Rotr:
		in.i32BinU(i32Rotr)

	// --- i64 arithmetic/bitwise ---
	case wasm.OpcodeI64Clz:
		in.i64UnaryU(i64Clz)
	case wasm.OpcodeI64Ctz:
		in.i64UnaryU(i64Ctz)
	case wasm.OpcodeI64Popcnt:
		in.i64UnaryU(i64Popcnt)
	case wasm.OpcodeI64Add:
		in.i64BinU(func(a, b uint64) uint64 { return a + b })
	case wasm.OpcodeI64Sub:
		in.i64BinU(func(a, b uint64) uint64 { return a - b })
	case wasm.OpcodeI64Mul:
		in.i64BinU(func(a, b uint64) uint64 { return a * b })
	case wasm.OpcodeI64DivS:
		in.i64BinS(i64DivS)
	case wasm.OpcodeI64DivU:
		in.i64BinU(i64DivU)
	case wasm.OpcodeI64RemS:
		in.i64BinS(i64RemS)
	case wasm.OpcodeI64RemU:
		in.i64BinU(i64RemU)
	case wasm.OpcodeI64And:
		in.i64BinU(func(a, b uint64) uint64 { return a & b })
	case wasm.OpcodeI64Or:
		in.i64BinU(func(a, b uint64) uint64 { return a | b })
	case wasm.OpcodeI64Xor:
		in.i64BinU(func(a, b uint64) uint64 { return a ^ b })
	case wasm.OpcodeI64Shl:
		in.i64BinU(func(a, b uint64) uint64 { return a << (b & 63) })
	case wasm.OpcodeI64ShrS:
		in.i64BinS(func(a, b int64) int64 { return a >> (uint64(b) & 63) })
	case wasm.OpcodeI64ShrU:
		in.i64BinU(func(a, b uint64) uint64 { return a >> (b & 63) })
	case wasm.OpcodeI64Rotl:
		in.i64BinU(i64Rotl)
	case wasm.OpcodeI64Rotr:
		in.i64BinU(i64Rotr)

	// --- f32 arithmetic ---
	case wasm.OpcodeF32Abs:
		in.f32Unary(func(v float32) float32 {
			if v < 0 {
				return -v
			}
			return v
		})
	case wasm.OpcodeF32Neg:
		in.f32Unary(func(v float32) float32 { return -v })
	case wasm.OpcodeF32Ceil:
		in.f32UnaryF64(math.Ceil)
	case wasm.OpcodeF32Floor:
		in.f32UnaryF64(math.Floor)
	case wasm.OpcodeF32Trunc:
		in.f32Unary(f32Trunc)
	case wasm.OpcodeF32Nearest:
		in.f32Unary(moremath.WasmCompatNearestF32)
	case wasm.OpcodeF32Sqrt:
		in.f32UnaryF64(math.Sqrt)
	case wasm.OpcodeF32Add:
		in.f32Bin(func(a, b float32) float32 { return a + b })
	case wasm.OpcodeF32Sub:
		in.f32Bin(func(a, b float32) float32 { return a - b })
	case wasm.OpcodeF32Mul:
		in.f32Bin(func(a, b float32) float32 { return a * b })
	case wasm.OpcodeF32Div:
		in.f32Bin(func(a, b float32) float32 { return a / b })
	case wasm.OpcodeF32Min:
		in.f32Bin(func(a, b float32) float32 {
			return float32(moremath.WasmCompatMin(float64(a), float64(b)))
		})
	case wasm.OpcodeF32Max:
		in.f32Bin(func(a, b float32) float32 {
			return float32(moremath.WasmCompatMax(float64(a), float64(b)))
		})
	case wasm.OpcodeF32Copysign:
		in.f32Bin(f32Copysign)

	// --- f64 arithmetic ---
	case wasm.OpcodeF64Abs:
		in.f64Unary(func(v float64) float64 {
			if v < 0 {
				return -v
			}
			return v
		})
	case wasm.OpcodeF64Neg:
		in.f64Unary(func(v float64) float64 { return -v })
	case wasm.OpcodeF64Ceil:
		in.f64Unary(math.Ceil)
	case wasm.OpcodeF64Floor:
		in.f64Unary(math.Floor)
	case wasm.OpcodeF64Trunc:
		in.f64Unary(f64Trunc)
	case wasm.OpcodeF64Nearest:
		in.f64Unary(moremath.WasmCompatNearestF64)
	case wasm.OpcodeF64Sqrt:
		in.f64Unary(math.Sqrt)
	case wasm.OpcodeF64Add:
		in.f64Bin(func(a, b float64) float64 { return a + b })
	case wasm.OpcodeF64Sub:
		in.f64Bin(func(a, b float64) float64 { return a - b })
	case wasm.OpcodeF64Mul:
		in.f64Bin(func(a, b float64) float64 { return a * b })
	case wasm.OpcodeF64Div:
		in.f64Bin(func(a, b float64) float64 { return a / b })
	case wasm.OpcodeF64Min:
		in.f64Bin(moremath.WasmCompatMin)
	case wasm.OpcodeF64Max:
		in.f64Bin(moremath.WasmCompatMax)
	case wasm.OpcodeF64Copysign:
		in.f64Bin(f64Copysign)

	// --- conversions ---
	case wasm.OpcodeI32WrapI64:
		in.stack.push(api.I32(int32(in.stack.pop().AsI64())))
	case wasm.OpcodeI32TruncF32S:
		in.stack.push(api.I32(truncI32S(float64(in.stack.pop().AsF32()))))
	case wasm.OpcodeI32TruncF32U:
		in.stack.push(api.U32(truncI32U(float64(in.stack.pop().AsF32()))))
	case wasm.OpcodeI32TruncF64S:
		in.stack.push(api.I32(truncI32S(in.stack.pop().AsF64())))
	case wasm.OpcodeI32TruncF64U:
		in.stack.push(api.U32(truncI32U(in.stack.pop().AsF64())))
	case wasm.OpcodeI64ExtendI32S:
		in.stack.push(api.I64(int64(in.stack.pop().AsI32())))
	case wasm.OpcodeI64ExtendI32U:
		in.stack.push(api.U64(uint64(in.stack.pop().AsU32())))
	case wasm.OpcodeI64TruncF32S:
		in.stack.push(api.I64(truncI64S(float64(in.stack.pop().AsF32()))))
	case wasm.OpcodeI64TruncF32U:
		in.stack.push(api.U64(truncI64U(float64(in.stack.pop().AsF32()))))
	case wasm.OpcodeI64TruncF64S:
		in.stack.push(api.I64(truncI64S(in.stack.pop().AsF64())))
	case wasm.OpcodeI64TruncF64U:
		in.stack.push(api.U64(truncI64U(in.stack.pop().AsF64())))
	case wasm.OpcodeF32ConvertI32S:
		in.stack.push(api.F32(float32(in.stack.pop().AsI32())))
	case wasm.OpcodeF32ConvertI32U:
		in.stack.push(api.F32(float32(in.stack.pop().AsU32())))
	case wasm.OpcodeF32ConvertI64S:
		in.stack.push(api.F32(float32(in.stack.pop().AsI64())))
	case wasm.OpcodeF32ConvertI64U:
		in.stack.push(api.F32(float32(in.stack.pop().AsU64())))
	case wasm.OpcodeF32DemoteF64:
		in.stack.push(api.F32(float32(in.stack.pop().AsF64())))
	case wasm.OpcodeF64ConvertI32S:
		in.stack.push(api.F64(float64(in.stack.pop().AsI32())))
	case wasm.OpcodeF64ConvertI32U:
		in.stack.push(api.F64(float64(in.stack.pop().AsU32())))
	case wasm.OpcodeF64ConvertI64S:
		in.stack.push(api.F64(float64(in.stack.pop().AsI64())))
	case wasm.OpcodeF64ConvertI64U:
		in.stack.push(api.F64(float64(in.stack.pop().AsU64())))
	case wasm.OpcodeF64PromoteF32:
		in.stack.push(api.F64(float64(in.stack.pop().AsF32())))
	case wasm.OpcodeI32ReinterpretF32:
		in.stack.push(api.U32(uint32(in.stack.pop().Bits())))
	case wasm.OpcodeI64ReinterpretF64:
		in.stack.push(api.U64(in.stack.pop().Bits()))
	case wasm.OpcodeF32ReinterpretI32:
		in.stack.push(valueF32FromBits(uint32(in.stack.pop().Bits())))
	case wasm.OpcodeF64ReinterpretI64:
		in.stack.push(valueF64FromBits(in.stack.pop().Bits()))

	// --- sign-extension proposal ---
	case wasm.OpcodeI32Extend8S:
		in.requireFeature(features.SignExtension, instr)
		in.stack.push(api.I32(int32(in.stack.pop().AsI8())))
	case wasm.OpcodeI32Extend16S:
		in.requireFeature(features.SignExtension, instr)
		in.stack.push(api.I32(int32(in.stack.pop().AsI16())))
	case wasm.OpcodeI64Extend8S:
		in.requireFeature(features.SignExtension, instr)
		in.stack.push(api.I64(int64(int8(in.stack.pop().AsByte()))))
	case wasm.OpcodeI64Extend16S:
		in.requireFeature(features.SignExtension, instr)
		in.stack.push(api.I64(int64(int16(in.stack.pop().AsShort()))))
	case wasm.OpcodeI64Extend32S:
		in.requireFeature(features.SignExtension, instr)
		in.stack.push(api.I64(int64(int32(in.stack.pop().AsU64()))))

	// --- non-trapping (saturating) float-to-int proposal ---
	case wasm.OpcodeMiscI32TruncSatF32S:
		in.requireFeature(features.NonTrappingFloatToInt, instr)
		in.stack.push(api.I32(truncSatI32S(float64(in.stack.pop().AsF32()))))
	case wasm.OpcodeMiscI32TruncSatF32U:
		in.requireFeature(features.NonTrappingFloatToInt, instr)
		in.stack.push(api.U32(truncSatI32U(float64(in.stack.pop().AsF32()))))
	case wasm.OpcodeMiscI32TruncSatF64S:
		in.requireFeature(features.NonTrappingFloatToInt, instr)
		in.stack.push(api.I32(truncSatI32S(in.stack.pop().AsF64())))
	case wasm.OpcodeMiscI32TruncSatF64U:
		in.requireFeature(features.NonTrappingFloatToInt, instr)
		in.stack.push(api.U32(truncSatI32U(in.stack.pop().AsF64())))
	case wasm.OpcodeMiscI64TruncSatF32S:
		in.requireFeature(features.NonTrappingFloatToInt, instr)
		in.stack.push(api.I64(truncSatI64S(float64(in.stack.pop().AsF32()))))
	case wasm.OpcodeMiscI64TruncSatF32U:
		in.requireFeature(features.NonTrappingFloatToInt, instr)
		in.stack.push(api.U64(truncSatI64U(float64(in.stack.pop().AsF32()))))
	case wasm.OpcodeMiscI64TruncSatF64S:
		in.requireFeature(features.NonTrappingFloatToInt, instr)
		in.stack.push(api.I64(truncSatI64S(in.stack.pop().AsF64())))
	case wasm.OpcodeMiscI64TruncSatF64U:
		in.requireFeature(features.NonTrappingFloatToInt, instr)
		// §9 open question 3: the boundary value 2^63 is in range for the
		// unsigned result and converts exactly to 1<<63; only inputs at or
		// above 2^64 saturate (to MaxUint64); no special case.
		in.stack.push(api.U64(truncSatI64U(in.stack.pop().AsF64())))

	// --- bulk-memory proposal ---
	case wasm.OpcodeMiscMemoryInit:
		in.requireFeature(features.BulkMemory, instr)
		in.memoryInit(instr)
	case wasm.OpcodeMiscDataDrop:
		in.requireFeature(features.BulkMemory, instr)
		in.dataDrop(instr)
	case wasm.OpcodeMiscMemoryCopy:
		in.requireFeature(features.BulkMemory, instr)
		in.memoryCopy()
	case wasm.OpcodeMiscMemoryFill:
		in.requireFeature(features.BulkMemory, instr)
		in.memoryFill()

	default:
		panic(fmt.Sprintf("wasmi: unsupported opcode %s (%#x)", instr.Opcode, uint16(instr.Opcode)))
	}
}

func (in *Interpreter) requireFeature(want features.Features, instr *wasm.Instruction) {
	if !in.features.Has(want) {
		panic(fmt.Sprintf("wasmi: opcode %s requires the %q proposal, not enabled", instr.Opcode, want))
	}
}

func (in *Interpreter) i32Cmp(f func(a, b int32) bool) {
	b := in.stack.pop().AsI32()
	a := in.stack.pop().AsI32()
	in.stack.push(api.Bool(f(a, b)))
}

func (in *Interpreter) u32Cmp(f func(a, b uint32) bool) {
	b := in.stack.pop().AsU32()
	a := in.stack.pop().AsU32()
	in.stack.push(api.Bool(f(a, b)))
}

func (in *Interpreter) i64Cmp(f func(a, b int64) bool) {
	b := in.stack.pop().AsI64()
	a := in.stack.pop().AsI64()
	in.stack.push(api.Bool(f(a, b)))
}

func (in *Interpreter) u64Cmp(f func(a, b uint64) bool) {
	b := in.stack.pop().AsU64()
	a := in.stack.pop().AsU64()
	in.stack.push(api.Bool(f(a, b)))
}

func (in *Interpreter) f32Cmp(f func(a, b float32) bool) {
	b := in.stack.pop().AsF32()
	a := in.stack.pop().AsF32()
	in.stack.push(api.Bool(f(a, b)))
}

func (in *Interpreter) f64Cmp(f func(a, b float64) bool) {
	b := in.stack.pop().AsF64()
	a := in.stack.pop().AsF64()
	in.stack.push(api.Bool(f(a, b)))
}

func (in *Interpreter) i32BinU(f func(a, b uint32) uint32) {
	b := in.stack.pop().AsU32()
	a := in.stack.pop().AsU32()
	in.stack.push(api.U32(f(a, b)))
}

func (in *Interpreter) i32BinS(f func(a, b int32) int32) {
	b := in.stack.pop().AsI32()
	a := in.stack.pop().AsI32()
	in.stack.push(api.I32(f(a, b)))
}

func (in *Interpreter) i64BinU(f func(a, b uint64) uint64) {
	b := in.stack.pop().AsU64()
	a := in.stack.pop().AsU64()
	in.stack.push(api.U64(f(a, b)))
}

func (in *Interpreter) i64BinS(f func(a, b int64) int64) {
	b := in.stack.pop().AsI64()
	a := in.stack.pop().AsI64()
	in.stack.push(api.I64(f(a, b)))
}

func (in *Interpreter) i32UnaryU(f func(v uint32) uint32) {
	in.stack.push(api.U32(f(in.stack.pop().AsU32())))
}

func (in *Interpreter) i64UnaryU(f func(v uint64) uint64) {
	in.stack.push(api.U64(f(in.stack.pop().AsU64())))
}

func (in *Interpreter) f32Unary(f func(v float32) float32) {
	in.stack.push(api.F32(f(in.stack.pop().AsF32())))
}

func (in *Interpreter) f32UnaryF64(f func(v float64) float64) {
	in.stack.push(api.F32(float32(f(float64(in.stack.pop().AsF32())))))
}

func (in *Interpreter) f32Bin(f func(a, b float32) float32) {
	b := in.stack.pop().AsF32()
	a := in.stack.pop().AsF32()
	in.stack.push(api.F32(f(a, b)))
}

func (in *Interpreter) f64Unary(f func(v float64) float64) {
	in.stack.push(api.F64(f(in.stack.pop().AsF64())))
}

func (in *Interpreter) f64Bin(f func(a, b float64) float64) {
	b := in.stack.pop().AsF64()
	a := in.stack.pop().AsF64()
	in.stack.push(api.F64(f(a, b)))
}
