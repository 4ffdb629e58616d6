package interpreter

import (
	"math"
	"math/bits"

	"github.com/wasmi-project/wasmi/api"
	"github.com/wasmi-project/wasmi/internal/wasmruntime"
)

// valueF32FromBits and valueF64FromBits push a float Value tagged with an
// exact raw encoding (a constant literal or a reinterpret-cast result)
// without routing through any additional rounding: Float32frombits and
// Float64frombits are lossless bit reinterpretation, so NaN payloads and
// signalling bits survive untouched.
func valueF32FromBits(bits uint32) api.Value { return api.F32(math.Float32frombits(bits)) }
func valueF64FromBits(bits uint64) api.Value { return api.F64(math.Float64frombits(bits)) }

func i32DivS(a, b int32) int32 {
	if b == 0 {
		panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
	}
	if a == math.MinInt32 && b == -1 {
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return a / b
}

func i32RemS(a, b int32) int32 {
	if b == 0 {
		panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
	}
	if a == math.MinInt32 && b == -1 {
		return 0
	}
	return a % b
}

func i32DivU(a, b uint32) uint32 {
	if b == 0 {
		panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
	}
	return a / b
}

func i32RemU(a, b uint32) uint32 {
	if b == 0 {
		panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
	}
	return a % b
}

func i64DivS(a, b int64) int64 {
	if b == 0 {
		panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
	}
	if a == math.MinInt64 && b == -1 {
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return a / b
}

func i64RemS(a, b int64) int64 {
	if b == 0 {
		panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
	}
	if a == math.MinInt64 && b == -1 {
		return 0
	}
	return a % b
}

func i64DivU(a, b uint64) uint64 {
	if b == 0 {
		panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
	}
	return a / b
}

func i64RemU(a, b uint64) uint64 {
	if b == 0 {
		panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
	}
	return a % b
}

func i32Rotl(v uint32, c uint32) uint32 { return bits.RotateLeft32(v, int(c&31)) }
func i32Rotr(v uint32, c uint32) uint32 { return bits.RotateLeft32(v, -int(c&31)) }
func i64Rotl(v uint64, c uint64) uint64 { return bits.RotateLeft64(v, int(c&63)) }
func i64Rotr(v uint64, c uint64) uint64 { return bits.RotateLeft64(v, -int(c&63)) }

func i32Clz(v uint32) uint32    { return uint32(bits.LeadingZeros32(v)) }
func i32Ctz(v uint32) uint32    { return uint32(bits.TrailingZeros32(v)) }
func i32Popcnt(v uint32) uint32 { return uint32(bits.OnesCount32(v)) }
func i64Clz(v uint64) uint64    { return uint64(bits.LeadingZeros64(v)) }
func i64Ctz(v uint64) uint64    { return uint64(bits.TrailingZeros64(v)) }
func i64Popcnt(v uint64) uint64 { return uint64(bits.OnesCount64(v)) }

// f32Copysign and f64Copysign propagate the sign bit rather than comparing
// magnitudes, so a canonical-NaN sign source still transfers its explicit
// sign bit correctly (§9 open question 4).
func f32Copysign(a, b float32) float32 {
	const signBit = uint32(1) << 31
	av := math.Float32bits(a)
	bv := math.Float32bits(b)
	return math.Float32frombits((av &^ signBit) | (bv & signBit))
}

func f64Copysign(a, b float64) float64 {
	const signBit = uint64(1) << 63
	av := math.Float64bits(a)
	bv := math.Float64bits(b)
	return math.Float64frombits((av &^ signBit) | (bv & signBit))
}

// f32Trunc and f64Trunc implement round-toward-zero as ceil for negative
// inputs and floor for non-negative ones, matching the source's documented
// approach (§4.1) rather than relying on math.Trunc's own rounding mode
// (equivalent in practice, but this is the form the spec calls out).
func f32Trunc(v float32) float32 {
	if v < 0 {
		return float32(math.Ceil(float64(v)))
	}
	return float32(math.Floor(float64(v)))
}

func f64Trunc(v float64) float64 {
	if v < 0 {
		return math.Ceil(v)
	}
	return math.Floor(v)
}

// Saturating truncation bounds: the destination range's min/max as float64,
// used to clamp out-of-range conversions instead of trapping.
const (
	i32MinAsF64 = float64(math.MinInt32)
	i32MaxAsF64 = float64(math.MaxInt32)
	i64MinAsF64 = float64(math.MinInt64)
	u32MaxAsF64 = float64(math.MaxUint32)
	u64MaxAsF64 = float64(math.MaxUint64)
)

func truncSatI32S(v float64) int32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v <= i32MinAsF64:
		return math.MinInt32
	case v >= i32MaxAsF64:
		return math.MaxInt32
	default:
		return int32(v)
	}
}

func truncSatI32U(v float64) uint32 {
	switch {
	case math.IsNaN(v) || v <= -1:
		return 0
	case v >= u32MaxAsF64:
		return math.MaxUint32
	default:
		return uint32(v)
	}
}

func truncSatI64S(v float64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v <= i64MinAsF64:
		return math.MinInt64
	case v >= -i64MinAsF64: // 2^63, one past MaxInt64
		return math.MaxInt64
	default:
		return int64(v)
	}
}

func truncSatI64U(v float64) uint64 {
	switch {
	case math.IsNaN(v) || v <= -1:
		return 0
	case v >= u64MaxAsF64:
		return math.MaxUint64
	default:
		return uint64(v)
	}
}

// Non-saturating truncation: traps instead of clamping.

func truncI32S(v float64) int32 {
	if math.IsNaN(v) {
		panic(wasmruntime.ErrRuntimeInvalidConversionToInteger)
	}
	if v < i32MinAsF64 || v >= i32MaxAsF64+1 {
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return int32(v)
}

func truncI32U(v float64) uint32 {
	if math.IsNaN(v) {
		panic(wasmruntime.ErrRuntimeInvalidConversionToInteger)
	}
	if v <= -1 || v >= u32MaxAsF64+1 {
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return uint32(v)
}

func truncI64S(v float64) int64 {
	if math.IsNaN(v) {
		panic(wasmruntime.ErrRuntimeInvalidConversionToInteger)
	}
	if v < i64MinAsF64 || v >= -i64MinAsF64 {
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return int64(v)
}

func truncI64U(v float64) uint64 {
	if math.IsNaN(v) {
		panic(wasmruntime.ErrRuntimeInvalidConversionToInteger)
	}
	if v <= -1 || v >= u64MaxAsF64+1 {
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return uint64(v)
}
