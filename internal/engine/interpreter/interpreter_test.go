package interpreter

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wasmi-project/wasmi/api"
	"github.com/wasmi-project/wasmi/internal/features"
	"github.com/wasmi-project/wasmi/internal/wasm"
	"github.com/wasmi-project/wasmi/internal/wasmruntime"
)

func i32() api.ValueType { return api.ValueTypeI32 }

func instantiate(t *testing.T, mod *wasm.Module) wasm.Instance {
	t.Helper()
	inst, err := wasm.Instantiate(mod, wasm.HostModules(nil).Lookup)
	require.NoError(t, err)
	return inst
}

// factorialModule builds a single-function module computing n! with a
// loop: acc = 1; while n > 1 { acc *= n; n -= 1 }; return acc.
// Locals: 0 = n (param), 1 = acc. The loop exits via an explicit RETURN
// from inside an IF (rather than branching out through an enclosing
// block), so no BlockType result arity needs declaring.
func factorialModule() *wasm.Module {
	fnType := &wasm.FunctionType{Params: []api.ValueType{i32()}, Results: []api.ValueType{i32()}}

	body := []wasm.Instruction{
		// 0: acc = 1
		{Opcode: wasm.OpcodeI32Const, Rs: []int64{1}},
		{Opcode: wasm.OpcodeLocalSet, Us: []uint32{1}},
		// 2: loop
		{Opcode: wasm.OpcodeLoop, BlockType: nil},
		// 3: if n <= 1, return acc right away
		{Opcode: wasm.OpcodeLocalGet, Us: []uint32{0}},
		{Opcode: wasm.OpcodeI32Const, Rs: []int64{1}},
		{Opcode: wasm.OpcodeI32LeS},
		{Opcode: wasm.OpcodeIf, BlockType: nil},
		// 7: acc; return
		{Opcode: wasm.OpcodeLocalGet, Us: []uint32{1}},
		{Opcode: wasm.OpcodeReturn},
		// 9: if end (no else)
		{Opcode: wasm.OpcodeEnd},
		// 10: acc *= n
		{Opcode: wasm.OpcodeLocalGet, Us: []uint32{1}},
		{Opcode: wasm.OpcodeLocalGet, Us: []uint32{0}},
		{Opcode: wasm.OpcodeI32Mul},
		{Opcode: wasm.OpcodeLocalSet, Us: []uint32{1}},
		// 14: n -= 1
		{Opcode: wasm.OpcodeLocalGet, Us: []uint32{0}},
		{Opcode: wasm.OpcodeI32Const, Rs: []int64{1}},
		{Opcode: wasm.OpcodeI32Sub},
		{Opcode: wasm.OpcodeLocalSet, Us: []uint32{0}},
		// 18: br 0 (back to loop start)
		{Opcode: wasm.OpcodeBr, Us: []uint32{0}},
		// 19: loop end (unreachable in practice: every iteration either
		// returns or branches back)
		{Opcode: wasm.OpcodeEnd},
		// 20: function end
		{Opcode: wasm.OpcodeEnd},
	}

	// Resolve labels exactly as internal/wasm/binary's decoder would.
	loopStart := uint64(3)
	body[6].LabelTrue = 7   // if taken -> consequent (acc; return)
	body[6].LabelFalse = 9  // if not taken -> falls through to the IF's own END (no else)
	body[18].LabelTrue = loopStart // br 0 -> loop start

	return &wasm.Module{
		Types:     []*wasm.FunctionType{fnType},
		Functions: []*wasm.Function{{Type: fnType, Body: body}},
		Exports: map[string]wasm.Export{
			"factorial": {Kind: wasm.ExportKindFunction, Index: 0},
		},
	}
}

func TestFactorial(t *testing.T) {
	inst := instantiate(t, factorialModule())
	in := New(inst)

	results, err := in.Call(0, []api.Value{api.I32(5)}, true)
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(120)}, results)
}

func TestFactorial_BaseCase(t *testing.T) {
	inst := instantiate(t, factorialModule())
	in := New(inst)

	results, err := in.Call(0, []api.Value{api.I32(1)}, true)
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(1)}, results)
}

// divModule is (func (param i32 i32) (result i32) local.get 0 local.get 1
// i32.div_s), used to exercise the integer-divide-by-zero trap.
func divModule() *wasm.Module {
	fnType := &wasm.FunctionType{Params: []api.ValueType{i32(), i32()}, Results: []api.ValueType{i32()}}
	body := []wasm.Instruction{
		{Opcode: wasm.OpcodeLocalGet, Us: []uint32{0}},
		{Opcode: wasm.OpcodeLocalGet, Us: []uint32{1}},
		{Opcode: wasm.OpcodeI32DivS},
		{Opcode: wasm.OpcodeEnd},
	}
	return &wasm.Module{
		Types:     []*wasm.FunctionType{fnType},
		Functions: []*wasm.Function{{Type: fnType, Body: body}},
		Exports: map[string]wasm.Export{
			"div": {Kind: wasm.ExportKindFunction, Index: 0},
		},
	}
}

func TestDivideByZeroTraps(t *testing.T) {
	inst := instantiate(t, divModule())
	in := New(inst)

	_, err := in.Call(0, []api.Value{api.I32(1), api.I32(0)}, true)
	require.Error(t, err)
	require.Contains(t, err.Error(), string(wasmruntime.ErrRuntimeIntegerDivideByZero))
}

func TestDivideByZero_StackTraceNamesFunction(t *testing.T) {
	inst := instantiate(t, divModule())
	in := New(inst, WithModuleName("arith"))

	_, err := in.Call(0, []api.Value{api.I32(1), api.I32(0)}, true)
	require.Error(t, err)
	require.Contains(t, err.Error(), "wasm stack trace:")
	require.Contains(t, err.Error(), "arith.$0")
}

// unreachableModule is (func unreachable).
func unreachableModule() *wasm.Module {
	fnType := &wasm.FunctionType{}
	body := []wasm.Instruction{
		{Opcode: wasm.OpcodeUnreachable},
		{Opcode: wasm.OpcodeEnd},
	}
	return &wasm.Module{
		Types:     []*wasm.FunctionType{fnType},
		Functions: []*wasm.Function{{Type: fnType, Body: body}},
		Exports: map[string]wasm.Export{
			"trap": {Kind: wasm.ExportKindFunction, Index: 0},
		},
	}
}

func TestUnreachableTraps(t *testing.T) {
	inst := instantiate(t, unreachableModule())
	in := New(inst)

	_, err := in.Call(0, nil, true)
	require.Error(t, err)
	require.Contains(t, err.Error(), string(wasmruntime.ErrRuntimeUnreachable))
}

// brTableModule is a function taking i32 n and returning 10 for n==0, 11
// for n==1, or 99 for anything else (the default target). Each case
// delivers its value with an explicit RETURN rather than branching a
// value out through a block's result type, so block arities stay at 0
// throughout (a value crossing a block boundary via fallthrough would
// otherwise be clobbered by the next case's code running right after,
// and by that block's own END truncating the operand stack back to its
// entry height).
func brTableModule() *wasm.Module {
	fnType := &wasm.FunctionType{Params: []api.ValueType{i32()}, Results: []api.ValueType{i32()}}

	// Laid out flat:
	//  0: block(outer)
	//  1:  block(mid)
	//  2:   block(inner)
	//  3:    local.get 0
	//  4:    br_table [inner(depth0)->5, mid(depth1)->8, default=outer(depth2)->11]
	//  5:   end (inner)   -- case n==0 continues here
	//  6:    i32.const 10
	//  7:    return
	//  8:  end (mid)      -- case n==1 continues here
	//  9:   i32.const 11
	// 10:   return
	// 11: end (outer)     -- default case continues here
	// 12:  i32.const 99
	// 13: end (function)
	body := []wasm.Instruction{
		{Opcode: wasm.OpcodeBlock}, // 0: outer
		{Opcode: wasm.OpcodeBlock}, // 1: mid
		{Opcode: wasm.OpcodeBlock}, // 2: inner
		{Opcode: wasm.OpcodeLocalGet, Us: []uint32{0}},                             // 3
		{Opcode: wasm.OpcodeBrTable, Us: []uint32{0, 1, 2}, LabelTable: make([]uint64, 3)}, // 4
		{Opcode: wasm.OpcodeEnd},                       // 5: inner end
		{Opcode: wasm.OpcodeI32Const, Rs: []int64{10}}, // 6
		{Opcode: wasm.OpcodeReturn},                    // 7
		{Opcode: wasm.OpcodeEnd},                       // 8: mid end
		{Opcode: wasm.OpcodeI32Const, Rs: []int64{11}}, // 9
		{Opcode: wasm.OpcodeReturn},                    // 10
		{Opcode: wasm.OpcodeEnd},                       // 11: outer end
		{Opcode: wasm.OpcodeI32Const, Rs: []int64{99}}, // 12
		{Opcode: wasm.OpcodeEnd},                       // 13: function end
	}
	// inner target (depth 0 from br_table's site) -> inner's own END (pc 5)
	body[4].LabelTable[0] = 5
	// mid target (depth 1) -> mid's own END (pc 8)
	body[4].LabelTable[1] = 8
	// default / outer target (depth 2) -> outer's own END (pc 11)
	body[4].LabelTable[2] = 11

	return &wasm.Module{
		Types:     []*wasm.FunctionType{fnType},
		Functions: []*wasm.Function{{Type: fnType, Body: body}},
		Exports: map[string]wasm.Export{
			"choose": {Kind: wasm.ExportKindFunction, Index: 0},
		},
	}
}

func TestBrTable(t *testing.T) {
	inst := instantiate(t, brTableModule())
	in := New(inst)

	for _, tc := range []struct {
		n    int32
		want int32
	}{
		{0, 10},
		{1, 11},
		{2, 99},
		{100, 99},
	} {
		results, err := in.Call(0, []api.Value{api.I32(tc.n)}, true)
		require.NoError(t, err)
		require.Equal(t, []api.Value{api.I32(tc.want)}, results, "n=%d", tc.n)
	}
}

// memoryModule stores a value at address 0 then loads it back.
func memoryModule() *wasm.Module {
	fnType := &wasm.FunctionType{Params: []api.ValueType{i32()}, Results: []api.ValueType{i32()}}
	body := []wasm.Instruction{
		{Opcode: wasm.OpcodeI32Const, Rs: []int64{0}},
		{Opcode: wasm.OpcodeLocalGet, Us: []uint32{0}},
		{Opcode: wasm.OpcodeI32Store, Us: []uint32{0}},
		{Opcode: wasm.OpcodeI32Const, Rs: []int64{0}},
		{Opcode: wasm.OpcodeI32Load, Us: []uint32{0}},
		{Opcode: wasm.OpcodeEnd},
	}
	return &wasm.Module{
		Types:     []*wasm.FunctionType{fnType},
		Functions: []*wasm.Function{{Type: fnType, Body: body}},
		Memory:    &wasm.MemoryType{Min: 1},
		Exports: map[string]wasm.Export{
			"roundtrip": {Kind: wasm.ExportKindFunction, Index: 0},
		},
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	inst := instantiate(t, memoryModule())
	in := New(inst)

	results, err := in.Call(0, []api.Value{api.I32(424242)}, true)
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(424242)}, results)
}

func TestMemoryOutOfBoundsTraps(t *testing.T) {
	fnType := &wasm.FunctionType{Results: []api.ValueType{i32()}}
	body := []wasm.Instruction{
		{Opcode: wasm.OpcodeI32Const, Rs: []int64{1 << 20}},
		{Opcode: wasm.OpcodeI32Load, Us: []uint32{0}},
		{Opcode: wasm.OpcodeEnd},
	}
	mod := &wasm.Module{
		Types:     []*wasm.FunctionType{fnType},
		Functions: []*wasm.Function{{Type: fnType, Body: body}},
		Memory:    &wasm.MemoryType{Min: 1},
		Exports: map[string]wasm.Export{
			"oob": {Kind: wasm.ExportKindFunction, Index: 0},
		},
	}
	inst := instantiate(t, mod)
	in := New(inst)

	_, err := in.Call(0, nil, true)
	require.Error(t, err)
	require.Contains(t, err.Error(), string(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess))
}

// callIndirectMismatchModule declares a table with one function of type ()->i32
// and a call_indirect whose static type is (i32)->i32, so a mismatch trap
// is expected.
func callIndirectMismatchModule() *wasm.Module {
	zeroArgType := &wasm.FunctionType{Results: []api.ValueType{i32()}}
	oneArgType := &wasm.FunctionType{Params: []api.ValueType{i32()}, Results: []api.ValueType{i32()}}

	callee := &wasm.Function{
		Type: zeroArgType,
		Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeI32Const, Rs: []int64{7}},
			{Opcode: wasm.OpcodeEnd},
		},
	}
	caller := &wasm.Function{
		Type: oneArgType,
		Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeI32Const, Rs: []int64{0}}, // table slot
			{Opcode: wasm.OpcodeCallIndirect, Us: []uint32{1, 0}}, // static type = oneArgType (index 1)
			{Opcode: wasm.OpcodeEnd},
		},
	}

	return &wasm.Module{
		Types:     []*wasm.FunctionType{zeroArgType, oneArgType},
		Functions: []*wasm.Function{callee, caller},
		Tables: []*wasm.Table{{
			Min:        1,
			Elements:   []uint32{0},
			ElementSet: []bool{true},
		}},
		Exports: map[string]wasm.Export{
			"call": {Kind: wasm.ExportKindFunction, Index: 1},
		},
	}
}

func TestCallIndirectTypeMismatchTraps(t *testing.T) {
	inst := instantiate(t, callIndirectMismatchModule())
	in := New(inst)

	_, err := in.Call(1, []api.Value{api.I32(0)}, true)
	require.Error(t, err)
	require.Contains(t, err.Error(), string(wasmruntime.ErrRuntimeIndirectCallTypeMismatch))
}

func TestCallIndirectUndefinedElementTraps(t *testing.T) {
	fnType := &wasm.FunctionType{}
	caller := &wasm.Function{
		Type: fnType,
		Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeI32Const, Rs: []int64{5}}, // out of table bounds
			{Opcode: wasm.OpcodeCallIndirect, Us: []uint32{0, 0}},
			{Opcode: wasm.OpcodeEnd},
		},
	}
	mod := &wasm.Module{
		Types:     []*wasm.FunctionType{fnType},
		Functions: []*wasm.Function{caller},
		Tables:    []*wasm.Table{{Min: 1, Elements: make([]uint32, 1), ElementSet: make([]bool, 1)}},
		Exports: map[string]wasm.Export{
			"call": {Kind: wasm.ExportKindFunction, Index: 0},
		},
	}
	inst := instantiate(t, mod)
	in := New(inst)

	_, err := in.Call(0, nil, true)
	require.Error(t, err)
	require.Contains(t, err.Error(), string(wasmruntime.ErrRuntimeInvalidTableAccess))
}

// TestTruncOverflowTraps exercises the trapping (non-saturating)
// truncation path with features.NonTrappingFloatToInt off: converting a
// large i64 to f64 and truncating it back to i32 overflows i32's range.
func TestTruncOverflowTraps(t *testing.T) {
	fnType := &wasm.FunctionType{Results: []api.ValueType{i32()}}
	mod := &wasm.Module{
		Types: []*wasm.FunctionType{fnType},
		Functions: []*wasm.Function{{
			Type: fnType,
			Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeI64Const, Rs: []int64{1 << 40}},
				{Opcode: wasm.OpcodeF64ConvertI64S},
				{Opcode: wasm.OpcodeI32TruncF64S},
				{Opcode: wasm.OpcodeEnd},
			},
		}},
		Exports: map[string]wasm.Export{"trunc": {Kind: wasm.ExportKindFunction, Index: 0}},
	}
	inst := instantiate(t, mod)
	in := New(inst, WithFeatures(features.None))

	_, err := in.Call(0, nil, true)
	require.Error(t, err)
	require.Contains(t, err.Error(), string(wasmruntime.ErrRuntimeIntegerOverflow))
}

func TestTruncSatDoesNotTrap(t *testing.T) {
	fnType := &wasm.FunctionType{Results: []api.ValueType{i32()}}
	mod := &wasm.Module{
		Types: []*wasm.FunctionType{fnType},
		Functions: []*wasm.Function{{
			Type: fnType,
			Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeI64Const, Rs: []int64{1 << 40}},
				{Opcode: wasm.OpcodeF64ConvertI64S},
				{Opcode: wasm.OpcodeMiscI32TruncSatF64S},
				{Opcode: wasm.OpcodeEnd},
			},
		}},
		Exports: map[string]wasm.Export{"trunc": {Kind: wasm.ExportKindFunction, Index: 0}},
	}
	inst := instantiate(t, mod)
	in := New(inst, WithFeatures(features.NonTrappingFloatToInt))

	results, err := in.Call(0, nil, true)
	require.NoError(t, err)
	require.Equal(t, int32(2147483647), results[0].AsI32(), "saturates to i32 max instead of trapping")
}

func TestSignExtend8S(t *testing.T) {
	fnType := &wasm.FunctionType{Results: []api.ValueType{i32()}}
	mod := &wasm.Module{
		Types: []*wasm.FunctionType{fnType},
		Functions: []*wasm.Function{{
			Type: fnType,
			Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeI32Const, Rs: []int64{0xff}},
				{Opcode: wasm.OpcodeI32Extend8S},
				{Opcode: wasm.OpcodeEnd},
			},
		}},
		Exports: map[string]wasm.Export{"ext": {Kind: wasm.ExportKindFunction, Index: 0}},
	}
	inst := instantiate(t, mod)
	in := New(inst, WithFeatures(features.SignExtension))

	results, err := in.Call(0, nil, true)
	require.NoError(t, err)
	require.Equal(t, int32(-1), results[0].AsI32())
}
