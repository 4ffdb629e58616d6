package interpreter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wasmi-project/wasmi/api"
	"github.com/wasmi-project/wasmi/internal/features"
	"github.com/wasmi-project/wasmi/internal/wasm"
)

// pushLocals returns n LOCAL_GET instructions for locals 0..n-1, the usual
// prelude for a function whose body is "push every param, then one
// opcode".
func pushLocals(n int) []wasm.Instruction {
	out := make([]wasm.Instruction, n)
	for i := range out {
		out[i] = wasm.Instruction{Opcode: wasm.OpcodeLocalGet, Us: []uint32{uint32(i)}}
	}
	return out
}

// opModule builds a single-function, single-instruction-body module: push
// every param in order, run op, end. Used to exercise one numeric opcode
// in isolation.
func opModule(paramTypes, resultTypes []api.ValueType, op wasm.Instruction) *wasm.Module {
	fnType := &wasm.FunctionType{Params: paramTypes, Results: resultTypes}
	body := append(pushLocals(len(paramTypes)), op, wasm.Instruction{Opcode: wasm.OpcodeEnd})
	return &wasm.Module{
		Types:     []*wasm.FunctionType{fnType},
		Functions: []*wasm.Function{{Type: fnType, Body: body}},
		Exports:   map[string]wasm.Export{"f": {Kind: wasm.ExportKindFunction, Index: 0}},
	}
}

func runOp(t *testing.T, paramTypes, resultTypes []api.ValueType, op wasm.Instruction, f features.Features, args ...api.Value) api.Value {
	t.Helper()
	inst := instantiate(t, opModule(paramTypes, resultTypes, op))
	in := New(inst, WithFeatures(f))
	results, err := in.Call(0, args, true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	return results[0]
}

func i64() api.ValueType { return api.ValueTypeI64 }
func f32() api.ValueType { return api.ValueTypeF32 }
func f64() api.ValueType { return api.ValueTypeF64 }

func TestNumericOpcodes(t *testing.T) {
	i32s, i64s := []api.ValueType{i32()}, []api.ValueType{i64()}
	i32s2, i64s2 := []api.ValueType{i32(), i32()}, []api.ValueType{i64(), i64()}

	tests := []struct {
		name   string
		params []api.ValueType
		result []api.ValueType
		op     wasm.Opcode
		args   []api.Value
		want   api.Value
	}{
		{"i32.clz", i32s, i32s, wasm.OpcodeI32Clz, []api.Value{api.I32(1)}, api.U32(31)},
		{"i32.ctz", i32s, i32s, wasm.OpcodeI32Ctz, []api.Value{api.I32(8)}, api.U32(3)},
		{"i32.popcnt", i32s, i32s, wasm.OpcodeI32Popcnt, []api.Value{api.I32(7)}, api.U32(3)},
		{"i32.rotl", i32s2, i32s, wasm.OpcodeI32Rotl, []api.Value{api.U32(0x80000000), api.U32(1)}, api.U32(1)},
		{"i32.rotr", i32s2, i32s, wasm.OpcodeI32Rotr, []api.Value{api.U32(1), api.U32(1)}, api.U32(0x80000000)},
		{"i64.clz", i64s, i64s, wasm.OpcodeI64Clz, []api.Value{api.I64(1)}, api.U64(63)},
		{"i64.ctz", i64s, i64s, wasm.OpcodeI64Ctz, []api.Value{api.I64(16)}, api.U64(4)},
		{"i64.popcnt", i64s, i64s, wasm.OpcodeI64Popcnt, []api.Value{api.I64(15)}, api.U64(4)},
		{"i64.rotl", i64s2, i64s, wasm.OpcodeI64Rotl, []api.Value{api.U64(1 << 63), api.U64(1)}, api.U64(1)},
		{"i64.rotr", i64s2, i64s, wasm.OpcodeI64Rotr, []api.Value{api.U64(1), api.U64(1)}, api.U64(1 << 63)},
		{"i32.shl", i32s2, i32s, wasm.OpcodeI32Shl, []api.Value{api.I32(1), api.I32(4)}, api.I32(16)},
		{"i32.shr_u", i32s2, i32s, wasm.OpcodeI32ShrU, []api.Value{api.I32(-1), api.I32(28)}, api.U32(15)},
		{"i32.shr_s", i32s2, i32s, wasm.OpcodeI32ShrS, []api.Value{api.I32(-16), api.I32(2)}, api.I32(-4)},
		{"i32.and", i32s2, i32s, wasm.OpcodeI32And, []api.Value{api.I32(0xf0), api.I32(0x3c)}, api.I32(0x30)},
		{"i32.or", i32s2, i32s, wasm.OpcodeI32Or, []api.Value{api.I32(0xf0), api.I32(0x0f)}, api.I32(0xff)},
		{"i32.xor", i32s2, i32s, wasm.OpcodeI32Xor, []api.Value{api.I32(0xff), api.I32(0x0f)}, api.I32(0xf0)},
		{"i32.div_u", i32s2, i32s, wasm.OpcodeI32DivU, []api.Value{api.U32(7), api.U32(2)}, api.U32(3)},
		{"i32.rem_u", i32s2, i32s, wasm.OpcodeI32RemU, []api.Value{api.U32(7), api.U32(2)}, api.U32(1)},
		{"i32.rem_s negative", i32s2, i32s, wasm.OpcodeI32RemS, []api.Value{api.I32(-7), api.I32(2)}, api.I32(-1)},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := runOp(t, tc.params, tc.result, wasm.Instruction{Opcode: tc.op}, features.None, tc.args...)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestComparisonOpcodes(t *testing.T) {
	i32s2 := []api.ValueType{i32(), i32()}
	f64s2 := []api.ValueType{f64(), f64()}
	result := []api.ValueType{i32()}

	tests := []struct {
		name string
		op   wasm.Opcode
		args []api.Value
		want bool
	}{
		{"i32.lt_s true", wasm.OpcodeI32LtS, []api.Value{api.I32(-1), api.I32(0)}, true},
		{"i32.lt_u false (unsigned -1 is huge)", wasm.OpcodeI32LtU, []api.Value{api.I32(-1), api.I32(0)}, false},
		{"i32.eq", wasm.OpcodeI32Eq, []api.Value{api.I32(5), api.I32(5)}, true},
		{"i32.ge_s", wasm.OpcodeI32GeS, []api.Value{api.I32(3), api.I32(3)}, true},
		{"f64.lt", wasm.OpcodeF64Lt, []api.Value{api.F64(1.5), api.F64(2.5)}, true},
		{"f64.eq nan is false", wasm.OpcodeF64Eq, []api.Value{api.F64(math.NaN()), api.F64(math.NaN())}, false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			params := i32s2
			if tc.op == wasm.OpcodeF64Lt || tc.op == wasm.OpcodeF64Eq {
				params = f64s2
			}
			got := runOp(t, params, result, wasm.Instruction{Opcode: tc.op}, features.None, tc.args...)
			want := int32(0)
			if tc.want {
				want = 1
			}
			require.Equal(t, api.I32(want), got)
		})
	}
}

func TestConversionOpcodes(t *testing.T) {
	require.Equal(t, api.I32(-1), runOp(t, []api.ValueType{i64()}, []api.ValueType{i32()},
		wasm.Instruction{Opcode: wasm.OpcodeI32WrapI64}, features.None, api.I64(0xffffffffff)))

	require.Equal(t, api.I64(-1), runOp(t, []api.ValueType{i32()}, []api.ValueType{i64()},
		wasm.Instruction{Opcode: wasm.OpcodeI64ExtendI32S}, features.None, api.I32(-1)))

	require.Equal(t, api.U64(0xffffffff), runOp(t, []api.ValueType{i32()}, []api.ValueType{i64()},
		wasm.Instruction{Opcode: wasm.OpcodeI64ExtendI32U}, features.None, api.I32(-1)))

	require.Equal(t, api.F64(5), runOp(t, []api.ValueType{i32()}, []api.ValueType{f64()},
		wasm.Instruction{Opcode: wasm.OpcodeF64ConvertI32S}, features.None, api.I32(5)))

	got := runOp(t, []api.ValueType{f64()}, []api.ValueType{f32()},
		wasm.Instruction{Opcode: wasm.OpcodeF32DemoteF64}, features.None, api.F64(1.5))
	require.Equal(t, float32(1.5), got.AsF32())

	// Reinterpret round-trips bit patterns rather than converting values.
	got = runOp(t, []api.ValueType{f32()}, []api.ValueType{i32()},
		wasm.Instruction{Opcode: wasm.OpcodeI32ReinterpretF32}, features.None, api.F32(1.0))
	require.EqualValues(t, 0x3f800000, got.AsU32())
}

func TestI64Extend32SSignExtension(t *testing.T) {
	got := runOp(t, []api.ValueType{i64()}, []api.ValueType{i64()},
		wasm.Instruction{Opcode: wasm.OpcodeI64Extend32S}, features.SignExtension, api.U64(0xffffffff))
	require.Equal(t, api.I64(-1), got)
}

// --- bulk-memory and memory.grow ---

func memoryInitModule() *wasm.Module {
	fnType := &wasm.FunctionType{}
	body := []wasm.Instruction{
		{Opcode: wasm.OpcodeI32Const, Rs: []int64{0}}, // dst
		{Opcode: wasm.OpcodeI32Const, Rs: []int64{0}}, // offset into segment
		{Opcode: wasm.OpcodeI32Const, Rs: []int64{4}}, // size
		{Opcode: wasm.OpcodeMiscMemoryInit, Us: []uint32{0}},
		{Opcode: wasm.OpcodeEnd},
	}
	return &wasm.Module{
		Types:     []*wasm.FunctionType{fnType},
		Functions: []*wasm.Function{{Type: fnType, Body: body}},
		Memory:    &wasm.MemoryType{Min: 1},
		DataSegments: []wasm.DataSegment{
			{Passive: true, Bytes: []byte{1, 2, 3, 4}},
		},
		Exports: map[string]wasm.Export{"init": {Kind: wasm.ExportKindFunction, Index: 0}},
	}
}

func TestMemoryInitCopiesPassiveSegment(t *testing.T) {
	mod := memoryInitModule()
	inst := instantiate(t, mod)
	in := New(inst, WithFeatures(features.BulkMemory))

	_, err := in.Call(0, nil, true)
	require.NoError(t, err)

	mem := inst.Memory()
	b, ok := mem.Read(0, 4)
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3, 4}, b)
}

func TestDataDropThenMemoryInitTraps(t *testing.T) {
	mod := memoryInitModule()
	mod.Functions[0].Body = append([]wasm.Instruction{
		{Opcode: wasm.OpcodeMiscDataDrop, Us: []uint32{0}},
	}, mod.Functions[0].Body...)

	inst := instantiate(t, mod)
	in := New(inst, WithFeatures(features.BulkMemory))

	_, err := in.Call(0, nil, true)
	require.Error(t, err)
}

func TestMemoryCopyAndFill(t *testing.T) {
	fnType := &wasm.FunctionType{}
	body := []wasm.Instruction{
		// fill [0,4) with 0x41
		{Opcode: wasm.OpcodeI32Const, Rs: []int64{0}},
		{Opcode: wasm.OpcodeI32Const, Rs: []int64{0x41}},
		{Opcode: wasm.OpcodeI32Const, Rs: []int64{4}},
		{Opcode: wasm.OpcodeMiscMemoryFill},
		// copy [0,4) to [8,12)
		{Opcode: wasm.OpcodeI32Const, Rs: []int64{8}},
		{Opcode: wasm.OpcodeI32Const, Rs: []int64{0}},
		{Opcode: wasm.OpcodeI32Const, Rs: []int64{4}},
		{Opcode: wasm.OpcodeMiscMemoryCopy},
		{Opcode: wasm.OpcodeEnd},
	}
	mod := &wasm.Module{
		Types:     []*wasm.FunctionType{fnType},
		Functions: []*wasm.Function{{Type: fnType, Body: body}},
		Memory:    &wasm.MemoryType{Min: 1},
		Exports:   map[string]wasm.Export{"go": {Kind: wasm.ExportKindFunction, Index: 0}},
	}
	inst := instantiate(t, mod)
	in := New(inst, WithFeatures(features.BulkMemory))

	_, err := in.Call(0, nil, true)
	require.NoError(t, err)

	mem := inst.Memory()
	b, ok := mem.Read(8, 4)
	require.True(t, ok)
	require.Equal(t, []byte{0x41, 0x41, 0x41, 0x41}, b)
}

func TestMemoryGrowFailureReturnsNegativeOne(t *testing.T) {
	fnType := &wasm.FunctionType{Results: []api.ValueType{i32()}}
	body := []wasm.Instruction{
		{Opcode: wasm.OpcodeI32Const, Rs: []int64{1}},
		{Opcode: wasm.OpcodeMemoryGrow},
		{Opcode: wasm.OpcodeEnd},
	}
	mod := &wasm.Module{
		Types:     []*wasm.FunctionType{fnType},
		Functions: []*wasm.Function{{Type: fnType, Body: body}},
		Memory:    &wasm.MemoryType{Min: 1, Max: 1},
		Exports:   map[string]wasm.Export{"grow": {Kind: wasm.ExportKindFunction, Index: 0}},
	}
	inst := instantiate(t, mod)
	in := New(inst)

	results, err := in.Call(0, nil, true)
	require.NoError(t, err)
	require.Equal(t, int32(-1), results[0].AsI32())
}

func TestMemoryGrowSuccessReturnsPreviousSize(t *testing.T) {
	fnType := &wasm.FunctionType{Results: []api.ValueType{i32()}}
	body := []wasm.Instruction{
		{Opcode: wasm.OpcodeI32Const, Rs: []int64{1}},
		{Opcode: wasm.OpcodeMemoryGrow},
		{Opcode: wasm.OpcodeEnd},
	}
	mod := &wasm.Module{
		Types:     []*wasm.FunctionType{fnType},
		Functions: []*wasm.Function{{Type: fnType, Body: body}},
		Memory:    &wasm.MemoryType{Min: 1},
		Exports:   map[string]wasm.Export{"grow": {Kind: wasm.ExportKindFunction, Index: 0}},
	}
	inst := instantiate(t, mod)
	in := New(inst)

	results, err := in.Call(0, nil, true)
	require.NoError(t, err)
	require.Equal(t, int32(1), results[0].AsI32())
}
