package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wasmi-project/wasmi/api"
)

func TestInstantiate_ResolvesImportsAndGlobals(t *testing.T) {
	i32 := api.ValueTypeI32
	hostType := &FunctionType{Results: []api.ValueType{i32}}
	localType := &FunctionType{}

	mod := &Module{
		Types: []*FunctionType{hostType, localType},
		Functions: []*Function{
			{Type: hostType, ImportModule: "env", ImportName: "get_answer"},
			{Type: localType, Body: []Instruction{{Opcode: OpcodeEnd}}},
		},
		ImportedFunctionCount: 1,
		Globals: []*GlobalDef{
			{Type: i32, Mutable: true, Init: api.I32(42)},
		},
		Exports: map[string]Export{
			"run": {Kind: ExportKindFunction, Index: 1},
		},
	}

	host := NewHostModule("env").ExportFunction("get_answer", func(mem api.Memory, args []api.Value) ([]api.Value, error) {
		return []api.Value{api.I32(7)}, nil
	})

	inst, err := Instantiate(mod, HostModules{host}.Lookup)
	require.NoError(t, err)

	require.Nil(t, inst.Function(0), "an imported function has no local body")
	require.NotNil(t, inst.Function(1))

	results, err := inst.HostFunction(0)(nil, nil)
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(7)}, results)

	require.Equal(t, api.I32(42), inst.GlobalGet(0))
	require.True(t, inst.GlobalMutable(0))

	idx, ok := inst.ExportedFunctionIndex("run")
	require.True(t, ok)
	require.EqualValues(t, 1, idx)
}

func TestInstantiate_UnresolvedImportFails(t *testing.T) {
	mod := &Module{
		Functions: []*Function{
			{Type: &FunctionType{}, ImportModule: "env", ImportName: "missing"},
		},
		ImportedFunctionCount: 1,
	}
	_, err := Instantiate(mod, HostModules{}.Lookup)
	require.Error(t, err)
}

func TestModuleInstance_TableFuncRef(t *testing.T) {
	mod := &Module{
		Tables: []*Table{{Elements: []uint32{3, 1, 4}}},
	}
	inst, err := Instantiate(mod, HostModules{}.Lookup)
	require.NoError(t, err)

	idx, ok := inst.TableFuncRef(0, 1)
	require.True(t, ok)
	require.EqualValues(t, 1, idx)

	_, ok = inst.TableFuncRef(0, 99)
	require.False(t, ok)
}
