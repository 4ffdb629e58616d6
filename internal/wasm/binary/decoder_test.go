package binary

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wasmi-project/wasmi/internal/wasm"
)

func u32leb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			return out
		}
	}
}

func section(id byte, content []byte) []byte {
	out := []byte{id}
	out = append(out, u32leb(uint32(len(content)))...)
	return append(out, content...)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// TestDecodeModule_Full builds, byte by byte, a module that imports a
// function, declares a mutable i32 global, a one-page memory, an active
// data segment, a table with one element segment, and exports a function
// that returns the global's value - exercising every section decoder in
// one pass.
func TestDecodeModule_Full(t *testing.T) {
	header := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	// Type section: type 0 = () -> i32 (used by both the import and the
	// local function).
	typeSec := section(sectionType, concat(
		u32leb(1),             // 1 type
		[]byte{0x60, 0x00, 0x01, 0x7f}, // func, 0 params, 1 result (i32)
	))

	// Import section: env.get_const : () -> i32
	importSec := section(sectionImport, concat(
		u32leb(1),
		u32leb(3), []byte("env"),
		u32leb(9), []byte("get_const"),
		[]byte{importKindFunc},
		u32leb(0), // type index 0
	))

	// Function section: one local function, type 0.
	funcSec := section(sectionFunction, concat(u32leb(1), u32leb(0)))

	// Table section: one table, funcref, min 1, no max.
	tableSec := section(sectionTable, concat(
		u32leb(1),
		[]byte{0x70, 0x00}, // funcref, limits flag 0
		u32leb(1),          // min 1
	))

	// Memory section: one memory, min 1 page, no max.
	memSec := section(sectionMemory, concat(
		u32leb(1),
		[]byte{0x00},
		u32leb(1),
	))

	// Global section: one mutable i32 global initialized to 7.
	globalSec := section(sectionGlobal, concat(
		u32leb(1),
		[]byte{0x7f, 0x01}, // i32, mutable
		[]byte{byte(wasm.OpcodeI32Const)}, []byte{0x07}, []byte{byte(wasm.OpcodeEnd)},
	))

	// Export section: "run" -> local function (index 1, after the one
	// import).
	exportSec := section(sectionExport, concat(
		u32leb(1),
		u32leb(3), []byte("run"),
		[]byte{exportKindFunc},
		u32leb(1),
	))

	// Element section: table 0, offset 0, one function (the import, index 0).
	elemSec := section(sectionElement, concat(
		u32leb(1),
		u32leb(0), // flag 0
		[]byte{byte(wasm.OpcodeI32Const)}, []byte{0x00}, []byte{byte(wasm.OpcodeEnd)},
		u32leb(1), u32leb(0), // one func, index 0
	))

	// Code section: the local function's body is "global.get 0; end".
	bodyBytes := concat(
		u32leb(0), // no local decl runs
		[]byte{byte(wasm.OpcodeGlobalGet)}, u32leb(0),
		[]byte{byte(wasm.OpcodeEnd)},
	)
	codeSec := section(sectionCode, concat(
		u32leb(1),
		u32leb(uint32(len(bodyBytes))),
		bodyBytes,
	))

	// Data section: active segment at offset 0, memory 0, bytes "hi".
	dataSec := section(sectionData, concat(
		u32leb(1),
		u32leb(0), // flag 0: active, implicit memory 0
		[]byte{byte(wasm.OpcodeI32Const)}, []byte{0x00}, []byte{byte(wasm.OpcodeEnd)},
		u32leb(2), []byte("hi"),
	))

	startSec := section(sectionStart, u32leb(1))

	data := concat(header, typeSec, importSec, funcSec, tableSec, memSec,
		globalSec, exportSec, startSec, elemSec, codeSec, dataSec)

	mod, err := DecodeModule(data)
	require.NoError(t, err)

	require.Len(t, mod.Types, 1)
	require.Len(t, mod.Functions, 2)
	require.EqualValues(t, 1, mod.ImportedFunctionCount)
	require.True(t, mod.Functions[0].IsImport())
	require.Equal(t, "env", mod.Functions[0].ImportModule)
	require.Equal(t, "get_const", mod.Functions[0].ImportName)
	require.False(t, mod.Functions[1].IsImport())

	require.Len(t, mod.Globals, 1)
	require.True(t, mod.Globals[0].Mutable)
	require.EqualValues(t, 7, mod.Globals[0].Init.AsI32())

	require.NotNil(t, mod.Memory)
	require.EqualValues(t, 1, mod.Memory.Min)

	require.Len(t, mod.Tables, 1)
	require.True(t, mod.Tables[0].ElementSet[0])
	require.EqualValues(t, 0, mod.Tables[0].Elements[0])

	idx, ok := mod.Exports["run"]
	require.True(t, ok)
	require.EqualValues(t, 1, idx.Index)

	require.NotNil(t, mod.StartFunc)
	require.EqualValues(t, 1, *mod.StartFunc)

	require.Len(t, mod.DataSegments, 1)
	require.False(t, mod.DataSegments[0].Passive)
	require.Equal(t, []byte("hi"), mod.DataSegments[0].Bytes)

	// The local function's body is global.get 0; end.
	body := mod.Functions[1].Body
	require.Len(t, body, 2)
	require.Equal(t, wasm.OpcodeGlobalGet, body[0].Opcode)
	require.EqualValues(t, 0, body[0].Us[0])
}

func TestDecodeModule_RejectsImportedGlobal(t *testing.T) {
	header := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	importSec := section(sectionImport, concat(
		u32leb(1),
		u32leb(3), []byte("env"),
		u32leb(1), []byte("g"),
		[]byte{importKindGlobal},
		[]byte{0x7f, 0x00},
	))
	_, err := DecodeModule(concat(header, importSec))
	require.Error(t, err)
	require.Contains(t, err.Error(), "imported globals are not supported")
}

func TestDecodeModule_BadMagic(t *testing.T) {
	_, err := DecodeModule([]byte{0, 0, 0, 0, 1, 0, 0, 0})
	require.Error(t, err)
}

func TestDecodeModule_BadVersion(t *testing.T) {
	_, err := DecodeModule([]byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0x00, 0x00, 0x00})
	require.Error(t, err)
}

func TestDecodeModule_PassiveDataSegment(t *testing.T) {
	header := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	dataSec := section(sectionData, concat(
		u32leb(1),
		u32leb(1), // flag 1: passive
		u32leb(3), []byte("abc"),
	))
	mod, err := DecodeModule(concat(header, dataSec))
	require.NoError(t, err)
	require.Len(t, mod.DataSegments, 1)
	require.True(t, mod.DataSegments[0].Passive)
	require.Equal(t, []byte("abc"), mod.DataSegments[0].Bytes)
}
