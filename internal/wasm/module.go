// Package wasm hosts the engine's external collaborators: the decoded
// Module representation, and the concrete Function/Table/Global/Memory
// instances a Module instantiates into. internal/engine/interpreter treats
// all of this through the narrow Instance/Memory seams; this package is
// where a real implementation of those seams lives so the engine is
// runnable without a host providing its own.
package wasm

import "github.com/wasmi-project/wasmi/api"

// Module is a decoded (but not yet instantiated) WebAssembly module: the
// typed sections produced by internal/wasm/binary, with every function
// body's control flow already flattened and its labels resolved.
type Module struct {
	Types     []*FunctionType
	Functions []*Function
	Tables    []*Table
	Memory    *MemoryType
	Globals   []*GlobalDef
	Exports   map[string]Export
	StartFunc *uint32
	DataSegments []DataSegment

	// ImportedFunctionCount is how many of Functions are imports (Body is
	// nil for those; they are resolved against a host module at
	// instantiation instead).
	ImportedFunctionCount int
}

// Function is one function's type and, if locally defined, its compiled
// body. Imported functions carry a nil Body and a Module/Name naming the
// host import they resolve against.
type Function struct {
	Type       *FunctionType
	LocalTypes []api.ValueType
	Body       []Instruction

	Name         string
	ImportModule string
	ImportName   string
}

// IsImport reports whether this function is satisfied by a host import
// rather than a local body.
func (f *Function) IsImport() bool { return f.Body == nil }

// MemoryType declares linear memory's size limits, in pages.
type MemoryType struct {
	Min uint32
	Max uint32 // 0 means no maximum was declared; growth is then not page-limited.
}

// Table declares a table's element type (always funcref here; reference
// types beyond funcref are a non-goal) and initial contents.
type Table struct {
	Min     uint32
	Max     uint32
	HasMax  bool
	Elements []uint32 // function indices; a slot may be absent (see ElementSet below)
	ElementSet []bool
}

// GlobalDef declares a global's type, mutability and constant initializer.
type GlobalDef struct {
	Type    api.ValueType
	Mutable bool
	Init    api.Value
}

// ExportKind identifies what an Export names.
type ExportKind byte

const (
	ExportKindFunction ExportKind = iota
	ExportKindTable
	ExportKindMemory
	ExportKindGlobal
)

// Export names one of a module's functions, tables, memories or globals.
type Export struct {
	Kind ExportKind
	Index uint32
}

// DataSegment is a contiguous range of bytes, either copied into memory at
// instantiation (active) or materialized on demand by MEMORY_INIT
// (passive).
type DataSegment struct {
	Passive bool
	MemoryIndex uint32
	OffsetExpr  []Instruction // const-expr producing the active segment's offset
	Bytes       []byte
}
