package wasm

import (
	"fmt"
	"math"

	"github.com/wasmi-project/wasmi/api"
)

// Instance is the opaque collaborator internal/engine/interpreter runs
// against (§3): it never reaches into a Module directly, only through this
// seam, so any host embedding this engine can supply its own
// implementation instead of ModuleInstance.
type Instance interface {
	// Function returns the local function at idx, or nil if it is an
	// import (use HostFunction for those instead).
	Function(idx uint32) *Function

	// FunctionType returns the declared signature of the function at idx,
	// whether local or imported.
	FunctionType(idx uint32) *FunctionType

	// TypeByIndex returns the module's type-section entry at idx, used by
	// CALL_INDIRECT to check a resolved table entry's signature against
	// the instruction's static type operand.
	TypeByIndex(idx uint32) *FunctionType

	// HostFunction returns the host handle backing an imported function.
	HostFunction(idx uint32) api.HostFunction

	// TableFuncRef resolves table tableIdx's entry elemIdx to a function
	// index. ok is false if the table, or that entry within it, doesn't
	// exist (CALL_INDIRECT traps "undefined element").
	TableFuncRef(tableIdx, elemIdx uint32) (funcIdx uint32, ok bool)

	// Memory returns the instance's linear memory, or nil if it declares
	// none.
	Memory() api.Memory

	GlobalGet(idx uint32) api.Value
	GlobalSet(idx uint32, v api.Value)
	GlobalMutable(idx uint32) bool
}

// ModuleInstance is the default Instance: a decoded Module plus the mutable
// state (globals, table contents, linear memory) produced by instantiating
// it, with imported functions resolved against a HostModule registry.
type ModuleInstance struct {
	mod *Module

	globals []api.Value
	tables  []*Table
	memory  *LinearMemory

	imports []api.HostFunction
}

// Instantiate builds a ModuleInstance from a decoded Module: it copies the
// globals' initial values, allocates linear memory, copies active data
// segments in (active element segments are already applied to the tables by
// the decoder), and resolves each
// imported function against resolveImport (module name, field name) ->
// host function. Returns an engine error, not a trap, if an import cannot
// be resolved.
func Instantiate(mod *Module, resolveImport func(module, name string) (api.HostFunction, bool)) (*ModuleInstance, error) {
	inst := &ModuleInstance{mod: mod}

	inst.globals = make([]api.Value, len(mod.Globals))
	for i, g := range mod.Globals {
		inst.globals[i] = g.Init
	}

	inst.tables = mod.Tables

	if mod.Memory != nil {
		inst.memory = NewLinearMemory(mod.Memory.Min, mod.Memory.Max)
	}

	if len(mod.DataSegments) > 0 {
		passive := make([][]byte, len(mod.DataSegments))
		for i, seg := range mod.DataSegments {
			if seg.Passive {
				passive[i] = seg.Bytes
				continue
			}
			offset := evalConstExpr(seg.OffsetExpr, inst).AsU32()
			if !inst.memory.Write(offset, seg.Bytes) {
				return nil, fmt.Errorf("wasm: active data segment %d out of bounds", i)
			}
		}
		inst.memory.SetDataSegments(passive)
	}

	inst.imports = make([]api.HostFunction, mod.ImportedFunctionCount)
	for i := 0; i < mod.ImportedFunctionCount; i++ {
		fn := mod.Functions[i]
		host, ok := resolveImport(fn.ImportModule, fn.ImportName)
		if !ok {
			return nil, fmt.Errorf("wasm: unresolved import %s.%s", fn.ImportModule, fn.ImportName)
		}
		inst.imports[i] = host
	}

	return inst, nil
}

// evalConstExpr evaluates a global initializer or active data/element
// segment offset expression: one push instruction (a *_CONST or a GLOBAL_GET
// referencing an already-initialized, module-defined global) followed
// by the implicit END the decoder strips before storing the expression here.
func evalConstExpr(expr []Instruction, inst *ModuleInstance) api.Value {
	instr := expr[0]
	switch instr.Opcode {
	case OpcodeI32Const:
		return api.I32(int32(instr.Rs[0]))
	case OpcodeI64Const:
		return api.I64(instr.Rs[0])
	case OpcodeF32Const:
		return api.F32(math.Float32frombits(uint32(instr.Rs[0])))
	case OpcodeF64Const:
		return api.F64(math.Float64frombits(uint64(instr.Rs[0])))
	case OpcodeGlobalGet:
		return inst.GlobalGet(instr.Us[0])
	default:
		panic(fmt.Sprintf("wasm: invalid const expression opcode %s", instr.Opcode))
	}
}

func (m *ModuleInstance) Function(idx uint32) *Function {
	fn := m.mod.Functions[idx]
	if fn.IsImport() {
		return nil
	}
	return fn
}

func (m *ModuleInstance) FunctionType(idx uint32) *FunctionType {
	return m.mod.Functions[idx].Type
}

func (m *ModuleInstance) TypeByIndex(idx uint32) *FunctionType {
	return m.mod.Types[idx]
}

func (m *ModuleInstance) HostFunction(idx uint32) api.HostFunction {
	return m.imports[idx]
}

func (m *ModuleInstance) TableFuncRef(tableIdx, elemIdx uint32) (uint32, bool) {
	if int(tableIdx) >= len(m.tables) {
		return 0, false
	}
	t := m.tables[tableIdx]
	if int(elemIdx) >= len(t.Elements) || (t.ElementSet != nil && !t.ElementSet[elemIdx]) {
		return 0, false
	}
	return t.Elements[elemIdx], true
}

func (m *ModuleInstance) Memory() api.Memory {
	if m.memory == nil {
		return nil
	}
	return m.memory
}

func (m *ModuleInstance) GlobalGet(idx uint32) api.Value { return m.globals[idx] }

func (m *ModuleInstance) GlobalSet(idx uint32, v api.Value) { m.globals[idx] = v }

func (m *ModuleInstance) GlobalMutable(idx uint32) bool { return m.mod.Globals[idx].Mutable }

// ExportedFunctionIndex looks up a function export by name, for Machine.Call
// callers that address functions by name rather than index.
func (m *ModuleInstance) ExportedFunctionIndex(name string) (uint32, bool) {
	exp, ok := m.mod.Exports[name]
	if !ok || exp.Kind != ExportKindFunction {
		return 0, false
	}
	return exp.Index, true
}

// Module returns the Module this instance was instantiated from.
func (m *ModuleInstance) Module() *Module { return m.mod }
