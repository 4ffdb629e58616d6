package wasm

import "github.com/wasmi-project/wasmi/api"

// Instruction is one decoded, flattened opcode in a function body. Control
// instructions are not nested: BLOCK/LOOP/IF/ELSE/END appear as individual
// Instruction entries in the same flat slice the interpreter walks pc
// through, with their branch targets already resolved to absolute indices
// into that slice by the decoder (see §6 of the core design).
type Instruction struct {
	Opcode Opcode

	// Us holds unsigned immediates: local/global/function/type/table
	// indices, the static offset for memory instructions, the segment
	// index for MEMORY_INIT/DATA_DROP. For BR/BR_IF, Us[0] is the relative
	// label depth (0 = innermost open block). For BR_TABLE, Us holds one
	// relative label depth per LabelTable entry, in the same order.
	Us []uint32

	// Rs holds signed 64-bit immediates: I32_CONST/I64_CONST operands, and
	// the raw bit patterns of F32_CONST/F64_CONST.
	Rs []int64

	// BlockType describes BLOCK/LOOP/IF's declared type, nil for every
	// other opcode.
	BlockType *BlockType

	// LabelTrue is: for BR/ELSE, the matching END's pc (so END's unwind
	// runs for the transfer), or for a BR targeting a LOOP, the pc right
	// after the LOOP opcode; for BR_IF, the pc to jump to when the popped
	// condition is non-zero; for IF, the consequent's first instruction
	// (the same pc execution would reach by falling through anyway —
	// spelled out explicitly so the interpreter never special-cases IF's
	// true branch).
	LabelTrue uint64

	// LabelFalse is: for IF, the pc to jump to when the condition is zero
	// — the instruction after a matching ELSE, or the matching END's own
	// pc if there is no ELSE, so END still runs to finalize the block even
	// though the consequent never executed; for BR_IF, the fallthrough pc
	// (the next instruction).
	LabelFalse uint64

	// LabelTable holds BR_TABLE's resolved targets; the last entry is the
	// default, taken when the predicate is out of range.
	LabelTable []uint64
}

// BlockType is the resolved parameter/result signature of a BLOCK, LOOP or
// IF. The binary format encodes this as either the empty type, a single
// ValueType, or a signed type-section index; the decoder resolves all three
// forms into this struct so the interpreter never inspects the raw
// encoding.
type BlockType struct {
	Params  []api.ValueType
	Results []api.ValueType
}

// FunctionType is a function's parameter and result signature.
type FunctionType struct {
	Params  []api.ValueType
	Results []api.ValueType
}

// Arity returns the number of result values the type produces.
func (t *FunctionType) Arity() int { return len(t.Results) }

// EqualsSignature reports whether t has the same params and results as
// other; CALL_INDIRECT traps with "indirect call type mismatch" when this
// is false.
func (t *FunctionType) EqualsSignature(other *FunctionType) bool {
	if t == other {
		return true
	}
	if len(t.Params) != len(other.Params) || len(t.Results) != len(other.Results) {
		return false
	}
	for i, p := range t.Params {
		if p != other.Params[i] {
			return false
		}
	}
	for i, r := range t.Results {
		if r != other.Results[i] {
			return false
		}
	}
	return true
}
