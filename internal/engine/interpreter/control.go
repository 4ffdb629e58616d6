package interpreter

import (
	"github.com/wasmi-project/wasmi/api"
	"github.com/wasmi-project/wasmi/internal/wasm"
	"github.com/wasmi-project/wasmi/internal/wasmruntime"
)

// enterBlock pushes a new controlBlock for a BLOCK/LOOP/IF, recording the
// operand stack height to truncate back to at its matching END: the
// current height minus the block's declared param count, since those
// params are already sitting on the stack when the block is entered
// (§4.2's BLOCK/LOOP row).
func (in *Interpreter) enterBlock(fr *frame, instr *wasm.Instruction) {
	bt := instr.BlockType
	paramCount, resultCount := 0, 0
	if bt != nil {
		paramCount = len(bt.Params)
		resultCount = len(bt.Results)
	}
	fr.pushBlock(controlBlock{
		stackHeightAtEntry: in.stack.size() - paramCount,
		resultArity:        resultCount,
	})
}

// endBlock implements END's general unwind (§4.2): pop the innermost open
// block, save its top resultArity values, truncate the stack back to the
// block's entry height, restore a taken branch's popped predicate above
// that (the documented quirk conformance suites rely on), then push the
// saved results back.
//
// The source's is_control_frame gate on this logic is dropped here (see
// DESIGN.md): restricting the restore to BLOCK/LOOP and skipping it for IF
// left IF-targeted branches with a corrupted stack, which the per-block
// redesign exists to fix in the first place.
func (in *Interpreter) endBlock(fr *frame) {
	blk := fr.popBlock()
	k := blk.resultArity
	if k > in.stack.size() {
		k = in.stack.size()
	}
	saved := in.stack.popN(k)
	in.stack.truncate(blk.stackHeightAtEntry)
	if blk.doControlTransfer && blk.hasBranchConditionValue {
		in.stack.push(blk.branchConditionValue)
	}
	for _, v := range saved {
		in.stack.push(v)
	}
}

// branch marks the block at the given label depth (0 = innermost open
// block) as the target of a taken BR/BR_IF/BR_TABLE, then pops every block
// nested inside it so the call frame's block stack is realigned to where
// it will be when control reaches that block's own END (or, for a LOOP
// target, the pc just past the LOOP opcode — either way, the blocks opened
// since the target are gone, exactly as if each had run to its END).
//
// hasCondition/condition carry the popped BR_IF/BR_TABLE predicate so the
// matching END can restore it per §4.2's branch_condition_value behavior;
// plain BR passes hasCondition=false.
func (in *Interpreter) branch(fr *frame, depth int, condition api.Value, hasCondition bool) {
	target := &fr.blocks[len(fr.blocks)-1-depth]
	target.doControlTransfer = true
	if hasCondition {
		target.branchConditionValue = condition
		target.hasBranchConditionValue = true
	}
	fr.blocks = fr.blocks[:len(fr.blocks)-depth]
}

// callIndirect implements CALL_INDIRECT (§4.3): resolve the table entry,
// verify its signature against the static type index, and invoke it as an
// ordinary call.
func (in *Interpreter) callIndirect(instr *wasm.Instruction) {
	typeIdx := instr.Us[0]
	tableIdx := uint32(0)
	if len(instr.Us) > 1 {
		tableIdx = instr.Us[1]
	}
	elemIdx := in.stack.pop().AsU32()

	funcIdx, ok := in.inst.TableFuncRef(tableIdx, elemIdx)
	if !ok {
		panic(wasmruntime.ErrRuntimeInvalidTableAccess)
	}

	declared := in.inst.TypeByIndex(typeIdx)
	actual := in.inst.FunctionType(funcIdx)
	if !declared.EqualsSignature(actual) {
		panic(wasmruntime.ErrRuntimeIndirectCallTypeMismatch)
	}

	in.invoke(funcIdx)
}
