package interpreter

import "github.com/wasmi-project/wasmi/api"

// controlBlock is one active BLOCK/LOOP/IF's bookkeeping. Unlike a single
// aggregated (stack_size_before_block, number_of_values_to_return) pair per
// frame, each nested block keeps its own record, so nested blocks with
// different result arities unwind correctly instead of fighting over one
// shared slot (see DESIGN.md's open-question decision).
type controlBlock struct {
	// stackHeightAtEntry is the operand stack height recorded when this
	// block was entered; END truncates back down to it.
	stackHeightAtEntry int

	// resultArity is this block's declared result count.
	resultArity int

	// doControlTransfer is set by BR/BR_IF/BR_TABLE/ELSE and consumed by
	// the matching END.
	doControlTransfer bool

	// branchConditionValue is the Value popped by a taken BR_IF/BR_TABLE,
	// preserved so END can push it back onto the unwound stack, beneath the
	// block's result values, per §4.2's documented (if surprising) behavior.
	branchConditionValue    api.Value
	hasBranchConditionValue bool
}

// frame is one function activation (§3): its program counter, its locals,
// and the stack of control blocks currently open within it.
type frame struct {
	funcIdx uint32
	pc      uint64
	locals  []api.Value
	blocks  []controlBlock

	// returning is set by RETURN; checked at the top of the dispatch loop
	// so the loop exits cleanly instead of via a control-flow exception
	// (§9: "no exceptions for control flow").
	returning bool
}

func newFrame(funcIdx uint32, locals []api.Value) *frame {
	return &frame{funcIdx: funcIdx, locals: locals}
}

func (f *frame) pushBlock(b controlBlock) {
	f.blocks = append(f.blocks, b)
}

func (f *frame) topBlock() *controlBlock {
	return &f.blocks[len(f.blocks)-1]
}

func (f *frame) popBlock() controlBlock {
	b := f.blocks[len(f.blocks)-1]
	f.blocks = f.blocks[:len(f.blocks)-1]
	return b
}

func (f *frame) blockDepth() int { return len(f.blocks) }

// callStack is the LIFO of active frames (§3); Machine.Call's outermost
// invocation is always element 0.
type callStack struct {
	frames []*frame
}

// callStackCeiling bounds recursion depth; exceeding it is an engine error
// (ErrRuntimeCallStackOverflow), not a Wasm trap, matching the teacher's own
// distinction between resource exhaustion and spec-defined traps.
const callStackCeiling = 2000

func (cs *callStack) push(f *frame) {
	if len(cs.frames) >= callStackCeiling {
		panic(errCallStackOverflow)
	}
	cs.frames = append(cs.frames, f)
}

func (cs *callStack) pop() *frame {
	f := cs.frames[len(cs.frames)-1]
	cs.frames = cs.frames[:len(cs.frames)-1]
	return f
}

func (cs *callStack) top() *frame { return cs.frames[len(cs.frames)-1] }

func (cs *callStack) depth() int { return len(cs.frames) }
