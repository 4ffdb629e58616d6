// Package interpreter implements the tree-walking WebAssembly interpreter:
// a flat per-function instruction slice, pre-resolved branch labels, and a
// single switch dispatch loop over the current frame's pc. There is no
// bytecode lowering step distinct from decoding; internal/wasm/binary
// already produces the flattened, label-resolved form this package walks.
package interpreter

import (
	"fmt"

	"github.com/wasmi-project/wasmi/api"
	"github.com/wasmi-project/wasmi/internal/features"
	"github.com/wasmi-project/wasmi/internal/wasm"
	"github.com/wasmi-project/wasmi/internal/wasmdebug"
	"github.com/wasmi-project/wasmi/internal/wasmlog"
	"github.com/wasmi-project/wasmi/internal/wasmruntime"
)

// errCallStackOverflow is the engine error callStack.push panics with once
// callStackCeiling is exceeded; defined here, alongside Call's recover, so
// frame.go stays free of the wasmruntime import.
var errCallStackOverflow = fmt.Errorf("%w", wasmruntime.ErrRuntimeCallStackOverflow)

// Interpreter runs one Instance's functions (§3's Machine). It is not safe
// for concurrent use: the operand stack and call stack are shared mutable
// state for the lifetime of every Call.
type Interpreter struct {
	inst       wasm.Instance
	moduleName string
	features   features.Features
	log        *wasmlog.Logger

	stack *operandStack
	calls *callStack
}

// Option configures an Interpreter at construction.
type Option func(*Interpreter)

// WithFeatures enables the given proposal bitset beyond the MVP.
func WithFeatures(f features.Features) Option {
	return func(in *Interpreter) { in.features = f }
}

// WithLogger attaches an instruction/call trace sink.
func WithLogger(l *wasmlog.Logger) Option {
	return func(in *Interpreter) { in.log = l }
}

// WithModuleName overrides the name stack traces report for this
// instance's functions (FuncName's moduleName parameter). Defaults to
// "instance".
func WithModuleName(name string) Option {
	return func(in *Interpreter) { in.moduleName = name }
}

// New returns an Interpreter running inst's functions.
func New(inst wasm.Instance, opts ...Option) *Interpreter {
	in := &Interpreter{
		inst:       inst,
		moduleName: "instance",
		stack:      newOperandStack(),
		calls:      &callStack{},
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Call invokes funcIdx with args (§4.1's contract). When popResults is
// true, the callee's result values are popped off the shared operand stack
// and returned; otherwise they are left for the caller (this is how CALL
// itself invokes callees internally). A trap or engine error unwinds every
// frame pushed during this Call and is reported here, never inside it.
func (in *Interpreter) Call(funcIdx uint32, args []api.Value, popResults bool) (results []api.Value, err error) {
	baseDepth := in.calls.depth()
	defer func() {
		if v := recover(); v != nil {
			builder := wasmdebug.NewErrorBuilder()
			for in.calls.depth() > baseDepth {
				fr := in.calls.pop()
				ft := in.inst.FunctionType(fr.funcIdx)
				name := in.frameName(fr.funcIdx)
				builder.AddFrame(name, ft.Params, ft.Results)
			}
			err = builder.FromRecovered(v)
			results = nil
		}
	}()

	for _, a := range args {
		in.stack.push(a)
	}
	in.invoke(funcIdx)

	if popResults {
		ft := in.inst.FunctionType(funcIdx)
		results = in.stack.popN(ft.Arity())
	}
	return results, nil
}

func (in *Interpreter) frameName(funcIdx uint32) string {
	name := ""
	if fn := in.inst.Function(funcIdx); fn != nil {
		name = fn.Name
	}
	return wasmdebug.FuncName(in.moduleName, name, funcIdx)
}

// invoke dispatches to a host import or runs a local function's body,
// assuming its parameters are already the top len(params) values of the
// shared operand stack, deepest-first (§4.3: CALL "pops params in reverse
// order").
func (in *Interpreter) invoke(funcIdx uint32) {
	ft := in.inst.FunctionType(funcIdx)
	fn := in.inst.Function(funcIdx)
	if fn == nil {
		in.invokeHost(funcIdx, ft)
		return
	}
	in.invokeLocal(funcIdx, fn, ft)
}

func (in *Interpreter) invokeHost(funcIdx uint32, ft *wasm.FunctionType) {
	args := in.stack.popN(len(ft.Params))
	if in.log.Enabled(wasmlog.LevelCall) {
		in.log.CallEnter(in.frameName(funcIdx), valueStrings(args))
	}
	host := in.inst.HostFunction(funcIdx)
	results, err := host(in.inst.Memory(), args)
	if err != nil {
		panic(err)
	}
	for _, r := range results {
		in.stack.push(r)
	}
	if in.log.Enabled(wasmlog.LevelCall) {
		in.log.CallExit(in.frameName(funcIdx), valueStrings(results))
	}
}

func (in *Interpreter) invokeLocal(funcIdx uint32, fn *wasm.Function, ft *wasm.FunctionType) {
	paramCount := len(ft.Params)
	args := in.stack.popN(paramCount)

	locals := make([]api.Value, paramCount+len(fn.LocalTypes))
	copy(locals, args)
	for i, t := range fn.LocalTypes {
		locals[paramCount+i] = zeroValue(t)
	}

	fr := newFrame(funcIdx, locals)
	in.calls.push(fr)

	if in.log.Enabled(wasmlog.LevelCall) {
		in.log.CallEnter(in.frameName(funcIdx), valueStrings(args))
	}

	in.run(fn, fr)

	in.calls.pop()

	if in.log.Enabled(wasmlog.LevelCall) {
		results := in.stack.popN(ft.Arity())
		for _, r := range results {
			in.stack.push(r)
		}
		in.log.CallExit(in.frameName(funcIdx), valueStrings(results))
	}
}

func zeroValue(t api.ValueType) api.Value {
	switch t {
	case api.ValueTypeI32:
		return api.I32(0)
	case api.ValueTypeI64:
		return api.I64(0)
	case api.ValueTypeF32:
		return api.F32(0)
	case api.ValueTypeF64:
		return api.F64(0)
	case api.ValueTypeFuncref:
		return api.Funcref(0)
	default:
		panic(fmt.Sprintf("BUG: unknown local type %#x", t))
	}
}

func valueStrings(vs []api.Value) []string {
	if len(vs) == 0 {
		return nil
	}
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	return out
}

// run executes fn's body in fr until fr.returning is set by RETURN or the
// function's own closing END is reached with no blocks open.
func (in *Interpreter) run(fn *wasm.Function, fr *frame) {
	body := fn.Body
	for !fr.returning {
		instr := &body[fr.pc]
		fr.pc++

		if in.log.Enabled(wasmlog.LevelInstruction) {
			in.log.Instruction(instr.Opcode.String())
		}

		switch instr.Opcode {

		// --- Control ---

		case wasm.OpcodeUnreachable:
			panic(wasmruntime.ErrRuntimeUnreachable)

		case wasm.OpcodeNop:
			// no-op

		case wasm.OpcodeBlock, wasm.OpcodeLoop:
			in.enterBlock(fr, instr)

		case wasm.OpcodeIf:
			cond := in.stack.pop()
			in.enterBlock(fr, instr)
			if !cond.IsZero() {
				fr.pc = instr.LabelTrue
			} else {
				fr.pc = instr.LabelFalse
			}

		case wasm.OpcodeElse:
			blk := fr.topBlock()
			blk.doControlTransfer = true
			fr.pc = instr.LabelTrue

		case wasm.OpcodeEnd:
			if fr.blockDepth() == 0 {
				fr.returning = true
				continue
			}
			in.endBlock(fr)

		case wasm.OpcodeBr:
			in.branch(fr, int(instr.Us[0]), api.Value{}, false)
			fr.pc = instr.LabelTrue

		case wasm.OpcodeBrIf:
			cond := in.stack.pop()
			if cond.IsZero() {
				fr.pc = instr.LabelFalse
				continue
			}
			in.branch(fr, int(instr.Us[0]), cond, true)
			fr.pc = instr.LabelTrue

		case wasm.OpcodeBrTable:
			predicate := in.stack.pop()
			idx := predicate.AsU32()
			last := len(instr.LabelTable) - 1
			choice := last
			if int(idx) < last {
				choice = int(idx)
			}
			in.branch(fr, int(instr.Us[choice]), predicate, true)
			fr.pc = instr.LabelTable[choice]

		case wasm.OpcodeReturn:
			fr.returning = true

		case wasm.OpcodeCall:
			in.invoke(instr.Us[0])

		case wasm.OpcodeCallIndirect:
			in.callIndirect(instr)

		// --- Parametric ---

		case wasm.OpcodeDrop:
			in.stack.pop()

		case wasm.OpcodeSelect:
			cond := in.stack.pop()
			b := in.stack.pop()
			a := in.stack.pop()
			if !cond.IsZero() {
				in.stack.push(a)
			} else {
				in.stack.push(b)
			}

		// --- Variable ---

		case wasm.OpcodeLocalGet:
			in.stack.push(fr.locals[instr.Us[0]])

		case wasm.OpcodeLocalSet:
			fr.locals[instr.Us[0]] = in.stack.pop()

		case wasm.OpcodeLocalTee:
			fr.locals[instr.Us[0]] = in.stack.peek()

		case wasm.OpcodeGlobalGet:
			in.stack.push(in.inst.GlobalGet(instr.Us[0]))

		case wasm.OpcodeGlobalSet:
			v := in.stack.pop()
			if !in.inst.GlobalMutable(instr.Us[0]) {
				panic(fmt.Sprintf("wasmi: global.set %d targets an immutable global", instr.Us[0]))
			}
			in.inst.GlobalSet(instr.Us[0], v)

		// --- Memory ---

		case wasm.OpcodeMemorySize:
			in.stack.push(api.U32(in.mustMemory().Size()))

		case wasm.OpcodeMemoryGrow:
			delta := in.stack.pop().AsU32()
			prev, ok := in.mustMemory().Grow(delta)
			if !ok {
				in.stack.push(api.I32(-1))
			} else {
				in.stack.push(api.U32(prev))
			}

		case wasm.OpcodeI32Load:
			in.load32(instr, func(m api.Memory, addr uint32) (uint32, bool) { return m.ReadUint32Le(addr) })
		case wasm.OpcodeI64Load:
			in.load64(instr, func(m api.Memory, addr uint32) (uint64, bool) { return m.ReadUint64Le(addr) })
		case wasm.OpcodeF32Load:
			in.loadF32(instr)
		case wasm.OpcodeF64Load:
			in.loadF64(instr)
		case wasm.OpcodeI32Load8S:
			in.loadExtend(instr, 1, true, false)
		case wasm.OpcodeI32Load8U:
			in.loadExtend(instr, 1, false, false)
		case wasm.OpcodeI32Load16S:
			in.loadExtend(instr, 2, true, false)
		case wasm.OpcodeI32Load16U:
			in.loadExtend(instr, 2, false, false)
		case wasm.OpcodeI64Load8S:
			in.loadExtend(instr, 1, true, true)
		case wasm.OpcodeI64Load8U:
			in.loadExtend(instr, 1, false, true)
		case wasm.OpcodeI64Load16S:
			in.loadExtend(instr, 2, true, true)
		case wasm.OpcodeI64Load16U:
			in.loadExtend(instr, 2, false, true)
		case wasm.OpcodeI64Load32S:
			in.loadExtend(instr, 4, true, true)
		case wasm.OpcodeI64Load32U:
			in.loadExtend(instr, 4, false, true)

		case wasm.OpcodeI32Store:
			v := in.stack.pop().AsU32()
			addr := in.effectiveAddr(instr)
			if !in.mustMemory().WriteUint32Le(addr, v) {
				panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			}
		case wasm.OpcodeI64Store:
			v := in.stack.pop().AsU64()
			addr := in.effectiveAddr(instr)
			if !in.mustMemory().WriteUint64Le(addr, v) {
				panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			}
		case wasm.OpcodeF32Store:
			v := in.stack.pop().Bits()
			addr := in.effectiveAddr(instr)
			if !in.mustMemory().WriteUint32Le(addr, uint32(v)) {
				panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			}
		case wasm.OpcodeF64Store:
			v := in.stack.pop().Bits()
			addr := in.effectiveAddr(instr)
			if !in.mustMemory().WriteUint64Le(addr, v) {
				panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			}
		case wasm.OpcodeI32Store8, wasm.OpcodeI64Store8:
			v := in.stack.pop().AsByte()
			addr := in.effectiveAddr(instr)
			if !in.mustMemory().WriteByte(addr, v) {
				panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			}
		case wasm.OpcodeI32Store16, wasm.OpcodeI64Store16:
			v := in.stack.pop().AsShort()
			addr := in.effectiveAddr(instr)
			if !in.mustMemory().WriteUint16Le(addr, v) {
				panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			}
		case wasm.OpcodeI64Store32:
			v := uint32(in.stack.pop().AsU64())
			addr := in.effectiveAddr(instr)
			if !in.mustMemory().WriteUint32Le(addr, v) {
				panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			}

		// --- Numeric constants ---

		case wasm.OpcodeI32Const:
			in.stack.push(api.I32(int32(instr.Rs[0])))
		case wasm.OpcodeI64Const:
			in.stack.push(api.I64(instr.Rs[0]))
		case wasm.OpcodeF32Const:
			in.stack.push(valueF32FromBits(uint32(instr.Rs[0])))
		case wasm.OpcodeF64Const:
			in.stack.push(valueF64FromBits(uint64(instr.Rs[0])))

		default:
			in.dispatchNumeric(instr)
		}
	}
}
