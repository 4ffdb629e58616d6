package interpreter

import (
	"github.com/wasmi-project/wasmi/api"
	"github.com/wasmi-project/wasmi/internal/wasm"
	"github.com/wasmi-project/wasmi/internal/wasmruntime"
)

// mustMemory returns the instance's linear memory, panicking as an engine
// error if the module declares none — a malformed-module condition, never
// reachable from a validly decoded program that contains a memory
// instruction.
func (in *Interpreter) mustMemory() api.Memory {
	m := in.inst.Memory()
	if m == nil {
		panic("BUG: memory instruction in a module with no memory")
	}
	return m
}

// effectiveAddr computes LOAD/STORE's effective address (§4.4): the
// instruction's static offset immediate plus the dynamic i32 base popped
// off the stack, both interpreted as unsigned 32-bit. A sum past 2^32-1
// does not wrap around to a low address: it traps as an out-of-bounds
// memory access.
func (in *Interpreter) effectiveAddr(instr *wasm.Instruction) uint32 {
	base := in.stack.pop().AsU32()
	addr := base + instr.Us[0]
	if addr < base {
		panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	}
	return addr
}

func (in *Interpreter) load32(instr *wasm.Instruction, read func(api.Memory, uint32) (uint32, bool)) {
	addr := in.effectiveAddr(instr)
	v, ok := read(in.mustMemory(), addr)
	if !ok {
		panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	}
	in.stack.push(api.U32(v))
}

func (in *Interpreter) load64(instr *wasm.Instruction, read func(api.Memory, uint32) (uint64, bool)) {
	addr := in.effectiveAddr(instr)
	v, ok := read(in.mustMemory(), addr)
	if !ok {
		panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	}
	in.stack.push(api.U64(v))
}

func (in *Interpreter) loadF32(instr *wasm.Instruction) {
	addr := in.effectiveAddr(instr)
	v, ok := in.mustMemory().ReadUint32Le(addr)
	if !ok {
		panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	}
	in.stack.push(valueF32FromBits(v))
}

func (in *Interpreter) loadF64(instr *wasm.Instruction) {
	addr := in.effectiveAddr(instr)
	v, ok := in.mustMemory().ReadUint64Le(addr)
	if !ok {
		panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	}
	in.stack.push(valueF64FromBits(v))
}

// loadExtend implements the narrow loads (LOAD8/16/32 _S/_U): read
// widthBytes from memory, then sign- or zero-extend to the destination
// width (i32 if !destIsI64, else i64).
func (in *Interpreter) loadExtend(instr *wasm.Instruction, widthBytes int, signed, destIsI64 bool) {
	addr := in.effectiveAddr(instr)
	mem := in.mustMemory()

	var raw uint64
	switch widthBytes {
	case 1:
		b, ok := mem.ReadByte(addr)
		if !ok {
			panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		raw = uint64(b)
		if signed {
			raw = uint64(uint32(int32(int8(b))))
			if destIsI64 {
				raw = uint64(int64(int8(b)))
			}
		}
	case 2:
		v, ok := mem.ReadUint16Le(addr)
		if !ok {
			panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		raw = uint64(v)
		if signed {
			raw = uint64(uint32(int32(int16(v))))
			if destIsI64 {
				raw = uint64(int64(int16(v)))
			}
		}
	case 4:
		v, ok := mem.ReadUint32Le(addr)
		if !ok {
			panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		raw = uint64(v)
		if signed {
			raw = uint64(int64(int32(v)))
		}
	}

	if destIsI64 {
		in.stack.push(api.U64(raw))
	} else {
		in.stack.push(api.U32(uint32(raw)))
	}
}

// memoryInit implements MEMORY_INIT (§4.4): pop size, offset, dst (in that
// order) and copy from the passive data segment named by the instruction's
// static segment index.
func (in *Interpreter) memoryInit(instr *wasm.Instruction) {
	size := in.stack.pop().AsU32()
	offset := in.stack.pop().AsU32()
	dst := in.stack.pop().AsU32()
	if !in.mustMemory().InitPassiveSegment(instr.Us[0], dst, offset, size) {
		panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	}
}

func (in *Interpreter) dataDrop(instr *wasm.Instruction) {
	in.mustMemory().DropDataSegment(instr.Us[0])
}

func (in *Interpreter) memoryCopy() {
	size := in.stack.pop().AsU32()
	src := in.stack.pop().AsU32()
	dst := in.stack.pop().AsU32()
	if !in.mustMemory().Copy(dst, src, size) {
		panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	}
}

func (in *Interpreter) memoryFill() {
	size := in.stack.pop().AsU32()
	value := in.stack.pop().AsByte()
	dst := in.stack.pop().AsU32()
	if !in.mustMemory().Fill(dst, size, value) {
		panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	}
}
