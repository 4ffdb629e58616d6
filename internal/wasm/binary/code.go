package binary

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/wasmi-project/wasmi/api"
	"github.com/wasmi-project/wasmi/internal/leb128"
	"github.com/wasmi-project/wasmi/internal/wasm"
)

// controlFrame tracks one open BLOCK/LOOP/IF while a function body is being
// flattened. pending holds every branch in this function that targets this
// frame's depth and isn't a LOOP target (loop targets resolve immediately,
// see resolveBranch); it is drained into absolute pcs once this frame's own
// END is reached.
type controlFrame struct {
	opcode      wasm.Opcode
	selfIdx     int
	loopStartPC uint64
	pending     []pendingPatch
}

// pendingPatch names one Instruction field awaiting its target frame's END
// pc: LabelTrue if tableSlot is negative, LabelTable[tableSlot] otherwise.
type pendingPatch struct {
	instrIdx  int
	tableSlot int
}

func (d *decoder) decodeCodeSection(r *bytes.Reader, funcTypeIndices []uint32) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("wasm: code section: %w", err)
	}
	if int(count) != len(funcTypeIndices) {
		return fmt.Errorf("wasm: code section has %d entries, function section declared %d", count, len(funcTypeIndices))
	}
	for i := uint32(0); i < count; i++ {
		size, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("wasm: code %d size: %w", i, err)
		}
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("wasm: code %d body: %w", i, err)
		}
		fr := bytes.NewReader(buf)

		locals, err := decodeLocals(fr)
		if err != nil {
			return fmt.Errorf("wasm: code %d locals: %w", i, err)
		}
		body, err := decodeFunctionBody(fr, d.mod.Types)
		if err != nil {
			return fmt.Errorf("wasm: code %d body: %w", i, err)
		}
		d.mod.Functions = append(d.mod.Functions, &wasm.Function{
			Type:       d.mod.Types[funcTypeIndices[i]],
			LocalTypes: locals,
			Body:       body,
		})
	}
	return nil
}

func decodeLocals(r *bytes.Reader) ([]api.ValueType, error) {
	runCount, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	var out []api.ValueType
	for i := uint32(0); i < runCount; i++ {
		n, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		vt, err := decodeValueType(r)
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < n; j++ {
			out = append(out, vt)
		}
	}
	return out, nil
}

// decodeFunctionBody flattens one function's nested BLOCK/LOOP/IF structure
// into a single Instruction slice, resolving every branch label to an
// absolute index into that slice as it goes (see control.go in
// internal/engine/interpreter for how LabelTrue/LabelFalse/LabelTable are
// consumed at run time).
func decodeFunctionBody(r *bytes.Reader, types []*wasm.FunctionType) ([]wasm.Instruction, error) {
	var body []wasm.Instruction
	var stack []*controlFrame

	resolveBranch := func(depth uint32, instrIdx, tableSlot int) error {
		if int(depth) >= len(stack) {
			return fmt.Errorf("wasm: branch depth %d exceeds %d open blocks", depth, len(stack))
		}
		frame := stack[len(stack)-1-int(depth)]
		if frame.opcode == wasm.OpcodeLoop {
			if tableSlot < 0 {
				body[instrIdx].LabelTrue = frame.loopStartPC
			} else {
				body[instrIdx].LabelTable[tableSlot] = frame.loopStartPC
			}
		} else {
			frame.pending = append(frame.pending, pendingPatch{instrIdx: instrIdx, tableSlot: tableSlot})
		}
		return nil
	}

	for {
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		opcode := wasm.Opcode(op)
		instrIdx := len(body)

		switch opcode {
		case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
			bt, err := decodeBlockType(r, types)
			if err != nil {
				return nil, fmt.Errorf("wasm: block type: %w", err)
			}
			instr := wasm.Instruction{Opcode: opcode, BlockType: bt}
			if opcode == wasm.OpcodeIf {
				instr.LabelTrue = uint64(instrIdx + 1)
			}
			body = append(body, instr)
			frame := &controlFrame{opcode: opcode, selfIdx: instrIdx}
			if opcode == wasm.OpcodeLoop {
				frame.loopStartPC = uint64(instrIdx + 1)
			}
			stack = append(stack, frame)

		case wasm.OpcodeElse:
			if len(stack) == 0 || stack[len(stack)-1].opcode != wasm.OpcodeIf {
				return nil, fmt.Errorf("wasm: ELSE without a matching IF")
			}
			frame := stack[len(stack)-1]
			body[frame.selfIdx].LabelFalse = uint64(instrIdx + 1)
			body = append(body, wasm.Instruction{Opcode: wasm.OpcodeElse})
			frame.pending = append(frame.pending, pendingPatch{instrIdx: instrIdx, tableSlot: -1})

		case wasm.OpcodeEnd:
			if len(stack) == 0 {
				body = append(body, wasm.Instruction{Opcode: wasm.OpcodeEnd})
				return body, nil
			}
			frame := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			endPC := uint64(instrIdx)
			if frame.opcode == wasm.OpcodeIf && body[frame.selfIdx].LabelFalse == 0 {
				body[frame.selfIdx].LabelFalse = endPC
			}
			for _, p := range frame.pending {
				if p.tableSlot < 0 {
					body[p.instrIdx].LabelTrue = endPC
				} else {
					body[p.instrIdx].LabelTable[p.tableSlot] = endPC
				}
			}
			body = append(body, wasm.Instruction{Opcode: wasm.OpcodeEnd})

		case wasm.OpcodeBr, wasm.OpcodeBrIf:
			depth, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return nil, err
			}
			instr := wasm.Instruction{Opcode: opcode, Us: []uint32{depth}}
			if opcode == wasm.OpcodeBrIf {
				instr.LabelFalse = uint64(instrIdx + 1)
			}
			body = append(body, instr)
			if err := resolveBranch(depth, instrIdx, -1); err != nil {
				return nil, err
			}

		case wasm.OpcodeBrTable:
			targets, err := decodeIndexVector(r)
			if err != nil {
				return nil, err
			}
			defaultDepth, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return nil, err
			}
			targets = append(targets, defaultDepth)
			instr := wasm.Instruction{Opcode: opcode, Us: targets, LabelTable: make([]uint64, len(targets))}
			body = append(body, instr)
			for slot, depth := range targets {
				if err := resolveBranch(depth, instrIdx, slot); err != nil {
					return nil, err
				}
			}

		default:
			instr, err := decodeSimpleInstruction(r, opcode)
			if err != nil {
				return nil, fmt.Errorf("wasm: opcode %s: %w", opcode, err)
			}
			body = append(body, instr)
		}
	}
}

func decodeBlockType(r io.ByteReader, types []*wasm.FunctionType) (*wasm.BlockType, error) {
	v, _, err := leb128.DecodeInt33AsInt64(r)
	if err != nil {
		return nil, err
	}
	switch v {
	case -64: // 0x40, empty block type
		return nil, nil
	case -1:
		return &wasm.BlockType{Results: []api.ValueType{api.ValueTypeI32}}, nil
	case -2:
		return &wasm.BlockType{Results: []api.ValueType{api.ValueTypeI64}}, nil
	case -3:
		return &wasm.BlockType{Results: []api.ValueType{api.ValueTypeF32}}, nil
	case -4:
		return &wasm.BlockType{Results: []api.ValueType{api.ValueTypeF64}}, nil
	case -16:
		return &wasm.BlockType{Results: []api.ValueType{api.ValueTypeFuncref}}, nil
	}
	if v < 0 || int(v) >= len(types) {
		return nil, fmt.Errorf("wasm: invalid block type index %d", v)
	}
	t := types[v]
	return &wasm.BlockType{Params: t.Params, Results: t.Results}, nil
}

// decodeSimpleInstruction decodes every opcode whose immediates don't
// participate in label resolution: indices, memory access immediates,
// constants, and the bulk-memory/saturating-truncation 0xFC sub-opcodes.
func decodeSimpleInstruction(r *bytes.Reader, opcode wasm.Opcode) (wasm.Instruction, error) {
	switch opcode {
	case wasm.OpcodeUnreachable, wasm.OpcodeNop, wasm.OpcodeReturn,
		wasm.OpcodeDrop, wasm.OpcodeSelect:
		return wasm.Instruction{Opcode: opcode}, nil

	case wasm.OpcodeCall:
		idx, _, err := leb128.DecodeUint32(r)
		return wasm.Instruction{Opcode: opcode, Us: []uint32{idx}}, err

	case wasm.OpcodeCallIndirect:
		typeIdx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.Instruction{}, err
		}
		tableIdx, err := r.ReadByte() // reserved byte, 0 in this engine (no reference-types multi-table)
		if err != nil {
			return wasm.Instruction{}, err
		}
		return wasm.Instruction{Opcode: opcode, Us: []uint32{typeIdx, uint32(tableIdx)}}, nil

	case wasm.OpcodeLocalGet, wasm.OpcodeLocalSet, wasm.OpcodeLocalTee,
		wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet:
		idx, _, err := leb128.DecodeUint32(r)
		return wasm.Instruction{Opcode: opcode, Us: []uint32{idx}}, err

	case wasm.OpcodeMemorySize, wasm.OpcodeMemoryGrow:
		if _, err := r.ReadByte(); err != nil { // reserved byte
			return wasm.Instruction{}, err
		}
		return wasm.Instruction{Opcode: opcode}, nil

	case wasm.OpcodeI32Load, wasm.OpcodeI64Load, wasm.OpcodeF32Load, wasm.OpcodeF64Load,
		wasm.OpcodeI32Load8S, wasm.OpcodeI32Load8U, wasm.OpcodeI32Load16S, wasm.OpcodeI32Load16U,
		wasm.OpcodeI64Load8S, wasm.OpcodeI64Load8U, wasm.OpcodeI64Load16S, wasm.OpcodeI64Load16U,
		wasm.OpcodeI64Load32S, wasm.OpcodeI64Load32U,
		wasm.OpcodeI32Store, wasm.OpcodeI64Store, wasm.OpcodeF32Store, wasm.OpcodeF64Store,
		wasm.OpcodeI32Store8, wasm.OpcodeI32Store16, wasm.OpcodeI64Store8,
		wasm.OpcodeI64Store16, wasm.OpcodeI64Store32:
		if _, _, err := leb128.DecodeUint32(r); err != nil { // align, unused at run time
			return wasm.Instruction{}, err
		}
		offset, _, err := leb128.DecodeUint32(r)
		return wasm.Instruction{Opcode: opcode, Us: []uint32{offset}}, err

	case wasm.OpcodeI32Const:
		v, _, err := leb128.DecodeInt32(r)
		return wasm.Instruction{Opcode: opcode, Rs: []int64{int64(v)}}, err

	case wasm.OpcodeI64Const:
		v, _, err := leb128.DecodeInt64(r)
		return wasm.Instruction{Opcode: opcode, Rs: []int64{v}}, err

	case wasm.OpcodeF32Const:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return wasm.Instruction{}, err
		}
		return wasm.Instruction{Opcode: opcode, Rs: []int64{int64(binary.LittleEndian.Uint32(buf[:]))}}, nil

	case wasm.OpcodeF64Const:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return wasm.Instruction{}, err
		}
		return wasm.Instruction{Opcode: opcode, Rs: []int64{int64(binary.LittleEndian.Uint64(buf[:]))}}, nil

	case wasm.Opcode(wasm.OpcodeMiscPrefix):
		sub, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.Instruction{}, err
		}
		return decodeMiscInstruction(r, sub)

	default:
		// Every remaining opcode (comparisons, arithmetic, conversions,
		// sign-extension) carries no immediate.
		return wasm.Instruction{Opcode: opcode}, nil
	}
}

func decodeMiscInstruction(r *bytes.Reader, sub uint32) (wasm.Instruction, error) {
	switch sub {
	case 0:
		return wasm.Instruction{Opcode: wasm.OpcodeMiscI32TruncSatF32S}, nil
	case 1:
		return wasm.Instruction{Opcode: wasm.OpcodeMiscI32TruncSatF32U}, nil
	case 2:
		return wasm.Instruction{Opcode: wasm.OpcodeMiscI32TruncSatF64S}, nil
	case 3:
		return wasm.Instruction{Opcode: wasm.OpcodeMiscI32TruncSatF64U}, nil
	case 4:
		return wasm.Instruction{Opcode: wasm.OpcodeMiscI64TruncSatF32S}, nil
	case 5:
		return wasm.Instruction{Opcode: wasm.OpcodeMiscI64TruncSatF32U}, nil
	case 6:
		return wasm.Instruction{Opcode: wasm.OpcodeMiscI64TruncSatF64S}, nil
	case 7:
		return wasm.Instruction{Opcode: wasm.OpcodeMiscI64TruncSatF64U}, nil
	case 8:
		dataIdx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.Instruction{}, err
		}
		if _, err := r.ReadByte(); err != nil { // reserved memory index
			return wasm.Instruction{}, err
		}
		return wasm.Instruction{Opcode: wasm.OpcodeMiscMemoryInit, Us: []uint32{dataIdx}}, nil
	case 9:
		dataIdx, _, err := leb128.DecodeUint32(r)
		return wasm.Instruction{Opcode: wasm.OpcodeMiscDataDrop, Us: []uint32{dataIdx}}, err
	case 10:
		if _, err := r.ReadByte(); err != nil {
			return wasm.Instruction{}, err
		}
		if _, err := r.ReadByte(); err != nil {
			return wasm.Instruction{}, err
		}
		return wasm.Instruction{Opcode: wasm.OpcodeMiscMemoryCopy}, nil
	case 11:
		if _, err := r.ReadByte(); err != nil {
			return wasm.Instruction{}, err
		}
		return wasm.Instruction{Opcode: wasm.OpcodeMiscMemoryFill}, nil
	default:
		return wasm.Instruction{}, fmt.Errorf("wasm: unknown 0xFC sub-opcode %d", sub)
	}
}
