// Package binary decodes the WebAssembly binary format (the .wasm module
// encoding) into an internal/wasm.Module: every function body's control
// flow flattened into a single Instruction slice per function, with BR/
// BR_IF/BR_TABLE/IF/ELSE labels already resolved to absolute indices into
// that slice, exactly the form internal/engine/interpreter walks.
package binary

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/wasmi-project/wasmi/api"
	"github.com/wasmi-project/wasmi/internal/leb128"
	"github.com/wasmi-project/wasmi/internal/wasm"
)

const (
	magic   = 0x6d736100 // "\0asm"
	version = uint32(1)
)

const (
	sectionCustom = iota
	sectionType
	sectionImport
	sectionFunction
	sectionTable
	sectionMemory
	sectionGlobal
	sectionExport
	sectionStart
	sectionElement
	sectionCode
	sectionData
)

// DecodeModule parses a complete .wasm binary image into a Module. Custom
// sections (including the name section) are skipped; this engine never
// needs the debug names to run a module, only internal/wasmdebug's
// synthetic naming.
func DecodeModule(data []byte) (*wasm.Module, error) {
	r := bytes.NewReader(data)

	var head [8]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, fmt.Errorf("wasm: %w", err)
	}
	if binary.LittleEndian.Uint32(head[:4]) != magic {
		return nil, fmt.Errorf("wasm: not a wasm binary (bad magic)")
	}
	if binary.LittleEndian.Uint32(head[4:]) != version {
		return nil, fmt.Errorf("wasm: unsupported version %d", binary.LittleEndian.Uint32(head[4:]))
	}

	d := &decoder{mod: &wasm.Module{Exports: map[string]wasm.Export{}}}

	var funcTypeIndices []uint32
	for {
		id, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("wasm: reading section id: %w", err)
		}
		size, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("wasm: reading section %d size: %w", id, err)
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("wasm: reading section %d body: %w", id, err)
		}
		sr := bytes.NewReader(body)

		switch id {
		case sectionCustom:
			// skipped
		case sectionType:
			if err := d.decodeTypeSection(sr); err != nil {
				return nil, err
			}
		case sectionImport:
			if err := d.decodeImportSection(sr); err != nil {
				return nil, err
			}
		case sectionFunction:
			funcTypeIndices, err = decodeIndexVector(sr)
			if err != nil {
				return nil, fmt.Errorf("wasm: function section: %w", err)
			}
		case sectionTable:
			if err := d.decodeTableSection(sr); err != nil {
				return nil, err
			}
		case sectionMemory:
			if err := d.decodeMemorySection(sr); err != nil {
				return nil, err
			}
		case sectionGlobal:
			if err := d.decodeGlobalSection(sr); err != nil {
				return nil, err
			}
		case sectionExport:
			if err := d.decodeExportSection(sr); err != nil {
				return nil, err
			}
		case sectionStart:
			idx, _, err := leb128.DecodeUint32(sr)
			if err != nil {
				return nil, fmt.Errorf("wasm: start section: %w", err)
			}
			d.mod.StartFunc = &idx
		case sectionElement:
			if err := d.decodeElementSection(sr); err != nil {
				return nil, err
			}
		case sectionCode:
			if err := d.decodeCodeSection(sr, funcTypeIndices); err != nil {
				return nil, err
			}
		case sectionData:
			if err := d.decodeDataSection(sr); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("wasm: unknown section id %d", id)
		}
	}

	if len(funcTypeIndices) > 0 && len(d.mod.Functions) == d.mod.ImportedFunctionCount {
		// A function section with no matching code section: fill in the
		// types so FunctionType lookups work even though every local
		// function is missing a body (a malformed module, but decoding
		// itself should not panic over it).
		for _, ti := range funcTypeIndices {
			d.mod.Functions = append(d.mod.Functions, &wasm.Function{Type: d.mod.Types[ti]})
		}
	}

	return d.mod, nil
}

type decoder struct {
	mod *wasm.Module
}

func decodeIndexVector(r io.ByteReader) ([]uint32, error) {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, count)
	for i := range out {
		v, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func decodeValueType(r io.ByteReader) (api.ValueType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	return api.ValueType(b), nil
}

func (d *decoder) decodeTypeSection(r *bytes.Reader) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("wasm: type section: %w", err)
	}
	d.mod.Types = make([]*wasm.FunctionType, count)
	for i := range d.mod.Types {
		form, err := r.ReadByte()
		if err != nil || form != 0x60 {
			return fmt.Errorf("wasm: type %d: expected func type form 0x60", i)
		}
		params, err := decodeValueTypeVector(r)
		if err != nil {
			return fmt.Errorf("wasm: type %d params: %w", i, err)
		}
		results, err := decodeValueTypeVector(r)
		if err != nil {
			return fmt.Errorf("wasm: type %d results: %w", i, err)
		}
		d.mod.Types[i] = &wasm.FunctionType{Params: params, Results: results}
	}
	return nil
}

func decodeValueTypeVector(r io.ByteReader) ([]api.ValueType, error) {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	out := make([]api.ValueType, count)
	for i := range out {
		out[i], err = decodeValueType(r)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeName(r *bytes.Reader) (string, error) {
	n, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

const (
	importKindFunc   = 0x00
	importKindTable  = 0x01
	importKindMemory = 0x02
	importKindGlobal = 0x03
)

func (d *decoder) decodeImportSection(r *bytes.Reader) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("wasm: import section: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		mod, err := decodeName(r)
		if err != nil {
			return fmt.Errorf("wasm: import %d module: %w", i, err)
		}
		name, err := decodeName(r)
		if err != nil {
			return fmt.Errorf("wasm: import %d name: %w", i, err)
		}
		kind, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("wasm: import %d kind: %w", i, err)
		}
		switch kind {
		case importKindFunc:
			typeIdx, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return fmt.Errorf("wasm: import %d func type: %w", i, err)
			}
			d.mod.Functions = append(d.mod.Functions, &wasm.Function{
				Type:         d.mod.Types[typeIdx],
				ImportModule: mod,
				ImportName:   name,
			})
			d.mod.ImportedFunctionCount++
		case importKindTable:
			t, err := decodeTableType(r)
			if err != nil {
				return fmt.Errorf("wasm: import %d table: %w", i, err)
			}
			d.mod.Tables = append(d.mod.Tables, t)
		case importKindMemory:
			m, err := decodeMemoryType(r)
			if err != nil {
				return fmt.Errorf("wasm: import %d memory: %w", i, err)
			}
			d.mod.Memory = m
		case importKindGlobal:
			return fmt.Errorf("wasm: import %d: imported globals are not supported", i)
		default:
			return fmt.Errorf("wasm: import %d: unknown kind %#x", i, kind)
		}
	}
	return nil
}

func decodeLimits(r io.ByteReader) (min uint32, max uint32, hasMax bool, err error) {
	flag, err := r.ReadByte()
	if err != nil {
		return 0, 0, false, err
	}
	min, _, err = leb128.DecodeUint32(r)
	if err != nil {
		return 0, 0, false, err
	}
	if flag == 1 {
		max, _, err = leb128.DecodeUint32(r)
		if err != nil {
			return 0, 0, false, err
		}
		hasMax = true
	}
	return min, max, hasMax, nil
}

func decodeTableType(r io.ByteReader) (*wasm.Table, error) {
	elemType, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if elemType != api.ValueTypeFuncref {
		return nil, fmt.Errorf("wasm: unsupported table element type %#x", elemType)
	}
	min, max, hasMax, err := decodeLimits(r)
	if err != nil {
		return nil, err
	}
	return &wasm.Table{Min: min, Max: max, HasMax: hasMax}, nil
}

func decodeMemoryType(r io.ByteReader) (*wasm.MemoryType, error) {
	min, max, _, err := decodeLimits(r)
	if err != nil {
		return nil, err
	}
	return &wasm.MemoryType{Min: min, Max: max}, nil
}

func (d *decoder) decodeTableSection(r *bytes.Reader) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("wasm: table section: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		t, err := decodeTableType(r)
		if err != nil {
			return fmt.Errorf("wasm: table %d: %w", i, err)
		}
		d.mod.Tables = append(d.mod.Tables, t)
	}
	return nil
}

func (d *decoder) decodeMemorySection(r *bytes.Reader) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("wasm: memory section: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		m, err := decodeMemoryType(r)
		if err != nil {
			return fmt.Errorf("wasm: memory %d: %w", i, err)
		}
		d.mod.Memory = m
	}
	return nil
}

// decodeSimpleConstExpr decodes a single constant instruction followed by
// the implicit END, the only form globals and segment offsets use: a
// *_CONST, or a GLOBAL_GET referencing an earlier global.
func decodeSimpleConstExpr(r *bytes.Reader) ([]wasm.Instruction, error) {
	op, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	var instr wasm.Instruction
	switch wasm.Opcode(op) {
	case wasm.OpcodeI32Const:
		v, _, err := leb128.DecodeInt32(r)
		if err != nil {
			return nil, err
		}
		instr = wasm.Instruction{Opcode: wasm.OpcodeI32Const, Rs: []int64{int64(v)}}
	case wasm.OpcodeI64Const:
		v, _, err := leb128.DecodeInt64(r)
		if err != nil {
			return nil, err
		}
		instr = wasm.Instruction{Opcode: wasm.OpcodeI64Const, Rs: []int64{v}}
	case wasm.OpcodeF32Const:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		instr = wasm.Instruction{Opcode: wasm.OpcodeF32Const, Rs: []int64{int64(binary.LittleEndian.Uint32(buf[:]))}}
	case wasm.OpcodeF64Const:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		instr = wasm.Instruction{Opcode: wasm.OpcodeF64Const, Rs: []int64{int64(binary.LittleEndian.Uint64(buf[:]))}}
	case wasm.OpcodeGlobalGet:
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		instr = wasm.Instruction{Opcode: wasm.OpcodeGlobalGet, Us: []uint32{idx}}
	default:
		return nil, fmt.Errorf("wasm: unsupported const expression opcode %#x", op)
	}
	end, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if wasm.Opcode(end) != wasm.OpcodeEnd {
		return nil, fmt.Errorf("wasm: const expression missing END")
	}
	return []wasm.Instruction{instr}, nil
}

func (d *decoder) decodeGlobalSection(r *bytes.Reader) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("wasm: global section: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		vt, err := decodeValueType(r)
		if err != nil {
			return fmt.Errorf("wasm: global %d type: %w", i, err)
		}
		mutFlag, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("wasm: global %d mutability: %w", i, err)
		}
		expr, err := decodeSimpleConstExpr(r)
		if err != nil {
			return fmt.Errorf("wasm: global %d init: %w", i, err)
		}
		init := evalStaticConstExpr(expr, d.mod)
		d.mod.Globals = append(d.mod.Globals, &wasm.GlobalDef{Type: vt, Mutable: mutFlag == 1, Init: init})
	}
	return nil
}

// evalStaticConstExpr resolves a global/segment initializer that cannot
// depend on host-resolved imports, since this engine only imports
// functions: a literal, or a GLOBAL_GET of an earlier (and therefore
// already-initialized) module-defined global.
func evalStaticConstExpr(expr []wasm.Instruction, mod *wasm.Module) api.Value {
	instr := expr[0]
	switch instr.Opcode {
	case wasm.OpcodeI32Const:
		return api.I32(int32(instr.Rs[0]))
	case wasm.OpcodeI64Const:
		return api.I64(instr.Rs[0])
	case wasm.OpcodeF32Const:
		return api.F32(math.Float32frombits(uint32(instr.Rs[0])))
	case wasm.OpcodeF64Const:
		return api.F64(math.Float64frombits(uint64(instr.Rs[0])))
	case wasm.OpcodeGlobalGet:
		return mod.Globals[instr.Us[0]].Init
	default:
		panic(fmt.Sprintf("wasm: invalid const expression opcode %s", instr.Opcode))
	}
}

const (
	exportKindFunc   = 0x00
	exportKindTable  = 0x01
	exportKindMemory = 0x02
	exportKindGlobal = 0x03
)

func (d *decoder) decodeExportSection(r *bytes.Reader) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("wasm: export section: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		name, err := decodeName(r)
		if err != nil {
			return fmt.Errorf("wasm: export %d name: %w", i, err)
		}
		kind, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("wasm: export %d kind: %w", i, err)
		}
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("wasm: export %d index: %w", i, err)
		}
		var ek wasm.ExportKind
		switch kind {
		case exportKindFunc:
			ek = wasm.ExportKindFunction
		case exportKindTable:
			ek = wasm.ExportKindTable
		case exportKindMemory:
			ek = wasm.ExportKindMemory
		case exportKindGlobal:
			ek = wasm.ExportKindGlobal
		default:
			return fmt.Errorf("wasm: export %d: unknown kind %#x", i, kind)
		}
		d.mod.Exports[name] = wasm.Export{Kind: ek, Index: idx}
	}
	return nil
}

// decodeElementSection supports flag 0 only: an active funcref segment
// targeting table 0, the only form a table-free-of-table.init module needs
// (table.init/table.copy are a non-goal here).
func (d *decoder) decodeElementSection(r *bytes.Reader) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("wasm: element section: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		flag, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("wasm: element %d flag: %w", i, err)
		}
		if flag != 0 {
			return fmt.Errorf("wasm: element %d: unsupported flag %d", i, flag)
		}
		expr, err := decodeSimpleConstExpr(r)
		if err != nil {
			return fmt.Errorf("wasm: element %d offset: %w", i, err)
		}
		offset := evalStaticConstExpr(expr, d.mod).AsU32()
		funcs, err := decodeIndexVector(r)
		if err != nil {
			return fmt.Errorf("wasm: element %d funcs: %w", i, err)
		}
		if len(d.mod.Tables) == 0 {
			return fmt.Errorf("wasm: element %d: no table to initialize", i)
		}
		t := d.mod.Tables[0]
		need := int(offset) + len(funcs)
		if need > len(t.Elements) {
			grown := make([]uint32, need)
			copy(grown, t.Elements)
			t.Elements = grown
			grownSet := make([]bool, need)
			copy(grownSet, t.ElementSet)
			t.ElementSet = grownSet
		}
		for j, fn := range funcs {
			t.Elements[int(offset)+j] = fn
			t.ElementSet[int(offset)+j] = true
		}
	}
	return nil
}

func (d *decoder) decodeDataSection(r *bytes.Reader) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("wasm: data section: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		flag, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("wasm: data %d flag: %w", i, err)
		}
		seg := wasm.DataSegment{}
		switch flag {
		case 0:
			expr, err := decodeSimpleConstExpr(r)
			if err != nil {
				return fmt.Errorf("wasm: data %d offset: %w", i, err)
			}
			seg.OffsetExpr = expr
		case 1:
			seg.Passive = true
		case 2:
			memIdx, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return fmt.Errorf("wasm: data %d memory index: %w", i, err)
			}
			seg.MemoryIndex = memIdx
			expr, err := decodeSimpleConstExpr(r)
			if err != nil {
				return fmt.Errorf("wasm: data %d offset: %w", i, err)
			}
			seg.OffsetExpr = expr
		default:
			return fmt.Errorf("wasm: data %d: unsupported flag %d", i, flag)
		}
		n, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("wasm: data %d size: %w", i, err)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("wasm: data %d bytes: %w", i, err)
		}
		seg.Bytes = buf
		d.mod.DataSegments = append(d.mod.DataSegments, seg)
	}
	return nil
}
