package wasm

import "encoding/binary"

// PageSize is the fixed 64 KiB unit linear memory is sized and grown in.
const PageSize = 65536

// LinearMemory is the default api.Memory implementation: a single
// contiguous byte slice sized in pages, with an optional maximum and the
// bulk-memory copy/init operations. It is not safe for concurrent use,
// matching the Machine's single-threaded execution model (§5).
type LinearMemory struct {
	bytes    []byte
	maxPages uint32

	// dataSegments backs MEMORY_INIT/DATA_DROP: index i is the passive data
	// segment with that index, or nil if it has never existed or has been
	// dropped. DATA_DROP sets the entry to nil; InitPassiveSegment then
	// naturally bounds-traps against its zero length.
	dataSegments [][]byte
}

// NewLinearMemory returns a LinearMemory of minPages pages, allowed to grow
// up to maxPages, or without a page limit when maxPages is 0.
func NewLinearMemory(minPages, maxPages uint32) *LinearMemory {
	return &LinearMemory{
		bytes:    make([]byte, uint64(minPages)*PageSize),
		maxPages: maxPages,
	}
}

// SetDataSegments installs the module's passive data segments, indexed by
// segment index, for later MEMORY_INIT/DATA_DROP use.
func (m *LinearMemory) SetDataSegments(segments [][]byte) { m.dataSegments = segments }

func (m *LinearMemory) Size() uint32 { return uint32(len(m.bytes) / PageSize) }

func (m *LinearMemory) Grow(deltaPages uint32) (uint32, bool) {
	prev := m.Size()
	next := uint64(prev) + uint64(deltaPages)
	if m.maxPages != 0 && next > uint64(m.maxPages) {
		return 0, false
	}
	if next > 0xffffffff {
		return 0, false
	}
	grown := make([]byte, next*PageSize)
	copy(grown, m.bytes)
	m.bytes = grown
	return prev, true
}

func (m *LinearMemory) bounds(offset, n uint32) bool {
	end := uint64(offset) + uint64(n)
	return end <= uint64(len(m.bytes))
}

func (m *LinearMemory) ReadByte(offset uint32) (byte, bool) {
	if !m.bounds(offset, 1) {
		return 0, false
	}
	return m.bytes[offset], true
}

func (m *LinearMemory) ReadUint16Le(offset uint32) (uint16, bool) {
	if !m.bounds(offset, 2) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(m.bytes[offset:]), true
}

func (m *LinearMemory) ReadUint32Le(offset uint32) (uint32, bool) {
	if !m.bounds(offset, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.bytes[offset:]), true
}

func (m *LinearMemory) ReadUint64Le(offset uint32) (uint64, bool) {
	if !m.bounds(offset, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.bytes[offset:]), true
}

func (m *LinearMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	if !m.bounds(offset, byteCount) {
		return nil, false
	}
	return m.bytes[offset : offset+byteCount], true
}

func (m *LinearMemory) WriteByte(offset uint32, v byte) bool {
	if !m.bounds(offset, 1) {
		return false
	}
	m.bytes[offset] = v
	return true
}

func (m *LinearMemory) WriteUint16Le(offset uint32, v uint16) bool {
	if !m.bounds(offset, 2) {
		return false
	}
	binary.LittleEndian.PutUint16(m.bytes[offset:], v)
	return true
}

func (m *LinearMemory) WriteUint32Le(offset uint32, v uint32) bool {
	if !m.bounds(offset, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.bytes[offset:], v)
	return true
}

func (m *LinearMemory) WriteUint64Le(offset uint32, v uint64) bool {
	if !m.bounds(offset, 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.bytes[offset:], v)
	return true
}

func (m *LinearMemory) Write(offset uint32, v []byte) bool {
	if !m.bounds(offset, uint32(len(v))) {
		return false
	}
	copy(m.bytes[offset:], v)
	return true
}

func (m *LinearMemory) Copy(dst, src, byteCount uint32) bool {
	if !m.bounds(dst, byteCount) || !m.bounds(src, byteCount) {
		return false
	}
	// copy() already handles overlapping ranges correctly for both
	// directions, matching MEMORY_COPY's "as if byte-by-byte" semantics.
	copy(m.bytes[dst:dst+byteCount], m.bytes[src:src+byteCount])
	return true
}

func (m *LinearMemory) Fill(dst, byteCount uint32, value byte) bool {
	if !m.bounds(dst, byteCount) {
		return false
	}
	region := m.bytes[dst : dst+byteCount]
	for i := range region {
		region[i] = value
	}
	return true
}

func (m *LinearMemory) InitPassiveSegment(segmentIndex uint32, dst, segOffset, byteCount uint32) bool {
	if int(segmentIndex) >= len(m.dataSegments) {
		return false
	}
	seg := m.dataSegments[segmentIndex]
	if uint64(segOffset)+uint64(byteCount) > uint64(len(seg)) {
		return false
	}
	if !m.bounds(dst, byteCount) {
		return false
	}
	copy(m.bytes[dst:dst+byteCount], seg[segOffset:segOffset+byteCount])
	return true
}

// DropDataSegment implements DATA_DROP: the segment becomes permanently
// unavailable to MEMORY_INIT. Setting it to nil is enough; the existing
// InitPassiveSegment bounds check against len(seg)==0 then traps any
// subsequent non-empty MEMORY_INIT against it on its own.
func (m *LinearMemory) DropDataSegment(segmentIndex uint32) {
	if int(segmentIndex) < len(m.dataSegments) {
		m.dataSegments[segmentIndex] = nil
	}
}
