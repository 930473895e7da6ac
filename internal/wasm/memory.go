package wasm

import "encoding/binary"

// Memory is a single bounded linear memory page, matching
// wasm_interpreter.rs's WasmMemory: a fixed 64KB byte slice with
// bounds-checked accessors and a memory.grow that always reports failure.
type Memory struct {
	data []byte
}

// NewMemory allocates a memory of initialPages pages (capped at one page —
// this interpreter never grows beyond the device's fixed budget).
func NewMemory(initialPages int, lim Limits) *Memory {
	size := initialPages * lim.MemoryPageSize
	if size > lim.MaxMemoryBytes || size <= 0 {
		size = lim.MaxMemoryBytes
	}
	return &Memory{data: make([]byte, size)}
}

func (m *Memory) Len() int { return len(m.data) }

func (m *Memory) ReadU8(addr uint32) (byte, bool) {
	if int(addr) >= len(m.data) {
		return 0, false
	}
	return m.data[addr], true
}

func (m *Memory) WriteU8(addr uint32, v byte) bool {
	if int(addr) >= len(m.data) {
		return false
	}
	m.data[addr] = v
	return true
}

func (m *Memory) ReadI32(addr uint32) (int32, bool) {
	if int(addr)+4 > len(m.data) {
		return 0, false
	}
	return int32(binary.LittleEndian.Uint32(m.data[addr:])), true
}

func (m *Memory) WriteI32(addr uint32, v int32) bool {
	if int(addr)+4 > len(m.data) {
		return false
	}
	binary.LittleEndian.PutUint32(m.data[addr:], uint32(v))
	return true
}

func (m *Memory) ReadI64(addr uint32) (int64, bool) {
	if int(addr)+8 > len(m.data) {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(m.data[addr:])), true
}

func (m *Memory) WriteI64(addr uint32, v int64) bool {
	if int(addr)+8 > len(m.data) {
		return false
	}
	binary.LittleEndian.PutUint64(m.data[addr:], uint64(v))
	return true
}

func (m *Memory) ReadU16(addr uint32) (uint16, bool) {
	if int(addr)+2 > len(m.data) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(m.data[addr:]), true
}

func (m *Memory) WriteU16(addr uint32, v uint16) bool {
	if int(addr)+2 > len(m.data) {
		return false
	}
	binary.LittleEndian.PutUint16(m.data[addr:], v)
	return true
}

func (m *Memory) ReadF32(addr uint32) (uint32, bool) {
	if int(addr)+4 > len(m.data) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.data[addr:]), true
}

func (m *Memory) WriteF32(addr uint32, bits uint32) bool {
	if int(addr)+4 > len(m.data) {
		return false
	}
	binary.LittleEndian.PutUint32(m.data[addr:], bits)
	return true
}

func (m *Memory) ReadF64(addr uint32) (uint64, bool) {
	if int(addr)+8 > len(m.data) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.data[addr:]), true
}

func (m *Memory) WriteF64(addr uint32, bits uint64) bool {
	if int(addr)+8 > len(m.data) {
		return false
	}
	binary.LittleEndian.PutUint64(m.data[addr:], bits)
	return true
}

// Grow always reports failure: the device has no spare RAM to extend
// memory past its single fixed page, matching wasm_interpreter.rs's
// memory.grow behavior.
func (m *Memory) Grow(_ uint32) int32 { return -1 }

func (m *Memory) SizePages(lim Limits) int32 {
	return int32(len(m.data) / lim.MemoryPageSize)
}
