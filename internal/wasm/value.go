package wasm

import "math"

// ValueKind tags which WASM numeric type a Value holds.
type ValueKind uint8

const (
	KindI32 ValueKind = iota
	KindI64
	KindF32
	KindF64
)

func (k ValueKind) String() string {
	switch k {
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	default:
		return "unknown"
	}
}

// Value holds one WASM operand. Floats are carried as raw bit patterns
// (spec.md §4.4.3) so NaN payloads and signed zero survive a stack
// round-trip exactly, matching wasm_interpreter.rs's choice to store
// F32Const/F64Const as bits rather than as native floats.
type Value struct {
	Kind ValueKind
	I32  int32
	I64  int64
	bits uint64 // raw bits for F32 (low 32) / F64 (all 64)
}

func I32(v int32) Value { return Value{Kind: KindI32, I32: v} }
func I64(v int64) Value { return Value{Kind: KindI64, I64: v} }

func F32(v float32) Value { return Value{Kind: KindF32, bits: uint64(math.Float32bits(v))} }
func F64(v float64) Value { return Value{Kind: KindF64, bits: math.Float64bits(v)} }

func F32Bits(bits uint32) Value { return Value{Kind: KindF32, bits: uint64(bits)} }
func F64Bits(bits uint64) Value { return Value{Kind: KindF64, bits: bits} }

func (v Value) AsF32() float32 { return math.Float32frombits(uint32(v.bits)) }
func (v Value) AsF64() float64 { return math.Float64frombits(v.bits) }
func (v Value) F32Bits() uint32 { return uint32(v.bits) }
func (v Value) F64Bits() uint64 { return v.bits }

// IsZero reports whether v is the WASM notion of false (an i32 equal to 0).
// Only i32 values are used as branch conditions in this instruction set.
func (v Value) IsZero() bool {
	return v.Kind == KindI32 && v.I32 == 0
}
