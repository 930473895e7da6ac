package wasm

// Op identifies an instruction's operation. Memory instructions carry an
// Offset (alignment is parsed but unused at execution time, same as the
// original interpreter).
type Op uint8

const (
	OpI32Const Op = iota
	OpI32Add
	OpI32Sub
	OpI32Mul
	OpI32DivS
	OpI32RemS
	OpI32And
	OpI32Or
	OpI32Xor
	OpI32Shl
	OpI32ShrS
	OpI32ShrU
	OpI32Eq
	OpI32Ne
	OpI32LtS
	OpI32GtS
	OpI32LeS
	OpI32GeS
	OpI32LtU
	OpI32GtU
	OpI32LeU
	OpI32GeU

	OpI64Const
	OpI64Add
	OpI64Sub
	OpI64Mul
	OpI64DivS
	OpI64RemS
	OpI64And
	OpI64Or
	OpI64Xor
	OpI64Shl
	OpI64ShrS
	OpI64ShrU
	OpI64Eq
	OpI64Ne
	OpI64LtS
	OpI64GtS
	OpI64LeS
	OpI64GeS
	OpI64LtU
	OpI64GtU
	OpI64LeU
	OpI64GeU

	OpF32Const
	OpF32Add
	OpF32Sub
	OpF32Mul
	OpF32Div
	OpF32Eq
	OpF32Ne
	OpF32Lt
	OpF32Gt
	OpF32Le
	OpF32Ge

	OpF64Const
	OpF64Add
	OpF64Sub
	OpF64Mul
	OpF64Div
	OpF64Eq
	OpF64Ne
	OpF64Lt
	OpF64Gt
	OpF64Le
	OpF64Ge

	OpI32WrapI64
	OpI64ExtendI32S
	OpI64ExtendI32U
	OpF32DemoteF64
	OpF64PromoteF32
	OpI32TruncF32S
	OpI32TruncF64S
	OpI64TruncF32S
	OpI64TruncF64S
	OpF32ConvertI32S
	OpF32ConvertI64S
	OpF64ConvertI32S
	OpF64ConvertI64S

	OpI32Load
	OpI32Store
	OpI32Load8S
	OpI32Load8U
	OpI32Store8
	OpI32Load16S
	OpI32Load16U
	OpI32Store16
	OpI64Load
	OpI64Store
	OpF32Load
	OpF32Store
	OpF64Load
	OpF64Store
	OpMemoryGrow
	OpMemorySize

	OpLocalGet
	OpLocalSet
	OpLocalTee
	OpGlobalGet
	OpGlobalSet

	OpCall
	OpReturn
	OpDrop
	OpNop
	OpUnreachable

	OpIf
	OpElse
	OpBr
	OpBrIf
	OpBrTable
	OpLoop
	OpBlock
	OpEnd
)

// Instr is one parsed instruction. Only the fields relevant to its Op are
// populated; the rest are zero.
type Instr struct {
	Op Op

	// Const payloads.
	I32Val int32
	I64Val int64
	F32Val uint32
	F64Val uint64

	// Memory access.
	Offset uint32

	// Local/global/call/branch index operands.
	Index uint32

	// BrTable. Table is parsed and retained but never consulted — the
	// device runtime's own interpreter only ever branches to Default,
	// and this reimplementation preserves that simplification exactly
	// rather than silently "fixing" it.
	Table   []uint32
	Default uint32
}

// BlockKind distinguishes the three label-producing instructions.
type BlockKind uint8

const (
	BlockPlain BlockKind = iota
	BlockLoop
	BlockIf
)

// Function is a parsed, ready-to-run function body.
type Function struct {
	NumParams  int
	NumLocals  int // including params, at index 0..NumLocals-1
	Locals     []Value
	Body       []Instr
	ResultKind *ValueKind // nil if the function returns nothing
}

// HostFunction is one of the 7 fixed ABI slots a module may import
// (spec.md §4.4.6): print, timestamp, gpio_read, gpio_write, uart_send,
// uart_receive, sensor_read. It receives the running Instance so it can
// read/write linear memory for pointer-style arguments.
type HostFunction func(inst *Instance, args []Value) (*Value, error)

// Module is a parsed, bounds-checked WASM module ready to be instantiated.
type Module struct {
	Functions        []Function
	ImportedFuncs    int // functions 0..ImportedFuncs-1 are host imports
	Globals          []Value
	MemoryPages      int
}
