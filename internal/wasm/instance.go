package wasm

import (
	"fmt"
	"log/slog"
	"math"
)

type label struct {
	kind   BlockKind
	startPC int
	endPC   int
}

// Instance is one loaded, instantiated module: memory, globals, the
// value/label stacks, and the registered host functions. It mirrors
// wasm_interpreter.rs's WasmInstance: fixed-capacity stacks, a single
// memory page, and a 7-slot host function table.
type Instance struct {
	Module *Module
	Memory *Memory
	Limits Limits

	globals []Value
	stack   []Value
	host    [7]HostFunction

	logger *slog.Logger
}

// HostSlot names the 7 fixed ABI imports a module may call, matching
// wasm_interpreter.rs's register_host_function indices 0-6.
type HostSlot int

const (
	HostPrint HostSlot = iota
	HostGetTimestamp
	HostGPIORead
	HostGPIOWrite
	HostUARTSend
	HostUARTReceive
	HostSensorRead
)

// hostArity gives each of the 7 fixed slots its argument count. The
// original firmware only special-cases print (ptr, len) and
// get_timestamp (addr), defaulting every other slot to zero args
// ("Unknown, try with no args") — a gap the original_source's own
// hardware host functions (gpio/uart/sensor) make it clear is a stopgap,
// so this runtime fills in the arities those functions actually need.
var hostArity = [7]int{2, 1, 1, 2, 2, 2, 1}

// NewInstance instantiates mod with the given limits and logger (nil uses
// slog.Default()). Host slots start unregistered; callers wire concrete
// hardware/simulated behavior via RegisterHost before Run.
func NewInstance(mod *Module, lim Limits, logger *slog.Logger) *Instance {
	if logger == nil {
		logger = slog.Default()
	}
	return &Instance{
		Module:  mod,
		Memory:  NewMemory(mod.MemoryPages, lim),
		Limits:  lim,
		globals: append([]Value(nil), mod.Globals...),
		logger:  logger,
	}
}

// RegisterHost installs the implementation for one of the 7 fixed slots.
func (inst *Instance) RegisterHost(slot HostSlot, fn HostFunction) {
	inst.host[slot] = fn
}

// Run executes the module's entry point, function index 0 past any
// imports (i.e. the first locally defined function), matching the device
// runtime's convention of treating function 0 as main.
func (inst *Instance) Run() error {
	if len(inst.Module.Functions) == 0 {
		return nil
	}
	return inst.callFunction(inst.Module.ImportedFuncs, 0)
}

// CallExported runs funcIndex directly, for tests and for host-triggered
// re-entry (e.g. a periodic callback).
func (inst *Instance) CallExported(funcIndex int) error {
	return inst.callFunction(funcIndex, 0)
}

func (inst *Instance) callFunction(funcIndex int, depth int) error {
	if depth > inst.Limits.MaxRecursionDepth {
		return errAbort("maximum recursion depth exceeded")
	}

	localIndex := funcIndex - inst.Module.ImportedFuncs
	if localIndex < 0 || localIndex >= len(inst.Module.Functions) {
		return errAbort("function index out of bounds")
	}
	fn := &inst.Module.Functions[localIndex]
	if len(fn.Body) == 0 {
		return nil
	}

	locals := append([]Value(nil), fn.Locals...)
	blocks, err := scanBlocks(fn.Body, inst.Limits)
	if err != nil {
		return err
	}

	var labels []label
	pc := 0
	instructionCount := 0
	pcVisits := make(map[int]int)

	for pc < len(fn.Body) {
		instructionCount++
		if instructionCount > inst.Limits.MaxInstructionCount {
			return errAbort("maximum instruction count exceeded (possible infinite loop)")
		}

		pcVisits[pc]++
		if pcVisits[pc] > inst.Limits.MaxPCVisits {
			return errAbort("infinite loop detected: program counter visited too many times")
		}

		instr := fn.Body[pc]
		advance := true

		if (instr.Op == OpBlock || instr.Op == OpLoop || instr.Op == OpIf) && len(labels) >= inst.Limits.LabelStackCap {
			return errAbort("label stack overflow")
		}

		switch instr.Op {
		case OpI32Const:
			if err := inst.push(I32(instr.I32Val)); err != nil {
				return err
			}
		case OpI64Const:
			if err := inst.push(I64(instr.I64Val)); err != nil {
				return err
			}
		case OpF32Const:
			if err := inst.push(F32Bits(instr.F32Val)); err != nil {
				return err
			}
		case OpF64Const:
			if err := inst.push(F64Bits(instr.F64Val)); err != nil {
				return err
			}

		case OpI32Add, OpI32Sub, OpI32Mul, OpI32DivS, OpI32RemS, OpI32And, OpI32Or, OpI32Xor,
			OpI32Shl, OpI32ShrS, OpI32ShrU, OpI32Eq, OpI32Ne, OpI32LtS, OpI32GtS, OpI32LeS,
			OpI32GeS, OpI32LtU, OpI32GtU, OpI32LeU, OpI32GeU:
			if err := inst.binI32(instr.Op); err != nil {
				return err
			}
		case OpI64Add, OpI64Sub, OpI64Mul, OpI64DivS, OpI64RemS, OpI64And, OpI64Or, OpI64Xor,
			OpI64Shl, OpI64ShrS, OpI64ShrU, OpI64Eq, OpI64Ne, OpI64LtS, OpI64GtS, OpI64LeS,
			OpI64GeS, OpI64LtU, OpI64GtU, OpI64LeU, OpI64GeU:
			if err := inst.binI64(instr.Op); err != nil {
				return err
			}
		case OpF32Add, OpF32Sub, OpF32Mul, OpF32Div, OpF32Eq, OpF32Ne, OpF32Lt, OpF32Gt, OpF32Le, OpF32Ge:
			if err := inst.binF32(instr.Op); err != nil {
				return err
			}
		case OpF64Add, OpF64Sub, OpF64Mul, OpF64Div, OpF64Eq, OpF64Ne, OpF64Lt, OpF64Gt, OpF64Le, OpF64Ge:
			if err := inst.binF64(instr.Op); err != nil {
				return err
			}

		case OpI32WrapI64, OpI64ExtendI32S, OpI64ExtendI32U, OpF32DemoteF64, OpF64PromoteF32,
			OpI32TruncF32S, OpI32TruncF64S, OpI64TruncF32S, OpI64TruncF64S,
			OpF32ConvertI32S, OpF32ConvertI64S, OpF64ConvertI32S, OpF64ConvertI64S:
			if err := inst.convert(instr.Op); err != nil {
				return err
			}

		case OpI32Load, OpI64Load, OpF32Load, OpF64Load, OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U:
			if err := inst.load(instr); err != nil {
				return err
			}
		case OpI32Store, OpI64Store, OpF32Store, OpF64Store, OpI32Store8, OpI32Store16:
			if err := inst.store(instr); err != nil {
				return err
			}
		case OpMemoryGrow:
			n, err := inst.popI32()
			if err != nil {
				return err
			}
			if err := inst.push(I32(inst.Memory.Grow(uint32(n)))); err != nil {
				return err
			}
		case OpMemorySize:
			if err := inst.push(I32(inst.Memory.SizePages(inst.Limits))); err != nil {
				return err
			}

		case OpLocalGet:
			if int(instr.Index) >= len(locals) {
				return errAbort("local index out of bounds")
			}
			if err := inst.push(locals[instr.Index]); err != nil {
				return err
			}
		case OpLocalSet:
			v, err := inst.pop()
			if err != nil {
				return err
			}
			if int(instr.Index) >= len(locals) {
				return errAbort("local index out of bounds")
			}
			locals[instr.Index] = v
		case OpLocalTee:
			v, err := inst.pop()
			if err != nil {
				return err
			}
			if int(instr.Index) >= len(locals) {
				return errAbort("local index out of bounds")
			}
			locals[instr.Index] = v
			if err := inst.push(v); err != nil {
				return err
			}
		case OpGlobalGet:
			if int(instr.Index) >= len(inst.globals) {
				return errAbort("global index out of bounds")
			}
			if err := inst.push(inst.globals[instr.Index]); err != nil {
				return err
			}
		case OpGlobalSet:
			v, err := inst.pop()
			if err != nil {
				return err
			}
			if int(instr.Index) >= len(inst.globals) {
				return errAbort("global index out of bounds")
			}
			inst.globals[instr.Index] = v

		case OpCall:
			if err := inst.call(instr.Index, depth); err != nil {
				return err
			}

		case OpReturn:
			return nil
		case OpDrop:
			if _, err := inst.pop(); err != nil {
				return err
			}
		case OpNop:
		case OpUnreachable:
			return errAbort("unreachable instruction executed")

		case OpIf:
			cond, err := inst.pop()
			if err != nil {
				return err
			}
			if cond.IsZero() {
				end, elsePC, ok := blocks.elseOrEnd(pc)
				if !ok {
					return errAbort("malformed if block")
				}
				if elsePC >= 0 {
					pc = elsePC
				} else {
					pc = end
				}
			} else {
				end, ok := blocks.endOf(pc)
				if !ok {
					return errAbort("malformed if block")
				}
				labels = append(labels, label{kind: BlockIf, startPC: pc, endPC: end})
			}
		case OpElse:
			if n := len(labels); n > 0 && labels[n-1].kind == BlockIf {
				pc = labels[n-1].endPC
				labels = labels[:n-1]
				advance = false
			}
		case OpBlock:
			end, ok := blocks.endOf(pc)
			if !ok {
				return errAbort("malformed block")
			}
			labels = append(labels, label{kind: BlockPlain, startPC: pc, endPC: end})
		case OpLoop:
			end, ok := blocks.endOf(pc)
			if !ok {
				return errAbort("malformed loop")
			}
			labels = append(labels, label{kind: BlockLoop, startPC: pc, endPC: end})
		case OpEnd:
			if n := len(labels); n > 0 {
				top := labels[n-1]
				if top.kind == BlockLoop {
					if instructionCount > inst.Limits.MaxInstructionCount/2 {
						return errAbort("infinite loop detected in wasm code")
					}
					// The loop's label is still on the stack, so re-enter
					// the body just after the Loop op instead of re-running it.
					pc = top.startPC + 1
					advance = false
					continue
				}
				labels = labels[:n-1]
			}
		case OpBr:
			newPC, newLabels, ok := branch(labels, int(instr.Index))
			if !ok {
				return nil
			}
			pc, labels = newPC, newLabels
			advance = false
		case OpBrIf:
			cond, err := inst.pop()
			if err != nil {
				return err
			}
			if !cond.IsZero() {
				newPC, newLabels, ok := branch(labels, int(instr.Index))
				if !ok {
					return nil
				}
				pc, labels = newPC, newLabels
				advance = false
			}
		case OpBrTable:
			if _, err := inst.popI32(); err != nil { // index value; default-only dispatch, see instruction.go
				return err
			}
			newPC, newLabels, ok := branch(labels, int(instr.Default))
			if !ok {
				return nil
			}
			pc, labels = newPC, newLabels
			advance = false

		default:
			return fmt.Errorf("wasm: unhandled instruction op %v", instr.Op)
		}

		if advance {
			pc++
		}
	}

	return nil
}

// branch pops label frames up to and including targetDepth and returns the
// program counter to resume at (the target label's end), matching
// Br/BrIf's "pop frames up to target, jump to end_pc" behavior. ok=false
// means the branch escapes the function entirely (branch to function end).
func branch(labels []label, targetDepth int) (int, []label, bool) {
	if targetDepth >= len(labels) {
		return 0, nil, false
	}
	idx := len(labels) - 1 - targetDepth
	target := labels[idx]
	return target.endPC, labels[:idx], true
}

func (inst *Instance) call(funcIndex uint32, depth int) error {
	if int(funcIndex) < inst.Module.ImportedFuncs {
		return inst.callHost(int(funcIndex))
	}
	return inst.callFunction(int(funcIndex), depth+1)
}

func (inst *Instance) callHost(hostIndex int) error {
	if hostIndex < 0 || hostIndex >= len(inst.host) {
		return errAbort("host function not found")
	}
	fn := inst.host[hostIndex]
	if fn == nil {
		return errAbort("host function not registered")
	}

	arity := 0
	if hostIndex < len(hostArity) {
		arity = hostArity[hostIndex]
	}
	args := make([]Value, arity)
	for i := arity - 1; i >= 0; i-- {
		v, err := inst.pop()
		if err != nil {
			return err
		}
		args[i] = v
	}

	result, err := fn(inst, args)
	if err != nil {
		return err
	}
	if result != nil {
		return inst.push(*result)
	}
	return nil
}

func (inst *Instance) push(v Value) error {
	if len(inst.stack) >= inst.Limits.ValueStackCap {
		return errAbort("stack overflow")
	}
	inst.stack = append(inst.stack, v)
	return nil
}

func (inst *Instance) pop() (Value, error) {
	n := len(inst.stack)
	if n == 0 {
		return Value{}, errAbort("stack underflow")
	}
	v := inst.stack[n-1]
	inst.stack = inst.stack[:n-1]
	return v, nil
}

func (inst *Instance) popI32() (int32, error) {
	v, err := inst.pop()
	if err != nil {
		return 0, err
	}
	if v.Kind != KindI32 {
		return 0, errAbort("type mismatch, expected i32")
	}
	return v.I32, nil
}

func (inst *Instance) memAddr(offset uint32) (uint32, error) {
	addr, err := inst.popI32()
	if err != nil {
		return 0, err
	}
	return uint32(addr) + offset, nil
}

func (inst *Instance) load(instr Instr) error {
	addr, err := inst.memAddr(instr.Offset)
	if err != nil {
		return err
	}
	switch instr.Op {
	case OpI32Load:
		v, ok := inst.Memory.ReadI32(addr)
		if !ok {
			return errAbort("memory access out of bounds")
		}
		return inst.push(I32(v))
	case OpI64Load:
		v, ok := inst.Memory.ReadI64(addr)
		if !ok {
			return errAbort("memory access out of bounds")
		}
		return inst.push(I64(v))
	case OpF32Load:
		v, ok := inst.Memory.ReadF32(addr)
		if !ok {
			return errAbort("memory access out of bounds")
		}
		return inst.push(F32Bits(v))
	case OpF64Load:
		v, ok := inst.Memory.ReadF64(addr)
		if !ok {
			return errAbort("memory access out of bounds")
		}
		return inst.push(F64Bits(v))
	case OpI32Load8S:
		b, ok := inst.Memory.ReadU8(addr)
		if !ok {
			return errAbort("memory access out of bounds")
		}
		return inst.push(I32(int32(int8(b))))
	case OpI32Load8U:
		b, ok := inst.Memory.ReadU8(addr)
		if !ok {
			return errAbort("memory access out of bounds")
		}
		return inst.push(I32(int32(b)))
	case OpI32Load16S:
		u, ok := inst.Memory.ReadU16(addr)
		if !ok {
			return errAbort("memory access out of bounds")
		}
		return inst.push(I32(int32(int16(u))))
	case OpI32Load16U:
		u, ok := inst.Memory.ReadU16(addr)
		if !ok {
			return errAbort("memory access out of bounds")
		}
		return inst.push(I32(int32(u)))
	}
	return fmt.Errorf("wasm: unhandled load op %v", instr.Op)
}

func (inst *Instance) store(instr Instr) error {
	switch instr.Op {
	case OpI32Store:
		v, err := inst.pop()
		if err != nil {
			return err
		}
		addr, err := inst.memAddr(instr.Offset)
		if err != nil {
			return err
		}
		if !inst.Memory.WriteI32(addr, v.I32) {
			return errAbort("memory access out of bounds")
		}
	case OpI64Store:
		v, err := inst.pop()
		if err != nil {
			return err
		}
		addr, err := inst.memAddr(instr.Offset)
		if err != nil {
			return err
		}
		if !inst.Memory.WriteI64(addr, v.I64) {
			return errAbort("memory access out of bounds")
		}
	case OpF32Store:
		v, err := inst.pop()
		if err != nil {
			return err
		}
		addr, err := inst.memAddr(instr.Offset)
		if err != nil {
			return err
		}
		if !inst.Memory.WriteF32(addr, v.F32Bits()) {
			return errAbort("memory access out of bounds")
		}
	case OpF64Store:
		v, err := inst.pop()
		if err != nil {
			return err
		}
		addr, err := inst.memAddr(instr.Offset)
		if err != nil {
			return err
		}
		if !inst.Memory.WriteF64(addr, v.F64Bits()) {
			return errAbort("memory access out of bounds")
		}
	case OpI32Store8:
		v, err := inst.pop()
		if err != nil {
			return err
		}
		addr, err := inst.memAddr(instr.Offset)
		if err != nil {
			return err
		}
		if !inst.Memory.WriteU8(addr, byte(v.I32)) {
			return errAbort("memory access out of bounds")
		}
	case OpI32Store16:
		v, err := inst.pop()
		if err != nil {
			return err
		}
		addr, err := inst.memAddr(instr.Offset)
		if err != nil {
			return err
		}
		if !inst.Memory.WriteU16(addr, uint16(v.I32)) {
			return errAbort("memory access out of bounds")
		}
	default:
		return fmt.Errorf("wasm: unhandled store op %v", instr.Op)
	}
	return nil
}

func (inst *Instance) binI32(op Op) error {
	b, err := inst.pop()
	if err != nil {
		return err
	}
	a, err := inst.pop()
	if err != nil {
		return err
	}
	if a.Kind != KindI32 || b.Kind != KindI32 {
		return errAbort("type mismatch in i32 operation")
	}
	x, y := a.I32, b.I32
	switch op {
	case OpI32Add:
		return inst.push(I32(x + y))
	case OpI32Sub:
		return inst.push(I32(x - y))
	case OpI32Mul:
		return inst.push(I32(x * y))
	case OpI32DivS:
		if y == 0 {
			return errAbort("division by zero")
		}
		if x == math.MinInt32 && y == -1 {
			return errAbort("integer overflow in division")
		}
		return inst.push(I32(x / y))
	case OpI32RemS:
		if y == 0 {
			return errAbort("division by zero")
		}
		return inst.push(I32(x % y))
	case OpI32And:
		return inst.push(I32(x & y))
	case OpI32Or:
		return inst.push(I32(x | y))
	case OpI32Xor:
		return inst.push(I32(x ^ y))
	case OpI32Shl:
		return inst.push(I32(x << (uint32(y) & 31)))
	case OpI32ShrS:
		return inst.push(I32(x >> (uint32(y) & 31)))
	case OpI32ShrU:
		return inst.push(I32(int32(uint32(x) >> (uint32(y) & 31))))
	case OpI32Eq:
		return inst.push(boolI32(x == y))
	case OpI32Ne:
		return inst.push(boolI32(x != y))
	case OpI32LtS:
		return inst.push(boolI32(x < y))
	case OpI32GtS:
		return inst.push(boolI32(x > y))
	case OpI32LeS:
		return inst.push(boolI32(x <= y))
	case OpI32GeS:
		return inst.push(boolI32(x >= y))
	case OpI32LtU:
		return inst.push(boolI32(uint32(x) < uint32(y)))
	case OpI32GtU:
		return inst.push(boolI32(uint32(x) > uint32(y)))
	case OpI32LeU:
		return inst.push(boolI32(uint32(x) <= uint32(y)))
	case OpI32GeU:
		return inst.push(boolI32(uint32(x) >= uint32(y)))
	}
	return fmt.Errorf("wasm: unhandled i32 op %v", op)
}

func (inst *Instance) binI64(op Op) error {
	b, err := inst.pop()
	if err != nil {
		return err
	}
	a, err := inst.pop()
	if err != nil {
		return err
	}
	if a.Kind != KindI64 || b.Kind != KindI64 {
		return errAbort("type mismatch in i64 operation")
	}
	x, y := a.I64, b.I64
	switch op {
	case OpI64Add:
		return inst.push(I64(x + y))
	case OpI64Sub:
		return inst.push(I64(x - y))
	case OpI64Mul:
		return inst.push(I64(x * y))
	case OpI64DivS:
		if y == 0 {
			return errAbort("division by zero")
		}
		if x == math.MinInt64 && y == -1 {
			return errAbort("integer overflow in division")
		}
		return inst.push(I64(x / y))
	case OpI64RemS:
		if y == 0 {
			return errAbort("division by zero")
		}
		return inst.push(I64(x % y))
	case OpI64And:
		return inst.push(I64(x & y))
	case OpI64Or:
		return inst.push(I64(x | y))
	case OpI64Xor:
		return inst.push(I64(x ^ y))
	case OpI64Shl:
		return inst.push(I64(x << (uint64(y) & 63)))
	case OpI64ShrS:
		return inst.push(I64(x >> (uint64(y) & 63)))
	case OpI64ShrU:
		return inst.push(I64(int64(uint64(x) >> (uint64(y) & 63))))
	case OpI64Eq:
		return inst.push(boolI32(x == y))
	case OpI64Ne:
		return inst.push(boolI32(x != y))
	case OpI64LtS:
		return inst.push(boolI32(x < y))
	case OpI64GtS:
		return inst.push(boolI32(x > y))
	case OpI64LeS:
		return inst.push(boolI32(x <= y))
	case OpI64GeS:
		return inst.push(boolI32(x >= y))
	case OpI64LtU:
		return inst.push(boolI32(uint64(x) < uint64(y)))
	case OpI64GtU:
		return inst.push(boolI32(uint64(x) > uint64(y)))
	case OpI64LeU:
		return inst.push(boolI32(uint64(x) <= uint64(y)))
	case OpI64GeU:
		return inst.push(boolI32(uint64(x) >= uint64(y)))
	}
	return fmt.Errorf("wasm: unhandled i64 op %v", op)
}

func (inst *Instance) binF32(op Op) error {
	b, err := inst.pop()
	if err != nil {
		return err
	}
	a, err := inst.pop()
	if err != nil {
		return err
	}
	x, y := a.AsF32(), b.AsF32()
	switch op {
	case OpF32Add:
		return inst.push(F32(x + y))
	case OpF32Sub:
		return inst.push(F32(x - y))
	case OpF32Mul:
		return inst.push(F32(x * y))
	case OpF32Div:
		return inst.push(F32(x / y))
	case OpF32Eq:
		return inst.push(boolI32(x == y))
	case OpF32Ne:
		return inst.push(boolI32(x != y))
	case OpF32Lt:
		return inst.push(boolI32(x < y))
	case OpF32Gt:
		return inst.push(boolI32(x > y))
	case OpF32Le:
		return inst.push(boolI32(x <= y))
	case OpF32Ge:
		return inst.push(boolI32(x >= y))
	}
	return fmt.Errorf("wasm: unhandled f32 op %v", op)
}

func (inst *Instance) binF64(op Op) error {
	b, err := inst.pop()
	if err != nil {
		return err
	}
	a, err := inst.pop()
	if err != nil {
		return err
	}
	x, y := a.AsF64(), b.AsF64()
	switch op {
	case OpF64Add:
		return inst.push(F64(x + y))
	case OpF64Sub:
		return inst.push(F64(x - y))
	case OpF64Mul:
		return inst.push(F64(x * y))
	case OpF64Div:
		return inst.push(F64(x / y))
	case OpF64Eq:
		return inst.push(boolI32(x == y))
	case OpF64Ne:
		return inst.push(boolI32(x != y))
	case OpF64Lt:
		return inst.push(boolI32(x < y))
	case OpF64Gt:
		return inst.push(boolI32(x > y))
	case OpF64Le:
		return inst.push(boolI32(x <= y))
	case OpF64Ge:
		return inst.push(boolI32(x >= y))
	}
	return fmt.Errorf("wasm: unhandled f64 op %v", op)
}

func (inst *Instance) convert(op Op) error {
	v, err := inst.pop()
	if err != nil {
		return err
	}
	switch op {
	case OpI32WrapI64:
		return inst.push(I32(int32(v.I64)))
	case OpI64ExtendI32S:
		return inst.push(I64(int64(v.I32)))
	case OpI64ExtendI32U:
		return inst.push(I64(int64(uint32(v.I32))))
	case OpF32DemoteF64:
		return inst.push(F32(float32(v.AsF64())))
	case OpF64PromoteF32:
		return inst.push(F64(float64(v.AsF32())))
	case OpI32TruncF32S:
		return inst.push(I32(int32(v.AsF32())))
	case OpI32TruncF64S:
		return inst.push(I32(int32(v.AsF64())))
	case OpI64TruncF32S:
		return inst.push(I64(int64(v.AsF32())))
	case OpI64TruncF64S:
		return inst.push(I64(int64(v.AsF64())))
	case OpF32ConvertI32S:
		return inst.push(F32(float32(v.I32)))
	case OpF32ConvertI64S:
		return inst.push(F32(float32(v.I64)))
	case OpF64ConvertI32S:
		return inst.push(F64(float64(v.I32)))
	case OpF64ConvertI64S:
		return inst.push(F64(float64(v.I64)))
	}
	return fmt.Errorf("wasm: unhandled conversion op %v", op)
}

func boolI32(cond bool) Value {
	if cond {
		return I32(1)
	}
	return I32(0)
}

// AbortError reports a runtime trap: stack discipline violation, quota
// exceeded, or an executed unreachable. It always carries a human-readable
// reason matching the device runtime's own error strings, surfaced
// upward through ApplicationStatus.
type AbortError struct {
	Reason string
}

func (e *AbortError) Error() string { return e.Reason }

func errAbort(reason string) error { return &AbortError{Reason: reason} }
