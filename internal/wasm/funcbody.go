package wasm

import "fmt"

// parseFunctionBody decodes one code-section entry: a vector of
// (count, valtype) local declarations followed by the instruction stream,
// terminated by the function's own End (0x0B). Bounded by
// MaxOperatorsPerFunction / MaxTotalParseOps, matching MAX_PARSE_OPERATIONS.
func parseFunctionBody(body []byte, lim Limits) (Function, error) {
	p := &parser{buf: body}

	localDeclCount, err := p.readU32()
	if err != nil {
		return Function{}, err
	}

	var locals []Value
	for i := uint32(0); i < localDeclCount; i++ {
		n, err := p.readU32()
		if err != nil {
			return Function{}, err
		}
		valType, err := p.readByte()
		if err != nil {
			return Function{}, err
		}
		zero, err := zeroValueFor(valType)
		if err != nil {
			return Function{}, err
		}
		for j := uint32(0); j < n; j++ {
			locals = append(locals, zero)
		}
	}

	var body_ []Instr
	opCount := 0
	depth := 0
	for p.pos < len(p.buf) {
		opCount++
		if opCount > lim.MaxOperatorsPerFunction {
			return Function{}, fmt.Errorf("wasm: function exceeds %d operators", lim.MaxOperatorsPerFunction)
		}
		instr, err := decodeInstr(p)
		if err != nil {
			return Function{}, err
		}
		switch instr.Op {
		case OpBlock, OpLoop, OpIf:
			depth++
		case OpEnd:
			if depth == 0 {
				// This 0x0B closes the function itself, not a nested block.
				goto doneParsing
			}
			depth--
		}
		body_ = append(body_, instr)
	}
doneParsing:

	return Function{
		NumLocals: len(locals),
		Locals:    locals,
		Body:      body_,
	}, nil
}

func zeroValueFor(valType byte) (Value, error) {
	switch valType {
	case 0x7F:
		return I32(0), nil
	case 0x7E:
		return I64(0), nil
	case 0x7D:
		return F32Bits(0), nil
	case 0x7C:
		return F64Bits(0), nil
	default:
		return Value{}, fmt.Errorf("wasm: unknown local value type 0x%02x", valType)
	}
}

// decodeInstr reads one opcode and returns the decoded instruction.
// Callers distinguish a function-closing End (0x0B) from a nested
// block's End by tracking block nesting depth themselves.
func decodeInstr(p *parser) (Instr, error) {
	op, err := p.readByte()
	if err != nil {
		return Instr{}, err
	}

	switch op {
	case 0x00:
		return Instr{Op: OpUnreachable}, nil
	case 0x01:
		return Instr{Op: OpNop}, nil
	case 0x02: // block
		if _, err := p.readByte(); err != nil { // blocktype, unused
			return Instr{}, err
		}
		return Instr{Op: OpBlock}, nil
	case 0x03: // loop
		if _, err := p.readByte(); err != nil {
			return Instr{}, err
		}
		return Instr{Op: OpLoop}, nil
	case 0x04: // if
		if _, err := p.readByte(); err != nil {
			return Instr{}, err
		}
		return Instr{Op: OpIf}, nil
	case 0x05:
		return Instr{Op: OpElse}, nil
	case 0x0B:
		return Instr{Op: OpEnd}, nil
	case 0x0C:
		idx, err := p.readU32()
		return Instr{Op: OpBr, Index: idx}, err
	case 0x0D:
		idx, err := p.readU32()
		return Instr{Op: OpBrIf, Index: idx}, err
	case 0x0E:
		n, err := p.readU32()
		if err != nil {
			return Instr{}, err
		}
		table := make([]uint32, 0, n)
		for i := uint32(0); i < n; i++ {
			v, err := p.readU32()
			if err != nil {
				return Instr{}, err
			}
			table = append(table, v)
		}
		def, err := p.readU32()
		return Instr{Op: OpBrTable, Table: table, Default: def}, err
	case 0x0F:
		return Instr{Op: OpReturn}, nil
	case 0x10:
		idx, err := p.readU32()
		return Instr{Op: OpCall, Index: idx}, err
	case 0x1A:
		return Instr{Op: OpDrop}, nil
	case 0x1B: // select, not in the device instruction set; treat as drop-drop-keep is unsupported
		return Instr{}, fmt.Errorf("wasm: unsupported opcode 0x%02x (select)", op)
	case 0x20:
		idx, err := p.readU32()
		return Instr{Op: OpLocalGet, Index: idx}, err
	case 0x21:
		idx, err := p.readU32()
		return Instr{Op: OpLocalSet, Index: idx}, err
	case 0x22:
		idx, err := p.readU32()
		return Instr{Op: OpLocalTee, Index: idx}, err
	case 0x23:
		idx, err := p.readU32()
		return Instr{Op: OpGlobalGet, Index: idx}, err
	case 0x24:
		idx, err := p.readU32()
		return Instr{Op: OpGlobalSet, Index: idx}, err

	case 0x28:
		return memInstr(p, OpI32Load)
	case 0x29:
		return memInstr(p, OpI64Load)
	case 0x2A:
		return memInstr(p, OpF32Load)
	case 0x2B:
		return memInstr(p, OpF64Load)
	case 0x2C:
		return memInstr(p, OpI32Load8S)
	case 0x2D:
		return memInstr(p, OpI32Load8U)
	case 0x2E:
		return memInstr(p, OpI32Load16S)
	case 0x2F:
		return memInstr(p, OpI32Load16U)
	case 0x36:
		return memInstr(p, OpI32Store)
	case 0x37:
		return memInstr(p, OpI64Store)
	case 0x38:
		return memInstr(p, OpF32Store)
	case 0x39:
		return memInstr(p, OpF64Store)
	case 0x3A:
		return memInstr(p, OpI32Store8)
	case 0x3B:
		return memInstr(p, OpI32Store16)
	case 0x3F:
		if _, err := p.readByte(); err != nil { // reserved byte
			return Instr{}, err
		}
		return Instr{Op: OpMemorySize}, nil
	case 0x40:
		if _, err := p.readByte(); err != nil {
			return Instr{}, err
		}
		return Instr{Op: OpMemoryGrow}, nil

	case 0x41:
		v, err := p.readI32()
		return Instr{Op: OpI32Const, I32Val: v}, err
	case 0x42:
		v, err := p.readI64()
		return Instr{Op: OpI64Const, I64Val: v}, err
	case 0x43:
		v, err := p.readU32Raw4()
		return Instr{Op: OpF32Const, F32Val: v}, err
	case 0x44:
		v, err := p.readU64Raw8()
		return Instr{Op: OpF64Const, F64Val: v}, err

	case 0x46:
		return Instr{Op: OpI32Eq}, nil
	case 0x47:
		return Instr{Op: OpI32Ne}, nil
	case 0x48:
		return Instr{Op: OpI32LtS}, nil
	case 0x49:
		return Instr{Op: OpI32LtU}, nil
	case 0x4A:
		return Instr{Op: OpI32GtS}, nil
	case 0x4B:
		return Instr{Op: OpI32GtU}, nil
	case 0x4C:
		return Instr{Op: OpI32LeS}, nil
	case 0x4D:
		return Instr{Op: OpI32LeU}, nil
	case 0x4E:
		return Instr{Op: OpI32GeS}, nil
	case 0x4F:
		return Instr{Op: OpI32GeU}, nil

	case 0x51:
		return Instr{Op: OpI64Eq}, nil
	case 0x52:
		return Instr{Op: OpI64Ne}, nil
	case 0x53:
		return Instr{Op: OpI64LtS}, nil
	case 0x54:
		return Instr{Op: OpI64LtU}, nil
	case 0x55:
		return Instr{Op: OpI64GtS}, nil
	case 0x56:
		return Instr{Op: OpI64GtU}, nil
	case 0x57:
		return Instr{Op: OpI64LeS}, nil
	case 0x58:
		return Instr{Op: OpI64LeU}, nil
	case 0x59:
		return Instr{Op: OpI64GeS}, nil
	case 0x5A:
		return Instr{Op: OpI64GeU}, nil

	case 0x5B:
		return Instr{Op: OpF32Eq}, nil
	case 0x5C:
		return Instr{Op: OpF32Ne}, nil
	case 0x5D:
		return Instr{Op: OpF32Lt}, nil
	case 0x5E:
		return Instr{Op: OpF32Gt}, nil
	case 0x5F:
		return Instr{Op: OpF32Le}, nil
	case 0x60:
		return Instr{Op: OpF32Ge}, nil

	case 0x61:
		return Instr{Op: OpF64Eq}, nil
	case 0x62:
		return Instr{Op: OpF64Ne}, nil
	case 0x63:
		return Instr{Op: OpF64Lt}, nil
	case 0x64:
		return Instr{Op: OpF64Gt}, nil
	case 0x65:
		return Instr{Op: OpF64Le}, nil
	case 0x66:
		return Instr{Op: OpF64Ge}, nil

	case 0x6A:
		return Instr{Op: OpI32Add}, nil
	case 0x6B:
		return Instr{Op: OpI32Sub}, nil
	case 0x6C:
		return Instr{Op: OpI32Mul}, nil
	case 0x6D:
		return Instr{Op: OpI32DivS}, nil
	case 0x6F:
		return Instr{Op: OpI32RemS}, nil
	case 0x71:
		return Instr{Op: OpI32And}, nil
	case 0x72:
		return Instr{Op: OpI32Or}, nil
	case 0x73:
		return Instr{Op: OpI32Xor}, nil
	case 0x74:
		return Instr{Op: OpI32Shl}, nil
	case 0x75:
		return Instr{Op: OpI32ShrS}, nil
	case 0x76:
		return Instr{Op: OpI32ShrU}, nil

	case 0x7C:
		return Instr{Op: OpI64Add}, nil
	case 0x7D:
		return Instr{Op: OpI64Sub}, nil
	case 0x7E:
		return Instr{Op: OpI64Mul}, nil
	case 0x7F:
		return Instr{Op: OpI64DivS}, nil
	case 0x81:
		return Instr{Op: OpI64RemS}, nil
	case 0x83:
		return Instr{Op: OpI64And}, nil
	case 0x84:
		return Instr{Op: OpI64Or}, nil
	case 0x85:
		return Instr{Op: OpI64Xor}, nil
	case 0x86:
		return Instr{Op: OpI64Shl}, nil
	case 0x87:
		return Instr{Op: OpI64ShrS}, nil
	case 0x88:
		return Instr{Op: OpI64ShrU}, nil

	case 0x92:
		return Instr{Op: OpF32Add}, nil
	case 0x93:
		return Instr{Op: OpF32Sub}, nil
	case 0x94:
		return Instr{Op: OpF32Mul}, nil
	case 0x95:
		return Instr{Op: OpF32Div}, nil

	case 0xA0:
		return Instr{Op: OpF64Add}, nil
	case 0xA1:
		return Instr{Op: OpF64Sub}, nil
	case 0xA2:
		return Instr{Op: OpF64Mul}, nil
	case 0xA3:
		return Instr{Op: OpF64Div}, nil

	case 0xA7:
		return Instr{Op: OpI32WrapI64}, nil
	case 0xA8:
		return Instr{Op: OpI32TruncF32S}, nil
	case 0xAA:
		return Instr{Op: OpI32TruncF64S}, nil
	case 0xAC:
		return Instr{Op: OpI64ExtendI32S}, nil
	case 0xAD:
		return Instr{Op: OpI64ExtendI32U}, nil
	case 0xAE:
		return Instr{Op: OpI64TruncF32S}, nil
	case 0xB0:
		return Instr{Op: OpI64TruncF64S}, nil
	case 0xB2:
		return Instr{Op: OpF32ConvertI32S}, nil
	case 0xB4:
		return Instr{Op: OpF32ConvertI64S}, nil
	case 0xB6:
		return Instr{Op: OpF32DemoteF64}, nil
	case 0xB7:
		return Instr{Op: OpF64ConvertI32S}, nil
	case 0xB9:
		return Instr{Op: OpF64ConvertI64S}, nil
	case 0xBB:
		return Instr{Op: OpF64PromoteF32}, nil

	default:
		return Instr{}, fmt.Errorf("wasm: unsupported opcode 0x%02x", op)
	}
}

func memInstr(p *parser, op Op) (Instr, error) {
	if _, err := p.readU32(); err != nil { // align, unused
		return Instr{}, err
	}
	offset, err := p.readU32()
	if err != nil {
		return Instr{}, err
	}
	return Instr{Op: op, Offset: offset}, nil
}
