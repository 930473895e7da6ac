package wasm

import (
	"errors"
	"fmt"
)

// Parse decodes a WASM binary module into a bounded, ready-to-run Module.
// It is not a validating parser — like wasm_interpreter.rs's own
// wasm_parser_minimal, it trusts the module shape enough to execute it
// safely (every read is bounds-checked) but does not enforce the full
// core spec's type-checking rules. Parsing itself is bounded by section
// count, total parse events, and per-function operator count, mirroring
// MAX_PARSE_SECTIONS / MAX_TOTAL_PARSE_OPS / MAX_PARSE_OPERATIONS.
func Parse(bytecode []byte, lim Limits) (*Module, error) {
	p := &parser{buf: bytecode, lim: lim}

	if err := p.readHeader(); err != nil {
		return nil, err
	}

	mod := &Module{MemoryPages: 1}
	var funcTypeCount int // number of entries seen in the function section
	var codeBodies [][]byte

	totalParseOps := 0
	bumpParseOps := func(n int) error {
		totalParseOps += n
		if totalParseOps > lim.MaxTotalParseOps {
			return errors.New("wasm: total parse operations exceed module-wide limit")
		}
		return nil
	}

	sectionCount := 0
	for p.pos < len(p.buf) {
		sectionCount++
		if sectionCount > p.lim.MaxParseSections {
			return nil, errors.New("wasm: too many sections")
		}

		id, err := p.readByte()
		if err != nil {
			return nil, err
		}
		size, err := p.readU32()
		if err != nil {
			return nil, err
		}
		if int(size) > len(p.buf)-p.pos {
			return nil, errors.New("wasm: section size exceeds module bounds")
		}
		sectionEnd := p.pos + int(size)

		switch id {
		case secImport:
			n, err := p.readU32()
			if err != nil {
				return nil, err
			}
			for i := uint32(0); i < n; i++ {
				if err := bumpParseOps(1); err != nil {
					return nil, err
				}
				if err := p.skipImportEntry(); err != nil {
					return nil, err
				}
				mod.ImportedFuncs++
			}
		case secFunction:
			n, err := p.readU32()
			if err != nil {
				return nil, err
			}
			funcTypeCount = int(n)
			for i := uint32(0); i < n; i++ {
				if err := bumpParseOps(1); err != nil {
					return nil, err
				}
				if _, err := p.readU32(); err != nil { // type index, unused
					return nil, err
				}
			}
		case secMemory:
			n, err := p.readU32()
			if err != nil {
				return nil, err
			}
			if n > 0 {
				flags, err := p.readByte()
				if err != nil {
					return nil, err
				}
				pages, err := p.readU32()
				if err != nil {
					return nil, err
				}
				mod.MemoryPages = int(pages)
				if flags&0x1 != 0 {
					if _, err := p.readU32(); err != nil { // max pages, unused
						return nil, err
					}
				}
			}
		case secGlobal:
			n, err := p.readU32()
			if err != nil {
				return nil, err
			}
			for i := uint32(0); i < n; i++ {
				if err := bumpParseOps(1); err != nil {
					return nil, err
				}
				v, err := p.parseGlobal()
				if err != nil {
					return nil, err
				}
				mod.Globals = append(mod.Globals, v)
			}
		case secCode:
			n, err := p.readU32()
			if err != nil {
				return nil, err
			}
			for i := uint32(0); i < n; i++ {
				if err := bumpParseOps(1); err != nil {
					return nil, err
				}
				bodySize, err := p.readU32()
				if err != nil {
					return nil, err
				}
				if p.pos+int(bodySize) > len(p.buf) {
					return nil, errors.New("wasm: function body exceeds module bounds")
				}
				codeBodies = append(codeBodies, p.buf[p.pos:p.pos+int(bodySize)])
				p.pos += int(bodySize)
			}
		default:
			// Unknown/unneeded section (type, table, export, start, etc.):
			// skip it wholesale, same as the original's "minimal" parser.
		}

		p.pos = sectionEnd
	}

	if len(codeBodies) != funcTypeCount && funcTypeCount != 0 {
		return nil, errors.New("wasm: function and code section counts disagree")
	}
	if mod.ImportedFuncs+len(codeBodies) > lim.MaxFunctions {
		return nil, fmt.Errorf("wasm: module declares %d functions, limit is %d", mod.ImportedFuncs+len(codeBodies), lim.MaxFunctions)
	}

	for _, body := range codeBodies {
		fn, err := parseFunctionBody(body, p.lim)
		if err != nil {
			return nil, err
		}
		if err := bumpParseOps(len(fn.Body)); err != nil {
			return nil, err
		}
		mod.Functions = append(mod.Functions, fn)
	}

	return mod, nil
}

const (
	secType     = 1
	secImport   = 2
	secFunction = 3
	secTable    = 4
	secMemory   = 5
	secGlobal   = 6
	secExport   = 7
	secStart    = 8
	secElement  = 9
	secCode     = 10
	secData     = 11
)

type parser struct {
	buf []byte
	pos int
	lim Limits
}

func (p *parser) readHeader() error {
	if len(p.buf) < 8 {
		return errors.New("wasm: module too short for header")
	}
	if string(p.buf[0:4]) != "\x00asm" {
		return errors.New("wasm: bad magic number")
	}
	p.pos = 8
	return nil
}

func (p *parser) readByte() (byte, error) {
	if p.pos >= len(p.buf) {
		return 0, errors.New("wasm: unexpected end of module")
	}
	b := p.buf[p.pos]
	p.pos++
	return b, nil
}

// readU32 decodes an unsigned LEB128 value.
func (p *parser) readU32() (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := p.readByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, errors.New("wasm: LEB128 value too long")
		}
	}
}

// readI32 decodes a signed LEB128 value.
func (p *parser) readI32() (int32, error) {
	var result int64
	var shift uint
	var b byte
	var err error
	for {
		b, err = p.readByte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 35 {
			return 0, errors.New("wasm: LEB128 value too long")
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return int32(result), nil
}

// readI64 decodes a signed 64-bit LEB128 value.
func (p *parser) readI64() (int64, error) {
	var result int64
	var shift uint
	var b byte
	var err error
	for {
		b, err = p.readByte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 70 {
			return 0, errors.New("wasm: LEB128 value too long")
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, nil
}

func (p *parser) readU32Raw4() (uint32, error) {
	if p.pos+4 > len(p.buf) {
		return 0, errors.New("wasm: unexpected end of module")
	}
	v := uint32(p.buf[p.pos]) | uint32(p.buf[p.pos+1])<<8 | uint32(p.buf[p.pos+2])<<16 | uint32(p.buf[p.pos+3])<<24
	p.pos += 4
	return v, nil
}

func (p *parser) readU64Raw8() (uint64, error) {
	if p.pos+8 > len(p.buf) {
		return 0, errors.New("wasm: unexpected end of module")
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(p.buf[p.pos+i]) << (8 * i)
	}
	p.pos += 8
	return v, nil
}

func (p *parser) skipImportEntry() error {
	if err := p.skipName(); err != nil {
		return err
	}
	if err := p.skipName(); err != nil {
		return err
	}
	kind, err := p.readByte()
	if err != nil {
		return err
	}
	switch kind {
	case 0x00: // func
		_, err = p.readU32()
	case 0x01: // table
		_, err = p.readByte()
		if err == nil {
			_, err = p.readU32()
		}
	case 0x02: // memory
		flags, e := p.readByte()
		if e != nil {
			return e
		}
		_, err = p.readU32()
		if err == nil && flags&0x1 != 0 {
			_, err = p.readU32()
		}
	case 0x03: // global
		_, err = p.readByte()
		if err == nil {
			_, err = p.readByte()
		}
	default:
		return fmt.Errorf("wasm: unknown import kind %d", kind)
	}
	return err
}

func (p *parser) skipName() error {
	n, err := p.readU32()
	if err != nil {
		return err
	}
	if p.pos+int(n) > len(p.buf) {
		return errors.New("wasm: name exceeds module bounds")
	}
	p.pos += int(n)
	return nil
}

// parseGlobal reads a global's type byte, mutability byte, and a
// single-instruction constant initializer terminated by End (0x0B) — the
// only initializer shape this runtime ever emits or accepts.
func (p *parser) parseGlobal() (Value, error) {
	valType, err := p.readByte()
	if err != nil {
		return Value{}, err
	}
	if _, err := p.readByte(); err != nil { // mutability, unused
		return Value{}, err
	}
	op, err := p.readByte()
	if err != nil {
		return Value{}, err
	}
	var v Value
	switch op {
	case 0x41:
		n, err := p.readI32()
		if err != nil {
			return Value{}, err
		}
		v = I32(n)
	case 0x42:
		n, err := p.readI64()
		if err != nil {
			return Value{}, err
		}
		v = I64(n)
	case 0x43:
		bits, err := p.readU32Raw4()
		if err != nil {
			return Value{}, err
		}
		v = F32Bits(bits)
	case 0x44:
		bits, err := p.readU64Raw8()
		if err != nil {
			return Value{}, err
		}
		v = F64Bits(bits)
	default:
		return Value{}, fmt.Errorf("wasm: unsupported global initializer opcode 0x%02x", op)
	}
	end, err := p.readByte()
	if err != nil {
		return Value{}, err
	}
	if end != 0x0B {
		return Value{}, errors.New("wasm: global initializer missing end opcode")
	}
	_ = valType
	return v, nil
}
