// Package wasm implements the on-device WebAssembly interpreter (spec.md
// §4.4): a bounded, no-GC-friendly stack machine sized for Arm Cortex-M
// class devices. It is grounded on the device-runtime's own interpreter
// (wasmbed-device-runtime/src/wasm_interpreter.rs): fixed-capacity module
// tables, a single 64KB memory page, and hard quotas everywhere a
// malicious or buggy module could otherwise run unbounded.
package wasm

// Limits mirrors the constants the original device runtime hard-codes.
// They are duplicated here as a struct (rather than package consts) so
// internal/config can relax them for tests and so the gateway's deploy-time
// pre-validation pass can apply the same bounds before ever shipping bytes
// to a device.
type Limits struct {
	MaxFunctions            int
	MaxOperatorsPerFunction int
	MaxInstructionCount     int
	MaxRecursionDepth       int
	ValueStackCap           int
	LabelStackCap           int
	MaxPCVisits             int
	MaxBlockScanSteps       int
	MaxParseSections        int
	MaxTotalParseOps        int
	MemoryPageSize          int
	MaxMemoryBytes          int
}

// DefaultLimits matches wasm_interpreter.rs exactly: MAX_INSTRUCTIONS=500,
// MAX_RECURSION_DEPTH=32, stack cap 256, label cap 16, PC-visit cap 50,
// find_matching_end search cap 1000, MAX_PARSE_SECTIONS=50,
// MAX_TOTAL_PARSE_OPS=10000, one 64KB page.
var DefaultLimits = Limits{
	MaxFunctions:            32,
	MaxOperatorsPerFunction: 1000,
	MaxInstructionCount:     500,
	MaxRecursionDepth:       32,
	ValueStackCap:           256,
	LabelStackCap:           16,
	MaxPCVisits:             50,
	MaxBlockScanSteps:       1000,
	MaxParseSections:        50,
	MaxTotalParseOps:        10000,
	MemoryPageSize:          65536,
	MaxMemoryBytes:          65536,
}
