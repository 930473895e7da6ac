package wasm

import "fmt"

// PreValidate is the gateway-side deploy-time quota check from
// original_source's gateway validation pass (dropped by the distillation,
// restored per SPEC_FULL §9): it parses bytecode against lim without
// constructing an Instance, rejecting oversized modules before ever
// shipping the bytes to a memory-constrained device.
func PreValidate(bytecode []byte, lim Limits) error {
	mod, err := Parse(bytecode, lim)
	if err != nil {
		return fmt.Errorf("wasm: module rejected: %w", err)
	}
	if mod.ImportedFuncs+len(mod.Functions) == 0 {
		return fmt.Errorf("wasm: module declares no functions")
	}
	return nil
}
