package wasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addAndStoreBody() []byte {
	var body []byte
	body = append(body, 0x41)
	body = append(body, sleb32(0)...) // address
	body = append(body, 0x41)
	body = append(body, sleb32(2)...)
	body = append(body, 0x41)
	body = append(body, sleb32(3)...)
	body = append(body, 0x6A) // i32.add
	body = append(body, 0x36)
	body = append(body, uleb(2)...) // align
	body = append(body, uleb(0)...) // offset
	return body
}

func TestRunComputesAndStoresResult(t *testing.T) {
	raw := newModuleBuilder().withFunction(addAndStoreBody(), 0).build()

	mod, err := Parse(raw, DefaultLimits)
	require.NoError(t, err)

	inst := NewInstance(mod, DefaultLimits, nil)
	require.NoError(t, inst.Run())

	v, ok := inst.Memory.ReadI32(0)
	require.True(t, ok)
	assert.Equal(t, int32(5), v)
}

func infiniteLoopBody() []byte {
	// loop; nop; end — the loop's End always jumps back into the loop body
	// (this runtime's Br/BrIf/BrTable only ever break out of a label, so
	// an unconditional loop like this never exits on its own). The per-PC
	// visit cap (MaxPCVisits, 50) aborts it on the 51st pass, well before
	// the 500-instruction count is reached.
	return []byte{0x03, 0x40, 0x01, 0x0B}
}

func TestRunAbortsOnInstructionQuota(t *testing.T) {
	raw := newModuleBuilder().withFunction(infiniteLoopBody(), 0).build()
	mod, err := Parse(raw, DefaultLimits)
	require.NoError(t, err)

	inst := NewInstance(mod, DefaultLimits, nil)
	err = inst.Run()
	require.Error(t, err)
	var abort *AbortError
	assert.ErrorAs(t, err, &abort)
}

func TestRunTrapsOnDivisionByZero(t *testing.T) {
	body := []byte{
		0x41, 0x01, // i32.const 1
		0x41, 0x00, // i32.const 0
		0x6D, // i32.div_s
	}
	raw := newModuleBuilder().withFunction(body, 0).build()
	mod, err := Parse(raw, DefaultLimits)
	require.NoError(t, err)

	inst := NewInstance(mod, DefaultLimits, nil)
	err = inst.Run()
	require.Error(t, err)
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Contains(t, abort.Reason, "division by zero")
}

func TestHostPrintReadsMemory(t *testing.T) {
	body := []byte{
		0x41, 0x00, // ptr = 0
		0x41, 0x05, // len = 5
		0x10, 0x00, // call import 0 (host print)
	}
	raw := newModuleBuilder().withHostImport().withFunction(body, 0).build()
	mod, err := Parse(raw, DefaultLimits)
	require.NoError(t, err)

	inst := NewInstance(mod, DefaultLimits, nil)
	for i, b := range []byte("hello") {
		require.True(t, inst.Memory.WriteU8(uint32(i), b))
	}
	Bind(inst, HostBindings{})

	require.NoError(t, inst.Run())
}

func TestRecursionDepthQuota(t *testing.T) {
	// A single function that unconditionally calls itself.
	body := []byte{0x10, 0x00} // call func 0 (itself)
	raw := newModuleBuilder().withFunction(body, 0).build()
	mod, err := Parse(raw, DefaultLimits)
	require.NoError(t, err)

	inst := NewInstance(mod, DefaultLimits, nil)
	err = inst.Run()
	require.Error(t, err)
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Contains(t, abort.Reason, "recursion")
}
