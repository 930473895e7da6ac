package wasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRejectsBadMagic(t *testing.T) {
	_, err := Parse([]byte("not a wasm module"), DefaultLimits)
	assert.Error(t, err)
}

func TestParseRejectsTooManyFunctions(t *testing.T) {
	b := newModuleBuilder()
	nopBody := []byte{0x01} // nop
	for i := 0; i < DefaultLimits.MaxFunctions+1; i++ {
		b.withFunction(nopBody, 0)
	}
	_, err := Parse(b.build(), DefaultLimits)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit is")
}

func TestParseAndRunEmptyFunctionIsNoop(t *testing.T) {
	raw := newModuleBuilder().withFunction(nil, 0).build()
	mod, err := Parse(raw, DefaultLimits)
	require.NoError(t, err)

	inst := NewInstance(mod, DefaultLimits, nil)
	assert.NoError(t, inst.Run())
}
