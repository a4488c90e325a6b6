//go:build linux && amd64

package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRegisters_Encoding(t *testing.T) {
	regs := unix.PtraceRegs{Rip: 0x401000, Rsp: 0x7ffc0000, Rax: 42}
	b := EncodeRegisters(&regs)
	require.Len(t, b, RegistersSize)

	decoded, ok := DecodeRegisters(b)
	require.True(t, ok)
	assert.Equal(t, regs, *decoded)
	assert.Contains(t, FormatRegisters(b), "rip=0x401000")

	_, ok = DecodeRegisters(b[1:])
	assert.False(t, ok)
	assert.Empty(t, FormatRegisters(nil))
}
