//go:build linux && amd64

package process

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// RegistersSize is the size of the register trailer, one user_regs_struct.
const RegistersSize = int(unsafe.Sizeof(unix.PtraceRegs{}))

// Registers reads the general purpose registers of the stopped target.
func (t *Tracee) Registers() ([]byte, error) {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(t.pid, &regs); err != nil {
		return nil, fmt.Errorf("getregs %d: %w", t.pid, err)
	}
	return EncodeRegisters(&regs), nil
}

func EncodeRegisters(regs *unix.PtraceRegs) []byte {
	b := make([]byte, RegistersSize)
	copy(b, unsafe.Slice((*byte)(unsafe.Pointer(regs)), RegistersSize))
	return b
}

// DecodeRegisters is the inverse of EncodeRegisters. It fails when b has the wrong size.
func DecodeRegisters(b []byte) (*unix.PtraceRegs, bool) {
	if len(b) != RegistersSize {
		return nil, false
	}
	regs := new(unix.PtraceRegs)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(regs)), RegistersSize), b)
	return regs, true
}

// FormatRegisters renders the main registers of a trailer, or "" when it cannot be decoded.
func FormatRegisters(b []byte) string {
	regs, ok := DecodeRegisters(b)
	if !ok {
		return ""
	}
	return fmt.Sprintf("rip=%#x rsp=%#x rbp=%#x rax=%#x rbx=%#x rcx=%#x rdx=%#x rsi=%#x rdi=%#x",
		regs.Rip, regs.Rsp, regs.Rbp, regs.Rax, regs.Rbx, regs.Rcx, regs.Rdx, regs.Rsi, regs.Rdi)
}
