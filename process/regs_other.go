//go:build linux && !amd64

package process

import (
	"errors"
	"fmt"
)

// RegistersSize is 0 where the register trailer is not supported.
const RegistersSize = 0

var errRegistersUnsupported = errors.New("register capture is only supported on amd64")

func (t *Tracee) Registers() ([]byte, error) {
	return nil, fmt.Errorf("getregs %d: %w", t.pid, errRegistersUnsupported)
}

func FormatRegisters(b []byte) string {
	return ""
}
