package memdump

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

const (
	// e_machine offset inside the ELF header
	elfMachineOffset = 18
	defWordSize      = 8
)

// WordSize guesses the pointer width of the dumped program from the ELF header at the
// start of the snapshot. It is a display aid only and returns 8 when the header is
// missing or too short.
func (s *Snapshot) WordSize() int {
	return WordSize(s.Bytes())
}

// WordSize inspects e_machine of the ELF header at the start of b.
func WordSize(b []byte) int {
	if len(b) < elfMachineOffset+2 || !bytes.HasPrefix(b, []byte(elf.ELFMAG)) {
		return defWordSize
	}
	var order binary.ByteOrder = binary.LittleEndian
	if elf.Data(b[elf.EI_DATA]) == elf.ELFDATA2MSB {
		order = binary.BigEndian
	}
	switch elf.Machine(order.Uint16(b[elfMachineOffset:])) {
	case elf.EM_386, elf.EM_ARM:
		return 4
	default:
		return defWordSize
	}
}

// Find returns the virtual addresses where pattern occurs, in address order.
// Matches never span a gap between blocks. A limit above 0 caps the number of results.
func (s *Snapshot) Find(pattern []byte, limit int) (addresses []uint64) {
	size := len(pattern)
	if size == 0 || s.closed {
		return nil
	}
	for _, block := range s.layout.blocks {
		data := s.block(block)
		i := 0
		for {
			n := bytes.Index(data[i:], pattern)
			if n < 0 {
				break
			}
			pos := i + n
			addresses = append(addresses, block.Start+uint64(pos))
			if limit > 0 && len(addresses) >= limit {
				return
			}
			i = pos + size
		}
	}
	return
}
