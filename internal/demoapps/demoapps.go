// Package demoapps builds the small fixed set of user ELF images
// cmd/kernel boots with. There is no cross-compiled RISC-V user
// toolchain in this module (the user-space programs the loader's app
// table is modeled on were themselves written in Rust, compiled by a
// separate crate entirely outside this port's scope), so these images
// carry no meaningful instruction bytes: they exist to give
// internal/loader, internal/addrspace.NewELF, and the scheduler real
// ELF-shaped payloads to build address spaces and trap contexts around,
// the same role user/src/bin/*.rs's compiled outputs played for the
// original. Named and shaped after that directory's init.rs (fork, exec
// "shell", parent loop reaping children) and lshell.rs (read a line,
// fork+exec it, repeat).
package demoapps

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/logeable/los-lab/internal/loader"
)

const (
	loadVA  = 0x1000
	segSize = 0x1000
)

// buildELF wraps payload in the smallest ELF-64 executable debug/elf and
// internal/elfimg will accept: one PT_LOAD segment at loadVA, entry at
// the segment start.
func buildELF(payload []byte) []byte {
	const ehdrSize = 64
	const phdrSize = 56
	dataOff := uint64(ehdrSize + phdrSize)

	buf := new(bytes.Buffer)
	ident := [16]byte{0x7f, 'E', 'L', 'F', 2, 1, 1}
	buf.Write(ident[:])
	binary.Write(buf, binary.LittleEndian, uint16(elf.ET_EXEC))
	binary.Write(buf, binary.LittleEndian, uint16(elf.EM_RISCV))
	binary.Write(buf, binary.LittleEndian, uint32(1))
	binary.Write(buf, binary.LittleEndian, uint64(loadVA))
	binary.Write(buf, binary.LittleEndian, uint64(ehdrSize))
	binary.Write(buf, binary.LittleEndian, uint64(0))
	binary.Write(buf, binary.LittleEndian, uint32(0))
	binary.Write(buf, binary.LittleEndian, uint16(ehdrSize))
	binary.Write(buf, binary.LittleEndian, uint16(phdrSize))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(0))
	binary.Write(buf, binary.LittleEndian, uint16(0))
	binary.Write(buf, binary.LittleEndian, uint16(0))

	binary.Write(buf, binary.LittleEndian, uint32(elf.PT_LOAD))
	binary.Write(buf, binary.LittleEndian, uint32(elf.PF_R|elf.PF_W|elf.PF_X))
	binary.Write(buf, binary.LittleEndian, dataOff)
	binary.Write(buf, binary.LittleEndian, uint64(loadVA))
	binary.Write(buf, binary.LittleEndian, uint64(loadVA))
	binary.Write(buf, binary.LittleEndian, uint64(len(payload)))
	binary.Write(buf, binary.LittleEndian, uint64(segSize))
	binary.Write(buf, binary.LittleEndian, uint64(0x1000))

	buf.Write(payload)
	return buf.Bytes()
}

// nop is a single RISC-V `addi x0, x0, 0` encoding, standing in for "no
// real instructions to run" in every demo image's segment.
var nop = []byte{0x13, 0, 0, 0}

// Apps returns the boot-time app table: "init" (the first task the
// scheduler creates, grounded on init.rs) and "shell" (the interactive
// loop init execs into once it forks, grounded on lshell.rs).
func Apps() []loader.App {
	return []loader.App{
		{Name: "init", ELF: buildELF(nop)},
		{Name: "shell", ELF: buildELF(nop)},
	}
}
