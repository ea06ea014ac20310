// Package elfimg extracts the PT_LOAD segments of a user ELF-64 image for
// internal/addrspace's NewELF, grounded on los-lab's mm/memory_space.rs
// (MemorySpace::new_elf, the `elf` crate's minimal_parse + segment walk)
// and on biscuit's kernel/chentry.go, the teacher's one ELF-handling file,
// for the idiom of driving the standard library's debug/elf reader.
package elfimg

import (
	"bytes"
	"debug/elf"

	"github.com/logeable/los-lab/internal/kerrors"
)

// Perm mirrors an ELF program header's R/W/X segment flags, decoupled from
// pagetable.Flags so this package never needs to import it.
type Perm struct {
	Read, Write, Exec bool
}

// Segment is one PT_LOAD program header: its destination virtual address
// range and the file bytes to be copied there. Data holds only the
// segment's file bytes; it is not padded out to MemSize, and the
// .bss-style tail is left to the freshly zeroed frames it is copied into.
type Segment struct {
	VAddr   uint64
	MemSize uint64
	Data    []byte
	Perm    Perm
}

// Image is the parsed result of an ELF-64 user executable: its loadable
// segments in file order and its entry point.
type Image struct {
	Segments []Segment
	Entry    uint64
}

// Parse reads an ELF-64 executable's PT_LOAD segments, matching
// new_elf's segment-by-segment walk line for line.
func Parse(raw []byte) (*Image, error) {
	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindParseELF, err, "parse elf failed")
	}
	defer f.Close()

	img := &Image{Entry: f.Entry}
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		data := make([]byte, prog.Filesz)
		n, err := prog.ReadAt(data, 0)
		if err != nil && uint64(n) != prog.Filesz {
			return nil, kerrors.Wrap(kerrors.KindParseELF, err, "read segment data failed (vaddr=%#x)", prog.Vaddr)
		}
		img.Segments = append(img.Segments, Segment{
			VAddr:   prog.Vaddr,
			MemSize: prog.Memsz,
			Data:    data,
			Perm: Perm{
				Read:  prog.Flags&elf.PF_R != 0,
				Write: prog.Flags&elf.PF_W != 0,
				Exec:  prog.Flags&elf.PF_X != 0,
			},
		})
	}
	if len(img.Segments) == 0 {
		return nil, kerrors.New(kerrors.KindParseELF, "elf image has no PT_LOAD segments")
	}
	return img, nil
}
