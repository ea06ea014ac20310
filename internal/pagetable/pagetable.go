// Package pagetable implements the Sv39 three-level page table of spec §4.2,
// grounded line-for-line on los-lab's mm/page_table.rs (PageTableEntry,
// PageTable::{new,map,unmap,find_pte_mut,fork,translate,satp}) and on
// biscuit's mem/mem.go / vm/as.go for the PTE-flag-byte and raw-physical-
// access idiom (Userdmap8_inner).
package pagetable

import (
	"fmt"

	"github.com/logeable/los-lab/internal/addr"
	"github.com/logeable/los-lab/internal/frame"
	"github.com/logeable/los-lab/internal/kerrors"
)

// Flags packs the eight Sv39 PTE permission bits into a single byte,
// matching los-lab's bitflags! layout exactly (V=1<<0 .. D=1<<7).
type Flags uint8

const (
	FlagV Flags = 1 << 0
	FlagR Flags = 1 << 1
	FlagW Flags = 1 << 2
	FlagX Flags = 1 << 3
	FlagU Flags = 1 << 4
	FlagG Flags = 1 << 5
	FlagA Flags = 1 << 6
	FlagD Flags = 1 << 7
)

// Has reports whether all bits in want are set.
func (f Flags) Has(want Flags) bool { return f&want == want }

// Intersects reports whether any bit in want is set.
func (f Flags) Intersects(want Flags) bool { return f&want != 0 }

// PTE is a single 64-bit page-table entry: PPN in bits 10+, Flags in the
// low byte, matching PageTableEntry::new's `ppn.0 << 10 | flags.bits()`.
type PTE struct {
	Bits uint64
}

// NewPTE packs ppn and flags into an entry.
func NewPTE(ppn addr.PhysPageNum, flags Flags) PTE {
	return PTE{Bits: uint64(ppn)<<10 | uint64(flags)}
}

func (p PTE) PPN() addr.PhysPageNum { return addr.PhysPageNum(p.Bits >> 10) }
func (p PTE) Flags() Flags          { return Flags(p.Bits) }
func (p PTE) IsValid() bool         { return p.Flags().Intersects(FlagV) }
func (p PTE) IsWritable() bool      { return p.Flags().Intersects(FlagW) }
func (p PTE) IsReadable() bool      { return p.Flags().Intersects(FlagR) }
func (p PTE) IsExecutable() bool    { return p.Flags().Intersects(FlagX) }
func (p PTE) IsUser() bool          { return p.Flags().Intersects(FlagU) }

const ptesPerPage = 512 // 4096 / 8-byte PTE

// PageTable is a three-level Sv39 table. It owns its root frame and every
// interior frame it allocates; dropping (GC-collecting) a PageTable without
// explicitly freeing those frames is a deliberate simplification — see
// SPEC_FULL.md Open Question (a).
type PageTable struct {
	alloc      *frame.Allocator
	rootPPN    addr.PhysPageNum
	dirFrames  []*frame.Frame
}

// New allocates a fresh root frame and returns an empty page table.
func New(alloc *frame.Allocator) (*PageTable, error) {
	f, err := alloc.AllocErr("new root page table")
	if err != nil {
		return nil, err
	}
	return &PageTable{alloc: alloc, rootPPN: f.PPN, dirFrames: []*frame.Frame{f}}, nil
}

// FromSatp reconstructs a non-owning view of a page table from a raw SATP
// value (los-lab's PageTable::from_satp), used by the kernel to walk a
// user address space's tables without taking ownership of its frames.
func FromSatp(alloc *frame.Allocator, satp uint64) *PageTable {
	return &PageTable{alloc: alloc, rootPPN: addr.PhysPageNum(satp & ((1 << 44) - 1))}
}

func (pt *PageTable) pteArray(ppn addr.PhysPageNum) []PTE {
	raw := pt.alloc.Page(ppn)
	out := make([]PTE, ptesPerPage)
	for i := range out {
		out[i].Bits = readU64(raw[i*8:])
	}
	return out
}

func (pt *PageTable) writePTE(ppn addr.PhysPageNum, index int, pte PTE) {
	raw := pt.alloc.Page(ppn)
	writeU64(raw[index*8:], pte.Bits)
}

func readU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func writeU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}

// levelIndices returns the (l3, l2, l1) indices for vpn in top-to-bottom
// walk order, matching get_level_3/2/1_index.
func levelIndices(vpn addr.VirtPageNum) (l3, l2, l1 int) {
	return vpn.Level3Index(), vpn.Level2Index(), vpn.Level1Index()
}

// Map walks from the root, allocating interior frames for invalid interior
// PTEs, and writes the leaf PTE = (ppn, flags|V). Re-mapping an
// already-valid leaf is a deliberate no-op (spec §4.2).
func (pt *PageTable) Map(vpn addr.VirtPageNum, ppn addr.PhysPageNum, flags Flags) error {
	l3, l2, l1 := levelIndices(vpn)

	l3Ptes := pt.pteArray(pt.rootPPN)
	pte := l3Ptes[l3]
	if !pte.IsValid() {
		f, err := pt.alloc.AllocErr("allocate level2 page table frame")
		if err != nil {
			return err
		}
		pte = NewPTE(f.PPN, FlagV)
		pt.writePTE(pt.rootPPN, l3, pte)
		pt.dirFrames = append(pt.dirFrames, f)
	}

	l2Ppn := pte.PPN()
	l2Ptes := pt.pteArray(l2Ppn)
	pte = l2Ptes[l2]
	if !pte.IsValid() {
		f, err := pt.alloc.AllocErr("allocate level1 page table frame")
		if err != nil {
			return err
		}
		pte = NewPTE(f.PPN, FlagV)
		pt.writePTE(l2Ppn, l2, pte)
		pt.dirFrames = append(pt.dirFrames, f)
	}

	l1Ppn := pte.PPN()
	l1Ptes := pt.pteArray(l1Ppn)
	leaf := l1Ptes[l1]
	if !leaf.IsValid() {
		pt.writePTE(l1Ppn, l1, NewPTE(ppn, flags|FlagV))
	}
	return nil
}

// Unmap zeros the leaf PTE for vpn. It panics if no valid leaf exists,
// matching los-lab's "unmap a none page" panic.
func (pt *PageTable) Unmap(vpn addr.VirtPageNum) {
	loc := pt.findPTE(vpn)
	if loc == nil {
		panic(fmt.Sprintf("pagetable: unmap of unmapped vpn %#x", vpn))
	}
	loc.write(PTE{})
}

func (pt *PageTable) findPTE(vpn addr.VirtPageNum) *pteLocation {
	l3, l2, l1 := levelIndices(vpn)

	pte := pt.pteArray(pt.rootPPN)[l3]
	if !pte.IsValid() {
		return nil
	}
	l2Ppn := pte.PPN()
	pte = pt.pteArray(l2Ppn)[l2]
	if !pte.IsValid() {
		return nil
	}
	l1Ppn := pte.PPN()
	leaf := pt.pteArray(l1Ppn)[l1]
	if !leaf.IsValid() {
		return nil
	}
	return &pteLocation{pt: pt, ppn: l1Ppn, index: l1, pte: leaf}
}

// pteLocation names a live PTE slot: the frame it lives in plus its index,
// enough to overwrite it in place — the equivalent of the original's
// `*mut PageTableEntry`.
type pteLocation struct {
	pt    *PageTable
	ppn   addr.PhysPageNum
	index int
	pte   PTE
}

func (l *pteLocation) write(pte PTE) { l.pt.writePTE(l.ppn, l.index, pte) }

// TranslateVPN returns the leaf PTE mapped for vpn, or ok=false if none.
func (pt *PageTable) TranslateVPN(vpn addr.VirtPageNum) (PTE, bool) {
	loc := pt.findPTE(vpn)
	if loc == nil {
		return PTE{}, false
	}
	return loc.pte, true
}

// TranslateVA resolves a virtual address to its physical address by
// translating its containing page and re-applying the byte offset.
func (pt *PageTable) TranslateVA(va addr.VirtAddr) (addr.PhysAddr, error) {
	pte, ok := pt.TranslateVPN(va.FloorVPN())
	if !ok {
		return 0, kerrors.New(kerrors.KindTranslate, "unmapped va %#x", va)
	}
	return addr.PhysAddr(uint64(pte.PPN().ToPhysAddr()) + va.Offset()), nil
}

// TranslateBytes resolves a user (va, len) span to the physical byte
// slices backing it, one slice per page straddled, in order. It grounds
// spec §8 testable property #8 ("a buffer straddling two pages produces
// output equal to the byte-wise concatenation of the two physical
// slices"), matching biscuit's Userbuf_t._tx cross-page copy loop.
// It returns an error without touching anything if any page in the span
// is unmapped.
func (pt *PageTable) TranslateBytes(va addr.VirtAddr, length int) ([][]byte, error) {
	if length == 0 {
		return nil, nil
	}
	start := va
	end := va.Add(uint64(length))
	var slices [][]byte
	cur := start
	for cur < end {
		vpn := cur.FloorVPN()
		pte, ok := pt.TranslateVPN(vpn)
		if !ok {
			return nil, kerrors.New(kerrors.KindTranslate, "unmapped va %#x in range [%#x,%#x)", cur, start, end)
		}
		pageBytes := pt.alloc.Page(pte.PPN())
		pageStart := cur.Offset()
		pageEnd := uint64(len(pageBytes))
		nextPageVA := vpn.Offset(1).ToVirtAddr()
		if end < nextPageVA {
			pageEnd = end.Offset()
		}
		slices = append(slices, pageBytes[pageStart:pageEnd])
		cur = nextPageVA
		if cur > end {
			cur = end
		}
	}
	return slices, nil
}

// TranslateCString reads a NUL-terminated byte string starting at va,
// translating page by page as the string crosses page boundaries.
func (pt *PageTable) TranslateCString(va addr.VirtAddr) (string, error) {
	var out []byte
	cur := va
	for {
		vpn := cur.FloorVPN()
		pte, ok := pt.TranslateVPN(vpn)
		if !ok {
			return "", kerrors.New(kerrors.KindTranslate, "unmapped va %#x while reading c-string", cur)
		}
		pageBytes := pt.alloc.Page(pte.PPN())
		for off := cur.Offset(); off < uint64(len(pageBytes)); off++ {
			b := pageBytes[off]
			if b == 0 {
				return string(out), nil
			}
			out = append(out, b)
		}
		cur = vpn.Offset(1).ToVirtAddr()
	}
}

// forkPair names a (source-side, destination-side) physical page pair
// linking a parent interior PTE to its copied child, used to thread the
// three-pass walk in ForkFrom.
type forkPair struct {
	srcPPN, dstPPN addr.PhysPageNum
}

// ForkFrom performs the three-pass deep copy of src onto pt: level-3
// interior, then level-2 interior, then leaves (the leaf pass additionally
// copies page contents byte-wise). Every new frame is allocated from pt's
// allocator and owned by pt, per spec §4.2.
func (pt *PageTable) ForkFrom(src *PageTable) error {
	l2Pairs, err := pt.copyInteriorLevel(src, []forkPair{{src.rootPPN, pt.rootPPN}})
	if err != nil {
		return err
	}
	l1Pairs, err := pt.copyInteriorLevel(src, l2Pairs)
	if err != nil {
		return err
	}
	for _, pair := range l1Pairs {
		for i, srcPte := range src.pteArray(pair.srcPPN) {
			if !srcPte.IsValid() {
				continue
			}
			f, ferr := pt.alloc.AllocErr("fork leaf page")
			if ferr != nil {
				return ferr
			}
			copy(pt.alloc.Page(f.PPN), src.alloc.Page(srcPte.PPN()))
			pt.writePTE(pair.dstPPN, i, NewPTE(f.PPN, srcPte.Flags()))
			// Leaf frames are owned by the caller's MapArea bookkeeping
			// (see internal/addrspace.AddressSpace.Fork), not by dirFrames:
			// only interior nodes belong to the table itself.
		}
	}
	return nil
}

// copyInteriorLevel allocates one destination frame per valid PTE in each
// parent pair's source page, links it with flags=V, and returns the next
// level's (source, destination) pairs.
func (pt *PageTable) copyInteriorLevel(src *PageTable, parents []forkPair) ([]forkPair, error) {
	var children []forkPair
	for _, parent := range parents {
		for i, srcPte := range src.pteArray(parent.srcPPN) {
			if !srcPte.IsValid() {
				continue
			}
			f, err := pt.alloc.AllocErr("fork interior page table frame")
			if err != nil {
				return nil, err
			}
			pt.writePTE(parent.dstPPN, i, NewPTE(f.PPN, FlagV))
			pt.dirFrames = append(pt.dirFrames, f)
			children = append(children, forkPair{srcPPN: srcPte.PPN(), dstPPN: f.PPN})
		}
	}
	return children, nil
}

// Satp renders this table's root PPN into the SV39 SATP encoding
// (mode=8<<60, asid=0), matching `PageTable::satp`.
func (pt *PageTable) Satp() uint64 {
	return (8 << 60) | uint64(pt.rootPPN)
}

// RootPPN returns the table's root physical page number.
func (pt *PageTable) RootPPN() addr.PhysPageNum { return pt.rootPPN }
