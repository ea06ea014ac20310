// Package addrspace assembles a page table and a set of map areas into a
// process or kernel address space, grounded on los-lab's
// mm/memory_space.rs (MemorySpace, MapArea, MapType, MapPermission) and
// biscuit's vm/userbuf.go (Userbuf_t._tx's cross-page copy loop, which
// grounds TranslateBytes users reading/writing a user buffer).
// AddressSpace has no lock of its own; nothing here serializes
// concurrent mutation of one address space.
package addrspace

import (
	"github.com/logeable/los-lab/internal/addr"
	"github.com/logeable/los-lab/internal/elfimg"
	"github.com/logeable/los-lab/internal/frame"
	"github.com/logeable/los-lab/internal/kconfig"
	"github.com/logeable/los-lab/internal/kerrors"
	"github.com/logeable/los-lab/internal/pagetable"
)

// Perm is the subset of pagetable.Flags an area may request: R, W, X, U.
type Perm = pagetable.Flags

const (
	PermR = pagetable.FlagR
	PermW = pagetable.FlagW
	PermX = pagetable.FlagX
	PermU = pagetable.FlagU
)

// MapType selects how a MapArea's pages are backed.
type MapType int

const (
	// Identical maps each VPN to the physical page number of the same
	// number — used for kernel regions that are already physically
	// addressed (spec §4.3).
	Identical MapType = iota
	// Framed allocates a fresh Frame per page.
	Framed
)

// MapArea is a contiguous VPN range sharing one mapping mode and
// permission set.
type MapArea struct {
	vpnRange   addr.VPNRange
	mapType    MapType
	perm       Perm
	leafFrames map[addr.VirtPageNum]*frame.Frame
}

func newMapArea(startVA, endVA addr.VirtAddr, mapType MapType, perm Perm) *MapArea {
	return &MapArea{
		vpnRange:   addr.NewVPNRange(startVA.FloorVPN(), endVA.CeilVPN()),
		mapType:    mapType,
		perm:       perm,
		leafFrames: make(map[addr.VirtPageNum]*frame.Frame),
	}
}

func (a *MapArea) install(pt *pagetable.PageTable, alloc *frame.Allocator) error {
	for _, vpn := range a.vpnRange.Iter() {
		var ppn addr.PhysPageNum
		switch a.mapType {
		case Identical:
			ppn = addr.PhysPageNum(vpn)
		case Framed:
			f, err := alloc.AllocErr("map area framed page")
			if err != nil {
				return err
			}
			ppn = f.PPN
			a.leafFrames[vpn] = f
		}
		if err := pt.Map(vpn, ppn, a.perm); err != nil {
			return err
		}
	}
	return nil
}

func (a *MapArea) remove(pt *pagetable.PageTable) {
	for _, vpn := range a.vpnRange.Iter() {
		pt.Unmap(vpn)
		if f, ok := a.leafFrames[vpn]; ok {
			f.Free()
			delete(a.leafFrames, vpn)
		}
	}
}

// AddressSpace owns one page table and the map areas composing it.
type AddressSpace struct {
	alloc *frame.Allocator
	pt    *pagetable.PageTable
	areas []*MapArea
}

// NewBare returns an empty address space: a fresh root page table, no areas.
func NewBare(alloc *frame.Allocator) (*AddressSpace, error) {
	pt, err := pagetable.New(alloc)
	if err != nil {
		return nil, err
	}
	return &AddressSpace{alloc: alloc, pt: pt}, nil
}

// KernelSection describes one identity-mapped region of the kernel
// address space (the simulated stand-ins for .text/.rodata/.data/.bss,
// since this kernel has no real linker script to read section boundaries
// from).
type KernelSection struct {
	StartVA, EndVA addr.VirtAddr
	Perm           Perm
}

// NewKernel builds the kernel's own address space: one identity area per
// supplied section plus the trampoline page, matching
// MemorySpace::new_kernel's section-by-section walk.
func NewKernel(alloc *frame.Allocator, sections []KernelSection, trampolinePPN addr.PhysPageNum) (*AddressSpace, error) {
	as, err := NewBare(alloc)
	if err != nil {
		return nil, err
	}
	if err := as.AddTrampolineArea(trampolinePPN); err != nil {
		return nil, err
	}
	for _, s := range sections {
		if err := as.AddIdenticalArea(s.StartVA, s.EndVA, s.Perm); err != nil {
			return nil, kerrors.Wrap(kerrors.KindAddMapArea, err, "add kernel section [%#x,%#x)", s.StartVA, s.EndVA)
		}
	}
	return as, nil
}

// NewELF parses elfBytes, installs one Framed area per PT_LOAD segment,
// copies segment data in page-sized chunks, then appends the trampoline,
// the trap-context page, a guard gap, and the user stack — matching
// MemorySpace::new_elf verbatim. It returns the space, the user stack
// top VA, and the ELF entry point.
func NewELF(alloc *frame.Allocator, elfBytes []byte, trampolinePPN addr.PhysPageNum) (as *AddressSpace, userStackTop addr.VirtAddr, entry addr.VirtAddr, err error) {
	img, err := elfimg.Parse(elfBytes)
	if err != nil {
		return nil, 0, 0, err
	}
	as, err = NewBare(alloc)
	if err != nil {
		return nil, 0, 0, err
	}

	var maxVPN addr.VirtPageNum
	for _, seg := range img.Segments {
		startVA := addr.VirtAddr(seg.VAddr)
		endVA := startVA.Add(seg.MemSize)
		perm := PermU
		if seg.Perm.Read {
			perm |= PermR
		}
		if seg.Perm.Write {
			perm |= PermW
		}
		if seg.Perm.Exec {
			perm |= PermX
		}
		area := newMapArea(startVA, endVA, Framed, perm)
		if area.vpnRange.End > maxVPN {
			maxVPN = area.vpnRange.End
		}
		if err := as.addMapAreaWithData(area, seg.Data); err != nil {
			return nil, 0, 0, kerrors.Wrap(kerrors.KindAddMapArea, err, "add elf segment (va=%#x)", seg.VAddr)
		}
	}

	if err := as.AddTrampolineArea(trampolinePPN); err != nil {
		return nil, 0, 0, err
	}

	trapCtxVA := TrapContextVA()
	if err := as.AddFramedArea(trapCtxVA, trapCtxVA.Add(kconfig.PageSize), PermR|PermW); err != nil {
		return nil, 0, 0, kerrors.Wrap(kerrors.KindAddMapArea, err, "add trap context area")
	}

	userStackStart := maxVPN.Offset(kconfig.GuardPageCount).ToVirtAddr()
	userStackEnd := userStackStart.Add(kconfig.UserStackSize)
	if err := as.AddFramedArea(userStackStart, userStackEnd, PermU|PermR|PermW); err != nil {
		return nil, 0, 0, kerrors.Wrap(kerrors.KindAddMapArea, err, "add user stack area")
	}

	return as, userStackEnd, addr.VirtAddr(img.Entry), nil
}

func (as *AddressSpace) addMapArea(area *MapArea) error {
	if err := area.install(as.pt, as.alloc); err != nil {
		return kerrors.Wrap(kerrors.KindAddMapArea, err, "install map area failed")
	}
	as.areas = append(as.areas, area)
	return nil
}

func (as *AddressSpace) addMapAreaWithData(area *MapArea, data []byte) error {
	if area.mapType != Framed {
		panic("addrspace: addMapAreaWithData requires a Framed area")
	}
	if area.vpnRange.MemorySize() < len(data) {
		panic("addrspace: segment data larger than its map area")
	}
	vpns := area.vpnRange.Iter()
	if err := as.addMapArea(area); err != nil {
		return err
	}
	for i, vpn := range vpns {
		start := i * kconfig.PageSize
		if start >= len(data) {
			break
		}
		end := start + kconfig.PageSize
		if end > len(data) {
			end = len(data)
		}
		pte, ok := as.pt.TranslateVPN(vpn)
		if !ok {
			panic("addrspace: just-installed vpn is not mapped")
		}
		copy(as.alloc.Page(pte.PPN()), data[start:end])
	}
	return nil
}

// AddIdenticalArea installs an identity-mapped area over [startVA, endVA).
func (as *AddressSpace) AddIdenticalArea(startVA, endVA addr.VirtAddr, perm Perm) error {
	return as.addMapArea(newMapArea(startVA, endVA, Identical, perm))
}

// AddFramedArea installs a freshly-framed area over [startVA, endVA).
func (as *AddressSpace) AddFramedArea(startVA, endVA addr.VirtAddr, perm Perm) error {
	return as.addMapArea(newMapArea(startVA, endVA, Framed, perm))
}

// AddTrampolineArea maps the single trampoline page at its well-known VA
// to trampolinePPN. Unlike other areas, the trampoline is installed
// directly on the page table and not tracked as a MapArea, matching
// add_trampoline_area (it is never removed or iterated over).
func (as *AddressSpace) AddTrampolineArea(trampolinePPN addr.PhysPageNum) error {
	return as.pt.Map(TrampolineVA().FloorVPN(), trampolinePPN, PermR|PermX)
}

// AddAppKernelStackArea installs app pid's kernel stack below the
// trampoline, at a slot reserved by pid with one guard page beneath it,
// and returns the stack's top VA.
func (as *AddressSpace) AddAppKernelStackArea(pid int) (addr.VirtAddr, error) {
	stride := kconfig.KernelStackSize + kconfig.GuardPageCount*kconfig.PageSize
	endVA := kernelStackTopVA().Sub(uint64(pid) * uint64(stride))
	startVA := endVA.Sub(kconfig.KernelStackSize)
	if err := as.AddFramedArea(startVA, endVA, PermR|PermW); err != nil {
		return 0, err
	}
	return endVA, nil
}

// RemoveAreaByStartVA unmaps and drops the area beginning at startVA. It
// reports whether a matching area was found. The area's leaf frames are
// freed; interior page-table frames stay allocated.
func (as *AddressSpace) RemoveAreaByStartVA(startVA addr.VirtAddr) bool {
	vpn := startVA.FloorVPN()
	for i, area := range as.areas {
		if area.vpnRange.Start != vpn {
			continue
		}
		area.remove(as.pt)
		as.areas = append(as.areas[:i], as.areas[i+1:]...)
		return true
	}
	return false
}

// Activate returns this address space's SATP encoding. This kernel has no
// real SATP register: nothing installs the value into CPU state or issues
// a TLB fence.
func (as *AddressSpace) Activate() uint64 {
	return as.pt.Satp()
}

// PageTable exposes the underlying table for syscall user-pointer
// translation and trap-context resolution.
func (as *AddressSpace) PageTable() *pagetable.PageTable { return as.pt }

// Fork produces an independent address space whose areas mirror this
// one's (same ranges, modes, perms) with byte-identical Framed page
// contents, via the page table's three-pass deep copy. ForkFrom copies
// every valid leaf, the trampoline included; that private copy is
// unmapped and freed, and trampolinePPN is mapped in its place.
func (as *AddressSpace) Fork(trampolinePPN addr.PhysPageNum) (*AddressSpace, error) {
	dst, err := NewBare(as.alloc)
	if err != nil {
		return nil, err
	}
	if err := dst.pt.ForkFrom(as.pt); err != nil {
		return nil, err
	}
	for _, area := range as.areas {
		childArea := &MapArea{
			vpnRange:   area.vpnRange,
			mapType:    area.mapType,
			perm:       area.perm,
			leafFrames: make(map[addr.VirtPageNum]*frame.Frame),
		}
		if area.mapType == Framed {
			for vpn := range area.leafFrames {
				pte, ok := dst.pt.TranslateVPN(vpn)
				if !ok {
					return nil, kerrors.New(kerrors.KindPageTableMap, "forked table missing vpn %#x present in source", vpn)
				}
				childArea.leafFrames[vpn] = dst.alloc.Adopt(pte.PPN())
			}
		}
		dst.areas = append(dst.areas, childArea)
	}
	trampVPN := TrampolineVA().FloorVPN()
	if pte, ok := dst.pt.TranslateVPN(trampVPN); ok {
		dst.pt.Unmap(trampVPN)
		dst.alloc.Adopt(pte.PPN()).Free()
	}
	if err := dst.AddTrampolineArea(trampolinePPN); err != nil {
		return nil, err
	}
	return dst, nil
}

// TrapContextBytes resolves trap_context_va to its backing physical page,
// for the trap-context record to be read or written through.
func (as *AddressSpace) TrapContextBytes() ([]byte, error) {
	pte, ok := as.pt.TranslateVPN(TrapContextVA().FloorVPN())
	if !ok {
		return nil, kerrors.New(kerrors.KindTranslate, "trap context page not mapped")
	}
	return as.alloc.Page(pte.PPN()), nil
}

// TrampolineVA is the single well-known VA mapped identically in the
// kernel and every user address space (spec §4.3).
func TrampolineVA() addr.VirtAddr {
	return addr.HighHalfMax.Sub(kconfig.PageSize - 1)
}

// TrapContextVA sits one page below the trampoline.
func TrapContextVA() addr.VirtAddr {
	return TrampolineVA().Sub(kconfig.PageSize)
}

func kernelStackTopVA() addr.VirtAddr {
	return TrampolineVA()
}
