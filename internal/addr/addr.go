// Package addr implements the typed physical/virtual address and page-number
// arithmetic of spec §3 "Physical/Virtual page number". It is a direct port
// of los-lab's mm/address.rs, renamed into Go's PhysAddr/VirtAddr/
// PhysPageNum/VirtPageNum, alongside biscuit's Pa_t-style page-size
// constants in mem/mem.go.
package addr

import "github.com/logeable/los-lab/internal/kconfig"

const (
	pageOffsetWidth = kconfig.PageOffsetWidth
	pageSize        = kconfig.PageSize
	physAddrWidth   = kconfig.PhysAddrWidth
	physPageWidth   = kconfig.PhysPageNumWidth
)

// PhysAddr is a 56-bit physical address (Sv39).
type PhysAddr uint64

// FloorPPN rounds a physical address down to its containing page number.
func (p PhysAddr) FloorPPN() PhysPageNum { return PhysPageNum(uint64(p) / pageSize) }

// CeilPPN rounds a physical address up to the next page number.
func (p PhysAddr) CeilPPN() PhysPageNum { return PhysPageNum((uint64(p) + pageSize - 1) / pageSize) }

// Offset returns the byte offset within the containing page.
func (p PhysAddr) Offset() uint64 { return uint64(p) % pageSize }

// PhysAddrFromU64 masks a raw integer down to the Sv39 physical address width.
func PhysAddrFromU64(v uint64) PhysAddr {
	return PhysAddr(v & ((1 << physAddrWidth) - 1))
}

// VirtAddr is a virtual address in the Sv39 (or higher-half trampoline)
// address range.
type VirtAddr uint64

// HighHalfMax is the highest representable virtual address, used to derive
// the well-known trampoline/trap-context virtual addresses (spec §4.3).
const HighHalfMax VirtAddr = ^VirtAddr(0)

// FloorVPN rounds a virtual address down to its containing page number.
func (v VirtAddr) FloorVPN() VirtPageNum { return VirtPageNum(uint64(v) / pageSize) }

// CeilVPN rounds a virtual address up to the next page number.
func (v VirtAddr) CeilVPN() VirtPageNum {
	return VirtPageNum((uint64(v) - 1 + pageSize) / pageSize)
}

// IsPageAligned reports whether v falls exactly on a page boundary.
func (v VirtAddr) IsPageAligned() bool { return uint64(v)%pageSize == 0 }

// Offset returns the byte offset within the containing page.
func (v VirtAddr) Offset() uint64 { return uint64(v) % pageSize }

// Add returns v+n.
func (v VirtAddr) Add(n uint64) VirtAddr { return VirtAddr(uint64(v) + n) }

// Sub returns v-n.
func (v VirtAddr) Sub(n uint64) VirtAddr { return VirtAddr(uint64(v) - n) }

// PhysPageNum is a physical page number (44 bits of the PTE's PPN field).
type PhysPageNum uint64

// ToPhysAddr returns the physical address at the start of this page.
func (p PhysPageNum) ToPhysAddr() PhysAddr { return PhysAddr(uint64(p) << pageOffsetWidth) }

// PhysPageNumFromU64 masks a raw integer down to the PPN width.
func PhysPageNumFromU64(v uint64) PhysPageNum {
	return PhysPageNum(v & ((1 << physPageWidth) - 1))
}

// VirtPageNum is a 39-bit virtual page number (Sv39).
type VirtPageNum uint64

// ToVirtAddr returns the virtual address at the start of this page.
func (v VirtPageNum) ToVirtAddr() VirtAddr { return VirtAddr(uint64(v) << pageOffsetWidth) }

// Level1Index returns the 9-bit leaf-level page-table index.
func (v VirtPageNum) Level1Index() int { return int(uint64(v) & 0x1ff) }

// Level2Index returns the 9-bit middle-level page-table index.
func (v VirtPageNum) Level2Index() int { return int((uint64(v) >> 9) & 0x1ff) }

// Level3Index returns the 9-bit top-level page-table index.
func (v VirtPageNum) Level3Index() int { return int((uint64(v) >> 18) & 0x1ff) }

// Offset returns the page numbered n pages after v.
func (v VirtPageNum) Offset(n uint64) VirtPageNum { return VirtPageNum(uint64(v) + n) }

// VPNRange is a half-open range of virtual page numbers [Start, End).
type VPNRange struct {
	Start VirtPageNum
	End   VirtPageNum
}

// NewVPNRange builds a range from two already-rounded endpoints.
func NewVPNRange(start, end VirtPageNum) VPNRange { return VPNRange{Start: start, End: end} }

// Count returns the number of pages in the range.
func (r VPNRange) Count() int {
	if r.End <= r.Start {
		return 0
	}
	return int(r.End - r.Start)
}

// MemorySize returns the byte size covered by the range.
func (r VPNRange) MemorySize() int { return r.Count() * pageSize }

// Iter returns every VPN in the range in ascending order.
func (r VPNRange) Iter() []VirtPageNum {
	out := make([]VirtPageNum, 0, r.Count())
	for v := r.Start; v < r.End; v++ {
		out = append(out, v)
	}
	return out
}

// Contains reports whether vpn falls inside the range.
func (r VPNRange) Contains(vpn VirtPageNum) bool { return vpn >= r.Start && vpn < r.End }
