// Package kconfig holds the handful of compile-time constants shared by
// every kernel package, mirroring los-lab's config.rs and biscuit's
// per-package magic numbers (mem.PGSHIFT, limits.MAX_PID).
package kconfig

const (
	// PageOffsetWidth is the number of bits of page offset (Sv39: 4KiB pages).
	PageOffsetWidth = 12
	// PageSize is the size in bytes of one page.
	PageSize = 1 << PageOffsetWidth

	// PhysAddrWidth is the width in bits of a physical address in Sv39.
	PhysAddrWidth = 56
	// PhysPageNumWidth is the width in bits of a physical page number.
	PhysPageNumWidth = PhysAddrWidth - PageOffsetWidth

	// GuardPageCount is the number of unmapped guard pages below a stack.
	GuardPageCount = 1

	// KernelStackSize is the size in bytes of one task's kernel stack.
	KernelStackSize = 1 << 13
	// UserStackSize is the size in bytes of one task's user stack.
	UserStackSize = 1 << 13

	// KernelHeapSize is the size in bytes of the static kernel heap region.
	KernelHeapSize = 1 << 20

	// MaxPid is the largest PID value the allocator will ever hand out.
	MaxPid = 65536

	// MsPerTimeSlice is the preemption quantum in milliseconds.
	MsPerTimeSlice = 10
	// MsPerSec and UsPerSec are the usual unit conversions for TimeVal math.
	MsPerSec = 1000
	UsPerSec = MsPerSec * 1000
)
