// Package frame implements the physical-frame allocator of spec §4.1: a
// bump allocator over a caller-owned PPN range with a LIFO free list for
// reuse, grounded on los-lab's mm/frame_allocator.rs (StackFrameAllocator)
// and biscuit's mem/mem.go (Physmem_t's free-list push/pop discipline and
// embedded sync.Mutex).
//
// Because this kernel has no real backing hardware, the allocator also owns
// the byte-addressable simulated RAM a Frame's PPN resolves to — the
// equivalent of biscuit's Physmem_t.Dmap direct-map helper.
package frame

import (
	"fmt"
	"sync"

	"github.com/logeable/los-lab/internal/addr"
	"github.com/logeable/los-lab/internal/kconfig"
	"github.com/logeable/los-lab/internal/kerrors"
)

// Frame owns exactly one physical page. Its zero value is not valid; obtain
// one via Allocator.Alloc. Dropping a Frame (calling Free) returns the page
// to the allocator it came from.
type Frame struct {
	PPN   addr.PhysPageNum
	alloc *Allocator
	freed bool
}

// Bytes returns the page's backing storage. Valid until Free is called.
func (f *Frame) Bytes() []byte { return f.alloc.store.Page(f.PPN) }

// Free returns the frame's page to its allocator. Freeing twice panics,
// matching the fatal-on-programmer-error policy of spec §4.1.
func (f *Frame) Free() {
	if f.freed {
		panic(fmt.Sprintf("frame: double free of ppn=%#x", f.PPN))
	}
	f.freed = true
	f.alloc.dealloc(f.PPN)
}

// Allocator is a bump + LIFO-recycle allocator over [start, end) physical
// page numbers, guarded by a single mutex (spec §5: "each behind a single
// spin mutex").
type Allocator struct {
	mu       sync.Mutex
	start    addr.PhysPageNum
	current  addr.PhysPageNum
	end      addr.PhysPageNum
	recycled []addr.PhysPageNum
	store    *store
}

// New builds an allocator over the physical page range [start, end),
// backed by a simulated RAM region large enough to address every page up
// to end. It panics if start >= end, matching "asserts start<end; fails
// hard otherwise" in spec §4.1.
func New(start, end addr.PhysPageNum) *Allocator {
	if start >= end {
		panic(fmt.Sprintf("frame: bad range [%#x, %#x)", start, end))
	}
	return &Allocator{
		start:   start,
		current: start,
		end:     end,
		store:   newStore(end),
	}
}

// Alloc hands out a zeroed frame, preferring recycled PPNs (LIFO) for cache
// locality before bumping the watermark, per spec §4.1.
func (a *Allocator) Alloc() (*Frame, bool) {
	a.mu.Lock()
	var ppn addr.PhysPageNum
	ok := false
	if n := len(a.recycled); n > 0 {
		ppn = a.recycled[n-1]
		a.recycled = a.recycled[:n-1]
		ok = true
	} else if a.current < a.end {
		ppn = a.current
		a.current++
		ok = true
	}
	a.mu.Unlock()
	if !ok {
		return nil, false
	}
	f := &Frame{PPN: ppn, alloc: a}
	zero(f.Bytes())
	return f, true
}

// AllocErr is Alloc wrapped in a *kerrors.Error for callers that propagate
// allocation failure up as an error (spec §7 "Allocation: out-of-frames").
func (a *Allocator) AllocErr(what string) (*Frame, error) {
	f, ok := a.Alloc()
	if !ok {
		return nil, kerrors.New(kerrors.KindAllocFrame, "%s: out of frames", what)
	}
	return f, nil
}

func (a *Allocator) dealloc(ppn addr.PhysPageNum) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ppn >= a.current {
		panic(fmt.Sprintf("frame: dealloc of never-allocated ppn=%#x", ppn))
	}
	for _, r := range a.recycled {
		if r == ppn {
			panic(fmt.Sprintf("frame: double dealloc of ppn=%#x", ppn))
		}
	}
	a.recycled = append(a.recycled, ppn)
}

// FreeCount reports the number of frames immediately available: recycled
// pages plus untouched watermark pages (the original's free_frames_count).
func (a *Allocator) FreeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.recycled) + int(a.end-a.current)
}

// Page returns the byte slice backing ppn, for callers (page tables,
// address spaces) that need raw access without owning a Frame handle —
// e.g. to read a PTE array out of an already-allocated interior frame.
func (a *Allocator) Page(ppn addr.PhysPageNum) []byte {
	return a.store.Page(ppn)
}

// Adopt wraps an already-allocated ppn (e.g. one produced by a page
// table's internal fork copy) in a Frame handle owned by this allocator,
// so a caller that did not perform the original Alloc can still free it
// exactly once through the normal Frame.Free path.
func (a *Allocator) Adopt(ppn addr.PhysPageNum) *Frame {
	return &Frame{PPN: ppn, alloc: a}
}

// store is the simulated physical RAM backing every PPN up to `end`. It
// exists only because this kernel is not running on real hardware; it
// plays the role of biscuit's direct map (Physmem_t.Dmap).
type store struct {
	mem []byte
}

func newStore(end addr.PhysPageNum) *store {
	return &store{mem: make([]byte, uint64(end)*kconfig.PageSize)}
}

func (s *store) Page(ppn addr.PhysPageNum) []byte {
	off := uint64(ppn) * kconfig.PageSize
	if off+kconfig.PageSize > uint64(len(s.mem)) {
		panic(fmt.Sprintf("frame: ppn %#x out of simulated RAM bounds", ppn))
	}
	return s.mem[off : off+kconfig.PageSize]
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
