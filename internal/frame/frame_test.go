package frame

import (
	"testing"

	"github.com/logeable/los-lab/internal/addr"
)

func TestAllocBumpsThenRecycles(t *testing.T) {
	a := New(0, 4)
	var got []addr.PhysPageNum
	for i := 0; i < 4; i++ {
		f, ok := a.Alloc()
		if !ok {
			t.Fatalf("alloc %d failed", i)
		}
		got = append(got, f.PPN)
	}
	if _, ok := a.Alloc(); ok {
		t.Fatal("expected allocator to be exhausted")
	}
	// free the last one allocated; LIFO recycle should hand it back first.
	last := got[len(got)-1]
	for _, f := range []addr.PhysPageNum{last} {
		_ = f
	}
	fr := &Frame{PPN: last, alloc: a}
	fr.Free()
	next, ok := a.Alloc()
	if !ok || next.PPN != last {
		t.Fatalf("expected recycled ppn %#x back, got %#x ok=%v", last, next.PPN, ok)
	}
}

func TestAllocZeroesPage(t *testing.T) {
	a := New(0, 2)
	f, _ := a.Alloc()
	for _, b := range f.Bytes()[:16] {
		if b != 0 {
			t.Fatal("expected freshly allocated frame to be zeroed")
		}
	}
	f.Bytes()[0] = 0xff
	f.Free()
	f2, _ := a.Alloc()
	if f2.PPN != f.PPN {
		t.Skip("different ppn returned; zero check not applicable")
	}
	if f2.Bytes()[0] != 0 {
		t.Fatal("expected recycled frame to be re-zeroed on alloc")
	}
}

func TestDoubleDeallocPanics(t *testing.T) {
	a := New(0, 2)
	f, _ := a.Alloc()
	f.Free()
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on double free")
		}
	}()
	f.Free()
}

func TestDeallocNeverAllocatedPanics(t *testing.T) {
	a := New(0, 4)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on dealloc of never-allocated ppn")
		}
	}()
	a.dealloc(3)
}

func TestBadRangePanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for start >= end")
		}
	}()
	New(5, 5)
}

func TestFreeCount(t *testing.T) {
	a := New(0, 10)
	if a.FreeCount() != 10 {
		t.Fatalf("FreeCount = %d, want 10", a.FreeCount())
	}
	f, _ := a.Alloc()
	if a.FreeCount() != 9 {
		t.Fatalf("FreeCount after alloc = %d, want 9", a.FreeCount())
	}
	f.Free()
	if a.FreeCount() != 10 {
		t.Fatalf("FreeCount after free = %d, want 10", a.FreeCount())
	}
}
