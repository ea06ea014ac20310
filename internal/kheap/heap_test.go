package kheap

import "testing"

func TestAllocFreeReuse(t *testing.T) {
	h := New()
	a, err := h.Alloc(64)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	st := h.Stats()
	if st.Requested != 64 {
		t.Fatalf("Requested = %d, want 64", st.Requested)
	}
	h.Free(a)
	st = h.Stats()
	if st.Actual != 0 {
		t.Fatalf("Actual after free = %d, want 0", st.Actual)
	}
}

func TestAllocCoalescesOnFree(t *testing.T) {
	h := New()
	a, _ := h.Alloc(128)
	b, _ := h.Alloc(128)
	h.Free(a)
	h.Free(b)
	if len(h.blocks) != 1 || !h.blocks[0].free {
		t.Fatalf("expected single coalesced free block, got %+v", h.blocks)
	}
}

func TestAllocExhaustion(t *testing.T) {
	h := New()
	total := len(h.mem)
	if _, err := h.Alloc(total + 1); err == nil {
		t.Fatal("expected heap-exhausted error")
	}
}

func TestFreeOfUnknownPanics(t *testing.T) {
	h := New()
	other := New()
	a, _ := other.Alloc(16)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic freeing block from a different heap")
		}
	}()
	h.Free(a)
}
