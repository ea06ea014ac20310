package task

import "testing"

func TestPidAllocIsUniqueAndSequential(t *testing.T) {
	a := NewPidAllocator()
	p1, err := a.Alloc()
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	p2, err := a.Alloc()
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if p1.N() == p2.N() {
		t.Fatalf("expected distinct pids, got %d twice", p1.N())
	}
}

func TestPidFreeRecycles(t *testing.T) {
	a := NewPidAllocator()
	p1, _ := a.Alloc()
	n1 := p1.N()
	p1.Free()

	p2, err := a.Alloc()
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if p2.N() != n1 {
		t.Fatalf("expected recycled pid %d, got %d", n1, p2.N())
	}
}

func TestPidDoubleFreePanics(t *testing.T) {
	a := NewPidAllocator()
	p, _ := a.Alloc()
	p.Free()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double free")
		}
	}()
	p.Free()
}

func TestPidAllocatorExhaustion(t *testing.T) {
	a := &PidAllocator{current: 1, end: 2}
	if _, err := a.Alloc(); err != nil {
		t.Fatalf("first alloc: %v", err)
	}
	if _, err := a.Alloc(); err == nil {
		t.Fatal("expected out-of-pids error")
	}
}
