package task

import (
	"testing"

	"github.com/logeable/los-lab/internal/addrspace"
	"github.com/logeable/los-lab/internal/frame"
)

func newTestKernelAS(t *testing.T) *addrspace.AddressSpace {
	t.Helper()
	alloc := frame.New(0, 8192)
	tramp, ok := alloc.Alloc()
	if !ok {
		t.Fatal("out of frames for trampoline")
	}
	as, err := addrspace.NewKernel(alloc, nil, tramp.PPN)
	if err != nil {
		t.Fatalf("NewKernel: %v", err)
	}
	return as
}

func newTestTCB(t *testing.T, name string, pidAlloc *PidAllocator, kernelAS *addrspace.AddressSpace) *TCB {
	t.Helper()
	pid, err := pidAlloc.Alloc()
	if err != nil {
		t.Fatalf("pid alloc: %v", err)
	}
	stack, err := NewKernelStack(kernelAS, pid.N())
	if err != nil {
		t.Fatalf("kernel stack: %v", err)
	}
	alloc := frame.New(0, 8192)
	as, err := addrspace.NewBare(alloc)
	if err != nil {
		t.Fatalf("NewBare: %v", err)
	}
	return New(name, pid, stack, as, 0x1000)
}

func TestNewTCBIsReadyWithContextFromStackTop(t *testing.T) {
	kernelAS := newTestKernelAS(t)
	pidAlloc := NewPidAllocator()
	tcb := newTestTCB(t, "init", pidAlloc, kernelAS)

	if tcb.Status() != StatusReady {
		t.Fatalf("status = %v, want Ready", tcb.Status())
	}
	if tcb.Context.RA != 0x1000 {
		t.Fatalf("RA = %#x, want 0x1000", tcb.Context.RA)
	}
	if tcb.Context.SP != tcb.kernelStack.Top() {
		t.Fatalf("SP = %#x, want stack top %#x", tcb.Context.SP, tcb.kernelStack.Top())
	}
}

func TestSetStatusAfterExitPanics(t *testing.T) {
	kernelAS := newTestKernelAS(t)
	pidAlloc := NewPidAllocator()
	tcb := newTestTCB(t, "a", pidAlloc, kernelAS)
	tcb.Exit(7)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic setting status after exit")
		}
	}()
	tcb.SetStatus(StatusReady)
}

func TestExitCodeReportsOnlyAfterExit(t *testing.T) {
	kernelAS := newTestKernelAS(t)
	pidAlloc := NewPidAllocator()
	tcb := newTestTCB(t, "a", pidAlloc, kernelAS)

	if _, ok := tcb.ExitCode(); ok {
		t.Fatal("expected no exit code before exit")
	}
	tcb.Exit(3)
	code, ok := tcb.ExitCode()
	if !ok || code != 3 {
		t.Fatalf("ExitCode() = (%d, %v), want (3, true)", code, ok)
	}
}

func TestAddChildSetsParentPidAndOwnsChild(t *testing.T) {
	kernelAS := newTestKernelAS(t)
	pidAlloc := NewPidAllocator()
	parent := newTestTCB(t, "parent", pidAlloc, kernelAS)
	child := newTestTCB(t, "child", pidAlloc, kernelAS)

	parent.AddChild(child)

	if child.ParentPid != parent.Pid() {
		t.Fatalf("ParentPid = %d, want %d", child.ParentPid, parent.Pid())
	}
	if len(parent.Children) != 1 || parent.Children[0] != child {
		t.Fatalf("expected parent to own child")
	}
}

func TestRemoveChildAndTakeChildren(t *testing.T) {
	kernelAS := newTestKernelAS(t)
	pidAlloc := NewPidAllocator()
	parent := newTestTCB(t, "parent", pidAlloc, kernelAS)
	c1 := newTestTCB(t, "c1", pidAlloc, kernelAS)
	c2 := newTestTCB(t, "c2", pidAlloc, kernelAS)
	parent.AddChild(c1)
	parent.AddChild(c2)

	got, ok := parent.RemoveChild(c1.Pid())
	if !ok || got != c1 {
		t.Fatalf("RemoveChild(%d) = (%v, %v), want (c1, true)", c1.Pid(), got, ok)
	}
	if len(parent.Children) != 1 {
		t.Fatalf("expected 1 remaining child, got %d", len(parent.Children))
	}

	rest := parent.TakeChildren()
	if len(rest) != 1 || rest[0] != c2 {
		t.Fatalf("TakeChildren() = %v, want [c2]", rest)
	}
	if len(parent.Children) != 0 {
		t.Fatal("expected Children cleared after TakeChildren")
	}
}

func TestReleaseFreesKernelStackAndPid(t *testing.T) {
	kernelAS := newTestKernelAS(t)
	pidAlloc := NewPidAllocator()
	tcb := newTestTCB(t, "a", pidAlloc, kernelAS)
	pid := tcb.Pid()

	tcb.Release()

	p2, err := pidAlloc.Alloc()
	if err != nil {
		t.Fatalf("alloc after release: %v", err)
	}
	if p2.N() != pid {
		t.Fatalf("expected released pid %d recycled, got %d", pid, p2.N())
	}
}
