package sched

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/logeable/los-lab/internal/addrspace"
	"github.com/logeable/los-lab/internal/frame"
	"github.com/logeable/los-lab/internal/loader"
	"github.com/logeable/los-lab/internal/task"
)

func buildMinimalELF(t *testing.T, payload []byte, vaddr, entry uint64) []byte {
	t.Helper()
	const ehdrSize = 64
	const phdrSize = 56
	dataOff := uint64(ehdrSize + phdrSize)

	buf := new(bytes.Buffer)
	ident := [16]byte{0x7f, 'E', 'L', 'F', 2, 1, 1}
	buf.Write(ident[:])
	binary.Write(buf, binary.LittleEndian, uint16(elf.ET_EXEC))
	binary.Write(buf, binary.LittleEndian, uint16(elf.EM_RISCV))
	binary.Write(buf, binary.LittleEndian, uint32(1))
	binary.Write(buf, binary.LittleEndian, entry)
	binary.Write(buf, binary.LittleEndian, uint64(ehdrSize))
	binary.Write(buf, binary.LittleEndian, uint64(0))
	binary.Write(buf, binary.LittleEndian, uint32(0))
	binary.Write(buf, binary.LittleEndian, uint16(ehdrSize))
	binary.Write(buf, binary.LittleEndian, uint16(phdrSize))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(0))
	binary.Write(buf, binary.LittleEndian, uint16(0))
	binary.Write(buf, binary.LittleEndian, uint16(0))

	binary.Write(buf, binary.LittleEndian, uint32(elf.PT_LOAD))
	binary.Write(buf, binary.LittleEndian, uint32(elf.PF_R|elf.PF_W|elf.PF_X))
	binary.Write(buf, binary.LittleEndian, dataOff)
	binary.Write(buf, binary.LittleEndian, vaddr)
	binary.Write(buf, binary.LittleEndian, vaddr)
	binary.Write(buf, binary.LittleEndian, uint64(len(payload)))
	binary.Write(buf, binary.LittleEndian, uint64(len(payload)))
	binary.Write(buf, binary.LittleEndian, uint64(0x1000))

	buf.Write(payload)
	return buf.Bytes()
}

type harness struct {
	sched *Scheduler
}

func newHarness(t *testing.T, apps ...loader.App) *harness {
	t.Helper()
	frameAlloc := frame.New(0, 1<<16)
	tramp, ok := frameAlloc.Alloc()
	if !ok {
		t.Fatal("out of frames for trampoline")
	}
	kernelAS, err := addrspace.NewKernel(frameAlloc, nil, tramp.PPN)
	if err != nil {
		t.Fatalf("NewKernel: %v", err)
	}
	pidAlloc := task.NewPidAllocator()
	ld := loader.New(apps)
	mgr := NewTaskManager(frameAlloc, kernelAS, pidAlloc, tramp.PPN, ld)
	proc := NewProcessor(nil)
	return &harness{sched: New(mgr, proc)}
}

func oneByteApp(t *testing.T, name string) loader.App {
	t.Helper()
	return loader.App{Name: name, ELF: buildMinimalELF(t, []byte{0x13, 0x00, 0x00, 0x00}, 0x1000, 0x1000)}
}

func TestCreateTaskThenRunOnceInstallsCurrent(t *testing.T) {
	h := newHarness(t, oneByteApp(t, "init"))
	tcb, err := h.sched.Manager.CreateTask("init")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	h.sched.Manager.SetInitTCB(tcb)
	h.sched.Manager.PushToRunq(tcb)

	if !h.sched.RunOnce() {
		t.Fatal("expected RunOnce to find a ready task")
	}
	current, ok := h.sched.Processor.Current()
	if !ok || current != tcb {
		t.Fatalf("expected installed current to be the created task")
	}
	if current.Status() != task.StatusRunning {
		t.Fatalf("status = %v, want Running", current.Status())
	}
}

func TestSuspendPushesBackToRunq(t *testing.T) {
	h := newHarness(t, oneByteApp(t, "init"))
	tcb, _ := h.sched.Manager.CreateTask("init")
	h.sched.Manager.SetInitTCB(tcb)
	h.sched.Manager.PushToRunq(tcb)
	h.sched.RunOnce()

	if err := h.sched.SuspendCurrentTaskAndSchedule(); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if _, ok := h.sched.Processor.Current(); ok {
		t.Fatal("expected no current task after suspend")
	}
	requeued, ok := h.sched.Manager.FetchFromRunq()
	if !ok || requeued != tcb {
		t.Fatal("expected suspended task back on the run queue")
	}
	if requeued.Status() != task.StatusReady {
		t.Fatalf("status = %v, want Ready", requeued.Status())
	}
}

func TestForkLinksParentAndChildAndPushesChild(t *testing.T) {
	h := newHarness(t, oneByteApp(t, "init"))
	parent, _ := h.sched.Manager.CreateTask("init")
	h.sched.Manager.SetInitTCB(parent)
	h.sched.Manager.PushToRunq(parent)
	h.sched.RunOnce()

	childPid, err := h.sched.ForkCurrentTask()
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	if len(parent.Children) != 1 || parent.Children[0].Pid() != childPid {
		t.Fatalf("expected parent to own forked child %d", childPid)
	}
	queued, ok := h.sched.Manager.FetchFromRunq()
	if !ok || queued.Pid() != childPid {
		t.Fatal("expected forked child pushed to run queue")
	}
}

func TestExitReparentsChildrenToInit(t *testing.T) {
	h := newHarness(t, oneByteApp(t, "init"))
	initTCB, _ := h.sched.Manager.CreateTask("init")
	h.sched.Manager.SetInitTCB(initTCB)

	parent, _ := h.sched.Manager.CreateTask("init")
	h.sched.Manager.PushToRunq(parent)
	h.sched.RunOnce()

	child, err := h.sched.Manager.forkTask(parent)
	if err != nil {
		t.Fatalf("forkTask: %v", err)
	}

	if err := h.sched.ExitCurrentTaskAndSchedule(5); err != nil {
		t.Fatalf("exit: %v", err)
	}

	if len(parent.Children) != 0 {
		t.Fatalf("expected parent's children cleared, got %d", len(parent.Children))
	}
	if len(initTCB.Children) != 1 || initTCB.Children[0] != child {
		t.Fatal("expected child reparented onto init")
	}
	code, ok := parent.ExitCode()
	if !ok || code != 5 {
		t.Fatalf("ExitCode() = (%d, %v), want (5, true)", code, ok)
	}
}

func TestWaitChildExitReapsOnlyAfterExit(t *testing.T) {
	h := newHarness(t, oneByteApp(t, "init"))
	parent, _ := h.sched.Manager.CreateTask("init")
	h.sched.Manager.PushToRunq(parent)
	h.sched.RunOnce()

	child, err := h.sched.Manager.forkTask(parent)
	if err != nil {
		t.Fatalf("forkTask: %v", err)
	}

	status, err := h.sched.WaitChildExit(WaitAny())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if status != nil {
		t.Fatalf("expected no exited child yet, got %+v", status)
	}

	child.Exit(7)
	status, err = h.sched.WaitChildExit(WaitPid(child.Pid()))
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if status == nil || status.Pid != child.Pid() || status.ExitCode != 7 {
		t.Fatalf("status = %+v, want pid=%d code=7", status, child.Pid())
	}
	if len(parent.Children) != 0 {
		t.Fatal("expected reaped child removed from parent's children")
	}
}

func TestWaitChildExitRollsUpReapedChildAccounting(t *testing.T) {
	h := newHarness(t, oneByteApp(t, "init"))
	parent, _ := h.sched.Manager.CreateTask("init")
	h.sched.Manager.PushToRunq(parent)
	h.sched.RunOnce()

	child, err := h.sched.Manager.forkTask(parent)
	if err != nil {
		t.Fatalf("forkTask: %v", err)
	}
	parent.Acct.AddSystem(100)
	child.Acct.AddSystem(40)
	child.Exit(0)

	if _, err := h.sched.WaitChildExit(WaitPid(child.Pid())); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if got := parent.Acct.Fetch().SystemNanos; got != 140 {
		t.Fatalf("parent.Acct.Fetch().SystemNanos = %d, want 140 after reaping child", got)
	}
}

func TestWaitChildArgFromPidRejectsZero(t *testing.T) {
	if _, err := WaitChildArgFromPid(0); err == nil {
		t.Fatal("expected error for pid=0")
	}
	if _, err := WaitChildArgFromPid(-1); err != nil {
		t.Fatalf("pid=-1 should be valid (any): %v", err)
	}
	if _, err := WaitChildArgFromPid(3); err != nil {
		t.Fatalf("pid=3 should be valid (specific): %v", err)
	}
}
