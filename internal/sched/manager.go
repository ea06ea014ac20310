// Package sched implements spec §4.5's task/processor subsystem:
// TaskManager owns the run queue and the app loader; Processor owns the
// currently-running TCB slot and the idle task context. Grounded on
// los-lab's task/manager.rs and task/processor.rs, kept as two
// separately-locked types per spec §5's "TaskManager -> per-TCB inner
// lock -> Processor" nesting order and the rule that the run queue and
// the current slot are distinct locks.
package sched

import (
	"sync"

	"github.com/logeable/los-lab/internal/addr"
	"github.com/logeable/los-lab/internal/addrspace"
	"github.com/logeable/los-lab/internal/frame"
	"github.com/logeable/los-lab/internal/kerrors"
	"github.com/logeable/los-lab/internal/loader"
	"github.com/logeable/los-lab/internal/task"
	"github.com/logeable/los-lab/internal/trapctx"
)

// trapReturnRA stands in for trap_return's code address: the task
// context's first "return" target. This simulated kernel drives task
// execution directly from Go (internal/trampoline.GoSwitcher is a
// no-op), so the value is never actually jumped to; it exists only so
// every TaskContext carries the field the original hardware port needs.
const trapReturnRA = 0

// trapHandlerVA stands in for process_trap's code address, stored in
// every TrapContext's TrapHandler field for the same reason: nothing
// dereferences it here, since internal/trap's dispatcher is called
// directly rather than through a trampoline jump.
const trapHandlerVA = 0

// TaskManager owns the Ready run queue, the app loader, and the
// resources (frame allocator, kernel address space, PID allocator,
// trampoline frame) every task creation path needs, plus the pinned
// init TCB that reparenting always has as a destination (spec §9
// "Process-wide singletons").
type TaskManager struct {
	mu            sync.Mutex
	runq          []*task.TCB
	loader        *loader.AppLoader
	frameAlloc    *frame.Allocator
	kernelAS      *addrspace.AddressSpace
	pidAlloc      *task.PidAllocator
	trampolinePPN addr.PhysPageNum
	initTCB       *task.TCB
}

// NewTaskManager builds a TaskManager around the kernel-wide singletons
// it composes (spec §9: each is expected to live behind its own mutex;
// TaskManager only holds references to them).
func NewTaskManager(frameAlloc *frame.Allocator, kernelAS *addrspace.AddressSpace, pidAlloc *task.PidAllocator, trampolinePPN addr.PhysPageNum, ld *loader.AppLoader) *TaskManager {
	return &TaskManager{
		loader:        ld,
		frameAlloc:    frameAlloc,
		kernelAS:      kernelAS,
		pidAlloc:      pidAlloc,
		trampolinePPN: trampolinePPN,
	}
}

// PushToRunq appends tcb to the tail of the Ready queue.
func (m *TaskManager) PushToRunq(tcb *task.TCB) {
	m.mu.Lock()
	m.runq = append(m.runq, tcb)
	m.mu.Unlock()
}

// FetchFromRunq pops the head of the Ready queue, reporting whether one
// was available.
func (m *TaskManager) FetchFromRunq() (*task.TCB, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.runq) == 0 {
		return nil, false
	}
	tcb := m.runq[0]
	m.runq = m.runq[1:]
	return tcb, true
}

// AppNames lists every app the loader can start, matching list_apps.
func (m *TaskManager) AppNames() []string { return m.loader.Names() }

// SetInitTCB pins tcb as the reparenting destination for the life of the
// kernel, matching the original's init proc pinning.
func (m *TaskManager) SetInitTCB(tcb *task.TCB) {
	m.mu.Lock()
	m.initTCB = tcb
	m.mu.Unlock()
}

// InitTCB returns the pinned init TCB.
func (m *TaskManager) InitTCB() *task.TCB {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initTCB
}

// CreateTask looks up name's ELF image, builds its address space,
// allocates a PID and kernel stack, and writes its initial trap context,
// matching TaskManager::load_app.
func (m *TaskManager) CreateTask(name string) (*task.TCB, error) {
	elfBytes, ok := m.loader.ELF(name)
	if !ok {
		return nil, kerrors.New(kerrors.KindLoadApp, "create task: unknown app %q", name)
	}

	as, userSP, entry, err := addrspace.NewELF(m.frameAlloc, elfBytes, m.trampolinePPN)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindLoadApp, err, "create task: build address space for %q", name)
	}

	pid, err := m.pidAlloc.Alloc()
	if err != nil {
		return nil, err
	}
	kernelStack, err := task.NewKernelStack(m.kernelAS, pid.N())
	if err != nil {
		return nil, err
	}

	trapBytes, err := as.TrapContextBytes()
	if err != nil {
		return nil, err
	}
	trapCtx := trapctx.Init(uint64(entry), uint64(userSP), m.kernelAS.Activate(), kernelStack.Top(), trapHandlerVA)
	trapCtx.Encode(trapBytes)

	return task.New(name, pid, kernelStack, as, trapReturnRA), nil
}

// forkTask deep-copies parent's address space into a freshly-PID'd,
// freshly-stacked child whose trap context resumes past the parent's
// ecall with a0 = 0, matching fork_task verbatim (spec §4.5).
func (m *TaskManager) forkTask(parent *task.TCB) (*task.TCB, error) {
	pid, err := m.pidAlloc.Alloc()
	if err != nil {
		return nil, err
	}
	kernelStack, err := task.NewKernelStack(m.kernelAS, pid.N())
	if err != nil {
		return nil, err
	}
	childAS, err := parent.AddrSpace.Fork(m.trampolinePPN)
	if err != nil {
		return nil, err
	}

	parentTrapBytes, err := parent.TrapContextBytes()
	if err != nil {
		return nil, err
	}
	trapCtx := trapctx.Decode(parentTrapBytes)
	trapCtx.KernelSP = kernelStack.Top()
	trapCtx.Regs[trapctx.RegA0] = 0
	trapCtx.Sepc += 4

	childTrapBytes, err := childAS.TrapContextBytes()
	if err != nil {
		return nil, err
	}
	trapCtx.Encode(childTrapBytes)

	child := task.New(parent.Name, pid, kernelStack, childAS, trapReturnRA)
	parent.AddChild(child)
	return child, nil
}

// loadELFInTask replaces tcb's address space with a freshly built one for
// name, keeping its PID and kernel stack, matching exec's replace-the-
// image semantics verbatim (spec §4.5): preserve the current trap
// context's GPRs, override only the user sp and sepc, then replace the
// tcb's address space and name. name plays the role of the user-supplied
// path: this kernel has no filesystem, so the loader's app table is keyed
// by name directly (spec §4.6's "user *const c-string path").
func (m *TaskManager) loadELFInTask(name string, tcb *task.TCB) error {
	elfBytes, ok := m.loader.ELF(name)
	if !ok {
		return kerrors.New(kerrors.KindLoadApp, "exec: unknown app %q", name)
	}

	oldTrapBytes, err := tcb.TrapContextBytes()
	if err != nil {
		return err
	}
	trapCtx := trapctx.Decode(oldTrapBytes)

	newAS, userSP, entry, err := addrspace.NewELF(m.frameAlloc, elfBytes, m.trampolinePPN)
	if err != nil {
		return kerrors.Wrap(kerrors.KindLoadApp, err, "exec: build address space for %q", name)
	}

	trapCtx.SetSP(uint64(userSP))
	trapCtx.Sepc = uint64(entry)

	newTrapBytes, err := newAS.TrapContextBytes()
	if err != nil {
		return err
	}
	trapCtx.Encode(newTrapBytes)

	tcb.AddrSpace = newAS
	tcb.Name = name
	return nil
}
