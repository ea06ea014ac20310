package task

import (
	"sync"

	"github.com/logeable/los-lab/internal/addrspace"
	"github.com/logeable/los-lab/internal/trampoline"
)

// Status is a TCB's position in its lifecycle (spec §4.5: "Status ∈
// {Ready, Running, Exited(i32)}").
type Status int

const (
	StatusReady Status = iota
	StatusRunning
	StatusExited
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusExited:
		return "exited"
	default:
		return "unknown"
	}
}

// TCB is a task control block: {name, pid (owned), kernel stack (owned),
// address space (owned), task context, status, parent (back-reference),
// children (shared references)}, matching spec §4.5 and los-lab's
// task/tcb.rs::TaskControlBlock field-for-field.
//
// The parent link is stored as a bare PID rather than a pointer: the
// original's Arc<Mutex<TCB>> parent reference forms an ownership cycle
// with the parent's owning Vec of child Arcs. Children remain owned
// (*TCB) strong references; ParentPid is a non-owning PID that nothing
// resolves back to a TCB, which breaks the cycle without weak pointers.
type TCB struct {
	mu sync.Mutex

	Name        string
	pid         *Pid
	kernelStack *KernelStack
	AddrSpace   *addrspace.AddressSpace
	Context     trampoline.TaskContext
	status      Status
	exitCode    int32
	ParentPid   int
	Children    []*TCB
	Acct        Accounting
}

// New builds a Ready TCB whose task context resumes at ra with the
// kernel stack's top as its initial stack pointer, matching
// TaskControlBlock::init.
func New(name string, pid *Pid, kernelStack *KernelStack, as *addrspace.AddressSpace, ra uint64) *TCB {
	return &TCB{
		Name:        name,
		pid:         pid,
		kernelStack: kernelStack,
		AddrSpace:   as,
		Context:     trampoline.Init(ra, kernelStack.Top()),
		status:      StatusReady,
	}
}

// Pid returns this task's PID as a plain integer.
func (t *TCB) Pid() int { return t.pid.N() }

// KernelStackTop returns this task's kernel stack's top VA as a raw
// integer, for exec to reuse the stack it already owns when it replaces
// the address space but keeps the PID.
func (t *TCB) KernelStackTop() uint64 { return t.kernelStack.Top() }

// Status returns the current lifecycle status.
func (t *TCB) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// SetStatus transitions the task to status, matching
// update_task_status. Exiting records code and is terminal: setting any
// status after Exited panics.
func (t *TCB) SetStatus(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusExited {
		panic("task: status change after exit")
	}
	t.status = status
}

// Exit marks the task Exited with code, matching exit_current_task's
// terminal transition.
func (t *TCB) Exit(code int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusExited {
		panic("task: double exit")
	}
	t.status = StatusExited
	t.exitCode = code
}

// ExitCode reports the exit code and whether the task has exited,
// matching TaskStatus::get_exited_code.
func (t *TCB) ExitCode() (int32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusExited {
		return 0, false
	}
	return t.exitCode, true
}

// TrapContextBytes resolves this task's trap-context page through its own
// address space, matching get_trap_context_ptr.
func (t *TCB) TrapContextBytes() ([]byte, error) {
	return t.AddrSpace.TrapContextBytes()
}

// AddChild appends child to this task's owned children list and points
// its ParentPid back at this task, matching manager.rs's parent-link
// push on fork.
func (t *TCB) AddChild(child *TCB) {
	t.mu.Lock()
	t.Children = append(t.Children, child)
	t.mu.Unlock()
	child.ParentPid = t.Pid()
}

// RemoveChild drops the child with the given pid from this task's
// children list, reporting whether one was found. Used by wait_child_exit
// after reaping; the exit path's reparenting uses TakeChildren instead.
func (t *TCB) RemoveChild(pid int) (*TCB, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, c := range t.Children {
		if c.Pid() == pid {
			t.Children = append(t.Children[:i], t.Children[i+1:]...)
			return c, true
		}
	}
	return nil, false
}

// TakeChildren detaches and returns every owned child, clearing this
// task's own list, for exit_current_task_and_schedule's reparenting step.
func (t *TCB) TakeChildren() []*TCB {
	t.mu.Lock()
	defer t.mu.Unlock()
	children := t.Children
	t.Children = nil
	return children
}

// FindExitedChild returns the first owned child matching pred whose
// status is Exited, without removing it from Children. Used by
// wait_child_exit to locate a reapable child before committing to the
// removal.
func (t *TCB) FindExitedChild(pred func(*TCB) bool) (*TCB, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.Children {
		if !pred(c) {
			continue
		}
		if _, exited := c.ExitCode(); exited {
			return c, true
		}
	}
	return nil, false
}

// Release drops this task's owned kernel stack and PID. It does not touch
// AddrSpace: that address space's frames are not returned to the frame
// allocator, here or elsewhere, since Go has no destructor to hook the way
// los-lab's MemorySpace::drop does. The reaper (Scheduler.WaitChildExit)
// calls Release exactly once.
func (t *TCB) Release() {
	t.kernelStack.Drop()
	t.pid.Free()
}
