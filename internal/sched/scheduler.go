package sched

import (
	"github.com/logeable/los-lab/internal/kerrors"
	"github.com/logeable/los-lab/internal/ktrace"
	"github.com/logeable/los-lab/internal/task"
	"github.com/logeable/los-lab/internal/trampoline"
)

// Scheduler composes a TaskManager and a Processor into the operations
// spec §4.5 lists: run_tasks, schedule, suspend/exit-and-schedule,
// fork/exec, and wait_child_exit. Grounded on the free functions
// task/processor.rs defines over its two singletons; this type exists
// instead of package-level globals per spec §9's "implementations that
// avoid globals may pass a context handle" allowance.
type Scheduler struct {
	Manager   *TaskManager
	Processor *Processor

	// Trace records dispatch/suspend/exit transitions for cmd/ktrace. A
	// nil Trace is a valid no-op (ktrace.Recorder's methods tolerate a
	// nil receiver), so tracing stays opt-in.
	Trace *ktrace.Recorder
}

// New composes a Scheduler from its two halves.
func New(manager *TaskManager, proc *Processor) *Scheduler {
	return &Scheduler{Manager: manager, Processor: proc}
}

// RunOnce pulls one Ready TCB off the run queue, installs it as current,
// and switches into it, reporting whether a task was available. Split
// out of RunTasks' infinite loop so tests can drive exactly one
// dispatch at a time.
func (s *Scheduler) RunOnce() bool {
	tcb, ok := s.Manager.FetchFromRunq()
	if !ok {
		return false
	}
	tcb.SetStatus(task.StatusRunning)
	s.Processor.setCurrent(tcb)
	s.Trace.Record(tcb.Pid(), tcb.Name, ktrace.Dispatch)
	s.Processor.switcher.Switch(&s.Processor.idleContext, &tcb.Context)
	return true
}

// RunTasks loops forever pulling Ready tasks off the run queue and
// running them, matching run_tasks's never-returning loop. Idle spins
// when the queue is empty, exactly like the original.
func (s *Scheduler) RunTasks() {
	for {
		s.RunOnce()
	}
}

// schedule switches control from a just-suspended task's context back
// into the idle context, matching schedule(switched_task_context).
func (s *Scheduler) schedule(switched *trampoline.TaskContext) {
	s.Processor.switcher.Switch(switched, &s.Processor.idleContext)
}

// SuspendCurrentTaskAndSchedule takes the current task out of the
// processor, marks it Ready, pushes it back to the run queue, then
// schedules away from it, matching suspend_current_task_and_schedule.
func (s *Scheduler) SuspendCurrentTaskAndSchedule() error {
	tcb, ok := s.Processor.TakeCurrent()
	if !ok {
		return kerrors.New(kerrors.KindNoCurrentTask, "suspend_current_task_and_schedule: no current task")
	}
	tcb.SetStatus(task.StatusReady)
	s.Manager.PushToRunq(tcb)
	s.Trace.Record(tcb.Pid(), tcb.Name, ktrace.Suspend)
	s.schedule(&tcb.Context)
	return nil
}

// ExitCurrentTaskAndSchedule takes the current task out of the
// processor, marks it Exited(code), reparents its children to the
// pinned init TCB, then schedules away from it, matching
// exit_current_task_and_schedule. The exited TCB's resources are
// released later by whichever parent reaps it through WaitChildExit.
func (s *Scheduler) ExitCurrentTaskAndSchedule(code int32) error {
	tcb, ok := s.Processor.TakeCurrent()
	if !ok {
		return kerrors.New(kerrors.KindNoCurrentTask, "exit_current_task_and_schedule: no current task")
	}
	tcb.Exit(code)
	s.Trace.Record(tcb.Pid(), tcb.Name, ktrace.Exit)

	initTCB := s.Manager.InitTCB()
	for _, child := range tcb.TakeChildren() {
		initTCB.AddChild(child)
	}

	s.schedule(&tcb.Context)
	return nil
}

// ForkCurrentTask deep-copies the current task into a new child, pushes
// it to the run queue, and returns its PID, matching fork_current_task.
func (s *Scheduler) ForkCurrentTask() (int, error) {
	current, ok := s.Processor.Current()
	if !ok {
		return 0, kerrors.New(kerrors.KindNoCurrentTask, "fork_current_task: no current task")
	}
	child, err := s.Manager.forkTask(current)
	if err != nil {
		return 0, err
	}
	s.Manager.PushToRunq(child)
	return child.Pid(), nil
}

// ExecInTask replaces the current task's address space with name's ELF
// image, matching exec_in_tcb.
func (s *Scheduler) ExecInTask(name string) error {
	current, ok := s.Processor.Current()
	if !ok {
		return kerrors.New(kerrors.KindNoCurrentTask, "exec_in_task: no current task")
	}
	return s.Manager.loadELFInTask(name, current)
}

// CurrentTrapContextBytes resolves the current task's trap-context page,
// for internal/trap's dispatcher to read and rewrite.
func (s *Scheduler) CurrentTrapContextBytes() ([]byte, error) {
	current, ok := s.Processor.Current()
	if !ok {
		return nil, kerrors.New(kerrors.KindNoCurrentTask, "current trap context: no current task")
	}
	return current.TrapContextBytes()
}

// CurrentSatp returns the current task's address space's SATP encoding,
// matching get_current_task_satp.
func (s *Scheduler) CurrentSatp() (uint64, error) {
	current, ok := s.Processor.Current()
	if !ok {
		return 0, kerrors.New(kerrors.KindNoCurrentTask, "current satp: no current task")
	}
	return current.AddrSpace.Activate(), nil
}

// WaitChildExit looks for a child of the current task matching arg that
// has already exited; if found, it is reaped (removed from the
// children list, its resources released) and its exit status returned.
// A nil, nil result means no matching child has exited yet, matching
// wait_child_exit's Ok(None) case so the caller can yield and retry.
func (s *Scheduler) WaitChildExit(arg WaitChildArg) (*ExitStatus, error) {
	current, ok := s.Processor.Current()
	if !ok {
		return nil, kerrors.New(kerrors.KindNoCurrentTask, "wait_child_exit: no current task")
	}

	child, found := current.FindExitedChild(func(c *task.TCB) bool {
		return arg.any || c.Pid() == arg.pid
	})
	if !found {
		return nil, nil
	}

	current.RemoveChild(child.Pid())
	code, _ := child.ExitCode()
	current.Acct.Add(&child.Acct)
	child.Release()
	return &ExitStatus{Pid: child.Pid(), ExitCode: code}, nil
}
