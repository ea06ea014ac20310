// Package trampoline models the context-switch assembly seam
// (_switch_task). Of the four assembly seams of spec §9 (boot entry, the
// trap vector s_trap_enter, the trap-return path s_trap_return, and the
// context switch), only the context switch is modeled here; this package
// has nothing for boot entry, trap entry or trap return. This module runs
// as a plain Go program rather than on real hardware, so the switch is a
// small injected interface operating on in-memory structs, the same way
// biscuit's kernel packages call into runtime.Get_phys/runtime.CPUHint/
// runtime.Fxinit: hooks into hand-written assembly living in a modified
// Go runtime, never reimplemented per package. Grounded on los-lab's
// task/manager.rs::switch_task (the `extern "C" fn _switch_task`
// boundary this package's Switcher interface stands in for).
package trampoline

// TaskContext is the callee-saved register set _switch_task threads
// through a context switch: return address, stack pointer, and the 12
// RISC-V callee-saved "s" registers, matching los-lab's
// task/tcb.rs::TaskContext exactly.
type TaskContext struct {
	RA uint64
	SP uint64
	S  [12]uint64
}

// Init builds a task context whose first "return" resumes at ra with
// stack pointer sp, matching TaskContext::init.
func Init(ra, sp uint64) TaskContext {
	return TaskContext{RA: ra, SP: sp}
}

// Switcher is the injected seam standing in for _switch_task: save the
// currently running task's callee-saved state into current, load next's,
// and resume execution at next.RA.
type Switcher interface {
	Switch(current, next *TaskContext)
}

// GoSwitcher is the default Switcher for this simulated kernel. Tasks in
// this module run as direct Go calls driven by internal/sched rather than
// suspended machine threads resumed by a raw register-restore, so there
// is no real register file for it to save or restore; it exists so the
// scheduling loop calls through the same seam a hardware port would use.
type GoSwitcher struct{}

// Switch is a no-op: see GoSwitcher's doc comment.
func (GoSwitcher) Switch(current, next *TaskContext) {}

// RecordingSwitcher wraps another Switcher (GoSwitcher by default when
// Next is nil) and remembers every switch it observed, for tests that
// need to assert on scheduling order.
type RecordingSwitcher struct {
	Next    Switcher
	History [][2]TaskContext
}

// Switch records (current, next) then delegates to the wrapped switcher.
func (r *RecordingSwitcher) Switch(current, next *TaskContext) {
	r.History = append(r.History, [2]TaskContext{*current, *next})
	if r.Next != nil {
		r.Next.Switch(current, next)
	}
}
