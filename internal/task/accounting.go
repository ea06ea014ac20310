package task

import "sync/atomic"

// Accounting accumulates a task's system CPU time in nanoseconds: time
// spent inside the trap dispatcher handling that task's syscalls and
// faults. Not part of spec.md; a natural TCB extension grounded on
// biscuit's accnt/accnt.go (Accnt_t), using an atomic add to accumulate
// and an atomic load to snapshot (no lock). There is no user-time counter: this simulator
// never executes real user instructions (internal/demoapps's images are
// inert NOPs), so any wall-clock gap between traps would measure test
// driver overhead, not genuine user-mode execution — biscuit's own
// Accnt_t.Utadd is equally never called anywhere in that repository for
// the same underlying reason (nothing drives it from a real instruction
// stream in the retrieved sources).
type Accounting struct {
	sysns int64
}

// AddSystem adds delta nanoseconds to the system-time counter.
func (a *Accounting) AddSystem(delta int64) {
	atomic.AddInt64(&a.sysns, delta)
}

// Snapshot is a consistent point-in-time read of the system-time counter.
type Snapshot struct {
	SystemNanos int64
}

// Fetch returns a consistent snapshot of the counter.
func (a *Accounting) Fetch() Snapshot {
	return Snapshot{SystemNanos: atomic.LoadInt64(&a.sysns)}
}

// Add merges another Accounting's counter into this one, for rolling a
// reaped child's usage into its parent (rusage-style accumulation), wired
// from sched.Scheduler.WaitChildExit on every successful reap.
func (a *Accounting) Add(n *Accounting) {
	atomic.AddInt64(&a.sysns, atomic.LoadInt64(&n.sysns))
}
