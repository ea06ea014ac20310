// Package task owns everything addressed by a PID: the recycled-integer
// allocator, the task control block, and per-task CPU accounting.
// Grounded on los-lab's task/pid.rs and task/tcb.rs, with
// internal/sched built on top owning the run queue and processor slot.
package task

import (
	"fmt"
	"sync"

	"github.com/logeable/los-lab/internal/kconfig"
	"github.com/logeable/los-lab/internal/kerrors"
)

// Pid is an owned handle to an allocated PID. Its zero value is not
// valid; obtain one via PidAllocator.Alloc. Calling Free returns the
// integer to its allocator, matching pid.rs's Drop-triggered dealloc
// (Go has no destructors, so callers must call Free explicitly when the
// owning TCB's last reference drops).
type Pid struct {
	n     int
	alloc *PidAllocator
	freed bool
}

// N returns the underlying integer.
func (p *Pid) N() int { return p.n }

// Free returns this PID to its allocator. Freeing twice panics, matching
// the fatal-on-programmer-error policy used throughout this kernel.
func (p *Pid) Free() {
	if p.freed {
		panic(fmt.Sprintf("task: double free of pid %d", p.n))
	}
	p.freed = true
	p.alloc.dealloc(p.n)
}

// PidAllocator is a bump + LIFO-recycle allocator over [1, MaxPid],
// mirroring internal/frame.Allocator's structure exactly but handing out
// plain integers instead of physical pages.
type PidAllocator struct {
	mu       sync.Mutex
	current  int
	end      int
	recycled []int
}

// NewPidAllocator builds an allocator over [1, kconfig.MaxPid].
func NewPidAllocator() *PidAllocator {
	return &PidAllocator{current: 1, end: kconfig.MaxPid + 1}
}

// Alloc hands out a Pid, preferring recycled values (LIFO) before
// bumping the watermark.
func (a *PidAllocator) Alloc() (*Pid, error) {
	a.mu.Lock()
	var n int
	ok := false
	if k := len(a.recycled); k > 0 {
		n = a.recycled[k-1]
		a.recycled = a.recycled[:k-1]
		ok = true
	} else if a.current < a.end {
		n = a.current
		a.current++
		ok = true
	}
	a.mu.Unlock()
	if !ok {
		return nil, kerrors.New(kerrors.KindAllocPid, "out of pids")
	}
	return &Pid{n: n, alloc: a}, nil
}

func (a *PidAllocator) dealloc(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n >= a.current {
		panic(fmt.Sprintf("task: dealloc of never-allocated pid %d", n))
	}
	for _, r := range a.recycled {
		if r == n {
			panic(fmt.Sprintf("task: double dealloc of pid %d", n))
		}
	}
	a.recycled = append(a.recycled, n)
}
