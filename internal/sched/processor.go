package sched

import (
	"sync"

	"github.com/logeable/los-lab/internal/task"
	"github.com/logeable/los-lab/internal/trampoline"
)

// Processor owns the currently-running TCB slot and the idle task
// context every task switches back into, matching task/processor.rs's
// PROCESSOR singleton. Kept behind its own mutex, distinct from
// TaskManager's, so the trap path can read the current TCB while the
// scheduler manipulates the run queue (spec §5).
type Processor struct {
	mu          sync.Mutex
	current     *task.TCB
	idleContext trampoline.TaskContext
	switcher    trampoline.Switcher
}

// NewProcessor builds a Processor that switches tasks through switcher
// (trampoline.GoSwitcher{} if nil).
func NewProcessor(switcher trampoline.Switcher) *Processor {
	if switcher == nil {
		switcher = trampoline.GoSwitcher{}
	}
	return &Processor{switcher: switcher}
}

// Current returns the running TCB, if any, without detaching it.
func (p *Processor) Current() (*task.TCB, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.current != nil
}

// TakeCurrent detaches and returns the running TCB, if any, matching
// take_current.
func (p *Processor) TakeCurrent() (*task.TCB, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tcb := p.current
	p.current = nil
	return tcb, tcb != nil
}

func (p *Processor) setCurrent(tcb *task.TCB) {
	p.mu.Lock()
	p.current = tcb
	p.mu.Unlock()
}
