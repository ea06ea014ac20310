package sched

import "github.com/logeable/los-lab/internal/kerrors"

// WaitChildArg selects which of the current task's children
// wait_child_exit is looking for: any, or one specific PID.
type WaitChildArg struct {
	any bool
	pid int
}

// WaitAny matches any exited child.
func WaitAny() WaitChildArg { return WaitChildArg{any: true} }

// WaitPid matches only the child with the given PID.
func WaitPid(pid int) WaitChildArg { return WaitChildArg{pid: pid} }

// WaitChildArgFromPid decodes the waitpid(2)-style pid argument (spec
// §4.6): −1 means any child, ≥1 means that specific PID, anything else
// is an invalid argument.
func WaitChildArgFromPid(pid int) (WaitChildArg, error) {
	switch {
	case pid == -1:
		return WaitAny(), nil
	case pid >= 1:
		return WaitPid(pid), nil
	default:
		return WaitChildArg{}, kerrors.New(kerrors.KindInvalidArgument, "invalid pid: %d", pid)
	}
}

// ExitStatus is a reaped child's PID and exit code.
type ExitStatus struct {
	Pid      int
	ExitCode int32
}
