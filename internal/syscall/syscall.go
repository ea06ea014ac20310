// Package syscall implements the fixed dispatch table of spec §4.6:
// read/write/exit/sched_yield/gettimeofday/fork/exec/waitpid, with every
// user pointer argument resolved through the current task's page table
// rather than dereferenced directly. Grounded on los-lab's syscall.rs
// (the id constants and the match-on-id dispatch shape) and
// syscall/fs.rs, syscall/proc.rs, syscall/time.rs for per-call
// semantics; user-pointer translation style grounded on biscuit's
// vm/userbuf.go (Userbuf_t._tx).
package syscall

import (
	"fmt"

	"github.com/logeable/los-lab/internal/addr"
	"github.com/logeable/los-lab/internal/firmware"
	"github.com/logeable/los-lab/internal/kerrors"
	"github.com/logeable/los-lab/internal/pagetable"
	"github.com/logeable/los-lab/internal/sched"
	"github.com/logeable/los-lab/internal/timer"
)

// Syscall ids, matching syscall.rs's SYS_* constants exactly.
const (
	SysRead         = 63
	SysWrite        = 64
	SysExit         = 93
	SysSchedYield   = 124
	SysGetTimeOfDay = 169
	SysFork         = 220
	SysExec         = 221
	SysWaitPid      = 260
)

const (
	fdStdin  = 0
	fdStdout = 1
)

const consoleChunkLimit = 1024

// Dispatcher routes a trapped ecall to the matching sys_* handler.
type Dispatcher struct {
	sched   *sched.Scheduler
	console firmware.Console
	timer   *timer.Timer
}

// New builds a Dispatcher over the kernel's scheduler, console, and timer.
func New(s *sched.Scheduler, console firmware.Console, tm *timer.Timer) *Dispatcher {
	return &Dispatcher{sched: s, console: console, timer: tm}
}

// Dispatch executes syscall id with the a0..a2 argument registers and
// returns its usize/isize result, matching syscall(id, arg0, arg1,
// arg2). Unrecognized ids are logged and answered with −1, per spec
// §4.6's closed dispatch table.
func (d *Dispatcher) Dispatch(id, a0, a1, a2 uint64) int64 {
	switch id {
	case SysRead:
		return d.sysRead(a0, a1, a2)
	case SysWrite:
		return d.sysWrite(a0, a1, a2)
	case SysExit:
		return d.sysExit(int32(a0))
	case SysSchedYield:
		return d.sysSchedYield()
	case SysGetTimeOfDay:
		return d.sysGetTimeOfDay(a0)
	case SysFork:
		return d.sysFork()
	case SysExec:
		return d.sysExec(a0)
	case SysWaitPid:
		return d.sysWaitPid(int64(a0), a1)
	default:
		fmt.Printf("[SYSCALL] parse syscall id failed: %d\n", id)
		return -1
	}
}

func (d *Dispatcher) currentPageTable() (*pagetable.PageTable, error) {
	current, ok := d.sched.Processor.Current()
	if !ok {
		return nil, kerrors.New(kerrors.KindNoCurrentTask, "syscall: no current task")
	}
	return current.AddrSpace.PageTable(), nil
}

func (d *Dispatcher) sysRead(fd, bufVA, length uint64) int64 {
	if fd != fdStdin {
		panic(fmt.Sprintf("syscall: read from invalid fd %d", fd))
	}
	pt, err := d.currentPageTable()
	if err != nil {
		return -1
	}
	chunks, err := pt.TranslateBytes(addr.VirtAddr(bufVA), int(length))
	if err != nil {
		fmt.Printf("translate failed: %v\n", err)
		return -1
	}
	var total int
	for _, chunk := range chunks {
		total += readConsoleInto(d.console, chunk)
	}
	return int64(total)
}

func (d *Dispatcher) sysWrite(fd, bufVA, length uint64) int64 {
	if fd != fdStdout {
		panic(fmt.Sprintf("syscall: write to invalid fd %d", fd))
	}
	pt, err := d.currentPageTable()
	if err != nil {
		return -1
	}
	chunks, err := pt.TranslateBytes(addr.VirtAddr(bufVA), int(length))
	if err != nil {
		fmt.Printf("translate failed: %v\n", err)
		return -1
	}
	var total int
	for _, chunk := range chunks {
		for _, b := range chunk {
			d.console.WriteByte(b)
		}
		total += len(chunk)
	}
	return int64(total)
}

func (d *Dispatcher) sysExit(code int32) int64 {
	fmt.Printf("app exit_code: %d\n", code)
	if err := d.sched.ExitCurrentTaskAndSchedule(code); err != nil {
		panic(err)
	}
	return 0
}

func (d *Dispatcher) sysSchedYield() int64 {
	if err := d.sched.SuspendCurrentTaskAndSchedule(); err != nil {
		panic(err)
	}
	return 0
}

func (d *Dispatcher) sysGetTimeOfDay(tpVA uint64) int64 {
	pt, err := d.currentPageTable()
	if err != nil {
		return -1
	}
	chunks, err := pt.TranslateBytes(addr.VirtAddr(tpVA), 16)
	if err != nil {
		fmt.Printf("translate failed: %v\n", err)
		return -1
	}
	tv := d.timer.GetTime()
	var buf [16]byte
	putU64(buf[0:], tv.Sec)
	putU64(buf[8:], tv.Usec)
	copyToChunks(chunks, buf[:])
	return 0
}

func (d *Dispatcher) sysFork() int64 {
	pid, err := d.sched.ForkCurrentTask()
	if err != nil {
		return -1
	}
	return int64(pid)
}

func (d *Dispatcher) sysExec(pathVA uint64) int64 {
	pt, err := d.currentPageTable()
	if err != nil {
		return -1
	}
	path, err := pt.TranslateCString(addr.VirtAddr(pathVA))
	if err != nil {
		fmt.Printf("translate failed: %v\n", err)
		return -1
	}
	if err := d.sched.ExecInTask(path); err != nil {
		return -1
	}
	return 0
}

func (d *Dispatcher) sysWaitPid(pid int64, exitCodeVA uint64) int64 {
	arg, err := sched.WaitChildArgFromPid(int(pid))
	if err != nil {
		return -1
	}
	status, err := d.sched.WaitChildExit(arg)
	if err != nil {
		return -1
	}
	if status == nil {
		return 0
	}

	pt, err := d.currentPageTable()
	if err != nil {
		return -1
	}
	chunks, err := pt.TranslateBytes(addr.VirtAddr(exitCodeVA), 4)
	if err != nil {
		fmt.Printf("translate failed: %v\n", err)
		return -1
	}
	var buf [4]byte
	putU32(buf[:], uint32(status.ExitCode))
	copyToChunks(chunks, buf[:])
	return int64(status.Pid)
}

func readConsoleInto(console firmware.Console, buf []byte) int {
	total := 0
	for len(buf) > 0 {
		n := len(buf)
		if n > consoleChunkLimit {
			n = consoleChunkLimit
		}
		r := console.ReadBytes(buf[:n])
		if r <= 0 {
			break
		}
		total += r
		buf = buf[r:]
		if r < n {
			break
		}
	}
	return total
}

func copyToChunks(chunks [][]byte, data []byte) {
	off := 0
	for _, c := range chunks {
		n := copy(c, data[off:])
		off += n
	}
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}

func putU32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}
