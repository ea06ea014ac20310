// Command kernel boots the simulated supervisor: it wires together the
// frame allocator, kernel heap, kernel address space, scheduler, timer,
// and trap dispatcher, creates the init task, and runs the scheduler
// loop forever. Grounded on los-lab's main.rs::rust_main (clear_bss,
// print_kernel_info, mm::init, task::init, then loop{spin_loop}) and,
// for the boot banner's texture, biscuit's plain fmt.Printf status
// prints (no ANSI colour library appears anywhere in the retrieval
// pack, so the original's ansi_rgb-tinted banner prints uncoloured
// here — SPEC_FULL.md supplemented feature #4).
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	unixsig "syscall"
	"time"

	"github.com/logeable/los-lab/internal/addr"
	"github.com/logeable/los-lab/internal/addrspace"
	"github.com/logeable/los-lab/internal/demoapps"
	"github.com/logeable/los-lab/internal/devicetree"
	"github.com/logeable/los-lab/internal/firmware"
	"github.com/logeable/los-lab/internal/frame"
	"github.com/logeable/los-lab/internal/kconfig"
	"github.com/logeable/los-lab/internal/kheap"
	"github.com/logeable/los-lab/internal/ktrace"
	"github.com/logeable/los-lab/internal/loader"
	"github.com/logeable/los-lab/internal/sched"
	"github.com/logeable/los-lab/internal/syscall"
	"github.com/logeable/los-lab/internal/task"
	"github.com/logeable/los-lab/internal/timer"
	"github.com/logeable/los-lab/internal/trap"
	"github.com/logeable/los-lab/internal/ttyconsole"
)

// simulatedDeviceInfo is the flattened-device-tree-reported usable RAM
// range and timer frequency los-lab reads via device_tree.rs. This
// simulated boot has no real DTB to walk, so internal/devicetree.Fixed
// stands in for the parse step with a fixed result.
var simulatedDeviceInfo = devicetree.Fixed(firmware.DeviceInfo{
	MemoryStart:     0x8000_0000,
	MemoryEnd:       0x8800_0000,
	CPUTimeBaseFreq: 10_000_000,
})

// stdioConsole is the non-interactive fallback firmware.Console: plain
// cooked-mode stdin/stdout, for piped or scripted boots. Interactive use
// wants -raw (internal/ttyconsole) or cmd/consolebridge in front of it.
type stdioConsole struct{}

func (stdioConsole) ReadBytes(buf []byte) int {
	n, err := os.Stdin.Read(buf)
	if err != nil {
		return -1
	}
	return n
}

func (stdioConsole) WriteByte(b byte) { os.Stdout.Write([]byte{b}) }

// hostTimerDevice stands in for the riscv::register::time CSR and SBI's
// set_timer call: there is no real hart timer to program, so it tracks
// elapsed wall-clock time since boot and records (without enforcing) the
// next deadline.
type hostTimerDevice struct {
	boot        time.Time
	ticksPerSec uint64
	deadline    uint64
}

func (d *hostTimerDevice) ReadTime() uint64 {
	return uint64(time.Since(d.boot)) * d.ticksPerSec / uint64(time.Second)
}

func (d *hostTimerDevice) SetTimer(deadline uint64) { d.deadline = deadline }

func main() {
	raw := flag.Bool("raw", false, "put the controlling terminal into raw mode directly (skip cmd/consolebridge)")
	tracePath := flag.String("trace", "", "on SIGINT/SIGTERM, write the scheduler's ktrace log here before exiting (see cmd/ktrace)")
	flag.Parse()

	console, closeConsole, err := buildConsole(*raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kernel: console init failed: %v\n", err)
		os.Exit(1)
	}
	defer closeConsole()

	info, err := simulatedDeviceInfo.Parse(0)
	if err != nil {
		fatal("parse device info: %v", err)
	}

	frameAlloc := frame.New(
		addr.PhysAddr(info.MemoryStart).FloorPPN(),
		addr.PhysAddr(info.MemoryEnd).FloorPPN(),
	)
	heap := kheap.New()

	trampFrame, ok := frameAlloc.Alloc()
	if !ok {
		fatal("out of physical frames while reserving the trampoline page")
	}
	kernelAS, err := addrspace.NewKernel(frameAlloc, nil, trampFrame.PPN)
	if err != nil {
		fatal("build kernel address space: %v", err)
	}

	pidAlloc := task.NewPidAllocator()
	apps := demoapps.Apps()
	ld := loader.New(apps)

	mgr := sched.NewTaskManager(frameAlloc, kernelAS, pidAlloc, trampFrame.PPN, ld)
	proc := sched.NewProcessor(nil)
	scheduler := sched.New(mgr, proc)
	scheduler.Trace = ktrace.NewRecorder(4096)

	tm := timer.New(&hostTimerDevice{boot: time.Now(), ticksPerSec: info.CPUTimeBaseFreq}, info)
	syscalls := syscall.New(scheduler, console, tm)
	// trap.Dispatcher.ProcessTrap is the counterpart to stvec's handler
	// target in the original: hardware calls into it when a trap actually
	// occurs, and nothing in this program does. rust_main never calls
	// process_trap either —
	// it only boots and spins, the same as the loop below.
	_ = trap.New(scheduler, syscalls, tm)

	initTCB, err := mgr.CreateTask("init")
	if err != nil {
		fatal("create init task: %v", err)
	}
	mgr.SetInitTCB(initTCB)
	mgr.PushToRunq(initTCB)

	printBootBanner(info, frameAlloc, heap, ld)

	if *tracePath != "" {
		installTraceDump(scheduler.Trace, *tracePath)
	}

	scheduler.RunTasks()
}

// installTraceDump arms a handler that, on SIGINT or SIGTERM, writes the
// scheduler's ktrace log to path and exits — the only way to get a
// Recorder.Snapshot out of a process whose normal run loop never returns,
// for cmd/ktrace to read back afterwards.
func installTraceDump(trace *ktrace.Recorder, path string) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, unixsig.SIGTERM)
	go func() {
		<-sigs
		f, err := os.Create(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "kernel: create trace log %s: %v\n", path, err)
			os.Exit(1)
		}
		defer f.Close()
		if err := trace.WriteJSONL(f); err != nil {
			fmt.Fprintf(os.Stderr, "kernel: write trace log %s: %v\n", path, err)
			os.Exit(1)
		}
		os.Exit(0)
	}()
}

// buildConsole resolves the firmware.Console the kernel boots with: raw
// tty mode when asked (and a no-op restore otherwise), matching
// internal/ttyconsole's doc comment on when to reach for it versus
// cmd/consolebridge.
func buildConsole(raw bool) (firmware.Console, func(), error) {
	if !raw {
		return stdioConsole{}, func() {}, nil
	}
	c, err := ttyconsole.New()
	if err != nil {
		return nil, nil, err
	}
	return c, func() { c.Close() }, nil
}

func printBootBanner(info firmware.DeviceInfo, frameAlloc *frame.Allocator, heap *kheap.Heap, ld *loader.AppLoader) {
	fmt.Printf("los-lab kernel booting\n")
	fmt.Printf("%-10s: [%#x..%#x)\n", "memory", info.MemoryStart, info.MemoryEnd)
	fmt.Printf("%-10s: %d pages free\n", "frames", frameAlloc.FreeCount())
	stats := heap.Stats()
	fmt.Printf("%-10s: %d/%d bytes used (%d total)\n", "heap", stats.Actual, stats.Requested, stats.Total)
	fmt.Printf("%-10s: %d ms\n", "quantum", kconfig.MsPerTimeSlice)
	fmt.Printf("apps:\n")
	for i, name := range ld.Names() {
		fmt.Printf("  %d: %s\n", i, name)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "kernel: "+format+"\n", args...)
	os.Exit(1)
}
