// Package trapctx defines the fixed trap-context record stored at
// trap_context_va in every user address space, grounded on los-lab's
// trap.rs::TrapContext and its wiring in task/tcb.rs
// (get_trap_context_ptr), extended per spec §3 with the kernel-SATP,
// kernel-stack-pointer, and trap-handler-entry fields §4.4 requires but
// the distilled original's struct (a teaching simplification) omits.
package trapctx

// RegCount is the number of general-purpose registers Sv39 RISC-V carries
// across a trap (x0..x31), matching TrapContext.regs.
const RegCount = 32

// TrapContext is the record s_trap_enter saves user state into and
// s_trap_return restores it from. Field order matches the layout
// Encode and Decode use on the trap-context page.
type TrapContext struct {
	Regs        [RegCount]uint64
	Sstatus     uint64 // supervisor status register at the moment of the trap
	Sepc        uint64 // supervisor exception program counter
	KernelSatp  uint64 // kernel page table, so s_trap_enter can switch to it
	KernelSP    uint64 // kernel stack top for this task
	TrapHandler uint64 // virtual address of process_trap's entry
}

// Reg indices matching the RISC-V calling convention used by the syscall
// ABI (spec §4.5): a0..a7 are x10..x17.
const (
	RegSP = 2
	RegA0 = 10
	RegA1 = 11
	RegA2 = 12
	RegA7 = 17
)

// SetSP sets the user stack pointer register.
func (c *TrapContext) SetSP(sp uint64) { c.Regs[RegSP] = sp }

// Init builds a fresh trap context for a task about to run entry for the
// first time, matching TrapContext::init plus the kernel-side fields
// §4.4 requires for s_trap_enter/s_trap_return to operate.
func Init(entry, userSP, kernelSatp, kernelSP, trapHandler uint64) TrapContext {
	c := TrapContext{
		Sepc:        entry,
		KernelSatp:  kernelSatp,
		KernelSP:    kernelSP,
		TrapHandler: trapHandler,
	}
	c.SetSP(userSP)
	return c
}

const sizeOfUint64 = 8

// Size is the byte size of a TrapContext when laid out on a page: 32
// registers plus five scalar fields, all 8 bytes wide.
const Size = (RegCount + 5) * sizeOfUint64

// Encode writes c into buf (at least Size bytes) in little-endian field
// order, for storage in the trap-context page backing frame.
func (c *TrapContext) Encode(buf []byte) {
	off := 0
	for _, r := range c.Regs {
		putU64(buf[off:], r)
		off += sizeOfUint64
	}
	for _, v := range []uint64{c.Sstatus, c.Sepc, c.KernelSatp, c.KernelSP, c.TrapHandler} {
		putU64(buf[off:], v)
		off += sizeOfUint64
	}
}

// Decode reads a TrapContext back out of buf (at least Size bytes).
func Decode(buf []byte) TrapContext {
	var c TrapContext
	off := 0
	for i := range c.Regs {
		c.Regs[i] = getU64(buf[off:])
		off += sizeOfUint64
	}
	c.Sstatus = getU64(buf[off:])
	off += sizeOfUint64
	c.Sepc = getU64(buf[off:])
	off += sizeOfUint64
	c.KernelSatp = getU64(buf[off:])
	off += sizeOfUint64
	c.KernelSP = getU64(buf[off:])
	off += sizeOfUint64
	c.TrapHandler = getU64(buf[off:])
	return c
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
