package task

import (
	"github.com/logeable/los-lab/internal/addr"
	"github.com/logeable/los-lab/internal/addrspace"
	"github.com/logeable/los-lab/internal/kconfig"
)

// KernelStack is the Framed area in the kernel address space backing one
// task's kernel-mode execution, positioned deterministically below the
// trampoline by PID with a leading guard page (spec §4: "Kernel stack").
// Grounded on los-lab's mm/memory_space.rs KernelStack::new/drop.
type KernelStack struct {
	kernelAS *addrspace.AddressSpace
	startVA  addr.VirtAddr
	topVA    addr.VirtAddr
}

// NewKernelStack installs pid's kernel stack area in kernelAS and returns
// the owning handle.
func NewKernelStack(kernelAS *addrspace.AddressSpace, pid int) (*KernelStack, error) {
	top, err := kernelAS.AddAppKernelStackArea(pid)
	if err != nil {
		return nil, err
	}
	return &KernelStack{
		kernelAS: kernelAS,
		startVA:  top.Sub(kconfig.KernelStackSize),
		topVA:    top,
	}, nil
}

// Top returns the stack's initial stack pointer value.
func (k *KernelStack) Top() uint64 { return uint64(k.topVA) }

// Drop removes the stack's area from the kernel address space. Dropping
// twice panics, matching the double-free policy used elsewhere.
func (k *KernelStack) Drop() {
	if k.kernelAS == nil {
		panic("task: double drop of kernel stack")
	}
	if !k.kernelAS.RemoveAreaByStartVA(k.startVA) {
		panic("task: kernel stack area already removed")
	}
	k.kernelAS = nil
}
