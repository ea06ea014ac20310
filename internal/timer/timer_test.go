package timer

import (
	"testing"

	"github.com/logeable/los-lab/internal/firmware"
	"github.com/logeable/los-lab/internal/kconfig"
)

type fakeDev struct {
	now      uint64
	deadline uint64
}

func (f *fakeDev) ReadTime() uint64  { return f.now }
func (f *fakeDev) SetTimer(d uint64) { f.deadline = d }

func TestNewArmsFirstDeadline(t *testing.T) {
	dev := &fakeDev{now: 1000}
	info := firmware.DeviceInfo{CPUTimeBaseFreq: 1_000_000}
	New(dev, info)

	wantStep := info.CPUTimeBaseFreq / kconfig.MsPerSec * kconfig.MsPerTimeSlice
	if dev.deadline != 1000+wantStep {
		t.Fatalf("deadline = %d, want %d", dev.deadline, 1000+wantStep)
	}
}

func TestGetTimeConvertsTicks(t *testing.T) {
	dev := &fakeDev{now: 5_000_000}
	info := firmware.DeviceInfo{CPUTimeBaseFreq: 1_000_000}
	tm := New(dev, info)

	tv := tm.GetTime()
	if tv.Sec != 5 || tv.Usec != 0 {
		t.Fatalf("got %+v, want Sec=5 Usec=0", tv)
	}
}

func TestSetNextTriggerAdvancesByOneQuantum(t *testing.T) {
	dev := &fakeDev{now: 0}
	info := firmware.DeviceInfo{CPUTimeBaseFreq: 1_000_000}
	tm := New(dev, info)

	dev.now = dev.deadline
	tm.SetNextTrigger()
	step := info.CPUTimeBaseFreq / kconfig.MsPerSec * kconfig.MsPerTimeSlice
	if dev.deadline != dev.now+step {
		t.Fatalf("deadline = %d, want %d", dev.deadline, dev.now+step)
	}
}
