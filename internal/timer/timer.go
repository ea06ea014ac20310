// Package timer implements the preemption-tick bookkeeping of spec §4.4,
// grounded line-for-line on los-lab's timer.rs (get_time, set_next_trigger,
// the MS_PER_TIME_SLICE/US_PER_SEC constants, now in internal/kconfig).
package timer

import (
	"sync"

	"github.com/logeable/los-lab/internal/firmware"
	"github.com/logeable/los-lab/internal/kconfig"
)

// TimeVal is the gettimeofday-style result get_time produces.
type TimeVal struct {
	Sec  uint64
	Usec uint64
}

// Timer tracks the firmware's tick frequency and arms its next deadline.
type Timer struct {
	mu          sync.Mutex
	dev         firmware.TimerDevice
	ticksPerSec uint64
}

// New builds a Timer against dev, reading the tick frequency out of info
// (device_tree.rs's DeviceInfo.cpu_time_base_freq), and arms the first
// deadline, matching timer::init.
func New(dev firmware.TimerDevice, info firmware.DeviceInfo) *Timer {
	t := &Timer{dev: dev, ticksPerSec: info.CPUTimeBaseFreq}
	t.SetNextTrigger()
	return t
}

// GetTime converts the firmware's raw tick count into seconds/microseconds.
func (t *Timer) GetTime() TimeVal {
	t.mu.Lock()
	defer t.mu.Unlock()
	usec := t.dev.ReadTime() / (t.ticksPerSec / kconfig.UsPerSec)
	sec := usec / kconfig.UsPerSec
	usec %= kconfig.UsPerSec
	return TimeVal{Sec: sec, Usec: usec}
}

// SetNextTrigger arms the firmware timer one scheduling quantum from now.
func (t *Timer) SetNextTrigger() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dev.SetTimer(t.dev.ReadTime() + t.ticksPerSec/kconfig.MsPerSec*kconfig.MsPerTimeSlice)
}
