package devicetree

import (
	"testing"

	"github.com/logeable/los-lab/internal/firmware"
)

func TestFixedIgnoresInputAddress(t *testing.T) {
	want := firmware.DeviceInfo{MemoryStart: 0x80000000, MemoryEnd: 0x88000000, CPUTimeBaseFreq: 10_000_000}
	p := Fixed(want)
	got, err := p.Parse(0xdeadbeef)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
