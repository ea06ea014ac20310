package trapctx

import "testing"

func TestInitSetsSPAndEntry(t *testing.T) {
	c := Init(0x1000, 0x2000, 0x8000000000000003, 0x3000, 0x4000)
	if c.Regs[RegSP] != 0x2000 {
		t.Fatalf("sp = %#x, want 0x2000", c.Regs[RegSP])
	}
	if c.Sepc != 0x1000 {
		t.Fatalf("sepc = %#x, want 0x1000", c.Sepc)
	}
	if c.KernelSatp != 0x8000000000000003 || c.KernelSP != 0x3000 || c.TrapHandler != 0x4000 {
		t.Fatalf("kernel fields not set correctly: %+v", c)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := Init(0xdead, 0xbeef, 0x1111, 0x2222, 0x3333)
	c.Regs[RegA0] = 42
	c.Regs[RegA7] = 93

	buf := make([]byte, Size)
	c.Encode(buf)
	got := Decode(buf)

	if got != c {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, c)
	}
}
