package loader

import "testing"

func TestELFLooksUpByName(t *testing.T) {
	l := New([]App{
		{Name: "1_add", ELF: []byte{1, 2, 3}},
		{Name: "lshell", ELF: []byte{4, 5}},
	})

	b, ok := l.ELF("1_add")
	if !ok || len(b) != 3 {
		t.Fatalf("ELF(1_add) = (%v, %v), want 3-byte image", b, ok)
	}

	if _, ok := l.ELF("missing"); ok {
		t.Fatal("expected miss for unknown app name")
	}
}

func TestNamesIsSorted(t *testing.T) {
	l := New([]App{
		{Name: "zeta", ELF: nil},
		{Name: "alpha", ELF: nil},
	})

	names := l.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Fatalf("Names() = %v, want [alpha zeta]", names)
	}
}
