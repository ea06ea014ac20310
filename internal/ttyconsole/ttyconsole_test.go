package ttyconsole

import (
	"os"
	"testing"

	"golang.org/x/term"

	"github.com/logeable/los-lab/internal/firmware"
)

var _ firmware.Console = (*Console)(nil)

func TestNewFailsWhenStdinIsNotATerminal(t *testing.T) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		t.Skip("stdin is a terminal in this environment; New() would actually flip raw mode")
	}
	if _, err := New(); err == nil {
		t.Fatal("New() = nil error, want an error when stdin isn't a terminal")
	}
}
