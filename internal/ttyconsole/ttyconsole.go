// Package ttyconsole implements internal/firmware.Console over the
// process's own controlling terminal, putting it into raw mode so bytes
// reach the simulated firmware console one at a time instead of
// line-buffered and echoed by the local tty driver. Grounded on
// tinyrange-cc's cmd/cc raw-mode dance (term.MakeRaw/term.Restore around
// stdin's fd), the one raw-terminal precedent in the retrieval pack.
package ttyconsole

import (
	"os"

	"golang.org/x/term"
)

// Console reads from stdin and writes to stdout, both left in raw mode
// for the Console's lifetime.
type Console struct {
	fd       int
	oldState *term.State
}

// New puts the controlling terminal into raw mode and returns a Console
// over it. Close must be called to restore the terminal's prior state.
func New() (*Console, error) {
	fd := int(os.Stdin.Fd())
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return &Console{fd: fd, oldState: old}, nil
}

// ReadBytes fills buf from stdin, matching sbi::console_read_bytes's
// "read whatever is available right now" contract.
func (c *Console) ReadBytes(buf []byte) int {
	n, err := os.Stdin.Read(buf)
	if err != nil {
		return -1
	}
	return n
}

// WriteByte emits one byte to stdout.
func (c *Console) WriteByte(b byte) {
	os.Stdout.Write([]byte{b})
}

// Close restores the terminal to the state it was in before New.
func (c *Console) Close() error {
	return term.Restore(c.fd, c.oldState)
}
