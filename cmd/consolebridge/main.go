// Command consolebridge puts the real controlling terminal into raw mode
// and execs cmd/kernel with inherited stdio, restoring the terminal's
// prior state once the kernel process exits. It exists for running
// cmd/kernel under a supervisor or harness that doesn't pass it its own
// -raw flag directly; cmd/kernel -raw covers the same need for direct
// interactive use. Grounded on tinyrange-cc's cmd/cc raw-mode dance
// (term.IsTerminal/term.MakeRaw/term.Restore around stdin's fd), the one
// raw-terminal precedent in the retrieval pack.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"

	"golang.org/x/term"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: consolebridge <kernel-binary> [args...]\n")
		os.Exit(2)
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fmt.Fprintf(os.Stderr, "consolebridge: stdin is not a terminal\n")
		os.Exit(1)
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "consolebridge: enable raw mode: %v\n", err)
		os.Exit(1)
	}
	defer term.Restore(fd, oldState)

	cmd := exec.Command(os.Args[1], os.Args[2:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	// Forward interrupt/terminate to the kernel process instead of
	// letting the bridge die first and leave the terminal unrestored.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs)
	defer signal.Stop(sigs)
	go func() {
		for sig := range sigs {
			if cmd.Process != nil {
				cmd.Process.Signal(sig)
			}
		}
	}()

	if err := cmd.Run(); err != nil {
		term.Restore(fd, oldState)
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "consolebridge: run %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}
