// Command depgraph prints a Graphviz DOT description of this module's
// dependency graph, via `go mod graph`. Useful for eyeballing how far
// internal/* packages' third-party deps (golang.org/x/arch, x/term,
// x/sync, google/pprof) actually reach once go.sum is resolved.
//
// Edges leaving this module itself are drawn bold and the modules they
// name are filled: SPEC_FULL.md's DOMAIN STACK section only wires in a
// handful of this repository's own direct requires (see go.mod), so
// everything reachable purely transitively — through google/pprof's own
// dependency tree, for instance — should read as visually secondary
// rather than competing for attention with the modules this kernel
// actually imports.
package main

import (
	"bufio"
	"bytes"
	"os"
	"os/exec"
)

const rootModule = "github.com/logeable/los-lab"

func main() {
	cmd := exec.Command("go", "mod", "graph")
	output, err := cmd.Output()
	if err != nil {
		panic(err)
	}

	var edges [][2]string
	direct := make(map[string]bool)
	for _, line := range bytes.Split(bytes.TrimSpace(output), []byte{'\n'}) {
		fields := bytes.Fields(line)
		if len(fields) != 2 {
			continue
		}
		from, to := string(fields[0]), string(fields[1])
		edges = append(edges, [2]string{from, to})
		if from == rootModule {
			direct[to] = true
		}
	}

	writer := bufio.NewWriter(os.Stdout)
	defer writer.Flush()
	writer.WriteString("digraph deps {\n")
	writer.WriteString("    rankdir=LR;\n")
	for mod := range direct {
		writer.WriteString("    \"" + mod + "\" [style=filled, fillcolor=lightblue];\n")
	}
	for _, e := range edges {
		style := ""
		if e[0] == rootModule {
			style = " [penwidth=2]"
		}
		writer.WriteString("    \"" + e[0] + "\" -> \"" + e[1] + "\"" + style + ";\n")
	}
	writer.WriteString("}\n")
}
