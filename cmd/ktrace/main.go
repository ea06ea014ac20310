// Command ktrace converts an internal/ktrace trace log (written by
// cmd/kernel -trace) into a pprof profile: one sample per recorded
// scheduler transition of any kind, labelled by task name, pid and
// transition kind, so standard pprof tooling
// (go tool pprof -top, -traces, -web) can browse which tasks the
// scheduler actually ran. Grounded on the host-tool precedent of
// biscuit/src/kernel/chentry.go and biscuit/scripts/features.go.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/pprof/profile"
	"github.com/logeable/los-lab/internal/ktrace"
)

func main() {
	out := flag.String("o", "ktrace.pprof", "output pprof profile path")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: ktrace [-o out.pprof] <trace-log>\n")
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *out); err != nil {
		fmt.Fprintf(os.Stderr, "ktrace: %v\n", err)
		os.Exit(1)
	}
}

func run(logPath, outPath string) error {
	in, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("open trace log: %w", err)
	}
	defer in.Close()

	events, err := ktrace.ReadJSONL(in)
	if err != nil {
		return fmt.Errorf("read trace log: %w", err)
	}

	prof := buildProfile(events)

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	defer out.Close()
	if err := prof.Write(out); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	fmt.Printf("wrote %d samples from %d events to %s\n", len(prof.Sample), len(events), outPath)
	return nil
}

// buildProfile turns the chronological event stream into a pprof
// Profile. Each event becomes one sample with value 1 ("transitions"),
// located at a single synthetic Function per task name, carrying the
// task's pid and transition kind as labels — there are no real call
// stacks to sample, only scheduler transitions.
func buildProfile(events []ktrace.Event) *profile.Profile {
	prof := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "transitions", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "scheduler", Unit: "transitions"},
		Period:     1,
	}

	functions := map[string]*profile.Function{}
	locations := map[string]*profile.Location{}
	nextID := uint64(1)

	locationFor := func(name string) *profile.Location {
		if loc, ok := locations[name]; ok {
			return loc
		}
		fn := &profile.Function{ID: nextID, Name: name}
		nextID++
		prof.Function = append(prof.Function, fn)
		functions[name] = fn

		loc := &profile.Location{ID: nextID, Line: []profile.Line{{Function: fn}}}
		nextID++
		prof.Location = append(prof.Location, loc)
		locations[name] = loc
		return loc
	}

	var first, last int64
	for i, ev := range events {
		if i == 0 || ev.Nanos < first {
			first = ev.Nanos
		}
		if ev.Nanos > last {
			last = ev.Nanos
		}
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: []*profile.Location{locationFor(ev.Name)},
			Value:    []int64{1},
			Label: map[string][]string{
				"pid":  {fmt.Sprint(ev.Pid)},
				"kind": {ev.Kind.String()},
			},
			NumLabel: map[string][]int64{"nanos": {ev.Nanos}},
		})
	}
	if len(events) > 0 {
		prof.TimeNanos = first
		prof.DurationNanos = last - first
	}
	return prof
}
