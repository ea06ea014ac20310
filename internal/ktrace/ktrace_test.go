package ktrace

import (
	"bytes"
	"strings"
	"testing"
)

func TestRecordAndSnapshotPreservesOrder(t *testing.T) {
	r := NewRecorder(4)
	r.Record(1, "init", Dispatch)
	r.Record(1, "init", Suspend)
	r.Record(2, "shell", Dispatch)

	events := r.Snapshot()
	if len(events) != 3 {
		t.Fatalf("len(Snapshot()) = %d, want 3", len(events))
	}
	wantKinds := []EventKind{Dispatch, Suspend, Dispatch}
	for i, want := range wantKinds {
		if events[i].Kind != want {
			t.Fatalf("events[%d].Kind = %v, want %v", i, events[i].Kind, want)
		}
	}
	if events[2].Pid != 2 || events[2].Name != "shell" {
		t.Fatalf("events[2] = %+v, want Pid=2 Name=shell", events[2])
	}
}

func TestRecordWrapsOldestFirst(t *testing.T) {
	r := NewRecorder(2)
	r.Record(1, "a", Dispatch)
	r.Record(2, "b", Dispatch)
	r.Record(3, "c", Dispatch) // overwrites the first event

	events := r.Snapshot()
	if len(events) != 2 {
		t.Fatalf("len(Snapshot()) = %d, want 2", len(events))
	}
	if events[0].Pid != 2 || events[1].Pid != 3 {
		t.Fatalf("events = %+v, want pids [2 3]", events)
	}
}

func TestLenTracksUnwrappedAndWrappedCounts(t *testing.T) {
	r := NewRecorder(2)
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", r.Len())
	}
	r.Record(1, "a", Dispatch)
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	r.Record(2, "b", Dispatch)
	r.Record(3, "c", Dispatch)
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 once wrapped", r.Len())
	}
}

func TestWriteJSONLRoundTripsThroughReadJSONL(t *testing.T) {
	r := NewRecorder(4)
	r.Record(1, "init", Dispatch)
	r.Record(1, "init", Suspend)
	r.Record(2, "shell", Exit)

	var buf bytes.Buffer
	if err := r.WriteJSONL(&buf); err != nil {
		t.Fatalf("WriteJSONL: %v", err)
	}

	got, err := ReadJSONL(&buf)
	if err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	want := r.Snapshot()
	if len(got) != len(want) {
		t.Fatalf("len(ReadJSONL) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReadJSONLRejectsUnknownKind(t *testing.T) {
	_, err := ReadJSONL(strings.NewReader(`{"pid":1,"name":"x","kind":"bogus","nanos":1}` + "\n"))
	if err == nil {
		t.Fatal("ReadJSONL: want error for unknown kind, got nil")
	}
}

func TestNilRecorderIsANoOp(t *testing.T) {
	var r *Recorder
	r.Record(1, "init", Dispatch) // must not panic
	if got := r.Snapshot(); got != nil {
		t.Fatalf("Snapshot() = %v, want nil", got)
	}
	if got := r.Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0", got)
	}
}
