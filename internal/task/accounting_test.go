package task

import "testing"

func TestAddSystemAccumulatesAndFetchSnapshots(t *testing.T) {
	var a Accounting
	a.AddSystem(100)
	a.AddSystem(50)

	if got := a.Fetch().SystemNanos; got != 150 {
		t.Fatalf("Fetch().SystemNanos = %d, want 150", got)
	}
}

func TestAddMergesChildIntoParent(t *testing.T) {
	var parent, child Accounting
	parent.AddSystem(100)
	child.AddSystem(40)

	parent.Add(&child)

	if got := parent.Fetch().SystemNanos; got != 140 {
		t.Fatalf("parent.Fetch().SystemNanos = %d, want 140 after merging child", got)
	}
	if got := child.Fetch().SystemNanos; got != 40 {
		t.Fatalf("child.Fetch().SystemNanos = %d, want unchanged 40", got)
	}
}
