package domain

import "testing"

func TestPropagatePartialProgressStartsNotStarted(t *testing.T) {
	tr := Propagate(StatusNotStarted, 33)
	if !tr.Changed || tr.Next != StatusInProgress {
		t.Fatalf("expected not_started -> in_progress, got %+v", tr)
	}
	if !tr.AutoStarted || tr.AutoCompleted {
		t.Fatalf("expected autoStarted only, got %+v", tr)
	}
}

func TestPropagatePartialProgressLeavesScheduledAlone(t *testing.T) {
	tr := Propagate(StatusScheduled, 50)
	if tr.Changed {
		t.Fatalf("scheduled must not auto-start on partial progress, got %+v", tr)
	}
}

func TestPropagateFullProgressCompletesAnyActiveStatus(t *testing.T) {
	for _, current := range []ContractServiceStatus{StatusNotStarted, StatusScheduled, StatusInProgress} {
		tr := Propagate(current, 100)
		if !tr.Changed || tr.Next != StatusCompleted || !tr.AutoCompleted {
			t.Fatalf("expected %s -> completed at 100%%, got %+v", current, tr)
		}
	}
}

func TestPropagateCompletedIsSticky(t *testing.T) {
	// Un-completing a stage drops the percentage but never the status.
	tr := Propagate(StatusCompleted, 75)
	if tr.Changed {
		t.Fatalf("completed must not demote when progress drops, got %+v", tr)
	}
	tr = Propagate(StatusCompleted, 0)
	if tr.Changed {
		t.Fatalf("completed must not demote at 0%%, got %+v", tr)
	}
}

func TestPropagateCompletedStaysCompletedAtFullProgress(t *testing.T) {
	tr := Propagate(StatusCompleted, 100)
	if tr.Changed || tr.AutoCompleted {
		t.Fatalf("already-completed service must not re-complete, got %+v", tr)
	}
}

func TestPropagateSkipsHumanTerminalStates(t *testing.T) {
	for _, current := range []ContractServiceStatus{StatusCancelled, StatusSuspended} {
		for _, pct := range []int{0, 50, 100} {
			tr := Propagate(current, pct)
			if tr.Changed {
				t.Fatalf("%s at %d%% must never transition, got %+v", current, pct, tr)
			}
		}
	}
}

func TestPropagateZeroProgressIsInert(t *testing.T) {
	tr := Propagate(StatusNotStarted, 0)
	if tr.Changed {
		t.Fatalf("0%% must not start a service, got %+v", tr)
	}
}

func TestStatusValidation(t *testing.T) {
	if !IsValidInstanceStatus(InstancePending) || !IsValidInstanceStatus(InstanceCompleted) {
		t.Fatalf("expected pending and completed to be valid instance statuses")
	}
	if IsValidInstanceStatus("done") {
		t.Fatalf("expected unknown instance status to be invalid")
	}
	if !IsValidContractServiceStatus(StatusSuspended) {
		t.Fatalf("expected suspended to be a valid contract service status")
	}
	if IsValidContractServiceStatus("paused") {
		t.Fatalf("expected unknown contract service status to be invalid")
	}
}
