package domain

import "testing"

func instance(completed, na bool) InstanceState {
	return InstanceState{Completed: completed, NotApplicable: na}
}

func TestPercentRoundsHalfUp(t *testing.T) {
	cases := []struct {
		completed, total, want int
	}{
		{0, 0, 0},
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 2, 50},
		{5, 7, 71},
		{3, 4, 75},
		{7, 8, 88},
		{3, 3, 100},
	}

	for _, tc := range cases {
		if got := Percent(tc.completed, tc.total); got != tc.want {
			t.Fatalf("Percent(%d, %d) = %d, want %d", tc.completed, tc.total, got, tc.want)
		}
	}
}

func TestComputeFromInstancesExcludesNotApplicable(t *testing.T) {
	// 4 stages, 2 completed, 1 marked N/A: 2 of 3 applicable = 67%
	instances := []InstanceState{
		instance(true, false),
		instance(true, false),
		instance(false, false),
		instance(false, true),
	}

	p := ComputeFromInstances(instances, false)
	if p.Total != 3 || p.Completed != 2 {
		t.Fatalf("expected 2/3, got %d/%d", p.Completed, p.Total)
	}
	if p.Percentage != 67 {
		t.Fatalf("expected 67%%, got %d%%", p.Percentage)
	}
}

func TestComputeFromInstancesStageLessFallback(t *testing.T) {
	p := ComputeFromInstances(nil, false)
	if p.Total != 1 || p.Completed != 0 || p.Percentage != 0 {
		t.Fatalf("expected synthetic 0/1 at 0%%, got %+v", p)
	}

	p = ComputeFromInstances(nil, true)
	if p.Total != 1 || p.Completed != 1 || p.Percentage != 100 {
		t.Fatalf("expected synthetic 1/1 at 100%%, got %+v", p)
	}
}

func TestComputeFromInstancesAllNotApplicableFallsBack(t *testing.T) {
	instances := []InstanceState{
		instance(true, true),
		instance(false, true),
	}

	p := ComputeFromInstances(instances, false)
	if p.Total != 1 || p.Completed != 0 || p.Percentage != 0 {
		t.Fatalf("expected synthetic fallback when everything is N/A, got %+v", p)
	}
}

func TestComputeFromInstancesMonotonicUnderCompletion(t *testing.T) {
	instances := []InstanceState{
		instance(false, false),
		instance(false, false),
		instance(false, false),
		instance(false, false),
		instance(false, true),
	}

	prev := ComputeFromInstances(instances, false).Percentage
	for i := range instances {
		if instances[i].NotApplicable {
			continue
		}
		instances[i].Completed = true
		next := ComputeFromInstances(instances, false).Percentage
		if next < prev {
			t.Fatalf("percentage decreased from %d to %d after completing one more stage", prev, next)
		}
		prev = next
	}
	if prev != 100 {
		t.Fatalf("expected 100%% after completing every applicable stage, got %d%%", prev)
	}
}

func TestAggregateSumsUnitsBeforeDividing(t *testing.T) {
	// Two services at 2/4 and 3/3 aggregate to 5/7, not to the average
	// of their percentages.
	total := Aggregate([]Progress{
		ComputeFromCounts(4, 2, false),
		ComputeFromCounts(3, 3, true),
	})

	if total.Total != 7 || total.Completed != 5 {
		t.Fatalf("expected 5/7, got %d/%d", total.Completed, total.Total)
	}
	if total.Percentage != 71 {
		t.Fatalf("expected 71%%, got %d%%", total.Percentage)
	}
}

func TestAggregateIncludesStageLessServices(t *testing.T) {
	// A stage-less completed service contributes its synthetic unit.
	total := Aggregate([]Progress{
		ComputeFromCounts(0, 0, true),
		ComputeFromCounts(2, 1, false),
	})

	if total.Total != 3 || total.Completed != 2 {
		t.Fatalf("expected 2/3, got %d/%d", total.Completed, total.Total)
	}
}

func TestAggregateEmptyYieldsZero(t *testing.T) {
	total := Aggregate(nil)
	if total.Total != 0 || total.Completed != 0 || total.Percentage != 0 {
		t.Fatalf("expected zero progress for empty aggregate, got %+v", total)
	}
}
