package domain

import "math"

// Progress is the completion summary for one rollup scope (a contract
// service, a contract, or a client).
type Progress struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Percentage int `json:"percentage"`
}

// InstanceState is the minimal view of a stage instance needed for progress
// math.
type InstanceState struct {
	Completed     bool
	NotApplicable bool
}

// Percent returns completed/total as an integer percentage, rounded half-up.
// A zero total yields 0, never a division error.
func Percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// ComputeFromInstances computes progress over a contract service's stage
// instances. Instances marked not applicable are excluded from both the
// numerator and the denominator. When nothing is applicable (no stages, or
// all N/A) the service contributes a single synthetic unit mirroring its own
// completed flag, so a stage-less service still reports 0% or 100%.
func ComputeFromInstances(instances []InstanceState, serviceCompleted bool) Progress {
	var total, completed int
	for _, inst := range instances {
		if inst.NotApplicable {
			continue
		}
		total++
		if inst.Completed {
			completed++
		}
	}

	if total == 0 {
		return syntheticUnit(serviceCompleted)
	}

	return Progress{Total: total, Completed: completed, Percentage: Percent(completed, total)}
}

// ComputeFromCounts builds progress from pre-aggregated applicable counts,
// applying the same stage-less fallback as ComputeFromInstances.
func ComputeFromCounts(total, completed int, serviceCompleted bool) Progress {
	if total == 0 {
		return syntheticUnit(serviceCompleted)
	}
	return Progress{Total: total, Completed: completed, Percentage: Percent(completed, total)}
}

// Aggregate sums progress parts into one rollup. Each part keeps its own
// synthetic-unit semantics, so stage-less services weigh in as one unit.
func Aggregate(parts []Progress) Progress {
	var total, completed int
	for _, p := range parts {
		total += p.Total
		completed += p.Completed
	}
	return Progress{Total: total, Completed: completed, Percentage: Percent(completed, total)}
}

func syntheticUnit(serviceCompleted bool) Progress {
	if serviceCompleted {
		return Progress{Total: 1, Completed: 1, Percentage: 100}
	}
	return Progress{Total: 1, Completed: 0, Percentage: 0}
}
