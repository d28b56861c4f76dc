package models

// The run state machine is queued -> running -> {running <-> waiting}* ->
// (completed | failed). Terminal states accept no further transitions;
// retries create a sibling run instead of reviving a terminal one.
var runTransitions = map[RunStatus][]RunStatus{
	RunStatusQueued:    {RunStatusRunning},
	RunStatusRunning:   {RunStatusWaiting, RunStatusCompleted, RunStatusFailed},
	RunStatusWaiting:   {RunStatusRunning},
	RunStatusCompleted: {},
	RunStatusFailed:    {},
}

var stepTransitions = map[StepStatus][]StepStatus{
	StepStatusPending:   {StepStatusRunning, StepStatusWaiting},
	StepStatusRunning:   {StepStatusWaiting, StepStatusCompleted, StepStatusFailed},
	StepStatusWaiting:   {StepStatusRunning, StepStatusCompleted, StepStatusFailed},
	StepStatusCompleted: {},
	StepStatusFailed:    {},
}

// ValidRunTransition reports whether a run may move from one status to another.
func ValidRunTransition(from, to RunStatus) bool {
	for _, next := range runTransitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

// ValidStepTransition reports whether a step may move from one status to another.
func ValidStepTransition(from, to StepStatus) bool {
	for _, next := range stepTransitions[from] {
		if next == to {
			return true
		}
	}

	return false
}
