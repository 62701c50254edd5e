package taskrunner

// RunState describes the lifecycle of a single pipeline run.
type RunState string

// Pipeline run states. Completed and Failed are terminal.
const (
	RunStateNotStarted RunState = RunState("not_started")
	RunStateRunning    RunState = RunState("running")
	RunStateCompleted  RunState = RunState("completed")
	RunStateFailed     RunState = RunState("failed")
)

// IsTerminal reports whether the state ends a run.
func (state RunState) IsTerminal() bool {
	return state == RunStateCompleted || state == RunStateFailed
}

func (state RunState) canTransitionTo(next RunState) bool {
	switch state {
	case RunStateNotStarted:
		return next == RunStateRunning
	case RunStateRunning:
		return next == RunStateCompleted || next == RunStateFailed
	default:
		return false
	}
}
