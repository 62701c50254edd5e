package taskrunner

import (
	"fmt"
	"strings"
	"time"
)

// StepResult records one executed invocation.
type StepResult struct {
	Index     int
	Subsystem string
	TaskName  string
	Duration  time.Duration
	Succeeded bool
}

// Summary describes the outcome of a pipeline run.
type Summary struct {
	Alias    string
	State    RunState
	Steps    []StepResult
	Duration time.Duration
}

// Subsystems lists the executed subsystem names in execution order.
func (summary Summary) Subsystems() []string {
	subsystems := make([]string, 0, len(summary.Steps))
	for stepIndex := range summary.Steps {
		subsystems = append(subsystems, summary.Steps[stepIndex].Subsystem)
	}
	return subsystems
}

// TaskNames lists the executed task names in execution order.
func (summary Summary) TaskNames() []string {
	taskNames := make([]string, 0, len(summary.Steps))
	for stepIndex := range summary.Steps {
		taskNames = append(taskNames, summary.Steps[stepIndex].TaskName)
	}
	return taskNames
}

func (summary *Summary) transition(next RunState) {
	if summary.State.canTransitionTo(next) {
		summary.State = next
	}
}

// RenderSummaryLine returns the summary line printed after a pipeline run.
func RenderSummaryLine(summary Summary) string {
	if len(strings.TrimSpace(summary.Alias)) == 0 {
		return ""
	}

	parts := []string{fmt.Sprintf("Summary: pipeline=%s", summary.Alias)}
	parts = append(parts, fmt.Sprintf("state=%s", summary.State))

	succeededCount := 0
	failedCount := 0
	for stepIndex := range summary.Steps {
		if summary.Steps[stepIndex].Succeeded {
			succeededCount++
			continue
		}
		failedCount++
	}
	parts = append(parts, fmt.Sprintf("tasks.ok=%d", succeededCount))
	parts = append(parts, fmt.Sprintf("tasks.failed=%d", failedCount))

	if len(summary.Steps) > 0 {
		parts = append(parts, fmt.Sprintf("sequence=%s", strings.Join(summary.TaskNames(), ",")))
	}

	parts = append(parts, fmt.Sprintf("duration_human=%s", summary.Duration.Round(time.Millisecond)))
	parts = append(parts, fmt.Sprintf("duration_ms=%d", summary.Duration.Milliseconds()))

	return strings.Join(parts, " ")
}
