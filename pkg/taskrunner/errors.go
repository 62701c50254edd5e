package taskrunner

import (
	"fmt"
	"strings"
)

const (
	unknownAliasErrorTemplateConstant         = "pipeline alias %q is not defined"
	unresolvedTaskErrorTemplateConstant       = "task %q references subsystem %q which is not registered"
	unresolvedTaskWithoutNameTemplateConstant = "subsystem %q is not registered"
	unresolvedTaskReasonTemplateConstant      = "task %q in pipeline %q cannot be resolved: %s"
	subsystemInvocationErrorTemplateConstant  = "pipeline %q failed at step %d/%d (%s, %s)"
	subsystemInvocationCauseTemplateConstant  = "%s: %s"
	emptySubsystemNameMessageConstant         = "subsystem name must not be empty"
	missingInvocationFunctionTemplateConstant = "subsystem %q requires an invocation function"
	emptyPipelineAliasMessageConstant         = "pipeline alias must not be empty"
	pipelineCancelledErrorTemplateConstant    = "pipeline %q cancelled before step %d/%d: %w"
	unknownSubsystemInvocationFailureConstant = "invocation failed"
)

// UnknownAliasError indicates that no pipeline was defined for the requested alias.
type UnknownAliasError struct {
	Alias string
}

// Error implements the error interface.
func (errorDetails UnknownAliasError) Error() string {
	return fmt.Sprintf(unknownAliasErrorTemplateConstant, errorDetails.Alias)
}

// UnresolvedTaskError indicates that a task references a subsystem without a registered invocation.
type UnresolvedTaskError struct {
	Alias     string
	TaskName  string
	Subsystem string
	Reason    string
}

// Error implements the error interface.
func (errorDetails UnresolvedTaskError) Error() string {
	if len(strings.TrimSpace(errorDetails.Reason)) > 0 {
		return fmt.Sprintf(unresolvedTaskReasonTemplateConstant, errorDetails.TaskName, errorDetails.Alias, errorDetails.Reason)
	}
	if len(errorDetails.TaskName) > 0 {
		return fmt.Sprintf(unresolvedTaskErrorTemplateConstant, errorDetails.TaskName, errorDetails.Subsystem)
	}
	return fmt.Sprintf(unresolvedTaskWithoutNameTemplateConstant, errorDetails.Subsystem)
}

// SubsystemInvocationError reports the failing step of a pipeline run.
// Index is zero-based; the message renders the one-based position.
type SubsystemInvocationError struct {
	Alias     string
	Index     int
	Total     int
	Subsystem string
	TaskName  string
	Cause     error
}

// Error implements the error interface and surfaces the subsystem diagnostics verbatim.
func (errorDetails SubsystemInvocationError) Error() string {
	header := fmt.Sprintf(
		subsystemInvocationErrorTemplateConstant,
		errorDetails.Alias,
		errorDetails.Index+1,
		errorDetails.Total,
		errorDetails.Subsystem,
		errorDetails.TaskName,
	)
	causeMessage := unknownSubsystemInvocationFailureConstant
	if errorDetails.Cause != nil {
		causeMessage = errorDetails.Cause.Error()
	}
	return fmt.Sprintf(subsystemInvocationCauseTemplateConstant, header, causeMessage)
}

// Unwrap exposes the subsystem error.
func (errorDetails SubsystemInvocationError) Unwrap() error {
	return errorDetails.Cause
}
