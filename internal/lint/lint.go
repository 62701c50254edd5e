// Package lint runs the external JavaScript linter against a task's sources.
package lint

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tyemirov/taskpipe/internal/execshell"
	"github.com/tyemirov/taskpipe/internal/fileset"
	"github.com/tyemirov/taskpipe/pkg/taskrunner"
)

const (
	// SubsystemName is the name the lint subsystem registers under.
	SubsystemName = "lint"

	// CommandOptionName selects the linter executable.
	CommandOptionName = "command"
	// ConfigOptionName points at the linter configuration file.
	ConfigOptionName = "jshintrc"

	defaultCommandConstant          = "jshint"
	configFlagConstant              = "--config"
	reporterFlagConstant            = "--reporter=unix"
	executorMissingMessageConstant  = "lint subsystem requires a command executor"
	violationsErrorTemplateConstant = "%d lint violation(s) in %s"
	violationLineTemplateConstant   = "%s:%d:%d: %s"
	lintPassedMessageConstant       = "lint passed"
	lintFailedMessageConstant       = "lint violations reported"
	taskLogFieldConstant            = "task"
	fileCountLogFieldConstant       = "file_count"
	violationCountLogFieldConstant  = "violation_count"
)

// violationLinePattern matches file:line:col: message; the lazy file group admits drive-letter paths.
var violationLinePattern = regexp.MustCompile(`^(.+?):(\d+):(\d+):\s*(.*)$`)

// ErrExecutorNotConfigured indicates the command executor dependency was missing.
var ErrExecutorNotConfigured = errors.New(executorMissingMessageConstant)

// CommandExecutor runs external commands.
type CommandExecutor interface {
	Execute(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error)
}

// Violation is a single linter finding.
type Violation struct {
	File    string
	Line    int
	Column  int
	Message string
}

// String renders the violation in unix reporter form.
func (violation Violation) String() string {
	return fmt.Sprintf(violationLineTemplateConstant, violation.File, violation.Line, violation.Column, violation.Message)
}

// ViolationsError reports the findings of a failed lint run.
type ViolationsError struct {
	TaskName    string
	Violations  []Violation
	Diagnostics string
}

// Error renders the linter output verbatim under a count header.
// Parsed violations stand in only when no output was captured.
func (violationsError ViolationsError) Error() string {
	header := fmt.Sprintf(violationsErrorTemplateConstant, len(violationsError.Violations), violationsError.TaskName)
	if diagnostics := strings.TrimRight(violationsError.Diagnostics, "\r\n"); len(strings.TrimSpace(diagnostics)) > 0 {
		return header + "\n" + diagnostics
	}
	lines := make([]string, 0, len(violationsError.Violations)+1)
	lines = append(lines, header)
	for _, violation := range violationsError.Violations {
		lines = append(lines, violation.String())
	}
	return strings.Join(lines, "\n")
}

// Subsystem lints task sources with the configured linter executable.
type Subsystem struct {
	executor         CommandExecutor
	workingDirectory string
	logger           *zap.Logger
}

// NewSubsystem constructs the lint subsystem.
func NewSubsystem(executor CommandExecutor, workingDirectory string, logger *zap.Logger) (*Subsystem, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subsystem{executor: executor, workingDirectory: workingDirectory, logger: logger}, nil
}

// Invoke lints the files selected by the task's source patterns.
func (subsystem *Subsystem) Invoke(executionContext context.Context, task taskrunner.Task) error {
	files, expandError := fileset.ExpandRequired(subsystem.workingDirectory, task.Sources)
	if expandError != nil {
		return expandError
	}

	arguments := make([]string, 0, len(files)+3)
	if configPath := task.StringOption(ConfigOptionName, ""); len(configPath) > 0 {
		arguments = append(arguments, configFlagConstant, configPath)
	}
	arguments = append(arguments, reporterFlagConstant)
	arguments = append(arguments, files...)

	command := execshell.ShellCommand{
		Name: execshell.CommandName(task.StringOption(CommandOptionName, defaultCommandConstant)),
		Details: execshell.CommandDetails{
			Arguments:        arguments,
			WorkingDirectory: subsystem.workingDirectory,
		},
	}

	_, executionError := subsystem.executor.Execute(executionContext, command)
	if executionError == nil {
		subsystem.logger.Debug(lintPassedMessageConstant, zap.String(taskLogFieldConstant, task.Name()), zap.Int(fileCountLogFieldConstant, len(files)))
		return nil
	}

	var commandFailure execshell.CommandFailedError
	if !errors.As(executionError, &commandFailure) {
		return executionError
	}

	violations := ParseViolations(commandFailure.Result.StandardOutput)
	if len(violations) == 0 {
		return executionError
	}
	subsystem.logger.Debug(lintFailedMessageConstant, zap.String(taskLogFieldConstant, task.Name()), zap.Int(violationCountLogFieldConstant, len(violations)))
	return ViolationsError{
		TaskName:    task.Name(),
		Violations:  violations,
		Diagnostics: commandFailure.Result.StandardOutput,
	}
}

// ParseViolations extracts findings from unix reporter output. Lines that are not findings are ignored.
func ParseViolations(output string) []Violation {
	violations := make([]Violation, 0)
	for _, rawLine := range strings.Split(output, "\n") {
		line := strings.TrimSpace(rawLine)
		if len(line) == 0 {
			continue
		}
		fields := violationLinePattern.FindStringSubmatch(line)
		if fields == nil {
			continue
		}
		lineNumber, lineError := strconv.Atoi(fields[2])
		if lineError != nil {
			continue
		}
		columnNumber, columnError := strconv.Atoi(fields[3])
		if columnError != nil {
			continue
		}
		violations = append(violations, Violation{
			File:    strings.TrimSpace(fields[1]),
			Line:    lineNumber,
			Column:  columnNumber,
			Message: strings.TrimSpace(fields[4]),
		})
	}
	return violations
}
