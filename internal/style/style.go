// Package style compiles a Sass entry point with the external compiler and stamps the banner.
package style

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tyemirov/taskpipe/internal/banner"
	"github.com/tyemirov/taskpipe/internal/execshell"
	"github.com/tyemirov/taskpipe/internal/fileset"
	"github.com/tyemirov/taskpipe/pkg/taskrunner"
)

const (
	// SubsystemName is the name the style subsystem registers under.
	SubsystemName = "style"

	// CommandOptionName selects the compiler executable.
	CommandOptionName = "command"
	// StyleOptionName selects the output style.
	StyleOptionName = "style"
	// BannerOptionName toggles the package banner (default true).
	BannerOptionName = "banner"

	// StyleCompressed produces minified CSS.
	StyleCompressed = "compressed"
	// StyleExpanded produces readable CSS.
	StyleExpanded = "expanded"

	defaultCommandConstant                = "sass"
	styleFlagTemplateConstant             = "--style=%s"
	noSourceMapFlagConstant               = "--no-source-map"
	outputDirectoryPermissionsConstant    = 0o755
	outputFilePermissionsConstant         = 0o644
	executorMissingMessageConstant        = "style subsystem requires a command executor"
	packageNameMissingMessageConstant     = "style subsystem requires a package name"
	singleSourceErrorTemplateConstant     = "task %s requires exactly one source, found %d"
	outputMissingErrorTemplateConstant    = "task %s does not declare an output path"
	unsupportedStyleErrorTemplateConstant = "task %s requests unsupported style %q"
	compileFailedErrorTemplateConstant    = "sass compilation failed for %s:\n%s"
	outputReadErrorTemplateConstant       = "unable to read compiled stylesheet %s: %w"
	outputWriteErrorTemplateConstant      = "unable to write compiled stylesheet %s: %w"
	optionsDecodeErrorTemplateConstant    = "task %s has invalid options: %w"
	stylesheetWrittenMessageConstant      = "stylesheet compiled"
	taskLogFieldConstant                  = "task"
	outputLogFieldConstant                = "output"
	styleLogFieldConstant                 = "style"
)

var (
	// ErrExecutorNotConfigured indicates the command executor dependency was missing.
	ErrExecutorNotConfigured = errors.New(executorMissingMessageConstant)
	// ErrPackageNameMissing indicates the subsystem was built without a package name for the banner.
	ErrPackageNameMissing = errors.New(packageNameMissingMessageConstant)
)

// CommandExecutor runs external commands.
type CommandExecutor interface {
	Execute(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error)
}

// CompileError carries the compiler diagnostics of a failed compilation.
type CompileError struct {
	TaskName    string
	Diagnostics string
	Cause       error
}

// Error surfaces the compiler diagnostics verbatim.
func (compileError CompileError) Error() string {
	return fmt.Sprintf(compileFailedErrorTemplateConstant, compileError.TaskName, strings.TrimRight(compileError.Diagnostics, "\n"))
}

// Unwrap exposes the command failure.
func (compileError CompileError) Unwrap() error {
	return compileError.Cause
}

type compileOptions struct {
	Command string `mapstructure:"command"`
	Style   string `mapstructure:"style"`
	Banner  bool   `mapstructure:"banner"`
}

func decodeCompileOptions(task taskrunner.Task) (compileOptions, error) {
	options := compileOptions{Command: defaultCommandConstant, Style: StyleCompressed, Banner: true}
	if decodeError := task.DecodeOptions(&options); decodeError != nil {
		return compileOptions{}, fmt.Errorf(optionsDecodeErrorTemplateConstant, task.Name(), decodeError)
	}
	options.Command = strings.TrimSpace(options.Command)
	if len(options.Command) == 0 {
		options.Command = defaultCommandConstant
	}
	options.Style = strings.ToLower(strings.TrimSpace(options.Style))
	if len(options.Style) == 0 {
		options.Style = StyleCompressed
	}
	return options, nil
}

// Subsystem compiles stylesheets.
type Subsystem struct {
	packageName      string
	executor         CommandExecutor
	workingDirectory string
	logger           *zap.Logger
}

// NewSubsystem constructs the style subsystem.
func NewSubsystem(packageName string, executor CommandExecutor, workingDirectory string, logger *zap.Logger) (*Subsystem, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	if len(strings.TrimSpace(packageName)) == 0 {
		return nil, ErrPackageNameMissing
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subsystem{
		packageName:      packageName,
		executor:         executor,
		workingDirectory: workingDirectory,
		logger:           logger,
	}, nil
}

// Invoke compiles the task's single entry point into its output path.
func (subsystem *Subsystem) Invoke(executionContext context.Context, task taskrunner.Task) error {
	outputPath := strings.TrimSpace(task.Output)
	if len(outputPath) == 0 {
		return fmt.Errorf(outputMissingErrorTemplateConstant, task.Name())
	}

	sources, expandError := fileset.ExpandRequired(subsystem.workingDirectory, task.Sources)
	if expandError != nil {
		return expandError
	}
	if len(sources) != 1 {
		return fmt.Errorf(singleSourceErrorTemplateConstant, task.Name(), len(sources))
	}

	options, optionsError := decodeCompileOptions(task)
	if optionsError != nil {
		return optionsError
	}
	outputStyle := options.Style
	if outputStyle != StyleCompressed && outputStyle != StyleExpanded {
		return fmt.Errorf(unsupportedStyleErrorTemplateConstant, task.Name(), outputStyle)
	}

	resolvedOutputPath := fileset.Resolve(subsystem.workingDirectory, outputPath)
	if directoryError := os.MkdirAll(filepath.Dir(resolvedOutputPath), outputDirectoryPermissionsConstant); directoryError != nil {
		return fmt.Errorf(outputWriteErrorTemplateConstant, outputPath, directoryError)
	}

	command := execshell.ShellCommand{
		Name: execshell.CommandName(options.Command),
		Details: execshell.CommandDetails{
			Arguments: []string{
				fmt.Sprintf(styleFlagTemplateConstant, outputStyle),
				noSourceMapFlagConstant,
				sources[0],
				outputPath,
			},
			WorkingDirectory: subsystem.workingDirectory,
		},
	}

	if _, executionError := subsystem.executor.Execute(executionContext, command); executionError != nil {
		var commandFailure execshell.CommandFailedError
		if errors.As(executionError, &commandFailure) {
			return CompileError{TaskName: task.Name(), Diagnostics: commandFailure.Diagnostics(), Cause: executionError}
		}
		return executionError
	}

	if options.Banner {
		compiled, readError := os.ReadFile(resolvedOutputPath)
		if readError != nil {
			return fmt.Errorf(outputReadErrorTemplateConstant, outputPath, readError)
		}
		if writeError := os.WriteFile(resolvedOutputPath, banner.Prepend(subsystem.packageName, compiled), outputFilePermissionsConstant); writeError != nil {
			return fmt.Errorf(outputWriteErrorTemplateConstant, outputPath, writeError)
		}
	}

	subsystem.logger.Debug(
		stylesheetWrittenMessageConstant,
		zap.String(taskLogFieldConstant, task.Name()),
		zap.String(outputLogFieldConstant, outputPath),
		zap.String(styleLogFieldConstant, outputStyle),
	)
	return nil
}
