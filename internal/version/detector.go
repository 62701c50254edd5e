// Package version resolves the taskpipe release identifier.
package version

import (
	"context"
	"os"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"github.com/tyemirov/taskpipe/internal/execshell"
)

const (
	unknownVersionFallbackConstant            = "unknown"
	buildInfoDevelVersionValue                = "(devel)"
	gitCommandNameConstant                    = "git"
	gitDescribeSubcommandConstant             = "describe"
	gitTagsFlagConstant                       = "--tags"
	gitExactMatchFlagConstant                 = "--exact-match"
	gitLongFlagConstant                       = "--long"
	gitDirtyFlagConstant                      = "--dirty"
	gitTerminalPromptEnvironmentNameConstant  = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptEnvironmentValueConstant = "0"
)

// Release is stamped at link time with -ldflags "-X github.com/tyemirov/taskpipe/internal/version.Release=v1.0.0".
var Release string

// BuildInfoProvider exposes runtime build metadata.
type BuildInfoProvider interface {
	Read() (*debug.BuildInfo, bool)
}

// CommandExecutor runs external commands.
type CommandExecutor interface {
	Execute(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error)
}

// Dependencies describes the collaborators used for version detection.
type Dependencies struct {
	Release           string
	BuildInfoProvider BuildInfoProvider
	CommandExecutor   CommandExecutor
	WorkingDirectory  string
}

// Detector resolves the release identifier from the linker stamp, module build info, or git tags, in that order.
type Detector struct {
	release           string
	buildInfoProvider BuildInfoProvider
	commandExecutor   CommandExecutor
	workingDirectory  string
}

// NewDetector constructs a Detector, filling unset dependencies with runtime defaults.
func NewDetector(dependencies Dependencies) (*Detector, error) {
	provider := dependencies.BuildInfoProvider
	if provider == nil {
		provider = runtimeBuildInfoProvider{}
	}

	executor := dependencies.CommandExecutor
	if executor == nil {
		shellExecutor, creationError := execshell.NewShellExecutor(zap.NewNop(), execshell.OSCommandRunner{}, false)
		if creationError != nil {
			return nil, creationError
		}
		executor = shellExecutor
	}

	release := strings.TrimSpace(dependencies.Release)
	if len(release) == 0 {
		release = strings.TrimSpace(Release)
	}

	workingDirectory := strings.TrimSpace(dependencies.WorkingDirectory)
	if len(workingDirectory) == 0 {
		if currentDirectory, workingDirectoryError := os.Getwd(); workingDirectoryError == nil {
			workingDirectory = currentDirectory
		}
	}

	return &Detector{
		release:           release,
		buildInfoProvider: provider,
		commandExecutor:   executor,
		workingDirectory:  workingDirectory,
	}, nil
}

// Detect resolves the version using the supplied dependencies.
func Detect(executionContext context.Context, dependencies Dependencies) string {
	detector, detectorError := NewDetector(dependencies)
	if detectorError != nil {
		return unknownVersionFallbackConstant
	}
	return detector.Version(executionContext)
}

// Version returns the detected version string, or "unknown".
func (detector *Detector) Version(executionContext context.Context) string {
	if detector == nil {
		return unknownVersionFallbackConstant
	}
	if len(detector.release) > 0 {
		return detector.release
	}
	if buildVersion := detector.versionFromBuildInfo(); len(buildVersion) > 0 {
		return buildVersion
	}
	if exactVersion := detector.describe(executionContext, gitExactMatchFlagConstant); len(exactVersion) > 0 {
		return exactVersion
	}
	if longVersion := detector.describe(executionContext, gitLongFlagConstant, gitDirtyFlagConstant); len(longVersion) > 0 {
		return longVersion
	}
	return unknownVersionFallbackConstant
}

func (detector *Detector) versionFromBuildInfo() string {
	buildInfo, available := detector.buildInfoProvider.Read()
	if !available || buildInfo == nil {
		return ""
	}
	trimmedVersion := strings.TrimSpace(buildInfo.Main.Version)
	if len(trimmedVersion) == 0 || strings.EqualFold(trimmedVersion, buildInfoDevelVersionValue) {
		return ""
	}
	return trimmedVersion
}

func (detector *Detector) describe(executionContext context.Context, flags ...string) string {
	if detector.commandExecutor == nil {
		return ""
	}
	arguments := append([]string{gitDescribeSubcommandConstant, gitTagsFlagConstant}, flags...)
	executionResult, executionError := detector.commandExecutor.Execute(executionContext, execshell.ShellCommand{
		Name: gitCommandNameConstant,
		Details: execshell.CommandDetails{
			Arguments:            arguments,
			WorkingDirectory:     detector.workingDirectory,
			EnvironmentVariables: map[string]string{gitTerminalPromptEnvironmentNameConstant: gitTerminalPromptEnvironmentValueConstant},
		},
	})
	if executionError != nil {
		return ""
	}
	return strings.TrimSpace(executionResult.StandardOutput)
}

type runtimeBuildInfoProvider struct{}

func (runtimeBuildInfoProvider) Read() (*debug.BuildInfo, bool) {
	return debug.ReadBuildInfo()
}
