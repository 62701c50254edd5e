package execshell_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tyemirov/taskpipe/internal/execshell"
)

const (
	testExecutionSuccessCaseNameConstant         = "success"
	testExecutionFailureCaseNameConstant         = "failure_exit_code"
	testExecutionRunnerErrorCaseNameConstant     = "runner_error"
	testCommandNameConstant                      = "sass"
	testCommandArgumentConstant                  = "--version"
	testWorkingDirectoryConstant                 = "."
	testStandardErrorOutputConstant              = "failure"
	testRunnerFailureMessageConstant             = "runner failure"
	testLoggerInitializationCaseNameConstant     = "logger_validation"
	testRunnerInitializationCaseNameConstant     = "runner_validation"
	testSuccessfulInitializationCaseNameConstant = "successful_initialization"
	testRunnerErrorHumanMessageConstant          = "sass --version (in .) failed: runner failure"
)

type recordingCommandRunner struct {
	executionResult  execshell.ExecutionResult
	executionError   error
	recordedCommands []execshell.ShellCommand
}

func (runner *recordingCommandRunner) Run(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	runner.recordedCommands = append(runner.recordedCommands, command)
	return runner.executionResult, runner.executionError
}

func testCommand() execshell.ShellCommand {
	return execshell.ShellCommand{
		Name: testCommandNameConstant,
		Details: execshell.CommandDetails{
			Arguments:        []string{testCommandArgumentConstant},
			WorkingDirectory: testWorkingDirectoryConstant,
		},
	}
}

func TestShellExecutorInitializationValidation(testInstance *testing.T) {
	testCases := []struct {
		name          string
		logger        *zap.Logger
		runner        execshell.CommandRunner
		expectError   error
		expectSuccess bool
	}{
		{
			name:        testLoggerInitializationCaseNameConstant,
			logger:      nil,
			runner:      &recordingCommandRunner{},
			expectError: execshell.ErrLoggerNotConfigured,
		},
		{
			name:        testRunnerInitializationCaseNameConstant,
			logger:      zap.NewNop(),
			runner:      nil,
			expectError: execshell.ErrCommandRunnerNotConfigured,
		},
		{
			name:          testSuccessfulInitializationCaseNameConstant,
			logger:        zap.NewNop(),
			runner:        &recordingCommandRunner{},
			expectSuccess: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor, creationError := execshell.NewShellExecutor(testCase.logger, testCase.runner, false)
			if testCase.expectSuccess {
				require.NoError(testInstance, creationError)
				require.NotNil(testInstance, executor)
			} else {
				require.Error(testInstance, creationError)
				require.ErrorIs(testInstance, creationError, testCase.expectError)
			}
		})
	}
}

func TestShellExecutorRejectsMissingCommandName(testInstance *testing.T) {
	recordingRunner := &recordingCommandRunner{}
	shellExecutor, creationError := execshell.NewShellExecutor(zap.NewNop(), recordingRunner, false)
	require.NoError(testInstance, creationError)

	_, executionError := shellExecutor.Execute(context.Background(), execshell.ShellCommand{Name: "  "})
	require.ErrorIs(testInstance, executionError, execshell.ErrCommandNameMissing)
	require.Empty(testInstance, recordingRunner.recordedCommands)
}

func TestShellExecutorExecuteBehavior(testInstance *testing.T) {
	testCases := []struct {
		name             string
		runnerResult     execshell.ExecutionResult
		runnerError      error
		expectErrorType  any
		expectedLogCount int
		expectedLevels   []zapcore.Level
	}{
		{
			name: testExecutionSuccessCaseNameConstant,
			runnerResult: execshell.ExecutionResult{
				StandardOutput: "ok",
				ExitCode:       0,
			},
			expectedLogCount: 2,
			expectedLevels:   []zapcore.Level{zap.InfoLevel, zap.InfoLevel},
		},
		{
			name: testExecutionFailureCaseNameConstant,
			runnerResult: execshell.ExecutionResult{
				StandardError: testStandardErrorOutputConstant,
				ExitCode:      1,
			},
			expectErrorType:  execshell.CommandFailedError{},
			expectedLogCount: 2,
			expectedLevels:   []zapcore.Level{zap.InfoLevel, zap.WarnLevel},
		},
		{
			name:             testExecutionRunnerErrorCaseNameConstant,
			runnerError:      errors.New(testRunnerFailureMessageConstant),
			expectErrorType:  execshell.CommandExecutionError{},
			expectedLogCount: 2,
			expectedLevels:   []zapcore.Level{zap.InfoLevel, zap.ErrorLevel},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			observerCore, observerLogs := observer.New(zap.DebugLevel)
			logger := zap.New(observerCore)

			recordingRunner := &recordingCommandRunner{
				executionResult: testCase.runnerResult,
				executionError:  testCase.runnerError,
			}

			shellExecutor, creationError := execshell.NewShellExecutor(logger, recordingRunner, false)
			require.NoError(testInstance, creationError)

			executionResult, executionError := shellExecutor.Execute(context.Background(), testCommand())

			if testCase.expectErrorType != nil {
				require.Error(testInstance, executionError)
				require.IsType(testInstance, testCase.expectErrorType, executionError)
			} else {
				require.NoError(testInstance, executionError)
				require.Equal(testInstance, testCase.runnerResult.StandardOutput, executionResult.StandardOutput)
			}

			capturedLogs := observerLogs.All()
			require.Len(testInstance, capturedLogs, testCase.expectedLogCount)
			for logIndex := range capturedLogs {
				require.Equal(testInstance, testCase.expectedLevels[logIndex], capturedLogs[logIndex].Level)
			}
		})
	}
}

func TestShellExecutorHumanReadableLogging(testInstance *testing.T) {
	testCases := []struct {
		name             string
		runnerResult     execshell.ExecutionResult
		runnerError      error
		expectedMessages []string
		expectedLevels   []zapcore.Level
	}{
		{
			name:         testExecutionSuccessCaseNameConstant,
			runnerResult: execshell.ExecutionResult{StandardOutput: "ok", ExitCode: 0},
			expectedMessages: []string{
				"Running sass --version (in .)",
				"Completed sass --version (in .)",
			},
			expectedLevels: []zapcore.Level{zap.InfoLevel, zap.InfoLevel},
		},
		{
			name:         testExecutionFailureCaseNameConstant,
			runnerResult: execshell.ExecutionResult{StandardError: testStandardErrorOutputConstant, ExitCode: 1},
			expectedMessages: []string{
				"Running sass --version (in .)",
				"sass --version (in .) failed with exit code 1: failure",
			},
			expectedLevels: []zapcore.Level{zap.InfoLevel, zap.WarnLevel},
		},
		{
			name:        testExecutionRunnerErrorCaseNameConstant,
			runnerError: errors.New(testRunnerFailureMessageConstant),
			expectedMessages: []string{
				"Running sass --version (in .)",
				testRunnerErrorHumanMessageConstant,
			},
			expectedLevels: []zapcore.Level{zap.InfoLevel, zap.ErrorLevel},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			observerCore, observedLogs := observer.New(zap.InfoLevel)
			logger := zap.New(observerCore)

			recordingRunner := &recordingCommandRunner{
				executionResult: testCase.runnerResult,
				executionError:  testCase.runnerError,
			}

			shellExecutor, creationError := execshell.NewShellExecutor(logger, recordingRunner, true)
			require.NoError(testInstance, creationError)

			_, _ = shellExecutor.Execute(context.Background(), testCommand())

			capturedLogs := observedLogs.All()
			require.Len(testInstance, capturedLogs, len(testCase.expectedMessages))
			for logIndex := range capturedLogs {
				require.Equal(testInstance, testCase.expectedMessages[logIndex], capturedLogs[logIndex].Message)
				require.Equal(testInstance, testCase.expectedLevels[logIndex], capturedLogs[logIndex].Level)
			}
		})
	}
}

func TestCommandFailedErrorMessage(testInstance *testing.T) {
	failure := execshell.CommandFailedError{
		Command: testCommand(),
		Result: execshell.ExecutionResult{
			StandardError: "line one\n\nline two\nline three\nline four",
			ExitCode:      65,
		},
	}

	require.Equal(testInstance, "sass command exited with code 65: line one | line two", failure.Error())
	require.Equal(testInstance, "line one\n\nline two\nline three\nline four", failure.Diagnostics())

	outputOnly := execshell.CommandFailedError{
		Command: testCommand(),
		Result:  execshell.ExecutionResult{StandardOutput: "report\n", ExitCode: 2},
	}
	require.Equal(testInstance, "sass command exited with code 2: report", outputOnly.Error())
	require.Equal(testInstance, "report\n", outputOnly.Diagnostics())
}

func TestOSCommandRunnerCapturesExitStatus(testInstance *testing.T) {
	if runtime.GOOS == "windows" {
		testInstance.Skip("requires a POSIX shell")
	}
	shellPath, lookupError := exec.LookPath("sh")
	if lookupError != nil {
		testInstance.Skip("sh not available")
	}

	workingDirectory := testInstance.TempDir()
	require.NoError(testInstance, os.WriteFile(filepath.Join(workingDirectory, "fixture.txt"), []byte("x"), 0o644))
	runner := execshell.OSCommandRunner{}

	result, runError := runner.Run(context.Background(), execshell.ShellCommand{
		Name: execshell.CommandName(shellPath),
		Details: execshell.CommandDetails{
			Arguments:            []string{"-c", "echo \"$TASKPIPE_TEST_VALUE\"; ls; echo broken >&2; exit 3"},
			WorkingDirectory:     workingDirectory,
			EnvironmentVariables: map[string]string{"TASKPIPE_TEST_VALUE": "marker"},
		},
	})
	require.NoError(testInstance, runError)
	require.Equal(testInstance, 3, result.ExitCode)
	require.Contains(testInstance, result.StandardOutput, "marker")
	require.Contains(testInstance, result.StandardOutput, "fixture.txt")
	require.Equal(testInstance, "broken\n", result.StandardError)
}

func TestOSCommandRunnerReportsMissingExecutable(testInstance *testing.T) {
	runner := execshell.OSCommandRunner{}
	_, runError := runner.Run(context.Background(), execshell.ShellCommand{Name: "taskpipe-missing-executable"})
	require.Error(testInstance, runError)
}
