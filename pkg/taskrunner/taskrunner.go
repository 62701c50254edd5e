package taskrunner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	subsystemOverwrittenMessageConstant = "subsystem registration overwritten; last registration wins"
	subsystemRegisteredMessageConstant  = "subsystem registered"
	pipelineRedefinedMessageConstant    = "pipeline redefined; previous task sequence discarded"
	pipelineDefinedMessageConstant      = "pipeline defined"
	pipelineStartedMessageConstant      = "pipeline started"
	pipelineCompletedMessageConstant    = "pipeline completed"
	pipelineFailedMessageConstant       = "pipeline failed"
	taskStartedMessageConstant          = "task started"
	taskCompletedMessageConstant        = "task completed"
	aliasLogFieldConstant               = "alias"
	subsystemLogFieldConstant           = "subsystem"
	taskLogFieldConstant                = "task"
	taskCountLogFieldConstant           = "task_count"
	stepLogFieldConstant                = "step"
	durationLogFieldConstant            = "duration"
)

// Runner executes named pipelines of subsystem tasks sequentially with fail-fast semantics.
type Runner struct {
	mutex       sync.RWMutex
	invocations map[string]InvocationFunc
	pipelines   map[string][]Task
	logger      *zap.Logger
	clock       func() time.Time
}

// NewRunner constructs an empty Runner. A nil logger disables logging.
func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		invocations: make(map[string]InvocationFunc),
		pipelines:   make(map[string][]Task),
		logger:      logger,
		clock:       time.Now,
	}
}

// Register binds a subsystem name to its invocation function.
// Registering the same name twice replaces the earlier binding and logs a warning.
func (runner *Runner) Register(subsystem string, invocation InvocationFunc) error {
	normalizedSubsystem := strings.TrimSpace(subsystem)
	if len(normalizedSubsystem) == 0 {
		return errors.New(emptySubsystemNameMessageConstant)
	}
	if invocation == nil {
		return fmt.Errorf(missingInvocationFunctionTemplateConstant, normalizedSubsystem)
	}

	runner.mutex.Lock()
	_, alreadyRegistered := runner.invocations[normalizedSubsystem]
	runner.invocations[normalizedSubsystem] = invocation
	runner.mutex.Unlock()

	if alreadyRegistered {
		runner.logger.Warn(subsystemOverwrittenMessageConstant, zap.String(subsystemLogFieldConstant, normalizedSubsystem))
		return nil
	}
	runner.logger.Debug(subsystemRegisteredMessageConstant, zap.String(subsystemLogFieldConstant, normalizedSubsystem))
	return nil
}

// DefinePipeline associates an ordered task sequence with an alias, replacing any earlier definition.
func (runner *Runner) DefinePipeline(alias string, tasks []Task) error {
	normalizedAlias := strings.TrimSpace(alias)
	if len(normalizedAlias) == 0 {
		return errors.New(emptyPipelineAliasMessageConstant)
	}

	runner.mutex.Lock()
	_, alreadyDefined := runner.pipelines[normalizedAlias]
	runner.pipelines[normalizedAlias] = cloneTasks(tasks)
	runner.mutex.Unlock()

	message := pipelineDefinedMessageConstant
	if alreadyDefined {
		message = pipelineRedefinedMessageConstant
	}
	runner.logger.Debug(message, zap.String(aliasLogFieldConstant, normalizedAlias), zap.Int(taskCountLogFieldConstant, len(tasks)))
	return nil
}

// Aliases returns the defined pipeline aliases in sorted order.
func (runner *Runner) Aliases() []string {
	runner.mutex.RLock()
	defer runner.mutex.RUnlock()

	aliases := make([]string, 0, len(runner.pipelines))
	for alias := range runner.pipelines {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// Pipeline returns a copy of the task sequence defined for the alias.
func (runner *Runner) Pipeline(alias string) ([]Task, bool) {
	runner.mutex.RLock()
	defer runner.mutex.RUnlock()

	tasks, exists := runner.pipelines[strings.TrimSpace(alias)]
	if !exists {
		return nil, false
	}
	return cloneTasks(tasks), true
}

// Run executes the pipeline registered under alias.
// Every task is resolved before the first invocation; the first failing invocation stops the run.
func (runner *Runner) Run(executionContext context.Context, alias string) (Summary, error) {
	if executionContext == nil {
		executionContext = context.Background()
	}
	normalizedAlias := strings.TrimSpace(alias)
	summary := Summary{Alias: normalizedAlias, State: RunStateNotStarted}

	tasks, invocations, resolutionError := runner.resolve(normalizedAlias)
	if resolutionError != nil {
		return summary, resolutionError
	}

	startTime := runner.clock()
	summary.transition(RunStateRunning)
	runner.logger.Info(pipelineStartedMessageConstant, zap.String(aliasLogFieldConstant, normalizedAlias), zap.Int(taskCountLogFieldConstant, len(tasks)))

	for taskIndex := range tasks {
		task := tasks[taskIndex]

		if contextError := executionContext.Err(); contextError != nil {
			summary.Duration = runner.clock().Sub(startTime)
			summary.transition(RunStateFailed)
			return summary, fmt.Errorf(pipelineCancelledErrorTemplateConstant, normalizedAlias, taskIndex+1, len(tasks), contextError)
		}

		runner.logger.Debug(
			taskStartedMessageConstant,
			zap.String(aliasLogFieldConstant, normalizedAlias),
			zap.Int(stepLogFieldConstant, taskIndex+1),
			zap.String(subsystemLogFieldConstant, task.Subsystem),
			zap.String(taskLogFieldConstant, task.Name()),
		)

		taskStartTime := runner.clock()
		invocationError := invocations[taskIndex](executionContext, cloneTask(task))
		taskDuration := runner.clock().Sub(taskStartTime)

		summary.Steps = append(summary.Steps, StepResult{
			Index:     taskIndex,
			Subsystem: task.Subsystem,
			TaskName:  task.Name(),
			Duration:  taskDuration,
			Succeeded: invocationError == nil,
		})

		if invocationError != nil {
			summary.Duration = runner.clock().Sub(startTime)
			summary.transition(RunStateFailed)
			failure := SubsystemInvocationError{
				Alias:     normalizedAlias,
				Index:     taskIndex,
				Total:     len(tasks),
				Subsystem: task.Subsystem,
				TaskName:  task.Name(),
				Cause:     invocationError,
			}
			runner.logger.Error(
				pipelineFailedMessageConstant,
				zap.String(aliasLogFieldConstant, normalizedAlias),
				zap.Int(stepLogFieldConstant, taskIndex+1),
				zap.String(subsystemLogFieldConstant, task.Subsystem),
				zap.String(taskLogFieldConstant, task.Name()),
				zap.Error(invocationError),
			)
			return summary, failure
		}

		runner.logger.Info(
			taskCompletedMessageConstant,
			zap.String(aliasLogFieldConstant, normalizedAlias),
			zap.Int(stepLogFieldConstant, taskIndex+1),
			zap.String(taskLogFieldConstant, task.Name()),
			zap.Duration(durationLogFieldConstant, taskDuration),
		)
	}

	summary.Duration = runner.clock().Sub(startTime)
	summary.transition(RunStateCompleted)
	runner.logger.Info(pipelineCompletedMessageConstant, zap.String(aliasLogFieldConstant, normalizedAlias), zap.Duration(durationLogFieldConstant, summary.Duration))
	return summary, nil
}

func (runner *Runner) resolve(alias string) ([]Task, []InvocationFunc, error) {
	runner.mutex.RLock()
	defer runner.mutex.RUnlock()

	tasks, exists := runner.pipelines[alias]
	if !exists {
		return nil, nil, UnknownAliasError{Alias: alias}
	}

	invocations := make([]InvocationFunc, 0, len(tasks))
	for taskIndex := range tasks {
		invocation, registered := runner.invocations[tasks[taskIndex].Subsystem]
		if !registered {
			return nil, nil, UnresolvedTaskError{
				Alias:     alias,
				TaskName:  tasks[taskIndex].Name(),
				Subsystem: tasks[taskIndex].Subsystem,
			}
		}
		invocations = append(invocations, invocation)
	}

	return cloneTasks(tasks), invocations, nil
}
