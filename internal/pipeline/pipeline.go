package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tyemirov/taskpipe/pkg/taskrunner"
)

const (
	noPipelinesMessageConstant               = "no pipelines are defined"
	emptyAliasMessageConstant                = "pipeline alias must not be empty"
	emptyPipelineTemplateConstant            = "pipeline %q lists no tasks"
	emptyReferenceTemplateConstant           = "pipeline %q contains an empty task reference at position %d"
	targetWithoutSourcesTemplateConstant     = "target %s declares no sources"
	unknownSubsystemReasonConstant           = "no such subsystem is available"
	unconfiguredSubsystemReasonConstant      = "subsystem has no configuration"
	subsystemWithoutTargetsReasonConstant    = "subsystem has no targets"
	unconfiguredTargetReasonTemplateConstant = "target %q is not configured"
)

// PipelineDefiner accepts pipeline definitions.
type PipelineDefiner interface {
	DefinePipeline(alias string, tasks []taskrunner.Task) error
}

// Pipelines holds resolved task sequences keyed by alias.
type Pipelines struct {
	definitions map[string][]taskrunner.Task
}

// Aliases returns the defined aliases in sorted order.
func (pipelines Pipelines) Aliases() []string {
	aliases := make([]string, 0, len(pipelines.definitions))
	for alias := range pipelines.definitions {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// Tasks returns the task sequence of alias.
func (pipelines Pipelines) Tasks(alias string) ([]taskrunner.Task, bool) {
	tasks, exists := pipelines.definitions[NormalizeName(alias)]
	return tasks, exists
}

// Apply defines every pipeline on definer in alias order.
func (pipelines Pipelines) Apply(definer PipelineDefiner) error {
	for _, alias := range pipelines.Aliases() {
		if defineError := definer.DefinePipeline(alias, pipelines.definitions[alias]); defineError != nil {
			return defineError
		}
	}
	return nil
}

// NormalizeName folds alias, subsystem, and target names to the form configuration keys are stored in.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Build validates configuration and resolves every pipeline alias into tasks.
// A bare subsystem reference expands to all of its targets in sorted order.
// Structural problems yield ConfigLoadError; references that cannot be resolved yield taskrunner.UnresolvedTaskError.
func Build(configuration Configuration, knownSubsystems []string) (Pipelines, error) {
	if len(configuration.Pipelines) == 0 {
		return Pipelines{}, ConfigLoadError{Cause: errors.New(noPipelinesMessageConstant)}
	}

	known := make(map[string]struct{}, len(knownSubsystems))
	for _, subsystem := range knownSubsystems {
		known[NormalizeName(subsystem)] = struct{}{}
	}
	subsystems := normalizeSubsystems(configuration.Subsystems)

	aliases := make([]string, 0, len(configuration.Pipelines))
	references := make(map[string][]string, len(configuration.Pipelines))
	for alias, aliasReferences := range configuration.Pipelines {
		normalizedAlias := NormalizeName(alias)
		if len(normalizedAlias) == 0 {
			return Pipelines{}, ConfigLoadError{Cause: errors.New(emptyAliasMessageConstant)}
		}
		aliases = append(aliases, normalizedAlias)
		references[normalizedAlias] = aliasReferences
	}
	sort.Strings(aliases)

	definitions := make(map[string][]taskrunner.Task, len(aliases))
	for _, alias := range aliases {
		aliasReferences := references[alias]
		if len(aliasReferences) == 0 {
			return Pipelines{}, ConfigLoadError{Cause: fmt.Errorf(emptyPipelineTemplateConstant, alias)}
		}

		tasks := make([]taskrunner.Task, 0, len(aliasReferences))
		for referenceIndex, reference := range aliasReferences {
			subsystemName, targetName := taskrunner.ParseTaskReference(reference)
			subsystemName = NormalizeName(subsystemName)
			targetName = NormalizeName(targetName)
			if len(subsystemName) == 0 {
				return Pipelines{}, ConfigLoadError{Cause: fmt.Errorf(emptyReferenceTemplateConstant, alias, referenceIndex+1)}
			}

			resolvedTasks, resolutionError := resolveReference(alias, subsystemName, targetName, known, subsystems)
			if resolutionError != nil {
				return Pipelines{}, resolutionError
			}
			tasks = append(tasks, resolvedTasks...)
		}
		definitions[alias] = tasks
	}

	return Pipelines{definitions: definitions}, nil
}

func resolveReference(alias string, subsystemName string, targetName string, known map[string]struct{}, subsystems map[string]SubsystemConfiguration) ([]taskrunner.Task, error) {
	referenceName := subsystemName
	if len(targetName) > 0 {
		referenceName = subsystemName + ":" + targetName
	}
	unresolved := taskrunner.UnresolvedTaskError{Alias: alias, TaskName: referenceName, Subsystem: subsystemName}

	if _, available := known[subsystemName]; !available {
		unresolved.Reason = unknownSubsystemReasonConstant
		return nil, unresolved
	}
	subsystemConfiguration, configured := subsystems[subsystemName]
	if !configured {
		unresolved.Reason = unconfiguredSubsystemReasonConstant
		return nil, unresolved
	}

	targetNames := []string{targetName}
	if len(targetName) == 0 {
		targetNames = sortedTargetNames(subsystemConfiguration.Targets)
		if len(targetNames) == 0 {
			unresolved.Reason = subsystemWithoutTargetsReasonConstant
			return nil, unresolved
		}
	}

	tasks := make([]taskrunner.Task, 0, len(targetNames))
	for _, name := range targetNames {
		targetConfiguration, targetConfigured := subsystemConfiguration.Targets[name]
		if !targetConfigured {
			unresolved.Reason = fmt.Sprintf(unconfiguredTargetReasonTemplateConstant, name)
			return nil, unresolved
		}
		task := taskrunner.Task{
			Subsystem: subsystemName,
			Target:    name,
			Sources:   trimmedSources(targetConfiguration.Sources),
			Output:    strings.TrimSpace(targetConfiguration.Output),
			Options:   mergeOptions(subsystemConfiguration.Options, targetConfiguration.Options),
		}
		if len(task.Sources) == 0 {
			return nil, ConfigLoadError{Cause: fmt.Errorf(targetWithoutSourcesTemplateConstant, task.Name())}
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func normalizeSubsystems(subsystems map[string]SubsystemConfiguration) map[string]SubsystemConfiguration {
	normalized := make(map[string]SubsystemConfiguration, len(subsystems))
	for subsystemName, subsystemConfiguration := range subsystems {
		targets := make(map[string]TargetConfiguration, len(subsystemConfiguration.Targets))
		for targetName, targetConfiguration := range subsystemConfiguration.Targets {
			targets[NormalizeName(targetName)] = targetConfiguration
		}
		subsystemConfiguration.Targets = targets
		normalized[NormalizeName(subsystemName)] = subsystemConfiguration
	}
	return normalized
}

func sortedTargetNames(targets map[string]TargetConfiguration) []string {
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func trimmedSources(sources []string) []string {
	trimmed := make([]string, 0, len(sources))
	for _, source := range sources {
		if candidate := strings.TrimSpace(source); len(candidate) > 0 {
			trimmed = append(trimmed, candidate)
		}
	}
	return trimmed
}

// mergeOptions layers target options over subsystem options.
func mergeOptions(subsystemOptions map[string]any, targetOptions map[string]any) map[string]any {
	merged := make(map[string]any, len(subsystemOptions)+len(targetOptions))
	for key, value := range subsystemOptions {
		merged[NormalizeName(key)] = value
	}
	for key, value := range targetOptions {
		merged[NormalizeName(key)] = value
	}
	return merged
}
