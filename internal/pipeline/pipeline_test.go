package pipeline_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/taskpipe/internal/pipeline"
	"github.com/tyemirov/taskpipe/pkg/taskrunner"
)

var (
	testKnownSubsystems = []string{"lint", "bundle", "style"}
	errNotFound         = errors.New("not found")
)

func buildConfiguration() pipeline.Configuration {
	return pipeline.Configuration{
		Package: "package.json",
		Subsystems: map[string]pipeline.SubsystemConfiguration{
			"lint": {
				Options: map[string]any{"jshintrc": ".jshintrc"},
				Targets: map[string]pipeline.TargetConfiguration{
					"tests": {Sources: []string{"test/**/*.js"}, Options: map[string]any{"jshintrc": "test/.jshintrc"}},
					"build": {Sources: []string{"src/js/*.js"}},
				},
			},
			"bundle": {
				Options: map[string]any{"banner": true},
				Targets: map[string]pipeline.TargetConfiguration{
					"build": {Sources: []string{" src/js/*.js ", ""}, Output: " app.min.js "},
				},
			},
			"style": {
				Targets: map[string]pipeline.TargetConfiguration{
					"build": {Sources: []string{"css/app.scss"}, Output: "app.css", Options: map[string]any{"Style": "compressed"}},
				},
			},
		},
		Pipelines: map[string][]string{
			"default": {"lint:build"},
			"build":   {"lint:build", "bundle:build", "style:build"},
			"check":   {"lint"},
		},
	}
}

func taskNames(tasks []taskrunner.Task) []string {
	names := make([]string, 0, len(tasks))
	for _, task := range tasks {
		names = append(names, task.Name())
	}
	return names
}

func TestBuildResolvesPipelines(testInstance *testing.T) {
	pipelines, buildError := pipeline.Build(buildConfiguration(), testKnownSubsystems)
	require.NoError(testInstance, buildError)
	require.Equal(testInstance, []string{"build", "check", "default"}, pipelines.Aliases())

	defaultTasks, exists := pipelines.Tasks("default")
	require.True(testInstance, exists)
	require.Equal(testInstance, []string{"lint:build"}, taskNames(defaultTasks))

	buildTasks, exists := pipelines.Tasks(" BUILD ")
	require.True(testInstance, exists)
	require.Equal(testInstance, []string{"lint:build", "bundle:build", "style:build"}, taskNames(buildTasks))

	checkTasks, exists := pipelines.Tasks("check")
	require.True(testInstance, exists)
	require.Equal(testInstance, []string{"lint:build", "lint:tests"}, taskNames(checkTasks))

	_, exists = pipelines.Tasks("deploy")
	require.False(testInstance, exists)
}

func TestBuildLayersOptionsAndNormalizesTargets(testInstance *testing.T) {
	pipelines, buildError := pipeline.Build(buildConfiguration(), testKnownSubsystems)
	require.NoError(testInstance, buildError)

	checkTasks, _ := pipelines.Tasks("check")
	require.Equal(testInstance, ".jshintrc", checkTasks[0].StringOption("jshintrc", ""))
	require.Equal(testInstance, "test/.jshintrc", checkTasks[1].StringOption("jshintrc", ""))

	buildTasks, _ := pipelines.Tasks("build")
	bundleTask := buildTasks[1]
	require.Equal(testInstance, []string{"src/js/*.js"}, bundleTask.Sources)
	require.Equal(testInstance, "app.min.js", bundleTask.Output)
	require.True(testInstance, bundleTask.BoolOption("banner", false))

	styleTask := buildTasks[2]
	require.Equal(testInstance, "compressed", styleTask.StringOption("style", ""))
}

func TestBuildRejectsInvalidConfiguration(testInstance *testing.T) {
	testCases := []struct {
		name              string
		mutate            func(configuration *pipeline.Configuration)
		expectLoadError   bool
		expectUnresolved  bool
		expectedSubstring string
	}{
		{
			name: "no_pipelines",
			mutate: func(configuration *pipeline.Configuration) {
				configuration.Pipelines = nil
			},
			expectLoadError:   true,
			expectedSubstring: "no pipelines are defined",
		},
		{
			name: "empty_alias",
			mutate: func(configuration *pipeline.Configuration) {
				configuration.Pipelines[" "] = []string{"lint:build"}
			},
			expectLoadError:   true,
			expectedSubstring: "alias must not be empty",
		},
		{
			name: "empty_pipeline",
			mutate: func(configuration *pipeline.Configuration) {
				configuration.Pipelines["release"] = []string{}
			},
			expectLoadError:   true,
			expectedSubstring: `pipeline "release" lists no tasks`,
		},
		{
			name: "empty_reference",
			mutate: func(configuration *pipeline.Configuration) {
				configuration.Pipelines["release"] = []string{"lint:build", " "}
			},
			expectLoadError:   true,
			expectedSubstring: "empty task reference at position 2",
		},
		{
			name: "target_without_sources",
			mutate: func(configuration *pipeline.Configuration) {
				configuration.Subsystems["bundle"].Targets["vendor"] = pipeline.TargetConfiguration{Output: "vendor.js"}
				configuration.Pipelines["release"] = []string{"bundle:vendor"}
			},
			expectLoadError:   true,
			expectedSubstring: "target bundle:vendor declares no sources",
		},
		{
			name: "subsystem_not_available",
			mutate: func(configuration *pipeline.Configuration) {
				configuration.Pipelines["release"] = []string{"imagemin:build"}
			},
			expectUnresolved:  true,
			expectedSubstring: "no such subsystem is available",
		},
		{
			name: "subsystem_not_configured",
			mutate: func(configuration *pipeline.Configuration) {
				delete(configuration.Subsystems, "style")
			},
			expectUnresolved:  true,
			expectedSubstring: "subsystem has no configuration",
		},
		{
			name: "target_not_configured",
			mutate: func(configuration *pipeline.Configuration) {
				configuration.Pipelines["release"] = []string{"style:print"}
			},
			expectUnresolved:  true,
			expectedSubstring: `target "print" is not configured`,
		},
		{
			name: "bare_subsystem_without_targets",
			mutate: func(configuration *pipeline.Configuration) {
				delete(configuration.Pipelines, "build")
				configuration.Subsystems["style"] = pipeline.SubsystemConfiguration{}
				configuration.Pipelines["release"] = []string{"style"}
			},
			expectUnresolved:  true,
			expectedSubstring: "subsystem has no targets",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			configuration := buildConfiguration()
			testCase.mutate(&configuration)

			_, buildError := pipeline.Build(configuration, testKnownSubsystems)
			require.Error(testInstance, buildError)
			require.Contains(testInstance, buildError.Error(), testCase.expectedSubstring)

			var loadError pipeline.ConfigLoadError
			require.Equal(testInstance, testCase.expectLoadError, errors.As(buildError, &loadError))
			var unresolvedError taskrunner.UnresolvedTaskError
			require.Equal(testInstance, testCase.expectUnresolved, errors.As(buildError, &unresolvedError))
		})
	}
}

func TestApplyDefinesEveryAliasOnRunner(testInstance *testing.T) {
	pipelines, buildError := pipeline.Build(buildConfiguration(), testKnownSubsystems)
	require.NoError(testInstance, buildError)

	runner := taskrunner.NewRunner(nil)
	require.NoError(testInstance, pipelines.Apply(runner))
	require.Equal(testInstance, []string{"build", "check", "default"}, runner.Aliases())

	buildTasks, exists := runner.Pipeline("build")
	require.True(testInstance, exists)
	require.Equal(testInstance, []string{"lint:build", "bundle:build", "style:build"}, taskNames(buildTasks))
}

func TestConfigLoadErrorMessages(testInstance *testing.T) {
	cause := pipeline.ConfigLoadError{Path: "taskpipe.yaml", Cause: errNotFound}
	require.Equal(testInstance, "unable to load configuration taskpipe.yaml: not found", cause.Error())
	require.ErrorIs(testInstance, cause, errNotFound)

	withoutPath := pipeline.ConfigLoadError{Cause: errNotFound}
	require.Equal(testInstance, "invalid configuration: not found", withoutPath.Error())
}
