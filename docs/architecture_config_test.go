package docs_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tyemirov/taskpipe/internal/bundle"
	"github.com/tyemirov/taskpipe/internal/lint"
	"github.com/tyemirov/taskpipe/internal/pipeline"
	"github.com/tyemirov/taskpipe/internal/style"
)

const (
	documentationFileNameConstant    = "ARCHITECTURE.md"
	yamlFenceStartConstant           = "```yaml"
	yamlFenceEndConstant             = "```"
	configHeaderMarkerConstant       = "# taskpipe.yaml"
	parentDirectoryReferenceConstant = ".."
	missingHeaderMessageConstant     = "Architecture example missing config header marker"
	missingStartFenceMessageConstant = "Architecture example missing yaml fence start"
	missingEndFenceMessageConstant   = "Architecture example missing yaml fence end"
)

var expectedPipelineTasks = map[string][]string{
	"default": {"lint:app", "lint:tests"},
	"build":   {"lint:app", "lint:tests", "bundle:app", "style:app", "bundle:styles"},
	"ci":      {"lint:tests"},
}

func extractConfigurationSnippet(testInstance *testing.T) string {
	testInstance.Helper()
	workingDirectory, workingDirectoryError := os.Getwd()
	require.NoError(testInstance, workingDirectoryError)

	documentationPath := filepath.Join(workingDirectory, parentDirectoryReferenceConstant, documentationFileNameConstant)
	contentBytes, readError := os.ReadFile(documentationPath)
	require.NoError(testInstance, readError)

	contentText := string(contentBytes)
	headerIndex := strings.Index(contentText, configHeaderMarkerConstant)
	require.NotEqual(testInstance, -1, headerIndex, missingHeaderMessageConstant)

	fenceStartIndex := strings.LastIndex(contentText[:headerIndex], yamlFenceStartConstant)
	require.NotEqual(testInstance, -1, fenceStartIndex, missingStartFenceMessageConstant)

	fenceEndRelativeIndex := strings.Index(contentText[headerIndex:], yamlFenceEndConstant)
	require.NotEqual(testInstance, -1, fenceEndRelativeIndex, missingEndFenceMessageConstant)

	return strings.TrimSpace(contentText[fenceStartIndex+len(yamlFenceStartConstant) : headerIndex+fenceEndRelativeIndex])
}

func TestArchitectureConfigurationResolves(testInstance *testing.T) {
	snippetContent := extractConfigurationSnippet(testInstance)

	var configuration pipeline.Configuration
	require.NoError(testInstance, yaml.Unmarshal([]byte(snippetContent), &configuration))

	pipelines, buildError := pipeline.Build(configuration, []string{lint.SubsystemName, bundle.SubsystemName, style.SubsystemName})
	require.NoError(testInstance, buildError)
	require.Len(testInstance, pipelines.Aliases(), len(expectedPipelineTasks))

	for alias, expectedTaskNames := range expectedPipelineTasks {
		tasks, defined := pipelines.Tasks(alias)
		require.Truef(testInstance, defined, "alias %s", alias)

		taskNames := make([]string, 0, len(tasks))
		for _, task := range tasks {
			taskNames = append(taskNames, task.Name())
		}
		require.Equal(testInstance, expectedTaskNames, taskNames, alias)
	}

	buildTasks, _ := pipelines.Tasks("build")
	require.Equal(testInstance, ".jshintrc", buildTasks[0].StringOption(lint.ConfigOptionName, ""))
	require.Equal(testInstance, "expanded", buildTasks[3].StringOption(style.StyleOptionName, ""))
}
