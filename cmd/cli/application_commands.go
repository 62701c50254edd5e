package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tyemirov/taskpipe/internal/pipeline"
	"github.com/tyemirov/taskpipe/internal/utils"
	flagutils "github.com/tyemirov/taskpipe/internal/utils/flags"
)

const (
	runCommandUseConstant                                  = "run <alias>"
	runCommandShortDescriptionConstant                     = "Run the named pipeline"
	runCommandLongDescriptionConstant                      = "run executes the tasks of the named pipeline in order and stops at the first failing task."
	pipelinesCommandUseConstant                            = "pipelines"
	pipelinesCommandAliasConstant                          = "ls"
	pipelinesCommandShortDescriptionConstant               = "Print the resolved pipelines as YAML"
	pipelinesCommandLongDescriptionConstant                = "pipelines validates the configuration and prints every alias with its resolved tasks."
	versionCommandUseConstant                              = "version"
	versionCommandShortDescriptionConstant                 = "Print the taskpipe version"
	versionCommandLongDescriptionConstant                  = "version prints the current taskpipe release identifier."
	versionOutputTemplateConstant                          = "taskpipe version: %s\n"
	initCommandUseConstant                                 = "init"
	initCommandShortDescriptionConstant                    = "Write the default configuration to the working directory"
	initCommandLongDescriptionConstant                     = "init writes the embedded default configuration to taskpipe.yaml in the working directory."
	initForceFlagNameConstant                              = "force"
	initForceFlagUsageConstant                             = "Overwrite an existing configuration file."
	yamlIndentConstant                                     = 2
	configurationFilePermissionConstant                    = 0o644
	configurationInitializationExistingTemplateConstant    = "configuration file already exists at %s (use --force to overwrite)"
	configurationInitializationDirectoryTemplateConstant   = "configuration path %s is a directory"
	configurationInitializationWriteErrorTemplateConstant  = "unable to write configuration file %s: %w"
	configurationInitializationContentMissingErrorConstant = "embedded configuration content is unavailable"
	configurationInitializationSuccessMessageConstant      = "configuration file created"
)

type pipelineListing struct {
	Pipelines []pipelineListingEntry `yaml:"pipelines"`
}

type pipelineListingEntry struct {
	Alias string             `yaml:"alias"`
	Tasks []taskListingEntry `yaml:"tasks"`
}

type taskListingEntry struct {
	Name    string         `yaml:"name"`
	Sources []string       `yaml:"sources"`
	Output  string         `yaml:"output,omitempty"`
	Options map[string]any `yaml:"options,omitempty"`
}

func (application *Application) registerCommands(cobraCommand *cobra.Command) {
	runCommand := &cobra.Command{
		Use:   runCommandUseConstant,
		Short: runCommandShortDescriptionConstant,
		Long:  runCommandLongDescriptionConstant,
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runPipeline(command, arguments)
		},
	}

	pipelinesCommand := &cobra.Command{
		Use:     pipelinesCommandUseConstant,
		Aliases: []string{pipelinesCommandAliasConstant},
		Short:   pipelinesCommandShortDescriptionConstant,
		Long:    pipelinesCommandLongDescriptionConstant,
		Args:    cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.printPipelines(command)
		},
	}

	versionCommand := &cobra.Command{
		Use:   versionCommandUseConstant,
		Short: versionCommandShortDescriptionConstant,
		Long:  versionCommandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			_, printError := fmt.Fprintf(command.OutOrStdout(), versionOutputTemplateConstant, application.versionResolver(command.Context()))
			return printError
		},
	}

	initCommand := &cobra.Command{
		Use:   initCommandUseConstant,
		Short: initCommandShortDescriptionConstant,
		Long:  initCommandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			forced, _, _ := flagutils.BoolFlag(command, initForceFlagNameConstant)
			return application.writeDefaultConfiguration(command, forced)
		},
	}
	initCommand.Flags().Bool(initForceFlagNameConstant, false, initForceFlagUsageConstant)

	cobraCommand.AddCommand(runCommand, pipelinesCommand, versionCommand, initCommand)
}

func (application *Application) printPipelines(command *cobra.Command) error {
	pipelines, buildError := pipeline.Build(application.configuration.PipelineConfiguration(), subsystemNames)
	if buildError != nil {
		return buildError
	}

	listing := pipelineListing{Pipelines: make([]pipelineListingEntry, 0)}
	for _, alias := range pipelines.Aliases() {
		tasks, _ := pipelines.Tasks(alias)
		entry := pipelineListingEntry{Alias: alias, Tasks: make([]taskListingEntry, 0, len(tasks))}
		for _, task := range tasks {
			entry.Tasks = append(entry.Tasks, taskListingEntry{
				Name:    task.Name(),
				Sources: task.Sources,
				Output:  task.Output,
				Options: task.Options,
			})
		}
		listing.Pipelines = append(listing.Pipelines, entry)
	}

	encoder := yaml.NewEncoder(utils.NewFlushingWriter(command.OutOrStdout()))
	encoder.SetIndent(yamlIndentConstant)
	if encodeError := encoder.Encode(listing); encodeError != nil {
		return encodeError
	}
	return encoder.Close()
}

func (application *Application) writeDefaultConfiguration(command *cobra.Command, forced bool) error {
	configurationContent, _ := EmbeddedDefaultConfiguration()
	if len(configurationContent) == 0 {
		return errors.New(configurationInitializationContentMissingErrorConstant)
	}

	workingDirectory, workingDirectoryError := application.resolveWorkingDirectory(flagutils.ResolveExecutionFlags(command))
	if workingDirectoryError != nil {
		return workingDirectoryError
	}
	configurationPath := filepath.Join(workingDirectory, configurationFileNameConstant)

	fileInfo, statError := os.Stat(configurationPath)
	switch {
	case statError == nil:
		if fileInfo.IsDir() {
			return fmt.Errorf(configurationInitializationDirectoryTemplateConstant, configurationPath)
		}
		if !forced {
			return fmt.Errorf(configurationInitializationExistingTemplateConstant, configurationPath)
		}
	case errors.Is(statError, os.ErrNotExist):
	default:
		return fmt.Errorf(configurationInitializationWriteErrorTemplateConstant, configurationPath, statError)
	}

	if writeError := os.WriteFile(configurationPath, configurationContent, configurationFilePermissionConstant); writeError != nil {
		return fmt.Errorf(configurationInitializationWriteErrorTemplateConstant, configurationPath, writeError)
	}

	application.logger.Info(configurationInitializationSuccessMessageConstant, zap.String(configurationFileFieldConstant, configurationPath))
	fmt.Fprintln(command.OutOrStdout(), strings.TrimSpace(configurationPath))
	return nil
}
