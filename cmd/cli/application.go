package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/tyemirov/taskpipe/internal/bundle"
	"github.com/tyemirov/taskpipe/internal/execshell"
	"github.com/tyemirov/taskpipe/internal/fileset"
	"github.com/tyemirov/taskpipe/internal/lint"
	"github.com/tyemirov/taskpipe/internal/manifest"
	"github.com/tyemirov/taskpipe/internal/pipeline"
	"github.com/tyemirov/taskpipe/internal/style"
	"github.com/tyemirov/taskpipe/internal/utils"
	flagutils "github.com/tyemirov/taskpipe/internal/utils/flags"
	"github.com/tyemirov/taskpipe/internal/version"
	"github.com/tyemirov/taskpipe/pkg/taskrunner"
)

const (
	applicationNameConstant                            = "taskpipe"
	applicationUseConstant                             = applicationNameConstant + " [alias]"
	applicationShortDescriptionConstant                = "Run front-end build pipelines"
	applicationLongDescriptionConstant                 = "taskpipe runs named pipelines of lint, bundle, and style tasks declared in a configuration file. Without an alias the \"default\" pipeline runs."
	configFileFlagNameConstant                         = "config"
	configFileFlagUsageConstant                        = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                           = "log-level"
	logLevelFlagUsageConstant                          = "Override the configured log level."
	logFormatFlagNameConstant                          = "log-format"
	logFormatFlagUsageConstant                         = "Override the configured log format (structured or console)."
	commonConfigurationKeyConstant                     = "common"
	commonLogLevelConfigKeyConstant                    = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant                   = commonConfigurationKeyConstant + ".log_format"
	commonDryRunConfigKeyConstant                      = commonConfigurationKeyConstant + ".dry_run"
	packageConfigKeyConstant                           = "package"
	subsystemsConfigKeyConstant                        = "subsystems"
	pipelinesConfigKeyConstant                         = "pipelines"
	environmentPrefixConstant                          = "TASKPIPE"
	configurationNameConstant                          = "taskpipe"
	configurationTypeConstant                          = "yaml"
	configurationFileNameConstant                      = configurationNameConstant + "." + configurationTypeConstant
	configurationInitializedMessageConstant            = "configuration initialized"
	configurationLogLevelFieldConstant                 = "log_level"
	configurationLogFormatFieldConstant                = "log_format"
	configurationFileFieldConstant                     = "config_file"
	xdgConfigHomeEnvironmentVariableConstant           = "XDG_CONFIG_HOME"
	loggerCreationErrorTemplateConstant                = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant                    = "unable to flush logger: %w"
	workingDirectoryErrorTemplateConstant              = "unable to determine working directory: %w"
	configurationInitializedConsoleTemplateConstant    = "%s | log level=%s | log format=%s | config file=%s"
	defaultConfigurationSearchPathConstant             = "."
	userConfigurationDirectoryNameConstant             = ".taskpipe"
	configurationSearchPathEnvironmentVariableConstant = "TASKPIPE_CONFIG_SEARCH_PATH"
	pipelineRequestedMessageConstant                   = "pipeline requested"
	aliasLogFieldConstant                              = "alias"
	workingDirectoryLogFieldConstant                   = "working_directory"
	dryRunLogFieldConstant                             = "dry_run"
	dryRunHeaderTemplateConstant                       = "Pipeline %s (%d tasks)\n"
	dryRunTaskTemplateConstant                         = "  %d. %s [%s]"
	dryRunOutputSuffixTemplateConstant                 = " -> %s"
)

// subsystemNames lists every subsystem the CLI registers on its runner.
var subsystemNames = []string{lint.SubsystemName, bundle.SubsystemName, style.SubsystemName}

type loggerOutputsFactory interface {
	CreateLoggerOutputs(utils.LogLevel, utils.LogFormat) (utils.LoggerOutputs, error)
}

// ApplicationOption customizes an Application.
type ApplicationOption func(application *Application)

// WithCommandRunner replaces the process runner used for external tools.
func WithCommandRunner(commandRunner execshell.CommandRunner) ApplicationOption {
	return func(application *Application) {
		if commandRunner != nil {
			application.commandRunner = commandRunner
		}
	}
}

// WithVersionResolver replaces the version lookup used by the version command.
func WithVersionResolver(resolver func(context.Context) string) ApplicationOption {
	return func(application *Application) {
		if resolver != nil {
			application.versionResolver = resolver
		}
	}
}

// WithConfigurationSearchPaths replaces the directories searched for a configuration file.
func WithConfigurationSearchPaths(searchPaths []string) ApplicationOption {
	return func(application *Application) {
		application.configurationSearchPaths = append([]string(nil), searchPaths...)
	}
}

// Application wires configuration, logging, and the pipeline runner behind the Cobra command tree.
type Application struct {
	rootCommand              *cobra.Command
	configurationLoader      *utils.ConfigurationLoader
	configurationSearchPaths []string
	loggerFactory            loggerOutputsFactory
	logger                   *zap.Logger
	consoleLogger            *zap.Logger
	configuration            ApplicationConfiguration
	configurationMetadata    utils.LoadedConfiguration
	configurationFilePath    string
	logLevelFlagValue        string
	logFormatFlagValue       string
	commandContextAccessor   utils.CommandContextAccessor
	commandRunner            execshell.CommandRunner
	versionResolver          func(context.Context) string
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication(options ...ApplicationOption) *Application {
	application := &Application{
		loggerFactory:          utils.NewLoggerFactory(),
		logger:                 zap.NewNop(),
		consoleLogger:          zap.NewNop(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
		commandRunner:          execshell.OSCommandRunner{},
	}
	application.versionResolver = application.resolveVersion
	application.configurationSearchPaths = application.resolveConfigurationSearchPaths()
	for _, option := range options {
		option(application)
	}

	application.configurationLoader = utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		application.configurationSearchPaths,
	)
	embeddedConfigurationData, embeddedConfigurationType := EmbeddedDefaultConfiguration()
	application.configurationLoader.SetEmbeddedConfiguration(embeddedConfigurationData, embeddedConfigurationType)
	application.configurationLoader.SetReplacedSections(subsystemsConfigKeyConstant, pipelinesConfigKeyConstant)

	cobraCommand := &cobra.Command{
		Use:           applicationUseConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runPipeline(command, arguments)
		},
	}

	cobraCommand.SetContext(context.Background())
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)
	flagutils.BindExecutionFlags(cobraCommand)

	application.registerCommands(cobraCommand)
	application.rootCommand = cobraCommand

	return application
}

// Execute runs the command tree with the process arguments and flushes the loggers.
// An interrupt cancels the running pipeline before its next task.
func (application *Application) Execute() error {
	executionContext, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return application.ExecuteWithArguments(executionContext, os.Args[1:])
}

// ExecuteWithArguments runs the command tree with explicit arguments.
func (application *Application) ExecuteWithArguments(executionContext context.Context, arguments []string) error {
	application.rootCommand.SetArgs(arguments)

	executionError := application.rootCommand.ExecuteContext(executionContext)
	if syncError := application.flushLogger(); syncError != nil && executionError == nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// SetOutput redirects command output and error streams.
func (application *Application) SetOutput(standardOutput io.Writer, standardError io.Writer) {
	application.rootCommand.SetOut(standardOutput)
	application.rootCommand.SetErr(standardError)
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	return NewApplication().Execute()
}

func (application *Application) resolveConfigurationSearchPaths() []string {
	overrideValue := strings.TrimSpace(os.Getenv(configurationSearchPathEnvironmentVariableConstant))
	if len(overrideValue) == 0 {
		return append([]string{defaultConfigurationSearchPathConstant}, application.resolveUserConfigurationDirectoryPaths()...)
	}

	overridePaths := strings.FieldsFunc(overrideValue, func(candidate rune) bool {
		return candidate == os.PathListSeparator
	})

	cleanedPaths := make([]string, 0, len(overridePaths))
	for _, pathCandidate := range overridePaths {
		trimmedCandidate := strings.TrimSpace(pathCandidate)
		if len(trimmedCandidate) == 0 {
			continue
		}
		cleanedPaths = append(cleanedPaths, trimmedCandidate)
	}

	if len(cleanedPaths) == 0 {
		return []string{defaultConfigurationSearchPathConstant}
	}

	return cleanedPaths
}

func (application *Application) resolveUserConfigurationDirectoryPaths() []string {
	userConfigurationDirectoryPaths := make([]string, 0, 3)

	appendConfigurationDirectory := func(baseDirectoryPath string) {
		trimmedBaseDirectoryPath := strings.TrimSpace(baseDirectoryPath)
		if len(trimmedBaseDirectoryPath) == 0 {
			return
		}

		candidateDirectoryPath := filepath.Join(trimmedBaseDirectoryPath, userConfigurationDirectoryNameConstant)
		for _, existingDirectoryPath := range userConfigurationDirectoryPaths {
			if existingDirectoryPath == candidateDirectoryPath {
				return
			}
		}

		userConfigurationDirectoryPaths = append(userConfigurationDirectoryPaths, candidateDirectoryPath)
	}

	appendConfigurationDirectory(os.Getenv(xdgConfigHomeEnvironmentVariableConstant))

	if userConfigurationBaseDirectoryPath, userConfigurationDirectoryError := os.UserConfigDir(); userConfigurationDirectoryError == nil {
		appendConfigurationDirectory(userConfigurationBaseDirectoryPath)
	}

	if userHomeDirectoryPath, userHomeDirectoryError := os.UserHomeDir(); userHomeDirectoryError == nil {
		appendConfigurationDirectory(userHomeDirectoryPath)
	}

	return userConfigurationDirectoryPaths
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:  string(utils.LogLevelError),
		commonLogFormatConfigKeyConstant: string(utils.LogFormatStructured),
		commonDryRunConfigKeyConstant:    false,
		packageConfigKeyConstant:         manifest.DefaultFileName,
	}

	application.configuration = ApplicationConfiguration{}
	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return pipeline.ConfigLoadError{Path: application.configurationFilePath, Cause: loadError}
	}
	application.configurationMetadata = loadedConfiguration

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}
	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	loggerOutputs, loggerCreationError := application.loggerFactory.CreateLoggerOutputs(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = loggerOutputs.DiagnosticLogger
	if application.logger == nil {
		application.logger = zap.NewNop()
	}
	application.consoleLogger = loggerOutputs.ConsoleLogger
	if application.consoleLogger == nil {
		application.consoleLogger = zap.NewNop()
	}

	application.logConfigurationInitialization()

	if command != nil {
		updatedContext := application.commandContextAccessor.WithConfigurationFilePath(
			command.Context(),
			application.configurationMetadata.ConfigFileUsed,
		)
		updatedContext = application.commandContextAccessor.WithExecutionFlags(updatedContext, flagutils.CollectExecutionFlags(command))
		updatedContext = application.commandContextAccessor.WithLogLevel(updatedContext, application.configuration.Common.LogLevel)

		command.SetContext(updatedContext)
	}

	return nil
}

// ConfigFileUsed returns the configuration file path used during initialization.
func (application *Application) ConfigFileUsed() string {
	return application.configurationMetadata.ConfigFileUsed
}

func (application *Application) humanReadableLoggingEnabled() bool {
	logFormatValue := strings.TrimSpace(application.configuration.Common.LogFormat)
	return strings.EqualFold(logFormatValue, string(utils.LogFormatConsole))
}

func (application *Application) logConfigurationInitialization() {
	if !strings.EqualFold(strings.TrimSpace(application.configuration.Common.LogLevel), string(utils.LogLevelDebug)) {
		return
	}

	if application.humanReadableLoggingEnabled() {
		bannerMessage := fmt.Sprintf(
			configurationInitializedConsoleTemplateConstant,
			configurationInitializedMessageConstant,
			application.configuration.Common.LogLevel,
			application.configuration.Common.LogFormat,
			application.configurationMetadata.ConfigFileUsed,
		)
		application.consoleLogger.Debug(bannerMessage)
		return
	}

	application.logger.Debug(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
	)
}

func (application *Application) resolveWorkingDirectory(executionFlags utils.ExecutionFlags) (string, error) {
	if executionFlags.WorkingDirectorySet {
		absolutePath, absoluteError := filepath.Abs(executionFlags.WorkingDirectory)
		if absoluteError != nil {
			return "", fmt.Errorf(workingDirectoryErrorTemplateConstant, absoluteError)
		}
		return absolutePath, nil
	}
	currentDirectory, workingDirectoryError := os.Getwd()
	if workingDirectoryError != nil {
		return "", fmt.Errorf(workingDirectoryErrorTemplateConstant, workingDirectoryError)
	}
	return currentDirectory, nil
}

func (application *Application) shellExecutor() (*execshell.ShellExecutor, error) {
	return execshell.NewShellExecutor(application.logger, application.commandRunner, application.humanReadableLoggingEnabled())
}

// assembleRunner validates the configuration, reads the package manifest, and registers every subsystem.
func (application *Application) assembleRunner(workingDirectory string) (*taskrunner.Runner, error) {
	pipelines, buildError := pipeline.Build(application.configuration.PipelineConfiguration(), subsystemNames)
	if buildError != nil {
		return nil, buildError
	}

	manifestPath := strings.TrimSpace(application.configuration.Package)
	if len(manifestPath) == 0 {
		manifestPath = manifest.DefaultFileName
	}
	manifestPath = fileset.Resolve(workingDirectory, manifestPath)
	packageManifest, manifestError := manifest.Load(manifestPath)
	if manifestError != nil {
		return nil, pipeline.ConfigLoadError{Path: manifestPath, Cause: manifestError}
	}

	shellExecutor, executorError := application.shellExecutor()
	if executorError != nil {
		return nil, executorError
	}
	lintSubsystem, lintError := lint.NewSubsystem(shellExecutor, workingDirectory, application.logger)
	if lintError != nil {
		return nil, lintError
	}
	bundleSubsystem, bundleError := bundle.NewSubsystem(packageManifest.Name, workingDirectory, application.logger)
	if bundleError != nil {
		return nil, bundleError
	}
	styleSubsystem, styleError := style.NewSubsystem(packageManifest.Name, shellExecutor, workingDirectory, application.logger)
	if styleError != nil {
		return nil, styleError
	}

	runner := taskrunner.NewRunner(application.logger)
	registrations := map[string]taskrunner.InvocationFunc{
		lint.SubsystemName:   lintSubsystem.Invoke,
		bundle.SubsystemName: bundleSubsystem.Invoke,
		style.SubsystemName:  styleSubsystem.Invoke,
	}
	for _, subsystemName := range subsystemNames {
		if registrationError := runner.Register(subsystemName, registrations[subsystemName]); registrationError != nil {
			return nil, registrationError
		}
	}

	if applyError := pipelines.Apply(runner); applyError != nil {
		return nil, applyError
	}
	return runner, nil
}

func (application *Application) runPipeline(command *cobra.Command, arguments []string) error {
	alias := pipeline.DefaultAlias
	if len(arguments) > 0 {
		alias = arguments[0]
	}
	alias = pipeline.NormalizeName(alias)

	executionFlags := flagutils.ResolveExecutionFlags(command)
	dryRun := application.configuration.Common.DryRun
	if executionFlags.DryRunSet {
		dryRun = executionFlags.DryRun
	}

	workingDirectory, workingDirectoryError := application.resolveWorkingDirectory(executionFlags)
	if workingDirectoryError != nil {
		return workingDirectoryError
	}

	configurationFilePath, _ := application.commandContextAccessor.ConfigurationFilePath(command.Context())
	logLevel, _ := application.commandContextAccessor.LogLevel(command.Context())
	application.logger.Debug(
		pipelineRequestedMessageConstant,
		zap.String(aliasLogFieldConstant, alias),
		zap.String(workingDirectoryLogFieldConstant, workingDirectory),
		zap.Bool(dryRunLogFieldConstant, dryRun),
		zap.String(configurationFileFieldConstant, configurationFilePath),
		zap.String(configurationLogLevelFieldConstant, logLevel),
	)

	runner, assemblyError := application.assembleRunner(workingDirectory)
	if assemblyError != nil {
		return assemblyError
	}

	if dryRun {
		return application.printPlan(command, runner, alias)
	}

	summary, runError := runner.Run(command.Context(), alias)
	if summary.State != taskrunner.RunStateNotStarted {
		if summaryLine := taskrunner.RenderSummaryLine(summary); len(summaryLine) > 0 {
			fmt.Fprintln(command.ErrOrStderr(), summaryLine)
		}
	}
	return runError
}

func (application *Application) printPlan(command *cobra.Command, runner *taskrunner.Runner, alias string) error {
	tasks, defined := runner.Pipeline(alias)
	if !defined {
		return taskrunner.UnknownAliasError{Alias: alias}
	}

	output := utils.NewFlushingWriter(command.OutOrStdout())
	fmt.Fprintf(output, dryRunHeaderTemplateConstant, alias, len(tasks))
	for taskIndex, task := range tasks {
		line := fmt.Sprintf(dryRunTaskTemplateConstant, taskIndex+1, task.Name(), strings.Join(task.Sources, ", "))
		if len(task.Output) > 0 {
			line += fmt.Sprintf(dryRunOutputSuffixTemplateConstant, task.Output)
		}
		fmt.Fprintln(output, line)
	}
	return nil
}

func (application *Application) resolveVersion(executionContext context.Context) string {
	dependencies := version.Dependencies{}
	if shellExecutor, executorError := application.shellExecutor(); executorError == nil {
		dependencies.CommandExecutor = shellExecutor
	}
	return version.Detect(executionContext, dependencies)
}

func (application *Application) flushLogger() error {
	if syncError := application.syncLoggerInstance(application.logger); syncError != nil {
		return syncError
	}
	return application.syncLoggerInstance(application.consoleLogger)
}

func (application *Application) syncLoggerInstance(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}

	syncError := logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	case errors.Is(syncError, syscall.EBADF):
		return nil
	case errors.Is(syncError, syscall.ENOTTY):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}
	if rootCommand := command.Root(); rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}
		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}
