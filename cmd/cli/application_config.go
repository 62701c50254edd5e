package cli

import (
	_ "embed"

	"github.com/tyemirov/taskpipe/internal/pipeline"
)

const embeddedConfigurationTypeConstant = "yaml"

//go:embed default_configuration.yaml
var embeddedDefaultConfiguration []byte

// EmbeddedDefaultConfiguration returns the configuration shipped with the binary and its format.
func EmbeddedDefaultConfiguration() ([]byte, string) {
	return append([]byte(nil), embeddedDefaultConfiguration...), embeddedConfigurationTypeConstant
}

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common     ApplicationCommonConfiguration             `mapstructure:"common"`
	Package    string                                     `mapstructure:"package"`
	Subsystems map[string]pipeline.SubsystemConfiguration `mapstructure:"subsystems"`
	Pipelines  map[string][]string                        `mapstructure:"pipelines"`
}

// ApplicationCommonConfiguration stores logging and execution defaults shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	DryRun    bool   `mapstructure:"dry_run"`
}

// PipelineConfiguration extracts the build document from the application configuration.
func (configuration ApplicationConfiguration) PipelineConfiguration() pipeline.Configuration {
	return pipeline.Configuration{
		Package:    configuration.Package,
		Subsystems: configuration.Subsystems,
		Pipelines:  configuration.Pipelines,
	}
}
