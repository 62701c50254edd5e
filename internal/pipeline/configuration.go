// Package pipeline turns the declarative build configuration into runner pipelines.
package pipeline

import "fmt"

const (
	// DefaultAlias is the pipeline run when no alias is requested.
	DefaultAlias = "default"

	configLoadErrorTemplateConstant    = "unable to load configuration %s: %v"
	configInvalidErrorTemplateConstant = "invalid configuration: %v"
)

// TargetConfiguration describes one named target of a subsystem.
type TargetConfiguration struct {
	Sources []string       `mapstructure:"sources" yaml:"sources"`
	Output  string         `mapstructure:"output" yaml:"output,omitempty"`
	Options map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// SubsystemConfiguration holds shared options and the targets of a subsystem.
type SubsystemConfiguration struct {
	Options map[string]any                 `mapstructure:"options" yaml:"options,omitempty"`
	Targets map[string]TargetConfiguration `mapstructure:"targets" yaml:"targets"`
}

// Configuration is the build document: the package manifest path, subsystem targets, and pipeline aliases.
type Configuration struct {
	Package    string                            `mapstructure:"package" yaml:"package"`
	Subsystems map[string]SubsystemConfiguration `mapstructure:"subsystems" yaml:"subsystems"`
	Pipelines  map[string][]string               `mapstructure:"pipelines" yaml:"pipelines"`
}

// ConfigLoadError reports a configuration document that is missing or malformed.
type ConfigLoadError struct {
	Path  string
	Cause error
}

// Error implements the error interface.
func (loadError ConfigLoadError) Error() string {
	if len(loadError.Path) == 0 {
		return fmt.Sprintf(configInvalidErrorTemplateConstant, loadError.Cause)
	}
	return fmt.Sprintf(configLoadErrorTemplateConstant, loadError.Path, loadError.Cause)
}

// Unwrap exposes the underlying cause.
func (loadError ConfigLoadError) Unwrap() error {
	return loadError.Cause
}
