package utils

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	embeddedConfigurationReadErrorTemplateConstant = "unable to read embedded configuration: %w"
	configurationFileReadErrorTemplateConstant     = "unable to read configuration file %s: %w"
	configurationFileMissingErrorTemplateConstant  = "configuration file %s does not exist"
	configurationDecodeErrorTemplateConstant       = "unable to decode configuration: %w"
	configurationTargetMissingMessageConstant      = "configuration target must not be nil"
	environmentKeySeparatorConstant                = "_"
	configurationKeySeparatorConstant              = "."
)

// LoadedConfiguration describes where the effective configuration came from.
type LoadedConfiguration struct {
	ConfigFileUsed string
}

// ConfigurationLoader layers defaults, embedded configuration, a configuration file, and environment variables.
type ConfigurationLoader struct {
	configurationName     string
	configurationType     string
	environmentPrefix     string
	searchPaths           []string
	embeddedConfiguration []byte
	embeddedType          string
	replacedSections      []string
}

// NewConfigurationLoader constructs a loader that searches the provided directories in order.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	return &ConfigurationLoader{
		configurationName: configurationName,
		configurationType: configurationType,
		environmentPrefix: environmentPrefix,
		searchPaths:       append([]string(nil), searchPaths...),
	}
}

// SetEmbeddedConfiguration registers configuration content applied above defaults and below files.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(configurationData []byte, configurationType string) {
	loader.embeddedConfiguration = append([]byte(nil), configurationData...)
	loader.embeddedType = configurationType
}

// SetReplacedSections names top-level sections that a configuration file replaces wholesale.
// The embedded copy of such a section is dropped when the selected file declares it; other sections deep-merge.
func (loader *ConfigurationLoader) SetReplacedSections(sections ...string) {
	loader.replacedSections = loader.replacedSections[:0]
	for _, section := range sections {
		trimmedSection := strings.ToLower(strings.TrimSpace(section))
		if len(trimmedSection) == 0 {
			continue
		}
		loader.replacedSections = append(loader.replacedSections, trimmedSection)
	}
}

// LoadConfiguration decodes the layered configuration into target.
// An explicit configuration file path must exist; search paths are optional.
func (loader *ConfigurationLoader) LoadConfiguration(configurationFilePath string, defaultValues map[string]any, target any) (LoadedConfiguration, error) {
	if target == nil {
		return LoadedConfiguration{}, errors.New(configurationTargetMissingMessageConstant)
	}

	configurationViper := viper.New()
	for key, value := range defaultValues {
		configurationViper.SetDefault(key, value)
	}

	metadata := LoadedConfiguration{}
	selectedFilePath, selectionError := loader.selectConfigurationFile(configurationFilePath)
	if selectionError != nil {
		return LoadedConfiguration{}, selectionError
	}

	var fileSettings map[string]any
	if len(selectedFilePath) > 0 {
		fileViper := viper.New()
		fileViper.SetConfigFile(selectedFilePath)
		if readError := fileViper.ReadInConfig(); readError != nil {
			return LoadedConfiguration{}, fmt.Errorf(configurationFileReadErrorTemplateConstant, selectedFilePath, readError)
		}
		fileSettings = fileViper.AllSettings()
		metadata.ConfigFileUsed = selectedFilePath
	}

	if len(loader.embeddedConfiguration) > 0 {
		embeddedSettings, embeddedError := loader.readEmbeddedSettings()
		if embeddedError != nil {
			return LoadedConfiguration{}, embeddedError
		}
		for _, section := range loader.replacedSections {
			if _, declared := fileSettings[section]; declared {
				delete(embeddedSettings, section)
			}
		}
		if mergeError := configurationViper.MergeConfigMap(embeddedSettings); mergeError != nil {
			return LoadedConfiguration{}, fmt.Errorf(embeddedConfigurationReadErrorTemplateConstant, mergeError)
		}
	}

	if fileSettings != nil {
		if mergeError := configurationViper.MergeConfigMap(fileSettings); mergeError != nil {
			return LoadedConfiguration{}, fmt.Errorf(configurationFileReadErrorTemplateConstant, selectedFilePath, mergeError)
		}
	}

	if len(loader.environmentPrefix) > 0 {
		configurationViper.SetEnvPrefix(loader.environmentPrefix)
	}
	configurationViper.SetEnvKeyReplacer(strings.NewReplacer(configurationKeySeparatorConstant, environmentKeySeparatorConstant))
	configurationViper.AutomaticEnv()

	if decodeError := configurationViper.Unmarshal(target); decodeError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationDecodeErrorTemplateConstant, decodeError)
	}

	return metadata, nil
}

func (loader *ConfigurationLoader) readEmbeddedSettings() (map[string]any, error) {
	embeddedType := loader.embeddedType
	if len(embeddedType) == 0 {
		embeddedType = loader.configurationType
	}
	embeddedViper := viper.New()
	embeddedViper.SetConfigType(embeddedType)
	if readError := embeddedViper.ReadConfig(bytes.NewReader(loader.embeddedConfiguration)); readError != nil {
		return nil, fmt.Errorf(embeddedConfigurationReadErrorTemplateConstant, readError)
	}
	return embeddedViper.AllSettings(), nil
}

func (loader *ConfigurationLoader) selectConfigurationFile(configurationFilePath string) (string, error) {
	trimmedPath := strings.TrimSpace(configurationFilePath)
	if len(trimmedPath) > 0 {
		if _, statError := os.Stat(trimmedPath); statError != nil {
			if errors.Is(statError, os.ErrNotExist) {
				return "", fmt.Errorf(configurationFileMissingErrorTemplateConstant, trimmedPath)
			}
			return "", fmt.Errorf(configurationFileReadErrorTemplateConstant, trimmedPath, statError)
		}
		return trimmedPath, nil
	}

	configurationFileName := loader.configurationName + "." + loader.configurationType
	for _, searchPath := range loader.searchPaths {
		trimmedSearchPath := strings.TrimSpace(searchPath)
		if len(trimmedSearchPath) == 0 {
			continue
		}
		candidatePath := filepath.Join(trimmedSearchPath, configurationFileName)
		fileInfo, statError := os.Stat(candidatePath)
		if statError != nil || fileInfo.IsDir() {
			continue
		}
		return candidatePath, nil
	}

	return "", nil
}
