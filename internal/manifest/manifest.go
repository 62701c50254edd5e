// Package manifest reads the package manifest that names the project being built.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/mod/semver"
)

const (
	// DefaultFileName is the manifest consulted when none is configured.
	DefaultFileName = "package.json"

	manifestConfigurationTypeConstant      = "json"
	nameKeyConstant                        = "name"
	versionKeyConstant                     = "version"
	descriptionKeyConstant                 = "description"
	semanticVersionPrefixConstant          = "v"
	manifestPathMissingMessageConstant     = "manifest path not provided"
	manifestReadErrorTemplateConstant      = "unable to read manifest %s: %w"
	manifestMissingErrorTemplateConstant   = "manifest %s does not exist"
	manifestNameMissingTemplateConstant    = "manifest %s does not declare a name"
	manifestVersionInvalidTemplateConstant = "manifest %s declares invalid version %q"
)

// ErrManifestPathMissing indicates no manifest path was provided.
var ErrManifestPathMissing = errors.New(manifestPathMissingMessageConstant)

// Manifest captures the fields of the package manifest used by the build.
type Manifest struct {
	Name        string
	Version     string
	Description string
}

// Load reads and validates the manifest at path.
func Load(path string) (Manifest, error) {
	trimmedPath := strings.TrimSpace(path)
	if len(trimmedPath) == 0 {
		return Manifest{}, ErrManifestPathMissing
	}
	if _, statError := os.Stat(trimmedPath); statError != nil {
		if errors.Is(statError, os.ErrNotExist) {
			return Manifest{}, fmt.Errorf(manifestMissingErrorTemplateConstant, trimmedPath)
		}
		return Manifest{}, fmt.Errorf(manifestReadErrorTemplateConstant, trimmedPath, statError)
	}

	manifestViper := viper.New()
	manifestViper.SetConfigFile(trimmedPath)
	manifestViper.SetConfigType(manifestConfigurationTypeConstant)
	if readError := manifestViper.ReadInConfig(); readError != nil {
		return Manifest{}, fmt.Errorf(manifestReadErrorTemplateConstant, trimmedPath, readError)
	}

	loaded := Manifest{
		Name:        strings.TrimSpace(manifestViper.GetString(nameKeyConstant)),
		Version:     strings.TrimSpace(manifestViper.GetString(versionKeyConstant)),
		Description: strings.TrimSpace(manifestViper.GetString(descriptionKeyConstant)),
	}
	if len(loaded.Name) == 0 {
		return Manifest{}, fmt.Errorf(manifestNameMissingTemplateConstant, trimmedPath)
	}
	if len(loaded.Version) > 0 && !ValidVersion(loaded.Version) {
		return Manifest{}, fmt.Errorf(manifestVersionInvalidTemplateConstant, trimmedPath, loaded.Version)
	}
	return loaded, nil
}

// ValidVersion reports whether version is a semantic version, with or without a leading "v".
func ValidVersion(version string) bool {
	trimmed := strings.TrimSpace(version)
	if !strings.HasPrefix(trimmed, semanticVersionPrefixConstant) {
		trimmed = semanticVersionPrefixConstant + trimmed
	}
	return semver.IsValid(trimmed)
}
