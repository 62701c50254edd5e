// Package bundle concatenates and minifies task sources into a single output file.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"
	"go.uber.org/zap"

	"github.com/tyemirov/taskpipe/internal/banner"
	"github.com/tyemirov/taskpipe/internal/fileset"
	"github.com/tyemirov/taskpipe/pkg/taskrunner"
)

const (
	// SubsystemName is the name the bundle subsystem registers under.
	SubsystemName = "bundle"

	// MinifyOptionName toggles minification (default true).
	MinifyOptionName = "minify"
	// BannerOptionName toggles the package banner (default true).
	BannerOptionName = "banner"
	// SeparatorOptionName overrides the text placed between concatenated sources.
	SeparatorOptionName = "separator"

	javaScriptMediaTypeConstant        = "application/javascript"
	styleSheetMediaTypeConstant        = "text/css"
	styleSheetExtensionConstant        = ".css"
	javaScriptSeparatorConstant        = ";\n"
	styleSheetSeparatorConstant        = "\n"
	outputDirectoryPermissionsConstant = 0o755
	outputFilePermissionsConstant      = 0o644
	packageNameMissingMessageConstant  = "bundle subsystem requires a package name"
	outputMissingErrorTemplateConstant = "task %s does not declare an output path"
	sourceReadErrorTemplateConstant    = "unable to read source %s: %w"
	minifyErrorTemplateConstant        = "unable to minify %s: %w"
	outputWriteErrorTemplateConstant   = "unable to write bundle %s: %w"
	bundleWrittenMessageConstant       = "bundle written"
	taskLogFieldConstant               = "task"
	outputLogFieldConstant             = "output"
	sourceCountLogFieldConstant        = "source_count"
	bytesLogFieldConstant              = "bytes"
)

// ErrPackageNameMissing indicates the bundle subsystem was built without a package name for the banner.
var ErrPackageNameMissing = errors.New(packageNameMissingMessageConstant)

// Subsystem produces minified bundles.
type Subsystem struct {
	packageName      string
	workingDirectory string
	minifier         *minify.M
	logger           *zap.Logger
}

// NewSubsystem constructs the bundle subsystem for the named package.
func NewSubsystem(packageName string, workingDirectory string, logger *zap.Logger) (*Subsystem, error) {
	if len(strings.TrimSpace(packageName)) == 0 {
		return nil, ErrPackageNameMissing
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	minifier := minify.New()
	minifier.AddFunc(javaScriptMediaTypeConstant, js.Minify)
	minifier.AddFunc(styleSheetMediaTypeConstant, css.Minify)
	return &Subsystem{
		packageName:      packageName,
		workingDirectory: workingDirectory,
		minifier:         minifier,
		logger:           logger,
	}, nil
}

// Invoke writes the bundle declared by the task.
func (subsystem *Subsystem) Invoke(executionContext context.Context, task taskrunner.Task) error {
	outputPath := strings.TrimSpace(task.Output)
	if len(outputPath) == 0 {
		return fmt.Errorf(outputMissingErrorTemplateConstant, task.Name())
	}

	sources, expandError := fileset.ExpandRequired(subsystem.workingDirectory, task.Sources)
	if expandError != nil {
		return expandError
	}

	mediaType, separator := mediaTypeFor(outputPath)
	if configuredSeparator, exists := task.Option(SeparatorOptionName); exists {
		if separatorText, isString := configuredSeparator.(string); isString {
			separator = separatorText
		}
	}

	var concatenated strings.Builder
	for sourceIndex, source := range sources {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}
		contents, readError := os.ReadFile(fileset.Resolve(subsystem.workingDirectory, source))
		if readError != nil {
			return fmt.Errorf(sourceReadErrorTemplateConstant, source, readError)
		}
		if sourceIndex > 0 {
			concatenated.WriteString(separator)
		}
		concatenated.Write(contents)
	}

	output := []byte(concatenated.String())
	if task.BoolOption(MinifyOptionName, true) {
		minified, minifyError := subsystem.minifier.Bytes(mediaType, output)
		if minifyError != nil {
			return fmt.Errorf(minifyErrorTemplateConstant, task.Name(), minifyError)
		}
		output = minified
	}
	if task.BoolOption(BannerOptionName, true) {
		output = banner.Prepend(subsystem.packageName, output)
	}

	resolvedOutputPath := fileset.Resolve(subsystem.workingDirectory, outputPath)
	if writeError := writeOutput(resolvedOutputPath, output); writeError != nil {
		return fmt.Errorf(outputWriteErrorTemplateConstant, outputPath, writeError)
	}

	subsystem.logger.Debug(
		bundleWrittenMessageConstant,
		zap.String(taskLogFieldConstant, task.Name()),
		zap.String(outputLogFieldConstant, outputPath),
		zap.Int(sourceCountLogFieldConstant, len(sources)),
		zap.Int(bytesLogFieldConstant, len(output)),
	)
	return nil
}

func mediaTypeFor(outputPath string) (string, string) {
	if strings.EqualFold(filepath.Ext(outputPath), styleSheetExtensionConstant) {
		return styleSheetMediaTypeConstant, styleSheetSeparatorConstant
	}
	return javaScriptMediaTypeConstant, javaScriptSeparatorConstant
}

func writeOutput(outputPath string, contents []byte) error {
	if directoryError := os.MkdirAll(filepath.Dir(outputPath), outputDirectoryPermissionsConstant); directoryError != nil {
		return directoryError
	}
	return os.WriteFile(outputPath, contents, outputFilePermissionsConstant)
}
