// Package flags provides helpers for binding and reading the standardized taskpipe flags on Cobra commands.
package flags

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tyemirov/taskpipe/internal/utils"
)

const (
	// DryRunFlagName exposes the shared dry-run flag name.
	DryRunFlagName = "dry-run"
	// DryRunFlagUsage describes the shared dry-run flag purpose.
	DryRunFlagUsage = "Resolve the pipeline and print its tasks without invoking any subsystem"
	// WorkingDirectoryFlagName exposes the shared working directory flag name.
	WorkingDirectoryFlagName = "workdir"
	// WorkingDirectoryFlagShorthand provides the shorthand for the working directory flag.
	WorkingDirectoryFlagShorthand = "C"
	// WorkingDirectoryFlagUsage describes the shared working directory flag purpose.
	WorkingDirectoryFlagUsage = "Directory that file patterns and output paths are resolved against"

	boolFlagParseErrorTemplate = "unable to parse flag %q: %w"
)

// ErrFlagNotDefined indicates that the requested flag is not present on the command.
var ErrFlagNotDefined = errors.New("flag not defined")

// BindExecutionFlags attaches the dry-run and working directory flags to the command using persistent scope.
func BindExecutionFlags(command *cobra.Command) {
	if command == nil {
		return
	}
	persistentFlagSet := command.PersistentFlags()
	if persistentFlagSet.Lookup(DryRunFlagName) == nil {
		persistentFlagSet.Bool(DryRunFlagName, false, DryRunFlagUsage)
	}
	if persistentFlagSet.Lookup(WorkingDirectoryFlagName) == nil {
		persistentFlagSet.StringP(WorkingDirectoryFlagName, WorkingDirectoryFlagShorthand, "", WorkingDirectoryFlagUsage)
	}
}

// BoolFlag reads a boolean flag and reports whether the user changed it.
func BoolFlag(command *cobra.Command, name string) (bool, bool, error) {
	flagSet, flag := locateFlag(command, name)
	if flag == nil {
		return false, false, ErrFlagNotDefined
	}
	value, err := flagSet.GetBool(name)
	if err == nil {
		return value, flag.Changed, nil
	}

	if flag.Value == nil {
		return false, false, err
	}

	parsedValue, parseError := strconv.ParseBool(strings.TrimSpace(flag.Value.String()))
	if parseError != nil {
		return false, false, fmt.Errorf(boolFlagParseErrorTemplate, name, parseError)
	}

	return parsedValue, flag.Changed, nil
}

// StringFlag reads a string flag and reports whether the user changed it.
func StringFlag(command *cobra.Command, name string) (string, bool, error) {
	flagSet, flag := locateFlag(command, name)
	if flag == nil {
		return "", false, ErrFlagNotDefined
	}
	value, err := flagSet.GetString(name)
	if err != nil {
		return "", false, err
	}
	return value, flag.Changed, nil
}

func locateFlag(command *cobra.Command, name string) (*pflag.FlagSet, *pflag.Flag) {
	if command == nil {
		return nil, nil
	}

	candidateSets := []*pflag.FlagSet{
		command.Flags(),
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	if root := command.Root(); root != nil {
		candidateSets = append(candidateSets, root.PersistentFlags())
	}

	for _, set := range candidateSets {
		if set == nil {
			continue
		}
		if flag := set.Lookup(name); flag != nil {
			return set, flag
		}
	}

	return nil, nil
}

// CollectExecutionFlags inspects the command's flags to produce execution flag values.
func CollectExecutionFlags(command *cobra.Command) utils.ExecutionFlags {
	executionFlags := utils.ExecutionFlags{}
	if command == nil {
		return executionFlags
	}

	if dryRunValue, dryRunChanged, dryRunError := BoolFlag(command, DryRunFlagName); dryRunError == nil {
		executionFlags.DryRun = dryRunValue
		executionFlags.DryRunSet = dryRunChanged
	}

	if workingDirectoryValue, workingDirectoryChanged, workingDirectoryError := StringFlag(command, WorkingDirectoryFlagName); workingDirectoryError == nil {
		trimmedWorkingDirectory := strings.TrimSpace(workingDirectoryValue)
		executionFlags.WorkingDirectory = trimmedWorkingDirectory
		executionFlags.WorkingDirectorySet = workingDirectoryChanged && len(trimmedWorkingDirectory) > 0
	}

	return executionFlags
}

// ResolveExecutionFlags returns execution flags from the command context when present, falling back to flag values.
func ResolveExecutionFlags(command *cobra.Command) utils.ExecutionFlags {
	contextAccessor := utils.NewCommandContextAccessor()
	if command != nil {
		if executionFlags, available := contextAccessor.ExecutionFlags(command.Context()); available {
			return executionFlags
		}
	}
	return CollectExecutionFlags(command)
}
