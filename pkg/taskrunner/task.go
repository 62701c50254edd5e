package taskrunner

import (
	"context"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

const taskNameSeparatorConstant = ":"

// Task is a single invocation of a subsystem against one configured target.
type Task struct {
	Subsystem string
	Target    string
	Sources   []string
	Output    string
	Options   map[string]any
}

// InvocationFunc performs the work of one subsystem for the provided task.
type InvocationFunc func(executionContext context.Context, task Task) error

// Name renders the task reference in subsystem:target form.
func (task Task) Name() string {
	if len(task.Target) == 0 {
		return task.Subsystem
	}
	return task.Subsystem + taskNameSeparatorConstant + task.Target
}

// Option returns the named option and whether it was configured.
func (task Task) Option(name string) (any, bool) {
	if task.Options == nil {
		return nil, false
	}
	value, exists := task.Options[name]
	return value, exists
}

// StringOption returns a trimmed string option or the fallback when absent or not a string.
func (task Task) StringOption(name string, fallback string) string {
	value, exists := task.Option(name)
	if !exists {
		return fallback
	}
	stringValue, isString := value.(string)
	if !isString {
		return fallback
	}
	trimmed := strings.TrimSpace(stringValue)
	if len(trimmed) == 0 {
		return fallback
	}
	return trimmed
}

// BoolOption returns a boolean option or the fallback when absent or not convertible.
// String values such as "false" or "0" from environment overrides are accepted.
func (task Task) BoolOption(name string, fallback bool) bool {
	value, exists := task.Option(name)
	if !exists || value == nil {
		return fallback
	}
	if boolValue, isBool := value.(bool); isBool {
		return boolValue
	}
	if stringValue, isString := value.(string); isString && len(strings.TrimSpace(stringValue)) == 0 {
		return fallback
	}
	var decoded bool
	if decodeError := mapstructure.WeakDecode(value, &decoded); decodeError != nil {
		return fallback
	}
	return decoded
}

// DecodeOptions decodes the option set into target using mapstructure tags with weak typing.
func (task Task) DecodeOptions(target any) error {
	if target == nil || len(task.Options) == 0 {
		return nil
	}
	decoder, decoderError := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           target,
		WeaklyTypedInput: true,
	})
	if decoderError != nil {
		return decoderError
	}
	return decoder.Decode(task.Options)
}

// ParseTaskReference splits a subsystem:target reference. The target is empty for bare subsystem references.
func ParseTaskReference(reference string) (string, string) {
	trimmed := strings.TrimSpace(reference)
	subsystem, target, _ := strings.Cut(trimmed, taskNameSeparatorConstant)
	return strings.TrimSpace(subsystem), strings.TrimSpace(target)
}

func cloneTask(task Task) Task {
	cloned := task
	cloned.Sources = append([]string(nil), task.Sources...)
	if task.Options != nil {
		cloned.Options = make(map[string]any, len(task.Options))
		for optionKey, optionValue := range task.Options {
			cloned.Options[optionKey] = optionValue
		}
	}
	return cloned
}

func cloneTasks(tasks []Task) []Task {
	cloned := make([]Task, 0, len(tasks))
	for taskIndex := range tasks {
		cloned = append(cloned, cloneTask(tasks[taskIndex]))
	}
	return cloned
}
