// Package fileset expands ordered glob patterns into file lists.
package fileset

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	negationPrefixConstant              = "!"
	invalidPatternErrorTemplateConstant = "invalid file pattern %q"
	globErrorTemplateConstant           = "unable to expand file pattern %q: %w"
	noMatchesErrorTemplateConstant      = "no files match patterns [%s] in %s"
)

// NoMatchesError reports a pattern set that selected no files.
type NoMatchesError struct {
	WorkingDirectory string
	Patterns         []string
}

// Error describes the empty expansion.
func (matchError NoMatchesError) Error() string {
	return fmt.Sprintf(noMatchesErrorTemplateConstant, strings.Join(matchError.Patterns, ", "), matchError.WorkingDirectory)
}

// Expand resolves patterns relative to workingDirectory.
// Files appear in pattern order, sorted within a pattern, each at most once.
// A pattern prefixed with "!" removes files selected by earlier patterns.
// Relative patterns yield paths relative to workingDirectory.
func Expand(workingDirectory string, patterns []string) ([]string, error) {
	rootDirectory := workingDirectory
	if len(strings.TrimSpace(rootDirectory)) == 0 {
		rootDirectory = "."
	}
	rootFileSystem := os.DirFS(rootDirectory)

	selected := make([]string, 0)
	seen := make(map[string]struct{})

	for _, rawPattern := range patterns {
		pattern := strings.TrimSpace(rawPattern)
		if len(pattern) == 0 {
			continue
		}

		if strings.HasPrefix(pattern, negationPrefixConstant) {
			exclusion := filepath.ToSlash(strings.TrimPrefix(pattern, negationPrefixConstant))
			if !doublestar.ValidatePattern(exclusion) {
				return nil, fmt.Errorf(invalidPatternErrorTemplateConstant, pattern)
			}
			selected = removeMatching(selected, seen, exclusion)
			continue
		}

		matches, globError := expandPattern(rootFileSystem, pattern)
		if globError != nil {
			return nil, globError
		}
		for _, match := range matches {
			if _, duplicate := seen[match]; duplicate {
				continue
			}
			seen[match] = struct{}{}
			selected = append(selected, match)
		}
	}

	return selected, nil
}

// ExpandRequired behaves like Expand but fails with NoMatchesError when nothing matches.
func ExpandRequired(workingDirectory string, patterns []string) ([]string, error) {
	files, expandError := Expand(workingDirectory, patterns)
	if expandError != nil {
		return nil, expandError
	}
	if len(files) == 0 {
		return nil, NoMatchesError{WorkingDirectory: workingDirectory, Patterns: append([]string(nil), patterns...)}
	}
	return files, nil
}

// Resolve joins a relative path onto workingDirectory and leaves absolute paths untouched.
func Resolve(workingDirectory string, path string) string {
	if filepath.IsAbs(path) || len(strings.TrimSpace(workingDirectory)) == 0 {
		return path
	}
	return filepath.Join(workingDirectory, path)
}

func expandPattern(rootFileSystem fs.FS, pattern string) ([]string, error) {
	if filepath.IsAbs(pattern) {
		if !doublestar.ValidatePathPattern(pattern) {
			return nil, fmt.Errorf(invalidPatternErrorTemplateConstant, pattern)
		}
		matches, globError := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if globError != nil {
			return nil, fmt.Errorf(globErrorTemplateConstant, pattern, globError)
		}
		sort.Strings(matches)
		return matches, nil
	}

	slashPattern := filepath.ToSlash(filepath.Clean(pattern))
	if !doublestar.ValidatePattern(slashPattern) {
		return nil, fmt.Errorf(invalidPatternErrorTemplateConstant, pattern)
	}
	matches, globError := doublestar.Glob(rootFileSystem, slashPattern, doublestar.WithFilesOnly())
	if globError != nil {
		return nil, fmt.Errorf(globErrorTemplateConstant, pattern, globError)
	}
	sort.Strings(matches)
	for matchIndex := range matches {
		matches[matchIndex] = filepath.FromSlash(matches[matchIndex])
	}
	return matches, nil
}

func removeMatching(selected []string, seen map[string]struct{}, exclusion string) []string {
	kept := selected[:0]
	for _, candidate := range selected {
		matched, _ := doublestar.Match(exclusion, filepath.ToSlash(candidate))
		if matched {
			delete(seen, candidate)
			continue
		}
		kept = append(kept, candidate)
	}
	return kept
}
