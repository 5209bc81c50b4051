package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bmatcuk/doublestar/v4"
)

type sourceEvaluator struct {
	logger       log.Logger
	pathModifier pathutil.PathModifier
	pathChecker  pathutil.PathChecker
}

func newSourceEvaluator(logger log.Logger) sourceEvaluator {
	return sourceEvaluator{
		logger:       logger,
		pathModifier: pathutil.NewPathModifier(),
		pathChecker:  pathutil.NewPathChecker(),
	}
}

func isURL(source string) bool {
	for _, prefix := range []string{"http://", "https://", "cache://", "s3://"} {
		if strings.HasPrefix(source, prefix) {
			return true
		}
	}
	return false
}

// evaluate expands glob patterns of local sources and resolves them to
// absolute paths. URLs are kept as they are. Missing paths are dropped with a warning.
func (e sourceEvaluator) evaluate(sources []string) ([]string, error) {
	var expanded []string
	for _, source := range sources {
		if isURL(source) || !strings.Contains(source, "*") {
			expanded = append(expanded, source)
			continue
		}

		base, pattern := doublestar.SplitPattern(source)
		absBase, err := e.pathModifier.AbsPath(base) // resolves ~/ and expands any envs
		if err != nil {
			return nil, err
		}
		matches, err := doublestar.Glob(os.DirFS(absBase), pattern, doublestar.WithNoFollow())
		if err != nil {
			e.logger.Warnf("Error in path pattern '%s': %s", source, err)
			continue
		}
		if len(matches) == 0 {
			e.logger.Warnf("No match for path pattern: %s", source)
			continue
		}

		for _, match := range matches {
			expanded = append(expanded, filepath.Join(base, match))
		}
	}

	var final []string
	for _, source := range expanded {
		if isURL(source) {
			final = append(final, source)
			continue
		}

		absPath, err := e.pathModifier.AbsPath(source)
		if err != nil {
			e.logger.Warnf("Failed to parse path %s, error: %s", source, err)
			continue
		}

		exists, err := e.pathChecker.IsPathExists(absPath)
		if err != nil {
			e.logger.Warnf("Failed to check path %s, error: %s", absPath, err)
		}
		if !exists {
			e.logger.Warnf("Source doesn't exist: %s", source)
			continue
		}

		final = append(final, absPath)
	}
	return final, nil
}
