// Package archive extracts the zip bundles the conversion service produces.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/command"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/klauspost/compress/zip"
)

// DependencyChecker reports whether the unzip binary can be used.
type DependencyChecker interface {
	CheckDependencies() bool
}

// BinaryChecker looks up the unzip binary on the PATH.
type BinaryChecker struct {
	logger  log.Logger
	envRepo env.Repository
}

// NewBinaryChecker ...
func NewBinaryChecker(logger log.Logger, envRepo env.Repository) *BinaryChecker {
	return &BinaryChecker{
		logger:  logger,
		envRepo: envRepo,
	}
}

// CheckDependencies ...
func (c *BinaryChecker) CheckDependencies() bool {
	cmdFactory := command.NewFactory(c.envRepo)
	cmd := cmdFactory.Create("which", []string{"unzip"}, nil)
	c.logger.Debugf("$ %s", cmd.PrintableCommandArgs())

	_, err := cmd.RunAndReturnTrimmedCombinedOutput()
	return err == nil
}

// NativeOnly makes the Extractor always use the Go implementation.
type NativeOnly struct{}

// CheckDependencies ...
func (NativeOnly) CheckDependencies() bool {
	return false
}

// Extractor ...
type Extractor struct {
	logger            log.Logger
	envRepo           env.Repository
	dependencyChecker DependencyChecker
}

// NewExtractor ...
func NewExtractor(logger log.Logger, envRepo env.Repository, dependencyChecker DependencyChecker) *Extractor {
	return &Extractor{
		logger:            logger,
		envRepo:           envRepo,
		dependencyChecker: dependencyChecker,
	}
}

// Extract unpacks the zip archive into destinationDirectory and returns the
// extracted file paths. Entries that would land outside the destination are rejected.
func (e *Extractor) Extract(archivePath, destinationDirectory string) ([]string, error) {
	if destinationDirectory == "" {
		return nil, fmt.Errorf("destination directory is empty")
	}
	if err := os.MkdirAll(destinationDirectory, 0755); err != nil {
		return nil, fmt.Errorf("create destination directory: %w", err)
	}

	if !e.dependencyChecker.CheckDependencies() {
		e.logger.Debugf("unzip not found, using native zip implementation")
		files, err := e.extractWithGolib(archivePath, destinationDirectory)
		if err != nil {
			return nil, fmt.Errorf("extract archive: %w", err)
		}
		return files, nil
	}

	// the entry list is validated natively before the binary writes anything
	names, err := entryPaths(archivePath, destinationDirectory)
	if err != nil {
		return nil, fmt.Errorf("extract archive: %w", err)
	}

	e.logger.Debugf("Using installed unzip binary")
	if err := e.extractWithBinary(archivePath, destinationDirectory); err != nil {
		return nil, fmt.Errorf("extract archive: %w", err)
	}
	return names, nil
}

func (e *Extractor) extractWithGolib(archivePath, destinationDirectory string) ([]string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", archivePath, err)
	}
	defer func() {
		if err := zr.Close(); err != nil {
			e.logger.Warnf("failed to close zip: %s", err)
		}
	}()

	var files []string
	for _, f := range zr.File {
		target, err := entryTarget(destinationDirectory, f)
		if err != nil {
			return nil, err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return nil, fmt.Errorf("create target directories: %w", err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return nil, fmt.Errorf("create target directories: %w", err)
		}
		if err := extractFile(f, target); err != nil {
			return nil, err
		}
		files = append(files, target)
	}
	return files, nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close() //nolint:errcheck

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	fileToWrite, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(fileToWrite, rc); err != nil {
		_ = fileToWrite.Close()
		return fmt.Errorf("copy content to file: %w", err)
	}
	// closed per entry, deferring would keep every file open until the end
	if err := fileToWrite.Close(); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (e *Extractor) extractWithBinary(archivePath, destinationDirectory string) error {
	cmdFactory := command.NewFactory(e.envRepo)

	/*
		unzip arguments:
		-o: Overwrite existing files without prompting
		-q: Quiet mode
		-d: Extract into directory
	*/
	cmd := cmdFactory.Create("unzip", []string{"-o", "-q", archivePath, "-d", destinationDirectory}, nil)
	e.logger.Debugf("$ %s", cmd.PrintableCommandArgs())

	out, err := cmd.RunAndReturnTrimmedCombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("command failed with exit status %d (%s):\n%w", exitErr.ExitCode(), cmd.PrintableCommandArgs(), errors.New(out))
		}
		return fmt.Errorf("executing command failed (%s): %w", cmd.PrintableCommandArgs(), err)
	}
	return nil
}

// entryPaths lists the file targets of an archive without extracting it.
func entryPaths(archivePath, destinationDirectory string) ([]string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", archivePath, err)
	}
	defer zr.Close() //nolint:errcheck

	var files []string
	for _, f := range zr.File {
		target, err := entryTarget(destinationDirectory, f)
		if err != nil {
			return nil, err
		}
		if !f.FileInfo().IsDir() {
			files = append(files, target)
		}
	}
	return files, nil
}

// entryTarget returns where f lands under destinationDirectory. Symlink
// entries are rejected: a later entry could write through them.
func entryTarget(destinationDirectory string, f *zip.File) (string, error) {
	if f.Mode()&os.ModeSymlink != 0 {
		return "", fmt.Errorf("symlink in archive: %s", f.Name)
	}
	return safeTarget(destinationDirectory, f.Name)
}

func safeTarget(destinationDirectory, name string) (string, error) {
	target := filepath.Join(destinationDirectory, filepath.FromSlash(name))
	root := filepath.Clean(destinationDirectory) + string(os.PathSeparator)
	if !strings.HasPrefix(target, root) {
		return "", fmt.Errorf("illegal path in archive: %s", name)
	}
	return target, nil
}
