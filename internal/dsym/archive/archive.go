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

// ExtractorDependencyChecker ...
type ExtractorDependencyChecker interface {
	CheckDependencies() bool
}

// DependencyChecker ...
type DependencyChecker struct {
	logger  log.Logger
	envRepo env.Repository
}

// NewDependencyChecker ...
func NewDependencyChecker(logger log.Logger, envRepo env.Repository) *DependencyChecker {
	return &DependencyChecker{
		logger:  logger,
		envRepo: envRepo,
	}
}

// CheckDependencies ...
func (dc *DependencyChecker) CheckDependencies() bool {
	return dc.checkDependency("unzip")
}

func (dc *DependencyChecker) checkDependency(binaryName string) bool {
	cmdFactory := command.NewFactory(dc.envRepo)
	cmd := cmdFactory.Create("which", []string{binaryName}, nil)
	dc.logger.Debugf("$ %s", cmd.PrintableCommandArgs())

	_, err := cmd.RunAndReturnTrimmedCombinedOutput()
	return err == nil
}

// Extractor ...
type Extractor struct {
	logger                     log.Logger
	envRepo                    env.Repository
	extractorDependencyChecker ExtractorDependencyChecker
}

// NewExtractor ...
func NewExtractor(logger log.Logger, envRepo env.Repository, extractorDependencyChecker ExtractorDependencyChecker) *Extractor {
	return &Extractor{
		logger:                     logger,
		envRepo:                    envRepo,
		extractorDependencyChecker: extractorDependencyChecker,
	}
}

// Extract takes a zip archive path and extracts its contents into the
// destination directory.
func (e *Extractor) Extract(archivePath string, destinationDirectory string) error {
	haveUnzip := e.extractorDependencyChecker.CheckDependencies()
	if !haveUnzip {
		e.logger.Infof("Falling back to native zip extraction.")
		if err := e.extractWithGoLib(archivePath, destinationDirectory); err != nil {
			return fmt.Errorf("extract archive: %w", err)
		}
		return nil
	}

	e.logger.Infof("Using installed unzip binary")
	if err := e.extractWithBinary(archivePath, destinationDirectory); err != nil {
		return fmt.Errorf("extract archive: %w", err)
	}
	return nil
}

func (e *Extractor) extractWithBinary(archivePath string, destinationDirectory string) error {
	cmdFactory := command.NewFactory(e.envRepo)

	unzipArgs := []string{
		"-q",
		archivePath,
		"-d", destinationDirectory,
	}
	cmd := cmdFactory.Create("unzip", unzipArgs, nil)

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

func (e *Extractor) extractWithGoLib(archivePath string, destinationDirectory string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer func(reader *zip.ReadCloser) {
		err := reader.Close()
		if err != nil {
			e.logger.Printf(err.Error())
		}
	}(reader)

	cleanDestination := filepath.Clean(destinationDirectory)
	for _, file := range reader.File {
		target := filepath.Join(cleanDestination, file.Name)
		// entry names must stay inside the destination directory
		if target != cleanDestination && !strings.HasPrefix(target, cleanDestination+string(os.PathSeparator)) {
			return fmt.Errorf("illegal entry path in archive: %s", file.Name)
		}

		mode := file.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create target directories: %w", err)
			}
		case mode&os.ModeSymlink != 0:
			linkTarget, err := readEntry(file)
			if err != nil {
				return fmt.Errorf("read symlink entry: %w", err)
			}
			linkDestination := string(linkTarget)
			resolvedTarget := filepath.Join(filepath.Dir(target), linkDestination)
			// symlink targets must stay inside the destination directory too
			if filepath.IsAbs(linkDestination) || (resolvedTarget != cleanDestination && !strings.HasPrefix(resolvedTarget, cleanDestination+string(os.PathSeparator))) {
				return fmt.Errorf("illegal symlink target in archive: %s -> %s", file.Name, linkDestination)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("create target directories: %w", err)
			}
			if err := os.Symlink(linkDestination, target); err != nil {
				return fmt.Errorf("symlink file: %w", err)
			}
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("create target directories: %w", err)
			}
			if err := e.writeEntry(file, target, mode); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Extractor) writeEntry(file *zip.File, target string, mode os.FileMode) error {
	source, err := file.Open()
	if err != nil {
		return fmt.Errorf("open archive entry: %w", err)
	}
	defer func(source io.ReadCloser) {
		err := source.Close()
		if err != nil {
			e.logger.Printf(err.Error())
		}
	}(source)

	fileToWrite, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(fileToWrite, source); err != nil {
		return fmt.Errorf("copy content to file: %w", err)
	}
	if err := fileToWrite.Close(); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func readEntry(file *zip.File) ([]byte, error) {
	source, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer source.Close() //nolint:errcheck
	return io.ReadAll(source)
}
