package devtool

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bitrise-io/go-utils/v2/command"
	"github.com/bitrise-io/go-utils/v2/log"
)

// DependencyChecker reports whether a developer tool is installed.
type DependencyChecker interface {
	HasTool(binaryName string) bool
}

// UUIDReader inspects a DWARF file for debug info UUIDs.
type UUIDReader interface {
	DumpUUIDs(dwarfPath string) (string, error)
}

// SymbolMapper restores obfuscated symbol names in a dSYM bundle from
// bitcode symbol maps.
type SymbolMapper interface {
	Recombine(dsymPath string, symbolMapsDir string) error
}

// Checker ...
type Checker struct {
	logger     log.Logger
	cmdFactory command.Factory
}

// NewChecker ...
func NewChecker(logger log.Logger, cmdFactory command.Factory) *Checker {
	return &Checker{
		logger:     logger,
		cmdFactory: cmdFactory,
	}
}

// HasTool ...
func (c *Checker) HasTool(binaryName string) bool {
	cmd := c.cmdFactory.Create("which", []string{binaryName}, nil)
	c.logger.Debugf("$ %s", cmd.PrintableCommandArgs())

	_, err := cmd.RunAndReturnTrimmedCombinedOutput()
	return err == nil
}

// Dwarfdump reads debug info UUIDs with the dwarfdump binary.
type Dwarfdump struct {
	logger     log.Logger
	cmdFactory command.Factory
}

// NewDwarfdump ...
func NewDwarfdump(logger log.Logger, cmdFactory command.Factory) *Dwarfdump {
	return &Dwarfdump{
		logger:     logger,
		cmdFactory: cmdFactory,
	}
}

// DumpUUIDs runs dwarfdump --uuid on the DWARF file and returns its output.
// The output is only accepted when it begins with "UUID": anything else means
// the file carries no usable debug info.
func (d *Dwarfdump) DumpUUIDs(dwarfPath string) (string, error) {
	cmd := d.cmdFactory.Create("dwarfdump", []string{"--uuid", dwarfPath}, nil)
	d.logger.Debugf("$ %s", cmd.PrintableCommandArgs())

	out, err := cmd.RunAndReturnTrimmedCombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, fmt.Errorf("command failed with exit status %d (%s):\n%w", exitErr.ExitCode(), cmd.PrintableCommandArgs(), errors.New(out))
		}
		return out, fmt.Errorf("executing command failed (%s): %w", cmd.PrintableCommandArgs(), err)
	}

	if !strings.HasPrefix(out, "UUID") {
		return out, fmt.Errorf("no debug info UUID in dwarfdump output (%s)", dwarfPath)
	}
	return out, nil
}

// Dsymutil recombines symbol maps with the dsymutil binary.
type Dsymutil struct {
	logger     log.Logger
	cmdFactory command.Factory
}

// NewDsymutil ...
func NewDsymutil(logger log.Logger, cmdFactory command.Factory) *Dsymutil {
	return &Dsymutil{
		logger:     logger,
		cmdFactory: cmdFactory,
	}
}

// Recombine rewrites the bundle's DWARF data with original symbol names
// restored from the bitcode symbol maps in symbolMapsDir.
func (d *Dsymutil) Recombine(dsymPath string, symbolMapsDir string) error {
	cmd := d.cmdFactory.Create("dsymutil", []string{"--symbol-map", symbolMapsDir, dsymPath}, nil)
	d.logger.Debugf("$ %s", cmd.PrintableCommandArgs())

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
