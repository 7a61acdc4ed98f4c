package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"

	"github.com/symbolkit/dsym-upload/internal/cli"
	"github.com/symbolkit/dsym-upload/internal/dsym"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	envRepo := env.NewRepository()

	cfg, shouldExit, err := cli.Parse(args, envRepo, os.Stderr)
	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			return exitErr.Code
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if shouldExit {
		return 0
	}

	logger := log.NewLogger()
	logger.EnableDebugLog(cfg.Verbose)
	runLogger := logger
	if cfg.Silent {
		runLogger = dsym.NewQuietLogger(logger)
	}

	uploader := dsym.NewUploader(
		envRepo,
		runLogger,
		pathutil.NewPathProvider(),
		pathutil.NewPathModifier(),
		pathutil.NewPathChecker(),
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
	)

	summary, err := uploader.UploadDsyms(dsym.UploadDsymsInput{
		Path:               cfg.Path,
		UploadServer:       cfg.UploadServer,
		SymbolMapsDir:      cfg.SymbolMapsDir,
		APIKey:             cfg.APIKey,
		ProjectRoot:        cfg.ProjectRoot,
		Verbose:            cfg.Verbose,
		IgnoreMissingDwarf: cfg.IgnoreMissingDwarf,
		IgnoreEmptyDsym:    cfg.IgnoreEmptyDsym,
	})
	if err != nil {
		runLogger.Errorf(err.Error())
		return 1
	}
	if summary.Failed() {
		return 1
	}
	return 0
}
