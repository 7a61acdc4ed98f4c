package cli

import (
	"flag"
	"fmt"
	"io"

	"github.com/bitrise-io/go-steputils/v2/stepconf"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/joho/godotenv"

	"github.com/symbolkit/dsym-upload/internal/dsym/network"
)

// Config is the parsed invocation of the tool.
type Config struct {
	Path               string
	UploadServer       string
	SymbolMapsDir      string
	APIKey             stepconf.Secret
	ProjectRoot        string
	Verbose            bool
	Silent             bool
	IgnoreMissingDwarf bool
	IgnoreEmptyDsym    bool
}

// ExitError carries a specific process exit code alongside the message.
type ExitError struct {
	Code    int
	Message string
}

// Error ...
func (e *ExitError) Error() string {
	return e.Message
}

// envDefaults are fallback values read from the environment (including an
// optional .env file) for options not given on the command line.
type envDefaults struct {
	APIKey       stepconf.Secret `env:"BUGSNAG_API_KEY"`
	UploadServer string          `env:"BUGSNAG_UPLOAD_SERVER"`
}

// Parse processes command-line arguments into a Config. The boolean return
// is true when the program should exit cleanly without running (--help).
// Option scanning stops at the first non-flag token: that token is PATH and
// anything after it is ignored.
func Parse(args []string, envRepo env.Repository, output io.Writer) (Config, bool, error) {
	flagSet := flag.NewFlagSet("dsym-upload", flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() { printUsage(output, flagSet) }

	var cfg Config
	flagSet.BoolVar(&cfg.Silent, "s", false, "Suppress all non-essential output.")
	flagSet.BoolVar(&cfg.Silent, "silent", false, "Suppress all non-essential output.")
	flagSet.BoolVar(&cfg.Verbose, "v", false, "Print per-file progress and diagnostic lines.")
	flagSet.BoolVar(&cfg.Verbose, "verbose", false, "Print per-file progress and diagnostic lines.")
	flagSet.BoolVar(&cfg.IgnoreMissingDwarf, "ignore-missing-dwarf", false,
		"Count bundles without DWARF data as warnings instead of failures.")
	flagSet.BoolVar(&cfg.IgnoreEmptyDsym, "ignore-empty-dsym", false,
		"Count flat-file (empty) dSYM bundles as warnings instead of failures.")
	flagSet.StringVar(&cfg.SymbolMapsDir, "symbol-maps", "",
		"Directory of bitcode symbol maps to recombine into each bundle (requires dsymutil).")
	flagSet.StringVar(&cfg.UploadServer, "upload-server", "",
		"Ingestion endpoint to upload to (default "+network.DefaultUploadServer+").")
	apiKey := flagSet.String("api-key", "", "API key to attach to each upload request.")
	flagSet.StringVar(&cfg.ProjectRoot, "project-root", "",
		"Project root label to attach to each upload request.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return Config{}, true, nil
		}
		return Config{}, false, &ExitError{Code: 1, Message: err.Error()}
	}
	cfg.APIKey = stepconf.Secret(*apiKey)

	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return Config{}, false, &ExitError{Code: 1, Message: "missing required PATH argument"}
	}
	cfg.Path = flagSet.Arg(0)

	applyEnvDefaults(&cfg, envRepo)

	return cfg, false, nil
}

// applyEnvDefaults fills options left empty on the command line from the
// environment. Explicit flags always win. A .env file in the working
// directory is honored when present; its absence is not an error.
func applyEnvDefaults(cfg *Config, envRepo env.Repository) {
	_ = godotenv.Load()

	var defaults envDefaults
	parser := stepconf.NewInputParser(envRepo)
	if err := parser.Parse(&defaults); err == nil {
		if cfg.APIKey == "" {
			cfg.APIKey = defaults.APIKey
		}
		if cfg.UploadServer == "" {
			cfg.UploadServer = defaults.UploadServer
		}
	}

	if cfg.UploadServer == "" {
		cfg.UploadServer = network.DefaultUploadServer
	}
}

func printUsage(output io.Writer, flagSet *flag.FlagSet) {
	fmt.Fprint(output, `dsym-upload - Uploads dSYM debug symbols to a crash reporting service.

Usage:
  dsym-upload [options] PATH

Arguments:
  PATH
    Directory or .zip archive containing *.dSYM bundles. An https:// URL or
    an s3://bucket/key URI pointing to a .zip archive is fetched first and
    then treated as a local archive.

Options:
`)
	flagSet.PrintDefaults()
}
