package dsym

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bitrise-io/go-steputils/v2/stepconf"
	"github.com/bitrise-io/go-utils/colorstring"
	"github.com/bitrise-io/go-utils/v2/command"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/docker/go-units"

	"github.com/symbolkit/dsym-upload/internal/dsym/archive"
	"github.com/symbolkit/dsym-upload/internal/dsym/devtool"
	"github.com/symbolkit/dsym-upload/internal/dsym/network"
)

// routineResponseBody is the response the ingestion endpoint sends when an
// upload needs no further attention. It is noise, so it is never echoed.
const routineResponseBody = "OK"

// UploadDsymsInput is the information that comes from the command line or the
// environment.
type UploadDsymsInput struct {
	Path               string
	UploadServer       string
	SymbolMapsDir      string
	APIKey             stepconf.Secret
	ProjectRoot        string
	Verbose            bool
	IgnoreMissingDwarf bool
	IgnoreEmptyDsym    bool
}

// Uploader ...
type Uploader interface {
	UploadDsyms(input UploadDsymsInput) (Summary, error)
}

// ArchiveExtractor ...
type ArchiveExtractor interface {
	Extract(archivePath string, destinationDirectory string) error
}

type uploadDsymsConfig struct {
	Path               string
	UploadServer       string
	SymbolMapsDir      string
	APIKey             stepconf.Secret
	ProjectRoot        string
	Verbose            bool
	IgnoreMissingDwarf bool
	IgnoreEmptyDsym    bool
}

type uploader struct {
	envRepo          env.Repository
	logger           log.Logger
	pathProvider     pathutil.PathProvider
	pathModifier     pathutil.PathModifier
	pathChecker      pathutil.PathChecker
	symbolUploader   network.Uploader
	downloader       network.Downloader
	archiveExtractor ArchiveExtractor
	uuidReader       devtool.UUIDReader
	symbolMapper     devtool.SymbolMapper
	toolChecker      devtool.DependencyChecker
}

// NewUploader creates a new dSYM uploader instance. The collaborator
// arguments (symbolUploader, downloader, archiveExtractor, uuidReader,
// symbolMapper, toolChecker) can be nil, unless you want to provide custom
// implementations.
func NewUploader(
	envRepo env.Repository,
	logger log.Logger,
	pathProvider pathutil.PathProvider,
	pathModifier pathutil.PathModifier,
	pathChecker pathutil.PathChecker,
	symbolUploader network.Uploader,
	downloader network.Downloader,
	archiveExtractor ArchiveExtractor,
	uuidReader devtool.UUIDReader,
	symbolMapper devtool.SymbolMapper,
	toolChecker devtool.DependencyChecker,
) *uploader {
	if symbolUploader == nil {
		symbolUploader = network.DefaultUploader{}
	}
	if downloader == nil {
		downloader = network.DefaultDownloader{}
	}
	if archiveExtractor == nil {
		archiveExtractor = archive.NewExtractor(logger, envRepo, archive.NewDependencyChecker(logger, envRepo))
	}
	cmdFactory := command.NewFactory(envRepo)
	if uuidReader == nil {
		uuidReader = devtool.NewDwarfdump(logger, cmdFactory)
	}
	if symbolMapper == nil {
		symbolMapper = devtool.NewDsymutil(logger, cmdFactory)
	}
	if toolChecker == nil {
		toolChecker = devtool.NewChecker(logger, cmdFactory)
	}
	return &uploader{
		envRepo:          envRepo,
		logger:           logger,
		pathProvider:     pathProvider,
		pathModifier:     pathModifier,
		pathChecker:      pathChecker,
		symbolUploader:   symbolUploader,
		downloader:       downloader,
		archiveExtractor: archiveExtractor,
		uuidReader:       uuidReader,
		symbolMapper:     symbolMapper,
		toolChecker:      toolChecker,
	}
}

// UploadDsyms ...
func (u *uploader) UploadDsyms(input UploadDsymsInput) (Summary, error) {
	u.logger.TDebugf("Upload start")
	defer func() {
		u.logger.TDebugf("Upload done")
	}()

	config, err := u.createConfig(input)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to parse inputs: %w", err)
	}
	u.logger.TDebugf("Config created")

	ctx := context.Background()

	u.logger.Println()
	u.logger.Infof("Resolving input path...")
	workDir, cleanup, err := u.resolveInput(ctx, config)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to resolve input path: %w", err)
	}
	defer cleanup()
	u.logger.Donef("Scanning %s", workDir)

	bundles, err := u.discoverBundles(workDir)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to scan for dSYM bundles: %w", err)
	}
	if len(bundles) == 0 {
		u.logger.Warnf("No dSYM bundles found in %s", workDir)
	}
	u.logger.Debugf("Found %d dSYM bundle(s)", len(bundles))

	var summary Summary
	for _, bundlePath := range bundles {
		if err := u.processBundle(ctx, bundlePath, config, &summary); err != nil {
			return summary, err
		}
	}

	u.logger.Println()
	u.reportSummary(summary, config.Verbose)

	return summary, nil
}

func (u *uploader) createConfig(input UploadDsymsInput) (uploadDsymsConfig, error) {
	if strings.TrimSpace(input.Path) == "" {
		return uploadDsymsConfig{}, fmt.Errorf("input path should not be empty")
	}

	uploadServer := input.UploadServer
	if uploadServer == "" {
		uploadServer = network.DefaultUploadServer
	}

	symbolMapsDir := ""
	if input.SymbolMapsDir != "" {
		absDir, err := u.pathModifier.AbsPath(input.SymbolMapsDir)
		if err != nil {
			return uploadDsymsConfig{}, fmt.Errorf("failed to parse symbol maps path: %w", err)
		}
		exists, err := u.pathChecker.IsDirExists(absDir)
		if err != nil {
			return uploadDsymsConfig{}, fmt.Errorf("failed to check symbol maps path: %w", err)
		}
		if !exists {
			return uploadDsymsConfig{}, fmt.Errorf("symbol maps directory doesn't exist: %s", input.SymbolMapsDir)
		}
		if !u.toolChecker.HasTool("dsymutil") {
			return uploadDsymsConfig{}, fmt.Errorf("dsymutil is required for symbol map recombination but was not found in PATH")
		}
		symbolMapsDir = absDir
	}

	return uploadDsymsConfig{
		Path:               input.Path,
		UploadServer:       uploadServer,
		SymbolMapsDir:      symbolMapsDir,
		APIKey:             input.APIKey,
		ProjectRoot:        input.ProjectRoot,
		Verbose:            input.Verbose,
		IgnoreMissingDwarf: input.IgnoreMissingDwarf,
		IgnoreEmptyDsym:    input.IgnoreEmptyDsym,
	}, nil
}

// resolveInput turns the configured path into a local directory to scan.
// Remote archives are downloaded first; archives are extracted into a
// temporary directory which the returned cleanup removes on all exit paths.
func (u *uploader) resolveInput(ctx context.Context, config uploadDsymsConfig) (string, func(), error) {
	noCleanup := func() {}

	path := config.Path
	remote := isRemoteArchive(path)

	if !remote {
		absPath, err := u.pathModifier.AbsPath(path)
		if err != nil {
			return "", noCleanup, fmt.Errorf("failed to parse input path: %w", err)
		}

		isDir, err := u.pathChecker.IsDirExists(absPath)
		if err != nil {
			return "", noCleanup, fmt.Errorf("failed to check input path: %w", err)
		}
		if isDir {
			return absPath, noCleanup, nil
		}

		exists, err := u.pathChecker.IsPathExists(absPath)
		if err != nil {
			return "", noCleanup, fmt.Errorf("failed to check input path: %w", err)
		}
		if !exists {
			return "", noCleanup, fmt.Errorf("input path doesn't exist: %s", config.Path)
		}
		if !strings.HasSuffix(absPath, ".zip") {
			return "", noCleanup, fmt.Errorf("input path is neither a directory nor a .zip archive: %s", config.Path)
		}
		path = absPath
	}

	tempDir, err := u.pathProvider.CreateTempDir("dsym-upload")
	if err != nil {
		return "", noCleanup, fmt.Errorf("failed to create temp dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(tempDir); err != nil {
			u.logger.Warnf("Failed to remove temp dir: %s", err)
		}
	}

	archivePath := path
	if remote {
		archivePath = filepath.Join(tempDir, "dsyms.zip")
		downloadStartTime := time.Now()
		if err := u.downloadArchive(ctx, path, archivePath); err != nil {
			cleanup()
			return "", noCleanup, fmt.Errorf("failed to download archive: %w", err)
		}
		fileInfo, err := os.Stat(archivePath)
		if err != nil {
			cleanup()
			return "", noCleanup, err
		}
		u.logger.Printf("Archive size: %s", units.HumanSizeWithPrecision(float64(fileInfo.Size()), 3))
		u.logger.Donef("Downloaded archive in %s", time.Since(downloadStartTime).Round(time.Second))
	}

	workDir := filepath.Join(tempDir, "contents")
	if err := os.MkdirAll(workDir, 0755); err != nil {
		cleanup()
		return "", noCleanup, fmt.Errorf("failed to create extraction dir: %w", err)
	}
	if err := u.archiveExtractor.Extract(archivePath, workDir); err != nil {
		cleanup()
		return "", noCleanup, fmt.Errorf("failed to extract archive: %w", err)
	}

	return workDir, cleanup, nil
}

func (u *uploader) downloadArchive(ctx context.Context, rawURL string, downloadPath string) error {
	if strings.HasPrefix(rawURL, "s3://") {
		bucket, key, err := network.ParseS3URI(rawURL)
		if err != nil {
			return err
		}
		params := network.S3DownloadParams{
			Bucket:          bucket,
			Key:             key,
			DownloadPath:    downloadPath,
			Region:          u.envRepo.Get("AWS_REGION"),
			AccessKeyID:     u.envRepo.Get("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: u.envRepo.Get("AWS_SECRET_ACCESS_KEY"),
		}
		return network.DownloadFromS3(ctx, params, u.logger)
	}

	return u.downloader.Download(ctx, network.DownloadParams{
		URL:          rawURL,
		DownloadPath: downloadPath,
	}, u.logger)
}

// processBundle classifies one discovered bundle and uploads its debug info
// files. Recoverable conditions are counted in summary; the returned error is
// reserved for conditions that must stop the whole run.
func (u *uploader) processBundle(ctx context.Context, bundlePath string, config uploadDsymsConfig, summary *Summary) error {
	bundleName := filepath.Base(bundlePath)
	u.logger.Debugf("Processing %s", bundleName)

	info, err := os.Stat(bundlePath)
	if err != nil {
		u.logger.Errorf("Failed to inspect %s: %s", bundleName, err)
		summary.Failures++
		return nil
	}

	if !info.IsDir() {
		if config.IgnoreEmptyDsym {
			u.logger.Warnf("Skipping %s: expected a bundle directory, got a file of %d bytes", bundleName, info.Size())
			summary.Warnings++
		} else {
			u.logger.Errorf("%s is a file of %d bytes, not a bundle directory", bundleName, info.Size())
			summary.Failures++
		}
		return nil
	}

	if config.SymbolMapsDir != "" {
		u.logger.Debugf("Recombining symbol maps into %s", bundleName)
		if err := u.symbolMapper.Recombine(bundlePath, config.SymbolMapsDir); err != nil {
			return fmt.Errorf("failed to recombine symbol maps for %s: %w", bundleName, err)
		}
	}

	dwarfDir := filepath.Join(bundlePath, "Contents", "Resources", "DWARF")
	hasDwarf, err := u.pathChecker.IsDirExists(dwarfDir)
	if err != nil {
		u.logger.Errorf("Failed to inspect %s: %s", bundleName, err)
		summary.Failures++
		return nil
	}
	if !hasDwarf {
		if config.IgnoreMissingDwarf {
			u.logger.Warnf("Skipping %s: no DWARF data in the bundle", bundleName)
			summary.Warnings++
		} else {
			u.logger.Errorf("%s has no DWARF data", bundleName)
			summary.Failures++
		}
		return nil
	}

	entries, err := os.ReadDir(dwarfDir)
	if err != nil {
		u.logger.Errorf("Failed to list DWARF files of %s: %s", bundleName, err)
		summary.Failures++
		return nil
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		u.uploadDwarf(ctx, filepath.Join(dwarfDir, entry.Name()), config, summary)
	}

	return nil
}

func (u *uploader) uploadDwarf(ctx context.Context, dwarfPath string, config uploadDsymsConfig, summary *Summary) {
	name := filepath.Base(dwarfPath)

	uuidOutput, err := u.uuidReader.DumpUUIDs(dwarfPath)
	if err != nil {
		u.logger.Errorf("Skipping %s: %s", name, err)
		summary.Failures++
		return
	}
	u.logger.Debugf("%s", uuidOutput)

	u.logger.Debugf("Uploading %s", name)
	body, err := u.symbolUploader.Upload(ctx, network.UploadParams{
		UploadServer: config.UploadServer,
		APIKey:       string(config.APIKey),
		ProjectRoot:  config.ProjectRoot,
		DwarfPath:    dwarfPath,
	}, u.logger)
	if body != "" && body != routineResponseBody {
		u.logger.Printf("%s", body)
	}
	if err != nil {
		u.logger.Errorf("Failed to upload %s: %s", name, err)
		summary.Failures++
		return
	}

	summary.Uploaded++
}

func (u *uploader) reportSummary(summary Summary, verbose bool) {
	if summary.Uploaded > 0 {
		u.logger.Donef("%d file(s) uploaded successfully", summary.Uploaded)
	}
	if summary.Warnings > 0 {
		u.logger.Warnf("%d file(s) skipped with a warning", summary.Warnings)
	}
	if summary.Failures > 0 {
		u.logger.Errorf("%d file(s) failed", summary.Failures)
	}
	if (summary.Warnings > 0 || summary.Failures > 0) && !verbose {
		u.logger.Printf(colorstring.Yellow("Run the command again with --verbose for per-file details."))
	}
}

func isRemoteArchive(path string) bool {
	return strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "http://") ||
		strings.HasPrefix(path, "s3://")
}
