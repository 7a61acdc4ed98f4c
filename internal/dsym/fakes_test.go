package dsym

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/symbolkit/dsym-upload/internal/dsym/network"
)

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) Get(key string) string {
	value, ok := repo.envVars[key]
	if ok {
		return value
	}
	return ""
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	repo.envVars[key] = ""
	return nil
}

func (repo fakeEnvRepo) List() []string {
	envs := []string{}
	for k, v := range repo.envVars {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}

// recordingLogger captures every formatted line so tests can assert on the
// user-visible output.
type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) record(format string, v ...interface{}) {
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
}

func (l *recordingLogger) Infof(format string, v ...interface{})  { l.record(format, v...) }
func (l *recordingLogger) Warnf(format string, v ...interface{})  { l.record(format, v...) }
func (l *recordingLogger) Printf(format string, v ...interface{}) { l.record(format, v...) }
func (l *recordingLogger) Donef(format string, v ...interface{})  { l.record(format, v...) }
func (l *recordingLogger) Debugf(format string, v ...interface{}) { l.record(format, v...) }
func (l *recordingLogger) Errorf(format string, v ...interface{}) { l.record(format, v...) }
func (l *recordingLogger) TInfof(format string, v ...interface{}) { l.record(format, v...) }
func (l *recordingLogger) TWarnf(format string, v ...interface{}) { l.record(format, v...) }
func (l *recordingLogger) TPrintf(format string, v ...interface{}) {
	l.record(format, v...)
}
func (l *recordingLogger) TDonef(format string, v ...interface{})  { l.record(format, v...) }
func (l *recordingLogger) TDebugf(format string, v ...interface{}) { l.record(format, v...) }
func (l *recordingLogger) TErrorf(format string, v ...interface{}) { l.record(format, v...) }
func (l *recordingLogger) Println()                                { l.lines = append(l.lines, "") }
func (l *recordingLogger) EnableDebugLog(enable bool)              {}

func (l *recordingLogger) output() string {
	return strings.Join(l.lines, "\n")
}

type fakeSymbolUploader struct {
	body   string
	err    error
	params []network.UploadParams
}

func (f *fakeSymbolUploader) Upload(ctx context.Context, params network.UploadParams, logger log.Logger) (string, error) {
	f.params = append(f.params, params)
	return f.body, f.err
}

type fakeDownloader struct {
	content string
	err     error
	urls    []string
}

func (f *fakeDownloader) Download(ctx context.Context, params network.DownloadParams, logger log.Logger) error {
	f.urls = append(f.urls, params.URL)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(params.DownloadPath, []byte(f.content), 0600)
}

// fakeUUIDReader reports a well-formed identifier for every file except the
// configured base names.
type fakeUUIDReader struct {
	failingNames map[string]bool
}

func (r fakeUUIDReader) DumpUUIDs(dwarfPath string) (string, error) {
	name := filepath.Base(dwarfPath)
	if r.failingNames[name] {
		return "some unrelated output", fmt.Errorf("no debug info UUID in dwarfdump output (%s)", dwarfPath)
	}
	return "UUID: 8A230F65-0A44-3C4C-A540-D111A4A3F6A1 (arm64) " + name, nil
}

type fakeSymbolMapper struct {
	err     error
	bundles []string
	mapsDir string
}

func (m *fakeSymbolMapper) Recombine(dsymPath string, symbolMapsDir string) error {
	m.bundles = append(m.bundles, dsymPath)
	m.mapsDir = symbolMapsDir
	return m.err
}

type fakeToolChecker struct {
	tools map[string]bool
}

func (c fakeToolChecker) HasTool(binaryName string) bool {
	return c.tools[binaryName]
}

// noUnzipChecker forces the extractor onto its native code path so tests do
// not depend on an installed unzip binary.
type noUnzipChecker struct{}

func (noUnzipChecker) CheckDependencies() bool {
	return false
}

type fakePathProvider struct {
	created []string
}

func (p *fakePathProvider) CreateTempDir(prefix string) (string, error) {
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		return "", err
	}
	p.created = append(p.created, dir)
	return dir, nil
}
