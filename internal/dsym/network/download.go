package network

import (
	"context"
	"fmt"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/melbahja/got"
)

// DownloadParams ...
type DownloadParams struct {
	URL          string
	DownloadPath string
}

// DefaultDownloader ...
type DefaultDownloader struct{}

// Download ...
func (d DefaultDownloader) Download(ctx context.Context, params DownloadParams, logger log.Logger) error {
	return Download(ctx, params, logger)
}

// Download fetches a remote archive over HTTP to the given local path.
// Unlike symbol uploads, archive downloads are retried on transient errors.
func Download(ctx context.Context, params DownloadParams, logger log.Logger) error {
	if params.URL == "" {
		return fmt.Errorf("download URL is empty")
	}

	retryableHTTPClient := retryhttp.NewClient(logger)

	logger.Debugf("Downloading %s", params.URL)
	downloader := got.New()
	downloader.Client = retryableHTTPClient.StandardClient()

	if err := downloader.Do(got.NewDownload(ctx, params.URL, params.DownloadPath)); err != nil {
		return fmt.Errorf("download archive: %w", err)
	}
	return nil
}
