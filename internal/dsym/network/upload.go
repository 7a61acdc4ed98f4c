package network

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// DefaultUploadServer is the public ingestion endpoint.
const DefaultUploadServer = "https://upload.bugsnag.com"

// invalidAPIKeyBody is the exact response body the ingestion endpoint returns
// for a rejected API key. The endpoint signals this in the body, not in the
// status code.
const invalidAPIKeyBody = "invalid apiKey"

// ErrInvalidAPIKey ...
var ErrInvalidAPIKey = errors.New("API key rejected by the upload server")

// UploadParams ...
type UploadParams struct {
	UploadServer string
	APIKey       string
	ProjectRoot  string
	DwarfPath    string
}

// DefaultUploader ...
type DefaultUploader struct{}

// Upload ...
func (u DefaultUploader) Upload(ctx context.Context, params UploadParams, logger log.Logger) (string, error) {
	return Upload(ctx, params, logger)
}

// Upload posts one DWARF file to the ingestion endpoint as a multipart form
// and returns the trimmed response body. Exactly one attempt is made per
// file. Delivery is judged by the transport result and the response body,
// not the HTTP status code.
func Upload(ctx context.Context, params UploadParams, logger log.Logger) (string, error) {
	if params.UploadServer == "" {
		return "", fmt.Errorf("upload server URL is empty")
	}

	body, contentType, err := multipartBody(params)
	if err != nil {
		return "", err
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, params.UploadServer, body)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", contentType)

	client := newIngestionClient(logger)
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", filepath.Base(params.DwarfPath), err)
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			logger.Printf(err.Error())
		}
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}

	message := strings.TrimSpace(string(respBody))
	if message == invalidAPIKeyBody {
		return message, ErrInvalidAPIKey
	}
	return message, nil
}

func multipartBody(params UploadParams) (*bytes.Buffer, string, error) {
	file, err := os.Open(params.DwarfPath)
	if err != nil {
		return nil, "", fmt.Errorf("open debug info file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("dsym", filepath.Base(params.DwarfPath))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("read debug info file: %w", err)
	}

	if params.ProjectRoot != "" {
		if err := writer.WriteField("projectRoot", params.ProjectRoot); err != nil {
			return nil, "", fmt.Errorf("write projectRoot field: %w", err)
		}
	}
	if params.APIKey != "" {
		if err := writer.WriteField("apiKey", params.APIKey); err != nil {
			return nil, "", fmt.Errorf("write apiKey field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize multipart body: %w", err)
	}

	return &body, writer.FormDataContentType(), nil
}

// newIngestionClient configures the client for the ingestion endpoint's
// contract: one attempt per file, over HTTP/1.1 only. Status codes carry no
// meaning for this endpoint, so they must not trigger retries either.
func newIngestionClient(logger log.Logger) *retryablehttp.Client {
	client := retryhttp.NewClient(logger)
	client.RetryMax = 0
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		return false, nil
	}
	if transport, ok := client.HTTPClient.Transport.(*http.Transport); ok {
		transport.ForceAttemptHTTP2 = false
		transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}
	return client
}
