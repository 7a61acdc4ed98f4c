package network

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDwarfFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "MyApp")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestUpload(t *testing.T) {
	// Given
	dwarfPath := writeDwarfFixture(t, "dwarf-bytes")

	var gotProto, gotFile, gotAPIKey, gotProjectRoot string
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotProto = r.Proto
		require.NoError(t, r.ParseMultipartForm(1024*1024))

		file, header, err := r.FormFile("dsym")
		require.NoError(t, err)
		defer file.Close() //nolint:errcheck
		content, err := io.ReadAll(file)
		require.NoError(t, err)
		gotFile = string(content)
		assert.Equal(t, "MyApp", header.Filename)

		gotAPIKey = r.FormValue("apiKey")
		gotProjectRoot = r.FormValue("projectRoot")

		_, err = w.Write([]byte("OK\n"))
		require.NoError(t, err)
	}))
	defer svr.Close()

	// When
	body, err := Upload(context.Background(), UploadParams{
		UploadServer: svr.URL,
		APIKey:       "0123456789abcdef",
		ProjectRoot:  "/builds/myapp",
		DwarfPath:    dwarfPath,
	}, log.NewLogger())

	// Then
	require.NoError(t, err)
	assert.Equal(t, "OK", body)
	assert.Equal(t, "HTTP/1.1", gotProto)
	assert.Equal(t, "dwarf-bytes", gotFile)
	assert.Equal(t, "0123456789abcdef", gotAPIKey)
	assert.Equal(t, "/builds/myapp", gotProjectRoot)
}

func TestUpload_omitsEmptyOptionalFields(t *testing.T) {
	dwarfPath := writeDwarfFixture(t, "dwarf-bytes")

	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1024*1024))
		_, hasAPIKey := r.MultipartForm.Value["apiKey"]
		_, hasProjectRoot := r.MultipartForm.Value["projectRoot"]
		assert.False(t, hasAPIKey)
		assert.False(t, hasProjectRoot)

		_, err := w.Write([]byte("OK"))
		require.NoError(t, err)
	}))
	defer svr.Close()

	body, err := Upload(context.Background(), UploadParams{
		UploadServer: svr.URL,
		DwarfPath:    dwarfPath,
	}, log.NewLogger())

	require.NoError(t, err)
	assert.Equal(t, "OK", body)
}

func TestUpload_invalidAPIKey(t *testing.T) {
	dwarfPath := writeDwarfFixture(t, "dwarf-bytes")

	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte("invalid apiKey"))
		require.NoError(t, err)
	}))
	defer svr.Close()

	body, err := Upload(context.Background(), UploadParams{
		UploadServer: svr.URL,
		APIKey:       "bogus",
		DwarfPath:    dwarfPath,
	}, log.NewLogger())

	require.ErrorIs(t, err, ErrInvalidAPIKey)
	assert.Equal(t, "invalid apiKey", body)
}

func TestUpload_ignoresStatusCode(t *testing.T) {
	// The endpoint reports problems in the response body. A completed
	// exchange counts as delivered even when the status is not 2xx.
	dwarfPath := writeDwarfFixture(t, "dwarf-bytes")

	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, err := w.Write([]byte("empty dsym"))
		require.NoError(t, err)
	}))
	defer svr.Close()

	body, err := Upload(context.Background(), UploadParams{
		UploadServer: svr.URL,
		DwarfPath:    dwarfPath,
	}, log.NewLogger())

	require.NoError(t, err)
	assert.Equal(t, "empty dsym", body)
}

func TestUpload_transportError(t *testing.T) {
	dwarfPath := writeDwarfFixture(t, "dwarf-bytes")

	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	svr.Close()

	_, err := Upload(context.Background(), UploadParams{
		UploadServer: svr.URL,
		DwarfPath:    dwarfPath,
	}, log.NewLogger())

	require.Error(t, err)
}

func TestUpload_singleAttempt(t *testing.T) {
	dwarfPath := writeDwarfFixture(t, "dwarf-bytes")

	var requestCount int
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer svr.Close()

	_, err := Upload(context.Background(), UploadParams{
		UploadServer: svr.URL,
		DwarfPath:    dwarfPath,
	}, log.NewLogger())

	require.NoError(t, err)
	assert.Equal(t, 1, requestCount)
}

func TestUpload_missingFile(t *testing.T) {
	_, err := Upload(context.Background(), UploadParams{
		UploadServer: "http://localhost:1",
		DwarfPath:    filepath.Join(t.TempDir(), "no-such-file"),
	}, log.NewLogger())

	require.Error(t, err)
}
