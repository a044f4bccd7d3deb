package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskgridgo/internal/task"
	"github.com/vk/taskgridgo/internal/taskctx"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestOnRun_StreamsTheFile(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	var gotMethod, gotContentType, gotBody string
	var gotLength int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotLength = r.ContentLength
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	path := writeTempFile(t, "report.json", `{"p95_ms":120}`)
	tc := taskctx.New(taskctx.Options{TaskKey: "publish"})

	// --- Act ---
	value, err := OnRun(context.Background(), tc, task.Task{
		Key:     "publish",
		Worker:  "upload",
		Payload: map[string]any{"url": server.URL, "file": path},
	})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, int64(len(`{"p95_ms":120}`)), gotLength)
	assert.Equal(t, `{"p95_ms":120}`, gotBody)

	result := value.(map[string]any)
	assert.Equal(t, http.StatusOK, result["status_code"])
	assert.Equal(t, int64(len(`{"p95_ms":120}`)), result["bytes_sent"])
}

func TestOnRun_ContentTypeOverrideAndFallback(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	tc := taskctx.New(taskctx.Options{TaskKey: "publish"})

	// --- Act / Assert: explicit override wins over the extension ---
	path := writeTempFile(t, "archive.json", "{}")
	_, err := OnRun(context.Background(), tc, task.Task{
		Key:    "publish",
		Worker: "upload",
		Payload: map[string]any{
			"url":          server.URL,
			"file":         path,
			"content_type": "application/x-custom",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "application/x-custom", gotContentType)

	// --- Act / Assert: unknown extension falls back to octet-stream ---
	path = writeTempFile(t, "blob.weird-ext", "data")
	_, err = OnRun(context.Background(), tc, task.Task{
		Key:     "publish",
		Worker:  "upload",
		Payload: map[string]any{"url": server.URL, "file": path},
	})
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", gotContentType)
}

func TestOnRun_RejectedUploadIsAnError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	path := writeTempFile(t, "report.json", "{}")
	tc := taskctx.New(taskctx.Options{TaskKey: "publish"})

	// --- Act ---
	_, err := OnRun(context.Background(), tc, task.Task{
		Key:     "publish",
		Worker:  "upload",
		Payload: map[string]any{"url": server.URL, "file": path},
	})

	// --- Assert ---
	assert.ErrorContains(t, err, "upload failed with status")
}

func TestOnRun_MissingFileFails(t *testing.T) {
	t.Parallel()

	tc := taskctx.New(taskctx.Options{TaskKey: "publish"})

	_, err := OnRun(context.Background(), tc, task.Task{
		Key:     "publish",
		Worker:  "upload",
		Payload: map[string]any{"url": "http://localhost", "file": "/no/such/file"},
	})
	assert.ErrorContains(t, err, "failed to open source file")
}
