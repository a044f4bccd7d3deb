package upload

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/vk/taskgridgo/internal/payload"
	"github.com/vk/taskgridgo/internal/registry"
	"github.com/vk/taskgridgo/internal/task"
	"github.com/vk/taskgridgo/internal/taskctx"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// httpClient is shared across executions to reuse TCP connections.
// TODO: Route uploads through the run's shared HTTP client once it can
// stream request bodies.
var httpClient = &http.Client{}

// Input defines the payload accepted by the 'upload' worker.
type Input struct {
	URL         string
	File        string
	ContentType string
}

// parseInput decodes a task payload into an Input.
func parseInput(p map[string]any) (*Input, error) {
	url, err := payload.String(p, "url")
	if err != nil {
		return nil, err
	}
	file, err := payload.String(p, "file")
	if err != nil {
		return nil, err
	}
	contentType, err := payload.StringOr(p, "content_type", "")
	if err != nil {
		return nil, err
	}
	return &Input{URL: url, File: file, ContentType: contentType}, nil
}

// OnRun streams a local file to the target URL with a single HTTP PUT, the
// shape pre-signed upload URLs expect. The body is streamed straight from
// disk, so large files never sit in memory.
func OnRun(ctx context.Context, tc *taskctx.Context, t task.Task) (any, error) {
	input, err := parseInput(t.Payload)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(input.File)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file %q: %w", input.File, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat source file %q: %w", input.File, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, input.URL, file)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}

	contentType := input.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(input.File))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = stat.Size()

	tc.Logger().Info("Uploading file", "file", input.File, "size", stat.Size(), "contentType", contentType)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upload failed with status: %s", resp.Status)
	}

	tc.Logger().Info("Successfully uploaded file", "status", resp.Status)

	return map[string]any{
		"status_code":  resp.StatusCode,
		"bytes_sent":   stat.Size(),
		"content_type": contentType,
	}, nil
}

// Register registers the worker with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterWorker("upload", OnRun)
}
