package http_request

import (
	"context"
	"fmt"

	"github.com/vk/taskgridgo/internal/httpclient"
	"github.com/vk/taskgridgo/internal/payload"
	"github.com/vk/taskgridgo/internal/registry"
	"github.com/vk/taskgridgo/internal/task"
	"github.com/vk/taskgridgo/internal/taskctx"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the payload accepted by the 'http_request' worker.
type Input struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string

	// ExpectStatus pins the exact status code that counts as success.
	// Zero accepts any 2xx.
	ExpectStatus int
}

// parseInput decodes a task payload into an Input.
func parseInput(p map[string]any) (*Input, error) {
	url, err := payload.String(p, "url")
	if err != nil {
		return nil, err
	}
	method, err := payload.StringOr(p, "method", "GET")
	if err != nil {
		return nil, err
	}
	headers, err := payload.StringMap(p, "headers")
	if err != nil {
		return nil, err
	}
	body, err := payload.StringOr(p, "body", "")
	if err != nil {
		return nil, err
	}
	expect, err := payload.IntOr(p, "expect_status", 0)
	if err != nil {
		return nil, err
	}
	return &Input{URL: url, Method: method, Headers: headers, Body: body, ExpectStatus: expect}, nil
}

// OnRun performs one HTTP exchange through the run's shared client. A
// response outside the expected status is an error, so the engine's retry
// policy applies to flaky endpoints.
func OnRun(ctx context.Context, tc *taskctx.Context, t task.Task) (any, error) {
	input, err := parseInput(t.Payload)
	if err != nil {
		return nil, err
	}

	tc.Logger().Info("Making HTTP request", "method", input.Method, "url", input.URL)

	var body []byte
	if input.Body != "" {
		body = []byte(input.Body)
	}
	resp, err := tc.Request(ctx, httpclient.Request{
		Method:  input.Method,
		URL:     input.URL,
		Headers: input.Headers,
		Body:    body,
	})
	if err != nil {
		return nil, err
	}

	if input.ExpectStatus > 0 {
		if resp.StatusCode != input.ExpectStatus {
			return nil, fmt.Errorf("unexpected status %d, want %d", resp.StatusCode, input.ExpectStatus)
		}
	} else if !resp.OK {
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(resp.Body),
		"latency_ms":  resp.Latency.Milliseconds(),
	}, nil
}

// Register registers the worker with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterWorker("http_request", OnRun)
}
