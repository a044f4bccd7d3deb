package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/taskgridgo/internal/app"
	"github.com/vk/taskgridgo/internal/registry"
	"github.com/vk/taskgridgo/internal/runstore"
	"github.com/vk/taskgridgo/internal/task"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App

	// Run is the stored record of the grid run, including every task's
	// terminal result. Zero when the app never got as far as executing.
	Run runstore.Run
}

// Result returns the terminal result recorded for the given task key,
// failing the test when there is none.
func (h *HarnessResult) Result(t *testing.T, key string) task.Result {
	t.Helper()
	res, ok := h.Run.Results[key]
	require.True(t, ok, "no result recorded for task %q", key)
	return res
}

// RunGrid writes the given .grid files into a temp directory and runs the
// app against it end to end with the built-in worker modules.
func RunGrid(t *testing.T, files map[string]string) *HarnessResult {
	return RunGridWithWorkers(t, files, nil)
}

// RunGridWithWorkers is RunGrid with a hook to register extra test workers
// before the run starts.
func RunGridWithWorkers(t *testing.T, files map[string]string, register func(*registry.Registry)) *HarnessResult {
	t.Helper()
	return RunGridWithContext(context.Background(), t, files, register)
}

// RunGridWithContext provides the full harness: temp grid directory, debug
// logging into a SafeBuffer, optional extra workers, and the run record
// fished back out of the store once the app returns.
func RunGridWithContext(ctx context.Context, t *testing.T, files map[string]string, register func(*registry.Registry)) *HarnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	for name, content := range files {
		filePath := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))
	}

	cfg, err := app.NewConfig(app.Config{
		GridPaths: []string{tmpDir},
		LogLevel:  "debug",
		LogFormat: "text",
	})
	require.NoError(t, err, "harness config must be valid")

	logBuffer := &SafeBuffer{}
	testApp, err := app.New(ctx, logBuffer, cfg)
	if err != nil {
		return &HarnessResult{LogOutput: logBuffer.String(), Err: err}
	}
	t.Cleanup(testApp.Close)

	if register != nil {
		register(testApp.Registry())
	}

	runErr := testApp.Run(ctx)

	result := &HarnessResult{
		LogOutput: logBuffer.String(),
		Err:       runErr,
		App:       testApp,
	}
	if runs := testApp.Store().List(); len(runs) > 0 {
		result.Run = runs[0]
	}

	if os.Getenv("TASKGRID_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), result.LogOutput)
	}
	return result
}
