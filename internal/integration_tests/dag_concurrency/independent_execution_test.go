package integration_tests

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vk/taskgridgo/internal/registry"
	"github.com/vk/taskgridgo/internal/testutil"
)

// TestDagConcurrency_IndependentExecution validates that tasks without any
// dependency relationship run concurrently under the default concurrency.
func TestDagConcurrency_IndependentExecution(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	gridHCL := `
        task "one" {
            worker = "test_sleeper"
        }
        task "two" {
            worker = "test_sleeper"
        }
        task "three" {
            worker = "test_sleeper"
        }
    `
	recorder := testutil.NewRecorder()

	// --- Act ---
	result := testutil.RunGridWithWorkers(t, map[string]string{"main.grid": gridHCL}, func(r *registry.Registry) {
		r.RegisterWorker("test_sleeper", recorder.Worker(100*time.Millisecond))
	})

	// --- Assert ---
	require.NoError(t, result.Err, "test run failed unexpectedly")
	require.Equal(t, 3, result.Run.Counts.Success)
	require.GreaterOrEqual(t, recorder.Peak(), 2,
		"independent tasks should have run concurrently")
}
