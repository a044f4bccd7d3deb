package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/vk/taskgridgo/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// envOr returns the named environment variable, or fallback when unset.
func envOr(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return fallback
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
// String flags fall back to TASKGRID_* environment variables before their
// built-in defaults.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("taskgridgo", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
TaskGridGo - A dependency-aware, concurrency-first batch task runner.

Usage:
  taskgridgo [options] [GRID_PATH...]

Arguments:
  GRID_PATH
    Path to a single .grid file or a directory containing .grid files.
    May be repeated. Optional when --api-port is set.

Options:
`)
		flagSet.PrintDefaults()
	}

	gridFlag := flagSet.String("grid", "", "Path to the grid file or directory.")
	gFlag := flagSet.String("g", "", "Path to the grid file or directory (shorthand).")
	concurrencyFlag := flagSet.Int("concurrency", 0, "Max tasks running at once. 0 defers to the grid's settings block.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	apiPortFlag := flagSet.Int("api-port", 0, "Port for the run API server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", envOr("TASKGRID_LOG_FORMAT", "json"), "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", envOr("TASKGRID_LOG_LEVEL", "info"), "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	automationFlag := flagSet.String("automation-url", envOr("TASKGRID_AUTOMATION_URL", ""), "Socket.IO endpoint for automation tasks. Empty is disabled.")
	forwardFlag := flagSet.String("forward-url", envOr("TASKGRID_FORWARD_URL", ""), "Socket.IO server to mirror progress events to. Empty is disabled.")
	progressFlag := flagSet.Duration("progress-interval", 0, "Interval between progress stats events. 0 defers to the grid's settings block.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	var paths []string
	if *gridFlag != "" {
		paths = append(paths, *gridFlag)
	}
	if *gFlag != "" {
		paths = append(paths, *gFlag)
	}
	paths = append(paths, flagSet.Args()...)
	slog.Debug("Grid paths determined.", "paths", paths)

	if len(paths) == 0 && *apiPortFlag <= 0 {
		slog.Debug("No grid path provided and no API port, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		GridPaths:        paths,
		LogFormat:        logFormat,
		LogLevel:         logLevel,
		Concurrency:      *concurrencyFlag,
		HealthcheckPort:  *healthPortFlag,
		APIPort:          *apiPortFlag,
		AutomationURL:    *automationFlag,
		ForwardURL:       *forwardFlag,
		ProgressInterval: *progressFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
