package hcl

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/pool"
	"github.com/vk/taskgridgo/internal/task"
)

// GridExt is the file extension grid files are discovered by.
const GridExt = ".grid"

// Grid is the consolidated model of every loaded grid file. Users may
// split their declarations across many files and directories; loading
// folds them into a single view so dependencies can span files.
type Grid struct {
	Settings Settings
	Pools    []pool.Config
	Tasks    []task.Task
}

// Settings carries the engine-level knobs from the settings block. Zero
// values mean "not set"; the app layers its own defaults on top.
type Settings struct {
	Concurrency      int
	MaxRetries       int
	BaseBackoff      time.Duration
	MaxBackoff       time.Duration
	ProgressInterval time.Duration
}

// Load discovers, parses, and merges grid files. Each path may be a
// single file or a directory searched recursively for *.grid files.
// Declarations must not collide: a second settings block, pool name, or
// task key anywhere in the set is an error naming both files.
func Load(ctx context.Context, paths []string) (*Grid, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := discover(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		logger.Warn("No grid files found.", "paths", paths)
		return &Grid{}, nil
	}
	logger.Debug("Loading grid files.", "count", len(files))

	grid := &Grid{}
	parser := hclparse.NewParser()
	settingsFile := ""
	poolFiles := make(map[string]string)
	taskFiles := make(map[string]string)

	for _, file := range files {
		parsed, err := decodeFile(parser, file)
		if err != nil {
			return nil, err
		}

		if parsed.Settings != nil {
			if settingsFile != "" {
				return nil, fmt.Errorf("%s: duplicate settings block, already declared in %s", file, settingsFile)
			}
			settingsFile = file
			s, err := translateSettings(parsed.Settings)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			grid.Settings = s
		}

		for _, pb := range parsed.Pools {
			if prev, dup := poolFiles[pb.Name]; dup {
				return nil, fmt.Errorf("%s: duplicate pool %q, already declared in %s", file, pb.Name, prev)
			}
			poolFiles[pb.Name] = file
			grid.Pools = append(grid.Pools, pool.Config{Name: pb.Name, Capacity: pb.Capacity})
		}

		for _, tb := range parsed.Tasks {
			if prev, dup := taskFiles[tb.Key]; dup {
				return nil, fmt.Errorf("%s: duplicate task %q, already declared in %s", file, tb.Key, prev)
			}
			taskFiles[tb.Key] = file
			tk, err := translateTask(tb)
			if err != nil {
				return nil, fmt.Errorf("%s: task %q: %w", file, tb.Key, err)
			}
			grid.Tasks = append(grid.Tasks, tk)
		}
	}

	logger.Debug("Grid loaded.", "tasks", len(grid.Tasks), "pools", len(grid.Pools))
	return grid, nil
}

// discover expands the given paths: directories are walked recursively
// for grid files, plain files are taken as given. Walk order is lexical,
// which keeps submission order stable across loads.
func discover(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("grid path %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		walkErr := filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), GridExt) {
				files = append(files, path)
			}
			return nil
		})
		if walkErr != nil {
			return nil, fmt.Errorf("searching %s: %w", p, walkErr)
		}
	}
	return files, nil
}

func decodeFile(parser *hclparse.Parser, path string) (*gridFile, error) {
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %w", path, diags)
	}
	var parsed gridFile
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("decoding %s: %w", path, diags)
	}
	return &parsed, nil
}

func translateSettings(sb *settingsBlock) (Settings, error) {
	if sb.Concurrency < 0 {
		return Settings{}, fmt.Errorf("concurrency cannot be negative, got %d", sb.Concurrency)
	}
	if sb.MaxRetries < 0 {
		return Settings{}, fmt.Errorf("max_retries cannot be negative, got %d", sb.MaxRetries)
	}

	s := Settings{
		Concurrency: sb.Concurrency,
		MaxRetries:  sb.MaxRetries,
	}
	var err error
	if s.BaseBackoff, err = parseDuration("base_backoff", sb.BaseBackoff); err != nil {
		return Settings{}, err
	}
	if s.MaxBackoff, err = parseDuration("max_backoff", sb.MaxBackoff); err != nil {
		return Settings{}, err
	}
	if s.ProgressInterval, err = parseDuration("progress_interval", sb.ProgressInterval); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func translateTask(tb *taskBlock) (task.Task, error) {
	if tb.Worker == "" {
		return task.Task{}, fmt.Errorf("worker must not be empty")
	}

	payload, err := payloadMap(tb.Payload)
	if err != nil {
		return task.Task{}, err
	}
	timeout, err := parseDuration("timeout", tb.Timeout)
	if err != nil {
		return task.Task{}, err
	}

	tk := task.Task{
		Key:       tb.Key,
		Worker:    tb.Worker,
		Payload:   payload,
		Hints:     tb.Hints,
		Priority:  tb.Priority,
		Timeout:   timeout,
		DependsOn: tb.DependsOn,
	}
	if tb.Retries != nil {
		if *tb.Retries < 0 {
			return task.Task{}, fmt.Errorf("retries cannot be negative, got %d", *tb.Retries)
		}
		tk.Retry = &task.RetrySpec{MaxRetries: *tb.Retries}
	}
	return tk, nil
}

// parseDuration parses an optional duration attribute, where the empty
// string means zero.
func parseDuration(name, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s cannot be negative, got %s", name, raw)
	}
	return d, nil
}
