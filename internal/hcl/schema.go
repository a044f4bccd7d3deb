package hcl

import (
	"github.com/zclconf/go-cty/cty"
)

// gridFile is the top-level decode target for a single .grid file.
type gridFile struct {
	Settings *settingsBlock `hcl:"settings,block"`
	Pools    []*poolBlock   `hcl:"pool,block"`
	Tasks    []*taskBlock   `hcl:"task,block"`
}

// settingsBlock carries engine-level knobs. At most one settings block is
// allowed across all loaded files.
type settingsBlock struct {
	Concurrency      int    `hcl:"concurrency,optional"`
	MaxRetries       int    `hcl:"max_retries,optional"`
	BaseBackoff      string `hcl:"base_backoff,optional"`
	MaxBackoff       string `hcl:"max_backoff,optional"`
	ProgressInterval string `hcl:"progress_interval,optional"`
}

// poolBlock declares one named resource pool.
type poolBlock struct {
	Name     string `hcl:"name,label"`
	Capacity int    `hcl:"capacity"`
}

// taskBlock declares one task. Durations are strings ("30s", "250ms") and
// the payload is an arbitrary HCL object captured as a cty.Value.
type taskBlock struct {
	Key       string            `hcl:"task_key,label"`
	Worker    string            `hcl:"worker"`
	Priority  int               `hcl:"priority,optional"`
	Timeout   string            `hcl:"timeout,optional"`
	DependsOn []string          `hcl:"depends_on,optional"`
	Retries   *int              `hcl:"retries,optional"`
	Payload   cty.Value         `hcl:"payload,optional"`
	Hints     map[string]string `hcl:"hints,optional"`
}
