// Package config loads, interpolates and validates the YAML project file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/benchforge/internal/parse"
)

// DefaultFile is the config file looked up when none is given.
const DefaultFile = "benchforge.yaml"

type Config struct {
	Version  *int               `yaml:"version" json:"version" validate:"required"`
	Project  Project            `yaml:"project" json:"project"`
	Env      map[string]string  `yaml:"env,omitempty" json:"env,omitempty" validate:"omitempty,dive,keys,notblank,endkeys"`
	EnvFile  string             `yaml:"env_file,omitempty" json:"env_file,omitempty"`
	Executor Executor           `yaml:"executor,omitempty" json:"executor,omitempty"`
	Build    Build              `yaml:"build" json:"build"`
	Test     Test               `yaml:"test,omitempty" json:"test,omitempty"`
	Storage  Storage            `yaml:"storage" json:"storage"`
	Policy   Policy             `yaml:"policy,omitempty" json:"policy,omitempty"`
	Targets  map[string]*Target `yaml:"targets" json:"targets" validate:"required,min=1,dive,keys,notblank,endkeys,required"`

	// Path is the absolute path of the loaded file; relative paths in the
	// config resolve against its directory.
	Path string `yaml:"-" json:"-"`
	// Resolved is the interpolated tree as it was validated.
	Resolved map[string]any `yaml:"-" json:"-"`
}

type Project struct {
	Name      string `yaml:"name,omitempty" json:"name,omitempty"`
	Workspace string `yaml:"workspace" json:"workspace" validate:"notblank"`
}

// Executor kinds.
const (
	ExecutorLocal  = "local"
	ExecutorDocker = "docker"
)

type Executor struct {
	Kind       string `yaml:"kind,omitempty" json:"kind,omitempty" validate:"omitempty,oneof=local docker"`
	Image      string `yaml:"image,omitempty" json:"image,omitempty" validate:"required_if=Kind docker"`
	User       string `yaml:"user,omitempty" json:"user,omitempty"`
	TimeoutSec int    `yaml:"timeout_sec,omitempty" json:"timeout_sec,omitempty" validate:"min=0"`
}

type Build struct {
	ConfigureCmd []string `yaml:"configure_cmd" json:"configure_cmd" validate:"required,min=1,dive,notblank"`
	BuildCmd     []string `yaml:"build_cmd" json:"build_cmd" validate:"required,min=1,dive,notblank"`
	BuildDir     string   `yaml:"build_dir,omitempty" json:"build_dir,omitempty"`
}

type Test struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Cmd     []string `yaml:"cmd,omitempty" json:"cmd,omitempty" validate:"omitempty,dive,notblank"`
}

type Storage struct {
	Root        string `yaml:"root" json:"root" validate:"notblank"`
	DB          string `yaml:"db,omitempty" json:"db,omitempty"`
	MetricsFile string `yaml:"metrics_file,omitempty" json:"metrics_file,omitempty"`
}

type Policy struct {
	MinPassRate *float64 `yaml:"min_pass_rate,omitempty" json:"min_pass_rate,omitempty" validate:"omitempty,min=0,max=1"`
	// FailFast is accepted and validated but never shortens a run: every
	// measured invocation always executes.
	FailFast    bool     `yaml:"fail_fast,omitempty" json:"fail_fast,omitempty"`
}

type Target struct {
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Run         Run      `yaml:"run" json:"run"`
	Parse       *Parse   `yaml:"parse,omitempty" json:"parse,omitempty"`
	Success     *Success `yaml:"success,omitempty" json:"success,omitempty"`
}

type Run struct {
	Cmd        []string `yaml:"cmd,omitempty" json:"cmd,omitempty" validate:"omitempty,dive,notblank"`
	ExeGlob    string   `yaml:"exe_glob,omitempty" json:"exe_glob,omitempty"`
	Args       []string `yaml:"args,omitempty" json:"args,omitempty"`
	Runs       *int     `yaml:"runs,omitempty" json:"runs,omitempty" validate:"omitempty,min=1"`
	WarmupRuns *int     `yaml:"warmup_runs,omitempty" json:"warmup_runs,omitempty" validate:"omitempty,min=0"`
}

type Parse struct {
	Kind  string `yaml:"kind" json:"kind" validate:"eq=regex"`
	Rules []Rule `yaml:"rules" json:"rules" validate:"required,min=1,dive"`
}

type Rule struct {
	Name     string   `yaml:"name" json:"name" validate:"notblank"`
	Pattern  string   `yaml:"pattern" json:"pattern" validate:"notblank"`
	Type     string   `yaml:"type,omitempty" json:"type,omitempty" validate:"omitempty,oneof=float int enum str string"`
	Required bool     `yaml:"required,omitempty" json:"required,omitempty"`
	Units    string   `yaml:"units,omitempty" json:"units,omitempty"`
	Better   string   `yaml:"better,omitempty" json:"better,omitempty" validate:"omitempty,oneof=higher lower"`
	Enum     []string `yaml:"enum,omitempty" json:"enum,omitempty" validate:"required_if=Type enum,dive,required"`
}

type Success struct {
	ExitCode *int   `yaml:"exit_code,omitempty" json:"exit_code,omitempty" validate:"omitempty,min=0"`
	PassRule string `yaml:"pass_rule,omitempty" json:"pass_rule,omitempty"`
}

// Load reads, interpolates, decodes and validates a config file.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &Error{Kind: LoadError, Msg: "resolving config path " + path, Err: err}
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errorf(LoadError, "config file not found: %s", abs)
	}
	if err != nil {
		return nil, &Error{Kind: LoadError, Msg: "reading config " + abs, Err: err}
	}
	if info.IsDir() {
		return nil, errorf(LoadError, "config path is not a file: %s", abs)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, &Error{Kind: LoadError, Msg: "reading config " + abs, Err: err}
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &Error{Kind: LoadError, Msg: "parsing YAML in " + abs, Err: err}
	}
	if raw == nil {
		return nil, errorf(LoadError, "config file is empty: %s", abs)
	}
	root, ok := raw.(map[string]any)
	if !ok {
		return nil, errorf(LoadError, "config root must be a mapping, got %s", typeName(raw))
	}

	resolved, err := Interpolate(root)
	if err != nil {
		return nil, err
	}

	cfg, err := decode(resolved)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	cfg.Path = abs
	cfg.Resolved = resolved
	return cfg, nil
}

// decode converts the interpolated tree to the typed Config. Type mismatches
// (a list where a string belongs) surface as validation errors.
func decode(tree map[string]any) (*Config, error) {
	data, err := yaml.Marshal(tree)
	if err != nil {
		return nil, &Error{Kind: ValidationError, Msg: "re-encoding config", Err: err}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &Error{Kind: ValidationError, Msg: "invalid value types", Err: err}
	}
	return &cfg, nil
}

func (c *Config) baseDir() string {
	if c.Path == "" {
		wd, _ := os.Getwd()
		return wd
	}
	return filepath.Dir(c.Path)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.baseDir(), p)
}

// Workspace is project.workspace as an absolute path.
func (c *Config) Workspace() string { return c.resolve(c.Project.Workspace) }

// StorageRoot is storage.root as an absolute path.
func (c *Config) StorageRoot() string { return c.resolve(c.Storage.Root) }

// DBPath is storage.db, defaulting to runs.db under the storage root.
func (c *Config) DBPath() string {
	if c.Storage.DB != "" {
		return c.resolve(c.Storage.DB)
	}
	return filepath.Join(c.StorageRoot(), "runs.db")
}

// MetricsFile is storage.metrics_file as an absolute path, or "" when unset.
func (c *Config) MetricsFile() string {
	if c.Storage.MetricsFile == "" {
		return ""
	}
	return c.resolve(c.Storage.MetricsFile)
}

// EnvFilePath is env_file as an absolute path, or "" when unset.
func (c *Config) EnvFilePath() string {
	if c.EnvFile == "" {
		return ""
	}
	return c.resolve(c.EnvFile)
}

// MinPassRate defaults to 1.0.
func (c *Config) MinPassRate() float64 {
	if c.Policy.MinPassRate == nil {
		return 1.0
	}
	return *c.Policy.MinPassRate
}

// Timeout is the per-invocation timeout; zero means none.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Executor.TimeoutSec) * time.Second
}

// TargetIDs returns the target ids in sorted order.
func (c *Config) TargetIDs() []string {
	ids := make([]string, 0, len(c.Targets))
	for id := range c.Targets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Target looks up a target by id.
func (c *Config) Target(id string) (*Target, error) {
	t, ok := c.Targets[id]
	if !ok || t == nil {
		return nil, fmt.Errorf("unknown target: %q", id)
	}
	return t, nil
}

// Count is run.runs, defaulting to 1.
func (r Run) Count() int {
	if r.Runs == nil {
		return 1
	}
	return *r.Runs
}

// Warmups is run.warmup_runs, defaulting to 0.
func (r Run) Warmups() int {
	if r.WarmupRuns == nil {
		return 0
	}
	return *r.WarmupRuns
}

// ExpectedExitCode is success.exit_code, defaulting to 0.
func (t *Target) ExpectedExitCode() int {
	if t.Success == nil || t.Success.ExitCode == nil {
		return 0
	}
	return *t.Success.ExitCode
}

// PassRule is success.pass_rule, or "" when unset.
func (t *Target) PassRule() string {
	if t.Success == nil {
		return ""
	}
	return t.Success.PassRule
}

// Rules converts the target's parse rules; nil when the target has no parse
// section.
func (t *Target) Rules() ([]parse.Rule, error) {
	if t.Parse == nil {
		return nil, nil
	}
	out := make([]parse.Rule, 0, len(t.Parse.Rules))
	for _, r := range t.Parse.Rules {
		kind, err := parse.ParseKind(r.Type)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		better, err := parse.ParseDirection(r.Better)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		out = append(out, parse.Rule{
			Name:     r.Name,
			Pattern:  r.Pattern,
			Kind:     kind,
			Required: r.Required,
			Units:    r.Units,
			Enum:     r.Enum,
			Better:   better,
		})
	}
	return out, nil
}
