package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/benchforge/internal/config"
	"github.com/signalnine/benchforge/internal/parse"
)

func TestLoadMinimal(t *testing.T) {
	cfg, err := config.Load("../../testdata/minimal.yaml")
	require.NoError(t, err)

	dir, err := filepath.Abs("../../testdata")
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Workspace())
	assert.Equal(t, filepath.Join(dir, "runs"), cfg.StorageRoot())
	assert.Equal(t, filepath.Join(dir, "runs", "runs.db"), cfg.DBPath())
	assert.Empty(t, cfg.MetricsFile())
	assert.Equal(t, 1.0, cfg.MinPassRate())
	assert.Equal(t, time.Duration(0), cfg.Timeout())
	assert.Equal(t, []string{"hello"}, cfg.TargetIDs())

	target, err := cfg.Target("hello")
	require.NoError(t, err)
	assert.Equal(t, 1, target.Run.Count())
	assert.Equal(t, 0, target.Run.Warmups())
	assert.Equal(t, 0, target.ExpectedExitCode())
	assert.Empty(t, target.PassRule())
	rules, err := target.Rules()
	require.NoError(t, err)
	assert.Nil(t, rules)

	_, err = cfg.Target("nope")
	assert.Error(t, err)
}

func TestLoadFull(t *testing.T) {
	cfg, err := config.Load("../../testdata/full.yaml")
	require.NoError(t, err)

	assert.Equal(t, "vector-kernels", cfg.Project.Name)
	assert.Equal(t, "0", cfg.Env["CUDA_VISIBLE_DEVICES"])
	assert.Equal(t, "build", cfg.Env["BUILD_DIR"])
	assert.Equal(t, "${not.a.ref}", cfg.Env["LITERAL"])
	assert.Equal(t, []string{"cmake", "-S", ".", "-B", "build", "-DCMAKE_BUILD_TYPE=Release"}, cfg.Build.ConfigureCmd)
	assert.Equal(t, 0.8, cfg.MinPassRate())
	assert.Equal(t, 120*time.Second, cfg.Timeout())
	assert.Equal(t, []string{"smoke", "vec_add"}, cfg.TargetIDs())
	assert.True(t, strings.HasSuffix(cfg.DBPath(), filepath.Join("index", "runs.db")))
	assert.True(t, strings.HasSuffix(cfg.EnvFilePath(), "bench.env"))

	vec, err := cfg.Target("vec_add")
	require.NoError(t, err)
	assert.Equal(t, "build/**/vec_add*", vec.Run.ExeGlob)
	assert.Equal(t, 5, vec.Run.Count())
	assert.Equal(t, 1, vec.Run.Warmups())
	assert.Equal(t, "status", vec.PassRule())

	rules, err := vec.Rules()
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, parse.KindEnum, rules[0].Kind)
	assert.True(t, rules[0].Required)
	assert.Equal(t, parse.KindFloat, rules[1].Kind)
	assert.Equal(t, parse.DirectionLower, rules[1].Better)
	assert.Equal(t, "ms", rules[1].Units)
	assert.Equal(t, parse.KindInt, rules[2].Kind)

	assert.Equal(t, "build", cfg.Resolved["env"].(map[string]any)["BUILD_DIR"])
}

func TestLoadMissing(t *testing.T) {
	_, err := config.Load("nonexistent.yaml")
	requireKind(t, err, config.LoadError)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadInvalid(t *testing.T) {
	_, err := config.Load("../../testdata/invalid.yaml")
	requireKind(t, err, config.LoadError)
}

func TestLoadDirectory(t *testing.T) {
	_, err := config.Load(t.TempDir())
	requireKind(t, err, config.LoadError)
}

func TestLoadEmptyAndNonMapping(t *testing.T) {
	_, err := config.Load(writeConfig(t, ""))
	requireKind(t, err, config.LoadError)
	assert.Contains(t, err.Error(), "empty")

	_, err = config.Load(writeConfig(t, "- a\n- b\n"))
	requireKind(t, err, config.LoadError)
	assert.Contains(t, err.Error(), "mapping")
}

const baseYAML = `
version: 1
project: {workspace: .}
build: {configure_cmd: ["true"], build_cmd: ["true"]}
storage: {root: runs}
`

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{"missing version", `
project: {workspace: .}
build: {configure_cmd: ["true"], build_cmd: ["true"]}
storage: {root: runs}
targets: {a: {run: {cmd: ["x"]}}}`, "version"},
		{"bad version", strings.Replace(baseYAML, "version: 1", "version: 2", 1) + `targets: {a: {run: {cmd: ["x"]}}}`, "version"},
		{"no workspace", strings.Replace(baseYAML, "workspace: .", "workspace: ' '", 1) + `targets: {a: {run: {cmd: ["x"]}}}`, "project.workspace"},
		{"no build cmd", strings.Replace(baseYAML, `build_cmd: ["true"]`, `build_cmd: []`, 1) + `targets: {a: {run: {cmd: ["x"]}}}`, "build.build_cmd"},
		{"no storage root", strings.Replace(baseYAML, "root: runs", "db: x.db", 1) + `targets: {a: {run: {cmd: ["x"]}}}`, "storage.root"},
		{"no targets", baseYAML + `targets: {}`, "targets"},
		{"both cmd and glob", baseYAML + `targets: {a: {run: {cmd: ["x"], exe_glob: "bin/*"}}}`, "exactly one"},
		{"neither cmd nor glob", baseYAML + `targets: {a: {run: {runs: 2}}}`, "exactly one"},
		{"args with cmd", baseYAML + `targets: {a: {run: {cmd: ["x"], args: ["-v"]}}}`, "run.args"},
		{"zero runs", baseYAML + `targets: {a: {run: {cmd: ["x"], runs: 0}}}`, "runs"},
		{"negative warmups", baseYAML + `targets: {a: {run: {cmd: ["x"], warmup_runs: -1}}}`, "warmup_runs"},
		{"pass rate too high", baseYAML + "policy: {min_pass_rate: 1.5}\n" + `targets: {a: {run: {cmd: ["x"]}}}`, "min_pass_rate"},
		{"test enabled without cmd", baseYAML + "test: {enabled: true}\n" + `targets: {a: {run: {cmd: ["x"]}}}`, "test.cmd"},
		{"bad parse kind", baseYAML + `targets: {a: {run: {cmd: ["x"]}, parse: {kind: json, rules: [{name: t, pattern: x}]}}}`, "kind"},
		{"empty rules", baseYAML + `targets: {a: {run: {cmd: ["x"]}, parse: {kind: regex, rules: []}}}`, "rules"},
		{"bad rule type", baseYAML + `targets: {a: {run: {cmd: ["x"]}, parse: {kind: regex, rules: [{name: t, pattern: x, type: bool}]}}}`, "type"},
		{"enum without values", baseYAML + `targets: {a: {run: {cmd: ["x"]}, parse: {kind: regex, rules: [{name: t, pattern: x, type: enum}]}}}`, "enum"},
		{"duplicate rule", baseYAML + `targets: {a: {run: {cmd: ["x"]}, parse: {kind: regex, rules: [{name: t, pattern: x}, {name: t, pattern: y}]}}}`, "duplicate"},
		{"bad regex", baseYAML + `targets: {a: {run: {cmd: ["x"]}, parse: {kind: regex, rules: [{name: t, pattern: "(x"}]}}}`, "pattern"},
		{"bad better", baseYAML + `targets: {a: {run: {cmd: ["x"]}, parse: {kind: regex, rules: [{name: t, pattern: x, better: up}]}}}`, "better"},
		{"negative exit code", baseYAML + `targets: {a: {run: {cmd: ["x"]}, success: {exit_code: -1}}}`, "exit_code"},
		{"pass rule without parse", baseYAML + `targets: {a: {run: {cmd: ["x"]}, success: {pass_rule: status}}}`, "no parse section"},
		{"unknown pass rule", baseYAML + `targets: {a: {run: {cmd: ["x"]}, parse: {kind: regex, rules: [{name: t, pattern: x}]}, success: {pass_rule: status}}}`, "defined parse rule"},
		{"docker without image", baseYAML + "executor: {kind: docker}\n" + `targets: {a: {run: {cmd: ["x"]}}}`, "image"},
		{"list where string belongs", strings.Replace(baseYAML, "root: runs", "root: [a, b]", 1) + `targets: {a: {run: {cmd: ["x"]}}}`, "types"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.yaml))
			requireKind(t, err, config.ValidationError)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestInterpolationErrors(t *testing.T) {
	tests := []struct {
		name string
		ref  string
	}{
		{"missing key", "${build.nope}"},
		{"non-scalar", "${build}"},
		{"through a list", "${build.configure_cmd.x}"},
		{"null value", "${nothing}"},
		{"leading dot", "${.build}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yaml := baseYAML + "nothing: null\n" + `targets: {a: {run: {cmd: ["` + tt.ref + `"]}}}`
			_, err := config.Load(writeConfig(t, yaml))
			requireKind(t, err, config.InterpolationError)
		})
	}
}

func TestInterpolateSinglePass(t *testing.T) {
	root := map[string]any{
		"a":    "${b}",
		"b":    "${c}",
		"c":    "deep",
		"n":    3,
		"f":    1.5,
		"flag": true,
		"list": []any{"x-${c}", map[string]any{"k": "${n}/${f}/${flag}"}},
	}
	out, err := config.Interpolate(root)
	require.NoError(t, err)
	assert.Equal(t, "${c}", out["a"], "referenced values are not expanded again")
	assert.Equal(t, "deep", out["b"])
	assert.Equal(t, "x-deep", out["list"].([]any)[0])
	assert.Equal(t, "3/1.5/true", out["list"].([]any)[1].(map[string]any)["k"])
	assert.Equal(t, "${b}", root["a"], "input is not mutated")
}

func TestInterpolateEscape(t *testing.T) {
	got, err := config.InterpolateString(map[string]any{"x": "1"}, `a=\${x} b=${x}`)
	require.NoError(t, err)
	assert.Equal(t, "a=${x} b=1", got)
}

func TestInterpolateKeepsEscapesInReferencedValues(t *testing.T) {
	root := map[string]any{"lit": `\${not.a.ref}`}
	got, err := config.InterpolateString(root, `v=${lit} w=\${lit}`)
	require.NoError(t, err)
	assert.Equal(t, `v=\${not.a.ref} w=${lit}`, got)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func requireKind(t *testing.T, err error, kind config.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	var cerr *config.Error
	require.True(t, errors.As(err, &cerr), "want *config.Error, got %T: %v", err, err)
	assert.Equal(t, kind, cerr.Kind, err.Error())
}
