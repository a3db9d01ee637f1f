package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "almanac/internal/config"
	"almanac/internal/diag"
	"almanac/internal/pipeline"
)

func stubRun(t *testing.T, fn func(set pipeline.Settings, comp pipeline.Components) error) *bool {
	t.Helper()
	called := false
	orig := pipelineRun
	pipelineRun = func(ctx context.Context, comp pipeline.Components, set pipeline.Settings, logger *diag.Logger) ([]pipeline.Result, error) {
		called = true
		if fn != nil {
			return nil, fn(set, comp)
		}
		return nil, nil
	}
	t.Cleanup(func() { pipelineRun = orig })
	return &called
}

func TestRunInitConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	if code := run([]string{"--init-config=out"}); code != 0 {
		t.Fatalf("run return %d", code)
	}
	if _, err := os.Stat(filepath.Join("out", "almanac.json")); err != nil {
		t.Fatalf("config not generated: %v", err)
	}
	if _, err := os.Stat(filepath.Join("out", ".env")); err != nil {
		t.Fatalf(".env not generated: %v", err)
	}
	// 再次生成：配置已存在则失败
	if code := run([]string{"--init-config=out"}); code != 3 {
		t.Fatalf("expect 3, got %d", code)
	}
}

func TestRunInitConfigDefaultAndYAML(t *testing.T) {
	t.Chdir(t.TempDir())
	if code := run([]string{"--init-config"}); code != 0 {
		t.Fatalf("run return %d", code)
	}
	if _, err := os.Stat("almanac.json"); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if code := run([]string{"--init-config=conf/almanac.yaml"}); code != 0 {
		t.Fatalf("run return %d", code)
	}
	cfg, err := cfgpkg.LoadFile(filepath.Join("conf", "almanac.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "pairs", cfg.Mode)
}

func TestRunSuccessWithConfigJSONEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Concurrency = 2
	b, _ := json.Marshal(cfg)
	t.Setenv("ALMANAC_CONFIG_JSON", string(b))

	called := stubRun(t, func(set pipeline.Settings, _ pipeline.Components) error {
		assert.Equal(t, 2, set.Concurrency)
		assert.Equal(t, []string{"-"}, set.Inputs)
		return nil
	})
	if code := run(nil); code != 0 {
		t.Fatalf("run return %d", code)
	}
	if !*called {
		t.Fatalf("pipelineRun not called")
	}
}

func TestRunWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: points\nconcurrency: 3\n"), 0o644))

	called := stubRun(t, func(set pipeline.Settings, _ pipeline.Components) error {
		assert.Equal(t, 3, set.Concurrency)
		return nil
	})
	if code := run([]string{"--config", path}); code != 0 {
		t.Fatalf("run return %d", code)
	}
	assert.True(t, *called)
}

func TestRunDefaultConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile("almanac.json", []byte(`{"concurrency": 7}`), 0o644))
	called := stubRun(t, func(set pipeline.Settings, _ pipeline.Components) error {
		assert.Equal(t, 7, set.Concurrency)
		return nil
	})
	if code := run(nil); code != 0 {
		t.Fatalf("run return %d", code)
	}
	assert.True(t, *called)
}

func TestRunConfigFileNotFound(t *testing.T) {
	t.Chdir(t.TempDir())
	if code := run([]string{"--config", "missing.json"}); code != 3 {
		t.Fatalf("expect 3, got %d", code)
	}
}

func TestRunValidateError(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ALMANAC_MODE", "ranges")
	if code := run(nil); code != 3 {
		t.Fatalf("expect 3, got %d", code)
	}
}

func TestRunAssembleError(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ALMANAC_OPTIONS_READER_JSON", `{"unknown":1}`)
	if code := run(nil); code != 3 {
		t.Fatalf("expect 3, got %d", code)
	}
}

func TestRunBadFlag(t *testing.T) {
	t.Chdir(t.TempDir())
	if code := run([]string{"--no-such-flag"}); code != 3 {
		t.Fatalf("expect 3, got %d", code)
	}
	if code := run([]string{"--concurrency", "0"}); code != 3 {
		t.Fatalf("expect 3, got %d", code)
	}
}

func TestRunPipelineError(t *testing.T) {
	t.Chdir(t.TempDir())
	stubRun(t, func(pipeline.Settings, pipeline.Components) error { return errors.New("boom") })
	if code := run(nil); code != 1 {
		t.Fatalf("expect 1, got %d", code)
	}
}

// 优先级：CLI > ENV > 文件
func TestRunCLIOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile("almanac.json", []byte(`{"mode":"points","concurrency":2}`), 0o644))
	t.Setenv("ALMANAC_CONCURRENCY", "5")
	called := stubRun(t, func(set pipeline.Settings, _ pipeline.Components) error {
		assert.Equal(t, 9, set.Concurrency)
		assert.Equal(t, []string{"a.txt", "b.txt"}, set.Inputs)
		return nil
	})
	if code := run([]string{"--concurrency", "9", "--mode", "pairs", "a.txt", "b.txt"}); code != 0 {
		t.Fatalf("run return %d", code)
	}
	assert.True(t, *called)
}

// 真实流水线：示例文件在两种模式下写出答案
func TestRunEndToEnd(t *testing.T) {
	wd, _ := os.Getwd()
	dir := t.TempDir()
	b, err := os.ReadFile(filepath.Join(wd, "..", "..", "testdata", "example.txt"))
	require.NoError(t, err)
	t.Chdir(dir)
	require.NoError(t, os.WriteFile("example.txt", b, 0o644))

	for mode, want := range map[string]string{"points": "35\n", "pairs": "46\n"} {
		out := filepath.Join(dir, "out-"+mode)
		if code := run([]string{"--mode", mode, "--output-dir", out, "example.txt"}); code != 0 {
			t.Fatalf("%s: run return %d", mode, code)
		}
		got, err := os.ReadFile(filepath.Join(out, "example.txt.answer"))
		require.NoError(t, err)
		assert.Equal(t, want, string(got), mode)
	}
	// 格式错误为运行期失败
	require.NoError(t, os.WriteFile("bad.txt", []byte("seeds 1 2\n"), 0o644))
	if code := run([]string{"--output-dir", "out-bad", "bad.txt"}); code != 1 {
		t.Fatalf("expect 1, got %d", code)
	}
}

func TestLoadDotEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	content := "# c\nexport ALMANAC_TEST_A=\"x y\"\nALMANAC_TEST_B='z'\nALMANAC_TEST_C=keep\nnoeq\n"
	require.NoError(t, os.WriteFile(".env", []byte(content), 0o644))
	t.Setenv("ALMANAC_TEST_C", "orig")
	require.NoError(t, loadDotEnv(".env"))
	t.Cleanup(func() {
		os.Unsetenv("ALMANAC_TEST_A")
		os.Unsetenv("ALMANAC_TEST_B")
	})
	assert.Equal(t, "x y", os.Getenv("ALMANAC_TEST_A"))
	assert.Equal(t, "z", os.Getenv("ALMANAC_TEST_B"))
	assert.Equal(t, "orig", os.Getenv("ALMANAC_TEST_C"))
	require.NoError(t, loadDotEnv("missing.env"))
}

// .env 不可读时继续运行，并留下 warn 日志
func TestRunDotEnvErrorLogged(t *testing.T) {
	t.Chdir(t.TempDir())
	// 同名目录：Open 成功但读取失败
	require.NoError(t, os.Mkdir(".env", 0o755))
	require.Error(t, loadDotEnv(".env"))
	t.Setenv("ALMANAC_CONFIG_JSON", "")
	called := stubRun(t, nil)
	if code := run(nil); code != 0 {
		t.Fatalf("run return %d", code)
	}
	require.True(t, *called)
	b, err := os.ReadFile(filepath.Join("logs", "almanac-current.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"level":"warn"`)
	assert.Contains(t, string(b), "load .env failed")
}

func TestPreflightCheckOutputDir(t *testing.T) {
	dir := t.TempDir()
	cfg := cfgpkg.Defaults()
	require.NoError(t, preflightCheckOutputDir(cfg), "stdout writer 跳过")

	cfg.Components.Writer = "fs"
	cfg.Options.Writer = json.RawMessage(`{"output_dir":` + mustJSON(dir) + `}`)
	require.NoError(t, preflightCheckOutputDir(cfg))

	cfg.Options.Writer = json.RawMessage(`{"output_dir":` + mustJSON(filepath.Join(dir, "new")) + `}`)
	require.NoError(t, preflightCheckOutputDir(cfg))

	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	cfg.Options.Writer = json.RawMessage(`{"output_dir":` + mustJSON(file) + `}`)
	require.Error(t, preflightCheckOutputDir(cfg))
}

func TestDumpConfig(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, dumpConfig(&buf, cfgpkg.Defaults()))
	assert.Contains(t, buf.String(), `"mode": "pairs"`)
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
