package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cfgpkg "almanac/internal/config"
	"almanac/internal/diag"
	"almanac/internal/pipeline"
)

var pipelineRun = pipeline.Run

// 退出码：0 成功；1 运行期失败；3 配置/装配失败。
const (
	exitOK     = 0
	exitRun    = 1
	exitConfig = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// cliFlags 收集命令行旗标；未显式设置的旗标不参与覆盖。
type cliFlags struct {
	config      string
	mode        string
	concurrency int
	logLevel    string
	writer      string
	outputDir   string
	initConfig  string
}

func run(args []string) int {
	code := exitOK
	cmd := newRootCmd(&code)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		// cobra 自身的参数解析错误
		if code == exitOK {
			code = exitConfig
		}
	}
	return code
}

func newRootCmd(code *int) *cobra.Command {
	var f cliFlags
	cmd := &cobra.Command{
		Use:   "almanac [inputs...]",
		Short: "求种子经多级区间映射后的最小位置",
		Long: `almanac 读取 almanac 文本（文件、目录或 "-" 表示 STDIN），
按 mode 解释 seeds 行（points: 单点；pairs: 起点+长度），
将初始区间依次通过每个 "<name> map:" 阶段，输出最小位置。

配置优先级：默认值 < 配置文件（JSON/YAML）或 ALMANAC_CONFIG_JSON < ALMANAC_* 环境变量 < 命令行。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			*code = execute(cmd, f, args)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", "", "配置文件路径（.json/.yaml/.yml）；缺省读取 ./almanac.json 或 ./almanac.yaml（若存在）")
	fl.StringVar(&f.mode, "mode", "", "seeds 解释方式：points|pairs（覆盖配置）")
	fl.IntVar(&f.concurrency, "concurrency", 0, "单文件内并发折叠的区间数（覆盖配置）")
	fl.StringVar(&f.logLevel, "log-level", "", "日志级别：debug|info|warn|error（覆盖配置）")
	fl.StringVar(&f.writer, "writer", "", "答案输出：stdout|fs（覆盖配置）")
	fl.StringVar(&f.outputDir, "output-dir", "", "fs writer 的输出目录（隐含 --writer fs）")
	fl.StringVar(&f.initConfig, "init-config", "", "在指定目录生成默认配置 almanac.json 与 .env 模板（不覆盖已有文件）；给出 .yaml 路径时生成 YAML")
	fl.Lookup("init-config").NoOptDefVal = "."
	return cmd
}

func execute(cmd *cobra.Command, f cliFlags, roots []string) int {
	start := time.Now()
	corrID := uuid.NewString()
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	envErr := loadDotEnv(".env")
	logger := diag.NewLogger(corrID, "info")
	defer func() { _ = logger.Sync() }()
	if envErr != nil {
		logger.Warn("config", string(diag.Classify(envErr)), "load .env failed: "+envErr.Error())
	}
	stderr := cmd.ErrOrStderr()

	// --init-config: 生成模板并退出
	if dest := strings.TrimSpace(f.initConfig); dest != "" {
		if err := initConfig(dest); err != nil {
			fprintf(stderr, "生成默认配置失败: %v\n", err)
			logger.Error("config", string(diag.Classify(err)), "init failed", &start)
			return exitConfig
		}
		return exitOK
	}

	cfg, err := loadConfig(f, roots, cmd)
	if err != nil {
		fprintf(stderr, "配置解析失败: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), "load failed", &start)
		return exitConfig
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		fprintf(stderr, "配置校验失败: %v\n", err)
		_ = dumpConfig(stderr, cfg)
		logger.Error("config", string(diag.Classify(err)), "validate failed", &start)
		return exitConfig
	}

	// 使用最终配置中的日志级别重建 logger
	_ = logger.Sync()
	logger = diag.NewLogger(corrID, cfg.Logging.Level)

	if err := preflightCheckOutputDir(cfg); err != nil {
		fprintf(stderr, "输出目录不可写或无法创建: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), "preflight failed", &start)
		return exitConfig
	}
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		fprintf(stderr, "装配失败: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), "assemble failed", &start)
		return exitConfig
	}

	logger.DebugStart("config", "effective", "", map[string]string{
		"inputs_count": strconv.Itoa(len(cfg.Inputs)),
		"concurrency":  strconv.Itoa(cfg.Concurrency),
		"mode":         cfg.Mode,
		"reader":       effOr(cfg.Components.Reader, "fs"),
		"parser":       effOr(cfg.Components.Parser, "almanac"),
		"writer":       effOr(cfg.Components.Writer, "stdout"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	t := logger.Start("pipeline", "run")
	res, err := pipelineRun(ctx, comp, set, logger)
	if err != nil {
		code := string(diag.Classify(err))
		logger.Error("pipeline", code, "first error", &start)
		diag.IncOp("pipeline", "error", "error")
		if code != string(diag.CodeUnknown) {
			diag.IncError("pipeline", code)
		}
		if !errors.Is(err, context.Canceled) {
			fprintf(stderr, "运行失败: %v\n", err)
		}
		return exitRun
	}
	t.Finish("run", int64(len(res)))
	diag.IncOp("pipeline", "finish", "success")
	dumpMetrics(logger)
	return exitOK
}

// loadConfig 合并：Defaults < 文件或 ALMANAC_CONFIG_JSON < ENV < CLI。
func loadConfig(f cliFlags, roots []string, cmd *cobra.Command) (cfgpkg.Config, error) {
	path := f.config
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	raw := os.Getenv(cfgpkg.EnvPrefix + "CONFIG_JSON")
	if path == "" && raw == "" {
		for _, cand := range []string{"almanac.json", "almanac.yaml", "almanac.yml"} {
			if _, err := os.Stat(cand); err == nil {
				path = cand
				break
			}
		}
	}

	cfg := cfgpkg.Defaults()
	switch {
	case path != "":
		base, err := cfgpkg.LoadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	case raw != "":
		base, err := cfgpkg.LoadJSON("", []byte(raw))
		if err != nil {
			return cfg, fmt.Errorf("%sCONFIG_JSON: %w", cfgpkg.EnvPrefix, err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, err
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	var overCLI cfgpkg.Config
	fl := cmd.Flags()
	if fl.Changed("mode") {
		overCLI.Mode = f.mode
	}
	if fl.Changed("concurrency") {
		if f.concurrency < 1 {
			return cfg, errors.New("--concurrency must be >= 1")
		}
		overCLI.Concurrency = f.concurrency
	}
	if fl.Changed("log-level") {
		overCLI.Logging.Level = f.logLevel
	}
	if fl.Changed("writer") {
		overCLI.Components.Writer = f.writer
	}
	if fl.Changed("output-dir") {
		overCLI.Components.Writer = "fs"
		b, err := json.Marshal(struct {
			OutputDir string `json:"output_dir"`
		}{f.outputDir})
		if err != nil {
			return cfg, err
		}
		overCLI.Options.Writer = b
	}
	if len(roots) > 0 {
		overCLI.Inputs = roots
	}
	return cfgpkg.Merge(cfg, overCLI), nil
}

func effOr(got, def string) string {
	if strings.TrimSpace(got) == "" {
		return def
	}
	return got
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	b, err := cfgpkg.Encode(c, "effective.json")
	if err != nil {
		return err
	}
	_, err = w.Write(append([]byte("有效配置:\n"), b...))
	return err
}

// dumpMetrics 在 debug 级别输出进程内计数快照。
func dumpMetrics(logger *diag.Logger) {
	m := diag.Snapshot()
	kv := make(map[string]string, len(m.Ops)+len(m.Errors))
	for k, v := range m.Ops {
		kv["op_total/"+k] = strconv.FormatInt(v, 10)
	}
	for k, v := range m.Errors {
		kv["error_total/"+k] = strconv.FormatInt(v, 10)
	}
	for k, v := range m.DurationMS {
		kv["op_duration_ms/"+k] = strconv.FormatInt(v, 10)
	}
	logger.DebugStart("metrics", "snapshot", "", kv)
}

// initConfig: dest 为目录时写 almanac.json；为 .json/.yaml/.yml 文件路径时按扩展名写该文件。
// 同目录生成 .env 模板。均不覆盖已存在文件。
func initConfig(dest string) error {
	cfgPath := dest
	switch strings.ToLower(filepath.Ext(dest)) {
	case ".json", ".yaml", ".yml":
	default:
		cfgPath = filepath.Join(dest, "almanac.json")
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return err
	}
	b, err := cfgpkg.Encode(cfgpkg.DefaultTemplateConfig(), cfgPath)
	if err != nil {
		return err
	}
	if err := writeExclusive(cfgPath, b); err != nil {
		return err
	}
	if err := writeExclusive(filepath.Join(filepath.Dir(cfgPath), ".env"), []byte(dotEnvTemplate)); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}
	return nil
}

// writeExclusive 仅创建新文件；已存在时返回 os.ErrExist。
func writeExclusive(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

const dotEnvTemplate = `# almanac .env 模板（由 --init-config 生成）
# 优先级：CLI > ENV(.env) > 配置文件
# 空值表示未设置。

# 配置来源（可二选一）
ALMANAC_CONFIG_FILE=
ALMANAC_CONFIG_JSON=

# 运行参数覆盖
ALMANAC_INPUTS=
ALMANAC_CONCURRENCY=
ALMANAC_MODE=
ALMANAC_LOG_LEVEL=

# 组件选择
ALMANAC_COMPONENTS_READER=
ALMANAC_COMPONENTS_PARSER=
ALMANAC_COMPONENTS_WRITER=

# 组件选项（原样 JSON）
ALMANAC_OPTIONS_READER_JSON=
ALMANAC_OPTIONS_PARSER_JSON=
ALMANAC_OPTIONS_WRITER_JSON=
`

// loadDotEnv 读取简单的 .env 文件格式并注入进程环境。
// 规则：
// - 忽略不存在的文件；
// - 跳过空行与 # 注释；支持可选前缀 "export "；
// - 仅按首个 '=' 分割；成对的单/双引号被去除；
// - 不覆盖已存在的环境变量。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, val, ok := strings.Cut(line, "=")
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		if !ok || key == "" {
			continue
		}
		if len(val) >= 2 && (val[0] == '\'' || val[0] == '"') && val[len(val)-1] == val[0] {
			val = val[1 : len(val)-1]
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

// preflightCheckOutputDir: Writer 为 fs 时，启动前检查输出目录可写性。
// 目录存在则尝试创建并删除临时文件；不存在则检查父目录可写。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	if effOr(cfg.Components.Writer, cfgpkg.Defaults().Components.Writer) != "fs" {
		return nil
	}
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	dir := strings.TrimSpace(wopts.OutputDir)
	if dir == "" {
		// 未指定时由装配阶段报错
		return nil
	}
	st, err := os.Stat(dir)
	switch {
	case err == nil && st.IsDir():
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		return os.Remove(name)
	case err == nil:
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	case !os.IsNotExist(err):
		return err
	}
	parent := filepath.Dir(dir)
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	return os.RemoveAll(tmpd)
}
