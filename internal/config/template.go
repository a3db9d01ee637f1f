package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 默认输入为 STDIN（"-"），答案输出到标准输出；
// - 组件名采用仓库内置实现；
// - 选项包含所有键，给出中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Inputs:      []string{"-"},
		Concurrency: d.Concurrency,
		Mode:        d.Mode,
		Logging:     Logging{Level: "info"},
		Components:  d.Components,
	}
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git", "node_modules", "vendor"],
  "allow_exts": [".txt"]
}`)
	cfg.Options.Parser = json.RawMessage(`{
  "seeds_label": "seeds",
  "header_suffix": "map:",
  "max_line_bytes": 1048576
}`)
	// stdout 的唯一选项；切换为 fs 时改为 {"output_dir": "out", "suffix": ".answer", "atomic": true, "flat": true}
	cfg.Options.Writer = json.RawMessage(`{
  "label": false
}`)
	return cfg
}
