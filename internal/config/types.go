package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	Inputs []string `json:"inputs"`
	// Concurrency: 单文件内并发折叠的初始区间数上限。
	Concurrency int `json:"concurrency"`
	// Mode: seeds 行的解释方式（points|pairs）。
	Mode    string  `json:"mode"`
	Logging Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader string `json:"reader"`
	Parser string `json:"parser"`
	Writer string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader json.RawMessage `json:"reader,omitempty"`
	Parser json.RawMessage `json:"parser,omitempty"`
	Writer json.RawMessage `json:"writer,omitempty"`
}
