package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"almanac/internal/pipeline"
	"almanac/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return errors.New("config: inputs empty")
	}
	// 输入路径不得为空字符串；"-" 不能与其他根混用
	dash := false
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return errors.New("config: '-' cannot be mixed with other roots")
	}
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	if registry.Seeder[cfg.Mode] == nil {
		return fmt.Errorf("config: mode %q not supported (points|pairs)", cfg.Mode)
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level %q invalid", cfg.Logging.Level)
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。此处只要最终有值即可。
	d := Defaults()
	if name := effName(cfg.Components.Reader, d.Components.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Parser, d.Components.Parser); registry.Parser[name] == nil {
		return fmt.Errorf("config: parser %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Components.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry （工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	d := Defaults()
	rn := effName(cfg.Components.Reader, d.Components.Reader)
	pn := effName(cfg.Components.Parser, d.Components.Parser)
	wn := effName(cfg.Components.Writer, d.Components.Writer)

	r, err := registry.Reader[rn](cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, optErr("reader", err)
	}
	p, err := registry.Parser[pn](cfg.Options.Parser)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, optErr("parser", err)
	}
	w, err := registry.Writer[wn](cfg.Options.Writer)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, optErr("writer", err)
	}

	comp := pipeline.Components{
		Reader: r,
		Parser: p,
		Seeder: registry.Seeder[cfg.Mode](),
		Writer: w,
	}
	set := pipeline.Settings{
		Inputs:      cloneStrings(cfg.Inputs),
		Concurrency: cfg.Concurrency,
	}
	return comp, set, nil
}

func optErr(comp string, err error) error {
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return fmt.Errorf("config: options.%s: invalid json: %w", comp, err)
	}
	return fmt.Errorf("config: options.%s: %w", comp, err)
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
