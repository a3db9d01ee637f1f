package registry

import (
	"bytes"
	"encoding/json"

	"almanac/pkg/contract"
	palm "almanac/plugins/parser/almanac"
	rfs "almanac/plugins/reader/filesystem"
	spairs "almanac/plugins/seeder/pairs"
	spoints "almanac/plugins/seeder/points"
	wfs "almanac/plugins/writer/filesystem"
	wstd "almanac/plugins/writer/stdout"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewParser 工厂签名：接收原样 JSON Options。
type NewParser func(raw json.RawMessage) (contract.Parser, error)

// NewSeeder 工厂签名：种子解释器无选项。
type NewSeeder func() contract.Seeder

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Parser 工厂注册表。
var Parser = map[string]NewParser{
	// almanac: seeds 行 + "<name> map:" 块
	"almanac": func(raw json.RawMessage) (contract.Parser, error) {
		var opts palm.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return palm.New(&opts), nil
	},
}

// Seeder 工厂注册表，键即配置中的 mode。
var Seeder = map[string]NewSeeder{
	"points": func() contract.Seeder { return spoints.New() },
	"pairs":  func() contract.Seeder { return spairs.New() },
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// stdout: 每个答案一行
	"stdout": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wstd.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wstd.New(&opts), nil
	},
	// fs: 文件系统 Writer（<output_dir>/<file>.answer，原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}
