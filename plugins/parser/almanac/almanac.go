package almanac

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"almanac/pkg/contract"
)

// Options 为 almanac Parser 的可选配置（最小必要）。
type Options struct {
	// SeedsLabel: 首行标签（不含冒号）。默认 "seeds"。
	SeedsLabel string `json:"seeds_label"`
	// HeaderSuffix: 块头行的结尾标记。默认 "map:"。
	HeaderSuffix string `json:"header_suffix"`
	// MaxLineBytes: 单行最大字节数。0 表示使用默认 1MiB。
	MaxLineBytes int `json:"max_line_bytes"`
}

// Parser 解析种子行与若干映射块。
type Parser struct {
	label   string
	suffix  string
	maxLine int
}

// New 创建 Parser。
func New(opts *Options) *Parser {
	p := &Parser{label: "seeds", suffix: "map:", maxLine: 1 << 20}
	if opts != nil {
		if s := strings.TrimSpace(opts.SeedsLabel); s != "" {
			p.label = s
		}
		if s := strings.TrimSpace(opts.HeaderSuffix); s != "" {
			p.suffix = s
		}
		if opts.MaxLineBytes > 0 {
			p.maxLine = opts.MaxLineBytes
		}
	}
	return p
}

var _ contract.Parser = (*Parser)(nil)

// Parse 读取完整输入并返回 Almanac。任何格式问题都返回 *contract.FormatError，不返回部分结果。
func (p *Parser) Parse(ctx context.Context, fileID contract.FileID, r io.Reader) (contract.Almanac, error) {
	var alm contract.Almanac
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(64*1024, p.maxLine)), p.maxLine)

	lineNo := 0
	seen := false    // 已读到 seeds 行
	inBlock := false // 当前处于某个映射块内
	for sc.Scan() {
		if err := ctxErr(ctx); err != nil {
			return contract.Almanac{}, err
		}
		lineNo++
		line := strings.TrimRight(sc.Text(), " \t\r")
		if strings.TrimSpace(line) == "" {
			// 空行结束当前块；多余空行跳过
			inBlock = false
			continue
		}
		if !seen {
			seeds, err := p.parseSeeds(lineNo, line)
			if err != nil {
				return contract.Almanac{}, err
			}
			alm.Seeds = seeds
			seen = true
			continue
		}
		if !inBlock {
			name, ok := strings.CutSuffix(strings.TrimSpace(line), p.suffix)
			if !ok {
				return contract.Almanac{}, &contract.FormatError{Line: lineNo, Msg: "expected block header ending in " + strconv.Quote(p.suffix)}
			}
			alm.Stages = append(alm.Stages, contract.StageSpec{Name: strings.TrimSpace(name)})
			inBlock = true
			continue
		}
		// 块内出现块头：多半是漏了分隔空行
		if strings.HasSuffix(strings.TrimSpace(line), p.suffix) {
			return contract.Almanac{}, &contract.FormatError{Line: lineNo, Msg: "block header must follow a blank line"}
		}
		rule, err := parseRule(lineNo, line)
		if err != nil {
			return contract.Almanac{}, err
		}
		cur := &alm.Stages[len(alm.Stages)-1]
		cur.Rules = append(cur.Rules, rule)
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return contract.Almanac{}, &contract.FormatError{Line: lineNo + 1, Msg: "line too long"}
		}
		return contract.Almanac{}, err
	}
	if !seen {
		return contract.Almanac{}, &contract.FormatError{Msg: "missing " + p.label + " line"}
	}
	return alm, nil
}

// parseSeeds 解析 "seeds: a b c"；允许零个数值（空集合由编排层判定）。
func (p *Parser) parseSeeds(lineNo int, line string) ([]uint64, error) {
	head, rest, ok := strings.Cut(line, ":")
	if !ok {
		return nil, &contract.FormatError{Line: lineNo, Msg: "missing colon after " + p.label}
	}
	if strings.TrimSpace(head) != p.label {
		return nil, &contract.FormatError{Line: lineNo, Msg: "expected " + strconv.Quote(p.label) + " header, got " + strconv.Quote(strings.TrimSpace(head))}
	}
	fields := strings.Fields(rest)
	out := make([]uint64, 0, len(fields))
	for i, f := range fields {
		v, err := parseU64(lineNo, "seed["+strconv.Itoa(i)+"]", f)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// parseRule 解析 "dst src len"。
func parseRule(lineNo int, line string) (contract.Rule, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return contract.Rule{}, &contract.FormatError{Line: lineNo, Msg: "rule needs 3 fields (dst src len), got " + strconv.Itoa(len(fields))}
	}
	var vals [3]uint64
	for i, name := range [3]string{"dst", "src", "len"} {
		v, err := parseU64(lineNo, name, fields[i])
		if err != nil {
			return contract.Rule{}, err
		}
		vals[i] = v
	}
	return contract.Rule{Dst: vals[0], Src: vals[1], Len: vals[2]}, nil
}

func parseU64(lineNo int, field, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		msg := "not a non-negative integer: " + strconv.Quote(s)
		if errors.Is(err, strconv.ErrRange) {
			msg = "value exceeds 64 bits: " + s
		}
		return 0, &contract.FormatError{Line: lineNo, Field: field, Msg: msg}
	}
	return v, nil
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
