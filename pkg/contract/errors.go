package contract

import (
	"errors"
	"fmt"
)

// 最小错误分类（哨兵）。
var (
	// ErrFormat: 输入文本格式非法（缺少 seeds 行、非数字字段、规则列数不符等）。
	ErrFormat = errors.New("format error")
	// ErrEmptyInput: 未声明任何初始区间。
	ErrEmptyInput = errors.New("empty input")
	// ErrOverlap: 同一阶段内两条规则的源区间相交，映射有歧义。
	ErrOverlap = errors.New("overlapping rules")
	// ErrOverflow: 区间端点或偏移计算超出 uint64。
	ErrOverflow = errors.New("identifier overflow")
	// ErrInvalidInput: 调用参数违例（空区间、越界平移等）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrArtifactConflict: 同一次运行中两个工件映射到同一输出目标。
	ErrArtifactConflict = errors.New("artifact conflict")
)

// FormatError 携带出错行号与字段名；errors.Is(err, ErrFormat) 为真。
type FormatError struct {
	Line  int    // 1 起；0 表示与具体行无关
	Field string // 可为空
	Msg   string
}

func (e *FormatError) Error() string {
	switch {
	case e.Line > 0 && e.Field != "":
		return fmt.Sprintf("format error: line %d: %s: %s", e.Line, e.Field, e.Msg)
	case e.Line > 0:
		return fmt.Sprintf("format error: line %d: %s", e.Line, e.Msg)
	default:
		return "format error: " + e.Msg
	}
}

func (e *FormatError) Unwrap() error { return ErrFormat }

// OverlapError 指出同一阶段中相交的两条规则。
type OverlapError struct {
	Stage string
	A, B  Rule
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("stage %q: rule source %s overlaps %s", e.Stage, e.A.Source(), e.B.Source())
}

func (e *OverlapError) Unwrap() error { return ErrOverlap }
