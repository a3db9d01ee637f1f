package diag

import (
	"context"
	"errors"
	"io/fs"

	"almanac/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeFormat    Code = "format"
	CodeEmpty     Code = "empty"
	CodeOverlap   Code = "overlap"
	CodeOverflow  Code = "overflow"
	CodeInvariant Code = "invariant"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
)

// Classify 将错误归为最小分类。
// 仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	switch {
	case err == nil:
		return CodeUnknown
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancel
	case errors.Is(err, contract.ErrFormat):
		return CodeFormat
	case errors.Is(err, contract.ErrEmptyInput):
		return CodeEmpty
	case errors.Is(err, contract.ErrOverlap):
		return CodeOverlap
	case errors.Is(err, contract.ErrOverflow):
		return CodeOverflow
	case errors.Is(err, contract.ErrInvalidInput), errors.Is(err, contract.ErrPathInvalid),
		errors.Is(err, contract.ErrArtifactConflict):
		return CodeInvariant
	}
	var perr *fs.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}
