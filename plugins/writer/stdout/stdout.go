// Package stdout 将答案写到进程标准输出（或注入的 io.Writer）。
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"almanac/pkg/contract"
)

// Options 为 stdout Writer 的可选配置。
type Options struct {
	// Label: 为 true 时每行前缀 "<file_id>: "，便于多输入时区分。
	Label bool `json:"label"`
}

// Writer 串行写出；多个 goroutine 共用时保证每个答案整体输出。
type Writer struct {
	w     io.Writer
	label bool
	mu    sync.Mutex
}

// New 创建写往 os.Stdout 的 Writer。
func New(opts *Options) *Writer { return NewTo(os.Stdout, opts) }

// NewTo 创建写往 w 的 Writer（测试或嵌入使用）。
func NewTo(w io.Writer, opts *Options) *Writer {
	out := &Writer{w: w}
	if opts != nil {
		out.label = opts.Label
	}
	return out
}

var _ contract.Writer = (*Writer)(nil)

func (s *Writer) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.label {
		if _, err := fmt.Fprintf(s.w, "%s: ", id); err != nil {
			return err
		}
	}
	_, err = s.w.Write(b)
	return err
}
