package filesystem

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"almanac/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// OutputDir: 答案输出根目录（必需）。
	OutputDir string `json:"output_dir"`
	// Suffix: 追加在输入文件名后的扩展名。默认 ".answer"。
	Suffix string `json:"suffix,omitempty"`
	// Atomic: 是否同目录临时文件 + rename。nil 视为 true。
	Atomic *bool `json:"atomic,omitempty"`
	// Flat: 是否只保留文件名（不保留目录层级）。nil 视为 true。
	Flat *bool `json:"flat,omitempty"`
}

// FS 把每个输入的答案写成 <output_dir>/<file><suffix>。
// 同一 FS 实例内，两个不同 id 落到同一目标路径时第二次写入失败，
// 扁平模式下同名输入不会被静默覆盖。
type FS struct {
	root   string
	suffix string
	atomic bool
	flat   bool

	mu      sync.Mutex
	written map[string]contract.ArtifactID // 目标路径 -> 首个写入的 id
}

// New 创建文件系统 Writer。OutputDir 为空时返回 os.ErrInvalid。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, os.ErrInvalid
	}
	w := &FS{root: opts.OutputDir, suffix: ".answer", atomic: true, flat: true, written: map[string]contract.ArtifactID{}}
	if opts.Suffix != "" {
		w.suffix = opts.Suffix
	}
	if opts.Atomic != nil {
		w.atomic = *opts.Atomic
	}
	if opts.Flat != nil {
		w.flat = *opts.Flat
	}
	return w, nil
}

var _ contract.Writer = (*FS)(nil)

// Write 将 r 的全部字节写入 id 对应的答案文件。
func (w *FS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := w.mapPath(id)
	if err != nil {
		return err
	}
	if err := w.claim(dest, id); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if w.atomic {
		return writeAtomic(dest, r)
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// claim 登记目标路径；同一 id 重写允许（替换），不同 id 冲突。
func (w *FS) claim(dest string, id contract.ArtifactID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if prev, ok := w.written[dest]; ok && prev != id {
		return fmt.Errorf("%w: %s and %s both map to %s", contract.ErrArtifactConflict, prev, id, dest)
	}
	w.written[dest] = id
	return nil
}

// mapPath: Clean + Join + 越界校验。
func (w *FS) mapPath(id contract.ArtifactID) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(string(id)))
	if w.flat {
		rel = filepath.Base(rel)
	}
	if rel == "." || rel == ".." || rel == "" || rel == string(filepath.Separator) {
		return "", contract.ErrPathInvalid
	}
	// 非扁平：禁止绝对路径、父级逃逸、Windows 卷名
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", contract.ErrPathInvalid
	}
	if strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", contract.ErrPathInvalid
	}
	return filepath.Join(w.root, rel+w.suffix), nil
}

func writeAtomic(dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	_ = os.Chmod(tmpPath, 0o644)
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// 最佳努力：同步父目录
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
