package filesystem

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"almanac/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// ExcludeDirNames: 扫描目录时跳过这些目录名（基名、大小写不敏感）。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// AllowExts: 目录扫描时只处理这些扩展名（含点，大小写不敏感）；为空表示不限制。
	// 显式给出的单文件 root 不受限制。
	AllowExts []string `json:"allow_exts"`
}

// FileSystem 实现基于文件系统与 STDIN 的 Reader。
type FileSystem struct {
	bufSize    int
	excludeDir map[string]struct{}
	allowExt   map[string]struct{} // nil 表示不限制
}

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	r := &FileSystem{bufSize: 64 * 1024, excludeDir: map[string]struct{}{}}
	if opts == nil {
		return r
	}
	if opts.BufSize > 0 {
		r.bufSize = opts.BufSize
	}
	for _, name := range opts.ExcludeDirNames {
		if name != "" {
			r.excludeDir[strings.ToLower(name)] = struct{}{}
		}
	}
	if len(opts.AllowExts) > 0 {
		r.allowExt = make(map[string]struct{}, len(opts.AllowExts))
		for _, e := range opts.AllowExts {
			if e != "" {
				r.allowExt[strings.ToLower(e)] = struct{}{}
			}
		}
	}
	return r
}

var _ contract.Reader = (*FileSystem)(nil)

// Iterate 遍历 roots，按稳定（字典）顺序对每个常规文件调用 yield。
// roots 为空或仅为 "-" 时读取 STDIN；"-" 不能与其他根混用。
// yield 返回后由 Iterate 负责关闭 rc。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(roots) == 0 || (len(roots) == 1 && roots[0] == "-") {
		return r.emit(contract.FileID("stdin"), io.NopCloser(os.Stdin), yield)
	}
	for _, s := range roots {
		if s == "-" {
			return errors.New("stdin '-' cannot be mixed with other roots")
		}
	}
	for _, root := range roots {
		if err := r.iterateOne(ctx, root, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) iterateOne(ctx context.Context, root string, yield func(contract.FileID, io.ReadCloser) error) error {
	// 顶层 root 跟随符号链接
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if info.Mode().IsRegular() {
		return r.open(root, contract.NormalizeFileID(filepath.Base(root)), yield)
	}
	if !info.IsDir() {
		return nil
	}
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			if _, skip := r.excludeDir[strings.ToLower(d.Name())]; skip && p != root {
				return filepath.SkipDir
			}
			return nil
		}
		if r.allowExt != nil {
			if _, ok := r.allowExt[strings.ToLower(filepath.Ext(p))]; !ok {
				return nil
			}
		}
		// 目录内符号链接：仅跟随到常规文件
		if d.Type()&fs.ModeSymlink != 0 {
			t, err := os.Stat(p)
			if err != nil || !t.Mode().IsRegular() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}
		return r.open(p, walkID(root, p), yield)
	})
}

// walkID 生成目录内文件的 FileID：<root 基名>/<相对 root 的路径>。
// 同名文件位于不同 root 或子目录时 ID 不同；绝对 root 也得到相对 ID。
func walkID(root, p string) contract.FileID {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return contract.NormalizeFileID(filepath.Base(p))
	}
	prefix := filepath.Base(filepath.Clean(root))
	if abs, err := filepath.Abs(root); err == nil {
		prefix = filepath.Base(abs)
	}
	// 文件系统根或卷根没有可用的基名
	if prefix == "." || prefix == ".." || prefix == string(filepath.Separator) || filepath.VolumeName(prefix) == prefix {
		return contract.NormalizeFileID(rel)
	}
	return contract.NormalizeFileID(filepath.Join(prefix, rel))
}

func (r *FileSystem) open(p string, id contract.FileID, yield func(contract.FileID, io.ReadCloser) error) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	return r.emit(id, f, yield)
}

func (r *FileSystem) emit(id contract.FileID, c io.ReadCloser, yield func(contract.FileID, io.ReadCloser) error) error {
	brc := newBufferedCloser(c, r.bufSize)
	defer brc.Close()
	return yield(id, brc)
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
