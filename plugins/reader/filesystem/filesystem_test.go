package filesystem

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"almanac/pkg/contract"
)

func collect(t *testing.T, r *FileSystem, roots []string) ([]string, error) {
	t.Helper()
	var visited []string
	err := r.Iterate(context.Background(), roots, func(id contract.FileID, rc io.ReadCloser) error {
		b, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		visited = append(visited, string(id)+"="+string(b))
		return nil
	})
	return visited, err
}

// TestIterateSingleFile 单文件 root
func TestIterateSingleFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "day05.txt")
	if err := os.WriteFile(p, []byte("seeds: 1"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := collect(t, New(nil), []string{p})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(got) != 1 || !strings.HasSuffix(got[0], "day05.txt=seeds: 1") {
		t.Fatalf("unexpected %#v", got)
	}
}

// TestIterateDirSortedAndFiltered 目录按字典序、排除目录与扩展名过滤
func TestIterateDirSortedAndFiltered(t *testing.T) {
	root := t.TempDir()
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	must(os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	must(os.WriteFile(filepath.Join(root, "b.txt"), []byte("b"), 0o644))
	must(os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	must(os.WriteFile(filepath.Join(root, "notes.md"), []byte("n"), 0o644))
	must(os.WriteFile(filepath.Join(root, "sub", "c.TXT"), []byte("c"), 0o644))
	must(os.WriteFile(filepath.Join(root, ".git", "d.txt"), []byte("d"), 0o644))

	r := New(&Options{ExcludeDirNames: []string{".GIT"}, AllowExts: []string{".txt"}})
	got, err := collect(t, r, []string{root})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expect 3 files, got %#v", got)
	}
	for i, want := range []string{"a.txt=a", "b.txt=b", "sub/c.TXT=c"} {
		if !strings.HasSuffix(got[i], want) {
			t.Fatalf("order/content mismatch at %d: %#v", i, got)
		}
	}
}

// TestIterateDashMix "-" 不能与其他根混用
func TestIterateDashMix(t *testing.T) {
	if _, err := collect(t, New(nil), []string{"-", "a"}); err == nil {
		t.Fatalf("expect error")
	}
}

// TestIterateStdinDash 从 STDIN 读取
func TestIterateStdinDash(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	old := os.Stdin
	os.Stdin = pr
	defer func() { os.Stdin = old }()
	go func() {
		_, _ = pw.Write([]byte("seeds: 7"))
		_ = pw.Close()
	}()
	got, err := collect(t, New(&Options{BufSize: 8}), []string{"-"})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(got) != 1 || got[0] != "stdin=seeds: 7" {
		t.Fatalf("unexpected %#v", got)
	}
}

func TestIterateMissingRoot(t *testing.T) {
	_, err := collect(t, New(nil), []string{filepath.Join(t.TempDir(), "missing.txt")})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expect not exist, got %v", err)
	}
}

// TestIterateSymlinkInDir 目录内指向文件的符号链接被跟随，指向目录的忽略
func TestIterateSymlinkInDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink requires privileges on windows")
	}
	root := t.TempDir()
	other := t.TempDir()
	target := filepath.Join(other, "t.txt")
	if err := os.WriteFile(target, []byte("ok"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, filepath.Join(root, "l.txt")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(other, filepath.Join(root, "ldir")); err != nil {
		t.Fatal(err)
	}
	got, err := collect(t, New(nil), []string{root})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(got) != 1 || !strings.HasSuffix(got[0], "l.txt=ok") {
		t.Fatalf("unexpected %#v", got)
	}
}

// TestIterateCtxCancel 上下文取消
func TestIterateCtxCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(nil).Iterate(ctx, []string{"."}, func(contract.FileID, io.ReadCloser) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expect canceled, got %v", err)
	}
}

// TestIterateYieldError yield 的错误原样上抛
func TestIterateYieldError(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "x.txt")
	_ = os.WriteFile(p, []byte("x"), 0o644)
	boom := errors.New("boom")
	err := New(nil).Iterate(context.Background(), []string{p}, func(contract.FileID, io.ReadCloser) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expect boom, got %v", err)
	}
}

// TestIterateDirRelativeIDs 目录内文件 ID 以 root 基名为前缀，不泄露绝对路径；同名文件可区分
func TestIterateDirRelativeIDs(t *testing.T) {
	base := t.TempDir()
	for _, d := range []string{"x", "y"} {
		if err := os.MkdirAll(filepath.Join(base, d), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(base, d, "in.txt"), []byte(d), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	got, err := collect(t, New(nil), []string{filepath.Join(base, "x"), filepath.Join(base, "y")})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	want := []string{"x/in.txt=x", "y/in.txt=y"}
	if len(got) != len(want) {
		t.Fatalf("unexpected %#v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("id mismatch at %d: got %q want %q", i, got[i], want[i])
		}
	}
}

// TestIterateSingleFileRelativeID 绝对路径的单文件 root 只保留基名
func TestIterateSingleFileRelativeID(t *testing.T) {
	p := filepath.Join(t.TempDir(), "day05.txt")
	if err := os.WriteFile(p, []byte("s"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := collect(t, New(nil), []string{p})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(got) != 1 || got[0] != "day05.txt=s" {
		t.Fatalf("unexpected %#v", got)
	}
}
