package testsupport

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path string, content []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteArtifacts creates one file per relative path under root, each with
// distinct content, and returns the absolute paths in the given order.
func WriteArtifacts(t testing.TB, root string, rel ...string) []string {
	t.Helper()

	paths := make([]string, 0, len(rel))
	for _, name := range rel {
		path := filepath.Join(root, filepath.FromSlash(name))
		WriteFile(t, path, []byte("audio:"+name))
		paths = append(paths, path)
	}
	return paths
}

// FlipByte inverts the first byte of the file at path.
func FlipByte(t testing.TB, path string) {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if len(data) == 0 {
		t.Fatalf("%s is empty", path)
	}
	data[0] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// UnreadableDirFS wraps fsys so that listing any of the slash-separated
// relative dirs fails with fs.ErrPermission. It stands in for a chmod 000
// directory, which root ignores.
func UnreadableDirFS(fsys fs.FS, dirs ...string) fs.FS {
	locked := make(map[string]struct{}, len(dirs))
	for _, dir := range dirs {
		locked[dir] = struct{}{}
	}
	return unreadableDirFS{FS: fsys, locked: locked}
}

type unreadableDirFS struct {
	fs.FS
	locked map[string]struct{}
}

func (u unreadableDirFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if _, ok := u.locked[name]; ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrPermission}
	}
	return fs.ReadDir(u.FS, name)
}
