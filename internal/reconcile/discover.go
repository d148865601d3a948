package reconcile

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"podsig/internal/sigstore"
)

// WalkError is a directory under the root that could not be listed.
type WalkError struct {
	Path string
	Err  error
}

func (e WalkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e WalkError) Unwrap() error { return e.Err }

// Discover lists every regular file under root whose extension (without the
// dot, case-insensitive) is in exts. Signature directories are skipped. The
// result is sorted.
//
// A subdirectory that cannot be read is reported in the second return and
// skipped; only an unreadable root is an error.
func Discover(root string, exts []string) ([]string, []WalkError, error) {
	return discover(os.DirFS(root), root, exts)
}

func discover(fsys fs.FS, root string, exts []string) ([]string, []WalkError, error) {
	want := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			want[ext] = struct{}{}
		}
	}

	var found []string
	var unreadable []WalkError
	err := fs.WalkDir(fsys, ".", func(rel string, d fs.DirEntry, err error) error {
		if err != nil {
			if rel == "." || d == nil || !d.IsDir() {
				return err
			}
			unreadable = append(unreadable, WalkError{Path: filepath.Join(root, filepath.FromSlash(rel)), Err: err})
			return fs.SkipDir
		}
		if d.IsDir() {
			if rel != "." && d.Name() == sigstore.DirName {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(d.Name()), "."))
		if _, ok := want[ext]; ok {
			found = append(found, filepath.Join(root, filepath.FromSlash(rel)))
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(found)
	return found, unreadable, nil
}
