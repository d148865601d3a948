package integrity

import "io/fs"

// SetDirFS replaces the filesystem the local pass walks.
func (c *Comparator) SetDirFS(fn func(root string) fs.FS) { c.dirFS = fn }
