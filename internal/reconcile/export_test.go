package reconcile

import "io/fs"

// SetDirFS replaces the filesystem the tree walk reads from.
func (r *Reconciler) SetDirFS(fn func(root string) fs.FS) { r.dirFS = fn }
