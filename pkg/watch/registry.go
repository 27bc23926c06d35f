package watch

import (
	"path/filepath"
	"strings"
)

// registry reference-counts backend watches so directories shared by
// several subscriptions stay watched until the last one lets go.
//
// It is owned by the engine's intake loop.
type registry struct {
	backend Backend
	max     int
	refs    map[string]int
}

func newRegistry(backend Backend, max int) *registry {
	return &registry{
		backend: backend,
		max:     max,
		refs:    make(map[string]int),
	}
}

// acquire takes a reference on every dir, adding backend watches as
// needed. On failure every reference taken by this call is released and a
// *RegistrationError is returned.
func (r *registry) acquire(dirs []string) error {
	added := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if r.refs[dir] == 0 {
			if r.max > 0 && len(r.refs) >= r.max {
				r.releaseAll(added)
				return &RegistrationError{Path: dir, Err: ErrWatchLimit}
			}
			if err := r.backend.Add(dir); err != nil {
				r.releaseAll(added)
				return &RegistrationError{Path: dir, Err: err}
			}
		}
		r.refs[dir]++
		added = append(added, dir)
	}
	return nil
}

// release drops one reference on dir and removes the backend watch when it
// was the last. Removal errors are returned for logging only; the watch may
// already be gone with its directory.
func (r *registry) release(dir string) error {
	count := r.refs[dir]
	if count > 1 {
		r.refs[dir] = count - 1
		return nil
	}
	if count == 0 {
		return nil
	}
	delete(r.refs, dir)
	return r.backend.Remove(dir)
}

func (r *registry) releaseAll(dirs []string) {
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = r.release(dirs[i]) // nolint:errcheck // rollback is best effort
	}
}

// watched reports whether dir or anything below it holds a watch.
func (r *registry) watched(dir string) bool {
	if r.refs[dir] > 0 {
		return true
	}
	for d := range r.refs {
		if isWithin(dir, d) {
			return true
		}
	}
	return false
}

// dirs returns the watched directories.
func (r *registry) dirs() []string {
	out := make([]string, 0, len(r.refs))
	for d := range r.refs {
		out = append(out, d)
	}
	return out
}

func (r *registry) len() int { return len(r.refs) }

// relative returns path relative to root when path is root or below it.
func relative(root, path string) (string, bool) {
	if path == root {
		return "", true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	return path[len(prefix):], true
}

// isWithin reports whether path is strictly below root.
func isWithin(root, path string) bool {
	rel, ok := relative(root, path)
	return ok && rel != ""
}
