package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Key identifies a cached path. It is relative to the parent directory of the
// watch root, so the root's own name is always its first element.
type Key string

var (
	ErrRootUnresolvable      = errors.New("root unresolvable")
	ErrCandidateUnresolvable = errors.New("candidate unresolvable")
	ErrNoParent              = errors.New("root has no parent")
	ErrNotUnderRoot          = errors.New("path not under root")
)

// PathError records a failed normalization.
type PathError struct {
	Op   error // one of the Err* sentinels above
	Root string
	Path string
	Err  error // underlying cause, may be nil
}

func (e *PathError) Error() string {
	msg := fmt.Sprintf("normalize %s (root %s): %v", e.Path, e.Root, e.Op)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PathError) Is(target error) bool { return e.Op == target }

func (e *PathError) Unwrap() error { return e.Err }

// Normalize converts candidate into a Key relative to the parent of root.
// Both paths are canonicalized (absolute, symlinks resolved) before the
// prefix is stripped, so aliases of the same file produce the same Key.
func Normalize(root, candidate string) (Key, error) {
	croot, err := canonical(root)
	if err != nil {
		return "", &PathError{Op: ErrRootUnresolvable, Root: root, Path: candidate, Err: err}
	}

	var ccand string
	if filepath.IsAbs(candidate) {
		// Absolute paths may already be gone (rename source, deletion);
		// resolve through the nearest ancestor that still exists.
		ccand, err = canonicalVanished(candidate)
	} else {
		ccand, err = canonical(candidate)
	}
	if err != nil {
		return "", &PathError{Op: ErrCandidateUnresolvable, Root: root, Path: candidate, Err: err}
	}

	parent := filepath.Dir(croot)
	if parent == croot {
		return "", &PathError{Op: ErrNoParent, Root: root, Path: candidate}
	}

	rel, err := filepath.Rel(parent, ccand)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &PathError{Op: ErrNotUnderRoot, Root: root, Path: candidate, Err: err}
	}
	return Key(rel), nil
}

// NormalizeUnder is Normalize with the stricter requirement that candidate
// lives inside root itself, not merely inside root's parent.
func NormalizeUnder(root, candidate string) (Key, error) {
	key, err := Normalize(root, candidate)
	if err != nil {
		return "", err
	}
	rootKey, err := Normalize(root, root)
	if err != nil {
		return "", err
	}
	if !key.Under(rootKey) {
		return "", &PathError{Op: ErrNotUnderRoot, Root: root, Path: candidate}
	}
	return key, nil
}

// Abs joins the key back onto the canonical parent of root.
func (k Key) Abs(root string) (string, error) {
	croot, err := canonical(root)
	if err != nil {
		return "", &PathError{Op: ErrRootUnresolvable, Root: root, Path: string(k), Err: err}
	}
	return filepath.Join(filepath.Dir(croot), string(k)), nil
}

// Under reports whether k equals prefix or lies below it.
func (k Key) Under(prefix Key) bool {
	if k == prefix {
		return true
	}
	return strings.HasPrefix(string(k), string(prefix)+string(filepath.Separator))
}

// Rebase moves k from below from to below to. Keys not under from are
// returned unchanged.
func (k Key) Rebase(from, to Key) Key {
	if !k.Under(from) {
		return k
	}
	return to + k[len(from):]
}

// Name returns the last element of the key.
func (k Key) Name() string {
	if k == "" {
		return ""
	}
	return filepath.Base(string(k))
}

func (k Key) String() string { return string(k) }

func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func canonicalVanished(path string) (string, error) {
	resolved, err := canonical(path)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	dir := filepath.Clean(path)
	var tail []string
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", err
		}
		tail = append([]string{filepath.Base(dir)}, tail...)
		dir = parent
		if resolved, derr := canonical(dir); derr == nil {
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		} else if !errors.Is(derr, os.ErrNotExist) {
			return "", derr
		}
	}
}
