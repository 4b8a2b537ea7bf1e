package command

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Candidate is a completion option with a description.
type Candidate struct {
	Value string // the text to insert
	Desc  string // short description
}

// Completer offers directories for the open prompt.
type Completer struct {
	base string // relative input is resolved against this
}

// NewCompleter creates a completer resolving relative paths against base.
func NewCompleter(base string) *Completer {
	return &Completer{base: base}
}

// SetBase changes the directory relative input is resolved against.
func (c *Completer) SetBase(base string) {
	c.base = base
}

// Complete returns the subdirectories that extend input. Hidden directories
// are offered only once the typed name starts with a dot.
func (c *Completer) Complete(input string) []Candidate {
	dir, prefix := splitInput(input)
	entries, err := os.ReadDir(c.resolve(dir))
	if err != nil {
		return nil
	}

	var result []Candidate
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(prefix, ".") {
			continue
		}
		if !strings.HasPrefix(name, prefix) || !c.isDir(filepath.Join(c.resolve(dir), name), e) {
			continue
		}
		result = append(result, Candidate{
			Value: dir + name + string(filepath.Separator),
			Desc:  "dir",
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Value < result[j].Value })
	return result
}

// Resolve turns prompt input into an absolute path.
func (c *Completer) Resolve(input string) string {
	return c.resolve(strings.TrimSpace(input))
}

func (c *Completer) resolve(p string) string {
	if p == "" {
		p = "."
	}
	if p == "~" || strings.HasPrefix(p, "~"+string(filepath.Separator)) {
		home, _ := os.UserHomeDir()
		p = filepath.Join(home, p[1:])
	}
	if !filepath.IsAbs(p) && c.base != "" {
		p = filepath.Join(c.base, p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

func (c *Completer) isDir(path string, e os.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// splitInput separates the directory part typed so far, kept verbatim so a
// candidate extends what the user wrote, from the partial last element.
func splitInput(input string) (dir, prefix string) {
	i := strings.LastIndex(input, string(filepath.Separator))
	if i < 0 {
		return "", input
	}
	return input[:i+1], input[i+1:]
}
