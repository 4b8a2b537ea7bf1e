package files

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// ViewMode selects one precomputed rendering of a file's text.
type ViewMode int

const (
	// ViewWhole is the entire text as a single segment.
	ViewWhole ViewMode = iota
	// ViewLines is one segment per line, skipping blank lines.
	ViewLines
	// ViewAllLines is one segment per line, blanks included.
	ViewAllLines
)

// AllModes lists every view mode in display order.
var AllModes = []ViewMode{ViewWhole, ViewLines, ViewAllLines}

func (m ViewMode) String() string {
	switch m {
	case ViewWhole:
		return "whole"
	case ViewLines:
		return "lines"
	case ViewAllLines:
		return "all-lines"
	}
	return fmt.Sprintf("ViewMode(%d)", int(m))
}

// Next cycles to the following mode.
func (m ViewMode) Next() ViewMode {
	return AllModes[(int(m)+1)%len(AllModes)]
}

// ParseViewMode parses the names produced by ViewMode.String.
func ParseViewMode(s string) (ViewMode, error) {
	for _, m := range AllModes {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return ViewWhole, fmt.Errorf("unknown view mode %q", s)
}

var (
	ErrIO      = errors.New("read failed")
	ErrNotUTF8 = errors.New("not valid UTF-8")
)

// LoadError records a failed file load. Kind is ErrIO or ErrNotUTF8.
type LoadError struct {
	Kind error
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %s: %v: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Path, e.Kind)
}

func (e *LoadError) Is(target error) bool { return e.Kind == target }

func (e *LoadError) Unwrap() error { return e.Err }

// Content is an immutable, loaded representation of one file. A reload
// produces a new Content; existing values are never modified.
type Content struct {
	path     string
	size     int
	loadedAt time.Time
	views    map[ViewMode][]string
}

// Path is the absolute path the content was read from.
func (c *Content) Path() string { return c.path }

// Size is the decoded text length in bytes.
func (c *Content) Size() int { return c.size }

// LoadedAt is when the file was read.
func (c *Content) LoadedAt() time.Time { return c.loadedAt }

// View returns the segments for mode, if that view was built at load time.
func (c *Content) View(mode ViewMode) ([]string, bool) {
	v, ok := c.views[mode]
	return v, ok
}

// Modes lists the views present, in display order.
func (c *Content) Modes() []ViewMode {
	var modes []ViewMode
	for _, m := range AllModes {
		if _, ok := c.views[m]; ok {
			modes = append(modes, m)
		}
	}
	return modes
}

// Load reads path, decodes it as text and builds the requested views. With no
// modes given every view is built.
func Load(path string, modes ...ViewMode) (*Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Kind: ErrIO, Path: path, Err: err}
	}
	text, err := decodeText(data)
	if err != nil {
		return nil, &LoadError{Kind: ErrNotUTF8, Path: path, Err: err}
	}
	return NewContent(path, text, modes...), nil
}

// NewContent builds a Content from already decoded text.
func NewContent(path, text string, modes ...ViewMode) *Content {
	if len(modes) == 0 {
		modes = AllModes
	}
	views := make(map[ViewMode][]string, len(modes))
	for _, m := range modes {
		switch m {
		case ViewWhole:
			views[m] = []string{text}
		case ViewLines:
			views[m] = Segment(text, true)
		case ViewAllLines:
			views[m] = Segment(text, false)
		}
	}
	return &Content{
		path:     path,
		size:     len(text),
		loadedAt: time.Now(),
		views:    views,
	}
}

// Segment splits text after every '\n'. Each segment keeps its newline, so
// the segments of the keep-all form concatenate back to text. With skipBlank,
// segments made only of newlines are dropped, except the final segment of the
// text which is always kept.
func Segment(text string, skipBlank bool) []string {
	var segs []string
	for start := 0; start < len(text); {
		end := len(text)
		if i := strings.IndexByte(text[start:], '\n'); i >= 0 {
			end = start + i + 1
		}
		seg := text[start:end]
		if !skipBlank || end == len(text) || strings.Trim(seg, "\n") != "" {
			segs = append(segs, seg)
		}
		start = end
	}
	return segs
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

func decodeText(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		data = data[len(bomUTF8):]
	case bytes.HasPrefix(data, bomUTF16LE):
		return decodeUTF16(data, unicode.LittleEndian)
	case bytes.HasPrefix(data, bomUTF16BE):
		return decodeUTF16(data, unicode.BigEndian)
	}
	if !utf8.Valid(data) {
		return "", errors.New("invalid byte sequence")
	}
	return string(data), nil
}

// decodeUTF16 decodes a BOM-prefixed UTF-16 payload. The x/text decoder
// substitutes U+FFFD for malformed input, so the code units are checked
// first: a trailing odd byte or an unpaired surrogate fails the load.
func decodeUTF16(data []byte, endian unicode.Endianness) (string, error) {
	body := data[2:]
	if len(body)%2 != 0 {
		return "", errors.New("odd-length UTF-16 payload")
	}
	units := make([]uint16, len(body)/2)
	for i := range units {
		if endian == unicode.BigEndian {
			units[i] = binary.BigEndian.Uint16(body[2*i:])
		} else {
			units[i] = binary.LittleEndian.Uint16(body[2*i:])
		}
	}
	for i := 0; i < len(units); i++ {
		u := rune(units[i])
		switch {
		case utf16.IsSurrogate(u) && u < 0xDC00 && i+1 < len(units) &&
			utf16.DecodeRune(u, rune(units[i+1])) != utf8.RuneError:
			i++
		case utf16.IsSurrogate(u):
			return "", fmt.Errorf("unpaired UTF-16 surrogate at offset %d", 2+2*i)
		}
	}

	out, err := unicode.UTF16(endian, unicode.ExpectBOM).NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
