package backend

import (
	"fmt"
	"time"

	"github.com/olivoil/livewatch/internal/files"
)

// UpdateKind identifies the variant carried by an Update.
type UpdateKind int

const (
	// UpdateContent carries freshly loaded content for Path.
	UpdateContent UpdateKind = iota
	// UpdateRename moves From to To.
	UpdateRename
	// UpdateDelete removes Path.
	UpdateDelete
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateContent:
		return "content"
	case UpdateRename:
		return "rename"
	case UpdateDelete:
		return "delete"
	}
	return fmt.Sprintf("UpdateKind(%d)", int(k))
}

// Update is one change produced by the watch pipeline and applied to the
// cache by the Reconciler. Paths are absolute, as reported by the OS.
type Update struct {
	Kind UpdateKind
	// Path is set for UpdateContent and UpdateDelete.
	Path string
	// From and To are set for UpdateRename.
	From string
	To   string
	// Content is set for UpdateContent.
	Content *files.Content
}

func (u Update) String() string {
	if u.Kind == UpdateRename {
		return fmt.Sprintf("%s %s -> %s", u.Kind, u.From, u.To)
	}
	return fmt.Sprintf("%s %s", u.Kind, u.Path)
}

// LogKind is the severity of a Loglet.
type LogKind int

const (
	LogInfo LogKind = iota
	LogWarn
	LogError
)

func (k LogKind) String() string {
	switch k {
	case LogInfo:
		return "info"
	case LogWarn:
		return "warn"
	case LogError:
		return "error"
	}
	return fmt.Sprintf("LogKind(%d)", int(k))
}

// Loglet is one timestamped entry for the log pane.
type Loglet struct {
	Kind    LogKind
	Message string
	Time    time.Time
}
