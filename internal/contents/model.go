package contents

import (
	"time"

	"github.com/vk/pipebook/internal/notebook"
)

// Entry types in the host exchange shape.
const (
	TypeDirectory = "directory"
	TypeNotebook  = "notebook"
	TypeFile      = "file"
)

// Content formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Model is the host application's exchange format for files, notebooks and
// directory listings. Content holds a *notebook.Notebook for notebooks, a
// []Model for directories, a string for plain files, and nil when the
// caller asked for metadata only.
type Model struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Type         string    `json:"type"`
	Format       string    `json:"format,omitempty"`
	Mimetype     string    `json:"mimetype,omitempty"`
	Writable     bool      `json:"writable"`
	Created      time.Time `json:"created"`
	LastModified time.Time `json:"last_modified"`
	Content      any       `json:"content"`
}

// Notebook returns the model's notebook content, or nil.
func (m *Model) Notebook() *notebook.Notebook {
	nb, _ := m.Content.(*notebook.Notebook)
	return nb
}
