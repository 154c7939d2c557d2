package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mkorchagin/media-ingest/internal/ingest/domain"
)

// PreviewHandle is an ephemeral, revocable reference to a file's content.
// It is valid only between acquisition and release; dereferencing a released
// handle is a bug.
type PreviewHandle string

// Metadata holds intrinsic properties probed from the payload after upload.
// Zero Width/Height and zero DurationSeconds mean the probe degraded; Format
// is always set.
type Metadata struct {
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Format          string  `json:"format"`
}

// FileRecord is the authoritative per-file state in the ingestion collection.
type FileRecord struct {
	ID            uuid.UUID
	Source        Source
	Name          string
	Size          int64
	MimeType      string
	Status        domain.Status
	Progress      int
	PreviewHandle PreviewHandle
	Metadata      *Metadata
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
