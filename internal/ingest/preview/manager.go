package preview

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mkorchagin/media-ingest/internal/ingest/models"
)

var ErrNotPreviewable = errors.New("type is not previewable")

// Previewable reports whether a mime type can be rendered from a preview
// handle (images decode directly, audio/video stream).
func Previewable(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/") ||
		strings.HasPrefix(mimeType, "video/") ||
		strings.HasPrefix(mimeType, "audio/")
}

// Manager owns the ephemeral preview handles. Every acquired handle must be
// released exactly once; handles still live at shutdown are leaks.
type Manager struct {
	mu       sync.Mutex
	byHandle map[models.PreviewHandle]uuid.UUID
	byRecord map[uuid.UUID]models.PreviewHandle
	logger   zerolog.Logger
}

func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		byHandle: make(map[models.PreviewHandle]uuid.UUID),
		byRecord: make(map[uuid.UUID]models.PreviewHandle),
		logger:   logger.With().Str("component", "preview_manager").Logger(),
	}
}

// Acquire creates a preview handle for the record's source. A record holds at
// most one live handle; acquiring twice without an intervening release is a
// caller bug and returns ErrConflict.
func (m *Manager) Acquire(rec models.FileRecord) (models.PreviewHandle, error) {
	if rec.ID == uuid.Nil {
		return "", models.ErrInvalidArgument
	}
	if !Previewable(rec.MimeType) {
		return "", fmt.Errorf("%w: %s", ErrNotPreviewable, rec.MimeType)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byRecord[rec.ID]; exists {
		return "", models.ErrConflict
	}

	h := models.PreviewHandle("preview://" + uuid.NewString())
	m.byHandle[h] = rec.ID
	m.byRecord[rec.ID] = h

	m.logger.Debug().
		Stringer("record_id", rec.ID).
		Str("mime_type", rec.MimeType).
		Msg("preview handle acquired")

	return h, nil
}

// Release revokes a handle. Releasing an unknown or already-released handle
// returns ErrNotFound.
func (m *Manager) Release(h models.PreviewHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byHandle[h]
	if !ok {
		return models.ErrNotFound
	}
	delete(m.byHandle, h)
	delete(m.byRecord, id)

	m.logger.Debug().Stringer("record_id", id).Msg("preview handle released")
	return nil
}

// ReleaseByRecord revokes the record's handle if one is live. Records that
// never acquired a handle are a no-op.
func (m *Manager) ReleaseByRecord(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.byRecord[id]
	if !ok {
		return nil
	}
	delete(m.byHandle, h)
	delete(m.byRecord, id)

	m.logger.Debug().Stringer("record_id", id).Msg("preview handle released")
	return nil
}

// ReleaseAll revokes every live handle. Called on subsystem teardown.
func (m *Manager) ReleaseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.byHandle); n > 0 {
		m.logger.Info().Int("count", n).Msg("releasing remaining preview handles")
	}
	m.byHandle = make(map[models.PreviewHandle]uuid.UUID)
	m.byRecord = make(map[uuid.UUID]models.PreviewHandle)
}

// Live returns the number of currently held handles.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHandle)
}
