package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mkorchagin/media-ingest/internal/ingest/domain"
	"github.com/mkorchagin/media-ingest/internal/ingest/models"
)

const eventBuffer = 256

// Store is the single source of truth for the live file collection. All
// writers — admission, the upload orchestrator, the prober — mutate it
// through Apply, which merges a typed event into the current state by id
// under one lock. Nothing ever replaces the collection from a stale snapshot.
type Store struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*models.FileRecord
	order   []uuid.UUID

	onChange func([]models.FileRecord)
	events   chan models.Event
	closed   bool

	clock  func() time.Time
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Store {
	return &Store{
		records: make(map[uuid.UUID]*models.FileRecord),
		events:  make(chan models.Event, eventBuffer),
		clock:   time.Now,
		logger:  logger.With().Str("component", "ingestion_store").Logger(),
	}
}

// OnChange registers a callback invoked with a fresh snapshot after every
// successful mutation. Must be set before the first Apply.
func (s *Store) OnChange(fn func([]models.FileRecord)) {
	s.onChange = fn
}

// Events exposes the mutation feed for downstream sinks. The feed is
// best-effort: a slow consumer drops events rather than blocking writers.
func (s *Store) Events() <-chan models.Event {
	return s.events
}

// Apply merges one event into the collection. Events addressed to an id that
// is no longer present return ErrNotFound; post-removal stragglers from
// in-flight work treat that as a no-op.
func (s *Store) Apply(ev models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.apply(ev); err != nil {
		return err
	}

	if !s.closed {
		select {
		case s.events <- ev:
		default:
			s.logger.Warn().
				Str("event_type", ev.EventType()).
				Stringer("record_id", ev.RecordID()).
				Msg("event feed full, dropping event")
		}
	}

	// Invoked under the lock so callbacks observe snapshots in mutation
	// order. The callback gets its own copy and must not call back into
	// the store.
	if s.onChange != nil {
		s.onChange(s.snapshotLocked())
	}
	return nil
}

func (s *Store) apply(ev models.Event) error {
	switch e := ev.(type) {
	case models.Admitted:
		if e.Record.ID == uuid.Nil {
			return models.ErrInvalidArgument
		}
		if _, exists := s.records[e.Record.ID]; exists {
			return models.ErrConflict
		}
		cp := e.Record
		cp.Status = domain.Pending
		s.records[cp.ID] = &cp
		s.order = append(s.order, cp.ID)
		return nil

	case models.ProgressTick:
		rec, ok := s.records[e.ID]
		if !ok {
			return models.ErrNotFound
		}
		if err := domain.ValidateTransition(rec.Status, domain.Uploading); err != nil {
			return err
		}
		rec.Status = domain.Uploading
		if p := clampProgress(e.Progress); p > rec.Progress {
			rec.Progress = p
		}
		rec.UpdatedAt = s.clock()
		return nil

	case models.Succeeded:
		rec, ok := s.records[e.ID]
		if !ok {
			return models.ErrNotFound
		}
		if err := domain.ValidateTransition(rec.Status, domain.Completed); err != nil {
			return err
		}
		rec.Status = domain.Completed
		rec.Progress = 100
		rec.UpdatedAt = s.clock()
		return nil

	case models.Failed:
		rec, ok := s.records[e.ID]
		if !ok {
			return models.ErrNotFound
		}
		if err := domain.ValidateTransition(rec.Status, domain.Error); err != nil {
			return err
		}
		rec.Status = domain.Error
		rec.ErrorMessage = e.Reason
		rec.UpdatedAt = s.clock()
		return nil

	case models.MetadataReady:
		rec, ok := s.records[e.ID]
		if !ok {
			return models.ErrNotFound
		}
		if rec.Status != domain.Completed {
			return fmt.Errorf("%w: metadata for %s record", domain.ErrInvalidTransition, rec.Status)
		}
		meta := e.Metadata
		rec.Metadata = &meta
		rec.UpdatedAt = s.clock()
		return nil

	case models.PreviewReady:
		rec, ok := s.records[e.ID]
		if !ok {
			return models.ErrNotFound
		}
		if rec.Status != domain.Completed {
			return fmt.Errorf("%w: preview for %s record", domain.ErrInvalidTransition, rec.Status)
		}
		rec.PreviewHandle = e.Handle
		rec.UpdatedAt = s.clock()
		return nil

	case models.Removed:
		if _, ok := s.records[e.ID]; !ok {
			return models.ErrNotFound
		}
		delete(s.records, e.ID)
		for i, id := range s.order {
			if id == e.ID {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown event %T", models.ErrInvalidArgument, ev)
	}
}

// Get returns a defensive copy of one record.
func (s *Store) Get(id uuid.UUID) (models.FileRecord, error) {
	if id == uuid.Nil {
		return models.FileRecord{}, models.ErrInvalidArgument
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return models.FileRecord{}, models.ErrNotFound
	}
	return *rec, nil
}

// Snapshot returns defensive copies of all records in insertion order.
func (s *Store) Snapshot() []models.FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close ends the event feed. Apply keeps working for readers that only use
// snapshots, but no further events are emitted.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

func (s *Store) snapshotLocked() []models.FileRecord {
	out := make([]models.FileRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.records[id])
	}
	return out
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	// 100 is reserved for the completed transition.
	if p > 99 {
		return 99
	}
	return p
}
