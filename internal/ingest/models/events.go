package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is a partial update to the ingestion collection. Every mutation of
// the store is expressed as one of the concrete events below and merged into
// the current state by id.
type Event interface {
	RecordID() uuid.UUID
	EventType() string
}

// Admitted inserts a freshly admitted record (status pending).
type Admitted struct {
	Record FileRecord
}

func (e Admitted) RecordID() uuid.UUID { return e.Record.ID }
func (e Admitted) EventType() string   { return "admitted" }

// ProgressTick moves a record into uploading and advances its progress.
// Progress values are clamped to 0..100 and applied monotonically.
type ProgressTick struct {
	ID       uuid.UUID
	Progress int
}

func (e ProgressTick) RecordID() uuid.UUID { return e.ID }
func (e ProgressTick) EventType() string   { return "progress_tick" }

// Succeeded marks a record completed and forces progress to 100.
type Succeeded struct {
	ID uuid.UUID
}

func (e Succeeded) RecordID() uuid.UUID { return e.ID }
func (e Succeeded) EventType() string   { return "succeeded" }

// Failed marks a record as terminally errored. Progress keeps its last value.
type Failed struct {
	ID     uuid.UUID
	Reason string
}

func (e Failed) RecordID() uuid.UUID { return e.ID }
func (e Failed) EventType() string   { return "failed" }

// MetadataReady merges probed metadata into a completed record.
type MetadataReady struct {
	ID       uuid.UUID
	Metadata Metadata
}

func (e MetadataReady) RecordID() uuid.UUID { return e.ID }
func (e MetadataReady) EventType() string   { return "metadata_ready" }

// PreviewReady attaches an acquired preview handle to a completed record.
type PreviewReady struct {
	ID     uuid.UUID
	Handle PreviewHandle
}

func (e PreviewReady) RecordID() uuid.UUID { return e.ID }
func (e PreviewReady) EventType() string   { return "preview_ready" }

// Removed deletes a record from the collection.
type Removed struct {
	ID uuid.UUID
}

func (e Removed) RecordID() uuid.UUID { return e.ID }
func (e Removed) EventType() string   { return "removed" }

// Envelope wraps an Event with identity and timing for downstream consumers
// (kafka, journal). The payload is the event itself.
type Envelope struct {
	eventID    uuid.UUID
	event      Event
	occurredAt time.Time
}

func NewEnvelope(event Event) Envelope {
	return Envelope{
		eventID:    uuid.New(),
		event:      event,
		occurredAt: time.Now(),
	}
}

func (e Envelope) EventID() uuid.UUID    { return e.eventID }
func (e Envelope) EventType() string     { return e.event.EventType() }
func (e Envelope) RecordID() uuid.UUID   { return e.event.RecordID() }
func (e Envelope) OccurredAt() time.Time { return e.occurredAt }
func (e Envelope) Event() Event          { return e.event }

func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		EventID    uuid.UUID `json:"event_id"`
		EventType  string    `json:"event_type"`
		RecordID   uuid.UUID `json:"record_id"`
		Payload    Event     `json:"payload"`
		OccurredAt time.Time `json:"occurred_at"`
	}{
		EventID:    e.eventID,
		EventType:  e.event.EventType(),
		RecordID:   e.event.RecordID(),
		Payload:    e.event,
		OccurredAt: e.occurredAt,
	})
}
