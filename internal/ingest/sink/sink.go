package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mkorchagin/media-ingest/internal/ingest/kafka"
	"github.com/mkorchagin/media-ingest/internal/ingest/models"
	"github.com/mkorchagin/media-ingest/internal/storage/postgres"
)

// Sink consumes lifecycle event envelopes drained from the store feed.
type Sink interface {
	Consume(ctx context.Context, env models.Envelope) error
}

// Drain pumps the store's event feed into the configured sinks. A failing
// sink is logged and skipped; the drain keeps running until the feed closes
// or the context is cancelled.
type Drain struct {
	events <-chan models.Event
	sinks  []Sink
	logger zerolog.Logger
}

func NewDrain(events <-chan models.Event, sinks []Sink, logger zerolog.Logger) (*Drain, error) {
	if events == nil {
		return nil, fmt.Errorf("event feed is required")
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("at least one sink is required")
	}
	return &Drain{
		events: events,
		sinks:  sinks,
		logger: logger.With().Str("component", "event_drain").Logger(),
	}, nil
}

// Start blocks until the feed closes or ctx is cancelled.
func (d *Drain) Start(ctx context.Context) error {
	d.logger.Info().Int("sinks", len(d.sinks)).Msg("event drain started")

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Err(ctx.Err()).Msg("event drain stopped")
			return ctx.Err()

		case ev, ok := <-d.events:
			if !ok {
				d.logger.Info().Msg("event feed closed")
				return nil
			}

			env := models.NewEnvelope(ev)
			for _, s := range d.sinks {
				if err := s.Consume(ctx, env); err != nil {
					d.logger.Error().
						Err(err).
						Str("event_type", env.EventType()).
						Stringer("record_id", env.RecordID()).
						Msg("sink failed, skipping event")
				}
			}
		}
	}
}

// KafkaSink publishes every envelope as JSON, keyed by record id so one
// file's events land in one partition in order.
type KafkaSink struct {
	producer *kafka.Producer
}

func NewKafkaSink(producer *kafka.Producer) (*KafkaSink, error) {
	if producer == nil {
		return nil, fmt.Errorf("producer is required")
	}
	return &KafkaSink{producer: producer}, nil
}

func (s *KafkaSink) Consume(ctx context.Context, env models.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return s.producer.Publish(ctx, env.RecordID().String(), payload)
}

// RecordGetter looks up the current state of a record. Satisfied by the
// ingestion store and the pipeline.
type RecordGetter interface {
	Get(id uuid.UUID) (models.FileRecord, error)
}

// JournalSink persists terminal outcomes to the postgres journal. Only
// succeeded/failed envelopes are recorded; a record already removed by the
// time its terminal event drains is skipped.
type JournalSink struct {
	repo    *postgres.JournalRepo
	records RecordGetter
}

func NewJournalSink(repo *postgres.JournalRepo, records RecordGetter) (*JournalSink, error) {
	if repo == nil {
		return nil, fmt.Errorf("journal repository is required")
	}
	if records == nil {
		return nil, fmt.Errorf("record getter is required")
	}
	return &JournalSink{repo: repo, records: records}, nil
}

func (s *JournalSink) Consume(ctx context.Context, env models.Envelope) error {
	switch env.Event().(type) {
	case models.Succeeded, models.Failed:
	default:
		return nil
	}

	rec, err := s.records.Get(env.RecordID())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load record: %w", err)
	}
	if !rec.Status.Terminal() {
		// The feed is best-effort; a stale lookup is not worth journaling.
		return nil
	}

	return s.repo.Record(ctx, rec)
}
