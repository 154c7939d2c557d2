package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mkorchagin/media-ingest/internal/ingest/models"
)

type collectingSink struct {
	mu   sync.Mutex
	got  []models.Envelope
	fail error
}

func (s *collectingSink) Consume(_ context.Context, env models.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.got = append(s.got, env)
	return nil
}

func (s *collectingSink) envelopes() []models.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Envelope(nil), s.got...)
}

func TestNewDrain_Validation(t *testing.T) {
	events := make(chan models.Event)

	_, err := NewDrain(nil, []Sink{&collectingSink{}}, zerolog.Nop())
	require.Error(t, err)

	_, err = NewDrain(events, nil, zerolog.Nop())
	require.Error(t, err)
}

func TestDrain_DeliversUntilFeedCloses(t *testing.T) {
	events := make(chan models.Event, 8)
	cs := &collectingSink{}

	d, err := NewDrain(events, []Sink{cs}, zerolog.Nop())
	require.NoError(t, err)

	id := uuid.New()
	events <- models.ProgressTick{ID: id, Progress: 50}
	events <- models.Succeeded{ID: id}
	close(events)

	require.NoError(t, d.Start(context.Background()))

	got := cs.envelopes()
	require.Len(t, got, 2)
	require.Equal(t, "progress_tick", got[0].EventType())
	require.Equal(t, "succeeded", got[1].EventType())
	require.Equal(t, id, got[0].RecordID())
}

func TestDrain_StopsOnContextCancel(t *testing.T) {
	events := make(chan models.Event)
	d, err := NewDrain(events, []Sink{&collectingSink{}}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = d.Start(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDrain_FailingSinkIsSkipped(t *testing.T) {
	events := make(chan models.Event, 4)
	failing := &collectingSink{fail: errors.New("broker down")}
	healthy := &collectingSink{}

	d, err := NewDrain(events, []Sink{failing, healthy}, zerolog.Nop())
	require.NoError(t, err)

	events <- models.Succeeded{ID: uuid.New()}
	close(events)

	// One sink failing must not starve the others.
	require.NoError(t, d.Start(context.Background()))
	require.Len(t, healthy.envelopes(), 1)
}

type getterFunc func(id uuid.UUID) (models.FileRecord, error)

func (f getterFunc) Get(id uuid.UUID) (models.FileRecord, error) { return f(id) }

func TestJournalSink_SkipsRemovedRecords(t *testing.T) {
	s, err := NewJournalSink(nil, nil)
	require.Error(t, err)
	require.Nil(t, s)

	// A terminal event whose record is already gone is a silent no-op.
	js := &JournalSink{
		repo: nil,
		records: getterFunc(func(uuid.UUID) (models.FileRecord, error) {
			return models.FileRecord{}, models.ErrNotFound
		}),
	}
	env := models.NewEnvelope(models.Succeeded{ID: uuid.New()})
	require.NoError(t, js.Consume(context.Background(), env))
}

func TestJournalSink_IgnoresNonTerminalEvents(t *testing.T) {
	js := &JournalSink{
		repo: nil,
		records: getterFunc(func(uuid.UUID) (models.FileRecord, error) {
			t.Fatal("lookup should not happen for non-terminal events")
			return models.FileRecord{}, nil
		}),
	}

	env := models.NewEnvelope(models.ProgressTick{ID: uuid.New(), Progress: 10})
	require.NoError(t, js.Consume(context.Background(), env))
}
