package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mkorchagin/media-ingest/internal/ingest/admission"
	"github.com/mkorchagin/media-ingest/internal/ingest/domain"
	"github.com/mkorchagin/media-ingest/internal/ingest/models"
	"github.com/mkorchagin/media-ingest/internal/ingest/preview"
	"github.com/mkorchagin/media-ingest/internal/ingest/probe"
	"github.com/mkorchagin/media-ingest/internal/ingest/store"
	"github.com/mkorchagin/media-ingest/internal/ingest/uploader"
)

var ErrClosed = errors.New("pipeline is closed")

// Options configures a Pipeline. Uploader and Policy are required; the rest
// default sensibly.
type Options struct {
	Policy   admission.Config
	Uploader uploader.Uploader
	Prober   *probe.Prober
	Logger   zerolog.Logger

	// OnChange fires with a fresh snapshot after every collection mutation.
	// It runs on the mutating goroutine and must not call back into the
	// pipeline.
	OnChange func([]models.FileRecord)
	// OnFileRemove fires after a consumer-initiated removal completes.
	OnFileRemove func(uuid.UUID)
}

// Pipeline owns the ingestion lifecycle: it admits batches, runs one upload
// task per admitted file, and hands successful uploads off to the preview
// manager and the metadata prober. All state lives in the store; the pipeline
// only ever mutates it through events.
type Pipeline struct {
	policy   *admission.Policy
	store    *store.Store
	previews *preview.Manager
	prober   *probe.Prober
	uploader uploader.Uploader
	logger   zerolog.Logger

	clock func() time.Time
	idGen func() uuid.UUID

	rootCtx    context.Context
	rootCancel context.CancelFunc
	group      *errgroup.Group

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
	closed  bool

	onRemove func(uuid.UUID)
}

func New(opts Options) (*Pipeline, error) {
	if opts.Uploader == nil {
		return nil, fmt.Errorf("uploader is required")
	}

	policy, err := admission.New(opts.Policy)
	if err != nil {
		return nil, fmt.Errorf("admission policy: %w", err)
	}

	prober := opts.Prober
	if prober == nil {
		prober = probe.New(opts.Logger)
	}

	st := store.New(opts.Logger)
	if opts.OnChange != nil {
		st.OnChange(opts.OnChange)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pipeline{
		policy:     policy,
		store:      st,
		previews:   preview.NewManager(opts.Logger),
		prober:     prober,
		uploader:   opts.Uploader,
		logger:     opts.Logger.With().Str("component", "upload_pipeline").Logger(),
		clock:      time.Now,
		idGen:      uuid.New,
		rootCtx:    ctx,
		rootCancel: cancel,
		group:      &errgroup.Group{},
		cancels:    make(map[uuid.UUID]context.CancelFunc),
		onRemove:   opts.OnFileRemove,
	}, nil
}

// Add offers a batch of files to the pipeline. The admitted subset is
// inserted as pending records and each gets its own upload task; rejects are
// returned with reasons and leave no trace in the collection.
func (p *Pipeline) Add(batch []models.Source) ([]models.FileRecord, []admission.Rejection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, nil, ErrClosed
	}

	res := p.policy.Filter(batch, p.store.Len())
	for _, rej := range res.Rejected {
		p.logger.Warn().
			Str("name", rej.Source.Name()).
			Str("mime_type", rej.Source.MimeType()).
			Int64("size", rej.Source.Size()).
			Str("reason", string(rej.Reason)).
			Msg("file rejected at admission")
	}

	admitted := make([]models.FileRecord, 0, len(res.Admitted))
	for _, src := range res.Admitted {
		now := p.clock()
		rec := models.FileRecord{
			ID:        p.idGen(),
			Source:    src,
			Name:      src.Name(),
			Size:      src.Size(),
			MimeType:  src.MimeType(),
			Status:    domain.Pending,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := p.store.Apply(models.Admitted{Record: rec}); err != nil {
			return admitted, res.Rejected, fmt.Errorf("admit %s: %w", rec.Name, err)
		}
		admitted = append(admitted, rec)

		p.startUploadLocked(rec)
	}

	return admitted, res.Rejected, nil
}

func (p *Pipeline) startUploadLocked(rec models.FileRecord) {
	ctx, cancel := context.WithCancel(p.rootCtx)
	p.cancels[rec.ID] = cancel

	p.group.Go(func() error {
		defer cancel()
		defer p.forgetCancel(rec.ID)
		p.runUpload(ctx, rec)
		return nil
	})
}

func (p *Pipeline) forgetCancel(id uuid.UUID) {
	p.mu.Lock()
	delete(p.cancels, id)
	p.mu.Unlock()
}

// runUpload drives one file to a terminal state. Each file is independent:
// its failure, removal, or slowness never touches a sibling.
func (p *Pipeline) runUpload(ctx context.Context, rec models.FileRecord) {
	logger := p.logger.With().
		Stringer("record_id", rec.ID).
		Str("name", rec.Name).
		Logger()

	// Enter uploading before the transport starts so the collection never
	// shows an in-flight file as pending.
	if err := p.apply(models.ProgressTick{ID: rec.ID, Progress: 0}); err != nil {
		return // removed before the task ran
	}

	last := 0
	report := func(pct int) {
		if pct <= last {
			return
		}
		last = pct
		_ = p.apply(models.ProgressTick{ID: rec.ID, Progress: pct})
	}

	if err := p.uploader.Upload(ctx, rec.Source, report); err != nil {
		logger.Warn().Err(err).Msg("upload failed")
		_ = p.apply(models.Failed{ID: rec.ID, Reason: err.Error()})
		return
	}

	if err := p.apply(models.Succeeded{ID: rec.ID}); err != nil {
		return // removed mid-flight, nothing to enrich
	}
	logger.Info().Msg("upload completed")

	// Follow-ups run after the completed transition and never fail the
	// record.
	if preview.Previewable(rec.MimeType) {
		if h, err := p.previews.Acquire(rec); err == nil {
			if applyErr := p.apply(models.PreviewReady{ID: rec.ID, Handle: h}); applyErr != nil {
				// Record vanished between acquire and attach; the handle
				// must not leak.
				_ = p.previews.Release(h)
			}
		} else {
			logger.Debug().Err(err).Msg("preview handle not acquired")
		}
	}

	meta := p.prober.Probe(ctx, rec)
	_ = p.apply(models.MetadataReady{ID: rec.ID, Metadata: meta})
}

// apply forwards an event to the store, treating a missing record as a
// silent no-op: late events from in-flight work after removal are expected.
func (p *Pipeline) apply(ev models.Event) error {
	err := p.store.Apply(ev)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		p.logger.Error().
			Err(err).
			Str("event_type", ev.EventType()).
			Stringer("record_id", ev.RecordID()).
			Msg("event rejected by store")
	}
	return err
}

// Remove deletes a record on consumer request. The record's upload context
// is cancelled, its preview handle revoked, and its id retired; events still
// in flight for it become no-ops.
func (p *Pipeline) Remove(id uuid.UUID) error {
	if id == uuid.Nil {
		return models.ErrInvalidArgument
	}

	p.mu.Lock()
	cancel := p.cancels[id]
	delete(p.cancels, id)
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if err := p.store.Apply(models.Removed{ID: id}); err != nil {
		return err
	}
	// Release after the record is gone: a concurrent acquire that lost the
	// race fails to attach and releases its own handle.
	_ = p.previews.ReleaseByRecord(id)

	p.logger.Info().Stringer("record_id", id).Msg("file removed")

	if p.onRemove != nil {
		p.onRemove(id)
	}
	return nil
}

// Records returns the current collection in admission order.
func (p *Pipeline) Records() []models.FileRecord {
	return p.store.Snapshot()
}

// Get returns one record by id.
func (p *Pipeline) Get(id uuid.UUID) (models.FileRecord, error) {
	return p.store.Get(id)
}

// Events exposes the store's mutation feed for sinks.
func (p *Pipeline) Events() <-chan models.Event {
	return p.store.Events()
}

// Previews exposes handle accounting, mainly for teardown checks.
func (p *Pipeline) Previews() *preview.Manager {
	return p.previews
}

// Close cancels all in-flight work, waits for upload tasks to finish, and
// releases every remaining preview handle. Idempotent.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.rootCancel()
	_ = p.group.Wait()

	p.previews.ReleaseAll()
	p.store.Close()

	p.logger.Info().Msg("pipeline closed")
	return nil
}
