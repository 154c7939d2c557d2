package uploader

import (
	"context"
	"errors"
	"time"

	"github.com/mkorchagin/media-ingest/internal/ingest/models"
)

// ProgressFunc receives percentage ticks (0..100) while an upload is in
// flight. Implementations must call it from a single goroutine per upload.
type ProgressFunc func(percent int)

// Uploader is the backend upload collaborator. The transfer is opaque to the
// pipeline: it reports progress, then either returns nil on success or an
// error describing the terminal failure. Implementations must honor ctx.
type Uploader interface {
	Upload(ctx context.Context, src models.Source, progress ProgressFunc) error
}

// Simulated drives a fake upload with configurable granularity. Used by the
// demo binary and by tests that need deterministic terminal outcomes.
type Simulated struct {
	Steps     int           // progress ticks per upload, default 5
	StepDelay time.Duration // pause between ticks, default 10ms
	FailWith  map[string]string
}

func (s *Simulated) Upload(ctx context.Context, src models.Source, progress ProgressFunc) error {
	steps := s.Steps
	if steps <= 0 {
		steps = 5
	}
	delay := s.StepDelay
	if delay <= 0 {
		delay = 10 * time.Millisecond
	}
	failMsg, failing := s.FailWith[src.Name()]

	for i := 1; i <= steps; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		// A failing transfer dies partway through, after some progress.
		if failing && i > steps/2 {
			return errors.New(failMsg)
		}
		progress(i * 100 / steps)
	}

	return nil
}
