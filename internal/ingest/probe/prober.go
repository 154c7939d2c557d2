package probe

import (
	"context"
	"image"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog"

	"github.com/mkorchagin/media-ingest/internal/ingest/models"
)

const defaultTimeout = 5 * time.Second

// DurationDecoder extracts a playback duration from a media payload.
// Container parsing is delegated to the runtime hosting the pipeline; when no
// decoder is wired, duration probing degrades silently.
type DurationDecoder interface {
	Duration(ctx context.Context, src models.Source) (float64, error)
}

// Prober inspects completed files for intrinsic properties. A probe is
// attempted exactly once per record and never fails the record: any decode
// error or timeout degrades to format-only metadata.
type Prober struct {
	timeout   time.Duration
	durations DurationDecoder
	logger    zerolog.Logger
}

type Option func(*Prober)

func WithTimeout(d time.Duration) Option {
	return func(p *Prober) { p.timeout = d }
}

func WithDurationDecoder(dec DurationDecoder) Option {
	return func(p *Prober) { p.durations = dec }
}

func New(logger zerolog.Logger, opts ...Option) *Prober {
	p := &Prober{
		timeout: defaultTimeout,
		logger:  logger.With().Str("component", "metadata_prober").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe returns the record's intrinsic metadata. Format is always populated;
// dimensions and duration are best effort.
func (p *Prober) Probe(ctx context.Context, rec models.FileRecord) models.Metadata {
	meta := models.Metadata{Format: rec.MimeType}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	switch {
	case strings.HasPrefix(rec.MimeType, "image/"):
		w, h, err := p.decodeDimensions(ctx, rec.Source)
		if err != nil {
			p.logger.Debug().
				Err(err).
				Stringer("record_id", rec.ID).
				Msg("dimension probe degraded")
			return meta
		}
		meta.Width, meta.Height = w, h

	case strings.HasPrefix(rec.MimeType, "video/"), strings.HasPrefix(rec.MimeType, "audio/"):
		if p.durations == nil {
			return meta
		}
		d, err := p.durations.Duration(ctx, rec.Source)
		if err != nil {
			p.logger.Debug().
				Err(err).
				Stringer("record_id", rec.ID).
				Msg("duration probe degraded")
			return meta
		}
		meta.DurationSeconds = d
	}

	return meta
}

// decodeDimensions reads just the image header. The decode runs on its own
// goroutine so a stuck reader cannot outlive the probe timeout.
func (p *Prober) decodeDimensions(ctx context.Context, src models.Source) (int, int, error) {
	type result struct {
		cfg image.Config
		err error
	}
	ch := make(chan result, 1)

	go func() {
		rc, err := src.Open()
		if err != nil {
			ch <- result{err: err}
			return
		}
		defer rc.Close()

		cfg, _, err := image.DecodeConfig(rc)
		ch <- result{cfg: cfg, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return 0, 0, r.err
		}
		return r.cfg.Width, r.cfg.Height, nil
	}
}
