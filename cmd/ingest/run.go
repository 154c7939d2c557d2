package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mkorchagin/media-ingest/internal/app"
	"github.com/mkorchagin/media-ingest/internal/config"
	"github.com/mkorchagin/media-ingest/internal/ingest/admission"
	"github.com/mkorchagin/media-ingest/internal/ingest/kafka"
	"github.com/mkorchagin/media-ingest/internal/ingest/models"
	"github.com/mkorchagin/media-ingest/internal/ingest/pipeline"
	"github.com/mkorchagin/media-ingest/internal/ingest/sink"
	"github.com/mkorchagin/media-ingest/internal/ingest/uploader"
	"github.com/mkorchagin/media-ingest/internal/storage/postgres"
)

// run ingests the files named on the command line and waits for every record
// to reach a terminal state.
func run(logger zerolog.Logger) app.Runner {
	return func(ctx context.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		paths := os.Args[1:]
		if len(paths) == 0 {
			return fmt.Errorf("usage: ingest <file> [file...]")
		}

		var up uploader.Uploader = &uploader.Simulated{Steps: 10, StepDelay: 50 * time.Millisecond}
		if cfg.UploadURL != "" {
			if up, err = uploader.NewHTTP(cfg.UploadURL, logger); err != nil {
				return fmt.Errorf("http uploader: %w", err)
			}
		}

		p, err := pipeline.New(pipeline.Options{
			Policy: admission.Config{
				AcceptedTypes:    cfg.AcceptedTypeSet(),
				MaxFiles:         cfg.MaxFiles,
				MaxFileSizeBytes: cfg.MaxFileSizeBytes(),
			},
			Uploader: up,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("build pipeline: %w", err)
		}
		defer p.Close()

		g, gctx := errgroup.WithContext(ctx)

		if sinks, err := buildSinks(gctx, cfg, p, logger); err != nil {
			return err
		} else if len(sinks) > 0 {
			drain, err := sink.NewDrain(p.Events(), sinks, logger)
			if err != nil {
				return fmt.Errorf("build drain: %w", err)
			}
			g.Go(func() error {
				// Feed closure on pipeline Close ends the drain cleanly.
				if err := drain.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		}

		batch := make([]models.Source, 0, len(paths))
		for _, path := range paths {
			src, err := models.NewFileSource(path)
			if err != nil {
				return fmt.Errorf("source %s: %w", path, err)
			}
			batch = append(batch, src)
		}

		admitted, rejected, err := p.Add(batch)
		if err != nil {
			return fmt.Errorf("add batch: %w", err)
		}
		for _, rej := range rejected {
			logger.Warn().
				Str("name", rej.Source.Name()).
				Str("reason", string(rej.Reason)).
				Msg("rejected")
		}
		if len(admitted) == 0 {
			return fmt.Errorf("no files admitted")
		}

		if err := waitTerminal(ctx, p); err != nil {
			return err
		}

		for _, rec := range p.Records() {
			ev := logger.Info().
				Str("name", rec.Name).
				Str("status", string(rec.Status)).
				Int("progress", rec.Progress)
			if rec.Metadata != nil {
				ev = ev.Str("format", rec.Metadata.Format).
					Int("width", rec.Metadata.Width).
					Int("height", rec.Metadata.Height)
			}
			if rec.ErrorMessage != "" {
				ev = ev.Str("error", rec.ErrorMessage)
			}
			ev.Msg("final state")
		}

		if err := p.Close(); err != nil {
			return fmt.Errorf("close pipeline: %w", err)
		}
		return g.Wait()
	}
}

func buildSinks(ctx context.Context, cfg config.Config, p *pipeline.Pipeline, logger zerolog.Logger) ([]sink.Sink, error) {
	var sinks []sink.Sink

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic != "" {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		ks, err := sink.NewKafkaSink(producer)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, ks)
	}

	if cfg.DatabaseURL != "" {
		db, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		js, err := sink.NewJournalSink(postgres.NewJournalRepo(db), p)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, js)
	}

	return sinks, nil
}

func waitTerminal(ctx context.Context, p *pipeline.Pipeline) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done := true
			for _, rec := range p.Records() {
				if !rec.Status.Terminal() {
					done = false
					break
				}
			}
			if done {
				return nil
			}
		}
	}
}
