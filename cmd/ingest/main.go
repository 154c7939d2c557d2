package main

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/mkorchagin/media-ingest/internal/app"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	os.Exit(app.Run("ingest", logger, run(logger)))
}
