package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/mkorchagin/media-ingest/internal/ingest/models"
	"github.com/mkorchagin/media-ingest/internal/ingest/uploader"
)

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Upload(ctx context.Context, src models.Source, progress uploader.ProgressFunc) error {
	args := m.Called(ctx, src, progress)
	return args.Error(0)
}
