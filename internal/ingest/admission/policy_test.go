package admission

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkorchagin/media-ingest/internal/ingest/models"
)

func testConfig() Config {
	return Config{
		AcceptedTypes: map[string]struct{}{
			"image/png":  {},
			"image/jpeg": {},
			"video/mp4":  {},
		},
		MaxFiles:         2,
		MaxFileSizeBytes: 50 * 1024 * 1024,
	}
}

func src(name, mime string, size int) *models.BytesSource {
	return models.NewBytesSource(name, mime, make([]byte, size))
}

func TestNew_Validation(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "empty types",
			cfg:     Config{MaxFiles: 2, MaxFileSizeBytes: 1},
			wantErr: "accepted types set is empty",
		},
		{
			name: "zero max files",
			cfg: Config{
				AcceptedTypes:    map[string]struct{}{"image/png": {}},
				MaxFileSizeBytes: 1,
			},
			wantErr: "max files must be positive",
		},
		{
			name: "zero max size",
			cfg: Config{
				AcceptedTypes: map[string]struct{}{"image/png": {}},
				MaxFiles:      2,
			},
			wantErr: "max file size must be positive",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := New(tc.cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
			require.Nil(t, p)
		})
	}
}

func TestFilter_CapacityIsPrefixStable(t *testing.T) {
	p, err := New(testConfig())
	require.NoError(t, err)

	// maxFiles=2, three valid 1MB PNGs: first two admitted in offer order.
	batch := []models.Source{
		src("a.png", "image/png", 1<<20),
		src("b.png", "image/png", 1<<20),
		src("c.png", "image/png", 1<<20),
	}

	res := p.Filter(batch, 0)
	require.Len(t, res.Admitted, 2)
	require.Equal(t, "a.png", res.Admitted[0].Name())
	require.Equal(t, "b.png", res.Admitted[1].Name())

	require.Len(t, res.Rejected, 1)
	require.Equal(t, "c.png", res.Rejected[0].Source.Name())
	require.Equal(t, ReasonCapacity, res.Rejected[0].Reason)
}

func TestFilter_CountsCommittedRecords(t *testing.T) {
	p, err := New(testConfig())
	require.NoError(t, err)

	batch := []models.Source{src("a.png", "image/png", 1)}

	res := p.Filter(batch, 2)
	require.Empty(t, res.Admitted)
	require.Len(t, res.Rejected, 1)
	require.Equal(t, ReasonCapacity, res.Rejected[0].Reason)

	// A collection over capacity must not underflow the budget.
	res = p.Filter(batch, 5)
	require.Empty(t, res.Admitted)
}

func TestFilter_RejectsUnacceptedType(t *testing.T) {
	p, err := New(testConfig())
	require.NoError(t, err)

	res := p.Filter([]models.Source{src("x.exe", "application/octet-stream", 1)}, 0)
	require.Empty(t, res.Admitted)
	require.Len(t, res.Rejected, 1)
	require.Equal(t, ReasonType, res.Rejected[0].Reason)
}

func TestFilter_RejectsOversizedFile(t *testing.T) {
	p, err := New(testConfig())
	require.NoError(t, err)

	// 60MB mp4 over a 50MB ceiling: no record, size checked before capacity.
	res := p.Filter([]models.Source{src("big.mp4", "video/mp4", 60<<20)}, 0)
	require.Empty(t, res.Admitted)
	require.Len(t, res.Rejected, 1)
	require.Equal(t, ReasonTooLarge, res.Rejected[0].Reason)
}

func TestFilter_RejectsDoNotConsumeBudget(t *testing.T) {
	p, err := New(testConfig())
	require.NoError(t, err)

	// An invalid candidate ahead of valid ones must not eat a slot.
	batch := []models.Source{
		src("x.exe", "application/octet-stream", 1),
		src("a.png", "image/png", 1),
		src("b.jpg", "image/jpeg", 1),
	}

	res := p.Filter(batch, 0)
	require.Len(t, res.Admitted, 2)
	require.Equal(t, "a.png", res.Admitted[0].Name())
	require.Equal(t, "b.jpg", res.Admitted[1].Name())
}

func TestFilter_EmptyBatch(t *testing.T) {
	p, err := New(testConfig())
	require.NoError(t, err)

	res := p.Filter(nil, 0)
	require.Empty(t, res.Admitted)
	require.Empty(t, res.Rejected)
}
