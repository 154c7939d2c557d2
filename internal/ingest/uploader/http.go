package uploader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkorchagin/media-ingest/internal/ingest/models"
)

// HTTP streams payloads to a backend endpoint with PUT. Progress is derived
// from bytes read off the source as the request body is consumed.
type HTTP struct {
	client  *http.Client
	baseURL string
	logger  zerolog.Logger
}

func NewHTTP(baseURL string, logger zerolog.Logger) (*HTTP, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base url is empty")
	}
	return &HTTP{
		client:  &http.Client{Timeout: 10 * time.Minute},
		baseURL: baseURL,
		logger:  logger.With().Str("component", "http_uploader").Logger(),
	}, nil
}

func (u *HTTP) Upload(ctx context.Context, src models.Source, progress ProgressFunc) error {
	rc, err := src.Open()
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer rc.Close()

	body := &progressReader{r: rc, total: src.Size(), report: progress}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.baseURL+"/"+url.PathEscape(src.Name()), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", src.MimeType())
	req.ContentLength = src.Size()

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload rejected: %s", resp.Status)
	}

	u.logger.Debug().
		Str("name", src.Name()).
		Int64("size", src.Size()).
		Msg("upload accepted")
	return nil
}

// progressReader counts bytes flowing into the request body and reports
// percentage steps at most once per percent.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   int
	report ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)

	if p.total > 0 && p.report != nil {
		pct := int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct > p.last {
			p.last = pct
			p.report(pct)
		}
	}
	return n, err
}
