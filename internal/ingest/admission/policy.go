package admission

import (
	"fmt"

	"github.com/mkorchagin/media-ingest/internal/ingest/models"
)

// Reason explains why a candidate was turned away at intake.
type Reason string

const (
	ReasonType     Reason = "type not accepted"
	ReasonTooLarge Reason = "file too large"
	ReasonCapacity Reason = "capacity exhausted"
)

type Rejection struct {
	Source models.Source
	Reason Reason
}

// Result splits an offered batch into the admitted prefix-stable subset and
// the rejects with their reasons. Rejected candidates never become records.
type Result struct {
	Admitted []models.Source
	Rejected []Rejection
}

type Config struct {
	AcceptedTypes    map[string]struct{}
	MaxFiles         int
	MaxFileSizeBytes int64
}

type Policy struct {
	cfg Config
}

func New(cfg Config) (*Policy, error) {
	if len(cfg.AcceptedTypes) == 0 {
		return nil, fmt.Errorf("accepted types set is empty")
	}
	if cfg.MaxFiles <= 0 {
		return nil, fmt.Errorf("max files must be positive, got: %d", cfg.MaxFiles)
	}
	if cfg.MaxFileSizeBytes <= 0 {
		return nil, fmt.Errorf("max file size must be positive, got: %d", cfg.MaxFileSizeBytes)
	}
	return &Policy{cfg: cfg}, nil
}

// Filter applies the admission rules to a candidate batch in offer order.
// currentCount is the number of records already committed to the collection;
// admission stops once the remaining slot budget is spent. Pure function.
func (p *Policy) Filter(batch []models.Source, currentCount int) Result {
	var res Result

	budget := p.cfg.MaxFiles - currentCount
	if budget < 0 {
		budget = 0
	}

	for _, src := range batch {
		if _, ok := p.cfg.AcceptedTypes[src.MimeType()]; !ok {
			res.Rejected = append(res.Rejected, Rejection{Source: src, Reason: ReasonType})
			continue
		}
		if src.Size() > p.cfg.MaxFileSizeBytes {
			res.Rejected = append(res.Rejected, Rejection{Source: src, Reason: ReasonTooLarge})
			continue
		}
		if len(res.Admitted) >= budget {
			res.Rejected = append(res.Rejected, Rejection{Source: src, Reason: ReasonCapacity})
			continue
		}
		res.Admitted = append(res.Admitted, src)
	}

	return res
}
