package passmap

import (
	"errors"

	"github.com/and161185/onepass/internal/metrics"
	"github.com/and161185/onepass/internal/model"
)

// Map returns the pass built from raw, or nil when raw is absent or invalid.
// Callers cannot tell a corrupt document from a missing one.
func Map(raw model.RawRecord) *model.Pass {
	p, err := Parse(raw)
	if err != nil {
		var rej *RejectionError
		if errors.As(err, &rej) && raw != nil {
			metrics.PassRejections.WithLabelValues(rej.Field).Inc()
		}
		return nil
	}
	return &p
}

// MapSnapshot maps an observed document; a missing document yields nil.
func MapSnapshot(s model.Snapshot) *model.Pass {
	if !s.Exists {
		return nil
	}
	return Map(s.Record)
}
