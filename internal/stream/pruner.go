package stream

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/alfredjeanlab/calfeed/internal/metrics"
	"github.com/alfredjeanlab/calfeed/internal/model"
	"github.com/alfredjeanlab/calfeed/internal/store"
)

// Pruner trims the change log. Sessions call MaybeTrim once per loop
// iteration, so trimming runs more often the more sessions are open. Trims
// from concurrent sessions need no coordination: each is a delete by
// threshold and a redundant run removes nothing.
type Pruner struct {
	log         store.ChangeLog
	policy      model.RetentionPolicy
	probability float64
	logger      *slog.Logger

	rand func() float64
	now  func() time.Time
}

// NewPruner creates a Pruner that trims with the given per-call probability.
func NewPruner(log store.ChangeLog, policy model.RetentionPolicy, probability float64, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		log:         log,
		policy:      policy,
		probability: probability,
		logger:      logger,
		rand:        rand.Float64,
		now:         time.Now,
	}
}

// Policy returns the retention policy applied by Trim.
func (p *Pruner) Policy() model.RetentionPolicy {
	return p.policy
}

// MaybeTrim runs Trim with the configured probability and reports whether it
// ran. Errors are logged and ignored.
func (p *Pruner) MaybeTrim(ctx context.Context) bool {
	if p == nil || p.policy.IsZero() || p.probability <= 0 {
		return false
	}
	if p.probability < 1 && p.rand() >= p.probability {
		return false
	}
	_, _ = p.Trim(ctx)
	return true
}

// Trim applies the retention policy once and returns the number of records
// removed.
func (p *Pruner) Trim(ctx context.Context) (int64, error) {
	n, err := p.log.TrimChanges(ctx, p.policy, p.now())
	metrics.TrimRuns.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		p.logger.Warn("failed to trim change log", "error", err)
		return n, err
	}
	if n > 0 {
		metrics.RecordsTrimmed.Add(float64(n))
		p.logger.Debug("trimmed change log", "removed", n)
	}
	return n, nil
}
