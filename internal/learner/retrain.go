package learner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/crankcase-data/power.report/internal/rider"
)

// RideSource is the historical ride store as the learner sees it: a bounded
// read of the most recent rides. The learner never writes to it.
type RideSource interface {
	RecentRides(ctx context.Context, limit int) ([]Ride, error)
}

// Provider exposes the current learned coefficients to per-tick consumers.
// Implementations must make Learned safe to call on the tick path.
type Provider interface {
	Learned() Parameters
}

// Retrainer runs training off the tick path and publishes each result as an
// atomic snapshot swap: readers always see a complete, internally consistent
// Parameters record.
type Retrainer struct {
	source  RideSource
	riderH  *rider.Holder
	log     *zap.SugaredLogger
	current atomic.Pointer[Parameters]

	mu      sync.Mutex
	running bool
}

// NewRetrainer builds a retrainer publishing an empty "collecting" record
// until the first training pass completes.
func NewRetrainer(source RideSource, riderH *rider.Holder, log *zap.SugaredLogger) *Retrainer {
	r := &Retrainer{source: source, riderH: riderH, log: log}
	initial := Parameters{
		DragArea:        Coefficient{Status: StatusCollecting},
		FatigueRate:     Coefficient{Status: StatusCollecting},
		HeatCoefficient: Coefficient{Status: StatusCollecting},
		EstimatedFTP:    Coefficient{Status: StatusCollecting},
	}
	r.current.Store(&initial)
	return r
}

// Learned returns the current snapshot. Safe on the tick path: a single
// atomic load, no locks.
func (r *Retrainer) Learned() Parameters {
	return *r.current.Load()
}

// Retrain runs one synchronous training pass. Usable directly from tools and
// tests; the live path goes through Submit.
func (r *Retrainer) Retrain(ctx context.Context, now time.Time) (Parameters, error) {
	rides, err := r.source.RecentRides(ctx, MaxTrainingRides)
	if err != nil {
		return Parameters{}, err
	}

	params := Train(rides, r.riderH.Snapshot(), now)
	r.current.Store(&params)

	// Surface a trusted FTP estimate on the rider record. Manual FTP is
	// never overwritten; EffectiveFTP prefers it.
	if params.EstimatedFTP.Trusted() {
		if err := r.riderH.SetEstimatedFTP(params.EstimatedFTP.Value); err != nil {
			r.log.Warnw("failed to store estimated FTP", "error", err)
		}
	}

	r.log.Infow("retrain complete",
		"rides", params.RideCount,
		"drag_status", params.DragArea.Status,
		"fatigue_status", params.FatigueRate.Status,
		"heat_status", params.HeatCoefficient.Status,
		"ftp_status", params.EstimatedFTP.Status,
	)
	return params, nil
}

// Submit schedules a background training pass, typically at ride end. The
// pass is skipped when one is already running; done, if non-nil, is invoked
// with the outcome. The pass outlives the submitter: cancellation of ctx
// (e.g. an HTTP request context after the handler returns) does not abort it.
func (r *Retrainer) Submit(ctx context.Context, now time.Time, done func(Parameters, error)) bool {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return false
	}
	r.running = true
	r.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		params, err := r.Retrain(ctx, now)
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		if err != nil {
			r.log.Errorw("retrain failed", "error", err)
		}
		if done != nil {
			done(params, err)
		}
	}()
	return true
}
