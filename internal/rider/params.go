// Package rider owns the mutable rider parameter record. All mutation goes
// through Holder setters so that every committed change is validated and
// handed to the persistence hook; the per-tick path reads value snapshots and
// never holds the lock across a tick.
package rider

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// HistoryCap bounds the retained ride performance summaries. The oldest entry
// is evicted once the cap is reached.
const HistoryCap = 50

// Parameters is the rider-plus-bike configuration the estimation and learning
// subsystems operate on. FTPWatts and EstimatedFTPWatts are zero when unset.
type Parameters struct {
	MassKg            float64   `json:"mass_kg"`
	CdA               float64   `json:"cda"`
	Crr               float64   `json:"crr"`
	DrivetrainLoss    float64   `json:"drivetrain_loss"`
	FTPWatts          float64   `json:"ftp_watts,omitempty"`
	FTPUpdatedAt      time.Time `json:"ftp_updated_at,omitempty"`
	EstimatedFTPWatts float64   `json:"estimated_ftp_watts,omitempty"`

	// Tolerance multipliers scale the corresponding alert heuristics;
	// 1.0 is neutral.
	FatigueTolerance float64 `json:"fatigue_tolerance"`
	HeatTolerance    float64 `json:"heat_tolerance"`
	WindTolerance    float64 `json:"wind_tolerance"`
}

// Performance summarizes one completed ride for the rider's recent history.
type Performance struct {
	Date            time.Time `json:"date"`
	DurationSec     float64   `json:"duration_sec"`
	DistanceM       float64   `json:"distance_m"`
	AvgPower        float64   `json:"avg_power"`
	NormalizedPower float64   `json:"normalized_power"`
	TSS             float64   `json:"tss"`
	AvgTempC        float64   `json:"avg_temp_c"`
}

// DefaultParameters returns a plausible starting configuration for a rider
// who has not calibrated anything yet.
func DefaultParameters() Parameters {
	return Parameters{
		MassKg:           85,
		CdA:              0.32,
		Crr:              0.0045,
		DrivetrainLoss:   0.03,
		FatigueTolerance: 1.0,
		HeatTolerance:    1.0,
		WindTolerance:    1.0,
	}
}

// Validate checks the structural invariants of the record.
func (p Parameters) Validate() error {
	if p.MassKg <= 0 {
		return fmt.Errorf("mass must be positive, got %v", p.MassKg)
	}
	if p.Crr <= 0 || p.Crr >= 1 {
		return fmt.Errorf("crr must be in (0,1), got %v", p.Crr)
	}
	if p.DrivetrainLoss < 0 || p.DrivetrainLoss >= 1 {
		return fmt.Errorf("drivetrain loss must be in [0,1), got %v", p.DrivetrainLoss)
	}
	return nil
}

// EffectiveFTP returns the FTP downstream consumers should use: the manually
// set value if present, the learner's estimate otherwise. ok is false when
// neither is available.
func (p Parameters) EffectiveFTP() (watts float64, ok bool) {
	if p.FTPWatts > 0 {
		return p.FTPWatts, true
	}
	if p.EstimatedFTPWatts > 0 {
		return p.EstimatedFTPWatts, true
	}
	return 0, false
}

// SaveFunc persists a committed parameter record. Durability is the caller's
// concern; the hook must not be invoked on the tick path.
type SaveFunc func(Parameters) error

// Holder guards a Parameters record for concurrent readers and the occasional
// writer (calibration commit, learner retrain, manual update).
type Holder struct {
	mu      sync.RWMutex
	params  Parameters
	history []Performance
	save    SaveFunc
}

// NewHolder validates p and wraps it. save may be nil.
func NewHolder(p Parameters, save SaveFunc) (*Holder, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.FatigueTolerance == 0 {
		p.FatigueTolerance = 1.0
	}
	if p.HeatTolerance == 0 {
		p.HeatTolerance = 1.0
	}
	if p.WindTolerance == 0 {
		p.WindTolerance = 1.0
	}
	return &Holder{params: p, save: save}, nil
}

// Snapshot returns a copy of the current parameters.
func (h *Holder) Snapshot() Parameters {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.params
}

// History returns a copy of the performance history, most recent first.
func (h *Holder) History() []Performance {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Performance, len(h.history))
	copy(out, h.history)
	return out
}

func (h *Holder) commit() error {
	if h.save == nil {
		return nil
	}
	return h.save(h.params)
}

// SetFTP records a manual FTP update.
func (h *Holder) SetFTP(watts float64, now time.Time) error {
	if watts <= 0 {
		return fmt.Errorf("ftp must be positive, got %v", watts)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.params.FTPWatts = watts
	h.params.FTPUpdatedAt = now
	return h.commit()
}

// SetCdA commits a calibration or learner CdA result.
func (h *Holder) SetCdA(cda float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.params.CdA = cda
	return h.commit()
}

// SetCrr commits a coast-down Crr result.
func (h *Holder) SetCrr(crr float64) error {
	if crr <= 0 || crr >= 1 {
		return fmt.Errorf("crr must be in (0,1), got %v", crr)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.params.Crr = crr
	return h.commit()
}

// SetMass updates the rider-plus-bike mass.
func (h *Holder) SetMass(massKg float64) error {
	if massKg <= 0 {
		return fmt.Errorf("mass must be positive, got %v", massKg)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.params.MassKg = massKg
	return h.commit()
}

// SetEstimatedFTP records the learner's FTP estimate. The manual FTP is never
// overwritten here.
func (h *Holder) SetEstimatedFTP(watts float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.params.EstimatedFTPWatts = watts
	return h.commit()
}

// RecordPerformance appends a completed-ride summary, keeping the history
// sorted by date descending and bounded by HistoryCap.
func (h *Holder) RecordPerformance(p Performance) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append(h.history, p)
	sort.Slice(h.history, func(i, j int) bool {
		return h.history[i].Date.After(h.history[j].Date)
	})
	if len(h.history) > HistoryCap {
		h.history = h.history[:HistoryCap]
	}
	return h.commit()
}
