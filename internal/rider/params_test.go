package rider

import (
	"testing"
	"time"
)

func TestParametersValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Parameters)
		wantErr bool
	}{
		{"defaults valid", func(p *Parameters) {}, false},
		{"zero mass", func(p *Parameters) { p.MassKg = 0 }, true},
		{"negative mass", func(p *Parameters) { p.MassKg = -70 }, true},
		{"zero crr", func(p *Parameters) { p.Crr = 0 }, true},
		{"crr at one", func(p *Parameters) { p.Crr = 1 }, true},
		{"loss at one", func(p *Parameters) { p.DrivetrainLoss = 1 }, true},
		{"zero loss ok", func(p *Parameters) { p.DrivetrainLoss = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParameters()
			tt.mutate(&p)
			if err := p.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEffectiveFTP(t *testing.T) {
	p := DefaultParameters()
	if _, ok := p.EffectiveFTP(); ok {
		t.Error("expected no FTP for fresh parameters")
	}

	p.EstimatedFTPWatts = 242
	if w, ok := p.EffectiveFTP(); !ok || w != 242 {
		t.Errorf("EffectiveFTP() = %v, %v; want 242, true", w, ok)
	}

	// Manual FTP wins over the estimate.
	p.FTPWatts = 250
	if w, _ := p.EffectiveFTP(); w != 250 {
		t.Errorf("EffectiveFTP() = %v, want manual 250", w)
	}
}

func TestHolderSaveHook(t *testing.T) {
	var saves []Parameters
	h, err := NewHolder(DefaultParameters(), func(p Parameters) error {
		saves = append(saves, p)
		return nil
	})
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}

	if err := h.SetFTP(265, time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("SetFTP: %v", err)
	}
	if err := h.SetCdA(0.29); err != nil {
		t.Fatalf("SetCdA: %v", err)
	}

	if len(saves) != 2 {
		t.Fatalf("save hook called %d times, want 2", len(saves))
	}
	if saves[1].FTPWatts != 265 || saves[1].CdA != 0.29 {
		t.Errorf("last save = %+v, want ftp 265 and cda 0.29", saves[1])
	}
	if got := h.Snapshot(); got.CdA != 0.29 {
		t.Errorf("Snapshot CdA = %v, want 0.29", got.CdA)
	}
}

func TestHolderRejectsInvalidWrites(t *testing.T) {
	h, _ := NewHolder(DefaultParameters(), nil)
	if err := h.SetFTP(0, time.Now()); err == nil {
		t.Error("SetFTP(0) should fail")
	}
	if err := h.SetCrr(1.5); err == nil {
		t.Error("SetCrr(1.5) should fail")
	}
	if err := h.SetMass(-1); err == nil {
		t.Error("SetMass(-1) should fail")
	}
}

func TestHistoryCapAndOrder(t *testing.T) {
	h, _ := NewHolder(DefaultParameters(), nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < HistoryCap+10; i++ {
		err := h.RecordPerformance(Performance{
			Date:     base.AddDate(0, 0, i),
			AvgPower: float64(100 + i),
		})
		if err != nil {
			t.Fatalf("RecordPerformance: %v", err)
		}
	}

	hist := h.History()
	if len(hist) != HistoryCap {
		t.Fatalf("history length = %d, want %d", len(hist), HistoryCap)
	}
	// Most recent first; the 10 oldest rides were evicted.
	if !hist[0].Date.Equal(base.AddDate(0, 0, HistoryCap+9)) {
		t.Errorf("newest entry date = %v, want %v", hist[0].Date, base.AddDate(0, 0, HistoryCap+9))
	}
	if !hist[len(hist)-1].Date.Equal(base.AddDate(0, 0, 10)) {
		t.Errorf("oldest entry date = %v, want %v", hist[len(hist)-1].Date, base.AddDate(0, 0, 10))
	}
}

func TestHolderAppliesToleranceDefaults(t *testing.T) {
	p := DefaultParameters()
	p.FatigueTolerance = 0
	p.HeatTolerance = 0
	p.WindTolerance = 0
	h, err := NewHolder(p, nil)
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	got := h.Snapshot()
	if got.FatigueTolerance != 1 || got.HeatTolerance != 1 || got.WindTolerance != 1 {
		t.Errorf("tolerances = %+v, want all 1.0", got)
	}
}
