package models

import "time"

// Границы самонастройки порогов.
const (
	MinScoreLo = 56.0
	MinScoreHi = 80.0
	ADXMinLo   = 12.0
	ADXMinHi   = 26.0
	BWidthLo   = 0.045
	BWidthHi   = 0.090
	VolMultLo  = 1.10
	VolMultHi  = 1.80
)

// TunerState — динамические пороги сканера. Меняются автотюнером и
// командой /mode, всегда в пределах границ выше.
type TunerState struct {
	BaseMinScore float64   `json:"base_min_score"`
	DynMinScore  float64   `json:"dyn_min_score"`
	ADXTrendMin  float64   `json:"adx_trend_min"`
	BWidthRange  float64   `json:"bwidth_range"`
	VolMultReq   float64   `json:"vol_mult_req"`
	LastTuneAt   time.Time `json:"last_tune_at"`

	// адаптивное ослабление при пустых сканах
	EmptyScans int     `json:"empty_scans"`
	RelaxAcc   float64 `json:"relax_acc"`
}

// Clamp приводит все пороги к допустимым границам.
func (t *TunerState) Clamp() {
	t.BaseMinScore = clampf(t.BaseMinScore, MinScoreLo, MinScoreHi)
	t.DynMinScore = clampf(t.DynMinScore, MinScoreLo, MinScoreHi)
	t.ADXTrendMin = clampf(t.ADXTrendMin, ADXMinLo, ADXMinHi)
	t.BWidthRange = clampf(t.BWidthRange, BWidthLo, BWidthHi)
	t.VolMultReq = clampf(t.VolMultReq, VolMultLo, VolMultHi)
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
