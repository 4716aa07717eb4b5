package strategy

import (
	"scanner_bot/internal/indicators"
	"scanner_bot/internal/models"
)

// Strategy — детектор сетапов. Анализ чистый: на вход закрытые свечи
// младшего и старшего ТФ плюс текущие пороги, на выход максимум один
// кандидат или nil (нет сетапа / мало данных). Пороги передаются на
// каждый вызов, стратегии состояния не держат.
type Strategy interface {
	Name() string
	Analyze(symbol string, ltf, htf []models.Candle, p *Params, ts *models.TunerState) *models.Candidate
}

// Params — статические пороги стратегий. Задаются конфигом и пресетом
// режима; воркеры скана работают со своей копией.
type Params struct {
	ATRStopMult float64
	TPsR        [3]float64
	ATRPeriod   int

	BBPeriod    int
	BBK         float64
	DonchianWin int
	BreakBuffer float64
	RetestTol   float64 // доля ATR

	OneHDispBodyMin  float64
	OneHDispLookback int

	SwingLeft     int
	SwingRight    int
	SweepEps      float64
	BosEps        float64
	FVGLookback   int
	OTELow        float64
	OTEHigh       float64
	SMCRequireFVG bool

	PrebreakATRx  float64
	EarlyBodyMin  float64
	EarlyRelVol   float64
	NetBodyTh     float64
	EarlyADXBonus float64

	FBBATRMin float64
	FBBATRMax float64
}

// DefaultParams — пресет balanced.
func DefaultParams() Params {
	return Params{
		ATRStopMult: 1.2,
		TPsR:        [3]float64{1.0, 1.6, 2.2},
		ATRPeriod:   14,

		BBPeriod:    20,
		BBK:         2.0,
		DonchianWin: 20,
		BreakBuffer: 0.0008,
		RetestTol:   0.25,

		OneHDispBodyMin:  0.55,
		OneHDispLookback: 2,

		SwingLeft:     2,
		SwingRight:    2,
		SweepEps:      0.0005,
		BosEps:        0.0005,
		FVGLookback:   20,
		OTELow:        0.62,
		OTEHigh:       0.79,
		SMCRequireFVG: true,

		PrebreakATRx:  0.40,
		EarlyBodyMin:  0.45,
		EarlyRelVol:   1.20,
		NetBodyTh:     0.80,
		EarlyADXBonus: 2.0,

		FBBATRMin: 0.0010,
		FBBATRMax: 0.028,
	}
}

// ComputeSLTP — общий расчёт стопа и тейков: risk = mult*ATR,
// тейки на R-мультипликаторах.
func (p *Params) ComputeSLTP(side models.Side, entry, atrv float64) (sl float64, tps [3]float64) {
	risk := p.ATRStopMult * atrv
	if side == models.SideLong {
		sl = entry - risk
		for i, r := range p.TPsR {
			tps[i] = entry + r*risk
		}
		return sl, tps
	}
	sl = entry + risk
	for i, r := range p.TPsR {
		tps[i] = entry - r*risk
	}
	return sl, tps
}

// MomentumOK — momentum-подтверждение по EMA9/21, продолжению цены и
// телу последней свечи. Используется и трендовой стратегией, и скорингом.
func MomentumOK(ltf []models.Candle, side models.Side) bool {
	if len(ltf) < 22 {
		return false
	}
	closes := models.Closes(ltf)
	e9 := indicators.EMA(closes, 9)
	e21 := indicators.EMA(closes, 21)
	bs := indicators.BodyStrength(models.Opens(ltf), closes, models.Highs(ltf), models.Lows(ltf))
	n := len(ltf) - 1
	if side == models.SideLong {
		return e9[n] > e21[n] && closes[n] >= closes[n-1] && bs[n] >= 0.60
	}
	return e9[n] < e21[n] && closes[n] <= closes[n-1] && bs[n] >= 0.60
}

// All — фиксированный набор стратегий в порядке опроса.
func All() []Strategy {
	return []Strategy{
		NewSMC(),
		NewTrendRange(),
		NewMomentum(),
	}
}
