package strategy

import (
	"fmt"
	"math"

	"scanner_bot/internal/indicators"
	"scanner_bot/internal/models"
)

// Momentum — ранний вход у уровня пробоя Donchian: EMA-выравнивание
// плюс подтверждение 2-из-3 (тело, относительный объём, чистое тело
// трёх баров). До уровня — режим PREMO с бонусом за близость.
type Momentum struct{}

func NewMomentum() *Momentum {
	return &Momentum{}
}

func (s *Momentum) Name() string { return "momentum" }

func (s *Momentum) Analyze(symbol string, ltf, htf []models.Candle, p *Params, ts *models.TunerState) *models.Candidate {
	if len(ltf) < 80 || len(htf) < 60 {
		return nil
	}
	c := models.Closes(ltf)
	h := models.Highs(ltf)
	l := models.Lows(ltf)
	n := len(ltf) - 1

	atrv := indicators.ATRWilder(h, l, c, p.ATRPeriod)[n]
	closePx := c[n]

	view := indicators.HTFGateAndBias(htf, p.OneHDispLookback, p.OneHDispBodyMin, ts.ADXTrendMin)

	e9 := indicators.EMA(c, 9)
	e21 := indicators.EMA(c, 21)
	dcHi, dcLo := indicators.Donchian(h, l, p.DonchianWin)
	dchi := dcHi[n-1]
	dclo := dcLo[n-1]

	prebreak := p.PrebreakATRx * atrv

	switch view.Bias {
	case models.SideLong:
		nearBreak := closePx >= dchi-prebreak
		emaMomo := e9[n] > e21[n] && closePx > e9[n]
		if nearBreak && emaMomo && s.confirm(ltf, p, models.SideLong) {
			regime := models.RegimeMomo
			if closePx < dchi {
				regime = models.RegimePremo
			}
			sl, tps := p.ComputeSLTP(models.SideLong, closePx, atrv)
			score := 55.0
			if view.ADX >= ts.ADXTrendMin {
				score += p.EarlyADXBonus
			}
			return &models.Candidate{
				Symbol:     symbol,
				Side:       models.SideLong,
				Entry:      closePx,
				SL:         sl,
				TPs:        tps,
				Regime:     regime,
				Score:      score,
				EarlyBonus: math.Max(0, (dchi-closePx)/(prebreak+1e-9)) * 3,
				Reason:     fmt.Sprintf("Momentum-пробой%s | ADX1H=%.1f", premoTag(regime), view.ADX),
			}
		}
	case models.SideShort:
		nearBreak := closePx <= dclo+prebreak
		emaMomo := e9[n] < e21[n] && closePx < e9[n]
		if nearBreak && emaMomo && s.confirm(ltf, p, models.SideShort) {
			regime := models.RegimeMomo
			if closePx > dclo {
				regime = models.RegimePremo
			}
			sl, tps := p.ComputeSLTP(models.SideShort, closePx, atrv)
			score := 55.0
			if view.ADX >= ts.ADXTrendMin {
				score += p.EarlyADXBonus
			}
			return &models.Candidate{
				Symbol:     symbol,
				Side:       models.SideShort,
				Entry:      closePx,
				SL:         sl,
				TPs:        tps,
				Regime:     regime,
				Score:      score,
				EarlyBonus: math.Max(0, (closePx-dclo)/(prebreak+1e-9)) * 3,
				Reason:     fmt.Sprintf("Momentum-пробой%s | ADX1H=%.1f", premoTag(regime), view.ADX),
			}
		}
	}
	return nil
}

func premoTag(r models.Regime) string {
	if r == models.RegimePremo {
		return " (ранний)"
	}
	return ""
}

// подтверждение 2-из-3: тело последней свечи, относительный объём,
// чистое направленное тело трёх последних баров.
func (s *Momentum) confirm(ltf []models.Candle, p *Params, side models.Side) bool {
	n := len(ltf) - 1
	last := ltf[n]

	bodyOK := false
	if rng := last.Range(); rng > 0 {
		bodyOK = last.Body()/rng >= p.EarlyBodyMin
	}

	v := models.Volumes(ltf)
	volOK := v[n] > meanTail(v, 20)*p.EarlyRelVol

	netBody, totalRange := 0.0, 0.0
	for i := n - 2; i <= n; i++ {
		if side == models.SideLong {
			netBody += math.Max(0, ltf[i].Close-ltf[i].Open)
		} else {
			netBody += math.Max(0, ltf[i].Open-ltf[i].Close)
		}
		totalRange += ltf[i].Range()
	}
	netOK := netBody/math.Max(1e-9, totalRange) >= p.NetBodyTh

	count := 0
	for _, ok := range []bool{bodyOK, volOK, netOK} {
		if ok {
			count++
		}
	}
	return count >= 2
}
