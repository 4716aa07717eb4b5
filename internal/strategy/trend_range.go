package strategy

import (
	"fmt"
	"math"

	"scanner_bot/internal/indicators"
	"scanner_bot/internal/models"
)

// TrendRange — двухрежимная стратегия: при открытом трендовом гейте
// ищет пробой Donchian с ретестом или momentum-продолжением, при
// закрытом гейте и узких бантах — false breakout с возвратом в канал.
type TrendRange struct{}

func NewTrendRange() *TrendRange {
	return &TrendRange{}
}

func (s *TrendRange) Name() string { return "trend_range" }

func (s *TrendRange) Analyze(symbol string, ltf, htf []models.Candle, p *Params, ts *models.TunerState) *models.Candidate {
	if len(ltf) < 80 || len(htf) < 60 {
		return nil
	}
	o := models.Opens(ltf)
	c := models.Closes(ltf)
	h := models.Highs(ltf)
	l := models.Lows(ltf)
	v := models.Volumes(ltf)
	n := len(ltf) - 1

	atrs := indicators.ATRWilder(h, l, c, p.ATRPeriod)
	_, bbU, bbL, bwidth := indicators.Bollinger(c, p.BBPeriod, p.BBK)
	dcHi, dcLo := indicators.Donchian(h, l, p.DonchianWin)
	bs := indicators.BodyStrength(o, c, h, l)

	closePx := c[n]
	prevClose := c[n-1]
	atrv := atrs[n]
	bw := bwidth[n]
	// уровни пробоя с лагом в один бар
	dchi := dcHi[n-1]
	dclo := dcLo[n-1]

	view := indicators.HTFGateAndBias(htf, p.OneHDispLookback, p.OneHDispBodyMin, ts.ADXTrendMin)

	var candidates []*models.Candidate

	// --- TREND: пробой + (ретест или momentum) ---
	if view.TrendOK && view.DispOK {
		switch view.Bias {
		case models.SideLong:
			longBreak := prevClose > dchi*(1+p.BreakBuffer) && closePx >= prevClose
			retest := s.retestOKLong(dchi, ltf, p, atrv)
			if longBreak && (retest || MomentumOK(ltf, models.SideLong)) {
				sl, tps := p.ComputeSLTP(models.SideLong, closePx, atrv)
				rr1 := (tps[0] - closePx) / math.Max(1e-9, closePx-sl)
				score := 40 + math.Min(20, (view.ADX-ts.ADXTrendMin)*1.2) + bs[n]*10
				if rr1 < 1.0 {
					score -= 4
				}
				trig := "momentum"
				if retest {
					trig = "ретест"
				}
				candidates = append(candidates, &models.Candidate{
					Symbol: symbol,
					Side:   models.SideLong,
					Entry:  closePx,
					SL:     sl,
					TPs:    tps,
					Regime: models.RegimeTrend,
					Retest: retest,
					Score:  score,
					Reason: fmt.Sprintf("Пробой тренда + %s | 1H ADX=%.1f, BW=%.4f", trig, view.ADX, bw),
				})
			}
		case models.SideShort:
			shortBreak := prevClose < dclo*(1-p.BreakBuffer) && closePx <= prevClose
			retest := s.retestOKShort(dclo, ltf, p, atrv)
			if shortBreak && (retest || MomentumOK(ltf, models.SideShort)) {
				sl, tps := p.ComputeSLTP(models.SideShort, closePx, atrv)
				rr1 := (closePx - tps[0]) / math.Max(1e-9, sl-closePx)
				score := 40 + math.Min(20, (view.ADX-ts.ADXTrendMin)*1.2) + bs[n]*10
				if rr1 < 1.0 {
					score -= 4
				}
				trig := "momentum"
				if retest {
					trig = "ретест"
				}
				candidates = append(candidates, &models.Candidate{
					Symbol: symbol,
					Side:   models.SideShort,
					Entry:  closePx,
					SL:     sl,
					TPs:    tps,
					Regime: models.RegimeTrend,
					Retest: retest,
					Score:  score,
					Reason: fmt.Sprintf("Пробой тренда + %s | 1H ADX=%.1f, BW=%.4f", trig, view.ADX, bw),
				})
			}
		}
	}

	// --- RANGE: возврат в канал после ложного пробоя банта ---
	if !view.TrendOK && !math.IsNaN(bw) && bw <= ts.BWidthRange {
		rsi14 := indicators.RSI(c, 14)[n]
		bbuV, bblV := bbU[n], bbL[n]

		nearLower := closePx <= bblV*(1+0.0010)
		nearUpper := closePx >= bbuV*(1-0.0010)
		reEnterLong := prevClose < bblV && closePx > bblV
		reEnterShort := prevClose > bbuV && closePx < bbuV

		bsLast := bs[n]
		volOK := v[n] > meanTail(v, 20)*ts.VolMultReq

		if nearLower && rsi14 < 36 && reEnterLong && bsLast >= 0.62 && volOK && view.Bias != models.SideShort {
			sl, tps := p.ComputeSLTP(models.SideLong, closePx, atrv)
			score := 30 + math.Max(0, 38-rsi14) + (1-bw/math.Max(1e-12, ts.BWidthRange))*10
			candidates = append(candidates, &models.Candidate{
				Symbol: symbol,
				Side:   models.SideLong,
				Entry:  closePx,
				SL:     sl,
				TPs:    tps,
				Regime: models.RegimeRange,
				Score:  score,
				Reason: fmt.Sprintf("Отскок в канале (ложный пробой → возврат) | RSI=%.1f, BW=%.4f", rsi14, bw),
			})
		}
		if nearUpper && rsi14 > 64 && reEnterShort && bsLast >= 0.62 && volOK && view.Bias != models.SideLong {
			sl, tps := p.ComputeSLTP(models.SideShort, closePx, atrv)
			score := 30 + math.Max(0, rsi14-62) + (1-bw/math.Max(1e-12, ts.BWidthRange))*10
			candidates = append(candidates, &models.Candidate{
				Symbol: symbol,
				Side:   models.SideShort,
				Entry:  closePx,
				SL:     sl,
				TPs:    tps,
				Regime: models.RegimeRange,
				Score:  score,
				Reason: fmt.Sprintf("Отскок в канале (ложный пробой → возврат) | RSI=%.1f, BW=%.4f", rsi14, bw),
			})
		}
	}

	if len(candidates) == 0 {
		return nil
	}

	// аномально волатильные дни отсекаем целиком
	if atrv/(closePx+1e-12) > 0.035 {
		return nil
	}

	best := candidates[0]
	for _, cand := range candidates[1:] {
		if cand.Score > best.Score {
			best = cand
		}
	}
	return best
}

// ретест: текущий бар коснулся уровня пробоя в пределах допуска и
// закрылся сильным баром в сторону сделки.
func (s *TrendRange) retestOKLong(level float64, ltf []models.Candle, p *Params, atrv float64) bool {
	last := ltf[len(ltf)-1]
	tol := p.RetestTol * atrv
	touched := last.Low <= level+tol
	bodyRatio := (last.Close - last.Open) / math.Max(1e-12, last.High-last.Low)
	return touched && last.Close > last.Open && bodyRatio > 0.55
}

func (s *TrendRange) retestOKShort(level float64, ltf []models.Candle, p *Params, atrv float64) bool {
	last := ltf[len(ltf)-1]
	tol := p.RetestTol * atrv
	touched := last.High >= level-tol
	bodyRatio := (last.Open - last.Close) / math.Max(1e-12, last.High-last.Low)
	return touched && last.Close < last.Open && bodyRatio > 0.55
}

func meanTail(xs []float64, n int) float64 {
	if len(xs) < n {
		n = len(xs)
	}
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs[len(xs)-n:] {
		sum += x
	}
	return sum / float64(n)
}
