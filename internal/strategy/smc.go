package strategy

import (
	"math"

	"scanner_bot/internal/indicators"
	"scanner_bot/internal/models"
)

// SMC — структурная стратегия: снятие ликвидности за предыдущим
// свингом, затем слом структуры (CHOCH) в сторону bias, вход от FVG
// или OTE-зоны ретрейсмента.
type SMC struct{}

func NewSMC() *SMC {
	return &SMC{}
}

func (s *SMC) Name() string { return "smc" }

// recentTrendBias — грубый bias по последним пяти свечам старшего ТФ.
func recentTrendBias(htf []models.Candle) models.Side {
	if len(htf) < 5 {
		return ""
	}
	c0 := htf[len(htf)-5].Close
	c1 := htf[len(htf)-1].Close
	trend := (c1 - c0) / c0
	if trend > 0.01 {
		return models.SideLong
	}
	if trend < -0.01 {
		return models.SideShort
	}
	return ""
}

func (s *SMC) Analyze(symbol string, ltf, htf []models.Candle, p *Params, ts *models.TunerState) *models.Candidate {
	if len(ltf) < 80 {
		return nil
	}
	bias := recentTrendBias(htf)
	if bias == "" {
		return nil
	}

	c := models.Closes(ltf)
	h := models.Highs(ltf)
	l := models.Lows(ltf)
	n := len(ltf) - 1

	atrv := indicators.ATRWilder(h, l, c, p.ATRPeriod)[n]
	shIdx, slIdx := indicators.FindSwings(h, l, p.SwingLeft, p.SwingRight)
	if len(shIdx) < 2 && len(slIdx) < 2 {
		return nil
	}
	lastClose := c[n]

	if bias == models.SideLong && len(slIdx) >= 2 {
		refLow := l[slIdx[len(slIdx)-2]]
		sweepIdx := slIdx[len(slIdx)-1]
		sweptLow := l[sweepIdx] < refLow*(1-p.SweepEps) && c[sweepIdx] > refLow*(1-p.SweepEps)

		minorSH := lastSwingAtOrAfter(shIdx, sweepIdx)
		chochUp := minorSH >= 0 && lastClose > h[minorSH]*(1+p.BosEps)

		if sweptLow && chochUp {
			bullFVG, _ := indicators.FindFVGs(h, l, p.FVGLookback)
			if p.SMCRequireFVG && bullFVG == nil {
				return nil
			}
			legLow := l[sweepIdx]
			legHigh := math.Max(lastClose, h[minorSH])
			leg := legHigh - legLow
			if leg/(lastClose+1e-12) < 0.004 {
				return nil
			}
			// зона входа: FVG если есть, иначе OTE 62–79%
			entryA := legLow + leg*p.OTELow
			entryB := legLow + leg*p.OTEHigh
			if bullFVG != nil {
				entryA, entryB = bullFVG.Lo, bullFVG.Hi
			}
			entry := (entryA + entryB) / 2

			sl, tps := p.ComputeSLTP(models.SideLong, entry, atrv)
			rr1 := (tps[0] - entry) / math.Max(1e-9, entry-sl)
			return &models.Candidate{
				Symbol: symbol,
				Side:   models.SideLong,
				Entry:  entry,
				SL:     sl,
				TPs:    tps,
				Regime: models.RegimeSMC,
				Score:  45 + math.Min(15, rr1*10),
				Reason: "SMC: снятие ликвидности → CHOCH (+FVG/OTE)",
			}
		}
	}

	if bias == models.SideShort && len(shIdx) >= 2 {
		refHigh := h[shIdx[len(shIdx)-2]]
		sweepIdx := shIdx[len(shIdx)-1]
		sweptHigh := h[sweepIdx] > refHigh*(1+p.SweepEps) && c[sweepIdx] < refHigh*(1+p.SweepEps)

		minorSL := lastSwingAtOrAfter(slIdx, sweepIdx)
		chochDn := minorSL >= 0 && lastClose < l[minorSL]*(1-p.BosEps)

		if sweptHigh && chochDn {
			_, bearFVG := indicators.FindFVGs(h, l, p.FVGLookback)
			if p.SMCRequireFVG && bearFVG == nil {
				return nil
			}
			legHigh := h[sweepIdx]
			legLow := math.Min(lastClose, l[minorSL])
			leg := legHigh - legLow
			if leg/(lastClose+1e-12) < 0.004 {
				return nil
			}
			entryA := legHigh - leg*p.OTELow
			entryB := legHigh - leg*p.OTEHigh
			if bearFVG != nil {
				entryA, entryB = bearFVG.Lo, bearFVG.Hi
			}
			entry := (entryA + entryB) / 2

			sl, tps := p.ComputeSLTP(models.SideShort, entry, atrv)
			rr1 := (entry - tps[0]) / math.Max(1e-9, sl-entry)
			return &models.Candidate{
				Symbol: symbol,
				Side:   models.SideShort,
				Entry:  entry,
				SL:     sl,
				TPs:    tps,
				Regime: models.RegimeSMC,
				Score:  45 + math.Min(15, rr1*10),
				Reason: "SMC: снятие ликвидности → CHOCH (+FVG/OTE)",
			}
		}
	}

	return nil
}

// последний свинг с индексом >= from; если таких нет — самый поздний
// из имеющихся; -1 когда свингов нет вовсе.
func lastSwingAtOrAfter(idxs []int, from int) int {
	for i := len(idxs) - 1; i >= 0; i-- {
		if idxs[i] >= from {
			return idxs[i]
		}
	}
	if len(idxs) > 0 {
		return idxs[len(idxs)-1]
	}
	return -1
}
