package indicators

import (
	"math"

	"scanner_bot/internal/models"
)

// HTFView — сводка старшего таймфрейма для гейта стратегий.
type HTFView struct {
	Bias    models.Side // "" если наклон EMA50 не определён
	DispOK  bool        // был импульсный бар в последних барах
	ADX     float64
	TrendOK bool
}

// HTFGateAndBias строит сводку по 1h серии: bias из наклона EMA50,
// displacement по телу последних dispLookback баров, трендовый гейт
// по ADX(14) против порога adxMin.
func HTFGateAndBias(cs []models.Candle, dispLookback int, dispBodyMin, adxMin float64) HTFView {
	var v HTFView
	if len(cs) < 3 {
		return v
	}
	closes := models.Closes(cs)
	e50 := EMA(closes, 50)
	last, prev := e50[len(e50)-1], e50[len(e50)-2]
	if !math.IsNaN(last) && !math.IsNaN(prev) {
		if last > prev {
			v.Bias = models.SideLong
		} else if last < prev {
			v.Bias = models.SideShort
		}
	}
	for i := 1; i <= dispLookback && i <= len(cs); i++ {
		c := cs[len(cs)-i]
		if rng := c.Range(); rng > 0 && c.Body()/rng >= dispBodyMin {
			v.DispOK = true
			break
		}
	}
	adxs := ADX(models.Highs(cs), models.Lows(cs), closes, 14)
	v.ADX = adxs[len(adxs)-1]
	v.TrendOK = v.ADX >= adxMin
	return v
}

// HTFBiasOnly — только наклон EMA50, без гейта.
func HTFBiasOnly(cs []models.Candle) models.Side {
	if len(cs) < 2 {
		return ""
	}
	e50 := EMA(models.Closes(cs), 50)
	last, prev := e50[len(e50)-1], e50[len(e50)-2]
	if math.IsNaN(last) || math.IsNaN(prev) {
		return ""
	}
	if last > prev {
		return models.SideLong
	}
	if last < prev {
		return models.SideShort
	}
	return ""
}
