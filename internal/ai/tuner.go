package ai

import (
	"log"
	"time"

	"scanner_bot/internal/models"
)

// TunerConfig — параметры самонастройки.
type TunerConfig struct {
	Enabled    bool
	WRTarget   float64
	MinSamples int
	Window     int
	Cooldown   time.Duration
}

func DefaultTunerConfig() TunerConfig {
	return TunerConfig{
		Enabled:    true,
		WRTarget:   0.52,
		MinSamples: 20,
		Window:     80,
		Cooldown:   15 * time.Minute,
	}
}

// recentWinRate — winrate по последним n записям; учитываются только
// разрешённые TP/SL, отмены не в счёт.
func recentWinRate(history []*models.SignalRecord, n int) (float64, bool) {
	start := len(history) - n
	if start < 0 {
		start = 0
	}
	wins, total := 0, 0
	for _, rec := range history[start:] {
		switch {
		case rec.Outcome.Win():
			wins++
			total++
		case rec.Outcome == models.OutcomeSL:
			total++
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(wins) / float64(total), true
}

// slStreak — длина хвостовой серии стопов.
func slStreak(history []*models.SignalRecord) int {
	k := 0
	for i := len(history) - 1; i >= 0; i-- {
		rec := history[i]
		if rec.Outcome == models.OutcomeActive {
			break
		}
		if rec.Outcome == models.OutcomeSL {
			k++
			continue
		}
		break
	}
	return k
}

// AutoTune сдвигает пороги по скользящему winrate. Серия стопов ≥3 —
// приоритетное ужесточение, winrate-ветка в этом случае не выполняется.
// Все сдвиги зажимаются границами TunerState. Возвращает true если
// пороги изменились.
func AutoTune(ts *models.TunerState, history []*models.SignalRecord, cfg TunerConfig, now time.Time) bool {
	if !cfg.Enabled || len(history) < cfg.MinSamples {
		return false
	}
	if now.Sub(ts.LastTuneAt) < cfg.Cooldown {
		return false
	}
	wr, ok := recentWinRate(history, cfg.Window)
	if !ok {
		return false
	}

	changed := false
	if slStreak(history) >= 3 {
		ts.BaseMinScore += 2
		ts.ADXTrendMin += 1
		ts.VolMultReq += 0.05
		changed = true
	} else {
		delta := wr - cfg.WRTarget
		step := 1.0
		if delta > 0.06 || delta < -0.06 {
			step = 2.0
		}
		if delta < -0.01 {
			ts.BaseMinScore -= step
			ts.ADXTrendMin -= 1
			ts.BWidthRange += 0.003
			ts.VolMultReq -= 0.05
			changed = true
		} else if delta > 0.04 {
			ts.BaseMinScore += 1
			ts.VolMultReq += 0.03
			changed = true
		}
	}

	if changed {
		ts.Clamp()
		ts.DynMinScore = ts.BaseMinScore
		ts.LastTuneAt = now
		log.Printf("[TUNE] 🛠 WR=%.2f | min_score=%.0f adx_min=%.0f bw=%.3f volx=%.2f",
			wr, ts.BaseMinScore, ts.ADXTrendMin, ts.BWidthRange, ts.VolMultReq)
	}
	return changed
}
