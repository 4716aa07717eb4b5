package tracker

import (
	"fmt"
	"strings"

	"scanner_bot/internal/models"
)

// ReportText — сводка производительности для телеграма и дневного отчёта.
func (t *Tracker) ReportText(ts *models.TunerState) string {
	st := t.Stats()

	var b strings.Builder
	b.WriteString("📊 Статистика сигналов\n")
	fmt.Fprintf(&b, "Всего: %d | ✅ %d | ❌ %d | 🚫 %d\n", st.Total, st.Wins, st.Losses, st.Cancelled)
	if st.Wins+st.Losses > 0 {
		fmt.Fprintf(&b, "Winrate: %.0f%% | PnL: ср. %.2f%%, всего %.2f%%\n",
			st.WinRate*100, round2(st.AvgPnl), round2(st.TotalPnl))
	}

	b.WriteString("\n🎯 Исходы:\n")
	for _, o := range []models.Outcome{models.OutcomeTP1, models.OutcomeTP2, models.OutcomeTP3, models.OutcomeSL, models.OutcomeCancelled} {
		if n := st.ByOutcome[o]; n > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", o, n)
		}
	}

	if len(st.ByRegime) > 0 {
		b.WriteString("\n📈 По режимам:\n")
		for _, r := range []models.Regime{models.RegimeTrend, models.RegimeRange, models.RegimeSMC, models.RegimeMomo, models.RegimePremo} {
			wl, ok := st.ByRegime[r]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "  %s: %d✅/%d❌\n", r, wl[0], wl[1])
		}
	}

	if len(st.BySLCause) > 0 {
		b.WriteString("\n🔍 Причины стопов:\n")
		for _, c := range []models.SLCause{models.SLImmediateReversal, models.SLHighVolatility, models.SLTrendReversal, models.SLNormal} {
			if n := st.BySLCause[c]; n > 0 {
				fmt.Fprintf(&b, "  %s: %d\n", c, n)
			}
		}
	}

	fmt.Fprintf(&b, "\n⏳ В сопровождении: %d\n", t.ActiveCount())
	if ts != nil {
		fmt.Fprintf(&b, "🛠 Пороги: min_score=%.0f (dyn %.0f) adx=%.0f bw=%.3f volx=%.2f\n",
			ts.BaseMinScore, ts.DynMinScore, ts.ADXTrendMin, ts.BWidthRange, ts.VolMultReq)
	}
	return b.String()
}
