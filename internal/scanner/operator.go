package scanner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"scanner_bot/internal/models"
	"scanner_bot/internal/modules/config"
)

// Команды оператора из телеграма. Мутации идут под тем же мьютексом,
// что и фаза агрегации цикла.

// SetMode применяет пресет режима и сбрасывает пороги тюнера к нему.
func (s *Service) SetMode(mode string) (string, error) {
	preset, ok := config.Presets[mode]
	if !ok {
		return "", fmt.Errorf("unknown mode %q", mode)
	}

	s.mu.Lock()
	s.mode = mode
	s.preset = preset
	s.params = preset.Params()
	s.ts = preset.TunerState()
	s.mu.Unlock()

	s.persistTuner(context.Background())
	return fmt.Sprintf("🛠 Режим переключён: *%s*\nmin_score=%.0f adx=%.0f bw=%.3f cooldown=%ds top_n=%d",
		mode, preset.BaseMinScore, preset.ADXTrendMin, preset.BWidthRange, preset.CooldownSec, preset.TopNPerScan), nil
}

// StatusText — отчёт /status.
func (s *Service) StatusText() string {
	s.mu.Lock()
	ts := *s.ts
	s.mu.Unlock()
	return s.tracker.ReportText(&ts)
}

// AIStatsText — /aistats: смещение, топ весов, число примеров.
func (s *Service) AIStatsText() string {
	st := s.model.Snapshot()

	type wv struct {
		name string
		w    float64
	}
	ws := make([]wv, 0, len(st.Weights))
	for name, w := range st.Weights {
		ws = append(ws, wv{name, w})
	}
	sort.Slice(ws, func(i, j int) bool { return absF(ws[i].w) > absF(ws[j].w) })

	var b strings.Builder
	b.WriteString("🧠 AI-модель\n")
	fmt.Fprintf(&b, "Примеров: %d | bias: %.4f\n\nВеса:\n", st.Seen, st.Bias)
	for _, x := range ws {
		fmt.Fprintf(&b, "  %-16s %+0.4f\n", x.name, x.w)
	}
	return b.String()
}

// ResetAI — /aireset.
func (s *Service) ResetAI() string {
	s.model.Reset()
	if s.repo != nil {
		if err := s.repo.SaveAIState(context.Background(), s.model.Snapshot()); err != nil {
			return fmt.Sprintf("🧠 Модель сброшена, но не сохранена: %v", err)
		}
	}
	return "🧠 AI-модель сброшена к начальному состоянию"
}

// AnalyzeText — /analyze SYMBOL: разовый прогон стратегий по символу.
func (s *Service) AnalyzeText(ctx context.Context, userSym string) string {
	sym := s.market.NormalizeSymbol(ctx, userSym)
	if sym == "" {
		return fmt.Sprintf("❗ «%s» не найден на бирже. Пример: WIFUSDT → WIF-USDT", strings.ToUpper(userSym))
	}

	ltf, err := s.market.GetCandles(ctx, sym, s.cfg.TFLtf, s.cfg.LookbackLtf)
	if err != nil || len(ltf) < minBarsLtf {
		return fmt.Sprintf("❗ %s: мало данных %s", sym, s.cfg.TFLtf)
	}
	htf, err := s.market.GetCandles(ctx, sym, s.cfg.TFHtf, s.cfg.LookbackHtf)
	if err != nil || len(htf) < minBarsHtf {
		return fmt.Sprintf("❗ %s: мало данных %s", sym, s.cfg.TFHtf)
	}

	s.mu.Lock()
	p := s.params
	ts := *s.ts
	s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "🔍 *%s* (порог %.0f)\n", sym, ts.DynMinScore)
	found := false
	for _, st := range s.strategies {
		cand := st.Analyze(sym, ltf, htf, &p, &ts)
		if cand == nil || !cand.Valid() {
			fmt.Fprintf(&b, "\n• %s: сетапа нет", st.Name())
			continue
		}
		found = true
		s.engine.Apply(cand, ltf, htf, s.market.VolPercentile(sym), &p, &ts)
		cand.AIProb = s.model.Predict(cand.Feats)
		cand.PFinal = s.model.Blend(cand.Prob, cand.Feats)
		fmt.Fprintf(&b, "\n• %s: %s скор=%.0f p=%.2f\n  вход %.6f | SL %.6f | TP1 %.6f\n  %s",
			st.Name(), cand.Side, cand.Score, cand.PFinal, cand.Entry, cand.SL, cand.TPs[0], cand.Reason)
	}
	if !found {
		b.WriteString("\n\nНи одна стратегия сетапа не видит.")
	}
	return b.String()
}

func emojiOutcomeText(emoji string, rec *models.SignalRecord) string {
	txt := fmt.Sprintf("%s %s %s → *%s* (%.2f%%)", emoji, rec.Symbol, rec.Side, rec.Outcome, rec.PnlPct)
	if rec.Outcome == models.OutcomeSL && rec.SLCause != "" {
		txt += fmt.Sprintf("\nПричина: %s", rec.SLCause)
	}
	return txt
}

func absF(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
