package tracker

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"scanner_bot/internal/models"
)

type stubSource struct {
	candles map[string][]models.Candle
	lastTF  string
}

func (s *stubSource) GetCandles(_ context.Context, symbol, tf string, _ int) ([]models.Candle, error) {
	s.lastTF = tf
	return s.candles[symbol], nil
}

func fixedTracker(src CandleSource, now time.Time) *Tracker {
	tr := New(src, nil, "5min")
	tr.nowFn = func() time.Time { return now }
	return tr
}

// таймфрейм разрешения берётся из конструктора, не зашит в коде
func TestResolveUsesConfiguredTimeframe(t *testing.T) {
	t0 := time.Now()
	src := &stubSource{candles: map[string][]models.Candle{
		"BTC-USDT": {bar(t0, 1, 100, 106, 99, 103)},
	}}
	tr := New(src, nil, "1min")
	tr.nowFn = func() time.Time { return t0 }

	tr.Track(pendingLong("BTC-USDT"), 0.01)
	tr.nowFn = func() time.Time { return t0.Add(10 * time.Minute) }
	tr.Resolve(context.Background())
	if src.lastTF != "1min" {
		t.Errorf("timeframe = %q, want 1min", src.lastTF)
	}
}

func pendingLong(symbol string) *models.PendingSignal {
	return &models.PendingSignal{
		Candidate: models.Candidate{
			Symbol: symbol,
			Side:   models.SideLong,
			Entry:  100,
			SL:     97.6,
			TPs:    [3]float64{102.4, 103.84, 105.28},
			Regime: models.RegimeTrend,
		},
		Status: models.StatusConfirmed,
	}
}

func bar(t0 time.Time, i int, o, h, l, c float64) models.Candle {
	return models.Candle{
		Open: o, High: h, Low: l, Close: c, Volume: 100,
		Time: t0.Add(time.Duration(i) * 5 * time.Minute),
	}
}

func TestResolveSLBeatsTPInSameBar(t *testing.T) {
	t0 := time.Now()
	// один бар задевает и стоп, и все цели — побеждает стоп
	cs := []models.Candle{bar(t0, 1, 100, 106, 97, 103)}
	tr := fixedTracker(&stubSource{candles: map[string][]models.Candle{"BTC-USDT": cs}}, t0)
	rec := tr.Track(pendingLong("BTC-USDT"), 0.01)
	tr.nowFn = func() time.Time { return t0.Add(10 * time.Minute) }

	resolved := tr.Resolve(context.Background())
	if len(resolved) != 1 {
		t.Fatalf("resolved = %d, want 1", len(resolved))
	}
	if rec.Outcome != models.OutcomeSL {
		t.Errorf("outcome = %v, want SL", rec.Outcome)
	}
	wantPnl := (97.6 - 100.0) / 100.0 * 100
	if math.Abs(rec.PnlPct-wantPnl) > 1e-9 {
		t.Errorf("pnl = %v, want %v", rec.PnlPct, wantPnl)
	}
	if rec.SLCause != models.SLImmediateReversal {
		t.Errorf("cause = %v, want IMMEDIATE_REVERSAL on bar 1", rec.SLCause)
	}
}

func TestResolveHighestTPWins(t *testing.T) {
	t0 := time.Now()
	// бар пролетает сразу TP1 и TP2 — фиксируем верхний из достигнутых
	cs := []models.Candle{
		bar(t0, 1, 100, 101, 99.9, 100.8),
		bar(t0, 2, 100.8, 104.2, 100.5, 104.0),
	}
	tr := fixedTracker(&stubSource{candles: map[string][]models.Candle{"BTC-USDT": cs}}, t0)
	rec := tr.Track(pendingLong("BTC-USDT"), 0.01)
	tr.nowFn = func() time.Time { return t0.Add(15 * time.Minute) }

	tr.Resolve(context.Background())
	if rec.Outcome != models.OutcomeTP2 {
		t.Errorf("outcome = %v, want TP2", rec.Outcome)
	}
	wantPnl := (103.84 - 100.0) / 100.0 * 100
	if math.Abs(rec.PnlPct-wantPnl) > 1e-9 {
		t.Errorf("pnl = %v, want %v", rec.PnlPct, wantPnl)
	}
	if rec.BarsHeld != 2 {
		t.Errorf("bars held = %d, want 2", rec.BarsHeld)
	}
}

func TestResolveShortMirror(t *testing.T) {
	t0 := time.Now()
	ps := pendingLong("ETH-USDT")
	ps.Candidate.Side = models.SideShort
	ps.Candidate.SL = 102.4
	ps.Candidate.TPs = [3]float64{97.6, 96.16, 94.72}

	cs := []models.Candle{bar(t0, 1, 100, 100.5, 97.0, 97.2)}
	tr := fixedTracker(&stubSource{candles: map[string][]models.Candle{"ETH-USDT": cs}}, t0)
	rec := tr.Track(ps, 0.01)
	tr.nowFn = func() time.Time { return t0.Add(10 * time.Minute) }

	tr.Resolve(context.Background())
	if rec.Outcome != models.OutcomeTP2 {
		t.Errorf("outcome = %v, want TP2", rec.Outcome)
	}
	// шорт: падение цены — положительный pnl
	wantPnl := -(96.16 - 100.0) / 100.0 * 100
	if math.Abs(rec.PnlPct-wantPnl) > 1e-9 {
		t.Errorf("pnl = %v, want %v", rec.PnlPct, wantPnl)
	}
}

func TestResolveStaysActiveInsideLevels(t *testing.T) {
	t0 := time.Now()
	cs := []models.Candle{
		bar(t0, 1, 100, 101, 99.5, 100.5),
		bar(t0, 2, 100.5, 101.5, 100, 101),
	}
	tr := fixedTracker(&stubSource{candles: map[string][]models.Candle{"BTC-USDT": cs}}, t0)
	rec := tr.Track(pendingLong("BTC-USDT"), 0.01)
	tr.nowFn = func() time.Time { return t0.Add(15 * time.Minute) }

	if got := tr.Resolve(context.Background()); len(got) != 0 {
		t.Fatalf("nothing must resolve inside the levels")
	}
	if rec.Outcome != models.OutcomeActive {
		t.Errorf("outcome = %v, want ACTIVE", rec.Outcome)
	}
	if tr.ActiveCount() != 1 {
		t.Errorf("active = %d, want 1", tr.ActiveCount())
	}
}

func TestResolveCancelsAfterTTL(t *testing.T) {
	t0 := time.Now()
	tr := fixedTracker(&stubSource{candles: map[string][]models.Candle{}}, t0)
	rec := tr.Track(pendingLong("BTC-USDT"), 0.01)
	tr.nowFn = func() time.Time { return t0.Add(25 * time.Hour) }

	resolved := tr.Resolve(context.Background())
	if len(resolved) != 1 || rec.Outcome != models.OutcomeCancelled {
		t.Errorf("outcome = %v, want CANCELLED after 24h", rec.Outcome)
	}
	if tr.ActiveCount() != 0 {
		t.Errorf("cancelled record must leave tracking")
	}
}

type stubExcursions struct {
	hi, lo float64
	ok     bool
	resets int
}

func (s *stubExcursions) Excursion(string) (float64, float64, bool) { return s.hi, s.lo, s.ok }
func (s *stubExcursions) ResetExcursion(string)                     { s.resets++ }

func TestResolveSkipsCandleFetchWhenLevelsUntouched(t *testing.T) {
	t0 := time.Now()
	// свечи нарочно пробивают стоп: если фильтр работает, до них не дойдёт
	cs := []models.Candle{bar(t0, 1, 100, 100.5, 90, 91)}
	exc := &stubExcursions{hi: 100.6, lo: 99.5, ok: true}
	tr := New(&stubSource{candles: map[string][]models.Candle{"BTC-USDT": cs}}, exc, "5min")
	tr.nowFn = func() time.Time { return t0 }

	rec := tr.Track(pendingLong("BTC-USDT"), 0.01)
	tr.nowFn = func() time.Time { return t0.Add(10 * time.Minute) }

	if got := tr.Resolve(context.Background()); len(got) != 0 {
		t.Fatalf("excursion inside levels must skip the check")
	}
	if rec.Outcome != models.OutcomeActive {
		t.Errorf("outcome = %v, want ACTIVE", rec.Outcome)
	}

	// экскурсия дошла до стопа — свечи запрошены, экскурсия сброшена
	exc.lo = 97.0
	tr.Resolve(context.Background())
	if rec.Outcome != models.OutcomeSL {
		t.Errorf("outcome = %v, want SL", rec.Outcome)
	}
	if exc.resets != 1 {
		t.Errorf("resets = %d, want 1", exc.resets)
	}
}

func TestStatsAndReport(t *testing.T) {
	t0 := time.Now()
	tr := fixedTracker(&stubSource{}, t0)
	tr.Restore([]*models.SignalRecord{
		{ID: 1, Symbol: "A-USDT", Side: models.SideLong, Regime: models.RegimeTrend, Outcome: models.OutcomeTP1, PnlPct: 2.4},
		{ID: 2, Symbol: "B-USDT", Side: models.SideLong, Regime: models.RegimeTrend, Outcome: models.OutcomeSL, PnlPct: -2.4, SLCause: models.SLNormal},
		{ID: 3, Symbol: "C-USDT", Side: models.SideShort, Regime: models.RegimeRange, Outcome: models.OutcomeTP3, PnlPct: 5.28},
		{ID: 4, Symbol: "D-USDT", Side: models.SideLong, Regime: models.RegimeMomo, Outcome: models.OutcomeCancelled},
	})

	st := tr.Stats()
	if st.Total != 4 || st.Wins != 2 || st.Losses != 1 || st.Cancelled != 1 {
		t.Errorf("stats = %+v", st)
	}
	if math.Abs(st.WinRate-2.0/3.0) > 1e-9 {
		t.Errorf("winrate = %v, want 2/3", st.WinRate)
	}
	if math.Abs(st.TotalPnl-5.28) > 1e-9 {
		t.Errorf("total pnl = %v, want 5.28", st.TotalPnl)
	}
	if wl := st.ByRegime[models.RegimeTrend]; wl != [2]int{1, 1} {
		t.Errorf("trend regime = %v, want {1 1}", wl)
	}

	txt := tr.ReportText(&models.TunerState{BaseMinScore: 68, DynMinScore: 68, ADXTrendMin: 18, BWidthRange: 0.055, VolMultReq: 1.4})
	for _, want := range []string{"Winrate", "TP1", "SL", "NORMAL_SL", "min_score=68"} {
		if !strings.Contains(txt, want) {
			t.Errorf("report missing %q:\n%s", want, txt)
		}
	}
}
