package scoring

import (
	"math"
	"testing"

	"scanner_bot/internal/models"
	"scanner_bot/internal/strategy"
)

func defaultState() *models.TunerState {
	return &models.TunerState{
		BaseMinScore: 68,
		DynMinScore:  68,
		ADXTrendMin:  18,
		BWidthRange:  0.055,
		VolMultReq:   1.40,
	}
}

// восходящая серия с телом у каждой свечи
func genTrendSeries(n int) []models.Candle {
	out := make([]models.Candle, n)
	px := 100.0
	for i := range out {
		out[i] = models.Candle{
			Open:   px,
			Close:  px * 1.004,
			High:   px * 1.005,
			Low:    px * 0.999,
			Volume: 10,
		}
		px *= 1.004
	}
	return out
}

func genFlatSeries(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{Open: 100, Close: 100.01, High: 100.4, Low: 99.6, Volume: 10}
	}
	return out
}

func longCandidate(entry float64) *models.Candidate {
	p := strategy.DefaultParams()
	sl, tps := p.ComputeSLTP(models.SideLong, entry, entry*0.01)
	return &models.Candidate{
		Symbol: "BTC-USDT",
		Side:   models.SideLong,
		Entry:  entry,
		SL:     sl,
		TPs:    tps,
		Regime: models.RegimeTrend,
	}
}

func TestHardRulesHTFPenaltyIsNotVeto(t *testing.T) {
	feats := &models.Features{HTFAlign: 0, ADXNorm: 0.5}
	cand := &models.Candidate{Regime: models.RegimeTrend}
	got := hardRules(50, feats, cand)
	if got != 40 {
		t.Errorf("score = %v, want 40 (fixed -10 penalty)", got)
	}
}

func TestHardRulesADXVetoForcesZero(t *testing.T) {
	feats := &models.Features{HTFAlign: 1, ADXNorm: 0.05}
	cand := &models.Candidate{Regime: models.RegimeTrend}
	if got := hardRules(90, feats, cand); got != 0 {
		t.Errorf("score = %v, want exactly 0 on weak trend", got)
	}
}

func TestHardRulesRangePenaltyAndFloor(t *testing.T) {
	feats := &models.Features{HTFAlign: 1, ADXNorm: 0.5, BWAdv: 0.1}
	cand := &models.Candidate{Regime: models.RegimeRange}
	if got := hardRules(5, feats, cand); got != 0 {
		t.Errorf("score = %v, want floor at 0", got)
	}
	if got := hardRules(50, feats, cand); got != 44 {
		t.Errorf("score = %v, want 44", got)
	}
}

func TestHardRulesPremoBonus(t *testing.T) {
	feats := &models.Features{HTFAlign: 1, ADXNorm: 0.5}
	cand := &models.Candidate{Regime: models.RegimePremo, EarlyBonus: 2.5}
	if got := hardRules(50, feats, cand); got != 52.5 {
		t.Errorf("score = %v, want 52.5", got)
	}
}

func TestApplyVetoOnFlatMarket(t *testing.T) {
	e := NewEngine()
	ltf := genFlatSeries(120)
	htf := genFlatSeries(80)
	cand := longCandidate(100.01)
	e.Apply(cand, ltf, htf, 0.5, ptrParams(strategy.DefaultParams()), defaultState())
	if cand.Score != 0 {
		t.Errorf("score = %v, want 0: flat market must veto", cand.Score)
	}
	if cand.Prob >= 0.01 {
		t.Errorf("prob = %v, want near zero", cand.Prob)
	}
}

func TestExtractIdempotent(t *testing.T) {
	e := NewEngine()
	ltf := genTrendSeries(120)
	htf := genTrendSeries(80)
	cand := longCandidate(ltf[len(ltf)-1].Close)
	ts := defaultState()

	p := ptrParams(strategy.DefaultParams())
	f1, x1 := e.Extract(cand, ltf, htf, 0.7, p, ts)
	f2, x2 := e.Extract(cand, ltf, htf, 0.7, p, ts)
	if *f1 != *f2 {
		t.Errorf("feature vectors differ: %+v vs %+v", f1, f2)
	}
	if x1 != x2 {
		t.Errorf("explains differ: %+v vs %+v", x1, x2)
	}
}

func TestPenaltyLifecycle(t *testing.T) {
	e := NewEngine()

	// TP не включает штраф
	e.MarkOutcome("ETH-USDT", models.OutcomeTP1)
	if p := e.recentPenalty("ETH-USDT"); p != 0 {
		t.Fatalf("penalty after TP = %v, want 0", p)
	}

	// SL включает штраф 1.0, дальше распад по циклам
	e.MarkOutcome("ETH-USDT", models.OutcomeSL)
	if p := e.recentPenalty("ETH-USDT"); p != 1.0 {
		t.Fatalf("penalty after SL = %v, want 1.0", p)
	}
	e.DecayPenalties()
	if p := e.recentPenalty("ETH-USDT"); math.Abs(p-0.85) > 1e-9 {
		t.Fatalf("penalty after decay = %v, want 0.85", p)
	}
	for i := 0; i < 30; i++ {
		e.DecayPenalties()
	}
	if p := e.recentPenalty("ETH-USDT"); p != 0 {
		t.Errorf("penalty after long decay = %v, want 0", p)
	}
}

type stubStrategy struct {
	name string
	cand *models.Candidate
}

func (s *stubStrategy) Name() string { return s.name }
func (s *stubStrategy) Analyze(string, []models.Candle, []models.Candle, *strategy.Params, *models.TunerState) *models.Candidate {
	if s.cand == nil {
		return nil
	}
	c := *s.cand
	return &c
}

func TestPickBestMomentumFloor(t *testing.T) {
	e := NewEngine()
	ltf := genFlatSeries(120)
	htf := genFlatSeries(80)
	ts := defaultState()

	cand := longCandidate(100.01)
	cand.Regime = models.RegimeMomo
	best := e.PickBest("BTC-USDT", []strategy.Strategy{&stubStrategy{name: "momentum", cand: cand}}, ltf, htf, 0.5, ptrParams(strategy.DefaultParams()), ts)
	if best == nil {
		t.Fatal("expected a candidate")
	}
	if best.Score != ts.BaseMinScore-4 {
		t.Errorf("score = %v, want floor %v", best.Score, ts.BaseMinScore-4)
	}
}

func TestPickBestRejectsBrokenLevels(t *testing.T) {
	e := NewEngine()
	ltf := genTrendSeries(120)
	htf := genTrendSeries(80)

	bad := longCandidate(100)
	bad.SL = 105 // стоп выше входа у лонга
	best := e.PickBest("BTC-USDT", []strategy.Strategy{&stubStrategy{name: "trend_range", cand: bad}}, ltf, htf, 0.5, ptrParams(strategy.DefaultParams()), defaultState())
	if best != nil {
		t.Errorf("broken candidate must be rejected, got %+v", best)
	}
}

type panicStrategy struct{}

func (panicStrategy) Name() string { return "broken" }
func (panicStrategy) Analyze(string, []models.Candle, []models.Candle, *strategy.Params, *models.TunerState) *models.Candidate {
	panic("index out of range")
}

func TestPickBestSurvivesStrategyPanic(t *testing.T) {
	e := NewEngine()
	ltf := genFlatSeries(120)
	htf := genFlatSeries(80)
	ts := defaultState()

	cand := longCandidate(100.01)
	cand.Regime = models.RegimeMomo
	strategies := []strategy.Strategy{
		panicStrategy{},
		&stubStrategy{name: "momentum", cand: cand},
	}
	best := e.PickBest("BTC-USDT", strategies, ltf, htf, 0.5, ptrParams(strategy.DefaultParams()), ts)
	if best == nil {
		t.Fatal("panic in one strategy must not drop the others' candidates")
	}
	if best.Symbol != "BTC-USDT" {
		t.Errorf("best = %+v", best)
	}
}

func ptrParams(p strategy.Params) *strategy.Params { return &p }
