package scoring

import (
	"math"
	"sync"

	"scanner_bot/internal/indicators"
	"scanner_bot/internal/models"
	"scanner_bot/internal/strategy"
	"scanner_bot/pkg/logger"
)

// Веса признаков композитного скора. Конфигурация, не подбирается в
// рантайме.
var defaultWeights = map[string]float64{
	models.FeatHTFAlign:      18.0,
	models.FeatADXNorm:       14.0,
	models.FeatLTFMomo:       10.0,
	models.FeatRRNorm:        0.0, // RR в очках отключён, признак остаётся для модели
	models.FeatBWAdv:         5.0,
	models.FeatRetestOrFVG:   8.0,
	models.FeatATRSweet:      3.0,
	models.FeatVolPct:        8.0,
	models.FeatRecentPenalty: -3.0,
}

const (
	scoringBase = 20.0
	probCalibA  = 0.10
	probCalibB  = -7.0

	penaltyDecay  = 0.85
	penaltyFloor  = 0.05
	adxVetoFloor  = 0.10
	htfPenalty    = 10.0
	rangePenalty  = 6.0
	momentumSlack = 4.0
)

// Engine — извлечение признаков, композитный скор, жёсткие правила и
// выбор лучшего кандидата по символу. Таблица штрафов за недавние SL
// живёт здесь; распад штрафа выполняет оркестратор раз в цикл, сама
// экстракция состояние не мутирует. Пороги приходят на каждый вызов,
// вместе со снапшотом TunerState.
type Engine struct {
	weights map[string]float64

	mu        sync.RWMutex
	penalties map[string]float64
}

func NewEngine() *Engine {
	return &Engine{
		weights:   defaultWeights,
		penalties: make(map[string]float64),
	}
}

// MarkOutcome фиксирует исход сигнала: стоп включает штраф символа.
func (e *Engine) MarkOutcome(symbol string, outcome models.Outcome) {
	if outcome != models.OutcomeSL {
		return
	}
	e.mu.Lock()
	e.penalties[symbol] = 1.0
	e.mu.Unlock()
}

// DecayPenalties распадает штрафы. Вызывается оркестратором один раз
// за цикл, в фазе агрегации.
func (e *Engine) DecayPenalties() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for sym, p := range e.penalties {
		p *= penaltyDecay
		if p < penaltyFloor {
			delete(e.penalties, sym)
			continue
		}
		e.penalties[sym] = p
	}
}

func (e *Engine) recentPenalty(symbol string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.penalties[symbol]
}

func normalizeADX(adx, adxMin float64) float64 {
	return clamp01((adx - adxMin) / 20.0)
}

func normalizeRR(rr1 float64) float64 {
	return clamp01((rr1 - 0.8) / 1.6)
}

func bwAdvantage(bw, bwRange float64) float64 {
	if math.IsNaN(bw) {
		return 0
	}
	return math.Max(0, 1-bw/math.Max(1e-6, bwRange))
}

func atrInSweet(atrPct float64, p *strategy.Params) float64 {
	if p.FBBATRMin <= atrPct && atrPct <= p.FBBATRMax {
		return 1
	}
	return 0
}

func scoreToProb(score float64) float64 {
	return 1.0 / (1.0 + math.Exp(-(probCalibA*score + probCalibB)))
}

// Extract строит вектор признаков кандидата. Повторный вызов на тех же
// данных даёт тот же вектор.
func (e *Engine) Extract(cand *models.Candidate, ltf, htf []models.Candle, volPct float64, p *strategy.Params, ts *models.TunerState) (*models.Features, models.Explain) {
	c := models.Closes(ltf)
	h := models.Highs(ltf)
	l := models.Lows(ltf)
	n := len(ltf) - 1
	closePx := c[n]

	adxv := indicators.ADX(h, l, c, 14)[n]

	var rr1 float64
	if cand.Side == models.SideLong {
		rr1 = (cand.TPs[0] - cand.Entry) / math.Max(1e-9, cand.Entry-cand.SL)
	} else {
		rr1 = (cand.Entry - cand.TPs[0]) / math.Max(1e-9, cand.SL-cand.Entry)
	}

	_, _, _, bwidth := indicators.Bollinger(c, p.BBPeriod, p.BBK)
	bw := bwidth[n]

	view := indicators.HTFGateAndBias(htf, p.OneHDispLookback, p.OneHDispBodyMin, ts.ADXTrendMin)
	htfAlign := view.Bias == cand.Side

	atrv := indicators.ATRWilder(h, l, c, p.ATRPeriod)[n]
	atrPct := atrv / (closePx + 1e-12)

	feats := &models.Features{
		HTFAlign:      b2f(htfAlign),
		ADXNorm:       normalizeADX(adxv, ts.ADXTrendMin),
		LTFMomo:       b2f(strategy.MomentumOK(ltf, cand.Side)),
		RRNorm:        normalizeRR(rr1),
		BWAdv:         bwAdvantage(bw, ts.BWidthRange),
		RetestOrFVG:   b2f(cand.Retest || cand.Regime == models.RegimeSMC),
		ATRSweet:      atrInSweet(atrPct, p),
		VolPct:        clamp01(volPct),
		RecentPenalty: e.recentPenalty(cand.Symbol),
	}
	explain := models.Explain{
		RR1:    rr1,
		ADX:    adxv,
		BWidth: bw,
		ATRPct: atrPct,
		HTF:    view.Bias,
	}
	return feats, explain
}

func compositeScore(feats *models.Features, weights map[string]float64) float64 {
	s := scoringBase
	for name, w := range weights {
		s += w * feats.Get(name)
	}
	return math.Max(0, s)
}

// hardRules — жёсткие правила поверх взвешенной суммы, в фиксированном
// порядке. Итог никогда не отрицательный.
func hardRules(score float64, feats *models.Features, cand *models.Candidate) float64 {
	if feats.HTFAlign < 1.0 {
		score -= htfPenalty // bias старшего ТФ против сделки — штраф, не вето
	}
	if feats.ADXNorm < adxVetoFloor {
		score = 0 // бестрендовый рынок гасит сетап целиком
	}
	if cand.Regime == models.RegimeRange && feats.BWAdv < 0.20 {
		score -= rangePenalty
	}
	if cand.Regime == models.RegimePremo {
		score += cand.EarlyBonus
	}
	return math.Max(0, score)
}

// Apply заполняет скоринговые поля кандидата: композитный скор,
// жёсткие правила и калиброванную вероятность.
func (e *Engine) Apply(cand *models.Candidate, ltf, htf []models.Candle, volPct float64, p *strategy.Params, ts *models.TunerState) {
	feats, explain := e.Extract(cand, ltf, htf, volPct, p, ts)
	score := hardRules(compositeScore(feats, e.weights), feats, cand)

	cand.Score = score
	cand.Prob = scoreToProb(score)
	cand.Feats = feats
	cand.Explain = explain
}

// analyzeSafe изолирует панику одной стратегии: остальные всё равно
// получают шанс дать кандидата по символу.
func analyzeSafe(st strategy.Strategy, symbol string, ltf, htf []models.Candle, p *strategy.Params, ts *models.TunerState) (cand *models.Candidate) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("стратегия %s на %s: panic %v", st.Name(), symbol, r)
			cand = nil
		}
	}()
	return st.Analyze(symbol, ltf, htf, p, ts)
}

// PickBest прогоняет все стратегии и возвращает лучшего по скору
// кандидата символа. Momentum-кандидату гарантируется минимальный
// скор BaseMinScore−4, чтобы он не выпадал чисто структурно.
func (e *Engine) PickBest(symbol string, strategies []strategy.Strategy, ltf, htf []models.Candle, volPct float64, p *strategy.Params, ts *models.TunerState) *models.Candidate {
	var best *models.Candidate
	for _, st := range strategies {
		cand := analyzeSafe(st, symbol, ltf, htf, p, ts)
		if cand == nil {
			continue
		}
		if !cand.Valid() {
			continue // сломанный порядок уровней не скорим
		}
		e.Apply(cand, ltf, htf, volPct, p, ts)
		if st.Name() == "momentum" {
			cand.Score = math.Max(cand.Score, ts.BaseMinScore-momentumSlack)
		}
		if best == nil || cand.Score > best.Score {
			best = cand
		}
	}
	return best
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
