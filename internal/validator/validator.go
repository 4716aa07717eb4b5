package validator

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"scanner_bot/internal/indicators"
	"scanner_bot/internal/models"
)

// CandleSource — поставщик свечей для доп. проверки на быстром ТФ.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)
}

// Config — пороги подтверждения.
type Config struct {
	Timeframe     string
	MinBars       int
	Timeout       time.Duration
	BodyStrongMin float64
	BodyWeakMax   float64
	VolSupportX   float64
	VolWeakX      float64
	RSIOverbought float64
	RSIOversold   float64
	ATRMoveMin    float64
}

func DefaultConfig() Config {
	return Config{
		Timeframe:     "5min",
		MinBars:       2,
		Timeout:       20 * time.Minute,
		BodyStrongMin: 0.60,
		BodyWeakMax:   0.30,
		VolSupportX:   1.1,
		VolWeakX:      0.7,
		RSIOverbought: 75,
		RSIOversold:   25,
		ATRMoveMin:    0.25,
	}
}

// Pool — пул подтверждения: кандидаты ждут вердикта по свежим 5m
// свечам. На символ не больше одной записи, новая безусловно вытесняет
// старую.
type Pool struct {
	mu      sync.Mutex
	pending map[string]*models.PendingSignal
	src     CandleSource
	cfg     Config
	nextID  int64
	nowFn   func() time.Time
}

func NewPool(src CandleSource, cfg Config) *Pool {
	return &Pool{
		pending: make(map[string]*models.PendingSignal),
		src:     src,
		cfg:     cfg,
		nowFn:   time.Now,
	}
}

// Add помещает кандидата в пул. Существующая запись символа
// отменяется независимо от её скора.
func (p *Pool) Add(cand models.Candidate) *models.PendingSignal {
	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.pending[cand.Symbol]; ok {
		old.Status = models.StatusCancelled
		log.Printf("[POOL] ⚠️ %s: старый кандидат вытеснен новым", cand.Symbol)
	}
	p.nextID++
	ps := &models.PendingSignal{
		ID:        p.nextID,
		Candidate: cand,
		CreatedAt: p.nowFn(),
		Status:    models.StatusPending,
	}
	p.pending[cand.Symbol] = ps
	log.Printf("[POOL] 🔄 %s %s добавлен в пул подтверждения (скор %.0f)", cand.Symbol, cand.Side, cand.Score)
	return ps
}

// Size — число ожидающих записей.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Snapshot — копия пула для персистенса.
func (p *Pool) Snapshot() []*models.PendingSignal {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*models.PendingSignal, 0, len(p.pending))
	for _, ps := range p.pending {
		cp := *ps
		out = append(out, &cp)
	}
	return out
}

// Restore загружает пул из персистентного снимка.
func (p *Pool) Restore(items []*models.PendingSignal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ps := range items {
		if ps.Status != models.StatusPending {
			continue
		}
		p.pending[ps.Candidate.Symbol] = ps
		if ps.ID > p.nextID {
			p.nextID = ps.ID
		}
	}
}

// Validate проходит пул один раз: таймауты, отмены, подтверждения.
// Возвращает подтверждённые сигналы этого прохода.
func (p *Pool) Validate(ctx context.Context) []*models.PendingSignal {
	p.mu.Lock()
	items := make([]*models.PendingSignal, 0, len(p.pending))
	for _, ps := range p.pending {
		items = append(items, ps)
	}
	p.mu.Unlock()

	var confirmed []*models.PendingSignal
	now := p.nowFn()

	for _, ps := range items {
		sym := ps.Candidate.Symbol

		if now.Sub(ps.CreatedAt) > p.cfg.Timeout {
			p.finish(ps, models.StatusCancelled)
			log.Printf("[POOL] ⏰ %s: отменён по таймауту", sym)
			continue
		}

		verdict, bonus, notes := p.check(ctx, ps)
		switch verdict {
		case models.StatusConfirmed:
			ps.Bonus = bonus
			ps.Notes = notes
			ps.Candidate.Score += bonus
			p.finish(ps, models.StatusConfirmed)
			confirmed = append(confirmed, ps)
			log.Printf("[POOL] ✅ %s %s подтверждён 5m-анализом (+%.0f)", sym, ps.Candidate.Side, bonus)
		case models.StatusCancelled:
			ps.Notes = notes
			p.finish(ps, models.StatusCancelled)
			log.Printf("[POOL] ❌ %s: не прошёл 5m-анализ", sym)
		default:
			// остаёмся в ожидании
		}
	}
	return confirmed
}

func (p *Pool) finish(ps *models.PendingSignal, st models.PendingStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ps.Status = st
	// запись могла быть уже вытеснена более новой
	if cur, ok := p.pending[ps.Candidate.Symbol]; ok && cur == ps {
		delete(p.pending, ps.Candidate.Symbol)
	}
}

// check — анализ последних баров быстрого ТФ. Ошибки данных не
// приговор: остаёмся PENDING до таймаута.
func (p *Pool) check(ctx context.Context, ps *models.PendingSignal) (models.PendingStatus, float64, []string) {
	cs, err := p.src.GetCandles(ctx, ps.Candidate.Symbol, p.cfg.Timeframe, 100)
	if err != nil || len(cs) < 10 {
		return models.StatusPending, 0, nil
	}

	// бары, закрывшиеся после постановки в пул
	var future []models.Candle
	for _, c := range cs {
		if c.Time.After(ps.CreatedAt) {
			future = append(future, c)
		}
	}
	if len(future) < p.cfg.MinBars {
		return models.StatusPending, 0, nil
	}
	window := future
	if len(window) > 3 {
		window = window[len(window)-3:]
	}

	return p.judge(ps.Candidate.Side, cs, window)
}

func (p *Pool) judge(side models.Side, all, window []models.Candle) (models.PendingStatus, float64, []string) {
	first, last := window[0], window[len(window)-1]
	momentum := last.Close - first.Close

	avgBody, avgVol := 0.0, 0.0
	for _, c := range window {
		if rng := c.Range(); rng > 0 {
			avgBody += c.Body() / rng
		}
		avgVol += c.Volume
	}
	avgBody /= float64(len(window))
	avgVol /= float64(len(window))

	volBase := meanTail(models.Volumes(all), 10)
	atr5 := indicators.ATRWilder(models.Highs(all), models.Lows(all), models.Closes(all), 14)
	atrMove := math.Abs(momentum) / math.Max(1e-12, atr5[len(atr5)-1])

	rsiVal := 50.0
	if closes := models.Closes(all); len(closes) >= 15 {
		rsiVal = indicators.RSI(closes, 14)[len(closes)-1]
	}

	long := side == models.SideLong

	dirMomo := momentum > 0
	if !long {
		dirMomo = momentum < 0
	}
	moveOK := atrMove >= p.cfg.ATRMoveMin
	strongBodies := avgBody >= p.cfg.BodyStrongMin
	volSupport := avgVol > volBase*p.cfg.VolSupportX
	rsiOK := rsiVal < p.cfg.RSIOverbought
	if !long {
		rsiOK = rsiVal > p.cfg.RSIOversold
	}

	noise := 0.002 * first.Close
	oppMomo := momentum < -noise
	if !long {
		oppMomo = momentum > noise
	}
	weakBodies := avgBody < p.cfg.BodyWeakMax
	weakVol := avgVol < volBase*p.cfg.VolWeakX

	positives := countTrue(dirMomo, moveOK, strongBodies, volSupport, rsiOK)
	negatives := countTrue(oppMomo, weakBodies, weakVol)

	notes := []string{
		fmt.Sprintf("momentum=%.6f atr_move=%.2f", momentum, atrMove),
		fmt.Sprintf("body=%.2f vol=%.2f rsi=%.1f", avgBody, avgVol, rsiVal),
		fmt.Sprintf("positives=%d negatives=%d", positives, negatives),
	}

	if negatives >= 2 {
		return models.StatusCancelled, 0, notes
	}
	if positives >= 3 {
		return models.StatusConfirmed, math.Min(5, float64(positives)), notes
	}
	return models.StatusPending, 0, notes
}

func countTrue(bs ...bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
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
