package tracker

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"scanner_bot/internal/indicators"
	"scanner_bot/internal/models"
)

// CandleSource — свечи быстрого ТФ для прохода по истории.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)
}

// ExcursionCache — максимумы/минимумы цены с последней проверки (WS-кэш).
// Позволяет не дёргать свечи, когда цена заведомо не доходила до уровней.
type ExcursionCache interface {
	Excursion(symbol string) (hi, lo float64, ok bool)
	ResetExcursion(symbol string)
}

// Tracker ведёт подтверждённые сигналы до исхода: SL, один из TP или
// принудительная отмена по возрасту.
type Tracker struct {
	mu      sync.Mutex
	active  map[int64]*models.SignalRecord
	history []*models.SignalRecord
	nextID  int64

	src    CandleSource
	exc    ExcursionCache
	tf     string
	maxTTL time.Duration
	nowFn  func() time.Time
}

func New(src CandleSource, exc ExcursionCache, timeframe string) *Tracker {
	return &Tracker{
		active: make(map[int64]*models.SignalRecord),
		src:    src,
		exc:    exc,
		tf:     timeframe,
		maxTTL: 24 * time.Hour,
		nowFn:  time.Now,
	}
}

// Track ставит подтверждённый сигнал на сопровождение.
func (t *Tracker) Track(ps *models.PendingSignal, entryATRPct float64) *models.SignalRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	rec := &models.SignalRecord{
		ID:          t.nextID,
		Symbol:      ps.Candidate.Symbol,
		Side:        ps.Candidate.Side,
		Entry:       ps.Candidate.Entry,
		SL:          ps.Candidate.SL,
		TPs:         ps.Candidate.TPs,
		Score:       ps.Candidate.Score,
		PFinal:      ps.Candidate.PFinal,
		Regime:      ps.Candidate.Regime,
		Feats:       ps.Candidate.Feats,
		EntryATRPct: entryATRPct,
		ConfirmedAt: t.nowFn(),
		Outcome:     models.OutcomeActive,
	}
	t.active[rec.ID] = rec
	return rec
}

// ActiveCount — число записей в сопровождении.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// History — копия среза истории (новые в конце).
func (t *Tracker) History() []*models.SignalRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*models.SignalRecord, len(t.history))
	copy(out, t.history)
	return out
}

// Restore загружает записи после рестарта.
func (t *Tracker) Restore(records []*models.SignalRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range records {
		if rec.ID > t.nextID {
			t.nextID = rec.ID
		}
		if rec.Outcome.Resolved() {
			t.history = append(t.history, rec)
		} else {
			t.active[rec.ID] = rec
		}
	}
}

// Resolve проходит активные записи и возвращает разрешённые этим
// проходом. Ошибки данных по символу не фатальны: запись ждёт
// следующего прохода.
func (t *Tracker) Resolve(ctx context.Context) []*models.SignalRecord {
	t.mu.Lock()
	items := make([]*models.SignalRecord, 0, len(t.active))
	for _, rec := range t.active {
		items = append(items, rec)
	}
	t.mu.Unlock()

	var resolved []*models.SignalRecord
	now := t.nowFn()

	for _, rec := range items {
		if now.Sub(rec.ConfirmedAt) > t.maxTTL {
			t.finish(rec, models.OutcomeCancelled, rec.Entry, now, 0)
			log.Printf("[TRACK] ⏰ %s: снят с сопровождения спустя 24ч", rec.Symbol)
			resolved = append(resolved, rec)
			continue
		}
		if t.exc != nil && !t.levelsTouched(rec) {
			continue
		}

		cs, err := t.src.GetCandles(ctx, rec.Symbol, t.tf, 300)
		if err != nil || len(cs) == 0 {
			continue
		}
		if t.exc != nil {
			t.exc.ResetExcursion(rec.Symbol)
		}
		if out, price, at, held := walk(rec, cs); out != models.OutcomeActive {
			t.finish(rec, out, price, at, held)
			if out == models.OutcomeSL {
				rec.SLCause = classifySL(rec, cs, held)
			}
			resolved = append(resolved, rec)
			log.Printf("[TRACK] 🎯 %s %s → %s (pnl %.2f%%)", rec.Symbol, rec.Side, out, rec.PnlPct)
		}
	}
	return resolved
}

// levelsTouched — быстрый фильтр по WS-экскурсии цены: если ни один
// уровень не задет, свечи можно не запрашивать.
func (t *Tracker) levelsTouched(rec *models.SignalRecord) bool {
	hi, lo, ok := t.exc.Excursion(rec.Symbol)
	if !ok {
		return true // нет данных — проверяем по свечам
	}
	if rec.Side == models.SideLong {
		return lo <= rec.SL || hi >= rec.TPs[0]
	}
	return hi >= rec.SL || lo <= rec.TPs[0]
}

// walk — проход по барам после подтверждения. В пределах одного бара
// SL приоритетнее любого TP, у TP приоритет сверху вниз.
func walk(rec *models.SignalRecord, cs []models.Candle) (models.Outcome, float64, time.Time, int) {
	held := 0
	long := rec.Side == models.SideLong
	for _, c := range cs {
		if !c.Time.After(rec.ConfirmedAt) {
			continue
		}
		held++
		if long {
			if c.Low <= rec.SL {
				return models.OutcomeSL, rec.SL, c.Time, held
			}
			switch {
			case c.High >= rec.TPs[2]:
				return models.OutcomeTP3, rec.TPs[2], c.Time, held
			case c.High >= rec.TPs[1]:
				return models.OutcomeTP2, rec.TPs[1], c.Time, held
			case c.High >= rec.TPs[0]:
				return models.OutcomeTP1, rec.TPs[0], c.Time, held
			}
			continue
		}
		if c.High >= rec.SL {
			return models.OutcomeSL, rec.SL, c.Time, held
		}
		switch {
		case c.Low <= rec.TPs[2]:
			return models.OutcomeTP3, rec.TPs[2], c.Time, held
		case c.Low <= rec.TPs[1]:
			return models.OutcomeTP2, rec.TPs[1], c.Time, held
		case c.Low <= rec.TPs[0]:
			return models.OutcomeTP1, rec.TPs[0], c.Time, held
		}
	}
	return models.OutcomeActive, 0, time.Time{}, held
}

func (t *Tracker) finish(rec *models.SignalRecord, out models.Outcome, price float64, at time.Time, held int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec.Outcome = out
	rec.ResolvedAt = at
	rec.BarsHeld = held
	rec.PnlPct = pnlPct(rec.Side, rec.Entry, price)
	delete(t.active, rec.ID)
	t.history = append(t.history, rec)
}

func pnlPct(side models.Side, entry, exit float64) float64 {
	if entry == 0 {
		return 0
	}
	p := (exit - entry) / entry * 100
	if side == models.SideShort {
		p = -p
	}
	return p
}

// classifySL — диагноз стопа для статистики и отчётов.
func classifySL(rec *models.SignalRecord, cs []models.Candle, held int) models.SLCause {
	if held <= 3 {
		return models.SLImmediateReversal
	}
	atr := indicators.ATRWilder(models.Highs(cs), models.Lows(cs), models.Closes(cs), 14)
	last := cs[len(cs)-1]
	if last.Close > 0 && rec.EntryATRPct > 0 {
		if atrNow := atr[len(atr)-1] / last.Close; atrNow > 1.5*rec.EntryATRPct {
			return models.SLHighVolatility
		}
	}
	if len(cs) >= 5 {
		net := cs[len(cs)-1].Close - cs[len(cs)-5].Close
		against := net < 0
		if rec.Side == models.SideShort {
			against = net > 0
		}
		if against {
			return models.SLTrendReversal
		}
	}
	return models.SLNormal
}

// Stats — агрегированная производительность по истории.
type Stats struct {
	Total     int
	Wins      int
	Losses    int
	Cancelled int
	WinRate   float64
	AvgPnl    float64
	TotalPnl  float64
	ByOutcome map[models.Outcome]int
	ByRegime  map[models.Regime][2]int // wins, losses
	BySLCause map[models.SLCause]int
}

func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := Stats{
		ByOutcome: make(map[models.Outcome]int),
		ByRegime:  make(map[models.Regime][2]int),
		BySLCause: make(map[models.SLCause]int),
	}
	pnlSum, pnlN := 0.0, 0
	for _, rec := range t.history {
		st.Total++
		st.ByOutcome[rec.Outcome]++
		switch {
		case rec.Outcome.Win():
			st.Wins++
		case rec.Outcome == models.OutcomeSL:
			st.Losses++
			st.BySLCause[rec.SLCause]++
		default:
			st.Cancelled++
		}
		if rec.Outcome.Win() || rec.Outcome == models.OutcomeSL {
			pnlSum += rec.PnlPct
			pnlN++
			wl := st.ByRegime[rec.Regime]
			if rec.Outcome.Win() {
				wl[0]++
			} else {
				wl[1]++
			}
			st.ByRegime[rec.Regime] = wl
		}
	}
	if st.Wins+st.Losses > 0 {
		st.WinRate = float64(st.Wins) / float64(st.Wins+st.Losses)
	}
	st.TotalPnl = pnlSum
	if pnlN > 0 {
		st.AvgPnl = pnlSum / float64(pnlN)
	}
	return st
}

// округление для отчётов
func round2(x float64) float64 { return math.Round(x*100) / 100 }
