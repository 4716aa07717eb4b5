package scanner

import (
	"context"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"scanner_bot/internal/ai"
	"scanner_bot/internal/exchange"
	"scanner_bot/internal/models"
	"scanner_bot/internal/modules/config"
	"scanner_bot/internal/scoring"
	"scanner_bot/internal/storage"
	"scanner_bot/internal/strategy"
	"scanner_bot/internal/tracker"
	"scanner_bot/internal/validator"
	"scanner_bot/pkg/logger"
)

// Market — биржевые данные, нужные циклу сканирования.
type Market interface {
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)
	TopSymbols(ctx context.Context, minVolValue float64) ([]exchange.TickerStat, error)
	VolPercentile(symbol string) float64
	NormalizeSymbol(ctx context.Context, userSym string) string
}

// Notifier — исходящий канал сигналов и отчётов.
type Notifier interface {
	SendSignal(ps *models.PendingSignal) error
	SendText(text string) error
}

const (
	minBarsLtf = 80
	minBarsHtf = 60

	relaxEmptyLimit = 3
	relaxStep       = 2
	relaxMax        = 6
	relaxFloor      = 58
)

// позиция последнего допущенного кандидата символа, для flip-защиты
type positionState struct {
	side   models.Side
	barIdx int
	barTS  time.Time
}

// Service — оркестратор: цикл резолв → тюнинг → валидация → скан →
// допуск. Пороги и состояние тюнера мутируются только под mu (фаза
// агрегации и команды оператора); воркеры фан-аута снимают копию
// params/ts под mu и дальше работают с ней.
type Service struct {
	cfg    *config.Config
	market Market
	notif  Notifier
	repo   *storage.Repo // nil — работаем без персистенса

	engine     *scoring.Engine
	strategies []strategy.Strategy
	pool       *validator.Pool
	tracker    *tracker.Tracker
	model      *ai.Model

	mu        sync.Mutex
	params    strategy.Params // воркеры читают копию, снятую под mu
	ts        *models.TunerState
	tunerCfg  ai.TunerConfig
	preset    config.ModePreset
	mode      string
	cooldown  map[string]time.Time
	positions map[string]positionState

	nowFn func() time.Time
}

func NewService(cfg *config.Config, market Market, notif Notifier, repo *storage.Repo, pool *validator.Pool, trk *tracker.Tracker) *Service {
	return &Service{
		cfg:        cfg,
		market:     market,
		notif:      notif,
		repo:       repo,
		engine:     scoring.NewEngine(),
		params:     cfg.Preset.Params(),
		strategies: strategy.All(),
		pool:       pool,
		tracker:    trk,
		model:      ai.NewModel(),
		ts:         cfg.Preset.TunerState(),
		tunerCfg: ai.TunerConfig{
			Enabled:    cfg.TunerEnabled,
			WRTarget:   cfg.TunerWRTarget,
			MinSamples: cfg.TunerMinSamples,
			Window:     cfg.TunerWindow,
			Cooldown:   cfg.TunerCooldown,
		},
		preset:    cfg.Preset,
		mode:      cfg.Mode,
		cooldown:  make(map[string]time.Time),
		positions: make(map[string]positionState),
		nowFn:     time.Now,
	}
}

// restoreState подтягивает персистентное состояние после рестарта.
func (s *Service) restoreState(ctx context.Context) {
	if s.repo == nil {
		return
	}
	if err := s.repo.EnsureSchema(ctx); err != nil {
		logger.Error("schema: %v", err)
		return
	}
	if st, ok, err := s.repo.LoadAIState(ctx); err != nil {
		logger.Error("load ai state: %v", err)
	} else if ok {
		s.model.Restore(st)
	}
	if ts, ok, err := s.repo.LoadTunerState(ctx); err != nil {
		logger.Error("load tuner state: %v", err)
	} else if ok {
		s.mu.Lock()
		s.ts = ts
		s.mu.Unlock()
	}
	if items, err := s.repo.LoadPool(ctx); err != nil {
		logger.Error("load pool: %v", err)
	} else {
		s.pool.Restore(items)
	}
	if recs, err := s.repo.LoadRecords(ctx, 500); err != nil {
		logger.Error("load records: %v", err)
	} else {
		s.tracker.Restore(recs)
	}
}

// Run — главный цикл. Живёт до отмены контекста.
func (s *Service) Run(ctx context.Context) {
	s.restoreState(ctx)

	syms, err := s.market.TopSymbols(ctx, s.currentPreset().MinVolValueUSDT)
	if err != nil {
		logger.Error("стартовый список символов: %v", err)
	}
	log.Printf("[SCAN] 🚀 старт: %d USDT-пар | режим %s", len(syms), s.mode)

	for {
		s.runCycle(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(s.cfg.SleepSeconds) * time.Second):
		}
	}
}

func (s *Service) runCycle(ctx context.Context) {
	span := opentracing.StartSpan("scan_cycle")
	defer span.Finish()

	// 1. Исходы открытых сигналов
	resolved := s.tracker.Resolve(ctx)
	span.SetTag("resolved", len(resolved))
	for _, rec := range resolved {
		s.applyOutcome(ctx, rec)
	}

	// 2. Автотюнер
	s.mu.Lock()
	tuned := ai.AutoTune(s.ts, s.tracker.History(), s.tunerCfg, s.nowFn())
	s.mu.Unlock()
	if tuned {
		s.persistTuner(ctx)
	}

	// 3. Распад штрафов за недавние стопы
	s.engine.DecayPenalties()

	// 4. Пул подтверждения
	confirmed := s.pool.Validate(ctx)
	span.SetTag("confirmed", len(confirmed))
	for _, ps := range confirmed {
		s.emitConfirmed(ctx, ps)
	}
	if len(confirmed) > 0 {
		s.persistPool(ctx)
	}

	// 5. Фан-аут скан
	t0 := s.nowFn()
	cands := s.scanAll(ctx)
	span.SetTag("candidates", len(cands))

	// 6. Допуск в пул
	admitted, strong := s.admit(cands)
	for _, cand := range admitted {
		s.pool.Add(*cand)
	}
	if len(admitted) > 0 {
		s.persistPool(ctx)
	}

	// 7. Адаптивное смягчение при пустых сканах
	s.relaxAfterScan(strong)

	s.mu.Lock()
	dyn := s.ts.DynMinScore
	s.mu.Unlock()
	log.Printf("[SCAN] ♻️ цикл за %.1fs | кандидатов: %d, в пул: %d, ожидают: %d, в сопровождении: %d | DynMinScore=%.0f | режим %s",
		s.nowFn().Sub(t0).Seconds(), len(cands), len(admitted), s.pool.Size(), s.tracker.ActiveCount(), dyn, s.currentMode())
}

// applyOutcome — обучение модели и штраф символа по разрешённому исходу.
func (s *Service) applyOutcome(ctx context.Context, rec *models.SignalRecord) {
	if rec.Feats != nil {
		switch {
		case rec.Outcome.Win():
			s.model.Update(rec.Feats, 1)
		case rec.Outcome == models.OutcomeSL:
			s.model.Update(rec.Feats, 0)
		}
	}
	s.engine.MarkOutcome(rec.Symbol, rec.Outcome)

	if rec.Outcome.Win() || rec.Outcome == models.OutcomeSL {
		emoji := "✅"
		if rec.Outcome == models.OutcomeSL {
			emoji = "❌"
		}
		_ = s.notif.SendText(emojiOutcomeText(emoji, rec))
	}

	if s.repo != nil {
		if err := s.repo.SaveRecord(ctx, rec); err != nil {
			logger.Error("save record: %v", err)
		}
		if err := s.repo.SaveAIState(ctx, s.model.Snapshot()); err != nil {
			logger.Error("save ai state: %v", err)
		}
	}
}

// emitConfirmed — постановка подтверждённого сигнала на сопровождение
// и отправка оператору.
func (s *Service) emitConfirmed(ctx context.Context, ps *models.PendingSignal) {
	rec := s.tracker.Track(ps, ps.Candidate.Explain.ATRPct)
	log.Printf("[SCAN] 🎯 ОТПРАВЛЕН: %s %s | Entry=%.6f TP1=%.6f SL=%.6f | скор=%.0f",
		ps.Candidate.Symbol, ps.Candidate.Side, ps.Candidate.Entry, ps.Candidate.TPs[0], ps.Candidate.SL, ps.Candidate.Score)
	if err := s.notif.SendSignal(ps); err != nil {
		logger.Error("send signal: %v", err)
	}

	s.mu.Lock()
	s.cooldown[ps.Candidate.Symbol] = s.nowFn()
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SaveRecord(ctx, rec); err != nil {
			logger.Error("save record: %v", err)
		}
	}
}

// scanAll — фан-аут по символам с пулом воркеров.
func (s *Service) scanAll(ctx context.Context) []*models.Candidate {
	preset := s.currentPreset()
	syms, err := s.market.TopSymbols(ctx, preset.MinVolValueUSDT)
	if err != nil {
		logger.Error("top symbols: %v", err)
		return nil
	}
	rand.Shuffle(len(syms), func(i, j int) { syms[i], syms[j] = syms[j], syms[i] })

	jobs := make(chan string)
	results := make(chan *models.Candidate)
	var wg sync.WaitGroup
	for w := 0; w < s.cfg.SymbolConcurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				if cand := s.scanOne(ctx, sym); cand != nil {
					results <- cand
				}
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, t := range syms {
			select {
			case <-ctx.Done():
				return
			case jobs <- t.Symbol:
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	var cands []*models.Candidate
	for cand := range results {
		cands = append(cands, cand)
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].Score > cands[j].Score })
	return cands
}

// scanOne — один символ: кулдаун, данные, стратегии, flip-защита, AI.
// Паника стратегии на кривых данных не валит весь скан.
func (s *Service) scanOne(ctx context.Context, sym string) (cand *models.Candidate) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("scan %s panic: %v", sym, p)
			cand = nil
		}
	}()

	preset := s.currentPreset()
	now := s.nowFn()

	s.mu.Lock()
	last, onCooldown := s.cooldown[sym]
	s.mu.Unlock()
	if onCooldown && now.Sub(last) < time.Duration(preset.CooldownSec)*time.Second {
		return nil
	}

	ltf, err := s.market.GetCandles(ctx, sym, s.cfg.TFLtf, s.cfg.LookbackLtf)
	if err != nil || len(ltf) < minBarsLtf {
		return nil
	}
	htf, err := s.market.GetCandles(ctx, sym, s.cfg.TFHtf, s.cfg.LookbackHtf)
	if err != nil || len(htf) < minBarsHtf {
		return nil
	}

	lastBar := ltf[len(ltf)-1].Time
	s.mu.Lock()
	pos, hasPos := s.positions[sym]
	p := s.params
	ts := *s.ts
	s.mu.Unlock()
	if hasPos && pos.barTS.Equal(lastBar) {
		return nil // тот же бар, нового не появилось
	}

	best := s.engine.PickBest(sym, s.strategies, ltf, htf, s.market.VolPercentile(sym), &p, &ts)
	if best == nil {
		return nil
	}
	if hasPos && !s.canEmit(pos, best.Side, len(ltf)-1) {
		return nil
	}

	best.AIProb = s.model.Predict(best.Feats)
	best.PFinal = s.model.Blend(best.Prob, best.Feats)
	best.BarIdx = len(ltf) - 1
	best.BarTime = lastBar
	return best
}

// canEmit — защита от переворотов: та же сторона блокируется, пока
// жива позиция символа, противоположная ждёт минимум баров.
func (s *Service) canEmit(pos positionState, side models.Side, barIdx int) bool {
	if side == pos.side {
		return false
	}
	return barIdx-pos.barIdx >= s.cfg.OppositeMinBars
}

// admit — отбор топ-N кандидатов выше динамического порога; при пустом
// сильном списке допускается лучший выше fallback-порога.
func (s *Service) admit(cands []*models.Candidate) (admitted []*models.Candidate, strong int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	preset := s.preset
	dyn := s.ts.DynMinScore
	for _, c := range cands {
		if c.Score >= dyn {
			strong++
		}
	}

	for _, c := range cands {
		if len(admitted) >= preset.TopNPerScan {
			break
		}
		pass := c.Score >= dyn
		if !pass && strong == 0 && s.cfg.FallbackEnable && c.Score >= preset.FallbackMin {
			pass = true
		}
		if !pass {
			continue
		}
		admitted = append(admitted, c)
		s.positions[c.Symbol] = positionState{side: c.Side, barIdx: c.BarIdx, barTS: c.BarTime}
	}
	return admitted, strong
}

// relaxAfterScan — временное смягчение порога после серии пустых
// сканов; при появлении сильных кандидатов порог возвращается к базе.
func (s *Service) relaxAfterScan(strong int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strong == 0 {
		s.ts.EmptyScans++
		if s.ts.EmptyScans >= relaxEmptyLimit && s.ts.RelaxAcc < relaxMax {
			s.ts.DynMinScore = maxF(relaxFloor, s.ts.DynMinScore-relaxStep)
			s.ts.RelaxAcc += relaxStep
			s.ts.EmptyScans = 0
			log.Printf("[SCAN] 🔽 пусто: DynMinScore → %.0f", s.ts.DynMinScore)
		}
		return
	}
	s.ts.EmptyScans = 0
	if s.ts.DynMinScore < s.ts.BaseMinScore {
		s.ts.DynMinScore = s.ts.BaseMinScore
	}
}

func (s *Service) currentPreset() config.ModePreset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preset
}

func (s *Service) currentMode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Service) persistPool(ctx context.Context) {
	if s.repo == nil {
		return
	}
	if err := s.repo.SavePool(ctx, s.pool.Snapshot()); err != nil {
		logger.Error("save pool: %v", err)
	}
}

func (s *Service) persistTuner(ctx context.Context) {
	if s.repo == nil {
		return
	}
	s.mu.Lock()
	ts := *s.ts
	s.mu.Unlock()
	if err := s.repo.SaveTunerState(ctx, &ts); err != nil {
		logger.Error("save tuner state: %v", err)
	}
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
