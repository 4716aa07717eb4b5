package validator

import (
	"context"
	"testing"
	"time"

	"scanner_bot/internal/models"
)

type stubSource struct {
	candles map[string][]models.Candle
	err     error
}

func (s *stubSource) GetCandles(_ context.Context, symbol, _ string, _ int) ([]models.Candle, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.candles[symbol], nil
}

func fixedPool(src CandleSource, now time.Time) *Pool {
	p := NewPool(src, DefaultConfig())
	p.nowFn = func() time.Time { return now }
	return p
}

func longCand(symbol string) models.Candidate {
	return models.Candidate{
		Symbol: symbol,
		Side:   models.SideLong,
		Entry:  100,
		SL:     97.6,
		TPs:    [3]float64{102.4, 103.84, 105.28},
		Score:  70,
	}
}

// базовая история до постановки в пул: плоские бары с объёмом 100
func baseline(n int, until time.Time) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{
			Open: 100, Close: 100.01, High: 100.4, Low: 99.6, Volume: 100,
			Time: until.Add(-time.Duration(n-i) * 5 * time.Minute),
		}
	}
	return out
}

func TestPoolDisplacesOlderEntry(t *testing.T) {
	p := fixedPool(&stubSource{}, time.Now())

	first := p.Add(longCand("BTC-USDT"))
	second := p.Add(longCand("BTC-USDT"))

	if first.Status != models.StatusCancelled {
		t.Errorf("old entry status = %v, want CANCELLED", first.Status)
	}
	if second.Status != models.StatusPending {
		t.Errorf("new entry status = %v, want PENDING", second.Status)
	}
	if p.Size() != 1 {
		t.Errorf("pool size = %d, want 1", p.Size())
	}
	if second.ID <= first.ID {
		t.Errorf("ids must grow: %d then %d", first.ID, second.ID)
	}
}

func TestValidateCancelsOnWeakFollowThrough(t *testing.T) {
	t0 := time.Now()
	cs := baseline(50, t0)
	// два слабых бара после постановки: крошечные тела и объём
	for i := 1; i <= 2; i++ {
		cs = append(cs, models.Candle{
			Open: 100, Close: 100.02, High: 100.5, Low: 99.5, Volume: 10,
			Time: t0.Add(time.Duration(i) * 5 * time.Minute),
		})
	}
	src := &stubSource{candles: map[string][]models.Candle{"BTC-USDT": cs}}
	p := fixedPool(src, t0)

	ps := p.Add(longCand("BTC-USDT"))
	p.nowFn = func() time.Time { return t0.Add(12 * time.Minute) }

	confirmed := p.Validate(context.Background())
	if len(confirmed) != 0 {
		t.Fatalf("weak follow-through must not confirm")
	}
	if ps.Status != models.StatusCancelled {
		t.Errorf("status = %v, want CANCELLED", ps.Status)
	}
	if p.Size() != 0 {
		t.Errorf("cancelled entry must leave the pool")
	}
}

func TestValidateConfirmsWithBonus(t *testing.T) {
	t0 := time.Now()
	cs := baseline(50, t0)
	// два импульсных бара в сторону сделки на повышенном объёме
	px := 100.0
	for i := 1; i <= 2; i++ {
		cs = append(cs, models.Candle{
			Open: px, Close: px + 1, High: px + 1.1, Low: px - 0.05, Volume: 200,
			Time: t0.Add(time.Duration(i) * 5 * time.Minute),
		})
		px += 1
	}
	src := &stubSource{candles: map[string][]models.Candle{"BTC-USDT": cs}}
	p := fixedPool(src, t0)

	ps := p.Add(longCand("BTC-USDT"))
	baseScore := ps.Candidate.Score
	p.nowFn = func() time.Time { return t0.Add(12 * time.Minute) }

	confirmed := p.Validate(context.Background())
	if len(confirmed) != 1 {
		t.Fatalf("confirmed = %d, want 1", len(confirmed))
	}
	got := confirmed[0]
	if got.Status != models.StatusConfirmed {
		t.Errorf("status = %v, want CONFIRMED", got.Status)
	}
	if got.Bonus < 3 || got.Bonus > 5 {
		t.Errorf("bonus = %v, want 3..5", got.Bonus)
	}
	if got.Candidate.Score != baseScore+got.Bonus {
		t.Errorf("score = %v, want %v", got.Candidate.Score, baseScore+got.Bonus)
	}
	if p.Size() != 0 {
		t.Errorf("confirmed entry must leave the pool")
	}
}

func TestValidateStaysPendingWithoutFreshBars(t *testing.T) {
	t0 := time.Now()
	src := &stubSource{candles: map[string][]models.Candle{"BTC-USDT": baseline(50, t0)}}
	p := fixedPool(src, t0)

	ps := p.Add(longCand("BTC-USDT"))
	p.nowFn = func() time.Time { return t0.Add(5 * time.Minute) }

	if got := p.Validate(context.Background()); len(got) != 0 {
		t.Fatalf("nothing to confirm yet")
	}
	if ps.Status != models.StatusPending {
		t.Errorf("status = %v, want PENDING", ps.Status)
	}
	if p.Size() != 1 {
		t.Errorf("pending entry must stay in the pool")
	}
}

func TestValidateTimeout(t *testing.T) {
	t0 := time.Now()
	src := &stubSource{candles: map[string][]models.Candle{"BTC-USDT": baseline(50, t0)}}
	p := fixedPool(src, t0)

	ps := p.Add(longCand("BTC-USDT"))
	p.nowFn = func() time.Time { return t0.Add(25 * time.Minute) }

	p.Validate(context.Background())
	if ps.Status != models.StatusCancelled {
		t.Errorf("status = %v, want CANCELLED after timeout", ps.Status)
	}
	if p.Size() != 0 {
		t.Errorf("timed-out entry must leave the pool")
	}
}

func TestPoolSnapshotRestore(t *testing.T) {
	p := fixedPool(&stubSource{}, time.Now())
	p.Add(longCand("BTC-USDT"))
	p.Add(longCand("ETH-USDT"))

	snap := p.Snapshot()
	p2 := fixedPool(&stubSource{}, time.Now())
	p2.Restore(snap)
	if p2.Size() != 2 {
		t.Errorf("restored size = %d, want 2", p2.Size())
	}
	// нумерация продолжается после рестарта
	ps := p2.Add(longCand("SOL-USDT"))
	if ps.ID <= 2 {
		t.Errorf("id after restore = %d, want > 2", ps.ID)
	}
}
