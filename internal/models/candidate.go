package models

import "time"

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite — противоположная сторона.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Regime — тег рыночного режима, который стратегия присваивает кандидату.
type Regime string

const (
	RegimeTrend Regime = "TREND"
	RegimeRange Regime = "RANGE"
	RegimeSMC   Regime = "SMC"
	RegimeMomo  Regime = "MO"    // momentum на уровне пробоя
	RegimePremo Regime = "PREMO" // momentum до пробоя (ранний)
)

// Candidate — сырой кандидат от стратегии. Создаётся заново каждый скан,
// после создания не мутируется (кроме полей скоринга, которые заполняет
// scoring.Engine ровно один раз).
type Candidate struct {
	Symbol string
	Side   Side
	Entry  float64
	SL     float64
	TPs    [3]float64 // по возрастанию расстояния от входа
	Regime Regime
	Reason string
	Retest bool // вход через ретест уровня пробоя

	// заполняет scoring.Engine
	Score   float64
	Prob    float64 // калиброванная вероятность из скора
	AIProb  float64 // предсказание онлайн-модели
	PFinal  float64 // (Prob + AIProb) / 2
	Feats   *Features
	Explain Explain

	// служебное: бонус раннего momentum-тригера и привязка к бару
	EarlyBonus float64
	BarIdx     int
	BarTime    time.Time
}

// Explain — диагностика скоринга для логов и сообщений.
type Explain struct {
	RR1    float64
	ADX    float64
	BWidth float64
	ATRPct float64
	HTF    Side // bias старшего ТФ ("" если нейтральный)
}

// Valid проверяет строгий порядок уровней: для LONG
// sl < entry < tp1 < tp2 < tp3, для SHORT зеркально.
// Кандидат с нарушенным порядком отбрасывается до скоринга.
func (c *Candidate) Valid() bool {
	if c.Entry <= 0 || c.SL <= 0 {
		return false
	}
	if c.Side == SideLong {
		return c.SL < c.Entry && c.Entry < c.TPs[0] && c.TPs[0] < c.TPs[1] && c.TPs[1] < c.TPs[2]
	}
	if c.Side == SideShort {
		return c.SL > c.Entry && c.Entry > c.TPs[0] && c.TPs[0] > c.TPs[1] && c.TPs[1] > c.TPs[2]
	}
	return false
}
