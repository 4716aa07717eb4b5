package models

import "time"

// Статусы сигнала в пуле подтверждения.
type PendingStatus string

const (
	StatusPending   PendingStatus = "PENDING"
	StatusConfirmed PendingStatus = "CONFIRMED"
	StatusCancelled PendingStatus = "CANCELLED"
)

// PendingSignal — кандидат, прошедший скоринг и ждущий подтверждения
// на 5m свечах. В пуле не больше одного на символ.
type PendingSignal struct {
	ID        int64
	Candidate Candidate
	CreatedAt time.Time
	Status    PendingStatus
	Bonus     float64  // бонус валидатора при подтверждении
	Notes     []string // диагностика проверок валидатора
}

// Итог трекинга подтверждённого сигнала.
type Outcome string

const (
	OutcomeActive    Outcome = "ACTIVE"
	OutcomeTP1       Outcome = "TP1"
	OutcomeTP2       Outcome = "TP2"
	OutcomeTP3       Outcome = "TP3"
	OutcomeSL        Outcome = "SL"
	OutcomeCancelled Outcome = "CANCELLED"
)

// Win — итог считается выигрышным (любой TP).
func (o Outcome) Win() bool {
	return o == OutcomeTP1 || o == OutcomeTP2 || o == OutcomeTP3
}

// Resolved — запись больше не отслеживается.
func (o Outcome) Resolved() bool {
	return o != OutcomeActive
}

// Причины SL для статистики.
type SLCause string

const (
	SLImmediateReversal SLCause = "IMMEDIATE_REVERSAL"
	SLHighVolatility    SLCause = "HIGH_VOLATILITY"
	SLTrendReversal     SLCause = "TREND_REVERSAL"
	SLNormal            SLCause = "NORMAL_SL"
)

// SignalRecord — подтверждённый сигнал в трекинге до исхода.
type SignalRecord struct {
	ID          int64
	Symbol      string
	Side        Side
	Entry       float64
	SL          float64
	TPs         [3]float64
	Score       float64
	PFinal      float64
	Regime      Regime
	Feats       *Features
	EntryATRPct float64 // atr/price на момент входа, для классификации SL
	ConfirmedAt time.Time

	Outcome    Outcome
	ResolvedAt time.Time
	PnlPct     float64
	SLCause    SLCause
	BarsHeld   int
}
