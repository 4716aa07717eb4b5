package ai

import (
	"math"
	"sync"

	"scanner_bot/internal/models"
)

const (
	defaultLR       = 0.02
	defaultL2       = 1e-4
	defaultInitBias = -2.0
)

// Model — онлайн-логистическая регрессия по схеме признаков скоринга.
// Обновляется после каждого разрешённого исхода, переживает рестарты
// через Snapshot/Restore, сбрасывается только командой оператора.
type Model struct {
	mu   sync.RWMutex
	w    map[string]float64
	b    float64
	seen int

	lr       float64
	l2       float64
	initBias float64
}

func NewModel() *Model {
	m := &Model{
		lr:       defaultLR,
		l2:       defaultL2,
		initBias: defaultInitBias,
	}
	m.resetLocked()
	return m
}

func (m *Model) resetLocked() {
	m.w = make(map[string]float64, len(models.FeatureNames))
	for _, name := range models.FeatureNames {
		m.w[name] = 0
	}
	m.b = m.initBias
	m.seen = 0
}

// Reset обнуляет веса и возвращает bias к начальному значению.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func sigm(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// Predict — вероятность выигрыша по вектору признаков.
func (m *Model) Predict(feats *models.Features) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.predictLocked(feats)
}

func (m *Model) predictLocked(feats *models.Features) float64 {
	z := m.b
	for _, name := range models.FeatureNames {
		z += m.w[name] * feats.Get(name)
	}
	return sigm(z)
}

// Update — один шаг градиентного спуска по логистической потере с
// L2-регуляризацией. y: 1 выигрыш, 0 проигрыш.
func (m *Model) Update(feats *models.Features, y int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.predictLocked(feats) - float64(y)
	m.b -= m.lr * (err + m.l2*m.b)
	for _, name := range models.FeatureNames {
		g := err*feats.Get(name) + m.l2*m.w[name]
		m.w[name] -= m.lr * g
	}
	m.seen++
}

// Blend — среднее калиброванной вероятности скоринга и предсказания
// модели; итоговая вероятность кандидата.
func (m *Model) Blend(calibProb float64, feats *models.Features) float64 {
	return (calibProb + m.Predict(feats)) / 2.0
}

// State — снимок модели для персистенса и /aistats.
type State struct {
	Weights map[string]float64 `json:"weights"`
	Bias    float64            `json:"bias"`
	Seen    int                `json:"seen"`
}

func (m *Model) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w := make(map[string]float64, len(m.w))
	for k, v := range m.w {
		w[k] = v
	}
	return State{Weights: w, Bias: m.b, Seen: m.seen}
}

func (m *Model) Restore(st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	for k, v := range st.Weights {
		m.w[k] = v
	}
	m.b = st.Bias
	m.seen = st.Seen
}
