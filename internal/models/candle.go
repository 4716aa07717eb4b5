package models

import "time"

// Candle — одна закрытая свеча OHLCV. Серии всегда отсортированы по
// времени по возрастанию, последняя свеча — самая свежая.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Time   time.Time
}

// Body — абсолютный размер тела свечи.
func (c Candle) Body() float64 {
	b := c.Close - c.Open
	if b < 0 {
		return -b
	}
	return b
}

// Range — полный диапазон high-low.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// Closes возвращает срез close-цен серии.
func Closes(cs []Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

func Opens(cs []Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Open
	}
	return out
}

func Highs(cs []Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.High
	}
	return out
}

func Lows(cs []Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Low
	}
	return out
}

func Volumes(cs []Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Volume
	}
	return out
}
