package indicators

import "math"

// Пакет считает индикаторы поверх срезов float64. Значения до прогрева
// окна — NaN, сравнения с NaN дают false, поэтому вызывающий код может
// фильтровать условия без отдельных проверок на прогрев.

const eps = 1e-12

// EMA — экспоненциальное сглаживание, alpha = 2/(n+1), без коррекции
// смещения: y[0] = x[0], дальше рекурсия.
func EMA(xs []float64, n int) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	alpha := 2.0 / (float64(n) + 1.0)
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}

// ewmAlpha — рекурсивное сглаживание с заданной альфой, NaN в начале
// серии пропускаются (первое валидное значение становится стартовым).
func ewmAlpha(xs []float64, alpha float64) []float64 {
	out := make([]float64, len(xs))
	prev := math.NaN()
	for i, x := range xs {
		if math.IsNaN(x) {
			out[i] = prev
			continue
		}
		if math.IsNaN(prev) {
			prev = x
		} else {
			prev = alpha*x + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

// TrueRange: max(h-l, |h-prevC|, |l-prevC|); первый бар — NaN,
// предыдущего закрытия ещё нет.
func TrueRange(h, l, c []float64) []float64 {
	out := make([]float64, len(c))
	for i := range c {
		if i == 0 {
			out[i] = math.NaN()
			continue
		}
		tr := h[i] - l[i]
		if v := math.Abs(h[i] - c[i-1]); v > tr {
			tr = v
		}
		if v := math.Abs(l[i] - c[i-1]); v > tr {
			tr = v
		}
		out[i] = tr
	}
	return out
}

// ATRWilder — сглаживание Уайлдера (alpha = 1/n) по True Range.
func ATRWilder(h, l, c []float64, n int) []float64 {
	return ewmAlpha(TrueRange(h, l, c), 1.0/float64(n))
}

// ADX по Уайлдеру: ±DM → сглаживание → DI → DX → сглаживание.
func ADX(h, l, c []float64, n int) []float64 {
	m := len(c)
	plusDM := make([]float64, m)
	minusDM := make([]float64, m)
	for i := 1; i < m; i++ {
		up := h[i] - h[i-1]
		dn := l[i-1] - l[i]
		if up > dn && up > 0 {
			plusDM[i] = up
		}
		if dn > up && dn > 0 {
			minusDM[i] = dn
		}
	}
	alpha := 1.0 / float64(n)
	atr := ATRWilder(h, l, c, n)
	pdm := ewmAlpha(plusDM, alpha)
	ndm := ewmAlpha(minusDM, alpha)
	dx := make([]float64, m)
	for i := 0; i < m; i++ {
		pdi := 100 * pdm[i] / (atr[i] + eps)
		ndi := 100 * ndm[i] / (atr[i] + eps)
		dx[i] = math.Abs(pdi-ndi) / (pdi + ndi + eps) * 100
	}
	return ewmAlpha(dx, alpha)
}

// RSI на скользящих средних приростов/падений (не Уайлдер), NaN до
// прогрева периода.
func RSI(xs []float64, period int) []float64 {
	m := len(xs)
	up := make([]float64, m)
	dn := make([]float64, m)
	up[0], dn[0] = math.NaN(), math.NaN()
	for i := 1; i < m; i++ {
		d := xs[i] - xs[i-1]
		if d > 0 {
			up[i] = d
		} else {
			dn[i] = -d
		}
	}
	ru := rollingMean(up, period)
	rd := rollingMean(dn, period)
	out := make([]float64, m)
	for i := 0; i < m; i++ {
		rs := ru[i] / (rd[i] + eps)
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// MACD — разность EMA(fast) и EMA(slow) плюс сигнальная линия.
func MACD(xs []float64, fast, slow, signal int) (macd, sig []float64) {
	ef := EMA(xs, fast)
	es := EMA(xs, slow)
	macd = make([]float64, len(xs))
	for i := range xs {
		macd[i] = ef[i] - es[i]
	}
	sig = EMA(macd, signal)
	return macd, sig
}

// Bollinger: SMA ± k·σ (популяционное отклонение),
// bandwidth = (upper-lower)/ma.
func Bollinger(xs []float64, n int, k float64) (ma, upper, lower, bwidth []float64) {
	m := len(xs)
	ma = rollingMean(xs, n)
	std := rollingStd(xs, n)
	upper = make([]float64, m)
	lower = make([]float64, m)
	bwidth = make([]float64, m)
	for i := 0; i < m; i++ {
		upper[i] = ma[i] + k*std[i]
		lower[i] = ma[i] - k*std[i]
		bwidth[i] = (upper[i] - lower[i]) / (ma[i] + eps)
	}
	return ma, upper, lower, bwidth
}

// Donchian — скользящие max(high)/min(low). Для сравнения пробоя
// вызывающий код берёт значение с лагом в один бар.
func Donchian(h, l []float64, win int) (up, down []float64) {
	up = rollingMax(h, win)
	down = rollingMin(l, win)
	return up, down
}

// BodyStrength — |close-open| / (high-low), 0 при нулевом диапазоне.
func BodyStrength(o, c, h, l []float64) []float64 {
	out := make([]float64, len(c))
	for i := range c {
		rng := math.Abs(h[i] - l[i])
		if rng == 0 {
			out[i] = 0
			continue
		}
		out[i] = math.Abs(c[i]-o[i]) / rng
	}
	return out
}

// FindSwings возвращает индексы swing high и swing low: бар — строгий
// экстремум в окне из left баров слева и right справа (равенство слева
// отбрасывает пивот, справа допускается).
func FindSwings(h, l []float64, left, right int) (sh, sl []int) {
	for i := left; i < len(h)-right; i++ {
		isHigh, isLow := true, true
		for j := i - left; j <= i+right; j++ {
			if j == i {
				continue
			}
			if h[j] > h[i] || (j < i && h[j] == h[i]) {
				isHigh = false
			}
			if l[j] < l[i] || (j < i && l[j] == l[i]) {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		if isHigh {
			sh = append(sh, i)
		}
		if isLow {
			sl = append(sl, i)
		}
	}
	return sh, sl
}

// FVG — трёхбарный дисбаланс: бычий когда low[i] > high[i-2],
// медвежий зеркально. Зона = (нижняя граница, верхняя граница).
type FVG struct {
	Lo, Hi float64
}

// FindFVGs возвращает последний бычий и последний медвежий гэп в
// пределах lookback баров (nil если не найден).
func FindFVGs(h, l []float64, lookback int) (bull, bear *FVG) {
	start := len(h) - lookback
	if start < 2 {
		start = 2
	}
	for i := start; i < len(h); i++ {
		if l[i] > h[i-2] {
			bull = &FVG{Lo: h[i-2], Hi: l[i]}
		}
		if h[i] < l[i-2] {
			bear = &FVG{Lo: h[i], Hi: l[i-2]}
		}
	}
	return bull, bear
}

func rollingMean(xs []float64, n int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		if i < n-1 {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		ok := true
		for j := i - n + 1; j <= i; j++ {
			if math.IsNaN(xs[j]) {
				ok = false
				break
			}
			sum += xs[j]
		}
		if !ok {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(n)
	}
	return out
}

func rollingStd(xs []float64, n int) []float64 {
	means := rollingMean(xs, n)
	out := make([]float64, len(xs))
	for i := range xs {
		if math.IsNaN(means[i]) {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		for j := i - n + 1; j <= i; j++ {
			d := xs[j] - means[i]
			sum += d * d
		}
		out[i] = math.Sqrt(sum / float64(n))
	}
	return out
}

func rollingMax(xs []float64, n int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		if i < n-1 {
			out[i] = math.NaN()
			continue
		}
		best := xs[i-n+1]
		for j := i - n + 2; j <= i; j++ {
			if xs[j] > best {
				best = xs[j]
			}
		}
		out[i] = best
	}
	return out
}

func rollingMin(xs []float64, n int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		if i < n-1 {
			out[i] = math.NaN()
			continue
		}
		best := xs[i-n+1]
		for j := i - n + 2; j <= i; j++ {
			if xs[j] < best {
				best = xs[j]
			}
		}
		out[i] = best
	}
	return out
}
