package indicators

import (
	"math"
	"testing"
)

const testEps = 1e-6

func almostEqual(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return math.Abs(a-b) < testEps
}

func TestEMA(t *testing.T) {
	got := EMA([]float64{1, 2, 3}, 2)
	want := []float64{1, 5.0 / 3.0, 23.0 / 9.0}
	for i := range want {
		if !almostEqual(got[i], want[i]) {
			t.Errorf("EMA[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestATRWilder(t *testing.T) {
	h := []float64{10, 12, 11, 13}
	l := []float64{9, 10, 10, 11}
	c := []float64{9.5, 11, 10.5, 12}
	got := ATRWilder(h, l, c, 2)
	// TR = [NaN, 2.5, 1, 2.5], сглаживание alpha=0.5 со старта TR[1]
	want := []float64{math.NaN(), 2.5, 1.75, 2.125}
	for i := range want {
		if !almostEqual(got[i], want[i]) {
			t.Errorf("ATR[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRSI(t *testing.T) {
	got := RSI([]float64{1, 2, 3, 2, 3}, 2)
	if !math.IsNaN(got[1]) {
		t.Errorf("RSI[1] = %v, want NaN before warmup", got[1])
	}
	if got[2] < 99.9 {
		t.Errorf("RSI[2] = %v, want ~100 on pure gains", got[2])
	}
	if math.Abs(got[3]-50) > 0.01 {
		t.Errorf("RSI[3] = %v, want ~50 on balanced moves", got[3])
	}
}

func TestBollinger(t *testing.T) {
	ma, upper, lower, bwidth := Bollinger([]float64{1, 2, 3, 4}, 3, 2)
	if !math.IsNaN(ma[1]) {
		t.Fatalf("ma[1] = %v, want NaN before warmup", ma[1])
	}
	std := math.Sqrt(2.0 / 3.0)
	if !almostEqual(ma[2], 2) || !almostEqual(upper[2], 2+2*std) || !almostEqual(lower[2], 2-2*std) {
		t.Errorf("bands[2] = (%v, %v, %v)", ma[2], upper[2], lower[2])
	}
	if !almostEqual(bwidth[2], 4*std/2) {
		t.Errorf("bwidth[2] = %v, want %v", bwidth[2], 4*std/2)
	}
}

func TestDonchian(t *testing.T) {
	h := []float64{1, 3, 2, 5, 4}
	l := []float64{0, 2, 1, 3, 3}
	up, down := Donchian(h, l, 3)
	if !math.IsNaN(up[1]) {
		t.Fatalf("up[1] = %v, want NaN before warmup", up[1])
	}
	if up[3] != 5 || down[3] != 1 {
		t.Errorf("donchian[3] = (%v, %v), want (5, 1)", up[3], down[3])
	}
}

func TestADXTrendVsFlat(t *testing.T) {
	n := 60
	trendH := make([]float64, n)
	trendL := make([]float64, n)
	trendC := make([]float64, n)
	flatH := make([]float64, n)
	flatL := make([]float64, n)
	flatC := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100 + float64(i)
		trendH[i], trendL[i], trendC[i] = base+1, base-1, base+0.5
		flatH[i], flatL[i], flatC[i] = 101, 99, 100
	}
	adxTrend := ADX(trendH, trendL, trendC, 14)
	adxFlat := ADX(flatH, flatL, flatC, 14)
	if adxTrend[n-1] < 25 {
		t.Errorf("ADX on steady trend = %v, want > 25", adxTrend[n-1])
	}
	if adxFlat[n-1] > 1 {
		t.Errorf("ADX on flat series = %v, want ~0", adxFlat[n-1])
	}
}

func TestBodyStrength(t *testing.T) {
	got := BodyStrength(
		[]float64{10, 10},
		[]float64{11, 10},
		[]float64{11.5, 10},
		[]float64{9.5, 10},
	)
	if !almostEqual(got[0], 0.5) {
		t.Errorf("body[0] = %v, want 0.5", got[0])
	}
	if got[1] != 0 {
		t.Errorf("body[1] = %v, want 0 on zero range", got[1])
	}
}

func TestFindSwings(t *testing.T) {
	h := []float64{1, 3, 2, 1, 2, 1}
	l := []float64{1, 2, 1, 0.5, 1.5, 1}
	sh, sl := FindSwings(h, l, 1, 1)
	if len(sh) != 2 || sh[0] != 1 || sh[1] != 4 {
		t.Errorf("swing highs = %v, want [1 4]", sh)
	}
	if len(sl) != 1 || sl[0] != 3 {
		t.Errorf("swing lows = %v, want [3]", sl)
	}
}

func TestFindFVGs(t *testing.T) {
	// бычий гэп на баре 2: low 12 > high[0] 10
	h := []float64{10, 11, 14}
	l := []float64{9, 10.5, 12}
	bull, bear := FindFVGs(h, l, 20)
	if bull == nil || bull.Lo != 10 || bull.Hi != 12 {
		t.Errorf("bull fvg = %+v, want (10, 12)", bull)
	}
	if bear != nil {
		t.Errorf("bear fvg = %+v, want nil", bear)
	}
}
