package models

// Имена признаков. Схема фиксированная: один и тот же порядок используется
// скорингом (взвешенная сумма) и онлайн-моделью (веса по ключам).
const (
	FeatHTFAlign      = "htf_align"
	FeatADXNorm       = "adx_norm"
	FeatLTFMomo       = "ltf_momo"
	FeatRRNorm        = "rr_norm"
	FeatBWAdv         = "bw_adv"
	FeatRetestOrFVG   = "retest_or_fvg"
	FeatATRSweet      = "atr_sweet"
	FeatVolPct        = "vol_pct"
	FeatRecentPenalty = "recent_penalty"
)

// FeatureNames — канонический порядок признаков.
var FeatureNames = []string{
	FeatHTFAlign,
	FeatADXNorm,
	FeatLTFMomo,
	FeatRRNorm,
	FeatBWAdv,
	FeatRetestOrFVG,
	FeatATRSweet,
	FeatVolPct,
	FeatRecentPenalty,
}

// Features — вектор признаков кандидата, все значения в [0,1].
type Features struct {
	HTFAlign      float64 `json:"htf_align"`
	ADXNorm       float64 `json:"adx_norm"`
	LTFMomo       float64 `json:"ltf_momo"`
	RRNorm        float64 `json:"rr_norm"`
	BWAdv         float64 `json:"bw_adv"`
	RetestOrFVG   float64 `json:"retest_or_fvg"`
	ATRSweet      float64 `json:"atr_sweet"`
	VolPct        float64 `json:"vol_pct"`
	RecentPenalty float64 `json:"recent_penalty"`
}

// Get возвращает значение признака по имени.
func (f *Features) Get(name string) float64 {
	switch name {
	case FeatHTFAlign:
		return f.HTFAlign
	case FeatADXNorm:
		return f.ADXNorm
	case FeatLTFMomo:
		return f.LTFMomo
	case FeatRRNorm:
		return f.RRNorm
	case FeatBWAdv:
		return f.BWAdv
	case FeatRetestOrFVG:
		return f.RetestOrFVG
	case FeatATRSweet:
		return f.ATRSweet
	case FeatVolPct:
		return f.VolPct
	case FeatRecentPenalty:
		return f.RecentPenalty
	}
	return 0
}

// Map — представление для персистенса и обучения модели.
func (f *Features) Map() map[string]float64 {
	out := make(map[string]float64, len(FeatureNames))
	for _, name := range FeatureNames {
		out[name] = f.Get(name)
	}
	return out
}
