package config

import "testing"

// стартовые пороги режима равны пресету как есть: границы тюнера
// применяются к его шагам, а не к значениям режима
func TestTunerStateKeepsPresetValues(t *testing.T) {
	ts := Presets["aggressive"].TunerState()
	if ts.BaseMinScore != 52 || ts.DynMinScore != 52 {
		t.Errorf("aggressive min_score = %v/%v, want 52/52", ts.BaseMinScore, ts.DynMinScore)
	}
	if ts.ADXTrendMin != 14 {
		t.Errorf("aggressive adx = %v, want 14", ts.ADXTrendMin)
	}

	ts = Presets["conservative"].TunerState()
	if ts.BaseMinScore != 72 || ts.BWidthRange != 0.045 {
		t.Errorf("conservative = %v/%v", ts.BaseMinScore, ts.BWidthRange)
	}
}

func TestPresetParamsOverrides(t *testing.T) {
	p := Presets["conservative"].Params()
	if p.ATRStopMult != 1.5 || !p.SMCRequireFVG {
		t.Errorf("params = %+v", p)
	}
	if p.FBBATRMin != 0.0012 || p.FBBATRMax != 0.020 {
		t.Errorf("fbb bounds = %v/%v", p.FBBATRMin, p.FBBATRMax)
	}
}
