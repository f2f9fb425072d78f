package phase

// Thresholds are the tunable constants of fusion and the advance decision.
type Thresholds struct {
	WindowSize              int
	BoostMinHits            int
	Boost                   float64
	BoostCap                float64
	OverrideMinHits         int
	OverrideBase            float64
	OverridePerHit          float64
	OverrideCap             float64
	NextRatio               float64
	NextRatioMinConfidence  float64
	MinCompletionIndicators int
	JumpMinWindow           int
	JumpMinConfidence       float64
}

const maxWindowSize = 10

func DefaultThresholds() Thresholds {
	return Thresholds{
		WindowSize:              10,
		BoostMinHits:            2,
		Boost:                   0.1,
		BoostCap:                0.95,
		OverrideMinHits:         3,
		OverrideBase:            0.5,
		OverridePerHit:          0.1,
		OverrideCap:             0.85,
		NextRatio:               0.6,
		NextRatioMinConfidence:  0.7,
		MinCompletionIndicators: 2,
		JumpMinWindow:           5,
		JumpMinConfidence:       0.75,
	}
}

func (t Thresholds) normalized() Thresholds {
	if t == (Thresholds{}) {
		return DefaultThresholds()
	}
	if t.WindowSize <= 0 || t.WindowSize > maxWindowSize {
		t.WindowSize = maxWindowSize
	}
	return t
}
