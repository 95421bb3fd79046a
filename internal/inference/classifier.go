package inference

import "fmt"

// Status labels, from deepest to lightest.
const (
	StatusDeepSleep     = "Deep Sleep (Anesthetized)"
	StatusLightSedation = "Light Sedation"
	StatusWakingAlert   = "Waking / Alert"
)

const (
	DefaultDeepAbove  = 70.0
	DefaultLightAbove = 30.0
)

// Thresholds are the band boundaries. A score must be strictly above a
// boundary to fall into the deeper band.
type Thresholds struct {
	DeepAbove  float32 `yaml:"deep_above"`
	LightAbove float32 `yaml:"light_above"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		DeepAbove:  DefaultDeepAbove,
		LightAbove: DefaultLightAbove,
	}
}

func (t Thresholds) Validate() error {
	if t.DeepAbove <= t.LightAbove {
		return fmt.Errorf("deep_above (%v) must be greater than light_above (%v)", t.DeepAbove, t.LightAbove)
	}
	return nil
}

// Classify maps a depth score to its status label.
func (t Thresholds) Classify(score float32) string {
	switch {
	case score > t.DeepAbove:
		return StatusDeepSleep
	case score > t.LightAbove:
		return StatusLightSedation
	default:
		return StatusWakingAlert
	}
}

// Classify uses the default thresholds.
func Classify(score float32) string {
	return DefaultThresholds().Classify(score)
}
