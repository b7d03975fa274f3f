package priority

// Level buckets a priority into the alert bands shown to users.
type Level string

// Alert levels, from least to most consumed budget.
const (
	LevelNormal   Level = "normal"
	LevelCaution  Level = "caution"
	LevelWarning  Level = "warning"
	LevelExceeded Level = "exceeded"
)

// Thresholds of the alert bands, in percent of limit.
const (
	CautionThreshold  = 50.0
	WarningThreshold  = 80.0
	ExceededThreshold = 100.0
)

// LevelFor maps a priority (percent of limit used) to its alert level.
func LevelFor(priority float64) Level {
	switch {
	case priority >= ExceededThreshold:
		return LevelExceeded
	case priority >= WarningThreshold:
		return LevelWarning
	case priority >= CautionThreshold:
		return LevelCaution
	default:
		return LevelNormal
	}
}
