// Package condition maps gauge readings onto the navigability scale used for
// float trips.
package condition

import (
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/abelzeko/riverflow/internal/entities"
)

// Condition codes, from lowest to highest water.
const (
	CodeTooLow    = "too_low"
	CodeLow       = "low"
	CodeOptimal   = "optimal"
	CodeHigh      = "high"
	CodeDangerous = "dangerous"
	CodeUnknown   = "unknown"
)

// ErrInvalidThresholds is returned when a threshold band is not strictly ordered.
var ErrInvalidThresholds = eris.New("condition: invalid thresholds")

// Result is the classification of a single reading.
type Result struct {
	Code            string
	Label           string
	Value           *float64 // The value that was compared, in the thresholds' unit
	Unit            entities.Unit
	ReadingAgeHours *float64
	Stale           bool
	Reason          string
}

// Validate checks that t is strictly increasing and uses a known unit.
func Validate(t entities.Thresholds) error {
	switch t.Unit {
	case entities.UnitFeet, entities.UnitCFS:
	default:
		return eris.Wrapf(ErrInvalidThresholds, "unknown unit %q", t.Unit)
	}
	band := []float64{t.TooLow, t.Low, t.OptimalMin, t.OptimalMax, t.High, t.Dangerous}
	for i, v := range band {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return eris.Wrapf(ErrInvalidThresholds, "threshold %d is not finite", i)
		}
		if i > 0 && v <= band[i-1] {
			return eris.Wrapf(ErrInvalidThresholds, "threshold %d (%g) not above threshold %d (%g)", i, v, i-1, band[i-1])
		}
	}
	return nil
}

// Classify maps a reading onto the condition scale for one river/gauge band.
// A missing reading or value yields CodeUnknown with no age, never a guessed band.
// Readings older than staleAfter keep their code but are flagged Stale.
func Classify(reading *entities.GaugeReading, t entities.Thresholds, now time.Time, staleAfter time.Duration) Result {
	if reading == nil {
		return Result{Code: CodeUnknown, Label: "Unknown", Unit: t.Unit, Reason: "no reading available"}
	}

	v := reading.Value(t.Unit)
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return Result{
			Code:   CodeUnknown,
			Label:  "Unknown",
			Unit:   t.Unit,
			Reason: fmt.Sprintf("reading has no %s value", unitName(t.Unit)),
		}
	}
	value := *v
	age := now.Sub(reading.Timestamp).Hours()
	res := Result{Unit: t.Unit, Value: &value, ReadingAgeHours: &age}
	res.Code, res.Label = band(value, t)

	if staleAfter > 0 && now.Sub(reading.Timestamp) > staleAfter {
		res.Stale = true
		res.Reason = fmt.Sprintf("reading is %.1f hours old", age)
	}
	return res
}

func band(v float64, t entities.Thresholds) (code, label string) {
	switch {
	case v < t.TooLow:
		return CodeTooLow, "Too Low"
	case v < t.Low:
		return CodeLow, "Very Low"
	case v < t.OptimalMin:
		return CodeLow, "Low"
	case v <= t.OptimalMax:
		return CodeOptimal, "Optimal"
	case v <= t.High:
		return CodeHigh, "High"
	case v <= t.Dangerous:
		return CodeHigh, "Very High"
	default:
		return CodeDangerous, "Dangerous"
	}
}

func unitName(u entities.Unit) string {
	if u == entities.UnitCFS {
		return "discharge"
	}
	return "gauge height"
}
