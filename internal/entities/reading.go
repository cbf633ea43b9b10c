package entities

import (
	"time"
)

// GaugeReading is a single observation from a gauge station
type GaugeReading struct {
	StationID    int64
	Timestamp    time.Time // When the agency recorded the values
	HeightFt     *float64  // Gauge height in feet
	DischargeCfs *float64  // Discharge in cubic feet per second
}

// Value returns the reading value matching unit, or nil when it was not reported
func (r *GaugeReading) Value(unit Unit) *float64 {
	if r == nil {
		return nil
	}
	if unit == UnitCFS {
		return r.DischargeCfs
	}
	return r.HeightFt
}
