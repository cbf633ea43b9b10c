// Package polling decides which gauge stations are polled at the elevated
// cadence, based on how fast their water level is moving.
//
// The decision is a plain threshold with no hysteresis or cooldown: a noisy
// station may flip between cadences on every cycle.
package polling

import (
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/abelzeko/riverflow/internal/entities"
)

// Cadence identifies one of the two ingestion schedules.
type Cadence string

const (
	CadenceNormal Cadence = "normal"
	CadenceHigh   Cadence = "high"
)

// Config holds the rate-of-change rule.
type Config struct {
	RateThresholdFtPerHour float64
	Lookback               time.Duration
}

// Validate rejects non-positive thresholds and windows.
func (c Config) Validate() error {
	if !(c.RateThresholdFtPerHour > 0) {
		return eris.Errorf("polling: rate threshold must be positive, got %v", c.RateThresholdFtPerHour)
	}
	if c.Lookback <= 0 {
		return eris.Errorf("polling: lookback must be positive, got %s", c.Lookback)
	}
	return nil
}

// ParseCadence converts a command-line value into a Cadence.
func ParseCadence(s string) (Cadence, error) {
	switch Cadence(s) {
	case CadenceNormal, CadenceHigh:
		return Cadence(s), nil
	}
	return "", eris.Errorf("polling: unknown cadence %q", s)
}

// Rate is a rate of change measured between two readings.
type Rate struct {
	FtPerHour float64 // signed, positive when rising
	From      time.Time
	To        time.Time
}

// RateOfChange measures the height change between the oldest and newest
// readings inside [now-lookback, now]. It reports false when fewer than two
// usable readings fall inside the window.
func RateOfChange(readings []entities.GaugeReading, now time.Time, lookback time.Duration) (Rate, bool) {
	since := now.Add(-lookback)

	var oldest, newest *entities.GaugeReading
	for i := range readings {
		r := &readings[i]
		if r.HeightFt == nil || r.Timestamp.Before(since) || r.Timestamp.After(now) {
			continue
		}
		if oldest == nil || r.Timestamp.Before(oldest.Timestamp) {
			oldest = r
		}
		if newest == nil || r.Timestamp.After(newest.Timestamp) {
			newest = r
		}
	}
	if oldest == nil || newest == nil {
		return Rate{}, false
	}

	hours := newest.Timestamp.Sub(oldest.Timestamp).Hours()
	if hours <= 0 {
		return Rate{}, false
	}
	return Rate{
		FtPerHour: (*newest.HeightFt - *oldest.HeightFt) / hours,
		From:      oldest.Timestamp,
		To:        newest.Timestamp,
	}, true
}

// Decision is the outcome of evaluating one station.
type Decision struct {
	HighFrequency bool
	Changed       bool
	Rate          *float64
	Reason        string
}

// Decide evaluates a station's readings and returns its next cadence.
// Stations without a measurable rate fall back to the normal cadence.
func Decide(cfg Config, current bool, readings []entities.GaugeReading, now time.Time) Decision {
	rate, ok := RateOfChange(readings, now, cfg.Lookback)
	if !ok {
		return Decision{
			HighFrequency: false,
			Changed:       current,
			Reason:        fmt.Sprintf("fewer than two height readings in the last %s", cfg.Lookback),
		}
	}

	r := rate.FtPerHour
	high := math.Abs(r) > cfg.RateThresholdFtPerHour
	reason := fmt.Sprintf("%.2f ft/hr is at or below %.2f ft/hr", math.Abs(r), cfg.RateThresholdFtPerHour)
	if high {
		reason = fmt.Sprintf("%.2f ft/hr exceeds %.2f ft/hr", math.Abs(r), cfg.RateThresholdFtPerHour)
	}
	return Decision{
		HighFrequency: high,
		Changed:       high != current,
		Rate:          &r,
		Reason:        reason,
	}
}

// SelectStations returns the stations polled at the given cadence: every
// active station for CadenceNormal, active high-frequency stations for CadenceHigh.
func SelectStations(stations []entities.GaugeStation, cadence Cadence) []entities.GaugeStation {
	out := make([]entities.GaugeStation, 0, len(stations))
	for _, s := range stations {
		if !s.Active {
			continue
		}
		if cadence == CadenceHigh && !s.HighFrequency {
			continue
		}
		out = append(out, s)
	}
	return out
}
