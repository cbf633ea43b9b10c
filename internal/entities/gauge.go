package entities

import (
	"time"
)

// Gauge sources understood by the ingestion pass
const (
	SourceUSGS = "usgs"
	SourceHTML = "html"
)

// Unit is the measurement a threshold band is expressed in
type Unit string

const (
	UnitFeet Unit = "ft"  // gauge height
	UnitCFS  Unit = "cfs" // discharge
)

// GaugeStation is a water-data monitoring station
type GaugeStation struct {
	ID            int64
	SiteID        string // Identifier at the upstream agency, e.g. USGS "07067500"
	Source        string // SourceUSGS or SourceHTML
	Name          string
	Location      Coord
	Active        bool
	HighFrequency bool     // Owned by the ingestion pass
	RateFtPerHour *float64 // Last observed rate of change, informational
	UpdatedAt     time.Time
}

// Thresholds is the ordered condition band for one river/gauge association
type Thresholds struct {
	TooLow     float64 `json:"too_low"`
	Low        float64 `json:"low"`
	OptimalMin float64 `json:"optimal_min"`
	OptimalMax float64 `json:"optimal_max"`
	High       float64 `json:"high"`
	Dangerous  float64 `json:"dangerous"`
	Unit       Unit    `json:"unit"`
}

// RiverGauge links a gauge station to a river with river-specific thresholds
type RiverGauge struct {
	ID                            int64
	RiverID                       int64
	StationID                     int64
	IsPrimary                     bool
	SectionName                   string // Float section the thresholds were calibrated for
	Thresholds                    Thresholds
	DistanceFromSectionMiles      *float64
	AccuracyWarningThresholdMiles *float64
}
