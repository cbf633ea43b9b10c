// Package entities contains the core domain objects for the riverflow application
package entities

import (
	"time"
)

// Coord is a WGS84 position in degrees
type Coord struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// River is a navigable river course stored as an ordered polyline
type River struct {
	ID              int64
	Slug            string  // URL-safe identifier, e.g. "current-river"
	Name            string  // Display name
	Vertices        []Coord // Ordered course of the river
	HeadwatersFirst bool    // True when Vertices[0] is the upstream end
	LengthMiles     float64 // Derived from Vertices, never edited directly
	UpdatedAt       time.Time
}

// MileMarker is an authoritative river-mile checkpoint
type MileMarker struct {
	ID          int64
	RiverID     int64
	Mile        float64
	Name        string
	Description string
	Location    *Coord // Optional, used to verify river direction
}

// AccessPoint is a put-in or take-out along a river
type AccessPoint struct {
	ID                   int64
	RiverID              int64
	Name                 string
	Orig                 Coord    // Coordinate as entered by an editor
	Snap                 *Coord   // Nearest point on the river polyline
	MileFromHeadwaters   *float64 // River mile of Snap
	DistanceOffLineMiles *float64 // How far Orig sits from the river
	Approved             bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HasMile reports whether the access point has been referenced onto its river
func (ap *AccessPoint) HasMile() bool {
	return ap.MileFromHeadwaters != nil
}
