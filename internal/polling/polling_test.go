package polling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelzeko/riverflow/internal/entities"
)

var testConfig = Config{RateThresholdFtPerHour: 0.5, Lookback: time.Hour}

func reading(ts time.Time, h float64) entities.GaugeReading {
	return entities.GaugeReading{StationID: 1, Timestamp: ts, HeightFt: &h}
}

func TestRateOfChange(t *testing.T) {
	now := time.Date(2025, 4, 18, 8, 0, 0, 0, time.UTC)
	readings := []entities.GaugeReading{
		reading(now.Add(-3*time.Hour), 1.0), // outside window
		reading(now, 4.0),
		reading(now.Add(-45*time.Minute), 3.0),
		reading(now.Add(-15*time.Minute), 3.6),
		{StationID: 1, Timestamp: now.Add(-50 * time.Minute)}, // no height
	}

	rate, ok := RateOfChange(readings, now, time.Hour)
	require.True(t, ok)
	assert.InDelta(t, 1.0/0.75, rate.FtPerHour, 1e-9)
	assert.Equal(t, now.Add(-45*time.Minute), rate.From)
	assert.Equal(t, now, rate.To)
}

func TestRateOfChange_Insufficient(t *testing.T) {
	now := time.Now()

	_, ok := RateOfChange(nil, now, time.Hour)
	assert.False(t, ok)

	_, ok = RateOfChange([]entities.GaugeReading{reading(now, 2)}, now, time.Hour)
	assert.False(t, ok)

	_, ok = RateOfChange([]entities.GaugeReading{reading(now, 2), reading(now, 3)}, now, time.Hour)
	assert.False(t, ok)
}

func TestDecide_EntersHighFrequency(t *testing.T) {
	now := time.Now()
	readings := []entities.GaugeReading{reading(now.Add(-time.Hour), 2.0), reading(now, 2.8)}

	d := Decide(testConfig, false, readings, now)
	assert.True(t, d.HighFrequency)
	assert.True(t, d.Changed)
	require.NotNil(t, d.Rate)
	assert.InDelta(t, 0.8, *d.Rate, 1e-9)
}

func TestDecide_FallingFastCounts(t *testing.T) {
	now := time.Now()
	readings := []entities.GaugeReading{reading(now.Add(-time.Hour), 5.0), reading(now, 4.2)}

	d := Decide(testConfig, true, readings, now)
	assert.True(t, d.HighFrequency)
	assert.False(t, d.Changed)
}

func TestDecide_AtThresholdReturnsToNormal(t *testing.T) {
	now := time.Now()
	readings := []entities.GaugeReading{reading(now.Add(-time.Hour), 2.0), reading(now, 2.5)}

	d := Decide(testConfig, true, readings, now)
	assert.False(t, d.HighFrequency)
	assert.True(t, d.Changed)
}

func TestDecide_NoDataFallsBackToNormal(t *testing.T) {
	d := Decide(testConfig, true, nil, time.Now())
	assert.False(t, d.HighFrequency)
	assert.True(t, d.Changed)
	assert.Nil(t, d.Rate)
	assert.NotEmpty(t, d.Reason)
}

func TestDecide_FlipsEveryCycle(t *testing.T) {
	// Height alternates between a 1 ft rise and no change every hour.
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	heights := []float64{0, 1, 1, 2, 2, 3, 3, 4}

	var history []entities.GaugeReading
	high := false
	for i, h := range heights {
		now := start.Add(time.Duration(i) * time.Hour)
		history = append(history, reading(now, h))
		if i == 0 {
			continue
		}

		d := Decide(testConfig, high, history, now)
		assert.True(t, d.Changed, "cycle %d", i)
		assert.Equal(t, i%2 == 1, d.HighFrequency, "cycle %d", i)
		high = d.HighFrequency
	}
}

func TestSelectStations(t *testing.T) {
	stations := []entities.GaugeStation{
		{ID: 1, Active: true},
		{ID: 2, Active: true, HighFrequency: true},
		{ID: 3, Active: false, HighFrequency: true},
		{ID: 4, Active: false},
	}

	normal := SelectStations(stations, CadenceNormal)
	require.Len(t, normal, 2)
	assert.Equal(t, int64(1), normal[0].ID)
	assert.Equal(t, int64(2), normal[1].ID)

	high := SelectStations(stations, CadenceHigh)
	require.Len(t, high, 1)
	assert.Equal(t, int64(2), high[0].ID)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, testConfig.Validate())
	assert.Error(t, Config{RateThresholdFtPerHour: 0, Lookback: time.Hour}.Validate())
	assert.Error(t, Config{RateThresholdFtPerHour: 0.5}.Validate())
}

func TestParseCadence(t *testing.T) {
	c, err := ParseCadence("high")
	require.NoError(t, err)
	assert.Equal(t, CadenceHigh, c)

	_, err = ParseCadence("hourly")
	assert.Error(t, err)
}
