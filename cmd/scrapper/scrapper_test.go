package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abelzeko/riverflow/internal/config"
	"github.com/abelzeko/riverflow/internal/polling"
)

func TestSchedulePasses(t *testing.T) {
	c := cron.New()
	var ran []polling.Cadence

	err := schedulePasses(c, config.PollingConfig{NormalSchedule: "0 * * * *", HighSchedule: "*/15 * * * *"},
		func(cadence polling.Cadence) { ran = append(ran, cadence) })
	require.NoError(t, err)

	entries := c.Entries()
	require.Len(t, entries, 2)

	// Invoke the registered jobs directly instead of waiting for the clock.
	for _, e := range entries {
		e.Job.Run()
	}
	assert.ElementsMatch(t, []polling.Cadence{polling.CadenceNormal, polling.CadenceHigh}, ran)
}

func TestSchedulePasses_InvalidSpec(t *testing.T) {
	err := schedulePasses(cron.New(), config.PollingConfig{NormalSchedule: "every hour", HighSchedule: "*/15 * * * *"},
		func(polling.Cadence) {})
	assert.Error(t, err)
}

func TestMetricsMux(t *testing.T) {
	srv := httptest.NewServer(metricsMux())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok", string(body))

	res, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestCronLogger(t *testing.T) {
	var _ cron.Logger = cronLogger{zap.NewNop().Sugar()}
	l := cronLogger{zap.NewNop().Sugar()}
	l.Info("wake", "now", "12:00")
	l.Error(assert.AnError, "job panicked", "entry", 1)
}
