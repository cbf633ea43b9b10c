package usecases

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abelzeko/riverflow/internal/entities"
	"github.com/abelzeko/riverflow/internal/metrics"
	"github.com/abelzeko/riverflow/internal/polling"
	"github.com/abelzeko/riverflow/internal/repository"
)

// ReadingFetcher fetches the latest sanitized readings for stations
type ReadingFetcher interface {
	FetchStations(ctx context.Context, stations []entities.GaugeStation) ([]entities.GaugeReading, error)
}

// Notifier is told when a station changes polling cadence
type Notifier interface {
	FrequencyChanged(ctx context.Context, station entities.GaugeStation, decision polling.Decision) error
}

// PassReport summarizes one ingestion pass
type PassReport struct {
	Cadence         polling.Cadence
	Stations        int
	ReadingsSaved   int
	Transitions     int
	StationFailures int
	FetchFailed     bool
	Duration        time.Duration
}

// IngestionUseCase runs ingestion passes and owns the high-frequency flag
type IngestionUseCase struct {
	store    repository.Store
	fetcher  ReadingFetcher
	rule     polling.Config
	workers  int
	notifier Notifier
	now      func() time.Time
}

// NewIngestionUseCase creates a new ingestion use case. notifier may be nil.
func NewIngestionUseCase(store repository.Store, fetcher ReadingFetcher, rule polling.Config, workers int, notifier Notifier) *IngestionUseCase {
	if workers <= 0 {
		workers = 1
	}
	return &IngestionUseCase{
		store:    store,
		fetcher:  fetcher,
		rule:     rule,
		workers:  workers,
		notifier: notifier,
		now:      time.Now,
	}
}

// RunPass fetches readings for the stations due at cadence, stores them and
// re-evaluates each station's polling frequency. Upstream failures are
// returned after every station that could be processed has been committed.
func (uc *IngestionUseCase) RunPass(ctx context.Context, cadence polling.Cadence) (report PassReport, err error) {
	start := uc.now()
	report.Cadence = cadence
	defer func() {
		report.Duration = uc.now().Sub(start)
		metrics.PassDuration.WithLabelValues(string(cadence)).Observe(report.Duration.Seconds())
	}()

	all, err := uc.store.ListGaugeStations(ctx)
	if err != nil {
		return report, err
	}
	stations := polling.SelectStations(all, cadence)
	report.Stations = len(stations)
	if len(stations) == 0 {
		zap.L().Info("no stations due", zap.String("cadence", string(cadence)))
		return report, nil
	}

	readings, fetchErr := uc.fetcher.FetchStations(ctx, stations)
	if fetchErr != nil {
		report.FetchFailed = true
		if !errors.Is(fetchErr, context.Canceled) && !errors.Is(fetchErr, context.DeadlineExceeded) {
			fetchErr = eris.Wrap(fetchErr, "ingestion: fetch readings")
		}
	}
	byStation := make(map[int64][]entities.GaugeReading, len(stations))
	for _, r := range readings {
		byStation[r.StationID] = append(byStation[r.StationID], r)
	}

	var (
		mu       sync.Mutex
		errs     []error
		highFreq = make(map[int64]bool, len(all))
	)
	for _, st := range all {
		highFreq[st.ID] = st.HighFrequency && st.Active
	}

	var g errgroup.Group
	g.SetLimit(uc.workers)
	for _, st := range stations {
		g.Go(func() error {
			saved, decision, err := uc.processStation(ctx, st, byStation[st.ID])

			mu.Lock()
			defer mu.Unlock()
			report.ReadingsSaved += saved
			if err != nil {
				report.StationFailures++
				errs = append(errs, err)
				return nil
			}
			highFreq[st.ID] = decision.HighFrequency
			if decision.Changed {
				report.Transitions++
			}
			return nil
		})
	}
	_ = g.Wait()

	high := 0
	for _, v := range highFreq {
		if v {
			high++
		}
	}
	metrics.HighFrequencyStations.Set(float64(high))

	zap.L().Info("ingestion pass finished",
		zap.String("cadence", string(cadence)),
		zap.Int("stations", report.Stations),
		zap.Int("readings_saved", report.ReadingsSaved),
		zap.Int("transitions", report.Transitions),
		zap.Int("station_failures", report.StationFailures),
		zap.Bool("fetch_failed", report.FetchFailed),
	)

	if fetchErr != nil {
		errs = append([]error{fetchErr}, errs...)
	}
	return report, errors.Join(errs...)
}

// processStation commits one station's readings, then decides its cadence
// from what is now stored.
func (uc *IngestionUseCase) processStation(ctx context.Context, st entities.GaugeStation, readings []entities.GaugeReading) (int, polling.Decision, error) {
	if err := ctx.Err(); err != nil {
		return 0, polling.Decision{}, err
	}

	if len(readings) > 0 {
		if err := uc.store.SaveReadings(ctx, readings); err != nil {
			return 0, polling.Decision{}, eris.Wrapf(err, "station %s", st.SiteID)
		}
		metrics.ReadingsIngested.WithLabelValues(st.Source).Add(float64(len(readings)))
	}

	now := uc.now()
	recent, err := uc.store.ReadingsSince(ctx, st.ID, now.Add(-uc.rule.Lookback))
	if err != nil {
		return len(readings), polling.Decision{}, eris.Wrapf(err, "station %s", st.SiteID)
	}

	decision := polling.Decide(uc.rule, st.HighFrequency, recent, now)
	if !decision.Changed {
		return len(readings), decision, nil
	}

	if err := uc.store.SetHighFrequency(ctx, st.ID, decision.HighFrequency, decision.Rate); err != nil {
		return len(readings), polling.Decision{}, eris.Wrapf(err, "station %s", st.SiteID)
	}
	to := string(polling.CadenceNormal)
	if decision.HighFrequency {
		to = string(polling.CadenceHigh)
	}
	metrics.FrequencyTransitions.WithLabelValues(to).Inc()
	zap.L().Info("station polling frequency changed",
		zap.String("site_id", st.SiteID),
		zap.Bool("high_frequency", decision.HighFrequency),
		zap.String("reason", decision.Reason),
	)

	if uc.notifier != nil {
		if err := uc.notifier.FrequencyChanged(ctx, st, decision); err != nil {
			zap.L().Warn("failed to send frequency notification", zap.String("site_id", st.SiteID), zap.Error(err))
		}
	}
	return len(readings), decision, nil
}
