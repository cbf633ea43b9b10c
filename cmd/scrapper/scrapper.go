// Command scrapper polls gauge sources on an adaptive schedule and stores
// their readings.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/abelzeko/riverflow/internal/api"
	"github.com/abelzeko/riverflow/internal/config"
	"github.com/abelzeko/riverflow/internal/integration"
	"github.com/abelzeko/riverflow/internal/polling"
	"github.com/abelzeko/riverflow/internal/repository"
	"github.com/abelzeko/riverflow/internal/usecases"
)

func main() {
	if err := run(); err != nil {
		zap.L().Error("scrapper stopped", zap.Error(err))
		_ = zap.L().Sync()
		os.Exit(1)
	}
	_ = zap.L().Sync()
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		return err
	}
	zap.L().Info("starting riverflow scrapper")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repository.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	sources, err := integration.NewMultiSourceFromConfig(cfg)
	if err != nil {
		return err
	}
	zap.L().Info("gauge sources configured", zap.Strings("sources", sources.Names()))

	var notifier usecases.Notifier
	if cfg.Telegram.Token != "" && cfg.Telegram.AlertChatID != 0 {
		bot, err := api.NewTelegramBot(cfg.Telegram.Token,
			usecases.NewRiverUseCase(store, cfg.Referencing.OffLineWarningMiles),
			usecases.NewGaugeUseCase(store, cfg.Condition.StaleAfter()),
			cfg.Telegram.AlertChatID)
		if err != nil {
			return err
		}
		notifier = bot
	}

	ingestion := usecases.NewIngestionUseCase(store, sources, cfg.Polling.Rule(), cfg.Ingest.Workers, notifier)
	runner := newPassRunner(ctx, ingestion)

	// Run a full pass immediately on startup
	runner.run(polling.CadenceNormal)

	c := cron.New(cron.WithLogger(cronLogger{zap.S()}))
	if err := schedulePasses(c, cfg.Polling, runner.run); err != nil {
		return err
	}
	c.Start()
	zap.L().Info("ingestion scheduled",
		zap.String("normal", cfg.Polling.NormalSchedule),
		zap.String("high", cfg.Polling.HighSchedule),
	)

	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("metrics server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zap.L().Info("shutting down scrapper")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	select {
	case <-c.Stop().Done():
	case <-shutdownCtx.Done():
		zap.L().Warn("ingestion pass still running at shutdown")
	}
	return nil
}

// schedulePasses registers one cron entry per cadence.
func schedulePasses(c *cron.Cron, cfg config.PollingConfig, run func(polling.Cadence)) error {
	schedules := []struct {
		spec    string
		cadence polling.Cadence
	}{
		{cfg.NormalSchedule, polling.CadenceNormal},
		{cfg.HighSchedule, polling.CadenceHigh},
	}
	for _, s := range schedules {
		cadence := s.cadence
		if _, err := c.AddFunc(s.spec, func() { run(cadence) }); err != nil {
			return eris.Wrapf(err, "schedule %s pass %q", cadence, s.spec)
		}
	}
	return nil
}

type passRunner struct {
	ctx       context.Context
	ingestion *usecases.IngestionUseCase
	mu        sync.Mutex
}

func newPassRunner(ctx context.Context, ingestion *usecases.IngestionUseCase) *passRunner {
	return &passRunner{ctx: ctx, ingestion: ingestion}
}

// run executes one pass. Passes are serialized so a high-frequency pass never
// overlaps the hourly one for the same stations.
func (r *passRunner) run(cadence polling.Cadence) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx.Err() != nil {
		return
	}
	if _, err := r.ingestion.RunPass(r.ctx, cadence); err != nil {
		zap.L().Error("ingestion pass failed", zap.String("cadence", string(cadence)), zap.Error(err))
	}
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// cronLogger adapts zap to cron's logger interface.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
