// Command bot answers river condition queries over Telegram.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/abelzeko/riverflow/internal/api"
	"github.com/abelzeko/riverflow/internal/config"
	"github.com/abelzeko/riverflow/internal/repository"
	"github.com/abelzeko/riverflow/internal/usecases"
)

func main() {
	if err := run(); err != nil {
		zap.L().Error("bot stopped", zap.Error(err))
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
	zap.L().Info("starting riverflow bot")

	if cfg.Telegram.Token == "" {
		return eris.New("telegram.token is not set (RIVERFLOW_TELEGRAM_TOKEN)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repository.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	rivers := usecases.NewRiverUseCase(store, cfg.Referencing.OffLineWarningMiles)
	gauges := usecases.NewGaugeUseCase(store, cfg.Condition.StaleAfter())

	telegramBot, err := api.NewTelegramBot(cfg.Telegram.Token, rivers, gauges, cfg.Telegram.AlertChatID)
	if err != nil {
		return err
	}

	telegramBot.Start(ctx)
	return nil
}
