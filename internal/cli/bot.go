package cli

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"poll-quiz-service/internal/config"
	"poll-quiz-service/internal/logger"
	"poll-quiz-service/internal/transport/telegram"
)

// NewBotCmd runs the Telegram bot with long polling.
func NewBotCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram quiz bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), *configPath, *port)
		},
	}
}

func runBot(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token not configured (set TELEGRAM_BOT_TOKEN)")
	}
	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("connect telegram: %w", err)
	}
	api.Debug = cfg.Telegram.Debug

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	reg := newRegistry()
	service := newService(cfg, b, telegram.NewMessenger(api), reg, log)
	bot := telegram.NewBot(api, service, telegram.Options{
		PollTimeout:  cfg.Telegram.PollTimeout,
		MaxFileBytes: cfg.Telegram.MaxFileBytes,
		WebAppURL:    cfg.Telegram.WebAppURL,
	}, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(gctx) })
	g.Go(func() error { return serve(gctx, listenAddr(cfg, portFlag), opsMux(reg), log) })
	return g.Wait()
}
