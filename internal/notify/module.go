package notify

import (
	"go.uber.org/fx"

	"crossbot/internal/modules/config"
	"crossbot/pkg/logger"
)

// NewFromConfig — телеграм при заданном токене, иначе заглушка.
func NewFromConfig(cfg *config.Config) Notifier {
	if cfg.Telegram.Token == "" {
		logger.Info("telegram token is empty, notifications disabled")
		return Nop{}
	}
	n, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
	if err != nil {
		logger.Error("telegram init failed, notifications disabled: %v", err)
		return Nop{}
	}
	return n
}

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			NewFromConfig,
		),
	)
}
