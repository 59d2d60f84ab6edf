package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const configFilePathENV = "CONFIG_FILE"

// ExchangeConfig — ключи и торгуемые пары одной биржи.
type ExchangeConfig struct {
	Title      string   `mapstructure:"title"`
	Key        string   `mapstructure:"key"`
	Secret     string   `mapstructure:"secret"`
	Passphrase string   `mapstructure:"passphrase"` // нужен только gdax
	Symbols    []string `mapstructure:"symbols"`
}

// RobotConfig — параметры стратегии, общие для всех бирж.
type RobotConfig struct {
	CandlePeriod  string        `mapstructure:"candle_period"`
	FastWindow    int           `mapstructure:"fast_window"`
	SlowWindow    int           `mapstructure:"slow_window"`
	LoopInterval  time.Duration `mapstructure:"loop_interval"`
	ScalpInterval time.Duration `mapstructure:"scalp_interval"`
	StopGap       float64       `mapstructure:"stop_gap"`
}

// Config ...
type Config struct {
	DB       string `mapstructure:"db_dsn"`
	Telegram struct {
		Token  string `mapstructure:"token"`
		ChatID int64  `mapstructure:"chat_id"`
	} `mapstructure:"telegram"`
	Health struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"health"`
	Jaeger struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"jaeger"`
	Robot     RobotConfig      `mapstructure:"robot"`
	Exchanges []ExchangeConfig `mapstructure:"exchanges"`
}

// NewConfig читает configs/<CONFIG_FILE> (по умолчанию values_local.yaml),
// переменные окружения перекрывают файл: DATABASE_DSN, TELEGRAM_TOKEN,
// BINANCE_KEY/BINANCE_SECRET, HITBTC_KEY/HITBTC_SECRET,
// GDAX_KEY/GDAX_SECRET/GDAX_PASSPHRASE.
func NewConfig() (*Config, error) {
	v := viper.New()

	name := os.Getenv(configFilePathENV)
	if name == "" {
		name = "values_local.yaml"
	}
	v.SetConfigFile("configs/" + name)
	v.SetConfigType("yaml")

	v.SetDefault("health.addr", ":8080")
	v.SetDefault("robot.candle_period", "1h")
	v.SetDefault("robot.fast_window", 9)
	v.SetDefault("robot.slow_window", 34)
	v.SetDefault("robot.loop_interval", time.Hour)
	v.SetDefault("robot.scalp_interval", 420*time.Second)
	v.SetDefault("robot.stop_gap", 100.0)
	v.SetDefault("jaeger.port", 6831)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.DB = dsn
	}
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	for i := range cfg.Exchanges {
		prefix := strings.ToUpper(cfg.Exchanges[i].Title)
		if key := os.Getenv(prefix + "_KEY"); key != "" {
			cfg.Exchanges[i].Key = key
		}
		if secret := os.Getenv(prefix + "_SECRET"); secret != "" {
			cfg.Exchanges[i].Secret = secret
		}
		if pass := os.Getenv(prefix + "_PASSPHRASE"); pass != "" {
			cfg.Exchanges[i].Passphrase = pass
		}
	}

	return cfg, nil
}
