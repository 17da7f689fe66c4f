package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Exchange   Exchange   `mapstructure:"exchange"`
	Trading    Trading    `mapstructure:"trading"`
	Risk       Risk       `mapstructure:"risk"`
	CopyTrade  CopyTrade  `mapstructure:"copytrade"`
	Nostr      Nostr      `mapstructure:"nostr"`
	Telegram   Telegram   `mapstructure:"telegram"`
	Settlement Settlement `mapstructure:"settlement"`
	Logger     Logger     `mapstructure:"logger"`
	Server     Server     `mapstructure:"server"`
	Database   Database   `mapstructure:"database"`
}

// Exchange holds the configuration for the Hyperliquid API.
type Exchange struct {
	ApiKey         string  `mapstructure:"apiKey"`
	SecretKey      string  `mapstructure:"secretKey"`
	WalletAddress  string  `mapstructure:"wallet_address"`
	Testnet        bool    `mapstructure:"testnet"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Trading holds the configuration for the trading loop.
type Trading struct {
	Symbol          string  `mapstructure:"symbol"`
	Interval        string  `mapstructure:"interval"`
	CandleLimit     int     `mapstructure:"candle_limit"`
	TickInterval    int     `mapstructure:"tick_interval"`
	DryRun          bool    `mapstructure:"dry_run"`
	Strategy        string  `mapstructure:"strategy"`
	PositionSize    float64 `mapstructure:"position_size"`
	MinOrderValue   float64 `mapstructure:"min_order_value"`
	CooldownSeconds int     `mapstructure:"cool_down_seconds"`
	MaxTradesPerDay int     `mapstructure:"max_trades_per_day"`
	MaxDailyLoss    float64 `mapstructure:"max_daily_loss"`
}

// Risk holds the layered exit policy thresholds. Percentages are expressed
// as fractions, e.g. 0.03 for 3%.
type Risk struct {
	StopLossPercent           float64 `mapstructure:"stop_loss_percent"`
	TakeProfitPercent         float64 `mapstructure:"take_profit_percent"`
	TrailingStopPercent       float64 `mapstructure:"trailing_stop_percent"`
	TrailingActivationPercent float64 `mapstructure:"trailing_activation_percent"`
	MaxHoldingHours           float64 `mapstructure:"max_holding_hours"`
	TimeStopLossPercent       float64 `mapstructure:"time_stop_loss_percent"`
	ReverseStrengthThreshold  float64 `mapstructure:"reverse_strength_threshold"`
}

// CopyTrade holds the configuration for mirroring third-party signals.
type CopyTrade struct {
	Enabled       bool     `mapstructure:"enabled"`
	Symbols       []string `mapstructure:"symbols"`
	FollowPubkeys []string `mapstructure:"follow_pubkeys"`
	SizePercent   float64  `mapstructure:"size_pct"`
	MinOrderValue float64  `mapstructure:"min_order_value"`
	QueueSize     int      `mapstructure:"queue_size"`
}

// Nostr holds key material and relay endpoints for the signal channel.
type Nostr struct {
	SecretKey         string   `mapstructure:"secret_key"`
	PublicKey         string   `mapstructure:"public_key"`
	PlatformSharedKey string   `mapstructure:"platform_shared_key"`
	Relays            []string `mapstructure:"relays"`
	ListenKinds       []int    `mapstructure:"listen_kinds"`
	Sid               string   `mapstructure:"sid"`
}

// Telegram holds the configuration for push notifications.
type Telegram struct {
	Enabled        bool   `mapstructure:"enabled"`
	BotToken       string `mapstructure:"bot_token"`
	ChatID         string `mapstructure:"chat_id"`
	NotifySignals  bool   `mapstructure:"notify_signals"`
	NotifyTrades   bool   `mapstructure:"notify_trades"`
	NotifyClosures bool   `mapstructure:"notify_closures"`
}

// Settlement holds the configuration for trade record reporting to the relayer.
type Settlement struct {
	ApiURL string `mapstructure:"api_url"`
	Token  string `mapstructure:"token"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the trade journal database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("exchange.rate_limit", 20)      // requests per second
	viper.SetDefault("exchange.rate_limit_burst", 5) // burst size

	viper.SetDefault("trading.interval", "1h")
	viper.SetDefault("trading.candle_limit", 100)
	viper.SetDefault("trading.tick_interval", 300)
	viper.SetDefault("trading.strategy", "momentum")
	viper.SetDefault("trading.position_size", 0.1)
	viper.SetDefault("trading.min_order_value", 10.0)
	viper.SetDefault("trading.cool_down_seconds", 300)
	viper.SetDefault("trading.max_trades_per_day", 20)
	viper.SetDefault("trading.max_daily_loss", 0.05)

	viper.SetDefault("risk.stop_loss_percent", 0.03)
	viper.SetDefault("risk.take_profit_percent", 0.05)
	viper.SetDefault("risk.trailing_stop_percent", 0.02)
	viper.SetDefault("risk.trailing_activation_percent", 0.03)
	viper.SetDefault("risk.max_holding_hours", 24)
	viper.SetDefault("risk.time_stop_loss_percent", -0.01)
	viper.SetDefault("risk.reverse_strength_threshold", 0.6)

	viper.SetDefault("copytrade.size_pct", 0.05)
	viper.SetDefault("copytrade.min_order_value", 10.0)
	viper.SetDefault("copytrade.queue_size", 16)

	viper.SetDefault("nostr.sid", "bot-main")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.dsn", "trades.db")

	viper.SetDefault("telegram.notify_signals", true)
	viper.SetDefault("telegram.notify_trades", true)
	viper.SetDefault("telegram.notify_closures", true)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
