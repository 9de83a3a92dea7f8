package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	PriceFeed   PriceFeedConfig `mapstructure:"price_feed"`
	Payment     PaymentConfig   `mapstructure:"payment"`
	Telegram    TelegramConfig  `mapstructure:"telegram"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Calendar    CalendarConfig  `mapstructure:"calendar"`
	Scheduler   SchedulerConfig `mapstructure:"scheduler"`
	Contests    ContestsConfig  `mapstructure:"contests"`
	Monitor     MonitorConfig   `mapstructure:"monitor"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PriceFeedConfig struct {
	ServiceURL string `mapstructure:"service_url"`
	Timeout    int    `mapstructure:"timeout"`
	// Bounded wait for the refresh invoked right before settlement.
	RefreshTimeout string `mapstructure:"refresh_timeout"`
}

type PaymentConfig struct {
	GatewayURL string `mapstructure:"gateway_url"`
	Timeout    int    `mapstructure:"timeout"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// CalendarRuleConfig describes market hours for one asset class.
type CalendarRuleConfig struct {
	Timezone   string   `mapstructure:"timezone"`
	Open       string   `mapstructure:"open"`
	Close      string   `mapstructure:"close"`
	Days       []string `mapstructure:"days"`
	Holidays   []string `mapstructure:"holidays"`
	AlwaysOpen bool     `mapstructure:"always_open"`
}

type CalendarConfig struct {
	Equity CalendarRuleConfig `mapstructure:"equity"`
	Crypto CalendarRuleConfig `mapstructure:"crypto"`
}

// SchedulerConfig carries the five named trigger times as local "HH:MM"
// clocks in the equity market timezone. These are configuration, not
// constants, so holiday-shifted or extended sessions can be accommodated.
type SchedulerConfig struct {
	RegistrationClose string `mapstructure:"registration_close"`
	MarketOpen        string `mapstructure:"market_open"`
	MarketClose       string `mapstructure:"market_close"`
	Settle            string `mapstructure:"settle"`
	OpenNextContests  string `mapstructure:"open_next_contests"`
}

// ContestTemplate is the blueprint the scheduler instantiates new
// contests from.
type ContestTemplate struct {
	Enabled          bool    `mapstructure:"enabled"`
	AssetClass       string  `mapstructure:"asset_class"`
	EntryFee         float64 `mapstructure:"entry_fee"`
	StartingCapital  float64 `mapstructure:"starting_capital"`
	PrizePool        float64 `mapstructure:"prize_pool"`
	MaxParticipants  int     `mapstructure:"max_participants"`
	RegistrationLead string  `mapstructure:"registration_lead"`
}

type ContestsConfig struct {
	Daily   ContestTemplate `mapstructure:"daily"`
	Weekly  ContestTemplate `mapstructure:"weekly"`
	Monthly ContestTemplate `mapstructure:"monthly"`
}

type MonitorConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
}

func Load() (*Config, error) {
	// Load .env if present; deployed environments set variables directly.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind TELEGRAM_BOT_TOKEN environment variable: %w", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	clocks := map[string]string{
		"scheduler.registration_close": c.Scheduler.RegistrationClose,
		"scheduler.market_open":        c.Scheduler.MarketOpen,
		"scheduler.market_close":       c.Scheduler.MarketClose,
		"scheduler.settle":             c.Scheduler.Settle,
		"scheduler.open_next_contests": c.Scheduler.OpenNextContests,
		"calendar.equity.open":         c.Calendar.Equity.Open,
		"calendar.equity.close":        c.Calendar.Equity.Close,
	}
	for key, value := range clocks {
		if _, _, err := ParseClock(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	for _, tz := range []string{c.Calendar.Equity.Timezone, c.Calendar.Crypto.Timezone} {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("invalid calendar timezone %q: %w", tz, err)
		}
	}

	for _, day := range c.Calendar.Equity.Holidays {
		if _, err := time.Parse("2006-01-02", day); err != nil {
			return fmt.Errorf("invalid calendar holiday %q: %w", day, err)
		}
	}

	for _, d := range []string{c.PriceFeed.RefreshTimeout, c.Monitor.Interval} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid duration %q: %w", d, err)
		}
	}

	return nil
}

// ParseClock parses a local "HH:MM" clock into hour and minute.
func ParseClock(clock string) (int, int, error) {
	parts := strings.Split(clock, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("clock %q is not in HH:MM form", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("clock %q has invalid hour", clock)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("clock %q has invalid minute", clock)
	}
	return hour, minute, nil
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)

	// Database
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "tradeclash")
	viper.SetDefault("database.sslmode", "disable")

	// Redis
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Price feed
	viper.SetDefault("price_feed.service_url", "http://localhost:3001")
	viper.SetDefault("price_feed.timeout", 15)
	viper.SetDefault("price_feed.refresh_timeout", "10s")

	// Payment
	viper.SetDefault("payment.gateway_url", "http://localhost:3002")
	viper.SetDefault("payment.timeout", 20)

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.chat_id", 0)

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)

	// Calendar
	viper.SetDefault("calendar.equity.timezone", "Asia/Kolkata")
	viper.SetDefault("calendar.equity.open", "09:30")
	viper.SetDefault("calendar.equity.close", "15:30")
	viper.SetDefault("calendar.equity.days", []string{"mon", "tue", "wed", "thu", "fri"})
	viper.SetDefault("calendar.equity.holidays", []string{})
	viper.SetDefault("calendar.equity.always_open", false)
	viper.SetDefault("calendar.crypto.timezone", "UTC")
	viper.SetDefault("calendar.crypto.always_open", true)

	// Scheduler triggers, local equity market time
	viper.SetDefault("scheduler.registration_close", "09:29")
	viper.SetDefault("scheduler.market_open", "09:30")
	viper.SetDefault("scheduler.market_close", "15:30")
	viper.SetDefault("scheduler.settle", "15:35")
	viper.SetDefault("scheduler.open_next_contests", "15:40")

	// Contest templates
	viper.SetDefault("contests.daily.enabled", true)
	viper.SetDefault("contests.daily.asset_class", "equity")
	viper.SetDefault("contests.daily.entry_fee", 49)
	viper.SetDefault("contests.daily.starting_capital", 100000)
	viper.SetDefault("contests.daily.prize_pool", 1000)
	viper.SetDefault("contests.daily.max_participants", 500)
	viper.SetDefault("contests.daily.registration_lead", "1m")
	viper.SetDefault("contests.weekly.enabled", true)
	viper.SetDefault("contests.weekly.asset_class", "equity")
	viper.SetDefault("contests.weekly.entry_fee", 199)
	viper.SetDefault("contests.weekly.starting_capital", 500000)
	viper.SetDefault("contests.weekly.prize_pool", 10000)
	viper.SetDefault("contests.weekly.max_participants", 1000)
	viper.SetDefault("contests.weekly.registration_lead", "1m")
	viper.SetDefault("contests.monthly.enabled", false)
	viper.SetDefault("contests.monthly.asset_class", "crypto")
	viper.SetDefault("contests.monthly.entry_fee", 499)
	viper.SetDefault("contests.monthly.starting_capital", 1000000)
	viper.SetDefault("contests.monthly.prize_pool", 50000)
	viper.SetDefault("contests.monthly.max_participants", 2000)
	viper.SetDefault("contests.monthly.registration_lead", "1m")

	// Monitor
	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "60s")
}
