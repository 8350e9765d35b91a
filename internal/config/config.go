package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	DB          DBConfig          `mapstructure:"db"`
	Cron        CronConfig        `mapstructure:"cron"`
	Broker      BrokerConfig      `mapstructure:"broker"`
	Leaderboard LeaderboardConfig `mapstructure:"leaderboard"`
	Rebalance   RebalanceConfig   `mapstructure:"rebalance"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Portfolios  []PortfolioConfig `mapstructure:"portfolios"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr      string `mapstructure:"http_addr"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

type CronConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Rebalance string `mapstructure:"rebalance"`
}

type BrokerConfig struct {
	Provider  string `mapstructure:"provider"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	BaseURL   string `mapstructure:"base_url"`
}

type LeaderboardConfig struct {
	APIURL     string        `mapstructure:"api_url"`
	APIToken   string        `mapstructure:"api_token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type RebalanceConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	LookbackDays   int           `mapstructure:"lookback_days"`
	MinOrderUSD    float64       `mapstructure:"min_order_usd"`
	InitialCapital float64       `mapstructure:"initial_capital"`
	DryRun         bool          `mapstructure:"dry_run"`
}

type NotifyConfig struct {
	Provider string         `mapstructure:"provider"`
	From     string         `mapstructure:"from"`
	To       []string       `mapstructure:"to"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	SendGrid SendGridConfig `mapstructure:"sendgrid"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type SendGridConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PortfolioConfig struct {
	Name           string  `mapstructure:"name"`
	IndexID        string  `mapstructure:"index_id"`
	StockCount     int     `mapstructure:"stock_count"`
	Slack          int     `mapstructure:"slack"`
	InitialCapital float64 `mapstructure:"initial_capital"`
	Timezone       string  `mapstructure:"timezone"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "stockbot.db")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.rebalance", "0 0 15 * * MON")
	v.SetDefault("broker.provider", "paper")
	v.SetDefault("broker.base_url", "https://paper-api.alpaca.markets")
	v.SetDefault("leaderboard.timeout", "30s")
	v.SetDefault("leaderboard.max_retries", 3)
	v.SetDefault("rebalance.poll_interval", "30s")
	v.SetDefault("rebalance.poll_timeout", "10m")
	v.SetDefault("rebalance.lookback_days", 30)
	v.SetDefault("rebalance.min_order_usd", 1)
	v.SetDefault("rebalance.initial_capital", 10000)
	v.SetDefault("rebalance.dry_run", false)
	v.SetDefault("notify.provider", "")
	v.SetDefault("notify.sendgrid.base_url", "https://api.sendgrid.com")
	v.SetDefault("notify.sendgrid.timeout", "15s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects configurations that would only fail mid-run.
func (c Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("db.driver must be sqlite or postgres, got %q", c.DB.Driver)
	}
	switch c.Broker.Provider {
	case "paper":
	case "alpaca":
		if c.Broker.APIKey == "" || c.Broker.APISecret == "" {
			return fmt.Errorf("broker.api_key and broker.api_secret are required for alpaca")
		}
	default:
		return fmt.Errorf("broker.provider must be alpaca or paper, got %q", c.Broker.Provider)
	}
	if len(c.Portfolios) == 0 {
		return fmt.Errorf("at least one portfolio must be configured")
	}
	seen := make(map[string]bool, len(c.Portfolios))
	for i, p := range c.Portfolios {
		if p.Name == "" {
			return fmt.Errorf("portfolios[%d].name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate portfolio name %q", p.Name)
		}
		seen[p.Name] = true
		if p.IndexID == "" {
			return fmt.Errorf("portfolio %q: index_id is required", p.Name)
		}
		if p.StockCount <= 0 {
			return fmt.Errorf("portfolio %q: stock_count must be positive", p.Name)
		}
		if p.Slack < 0 {
			return fmt.Errorf("portfolio %q: slack must be non-negative", p.Name)
		}
		if p.InitialCapital < 0 {
			return fmt.Errorf("portfolio %q: initial_capital must be non-negative", p.Name)
		}
		if p.Timezone != "" {
			if _, err := time.LoadLocation(p.Timezone); err != nil {
				return fmt.Errorf("portfolio %q: invalid timezone %q", p.Name, p.Timezone)
			}
		}
	}
	return nil
}
