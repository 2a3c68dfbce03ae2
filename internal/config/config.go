package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/scalper/internal/alert"
	"github.com/newthinker/scalper/internal/core"
	"github.com/spf13/viper"
)

// Refresh interval bounds exposed to the dashboard control.
const (
	MinRefreshInterval = 30 * time.Second
	MaxRefreshInterval = 120 * time.Second
)

type Config struct {
	Server      ServerConfig              `mapstructure:"server"`
	Feed        FeedConfig                `mapstructure:"feed"`
	Pairs       []core.Pair               `mapstructure:"pairs"`
	DefaultPair string                    `mapstructure:"default_pair"`
	Refresh     RefreshConfig             `mapstructure:"refresh"`
	Indicators  IndicatorConfig           `mapstructure:"indicators"`
	Strategy    StrategyConfig            `mapstructure:"strategy"`
	History     HistoryConfig             `mapstructure:"history"`
	Router      RouterConfig              `mapstructure:"router"`
	Notifiers   map[string]NotifierConfig `mapstructure:"notifiers"`
	Storage     StorageConfig             `mapstructure:"storage"`
	Metrics     MetricsConfig             `mapstructure:"metrics"`
	Alerts      AlertsConfig              `mapstructure:"alerts"`
	Briefing    BriefingConfig            `mapstructure:"briefing"`
}

type ServerConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// FeedConfig selects the market data source and the bar window it returns.
type FeedConfig struct {
	Collector string        `mapstructure:"collector"`
	Range     string        `mapstructure:"range"`
	Interval  string        `mapstructure:"interval"`
	MinBars   int           `mapstructure:"min_bars"`
	Timeout   time.Duration `mapstructure:"timeout"`
	ChartBars int           `mapstructure:"chart_bars"`
	Crypto    CryptoConfig  `mapstructure:"crypto"`
}

// CryptoConfig configures the exchange-backed crypto collector.
type CryptoConfig struct {
	Providers    []string `mapstructure:"providers"`
	DefaultQuote string   `mapstructure:"default_quote"`
}

// Collectors are the feed sources a pair may name.
var Collectors = []string{"yahoo", "crypto"}

// CryptoProviders are the exchanges the crypto collector can fall back across.
var CryptoProviders = []string{"okx", "binance"}

type RefreshConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type IndicatorConfig struct {
	RSIPeriod int `mapstructure:"rsi_period"`
	BBPeriod  int `mapstructure:"bb_period"`
}

// StrategyConfig holds the RSI gates applied at the band touches.
type StrategyConfig struct {
	RSIBuyAbove  float64 `mapstructure:"rsi_buy_above"`
	RSISellBelow float64 `mapstructure:"rsi_sell_below"`
}

type HistoryConfig struct {
	DisplayLimit  int  `mapstructure:"display_limit"`
	DedupBySignal bool `mapstructure:"dedup_by_signal"`
}

type RouterConfig struct {
	Cooldown       time.Duration `mapstructure:"cooldown"`
	EnabledSignals []string      `mapstructure:"enabled_signals"`
}

type NotifierConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	BotToken string            `mapstructure:"bot_token"`
	ChatID   string            `mapstructure:"chat_id"`
	URL      string            `mapstructure:"url"`
	// Email notifier fields
	Host     string            `mapstructure:"host"`
	Port     int               `mapstructure:"port"`
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	From     string            `mapstructure:"from"`
	To       []string          `mapstructure:"to"`
	// Webhook notifier fields
	Headers  map[string]string `mapstructure:"headers"`
}

type StorageConfig struct {
	Journal JournalConfig `mapstructure:"journal"`
	Archive ArchiveConfig `mapstructure:"archive"`
}

// JournalConfig points at the SQLite signal journal. Empty path disables it.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// ArchiveConfig selects where cleared histories are written. Empty type disables it.
type ArchiveConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// AlertsConfig holds feed health alert configuration.
type AlertsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	Rules         []alert.Rule  `mapstructure:"rules"`
}

// BriefingConfig enables LLM-written notes for newly recorded signals.
type BriefingConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxTokens int           `mapstructure:"max_tokens"`
	LLM       LLMConfig     `mapstructure:"llm"`
}

type LLMConfig struct {
	Provider string       `mapstructure:"provider"`
	Claude   ClaudeConfig `mapstructure:"claude"`
	OpenAI   OpenAIConfig `mapstructure:"openai"`
	Ollama   OllamaConfig `mapstructure:"ollama"`
}

type ClaudeConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type OllamaConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Model    string `mapstructure:"model"`
}

// DefaultAlertRules fire when the feed keeps failing or goes stale.
func DefaultAlertRules() []alert.Rule {
	return []alert.Rule{
		{
			Name:     "feed_failing",
			Expr:     "consecutive_failures >= 3",
			Severity: "warning",
			Message:  "Market feed has failed several refresh cycles in a row",
		},
		{
			Name:     "feed_stale",
			Expr:     "seconds_since_live > 600",
			For:      time.Minute,
			Severity: "critical",
			Message:  "No live market data for over 10 minutes",
		},
	}
}

// DefaultPairs is the pair menu offered when none is configured.
func DefaultPairs() []core.Pair {
	return []core.Pair{
		{Label: "EUR/USD", Symbol: "EURUSD=X"},
		{Label: "GBP/USD", Symbol: "GBPUSD=X"},
		{Label: "USD/JPY", Symbol: "USDJPY=X"},
		{Label: "AUD/USD", Symbol: "AUDUSD=X"},
		{Label: "BTC/USD", Symbol: "BTC-USD"},
	}
}

// Load reads configuration from file
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetDefault("metrics.enabled", true)
	// Zero is a valid threshold, so these defaults live in viper rather
	// than applyDefaults.
	v.SetDefault("strategy.rsi_buy_above", defaultRSIBuyAbove)
	v.SetDefault("strategy.rsi_sell_below", defaultRSISellBelow)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

const (
	defaultRSIBuyAbove  = 30.0
	defaultRSISellBelow = 70.0
)

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	cfg := &Config{
		Metrics: MetricsConfig{Enabled: true},
		Strategy: StrategyConfig{
			RSIBuyAbove:  defaultRSIBuyAbove,
			RSISellBelow: defaultRSISellBelow,
		},
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero-valued settings.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Feed.Collector == "" {
		c.Feed.Collector = "yahoo"
	}
	if c.Feed.Range == "" {
		c.Feed.Range = "2d"
	}
	if c.Feed.Interval == "" {
		c.Feed.Interval = "1m"
	}
	if c.Feed.MinBars == 0 {
		c.Feed.MinBars = 25
	}
	if c.Feed.Timeout == 0 {
		c.Feed.Timeout = 15 * time.Second
	}
	if c.Feed.ChartBars == 0 {
		c.Feed.ChartBars = 50
	}
	if len(c.Pairs) == 0 {
		c.Pairs = DefaultPairs()
	}
	if c.DefaultPair == "" {
		c.DefaultPair = c.Pairs[0].Label
	}
	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = 60 * time.Second
	}
	if c.Indicators.RSIPeriod == 0 {
		c.Indicators.RSIPeriod = 14
	}
	if c.Indicators.BBPeriod == 0 {
		c.Indicators.BBPeriod = 20
	}
	if c.History.DisplayLimit == 0 {
		c.History.DisplayLimit = 10
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Alerts.CheckInterval == 0 {
		c.Alerts.CheckInterval = 60 * time.Second
	}
	if c.Alerts.Cooldown == 0 {
		c.Alerts.Cooldown = 15 * time.Minute
	}
	if len(c.Alerts.Rules) == 0 {
		c.Alerts.Rules = DefaultAlertRules()
	}
	if c.Briefing.Timeout == 0 {
		c.Briefing.Timeout = 30 * time.Second
	}
	if c.Briefing.MaxTokens == 0 {
		c.Briefing.MaxTokens = 300
	}
}

// Pair looks up a configured pair by its label.
func (c *Config) Pair(label string) (core.Pair, bool) {
	for _, p := range c.Pairs {
		if p.Label == label {
			return p, true
		}
	}
	return core.Pair{}, false
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if err := ValidateInterval(c.Refresh.Interval); err != nil {
		return err
	}

	if !contains(Collectors, c.Feed.Collector) {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown feed collector %q", c.Feed.Collector))
	}
	for _, p := range c.Feed.Crypto.Providers {
		if !contains(CryptoProviders, p) {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown crypto provider %q", p))
		}
	}

	// Pair validation
	if len(c.Pairs) == 0 {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("at least one pair required"))
	}
	seen := make(map[string]bool, len(c.Pairs))
	for _, p := range c.Pairs {
		if p.Label == "" || p.Symbol == "" {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("pair needs label and symbol, got %q/%q", p.Label, p.Symbol))
		}
		if seen[p.Label] {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("duplicate pair label %q", p.Label))
		}
		seen[p.Label] = true
		if p.Collector != "" && !contains(Collectors, p.Collector) {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("pair %s: unknown collector %q", p.Label, p.Collector))
		}
	}
	if _, ok := c.Pair(c.DefaultPair); !ok {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("default_pair %q is not a configured pair", c.DefaultPair))
	}

	// Indicator validation
	if c.Indicators.RSIPeriod < 2 || c.Indicators.BBPeriod < 2 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("indicator periods must be at least 2, got rsi=%d bb=%d",
				c.Indicators.RSIPeriod, c.Indicators.BBPeriod))
	}
	if c.Feed.MinBars <= c.Indicators.BBPeriod || c.Feed.MinBars <= c.Indicators.RSIPeriod {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("min_bars %d must exceed indicator periods", c.Feed.MinBars))
	}

	// Strategy validation
	if c.Strategy.RSIBuyAbove < 0 || c.Strategy.RSISellBelow > 100 ||
		c.Strategy.RSIBuyAbove >= c.Strategy.RSISellBelow {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("rsi gates must satisfy 0 <= buy_above < sell_below <= 100, got %.1f/%.1f",
				c.Strategy.RSIBuyAbove, c.Strategy.RSISellBelow))
	}

	// Router validation
	if c.Router.Cooldown < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("cooldown cannot be negative, got %s", c.Router.Cooldown))
	}
	for _, s := range c.Router.EnabledSignals {
		if sig := core.Signal(strings.ToUpper(s)); sig != core.SignalBuy && sig != core.SignalSell {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown signal %q in enabled_signals", s))
		}
	}

	// Alert validation
	if c.Alerts.Enabled {
		if c.Alerts.CheckInterval < time.Second {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("alerts check_interval must be at least 1s, got %s", c.Alerts.CheckInterval))
		}
		for i := range c.Alerts.Rules {
			if err := c.Alerts.Rules[i].Validate(); err != nil {
				return core.WrapError(core.ErrConfigInvalid, err)
			}
		}
	}

	// Briefing validation - provider credentials only matter when enabled
	if c.Briefing.Enabled {
		if err := c.Briefing.LLM.validate(); err != nil {
			return err
		}
	}

	// Archive validation
	switch c.Storage.Archive.Type {
	case "":
	case "localfs":
		if c.Storage.Archive.Path == "" {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("archive path required for localfs"))
		}
	case "s3":
		if c.Storage.Archive.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("archive s3 bucket required"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown archive type %q", c.Storage.Archive.Type))
	}

	return nil
}

func (l LLMConfig) validate() error {
	switch l.Provider {
	case "claude":
		if l.Claude.APIKey == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("claude api_key required when provider is claude"))
		}
	case "openai":
		if l.OpenAI.APIKey == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("openai api_key required when provider is openai"))
		}
	case "ollama":
	case "":
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("briefing llm provider required"))
	default:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown llm provider %q", l.Provider))
	}
	return nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// ValidateInterval checks a refresh interval against the allowed range.
func ValidateInterval(d time.Duration) error {
	if d < MinRefreshInterval || d > MaxRefreshInterval {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("refresh interval must be between %s and %s, got %s",
				MinRefreshInterval, MaxRefreshInterval, d))
	}
	return nil
}
