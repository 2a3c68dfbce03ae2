package main

import (
	"fmt"

	"github.com/newthinker/scalper/internal/alert"
	"github.com/newthinker/scalper/internal/app"
	"github.com/newthinker/scalper/internal/briefing"
	"github.com/newthinker/scalper/internal/collector"
	"github.com/newthinker/scalper/internal/collector/crypto"
	"github.com/newthinker/scalper/internal/collector/crypto/binance"
	"github.com/newthinker/scalper/internal/collector/crypto/okx"
	"github.com/newthinker/scalper/internal/collector/yahoo"
	"github.com/newthinker/scalper/internal/config"
	"github.com/newthinker/scalper/internal/history"
	"github.com/newthinker/scalper/internal/llm/factory"
	"github.com/newthinker/scalper/internal/notifier"
	"github.com/newthinker/scalper/internal/notifier/email"
	"github.com/newthinker/scalper/internal/notifier/telegram"
	"github.com/newthinker/scalper/internal/notifier/webhook"
	"github.com/newthinker/scalper/internal/session"
	"github.com/newthinker/scalper/internal/storage/archive"
	"github.com/newthinker/scalper/internal/storage/journal"
	"go.uber.org/zap"
)

// components is everything a command may need, built from one config.
type components struct {
	cfg      *config.Config
	session  *session.Session
	app      *app.App
	journal  journal.Journal
	archiver *archive.Archiver
	replayer *replayer
}

func (c *components) Close() {
	if c.journal != nil {
		c.journal.Close()
	}
}

// loadConfig reads --config or falls back to defaults, then validates.
func loadConfig(log *zap.Logger) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
		log.Warn("no config file specified, using defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// openJournal opens the SQLite journal, or a no-op one when no path is set.
func openJournal(cfg *config.Config, log *zap.Logger) (journal.Journal, error) {
	if cfg.Storage.Journal.Path == "" {
		return journal.NewNoop(), nil
	}
	j, err := journal.Open(cfg.Storage.Journal.Path, log.Named("journal"))
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return j, nil
}

// openArchiver returns nil when archiving is not configured.
func openArchiver(cfg *config.Config) (*archive.Archiver, error) {
	store, err := archive.FromConfig(cfg.Storage.Archive)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	if store == nil {
		return nil, nil
	}
	return archive.NewArchiver(store), nil
}

// build wires session, app, collectors, journal, archive and, when
// withNotifiers is set, the configured notifiers and feed alerts. Signal
// briefings are attached whenever they are enabled.
func build(cfg *config.Config, log *zap.Logger, withNotifiers bool) (*components, error) {
	hist := history.NewLog(history.WithSignalDedup(cfg.History.DedupBySignal))
	sess, err := session.New(session.Config{
		Pairs:        cfg.Pairs,
		DefaultPair:  cfg.DefaultPair,
		DisplayLimit: cfg.History.DisplayLimit,
		Interval:     cfg.Refresh.Interval,
	}, hist, log.Named("session"))
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	archiver, err := openArchiver(cfg)
	if err != nil {
		return nil, err
	}
	if archiver != nil {
		sess.SetArchiver(archiver)
	}

	j, err := openJournal(cfg, log)
	if err != nil {
		return nil, err
	}

	a := app.New(cfg, sess, log.Named("app"))
	a.SetJournal(j)

	feeds, err := collectors(cfg, log)
	if err != nil {
		j.Close()
		return nil, err
	}
	for _, feed := range feeds {
		a.RegisterCollector(feed)
	}

	if cfg.Briefing.Enabled {
		provider, err := factory.New(cfg.Briefing.LLM)
		if err != nil {
			j.Close()
			return nil, fmt.Errorf("creating llm provider: %w", err)
		}
		a.SetBriefer(briefing.New(provider, log.Named("briefing"), briefing.Config{
			MaxTokens: cfg.Briefing.MaxTokens,
			Timeout:   cfg.Briefing.Timeout,
		}))
		log.Info("signal briefings enabled", zap.String("provider", provider.Name()))
	}

	if withNotifiers {
		if err := registerNotifiers(a, cfg, log); err != nil {
			j.Close()
			return nil, err
		}
		if cfg.Alerts.Enabled {
			eval := alert.NewEvaluator([]alert.Notifier{a.Notifiers()}, log.Named("alert"))
			eval.SetCooldown(cfg.Alerts.Cooldown)
			a.SetAlerts(eval, cfg.Alerts.Rules, cfg.Alerts.CheckInterval)
			log.Info("feed alerts enabled",
				zap.Int("rules", len(cfg.Alerts.Rules)),
				zap.Duration("check_interval", cfg.Alerts.CheckInterval),
			)
		}
	}

	return &components{
		cfg:      cfg,
		session:  sess,
		app:      a,
		journal:  j,
		archiver: archiver,
		replayer: newReplayer(cfg, feeds, log.Named("replay")),
	}, nil
}

// collectors builds and initializes every feed source. Pairs choose one by
// name, falling back to feed.collector.
func collectors(cfg *config.Config, log *zap.Logger) ([]collector.Collector, error) {
	providers, err := cryptoProviders(cfg.Feed.Crypto.Providers)
	if err != nil {
		return nil, err
	}

	feeds := []collector.Collector{yahoo.New(), crypto.New(providers...)}
	for _, feed := range feeds {
		extra := map[string]any{}
		if feed.Name() == "crypto" && cfg.Feed.Crypto.DefaultQuote != "" {
			extra["default_quote"] = cfg.Feed.Crypto.DefaultQuote
		}
		if err := feed.Init(collector.Config{Timeout: cfg.Feed.Timeout, Extra: extra}); err != nil {
			return nil, fmt.Errorf("initializing collector %s: %w", feed.Name(), err)
		}
		log.Debug("collector ready", zap.String("collector", feed.Name()))
	}
	return feeds, nil
}

// cryptoProviders resolves exchange names in fallback order. Empty means okx then binance.
func cryptoProviders(names []string) ([]crypto.Provider, error) {
	if len(names) == 0 {
		names = []string{"okx", "binance"}
	}
	providers := make([]crypto.Provider, 0, len(names))
	for _, name := range names {
		switch name {
		case "okx":
			providers = append(providers, okx.New())
		case "binance":
			providers = append(providers, binance.New())
		default:
			return nil, fmt.Errorf("unknown crypto provider: %s", name)
		}
	}
	return providers, nil
}

func registerNotifiers(a *app.App, cfg *config.Config, log *zap.Logger) error {
	for name, nc := range cfg.Notifiers {
		if !nc.Enabled {
			continue
		}

		var n notifier.Notifier
		params := map[string]any{}
		switch name {
		case "telegram":
			n = telegram.New(nc.BotToken, nc.ChatID)
			params["bot_token"] = nc.BotToken
			params["chat_id"] = nc.ChatID
		case "webhook":
			n = webhook.New(nc.URL, nc.Headers)
			params["url"] = nc.URL
			params["headers"] = nc.Headers
		case "email":
			n = email.New(nc.Host, nc.Port, nc.Username, nc.Password, nc.From, nc.To)
			params["host"] = nc.Host
			params["port"] = nc.Port
			params["username"] = nc.Username
			params["password"] = nc.Password
			params["from"] = nc.From
			params["to"] = nc.To
		default:
			log.Warn("unknown notifier, skipping", zap.String("notifier", name))
			continue
		}

		if err := n.Init(notifier.Config{Type: name, Params: params}); err != nil {
			return fmt.Errorf("initializing notifier %s: %w", name, err)
		}
		if err := a.RegisterNotifier(n); err != nil {
			return fmt.Errorf("registering notifier %s: %w", name, err)
		}
		log.Info("notifier enabled", zap.String("notifier", name))
	}
	return nil
}
