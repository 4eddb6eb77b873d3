package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cropsight/cropsight/internal/config"
	"github.com/cropsight/cropsight/internal/event"
	"github.com/cropsight/cropsight/internal/notify"
	"github.com/cropsight/cropsight/internal/provider"
	"github.com/cropsight/cropsight/internal/registry"
	"github.com/cropsight/cropsight/internal/server"
	"github.com/cropsight/cropsight/internal/sheets"
	"github.com/cropsight/cropsight/internal/store"
	"github.com/cropsight/cropsight/internal/version"
	"github.com/cropsight/cropsight/internal/watch"
	"github.com/cropsight/cropsight/internal/zone"
	"github.com/cropsight/cropsight/pkg/plugin"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println(version.Info())
		return
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Local .env files carry provider and bot credentials in development.
	_ = godotenv.Load()

	// Load configuration (before logger, so log level/format can be configured).
	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.New(viperCfg)

	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Cropsight starting", zap.String("version", version.Short()))

	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded", zap.String("source", f))
	} else {
		logger.Warn("no configuration file found, using defaults")
	}

	// Open database.
	dbPath := viperCfg.GetString("database.path")
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal("failed to create data directory", zap.String("dir", dir), zap.Error(err))
		}
	}
	db, err := store.New(dbPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.CheckVersion(ctx, version.Version); err != nil {
		logger.Fatal("database version check failed", zap.Error(err))
	}
	logger.Info("database initialized", zap.String("path", dbPath))

	// Zone registry, provider and notifier are built here and injected
	// into the watch module.
	zones, err := loadZones(viperCfg)
	if err != nil {
		logger.Fatal("zone configuration invalid", zap.Error(err))
	}
	logger.Info("zone registry loaded",
		zap.Int("zones", zones.Len()),
		zap.Float64("total_weight", zones.TotalWeight()),
	)

	prov, err := buildProvider(viperCfg, logger)
	if err != nil {
		logger.Fatal("provider configuration invalid", zap.Error(err))
	}

	notifier := buildNotifier(viperCfg, logger)

	// Shared services.
	bus := event.NewBus(logger.Named("event"))
	reg := registry.New(logger.Named("registry"))

	// Register all modules (compile-time composition).
	modules := []plugin.Plugin{
		watch.New(zones, prov, notifier),
		sheets.New(),
	}
	for _, m := range modules {
		if err := reg.Register(m); err != nil {
			logger.Fatal("failed to register module", zap.Error(err))
		}
	}

	if err := reg.Validate(); err != nil {
		logger.Fatal("module validation failed", zap.Error(err))
	}

	if err := reg.InitAll(ctx, func(name string) plugin.Dependencies {
		return plugin.Dependencies{
			Config: cfg.Sub("modules." + name),
			Logger: logger.Named(name),
			Store:  db,
			Bus:    bus,
		}
	}); err != nil {
		logger.Fatal("failed to initialize modules", zap.Error(err))
	}

	// Wire event subscriptions declared by modules.
	for _, p := range reg.All() {
		if es, ok := p.(plugin.EventSubscriber); ok {
			for _, sub := range es.Subscriptions() {
				bus.Subscribe(sub.Topic, sub.Handler)
			}
		}
	}

	if err := reg.StartAll(ctx); err != nil {
		logger.Fatal("failed to start modules", zap.Error(err))
	}

	// HTTP server.
	addr := viperCfg.GetString("server.host") + ":" + viperCfg.GetString("server.port")
	if addr == ":" {
		addr = "0.0.0.0:8080"
	}
	readyCheck := server.ReadinessChecker(func(ctx context.Context) error {
		return db.DB().PingContext(ctx)
	})
	srv := server.New(addr, reg, logger, readyCheck)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("Cropsight ready", zap.String("addr", addr))

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	reg.StopAll(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("Cropsight stopped")
}

// loadZones reads the zones: list from configuration.
func loadZones(v *viper.Viper) (*zone.Registry, error) {
	var zones []zone.Zone
	if err := v.UnmarshalKey("zones", &zones); err != nil {
		return nil, fmt.Errorf("parsing zones: %w", err)
	}
	return zone.NewRegistry(zones)
}

// buildProvider constructs the index provider selected by provider.mode.
func buildProvider(v *viper.Viper, logger *zap.Logger) (provider.Provider, error) {
	mode := v.GetString("provider.mode")
	switch mode {
	case "simulated":
		return provider.NewSimulated(
			v.GetFloat64("provider.simulated.min"),
			v.GetFloat64("provider.simulated.max"),
		)
	case "sentinelhub":
		return provider.NewSentinelHub(provider.SentinelHubConfig{
			TokenURL:      v.GetString("provider.sentinelhub.token_url"),
			APIURL:        v.GetString("provider.sentinelhub.api_url"),
			ClientID:      v.GetString("provider.sentinelhub.client_id"),
			ClientSecret:  v.GetString("provider.sentinelhub.client_secret"),
			MaxCloudCover: v.GetInt("provider.sentinelhub.max_cloud_cover"),
			Timeout:       v.GetDuration("provider.timeout"),
		}, logger.Named("sentinelhub"))
	default:
		return nil, fmt.Errorf("unknown provider.mode %q (want simulated or sentinelhub)", mode)
	}
}

// buildNotifier constructs the Telegram notifier, or a no-op one when
// credentials are absent.
func buildNotifier(v *viper.Viper, logger *zap.Logger) notify.Notifier {
	token := v.GetString("telegram.token")
	chatID := v.GetString("telegram.chat_id")
	if token == "" || chatID == "" {
		logger.Warn("telegram not configured, alerts will be logged only")
		return notify.Nop{}
	}

	tg, err := notify.NewTelegram(notify.TelegramConfig{
		APIURL:  v.GetString("telegram.api_url"),
		Token:   token,
		ChatID:  chatID,
		Timeout: v.GetDuration("telegram.timeout"),
	}, logger.Named("telegram"))
	if err != nil {
		logger.Warn("telegram configuration invalid, alerts will be logged only", zap.Error(err))
		return notify.Nop{}
	}
	return tg
}
