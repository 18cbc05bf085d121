package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/BubblyOak/PingPal/internal/api"
	"github.com/BubblyOak/PingPal/internal/config"
	"github.com/BubblyOak/PingPal/internal/genai"
	"github.com/BubblyOak/PingPal/internal/giflib"
	"github.com/BubblyOak/PingPal/internal/lockfile"
	"github.com/BubblyOak/PingPal/internal/messaging"
	"github.com/BubblyOak/PingPal/internal/planner"
	"github.com/BubblyOak/PingPal/internal/policy"
	"github.com/BubblyOak/PingPal/internal/scheduler"
	"github.com/BubblyOak/PingPal/internal/store"
	"github.com/BubblyOak/PingPal/internal/util"
	"github.com/BubblyOak/PingPal/internal/whatsapp"
)

// DefaultConfigPath is used when neither the flag nor $PINGPAL_CONFIG is set.
const DefaultConfigPath = "config.yaml"

// Flags holds command line flag values
type Flags struct {
	configPath *string
	dbDSN      *string
	apiAddr    *string
	qrOutput   *string
	numeric    *bool
	waDSN      *string
}

func main() {
	initializeLogger()

	env := config.LoadEnv()
	flags := parseCommandLineFlags()

	settings, err := config.Load(*flags.configPath)
	if err != nil {
		slog.Error("Failed to load settings", "error", err, "path", *flags.configPath)
		os.Exit(1)
	}
	blocks, err := policy.BuildQuietBlocks(settings)
	if err != nil {
		slog.Error("Invalid quiet hours configuration", "error", err)
		os.Exit(1)
	}

	st, lock, err := buildStore(flags, settings)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	if lock != nil {
		defer lock.Release()
	}

	connector, err := buildConnector(flags, settings)
	if err != nil {
		slog.Error("Failed to initialize connector", "error", err, "connector", settings.Runtime.Connector)
		os.Exit(1)
	}

	gifs := giflib.New(settings.GifFolder)
	assistant := genai.NewClient(buildGenAIOptions(env)...)
	plans := planner.New(st, settings, blocks)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	executor := scheduler.NewExecutor(st, settings, connector, gifs, blocks, rng)
	sched := scheduler.NewScheduler()
	interval := time.Duration(settings.Runtime.SchedulerIntervalSeconds) * time.Second
	sched.AddEvery(interval, func() {
		executor.ProcessDuePlans(context.Background())
	})
	defer sched.Stop()
	slog.Info("Execution loop scheduled", "interval", interval)

	server := api.NewServer(api.Deps{
		Store:     st,
		Settings:  settings,
		GenAI:     assistant,
		Connector: connector,
		Planner:   plans,
		Gifs:      gifs,
		Rand:      rng,
	})

	addr := *flags.apiAddr
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", settings.Runtime.Host, settings.Runtime.Port)
	}
	slog.Info("Bootstrapping PingPal", "addr", addr, "connector", settings.Runtime.Connector)
	if err := server.Run(addr); err != nil {
		slog.Error("PingPal failed to run", "error", err)
		os.Exit(1)
	}
}

// initializeLogger sets up structured logging. Debug level is opt-in through
// $PINGPAL_DEBUG.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("PINGPAL_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags() Flags {
	configDefault := os.Getenv("PINGPAL_CONFIG")
	if configDefault == "" {
		configDefault = DefaultConfigPath
	}
	flags := Flags{
		configPath: flag.String("config", configDefault, "path to YAML settings (overrides $PINGPAL_CONFIG)"),
		dbDSN:      flag.String("db-dsn", os.Getenv("DATABASE_URL"), "database DSN for the plan store (overrides $DATABASE_URL and runtime.db_path)"),
		apiAddr:    flag.String("api-addr", os.Getenv("API_ADDR"), "API server address (overrides $API_ADDR and runtime host/port)"),
		qrOutput:   flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:    flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		waDSN:      flag.String("whatsapp-db-dsn", os.Getenv("WHATSAPP_DB_DSN"), "database DSN for the whatsmeow session store (overrides $WHATSAPP_DB_DSN)"),
	}
	flag.Parse()

	slog.Debug("flags parsed",
		"config", *flags.configPath,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"waDSN_set", *flags.waDSN != "")
	return flags
}

// buildStore opens the backend matching the configured DSN. SQLite backends
// additionally lock the data directory so a second instance cannot share the
// single-writer database file.
func buildStore(flags Flags, settings *config.Settings) (store.Store, *lockfile.Lock, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		dsn = settings.Runtime.DBPath
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		st, err := store.NewPostgresStore(store.WithPostgresDSN(dsn))
		return st, nil, err
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	lock, err := lockfile.AcquireLock(filepath.Dir(dsn))
	if err != nil {
		return nil, nil, err
	}
	st, err := store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
	if err != nil {
		lock.Release()
		return nil, nil, err
	}
	return st, lock, nil
}

// buildConnector selects the delivery transport named in the configuration.
// The WhatsApp connector is built here rather than through
// messaging.FromConfig so login flags can be applied.
func buildConnector(flags Flags, settings *config.Settings) (messaging.Connector, error) {
	if settings.Runtime.Connector != "whatsapp" {
		return messaging.FromConfig(settings.Runtime.Connector)
	}

	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.waDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDSN))
	} else if dir := filepath.Dir(settings.Runtime.DBPath); dir != "" && dir != "." {
		waOpts = append(waOpts, whatsapp.WithDBDSN(filepath.Join(dir, "whatsmeow.db")))
	}
	client, err := whatsapp.NewClient(waOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create whatsapp client: %w", err)
	}
	return messaging.NewWhatsAppConnector(client), nil
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(env config.Env) []genai.Option {
	var opts []genai.Option
	if env.LLMAPIKey != "" {
		opts = append(opts, genai.WithAPIKey(env.LLMAPIKey))
	}
	if env.LLMBaseURL != "" {
		opts = append(opts, genai.WithBaseURL(env.LLMBaseURL))
	}
	if env.LLMModel != "" {
		opts = append(opts, genai.WithModel(env.LLMModel))
	}
	return opts
}
