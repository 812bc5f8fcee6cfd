package stakingd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nftstake/config"
	"nftstake/core/events"
	"nftstake/core/state"
	"nftstake/crypto"
	"nftstake/gateway/middleware"
	"nftstake/integrations/custody/evm"
	"nftstake/integrations/custody/memory"
	"nftstake/integrations/webhooks"
	"nftstake/native/nftstake"
	"nftstake/observability"
	"nftstake/observability/logging"
	telemetry "nftstake/observability/otel"
	"nftstake/storage"
)

// Main initialises and runs the staking daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/stakingd/config.yaml", "path to stakingd configuration")
	flag.Parse()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("STAKE_ENV"))
	logOpts := []logging.Option{logging.WithLevel(logging.ParseLevel(cfg.Logging.Level))}
	if cfg.Logging.File != "" {
		logOpts = append(logOpts, logging.WithFile(logging.FileSink{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		}))
	}
	logger := logging.Setup("stakingd", env, logOpts...)

	endpoint := cfg.Telemetry.Endpoint
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	}
	headers := cfg.Telemetry.Headers
	if len(headers) == 0 {
		headers = telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "stakingd",
		Environment: env,
		Endpoint:    endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	rt, err := newRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.Bootstrap {
		if err := bootstrapConfig(rt.engine, cfg.ParamsPath, logger); err != nil {
			return fmt.Errorf("bootstrap config: %w", err)
		}
	}

	server, err := NewServer(ServerConfig{
		Engine:     rt.engine,
		Stream:     rt.stream,
		Auth:       authConfig(cfg.Auth),
		RateLimits: rateLimits(cfg.RateLimits),
		Decimals:   cfg.Rewards.Decimals,
		Metrics:    rt.metrics,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(server.Handler(), "stakingd"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("stakingd listening", slog.String("addr", cfg.ListenAddress))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// runtime holds the long-lived collaborators of the daemon.
type runtime struct {
	db         storage.Database
	engine     *nftstake.Engine
	stream     *Stream
	journal    *Journal
	dispatcher *webhooks.Dispatcher
	metrics    *observability.StakingMetrics
}

func newRuntime(cfg Config, logger *slog.Logger) (*runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &runtime{metrics: observability.Staking()}
	db, err := openDatabase(cfg.Storage)
	if err != nil {
		return nil, err
	}
	rt.db = db
	if err := state.EnsureStateVersion(db, cfg.Storage.AllowMigrate); err != nil {
		rt.Close()
		return nil, fmt.Errorf("state version: %w", err)
	}
	store, err := state.NewStakeStore(db)
	if err != nil {
		rt.Close()
		return nil, err
	}
	custody, err := buildCustody(cfg.Custody)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("custody: %w", err)
	}

	rt.stream = NewStream(logger)
	emitters := events.Fanout{eventCounter{}, rt.stream}
	if cfg.Journal.DSN != "" {
		journal, err := OpenJournal(cfg.Journal.DSN, cfg.Rewards.Decimals, logger)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.journal = journal
		logger.Info("event journal enabled", logging.MaskField("dsn", cfg.Journal.DSN))
		emitters = append(emitters, journal)
		if active, err := journal.ActiveLocks(context.Background()); err == nil {
			rt.metrics.SetActiveLocks(int(active))
		}
	}
	if cfg.Webhook.Endpoint != "" {
		dispatcher, err := webhooks.NewDispatcher(cfg.Webhook.Endpoint, []byte(cfg.Webhook.Secret),
			webhooks.WithRetryPolicy(cfg.Webhook.MaxAttempts, cfg.Webhook.MinBackoff.Duration, cfg.Webhook.MaxBackoff.Duration),
			webhooks.WithLogger(logger))
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("webhook: %w", err)
		}
		rt.dispatcher = dispatcher
		emitters = append(emitters, newClaimNotifier(dispatcher, cfg.Rewards.Decimals, logger))
	}

	engine := nftstake.NewEngine()
	engine.SetStore(store)
	engine.SetCustody(custody)
	engine.SetEmitter(emitters)
	engine.SetLogger(logger)
	rt.engine = engine
	return rt, nil
}

func (rt *runtime) Close() {
	if rt == nil {
		return
	}
	if rt.dispatcher != nil {
		rt.dispatcher.Close()
	}
	if rt.journal != nil {
		_ = rt.journal.Close()
	}
	if rt.db != nil {
		_ = rt.db.Close()
	}
}

func openDatabase(cfg StorageConfig) (storage.Database, error) {
	switch cfg.Backend {
	case StorageMemory:
		return storage.NewMemDB(), nil
	case StorageBolt:
		db, err := storage.NewBoltDB(cfg.Path, nil)
		if err != nil {
			return nil, fmt.Errorf("open bolt store: %w", err)
		}
		return db, nil
	case StorageLevelDB:
		db, err := storage.NewLevelDB(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open leveldb store: %w", err)
		}
		return db, nil
	}
	return nil, fmt.Errorf("storage backend %q not supported", cfg.Backend)
}

// secretSource resolves the custody keystore passphrase without prompting.
type secretSource struct {
	env  string
	file string
}

func (s secretSource) Get() (string, error) {
	value, err := resolveSecret("", s.env, s.file, "passphrase")
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", fmt.Errorf("passphrase_env or passphrase_file must be configured")
	}
	return value, nil
}

func buildCustody(cfg CustodyConfig) (nftstake.Custody, error) {
	switch cfg.Driver {
	case CustodyMemory:
		ledger := memory.New()
		if cfg.SeedFile != "" {
			items, err := LoadCustodySeed(cfg.SeedFile)
			if err != nil {
				return nil, err
			}
			if err := seedCustody(ledger, items); err != nil {
				return nil, err
			}
		}
		return ledger, nil
	case CustodyEVM:
		if !common.IsHexAddress(cfg.Contract) {
			return nil, fmt.Errorf("invalid contract address %q", cfg.Contract)
		}
		signer, err := crypto.LoadSigner(cfg.Keystore, secretSource{env: cfg.PassphraseEnv, file: cfg.PassphraseFile})
		if err != nil {
			return nil, err
		}
		client, err := evm.DialClient(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", cfg.Endpoint, err)
		}
		return evm.New(client, evm.Config{
			Contract:         common.HexToAddress(cfg.Contract),
			Signer:           signer.PrivateKey,
			PollInterval:     cfg.PollInterval.Duration,
			GasMultiplierPct: cfg.GasMultiplierPct,
		})
	}
	return nil, fmt.Errorf("custody driver %q not supported", cfg.Driver)
}

func bootstrapConfig(engine *nftstake.Engine, path string, logger *slog.Logger) error {
	params, err := config.LoadParams(path)
	if err != nil {
		return err
	}
	stakeCfg, err := config.ValidateParams(params)
	if err != nil {
		return err
	}
	id, err := engine.InitializeConfig(stakeCfg)
	if errors.Is(err, nftstake.ErrAlreadyInitialized) {
		logger.Info("staking config already initialized")
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("staking config initialized", slog.String("configId", id.String()))
	return nil
}

func authConfig(cfg AuthConfig) middleware.AuthConfig {
	return middleware.AuthConfig{
		Enabled:          !cfg.Disabled,
		HMACSecret:       cfg.JWTSecret,
		Issuer:           cfg.Issuer,
		Audience:         cfg.Audience,
		ScopeClaim:       cfg.ScopeClaim,
		ClockSkew:        cfg.ClockSkew.Duration,
		DevSubjectHeader: cfg.DevSubjectHeader,
	}
}

func rateLimits(cfg map[string]RateLimitConfig) map[string]middleware.RateLimit {
	out := make(map[string]middleware.RateLimit, len(cfg))
	for name, limit := range cfg {
		out[name] = middleware.RateLimit{RatePerSecond: limit.RatePerSecond, Burst: limit.Burst}
	}
	return out
}
