package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/route-beacon/bgpextrapolate/internal/config"
	"github.com/route-beacon/bgpextrapolate/internal/db"
	"github.com/route-beacon/bgpextrapolate/internal/engine"
	"github.com/route-beacon/bgpextrapolate/internal/httpapi"
	"github.com/route-beacon/bgpextrapolate/internal/ingest"
	"github.com/route-beacon/bgpextrapolate/internal/metrics"
	"github.com/route-beacon/bgpextrapolate/internal/propagate"
	"github.com/route-beacon/bgpextrapolate/internal/seed"
	"github.com/route-beacon/bgpextrapolate/internal/snapshot"
	"github.com/route-beacon/bgpextrapolate/internal/store"
	"github.com/route-beacon/bgpextrapolate/internal/topology"
	"github.com/route-beacon/bgpextrapolate/internal/trace"
	"github.com/route-beacon/bgpextrapolate/internal/tsv"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runOnce()
	case "serve":
		runServe()
	case "migrate":
		runMigrate()
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: bgpextrapolate <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run        Load topology and announcements, propagate once, write results")
	fmt.Println("  serve      Start a long-running instance with /rib queries and optional Kafka ingest")
	fmt.Println("  migrate    Run database migrations")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
	fmt.Println("  --output <path>   (run only) results TSV output path; defaults to stdout")
	fmt.Println("  --rerun           (run only) reset non-seeded cells and re-propagate once more after the first run")
}

func parseFlags(args []string) (configPath, logLevel, output string, rerun bool) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		case "--output":
			if i+1 < len(args) {
				output = args[i+1]
				i++
			}
		case "--rerun":
			rerun = true
		}
	}
	return
}

func loadConfig(args []string) (*config.Config, *zap.Logger, string, bool) {
	configPath, logLevelOverride, output, rerun := parseFlags(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	logger := initLogger(cfg.Service.LogLevel)
	return cfg, logger, output, rerun
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// migrationsDir returns the path to the migrations directory relative to the binary.
func migrationsDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}

// buildEngine loads the Topology from cfg.Topology.Path and constructs an
// Engine ready to be seeded. Shared by run and serve.
func buildEngine(cfg *config.Config, logger *zap.Logger) (*engine.Engine, error) {
	f, err := os.Open(cfg.Topology.Path)
	if err != nil {
		return nil, fmt.Errorf("opening topology file: %w", err)
	}
	defer f.Close()

	records, err := tsv.ReadRelationships(f)
	if err != nil {
		return nil, fmt.Errorf("reading topology TSV: %w", err)
	}

	topo, err := topology.Build(records, topology.BuildOptions{
		ElideStubs:   cfg.Topology.ElideStubs,
		RefuseCycles: cfg.Topology.RefuseCycles,
	}, logger.Named("topology"))
	if err != nil {
		return nil, fmt.Errorf("building topology: %w", err)
	}

	seedTS, seedTB := cfg.SeedingPolicy()
	propTS, propTB := cfg.PropagationPolicy()

	e := engine.New(topo, engine.Options{
		NumBlocks: cfg.Announcements.BlockCount,
		RIBLayout: cfg.RIB.Layout,
		SeedCfg: seed.Config{
			OriginOnly:          cfg.Seeding.OriginOnly,
			TimestampComparison: seedTS,
			Tiebreak:            seedTB,
		},
		PropCfg: propagate.Config{
			TimestampComparison: propTS,
			Tiebreak:            propTB,
		},
		RNGSeed: cfg.Seeding.RNGSeed,
		RunID:   cfg.Service.InstanceID,
	}, logger.Named("engine"))

	return e, nil
}

func loadAnnouncementsFile(path string) ([]seed.AnnouncementRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening announcements file: %w", err)
	}
	defer f.Close()
	return tsv.ReadAnnouncements(f)
}

// runOnce implements the "run" subcommand: one batch propagation over
// file inputs, writing a Results TSV and optionally persisting to
// Postgres and/or a zstd snapshot.
func runOnce() {
	cfg, logger, output, rerun := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	ctx := context.Background()

	e, err := buildEngine(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build engine", zap.Error(err))
	}

	if cfg.Announcements.Path != "" {
		anns, err := loadAnnouncementsFile(cfg.Announcements.Path)
		if err != nil {
			logger.Fatal("failed to load announcements", zap.Error(err))
		}
		if err := e.SeedAll(anns); err != nil {
			logger.Fatal("failed to seed announcements", zap.Error(err))
		}
		logger.Info("seeded announcements", zap.Int("count", len(anns)))
	}

	stats := e.Run()
	logger.Info("propagation complete",
		zap.Int("accepted", stats.Propagation.Accepted),
		zap.Int("rejected", stats.Propagation.Rejected),
		zap.Int("path_too_long", stats.Propagation.PathTooLong),
		zap.Duration("duration", stats.Duration),
	)

	if rerun {
		stats = e.Rerun()
		logger.Info("rerun complete",
			zap.Int("accepted", stats.Propagation.Accepted),
			zap.Int("rejected", stats.Propagation.Rejected),
			zap.Int("path_too_long", stats.Propagation.PathTooLong),
			zap.Duration("duration", stats.Duration),
		)
	}

	tracer := trace.New(e.Topo, e.Matrix, logger.Named("trace"))
	rows, err := tsv.BuildResults(e.Topo, e.Matrix, e.Pool, tracer, logger.Named("results"))
	if err != nil {
		logger.Fatal("failed to build results", zap.Error(err))
	}

	out := os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			logger.Fatal("failed to create output file", zap.Error(err))
		}
		defer f.Close()
		out = f
	}
	if err := tsv.WriteResults(out, rows); err != nil {
		logger.Fatal("failed to write results", zap.Error(err))
	}
	logger.Info("wrote results", zap.Int("rows", len(rows)))

	if cfg.Postgres.DSN != "" {
		pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		s := store.New(pool, logger.Named("store"))
		if err := s.FlushResults(ctx, cfg.Service.InstanceID, rows); err != nil {
			logger.Fatal("failed to persist results", zap.Error(err))
		}
		logger.Info("persisted results to postgres", zap.String("run_id", cfg.Service.InstanceID))
	}

	if cfg.Snapshot.OutputPath != "" {
		relBytes, err := os.ReadFile(cfg.Topology.Path)
		if err != nil {
			logger.Fatal("failed to re-read topology file for snapshot", zap.Error(err))
		}
		var resultsBuf strings.Builder
		if err := tsv.WriteResults(&resultsBuf, rows); err != nil {
			logger.Fatal("failed to render results for snapshot", zap.Error(err))
		}

		snapFile, err := os.Create(cfg.Snapshot.OutputPath)
		if err != nil {
			logger.Fatal("failed to create snapshot file", zap.Error(err))
		}
		defer snapFile.Close()

		s := snapshot.Snapshot{
			RelationshipsTSV: relBytes,
			ResultsTSV:       []byte(resultsBuf.String()),
		}
		if err := snapshot.Write(snapFile, s, cfg.Snapshot.CompressionLevel); err != nil {
			logger.Fatal("failed to write snapshot", zap.Error(err))
		}
		logger.Info("wrote snapshot", zap.String("path", cfg.Snapshot.OutputPath))
	}
}

// runServe implements the "serve" subcommand: build the engine once,
// optionally stream announcements from Kafka, and expose /rib queries
// and health checks over HTTP until a shutdown signal arrives.
func runServe() {
	cfg, logger, _, _ := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting bgpextrapolate",
		zap.String("instance_id", cfg.Service.InstanceID),
		zap.String("http_listen", cfg.Service.HTTPListen),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, err := buildEngine(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build engine", zap.Error(err))
	}

	if cfg.Announcements.Path != "" {
		anns, err := loadAnnouncementsFile(cfg.Announcements.Path)
		if err != nil {
			logger.Fatal("failed to load announcements", zap.Error(err))
		}
		if err := e.SeedAll(anns); err != nil {
			logger.Fatal("failed to seed announcements", zap.Error(err))
		}
		e.Run()
		logger.Info("seeded and propagated from file", zap.Int("count", len(anns)))
	}

	var dbPool *pgxpool.Pool
	var consumer *ingest.Consumer
	var wg sync.WaitGroup
	var commitWg sync.WaitGroup

	if cfg.Postgres.DSN != "" {
		p, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer p.Close()
		dbPool = p
	}

	if len(cfg.Kafka.Brokers) > 0 {
		tlsCfg, err := cfg.Kafka.BuildTLSConfig()
		if err != nil {
			logger.Fatal("failed to build TLS config", zap.Error(err))
		}
		saslMech := cfg.Kafka.BuildSASLMechanism()

		c, err := ingest.NewConsumer(
			cfg.Kafka.Brokers, cfg.Kafka.Announcements.GroupID, cfg.Kafka.Announcements.Topics,
			cfg.Kafka.ClientID, cfg.Kafka.FetchMaxBytes, tlsCfg, saslMech, logger.Named("ingest.consumer"),
		)
		if err != nil {
			logger.Fatal("failed to create announcements consumer", zap.Error(err))
		}
		defer c.Close()
		consumer = c

		pipeline := ingest.NewPipeline(seedAndRerun{e}, 500, 2000, logger.Named("ingest.pipeline"))

		records := make(chan []ingest.Fetched, 16)
		flushed := make(chan []*kgo.Record, 16)

		wg.Add(2)
		go func() { defer wg.Done(); consumer.Run(ctx, records, flushed, &commitWg) }()
		go func() {
			defer wg.Done()
			pipeline.Run(ctx, records, flushed)
			close(flushed)
		}()

		logger.Info("announcements pipeline started",
			zap.Strings("topics", cfg.Kafka.Announcements.Topics),
			zap.String("group_id", cfg.Kafka.Announcements.GroupID),
		)
	}

	// A nil *pgxpool.Pool or *ingest.Consumer boxed directly into an
	// interface value is non-nil to the receiver, so only box them when
	// actually configured.
	var dbChecker httpapi.DBChecker
	if dbPool != nil {
		dbChecker = dbPool
	}
	var consumerStatus httpapi.ConsumerStatus
	if consumer != nil {
		consumerStatus = consumer
	}

	httpServer := httpapi.NewServer(cfg.Service.HTTPListen, dbChecker, consumerStatus, e, logger.Named("http"))
	if err := httpServer.Start(); err != nil {
		logger.Fatal("failed to start HTTP server", zap.Error(err))
	}

	logger.Info("bgpextrapolate serving")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownTimeout := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		commitWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all pipelines stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout reached, some goroutines may not have finished")
	}

	logger.Info("bgpextrapolate stopped")
}

func runMigrate() {
	cfg, logger, _, _ := loadConfig(os.Args[2:])
	defer logger.Sync()

	logger.Info("running migrations",
		zap.String("dsn", redactDSN(cfg.Postgres.DSN)),
	)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, migrationsDir(), logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	logger.Info("migrations complete")
}

func redactDSN(dsn string) string {
	if !strings.Contains(dsn, "://") {
		re := regexp.MustCompile(`password\s*=\s*\S+`)
		return re.ReplaceAllString(dsn, "password=***")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// seedAndRerun adapts an *engine.Engine into ingest.Sink, re-running
// propagation after every flushed batch so streamed announcements take
// effect without a separate trigger.
type seedAndRerun struct {
	e *engine.Engine
}

func (s seedAndRerun) SeedAll(recs []seed.AnnouncementRecord) error {
	if err := s.e.SeedAll(recs); err != nil {
		return err
	}
	s.e.Rerun()
	return nil
}
