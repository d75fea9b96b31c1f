// Command scheduler is the operator CLI of spec.md §6: schedule, send,
// retry and status subcommands over the scheduling engine and delivery
// pipeline, plus a daemon mode that sweeps retries and delivery-status
// refreshes on a cron schedule.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bluebrook/enroll-scheduler/internal/batch"
	"github.com/bluebrook/enroll-scheduler/internal/calendar"
	appconfig "github.com/bluebrook/enroll-scheduler/internal/config"
	"github.com/bluebrook/enroll-scheduler/internal/contact"
	"github.com/bluebrook/enroll-scheduler/internal/gateway"
	"github.com/bluebrook/enroll-scheduler/internal/observability"
	"github.com/bluebrook/enroll-scheduler/internal/pipeline"
	"github.com/bluebrook/enroll-scheduler/internal/render"
	"github.com/bluebrook/enroll-scheduler/internal/ruleengine"
	"github.com/bluebrook/enroll-scheduler/internal/rules"
	"github.com/bluebrook/enroll-scheduler/internal/scheduling"
	"github.com/bluebrook/enroll-scheduler/internal/tracking"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: scheduler <schedule|insert|send|retry|status|daemon> [flags]")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "schedule":
		err = runSchedule(ctx, os.Args[2:])
	case "insert":
		err = runInsert(ctx, os.Args[2:])
	case "send":
		err = runSend(ctx, os.Args[2:])
	case "retry":
		err = runRetry(ctx, os.Args[2:])
	case "status":
		err = runStatus(ctx, os.Args[2:])
	case "daemon":
		err = runDaemon(ctx, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "scheduler: %v\n", err)
		os.Exit(1)
	}
}

func runSchedule(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("schedule", flag.ExitOnError)
	input := fs.String("input", "", "path to contacts JSON")
	output := fs.String("output", "", "path to write scheduling output JSON")
	start := fs.String("start", "", "range start, YYYY-MM-DD")
	end := fs.String("end", "", "range end, YYYY-MM-DD")
	configPath := fs.String("config", "config.yaml", "path to config file")
	parallel := fs.Int("parallel", 0, "bounded concurrency (0 = default)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger("scheduler", cfg.Server.LogLevel)

	ruleCfg, err := rules.Load(cfg.Rules)
	if err != nil {
		return fmt.Errorf("load rule config: %w", err)
	}

	contacts, err := contact.LoadJSON(*input)
	if err != nil {
		return fmt.Errorf("load contacts: %w", err)
	}

	startDate, err := calendar.Parse(*start)
	if err != nil {
		return fmt.Errorf("parse --start: %w", err)
	}
	endDate, err := calendar.Parse(*end)
	if err != nil {
		return fmt.Errorf("parse --end: %w", err)
	}

	re := ruleengine.New(ruleCfg, logger)
	engine := scheduling.New(re, ruleCfg)
	processor := batch.New(engine, *parallel)

	results, err := processor.Run(ctx, contacts, startDate, endDate)
	if err != nil {
		return fmt.Errorf("run scheduling: %w", err)
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	if *output == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(*output, data, 0o644)
}

// runInsert runs the Scheduling Engine over a contact set and persists
// the scope-filtered Scheduled intents as one pending batch, closing the
// gap between `schedule`'s file output and `send`/`retry`/`status`,
// which only ever act on a batch that already exists in the store.
func runInsert(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("insert", flag.ExitOnError)
	input := fs.String("input", "", "path to contacts JSON")
	configPath := fs.String("config", "config.yaml", "path to config file")
	scopeFlag := fs.String("scope", string(pipeline.ScopeNext7Days), "today|next_7_days|next_30_days|next_90_days|bulk")
	bulkKind := fs.String("bulk-kind", "", "message kind to insert, required when scope=bulk")
	batchID := fs.String("batch", "", "batch id to create")
	mode := fs.String("mode", "test", "send mode: test|production")
	orgID := fs.Int64("org", 0, "organization id to stamp on inserted rows")
	parallel := fs.Int("parallel", 0, "bounded concurrency (0 = default)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *batchID == "" {
		return fmt.Errorf("insert: --batch is required")
	}

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger("scheduler", cfg.Server.LogLevel)

	ruleCfg, err := rules.Load(cfg.Rules)
	if err != nil {
		return fmt.Errorf("load rule config: %w", err)
	}

	contacts, err := contact.LoadJSON(*input)
	if err != nil {
		return fmt.Errorf("load contacts: %w", err)
	}

	scope := pipeline.Scope(*scopeFlag)
	today := calendar.FromTime(time.Now())

	var startDate, endDate calendar.Date
	if scope == pipeline.ScopeBulk {
		if *bulkKind == "" {
			return fmt.Errorf("insert: --bulk-kind is required for scope=bulk")
		}
		startDate, endDate = today, calendar.AddYears(today, 1)
	} else {
		startDate, endDate, err = scope.Window(today)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
	}

	re := ruleengine.New(ruleCfg, logger)
	engine := scheduling.New(re, ruleCfg)
	processor := batch.New(engine, *parallel)

	results, err := processor.Run(ctx, contacts, startDate, endDate)
	if err != nil {
		return fmt.Errorf("run scheduling: %w", err)
	}

	store, cleanup, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := pipeline.InsertScope(ctx, store, *orgID, scope, scheduling.Kind(*bulkKind), results, *batchID, tracking.SendMode(*mode))
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	fmt.Printf("inserted %d rows into batch %s\n", n, *batchID)
	return nil
}

func runSend(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	batchID := fs.String("batch", "", "batch id")
	chunk := fs.Int("chunk", 50, "chunk size")
	live := fs.Bool("live", false, "disable dry-run and call the real gateway")
	delay := fs.Duration("delay", 0, "override inter-message delay (0 = use config)")
	contactsPath := fs.String("contacts", "", "path to contacts JSON, for recipient resolution")
	configPath := fs.String("config", "config.yaml", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, cleanup, err := buildPipeline(ctx, *configPath, *contactsPath, *live, *delay)
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := p.ProcessChunk(ctx, *batchID, *chunk)
	if err != nil {
		return fmt.Errorf("process chunk: %w", err)
	}
	fmt.Printf("processed %d rows\n", n)
	return nil
}

func runRetry(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("retry", flag.ExitOnError)
	batchID := fs.String("batch", "", "batch id")
	chunk := fs.Int("chunk", 50, "chunk size")
	contactsPath := fs.String("contacts", "", "path to contacts JSON, for recipient resolution")
	configPath := fs.String("config", "config.yaml", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, cleanup, err := buildPipeline(ctx, *configPath, *contactsPath, false, 0)
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := p.RetryFailed(ctx, *batchID, *chunk)
	if err != nil {
		return fmt.Errorf("retry failed: %w", err)
	}
	fmt.Printf("retried %d rows\n", n)
	return nil
}

func runStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	batchID := fs.String("batch", "", "batch id")
	configPath := fs.String("config", "config.yaml", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger("scheduler", cfg.Server.LogLevel)

	store, cleanup, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	agg, err := store.GetBatch(ctx, *batchID)
	if err != nil {
		return fmt.Errorf("get batch: %w", err)
	}

	data, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

// runDaemon starts the metrics HTTP surface and a cron-driven sweeper
// that retries failed rows and refreshes stale delivery statuses for a
// fixed set of batches, until ctx is cancelled.
func runDaemon(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config file")
	contactsPath := fs.String("contacts", "", "path to contacts JSON, for recipient resolution")
	batches := fs.String("batches", "", "comma-separated batch ids to sweep")
	retrySchedule := fs.String("retry-schedule", "*/15 * * * *", "cron schedule for retry sweeps")
	statusSchedule := fs.String("status-schedule", "*/5 * * * *", "cron schedule for delivery-status sweeps")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger("scheduler-daemon", cfg.Server.LogLevel)

	p, cleanup, err := buildPipeline(ctx, *configPath, *contactsPath, cfg.Pipeline.SendMode == "production", 0)
	if err != nil {
		return err
	}
	defer cleanup()

	store, cleanupStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanupStore()

	var batchIDs []string
	for _, b := range strings.Split(*batches, ",") {
		if b = strings.TrimSpace(b); b != "" {
			batchIDs = append(batchIDs, b)
		}
	}

	sweeper := pipeline.NewSweeper(p, store, logger)
	if err := sweeper.Start(*retrySchedule, *statusSchedule, batchIDs, cfg.Pipeline.ChunkSize); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	defer sweeper.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.Server.MetricsAddr).Msg("daemon metrics surface listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// buildStore wires the Postgres-backed tracking.Store with Redis claim
// coordination, per SPEC_FULL.md §6.1.
func buildStore(ctx context.Context, cfg *appconfig.Config, logger zerolog.Logger) (tracking.Store, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}

	pg := tracking.NewPGStore(pool, logger)
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}

	cleanup := func() { pool.Close() }

	if cfg.Redis.Addr == "" {
		return pg, cleanup, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	leaser := tracking.NewRedisLeaser(rdb, time.Duration(cfg.Redis.LeaseTTL)*time.Second)
	leased := tracking.NewLeasedStore(pg, leaser)

	return leased, func() { rdb.Close(); cleanup() }, nil
}

// buildPipeline wires a Pipeline for send/retry, choosing a live SES
// gateway or the in-memory FakeGateway depending on live and the
// configured dry-run flag, and loading contactsPath (if given) for
// recipient resolution.
func buildPipeline(ctx context.Context, configPath, contactsPath string, live bool, delayOverride time.Duration) (*pipeline.Pipeline, func(), error) {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger("scheduler", cfg.Server.LogLevel)

	store, cleanupStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	dryRun := cfg.Pipeline.DryRun || !live
	var gw gateway.Gateway
	if dryRun {
		gw = gateway.NewFakeGateway()
	} else {
		sesGW, err := gateway.NewSESGateway(ctx, cfg.Gateway.Region, float64(cfg.Gateway.RequestsPerSecond), cfg.Gateway.Burst, logger)
		if err != nil {
			cleanupStore()
			return nil, nil, fmt.Errorf("build ses gateway: %w", err)
		}
		gw = sesGW
	}

	renderer := render.New()

	var resolver pipeline.ContactResolver
	if contactsPath != "" {
		contacts, err := contact.LoadJSON(contactsPath)
		if err != nil {
			cleanupStore()
			return nil, nil, fmt.Errorf("load contacts: %w", err)
		}
		resolver = contact.NewMapResolver(contacts)
	} else {
		resolver = contact.NewMapResolver(nil)
	}

	delay := time.Duration(cfg.Pipeline.InterMessageDelayMs) * time.Millisecond
	if delayOverride > 0 {
		delay = delayOverride
	}

	pCfg := pipeline.Config{
		DryRun:              dryRun,
		TestSendingEnabled:  true,
		ProductionEnabled:   live,
		TestAddresses:       []string{cfg.Pipeline.TestEmail},
		InterMessageDelay:   delay,
		MaxAttempts:         cfg.Pipeline.MaxAttempts,
		StatusCheckStaleAge: time.Duration(cfg.Pipeline.StatusCheckStaleSecs) * time.Second,
		Org:                 render.Organization{Name: "Bluebrook Enrollment", FromName: "Bluebrook Enrollment", FromEmail: cfg.Gateway.SenderAddress},
	}

	p, err := pipeline.New(store, gw, renderer, resolver, pCfg, logger)
	if err != nil {
		cleanupStore()
		return nil, nil, fmt.Errorf("build pipeline: %w", err)
	}

	return p, cleanupStore, nil
}
