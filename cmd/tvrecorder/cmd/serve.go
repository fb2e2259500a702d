package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mjkirchner/tvrecorder/internal/catalog"
	"github.com/mjkirchner/tvrecorder/internal/config"
	"github.com/mjkirchner/tvrecorder/internal/epgsync"
	internalhttp "github.com/mjkirchner/tvrecorder/internal/http"
	"github.com/mjkirchner/tvrecorder/internal/http/handlers"
	"github.com/mjkirchner/tvrecorder/internal/maintenance"
	"github.com/mjkirchner/tvrecorder/internal/models"
	"github.com/mjkirchner/tvrecorder/internal/recording"
	"github.com/mjkirchner/tvrecorder/internal/scheduler"
	"github.com/mjkirchner/tvrecorder/internal/searchengine"
	"github.com/mjkirchner/tvrecorder/internal/startup"
	"github.com/mjkirchner/tvrecorder/internal/storage"
	"github.com/mjkirchner/tvrecorder/internal/tuner"
	"github.com/mjkirchner/tvrecorder/internal/version"
)

var (
	serveTunerBaseURI string
	serveIndexBaseURI string
	serveIndexAPIKey  string
	serveHost         string
	servePort         int
	serveDataDir      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tvrecorder scheduler, recording pool, and admin server",
	Long: `serve starts every long-lived tvrecorder component: the Schedule Queue
reconciliation loop, the Recording Pool, the EPG Synchroniser, the
maintenance sweeper, and the HTTP administration surface. It blocks until
interrupted, at which point it persists in-flight state to disk before
exiting.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveTunerBaseURI, "mirakurun-base-uri", "", "upstream tuner base URI (overrides config)")
	serveCmd.Flags().StringVar(&serveIndexBaseURI, "meilisearch-base-uri", "", "search index base URI (overrides config)")
	serveCmd.Flags().StringVar(&serveIndexAPIKey, "meilisearch-api-key", "", "search index master key (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "admin server bind host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "admin server bind port (overrides config)")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "base directory for recordings and the schedule queue file (overrides config)")

	mustBindPFlag("tuner.base_uri", serveCmd.Flags().Lookup("mirakurun-base-uri"))
	mustBindPFlag("index.base_uri", serveCmd.Flags().Lookup("meilisearch-base-uri"))
	mustBindPFlag("index.master_key", serveCmd.Flags().Lookup("meilisearch-api-key"))
	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("storage.base_dir", serveCmd.Flags().Lookup("data-dir"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// Flags given on the command line take precedence over the loaded config.
	for src, dst := range map[*string]*string{
		&serveTunerBaseURI: &cfg.Tuner.BaseURI,
		&serveIndexBaseURI: &cfg.Index.BaseURI,
		&serveIndexAPIKey:  &cfg.Index.MasterKey,
		&serveHost:         &cfg.Server.Host,
		&serveDataDir:      &cfg.Storage.BaseDir,
	} {
		if *src != "" {
			*dst = *src
		}
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	logger := slog.Default().With(slog.String("component", "serve"))
	logger.Info("starting tvrecorder", slog.String("version", version.String()))

	if removed, err := startup.CleanupSystemTempDirs(logger); err != nil {
		logger.Warn("temp directory cleanup failed", slog.Any("error", err))
	} else if removed > 0 {
		logger.Info("cleaned up orphaned temp directories", slog.Int("removed", removed))
	}

	sandbox, err := storage.NewSandbox(cfg.Storage.BaseDir)
	if err != nil {
		return fmt.Errorf("opening recording sandbox: %w", err)
	}

	db, err := catalog.Open(catalog.Config{
		DSN:          cfg.Catalog.DSN,
		LogLevel:     cfg.Catalog.LogLevel,
		MaxOpenConns: cfg.Catalog.MaxOpenConns,
		MaxIdleConns: cfg.Catalog.MaxIdleConns,
	}, logger)
	if err != nil {
		return fmt.Errorf("opening catalog database: %w", err)
	}
	defer db.Close()

	tunerClient := tuner.New(cfg.Tuner.BaseURI, logger)
	mirroringTuner := catalog.NewMirroringTuner(tunerClient, db, logger)
	indexClient := searchengine.New(cfg.Index.BaseURI, cfg.Index.MasterKey, logger)

	queue, err := scheduler.Load(descriptorPath(cfg, "q_schedules.json"))
	if err != nil {
		return fmt.Errorf("loading schedule queue: %w", err)
	}

	pool := recording.NewPool(sandbox, cfg.Recording.FilterPath, tunerClient.OpenProgramStream, logger)
	// q_recording.json is loaded for its descriptive value only: it does
	// not spawn tasks or resume tuner streams. Anything still within its
	// broadcast window is respawned by the Scheduler's next tick.
	if _, err := recording.LoadDescriptions(descriptorPath(cfg, "q_recording.json")); err != nil {
		logger.Warn("loading recording descriptor file failed", slog.Any("error", err))
	}

	sched := scheduler.New(queue, planDirResolver(sandbox), logger)

	syncer := epgsync.New(mirroringTuner, indexClient, queue, cfg.EPGSync.RefreshCron, logger)

	sweeper := maintenance.New(sandbox, cfg.Maintenance.SweepCron, cfg.Maintenance.StaleAfter.Duration(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	sched.Start(ctx)
	go dispatchCommands(ctx, sched, pool, logger)
	go func() {
		if err := syncer.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("epg synchroniser exited", slog.Any("error", err))
		}
	}()
	go sweeper.Run(ctx)

	serverCfg := internalhttp.DefaultServerConfig()
	serverCfg.Host = cfg.Server.Host
	serverCfg.Port = cfg.Server.Port
	serverCfg.ReadTimeout = cfg.Server.ReadTimeout
	serverCfg.WriteTimeout = cfg.Server.WriteTimeout
	serverCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout

	server := internalhttp.NewServer(serverCfg, logger, version.Short())
	handlers.NewHealthHandler().Register(server.API())
	handlers.NewScheduleHandler(queue, tunerClient).Register(server.API())
	handlers.NewRecordingHandler(pool).Register(server.API())
	handlers.NewProgramsHandler(tunerClient, db, logger).Register(server.API())

	serveErr := server.ListenAndServe(ctx)

	sched.Stop()
	if err := queue.Persist(descriptorPath(cfg, "q_schedules.json")); err != nil {
		logger.Warn("persisting schedule queue failed", slog.Any("error", err))
	}
	if err := pool.Persist(descriptorPath(cfg, "q_recording.json")); err != nil {
		logger.Warn("persisting recording pool failed", slog.Any("error", err))
	}

	return serveErr
}

// dispatchCommands consumes the Scheduler's command channel and applies
// each one to the Recording Pool until ctx is cancelled.
func dispatchCommands(ctx context.Context, sched *scheduler.Scheduler, pool *recording.Pool, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-sched.Commands():
			if !ok {
				return
			}
			switch cmd.Kind {
			case scheduler.CmdCreateOrUpdate:
				pool.CreateOrUpdate(ctx, cmd.Desc)
			case scheduler.CmdTryCreate:
				pool.TryCreate(ctx, cmd.Desc)
			default:
				logger.Warn("unrecognised scheduler command kind")
			}
		}
	}
}

// planDirResolver returns a scheduler.DirResolver that creates (if
// missing) and returns the plan's save directory inside sandbox.
func planDirResolver(sandbox *storage.Sandbox) scheduler.DirResolver {
	return func(plan models.PlanID) (string, error) {
		dir := plan.Dir()
		if err := sandbox.MkdirAll(dir); err != nil {
			return "", fmt.Errorf("creating save directory %q: %w", dir, err)
		}
		return dir, nil
	}
}

// descriptorPath joins the storage base directory with name, used for
// the schedule queue and recording pool's persisted descriptor files.
// For "q_recording.json", a non-empty Recording.DescriptorFile is
// returned instead.
func descriptorPath(cfg *config.Config, name string) string {
	if cfg.Recording.DescriptorFile != "" && name == "q_recording.json" {
		return cfg.Recording.DescriptorFile
	}
	return cfg.Storage.BaseDir + "/" + name
}
