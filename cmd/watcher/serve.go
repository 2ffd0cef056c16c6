package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/germanevangelisti/watcher-sub003/api/rest"
	"github.com/germanevangelisti/watcher-sub003/internal/agent"
	"github.com/germanevangelisti/watcher-sub003/internal/bus"
	"github.com/germanevangelisti/watcher-sub003/internal/config"
	"github.com/germanevangelisti/watcher-sub003/internal/index"
	"github.com/germanevangelisti/watcher-sub003/internal/orchestrator"
	"github.com/germanevangelisti/watcher-sub003/internal/pipeline"
	"github.com/germanevangelisti/watcher-sub003/internal/progress"
	"github.com/germanevangelisti/watcher-sub003/pkg/logger"
)

var (
	serveAddress string
	serveDocsDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the HTTP API server: workflow submission and control,
pipeline processing endpoints, and the WebSocket event stream.`,
	Example: `  # Start with default configuration
  watcher serve

  # Custom listen address and documents directory
  watcher serve --address :9000 --documents ./bulletins

  # Use a configuration file
  watcher serve --config config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddress, "address", "", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveDocsDir, "documents", "", "documents directory (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cmd.Flags().Changed("address") {
		cfg.Server.Address = serveAddress
	}
	if cmd.Flags().Changed("documents") {
		cfg.Pipeline.DocumentsDir = serveDocsDir
	}

	if debug {
		logger.SetLevel(logger.LevelDebug)
	} else {
		logger.SetLevelFromString(cfg.Logging.Level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		if !quiet {
			fmt.Println("\nShutting down...")
		}
		cancel()
	}()

	engine, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.close()

	go engine.progress.Run(ctx)

	if !quiet {
		fmt.Printf("watcher %s\n", Version)
		fmt.Printf("  listening on %s\n", cfg.Server.Address)
		fmt.Printf("  documents:   %s\n", cfg.Pipeline.DocumentsDir)
		fmt.Printf("  index:       %s\n", indexLabel(cfg))
		fmt.Printf("  analyzer:    %s\n", analyzerLabel(cfg))
		fmt.Println()
	}

	server := rest.NewServer(
		engine.orch,
		engine.runner,
		engine.tracker,
		engine.sessions,
		engine.progress,
		engine.store,
		engine.bus,
		&rest.Config{
			Address:         cfg.Server.Address,
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			EnableCORS:      cfg.Server.EnableCORS,
			EnableWebSocket: cfg.Server.EnableWebSocket,
		},
	)

	if err := server.StartWithContext(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// engine bundles the wired components.
type engine struct {
	bus      *bus.Bus
	orch     *orchestrator.Orchestrator
	tracker  *pipeline.Tracker
	sessions *pipeline.SessionManager
	runner   *pipeline.Runner
	progress *progress.Aggregator
	store    *index.Store
}

func (e *engine) close() {
	e.runner.CancelSession()
	e.bus.Close()
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			logger.Warn("closing index store: %v", err)
		}
	}
}

// buildEngine wires the full component graph from configuration.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	b := bus.New(cfg.Orchestrator.EventBufferSize)

	var store *index.Store
	if cfg.Pipeline.IndexPath != "" {
		var err error
		store, err = index.Open(cfg.Pipeline.IndexPath, cfg.Pipeline.UseFTS5)
		if err != nil {
			return nil, fmt.Errorf("opening index store: %w", err)
		}
	}

	var analyzer agent.Analyzer
	if cfg.Analyzer.APIKey != "" {
		agentCfg := cfg.Analyzer.ToAgentConfig()
		a, err := agent.NewEinoAnalyzer(ctx, &agentCfg)
		if err != nil {
			return nil, fmt.Errorf("building analyzer: %w", err)
		}
		analyzer = a
	} else {
		logger.Warn("no analyzer API key configured; analysis agents will fail with CONFIG_ERROR")
	}

	registry := agent.NewRegistry()
	agent.RegisterBuiltins(registry, analyzer, store)

	orch := orchestrator.New(&orchestrator.Config{
		Workers:            cfg.Orchestrator.Workers,
		DefaultTaskTimeout: cfg.Orchestrator.DefaultTaskTimeout,
	}, registry, b)

	tracker := pipeline.NewTracker(b)
	sessions := pipeline.NewSessionManager(b)
	source := pipeline.NewDirSource(cfg.Pipeline.DocumentsDir)
	runner := pipeline.NewRunner(registry, tracker, sessions, source, b, pipeline.RunnerConfig{
		MaxConcurrent: cfg.Pipeline.MaxConcurrent,
		BatchDelay:    cfg.Pipeline.BatchDelay,
		StageTimeout:  cfg.Pipeline.StageTimeout,
		Defaults:      cfg.Pipeline.Defaults,
	})

	prog := progress.New(orch, tracker, sessions, b)

	return &engine{
		bus:      b,
		orch:     orch,
		tracker:  tracker,
		sessions: sessions,
		runner:   runner,
		progress: prog,
		store:    store,
	}, nil
}

func indexLabel(cfg *config.Config) string {
	if cfg.Pipeline.IndexPath == "" {
		return "disabled"
	}
	label := cfg.Pipeline.IndexPath
	if cfg.Pipeline.UseFTS5 {
		label += " (fts5)"
	}
	return label
}

func analyzerLabel(cfg *config.Config) string {
	if cfg.Analyzer.APIKey == "" {
		return "disabled"
	}
	return fmt.Sprintf("%s/%s", cfg.Analyzer.Provider, cfg.Analyzer.Model)
}
