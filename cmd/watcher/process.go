package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/germanevangelisti/watcher-sub003/internal/config"
	"github.com/germanevangelisti/watcher-sub003/pkg/logger"
	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

var processDocumentID string

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process documents from the command line",
	Long: `Run the document pipeline without starting the API server.
Processes every pending document in the documents directory, or a
single document when --id is given.`,
	Example: `  # Process everything pending
  watcher process

  # Process one document
  watcher process --id boletin-2024-117`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVar(&processDocumentID, "id", "", "process a single document by ID")
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
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
		cancel()
	}()

	engine, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.close()

	if processDocumentID != "" {
		if err := engine.runner.ProcessDocument(ctx, processDocumentID, nil); err != nil {
			return fmt.Errorf("processing %s: %w", processDocumentID, err)
		}
		if !quiet {
			fmt.Printf("document %s processed\n", processDocumentID)
		}
		return nil
	}

	// Watch for session completion before starting, so the event
	// cannot be missed.
	sub := engine.bus.Subscribe(types.EventSessionCompleted)
	defer sub.Close()

	session, err := engine.runner.ProcessAll(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	if !quiet {
		fmt.Printf("session %s started (%d documents)\n", session.SessionID, session.Total)
	}

	select {
	case <-ctx.Done():
		engine.runner.CancelSession()
		return ctx.Err()
	case <-sub.Events():
	}

	final := engine.sessions.Last()
	if final == nil {
		return fmt.Errorf("session state lost")
	}
	if !quiet {
		fmt.Printf("session %s finished: %s (%d/%d processed, %d errors)\n",
			final.SessionID, final.Status, final.Current, final.Total, len(final.Errors))
	}
	if final.Status != types.SessionStatusCompleted {
		return fmt.Errorf("session ended with status %s", final.Status)
	}
	return nil
}
