package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/germanevangelisti/watcher-sub003/internal/agent"
	"github.com/germanevangelisti/watcher-sub003/internal/bus"
	"github.com/germanevangelisti/watcher-sub003/pkg/logger"
	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// stageAgents maps each pipeline stage to the agent type that executes it.
var stageAgents = map[types.Stage]string{
	types.StageExtraction: agent.TypeExtract,
	types.StageCleaning:   agent.TypeClean,
	types.StageChunking:   agent.TypeChunk,
	types.StageEnrichment: agent.TypeEnrich,
	types.StageIndexing:   agent.TypeIndex,
}

// RunnerConfig bounds pipeline processing.
type RunnerConfig struct {
	// MaxConcurrent caps documents processed simultaneously during a
	// process-all session.
	MaxConcurrent int64 `yaml:"max_concurrent"`

	// BatchDelay spaces out document dispatch starts, easing pressure
	// on the rate-limited analyzer.
	BatchDelay time.Duration `yaml:"batch_delay"`

	// StageTimeout bounds each individual stage dispatch.
	StageTimeout time.Duration `yaml:"stage_timeout"`

	// Defaults is the run configuration used when a processing request
	// does not carry its own.
	Defaults map[string]any `yaml:"defaults,omitempty"`
}

// DefaultRunnerConfig returns the default pipeline bounds.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		MaxConcurrent: 3,
		BatchDelay:    500 * time.Millisecond,
		StageTimeout:  2 * time.Minute,
	}
}

// Runner drives documents through the pipeline stages, one agent per
// stage, recording every boundary on the tracker.
type Runner struct {
	agents   *agent.Registry
	tracker  *Tracker
	sessions *SessionManager
	source   DocumentSource
	bus      *bus.Bus
	config   RunnerConfig

	sem  *semaphore.Weighted
	busy sync.Map // documentID -> struct{}, per-document exclusivity

	cancelMu      sync.Mutex
	cancelSession context.CancelFunc
}

// NewRunner creates a pipeline runner.
func NewRunner(agents *agent.Registry, tracker *Tracker, sessions *SessionManager, source DocumentSource, b *bus.Bus, config RunnerConfig) *Runner {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultRunnerConfig().MaxConcurrent
	}
	if config.StageTimeout <= 0 {
		config.StageTimeout = DefaultRunnerConfig().StageTimeout
	}
	return &Runner{
		agents:   agents,
		tracker:  tracker,
		sessions: sessions,
		source:   source,
		bus:      b,
		config:   config,
		sem:      semaphore.NewWeighted(config.MaxConcurrent),
	}
}

// ProcessDocument runs one document through every stage. Processing is
// exclusive per document: a concurrent request for the same document
// fails with INVALID_STATE. It may run alongside an active process-all
// session, sharing the global concurrency cap.
func (r *Runner) ProcessDocument(ctx context.Context, documentID string, config map[string]any) error {
	if config == nil {
		config = r.config.Defaults
	}
	doc, err := r.source.Load(ctx, documentID)
	if err != nil {
		return err
	}
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.sem.Release(1)
	return r.processLoaded(ctx, doc, config)
}

func (r *Runner) processLoaded(ctx context.Context, doc *agent.Document, config map[string]any) error {
	if _, loaded := r.busy.LoadOrStore(doc.ID, struct{}{}); loaded {
		return types.NewError(types.ErrCodeInvalidState, "document %s is already being processed", doc.ID)
	}
	defer r.busy.Delete(doc.ID)

	for _, stage := range types.PipelineStages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.tracker.Advance(doc.ID, doc.Filename, stage, ""); err != nil {
			if types.IsOutOfOrderStage(err) {
				// Anomaly only; the document keeps its recorded stage.
				continue
			}
			return err
		}

		if err := r.runStage(ctx, stage, doc, config); err != nil {
			r.tracker.MarkFailed(doc.ID, doc.Filename, err.Error(), stage)
			return err
		}
	}

	_, err := r.tracker.MarkCompleted(doc.ID)
	return err
}

func (r *Runner) runStage(ctx context.Context, stage types.Stage, doc *agent.Document, config map[string]any) error {
	ag, err := r.agents.GetOrError(stageAgents[stage])
	if err != nil {
		return err
	}

	stageCtx, cancel := context.WithTimeout(ctx, r.config.StageTimeout)
	defer cancel()

	res, err := ag.Execute(stageCtx, &agent.Invocation{Doc: doc, Params: map[string]any{}, Config: config})
	if err != nil {
		if stageCtx.Err() == context.DeadlineExceeded && !types.IsTimeout(err) {
			return types.WrapError(types.ErrCodeTimeout, err, "stage %s timed out for document %s", stage, doc.ID)
		}
		return err
	}
	if res != nil && res.Doc != nil {
		*doc = *res.Doc
	}
	return nil
}

// ProcessAll starts an exclusive session over every pending document
// and returns immediately with the session snapshot. A second call
// while a session is active fails with SESSION_IN_USE.
func (r *Runner) ProcessAll(ctx context.Context, config map[string]any) (*types.Session, error) {
	if config == nil {
		config = r.config.Defaults
	}
	docs, err := r.source.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	session, err := r.sessions.Begin(len(docs), config)
	if err != nil {
		return nil, err
	}

	// The session outlives the request that started it; it is only
	// stopped by CancelSession or process shutdown.
	sessionCtx, cancel := context.WithCancel(context.Background())
	r.cancelMu.Lock()
	r.cancelSession = cancel
	r.cancelMu.Unlock()

	go r.runSession(sessionCtx, session.SessionID, docs, config)
	return session, nil
}

// CancelSession stops the active process-all session, if any. Documents
// already dispatched finish their current stage; the rest are skipped.
func (r *Runner) CancelSession() {
	r.cancelMu.Lock()
	cancel := r.cancelSession
	r.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Runner) runSession(ctx context.Context, sessionID string, docs []*agent.Document, config map[string]any) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)

	for _, doc := range docs {
		if ctx.Err() != nil {
			break
		}
		if err := r.sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(doc *agent.Document) {
			defer wg.Done()
			defer r.sem.Release(1)

			if err := r.processLoaded(ctx, doc, config); err != nil {
				logger.Warn("pipeline: document %s failed: %v", doc.ID, err)
				r.sessions.RecordError(sessionID, doc.ID, doc.Filename, err.Error())
			}

			mu.Lock()
			done++
			current := done
			mu.Unlock()
			r.sessions.Progress(sessionID, current)
		}(doc)

		// Inter-batch delay keeps dispatch starts spaced out.
		if r.config.BatchDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(r.config.BatchDelay):
			}
		}
	}

	wg.Wait()

	status := types.SessionStatusCompleted
	if ctx.Err() != nil {
		status = types.SessionStatusCancelled
	}
	r.sessions.Finish(sessionID, status)
}

// Reset clears tracking state for one document so it can be
// reprocessed from the first stage.
func (r *Runner) Reset(ctx context.Context, documentID string) error {
	if _, busy := r.busy.Load(documentID); busy {
		return types.NewError(types.ErrCodeInvalidState, "document %s is being processed", documentID)
	}
	return r.tracker.Reset(documentID)
}
