package agent

import (
	"github.com/germanevangelisti/watcher-sub003/internal/index"
)

// RegisterBuiltins registers the full built-in agent set on r.
// analyzer and store may be nil; the agents that need them fail their
// dispatches with CONFIG_ERROR instead of being absent, which keeps
// workflow validation deterministic across deployments.
func RegisterBuiltins(r *Registry, analyzer Analyzer, store *index.Store) {
	r.MustRegister(NewExtractAgent(analyzer))
	r.MustRegister(NewCleanAgent())
	r.MustRegister(NewChunkAgent())
	r.MustRegister(NewEnrichAgent())
	r.MustRegister(NewIndexAgent(store))
	r.MustRegister(NewAnalyzeAgent(analyzer))
	r.MustRegister(NewAnomalyAgent(analyzer))
	r.MustRegister(NewScriptAgent())
}
