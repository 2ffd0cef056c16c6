package config

import (
	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// Recognized run configuration sections and the options each accepts.
// Workflows and pipeline runs share this schema; values land in agent
// Invocation.Config untouched once validated.
var runConfigSchema = map[string]map[string]optionKind{
	"extraction": {
		"extractor": kindEnum,
	},
	"cleaning": {
		"enabled":              kindBool,
		"fix_encoding":         kindBool,
		"normalize_unicode":    kindBool,
		"remove_artifacts":     kindBool,
		"normalize_legal_text": kindBool,
		"normalize_whitespace": kindBool,
	},
	"chunking": {
		"strategy":       kindEnum,
		"chunk_size":     kindInt,
		"chunk_overlap":  kindInt,
		"min_chunk_size": kindInt,
	},
	"enrichment": {
		"enabled":             kindBool,
		"detect_section_type": kindBool,
		"detect_amounts":      kindBool,
		"detect_tables":       kindBool,
		"extract_entities":    kindBool,
	},
	"indexing": {
		"use_sqlite":       kindBool,
		"use_vector_store": kindBool,
		"embedding_model":  kindString,
	},
}

var runConfigEnums = map[string]map[string][]string{
	"extraction": {"extractor": {"text", "analyzer"}},
	"chunking":   {"strategy": {"fixed", "paragraph"}},
}

type optionKind int

const (
	kindBool optionKind = iota
	kindInt
	kindString
	kindEnum
)

// ValidateRunConfig checks a run configuration against the recognized
// schema. Options inside known sections must exist and carry the right
// type; sections this engine does not know are passed through so
// custom script agents can read them.
func ValidateRunConfig(cfg map[string]any) error {
	if cfg == nil {
		return nil
	}
	for sectionName, raw := range cfg {
		options, known := runConfigSchema[sectionName]
		if !known {
			continue
		}
		section, ok := raw.(map[string]any)
		if !ok {
			return types.NewError(types.ErrCodeConfig, "section %q must be a mapping", sectionName)
		}
		for optName, value := range section {
			kind, ok := options[optName]
			if !ok {
				return types.NewError(types.ErrCodeConfig, "unknown option %q in section %q", optName, sectionName)
			}
			if err := checkOption(sectionName, optName, kind, value); err != nil {
				return err
			}
		}
	}

	if err := checkChunking(cfg); err != nil {
		return err
	}
	return nil
}

func checkOption(section, option string, kind optionKind, value any) error {
	switch kind {
	case kindBool:
		if _, ok := value.(bool); !ok {
			return types.NewError(types.ErrCodeConfig, "%s.%s must be a boolean", section, option)
		}
	case kindInt:
		if _, ok := asInt(value); !ok {
			return types.NewError(types.ErrCodeConfig, "%s.%s must be an integer", section, option)
		}
	case kindString:
		if _, ok := value.(string); !ok {
			return types.NewError(types.ErrCodeConfig, "%s.%s must be a string", section, option)
		}
	case kindEnum:
		s, ok := value.(string)
		if !ok {
			return types.NewError(types.ErrCodeConfig, "%s.%s must be a string", section, option)
		}
		for _, allowed := range runConfigEnums[section][option] {
			if s == allowed {
				return nil
			}
		}
		return types.NewError(types.ErrCodeConfig, "%s.%s has unsupported value %q (allowed: %v)",
			section, option, s, runConfigEnums[section][option])
	}
	return nil
}

// checkChunking enforces the cross-field chunking invariants: positive
// size, non-negative overlap strictly smaller than the size.
func checkChunking(cfg map[string]any) error {
	raw, ok := cfg["chunking"].(map[string]any)
	if !ok {
		return nil
	}

	size, hasSize := asInt(raw["chunk_size"])
	if hasSize && size <= 0 {
		return types.NewError(types.ErrCodeConfig, "chunking.chunk_size must be positive, got %d", size)
	}
	if overlap, ok := asInt(raw["chunk_overlap"]); ok {
		if overlap < 0 {
			return types.NewError(types.ErrCodeConfig, "chunking.chunk_overlap must not be negative, got %d", overlap)
		}
		if hasSize && overlap >= size {
			return types.NewError(types.ErrCodeConfig,
				"chunking.chunk_overlap (%d) must be smaller than chunk_size (%d)", overlap, size)
		}
	}
	if min, ok := asInt(raw["min_chunk_size"]); ok && min < 0 {
		return types.NewError(types.ErrCodeConfig, "chunking.min_chunk_size must not be negative, got %d", min)
	}
	return nil
}

// asInt normalizes the numeric types JSON and YAML decoders produce.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
