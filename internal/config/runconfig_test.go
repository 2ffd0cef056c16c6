package config

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

func TestValidateRunConfig_Accepts(t *testing.T) {
	cases := []struct {
		name string
		cfg  map[string]any
	}{
		{"nil", nil},
		{"empty", map[string]any{}},
		{"full", map[string]any{
			"extraction": map[string]any{"extractor": "analyzer"},
			"cleaning":   map[string]any{"enabled": true, "normalize_legal_text": false},
			"chunking":   map[string]any{"strategy": "fixed", "chunk_size": 800, "chunk_overlap": 80},
			"enrichment": map[string]any{"detect_amounts": true, "extract_entities": false},
			"indexing":   map[string]any{"use_sqlite": true, "embedding_model": "text-embedding-3-small"},
		}},
		{"json decoded numbers", map[string]any{
			"chunking": map[string]any{"chunk_size": float64(1000), "chunk_overlap": float64(100)},
		}},
		{"unknown section passed through", map[string]any{
			"my_script": map[string]any{"anything": "goes"},
		}},
		{"unknown section non-mapping", map[string]any{
			"my_script": "also fine",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, ValidateRunConfig(tc.cfg))
		})
	}
}

func TestValidateRunConfig_Rejects(t *testing.T) {
	cases := []struct {
		name string
		cfg  map[string]any
	}{
		{"known section not a mapping", map[string]any{"cleaning": "yes"}},
		{"unknown option in known section", map[string]any{
			"cleaning": map[string]any{"remove_headers": true},
		}},
		{"bool option with wrong type", map[string]any{
			"cleaning": map[string]any{"enabled": "true"},
		}},
		{"int option with wrong type", map[string]any{
			"chunking": map[string]any{"chunk_size": "big"},
		}},
		{"fractional int", map[string]any{
			"chunking": map[string]any{"chunk_size": 99.5},
		}},
		{"bad extractor", map[string]any{
			"extraction": map[string]any{"extractor": "ocr"},
		}},
		{"bad strategy", map[string]any{
			"chunking": map[string]any{"strategy": "semantic"},
		}},
		{"non-positive size", map[string]any{
			"chunking": map[string]any{"chunk_size": 0},
		}},
		{"negative overlap", map[string]any{
			"chunking": map[string]any{"chunk_overlap": -10},
		}},
		{"overlap reaches size", map[string]any{
			"chunking": map[string]any{"chunk_size": 100, "chunk_overlap": 100},
		}},
		{"negative min chunk size", map[string]any{
			"chunking": map[string]any{"min_chunk_size": -1},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateRunConfig(tc.cfg)
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrCodeConfig), "want CONFIG_ERROR, got %v", err)
		})
	}
}

func TestValidateRunConfig_ChunkingBounds(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("overlap below size is accepted", prop.ForAll(
		func(size, overlap int) bool {
			if overlap >= size {
				size = overlap + 1
			}
			cfg := map[string]any{"chunking": map[string]any{
				"chunk_size":    size,
				"chunk_overlap": overlap,
			}}
			return ValidateRunConfig(cfg) == nil
		},
		gen.IntRange(1, 10000),
		gen.IntRange(0, 10000),
	))

	properties.Property("overlap at or above size is rejected", prop.ForAll(
		func(size, excess int) bool {
			cfg := map[string]any{"chunking": map[string]any{
				"chunk_size":    size,
				"chunk_overlap": size + excess,
			}}
			return ValidateRunConfig(cfg) != nil
		},
		gen.IntRange(1, 10000),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
