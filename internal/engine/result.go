// Package engine adapts the external extraction engine to the job manager.
//
// The engine speaks JSON over HTTP. Its result document is the same whether
// it is returned synchronously from an extract call or posted back later to
// the internal callback endpoint, so both paths decode through Decode.
package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
)

// Wire outcome names.
const (
	OutcomeCompleted           = "completed"
	OutcomeNotARecipe          = "not_a_recipe"
	OutcomeWebsiteBlocked      = "website_blocked"
	OutcomeNeedsClientDownload = "needs_client_download"
	OutcomeFailed              = "failed"
)

// Result is the engine's answer for one job.
type Result struct {
	Outcome      string              `json:"outcome" example:"completed"`
	Recipe       *domain.RecipeDraft `json:"recipe,omitempty"`
	Video        *Video              `json:"video,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
}

// Video describes a video the client must download itself.
type Video struct {
	DownloadURL string          `json:"download_url"`
	Metadata    json.RawMessage `json:"metadata,omitempty" swaggertype:"object"`
}

// resultSchema constrains what the engine may send. Outcome-specific
// payloads are required through if/then.
var resultSchema = map[string]any{
	"type":     "object",
	"required": []string{"outcome"},
	"properties": map[string]any{
		"outcome": map[string]any{
			"enum": []string{OutcomeCompleted, OutcomeNotARecipe, OutcomeWebsiteBlocked, OutcomeNeedsClientDownload, OutcomeFailed},
		},
		"recipe": map[string]any{
			"type":     "object",
			"required": []string{"title"},
			"properties": map[string]any{
				"title":        map[string]any{"type": "string", "minLength": 1, "maxLength": 500},
				"description":  map[string]any{"type": "string"},
				"ingredients":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "maxItems": 200},
				"steps":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "maxItems": 200},
				"servings":     map[string]any{"type": "integer", "minimum": 1},
				"prep_minutes": map[string]any{"type": "integer", "minimum": 0},
				"cook_minutes": map[string]any{"type": "integer", "minimum": 0},
				"source_url":   map[string]any{"type": "string"},
			},
		},
		"video": map[string]any{
			"type":     "object",
			"required": []string{"download_url"},
			"properties": map[string]any{
				"download_url": map[string]any{"type": "string", "minLength": 1},
				"metadata":     map[string]any{"type": "object"},
			},
		},
		"error_message": map[string]any{"type": "string"},
	},
	"allOf": []any{
		map[string]any{
			"if":   map[string]any{"properties": map[string]any{"outcome": map[string]any{"const": OutcomeCompleted}}},
			"then": map[string]any{"required": []string{"recipe"}},
		},
		map[string]any{
			"if":   map[string]any{"properties": map[string]any{"outcome": map[string]any{"const": OutcomeNeedsClientDownload}}},
			"then": map[string]any{"required": []string{"video"}},
		},
	},
}

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(resultSchema)
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("result.json", bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiled, compileErr = c.Compile("result.json")
	})
	return compiled, compileErr
}

// Decode validates a raw result document and converts it to an outcome.
func Decode(raw []byte) (domain.Outcome, error) {
	s, err := schema()
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode engine result: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return nil, fmt.Errorf("engine result does not match schema: %w", err)
	}
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode engine result: %w", err)
	}
	return r.ToOutcome()
}

// ToOutcome converts an already validated result.
func (r Result) ToOutcome() (domain.Outcome, error) {
	switch r.Outcome {
	case OutcomeCompleted:
		if r.Recipe == nil {
			return nil, fmt.Errorf("completed result without recipe")
		}
		return domain.Completed{Draft: *r.Recipe}, nil
	case OutcomeNotARecipe:
		return domain.NotARecipe{}, nil
	case OutcomeWebsiteBlocked:
		return domain.WebsiteBlocked{}, nil
	case OutcomeNeedsClientDownload:
		if r.Video == nil {
			return nil, fmt.Errorf("needs_client_download result without video")
		}
		return domain.NeedsClientDownload{DownloadURL: r.Video.DownloadURL, Metadata: r.Video.Metadata}, nil
	case OutcomeFailed:
		return domain.Failed{Message: strings.TrimSpace(r.ErrorMessage)}, nil
	}
	return nil, fmt.Errorf("unknown engine outcome %q", r.Outcome)
}
