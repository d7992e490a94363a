// File: internal/prompt/transformer.go
package prompt

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/quietops/linkhawk/api/schemas"
	"github.com/quietops/linkhawk/internal/config"
)

// linkedinContext is the fixed professional-conduct sentence every
// transformed instruction opens with.
const linkedinContext = "You are working on LinkedIn, the professional networking platform where " +
	"people connect for career opportunities, industry insights, and business relationships."

// Transformer is the single entry point that turns raw user text into the
// final instruction string for the execution agent. Rendering precedence:
// template plan when classification succeeds, else a generic action-aware
// plan, else a minimal safety-wrapped passthrough. Every path emits the
// professional-context sentence, the literal cleaned task text and the full
// safety-guideline list.
//
// With use_llm disabled the output is byte-identical for identical input; the
// LLM-backed classification path is the documented exception.
type Transformer struct {
	classifier   Classifier
	renderer     *Renderer
	useTemplates bool
	logger       *zap.Logger
}

// NewTransformer wires the transformation pipeline from configuration. llm
// may be nil when cfg.UseLLM is false.
func NewTransformer(cfg config.TransformConfig, llm schemas.LLMClient, logger *zap.Logger) *Transformer {
	var classifier Classifier = NewKeywordClassifier()
	if cfg.UseLLM && llm != nil {
		classifier = NewDelegatedClassifier(llm, classifier, logger)
	}

	return &Transformer{
		classifier:   NewCachedClassifier(classifier, cfg.CacheSize),
		renderer:     NewRenderer(cfg.DraftPhrases),
		useTemplates: cfg.UseTemplates,
		logger:       logger.Named("transformer"),
	}
}

// Enhance normalizes the raw prompt and renders the best available plan for
// it. It fails only with *schemas.InvalidInputError; classification problems
// degrade to the generic path instead of propagating.
func (t *Transformer) Enhance(ctx context.Context, raw string) (string, error) {
	clean, err := Normalize(raw)
	if err != nil {
		return "", err
	}

	var plan string
	if t.useTemplates {
		intent, params, cerr := t.classifier.Classify(ctx, clean)
		if cerr != nil {
			t.logger.Warn("Classification failed; using generic enhancement", zap.Error(cerr))
		} else if intent != schemas.IntentUnknown {
			plan = t.renderer.Render(intent, params, clean)
			t.logger.Debug("Rendered template plan",
				zap.String("intent", string(intent)),
				zap.Int("count", params.Count))
		}
	}

	if plan == "" {
		// Generic path: action detection straight off the prompt text, no
		// formal classification. Falls through to the minimal plan when
		// nothing is detected.
		actions := DetectActions(clean)
		plan = t.renderer.RenderActions(actions, ExtractParameters(clean), clean, schemas.IntentUnknown)
	}

	sections := []string{
		linkedinContext,
		"",
		"Original Task: " + clean,
		"",
		plan,
	}
	return strings.Join(sections, "\n"), nil
}
