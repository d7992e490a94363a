// File: internal/prompt/delegated.go
package prompt

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/quietops/linkhawk/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	classifySystemPrompt = "You classify social-automation instructions. " +
		"Respond with exactly one intent name from the provided list and nothing else."

	extractSystemPrompt = "You extract parameters from social-automation instructions. " +
		"Respond with a single JSON object and nothing else. " +
		`Schema: {"count": integer, "keywords": [string], "target_person": string, "target_company": string}. ` +
		"Omit any field you cannot determine."
)

// DelegatedClassifier sends prompts to an external text-generation capability
// for intent classification and parameter extraction. Any failure -- transport
// error, an intent outside the closed set, malformed parameter JSON -- falls
// back to the deterministic classifier. The fallback is mandatory: Classify
// never surfaces a delegation failure to its caller.
type DelegatedClassifier struct {
	llm      schemas.LLMClient
	fallback Classifier
	logger   *zap.Logger
}

// NewDelegatedClassifier builds the LLM-backed strategy around a mandatory
// deterministic fallback.
func NewDelegatedClassifier(llm schemas.LLMClient, fallback Classifier, logger *zap.Logger) *DelegatedClassifier {
	return &DelegatedClassifier{llm: llm, fallback: fallback, logger: logger.Named("delegated_classifier")}
}

func (d *DelegatedClassifier) Classify(ctx context.Context, prompt string) (schemas.Intent, schemas.ExtractedParameters, error) {
	intent, err := d.classifyIntent(ctx, prompt)
	if err != nil {
		d.logger.Warn("Falling back to deterministic classification",
			zap.Error(&schemas.ClassificationError{Stage: "classify", Err: err}))
		return d.fallback.Classify(ctx, prompt)
	}

	params, err := d.extractParameters(ctx, prompt)
	if err != nil {
		d.logger.Warn("Falling back to deterministic parameter extraction",
			zap.Error(&schemas.ClassificationError{Stage: "extract", Err: err}))
		params = ExtractParameters(prompt)
	}

	return intent, params, nil
}

func (d *DelegatedClassifier) classifyIntent(ctx context.Context, prompt string) (schemas.Intent, error) {
	names := make([]string, 0, len(schemas.Intents)+1)
	for _, intent := range schemas.Intents {
		names = append(names, string(intent))
	}
	names = append(names, string(schemas.IntentUnknown))

	raw, err := d.llm.GenerateResponse(ctx, schemas.GenerationRequest{
		SystemPrompt: classifySystemPrompt,
		UserPrompt:   fmt.Sprintf("Intents: %s\n\nInstruction: %s", strings.Join(names, ", "), prompt),
		Options:      schemas.GenerationOptions{Temperature: 0, MaxTokens: 16},
	})
	if err != nil {
		return schemas.IntentUnknown, err
	}

	intent := schemas.Intent(strings.ToLower(strings.TrimSpace(raw)))
	if !intent.Valid() {
		return schemas.IntentUnknown, fmt.Errorf("model returned unknown intent %q", raw)
	}
	return intent, nil
}

func (d *DelegatedClassifier) extractParameters(ctx context.Context, prompt string) (schemas.ExtractedParameters, error) {
	raw, err := d.llm.GenerateResponse(ctx, schemas.GenerationRequest{
		SystemPrompt: extractSystemPrompt,
		UserPrompt:   prompt,
		Options:      schemas.GenerationOptions{Temperature: 0, MaxTokens: 256, ForceJSONFormat: true},
	})
	if err != nil {
		return schemas.ExtractedParameters{}, err
	}

	// Strict parse: unknown fields or malformed JSON reject the whole
	// response rather than salvaging pieces of it.
	var params schemas.ExtractedParameters
	dec := json.NewDecoder(strings.NewReader(stripCodeFence(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&params); err != nil {
		return schemas.ExtractedParameters{}, fmt.Errorf("parameter JSON parse failed: %w", err)
	}
	if params.Count < 0 {
		return schemas.ExtractedParameters{}, fmt.Errorf("parameter JSON invalid: negative count %d", params.Count)
	}
	return params, nil
}

// stripCodeFence removes a markdown code fence wrapper that some models emit
// even when asked for bare JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
