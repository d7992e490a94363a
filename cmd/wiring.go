// File: cmd/wiring.go
package cmd

import (
	"sync"

	"go.uber.org/zap"

	"github.com/quietops/linkhawk/api/schemas"
	"github.com/quietops/linkhawk/internal/config"
	"github.com/quietops/linkhawk/internal/executor"
	"github.com/quietops/linkhawk/internal/harvest"
	"github.com/quietops/linkhawk/internal/llmclient"
	"github.com/quietops/linkhawk/internal/prompt"
	"github.com/quietops/linkhawk/internal/service"
)

// buildLLM constructs the configured language-model client, or nil when no
// API key is set. A nil client keeps the deterministic transformation path
// fully functional.
func buildLLM(cfg *config.Config, logger *zap.Logger) (schemas.LLMClient, error) {
	if cfg.LLM.APIKey == "" {
		logger.Debug("No LLM API key configured; delegated classification disabled")
		return nil, nil
	}
	return llmclient.NewClient(cfg.LLM, logger)
}

// buildHarvester assembles the connection manager and orchestrator.
func buildHarvester(cfg *config.Config, llm schemas.LLMClient, logger *zap.Logger) (*harvest.Orchestrator, *executor.Manager) {
	persistent := executor.NewPersistentProvider(cfg.Executor, logger)
	fallback := executor.NewFallbackProvider(cfg.Executor, logger)
	manager := executor.NewManager(cfg.Executor, persistent, fallback, logger)
	agents := executor.NewAgentFactory(cfg.Executor.AgentURL, logger)
	return harvest.NewOrchestrator(cfg.Harvest, manager, agents, llm, logger), manager
}

// newEnhancerFactory memoizes one transformer per flag combination so repeated
// requests share the classification cache.
func newEnhancerFactory(cfg config.TransformConfig, llm schemas.LLMClient, logger *zap.Logger) service.EnhancerFactory {
	var mu sync.Mutex
	cache := make(map[[2]bool]service.Enhancer, 4)
	return func(useTemplates, useLLM bool) service.Enhancer {
		key := [2]bool{useTemplates, useLLM}
		mu.Lock()
		defer mu.Unlock()
		if e, ok := cache[key]; ok {
			return e
		}
		combo := cfg
		combo.UseTemplates = useTemplates
		combo.UseLLM = useLLM
		e := prompt.NewTransformer(combo, llm, logger)
		cache[key] = e
		return e
	}
}
