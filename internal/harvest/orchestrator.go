// File: internal/harvest/orchestrator.go
package harvest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quietops/linkhawk/api/schemas"
	"github.com/quietops/linkhawk/internal/config"
	"github.com/quietops/linkhawk/internal/prompt"
)

// taskEnvelope is wrapped around every instruction before dispatch. Navigation
// and the pause-for-manual-login step are guaranteed here regardless of
// whether the instruction went through upstream enhancement.
const taskEnvelope = "Go to linkedin.com, log in if needed, and then complete the following task:\n\n%s"

// ConnectionManager is the slice of the executor manager the orchestrator
// needs.
type ConnectionManager interface {
	Acquire(ctx context.Context) (schemas.SessionHandle, error)
	Release(handle schemas.SessionHandle)
}

// Orchestrator runs one harvest end to end: validate, envelope, acquire a
// session, dispatch to the execution agent, normalize the result.
//
// Dispatches are paced by a rate limiter so bursts of harvest calls do not
// hammer the platform; there is no timeout on the dispatch itself, since a
// browser run legitimately takes as long as it takes.
type Orchestrator struct {
	manager      ConnectionManager
	agentFactory schemas.AgentFactory
	llm          schemas.LLMClient
	limiter      *rate.Limiter
	logger       *zap.Logger
}

// NewOrchestrator wires the orchestrator. llm may be nil when no language
// model is configured; it is passed through to the agent factory untouched.
func NewOrchestrator(cfg config.HarvestConfig, manager ConnectionManager, factory schemas.AgentFactory, llm schemas.LLMClient, logger *zap.Logger) *Orchestrator {
	limit := rate.Inf
	if cfg.DispatchInterval > 0 {
		limit = rate.Every(cfg.DispatchInterval)
	}
	burst := cfg.DispatchBurst
	if burst < 1 {
		burst = 1
	}
	return &Orchestrator{
		manager:      manager,
		agentFactory: factory,
		llm:          llm,
		limiter:      rate.NewLimiter(limit, burst),
		logger:       logger.Named("harvest"),
	}
}

// Harvest executes one instruction against the platform and returns either a
// confirmation string or the validated posts it produced.
func (o *Orchestrator) Harvest(ctx context.Context, rawPrompt string) (schemas.HarvestResult, error) {
	clean, err := prompt.Normalize(rawPrompt)
	if err != nil {
		return schemas.HarvestResult{}, err
	}
	task := fmt.Sprintf(taskEnvelope, clean)

	if err := o.limiter.Wait(ctx); err != nil {
		return schemas.HarvestResult{}, classify(err)
	}

	session, err := o.manager.Acquire(ctx)
	if err != nil {
		return schemas.HarvestResult{}, classify(err)
	}
	defer o.manager.Release(session)

	o.logger.Info("Dispatching harvest",
		zap.String("session_id", session.ID()),
		zap.String("session_flavor", string(session.Flavor())),
		zap.Int("task_bytes", len(task)))

	agent := o.agentFactory(o.llm, task, session)
	raw, err := agent.Run(ctx)
	if err != nil {
		return schemas.HarvestResult{}, classify(err)
	}

	result := normalizeResult(raw, o.logger)
	switch result.Kind {
	case schemas.ResultPosts:
		o.logger.Info("Harvest produced records",
			zap.Int("posts", len(result.Posts)),
			zap.Int("dropped", result.Dropped))
	default:
		o.logger.Info("Harvest produced confirmation")
	}
	return result, nil
}

// classify re-raises already-classified failure kinds unchanged and wraps
// everything else so callers can tell known failures from unexpected ones.
func classify(err error) error {
	var (
		invalid     *schemas.InvalidInputError
		conn        *schemas.ExecutorConnectivityError
		unavailable *schemas.ExecutorUnavailableError
	)
	if errors.As(err, &invalid) || errors.As(err, &conn) || errors.As(err, &unavailable) {
		return err
	}
	return &schemas.HarvestExecutionError{Err: err}
}
