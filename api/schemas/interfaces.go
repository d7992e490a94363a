package schemas

import (
	"context"
)

// -- LLM Interfaces --

// GenerationOptions tunes a single text-generation call.
type GenerationOptions struct {
	Temperature     float32
	MaxTokens       int
	ForceJSONFormat bool
}

// GenerationRequest is a provider-agnostic request for free-text generation.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Options      GenerationOptions
}

// LLMClient is the single text-generation capability consumed by the core
// (delegated intent classification, parameter extraction, and comment
// composition). Implementations live in internal/llmclient.
type LLMClient interface {
	GenerateResponse(ctx context.Context, req GenerationRequest) (string, error)
}

// -- Executor Interfaces --

// SessionFlavor distinguishes how a browser session was obtained.
type SessionFlavor string

const (
	// FlavorPersistent is a long-lived, externally managed, already
	// authenticated session the core attaches to.
	FlavorPersistent SessionFlavor = "persistent"
	// FlavorFallback is a freshly created throwaway session used when
	// persistent attachment fails.
	FlavorFallback SessionFlavor = "fallback"
)

// SessionHandle is a live handle to a browser session owned by the connection
// manager. Context returns the session's lifecycle context; it is cancelled
// when the session is torn down.
type SessionHandle interface {
	ID() string
	Flavor() SessionFlavor
	Context() context.Context
	Close(ctx context.Context) error
}

// SessionProvider establishes sessions of one flavor. Initialize may fail
// with an *ExecutorConnectivityError; the manager uses the error's Transient
// flag to decide between retrying and fast-failing.
type SessionProvider interface {
	Flavor() SessionFlavor
	Initialize(ctx context.Context) (SessionHandle, error)
}

// ExecutionAgent is the external automation executor: the capability that
// actually drives the browser. The core never inspects its DOM logic; it
// dispatches one instruction and awaits one RawResult.
type ExecutionAgent interface {
	Run(ctx context.Context) (RawResult, error)
}

// AgentFactory constructs an execution agent bound to a language-model
// handle, a task instruction, and a session.
type AgentFactory func(llm LLMClient, task string, session SessionHandle) ExecutionAgent
