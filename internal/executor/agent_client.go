// File: internal/executor/agent_client.go
package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/quietops/linkhawk/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AgentClient dispatches one instruction to the external execution-agent
// service and awaits its single result. The agent's browser-driving logic is
// opaque to this client; it only speaks the run envelope.
//
// No timeout is enforced on the dispatch itself. A run is browser-bound and
// can legitimately take minutes; callers needing bounded latency cancel ctx.
type AgentClient struct {
	baseURL    string
	task       string
	session    schemas.SessionHandle
	httpClient *http.Client
	logger     *zap.Logger
}

var _ schemas.ExecutionAgent = (*AgentClient)(nil)

type agentRunRequest struct {
	Task          string `json:"task"`
	SessionID     string `json:"session_id"`
	SessionFlavor string `json:"session_flavor"`
}

// agentRunResponse is the loose envelope the agent answers with: either a
// free-text result or a list of key-value records.
type agentRunResponse struct {
	Result  string           `json:"result,omitempty"`
	Records []map[string]any `json:"records,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// NewAgentFactory returns a schemas.AgentFactory producing HTTP agent clients
// bound to the given service base URL.
func NewAgentFactory(baseURL string, logger *zap.Logger) schemas.AgentFactory {
	return func(_ schemas.LLMClient, task string, session schemas.SessionHandle) schemas.ExecutionAgent {
		return &AgentClient{
			baseURL: baseURL,
			task:    task,
			session: session,
			// Timeout deliberately zero: dispatch has no enforced bound.
			httpClient: &http.Client{},
			logger:     logger.Named("agent_client"),
		}
	}
}

// Run posts the instruction to the agent and normalizes its reply into a
// RawResult.
func (c *AgentClient) Run(ctx context.Context) (schemas.RawResult, error) {
	payload := agentRunRequest{Task: c.task}
	if c.session != nil {
		payload.SessionID = c.session.ID()
		payload.SessionFlavor = string(c.session.Flavor())
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return schemas.RawResult{}, fmt.Errorf("failed to marshal run request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return schemas.RawResult{}, fmt.Errorf("failed to create run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Dispatching instruction to execution agent",
		zap.String("session_id", payload.SessionID),
		zap.Int("task_bytes", len(c.task)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return schemas.RawResult{}, fmt.Errorf("agent dispatch failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return schemas.RawResult{}, fmt.Errorf("failed to read agent response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return schemas.RawResult{}, fmt.Errorf("agent returned status %d: %s", resp.StatusCode, respBody)
	}

	var parsed agentRunResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return schemas.RawResult{}, fmt.Errorf("agent response is not valid JSON: %w", err)
	}
	if parsed.Error != "" {
		return schemas.RawResult{}, fmt.Errorf("agent reported failure: %s", parsed.Error)
	}

	if parsed.Records != nil {
		return schemas.RawResult{Records: parsed.Records}, nil
	}
	return schemas.RawResult{Text: parsed.Result}, nil
}
