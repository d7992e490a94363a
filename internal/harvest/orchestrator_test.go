// File: internal/harvest/orchestrator_test.go
package harvest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quietops/linkhawk/api/schemas"
	"github.com/quietops/linkhawk/internal/config"
)

type stubSession struct{ flavor schemas.SessionFlavor }

func (s *stubSession) ID() string                      { return "session-1" }
func (s *stubSession) Flavor() schemas.SessionFlavor   { return s.flavor }
func (s *stubSession) Context() context.Context        { return context.Background() }
func (s *stubSession) Close(ctx context.Context) error { return nil }

type stubManager struct {
	session      schemas.SessionHandle
	acquireErr   error
	acquireCalls int
	releaseCalls int
}

func (m *stubManager) Acquire(ctx context.Context) (schemas.SessionHandle, error) {
	m.acquireCalls++
	if m.acquireErr != nil {
		return nil, m.acquireErr
	}
	return m.session, nil
}

func (m *stubManager) Release(handle schemas.SessionHandle) { m.releaseCalls++ }

type stubAgent struct {
	result schemas.RawResult
	err    error
}

func (a *stubAgent) Run(ctx context.Context) (schemas.RawResult, error) { return a.result, a.err }

// capturingFactory records the task handed to the agent.
type capturingFactory struct {
	agent schemas.ExecutionAgent
	task  string
}

func (f *capturingFactory) factory(_ schemas.LLMClient, task string, _ schemas.SessionHandle) schemas.ExecutionAgent {
	f.task = task
	return f.agent
}

func newTestOrchestrator(t *testing.T, manager ConnectionManager, agent schemas.ExecutionAgent) (*Orchestrator, *capturingFactory) {
	t.Helper()
	f := &capturingFactory{agent: agent}
	o := NewOrchestrator(config.HarvestConfig{DispatchInterval: 0, DispatchBurst: 1},
		manager, f.factory, nil, zaptest.NewLogger(t))
	return o, f
}

func TestHarvestRejectsBlankPromptBeforeAcquiring(t *testing.T) {
	manager := &stubManager{session: &stubSession{flavor: schemas.FlavorPersistent}}
	o, _ := newTestOrchestrator(t, manager, &stubAgent{})

	for _, raw := range []string{"", "   ", "\t\n"} {
		_, err := o.Harvest(context.Background(), raw)
		var invalid *schemas.InvalidInputError
		require.ErrorAs(t, err, &invalid, "input %q", raw)
	}
	assert.Zero(t, manager.acquireCalls, "no session may be acquired for invalid input")
}

func TestHarvestWrapsTaskInNavigationEnvelope(t *testing.T) {
	manager := &stubManager{session: &stubSession{flavor: schemas.FlavorPersistent}}
	agent := &stubAgent{result: schemas.RawResult{Text: "Done."}}
	o, f := newTestOrchestrator(t, manager, agent)

	_, err := o.Harvest(context.Background(), "  like   5 posts about 'AI in healthcare'  ")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(f.task, "Go to linkedin.com, log in if needed, "), "task = %q", f.task)
	assert.Contains(t, f.task, "Like 5 posts about 'AI in healthcare'")
	assert.NotContains(t, f.task, "  like", "whitespace must be normalized before enveloping")
}

func TestHarvestReturnsConfirmation(t *testing.T) {
	manager := &stubManager{session: &stubSession{flavor: schemas.FlavorFallback}}
	agent := &stubAgent{result: schemas.RawResult{Text: "Comments drafted successfully."}}
	o, _ := newTestOrchestrator(t, manager, agent)

	result, err := o.Harvest(context.Background(), "Draft comments on 3 posts")
	require.NoError(t, err)
	assert.Equal(t, schemas.ResultConfirmation, result.Kind)
	assert.Equal(t, "Comments drafted successfully.", result.Confirmation)
	assert.Equal(t, 1, manager.releaseCalls)
}

func TestHarvestEmptyResultReadsAsNoResult(t *testing.T) {
	manager := &stubManager{session: &stubSession{flavor: schemas.FlavorPersistent}}
	agent := &stubAgent{result: schemas.RawResult{Text: "   "}}
	o, _ := newTestOrchestrator(t, manager, agent)

	result, err := o.Harvest(context.Background(), "Visit the profile of Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, "No result returned", result.Confirmation)
}

func TestHarvestNormalizesRecordsAndDropsInvalid(t *testing.T) {
	manager := &stubManager{session: &stubSession{flavor: schemas.FlavorPersistent}}
	agent := &stubAgent{result: schemas.RawResult{Records: []map[string]any{
		{
			"post_id":      "urn:li:activity:123",
			"post_url":     "https://linkedin.com/feed/update/urn:li:activity:123/",
			"author_name":  "Blockchain Expert",
			"content_text": "Latest trends in blockchain technology",
			"likes_count":  float64(42),
			"views_count":  "1200",
		},
		{
			// Missing author_name: dropped, not fatal.
			"post_id":      "urn:li:activity:456",
			"content_text": "Another post",
		},
	}}}
	o, _ := newTestOrchestrator(t, manager, agent)

	result, err := o.Harvest(context.Background(), "Fetch 3 posts about 'blockchain'")
	require.NoError(t, err)
	assert.Equal(t, schemas.ResultPosts, result.Kind)
	require.Len(t, result.Posts, 1)
	assert.Equal(t, 1, result.Dropped)

	post := result.Posts[0]
	assert.Equal(t, "urn:li:activity:123", post.PostID)
	assert.Equal(t, "Blockchain Expert", post.AuthorName)
	require.NotNil(t, post.LikesCount)
	assert.Equal(t, 42, *post.LikesCount)
	require.NotNil(t, post.ViewsCount)
	assert.Equal(t, 1200, *post.ViewsCount)
	assert.Nil(t, post.CommentsCount)
}

func TestHarvestEmptyRecordListIsZeroPosts(t *testing.T) {
	manager := &stubManager{session: &stubSession{flavor: schemas.FlavorPersistent}}
	agent := &stubAgent{result: schemas.RawResult{Records: []map[string]any{}}}
	o, _ := newTestOrchestrator(t, manager, agent)

	result, err := o.Harvest(context.Background(), "Fetch posts about 'nothing'")
	require.NoError(t, err)
	assert.Equal(t, schemas.ResultPosts, result.Kind)
	assert.Empty(t, result.Posts)
	assert.Zero(t, result.Dropped)
}

func TestHarvestPassesThroughClassifiedErrors(t *testing.T) {
	unavailable := &schemas.ExecutorUnavailableError{PersistentAttempts: 3, Hint: "start chrome"}
	manager := &stubManager{acquireErr: unavailable}
	o, _ := newTestOrchestrator(t, manager, &stubAgent{})

	_, err := o.Harvest(context.Background(), "Like a post")
	require.ErrorIs(t, err, unavailable)
	var wrapped *schemas.HarvestExecutionError
	assert.False(t, errors.As(err, &wrapped), "classified errors must not be re-wrapped")
}

func TestHarvestWrapsUnexpectedAgentErrors(t *testing.T) {
	manager := &stubManager{session: &stubSession{flavor: schemas.FlavorPersistent}}
	agent := &stubAgent{err: errors.New("selector vanished mid-run")}
	o, _ := newTestOrchestrator(t, manager, agent)

	_, err := o.Harvest(context.Background(), "Like a post")
	var wrapped *schemas.HarvestExecutionError
	require.ErrorAs(t, err, &wrapped)
	assert.Contains(t, wrapped.Error(), "selector vanished mid-run")
	assert.Equal(t, 1, manager.releaseCalls, "session must be released on failure")
}

func TestHarvestPacesDispatches(t *testing.T) {
	manager := &stubManager{session: &stubSession{flavor: schemas.FlavorPersistent}}
	agent := &stubAgent{result: schemas.RawResult{Text: "ok"}}
	f := &capturingFactory{agent: agent}
	o := NewOrchestrator(config.HarvestConfig{DispatchInterval: 50 * time.Millisecond, DispatchBurst: 1},
		manager, f.factory, nil, zaptest.NewLogger(t))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := o.Harvest(context.Background(), "Like a post")
		require.NoError(t, err)
	}
	// Burst of 1 means the second and third dispatch each wait one interval.
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}
