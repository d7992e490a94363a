// File: internal/executor/manager_test.go
package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/quietops/linkhawk/api/schemas"
	"github.com/quietops/linkhawk/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSession is an inert SessionHandle for manager tests.
type fakeSession struct {
	id     string
	flavor schemas.SessionFlavor
	closed atomic.Bool
}

func newFakeSession(flavor schemas.SessionFlavor) *fakeSession {
	return &fakeSession{id: uuid.New().String(), flavor: flavor}
}

func (s *fakeSession) ID() string                    { return s.id }
func (s *fakeSession) Flavor() schemas.SessionFlavor { return s.flavor }
func (s *fakeSession) Context() context.Context      { return context.Background() }
func (s *fakeSession) Close(ctx context.Context) error {
	s.closed.Store(true)
	return nil
}

// fakeProvider replays a scripted sequence of Initialize outcomes.
type fakeProvider struct {
	flavor schemas.SessionFlavor

	mu      sync.Mutex
	outcome func(attempt int) (schemas.SessionHandle, error)
	calls   int
}

func (p *fakeProvider) Flavor() schemas.SessionFlavor { return p.flavor }

func (p *fakeProvider) Initialize(ctx context.Context) (schemas.SessionHandle, error) {
	p.mu.Lock()
	p.calls++
	attempt := p.calls
	p.mu.Unlock()
	return p.outcome(attempt)
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func alwaysFail(flavor schemas.SessionFlavor, err error) *fakeProvider {
	return &fakeProvider{flavor: flavor, outcome: func(int) (schemas.SessionHandle, error) {
		return nil, err
	}}
}

func alwaysSucceed(flavor schemas.SessionFlavor) *fakeProvider {
	return &fakeProvider{flavor: flavor, outcome: func(int) (schemas.SessionHandle, error) {
		return newFakeSession(flavor), nil
	}}
}

func testExecutorConfig() config.ExecutorConfig {
	return config.ExecutorConfig{
		Endpoint:       "http://localhost:9222",
		MaxRetries:     3,
		AcquireTimeout: 10 * time.Second,
	}
}

// recordingSleep captures requested backoff durations without waiting.
type recordingSleep struct {
	mu        sync.Mutex
	durations []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.durations = append(r.durations, d)
	r.mu.Unlock()
	return nil
}

func newTestManager(t *testing.T, persistent, fallback schemas.SessionProvider) (*Manager, *recordingSleep) {
	t.Helper()
	m := NewManager(testExecutorConfig(), persistent, fallback, zaptest.NewLogger(t))
	rec := &recordingSleep{}
	m.sleep = rec.sleep
	return m, rec
}

func TestAcquirePersistentFirstTry(t *testing.T) {
	persistent := alwaysSucceed(schemas.FlavorPersistent)
	fallback := alwaysSucceed(schemas.FlavorFallback)
	m, rec := newTestManager(t, persistent, fallback)

	handle, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.FlavorPersistent, handle.Flavor())
	assert.Equal(t, 1, persistent.callCount())
	assert.Equal(t, 0, fallback.callCount())
	assert.Empty(t, rec.durations)

	health := m.Health()
	assert.Equal(t, StatePersistentHealthy, health.State)
	assert.True(t, health.Healthy)
	assert.Empty(t, health.Hint)

	require.NoError(t, m.Close(context.Background()))
}

func TestAcquireFallsBackAfterExhaustingRetries(t *testing.T) {
	transient := &schemas.ExecutorConnectivityError{Transient: true, Err: errors.New("connection refused")}
	persistent := alwaysFail(schemas.FlavorPersistent, transient)
	fallback := alwaysSucceed(schemas.FlavorFallback)
	m, rec := newTestManager(t, persistent, fallback)

	handle, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.FlavorFallback, handle.Flavor())
	assert.Equal(t, 3, persistent.callCount())
	assert.Equal(t, 1, fallback.callCount())

	// Backoff doubles per attempt; no sleep follows the final attempt.
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.durations)

	health := m.Health()
	assert.Equal(t, StateFallbackHealthy, health.State)
	assert.Equal(t, string(schemas.FlavorFallback), health.Flavor)

	require.NoError(t, m.Close(context.Background()))
}

func TestAcquireNonTransientShortCircuitsRetries(t *testing.T) {
	notRunning := &schemas.ExecutorConnectivityError{Transient: false, Err: errors.New("no such host")}
	persistent := alwaysFail(schemas.FlavorPersistent, notRunning)
	fallback := alwaysSucceed(schemas.FlavorFallback)
	m, rec := newTestManager(t, persistent, fallback)

	handle, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.FlavorFallback, handle.Flavor())
	assert.Equal(t, 1, persistent.callCount(), "non-transient failure must not be retried")
	assert.Empty(t, rec.durations)

	require.NoError(t, m.Close(context.Background()))
}

func TestAcquireBothPathsExhausted(t *testing.T) {
	transient := &schemas.ExecutorConnectivityError{Transient: true, Err: errors.New("i/o timeout")}
	persistent := alwaysFail(schemas.FlavorPersistent, transient)
	fallbackErr := &schemas.ExecutorConnectivityError{Transient: false, Err: errors.New("chrome missing")}
	fallback := alwaysFail(schemas.FlavorFallback, fallbackErr)
	m, _ := newTestManager(t, persistent, fallback)

	_, err := m.Acquire(context.Background())
	require.Error(t, err)

	var unavailable *schemas.ExecutorUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 3, unavailable.PersistentAttempts)
	assert.ErrorIs(t, unavailable.PersistentErr, transient)
	assert.ErrorIs(t, unavailable.FallbackErr, fallbackErr)
	assert.Contains(t, unavailable.Hint, "launch-chrome")
	assert.Contains(t, unavailable.Hint, "http://localhost:9222")

	health := m.Health()
	assert.Equal(t, StateFullyFailed, health.State)
	assert.False(t, health.Healthy)
	assert.NotEmpty(t, health.Hint)
}

func TestAcquireReusesHealthySession(t *testing.T) {
	persistent := alwaysSucceed(schemas.FlavorPersistent)
	m, _ := newTestManager(t, persistent, alwaysSucceed(schemas.FlavorFallback))

	first, err := m.Acquire(context.Background())
	require.NoError(t, err)
	m.Release(first)

	second, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, persistent.callCount())

	require.NoError(t, m.Close(context.Background()))
}

func TestAcquireAfterCloseReestablishes(t *testing.T) {
	persistent := alwaysSucceed(schemas.FlavorPersistent)
	m, _ := newTestManager(t, persistent, alwaysSucceed(schemas.FlavorFallback))

	first, err := m.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Close(context.Background()))
	assert.True(t, first.(*fakeSession).closed.Load())
	assert.Equal(t, StateUnattempted, m.Health().State)

	second, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, persistent.callCount())

	require.NoError(t, m.Close(context.Background()))
}

func TestAcquireConcurrentCallersShareOneEstablish(t *testing.T) {
	release := make(chan struct{})
	var initCalls atomic.Int32
	persistent := &fakeProvider{flavor: schemas.FlavorPersistent, outcome: func(int) (schemas.SessionHandle, error) {
		initCalls.Add(1)
		<-release
		return newFakeSession(schemas.FlavorPersistent), nil
	}}
	m, _ := newTestManager(t, persistent, alwaysSucceed(schemas.FlavorFallback))

	const callers = 8
	handles := make([]schemas.SessionHandle, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := m.Acquire(context.Background())
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}

	// Let the callers pile onto the in-flight establish before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), initCalls.Load(), "cold start must establish exactly one session")
	for _, h := range handles[1:] {
		assert.Same(t, handles[0], h)
	}

	require.NoError(t, m.Close(context.Background()))
}

func TestKeepAliveProbeDiscardsDeadSession(t *testing.T) {
	persistent := alwaysSucceed(schemas.FlavorPersistent)
	m, _ := newTestManager(t, persistent, alwaysSucceed(schemas.FlavorFallback))

	var probeErr error
	m.probe = func(schemas.SessionHandle) error { return probeErr }

	first, err := m.Acquire(context.Background())
	require.NoError(t, err)

	// Healthy probe: same handle comes back.
	again, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, again)

	// Dead probe: the handle is discarded and a fresh one established.
	probeErr = errors.New("browser went away")
	replacement, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, replacement)
	assert.Equal(t, 2, persistent.callCount())

	require.NoError(t, m.Close(context.Background()))
}

func TestClearSessionDataRemovesProfileDir(t *testing.T) {
	cfg := testExecutorConfig()
	cfg.UserDataDir = t.TempDir()
	m := NewManager(cfg, alwaysSucceed(schemas.FlavorPersistent), alwaysSucceed(schemas.FlavorFallback), zaptest.NewLogger(t))

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.ClearSessionData(context.Background()))

	assert.NoDirExists(t, cfg.UserDataDir)
	assert.Equal(t, StateUnattempted, m.Health().State)
}
