// File: internal/executor/provider.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"syscall"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quietops/linkhawk/api/schemas"
	"github.com/quietops/linkhawk/internal/config"
)

// session is the concrete SessionHandle backed by a chromedp browser context.
type session struct {
	id      string
	flavor  schemas.SessionFlavor
	ctx     context.Context
	cancels []context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

var _ schemas.SessionHandle = (*session)(nil)

func (s *session) ID() string                    { return s.id }
func (s *session) Flavor() schemas.SessionFlavor { return s.flavor }
func (s *session) Context() context.Context      { return s.ctx }

// Close tears the chromedp contexts down. For the persistent flavor this only
// detaches from the externally owned browser; for the fallback flavor it also
// shuts down the browser the allocator spawned.
func (s *session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if s.flavor == schemas.FlavorFallback {
			if err := chromedp.Cancel(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.closeErr = fmt.Errorf("failed to shut down fallback browser: %w", err)
			}
		}
		// Cancel in reverse creation order: browser context before allocator.
		for i := len(s.cancels) - 1; i >= 0; i-- {
			s.cancels[i]()
		}
	})
	return s.closeErr
}

// PersistentProvider attaches to a long-lived, already authenticated Chrome
// over its DevTools endpoint. It never launches or terminates the browser.
type PersistentProvider struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ schemas.SessionProvider = (*PersistentProvider)(nil)

// NewPersistentProvider builds the attach-only provider for the given
// DevTools endpoint (e.g. http://localhost:9222).
func NewPersistentProvider(cfg config.ExecutorConfig, logger *zap.Logger) *PersistentProvider {
	return &PersistentProvider{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: cfg.AcquireTimeout},
		logger:     logger.Named("persistent_provider"),
	}
}

func (p *PersistentProvider) Flavor() schemas.SessionFlavor { return schemas.FlavorPersistent }

// Initialize probes the DevTools version endpoint, then attaches a browser
// context over the advertised websocket URL. Failures come back as
// *schemas.ExecutorConnectivityError with the Transient flag classifying
// whether a retry is worthwhile.
func (p *PersistentProvider) Initialize(ctx context.Context) (schemas.SessionHandle, error) {
	wsURL, err := p.discoverWebsocketURL(ctx)
	if err != nil {
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), wsURL, chromedp.NoModifyURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := runBounded(ctx, browserCtx, browserCancel, allocCancel); err != nil {
		return nil, &schemas.ExecutorConnectivityError{Transient: true, Err: fmt.Errorf("CDP attach failed: %w", err)}
	}

	s := &session{
		id:      uuid.New().String(),
		flavor:  schemas.FlavorPersistent,
		ctx:     browserCtx,
		cancels: []context.CancelFunc{allocCancel, browserCancel},
	}
	p.logger.Debug("Attached to persistent browser",
		zap.String("session_id", s.id),
		zap.String("ws_url", wsURL))
	return s, nil
}

// discoverWebsocketURL asks the DevTools HTTP endpoint for the browser-level
// websocket debugger URL.
func (p *PersistentProvider) discoverWebsocketURL(ctx context.Context) (string, error) {
	versionURL, err := url.JoinPath(p.endpoint, "json", "version")
	if err != nil {
		return "", &schemas.ExecutorConnectivityError{
			Transient: false,
			Err:       fmt.Errorf("malformed executor endpoint %q: %w", p.endpoint, err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionURL, nil)
	if err != nil {
		return "", &schemas.ExecutorConnectivityError{Transient: false, Err: err}
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &schemas.ExecutorConnectivityError{Transient: isTransientNetErr(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Something answered, but it is not a debuggable browser. Retrying
		// will not change that.
		return "", &schemas.ExecutorConnectivityError{
			Transient: false,
			Err:       fmt.Errorf("executor endpoint returned status %d", resp.StatusCode),
		}
	}

	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return "", &schemas.ExecutorConnectivityError{
			Transient: false,
			Err:       fmt.Errorf("invalid DevTools version payload: %w", err),
		}
	}
	if version.WebSocketDebuggerURL == "" {
		return "", &schemas.ExecutorConnectivityError{
			Transient: false,
			Err:       errors.New("DevTools version payload carries no websocket URL"),
		}
	}
	return version.WebSocketDebuggerURL, nil
}

// isTransientNetErr classifies a network failure: timeouts and refused
// connections are worth retrying, everything else (DNS failures, unsupported
// schemes) means the executor is not reachable at all.
func isTransientNetErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	if errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// FallbackProvider launches a private throwaway Chrome with its own profile
// directory. Used only when the persistent attach path is exhausted.
type FallbackProvider struct {
	userDataDir string
	headless    bool
	logger      *zap.Logger
}

var _ schemas.SessionProvider = (*FallbackProvider)(nil)

// NewFallbackProvider builds the throwaway-session provider.
func NewFallbackProvider(cfg config.ExecutorConfig, logger *zap.Logger) *FallbackProvider {
	return &FallbackProvider{
		userDataDir: cfg.UserDataDir,
		headless:    cfg.Headless,
		logger:      logger.Named("fallback_provider"),
	}
}

func (p *FallbackProvider) Flavor() schemas.SessionFlavor { return schemas.FlavorFallback }

// Initialize spawns the fallback browser and waits for its CDP connection.
func (p *FallbackProvider) Initialize(ctx context.Context) (schemas.SessionHandle, error) {
	opts := append([]chromedp.ExecAllocatorOption{},
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserDataDir(p.userDataDir),
	)
	if p.headless {
		opts = append(opts, chromedp.Headless)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := runBounded(ctx, browserCtx, browserCancel, allocCancel); err != nil {
		return nil, &schemas.ExecutorConnectivityError{
			Transient: false,
			Err:       fmt.Errorf("failed to launch fallback browser: %w", err),
		}
	}

	s := &session{
		id:      uuid.New().String(),
		flavor:  schemas.FlavorFallback,
		ctx:     browserCtx,
		cancels: []context.CancelFunc{allocCancel, browserCancel},
	}
	p.logger.Info("Fallback browser launched",
		zap.String("session_id", s.id),
		zap.String("user_data_dir", p.userDataDir))
	return s, nil
}

// runBounded performs the first chromedp.Run against the session's own
// context (which must not carry a deadline, since the browser connection
// lives on it) while honoring the caller's deadline from the outside. On
// timeout every cancel is invoked to unwind the half-built session.
func runBounded(ctx context.Context, browserCtx context.Context, cancels ...context.CancelFunc) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(browserCtx) }()

	unwind := func() {
		for _, cancel := range cancels {
			cancel()
		}
	}

	select {
	case err := <-done:
		if err != nil {
			unwind()
		}
		return err
	case <-ctx.Done():
		unwind()
		<-done
		return ctx.Err()
	}
}

// keepAliveProbe verifies an existing session still answers CDP commands by
// querying its target info.
func keepAliveProbe(handle schemas.SessionHandle, timeout time.Duration) error {
	probeCtx, cancel := context.WithTimeout(handle.Context(), timeout)
	defer cancel()
	return chromedp.Run(probeCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := target.GetTargetInfo().Do(ctx)
		return err
	}))
}
