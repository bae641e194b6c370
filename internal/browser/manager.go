// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/ocqa/journey-cli/api/schemas"
	"github.com/ocqa/journey-cli/internal/config"
)

// Manager owns the browser process via the chromedp exec allocator and
// hands out isolated sessions (one tab each).
type Manager struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	cfg         *config.Config
	logger      *zap.Logger

	mu       sync.Mutex
	sessions sync.WaitGroup
	closed   bool
}

var _ schemas.BrowserManager = (*Manager)(nil)

// NewManager builds the allocator from configuration. The browser
// process itself starts lazily with the first session.
func NewManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("browser manager requires a configuration")
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !cfg.Browser.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.Browser.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.Browser.UserAgent))
	}
	if cfg.Browser.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.Browser.ExecPath))
	}
	// Journeys fill real forms; disable the prompts that steal focus.
	opts = append(opts,
		chromedp.Flag("disable-save-password-bubble", true),
		chromedp.Flag("disable-translate", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)

	return &Manager{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		cfg:         cfg,
		logger:      logger.Named("browser"),
	}, nil
}

// NewSession opens a fresh tab with its own chromedp context.
func (m *Manager) NewSession(ctx context.Context) (schemas.SessionHandle, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("browser manager is shut down")
	}
	m.sessions.Add(1)
	m.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx)

	// Force target creation now so a broken allocator fails here, not
	// on the first interaction. The fixed viewport keeps scroll offsets
	// deterministic across hosts.
	if err := chromedp.Run(tabCtx, emulation.SetDeviceMetricsOverride(1280, 960, 1, false)); err != nil {
		tabCancel()
		m.sessions.Done()
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	s := newSession(tabCtx, tabCancel, m.cfg, m.logger, m.sessions.Done)
	m.logger.Debug("Opened browser session", zap.String("session_id", s.ID()))
	return s, nil
}

// Shutdown closes all open sessions and the browser process. It waits
// for sessions up to the context deadline (or 15s when none is set).
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	grace := 15 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		grace = time.Until(dl)
	}

	done := make(chan struct{})
	go func() {
		m.sessions.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(grace):
		err = fmt.Errorf("browser shutdown timed out after %s with sessions still open", grace)
	}

	m.allocCancel()
	m.logger.Debug("Browser manager shut down")
	return err
}
