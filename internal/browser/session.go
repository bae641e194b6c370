// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/ocqa/journey-cli/api/schemas"
	"github.com/ocqa/journey-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Session wraps one chromedp tab context and implements schemas.Driver.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config
	logger *zap.Logger
	flavor schemas.Flavor

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

var _ schemas.SessionHandle = (*Session)(nil)

func newSession(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, logger *zap.Logger, onClose func()) *Session {
	sessionID := uuid.New().String()
	return &Session{
		id:      sessionID,
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		logger:  logger.With(zap.String("session_id", sessionID)),
		flavor:  schemas.ParseFlavor(cfg.Browser.Flavor),
		onClose: onClose,
	}
}

// ID returns the session identifier used in logs and run records.
func (s *Session) ID() string { return s.id }

// Flavor reports the interaction semantics class of the backend.
func (s *Session) Flavor() schemas.Flavor { return s.flavor }

// Close tears down the tab. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return nil
	}
	s.isClosed = true
	s.cancel()
	if s.onClose != nil {
		s.onClose()
	}
	s.logger.Debug("Closed browser session")
	return nil
}

// run executes chromedp actions under the combined session and
// operation contexts with the configured per-step timeout.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	return s.runWithTimeout(ctx, s.stepTimeout(), actions...)
}

func (s *Session) runWithTimeout(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()

	stepCtx, stepCancel := context.WithTimeout(opCtx, timeout)
	defer stepCancel()

	err := chromedp.Run(stepCtx, actions...)
	if err == nil {
		return nil
	}
	// A parent cancellation is not an element problem.
	if opCtx.Err() != nil {
		return opCtx.Err()
	}
	return classify(err, stepCtx)
}

func (s *Session) stepTimeout() time.Duration {
	if s.cfg.Browser.StepTimeout > 0 {
		return s.cfg.Browser.StepTimeout
	}
	return 10 * time.Second
}

// classify maps chromedp failures onto the shared transient classes.
// Query actions poll until the step deadline, so a step timeout with a
// live parent means the element never matched.
func classify(err error, stepCtx context.Context) error {
	if stepCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", schemas.ErrElementNotFound, err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "node not found") || strings.Contains(msg, "could not find node"):
		return fmt.Errorf("%w: %v", schemas.ErrStaleReference, err)
	case strings.Contains(msg, "not visible") || strings.Contains(msg, "not pointer-interactable"):
		return fmt.Errorf("%w: %v", schemas.ErrNotInteractable, err)
	case strings.Contains(msg, "intercept") || strings.Contains(msg, "obscure"):
		return fmt.Errorf("%w: %v", schemas.ErrObscured, err)
	}
	return err
}

// jsLiteral renders a Go string as a JS string literal.
func jsLiteral(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

// -- Navigation --

// Navigate loads the URL, waits for the document, then settles.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating", zap.String("url", url))

	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()

	navTimeout := s.cfg.Network.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 60 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(opCtx, navTimeout)
	defer navCancel()

	if err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation to %s timed out after %s: %w", url, navTimeout, err)
		}
		if opCtx.Err() != nil {
			return opCtx.Err()
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	if wait := s.cfg.Network.PostLoadWait; wait > 0 {
		select {
		case <-time.After(wait):
		case <-opCtx.Done():
			return opCtx.Err()
		}
	}
	return nil
}

// Location returns the current page URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// -- Input --

// Click dispatches a native click on the first match.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// DispatchClick clicks through a script-dispatched event, which lands
// even when an overlay would swallow the native one.
func (s *Session) DispatchClick(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) { return false; }
		el.click();
		return true;
	})()`, jsLiteral(selector))

	var clicked bool
	if err := s.run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("%w: %s", schemas.ErrElementNotFound, selector)
	}
	return nil
}

// SendKeys types text into the element.
func (s *Session) SendKeys(ctx context.Context, selector, text string) error {
	return s.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

// PressKey sends a single editing key by name.
func (s *Session) PressKey(ctx context.Context, selector, key string) error {
	var seq string
	switch key {
	case "backspace":
		seq = kb.Backspace
	case "delete":
		seq = kb.Delete
	case "enter":
		seq = kb.Enter
	case "tab":
		seq = kb.Tab
	default:
		return fmt.Errorf("unsupported key %q", key)
	}
	return s.run(ctx, chromedp.SendKeys(selector, seq, chromedp.ByQuery))
}

// SelectAll selects the element's current text content.
func (s *Session) SelectAll(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) { return false; }
		el.focus();
		if (typeof el.select === 'function') { el.select(); }
		else { document.getSelection().selectAllChildren(el); }
		return true;
	})()`, jsLiteral(selector))

	var ok bool
	if err := s.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", schemas.ErrElementNotFound, selector)
	}
	return nil
}

// ClearNative empties the field with chromedp's clear action.
func (s *Session) ClearNative(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Clear(selector, chromedp.ByQuery))
}

// SelectOption picks an option of a select element by its visible text.
func (s *Session) SelectOption(ctx context.Context, selector, option string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) { return 'missing'; }
		for (const opt of el.options) {
			if (opt.text.trim() === %s) {
				el.value = opt.value;
				el.dispatchEvent(new Event('change', {bubbles: true}));
				return 'ok';
			}
		}
		return 'nooption';
	})()`, jsLiteral(selector), jsLiteral(option))

	var outcome string
	if err := s.run(ctx, chromedp.Evaluate(script, &outcome)); err != nil {
		return err
	}
	switch outcome {
	case "ok":
		return nil
	case "missing":
		return fmt.Errorf("%w: %s", schemas.ErrElementNotFound, selector)
	default:
		return fmt.Errorf("select %s has no option %q", selector, option)
	}
}

// ClickLabeled clicks the input inside the matching container whose
// label text equals label.
func (s *Session) ClickLabeled(ctx context.Context, selector, label string) error {
	script := fmt.Sprintf(`(() => {
		for (const box of document.querySelectorAll(%s)) {
			const lab = box.querySelector('label');
			if (lab && lab.textContent.trim() === %s) {
				const input = box.querySelector('input') || lab;
				input.click();
				return true;
			}
		}
		return false;
	})()`, jsLiteral(selector), jsLiteral(label))

	var clicked bool
	if err := s.run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("%w: %s labeled %q", schemas.ErrElementNotFound, selector, label)
	}
	return nil
}

// -- Reads --

// Value returns the element's current value property.
func (s *Session) Value(ctx context.Context, selector string) (string, error) {
	var v string
	if err := s.run(ctx, chromedp.Value(selector, &v, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return v, nil
}

// Text returns the element's trimmed text content.
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	var v string
	if err := s.run(ctx, chromedp.Text(selector, &v, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

// Attribute returns the named attribute and whether it is present.
func (s *Session) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	var v string
	var ok bool
	if err := s.run(ctx, chromedp.AttributeValue(selector, name, &v, &ok, chromedp.ByQuery)); err != nil {
		return "", false, err
	}
	return v, ok, nil
}

// Visible reports whether the element exists and takes up layout space.
// Unlike the wait actions this returns immediately.
func (s *Session) Visible(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		return !!(el && el.getClientRects().length > 0);
	})()`, jsLiteral(selector))

	var visible bool
	if err := s.run(ctx, chromedp.Evaluate(script, &visible)); err != nil {
		return false, err
	}
	return visible, nil
}

// -- Scrolling --

// ScrollIntoView brings the element into the viewport.
func (s *Session) ScrollIntoView(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.ScrollIntoView(selector, chromedp.ByQuery))
}

// ScrollBy scrolls the window by the given pixel deltas.
func (s *Session) ScrollBy(ctx context.Context, x, y int) error {
	script := fmt.Sprintf(`window.scrollBy(%d, %d)`, x, y)
	return s.run(ctx, chromedp.Evaluate(script, nil))
}

// -- Waits --

// WaitVisible blocks until the element is displayed.
func (s *Session) WaitVisible(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// WaitClickable blocks until the element is displayed and enabled.
func (s *Session) WaitClickable(ctx context.Context, selector string) error {
	return s.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.WaitEnabled(selector, chromedp.ByQuery),
	)
}

// WaitLocation polls the current URL until the predicate holds or the
// context expires.
func (s *Session) WaitLocation(ctx context.Context, match func(url string) bool) error {
	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		var url string
		if err := chromedp.Run(opCtx, chromedp.Location(&url)); err != nil {
			if opCtx.Err() != nil {
				return opCtx.Err()
			}
			return err
		}
		if match(url) {
			return nil
		}
		select {
		case <-ticker.C:
		case <-opCtx.Done():
			return opCtx.Err()
		}
	}
}

// -- Scripting --

// Evaluate runs a script in the page context.
func (s *Session) Evaluate(ctx context.Context, script string, out any) error {
	return s.run(ctx, chromedp.Evaluate(script, out))
}
