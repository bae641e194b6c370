// internal/stabilize/stabilize.go

// Package stabilize wraps a browser driver with the retry and settling
// behavior flaky pages need: scroll-adjusted clicks with a synthetic
// fallback, per-backend field clearing, and bounded condition waits.
package stabilize

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ocqa/journey-cli/api/schemas"
)

// Defaults for the retry and wait bounds.
const (
	// DefaultClickAttempts bounds the synthetic-click retry loop.
	DefaultClickAttempts = 10
	// DefaultScrollShift keeps clicked elements clear of sticky
	// headers by scrolling 80px above them.
	DefaultScrollShift = -80
	// DefaultOverlayTimeout bounds WaitForOverlayClear.
	DefaultOverlayTimeout = 15 * time.Second
	// DefaultReadyTimeout and DefaultReadyInterval bound RunWhenReady.
	DefaultReadyTimeout  = 10 * time.Second
	DefaultReadyInterval = 500 * time.Millisecond

	defaultSettle     = 500 * time.Millisecond
	defaultRetryPause = 1 * time.Second
)

// Options tunes the stabilizer. Zero values take the defaults above;
// tests shrink the pauses.
type Options struct {
	ClickAttempts  int
	ScrollShift    int
	Settle         time.Duration
	RetryPause     time.Duration
	OverlayTimeout time.Duration
	ReadyTimeout   time.Duration
	ReadyInterval  time.Duration
}

func (o Options) withDefaults() Options {
	if o.ClickAttempts <= 0 {
		o.ClickAttempts = DefaultClickAttempts
	}
	if o.ScrollShift == 0 {
		o.ScrollShift = DefaultScrollShift
	}
	if o.Settle <= 0 {
		o.Settle = defaultSettle
	}
	if o.RetryPause <= 0 {
		o.RetryPause = defaultRetryPause
	}
	if o.OverlayTimeout <= 0 {
		o.OverlayTimeout = DefaultOverlayTimeout
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = DefaultReadyTimeout
	}
	if o.ReadyInterval <= 0 {
		o.ReadyInterval = DefaultReadyInterval
	}
	return o
}

// Stabilizer layers retries over a Driver. One instance per session;
// it carries no state beyond its configuration.
type Stabilizer struct {
	d      schemas.Driver
	logger *zap.Logger
	opts   Options
}

// New builds a Stabilizer over the driver.
func New(d schemas.Driver, logger *zap.Logger, opts Options) *Stabilizer {
	return &Stabilizer{
		d:      d,
		logger: logger.Named("stabilize"),
		opts:   opts.withDefaults(),
	}
}

// Driver exposes the wrapped driver for callers that need raw access.
func (s *Stabilizer) Driver() schemas.Driver { return s.d }

// Click brings the target into view (shifted clear of fixed headers),
// lets the page settle, and clicks. When the native click fails or the
// backend flavor needs it, it falls back to script-dispatched clicks,
// retrying up to the attempt bound. Elements that went stale or are
// briefly obscured are retried by selector; the last error surfaces
// once attempts run out.
func (s *Stabilizer) Click(ctx context.Context, selector string) error {
	if err := s.ScrollTo(ctx, selector, s.opts.ScrollShift); err != nil {
		// Scrolling is best-effort; the click decides.
		s.logger.Debug("Pre-click scroll failed", zap.String("selector", selector), zap.Error(err))
	}
	if err := s.pause(ctx, s.opts.Settle); err != nil {
		return err
	}

	var err error
	if !s.d.Flavor().Synthetic() {
		err = s.d.Click(ctx, selector)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("Native click failed, switching to synthetic clicks",
			zap.String("selector", selector), zap.Error(err))
	}

	for attempt := 1; attempt <= s.opts.ClickAttempts; attempt++ {
		err = s.d.DispatchClick(ctx, selector)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !schemas.Transient(err) {
			return fmt.Errorf("click on %s failed: %w", selector, err)
		}
		s.logger.Debug("Synthetic click retry",
			zap.String("selector", selector),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if perr := s.pause(ctx, s.opts.RetryPause); perr != nil {
			return perr
		}
	}
	return fmt.Errorf("click on %s failed after %d attempts: %w", selector, s.opts.ClickAttempts, err)
}

// ClearField empties a text field using the strategy that actually
// works on the backend: the native clear on chrome-like backends, a
// select-all key chord on gecko, and a per-character delete loop
// everywhere else.
func (s *Stabilizer) ClearField(ctx context.Context, selector string) error {
	if err := s.pause(ctx, s.opts.Settle); err != nil {
		return err
	}

	switch s.d.Flavor() {
	case schemas.FlavorChrome:
		return s.d.ClearNative(ctx, selector)
	case schemas.FlavorFirefox:
		if err := s.d.SelectAll(ctx, selector); err != nil {
			return err
		}
		return s.d.PressKey(ctx, selector, "delete")
	default:
		value, err := s.d.Value(ctx, selector)
		if err != nil {
			return err
		}
		// Cursor position is unknown, so chase the content from both
		// sides one character at a time.
		for range value {
			if err := s.d.PressKey(ctx, selector, "delete"); err != nil {
				return err
			}
			if err := s.d.PressKey(ctx, selector, "backspace"); err != nil {
				return err
			}
		}
		return nil
	}
}

// ScrollTo brings the target into view, then shifts the window by the
// given pixel offset (negative values scroll up).
func (s *Stabilizer) ScrollTo(ctx context.Context, selector string, shift int) error {
	if err := s.d.ScrollIntoView(ctx, selector); err != nil {
		return err
	}
	if shift == 0 {
		return nil
	}
	return s.d.ScrollBy(ctx, 0, shift)
}

// WaitForOverlayClear blocks until the target is clickable, meaning any
// loading overlay above it has gone, then lets animations settle.
func (s *Stabilizer) WaitForOverlayClear(ctx context.Context, selector string) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.OverlayTimeout)
	defer cancel()

	if err := s.d.WaitClickable(waitCtx, selector); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("overlay above %s did not clear within %s: %w", selector, s.opts.OverlayTimeout, err)
	}
	return s.pause(ctx, s.opts.RetryPause)
}

// RunWhenReady retries a composite action as a unit until it stops
// failing transiently or the ready timeout expires. Non-transient
// errors stop the loop immediately.
func (s *Stabilizer) RunWhenReady(ctx context.Context, action func(ctx context.Context) error) error {
	deadline := time.Now().Add(s.opts.ReadyTimeout)

	var err error
	for {
		err = action(ctx)
		if err == nil {
			return s.pause(ctx, s.opts.RetryPause)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !schemas.Transient(err) {
			return err
		}
		if time.Now().After(deadline) {
			break
		}
		if perr := s.pause(ctx, s.opts.ReadyInterval); perr != nil {
			return perr
		}
	}
	return fmt.Errorf("action still failing after %s: %w", s.opts.ReadyTimeout, err)
}

func (s *Stabilizer) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
