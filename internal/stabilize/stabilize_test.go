// internal/stabilize/stabilize_test.go
package stabilize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ocqa/journey-cli/api/schemas"
)

// fakeDriver is a scripted in-memory Driver. Each method records its
// calls; click outcomes are consumed from preloaded error queues.
type fakeDriver struct {
	flavor schemas.Flavor

	nativeErrs    []error
	syntheticErrs []error

	nativeClicks    []string
	syntheticClicks []string
	scrolls         []string
	scrollBys       [][2]int
	cleared         []string
	selectedAll     []string
	keys            []string
	values          map[string]string
	waitClickErr    error
}

func newFakeDriver(flavor schemas.Flavor) *fakeDriver {
	return &fakeDriver{flavor: flavor, values: map[string]string{}}
}

func (f *fakeDriver) pop(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

func (f *fakeDriver) Navigate(ctx context.Context, url string) error { return nil }
func (f *fakeDriver) Location(ctx context.Context) (string, error)   { return "", nil }

func (f *fakeDriver) Click(ctx context.Context, sel string) error {
	f.nativeClicks = append(f.nativeClicks, sel)
	return f.pop(&f.nativeErrs)
}

func (f *fakeDriver) DispatchClick(ctx context.Context, sel string) error {
	f.syntheticClicks = append(f.syntheticClicks, sel)
	return f.pop(&f.syntheticErrs)
}

func (f *fakeDriver) SendKeys(ctx context.Context, sel, text string) error {
	f.values[sel] += text
	return nil
}

func (f *fakeDriver) PressKey(ctx context.Context, sel, key string) error {
	f.keys = append(f.keys, key)
	if v := f.values[sel]; len(v) > 0 {
		f.values[sel] = v[:len(v)-1]
	}
	return nil
}

func (f *fakeDriver) SelectAll(ctx context.Context, sel string) error {
	f.selectedAll = append(f.selectedAll, sel)
	return nil
}

func (f *fakeDriver) ClearNative(ctx context.Context, sel string) error {
	f.cleared = append(f.cleared, sel)
	f.values[sel] = ""
	return nil
}

func (f *fakeDriver) SelectOption(ctx context.Context, sel, option string) error { return nil }

func (f *fakeDriver) ClickLabeled(ctx context.Context, sel, label string) error { return nil }

func (f *fakeDriver) Value(ctx context.Context, sel string) (string, error) {
	return f.values[sel], nil
}

func (f *fakeDriver) Text(ctx context.Context, sel string) (string, error) { return "", nil }
func (f *fakeDriver) Attribute(ctx context.Context, sel, name string) (string, bool, error) {
	return "", false, nil
}
func (f *fakeDriver) Visible(ctx context.Context, sel string) (bool, error) { return true, nil }

func (f *fakeDriver) ScrollIntoView(ctx context.Context, sel string) error {
	f.scrolls = append(f.scrolls, sel)
	return nil
}

func (f *fakeDriver) ScrollBy(ctx context.Context, x, y int) error {
	f.scrollBys = append(f.scrollBys, [2]int{x, y})
	return nil
}

func (f *fakeDriver) WaitVisible(ctx context.Context, sel string) error { return nil }

func (f *fakeDriver) WaitClickable(ctx context.Context, sel string) error {
	if f.waitClickErr != nil {
		return f.waitClickErr
	}
	return nil
}

func (f *fakeDriver) WaitLocation(ctx context.Context, match func(string) bool) error { return nil }
func (f *fakeDriver) Evaluate(ctx context.Context, script string, out any) error      { return nil }
func (f *fakeDriver) Flavor() schemas.Flavor                                          { return f.flavor }

var _ schemas.Driver = (*fakeDriver)(nil)

// fastOptions keeps test runtime flat.
func fastOptions() Options {
	return Options{
		Settle:         time.Millisecond,
		RetryPause:     time.Millisecond,
		ReadyInterval:  time.Millisecond,
		ReadyTimeout:   50 * time.Millisecond,
		OverlayTimeout: 50 * time.Millisecond,
	}
}

func newStabilizer(d schemas.Driver, opts Options) *Stabilizer {
	return New(d, zap.NewNop(), opts)
}

func TestClick(t *testing.T) {
	ctx := context.Background()

	t.Run("native click succeeds on first try", func(t *testing.T) {
		d := newFakeDriver(schemas.FlavorChrome)
		s := newStabilizer(d, fastOptions())

		require.NoError(t, s.Click(ctx, "#signup_submit"))
		assert.Equal(t, []string{"#signup_submit"}, d.nativeClicks)
		assert.Empty(t, d.syntheticClicks)
	})

	t.Run("scrolls into view with the header shift before clicking", func(t *testing.T) {
		d := newFakeDriver(schemas.FlavorChrome)
		s := newStabilizer(d, fastOptions())

		require.NoError(t, s.Click(ctx, "#signup_submit"))
		require.Equal(t, []string{"#signup_submit"}, d.scrolls)
		require.Len(t, d.scrollBys, 1)
		assert.Equal(t, [2]int{0, DefaultScrollShift}, d.scrollBys[0])
	})

	t.Run("falls back to synthetic clicks after a native failure", func(t *testing.T) {
		d := newFakeDriver(schemas.FlavorChrome)
		d.nativeErrs = []error{schemas.ErrObscured}
		d.syntheticErrs = []error{schemas.ErrObscured, nil}
		s := newStabilizer(d, fastOptions())

		require.NoError(t, s.Click(ctx, "#pin_submit"))
		assert.Len(t, d.nativeClicks, 1)
		assert.Len(t, d.syntheticClicks, 2)
	})

	t.Run("safari flavor skips the native click entirely", func(t *testing.T) {
		d := newFakeDriver(schemas.FlavorSafari)
		s := newStabilizer(d, fastOptions())

		require.NoError(t, s.Click(ctx, "#pin_submit"))
		assert.Empty(t, d.nativeClicks)
		assert.Len(t, d.syntheticClicks, 1)
	})

	t.Run("surfaces the last error after exhausting attempts", func(t *testing.T) {
		d := newFakeDriver(schemas.FlavorChrome)
		d.nativeErrs = []error{schemas.ErrNotInteractable}
		for i := 0; i < DefaultClickAttempts; i++ {
			d.syntheticErrs = append(d.syntheticErrs, schemas.ErrStaleReference)
		}
		s := newStabilizer(d, fastOptions())

		err := s.Click(ctx, "#flaky")
		require.Error(t, err)
		assert.True(t, errors.Is(err, schemas.ErrStaleReference))
		assert.Len(t, d.syntheticClicks, DefaultClickAttempts)
	})

	t.Run("non-transient synthetic failure stops the retry loop", func(t *testing.T) {
		d := newFakeDriver(schemas.FlavorChrome)
		d.nativeErrs = []error{schemas.ErrObscured}
		d.syntheticErrs = []error{errors.New("browser crashed")}
		s := newStabilizer(d, fastOptions())

		err := s.Click(ctx, "#target")
		require.Error(t, err)
		assert.Len(t, d.syntheticClicks, 1)
	})
}

func TestClearField(t *testing.T) {
	ctx := context.Background()

	t.Run("chrome uses the native clear", func(t *testing.T) {
		d := newFakeDriver(schemas.FlavorChrome)
		d.values["#pin_pin"] = "123456"
		s := newStabilizer(d, fastOptions())

		require.NoError(t, s.ClearField(ctx, "#pin_pin"))
		assert.Equal(t, []string{"#pin_pin"}, d.cleared)
		assert.Empty(t, d.values["#pin_pin"])
	})

	t.Run("firefox selects all then deletes", func(t *testing.T) {
		d := newFakeDriver(schemas.FlavorFirefox)
		s := newStabilizer(d, fastOptions())

		require.NoError(t, s.ClearField(ctx, "#pin_pin"))
		assert.Equal(t, []string{"#pin_pin"}, d.selectedAll)
		assert.Equal(t, []string{"delete"}, d.keys)
		assert.Empty(t, d.cleared)
	})

	t.Run("other flavors delete one character per key pair", func(t *testing.T) {
		d := newFakeDriver(schemas.FlavorOther)
		d.values["#field"] = "abcd"
		s := newStabilizer(d, fastOptions())

		require.NoError(t, s.ClearField(ctx, "#field"))
		// One delete and one backspace per original character.
		assert.Len(t, d.keys, 8)
		assert.Empty(t, d.cleared)
	})
}

func TestWaitForOverlayClear(t *testing.T) {
	ctx := context.Background()

	t.Run("returns once the target is clickable", func(t *testing.T) {
		d := newFakeDriver(schemas.FlavorChrome)
		s := newStabilizer(d, fastOptions())
		assert.NoError(t, s.WaitForOverlayClear(ctx, "#signup_submit"))
	})

	t.Run("reports a stuck overlay", func(t *testing.T) {
		d := newFakeDriver(schemas.FlavorChrome)
		d.waitClickErr = schemas.ErrNotInteractable
		s := newStabilizer(d, fastOptions())

		err := s.WaitForOverlayClear(ctx, "#signup_submit")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "did not clear")
	})
}

func TestRunWhenReady(t *testing.T) {
	ctx := context.Background()

	t.Run("retries transient failures until success", func(t *testing.T) {
		s := newStabilizer(newFakeDriver(schemas.FlavorChrome), fastOptions())

		calls := 0
		err := s.RunWhenReady(ctx, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return schemas.ErrElementNotFound
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after the ready timeout", func(t *testing.T) {
		s := newStabilizer(newFakeDriver(schemas.FlavorChrome), fastOptions())

		err := s.RunWhenReady(ctx, func(ctx context.Context) error {
			return schemas.ErrNotInteractable
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, schemas.ErrNotInteractable))
		assert.Contains(t, err.Error(), "still failing")
	})

	t.Run("stops immediately on a permanent error", func(t *testing.T) {
		s := newStabilizer(newFakeDriver(schemas.FlavorChrome), fastOptions())

		permanent := errors.New("form rejected")
		calls := 0
		err := s.RunWhenReady(ctx, func(ctx context.Context) error {
			calls++
			return permanent
		})
		assert.Equal(t, permanent, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		s := newStabilizer(newFakeDriver(schemas.FlavorChrome), fastOptions())

		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()
		err := s.RunWhenReady(cancelCtx, func(ctx context.Context) error {
			return schemas.ErrElementNotFound
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
