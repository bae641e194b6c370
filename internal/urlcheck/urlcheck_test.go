// internal/urlcheck/urlcheck_test.go
package urlcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ocqa/journey-cli/api/schemas"
)

func fastChecker(flavor schemas.Flavor) *Checker {
	c := New(flavor, zap.NewNop())
	c.Retries = 2
	c.Pause = time.Millisecond
	return c
}

func TestCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy link passes on HEAD", func(t *testing.T) {
		var method atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method.Store(r.Method)
		}))
		defer srv.Close()

		require.NoError(t, fastChecker(schemas.FlavorChrome).Check(ctx, srv.URL))
		assert.Equal(t, http.MethodHead, method.Load())
	})

	t.Run("sends the flavor's user agent", func(t *testing.T) {
		var ua atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ua.Store(r.Header.Get("User-Agent"))
		}))
		defer srv.Close()

		require.NoError(t, fastChecker(schemas.FlavorFirefox).Check(ctx, srv.URL))
		assert.Contains(t, ua.Load(), "Firefox")
	})

	t.Run("falls back to GET when HEAD is forbidden", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		assert.NoError(t, fastChecker(schemas.FlavorChrome).Check(ctx, srv.URL))
	})

	t.Run("retries through a transient 503", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		require.NoError(t, fastChecker(schemas.FlavorChrome).Check(ctx, srv.URL))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("persistent CDN error is a warning, not a failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Cache", "Error from cloudfront")
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		assert.NoError(t, fastChecker(schemas.FlavorChrome).Check(ctx, srv.URL))
	})

	t.Run("genuine 404 fails", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		err := fastChecker(schemas.FlavorChrome).Check(ctx, srv.URL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
	})
}

func TestCheckAll(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer bad.Close()

	failures := fastChecker(schemas.FlavorChrome).CheckAll(context.Background(),
		[]string{good.URL, bad.URL, good.URL})
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Error(), "status 410")
}
