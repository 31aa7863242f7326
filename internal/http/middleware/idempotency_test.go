package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seen records what the handler behind the validator observed.
type seen struct {
	key           string
	hasKey        bool
	replay        bool
	bypass        bool
	handlerCalled bool
}

func idemRouter(opts IdempotencyOptions, lookup IdempotencyLookup, user string, out *seen) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	if user != "" {
		r.Use(func(c *gin.Context) { c.Set(ctxKeyUserID, user); c.Next() })
	}
	r.Use(IdempotencyValidator(opts, lookup))
	h := func(c *gin.Context) {
		out.key, out.hasKey = GetIdempotencyKey(c)
		out.replay, out.bypass = IsReplay(c), IsRateBypass(c)
		out.handlerCalled = true
		c.Status(http.StatusOK)
	}
	r.POST("/api/v1/extractions", h)
	r.GET("/api/v1/extractions", h)
	return r
}

func sendKey(r *gin.Engine, method, key string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/api/v1/extractions", nil)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyValidator_Validation(t *testing.T) {
	cases := []struct {
		name    string
		opts    IdempotencyOptions
		method  string
		key     string
		status  int
		wantKey string
	}{
		{name: "no header", method: http.MethodPost, status: http.StatusOK},
		{name: "default pattern", method: http.MethodPost, key: "retry-7f3a:1", status: http.StatusOK, wantKey: "retry-7f3a:1"},
		{name: "surrounding space trimmed", method: http.MethodPost, key: "  k1 ", status: http.StatusOK, wantKey: "k1"},
		{name: "too long", opts: IdempotencyOptions{MaxLen: 5}, method: http.MethodPost, key: "abcdef", status: http.StatusBadRequest},
		{name: "default max length", method: http.MethodPost, key: strings.Repeat("a", 201), status: http.StatusBadRequest},
		{name: "bad characters", method: http.MethodPost, key: "a b/c", status: http.StatusBadRequest},
		{name: "custom pattern", opts: IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, method: http.MethodPost, key: "abc123", status: http.StatusBadRequest},
		{name: "reads ignore the header", method: http.MethodGet, key: "a b/c", status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got seen
			w := sendKey(idemRouter(tc.opts, nil, "", &got), tc.method, tc.key)
			require.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusBadRequest {
				assert.False(t, got.handlerCalled)
				var body map[string]any
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, "bad_idempotency_key", body["code"])
				assert.Equal(t, w.Header().Get(requestIDHeader), body["request_id"])
				return
			}
			assert.Equal(t, tc.wantKey, got.key)
			assert.Equal(t, tc.wantKey != "", got.hasKey)
			assert.False(t, got.replay)
		})
	}
}

func TestIdempotencyValidator_Lookup(t *testing.T) {
	t.Run("anonymous skips lookup", func(t *testing.T) {
		var got seen
		lookup := func(context.Context, string, string, string, time.Time) (bool, error) {
			t.Fatalf("lookup must not run without a user")
			return false, nil
		}
		require.Equal(t, http.StatusOK, sendKey(idemRouter(IdempotencyOptions{}, lookup, "", &got), http.MethodPost, "k0").Code)
		assert.True(t, got.hasKey, "key is still stashed")
	})

	t.Run("miss", func(t *testing.T) {
		var got seen
		lookup := func(_ context.Context, userID, route, key string, now time.Time) (bool, error) {
			assert.Equal(t, "cook-1", userID)
			assert.Equal(t, "/api/v1/extractions", route)
			assert.Equal(t, "k1", key)
			assert.Equal(t, time.UTC, now.Location())
			return false, nil
		}
		require.Equal(t, http.StatusOK, sendKey(idemRouter(IdempotencyOptions{}, lookup, "cook-1", &got), http.MethodPost, "k1").Code)
		assert.False(t, got.replay)
		assert.False(t, got.bypass)
	})

	t.Run("hit flags replay and rate bypass", func(t *testing.T) {
		var got seen
		lookup := func(context.Context, string, string, string, time.Time) (bool, error) { return true, nil }
		require.Equal(t, http.StatusOK, sendKey(idemRouter(IdempotencyOptions{}, lookup, "cook-1", &got), http.MethodPost, "k2").Code)
		assert.True(t, got.replay)
		assert.True(t, got.bypass)
	})

	t.Run("error is logged and treated as a miss", func(t *testing.T) {
		buf := captureLogger(t)
		var got seen
		lookup := func(context.Context, string, string, string, time.Time) (bool, error) {
			return false, errors.New("database is locked")
		}
		require.Equal(t, http.StatusOK, sendKey(idemRouter(IdempotencyOptions{}, lookup, "cook-1", &got), http.MethodPost, "k3").Code)
		assert.True(t, got.handlerCalled)
		assert.False(t, got.replay)
		assert.Contains(t, buf.String(), "idempotency lookup failed")
		assert.Contains(t, buf.String(), "database is locked")
	})
}

func TestIdempotencyAccessors_WrongTypes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := GetIdempotencyKey(c)
	assert.False(t, ok)
	assert.False(t, IsReplay(c))

	c.Set(ctxKeyIdemKey, 123)
	_, ok = GetIdempotencyKey(c)
	assert.False(t, ok)

	c.Set(ctxKeyIdemReplay, "yes")
	assert.False(t, IsReplay(c))
}
