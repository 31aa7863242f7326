package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func secured(opt SecurityOptions, pre ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(pre...)
	r.Use(SecurityHeaders(opt))
	r.GET("/api/v1/credits", func(c *gin.Context) { c.String(http.StatusOK, "{}") })
	r.GET("/swagger/index.html", func(c *gin.Context) { c.String(http.StatusOK, "<html>") })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func get(r *gin.Engine, path string, mut ...func(*http.Request)) http.Header {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, m := range mut {
		m(req)
	}
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := get(secured(SecurityOptions{}), "/api/v1/credits")

	if h.Get("X-Content-Type-Options") != "nosniff" ||
		h.Get("X-Frame-Options") != "DENY" ||
		h.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("baseline headers missing: %#v", h)
	}
	if h.Get("Content-Security-Policy") != apiCSP {
		t.Fatalf("CSP = %q", h.Get("Content-Security-Policy"))
	}
	for _, k := range []string{"Permissions-Policy", "Cache-Control", "Strict-Transport-Security", "Access-Control-Expose-Headers"} {
		if h.Get(k) != "" {
			t.Fatalf("unexpected %s: %q", k, h.Get(k))
		}
	}
}

func TestSecurityHeaders_DocsGetRelaxedCSP(t *testing.T) {
	r := secured(SecurityOptions{DocsPrefix: "/swagger"})
	if got := get(r, "/swagger/index.html").Get("Content-Security-Policy"); got != docsCSP {
		t.Fatalf("docs CSP = %q", got)
	}
	if got := get(r, "/api/v1/credits").Get("Content-Security-Policy"); got != apiCSP {
		t.Fatalf("api CSP = %q", got)
	}

	// Without a docs prefix everything is locked down.
	r = secured(SecurityOptions{})
	if got := get(r, "/swagger/index.html").Get("Content-Security-Policy"); got != apiCSP {
		t.Fatalf("CSP with docs disabled = %q", got)
	}
}

func TestSecurityHeaders_PrivatePrefixes(t *testing.T) {
	r := secured(SecurityOptions{PrivatePrefixes: []string{"", "/api/v1/"}})
	if got := get(r, "/api/v1/credits").Get("Cache-Control"); got != "private, no-cache" {
		t.Fatalf("api Cache-Control = %q", got)
	}
	if got := get(r, "/health").Get("Cache-Control"); got != "" {
		t.Fatalf("health should stay cacheable, got %q", got)
	}
}

func TestSecurityHeaders_ExposeRequestID(t *testing.T) {
	cases := []struct {
		name, existing, want string
	}{
		{"added", "", "X-Request-ID"},
		{"appended", "Foo", "Foo, X-Request-ID"},
		{"not duplicated", "X-Request-ID, Foo", "X-Request-ID, Foo"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pre := func(c *gin.Context) {
				c.Header(requestIDHeader, "rid-1")
				if tc.existing != "" {
					c.Header("Access-Control-Expose-Headers", tc.existing)
				}
				c.Next()
			}
			got := get(secured(SecurityOptions{}, pre), "/health").Get("Access-Control-Expose-Headers")
			if got != tc.want {
				t.Fatalf("expose = %q; want %q", got, tc.want)
			}
		})
	}
}

func TestSecurityHeaders_PolicyAndHSTS(t *testing.T) {
	r := secured(SecurityOptions{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour, EnablePolicy: true})

	h := get(r, "/health", func(req *http.Request) { req.TLS = &tls.ConnectionState{} })
	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("missing policy headers: %#v", h)
	}
	if got := h.Get("Strict-Transport-Security"); got != "max-age=86400; includeSubDomains; preload" {
		t.Fatalf("HSTS = %q", got)
	}

	h = get(r, "/health", func(req *http.Request) { req.Header.Set("X-Forwarded-Proto", "HTTPS") })
	if h.Get("Strict-Transport-Security") == "" {
		t.Fatalf("expected HSTS behind TLS-terminating proxy")
	}

	if get(r, "/health").Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS must never be sent over plain HTTP")
	}
}

func TestSecurityHeaders_DefaultHSTSMaxAge(t *testing.T) {
	r := secured(SecurityOptions{EnableHSTS: true})
	h := get(r, "/health", func(req *http.Request) { req.TLS = &tls.ConnectionState{} })
	if got := h.Get("Strict-Transport-Security"); got != "max-age=15552000; includeSubDomains; preload" {
		t.Fatalf("HSTS = %q", got)
	}
}
