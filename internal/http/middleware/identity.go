// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's identity. Authentication itself happens
// upstream (gateway or auth proxy); the service trusts the X-User-ID header
// it forwards and only validates its shape. Engine callbacks use a separate
// shared bearer token.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID carries the authenticated user id.
const HeaderUserID = "X-User-ID"

// ctxKeyUserID is read by the logger and the rate limiter as well.
const ctxKeyUserID = "userID"

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._@:\-]{1,64}$`)

// UserIdentity stashes a well-formed X-User-ID in the Gin context. It never
// rejects; pair it with RequireUser on routes that need a caller.
func UserIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); userIDPattern.MatchString(uid) {
			c.Set(ctxKeyUserID, uid)
		}
		c.Next()
	}
}

// RequireUser aborts with 401 when no user identity was resolved.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserIDFrom(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "missing or invalid " + HeaderUserID + " header",
			})
			return
		}
		c.Next()
	}
}

// UserIDFrom returns the user id set by UserIdentity, or "".
func UserIDFrom(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// InternalAuth guards engine callback routes with a shared bearer token.
// An empty token disables the routes entirely (404), so an unset secret
// never means open access.
func InternalAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "not_found",
				"message":    "route not found",
			})
			return
		}
		got, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "invalid internal token",
			})
			return
		}
		c.Next()
	}
}
