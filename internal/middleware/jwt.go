package middleware

import (
	"context"  // Request context for identity lookups
	"net/http" // HTTP status codes
	"strings"  // String manipulation
	"time"     // Response timestamps

	"wallet_ledger/internal/domain" // Identity and error kinds

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logrus for structured logging
)

const identityKey = "identity"

// Verifier resolves a bearer token into the caller's identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*domain.Identity, error)
}

// JWTAuthMiddleware validates the bearer token and stores the caller's identity
func JWTAuthMiddleware(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			abort(c, http.StatusUnauthorized, domain.KindUnauthorized, "Missing or invalid Authorization header")
			return
		}
		tokenStr := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		id, err := v.Verify(c.Request.Context(), tokenStr)
		if err != nil {
			if domain.KindOf(err) != domain.KindUnauthorized {
				logrus.WithError(err).Error("identity lookup failed")
				abort(c, http.StatusInternalServerError, domain.KindInternal, "Internal server error")
				return
			}
			abort(c, http.StatusUnauthorized, domain.KindUnauthorized, err.Error())
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// IdentityFrom returns the identity stored by JWTAuthMiddleware.
func IdentityFrom(c *gin.Context) (*domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*domain.Identity)
	return id, ok && id != nil
}

func abort(c *gin.Context, status int, kind domain.ErrorKind, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success":   false,
		"kind":      kind,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}
