package middleware

import (
	"net/http" // HTTP status codes

	"wallet_ledger/internal/domain" // Roles and error kinds

	"github.com/gin-gonic/gin" // Gin web framework
)

// AdminOnlyMiddleware lets ADMIN and SUPERUSER callers through. The role was
// loaded from the database by JWTAuthMiddleware, never taken from the client.
func AdminOnlyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			abort(c, http.StatusUnauthorized, domain.KindUnauthorized, "Unauthorized")
			return
		}
		if !id.Role.IsAdmin() {
			abort(c, http.StatusForbidden, domain.KindForbidden, "Admin access required")
			return
		}
		c.Next()
	}
}
