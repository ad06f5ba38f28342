package api

import (
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Response timestamps

	"wallet_ledger/internal/domain"     // Error kinds
	"wallet_ledger/internal/middleware" // Caller identity
	"wallet_ledger/internal/reporting"  // Paging

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logrus for structured logging
)

// Envelope wraps every response body
type Envelope struct {
	Success   bool             `json:"success"`           // Outcome
	Message   string           `json:"message,omitempty"` // Human readable summary
	Kind      domain.ErrorKind `json:"kind,omitempty"`    // Stable error kind on failure
	Data      any              `json:"data,omitempty"`    // Payload
	Timestamp time.Time        `json:"timestamp"`         // Server time
}

func ok(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Envelope{Success: true, Message: message, Data: data, Timestamp: time.Now().UTC()})
}

// statusFor maps an error kind to its HTTP status
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound, domain.KindWalletNotFound:
		return http.StatusNotFound
	case domain.KindWalletNotActive, domain.KindInvalidStateTransition, domain.KindResourceInUse, domain.KindDuplicateReference:
		return http.StatusConflict
	case domain.KindInsufficientFunds, domain.KindLimitExceeded, domain.KindSettlementDeclined, domain.KindSettlementExpired:
		return http.StatusUnprocessableEntity
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail answers with the error's kind. data, when set, is the FAILED row
// recorded for the rejection. Internal errors are logged and never shown.
func fail(c *gin.Context, err error, data any) {
	kind := domain.KindOf(err)
	message := err.Error()
	if kind == domain.KindInternal {
		logrus.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"error":  err,
		}).Error("Request failed")
		message = "Internal server error"
		data = nil
	}
	c.JSON(statusFor(kind), Envelope{Success: false, Message: message, Kind: kind, Data: data, Timestamp: time.Now().UTC()})
}

func badRequest(c *gin.Context, message string) {
	fail(c, domain.Validationf("%s", message), nil)
}

// caller returns the authenticated identity or answers 401.
func caller(c *gin.Context) (*domain.Identity, bool) {
	id, found := middleware.IdentityFrom(c)
	if !found {
		fail(c, domain.ErrUnauthorized, nil)
		return nil, false
	}
	return id, true
}

// mayAccess reports whether id may act on resources owned by ownerID.
func mayAccess(id *domain.Identity, ownerID uint) bool {
	return id.UserID == ownerID || id.Role.IsAdmin()
}

func forbidden(c *gin.Context) {
	fail(c, domain.NewError(domain.KindForbidden, "you do not have access to this resource"), nil)
}

// uintParam parses a positive numeric path parameter
func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return uint(v), true
}

// pageFrom reads page and page_size; out of range values fall back to defaults
func pageFrom(c *gin.Context) reporting.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return reporting.Page{Page: page, PageSize: size}.Normalize()
}

// reference returns the idempotency reference from the body or the Idempotency-Key header.
func reference(c *gin.Context, body string) string {
	if body != "" {
		return body
	}
	return c.GetHeader("Idempotency-Key")
}
