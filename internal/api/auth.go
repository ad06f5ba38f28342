package api

import (
	"net/http" // HTTP status codes

	"wallet_ledger/internal/admin"     // Accounts service
	"wallet_ledger/internal/reporting" // User listing
	"wallet_ledger/internal/utils"     // Cache keys

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logrus for structured logging
)

const usersFamily = "admin:users"

// Request struct for registration
type RegisterRequest struct {
	Username    string `json:"username" binding:"required"` // Username must be provided
	Email       string `json:"email" binding:"required"`    // Email must be provided
	Password    string `json:"password" binding:"required"` // Password must be provided
	FullName    string `json:"fullName" binding:"required"` // Display name
	PhoneNumber string `json:"phoneNumber"`                 // Optional phone number
	WalletType  string `json:"walletType"`                  // PERSONAL when empty
}

// Request struct for login. Either username or email identifies the user.
type LoginRequest struct {
	Username string `json:"username"`                    // Username or email
	Email    string `json:"email"`                       // Email or username
	Password string `json:"password" binding:"required"` // Password must be provided
}

// Request struct for self-service profile changes
type ProfileRequest struct {
	FullName    *string `json:"fullName"`    // New display name
	PhoneNumber *string `json:"phoneNumber"` // New phone number, empty clears it
}

// Request struct for administrative user changes
type AdminUserRequest struct {
	KYCStatus *string `json:"kycStatus"` // PENDING, VERIFIED or REJECTED
	UserRole  *string `json:"userRole"`  // USER, ADMIN or SUPERUSER
	IsActive  *bool   `json:"isActive"`  // false revokes access
}

// Request struct for adding a payment method
type PaymentMethodRequest struct {
	PaymentType   string `json:"paymentType" binding:"required"`   // Instrument kind
	ProviderName  string `json:"providerName"`                     // Bank or network
	AccountNumber string `json:"accountNumber" binding:"required"` // Stored masked
	IsDefault     bool   `json:"isDefault"`                        // Make this the default
}

// RegisterHandler creates a user with a wallet and returns a session
func RegisterHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		session, err := d.Accounts.Register(c.Request.Context(), admin.Registration{
			Username:    req.Username,
			Email:       req.Email,
			Password:    req.Password,
			FullName:    req.FullName,
			PhoneNumber: req.PhoneNumber,
			WalletType:  req.WalletType,
		})
		if err != nil {
			fail(c, err, nil)
			return
		}
		bumpUsers(c, d)
		ok(c, http.StatusCreated, "User registered successfully", session)
	}
}

// LoginHandler authenticates a user and returns a JWT token
func LoginHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		login := req.Username
		if login == "" {
			login = req.Email
		}
		if login == "" {
			badRequest(c, "username or email is required")
			return
		}
		session, err := d.Accounts.Login(c.Request.Context(), login, req.Password)
		if err != nil {
			fail(c, err, nil)
			return
		}
		ok(c, http.StatusOK, "Login successful", session)
	}
}

// GetUserHandler returns a user with its wallet. Owners and admins only.
func GetUserHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, found := caller(c)
		if !found {
			return
		}
		userID, valid := uintParam(c, "id")
		if !valid {
			return
		}
		if !mayAccess(id, userID) {
			forbidden(c)
			return
		}
		user, err := d.Accounts.GetUser(c.Request.Context(), userID)
		if err != nil {
			fail(c, err, nil)
			return
		}
		ok(c, http.StatusOK, "", user)
	}
}

// UpdateProfileHandler changes fullName and phoneNumber
func UpdateProfileHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, found := caller(c)
		if !found {
			return
		}
		userID, valid := uintParam(c, "id")
		if !valid {
			return
		}
		if !mayAccess(id, userID) {
			forbidden(c)
			return
		}
		var req ProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		user, err := d.Accounts.UpdateProfile(c.Request.Context(), userID, admin.ProfileUpdate{
			FullName:    req.FullName,
			PhoneNumber: req.PhoneNumber,
		})
		if err != nil {
			fail(c, err, nil)
			return
		}
		bumpUsers(c, d)
		ok(c, http.StatusOK, "Profile updated", user)
	}
}

// UpdateUserAdminHandler changes KYC status, role and active flag
func UpdateUserAdminHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, found := caller(c)
		if !found {
			return
		}
		userID, valid := uintParam(c, "id")
		if !valid {
			return
		}
		var req AdminUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		user, err := d.Admin.UpdateUserAdminFields(c.Request.Context(), userID, admin.UserUpdate{
			KYCStatus: req.KYCStatus,
			Role:      req.UserRole,
			IsActive:  req.IsActive,
		}, id.UserID)
		if err != nil {
			fail(c, err, nil)
			return
		}
		bumpUsers(c, d)
		ok(c, http.StatusOK, "User updated", user)
	}
}

// ListUsersHandler pages every user. Pages are cached until the next user write.
func ListUsersHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		page := pageFrom(c)
		key := utils.PageKey(usersFamily, d.Cache.Version(ctx, usersFamily), page.Page, page.PageSize)

		var cached reporting.UserPage
		if hit, _ := d.Cache.Get(ctx, key, &cached); hit {
			ok(c, http.StatusOK, "", &cached)
			return
		}
		users, err := d.Reports.ListUsers(ctx, page)
		if err != nil {
			fail(c, err, nil)
			return
		}
		if err := d.Cache.Set(ctx, key, users); err != nil {
			logrus.WithError(err).Warn("Failed to cache user page")
		}
		ok(c, http.StatusOK, "", users)
	}
}

// ListPaymentMethodsHandler lists a user's stored instruments
func ListPaymentMethodsHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, found := caller(c)
		if !found {
			return
		}
		userID, valid := uintParam(c, "id")
		if !valid {
			return
		}
		if !mayAccess(id, userID) {
			forbidden(c)
			return
		}
		methods, err := d.Accounts.PaymentMethods(c.Request.Context(), userID)
		if err != nil {
			fail(c, err, nil)
			return
		}
		ok(c, http.StatusOK, "", methods)
	}
}

// AddPaymentMethodHandler stores an instrument for the user
func AddPaymentMethodHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, found := caller(c)
		if !found {
			return
		}
		userID, valid := uintParam(c, "id")
		if !valid {
			return
		}
		if !mayAccess(id, userID) {
			forbidden(c)
			return
		}
		var req PaymentMethodRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		method, err := d.Accounts.AddPaymentMethod(c.Request.Context(), userID, admin.NewPaymentMethod{
			Type:          req.PaymentType,
			ProviderName:  req.ProviderName,
			AccountNumber: req.AccountNumber,
			IsDefault:     req.IsDefault,
		})
		if err != nil {
			fail(c, err, nil)
			return
		}
		ok(c, http.StatusCreated, "Payment method added", method)
	}
}

func bumpUsers(c *gin.Context, d *Deps) {
	if err := d.Cache.Bump(c.Request.Context(), usersFamily); err != nil {
		logrus.WithError(err).Warn("Failed to invalidate user pages")
	}
}
