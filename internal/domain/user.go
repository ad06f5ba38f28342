package domain

import (
	"strings"
	"time" // Timestamps
)

// UserRole is the privilege level carried by an identity.
type UserRole string

const (
	RoleUser      UserRole = "USER"
	RoleAdmin     UserRole = "ADMIN"
	RoleSuperuser UserRole = "SUPERUSER"
)

// IsAdmin reports whether the role may use administrative endpoints.
func (r UserRole) IsAdmin() bool { return r == RoleAdmin || r == RoleSuperuser }

// ParseUserRole validates a client supplied role name.
func ParseUserRole(s string) (UserRole, error) {
	r := UserRole(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleUser, RoleAdmin, RoleSuperuser:
		return r, nil
	}
	return "", Validationf("unknown user role %q", s)
}

// KYCStatus tracks identity verification.
type KYCStatus string

const (
	KYCPending  KYCStatus = "PENDING"
	KYCVerified KYCStatus = "VERIFIED"
	KYCRejected KYCStatus = "REJECTED"
)

// ParseKYCStatus validates a client supplied KYC status.
func ParseKYCStatus(s string) (KYCStatus, error) {
	k := KYCStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case KYCPending, KYCVerified, KYCRejected:
		return k, nil
	}
	return "", Validationf("unknown KYC status %q", s)
}

// User Model
type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`                                      // Primary key
	Username    string    `gorm:"size:50;uniqueIndex;not null" json:"username"`              // Unique login name
	Email       string    `gorm:"size:100;uniqueIndex;not null" json:"email"`                // Unique email
	Password    string    `gorm:"not null" json:"-"`                                         // Hashed password
	FullName    string    `gorm:"size:100;not null" json:"fullName"`                         // Display name
	PhoneNumber *string   `gorm:"size:20;uniqueIndex" json:"phoneNumber,omitempty"`          // Optional, unique when set
	Role        UserRole  `gorm:"column:user_role;size:20;not null" json:"userRole"`         // Privilege level
	KYCStatus   KYCStatus `gorm:"column:kyc_status;size:20;not null" json:"kycStatus"`       // Verification state
	IsActive    bool      `gorm:"not null" json:"isActive"`                                  // Deactivated users cannot authenticate
	Wallet      *Wallet   `gorm:"foreignKey:UserID" json:"wallet,omitempty"`                 // One-to-one relationship with Wallet
	CreatedAt   time.Time `json:"createdAt"`                                                 // Creation time
	UpdatedAt   time.Time `json:"updatedAt"`                                                 // Last change
}

// Identity is the already-validated caller attached to a request.
type Identity struct {
	UserID uint
	Role   UserRole
}
