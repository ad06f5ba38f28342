package admin

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"wallet_ledger/internal/domain" // Domain models
	"wallet_ledger/internal/ledger" // Ledger Store
	"wallet_ledger/internal/utils"  // JWT helpers

	"github.com/shopspring/decimal" // Fixed-point money
	"github.com/sirupsen/logrus"    // Logrus for structured logging
	"golang.org/x/crypto/bcrypt"    // Password hashing
	"gorm.io/gorm"                  // GORM ORM library
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{2,49}$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern    = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	digitsPattern   = regexp.MustCompile(`^[0-9]{12,19}$`)
)

// WalletDefaults are applied to the wallet opened at registration.
type WalletDefaults struct {
	Currency            string
	TimeZone            string
	DailyLimit          decimal.Decimal
	MonthlyLimit        decimal.Decimal
	PerTransactionLimit decimal.Decimal
}

// Accounts handles registration, login, token verification and the
// self-service profile and payment method endpoints.
type Accounts struct {
	db       *gorm.DB
	store    *ledger.Store
	secret   string
	ttl      time.Duration
	defaults WalletDefaults
}

func NewAccounts(db *gorm.DB, store *ledger.Store, jwtSecret string, ttl time.Duration, defaults WalletDefaults) *Accounts {
	return &Accounts{db: db, store: store, secret: jwtSecret, ttl: ttl, defaults: defaults}
}

// Registration is the sign-up form.
type Registration struct {
	Username    string
	Email       string
	Password    string
	FullName    string
	PhoneNumber string
	WalletType  string
}

// Session is returned by Register and Login.
type Session struct {
	UserID       uint            `json:"userId"`
	WalletNumber string          `json:"walletNumber"`
	Token        string          `json:"token"`
	UserRole     domain.UserRole `json:"userRole"`
	FullName     string          `json:"fullName"`
}

func isValidPassword(password string) bool {
	return len(password) >= 8 && len(password) <= 64
}

func (r Registration) user() (*domain.User, error) {
	username := strings.ToLower(strings.TrimSpace(r.Username))
	if !usernamePattern.MatchString(username) {
		return nil, domain.Validationf("username must be 3-50 letters, digits or underscores and start with a letter")
	}
	email := strings.ToLower(strings.TrimSpace(r.Email))
	if !emailPattern.MatchString(email) {
		return nil, domain.Validationf("email is not valid")
	}
	if !isValidPassword(r.Password) {
		return nil, domain.Validationf("password must be 8-64 characters")
	}
	fullName := strings.TrimSpace(r.FullName)
	if fullName == "" || len(fullName) > 100 {
		return nil, domain.Validationf("fullName is required and at most 100 characters")
	}
	phone, err := normalizePhone(r.PhoneNumber)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &domain.User{
		Username:    username,
		Email:       email,
		Password:    string(hash),
		FullName:    fullName,
		PhoneNumber: phone,
		Role:        domain.RoleUser,
		KYCStatus:   domain.KYCPending,
		IsActive:    true,
	}, nil
}

// Register creates the user and its wallet together and signs them in.
// New accounts always get the USER role.
func (a *Accounts) Register(ctx context.Context, in Registration) (*Session, error) {
	return a.register(ctx, in, domain.RoleUser)
}

// EnsureSuperuser creates the bootstrap administrator unless the username is taken.
func (a *Accounts) EnsureSuperuser(ctx context.Context, in Registration) error {
	var n int64
	if err := a.db.WithContext(ctx).Model(&domain.User{}).
		Where("username = ?", strings.ToLower(strings.TrimSpace(in.Username))).Count(&n).Error; err != nil {
		return fmt.Errorf("lookup admin: %w", err)
	}
	if n > 0 {
		return nil
	}
	_, err := a.register(ctx, in, domain.RoleSuperuser)
	return err
}

func (a *Accounts) register(ctx context.Context, in Registration, role domain.UserRole) (*Session, error) {
	walletType, err := domain.ParseWalletType(in.WalletType)
	if err != nil {
		return nil, err
	}
	user, err := in.user()
	if err != nil {
		return nil, err
	}
	user.Role = role
	if role != domain.RoleUser {
		user.KYCStatus = domain.KYCVerified
	}

	wallet, err := a.store.CreateAccount(ctx, user, ledger.NewWallet{
		Currency:            a.defaults.Currency,
		Type:                walletType,
		TimeZone:            a.defaults.TimeZone,
		DailyLimit:          a.defaults.DailyLimit,
		MonthlyLimit:        a.defaults.MonthlyLimit,
		PerTransactionLimit: a.defaults.PerTransactionLimit,
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"user_id": user.ID,
		"wallet":  wallet.WalletNumber,
		"role":    user.Role,
	}).Info("User registered")
	return a.session(user, wallet.WalletNumber)
}

// Login authenticates by email or username.
func (a *Accounts) Login(ctx context.Context, login, password string) (*Session, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	invalid := domain.NewError(domain.KindUnauthorized, "invalid credentials")
	if login == "" || password == "" {
		return nil, invalid
	}
	var user domain.User
	err := a.db.WithContext(ctx).Preload("Wallet").
		Where("username = ? OR email = ?", login, login).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, invalid
	}
	if !user.IsActive {
		return nil, domain.NewError(domain.KindUnauthorized, "account is deactivated")
	}
	number := ""
	if user.Wallet != nil {
		number = user.Wallet.WalletNumber
	}
	logrus.WithFields(logrus.Fields{"user_id": user.ID}).Info("User logged in")
	return a.session(&user, number)
}

func (a *Accounts) session(user *domain.User, walletNumber string) (*Session, error) {
	token, err := utils.GenerateJWT(user.ID, string(user.Role), a.secret, a.ttl)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &Session{
		UserID:       user.ID,
		WalletNumber: walletNumber,
		Token:        token,
		UserRole:     user.Role,
		FullName:     user.FullName,
	}, nil
}

// Verify validates a bearer token and resolves the caller. The role comes
// from the database so demotions and deactivations apply to live tokens.
func (a *Accounts) Verify(ctx context.Context, token string) (*domain.Identity, error) {
	claims, err := utils.ParseJWT(token, a.secret)
	if err != nil {
		return nil, domain.NewError(domain.KindUnauthorized, "invalid or expired token")
	}
	var user domain.User
	err = a.db.WithContext(ctx).Select("id", "user_role", "is_active").Take(&user, claims.UserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NewError(domain.KindUnauthorized, "invalid or expired token")
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return nil, domain.NewError(domain.KindUnauthorized, "account is deactivated")
	}
	return &domain.Identity{UserID: user.ID, Role: user.Role}, nil
}

// GetUser loads a user with its wallet.
func (a *Accounts) GetUser(ctx context.Context, id uint) (*domain.User, error) {
	var user domain.User
	err := a.db.WithContext(ctx).Preload("Wallet").Take(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NewError(domain.KindNotFound, "user %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

// ProfileUpdate holds the self-service fields. Nil means unchanged; an empty
// phone number clears it.
type ProfileUpdate struct {
	FullName    *string
	PhoneNumber *string
}

// UpdateProfile changes fullName and phoneNumber only.
func (a *Accounts) UpdateProfile(ctx context.Context, id uint, in ProfileUpdate) (*domain.User, error) {
	updates := map[string]any{}
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" || len(name) > 100 {
			return nil, domain.Validationf("fullName is required and at most 100 characters")
		}
		updates["full_name"] = name
	}
	if in.PhoneNumber != nil {
		phone, err := normalizePhone(*in.PhoneNumber)
		if err != nil {
			return nil, err
		}
		updates["phone_number"] = phone
	}
	if len(updates) == 0 {
		return nil, domain.Validationf("nothing to update")
	}
	updates["updated_at"] = a.store.Now()

	res := a.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(updates)
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return nil, domain.Validationf("phone number is already registered")
	}
	if res.Error != nil {
		return nil, fmt.Errorf("update profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, domain.NewError(domain.KindNotFound, "user %d not found", id)
	}
	return a.GetUser(ctx, id)
}

// NewPaymentMethod is the add-payment-method form.
type NewPaymentMethod struct {
	Type          string
	ProviderName  string
	AccountNumber string
	IsDefault     bool
}

// AddPaymentMethod stores an instrument for userID. Only a masked account
// number is kept. The first method a user adds becomes the default.
func (a *Accounts) AddPaymentMethod(ctx context.Context, userID uint, in NewPaymentMethod) (*domain.PaymentMethod, error) {
	pt, err := domain.ParsePaymentType(in.Type)
	if err != nil {
		return nil, err
	}
	number := strings.ReplaceAll(strings.TrimSpace(in.AccountNumber), " ", "")
	if number == "" {
		return nil, domain.Validationf("accountNumber is required")
	}
	pm := &domain.PaymentMethod{
		UserID:        userID,
		Type:          pt,
		ProviderName:  strings.TrimSpace(in.ProviderName),
		AccountNumber: domain.MaskAccount(number),
		IsDefault:     in.IsDefault,
		Status:        domain.PaymentMethodActive,
	}
	if pt.IsCard() {
		if !digitsPattern.MatchString(number) {
			return nil, domain.Validationf("card number must be 12-19 digits")
		}
		pm.CardLastFour = number[len(number)-4:]
	}

	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner, existing int64
		if err := tx.Model(&domain.User{}).Where("id = ?", userID).Count(&owner).Error; err != nil {
			return fmt.Errorf("lookup user: %w", err)
		}
		if owner == 0 {
			return domain.NewError(domain.KindNotFound, "user %d not found", userID)
		}
		if err := tx.Model(&domain.PaymentMethod{}).Where("user_id = ?", userID).Count(&existing).Error; err != nil {
			return fmt.Errorf("count payment methods: %w", err)
		}
		if existing == 0 {
			pm.IsDefault = true
		}
		if pm.IsDefault && existing > 0 {
			err := tx.Model(&domain.PaymentMethod{}).Where("user_id = ?", userID).Update("is_default", false).Error
			if err != nil {
				return fmt.Errorf("clear default payment method: %w", err)
			}
		}
		if err := tx.Create(pm).Error; err != nil {
			return fmt.Errorf("create payment method: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"user_id": userID, "payment_method_id": pm.ID, "type": pm.Type}).Info("Payment method added")
	return pm, nil
}

// PaymentMethods lists a user's stored instruments, default first.
func (a *Accounts) PaymentMethods(ctx context.Context, userID uint) ([]domain.PaymentMethod, error) {
	var out []domain.PaymentMethod
	err := a.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("is_default desc").Order("id").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	return out, nil
}

func normalizePhone(s string) (*string, error) {
	phone := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(s))
	if phone == "" {
		return nil, nil
	}
	if !phonePattern.MatchString(phone) {
		return nil, domain.Validationf("phoneNumber is not valid")
	}
	return &phone, nil
}
