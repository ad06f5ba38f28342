package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"wallet_ledger/internal/domain" // Domain models

	"github.com/shopspring/decimal" // Fixed-point money
	"github.com/sirupsen/logrus"    // Logrus for structured logging
	"gorm.io/gorm"                  // GORM ORM library
	"gorm.io/gorm/clause"           // Row locking
)

// Store is the single owner of wallet balances and transaction records.
// Every balance change goes through Atomic.
type Store struct {
	db      *gorm.DB
	locks   *lockTable
	now     func() time.Time
	retries int
}

type Option func(*Store)

// WithClock replaces the wall clock, mainly for tests that cross day or month boundaries.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithConflictRetries bounds how often a unit is re-run after a storage conflict.
func WithConflictRetries(n int) Option {
	return func(s *Store) { s.retries = n }
}

func NewStore(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:      db,
		locks:   newLockTable(),
		now:     time.Now,
		retries: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store clock in UTC.
func (s *Store) Now() time.Time { return s.now().UTC() }

// NewWallet describes the wallet opened together with a new user.
type NewWallet struct {
	Currency            string
	Type                domain.WalletType
	TimeZone            string
	DailyLimit          decimal.Decimal
	MonthlyLimit        decimal.Decimal
	PerTransactionLimit decimal.Decimal
}

const walletNumberAttempts = 10

// CreateAccount inserts user and its wallet in one transaction. Either both
// exist afterwards or neither does.
func (s *Store) CreateAccount(ctx context.Context, user *domain.User, nw NewWallet) (*domain.Wallet, error) {
	var wallet *domain.Wallet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.Now()
		user.CreatedAt, user.UpdatedAt = now, now
		if err := tx.Omit("Wallet").Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.Validationf("username, email or phone number is already registered")
			}
			return fmt.Errorf("create user: %w", err)
		}

		number, err := freeWalletNumber(tx)
		if err != nil {
			return err
		}
		wallet = &domain.Wallet{
			WalletNumber:        number,
			UserID:              user.ID,
			Currency:            nw.Currency,
			Balance:             decimal.Zero,
			Status:              domain.WalletActive,
			Type:                nw.Type,
			TimeZone:            nw.TimeZone,
			DailyLimit:          nw.DailyLimit,
			MonthlyLimit:        nw.MonthlyLimit,
			PerTransactionLimit: nw.PerTransactionLimit,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := tx.Create(wallet).Error; err != nil {
			return fmt.Errorf("create wallet: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	user.Wallet = wallet
	return wallet, nil
}

func freeWalletNumber(tx *gorm.DB) (string, error) {
	for i := 0; i < walletNumberAttempts; i++ {
		number := fmt.Sprintf("WLT%010d", rand.Int63n(10_000_000_000))
		var count int64
		if err := tx.Model(&domain.Wallet{}).Where("wallet_number = ?", number).Count(&count).Error; err != nil {
			return "", fmt.Errorf("check wallet number: %w", err)
		}
		if count == 0 {
			return number, nil
		}
	}
	return "", errors.New("could not allocate a unique wallet number")
}

// GetWallet loads a wallet by its client-facing number.
func (s *Store) GetWallet(ctx context.Context, walletNumber string) (*domain.Wallet, error) {
	return s.findWallet(ctx, "wallet_number = ?", walletNumber)
}

func (s *Store) GetWalletByID(ctx context.Context, id uint) (*domain.Wallet, error) {
	return s.findWallet(ctx, "id = ?", id)
}

func (s *Store) GetWalletByUser(ctx context.Context, userID uint) (*domain.Wallet, error) {
	return s.findWallet(ctx, "user_id = ?", userID)
}

func (s *Store) findWallet(ctx context.Context, query string, arg any) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := s.db.WithContext(ctx).Where(query, arg).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	return &w, nil
}

// GetTransaction loads a transaction by reference.
func (s *Store) GetTransaction(ctx context.Context, reference string) (*domain.Transaction, error) {
	var t domain.Transaction
	if err := s.db.WithContext(ctx).Where("transaction_ref = ?", reference).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewError(domain.KindNotFound, "transaction %s not found", reference)
		}
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	return &t, nil
}

// PendingBefore lists PENDING rows created before cutoff, oldest first.
func (s *Store) PendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error) {
	var rows []domain.Transaction
	err := s.db.WithContext(ctx).
		Where("transaction_status = ? AND created_at < ?", domain.StatusPending, cutoff.UTC()).
		Order("created_at").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return rows, nil
}

// Reader returns a lock-free reader over committed data.
func (s *Store) Reader(ctx context.Context) *Reader {
	return &Reader{db: s.db.WithContext(ctx)}
}

// Atomic runs fn as one all-or-nothing unit over the given wallets.
//
// The wallets are serialized in-process in ascending id order, then locked in
// the database in the same order before fn runs, so two units touching the same
// pair can never wait on each other in a cycle. If fn returns an error nothing
// it wrote is kept. Storage conflicts re-run fn from the start, so fn must not
// carry state between attempts.
func (s *Store) Atomic(ctx context.Context, walletIDs []uint, fn func(u *Unit) error) error {
	ids := lockOrder(walletIDs)
	release := s.locks.acquire(ids)
	defer release()

	var err error
	for attempt := 0; ; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			u := &Unit{tx: tx, now: s.Now(), wallets: make(map[uint]*domain.Wallet, len(ids))}
			if err := u.lockWallets(ids); err != nil {
				return err
			}
			return fn(u)
		})
		if !isConflict(err) || attempt >= s.retries {
			break
		}
		logrus.WithFields(logrus.Fields{
			"wallets": ids,
			"attempt": attempt + 1,
			"error":   err,
		}).Warn("ledger unit conflicted, retrying")
	}
	if isConflict(err) {
		logrus.WithFields(logrus.Fields{"wallets": ids, "error": err}).Error("ledger unit gave up after conflicts")
		return domain.ErrConflict
	}
	return err
}

func (u *Unit) lockWallets(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	var wallets []domain.Wallet
	err := u.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&wallets).Error
	if err != nil {
		return fmt.Errorf("lock wallets: %w", err)
	}
	if len(wallets) != len(ids) {
		return domain.ErrWalletNotFound
	}
	for i := range wallets {
		u.wallets[wallets[i].ID] = &wallets[i]
	}
	return nil
}
