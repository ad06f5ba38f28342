package reporting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wallet_ledger/internal/domain" // Domain models

	"github.com/shopspring/decimal" // Fixed-point money
	"gorm.io/gorm"                  // GORM ORM library
)

// Facade answers read-only queries. Each query runs in one read-only
// repeatable-read transaction so every figure in a response comes from the
// same snapshot. It never takes row locks.
type Facade struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB, now func() time.Time) *Facade {
	if now == nil {
		now = time.Now
	}
	return &Facade{db: db, now: now}
}

var snapshotOptions = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

// snapshot runs fn inside one consistent read. SQLite ignores the options;
// its single writer gives the same guarantee.
func (f *Facade) snapshot(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return f.db.WithContext(ctx).Transaction(fn, snapshotOptions)
}

// Page selects a slice of a listing.
type Page struct {
	Page     int
	PageSize int
}

// Normalize applies the listing bounds: page >= 1, pageSize 1..100, default 20.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 || p.PageSize > 100 {
		p.PageSize = 20
	}
	return p
}

func (p Page) offset() int { return (p.Page - 1) * p.PageSize }

// Meta describes the page that was returned.
type Meta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

func newMeta(p Page, total int64) Meta {
	return Meta{
		Page:       p.Page,
		PageSize:   p.PageSize,
		Total:      total,
		TotalPages: int((total + int64(p.PageSize) - 1) / int64(p.PageSize)),
	}
}

// Dashboard is the administrative overview.
type Dashboard struct {
	TotalUsers           int64            `json:"totalUsers"`
	ActiveUsers          int64            `json:"activeUsers"`
	TotalWallets         int64            `json:"totalWallets"`
	ActiveWallets        int64            `json:"activeWallets"`
	TotalBalance         decimal.Decimal  `json:"totalBalance"`
	TotalRevenue         decimal.Decimal  `json:"totalRevenue"`
	TransactionsByStatus map[string]int64 `json:"transactionsByStatus"`
	UsersByKYC           map[string]int64 `json:"usersByKyc"`
	WalletsByStatus      map[string]int64 `json:"walletsByStatus"`
	GeneratedAt          time.Time        `json:"generatedAt"`
}

type groupCount struct {
	GroupKey string
	Total    int64
}

// Dashboard computes totals, revenue (fees kept on COMPLETED rows) and
// status breakdowns from one snapshot.
func (f *Facade) Dashboard(ctx context.Context) (*Dashboard, error) {
	d := &Dashboard{GeneratedAt: f.now().UTC()}
	err := f.snapshot(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(&domain.User{}).Count(&d.TotalUsers).Error; err != nil {
			return fmt.Errorf("count users: %w", err)
		}
		if err := tx.Model(&domain.User{}).Where("is_active = ?", true).Count(&d.ActiveUsers).Error; err != nil {
			return fmt.Errorf("count active users: %w", err)
		}
		if err := tx.Model(&domain.Wallet{}).Count(&d.TotalWallets).Error; err != nil {
			return fmt.Errorf("count wallets: %w", err)
		}
		if err := tx.Model(&domain.Wallet{}).Where("wallet_status = ?", domain.WalletActive).Count(&d.ActiveWallets).Error; err != nil {
			return fmt.Errorf("count active wallets: %w", err)
		}

		var err error
		if d.TotalBalance, err = sum(tx.Model(&domain.Wallet{}), "balance"); err != nil {
			return fmt.Errorf("sum balances: %w", err)
		}
		revenue := tx.Model(&domain.Transaction{}).Where("transaction_status = ?", domain.StatusCompleted)
		if d.TotalRevenue, err = sum(revenue, "fee"); err != nil {
			return fmt.Errorf("sum fees: %w", err)
		}

		if d.TransactionsByStatus, err = countBy(tx.Model(&domain.Transaction{}), "transaction_status"); err != nil {
			return err
		}
		if d.UsersByKYC, err = countBy(tx.Model(&domain.User{}), "kyc_status"); err != nil {
			return err
		}
		if d.WalletsByStatus, err = countBy(tx.Model(&domain.Wallet{}), "wallet_status"); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func sum(q *gorm.DB, column string) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	if err := q.Select("SUM(" + column + ")").Row().Scan(&total); err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal.Round(2), nil
}

func countBy(q *gorm.DB, column string) (map[string]int64, error) {
	var rows []groupCount
	err := q.Select(column + " AS group_key, COUNT(*) AS total").Group(column).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count by %s: %w", column, err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.GroupKey] = r.Total
	}
	return out, nil
}

// TxFilter narrows a transaction listing. Zero values match everything.
type TxFilter struct {
	Status   string
	Type     string
	WalletID uint
	Page     Page
}

// TxPage is one page of transactions, newest first.
type TxPage struct {
	Transactions []domain.Transaction `json:"transactions"`
	Meta
}

// ListTransactions filters by status, type and wallet.
func (f *Facade) ListTransactions(ctx context.Context, filter TxFilter) (*TxPage, error) {
	p := filter.Page.Normalize()
	var status domain.TxStatus
	var txType domain.TxType
	var err error
	if filter.Status != "" {
		if status, err = domain.ParseTxStatus(filter.Status); err != nil {
			return nil, err
		}
	}
	if filter.Type != "" {
		if txType, err = domain.ParseTxType(filter.Type); err != nil {
			return nil, err
		}
	}

	out := &TxPage{Transactions: []domain.Transaction{}}
	err = f.snapshot(ctx, func(tx *gorm.DB) error {
		q := tx.Model(&domain.Transaction{})
		if status != "" {
			q = q.Where("transaction_status = ?", status)
		}
		if txType != "" {
			q = q.Where("transaction_type = ?", txType)
		}
		if filter.WalletID != 0 {
			q = q.Where("wallet_id = ?", filter.WalletID)
		}
		var total int64
		if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
			return fmt.Errorf("count transactions: %w", err)
		}
		out.Meta = newMeta(p, total)
		err := q.Session(&gorm.Session{}).Order("created_at desc").Order("id desc").
			Offset(p.offset()).Limit(p.PageSize).Find(&out.Transactions).Error
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// History is a wallet's transaction history with committed totals.
// TotalCredits minus TotalDebits equals the wallet balance.
type History struct {
	WalletNumber string          `json:"walletNumber"`
	Balance      decimal.Decimal `json:"balance"`
	TotalCredits decimal.Decimal `json:"totalCredits"`
	TotalDebits  decimal.Decimal `json:"totalDebits"` // fees included
	Count        int64           `json:"count"`
	TxPage
}

// WalletHistory pages a wallet's rows of every status.
func (f *Facade) WalletHistory(ctx context.Context, walletID uint, page Page) (*History, error) {
	p := page.Normalize()
	h := &History{TxPage: TxPage{Transactions: []domain.Transaction{}}}
	err := f.snapshot(ctx, func(tx *gorm.DB) error {
		var w domain.Wallet
		if err := tx.Take(&w, walletID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrWalletNotFound
			}
			return fmt.Errorf("load wallet: %w", err)
		}
		h.WalletNumber, h.Balance = w.WalletNumber, w.Balance

		committed := []domain.TxStatus{domain.StatusCompleted, domain.StatusRefunded}
		var err error
		credits := tx.Model(&domain.Transaction{}).
			Where("wallet_id = ? AND direction = ? AND transaction_status IN ?", walletID, domain.DirectionCredit, committed)
		if h.TotalCredits, err = sum(credits, "amount"); err != nil {
			return fmt.Errorf("sum credits: %w", err)
		}
		debits := tx.Model(&domain.Transaction{}).
			Where("wallet_id = ? AND direction = ? AND transaction_status IN ?", walletID, domain.DirectionDebit, committed)
		if h.TotalDebits, err = sum(debits, "amount + fee"); err != nil {
			return fmt.Errorf("sum debits: %w", err)
		}

		q := tx.Model(&domain.Transaction{}).Where("wallet_id = ?", walletID)
		if err := q.Session(&gorm.Session{}).Count(&h.Count).Error; err != nil {
			return fmt.Errorf("count transactions: %w", err)
		}
		h.Meta = newMeta(p, h.Count)
		err = q.Session(&gorm.Session{}).Order("created_at desc").Order("id desc").
			Offset(p.offset()).Limit(p.PageSize).Find(&h.Transactions).Error
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// WalletPage is one page of wallets.
type WalletPage struct {
	Wallets []domain.Wallet `json:"wallets"`
	Meta
}

// ListWallets pages wallets, optionally by status.
func (f *Facade) ListWallets(ctx context.Context, status string, page Page) (*WalletPage, error) {
	p := page.Normalize()
	var st domain.WalletStatus
	if status != "" {
		var err error
		if st, err = domain.ParseWalletStatus(status); err != nil {
			return nil, err
		}
	}
	out := &WalletPage{Wallets: []domain.Wallet{}}
	err := f.snapshot(ctx, func(tx *gorm.DB) error {
		q := tx.Model(&domain.Wallet{})
		if st != "" {
			q = q.Where("wallet_status = ?", st)
		}
		var total int64
		if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
			return fmt.Errorf("count wallets: %w", err)
		}
		out.Meta = newMeta(p, total)
		return q.Session(&gorm.Session{}).Order("id").Offset(p.offset()).Limit(p.PageSize).Find(&out.Wallets).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UserPage is one page of users with their wallets.
type UserPage struct {
	Users []domain.User `json:"users"`
	Meta
}

// ListUsers pages users with their wallet preloaded.
func (f *Facade) ListUsers(ctx context.Context, page Page) (*UserPage, error) {
	p := page.Normalize()
	out := &UserPage{Users: []domain.User{}}
	err := f.snapshot(ctx, func(tx *gorm.DB) error {
		var total int64
		if err := tx.Model(&domain.User{}).Count(&total).Error; err != nil {
			return fmt.Errorf("count users: %w", err)
		}
		out.Meta = newMeta(p, total)
		return tx.Preload("Wallet").Order("id").Offset(p.offset()).Limit(p.PageSize).Find(&out.Users).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PaymentMethodPage is one page of stored payment methods.
type PaymentMethodPage struct {
	PaymentMethods []domain.PaymentMethod `json:"paymentMethods"`
	Meta
}

// ListPaymentMethods pages every stored payment method.
func (f *Facade) ListPaymentMethods(ctx context.Context, page Page) (*PaymentMethodPage, error) {
	p := page.Normalize()
	out := &PaymentMethodPage{PaymentMethods: []domain.PaymentMethod{}}
	err := f.snapshot(ctx, func(tx *gorm.DB) error {
		var total int64
		if err := tx.Model(&domain.PaymentMethod{}).Count(&total).Error; err != nil {
			return fmt.Errorf("count payment methods: %w", err)
		}
		out.Meta = newMeta(p, total)
		return tx.Order("id").Offset(p.offset()).Limit(p.PageSize).Find(&out.PaymentMethods).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
