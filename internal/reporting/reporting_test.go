package reporting

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"wallet_ledger/internal/db"
	"wallet_ledger/internal/domain"
	"wallet_ledger/internal/engine"
	"wallet_ledger/internal/ledger"
	"wallet_ledger/internal/limits"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	store  *ledger.Store
	engine *engine.Engine
	facade *Facade
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.OpenDialect("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() {
		sqlDB, _ := gdb.DB()
		_ = sqlDB.Close()
	})
	store := ledger.NewStore(gdb)
	fees := engine.FeePolicy{WithdrawalPercent: decimal.NewFromInt(1)}
	return &fixture{
		db:     gdb,
		store:  store,
		engine: engine.New(store, limits.NewTracker(nil), fees, nil),
		facade: New(gdb, func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }),
	}
}

func (f *fixture) wallet(t *testing.T, name string, kyc domain.KYCStatus) *domain.Wallet {
	t.Helper()
	w, err := f.store.CreateAccount(context.Background(), &domain.User{
		Username: name, Email: name + "@example.com", Password: "x", FullName: name,
		Role: domain.RoleUser, KYCStatus: kyc, IsActive: true,
	}, ledger.NewWallet{
		Currency: "PKR", Type: domain.WalletPersonal, TimeZone: "UTC",
		DailyLimit: decimal.NewFromInt(50000), MonthlyLimit: decimal.NewFromInt(500000), PerTransactionLimit: decimal.NewFromInt(25000),
	})
	require.NoError(t, err)
	return w
}

func (f *fixture) seed(t *testing.T) (*domain.Wallet, *domain.Wallet) {
	t.Helper()
	ctx := context.Background()
	a := f.wallet(t, "alice", domain.KYCVerified)
	b := f.wallet(t, "bob", domain.KYCPending)
	bank := engine.BankTransfer{BankAccount: "1234567890", IFSCCode: "HDFC0001234"}

	_, err := f.engine.TopUp(ctx, engine.TopUpRequest{WalletNumber: a.WalletNumber, Amount: decimal.NewFromInt(1000), PaymentMethod: "CARD"})
	require.NoError(t, err)
	_, err = f.engine.Withdraw(ctx, engine.WithdrawRequest{WalletNumber: a.WalletNumber, Amount: decimal.NewFromInt(200), Payout: bank})
	require.NoError(t, err)
	_, err = f.engine.Transfer(ctx, engine.TransferRequest{FromWalletID: a.ID, ToWalletNumber: b.WalletNumber, Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	_, err = f.engine.Withdraw(ctx, engine.WithdrawRequest{WalletNumber: b.WalletNumber, Amount: decimal.NewFromInt(500), Payout: bank})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	return a, b
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	d, err := f.facade.Dashboard(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, d.TotalUsers)
	assert.EqualValues(t, 2, d.ActiveUsers)
	assert.EqualValues(t, 2, d.TotalWallets)
	// 1000 - 200 - 2 fee
	assert.True(t, d.TotalBalance.Equal(decimal.NewFromInt(798)), d.TotalBalance.String())
	assert.True(t, d.TotalRevenue.Equal(decimal.NewFromInt(2)), d.TotalRevenue.String())
	assert.EqualValues(t, 4, d.TransactionsByStatus["COMPLETED"])
	assert.EqualValues(t, 1, d.TransactionsByStatus["FAILED"])
	assert.EqualValues(t, 1, d.UsersByKYC["VERIFIED"])
	assert.EqualValues(t, 1, d.UsersByKYC["PENDING"])
	assert.EqualValues(t, 2, d.WalletsByStatus["ACTIVE"])
}

func TestListTransactionsFilters(t *testing.T) {
	f := newFixture(t)
	a, _ := f.seed(t)
	ctx := context.Background()

	all, err := f.facade.ListTransactions(ctx, TxFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 5, all.Total)
	assert.Equal(t, 20, all.PageSize)

	failed, err := f.facade.ListTransactions(ctx, TxFilter{Status: "failed"})
	require.NoError(t, err)
	require.Len(t, failed.Transactions, 1)
	assert.Equal(t, domain.TxWithdrawal, failed.Transactions[0].Type)

	outs, err := f.facade.ListTransactions(ctx, TxFilter{Type: "TRANSFER_OUT", WalletID: a.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, outs.Total)

	paged, err := f.facade.ListTransactions(ctx, TxFilter{Page: Page{Page: 2, PageSize: 2}})
	require.NoError(t, err)
	assert.Len(t, paged.Transactions, 2)
	assert.Equal(t, 3, paged.TotalPages)

	_, err = f.facade.ListTransactions(ctx, TxFilter{Status: "LOST"})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	_, err = f.facade.ListTransactions(ctx, TxFilter{Type: "GIFT"})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestWalletHistoryTotalsMatchBalance(t *testing.T) {
	f := newFixture(t)
	a, b := f.seed(t)
	ctx := context.Background()

	h, err := f.facade.WalletHistory(ctx, a.ID, Page{})
	require.NoError(t, err)
	assert.Equal(t, a.WalletNumber, h.WalletNumber)
	assert.EqualValues(t, 3, h.Count)
	assert.True(t, h.TotalCredits.Equal(decimal.NewFromInt(1000)))
	assert.True(t, h.TotalDebits.Equal(decimal.NewFromInt(302)))
	assert.True(t, h.TotalCredits.Sub(h.TotalDebits).Equal(h.Balance))

	hb, err := f.facade.WalletHistory(ctx, b.ID, Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, hb.Count) // the FAILED row is listed but has no effect
	assert.True(t, hb.Balance.Equal(decimal.NewFromInt(100)))
	assert.True(t, hb.TotalDebits.IsZero())

	_, err = f.facade.WalletHistory(ctx, 9999, Page{})
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestListings(t *testing.T) {
	f := newFixture(t)
	a, _ := f.seed(t)
	ctx := context.Background()
	require.NoError(t, f.db.Create(&domain.PaymentMethod{UserID: a.UserID, Type: domain.PaymentUPI, Status: domain.PaymentMethodActive}).Error)

	users, err := f.facade.ListUsers(ctx, Page{})
	require.NoError(t, err)
	require.Len(t, users.Users, 2)
	require.NotNil(t, users.Users[0].Wallet)
	assert.Equal(t, a.WalletNumber, users.Users[0].Wallet.WalletNumber)

	wallets, err := f.facade.ListWallets(ctx, "active", Page{PageSize: 1})
	require.NoError(t, err)
	assert.Len(t, wallets.Wallets, 1)
	assert.Equal(t, 2, wallets.TotalPages)

	none, err := f.facade.ListWallets(ctx, "BLOCKED", Page{})
	require.NoError(t, err)
	assert.Empty(t, none.Wallets)

	pms, err := f.facade.ListPaymentMethods(ctx, Page{})
	require.NoError(t, err)
	assert.Len(t, pms.PaymentMethods, 1)
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	a, _ := f.seed(t)
	ctx := context.Background()

	drift, err := f.facade.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, drift)

	require.NoError(t, f.db.Model(&domain.Wallet{}).Where("id = ?", a.ID).Update("balance", decimal.NewFromInt(5)).Error)
	drift, err = f.facade.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, a.WalletNumber, drift[0].WalletNumber)
	assert.True(t, drift[0].LedgerBalance.Equal(decimal.NewFromInt(698)))
}

func TestPageNormalize(t *testing.T) {
	assert.Equal(t, Page{Page: 1, PageSize: 20}, Page{}.Normalize())
	assert.Equal(t, Page{Page: 3, PageSize: 100}, Page{Page: 3, PageSize: 100}.Normalize())
	assert.Equal(t, Page{Page: 1, PageSize: 20}, Page{Page: -1, PageSize: 101}.Normalize())
}
