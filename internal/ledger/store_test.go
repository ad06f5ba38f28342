package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"wallet_ledger/internal/db"
	"wallet_ledger/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.OpenDialect("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() {
		sqlDB, _ := gdb.DB()
		_ = sqlDB.Close()
	})
	return gdb
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func defaultWallet() NewWallet {
	return NewWallet{
		Currency:            "PKR",
		Type:                domain.WalletPersonal,
		TimeZone:            "UTC",
		DailyLimit:          dec("50000"),
		MonthlyLimit:        dec("500000"),
		PerTransactionLimit: dec("25000"),
	}
}

func seedWallet(t *testing.T, s *Store, username string, balance string) *domain.Wallet {
	t.Helper()
	u := &domain.User{
		Username: username, Email: username + "@example.com", Password: "x", FullName: username,
		Role: domain.RoleUser, KYCStatus: domain.KYCPending, IsActive: true,
	}
	w, err := s.CreateAccount(context.Background(), u, defaultWallet())
	require.NoError(t, err)
	if amt := dec(balance); amt.IsPositive() {
		err = s.Atomic(context.Background(), []uint{w.ID}, func(unit *Unit) error {
			_, err := unit.Append(w.ID, Draft{Reference: "SEED-" + username, Type: domain.TxTopUp, Amount: amt})
			return err
		})
		require.NoError(t, err)
	}
	w, err = s.GetWalletByID(context.Background(), w.ID)
	require.NoError(t, err)
	return w
}

func balanceOf(t *testing.T, s *Store, id uint) decimal.Decimal {
	t.Helper()
	w, err := s.GetWalletByID(context.Background(), id)
	require.NoError(t, err)
	return w.Balance
}

func countRows(t *testing.T, gdb *gorm.DB, walletID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Model(&domain.Transaction{}).Where("wallet_id = ?", walletID).Count(&n).Error)
	return n
}

func TestCreateAccount(t *testing.T) {
	s := NewStore(newTestDB(t))
	w := seedWallet(t, s, "alice", "0")

	assert.Regexp(t, `^WLT\d{10}$`, w.WalletNumber)
	assert.Equal(t, domain.WalletActive, w.Status)
	assert.True(t, w.Balance.IsZero())

	byUser, err := s.GetWalletByUser(context.Background(), w.UserID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, byUser.ID)
}

func TestCreateAccountDuplicateLeavesNothingBehind(t *testing.T) {
	gdb := newTestDB(t)
	s := NewStore(gdb)
	seedWallet(t, s, "alice", "0")

	dup := &domain.User{Username: "alice", Email: "other@example.com", Password: "x", FullName: "A",
		Role: domain.RoleUser, KYCStatus: domain.KYCPending, IsActive: true}
	_, err := s.CreateAccount(context.Background(), dup, defaultWallet())
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	var wallets int64
	require.NoError(t, gdb.Model(&domain.Wallet{}).Count(&wallets).Error)
	assert.EqualValues(t, 1, wallets)
}

func TestGetMissing(t *testing.T) {
	s := NewStore(newTestDB(t))

	_, err := s.GetWallet(context.Background(), "WLT0000000000")
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)

	_, err = s.GetTransaction(context.Background(), "nope")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	err = s.Atomic(context.Background(), []uint{9999}, func(*Unit) error { return nil })
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestAppendSnapshotsBalances(t *testing.T) {
	s := NewStore(newTestDB(t))
	w := seedWallet(t, s, "alice", "1000")

	var row *domain.Transaction
	err := s.Atomic(context.Background(), []uint{w.ID}, func(u *Unit) error {
		var err error
		row, err = u.Append(w.ID, Draft{Reference: "W-1", Type: domain.TxWithdrawal, Amount: dec("250"), Fee: dec("2.50")})
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, row.Status)
	assert.Equal(t, domain.DirectionDebit, row.Direction)
	assert.True(t, row.BalanceBefore.Equal(dec("1000")))
	assert.True(t, row.BalanceAfter.Equal(dec("747.50")))
	assert.True(t, balanceOf(t, s, w.ID).Equal(dec("747.50")))

	stored, err := s.GetTransaction(context.Background(), "W-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.True(t, stored.BalanceAfter.Equal(dec("747.50")))
	require.NotNil(t, stored.CompletedAt)
}

func TestAppendInsufficientFundsWritesNothing(t *testing.T) {
	gdb := newTestDB(t)
	s := NewStore(gdb)
	w := seedWallet(t, s, "alice", "100")

	err := s.Atomic(context.Background(), []uint{w.ID}, func(u *Unit) error {
		_, err := u.Append(w.ID, Draft{Reference: "W-1", Type: domain.TxWithdrawal, Amount: dec("100"), Fee: dec("0.01")})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.True(t, balanceOf(t, s, w.ID).Equal(dec("100")))
	assert.EqualValues(t, 1, countRows(t, gdb, w.ID))
}

func TestAppendOverrideMayGoNegative(t *testing.T) {
	s := NewStore(newTestDB(t))
	w := seedWallet(t, s, "alice", "10")

	err := s.Atomic(context.Background(), []uint{w.ID}, func(u *Unit) error {
		_, err := u.Append(w.ID, Draft{Reference: "R-1", Type: domain.TxRefund, Direction: domain.DirectionDebit,
			Amount: dec("25"), Override: true})
		return err
	})
	require.NoError(t, err)
	assert.True(t, balanceOf(t, s, w.ID).Equal(dec("-15")))
}

func TestAppendRejectsInactiveWallet(t *testing.T) {
	gdb := newTestDB(t)
	s := NewStore(gdb)
	w := seedWallet(t, s, "alice", "100")
	require.NoError(t, gdb.Model(&domain.Wallet{}).Where("id = ?", w.ID).Update("wallet_status", domain.WalletBlocked).Error)

	err := s.Atomic(context.Background(), []uint{w.ID}, func(u *Unit) error {
		_, err := u.Append(w.ID, Draft{Reference: "C-1", Type: domain.TxCredit, Amount: dec("1")})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrWalletNotActive)
}

func TestAppendValidatesDraft(t *testing.T) {
	s := NewStore(newTestDB(t))
	w := seedWallet(t, s, "alice", "100")

	drafts := map[string]Draft{
		"no reference":     {Type: domain.TxCredit, Amount: dec("1")},
		"zero amount":      {Reference: "a", Type: domain.TxCredit, Amount: decimal.Zero},
		"negative fee":     {Reference: "b", Type: domain.TxDebit, Amount: dec("1"), Fee: dec("-1")},
		"fee on credit":    {Reference: "c", Type: domain.TxCredit, Amount: dec("1"), Fee: dec("1")},
		"refund direction": {Reference: "d", Type: domain.TxRefund, Amount: dec("1")},
	}
	for name, d := range drafts {
		t.Run(name, func(t *testing.T) {
			err := s.Atomic(context.Background(), []uint{w.ID}, func(u *Unit) error {
				_, err := u.Append(w.ID, d)
				return err
			})
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
		})
	}
}

func TestAtomicRollsBackEverything(t *testing.T) {
	gdb := newTestDB(t)
	s := NewStore(gdb)
	a := seedWallet(t, s, "alice", "500")
	b := seedWallet(t, s, "bob", "0")

	boom := errors.New("boom")
	err := s.Atomic(context.Background(), []uint{a.ID, b.ID}, func(u *Unit) error {
		if _, err := u.Append(a.ID, Draft{Reference: "T-1", Type: domain.TxTransferOut, Amount: dec("200")}); err != nil {
			return err
		}
		if _, err := u.Append(b.ID, Draft{Reference: "T-1-IN", Type: domain.TxTransferIn, Amount: dec("200")}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.True(t, balanceOf(t, s, a.ID).Equal(dec("500")))
	assert.True(t, balanceOf(t, s, b.ID).IsZero())
	_, err = s.GetTransaction(context.Background(), "T-1")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestDuplicateReference(t *testing.T) {
	s := NewStore(newTestDB(t))
	w := seedWallet(t, s, "alice", "100")

	err := s.Atomic(context.Background(), []uint{w.ID}, func(u *Unit) error {
		_, err := u.Append(w.ID, Draft{Reference: "SEED-alice", Type: domain.TxCredit, Amount: dec("1")})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
	assert.True(t, balanceOf(t, s, w.ID).Equal(dec("100")))
}

func TestRecordFailureKeepsBalance(t *testing.T) {
	s := NewStore(newTestDB(t))
	w := seedWallet(t, s, "alice", "100")

	var row *domain.Transaction
	err := s.Atomic(context.Background(), []uint{w.ID}, func(u *Unit) error {
		var err error
		row, err = u.RecordFailure(w.ID, Draft{Reference: "W-9", Type: domain.TxWithdrawal, Amount: dec("900")},
			domain.ErrInsufficientFunds)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, row.Status)
	assert.Equal(t, string(domain.KindInsufficientFunds), row.FailureKind)
	assert.True(t, row.BalanceBefore.Equal(row.BalanceAfter))
	assert.True(t, balanceOf(t, s, w.ID).Equal(dec("100")))
}

func TestPendingLifecycle(t *testing.T) {
	s := NewStore(newTestDB(t))
	w := seedWallet(t, s, "alice", "0")

	err := s.Atomic(context.Background(), []uint{w.ID}, func(u *Unit) error {
		_, err := u.RecordPending(w.ID, Draft{Reference: "P-1", Type: domain.TxTopUp, Amount: dec("40")})
		return err
	})
	require.NoError(t, err)
	assert.True(t, balanceOf(t, s, w.ID).IsZero())

	err = s.Atomic(context.Background(), []uint{w.ID}, func(u *Unit) error {
		row, err := u.FindByReference("P-1")
		if err != nil {
			return err
		}
		if err := u.MarkRefunded(row); err == nil {
			return errors.New("pending row must not be refundable")
		}
		return u.Complete(row, "GW-1")
	})
	require.NoError(t, err)
	assert.True(t, balanceOf(t, s, w.ID).Equal(dec("40")))

	err = s.Atomic(context.Background(), []uint{w.ID}, func(u *Unit) error {
		row, err := u.FindByReference("P-1")
		if err != nil {
			return err
		}
		return u.Fail(row, errors.New("late"))
	})
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	s := NewStore(newTestDB(t))
	w := seedWallet(t, s, "alice", "100")

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.Atomic(context.Background(), []uint{w.ID}, func(u *Unit) error {
				_, err := u.Append(w.ID, Draft{Reference: fmt.Sprintf("D-%d", i), Type: domain.TxDebit, Amount: dec("10")})
				return err
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.True(t, balanceOf(t, s, w.ID).IsZero())
	assert.Zero(t, s.locks.size())
}

func TestOpposingTransfersDoNotDeadlock(t *testing.T) {
	s := NewStore(newTestDB(t))
	a := seedWallet(t, s, "alice", "1000")
	b := seedWallet(t, s, "bob", "1000")

	move := func(ref string, from, to uint) error {
		return s.Atomic(context.Background(), []uint{from, to}, func(u *Unit) error {
			if _, err := u.Append(from, Draft{Reference: ref, Type: domain.TxTransferOut, Amount: dec("1")}); err != nil {
				return err
			}
			_, err := u.Append(to, Draft{Reference: ref + "-IN", Type: domain.TxTransferIn, Amount: dec("1")})
			return err
		})
	}

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for i := 0; i < 25; i++ {
			wg.Add(2)
			go func(i int) { defer wg.Done(); assert.NoError(t, move(fmt.Sprintf("AB-%d", i), a.ID, b.ID)) }(i)
			go func(i int) { defer wg.Done(); assert.NoError(t, move(fmt.Sprintf("BA-%d", i), b.ID, a.ID)) }(i)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("opposing transfers deadlocked")
	}
	total := balanceOf(t, s, a.ID).Add(balanceOf(t, s, b.ID))
	assert.True(t, total.Equal(dec("2000")))
}

func TestSumCompletedWindow(t *testing.T) {
	clock := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := NewStore(newTestDB(t), WithClock(func() time.Time { return clock }))
	w := seedWallet(t, s, "alice", "1000")

	debit := func(ref, amount string, typ domain.TxType) {
		err := s.Atomic(context.Background(), []uint{w.ID}, func(u *Unit) error {
			_, err := u.Append(w.ID, Draft{Reference: ref, Type: typ, Amount: dec(amount)})
			return err
		})
		require.NoError(t, err)
	}
	debit("a", "10.10", domain.TxWithdrawal)
	debit("b", "20.20", domain.TxPayment)
	clock = clock.Add(-48 * time.Hour)
	debit("c", "5", domain.TxDebit)

	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	sum, err := s.Reader(context.Background()).SumCompleted(w.ID, domain.SpendTypes(), from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, sum.Equal(dec("30.30")), sum.String())

	sum, err = s.Reader(context.Background()).SumCompleted(w.ID, []domain.TxType{domain.TxTopUp}, from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, sum.IsZero())
}

func TestLockOrder(t *testing.T) {
	assert.Equal(t, []uint{1, 3, 7}, lockOrder([]uint{7, 1, 3, 7, 1}))
	assert.Empty(t, lockOrder(nil))
}

func TestTryUndoesPartialWork(t *testing.T) {
	gdb := newTestDB(t)
	s := NewStore(gdb)
	a := seedWallet(t, s, "alice", "300")
	b := seedWallet(t, s, "bob", "0")
	require.NoError(t, gdb.Model(&domain.Wallet{}).Where("id = ?", b.ID).Update("wallet_status", domain.WalletFrozen).Error)

	var failed *domain.Transaction
	err := s.Atomic(context.Background(), []uint{a.ID, b.ID}, func(u *Unit) error {
		err := u.Try(func() error {
			if _, err := u.Append(a.ID, Draft{Reference: "T-1", Type: domain.TxTransferOut, Amount: dec("100")}); err != nil {
				return err
			}
			_, err := u.Append(b.ID, Draft{Reference: "T-1-IN", Type: domain.TxTransferIn, Amount: dec("100")})
			return err
		})
		if !errors.Is(err, domain.ErrWalletNotActive) {
			return fmt.Errorf("expected wallet not active, got %v", err)
		}
		src, err := u.Wallet(a.ID)
		if err != nil {
			return err
		}
		if !src.Balance.Equal(dec("300")) {
			return fmt.Errorf("source balance not restored: %s", src.Balance)
		}
		failed, err = u.RecordFailure(a.ID, Draft{Reference: "T-1", Type: domain.TxTransferOut, Amount: dec("100")}, domain.ErrWalletNotActive)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusFailed, failed.Status)
	assert.True(t, failed.BalanceAfter.Equal(dec("300")))
	assert.True(t, balanceOf(t, s, a.ID).Equal(dec("300")))
	_, err = s.GetTransaction(context.Background(), "T-1-IN")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}
