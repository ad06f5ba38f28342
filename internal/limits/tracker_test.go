package limits

import (
	"testing"
	"time"
	_ "time/tzdata"

	"wallet_ledger/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spend struct {
	at     time.Time
	amount decimal.Decimal
	typ    domain.TxType
}

// fakeReader sums an in-memory list the same way the ledger does.
type fakeReader struct {
	rows []spend
	err  error
}

func (f *fakeReader) SumCompleted(_ uint, types []domain.TxType, from, to time.Time) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	total := decimal.Zero
	for _, r := range f.rows {
		if r.at.Before(from) || !r.at.Before(to) {
			continue
		}
		for _, t := range types {
			if t == r.typ {
				total = total.Add(r.amount)
			}
		}
	}
	return total, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func wallet(tz string) *domain.Wallet {
	return &domain.Wallet{
		ID: 1, TimeZone: tz,
		DailyLimit: dec("1000"), MonthlyLimit: dec("5000"), PerTransactionLimit: dec("600"),
	}
}

func fixed(ts time.Time) func() time.Time { return func() time.Time { return ts } }

func TestPerTransactionLimit(t *testing.T) {
	tr := NewTracker(fixed(time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)))
	err := tr.Check(&fakeReader{}, wallet("UTC"), dec("600.01"), domain.TxWithdrawal)
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)

	assert.NoError(t, tr.Check(&fakeReader{}, wallet("UTC"), dec("600"), domain.TxWithdrawal))
}

func TestDailyLimitCountsCommittedSpend(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(fixed(now))
	r := &fakeReader{rows: []spend{
		{now.Add(-time.Hour), dec("500"), domain.TxWithdrawal},
		{now.Add(-2 * time.Hour), dec("400"), domain.TxTransferOut},
		{now.Add(-3 * time.Hour), dec("900"), domain.TxTopUp},     // credits never count
		{now.Add(-24 * time.Hour), dec("600"), domain.TxPayment}, // yesterday
	}}

	assert.NoError(t, tr.Check(r, wallet("UTC"), dec("100"), domain.TxDebit))
	err := tr.Check(r, wallet("UTC"), dec("100.01"), domain.TxDebit)
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)
	assert.Contains(t, err.Error(), "daily")

	// Credits are never limited.
	assert.NoError(t, tr.Check(r, wallet("UTC"), dec("100000"), domain.TxTopUp))
}

func TestMonthlyLimit(t *testing.T) {
	now := time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(fixed(now))
	var rows []spend
	for d := 1; d < 20; d++ {
		rows = append(rows, spend{time.Date(2026, 5, d, 9, 0, 0, 0, time.UTC), dec("250"), domain.TxWithdrawal})
	}
	rows = append(rows, spend{time.Date(2026, 4, 30, 9, 0, 0, 0, time.UTC), dec("999"), domain.TxWithdrawal})
	r := &fakeReader{rows: rows}

	w := wallet("UTC")
	err := tr.Check(r, w, dec("300"), domain.TxWithdrawal)
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)
	assert.Contains(t, err.Error(), "monthly")

	assert.NoError(t, tr.Check(r, w, dec("250"), domain.TxWithdrawal))
}

func TestWindowsFollowWalletTimeZone(t *testing.T) {
	// 20:30 UTC on May 10 is already May 11 in Karachi (UTC+5).
	now := time.Date(2026, 5, 10, 20, 30, 0, 0, time.UTC)
	tr := NewTracker(fixed(now))
	r := &fakeReader{rows: []spend{
		{time.Date(2026, 5, 10, 18, 0, 0, 0, time.UTC), dec("900"), domain.TxWithdrawal}, // 23:00 May 10 local
	}}

	utc, err := tr.Snapshot(r, wallet("UTC"))
	require.NoError(t, err)
	assert.True(t, utc.SpentToday.Equal(dec("900")))
	assert.True(t, utc.DailyRemaining.Equal(dec("100")))

	pk, err := tr.Snapshot(r, wallet("Asia/Karachi"))
	require.NoError(t, err)
	assert.True(t, pk.SpentToday.IsZero())
	assert.True(t, pk.DailyRemaining.Equal(dec("1000")))
	assert.Equal(t, "Asia/Karachi", pk.TimeZone)
	assert.Equal(t, 11, pk.DayStart.Day())
}

func TestBoundsAreHalfOpen(t *testing.T) {
	tr := NewTracker(fixed(time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)))
	dayStart, dayEnd, monthStart, monthEnd := tr.Bounds(wallet("UTC"))

	assert.Equal(t, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), dayStart)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), dayEnd)
	assert.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), monthStart)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), monthEnd)
}

func TestHeadroomNeverNegative(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(fixed(now))
	// Spend recorded before the limit was lowered can exceed it.
	r := &fakeReader{rows: []spend{{now, dec("1500"), domain.TxDebit}}}

	win, err := tr.Snapshot(r, wallet("UTC"))
	require.NoError(t, err)
	assert.True(t, win.DailyRemaining.IsZero())
}

func TestReaderErrorPropagates(t *testing.T) {
	tr := NewTracker(nil)
	boom := assert.AnError
	err := tr.Check(&fakeReader{err: boom}, wallet("UTC"), dec("1"), domain.TxDebit)
	assert.ErrorIs(t, err, boom)
}
