package limits

import (
	"time"

	"wallet_ledger/internal/domain" // Domain models

	"github.com/shopspring/decimal" // Fixed-point money
)

// Reader is the committed-spend query the tracker needs. *ledger.Reader
// satisfies it, both inside and outside a ledger unit.
type Reader interface {
	SumCompleted(walletID uint, types []domain.TxType, from, to time.Time) (decimal.Decimal, error)
}

// Window is the spend state of a wallet at one instant.
type Window struct {
	PerTransactionLimit decimal.Decimal `json:"perTransactionLimit"`
	DailyLimit          decimal.Decimal `json:"dailyLimit"`
	MonthlyLimit        decimal.Decimal `json:"monthlyLimit"`
	SpentToday          decimal.Decimal `json:"spentToday"`
	SpentThisMonth      decimal.Decimal `json:"spentThisMonth"`
	DailyRemaining      decimal.Decimal `json:"dailyRemaining"`
	MonthlyRemaining    decimal.Decimal `json:"monthlyRemaining"`
	DayStart            time.Time       `json:"dayStart"`
	MonthStart          time.Time       `json:"monthStart"`
	TimeZone            string          `json:"timeZone"`
}

// Tracker evaluates daily, monthly and per-transaction limits against
// calendar windows in each wallet's own time zone.
type Tracker struct {
	now func() time.Time
}

func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now}
}

// Bounds returns the current day and month windows, half open, in the wallet's zone.
func (t *Tracker) Bounds(w *domain.Wallet) (dayStart, dayEnd, monthStart, monthEnd time.Time) {
	loc := w.Location()
	now := t.now().In(loc)
	dayStart = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	dayEnd = dayStart.AddDate(0, 0, 1)
	monthStart = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	monthEnd = monthStart.AddDate(0, 1, 0)
	return dayStart, dayEnd, monthStart, monthEnd
}

// Snapshot reports limits, spend and headroom for the current windows.
func (t *Tracker) Snapshot(r Reader, w *domain.Wallet) (*Window, error) {
	dayStart, dayEnd, monthStart, monthEnd := t.Bounds(w)
	today, err := r.SumCompleted(w.ID, domain.SpendTypes(), dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	month, err := r.SumCompleted(w.ID, domain.SpendTypes(), monthStart, monthEnd)
	if err != nil {
		return nil, err
	}
	return &Window{
		PerTransactionLimit: w.PerTransactionLimit,
		DailyLimit:          w.DailyLimit,
		MonthlyLimit:        w.MonthlyLimit,
		SpentToday:          today,
		SpentThisMonth:      month,
		DailyRemaining:      headroom(w.DailyLimit, today),
		MonthlyRemaining:    headroom(w.MonthlyLimit, month),
		DayStart:            dayStart,
		MonthStart:          monthStart,
		TimeZone:            w.Location().String(),
	}, nil
}

// Check rejects amount if it would breach any limit. Types that do not
// count toward spend always pass.
//
// Check must run inside the same ledger unit that writes the debit. The unit
// holds the wallet lock, so the committed row is the reservation and no
// concurrent check can see the same headroom.
func (t *Tracker) Check(r Reader, w *domain.Wallet, amount decimal.Decimal, txType domain.TxType) error {
	if !txType.CountsTowardLimits() {
		return nil
	}
	if amount.GreaterThan(w.PerTransactionLimit) {
		return domain.NewError(domain.KindLimitExceeded,
			"amount %s exceeds per-transaction limit of %s", amount.StringFixed(2), w.PerTransactionLimit.StringFixed(2))
	}
	win, err := t.Snapshot(r, w)
	if err != nil {
		return err
	}
	if win.SpentToday.Add(amount).GreaterThan(w.DailyLimit) {
		return domain.NewError(domain.KindLimitExceeded,
			"daily limit of %s exceeded: %s remaining today", w.DailyLimit.StringFixed(2), win.DailyRemaining.StringFixed(2))
	}
	if win.SpentThisMonth.Add(amount).GreaterThan(w.MonthlyLimit) {
		return domain.NewError(domain.KindLimitExceeded,
			"monthly limit of %s exceeded: %s remaining this month", w.MonthlyLimit.StringFixed(2), win.MonthlyRemaining.StringFixed(2))
	}
	return nil
}

func headroom(limit, spent decimal.Decimal) decimal.Decimal {
	if spent.GreaterThanOrEqual(limit) {
		return decimal.Zero
	}
	return limit.Sub(spent)
}
