package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"wallet_ledger/internal/reporting"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expirerStub struct {
	ttl   time.Duration
	calls int
	err   error
}

func (s *expirerStub) ExpirePending(_ context.Context, ttl time.Duration) (int, error) {
	s.calls++
	s.ttl = ttl
	return 2, s.err
}

type reconcilerStub struct {
	drift []reporting.Drift
	err   error
}

func (s *reconcilerStub) Reconcile(context.Context) ([]reporting.Drift, error) {
	return s.drift, s.err
}

func TestExpirePendingUsesTTL(t *testing.T) {
	exp := &expirerStub{}
	j := NewJobs(exp, &reconcilerStub{}, 90*time.Minute)

	j.ExpirePending()
	assert.Equal(t, 1, exp.calls)
	assert.Equal(t, 90*time.Minute, exp.ttl)

	exp.err = errors.New("db down")
	j.ExpirePending()
	assert.Equal(t, 2, exp.calls)
}

func TestReconcileCountsDrift(t *testing.T) {
	rec := &reconcilerStub{drift: []reporting.Drift{
		{WalletNumber: "WLT0000000001", Balance: decimal.NewFromInt(5), LedgerBalance: decimal.NewFromInt(7)},
	}}
	j := NewJobs(&expirerStub{}, rec, time.Hour)
	assert.Equal(t, 1, j.Reconcile())

	rec.err = errors.New("db down")
	assert.Equal(t, 0, j.Reconcile())
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(NewJobs(&expirerStub{}, &reconcilerStub{}, time.Hour))
	assert.Error(t, s.Start("not a schedule", "@every 1m"))

	s = NewScheduler(NewJobs(&expirerStub{}, &reconcilerStub{}, time.Hour))
	require.NoError(t, s.Start("@every 1h", "@every 1h"))
	<-s.Stop().Done()
}
