package jobs

import (
	"context"
	"time"

	"wallet_ledger/internal/reporting" // Reconciliation results

	"github.com/robfig/cron/v3"  // Cron scheduling
	"github.com/sirupsen/logrus" // Logrus for structured logging
)

// Expirer fails deferred top-ups that were never settled.
type Expirer interface {
	ExpirePending(ctx context.Context, ttl time.Duration) (int, error)
}

// Reconciler compares stored balances with the ledger.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]reporting.Drift, error)
}

// Jobs are the scheduled maintenance tasks.
type Jobs struct {
	expirer    Expirer
	reconciler Reconciler
	pendingTTL time.Duration
	timeout    time.Duration
}

func NewJobs(expirer Expirer, reconciler Reconciler, pendingTTL time.Duration) *Jobs {
	return &Jobs{expirer: expirer, reconciler: reconciler, pendingTTL: pendingTTL, timeout: 5 * time.Minute}
}

// ExpirePending fails PENDING top-ups older than the configured TTL.
func (j *Jobs) ExpirePending() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	n, err := j.expirer.ExpirePending(ctx, j.pendingTTL)
	if err != nil {
		logrus.WithError(err).Error("pending expiry job failed")
		return
	}
	logrus.WithFields(logrus.Fields{"expired": n, "ttl": j.pendingTTL.String()}).Info("pending expiry job finished")
}

// Reconcile logs every wallet whose balance differs from its committed entries.
// It returns how many drifted.
func (j *Jobs) Reconcile() int {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	drift, err := j.reconciler.Reconcile(ctx)
	if err != nil {
		logrus.WithError(err).Error("reconciliation job failed")
		return 0
	}
	for _, d := range drift {
		logrus.WithFields(logrus.Fields{
			"wallet":         d.WalletNumber,
			"balance":        d.Balance.StringFixed(2),
			"ledger_balance": d.LedgerBalance.StringFixed(2),
		}).Error("wallet balance does not match ledger")
	}
	logrus.WithField("drifted", len(drift)).Info("reconciliation job finished")
	return len(drift)
}

// Scheduler runs Jobs on cron schedules.
type Scheduler struct {
	cron *cron.Cron
	jobs *Jobs
}

func NewScheduler(jobs *Jobs) *Scheduler {
	cronLogger := cron.PrintfLogger(logrus.StandardLogger())
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))
	return &Scheduler{cron: c, jobs: jobs}
}

// Start registers the jobs and starts the scheduler. A bad schedule is
// reported and leaves the scheduler stopped.
func (s *Scheduler) Start(reconcileSpec, expireSpec string) error {
	if _, err := s.cron.AddFunc(reconcileSpec, func() { s.jobs.Reconcile() }); err != nil {
		logrus.WithFields(logrus.Fields{"schedule": reconcileSpec, "error": err}).Error("failed to schedule reconciliation job")
		return err
	}
	logrus.WithField("schedule", reconcileSpec).Info("scheduled reconciliation job")

	if _, err := s.cron.AddFunc(expireSpec, s.jobs.ExpirePending); err != nil {
		logrus.WithFields(logrus.Fields{"schedule": expireSpec, "error": err}).Error("failed to schedule pending expiry job")
		return err
	}
	logrus.WithField("schedule", expireSpec).Info("scheduled pending expiry job")

	s.cron.Start()
	return nil
}

// Stop stops scheduling and returns a context done when running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
