/**
 * @description
 * Cron-driven reconciliation for orphaned registrations. A registration that
 * fails after its provider calls leaves a contact and fund account on
 * Razorpay with no local payee record; its marker stays pending. The
 * scheduled job surfaces those markers so the orphaned remote state can be
 * cleaned up out of band.
 *
 * @dependencies
 * - context, log, time: Standard Go libraries.
 * - github.com/robfig/cron/v3: For the in-process schedule.
 * - internal/store: For the marker queries.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/payctf/payout-service/internal/store"
	"github.com/robfig/cron/v3"
)

// Reconciler periodically scans for stale pending registration markers.
type Reconciler struct {
	cron       *cron.Cron
	repo       store.Repository
	schedule   string
	staleAfter time.Duration
}

// NewReconciler creates a reconciler that runs on the given cron schedule and
// treats pending markers older than staleAfter as orphan candidates.
func NewReconciler(repo store.Repository, schedule string, staleAfter time.Duration) *Reconciler {
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(log.Default()))))
	return &Reconciler{
		cron:       c,
		repo:       repo,
		schedule:   schedule,
		staleAfter: staleAfter,
	}
}

// Start registers the job and starts the cron scheduler.
func (r *Reconciler) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.runOnce); err != nil {
		return err
	}
	r.cron.Start()
	log.Printf("level=info component=reconciler msg=\"scheduled orphan registration scan\" schedule=%q stale_after=%s", r.schedule, r.staleAfter)
	return nil
}

// Stop gracefully stops the cron scheduler and waits for a running job.
func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reconciler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := ReconcileStaleRegistrations(ctx, r.repo, r.staleAfter)
	if err != nil {
		log.Printf("level=error component=reconciler msg=\"orphan scan failed\" err=%v", err)
		return
	}
	if count > 0 {
		log.Printf("level=warn component=reconciler msg=\"orphaned registrations detected\" count=%d", count)
	}
}

// ReconcileStaleRegistrations logs every stale pending marker and returns how
// many were found. Remote cleanup is intentionally manual: deleting provider
// contacts from a background job is riskier than reporting them.
func ReconcileStaleRegistrations(ctx context.Context, repo store.Repository, staleAfter time.Duration) (int, error) {
	markers, err := repo.FindStalePendingRegistrations(ctx, staleAfter)
	if err != nil {
		return 0, err
	}

	for _, marker := range markers {
		contactID := ""
		if marker.ContactID != nil {
			contactID = *marker.ContactID
		}
		log.Printf("level=warn component=reconciler msg=\"pending registration past cutoff\" marker_id=%s key=%s contact_id=%s created_at=%s", marker.ID, marker.PayeeKey, contactID, marker.CreatedAt.Format(time.RFC3339))
	}
	return len(markers), nil
}
