package businessflow

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/amirphl/gymdesk/app/dto"
	"github.com/amirphl/gymdesk/app/services"
	"github.com/amirphl/gymdesk/config"
	"github.com/amirphl/gymdesk/models"
	"github.com/amirphl/gymdesk/repository"
	"github.com/amirphl/gymdesk/utils"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
)

const reminderSweepLockKey = "lock:sweep:reminders"

// SweepFlow delivers every due reminder once per invocation
type SweepFlow interface {
	RunReminderSweep(ctx context.Context) (*dto.SweepResult, error)
}

// SweepFlowImpl implements SweepFlow
type SweepFlowImpl struct {
	reminderRepo repository.ReminderRepository
	clientRepo   repository.ClientRepository
	sweepRunRepo repository.SweepRunRepository
	pipeline     *deliveryPipeline
	locker       SweepLocker
	cfg          config.SchedulerConfig
	now          func() time.Time
}

func NewSweepFlow(
	reminderRepo repository.ReminderRepository,
	clientRepo repository.ClientRepository,
	sweepRunRepo repository.SweepRunRepository,
	dispatcher Dispatcher,
	publisher services.EventPublisher,
	locker SweepLocker,
	cfg config.SchedulerConfig,
) SweepFlow {
	if locker == nil {
		locker = NoopSweepLocker{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = utils.DefaultSweepBatchSize
	}
	if cfg.StaleClaimAfter <= 0 {
		cfg.StaleClaimAfter = utils.DefaultStaleClaimAfter
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = utils.DefaultSweepLockTTL
	}
	// a claim is renewed right before each send, so it only has to outlive one send
	if minStale := 2 * cfg.SendTimeout; cfg.StaleClaimAfter < minStale {
		cfg.StaleClaimAfter = minStale
	}
	return &SweepFlowImpl{
		reminderRepo: reminderRepo,
		clientRepo:   clientRepo,
		sweepRunRepo: sweepRunRepo,
		pipeline:     newDeliveryPipeline(dispatcher, NewStatusTracker(reminderRepo), publisher),
		locker:       locker,
		cfg:          cfg,
		now:          utils.UTCNow,
	}
}

func (f *SweepFlowImpl) RunReminderSweep(ctx context.Context) (*dto.SweepResult, error) {
	release, ok := acquireSweepLock(ctx, f.locker, reminderSweepLockKey, f.cfg.LockTTL)
	if !ok {
		return &dto.SweepResult{Skipped: true}, nil
	}
	defer release()

	timer := prometheus.NewTimer(sweepDuration.WithLabelValues(string(models.SweepKindReminders)))
	defer timer.ObserveDuration()

	startedAt := f.now()

	// claims left behind by a crashed run go back to the queue
	released, err := f.reminderRepo.ReleaseStaleClaims(ctx, startedAt.Add(-f.cfg.StaleClaimAfter))
	if err != nil {
		log.Printf("reminder sweep: release stale claims failed: %v", err)
	} else if released > 0 {
		log.Printf("reminder sweep: released %d stale claims", released)
	}

	claimed, err := f.reminderRepo.ClaimDue(ctx, startedAt, f.cfg.BatchSize)
	if err != nil {
		return nil, NewBusinessError("SWEEP_CLAIM_FAILED", "Failed to claim due reminders", err)
	}
	if len(claimed) == 0 {
		return &dto.SweepResult{}, nil
	}

	f.attachClients(ctx, claimed)

	result := &dto.SweepResult{}
	ids := make(pq.Int64Array, 0, len(claimed))
	for _, r := range claimed {
		outcome := f.processOne(ctx, r)
		if outcome == outcomeSkipped {
			continue
		}
		result.Processed++
		ids = append(ids, int64(r.ID))
		if outcome == outcomeSent {
			result.Sent++
		} else {
			result.Failed++
		}
	}
	sweepRecords.WithLabelValues(string(models.SweepKindReminders), "sent").Add(float64(result.Sent))
	sweepRecords.WithLabelValues(string(models.SweepKindReminders), "failed").Add(float64(result.Failed))

	run := &models.SweepRun{
		Kind:        models.SweepKindReminders,
		Processed:   result.Processed,
		Sent:        result.Sent,
		Failed:      result.Failed,
		ReminderIDs: ids,
		StartedAt:   startedAt,
		FinishedAt:  f.now(),
	}
	if err := f.sweepRunRepo.Save(ctx, run); err != nil {
		log.Printf("reminder sweep: save sweep run failed: %v", err)
	}

	log.Printf("reminder sweep: processed=%d sent=%d failed=%d", result.Processed, result.Sent, result.Failed)
	return result, nil
}

type sweepOutcome int

const (
	outcomeSent sweepOutcome = iota
	outcomeFailed
	// claim was taken over by another run before anything was sent
	outcomeSkipped
)

// processOne never lets one record abort the sweep. A send whose outcome
// could not be recorded counts as failed.
func (f *SweepFlowImpl) processOne(ctx context.Context, r *models.Reminder) (outcome sweepOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("reminder sweep: reminder %d panicked: %v", r.ID, rec)
			outcome = outcomeFailed
		}
	}()

	res, recorded, err := f.pipeline.deliver(ctx, r, deliverySourceSweep)
	if errors.Is(err, ErrClaimLost) {
		log.Printf("reminder sweep: reminder %d was claimed by another run, skipping", r.ID)
		return outcomeSkipped
	}
	if err != nil {
		log.Printf("reminder sweep: record outcome of reminder %d failed: %v", r.ID, err)
	}
	if !recorded {
		return outcomeFailed
	}
	if res.Success {
		return outcomeSent
	}
	return outcomeFailed
}

// attachClients loads the clients of claimed rows in one query. Rows whose
// client is gone keep a nil client and fail with no route.
func (f *SweepFlowImpl) attachClients(ctx context.Context, reminders []*models.Reminder) {
	ids := make([]uint, 0, len(reminders))
	seen := make(map[uint]struct{}, len(reminders))
	for _, r := range reminders {
		if _, ok := seen[r.ClientID]; ok {
			continue
		}
		seen[r.ClientID] = struct{}{}
		ids = append(ids, r.ClientID)
	}

	clients, err := f.clientRepo.ByIDs(ctx, ids)
	if err != nil {
		log.Printf("reminder sweep: load clients failed: %v", err)
		return
	}
	for _, r := range reminders {
		r.Client = clients[r.ClientID]
	}
}

// acquireSweepLock returns ok=false only when another process holds the lock.
// A lock backend error is logged and the sweep proceeds on row claims alone.
func acquireSweepLock(ctx context.Context, locker SweepLocker, key string, ttl time.Duration) (func(), bool) {
	release, ok, err := locker.TryLock(ctx, key, ttl)
	if err != nil {
		log.Printf("sweep lock %s unavailable, continuing without it: %v", key, err)
		return func() {}, true
	}
	if !ok {
		log.Printf("sweep lock %s is held by another run, skipping", key)
		return nil, false
	}
	return release, true
}
