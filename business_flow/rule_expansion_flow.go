package businessflow

import (
	"context"
	"log"
	"time"

	"github.com/amirphl/gymdesk/app/dto"
	"github.com/amirphl/gymdesk/config"
	"github.com/amirphl/gymdesk/models"
	"github.com/amirphl/gymdesk/repository"
	"github.com/amirphl/gymdesk/utils"
	"github.com/prometheus/client_golang/prometheus"
)

const expansionLockKey = "lock:sweep:expansion"

// RuleExpansionFlow turns active rules into concrete reminders and campaigns
type RuleExpansionFlow interface {
	RunExpansion(ctx context.Context) (*dto.ExpansionResult, error)
}

// RuleExpansionFlowImpl implements RuleExpansionFlow.
// Each rule fires at most once per local day per client; the unique indexes
// on (rule_id, client_id, send_at) and (rule_id, client_id, start_date) make
// repeated runs on the same day no-ops.
type RuleExpansionFlowImpl struct {
	ruleRepo     repository.RuleRepository
	clientRepo   repository.ClientRepository
	reminderRepo repository.ReminderRepository
	campaignRepo repository.CampaignRepository
	sweepRunRepo repository.SweepRunRepository
	locker       SweepLocker
	cfg          config.SchedulerConfig
	location     *time.Location
	now          func() time.Time
}

func NewRuleExpansionFlow(
	ruleRepo repository.RuleRepository,
	clientRepo repository.ClientRepository,
	reminderRepo repository.ReminderRepository,
	campaignRepo repository.CampaignRepository,
	sweepRunRepo repository.SweepRunRepository,
	locker SweepLocker,
	cfg config.SchedulerConfig,
) RuleExpansionFlow {
	if locker == nil {
		locker = NoopSweepLocker{}
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = utils.DefaultSweepLockTTL
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = utils.DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("rule expansion: unknown timezone %q, using UTC", tz)
		loc = time.UTC
	}
	return &RuleExpansionFlowImpl{
		ruleRepo:     ruleRepo,
		clientRepo:   clientRepo,
		reminderRepo: reminderRepo,
		campaignRepo: campaignRepo,
		sweepRunRepo: sweepRunRepo,
		locker:       locker,
		cfg:          cfg,
		location:     loc,
		now:          utils.UTCNow,
	}
}

// SendTimeFor returns today's firing instant of a rule in the given location, in UTC
func SendTimeFor(localNow time.Time, sendHour int) time.Time {
	y, m, d := localNow.Date()
	return time.Date(y, m, d, sendHour, 0, 0, 0, localNow.Location()).UTC()
}

func (f *RuleExpansionFlowImpl) RunExpansion(ctx context.Context) (*dto.ExpansionResult, error) {
	release, ok := acquireSweepLock(ctx, f.locker, expansionLockKey, f.cfg.LockTTL)
	if !ok {
		return &dto.ExpansionResult{Skipped: true}, nil
	}
	defer release()

	timer := prometheus.NewTimer(sweepDuration.WithLabelValues(string(models.SweepKindExpansion)))
	defer timer.ObserveDuration()

	startedAt := f.now()
	localNow := startedAt.In(f.location)

	active := true
	rules, err := f.ruleRepo.ByFilter(ctx, models.RuleFilter{IsActive: &active}, "id ASC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("RULE_EXPANSION_FAILED", "Failed to load active rules", err)
	}

	result := &dto.ExpansionResult{RulesEvaluated: len(rules)}
	pools := make(map[uint][]*models.Client)
	failed := 0

	for _, rule := range rules {
		if localNow.Hour() < rule.SendHour {
			continue
		}
		result.RulesDue++

		pool, ok := pools[rule.GymID]
		if !ok {
			pool, err = f.clientRepo.ByFilter(ctx, models.ClientFilter{GymID: &rule.GymID}, "id ASC", 0, 0)
			if err != nil {
				log.Printf("rule expansion: load clients of gym %d failed: %v", rule.GymID, err)
				failed++
				continue
			}
			pools[rule.GymID] = pool
		}

		audience := ResolveRuleAudience(rule, pool)
		if len(audience) == 0 {
			continue
		}
		sendAt := SendTimeFor(localNow, rule.SendHour)

		switch rule.Kind {
		case models.RuleKindReminder:
			n, err := f.expandReminders(ctx, rule, audience, sendAt)
			if err != nil {
				log.Printf("rule expansion: rule %d reminders failed: %v", rule.ID, err)
				failed++
				continue
			}
			result.RemindersCreated += n
		case models.RuleKindCampaign:
			n, err := f.expandCampaigns(ctx, rule, audience, sendAt)
			if err != nil {
				log.Printf("rule expansion: rule %d campaigns failed: %v", rule.ID, err)
				failed++
				continue
			}
			result.CampaignsCreated += n
		}
	}

	created := result.RemindersCreated + result.CampaignsCreated
	sweepRecords.WithLabelValues(string(models.SweepKindExpansion), "created").Add(float64(created))
	sweepRecords.WithLabelValues(string(models.SweepKindExpansion), "failed").Add(float64(failed))

	if created == 0 && failed == 0 {
		return result, nil
	}
	run := &models.SweepRun{
		Kind:       models.SweepKindExpansion,
		Processed:  result.RulesDue,
		Sent:       int(created),
		Failed:     failed,
		StartedAt:  startedAt,
		FinishedAt: f.now(),
	}
	if err := f.sweepRunRepo.Save(ctx, run); err != nil {
		log.Printf("rule expansion: save sweep run failed: %v", err)
	}
	log.Printf("rule expansion: rules_due=%d reminders=%d campaigns=%d failed=%d",
		result.RulesDue, result.RemindersCreated, result.CampaignsCreated, failed)
	return result, nil
}

func (f *RuleExpansionFlowImpl) expandReminders(ctx context.Context, rule *models.Rule, audience []*models.Client, sendAt time.Time) (int64, error) {
	ruleID := rule.ID
	rows := make([]*models.Reminder, 0, len(audience))
	for _, c := range audience {
		rows = append(rows, &models.Reminder{
			GymID:    rule.GymID,
			ClientID: c.ID,
			RuleID:   &ruleID,
			Message:  Personalize(rule.TemplateMessage, c),
			Channel:  rule.Channel,
			SendAt:   sendAt,
			Status:   models.ReminderStatusPending,
		})
	}
	return f.reminderRepo.SaveIgnoringDuplicates(ctx, rows)
}

func (f *RuleExpansionFlowImpl) expandCampaigns(ctx context.Context, rule *models.Rule, audience []*models.Client, startAt time.Time) (int64, error) {
	ruleID := rule.ID
	rows := make([]*models.Campaign, 0, len(audience))
	for _, c := range audience {
		rows = append(rows, &models.Campaign{
			GymID:     rule.GymID,
			Name:      rule.Name,
			Status:    models.CampaignStatusScheduled,
			StartDate: startAt,
			ClientID:  c.ID,
			RuleID:    &ruleID,
			Message:   Personalize(rule.TemplateMessage, c),
			Channel:   rule.Channel,
		})
	}
	return f.campaignRepo.SaveIgnoringDuplicates(ctx, rows)
}
