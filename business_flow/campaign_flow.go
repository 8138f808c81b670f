package businessflow

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/amirphl/gymdesk/app/dto"
	"github.com/amirphl/gymdesk/config"
	"github.com/amirphl/gymdesk/models"
	"github.com/amirphl/gymdesk/repository"
	"github.com/amirphl/gymdesk/utils"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
)

const campaignSweepLockKey = "lock:sweep:campaigns"

// CampaignFlow manages campaigns and their activation lifecycle
type CampaignFlow interface {
	CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest) (*dto.CampaignItem, error)
	ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error)
	GetCampaign(ctx context.Context, gymID, campaignID uint) (*dto.CampaignItem, error)
	ChangeStatus(ctx context.Context, req *dto.ChangeCampaignStatusRequest) (*dto.CampaignItem, error)
	DeleteCampaign(ctx context.Context, gymID, campaignID uint) error
	RunActivationSweep(ctx context.Context) (*dto.CampaignSweepResult, error)
}

// CampaignFlowImpl implements CampaignFlow
type CampaignFlowImpl struct {
	campaignRepo repository.CampaignRepository
	reminderRepo repository.ReminderRepository
	clientRepo   repository.ClientRepository
	sweepRunRepo repository.SweepRunRepository
	txRunner     repository.TxRunner
	locker       SweepLocker
	cfg          config.SchedulerConfig
	now          func() time.Time
}

func NewCampaignFlow(
	campaignRepo repository.CampaignRepository,
	reminderRepo repository.ReminderRepository,
	clientRepo repository.ClientRepository,
	sweepRunRepo repository.SweepRunRepository,
	txRunner repository.TxRunner,
	locker SweepLocker,
	cfg config.SchedulerConfig,
) CampaignFlow {
	if locker == nil {
		locker = NoopSweepLocker{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = utils.DefaultSweepBatchSize
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = utils.DefaultSweepLockTTL
	}
	return &CampaignFlowImpl{
		campaignRepo: campaignRepo,
		reminderRepo: reminderRepo,
		clientRepo:   clientRepo,
		sweepRunRepo: sweepRunRepo,
		txRunner:     txRunner,
		locker:       locker,
		cfg:          cfg,
		now:          utils.UTCNow,
	}
}

func (f *CampaignFlowImpl) CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest) (*dto.CampaignItem, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, NewBusinessError("INVALID_MESSAGE", "message is required", nil)
	}
	channel := models.DeliveryChannelWhatsapp
	if req.Channel != "" {
		channel = models.DeliveryChannel(req.Channel)
		if !channel.Valid() {
			return nil, ErrInvalidChannel
		}
	}
	start := req.StartDate.UTC()
	end := utils.TimeToUTCPtr(req.EndDate)
	if end != nil && !end.After(start) {
		return nil, ErrInvalidCampaignDates
	}

	client, err := getGymClient(ctx, f.clientRepo, req.GymID, req.ClientID)
	if err != nil {
		return nil, err
	}

	status := models.CampaignStatusDraft
	if req.Schedule {
		status = models.CampaignStatusScheduled
	}
	c := &models.Campaign{
		GymID:     req.GymID,
		Name:      strings.TrimSpace(req.Name),
		Status:    status,
		StartDate: start,
		EndDate:   end,
		ClientID:  client.ID,
		Message:   req.Message,
		Channel:   channel,
	}
	if err := f.campaignRepo.Save(ctx, c); err != nil {
		return nil, NewBusinessError("CAMPAIGN_CREATE_FAILED", "Failed to create campaign", err)
	}
	c.Client = client

	item := ToCampaignItem(c)
	return &item, nil
}

func (f *CampaignFlowImpl) ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error) {
	filter := models.CampaignFilter{GymID: &req.GymID, ClientID: req.ClientID}
	if req.Status != nil && *req.Status != "" {
		st := models.CampaignStatus(strings.ToUpper(*req.Status))
		if !st.Valid() {
			return nil, NewBusinessError("INVALID_CAMPAIGN_STATUS", "invalid campaign status", nil)
		}
		filter.Status = &st
	}

	limit, offset := pagination(req.Page, req.PageSize)
	rows, err := f.campaignRepo.ByFilter(ctx, filter, "id DESC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to list campaigns", err)
	}
	total, err := f.campaignRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to count campaigns", err)
	}

	items := make([]dto.CampaignItem, 0, len(rows))
	for _, c := range rows {
		items = append(items, ToCampaignItem(c))
	}
	return &dto.ListCampaignsResponse{Message: "Campaigns retrieved successfully", Items: items, Total: total}, nil
}

func (f *CampaignFlowImpl) GetCampaign(ctx context.Context, gymID, campaignID uint) (*dto.CampaignItem, error) {
	c, err := f.loadCampaign(ctx, gymID, campaignID)
	if err != nil {
		return nil, err
	}
	item := ToCampaignItem(c)
	return &item, nil
}

// ChangeStatus performs a manual transition. Moving to ACTIVE enqueues the
// delivery reminder exactly as the activation sweep does.
func (f *CampaignFlowImpl) ChangeStatus(ctx context.Context, req *dto.ChangeCampaignStatusRequest) (*dto.CampaignItem, error) {
	c, err := f.loadCampaign(ctx, req.GymID, req.CampaignID)
	if err != nil {
		return nil, err
	}
	to := models.CampaignStatus(strings.ToUpper(req.Status))
	if !to.Valid() || !c.CanTransitionTo(to) {
		return nil, NewBusinessErrorf("INVALID_CAMPAIGN_TRANSITION", "cannot move campaign from %s to %s", ErrInvalidCampaignTransition, c.Status, to)
	}

	var ok bool
	if to == models.CampaignStatusActive {
		ok, _, err = f.activate(ctx, c)
	} else {
		ok, err = f.campaignRepo.TransitionStatus(ctx, c.ID, c.Status, to)
	}
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_STATUS_UPDATE_FAILED", "Failed to update campaign status", err)
	}
	if !ok {
		// changed concurrently
		return nil, ErrInvalidCampaignTransition
	}

	c.Status = to
	item := ToCampaignItem(c)
	return &item, nil
}

func (f *CampaignFlowImpl) DeleteCampaign(ctx context.Context, gymID, campaignID uint) error {
	c, err := f.loadCampaign(ctx, gymID, campaignID)
	if err != nil {
		return err
	}
	if !c.IsEditable() {
		return ErrCampaignNotEditable
	}
	if err := f.campaignRepo.Delete(ctx, c.ID); err != nil {
		return NewBusinessError("CAMPAIGN_DELETE_FAILED", "Failed to delete campaign", err)
	}
	return nil
}

// activate moves the campaign to ACTIVE and enqueues its reminder in one
// transaction. ok is false when the campaign left its status meanwhile.
func (f *CampaignFlowImpl) activate(ctx context.Context, c *models.Campaign) (ok bool, reminderID uint, err error) {
	err = f.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		moved, err := f.campaignRepo.TransitionStatus(txCtx, c.ID, c.Status, models.CampaignStatusActive)
		if err != nil || !moved {
			return err
		}
		ok = true

		campaignID := c.ID
		r := &models.Reminder{
			GymID:      c.GymID,
			ClientID:   c.ClientID,
			CampaignID: &campaignID,
			Message:    c.Message,
			Channel:    c.Channel,
			SendAt:     c.StartDate,
			EndDate:    c.EndDate,
			Status:     models.ReminderStatusPending,
		}
		// resuming a paused campaign finds its reminder already present
		if _, err := f.reminderRepo.SaveIgnoringDuplicates(txCtx, []*models.Reminder{r}); err != nil {
			return err
		}
		reminderID = r.ID
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return ok, reminderID, nil
}

// RunActivationSweep starts due SCHEDULED campaigns and completes expired ACTIVE ones
func (f *CampaignFlowImpl) RunActivationSweep(ctx context.Context) (*dto.CampaignSweepResult, error) {
	release, ok := acquireSweepLock(ctx, f.locker, campaignSweepLockKey, f.cfg.LockTTL)
	if !ok {
		return &dto.CampaignSweepResult{Skipped: true}, nil
	}
	defer release()

	timer := prometheus.NewTimer(sweepDuration.WithLabelValues(string(models.SweepKindCampaigns)))
	defer timer.ObserveDuration()

	startedAt := f.now()
	scheduled := models.CampaignStatusScheduled
	due, err := f.campaignRepo.ByFilter(ctx, models.CampaignFilter{Status: &scheduled, StartDateBefore: &startedAt}, "start_date ASC, id ASC", f.cfg.BatchSize, 0)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_SWEEP_FAILED", "Failed to load due campaigns", err)
	}

	result := &dto.CampaignSweepResult{}
	ids := make(pq.Int64Array, 0, len(due))
	for _, c := range due {
		activated, reminderID, err := f.activate(ctx, c)
		if err != nil {
			log.Printf("campaign sweep: activate campaign %d failed: %v", c.ID, err)
			result.Failed++
			continue
		}
		if !activated {
			continue
		}
		result.Activated++
		if reminderID != 0 {
			ids = append(ids, int64(reminderID))
		}
	}

	completed, err := f.campaignRepo.CompleteExpired(ctx, startedAt)
	if err != nil {
		log.Printf("campaign sweep: complete expired campaigns failed: %v", err)
	}
	result.Completed = completed

	sweepRecords.WithLabelValues(string(models.SweepKindCampaigns), "activated").Add(float64(result.Activated))
	sweepRecords.WithLabelValues(string(models.SweepKindCampaigns), "completed").Add(float64(result.Completed))
	sweepRecords.WithLabelValues(string(models.SweepKindCampaigns), "failed").Add(float64(result.Failed))

	processed := result.Activated + result.Failed + int(result.Completed)
	if processed == 0 {
		return result, nil
	}

	run := &models.SweepRun{
		Kind:        models.SweepKindCampaigns,
		Processed:   processed,
		Sent:        result.Activated,
		Failed:      result.Failed,
		ReminderIDs: ids,
		StartedAt:   startedAt,
		FinishedAt:  f.now(),
	}
	if err := f.sweepRunRepo.Save(ctx, run); err != nil {
		log.Printf("campaign sweep: save sweep run failed: %v", err)
	}
	log.Printf("campaign sweep: activated=%d completed=%d failed=%d", result.Activated, result.Completed, result.Failed)
	return result, nil
}

func (f *CampaignFlowImpl) loadCampaign(ctx context.Context, gymID, campaignID uint) (*models.Campaign, error) {
	c, err := f.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to load campaign", err)
	}
	if c == nil || c.GymID != gymID {
		return nil, ErrCampaignNotFound
	}
	return c, nil
}
