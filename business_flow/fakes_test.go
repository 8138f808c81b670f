package businessflow

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/amirphl/gymdesk/app/services"
	"github.com/amirphl/gymdesk/models"
	"github.com/google/uuid"
)

// In-memory implementations of the repository interfaces used by the flow tests

type fakeClientRepo struct {
	mu     sync.Mutex
	rows   map[uint]*models.Client
	nextID uint
}

func newFakeClientRepo() *fakeClientRepo {
	return &fakeClientRepo{rows: map[uint]*models.Client{}}
}

func (r *fakeClientRepo) add(c *models.Client) *models.Client {
	_ = r.Save(context.Background(), c)
	return c
}

func (r *fakeClientRepo) ByID(ctx context.Context, id uint) (*models.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *fakeClientRepo) match(c *models.Client, f models.ClientFilter) bool {
	if f.ID != nil && c.ID != *f.ID {
		return false
	}
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == c.ID {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	if f.GymID != nil && c.GymID != *f.GymID {
		return false
	}
	if f.Plan != nil && (c.Plan == nil || *c.Plan != *f.Plan) {
		return false
	}
	if f.Status != nil && c.Status != *f.Status {
		return false
	}
	return true
}

func (r *fakeClientRepo) ByFilter(ctx context.Context, f models.ClientFilter, orderBy string, limit, offset int) ([]*models.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Client{}
	for _, c := range r.rows {
		if r.match(c, f) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, limit, offset), nil
}

func (r *fakeClientRepo) Save(ctx context.Context, c *models.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.ID = r.nextID
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = models.ClientStatusActive
	}
	cp := *c
	r.rows[c.ID] = &cp
	return nil
}

func (r *fakeClientRepo) SaveBatch(ctx context.Context, cs []*models.Client) error {
	for _, c := range cs {
		if err := r.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeClientRepo) Count(ctx context.Context, f models.ClientFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeClientRepo) Exists(ctx context.Context, f models.ClientFilter) (bool, error) {
	n, _ := r.Count(ctx, f)
	return n > 0, nil
}

func (r *fakeClientRepo) ByIDs(ctx context.Context, ids []uint) (map[uint]*models.Client, error) {
	out := map[uint]*models.Client{}
	for _, id := range ids {
		c, _ := r.ByID(ctx, id)
		if c != nil {
			out[id] = c
		}
	}
	return out, nil
}

func (r *fakeClientRepo) Update(ctx context.Context, c *models.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[c.ID]; !ok {
		return errors.New("client not found")
	}
	cp := *c
	r.rows[c.ID] = &cp
	return nil
}

func paginate[T any](rows []*T, limit, offset int) []*T {
	if offset > 0 {
		if offset >= len(rows) {
			return []*T{}
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

type fakeReminderRepo struct {
	mu      sync.Mutex
	rows    map[uint]*models.Reminder
	nextID  uint
	clients *fakeClientRepo
}

func newFakeReminderRepo(clients *fakeClientRepo) *fakeReminderRepo {
	return &fakeReminderRepo{rows: map[uint]*models.Reminder{}, clients: clients}
}

func (r *fakeReminderRepo) add(rem *models.Reminder) *models.Reminder {
	if rem.Status == "" {
		rem.Status = models.ReminderStatusPending
	}
	_ = r.Save(context.Background(), rem)
	return rem
}

// get returns the stored row without copying, for assertions
func (r *fakeReminderRepo) get(id uint) models.Reminder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.rows[id]
}

func (r *fakeReminderRepo) copyOf(rem *models.Reminder) *models.Reminder {
	cp := *rem
	cp.Client = nil
	return &cp
}

func (r *fakeReminderRepo) withClient(rem *models.Reminder) *models.Reminder {
	if r.clients != nil {
		c, _ := r.clients.ByID(context.Background(), rem.ClientID)
		rem.Client = c
	}
	return rem
}

func (r *fakeReminderRepo) ByID(ctx context.Context, id uint) (*models.Reminder, error) {
	r.mu.Lock()
	rem, ok := r.rows[id]
	if !ok {
		r.mu.Unlock()
		return nil, nil
	}
	cp := r.copyOf(rem)
	r.mu.Unlock()
	return r.withClient(cp), nil
}

func (r *fakeReminderRepo) match(rem *models.Reminder, f models.ReminderFilter) bool {
	if f.ID != nil && rem.ID != *f.ID {
		return false
	}
	if f.GymID != nil && rem.GymID != *f.GymID {
		return false
	}
	if f.ClientID != nil && rem.ClientID != *f.ClientID {
		return false
	}
	if f.RuleID != nil && (rem.RuleID == nil || *rem.RuleID != *f.RuleID) {
		return false
	}
	if f.CampaignID != nil && (rem.CampaignID == nil || *rem.CampaignID != *f.CampaignID) {
		return false
	}
	if f.Status != nil && rem.Status != *f.Status {
		return false
	}
	if f.Channel != nil && rem.Channel != *f.Channel {
		return false
	}
	return true
}

func (r *fakeReminderRepo) ByFilter(ctx context.Context, f models.ReminderFilter, orderBy string, limit, offset int) ([]*models.Reminder, error) {
	r.mu.Lock()
	out := []*models.Reminder{}
	for _, rem := range r.rows {
		if r.match(rem, f) {
			out = append(out, r.copyOf(rem))
		}
	}
	r.mu.Unlock()
	sortReminders(out)
	out = paginate(out, limit, offset)
	for _, rem := range out {
		r.withClient(rem)
	}
	return out, nil
}

func sortReminders(rows []*models.Reminder) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SendAt.Equal(rows[j].SendAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].SendAt.Before(rows[j].SendAt)
	})
}

func (r *fakeReminderRepo) Save(ctx context.Context, rem *models.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertLocked(rem)
	return nil
}

func (r *fakeReminderRepo) insertLocked(rem *models.Reminder) {
	r.nextID++
	rem.ID = r.nextID
	if rem.UUID == uuid.Nil {
		rem.UUID = uuid.New()
	}
	if rem.CreatedAt.IsZero() {
		rem.CreatedAt = time.Now().UTC()
	}
	r.rows[rem.ID] = r.copyOf(rem)
}

func (r *fakeReminderRepo) SaveBatch(ctx context.Context, rows []*models.Reminder) error {
	for _, rem := range rows {
		_ = r.Save(ctx, rem)
	}
	return nil
}

func (r *fakeReminderRepo) Count(ctx context.Context, f models.ReminderFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeReminderRepo) Exists(ctx context.Context, f models.ReminderFilter) (bool, error) {
	n, _ := r.Count(ctx, f)
	return n > 0, nil
}

func (r *fakeReminderRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	due := []*models.Reminder{}
	for _, rem := range r.rows {
		if rem.IsDue(now) {
			due = append(due, rem)
		}
	}
	sortReminders(due)
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	token := uuid.NewString()
	out := make([]*models.Reminder, 0, len(due))
	for _, rem := range due {
		rem.Status = models.ReminderStatusProcessing
		claimedAt := now
		rem.ClaimedAt = &claimedAt
		rem.ClaimToken = &token
		out = append(out, r.copyOf(rem))
	}
	return out, nil
}

func (r *fakeReminderRepo) ClaimByID(ctx context.Context, id uint, now time.Time) (*models.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.rows[id]
	if !ok || rem.Status != models.ReminderStatusPending || rem.Retries >= models.MaxReminderRetries {
		return nil, nil
	}
	rem.Status = models.ReminderStatusProcessing
	claimedAt := now
	rem.ClaimedAt = &claimedAt
	token := uuid.NewString()
	rem.ClaimToken = &token
	return r.copyOf(rem), nil
}

// heldLocked reports whether id is PROCESSING under token
func (r *fakeReminderRepo) heldLocked(id uint, token string) (*models.Reminder, bool) {
	rem, ok := r.rows[id]
	if !ok || rem.Status != models.ReminderStatusProcessing || rem.ClaimToken == nil || *rem.ClaimToken != token {
		return nil, false
	}
	return rem, true
}

func (r *fakeReminderRepo) RenewClaim(ctx context.Context, id uint, token string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.heldLocked(id, token)
	if !ok {
		return false, nil
	}
	claimedAt := now
	rem.ClaimedAt = &claimedAt
	return true, nil
}

func (r *fakeReminderRepo) ReleaseStaleClaims(ctx context.Context, claimedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, rem := range r.rows {
		if rem.Status == models.ReminderStatusProcessing && rem.ClaimedAt != nil && rem.ClaimedAt.Before(claimedBefore) {
			rem.Status = models.ReminderStatusPending
			rem.ClaimedAt = nil
			rem.ClaimToken = nil
			n++
		}
	}
	return n, nil
}

func (r *fakeReminderRepo) MarkSent(ctx context.Context, id uint, token string, sentAt time.Time, providerMessageID *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.heldLocked(id, token)
	if !ok {
		return false, nil
	}
	rem.Status = models.ReminderStatusSent
	rem.SentAt = &sentAt
	rem.ProviderMessageID = providerMessageID
	rem.LastError = nil
	rem.ClaimedAt = nil
	rem.ClaimToken = nil
	return true, nil
}

func (r *fakeReminderRepo) MarkAttemptFailed(ctx context.Context, id uint, token string, retries int, status models.ReminderStatus, lastError string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.heldLocked(id, token)
	if !ok {
		return false, nil
	}
	rem.Status = status
	rem.Retries = retries
	rem.LastError = &lastError
	rem.ClaimedAt = nil
	rem.ClaimToken = nil
	return true, nil
}

func (r *fakeReminderRepo) SaveIgnoringDuplicates(ctx context.Context, rows []*models.Reminder) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var inserted int64
	for _, rem := range rows {
		if r.duplicateLocked(rem) {
			continue
		}
		r.insertLocked(rem)
		inserted++
	}
	return inserted, nil
}

func (r *fakeReminderRepo) duplicateLocked(rem *models.Reminder) bool {
	for _, existing := range r.rows {
		if rem.CampaignID != nil && existing.CampaignID != nil && *rem.CampaignID == *existing.CampaignID {
			return true
		}
		if rem.RuleID != nil && existing.RuleID != nil && *rem.RuleID == *existing.RuleID &&
			rem.ClientID == existing.ClientID && rem.SendAt.Equal(existing.SendAt) {
			return true
		}
	}
	return false
}

func (r *fakeReminderRepo) Update(ctx context.Context, rem *models.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[rem.ID]; !ok {
		return errors.New("reminder not found")
	}
	r.rows[rem.ID] = r.copyOf(rem)
	return nil
}

func (r *fakeReminderRepo) Delete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

type fakeRuleRepo struct {
	mu           sync.Mutex
	rows         map[uint]*models.Rule
	nextID       uint
	nextTargetID uint
}

func newFakeRuleRepo() *fakeRuleRepo {
	return &fakeRuleRepo{rows: map[uint]*models.Rule{}}
}

func (r *fakeRuleRepo) copyOf(rule *models.Rule) *models.Rule {
	cp := *rule
	cp.Targets = append([]models.RuleTarget(nil), rule.Targets...)
	return &cp
}

func (r *fakeRuleRepo) ByID(ctx context.Context, id uint) (*models.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return r.copyOf(rule), nil
}

func (r *fakeRuleRepo) ByFilter(ctx context.Context, f models.RuleFilter, orderBy string, limit, offset int) ([]*models.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Rule{}
	for _, rule := range r.rows {
		if f.GymID != nil && rule.GymID != *f.GymID {
			continue
		}
		if f.Kind != nil && rule.Kind != *f.Kind {
			continue
		}
		if f.IsActive != nil && rule.IsActive != *f.IsActive {
			continue
		}
		out = append(out, r.copyOf(rule))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, limit, offset), nil
}

func (r *fakeRuleRepo) Save(ctx context.Context, rule *models.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	rule.ID = r.nextID
	if rule.UUID == uuid.Nil {
		rule.UUID = uuid.New()
	}
	for i := range rule.Targets {
		r.nextTargetID++
		rule.Targets[i].ID = r.nextTargetID
		rule.Targets[i].RuleID = rule.ID
	}
	r.rows[rule.ID] = r.copyOf(rule)
	return nil
}

func (r *fakeRuleRepo) SaveBatch(ctx context.Context, rules []*models.Rule) error {
	for _, rule := range rules {
		_ = r.Save(ctx, rule)
	}
	return nil
}

func (r *fakeRuleRepo) Count(ctx context.Context, f models.RuleFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeRuleRepo) Exists(ctx context.Context, f models.RuleFilter) (bool, error) {
	n, _ := r.Count(ctx, f)
	return n > 0, nil
}

func (r *fakeRuleRepo) Update(ctx context.Context, rule *models.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rows[rule.ID]
	if !ok {
		return errors.New("rule not found")
	}
	cp := r.copyOf(rule)
	cp.Targets = stored.Targets
	r.rows[rule.ID] = cp
	return nil
}

func (r *fakeRuleRepo) ReplaceTargets(ctx context.Context, ruleID uint, targets []models.RuleTarget) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rows[ruleID]
	if !ok {
		return nil
	}
	rule.Targets = nil
	for _, t := range targets {
		r.nextTargetID++
		rule.Targets = append(rule.Targets, models.RuleTarget{ID: r.nextTargetID, RuleID: ruleID, TargetType: t.TargetType, TargetValue: t.TargetValue})
	}
	return nil
}

func (r *fakeRuleRepo) SetActive(ctx context.Context, id uint, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rows[id]
	if !ok {
		return errors.New("record not found")
	}
	rule.IsActive = active
	return nil
}

func (r *fakeRuleRepo) Delete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

type fakeCampaignRepo struct {
	mu     sync.Mutex
	rows   map[uint]*models.Campaign
	nextID uint
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{rows: map[uint]*models.Campaign{}}
}

func (r *fakeCampaignRepo) get(id uint) models.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.rows[id]
}

func (r *fakeCampaignRepo) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCampaignRepo) ByFilter(ctx context.Context, f models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Campaign{}
	for _, c := range r.rows {
		if f.GymID != nil && c.GymID != *f.GymID {
			continue
		}
		if f.ClientID != nil && c.ClientID != *f.ClientID {
			continue
		}
		if f.RuleID != nil && (c.RuleID == nil || *c.RuleID != *f.RuleID) {
			continue
		}
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		if f.StartDateBefore != nil && c.StartDate.After(*f.StartDateBefore) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, limit, offset), nil
}

func (r *fakeCampaignRepo) Save(ctx context.Context, c *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertLocked(c)
	return nil
}

func (r *fakeCampaignRepo) insertLocked(c *models.Campaign) {
	r.nextID++
	c.ID = r.nextID
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = models.CampaignStatusDraft
	}
	cp := *c
	cp.Client = nil
	r.rows[c.ID] = &cp
}

func (r *fakeCampaignRepo) SaveBatch(ctx context.Context, cs []*models.Campaign) error {
	for _, c := range cs {
		_ = r.Save(ctx, c)
	}
	return nil
}

func (r *fakeCampaignRepo) Count(ctx context.Context, f models.CampaignFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeCampaignRepo) Exists(ctx context.Context, f models.CampaignFilter) (bool, error) {
	n, _ := r.Count(ctx, f)
	return n > 0, nil
}

func (r *fakeCampaignRepo) Update(ctx context.Context, c *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	cp.Client = nil
	r.rows[c.ID] = &cp
	return nil
}

func (r *fakeCampaignRepo) TransitionStatus(ctx context.Context, id uint, from, to models.CampaignStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

func (r *fakeCampaignRepo) CompleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.rows {
		if c.Status == models.CampaignStatusActive && c.EndDate != nil && c.EndDate.Before(now) {
			c.Status = models.CampaignStatusCompleted
			n++
		}
	}
	return n, nil
}

func (r *fakeCampaignRepo) SaveIgnoringDuplicates(ctx context.Context, cs []*models.Campaign) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var inserted int64
	for _, c := range cs {
		dup := false
		for _, existing := range r.rows {
			if c.RuleID != nil && existing.RuleID != nil && *c.RuleID == *existing.RuleID &&
				c.ClientID == existing.ClientID && c.StartDate.Equal(existing.StartDate) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		r.insertLocked(c)
		inserted++
	}
	return inserted, nil
}

func (r *fakeCampaignRepo) Delete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

type fakeSweepRunRepo struct {
	mu   sync.Mutex
	runs []*models.SweepRun
}

func (r *fakeSweepRunRepo) ByID(ctx context.Context, id uint) (*models.SweepRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.runs {
		if run.ID == id {
			return run, nil
		}
	}
	return nil, nil
}

func (r *fakeSweepRunRepo) ByFilter(ctx context.Context, f models.SweepRunFilter, orderBy string, limit, offset int) ([]*models.SweepRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.SweepRun{}
	for _, run := range r.runs {
		if f.Kind != nil && run.Kind != *f.Kind {
			continue
		}
		out = append(out, run)
	}
	return paginate(out, limit, offset), nil
}

func (r *fakeSweepRunRepo) Save(ctx context.Context, run *models.SweepRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.ID = uint(len(r.runs) + 1)
	r.runs = append(r.runs, run)
	return nil
}

func (r *fakeSweepRunRepo) SaveBatch(ctx context.Context, runs []*models.SweepRun) error {
	for _, run := range runs {
		_ = r.Save(ctx, run)
	}
	return nil
}

func (r *fakeSweepRunRepo) Count(ctx context.Context, f models.SweepRunFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeSweepRunRepo) Exists(ctx context.Context, f models.SweepRunFilter) (bool, error) {
	n, _ := r.Count(ctx, f)
	return n > 0, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type busyLocker struct{}

func (busyLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	return nil, false, nil
}

type brokenLocker struct{}

func (brokenLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	return nil, false, errors.New("redis: connection refused")
}

// panickingSender blows up on every send
type panickingSender struct{}

func (panickingSender) SendMessage(ctx context.Context, to, body string) (string, error) {
	panic("provider client exploded")
}

var _ services.MessagingSender = panickingSender{}

func strPtr(s string) *string { return &s }

func uintPtr(u uint) *uint { return &u }
