package businessflow

import (
	"context"
	"strings"

	"github.com/amirphl/gymdesk/app/dto"
	"github.com/amirphl/gymdesk/models"
	"github.com/amirphl/gymdesk/repository"
	"github.com/amirphl/gymdesk/utils"
)

const defaultSendHour = 9

// RuleFlow manages reminder and campaign rules
type RuleFlow interface {
	CreateRule(ctx context.Context, req *dto.CreateRuleRequest) (*dto.RuleItem, error)
	ListRules(ctx context.Context, gymID uint, kind string) (*dto.ListRulesResponse, error)
	GetRule(ctx context.Context, gymID uint, kind string, ruleID uint) (*dto.RuleItem, error)
	UpdateRule(ctx context.Context, req *dto.UpdateRuleRequest) (*dto.RuleItem, error)
	DeleteRule(ctx context.Context, gymID uint, kind string, ruleID uint) error
	ToggleRule(ctx context.Context, gymID uint, kind string, ruleID uint) (*dto.RuleItem, error)
	PreviewRule(ctx context.Context, gymID uint, kind string, ruleID uint) (*dto.RulePreviewResponse, error)
}

// RuleFlowImpl implements RuleFlow
type RuleFlowImpl struct {
	ruleRepo   repository.RuleRepository
	clientRepo repository.ClientRepository
	txRunner   repository.TxRunner
}

func NewRuleFlow(ruleRepo repository.RuleRepository, clientRepo repository.ClientRepository, txRunner repository.TxRunner) RuleFlow {
	return &RuleFlowImpl{ruleRepo: ruleRepo, clientRepo: clientRepo, txRunner: txRunner}
}

func parseRuleKind(kind string) (models.RuleKind, error) {
	k := models.RuleKind(kind)
	if !k.Valid() {
		return "", NewBusinessError("INVALID_RULE_KIND", "unknown rule kind", nil)
	}
	return k, nil
}

// buildTargets validates every submitted clause before anything is stored
func buildTargets(inputs []dto.RuleTargetInput) ([]models.RuleTarget, error) {
	targets := make([]models.RuleTarget, 0, len(inputs))
	for _, in := range inputs {
		if _, err := ParseTarget(in.TargetType, in.TargetValue); err != nil {
			return nil, err
		}
		t := models.RuleTarget{TargetType: models.TargetType(strings.TrimSpace(in.TargetType))}
		if v := trimmedOrNil(in.TargetValue); v != nil {
			if t.TargetType == models.TargetTypeSpecificStatus {
				upper := strings.ToUpper(*v)
				v = &upper
			}
			t.TargetValue = v
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func (f *RuleFlowImpl) CreateRule(ctx context.Context, req *dto.CreateRuleRequest) (*dto.RuleItem, error) {
	kind, err := parseRuleKind(req.Kind)
	if err != nil {
		return nil, err
	}
	channel := models.DeliveryChannelWhatsapp
	if req.Channel != "" {
		channel = models.DeliveryChannel(req.Channel)
		if !channel.Valid() {
			return nil, ErrInvalidChannel
		}
	}
	sendHour := defaultSendHour
	if req.SendHour != nil {
		if *req.SendHour < 0 || *req.SendHour > 23 {
			return nil, ErrInvalidSendHour
		}
		sendHour = *req.SendHour
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	targets, err := buildTargets(req.Targets)
	if err != nil {
		return nil, err
	}

	rule := &models.Rule{
		GymID:           req.GymID,
		Kind:            kind,
		Name:            strings.TrimSpace(req.Name),
		RuleType:        strings.TrimSpace(req.RuleType),
		TemplateMessage: req.TemplateMessage,
		Channel:         channel,
		SendHour:        sendHour,
		IsActive:        isActive,
		Targets:         targets,
	}
	// targets are inserted together with the rule
	if err := f.ruleRepo.Save(ctx, rule); err != nil {
		return nil, NewBusinessError("RULE_CREATE_FAILED", "Failed to create rule", err)
	}

	item := ToRuleItem(rule)
	return &item, nil
}

func (f *RuleFlowImpl) ListRules(ctx context.Context, gymID uint, kind string) (*dto.ListRulesResponse, error) {
	k, err := parseRuleKind(kind)
	if err != nil {
		return nil, err
	}
	rows, err := f.ruleRepo.ByFilter(ctx, models.RuleFilter{GymID: &gymID, Kind: &k}, "id ASC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("RULE_LIST_FAILED", "Failed to list rules", err)
	}
	items := make([]dto.RuleItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, ToRuleItem(r))
	}
	return &dto.ListRulesResponse{Message: "Rules retrieved successfully", Items: items}, nil
}

func (f *RuleFlowImpl) GetRule(ctx context.Context, gymID uint, kind string, ruleID uint) (*dto.RuleItem, error) {
	rule, err := f.loadRule(ctx, gymID, kind, ruleID)
	if err != nil {
		return nil, err
	}
	item := ToRuleItem(rule)
	return &item, nil
}

// UpdateRule applies the present fields. Targets are replaced only when the
// request carries a targets list; an empty list clears them.
func (f *RuleFlowImpl) UpdateRule(ctx context.Context, req *dto.UpdateRuleRequest) (*dto.RuleItem, error) {
	rule, err := f.loadRule(ctx, req.GymID, req.Kind, req.RuleID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		rule.Name = strings.TrimSpace(*req.Name)
	}
	if req.RuleType != nil {
		rule.RuleType = strings.TrimSpace(*req.RuleType)
	}
	if req.TemplateMessage != nil {
		rule.TemplateMessage = *req.TemplateMessage
	}
	if req.Channel != nil {
		ch := models.DeliveryChannel(*req.Channel)
		if !ch.Valid() {
			return nil, ErrInvalidChannel
		}
		rule.Channel = ch
	}
	if req.SendHour != nil {
		if *req.SendHour < 0 || *req.SendHour > 23 {
			return nil, ErrInvalidSendHour
		}
		rule.SendHour = *req.SendHour
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	var newTargets []models.RuleTarget
	if req.Targets != nil {
		newTargets, err = buildTargets(*req.Targets)
		if err != nil {
			return nil, err
		}
	}

	err = f.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := f.ruleRepo.Update(txCtx, rule); err != nil {
			return err
		}
		if req.Targets == nil {
			return nil
		}
		return f.ruleRepo.ReplaceTargets(txCtx, rule.ID, newTargets)
	})
	if err != nil {
		return nil, NewBusinessError("RULE_UPDATE_FAILED", "Failed to update rule", err)
	}

	updated, err := f.loadRule(ctx, req.GymID, req.Kind, req.RuleID)
	if err != nil {
		return nil, err
	}
	item := ToRuleItem(updated)
	return &item, nil
}

func (f *RuleFlowImpl) DeleteRule(ctx context.Context, gymID uint, kind string, ruleID uint) error {
	rule, err := f.loadRule(ctx, gymID, kind, ruleID)
	if err != nil {
		return err
	}
	err = f.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := f.ruleRepo.ReplaceTargets(txCtx, rule.ID, nil); err != nil {
			return err
		}
		return f.ruleRepo.Delete(txCtx, rule.ID)
	})
	if err != nil {
		return NewBusinessError("RULE_DELETE_FAILED", "Failed to delete rule", err)
	}
	return nil
}

func (f *RuleFlowImpl) ToggleRule(ctx context.Context, gymID uint, kind string, ruleID uint) (*dto.RuleItem, error) {
	rule, err := f.loadRule(ctx, gymID, kind, ruleID)
	if err != nil {
		return nil, err
	}
	if err := f.ruleRepo.SetActive(ctx, rule.ID, !rule.IsActive); err != nil {
		return nil, NewBusinessError("RULE_TOGGLE_FAILED", "Failed to toggle rule", err)
	}
	rule.IsActive = !rule.IsActive
	rule.UpdatedAt = utils.UTCNow()
	item := ToRuleItem(rule)
	return &item, nil
}

// PreviewRule resolves the audience against the current client pool and
// renders the first few messages
func (f *RuleFlowImpl) PreviewRule(ctx context.Context, gymID uint, kind string, ruleID uint) (*dto.RulePreviewResponse, error) {
	rule, err := f.loadRule(ctx, gymID, kind, ruleID)
	if err != nil {
		return nil, err
	}
	pool, err := f.clientRepo.ByFilter(ctx, models.ClientFilter{GymID: &gymID}, "id ASC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("CLIENT_LIST_FAILED", "Failed to load clients", err)
	}

	audience := ResolveRuleAudience(rule, pool)
	samples := make([]string, 0, utils.PreviewSampleSize)
	for i := 0; i < len(audience) && i < utils.PreviewSampleSize; i++ {
		samples = append(samples, Personalize(rule.TemplateMessage, audience[i]))
	}

	return &dto.RulePreviewResponse{
		RuleID:               rule.ID,
		RuleName:             rule.Name,
		RuleType:             rule.RuleType,
		TotalAffectedClients: len(audience),
		SampleMessages:       samples,
	}, nil
}

func (f *RuleFlowImpl) loadRule(ctx context.Context, gymID uint, kind string, ruleID uint) (*models.Rule, error) {
	k, err := parseRuleKind(kind)
	if err != nil {
		return nil, err
	}
	rule, err := f.ruleRepo.ByID(ctx, ruleID)
	if err != nil {
		return nil, NewBusinessError("RULE_LOOKUP_FAILED", "Failed to load rule", err)
	}
	if rule == nil || rule.GymID != gymID || rule.Kind != k {
		return nil, ErrRuleNotFound
	}
	return rule, nil
}
