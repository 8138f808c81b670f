package businessflow

import (
	"fmt"
	"log"
	"strings"

	"github.com/amirphl/gymdesk/models"
)

// AudienceTarget is one parsed audience clause of a rule. The set of
// implementations is closed: AllClients, SpecificPlan and SpecificStatus.
type AudienceTarget interface {
	Matches(c *models.Client) bool
	isAudienceTarget()
}

// AllClients matches every client of the pool
type AllClients struct{}

func (AllClients) Matches(c *models.Client) bool { return c != nil }
func (AllClients) isAudienceTarget()             {}

// SpecificPlan matches clients on exactly this plan
type SpecificPlan struct {
	Plan string
}

func (t SpecificPlan) Matches(c *models.Client) bool {
	return c != nil && c.Plan != nil && *c.Plan == t.Plan
}
func (SpecificPlan) isAudienceTarget() {}

// SpecificStatus matches clients in this membership status
type SpecificStatus struct {
	Status models.ClientStatus
}

func (t SpecificStatus) Matches(c *models.Client) bool {
	return c != nil && c.Status == t.Status
}
func (SpecificStatus) isAudienceTarget() {}

// ParseTarget validates a target as submitted by a caller. Unknown types and
// missing values are rejected.
func ParseTarget(targetType string, targetValue *string) (AudienceTarget, error) {
	value := ""
	if targetValue != nil {
		value = strings.TrimSpace(*targetValue)
	}

	switch models.TargetType(strings.TrimSpace(targetType)) {
	case models.TargetTypeAllClients:
		return AllClients{}, nil
	case models.TargetTypeSpecificPlan:
		if value == "" {
			return nil, fmt.Errorf("%w: specific_plan requires a plan name", ErrInvalidTargetValue)
		}
		return SpecificPlan{Plan: value}, nil
	case models.TargetTypeSpecificStatus:
		status := models.ClientStatus(strings.ToUpper(value))
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown client status %q", ErrInvalidTargetValue, value)
		}
		return SpecificStatus{Status: status}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidTargetType, targetType)
	}
}

// parseStoredTarget interprets a persisted target. Rows that no longer parse
// match nobody; ok is false for them.
func parseStoredTarget(t models.RuleTarget) (AudienceTarget, bool) {
	switch t.TargetType {
	case models.TargetTypeAllClients:
		return AllClients{}, true
	case models.TargetTypeSpecificPlan:
		if t.TargetValue == nil {
			return nil, false
		}
		return SpecificPlan{Plan: *t.TargetValue}, true
	case models.TargetTypeSpecificStatus:
		if t.TargetValue == nil {
			return nil, false
		}
		return SpecificStatus{Status: models.ClientStatus(strings.ToUpper(*t.TargetValue))}, true
	default:
		return nil, false
	}
}

// ResolveAudience returns the clients matching at least one target, in pool order.
// An empty target list selects the whole pool.
func ResolveAudience(targets []AudienceTarget, pool []*models.Client) []*models.Client {
	if len(targets) == 0 {
		out := make([]*models.Client, len(pool))
		copy(out, pool)
		return out
	}

	out := make([]*models.Client, 0, len(pool))
	for _, c := range pool {
		for _, t := range targets {
			if t.Matches(c) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// ResolveRuleAudience resolves the stored targets of a rule against a client pool
func ResolveRuleAudience(rule *models.Rule, pool []*models.Client) []*models.Client {
	if len(rule.Targets) == 0 {
		return ResolveAudience(nil, pool)
	}

	parsed := make([]AudienceTarget, 0, len(rule.Targets))
	skipped := 0
	for _, t := range rule.Targets {
		at, ok := parseStoredTarget(t)
		if !ok {
			skipped++
			continue
		}
		parsed = append(parsed, at)
	}
	if skipped > 0 {
		log.Printf("rule %d: ignored %d unrecognized audience targets", rule.ID, skipped)
	}
	if len(parsed) == 0 {
		// every stored target was unrecognized: the union of nothing
		return []*models.Client{}
	}
	return ResolveAudience(parsed, pool)
}
