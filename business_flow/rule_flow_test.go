package businessflow

import (
	"context"
	"testing"

	"github.com/amirphl/gymdesk/app/dto"
	"github.com/amirphl/gymdesk/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRuleFixture() (*fakeRuleRepo, *fakeClientRepo, RuleFlow) {
	rules := newFakeRuleRepo()
	clients := newFakeClientRepo()
	return rules, clients, NewRuleFlow(rules, clients, fakeTxRunner{})
}

func planTarget(plan string) dto.RuleTargetInput {
	return dto.RuleTargetInput{TargetType: "specific_plan", TargetValue: strPtr(plan)}
}

func TestCreateRule(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		_, _, flow := newRuleFixture()
		item, err := flow.CreateRule(ctx, &dto.CreateRuleRequest{
			GymID: 1, Kind: "reminder", Name: " Vencimiento ", RuleType: "expiry",
			TemplateMessage: "Hola {nombre}",
		})
		require.NoError(t, err)
		assert.Equal(t, "Vencimiento", item.Name)
		assert.Equal(t, "whatsapp", item.Channel)
		assert.Equal(t, 9, item.SendHour)
		assert.True(t, item.IsActive)
		assert.Empty(t, item.Targets)
	})

	t.Run("explicit zero hour and inactive are kept", func(t *testing.T) {
		_, _, flow := newRuleFixture()
		hour, active := 0, false
		item, err := flow.CreateRule(ctx, &dto.CreateRuleRequest{
			GymID: 1, Kind: "campaign", Name: "Noche", RuleType: "promo",
			TemplateMessage: "x", SendHour: &hour, IsActive: &active,
		})
		require.NoError(t, err)
		assert.Equal(t, 0, item.SendHour)
		assert.False(t, item.IsActive)
		assert.Equal(t, "campaign", item.Kind)
	})

	t.Run("status targets are normalized", func(t *testing.T) {
		_, _, flow := newRuleFixture()
		item, err := flow.CreateRule(ctx, &dto.CreateRuleRequest{
			GymID: 1, Kind: "reminder", Name: "r", RuleType: "t", TemplateMessage: "x",
			Targets: []dto.RuleTargetInput{{TargetType: "specific_status", TargetValue: strPtr(" expired ")}},
		})
		require.NoError(t, err)
		require.Len(t, item.Targets, 1)
		assert.Equal(t, "EXPIRED", *item.Targets[0].TargetValue)
	})

	tests := []struct {
		name    string
		req     dto.CreateRuleRequest
		invalid func(error) bool
	}{
		{
			name:    "unknown target type",
			req:     dto.CreateRuleRequest{Targets: []dto.RuleTargetInput{{TargetType: "vip_only"}}},
			invalid: IsInvalidTarget,
		},
		{
			name:    "plan without value",
			req:     dto.CreateRuleRequest{Targets: []dto.RuleTargetInput{{TargetType: "specific_plan"}}},
			invalid: IsInvalidTarget,
		},
		{
			name:    "unknown status",
			req:     dto.CreateRuleRequest{Targets: []dto.RuleTargetInput{{TargetType: "specific_status", TargetValue: strPtr("GONE")}}},
			invalid: IsInvalidTarget,
		},
		{
			name:    "send hour out of range",
			req:     dto.CreateRuleRequest{SendHour: func() *int { h := 24; return &h }()},
			invalid: IsValidationError,
		},
		{
			name:    "unknown channel",
			req:     dto.CreateRuleRequest{Channel: "fax"},
			invalid: IsInvalidChannel,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules, _, flow := newRuleFixture()
			req := tt.req
			req.GymID, req.Kind, req.Name, req.RuleType, req.TemplateMessage = 1, "reminder", "r", "t", "x"
			_, err := flow.CreateRule(ctx, &req)
			require.Error(t, err)
			assert.True(t, tt.invalid(err), "unexpected error: %v", err)
			assert.Empty(t, rules.rows)
		})
	}

	t.Run("unknown kind", func(t *testing.T) {
		_, _, flow := newRuleFixture()
		_, err := flow.CreateRule(ctx, &dto.CreateRuleRequest{GymID: 1, Kind: "birthday", Name: "r", RuleType: "t", TemplateMessage: "x"})
		assert.Error(t, err)
	})
}

func TestUpdateRuleTargets(t *testing.T) {
	ctx := context.Background()
	_, _, flow := newRuleFixture()

	created, err := flow.CreateRule(ctx, &dto.CreateRuleRequest{
		GymID: 1, Kind: "reminder", Name: "r", RuleType: "t", TemplateMessage: "x",
		Targets: []dto.RuleTargetInput{planTarget("Gold"), planTarget("Silver")},
	})
	require.NoError(t, err)

	name := "renombrada"
	item, err := flow.UpdateRule(ctx, &dto.UpdateRuleRequest{GymID: 1, Kind: "reminder", RuleID: created.ID, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "renombrada", item.Name)
	assert.Len(t, item.Targets, 2, "omitted targets are kept")

	replaced := []dto.RuleTargetInput{planTarget("Black")}
	item, err = flow.UpdateRule(ctx, &dto.UpdateRuleRequest{GymID: 1, Kind: "reminder", RuleID: created.ID, Targets: &replaced})
	require.NoError(t, err)
	require.Len(t, item.Targets, 1)
	assert.Equal(t, "Black", *item.Targets[0].TargetValue)

	bad := []dto.RuleTargetInput{{TargetType: "nope"}}
	_, err = flow.UpdateRule(ctx, &dto.UpdateRuleRequest{GymID: 1, Kind: "reminder", RuleID: created.ID, Targets: &bad})
	assert.True(t, IsInvalidTarget(err))

	empty := []dto.RuleTargetInput{}
	item, err = flow.UpdateRule(ctx, &dto.UpdateRuleRequest{GymID: 1, Kind: "reminder", RuleID: created.ID, Targets: &empty})
	require.NoError(t, err)
	assert.Empty(t, item.Targets, "an empty list clears targets")
}

func TestRuleLookupIsScoped(t *testing.T) {
	ctx := context.Background()
	_, _, flow := newRuleFixture()

	created, err := flow.CreateRule(ctx, &dto.CreateRuleRequest{GymID: 1, Kind: "reminder", Name: "r", RuleType: "t", TemplateMessage: "x"})
	require.NoError(t, err)

	_, err = flow.GetRule(ctx, 2, "reminder", created.ID)
	assert.True(t, IsRuleNotFound(err))
	assert.Equal(t, "not found", err.Error())

	_, err = flow.GetRule(ctx, 1, "campaign", created.ID)
	assert.True(t, IsRuleNotFound(err))

	_, err = flow.GetRule(ctx, 1, "reminder", 999)
	assert.True(t, IsRuleNotFound(err))

	list, err := flow.ListRules(ctx, 1, "campaign")
	require.NoError(t, err)
	assert.Empty(t, list.Items)
}

func TestToggleAndDeleteRule(t *testing.T) {
	ctx := context.Background()
	rules, _, flow := newRuleFixture()

	created, err := flow.CreateRule(ctx, &dto.CreateRuleRequest{
		GymID: 1, Kind: "reminder", Name: "r", RuleType: "t", TemplateMessage: "x",
		Targets: []dto.RuleTargetInput{{TargetType: "all_clients"}},
	})
	require.NoError(t, err)

	item, err := flow.ToggleRule(ctx, 1, "reminder", created.ID)
	require.NoError(t, err)
	assert.False(t, item.IsActive)
	stored, _ := rules.ByID(ctx, created.ID)
	assert.False(t, stored.IsActive)

	item, err = flow.ToggleRule(ctx, 1, "reminder", created.ID)
	require.NoError(t, err)
	assert.True(t, item.IsActive)

	require.NoError(t, flow.DeleteRule(ctx, 1, "reminder", created.ID))
	_, err = flow.GetRule(ctx, 1, "reminder", created.ID)
	assert.True(t, IsRuleNotFound(err))
	assert.True(t, IsRuleNotFound(flow.DeleteRule(ctx, 1, "reminder", created.ID)))
}

func TestPreviewRule(t *testing.T) {
	ctx := context.Background()
	_, clients, flow := newRuleFixture()

	for _, c := range []*models.Client{
		{GymID: 1, Name: "Ana", Plan: strPtr("Gold")},
		{GymID: 1, Name: "Beto", Plan: strPtr("Gold")},
		{GymID: 1, Name: "Carla", Plan: strPtr("Silver")},
		{GymID: 1, Name: "Dani", Plan: strPtr("Gold")},
		{GymID: 1, Name: "Eva", Plan: strPtr("Gold")},
		{GymID: 2, Name: "Otro", Plan: strPtr("Gold")},
	} {
		clients.add(c)
	}

	gold, err := flow.CreateRule(ctx, &dto.CreateRuleRequest{
		GymID: 1, Kind: "reminder", Name: "Gold", RuleType: "promo", TemplateMessage: "Hola {nombre}, plan {plan}",
		Targets: []dto.RuleTargetInput{planTarget("Gold")},
	})
	require.NoError(t, err)

	preview, err := flow.PreviewRule(ctx, 1, "reminder", gold.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, preview.TotalAffectedClients)
	assert.Equal(t, []string{"Hola Ana, plan Gold", "Hola Beto, plan Gold", "Hola Dani, plan Gold"}, preview.SampleMessages)
	assert.Equal(t, "promo", preview.RuleType)

	all, err := flow.CreateRule(ctx, &dto.CreateRuleRequest{GymID: 1, Kind: "reminder", Name: "Todos", RuleType: "t", TemplateMessage: "{nombre}"})
	require.NoError(t, err)
	preview, err = flow.PreviewRule(ctx, 1, "reminder", all.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, preview.TotalAffectedClients, "no targets reaches every client of the gym")
	assert.Len(t, preview.SampleMessages, 3)
}
