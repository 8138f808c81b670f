package handlers

import (
	"context"
	"log"
	"time"

	businessflow "github.com/amirphl/gymdesk/business_flow"
	"github.com/amirphl/gymdesk/utils"
	"github.com/gofiber/fiber/v3"
)

// sweeps may run past the request timeout of the staff endpoints
const cronRequestTimeout = 10 * time.Minute

// CronHandler exposes the scheduled jobs to an external trigger.
// Responses are the raw run results, not wrapped in APIResponse.
type CronHandler struct {
	baseHandler
	sweepFlow     businessflow.SweepFlow
	campaignFlow  businessflow.CampaignFlow
	expansionFlow businessflow.RuleExpansionFlow
}

// NewCronHandler creates a new cron handler
func NewCronHandler(sweepFlow businessflow.SweepFlow, campaignFlow businessflow.CampaignFlow, expansionFlow businessflow.RuleExpansionFlow) *CronHandler {
	return &CronHandler{
		baseHandler:   newBaseHandler(),
		sweepFlow:     sweepFlow,
		campaignFlow:  campaignFlow,
		expansionFlow: expansionFlow,
	}
}

func (h *CronHandler) cronContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), cronRequestTimeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	return ctx, cancel
}

// RunReminders delivers due reminders
// @Summary Run Reminder Sweep
// @Tags Cron
// @Produce json
// @Param x-cron-secret header string true "Cron secret"
// @Success 200 {object} dto.SweepResult
// @Failure 401 {object} dto.APIResponse
// @Router /api/v1/cron/reminders [post]
func (h *CronHandler) RunReminders(c fiber.Ctx) error {
	ctx, cancel := h.cronContext(c, "/api/v1/cron/reminders")
	defer cancel()

	res, err := h.sweepFlow.RunReminderSweep(ctx)
	if err != nil {
		log.Printf("reminder sweep failed: %v", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Reminder sweep failed", "SWEEP_FAILED", nil)
	}
	return c.Status(fiber.StatusOK).JSON(res)
}

// RunCampaigns activates scheduled campaigns and completes expired ones
// @Summary Run Campaign Activation Sweep
// @Tags Cron
// @Produce json
// @Param x-cron-secret header string true "Cron secret"
// @Success 200 {object} dto.CampaignSweepResult
// @Failure 401 {object} dto.APIResponse
// @Router /api/v1/cron/campaigns [post]
func (h *CronHandler) RunCampaigns(c fiber.Ctx) error {
	ctx, cancel := h.cronContext(c, "/api/v1/cron/campaigns")
	defer cancel()

	res, err := h.campaignFlow.RunActivationSweep(ctx)
	if err != nil {
		log.Printf("campaign sweep failed: %v", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign sweep failed", "SWEEP_FAILED", nil)
	}
	return c.Status(fiber.StatusOK).JSON(res)
}

// RunRules expands active rules into reminders and campaigns
// @Summary Run Rule Expansion
// @Tags Cron
// @Produce json
// @Param x-cron-secret header string true "Cron secret"
// @Success 200 {object} dto.ExpansionResult
// @Failure 401 {object} dto.APIResponse
// @Router /api/v1/cron/rules [post]
func (h *CronHandler) RunRules(c fiber.Ctx) error {
	ctx, cancel := h.cronContext(c, "/api/v1/cron/rules")
	defer cancel()

	res, err := h.expansionFlow.RunExpansion(ctx)
	if err != nil {
		log.Printf("rule expansion failed: %v", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Rule expansion failed", "SWEEP_FAILED", nil)
	}
	return c.Status(fiber.StatusOK).JSON(res)
}
