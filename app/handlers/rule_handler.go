package handlers

import (
	"log"

	"github.com/amirphl/gymdesk/app/dto"
	businessflow "github.com/amirphl/gymdesk/business_flow"
	"github.com/amirphl/gymdesk/models"
	"github.com/gofiber/fiber/v3"
)

// RuleHandler serves one rule kind; the router mounts one instance per kind
type RuleHandler struct {
	baseHandler
	flow     businessflow.RuleFlow
	kind     string
	basePath string
}

// NewRuleHandler creates a rule handler bound to a rule kind
func NewRuleHandler(flow businessflow.RuleFlow, kind models.RuleKind) *RuleHandler {
	return &RuleHandler{
		baseHandler: newBaseHandler(),
		flow:        flow,
		kind:        kind.String(),
		basePath:    "/api/v1/" + kind.String() + "-rules",
	}
}

// CreateRule creates a rule with its audience targets
// @Summary Create Rule
// @Tags Rules
// @Accept json
// @Produce json
// @Param request body dto.CreateRuleRequest true "Rule data"
// @Success 201 {object} dto.APIResponse{data=dto.RuleItem}
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/reminder-rules [post]
// @Router /api/v1/campaign-rules [post]
func (h *RuleHandler) CreateRule(c fiber.Ctx) error {
	var req dto.CreateRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validationErrors(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}
	gymID, ok := h.gymID(c)
	if !ok {
		return h.missingGym(c)
	}
	req.GymID, req.Kind = gymID, h.kind

	ctx, cancel := h.createRequestContext(c, h.basePath)
	defer cancel()

	item, err := h.flow.CreateRule(ctx, &req)
	if err != nil {
		log.Printf("create %s rule failed: %v", h.kind, err)
		return h.businessErrorResponse(c, err, "Failed to create rule", "RULE_CREATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Rule created successfully", item)
}

// ListRules lists rules of this kind
// @Summary List Rules
// @Tags Rules
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.ListRulesResponse}
// @Router /api/v1/reminder-rules [get]
// @Router /api/v1/campaign-rules [get]
func (h *RuleHandler) ListRules(c fiber.Ctx) error {
	gymID, ok := h.gymID(c)
	if !ok {
		return h.missingGym(c)
	}

	ctx, cancel := h.createRequestContext(c, h.basePath)
	defer cancel()

	res, err := h.flow.ListRules(ctx, gymID, h.kind)
	if err != nil {
		log.Printf("list %s rules failed: %v", h.kind, err)
		return h.businessErrorResponse(c, err, "Failed to list rules", "RULE_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, res.Message, res)
}

// GetRule returns one rule
// @Summary Get Rule
// @Tags Rules
// @Produce json
// @Param id path int true "Rule ID"
// @Success 200 {object} dto.APIResponse{data=dto.RuleItem}
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/reminder-rules/{id} [get]
// @Router /api/v1/campaign-rules/{id} [get]
func (h *RuleHandler) GetRule(c fiber.Ctx) error {
	gymID, ok := h.gymID(c)
	if !ok {
		return h.missingGym(c)
	}
	id, ok := idParam(c, "id")
	if !ok {
		return h.invalidID(c)
	}

	ctx, cancel := h.createRequestContext(c, h.basePath+"/:id")
	defer cancel()

	item, err := h.flow.GetRule(ctx, gymID, h.kind, id)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to load rule", "RULE_LOOKUP_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Rule retrieved successfully", item)
}

// UpdateRule applies a partial update; a present targets list replaces the stored one
// @Summary Update Rule
// @Tags Rules
// @Accept json
// @Produce json
// @Param id path int true "Rule ID"
// @Param request body dto.UpdateRuleRequest true "Fields to change"
// @Success 200 {object} dto.APIResponse{data=dto.RuleItem}
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/reminder-rules/{id} [put]
// @Router /api/v1/campaign-rules/{id} [put]
func (h *RuleHandler) UpdateRule(c fiber.Ctx) error {
	var req dto.UpdateRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validationErrors(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}
	gymID, ok := h.gymID(c)
	if !ok {
		return h.missingGym(c)
	}
	id, ok := idParam(c, "id")
	if !ok {
		return h.invalidID(c)
	}
	req.GymID, req.Kind, req.RuleID = gymID, h.kind, id

	ctx, cancel := h.createRequestContext(c, h.basePath+"/:id")
	defer cancel()

	item, err := h.flow.UpdateRule(ctx, &req)
	if err != nil {
		log.Printf("update %s rule %d failed: %v", h.kind, id, err)
		return h.businessErrorResponse(c, err, "Failed to update rule", "RULE_UPDATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Rule updated successfully", item)
}

// DeleteRule removes a rule and its targets
// @Summary Delete Rule
// @Tags Rules
// @Param id path int true "Rule ID"
// @Success 200 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/reminder-rules/{id} [delete]
// @Router /api/v1/campaign-rules/{id} [delete]
func (h *RuleHandler) DeleteRule(c fiber.Ctx) error {
	gymID, ok := h.gymID(c)
	if !ok {
		return h.missingGym(c)
	}
	id, ok := idParam(c, "id")
	if !ok {
		return h.invalidID(c)
	}

	ctx, cancel := h.createRequestContext(c, h.basePath+"/:id")
	defer cancel()

	if err := h.flow.DeleteRule(ctx, gymID, h.kind, id); err != nil {
		log.Printf("delete %s rule %d failed: %v", h.kind, id, err)
		return h.businessErrorResponse(c, err, "Failed to delete rule", "RULE_DELETE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Rule deleted successfully", nil)
}

// ToggleRule flips the active flag
// @Summary Toggle Rule
// @Tags Rules
// @Produce json
// @Param id path int true "Rule ID"
// @Success 200 {object} dto.APIResponse{data=dto.RuleItem}
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/reminder-rules/{id}/toggle [patch]
// @Router /api/v1/campaign-rules/{id}/toggle [patch]
func (h *RuleHandler) ToggleRule(c fiber.Ctx) error {
	gymID, ok := h.gymID(c)
	if !ok {
		return h.missingGym(c)
	}
	id, ok := idParam(c, "id")
	if !ok {
		return h.invalidID(c)
	}

	ctx, cancel := h.createRequestContext(c, h.basePath+"/:id/toggle")
	defer cancel()

	item, err := h.flow.ToggleRule(ctx, gymID, h.kind, id)
	if err != nil {
		log.Printf("toggle %s rule %d failed: %v", h.kind, id, err)
		return h.businessErrorResponse(c, err, "Failed to toggle rule", "RULE_TOGGLE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Rule toggled successfully", item)
}

// PreviewRule shows the audience size and the first rendered messages
// @Summary Preview Rule
// @Tags Rules
// @Produce json
// @Param id path int true "Rule ID"
// @Success 200 {object} dto.RulePreviewResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/reminder-rules/{id}/preview [get]
// @Router /api/v1/campaign-rules/{id}/preview [get]
func (h *RuleHandler) PreviewRule(c fiber.Ctx) error {
	gymID, ok := h.gymID(c)
	if !ok {
		return h.missingGym(c)
	}
	id, ok := idParam(c, "id")
	if !ok {
		return h.invalidID(c)
	}

	ctx, cancel := h.createRequestContext(c, h.basePath+"/:id/preview")
	defer cancel()

	res, err := h.flow.PreviewRule(ctx, gymID, h.kind, id)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to preview rule", "RULE_PREVIEW_FAILED")
	}
	return c.Status(fiber.StatusOK).JSON(res)
}
