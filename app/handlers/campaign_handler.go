package handlers

import (
	"log"

	"github.com/amirphl/gymdesk/app/dto"
	businessflow "github.com/amirphl/gymdesk/business_flow"
	"github.com/gofiber/fiber/v3"
)

// CampaignHandler handles campaign HTTP requests
type CampaignHandler struct {
	baseHandler
	flow businessflow.CampaignFlow
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(flow businessflow.CampaignFlow) *CampaignHandler {
	return &CampaignHandler{baseHandler: newBaseHandler(), flow: flow}
}

// CreateCampaign creates a campaign for one client
// @Summary Create Campaign
// @Description Creates a DRAFT campaign, or a SCHEDULED one when schedule is true
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param request body dto.CreateCampaignRequest true "Campaign data"
// @Success 201 {object} dto.APIResponse{data=dto.CampaignItem}
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse "Client not found"
// @Router /api/v1/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c fiber.Ctx) error {
	var req dto.CreateCampaignRequest
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
	req.GymID = gymID

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns")
	defer cancel()

	item, err := h.flow.CreateCampaign(ctx, &req)
	if err != nil {
		log.Println("Campaign creation failed", err)
		return h.businessErrorResponse(c, err, "Campaign creation failed", "CAMPAIGN_CREATION_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign created successfully", item)
}

// ListCampaigns lists campaigns of the gym, newest first
// @Summary List Campaigns
// @Tags Campaigns
// @Produce json
// @Param status query string false "Status"
// @Param client_id query int false "Client ID"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} dto.APIResponse{data=dto.ListCampaignsResponse}
// @Router /api/v1/campaigns [get]
func (h *CampaignHandler) ListCampaigns(c fiber.Ctx) error {
	gymID, ok := h.gymID(c)
	if !ok {
		return h.missingGym(c)
	}
	req := dto.ListCampaignsRequest{GymID: gymID, ClientID: queryUint(c, "client_id"), Status: queryString(c, "status")}
	req.Page, req.PageSize = queryPage(c)

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns")
	defer cancel()

	res, err := h.flow.ListCampaigns(ctx, &req)
	if err != nil {
		log.Println("Campaign listing failed", err)
		return h.businessErrorResponse(c, err, "Failed to list campaigns", "CAMPAIGN_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, res.Message, res)
}

// GetCampaign returns one campaign
// @Summary Get Campaign
// @Tags Campaigns
// @Produce json
// @Param id path int true "Campaign ID"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignItem}
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/campaigns/{id} [get]
func (h *CampaignHandler) GetCampaign(c fiber.Ctx) error {
	gymID, ok := h.gymID(c)
	if !ok {
		return h.missingGym(c)
	}
	id, ok := idParam(c, "id")
	if !ok {
		return h.invalidID(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:id")
	defer cancel()

	item, err := h.flow.GetCampaign(ctx, gymID, id)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to load campaign", "CAMPAIGN_LOOKUP_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign retrieved successfully", item)
}

// ChangeStatus moves a campaign through its lifecycle (schedule, activate, pause, resume, complete)
// @Summary Change Campaign Status
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param id path int true "Campaign ID"
// @Param request body dto.ChangeCampaignStatusRequest true "Target status"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignItem}
// @Failure 404 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse "Transition not allowed"
// @Router /api/v1/campaigns/{id}/status [patch]
func (h *CampaignHandler) ChangeStatus(c fiber.Ctx) error {
	var req dto.ChangeCampaignStatusRequest
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
	req.GymID, req.CampaignID = gymID, id

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:id/status")
	defer cancel()

	item, err := h.flow.ChangeStatus(ctx, &req)
	if err != nil {
		log.Println("Campaign status change failed", err)
		return h.businessErrorResponse(c, err, "Failed to change campaign status", "CAMPAIGN_STATUS_UPDATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign status updated successfully", item)
}

// DeleteCampaign removes a campaign that has not started
// @Summary Delete Campaign
// @Tags Campaigns
// @Param id path int true "Campaign ID"
// @Success 200 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse
// @Router /api/v1/campaigns/{id} [delete]
func (h *CampaignHandler) DeleteCampaign(c fiber.Ctx) error {
	gymID, ok := h.gymID(c)
	if !ok {
		return h.missingGym(c)
	}
	id, ok := idParam(c, "id")
	if !ok {
		return h.invalidID(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:id")
	defer cancel()

	if err := h.flow.DeleteCampaign(ctx, gymID, id); err != nil {
		log.Println("Campaign deletion failed", err)
		return h.businessErrorResponse(c, err, "Failed to delete campaign", "CAMPAIGN_DELETE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign deleted successfully", nil)
}
