package handlers

import (
	"log"
	"strconv"

	"github.com/amirphl/gymdesk/app/dto"
	businessflow "github.com/amirphl/gymdesk/business_flow"
	"github.com/gofiber/fiber/v3"
)

// ClientHandler handles gym client HTTP requests
type ClientHandler struct {
	baseHandler
	flow businessflow.ClientFlow
}

// NewClientHandler creates a new client handler
func NewClientHandler(flow businessflow.ClientFlow) *ClientHandler {
	return &ClientHandler{baseHandler: newBaseHandler(), flow: flow}
}

// queryPage reads page and page_size; invalid values fall back to defaults
func queryPage(c fiber.Ctx) (page, pageSize int) {
	page, _ = strconv.Atoi(c.Query("page"))
	pageSize, _ = strconv.Atoi(c.Query("page_size"))
	return page, pageSize
}

// queryString returns nil for an absent or empty query parameter
func queryString(c fiber.Ctx, key string) *string {
	v := c.Query(key)
	if v == "" {
		return nil
	}
	return &v
}

// queryUint returns nil for an absent or malformed query parameter
func queryUint(c fiber.Ctx, key string) *uint {
	v, err := strconv.ParseUint(c.Query(key), 10, 64)
	if err != nil || v == 0 {
		return nil
	}
	id := uint(v)
	return &id
}

// CreateClient registers a client
// @Summary Create Client
// @Tags Clients
// @Accept json
// @Produce json
// @Param request body dto.CreateClientRequest true "Client data"
// @Success 201 {object} dto.APIResponse{data=dto.ClientItem}
// @Failure 400 {object} dto.APIResponse
// @Failure 401 {object} dto.APIResponse
// @Router /api/v1/clients [post]
func (h *ClientHandler) CreateClient(c fiber.Ctx) error {
	var req dto.CreateClientRequest
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

	ctx, cancel := h.createRequestContext(c, "/api/v1/clients")
	defer cancel()

	item, err := h.flow.CreateClient(ctx, &req)
	if err != nil {
		log.Printf("create client failed: %v", err)
		return h.businessErrorResponse(c, err, "Failed to create client", "CLIENT_CREATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Client created successfully", item)
}

// ListClients lists clients of the gym
// @Summary List Clients
// @Tags Clients
// @Produce json
// @Param plan query string false "Plan"
// @Param status query string false "Status"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} dto.APIResponse{data=dto.ListClientsResponse}
// @Router /api/v1/clients [get]
func (h *ClientHandler) ListClients(c fiber.Ctx) error {
	gymID, ok := h.gymID(c)
	if !ok {
		return h.missingGym(c)
	}
	req := dto.ListClientsRequest{GymID: gymID, Plan: queryString(c, "plan"), Status: queryString(c, "status")}
	req.Page, req.PageSize = queryPage(c)

	ctx, cancel := h.createRequestContext(c, "/api/v1/clients")
	defer cancel()

	res, err := h.flow.ListClients(ctx, &req)
	if err != nil {
		log.Printf("list clients failed: %v", err)
		return h.businessErrorResponse(c, err, "Failed to list clients", "CLIENT_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, res.Message, res)
}

// GetClient returns one client
// @Summary Get Client
// @Tags Clients
// @Produce json
// @Param id path int true "Client ID"
// @Success 200 {object} dto.APIResponse{data=dto.ClientItem}
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/clients/{id} [get]
func (h *ClientHandler) GetClient(c fiber.Ctx) error {
	gymID, ok := h.gymID(c)
	if !ok {
		return h.missingGym(c)
	}
	id, ok := idParam(c, "id")
	if !ok {
		return h.invalidID(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/clients/:id")
	defer cancel()

	item, err := h.flow.GetClient(ctx, gymID, id)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to load client", "CLIENT_LOOKUP_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Client retrieved successfully", item)
}

// UpdateClient applies a partial update
// @Summary Update Client
// @Tags Clients
// @Accept json
// @Produce json
// @Param id path int true "Client ID"
// @Param request body dto.UpdateClientRequest true "Fields to change"
// @Success 200 {object} dto.APIResponse{data=dto.ClientItem}
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/clients/{id} [put]
func (h *ClientHandler) UpdateClient(c fiber.Ctx) error {
	var req dto.UpdateClientRequest
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
	req.GymID, req.ClientID = gymID, id

	ctx, cancel := h.createRequestContext(c, "/api/v1/clients/:id")
	defer cancel()

	item, err := h.flow.UpdateClient(ctx, &req)
	if err != nil {
		log.Printf("update client %d failed: %v", id, err)
		return h.businessErrorResponse(c, err, "Failed to update client", "CLIENT_UPDATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Client updated successfully", item)
}
