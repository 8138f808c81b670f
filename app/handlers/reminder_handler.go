package handlers

import (
	"fmt"
	"log"

	"github.com/amirphl/gymdesk/app/dto"
	businessflow "github.com/amirphl/gymdesk/business_flow"
	"github.com/gofiber/fiber/v3"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReminderHandler handles reminder HTTP requests including the manual send endpoint
type ReminderHandler struct {
	baseHandler
	flow businessflow.ReminderFlow
}

// NewReminderHandler creates a new reminder handler
func NewReminderHandler(flow businessflow.ReminderFlow) *ReminderHandler {
	return &ReminderHandler{baseHandler: newBaseHandler(), flow: flow}
}

func (h *ReminderHandler) listRequest(c fiber.Ctx, gymID uint) *dto.ListRemindersRequest {
	req := &dto.ListRemindersRequest{
		GymID:    gymID,
		ClientID: queryUint(c, "client_id"),
		Status:   queryString(c, "status"),
		Channel:  queryString(c, "channel"),
	}
	req.Page, req.PageSize = queryPage(c)
	return req
}

// CreateReminder schedules a reminder for a client
// @Summary Create Reminder
// @Tags Reminders
// @Accept json
// @Produce json
// @Param request body dto.CreateReminderRequest true "Reminder data"
// @Success 201 {object} dto.APIResponse{data=dto.ReminderItem}
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse "Client not found"
// @Router /api/v1/reminders [post]
func (h *ReminderHandler) CreateReminder(c fiber.Ctx) error {
	var req dto.CreateReminderRequest
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

	ctx, cancel := h.createRequestContext(c, "/api/v1/reminders")
	defer cancel()

	item, err := h.flow.CreateReminder(ctx, &req)
	if err != nil {
		log.Printf("create reminder failed: %v", err)
		return h.businessErrorResponse(c, err, "Failed to create reminder", "REMINDER_CREATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Reminder created successfully", item)
}

// ListReminders lists reminders of the gym
// @Summary List Reminders
// @Tags Reminders
// @Produce json
// @Param status query string false "PENDING, PROCESSING, SENT or FAILED"
// @Param channel query string false "whatsapp or email"
// @Param client_id query int false "Client ID"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} dto.APIResponse{data=dto.ListRemindersResponse}
// @Router /api/v1/reminders [get]
func (h *ReminderHandler) ListReminders(c fiber.Ctx) error {
	gymID, ok := h.gymID(c)
	if !ok {
		return h.missingGym(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/reminders")
	defer cancel()

	res, err := h.flow.ListReminders(ctx, h.listRequest(c, gymID))
	if err != nil {
		log.Printf("list reminders failed: %v", err)
		return h.businessErrorResponse(c, err, "Failed to list reminders", "REMINDER_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, res.Message, res)
}

// ExportReminders downloads the delivery report
// @Summary Export Reminders
// @Tags Reminders
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param status query string false "Status filter"
// @Param channel query string false "Channel filter"
// @Success 200 {file} file
// @Router /api/v1/reminders/export [get]
func (h *ReminderHandler) ExportReminders(c fiber.Ctx) error {
	gymID, ok := h.gymID(c)
	if !ok {
		return h.missingGym(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/reminders/export")
	defer cancel()

	filename, data, err := h.flow.ExportReminders(ctx, h.listRequest(c, gymID))
	if err != nil {
		log.Printf("export reminders failed: %v", err)
		return h.businessErrorResponse(c, err, "Failed to export reminders", "REMINDER_EXPORT_FAILED")
	}
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Status(fiber.StatusOK).Send(data)
}

// GetReminder returns one reminder
// @Summary Get Reminder
// @Tags Reminders
// @Produce json
// @Param id path int true "Reminder ID"
// @Success 200 {object} dto.APIResponse{data=dto.ReminderItem}
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/reminders/{id} [get]
func (h *ReminderHandler) GetReminder(c fiber.Ctx) error {
	gymID, ok := h.gymID(c)
	if !ok {
		return h.missingGym(c)
	}
	id, ok := idParam(c, "id")
	if !ok {
		return h.invalidID(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/reminders/:id")
	defer cancel()

	item, err := h.flow.GetReminder(ctx, gymID, id)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to load reminder", "REMINDER_LOOKUP_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Reminder retrieved successfully", item)
}

// UpdateReminder edits a pending reminder
// @Summary Update Reminder
// @Tags Reminders
// @Accept json
// @Produce json
// @Param id path int true "Reminder ID"
// @Param request body dto.UpdateReminderRequest true "Fields to change"
// @Success 200 {object} dto.APIResponse{data=dto.ReminderItem}
// @Failure 404 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse "Reminder is no longer pending"
// @Router /api/v1/reminders/{id} [put]
func (h *ReminderHandler) UpdateReminder(c fiber.Ctx) error {
	var req dto.UpdateReminderRequest
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
	req.GymID, req.ReminderID = gymID, id

	ctx, cancel := h.createRequestContext(c, "/api/v1/reminders/:id")
	defer cancel()

	item, err := h.flow.UpdateReminder(ctx, &req)
	if err != nil {
		log.Printf("update reminder %d failed: %v", id, err)
		return h.businessErrorResponse(c, err, "Failed to update reminder", "REMINDER_UPDATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Reminder updated successfully", item)
}

// DeleteReminder removes a reminder that is not being delivered
// @Summary Delete Reminder
// @Tags Reminders
// @Param id path int true "Reminder ID"
// @Success 200 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/reminders/{id} [delete]
func (h *ReminderHandler) DeleteReminder(c fiber.Ctx) error {
	gymID, ok := h.gymID(c)
	if !ok {
		return h.missingGym(c)
	}
	id, ok := idParam(c, "id")
	if !ok {
		return h.invalidID(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/reminders/:id")
	defer cancel()

	if err := h.flow.DeleteReminder(ctx, gymID, id); err != nil {
		log.Printf("delete reminder %d failed: %v", id, err)
		return h.businessErrorResponse(c, err, "Failed to delete reminder", "REMINDER_DELETE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Reminder deleted successfully", nil)
}

// SendReminder delivers a pending reminder now
// @Summary Send Reminder Now
// @Description Dispatches one PENDING reminder immediately. A delivery failure is recorded as a retry and answered with 500.
// @Tags Reminders
// @Produce json
// @Param id path int true "Reminder ID"
// @Success 200 {object} dto.SendReminderResponse
// @Failure 400 {object} dto.APIResponse "already sent or already failed"
// @Failure 404 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse "Reminder is being delivered"
// @Failure 500 {object} dto.SendReminderResponse "Delivery failed"
// @Router /api/v1/reminders/{id}/send [post]
func (h *ReminderHandler) SendReminder(c fiber.Ctx) error {
	gymID, ok := h.gymID(c)
	if !ok {
		return h.missingGym(c)
	}
	id, ok := idParam(c, "id")
	if !ok {
		return h.invalidID(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/reminders/:id/send")
	defer cancel()

	res, err := h.flow.SendReminder(ctx, gymID, id)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to send reminder", "REMINDER_SEND_FAILED")
	}
	if !res.Success {
		log.Printf("manual send of reminder %d failed: %s", id, res.Error)
		return c.Status(fiber.StatusInternalServerError).JSON(res)
	}
	return c.Status(fiber.StatusOK).JSON(res)
}
