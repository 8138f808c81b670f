// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/amirphl/gymdesk/app/dto"
	businessflow "github.com/amirphl/gymdesk/business_flow"
	"github.com/amirphl/gymdesk/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const defaultRequestTimeout = 30 * time.Second

// baseHandler carries the response and validation helpers every handler shares
type baseHandler struct {
	validator *validator.Validate
}

func newBaseHandler() baseHandler {
	return baseHandler{validator: validator.New()}
}

func (h *baseHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *baseHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// validationErrors returns nil when req passes its struct tags
func (h *baseHandler) validationErrors(req any) []string {
	err := h.validator.Struct(req)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, getValidationErrorMessage(e))
	}
	return out
}

// gymID reads the tenant set by the auth middleware
func (h *baseHandler) gymID(c fiber.Ctx) (uint, bool) {
	gymID, ok := c.Locals("gym_id").(uint)
	return gymID, ok && gymID != 0
}

func (h *baseHandler) missingGym(c fiber.Ctx) error {
	return h.ErrorResponse(c, fiber.StatusUnauthorized, "Gym ID not found in context", "MISSING_GYM_ID", nil)
}

// idParam parses a positive numeric path parameter
func idParam(c fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (h *baseHandler) invalidID(c fiber.Ctx) error {
	return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid id", "INVALID_ID", nil)
}

func (h *baseHandler) createRequestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRequestTimeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	if gymID, ok := c.Locals("gym_id").(uint); ok {
		ctx = context.WithValue(ctx, utils.GymIDKey, gymID)
	}
	if userID, ok := c.Locals("user_id").(uint); ok {
		ctx = context.WithValue(ctx, utils.UserIDKey, userID)
	}
	return ctx, cancel
}

// businessErrorResponse maps flow errors to HTTP statuses. Unknown errors become 500 with the fallback code.
func (h *baseHandler) businessErrorResponse(c fiber.Ctx, err error, fallbackMessage, fallbackCode string) error {
	switch {
	case businessflow.IsValidationError(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "VALIDATION_ERROR", nil)
	case businessflow.IsClientNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Client not found", "CLIENT_NOT_FOUND", nil)
	case businessflow.IsReminderNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Reminder not found", "REMINDER_NOT_FOUND", nil)
	case businessflow.IsRuleNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "not found", "RULE_NOT_FOUND", nil)
	case businessflow.IsCampaignNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
	case businessflow.IsConversationNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Conversation not found", "CONVERSATION_NOT_FOUND", nil)
	case businessflow.IsReminderAlreadySent(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, "already sent", "REMINDER_ALREADY_SENT", nil)
	case businessflow.IsReminderAlreadyFailed(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, "already failed", "REMINDER_ALREADY_FAILED", nil)
	case businessflow.IsReminderInProgress(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Reminder is being delivered", "REMINDER_IN_PROGRESS", nil)
	case businessflow.IsReminderNotEditable(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Only pending reminders can be edited", "REMINDER_NOT_EDITABLE", nil)
	case businessflow.IsInvalidCampaignTransition(err):
		return h.ErrorResponse(c, fiber.StatusConflict, err.Error(), "INVALID_CAMPAIGN_TRANSITION", nil)
	case businessflow.IsCampaignNotEditable(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Campaign can no longer be changed", "CAMPAIGN_NOT_EDITABLE", nil)
	case businessflow.IsConversationClosed(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Conversation is closed", "CONVERSATION_CLOSED", nil)
	case businessflow.IsChatbotDisabled(err):
		return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Chatbot is disabled", "CHATBOT_DISABLED", nil)
	}

	if be, ok := err.(*businessflow.BusinessError); ok {
		switch be.Code {
		case "INVALID_MESSAGE", "INVALID_NAME", "INVALID_RULE_KIND", "INVALID_CAMPAIGN_STATUS", "INVALID_CONTACT_NUMBER":
			return h.ErrorResponse(c, fiber.StatusBadRequest, be.Message, be.Code, nil)
		}
	}
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallbackMessage, fallbackCode, nil)
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return err.Field() + " must be at least " + err.Param()
	case "max":
		return err.Field() + " must be at most " + err.Param()
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}
