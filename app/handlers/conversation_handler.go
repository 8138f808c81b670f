package handlers

import (
	"log"

	"github.com/amirphl/gymdesk/app/dto"
	businessflow "github.com/amirphl/gymdesk/business_flow"
	"github.com/gofiber/fiber/v3"
)

// ConversationHandler handles the chat-agent endpoints and chatbot settings
type ConversationHandler struct {
	baseHandler
	flow businessflow.ConversationFlow
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(flow businessflow.ConversationFlow) *ConversationHandler {
	return &ConversationHandler{baseHandler: newBaseHandler(), flow: flow}
}

// CreateConversation opens a conversation with a contact
// @Summary Create Conversation
// @Tags Conversations
// @Accept json
// @Produce json
// @Param request body dto.CreateConversationRequest true "Conversation data"
// @Success 201 {object} dto.APIResponse{data=dto.ConversationItem}
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/conversations [post]
func (h *ConversationHandler) CreateConversation(c fiber.Ctx) error {
	var req dto.CreateConversationRequest
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

	ctx, cancel := h.createRequestContext(c, "/api/v1/conversations")
	defer cancel()

	item, err := h.flow.CreateConversation(ctx, &req)
	if err != nil {
		log.Printf("create conversation failed: %v", err)
		return h.businessErrorResponse(c, err, "Failed to create conversation", "CONVERSATION_CREATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Conversation created successfully", item)
}

// GetConversation returns one conversation
// @Summary Get Conversation
// @Tags Conversations
// @Produce json
// @Param id path int true "Conversation ID"
// @Success 200 {object} dto.APIResponse{data=dto.ConversationItem}
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/conversations/{id} [get]
func (h *ConversationHandler) GetConversation(c fiber.Ctx) error {
	gymID, ok := h.gymID(c)
	if !ok {
		return h.missingGym(c)
	}
	id, ok := idParam(c, "id")
	if !ok {
		return h.invalidID(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/conversations/:id")
	defer cancel()

	item, err := h.flow.GetConversation(ctx, gymID, id)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to load conversation", "CONVERSATION_LOOKUP_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Conversation retrieved successfully", item)
}

// ListMessages returns the conversation history, oldest first
// @Summary List Conversation Messages
// @Tags Conversations
// @Produce json
// @Param id path int true "Conversation ID"
// @Success 200 {object} dto.APIResponse{data=dto.ListConversationMessagesResponse}
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/conversations/{id}/messages [get]
func (h *ConversationHandler) ListMessages(c fiber.Ctx) error {
	gymID, ok := h.gymID(c)
	if !ok {
		return h.missingGym(c)
	}
	id, ok := idParam(c, "id")
	if !ok {
		return h.invalidID(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/conversations/:id/messages")
	defer cancel()

	res, err := h.flow.ListMessages(ctx, gymID, id)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to list messages", "CONVERSATION_MESSAGES_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, res.Message, res)
}

// PostMessage sends an inbound message to the agent and returns its reply.
// An agent failure still answers 200 with the fallback reply and success=false.
// @Summary Post Conversation Message
// @Tags Conversations
// @Accept json
// @Produce json
// @Param id path int true "Conversation ID"
// @Param request body dto.PostMessageRequest true "Message"
// @Success 200 {object} dto.PostMessageResponse
// @Failure 404 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse "Conversation closed"
// @Failure 503 {object} dto.APIResponse "Chatbot disabled"
// @Router /api/v1/conversations/{id}/messages [post]
func (h *ConversationHandler) PostMessage(c fiber.Ctx) error {
	var req dto.PostMessageRequest
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
	req.GymID, req.ConversationID = gymID, id

	ctx, cancel := h.createRequestContext(c, "/api/v1/conversations/:id/messages")
	defer cancel()

	res, err := h.flow.PostMessage(ctx, &req)
	if err != nil {
		log.Printf("conversation %d message failed: %v", id, err)
		return h.businessErrorResponse(c, err, "Failed to process message", "CONVERSATION_MESSAGE_FAILED")
	}
	return c.Status(fiber.StatusOK).JSON(res)
}

// GetChatbotSettings returns the gym's chatbot settings, defaults when none are stored
// @Summary Get Chatbot Settings
// @Tags Conversations
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.ChatbotSettingsResponse}
// @Router /api/v1/chatbot-settings [get]
func (h *ConversationHandler) GetChatbotSettings(c fiber.Ctx) error {
	gymID, ok := h.gymID(c)
	if !ok {
		return h.missingGym(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/chatbot-settings")
	defer cancel()

	res, err := h.flow.GetChatbotSettings(ctx, gymID)
	if err != nil {
		log.Printf("get chatbot settings failed: %v", err)
		return h.businessErrorResponse(c, err, "Failed to load chatbot settings", "CHATBOT_SETTINGS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Chatbot settings retrieved successfully", res)
}

// UpdateChatbotSettings upserts the gym's chatbot settings
// @Summary Update Chatbot Settings
// @Tags Conversations
// @Accept json
// @Produce json
// @Param request body dto.ChatbotSettingsRequest true "Settings"
// @Success 200 {object} dto.APIResponse{data=dto.ChatbotSettingsResponse}
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/chatbot-settings [put]
func (h *ConversationHandler) UpdateChatbotSettings(c fiber.Ctx) error {
	var req dto.ChatbotSettingsRequest
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

	ctx, cancel := h.createRequestContext(c, "/api/v1/chatbot-settings")
	defer cancel()

	res, err := h.flow.UpdateChatbotSettings(ctx, &req)
	if err != nil {
		log.Printf("update chatbot settings failed: %v", err)
		return h.businessErrorResponse(c, err, "Failed to update chatbot settings", "CHATBOT_SETTINGS_UPDATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Chatbot settings updated successfully", res)
}
