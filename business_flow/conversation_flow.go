package businessflow

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/amirphl/gymdesk/app/dto"
	"github.com/amirphl/gymdesk/app/services"
	"github.com/amirphl/gymdesk/models"
	"github.com/amirphl/gymdesk/repository"
	"github.com/amirphl/gymdesk/utils"
)

const agentFallbackReply = "Lo siento, en este momento no puedo responder. Un miembro del equipo te contactara pronto."

// ConversationFlow runs the receptionist agent over stored conversations
type ConversationFlow interface {
	CreateConversation(ctx context.Context, req *dto.CreateConversationRequest) (*dto.ConversationItem, error)
	GetConversation(ctx context.Context, gymID, conversationID uint) (*dto.ConversationItem, error)
	ListMessages(ctx context.Context, gymID, conversationID uint) (*dto.ListConversationMessagesResponse, error)
	PostMessage(ctx context.Context, req *dto.PostMessageRequest) (*dto.PostMessageResponse, error)
	GetChatbotSettings(ctx context.Context, gymID uint) (*dto.ChatbotSettingsResponse, error)
	UpdateChatbotSettings(ctx context.Context, req *dto.ChatbotSettingsRequest) (*dto.ChatbotSettingsResponse, error)
}

// ConversationFlowImpl implements ConversationFlow
type ConversationFlowImpl struct {
	conversationRepo repository.ConversationRepository
	messageRepo      repository.ConversationMessageRepository
	settingsRepo     repository.ChatbotSettingsRepository
	clientRepo       repository.ClientRepository
	txRunner         repository.TxRunner
	agent            services.AgentService
}

func NewConversationFlow(
	conversationRepo repository.ConversationRepository,
	messageRepo repository.ConversationMessageRepository,
	settingsRepo repository.ChatbotSettingsRepository,
	clientRepo repository.ClientRepository,
	txRunner repository.TxRunner,
	agent services.AgentService,
) ConversationFlow {
	return &ConversationFlowImpl{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		settingsRepo:     settingsRepo,
		clientRepo:       clientRepo,
		txRunner:         txRunner,
		agent:            agent,
	}
}

func (f *ConversationFlowImpl) CreateConversation(ctx context.Context, req *dto.CreateConversationRequest) (*dto.ConversationItem, error) {
	number := strings.TrimSpace(req.ContactNumber)
	if number == "" {
		return nil, NewBusinessError("INVALID_CONTACT_NUMBER", "contact number is required", nil)
	}
	if req.ClientID != nil {
		if _, err := getGymClient(ctx, f.clientRepo, req.GymID, *req.ClientID); err != nil {
			return nil, err
		}
	}

	conv := &models.Conversation{
		GymID:         req.GymID,
		ClientID:      req.ClientID,
		Channel:       models.DeliveryChannelWhatsapp,
		ContactNumber: number,
		Status:        models.ConversationStatusOpen,
	}
	if err := f.conversationRepo.Save(ctx, conv); err != nil {
		return nil, NewBusinessError("CONVERSATION_CREATE_FAILED", "Failed to create conversation", err)
	}
	item := ToConversationItem(conv)
	return &item, nil
}

func (f *ConversationFlowImpl) GetConversation(ctx context.Context, gymID, conversationID uint) (*dto.ConversationItem, error) {
	conv, err := f.loadConversation(ctx, gymID, conversationID)
	if err != nil {
		return nil, err
	}
	item := ToConversationItem(conv)
	return &item, nil
}

func (f *ConversationFlowImpl) ListMessages(ctx context.Context, gymID, conversationID uint) (*dto.ListConversationMessagesResponse, error) {
	conv, err := f.loadConversation(ctx, gymID, conversationID)
	if err != nil {
		return nil, err
	}
	rows, err := f.messageRepo.ByFilter(ctx, models.ConversationMessageFilter{ConversationID: &conv.ID}, "created_at ASC, id ASC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("CONVERSATION_MESSAGES_FAILED", "Failed to list messages", err)
	}
	items := make([]dto.ConversationMessageItem, 0, len(rows))
	for _, m := range rows {
		items = append(items, dto.ConversationMessageItem{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return &dto.ListConversationMessagesResponse{Message: "Messages retrieved successfully", Items: items}, nil
}

// PostMessage asks the agent and stores the inbound turn together with the
// reply. Nothing is stored when the agent fails.
func (f *ConversationFlowImpl) PostMessage(ctx context.Context, req *dto.PostMessageRequest) (*dto.PostMessageResponse, error) {
	conv, err := f.loadConversation(ctx, req.GymID, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == models.ConversationStatusClosed {
		return nil, ErrConversationClosed
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, NewBusinessError("INVALID_MESSAGE", "text is required", nil)
	}

	settings, err := f.settingsRepo.ByGymID(ctx, req.GymID)
	if err != nil {
		return nil, NewBusinessError("CHATBOT_SETTINGS_FAILED", "Failed to load chatbot settings", err)
	}
	if settings == nil {
		settings = models.DefaultChatbotSettings(req.GymID)
	}
	if !settings.IsActive {
		return nil, ErrChatbotDisabled
	}

	history, err := f.messageRepo.ListRecent(ctx, conv.ID, settings.HistoryLimit)
	if err != nil {
		return nil, NewBusinessError("CONVERSATION_MESSAGES_FAILED", "Failed to load history", err)
	}

	receivedAt := utils.UTCNow()

	session := services.AgentSession{
		BotName:        settings.BotName,
		Instructions:   settings.Instructions,
		BusinessHours:  settings.BusinessHours,
		WelcomeMessage: settings.WelcomeMessage,
		Model:          settings.Model,
		Temperature:    settings.Temperature,
		ContactName:    f.contactName(ctx, conv),
		History:        make([]services.AgentTurn, 0, len(history)),
	}
	for _, m := range history {
		session.History = append(session.History, services.AgentTurn{Role: string(m.Role), Content: m.Content})
	}

	reply, err := f.agent.ProcessMessage(ctx, text, session)
	if err != nil {
		if errors.Is(err, services.ErrAgentDisabled) {
			return nil, ErrChatbotDisabled
		}
		log.Printf("agent failed for conversation %d: %v", conv.ID, err)
		return &dto.PostMessageResponse{Success: false, Message: "Agent is unavailable", Reply: agentFallbackReply}, nil
	}
	if !reply.Success || strings.TrimSpace(reply.Message) == "" {
		return &dto.PostMessageResponse{Success: false, Message: "Agent returned no reply", Reply: agentFallbackReply}, nil
	}

	err = f.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		userTurn := &models.ConversationMessage{ConversationID: conv.ID, Role: models.MessageRoleUser, Content: text, CreatedAt: receivedAt}
		if err := f.messageRepo.Save(txCtx, userTurn); err != nil {
			return err
		}
		answeredAt := utils.UTCNow()
		assistantTurn := &models.ConversationMessage{ConversationID: conv.ID, Role: models.MessageRoleAssistant, Content: reply.Message, CreatedAt: answeredAt}
		if err := f.messageRepo.Save(txCtx, assistantTurn); err != nil {
			return err
		}
		return f.conversationRepo.Touch(txCtx, conv.ID, answeredAt)
	})
	if err != nil {
		return nil, NewBusinessError("CONVERSATION_MESSAGE_SAVE_FAILED", "Failed to store reply", err)
	}

	return &dto.PostMessageResponse{Success: true, Message: "Reply generated", Reply: reply.Message}, nil
}

func (f *ConversationFlowImpl) contactName(ctx context.Context, conv *models.Conversation) string {
	if conv.ClientID == nil {
		return ""
	}
	c, err := f.clientRepo.ByID(ctx, *conv.ClientID)
	if err != nil || c == nil {
		return ""
	}
	return c.Name
}

func (f *ConversationFlowImpl) GetChatbotSettings(ctx context.Context, gymID uint) (*dto.ChatbotSettingsResponse, error) {
	settings, err := f.settingsRepo.ByGymID(ctx, gymID)
	if err != nil {
		return nil, NewBusinessError("CHATBOT_SETTINGS_FAILED", "Failed to load chatbot settings", err)
	}
	if settings == nil {
		settings = models.DefaultChatbotSettings(gymID)
	}
	return toChatbotSettingsResponse(settings), nil
}

func (f *ConversationFlowImpl) UpdateChatbotSettings(ctx context.Context, req *dto.ChatbotSettingsRequest) (*dto.ChatbotSettingsResponse, error) {
	settings, err := f.settingsRepo.ByGymID(ctx, req.GymID)
	if err != nil {
		return nil, NewBusinessError("CHATBOT_SETTINGS_FAILED", "Failed to load chatbot settings", err)
	}
	if settings == nil {
		settings = models.DefaultChatbotSettings(req.GymID)
	}

	settings.BotName = strings.TrimSpace(req.BotName)
	settings.Instructions = req.Instructions
	settings.WelcomeMessage = req.WelcomeMessage
	settings.BusinessHours = req.BusinessHours
	settings.Model = strings.TrimSpace(req.Model)
	if req.Temperature != nil {
		settings.Temperature = *req.Temperature
	}
	if req.HistoryLimit != nil {
		settings.HistoryLimit = *req.HistoryLimit
	}
	if req.IsActive != nil {
		settings.IsActive = *req.IsActive
	}

	if err := f.settingsRepo.Upsert(ctx, settings); err != nil {
		return nil, NewBusinessError("CHATBOT_SETTINGS_FAILED", "Failed to save chatbot settings", err)
	}
	return toChatbotSettingsResponse(settings), nil
}

func (f *ConversationFlowImpl) loadConversation(ctx context.Context, gymID, conversationID uint) (*models.Conversation, error) {
	conv, err := f.conversationRepo.ByID(ctx, conversationID)
	if err != nil {
		return nil, NewBusinessError("CONVERSATION_LOOKUP_FAILED", "Failed to load conversation", err)
	}
	if conv == nil || conv.GymID != gymID {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func toChatbotSettingsResponse(s *models.ChatbotSettings) *dto.ChatbotSettingsResponse {
	return &dto.ChatbotSettingsResponse{
		BotName:        s.BotName,
		Instructions:   s.Instructions,
		WelcomeMessage: s.WelcomeMessage,
		BusinessHours:  s.BusinessHours,
		Model:          s.Model,
		Temperature:    s.Temperature,
		HistoryLimit:   s.HistoryLimit,
		IsActive:       s.IsActive,
	}
}
