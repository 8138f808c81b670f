package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/amirphl/gymdesk/config"
	"github.com/sashabaranov/go-openai"
)

// ErrAgentDisabled is returned when no agent backend is configured
var ErrAgentDisabled = errors.New("agent backend is disabled")

// AgentTurn is one prior message given to the agent as context
type AgentTurn struct {
	Role    string
	Content string
}

// AgentSession is everything the agent needs besides the new text
type AgentSession struct {
	BotName        string
	Instructions   string
	BusinessHours  string
	WelcomeMessage string
	Model          string
	Temperature    float32
	ContactName    string
	History        []AgentTurn
}

// AgentReply is the outcome of one agent call
type AgentReply struct {
	Message string
	Success bool
}

// AgentService processes an inbound message for a receptionist session
type AgentService interface {
	ProcessMessage(ctx context.Context, text string, session AgentSession) (AgentReply, error)
}

// OpenAIAgentService backs the receptionist with a chat completion model
type OpenAIAgentService struct {
	client       *openai.Client
	defaultModel string
}

// NewAgentService creates the agent backend or a disabled stub
func NewAgentService(cfg *config.AgentConfig) AgentService {
	if !cfg.Enabled {
		return disabledAgent{}
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIAgentService{
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: cfg.DefaultModel,
	}
}

func (s *OpenAIAgentService) ProcessMessage(ctx context.Context, text string, session AgentSession) (AgentReply, error) {
	model := session.Model
	if model == "" {
		model = s.defaultModel
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: session.Temperature,
		Messages:    BuildAgentMessages(text, session),
	})
	if err != nil {
		return AgentReply{}, fmt.Errorf("agent completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return AgentReply{Success: false}, nil
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	return AgentReply{Message: content, Success: content != ""}, nil
}

// BuildAgentMessages lays out the system prompt, history and new user text
func BuildAgentMessages(text string, session AgentSession) []openai.ChatCompletionMessage {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Eres %s, recepcionista virtual del gimnasio.", session.BotName)
	if session.BusinessHours != "" {
		fmt.Fprintf(&sb, "\nHorario: %s.", session.BusinessHours)
	}
	if session.ContactName != "" {
		fmt.Fprintf(&sb, "\nEstas hablando con %s.", session.ContactName)
	}
	if session.Instructions != "" {
		sb.WriteString("\n\n")
		sb.WriteString(session.Instructions)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(session.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: sb.String()})
	for _, turn := range session.History {
		role := openai.ChatMessageRoleUser
		if turn.Role == openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})
	return messages
}

type disabledAgent struct{}

func (disabledAgent) ProcessMessage(ctx context.Context, text string, session AgentSession) (AgentReply, error) {
	return AgentReply{}, ErrAgentDisabled
}
