package businessflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/gymdesk/app/dto"
	"github.com/amirphl/gymdesk/app/services"
	"github.com/amirphl/gymdesk/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConversationRepo struct {
	mu   sync.Mutex
	rows map[uint]*models.Conversation
}

func (r *fakeConversationRepo) ByID(ctx context.Context, id uint) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *fakeConversationRepo) ByFilter(ctx context.Context, f models.ConversationFilter, orderBy string, limit, offset int) ([]*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Conversation{}
	for _, c := range r.rows {
		if f.GymID != nil && c.GymID != *f.GymID {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return paginate(out, limit, offset), nil
}

func (r *fakeConversationRepo) Save(ctx context.Context, c *models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = uint(len(r.rows) + 1)
	c.UUID = uuid.New()
	c.CreatedAt = time.Now().UTC()
	cp := *c
	r.rows[c.ID] = &cp
	return nil
}

func (r *fakeConversationRepo) SaveBatch(ctx context.Context, cs []*models.Conversation) error {
	for _, c := range cs {
		_ = r.Save(ctx, c)
	}
	return nil
}

func (r *fakeConversationRepo) Count(ctx context.Context, f models.ConversationFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeConversationRepo) Exists(ctx context.Context, f models.ConversationFilter) (bool, error) {
	n, _ := r.Count(ctx, f)
	return n > 0, nil
}

func (r *fakeConversationRepo) Touch(ctx context.Context, id uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.rows[id]; ok {
		c.LastMessageAt = &at
	}
	return nil
}

type fakeMessageRepo struct {
	mu   sync.Mutex
	rows []*models.ConversationMessage
}

func (r *fakeMessageRepo) ByID(ctx context.Context, id uint) (*models.ConversationMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.rows {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeMessageRepo) ByFilter(ctx context.Context, f models.ConversationMessageFilter, orderBy string, limit, offset int) ([]*models.ConversationMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.ConversationMessage{}
	for _, m := range r.rows {
		if f.ConversationID != nil && m.ConversationID != *f.ConversationID {
			continue
		}
		out = append(out, m)
	}
	return paginate(out, limit, offset), nil
}

func (r *fakeMessageRepo) Save(ctx context.Context, m *models.ConversationMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = uint(len(r.rows) + 1)
	r.rows = append(r.rows, m)
	return nil
}

func (r *fakeMessageRepo) SaveBatch(ctx context.Context, ms []*models.ConversationMessage) error {
	for _, m := range ms {
		_ = r.Save(ctx, m)
	}
	return nil
}

func (r *fakeMessageRepo) Count(ctx context.Context, f models.ConversationMessageFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeMessageRepo) Exists(ctx context.Context, f models.ConversationMessageFilter) (bool, error) {
	n, _ := r.Count(ctx, f)
	return n > 0, nil
}

func (r *fakeMessageRepo) ListRecent(ctx context.Context, conversationID uint, limit int) ([]*models.ConversationMessage, error) {
	rows, _ := r.ByFilter(ctx, models.ConversationMessageFilter{ConversationID: &conversationID}, "", 0, 0)
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return rows, nil
}

type fakeSettingsRepo struct {
	byGym map[uint]*models.ChatbotSettings
}

func (r *fakeSettingsRepo) ByGymID(ctx context.Context, gymID uint) (*models.ChatbotSettings, error) {
	s, ok := r.byGym[gymID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSettingsRepo) Upsert(ctx context.Context, s *models.ChatbotSettings) error {
	cp := *s
	r.byGym[s.GymID] = &cp
	return nil
}

// scriptedAgent records sessions and answers with a fixed reply or error
type scriptedAgent struct {
	reply    services.AgentReply
	err      error
	sessions []services.AgentSession
	texts    []string
}

func (a *scriptedAgent) ProcessMessage(ctx context.Context, text string, session services.AgentSession) (services.AgentReply, error) {
	a.texts = append(a.texts, text)
	a.sessions = append(a.sessions, session)
	return a.reply, a.err
}

type conversationFixture struct {
	convs    *fakeConversationRepo
	messages *fakeMessageRepo
	settings *fakeSettingsRepo
	clients  *fakeClientRepo
	agent    *scriptedAgent
	flow     ConversationFlow
}

func newConversationFixture() *conversationFixture {
	fx := &conversationFixture{
		convs:    &fakeConversationRepo{rows: map[uint]*models.Conversation{}},
		messages: &fakeMessageRepo{},
		settings: &fakeSettingsRepo{byGym: map[uint]*models.ChatbotSettings{}},
		clients:  newFakeClientRepo(),
		agent:    &scriptedAgent{reply: services.AgentReply{Message: "Abrimos a las 6", Success: true}},
	}
	fx.flow = NewConversationFlow(fx.convs, fx.messages, fx.settings, fx.clients, fakeTxRunner{}, fx.agent)
	return fx
}

func (fx *conversationFixture) open(t *testing.T, gymID uint) *dto.ConversationItem {
	t.Helper()
	ana := fx.clients.add(&models.Client{GymID: gymID, Name: "Ana"})
	item, err := fx.flow.CreateConversation(context.Background(), &dto.CreateConversationRequest{GymID: gymID, ClientID: &ana.ID, ContactNumber: " +525511112222 "})
	require.NoError(t, err)
	return item
}

func TestPostMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("reply stores both turns", func(t *testing.T) {
		fx := newConversationFixture()
		conv := fx.open(t, 1)
		assert.Equal(t, "+525511112222", conv.ContactNumber)

		resp, err := fx.flow.PostMessage(ctx, &dto.PostMessageRequest{GymID: 1, ConversationID: conv.ID, Text: "A que hora abren?"})
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Equal(t, "Abrimos a las 6", resp.Reply)

		list, err := fx.flow.ListMessages(ctx, 1, conv.ID)
		require.NoError(t, err)
		require.Len(t, list.Items, 2)
		assert.Equal(t, "user", list.Items[0].Role)
		assert.Equal(t, "assistant", list.Items[1].Role)

		require.Len(t, fx.agent.sessions, 1)
		assert.Equal(t, "Ana", fx.agent.sessions[0].ContactName)
		assert.Equal(t, "Recepcion", fx.agent.sessions[0].BotName)
		assert.Empty(t, fx.agent.sessions[0].History)

		stored, _ := fx.convs.ByID(ctx, conv.ID)
		assert.NotNil(t, stored.LastMessageAt)

		_, err = fx.flow.PostMessage(ctx, &dto.PostMessageRequest{GymID: 1, ConversationID: conv.ID, Text: "Gracias"})
		require.NoError(t, err)
		require.Len(t, fx.agent.sessions, 2)
		assert.Len(t, fx.agent.sessions[1].History, 2)
	})

	t.Run("agent failure stores nothing", func(t *testing.T) {
		fx := newConversationFixture()
		fx.agent.err = errors.New("upstream timeout")
		conv := fx.open(t, 1)

		resp, err := fx.flow.PostMessage(ctx, &dto.PostMessageRequest{GymID: 1, ConversationID: conv.ID, Text: "Hola"})
		require.NoError(t, err)
		assert.False(t, resp.Success)
		assert.Equal(t, agentFallbackReply, resp.Reply)

		list, err := fx.flow.ListMessages(ctx, 1, conv.ID)
		require.NoError(t, err)
		assert.Empty(t, list.Items)

		stored, _ := fx.convs.ByID(ctx, conv.ID)
		assert.Nil(t, stored.LastMessageAt)

		// the retried turn is not duplicated in the next prompt
		fx.agent.err = nil
		_, err = fx.flow.PostMessage(ctx, &dto.PostMessageRequest{GymID: 1, ConversationID: conv.ID, Text: "Hola"})
		require.NoError(t, err)
		require.Len(t, fx.agent.sessions, 2)
		assert.Empty(t, fx.agent.sessions[1].History)
	})

	t.Run("empty agent reply", func(t *testing.T) {
		fx := newConversationFixture()
		fx.agent.reply = services.AgentReply{}
		conv := fx.open(t, 1)

		resp, err := fx.flow.PostMessage(ctx, &dto.PostMessageRequest{GymID: 1, ConversationID: conv.ID, Text: "Hola"})
		require.NoError(t, err)
		assert.False(t, resp.Success)
		assert.Equal(t, agentFallbackReply, resp.Reply)
		assert.Empty(t, fx.messages.rows)
	})

	t.Run("disabled backend", func(t *testing.T) {
		fx := newConversationFixture()
		fx.agent.err = services.ErrAgentDisabled
		conv := fx.open(t, 1)

		_, err := fx.flow.PostMessage(ctx, &dto.PostMessageRequest{GymID: 1, ConversationID: conv.ID, Text: "Hola"})
		assert.True(t, IsChatbotDisabled(err))
	})

	t.Run("chatbot switched off for the gym", func(t *testing.T) {
		fx := newConversationFixture()
		conv := fx.open(t, 1)
		off := false
		_, err := fx.flow.UpdateChatbotSettings(ctx, &dto.ChatbotSettingsRequest{GymID: 1, BotName: "Rita", IsActive: &off})
		require.NoError(t, err)

		_, err = fx.flow.PostMessage(ctx, &dto.PostMessageRequest{GymID: 1, ConversationID: conv.ID, Text: "Hola"})
		assert.True(t, IsChatbotDisabled(err))
		assert.Empty(t, fx.agent.texts)
		assert.Empty(t, fx.messages.rows)
	})

	t.Run("closed conversation", func(t *testing.T) {
		fx := newConversationFixture()
		conv := fx.open(t, 1)
		fx.convs.rows[conv.ID].Status = models.ConversationStatusClosed

		_, err := fx.flow.PostMessage(ctx, &dto.PostMessageRequest{GymID: 1, ConversationID: conv.ID, Text: "Hola"})
		assert.ErrorIs(t, err, ErrConversationClosed)
	})

	t.Run("conversation of another gym", func(t *testing.T) {
		fx := newConversationFixture()
		conv := fx.open(t, 1)

		_, err := fx.flow.PostMessage(ctx, &dto.PostMessageRequest{GymID: 2, ConversationID: conv.ID, Text: "Hola"})
		assert.True(t, IsConversationNotFound(err))
	})
}

func TestChatbotSettings(t *testing.T) {
	ctx := context.Background()
	fx := newConversationFixture()

	defaults, err := fx.flow.GetChatbotSettings(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Recepcion", defaults.BotName)
	assert.Equal(t, 20, defaults.HistoryLimit)
	assert.True(t, defaults.IsActive)

	temp, limit := float32(0), 5
	updated, err := fx.flow.UpdateChatbotSettings(ctx, &dto.ChatbotSettingsRequest{
		GymID: 1, BotName: " Rita ", BusinessHours: "L-V 6-22", Temperature: &temp, HistoryLimit: &limit,
	})
	require.NoError(t, err)
	assert.Equal(t, "Rita", updated.BotName)
	assert.Equal(t, float32(0), updated.Temperature)
	assert.Equal(t, 5, updated.HistoryLimit)

	again, err := fx.flow.GetChatbotSettings(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, updated, again)

	other, err := fx.flow.GetChatbotSettings(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Recepcion", other.BotName)
}
