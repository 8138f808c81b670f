package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/amirphl/gymdesk/models"
	"github.com/amirphl/gymdesk/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestClient creates an active client with a WhatsApp number and an email
func (tf *TestFixtures) CreateTestClient(gymID uint, plan string) (*models.Client, error) {
	digits := fmt.Sprintf("%010d", rand.Intn(9000000000)+1000000000)
	client := &models.Client{
		GymID:          gymID,
		Name:           "Ana Torres " + digits[:4],
		Status:         models.ClientStatusActive,
		WhatsappNumber: utils.ToPtr("+52" + digits),
		Email:          utils.ToPtr(fmt.Sprintf("ana.%s@example.com", digits)),
	}
	if plan != "" {
		client.Plan = &plan
	}
	if err := tf.DB.DB.Create(client).Error; err != nil {
		return nil, fmt.Errorf("failed to create test client: %w", err)
	}
	return client, nil
}

// CreateTestReminder creates a PENDING WhatsApp reminder due at sendAt
func (tf *TestFixtures) CreateTestReminder(client *models.Client, sendAt time.Time) (*models.Reminder, error) {
	reminder := &models.Reminder{
		GymID:    client.GymID,
		ClientID: client.ID,
		Message:  "Hola {nombre}, te esperamos mañana",
		Channel:  models.DeliveryChannelWhatsapp,
		SendAt:   sendAt,
		Status:   models.ReminderStatusPending,
	}
	if err := tf.DB.DB.Create(reminder).Error; err != nil {
		return nil, fmt.Errorf("failed to create test reminder: %w", err)
	}
	return reminder, nil
}

// CreateTestRule creates an active reminder rule targeting all clients
func (tf *TestFixtures) CreateTestRule(gymID uint, kind models.RuleKind) (*models.Rule, error) {
	rule := &models.Rule{
		GymID:           gymID,
		Kind:            kind,
		Name:            "Membership expiring",
		RuleType:        "membership_expiring",
		TemplateMessage: "Hola {nombre}, tu plan {plan} vence pronto",
		Channel:         models.DeliveryChannelWhatsapp,
		SendHour:        9,
		IsActive:        true,
		Targets:         []models.RuleTarget{{TargetType: models.TargetTypeAllClients}},
	}
	if err := tf.DB.DB.Create(rule).Error; err != nil {
		return nil, fmt.Errorf("failed to create test rule: %w", err)
	}
	return rule, nil
}
