package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/gymdesk/models"
	"github.com/amirphl/gymdesk/repository"
)

// NextAttemptState returns the status and retry count after a failed attempt.
// The retry count never exceeds MaxReminderRetries.
func NextAttemptState(retries int) (models.ReminderStatus, int) {
	next := retries + 1
	if next >= models.MaxReminderRetries {
		return models.ReminderStatusFailed, models.MaxReminderRetries
	}
	return models.ReminderStatusPending, next
}

// StatusTracker writes delivery outcomes back to claimed reminders. Every write
// is conditioned on the claim token the reminder was claimed with.
type StatusTracker interface {
	// Renew confirms the claim is still held and refreshes its claimed_at.
	Renew(ctx context.Context, reminder *models.Reminder, now time.Time) (bool, error)
	// Record applies the outcome to the stored row and to the given reminder.
	// It reports false when the claim was lost and nothing was written.
	Record(ctx context.Context, reminder *models.Reminder, result DeliveryResult, now time.Time) (bool, error)
}

// StatusTrackerImpl implements StatusTracker with conditional updates
type StatusTrackerImpl struct {
	reminderRepo repository.ReminderRepository
}

func NewStatusTracker(reminderRepo repository.ReminderRepository) StatusTracker {
	return &StatusTrackerImpl{reminderRepo: reminderRepo}
}

// claimToken returns "" for an unclaimed reminder, which matches no stored row
func claimToken(reminder *models.Reminder) string {
	if reminder.ClaimToken == nil {
		return ""
	}
	return *reminder.ClaimToken
}

func (t *StatusTrackerImpl) Renew(ctx context.Context, reminder *models.Reminder, now time.Time) (bool, error) {
	ok, err := t.reminderRepo.RenewClaim(ctx, reminder.ID, claimToken(reminder), now)
	if err != nil {
		return false, err
	}
	if ok {
		reminder.ClaimedAt = &now
	}
	return ok, nil
}

func (t *StatusTrackerImpl) Record(ctx context.Context, reminder *models.Reminder, result DeliveryResult, now time.Time) (bool, error) {
	token := claimToken(reminder)
	if result.Success {
		var providerID *string
		if result.MessageID != "" {
			id := result.MessageID
			providerID = &id
		}
		ok, err := t.reminderRepo.MarkSent(ctx, reminder.ID, token, now, providerID)
		if err != nil {
			return false, err
		}
		if ok {
			reminder.Status = models.ReminderStatusSent
			reminder.SentAt = &now
			reminder.ProviderMessageID = providerID
			reminder.LastError = nil
			reminder.ClaimedAt = nil
			reminder.ClaimToken = nil
		}
		return ok, nil
	}

	status, retries := NextAttemptState(reminder.Retries)
	errText := result.Error
	if errText == "" {
		errText = "delivery failed"
	}
	ok, err := t.reminderRepo.MarkAttemptFailed(ctx, reminder.ID, token, retries, status, errText)
	if err != nil {
		return false, fmt.Errorf("record failed attempt: %w", err)
	}
	if ok {
		reminder.Status = status
		reminder.Retries = retries
		reminder.LastError = &errText
		reminder.ClaimedAt = nil
		reminder.ClaimToken = nil
	}
	return ok, nil
}
