// Package businessflow contains the core business logic of the reminder and campaign pipeline
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Client-related errors
	ErrClientNotFound      = errors.New("client not found")
	ErrInvalidClientStatus = errors.New("invalid client status")

	// Reminder-related errors
	ErrReminderNotFound      = errors.New("reminder not found")
	ErrReminderAlreadySent   = errors.New("already sent")
	ErrReminderAlreadyFailed = errors.New("already failed")
	ErrReminderInProgress    = errors.New("reminder is being delivered")
	ErrReminderNotEditable   = errors.New("only pending reminders can be edited")
	ErrInvalidChannel        = errors.New("invalid delivery channel")
	ErrInvalidReminderStatus = errors.New("invalid reminder status")
	ErrClaimLost             = errors.New("reminder claim was lost")

	// Rule-related errors
	ErrRuleNotFound       = errors.New("not found")
	ErrInvalidTargetType  = errors.New("invalid target type")
	ErrInvalidTargetValue = errors.New("invalid target value")
	ErrInvalidSendHour    = errors.New("send hour must be between 0 and 23")

	// Campaign-related errors
	ErrCampaignNotFound          = errors.New("campaign not found")
	ErrInvalidCampaignTransition = errors.New("invalid campaign status transition")
	ErrCampaignNotEditable       = errors.New("campaign can no longer be changed")
	ErrInvalidCampaignDates      = errors.New("end date must be after start date")

	// Conversation-related errors
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationClosed   = errors.New("conversation is closed")
	ErrChatbotDisabled      = errors.New("chatbot is disabled for this gym")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsClientNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound)
}

func IsInvalidClientStatus(err error) bool {
	return errors.Is(err, ErrInvalidClientStatus)
}

func IsReminderNotFound(err error) bool {
	return errors.Is(err, ErrReminderNotFound)
}

func IsReminderAlreadySent(err error) bool {
	return errors.Is(err, ErrReminderAlreadySent)
}

func IsReminderAlreadyFailed(err error) bool {
	return errors.Is(err, ErrReminderAlreadyFailed)
}

func IsReminderInProgress(err error) bool {
	return errors.Is(err, ErrReminderInProgress)
}

func IsReminderNotEditable(err error) bool {
	return errors.Is(err, ErrReminderNotEditable)
}

func IsInvalidChannel(err error) bool {
	return errors.Is(err, ErrInvalidChannel)
}

func IsRuleNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound)
}

func IsInvalidTarget(err error) bool {
	return errors.Is(err, ErrInvalidTargetType) || errors.Is(err, ErrInvalidTargetValue)
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsInvalidCampaignTransition(err error) bool {
	return errors.Is(err, ErrInvalidCampaignTransition)
}

func IsConversationNotFound(err error) bool {
	return errors.Is(err, ErrConversationNotFound)
}

func IsChatbotDisabled(err error) bool {
	return errors.Is(err, ErrChatbotDisabled)
}

// IsValidationError reports errors caused by bad caller input
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidClientStatus, ErrInvalidChannel, ErrInvalidReminderStatus,
		ErrInvalidTargetType, ErrInvalidTargetValue, ErrInvalidSendHour,
		ErrInvalidCampaignDates,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func IsCampaignNotEditable(err error) bool {
	return errors.Is(err, ErrCampaignNotEditable)
}

func IsConversationClosed(err error) bool {
	return errors.Is(err, ErrConversationClosed)
}
