package businessflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/gymdesk/app/dto"
	"github.com/amirphl/gymdesk/app/services"
	"github.com/amirphl/gymdesk/models"
	"github.com/amirphl/gymdesk/repository"
	"github.com/amirphl/gymdesk/utils"
	"github.com/xuri/excelize/v2"
)

const maxExportRows = 50000

// ReminderFlow handles reminder management and the manual send path
type ReminderFlow interface {
	CreateReminder(ctx context.Context, req *dto.CreateReminderRequest) (*dto.ReminderItem, error)
	ListReminders(ctx context.Context, req *dto.ListRemindersRequest) (*dto.ListRemindersResponse, error)
	GetReminder(ctx context.Context, gymID, reminderID uint) (*dto.ReminderItem, error)
	UpdateReminder(ctx context.Context, req *dto.UpdateReminderRequest) (*dto.ReminderItem, error)
	DeleteReminder(ctx context.Context, gymID, reminderID uint) error
	SendReminder(ctx context.Context, gymID, reminderID uint) (*dto.SendReminderResponse, error)
	ExportReminders(ctx context.Context, req *dto.ListRemindersRequest) (string, []byte, error)
}

// ReminderFlowImpl implements ReminderFlow
type ReminderFlowImpl struct {
	reminderRepo repository.ReminderRepository
	clientRepo   repository.ClientRepository
	pipeline     *deliveryPipeline
}

func NewReminderFlow(
	reminderRepo repository.ReminderRepository,
	clientRepo repository.ClientRepository,
	dispatcher Dispatcher,
	publisher services.EventPublisher,
) ReminderFlow {
	return &ReminderFlowImpl{
		reminderRepo: reminderRepo,
		clientRepo:   clientRepo,
		pipeline:     newDeliveryPipeline(dispatcher, NewStatusTracker(reminderRepo), publisher),
	}
}

func (f *ReminderFlowImpl) CreateReminder(ctx context.Context, req *dto.CreateReminderRequest) (*dto.ReminderItem, error) {
	channel := models.DeliveryChannel(req.Channel)
	if !channel.Valid() {
		return nil, ErrInvalidChannel
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, NewBusinessError("INVALID_MESSAGE", "message is required", nil)
	}

	client, err := getGymClient(ctx, f.clientRepo, req.GymID, req.ClientID)
	if err != nil {
		return nil, err
	}

	r := &models.Reminder{
		GymID:         req.GymID,
		ClientID:      client.ID,
		Message:       req.Message,
		Channel:       channel,
		SendAt:        req.SendAt.UTC(),
		EndDate:       utils.TimeToUTCPtr(req.EndDate),
		AppointmentID: req.AppointmentID,
		Status:        models.ReminderStatusPending,
	}
	if err := f.reminderRepo.Save(ctx, r); err != nil {
		return nil, NewBusinessError("REMINDER_CREATE_FAILED", "Failed to create reminder", err)
	}
	r.Client = client

	item := ToReminderItem(r)
	return &item, nil
}

func (f *ReminderFlowImpl) listFilter(req *dto.ListRemindersRequest) (models.ReminderFilter, error) {
	filter := models.ReminderFilter{GymID: &req.GymID, ClientID: req.ClientID}
	if req.Status != nil && *req.Status != "" {
		st := models.ReminderStatus(strings.ToUpper(*req.Status))
		if !st.Valid() {
			return filter, ErrInvalidReminderStatus
		}
		filter.Status = &st
	}
	if req.Channel != nil && *req.Channel != "" {
		ch := models.DeliveryChannel(strings.ToLower(*req.Channel))
		if !ch.Valid() {
			return filter, ErrInvalidChannel
		}
		filter.Channel = &ch
	}
	return filter, nil
}

func (f *ReminderFlowImpl) ListReminders(ctx context.Context, req *dto.ListRemindersRequest) (*dto.ListRemindersResponse, error) {
	filter, err := f.listFilter(req)
	if err != nil {
		return nil, err
	}

	limit, offset := pagination(req.Page, req.PageSize)
	rows, err := f.reminderRepo.ByFilter(ctx, filter, "send_at ASC, id ASC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("REMINDER_LIST_FAILED", "Failed to list reminders", err)
	}
	total, err := f.reminderRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("REMINDER_LIST_FAILED", "Failed to count reminders", err)
	}

	items := make([]dto.ReminderItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, ToReminderItem(r))
	}
	return &dto.ListRemindersResponse{Message: "Reminders retrieved successfully", Items: items, Total: total}, nil
}

func (f *ReminderFlowImpl) GetReminder(ctx context.Context, gymID, reminderID uint) (*dto.ReminderItem, error) {
	r, err := f.loadReminder(ctx, gymID, reminderID)
	if err != nil {
		return nil, err
	}
	item := ToReminderItem(r)
	return &item, nil
}

func (f *ReminderFlowImpl) UpdateReminder(ctx context.Context, req *dto.UpdateReminderRequest) (*dto.ReminderItem, error) {
	r, err := f.loadReminder(ctx, req.GymID, req.ReminderID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.ReminderStatusPending {
		return nil, ErrReminderNotEditable
	}

	if req.Message != nil {
		if strings.TrimSpace(*req.Message) == "" {
			return nil, NewBusinessError("INVALID_MESSAGE", "message is required", nil)
		}
		r.Message = *req.Message
	}
	if req.Channel != nil {
		ch := models.DeliveryChannel(*req.Channel)
		if !ch.Valid() {
			return nil, ErrInvalidChannel
		}
		r.Channel = ch
	}
	if req.SendAt != nil {
		r.SendAt = req.SendAt.UTC()
	}
	if req.EndDate != nil {
		r.EndDate = utils.TimeToUTCPtr(req.EndDate)
	}
	r.UpdatedAt = utils.UTCNow()

	if err := f.reminderRepo.Update(ctx, r); err != nil {
		return nil, NewBusinessError("REMINDER_UPDATE_FAILED", "Failed to update reminder", err)
	}
	item := ToReminderItem(r)
	return &item, nil
}

func (f *ReminderFlowImpl) DeleteReminder(ctx context.Context, gymID, reminderID uint) error {
	r, err := f.loadReminder(ctx, gymID, reminderID)
	if err != nil {
		return err
	}
	if r.Status == models.ReminderStatusProcessing {
		return ErrReminderInProgress
	}
	if err := f.reminderRepo.Delete(ctx, r.ID); err != nil {
		return NewBusinessError("REMINDER_DELETE_FAILED", "Failed to delete reminder", err)
	}
	return nil
}

// SendReminder delivers one PENDING reminder immediately, ignoring its send_at.
// A delivery failure is recorded like a sweep failure and reported in the response.
func (f *ReminderFlowImpl) SendReminder(ctx context.Context, gymID, reminderID uint) (*dto.SendReminderResponse, error) {
	r, err := f.loadReminder(ctx, gymID, reminderID)
	if err != nil {
		return nil, err
	}
	if err := statusGuard(r); err != nil {
		return nil, err
	}

	claimed, err := f.reminderRepo.ClaimByID(ctx, r.ID, f.pipeline.now())
	if err != nil {
		return nil, NewBusinessError("REMINDER_CLAIM_FAILED", "Failed to claim reminder", err)
	}
	if claimed == nil {
		// lost a race with a sweep or another manual send
		current, err := f.reminderRepo.ByID(ctx, r.ID)
		if err != nil {
			return nil, NewBusinessError("REMINDER_LOOKUP_FAILED", "Failed to load reminder", err)
		}
		if current == nil {
			return nil, ErrReminderNotFound
		}
		if err := statusGuard(current); err != nil {
			return nil, err
		}
		// back to PENDING, another delivery touched it in between
		return nil, ErrReminderInProgress
	}
	claimed.Client = r.Client

	res, _, err := f.pipeline.deliver(ctx, claimed, deliverySourceManual)
	if errors.Is(err, ErrClaimLost) {
		return nil, ErrReminderInProgress
	}
	if err != nil {
		return nil, NewBusinessError("REMINDER_RECORD_FAILED", "Failed to record delivery outcome", err)
	}

	return &dto.SendReminderResponse{
		Success:  res.Success,
		Reminder: ToReminderItem(claimed),
		Error:    res.Error,
	}, nil
}

// statusGuard rejects reminders that cannot be sent manually
func statusGuard(r *models.Reminder) error {
	switch r.Status {
	case models.ReminderStatusSent:
		return ErrReminderAlreadySent
	case models.ReminderStatusFailed:
		return ErrReminderAlreadyFailed
	case models.ReminderStatusProcessing:
		return ErrReminderInProgress
	}
	if r.Retries >= models.MaxReminderRetries {
		return ErrReminderAlreadyFailed
	}
	return nil
}

func (f *ReminderFlowImpl) ExportReminders(ctx context.Context, req *dto.ListRemindersRequest) (string, []byte, error) {
	filter, err := f.listFilter(req)
	if err != nil {
		return "", nil, err
	}
	rows, err := f.reminderRepo.ByFilter(ctx, filter, "send_at ASC, id ASC", maxExportRows, 0)
	if err != nil {
		return "", nil, NewBusinessError("REMINDER_EXPORT_FAILED", "Failed to load reminders", err)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := "reminders"
	xl.SetSheetName(xl.GetSheetName(0), sheet)

	header := []string{"id", "client_id", "client_name", "channel", "status", "retries", "send_at", "sent_at", "provider_message_id", "last_error", "message"}
	_ = xl.SetSheetRow(sheet, "A1", &header)

	for i, r := range rows {
		clientName := ""
		if r.Client != nil {
			clientName = r.Client.Name
		}
		sentAt := ""
		if r.SentAt != nil {
			sentAt = r.SentAt.UTC().Format(time.RFC3339)
		}
		record := []string{
			strconv.FormatUint(uint64(r.ID), 10),
			strconv.FormatUint(uint64(r.ClientID), 10),
			clientName,
			r.Channel.String(),
			r.Status.String(),
			strconv.Itoa(r.Retries),
			r.SendAt.UTC().Format(time.RFC3339),
			sentAt,
			deref(r.ProviderMessageID),
			deref(r.LastError),
			r.Message,
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = xl.SetSheetRow(sheet, cellRef, &record)
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}
	filename := fmt.Sprintf("reminders_%s.xlsx", utils.UTCNow().Format("20060102_150405"))
	return filename, buf.Bytes(), nil
}

// loadReminder hides reminders of other gyms behind not found
func (f *ReminderFlowImpl) loadReminder(ctx context.Context, gymID, reminderID uint) (*models.Reminder, error) {
	r, err := f.reminderRepo.ByID(ctx, reminderID)
	if err != nil {
		return nil, NewBusinessError("REMINDER_LOOKUP_FAILED", "Failed to load reminder", err)
	}
	if r == nil || r.GymID != gymID {
		return nil, ErrReminderNotFound
	}
	return r, nil
}
