package businessflow

import (
	"context"
	"strings"

	"github.com/amirphl/gymdesk/app/dto"
	"github.com/amirphl/gymdesk/models"
	"github.com/amirphl/gymdesk/repository"
	"github.com/amirphl/gymdesk/utils"
)

// ClientFlow manages the client pool audiences are resolved against
type ClientFlow interface {
	CreateClient(ctx context.Context, req *dto.CreateClientRequest) (*dto.ClientItem, error)
	ListClients(ctx context.Context, req *dto.ListClientsRequest) (*dto.ListClientsResponse, error)
	GetClient(ctx context.Context, gymID, clientID uint) (*dto.ClientItem, error)
	UpdateClient(ctx context.Context, req *dto.UpdateClientRequest) (*dto.ClientItem, error)
}

// ClientFlowImpl implements ClientFlow
type ClientFlowImpl struct {
	clientRepo repository.ClientRepository
}

func NewClientFlow(clientRepo repository.ClientRepository) ClientFlow {
	return &ClientFlowImpl{clientRepo: clientRepo}
}

func (f *ClientFlowImpl) CreateClient(ctx context.Context, req *dto.CreateClientRequest) (*dto.ClientItem, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, NewBusinessError("INVALID_NAME", "name is required", nil)
	}

	status := models.ClientStatusActive
	if req.Status != "" {
		st, err := models.ParseClientStatus(req.Status)
		if err != nil {
			return nil, ErrInvalidClientStatus
		}
		status = st
	}

	c := &models.Client{
		GymID:          req.GymID,
		Name:           name,
		Plan:           trimmedOrNil(req.Plan),
		Status:         status,
		Phone:          trimmedOrNil(req.Phone),
		Email:          trimmedOrNil(req.Email),
		WhatsappNumber: trimmedOrNil(req.WhatsappNumber),
	}
	if err := f.clientRepo.Save(ctx, c); err != nil {
		return nil, NewBusinessError("CLIENT_CREATE_FAILED", "Failed to create client", err)
	}

	item := ToClientItem(c)
	return &item, nil
}

func (f *ClientFlowImpl) ListClients(ctx context.Context, req *dto.ListClientsRequest) (*dto.ListClientsResponse, error) {
	filter := models.ClientFilter{GymID: &req.GymID, Plan: trimmedOrNil(req.Plan)}
	if req.Status != nil && *req.Status != "" {
		st, err := models.ParseClientStatus(*req.Status)
		if err != nil {
			return nil, ErrInvalidClientStatus
		}
		filter.Status = &st
	}

	limit, offset := pagination(req.Page, req.PageSize)
	rows, err := f.clientRepo.ByFilter(ctx, filter, "id ASC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("CLIENT_LIST_FAILED", "Failed to list clients", err)
	}
	total, err := f.clientRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("CLIENT_LIST_FAILED", "Failed to count clients", err)
	}

	items := make([]dto.ClientItem, 0, len(rows))
	for _, c := range rows {
		items = append(items, ToClientItem(c))
	}
	return &dto.ListClientsResponse{Message: "Clients retrieved successfully", Items: items, Total: total}, nil
}

func (f *ClientFlowImpl) GetClient(ctx context.Context, gymID, clientID uint) (*dto.ClientItem, error) {
	c, err := getGymClient(ctx, f.clientRepo, gymID, clientID)
	if err != nil {
		return nil, err
	}
	item := ToClientItem(c)
	return &item, nil
}

func (f *ClientFlowImpl) UpdateClient(ctx context.Context, req *dto.UpdateClientRequest) (*dto.ClientItem, error) {
	c, err := getGymClient(ctx, f.clientRepo, req.GymID, req.ClientID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, NewBusinessError("INVALID_NAME", "name is required", nil)
		}
		c.Name = name
	}
	if req.Status != nil {
		st, err := models.ParseClientStatus(*req.Status)
		if err != nil {
			return nil, ErrInvalidClientStatus
		}
		c.Status = st
	}
	// present-but-empty clears the optional contact fields
	if req.Plan != nil {
		c.Plan = trimmedOrNil(req.Plan)
	}
	if req.Phone != nil {
		c.Phone = trimmedOrNil(req.Phone)
	}
	if req.Email != nil {
		c.Email = trimmedOrNil(req.Email)
	}
	if req.WhatsappNumber != nil {
		c.WhatsappNumber = trimmedOrNil(req.WhatsappNumber)
	}
	c.UpdatedAt = utils.UTCNow()

	if err := f.clientRepo.Update(ctx, c); err != nil {
		return nil, NewBusinessError("CLIENT_UPDATE_FAILED", "Failed to update client", err)
	}
	item := ToClientItem(c)
	return &item, nil
}

// getGymClient loads a client and hides clients of other gyms behind not found
func getGymClient(ctx context.Context, repo repository.ClientRepository, gymID, clientID uint) (*models.Client, error) {
	c, err := repo.ByID(ctx, clientID)
	if err != nil {
		return nil, NewBusinessError("CLIENT_LOOKUP_FAILED", "Failed to load client", err)
	}
	if c == nil || c.GymID != gymID {
		return nil, ErrClientNotFound
	}
	return c, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
