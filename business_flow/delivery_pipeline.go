package businessflow

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/amirphl/gymdesk/app/services"
	"github.com/amirphl/gymdesk/models"
	"github.com/amirphl/gymdesk/utils"
)

const (
	deliverySourceSweep  = "sweep"
	deliverySourceManual = "manual"
)

// deliveryPipeline dispatches one claimed reminder and records the outcome.
// It is shared by the sweep and the manual send path.
type deliveryPipeline struct {
	dispatcher Dispatcher
	tracker    StatusTracker
	publisher  services.EventPublisher
	now        func() time.Time
}

func newDeliveryPipeline(dispatcher Dispatcher, tracker StatusTracker, publisher services.EventPublisher) *deliveryPipeline {
	if publisher == nil {
		publisher = services.NoopEventPublisher{}
	}
	return &deliveryPipeline{dispatcher: dispatcher, tracker: tracker, publisher: publisher, now: utils.UTCNow}
}

// safeDispatch turns a panicking sender into a failed attempt
func (p *deliveryPipeline) safeDispatch(ctx context.Context, r *models.Reminder) (result DeliveryResult) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("dispatch of reminder %d panicked: %v", r.ID, rec)
			result = DeliveryResult{Error: fmt.Sprintf("panic during dispatch: %v", rec)}
		}
	}()
	return p.dispatcher.Dispatch(ctx, r)
}

// deliver expects r to be claimed. It returns ErrClaimLost without dispatching
// when the claim was released or taken over since ClaimDue/ClaimByID. recorded
// is false when the claim was lost during dispatch and the outcome was dropped.
func (p *deliveryPipeline) deliver(ctx context.Context, r *models.Reminder, source string) (DeliveryResult, bool, error) {
	held, err := p.tracker.Renew(ctx, r, p.now())
	if err != nil {
		return DeliveryResult{}, false, fmt.Errorf("renew claim: %w", err)
	}
	if !held {
		return DeliveryResult{}, false, ErrClaimLost
	}

	result := p.safeDispatch(ctx, r)

	recorded, err := p.tracker.Record(ctx, r, result, p.now())
	if err != nil {
		return result, false, err
	}
	if !recorded {
		log.Printf("reminder %d was no longer claimed, outcome not recorded", r.ID)
		return result, false, nil
	}

	observeDelivery(r.Channel.String(), result, r.Status.String())

	event := services.DeliveryEvent{
		ReminderID:        r.ID,
		GymID:             r.GymID,
		ClientID:          r.ClientID,
		Channel:           r.Channel.String(),
		Status:            r.Status.String(),
		Retries:           r.Retries,
		ProviderMessageID: result.MessageID,
		Error:             result.Error,
		Source:            source,
		OccurredAt:        p.now(),
	}
	if err := p.publisher.PublishDelivery(ctx, event); err != nil {
		log.Printf("publish delivery event for reminder %d failed: %v", r.ID, err)
	}
	return result, true, nil
}
