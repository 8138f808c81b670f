package businessflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirphl/gymdesk/app/dto"
	"github.com/amirphl/gymdesk/app/services"
	"github.com/amirphl/gymdesk/config"
	"github.com/amirphl/gymdesk/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sweepFixture struct {
	clients   *fakeClientRepo
	reminders *fakeReminderRepo
	runs      *fakeSweepRunRepo
	whatsapp  *services.MockWhatsAppService
	email     *services.MockEmailService
	events    *services.RecordingEventPublisher
	flow      *SweepFlowImpl
	now       time.Time
}

func newSweepFixture(t *testing.T, locker SweepLocker) *sweepFixture {
	t.Helper()
	fx := &sweepFixture{
		clients:  newFakeClientRepo(),
		runs:     &fakeSweepRunRepo{},
		whatsapp: services.NewMockWhatsAppService(),
		email:    services.NewMockEmailService(),
		events:   &services.RecordingEventPublisher{},
		now:      time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	}
	fx.reminders = newFakeReminderRepo(fx.clients)

	flow := NewSweepFlow(fx.reminders, fx.clients, fx.runs,
		NewDispatcher(fx.whatsapp, fx.email, ""), fx.events, locker,
		config.SchedulerConfig{BatchSize: 100, StaleClaimAfter: 15 * time.Minute})
	fx.flow = flow.(*SweepFlowImpl)
	fx.flow.now = func() time.Time { return fx.now }
	fx.flow.pipeline.now = fx.flow.now
	return fx
}

func (fx *sweepFixture) client(name string, whatsapp, email *string) *models.Client {
	return fx.clients.add(&models.Client{GymID: 1, Name: name, WhatsappNumber: whatsapp, Email: email})
}

func (fx *sweepFixture) reminder(c *models.Client, ch models.DeliveryChannel, sendAt time.Time, mutate ...func(r *models.Reminder)) *models.Reminder {
	r := &models.Reminder{GymID: 1, ClientID: c.ID, Channel: ch, Message: "Hola " + c.Name, SendAt: sendAt}
	for _, m := range mutate {
		m(r)
	}
	return fx.reminders.add(r)
}

func TestRunReminderSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("empty queue writes nothing", func(t *testing.T) {
		fx := newSweepFixture(t, nil)
		res, err := fx.flow.RunReminderSweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Processed)
		assert.Equal(t, 0, res.Sent)
		assert.Equal(t, 0, res.Failed)
		assert.Empty(t, fx.runs.runs)
		assert.Empty(t, fx.events.Snapshot())
	})

	t.Run("only due pending reminders are delivered", func(t *testing.T) {
		fx := newSweepFixture(t, nil)
		ana := fx.client("Ana", strPtr("+525533334444"), strPtr("ana@example.com"))

		due := fx.reminder(ana, models.DeliveryChannelWhatsapp, fx.now.Add(-time.Minute))
		dueEmail := fx.reminder(ana, models.DeliveryChannelEmail, fx.now)
		future := fx.reminder(ana, models.DeliveryChannelWhatsapp, fx.now.Add(time.Hour))
		sent := fx.reminder(ana, models.DeliveryChannelWhatsapp, fx.now.Add(-time.Hour), func(r *models.Reminder) { r.Status = models.ReminderStatusSent })
		failed := fx.reminder(ana, models.DeliveryChannelWhatsapp, fx.now.Add(-time.Hour), func(r *models.Reminder) {
			r.Status = models.ReminderStatusFailed
			r.Retries = 3
		})

		res, err := fx.flow.RunReminderSweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Processed)
		assert.Equal(t, 2, res.Sent)
		assert.Equal(t, 0, res.Failed)

		assert.Equal(t, models.ReminderStatusSent, fx.reminders.get(due.ID).Status)
		assert.Equal(t, models.ReminderStatusSent, fx.reminders.get(dueEmail.ID).Status)
		assert.Equal(t, models.ReminderStatusPending, fx.reminders.get(future.ID).Status)
		assert.Equal(t, models.ReminderStatusSent, fx.reminders.get(sent.ID).Status)
		assert.Equal(t, models.ReminderStatusFailed, fx.reminders.get(failed.ID).Status)

		assert.Len(t, fx.whatsapp.GetSentMessages(), 1)
		assert.Len(t, fx.email.GetSentEmails(), 1)

		require.Len(t, fx.runs.runs, 1)
		run := fx.runs.runs[0]
		assert.Equal(t, models.SweepKindReminders, run.Kind)
		assert.Equal(t, 2, run.Processed)
		assert.Equal(t, []int64{int64(due.ID), int64(dueEmail.ID)}, []int64(run.ReminderIDs))

		events := fx.events.Snapshot()
		require.Len(t, events, 2)
		assert.Equal(t, "SENT", events[0].Status)
		assert.Equal(t, "sweep", events[0].Source)
	})

	t.Run("failures are counted and retried later", func(t *testing.T) {
		fx := newSweepFixture(t, nil)
		noContact := fx.client("Luis", nil, nil)
		ana := fx.client("Ana", strPtr("+525533334444"), nil)

		unreachable := fx.reminder(noContact, models.DeliveryChannelWhatsapp, fx.now.Add(-time.Minute))
		lastTry := fx.reminder(noContact, models.DeliveryChannelEmail, fx.now.Add(-time.Minute), func(r *models.Reminder) { r.Retries = 2 })
		ok := fx.reminder(ana, models.DeliveryChannelWhatsapp, fx.now.Add(-time.Minute))

		res, err := fx.flow.RunReminderSweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Processed)
		assert.Equal(t, 1, res.Sent)
		assert.Equal(t, 2, res.Failed)

		r1 := fx.reminders.get(unreachable.ID)
		assert.Equal(t, models.ReminderStatusPending, r1.Status)
		assert.Equal(t, 1, r1.Retries)
		assert.Equal(t, ErrNoDeliveryRoute.Error(), *r1.LastError)

		r2 := fx.reminders.get(lastTry.ID)
		assert.Equal(t, models.ReminderStatusFailed, r2.Status)
		assert.Equal(t, 3, r2.Retries)

		assert.Equal(t, models.ReminderStatusSent, fx.reminders.get(ok.ID).Status)
	})

	t.Run("reminder fails for good after three sweeps", func(t *testing.T) {
		fx := newSweepFixture(t, nil)
		noContact := fx.client("Luis", nil, nil)
		r := fx.reminder(noContact, models.DeliveryChannelWhatsapp, fx.now.Add(-time.Minute))

		for i := 0; i < 5; i++ {
			_, err := fx.flow.RunReminderSweep(ctx)
			require.NoError(t, err)
		}
		stored := fx.reminders.get(r.ID)
		assert.Equal(t, models.ReminderStatusFailed, stored.Status)
		assert.Equal(t, models.MaxReminderRetries, stored.Retries)
		assert.Len(t, fx.runs.runs, 3)
	})

	t.Run("a panicking sender does not stop the sweep", func(t *testing.T) {
		fx := newSweepFixture(t, nil)
		fx.flow.pipeline.dispatcher = NewDispatcher(panickingSender{}, fx.email, "")
		ana := fx.client("Ana", strPtr("+525533334444"), strPtr("ana@example.com"))

		boom := fx.reminder(ana, models.DeliveryChannelWhatsapp, fx.now.Add(-2*time.Minute))
		fine := fx.reminder(ana, models.DeliveryChannelEmail, fx.now.Add(-time.Minute))

		res, err := fx.flow.RunReminderSweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Processed)
		assert.Equal(t, 1, res.Sent)
		assert.Equal(t, 1, res.Failed)

		stored := fx.reminders.get(boom.ID)
		assert.Equal(t, models.ReminderStatusPending, stored.Status)
		assert.Equal(t, 1, stored.Retries)
		assert.Contains(t, *stored.LastError, "panic")
		assert.Equal(t, models.ReminderStatusSent, fx.reminders.get(fine.ID).Status)
	})

	t.Run("provider error is recorded", func(t *testing.T) {
		fx := newSweepFixture(t, nil)
		fx.whatsapp.Fail = errors.New("rate limited")
		ana := fx.client("Ana", strPtr("+525533334444"), nil)
		r := fx.reminder(ana, models.DeliveryChannelWhatsapp, fx.now.Add(-time.Minute))

		res, err := fx.flow.RunReminderSweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Failed)
		assert.Equal(t, "rate limited", *fx.reminders.get(r.ID).LastError)

		events := fx.events.Snapshot()
		require.Len(t, events, 1)
		assert.Equal(t, "PENDING", events[0].Status)
		assert.Equal(t, "rate limited", events[0].Error)
	})

	t.Run("stale claims are released and delivered", func(t *testing.T) {
		fx := newSweepFixture(t, nil)
		ana := fx.client("Ana", strPtr("+525533334444"), nil)
		stale := fx.reminder(ana, models.DeliveryChannelWhatsapp, fx.now.Add(-time.Hour), func(r *models.Reminder) {
			r.Status = models.ReminderStatusProcessing
			claimedAt := fx.now.Add(-time.Hour)
			r.ClaimedAt = &claimedAt
		})
		fresh := fx.reminder(ana, models.DeliveryChannelWhatsapp, fx.now.Add(-time.Hour), func(r *models.Reminder) {
			r.Status = models.ReminderStatusProcessing
			claimedAt := fx.now.Add(-time.Minute)
			r.ClaimedAt = &claimedAt
		})

		res, err := fx.flow.RunReminderSweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Processed)
		assert.Equal(t, models.ReminderStatusSent, fx.reminders.get(stale.ID).Status)
		assert.Equal(t, models.ReminderStatusProcessing, fx.reminders.get(fresh.ID).Status)
	})

	t.Run("busy lock skips the run", func(t *testing.T) {
		fx := newSweepFixture(t, busyLocker{})
		ana := fx.client("Ana", strPtr("+525533334444"), nil)
		r := fx.reminder(ana, models.DeliveryChannelWhatsapp, fx.now.Add(-time.Minute))

		res, err := fx.flow.RunReminderSweep(ctx)
		require.NoError(t, err)
		assert.True(t, res.Skipped)
		assert.Equal(t, 0, res.Processed)
		assert.Equal(t, models.ReminderStatusPending, fx.reminders.get(r.ID).Status)
	})

	t.Run("lock backend outage does not block delivery", func(t *testing.T) {
		fx := newSweepFixture(t, brokenLocker{})
		ana := fx.client("Ana", strPtr("+525533334444"), nil)
		fx.reminder(ana, models.DeliveryChannelWhatsapp, fx.now.Add(-time.Minute))

		res, err := fx.flow.RunReminderSweep(ctx)
		require.NoError(t, err)
		assert.False(t, res.Skipped)
		assert.Equal(t, 1, res.Sent)
	})

	t.Run("batch size bounds one run", func(t *testing.T) {
		fx := newSweepFixture(t, nil)
		fx.flow.cfg.BatchSize = 2
		ana := fx.client("Ana", strPtr("+525533334444"), nil)
		for i := 0; i < 5; i++ {
			fx.reminder(ana, models.DeliveryChannelWhatsapp, fx.now.Add(-time.Duration(i+1)*time.Minute))
		}

		res, err := fx.flow.RunReminderSweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Processed)

		res, err = fx.flow.RunReminderSweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Processed)
	})
}

// scriptedSender runs before ahead of every WhatsApp send
type scriptedSender struct {
	inner  *services.MockWhatsAppService
	before func(to string)
}

func (s *scriptedSender) SendMessage(ctx context.Context, to, body string) (string, error) {
	if s.before != nil {
		s.before(to)
	}
	return s.inner.SendMessage(ctx, to, body)
}

func sendsPerRecipient(msgs []services.MockWhatsAppMessage) map[string]int {
	out := map[string]int{}
	for _, m := range msgs {
		out[m.To]++
	}
	return out
}

func TestRunReminderSweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fx := newSweepFixture(t, nil)
	ana := fx.client("Ana", strPtr("+525533334444"), strPtr("ana@example.com"))
	noContact := fx.client("Luis", nil, nil)

	sent := fx.reminder(ana, models.DeliveryChannelWhatsapp, fx.now.Add(-time.Minute))
	retried := fx.reminder(noContact, models.DeliveryChannelEmail, fx.now.Add(-time.Minute))

	first, err := fx.flow.RunReminderSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Processed)

	afterFirst := map[uint]models.Reminder{sent.ID: fx.reminders.get(sent.ID), retried.ID: fx.reminders.get(retried.ID)}
	events := len(fx.events.Snapshot())

	// same instant: the retried row is PENDING again but the sent one must not move
	second, err := fx.flow.RunReminderSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Processed)
	assert.Equal(t, 0, second.Sent)

	assert.Equal(t, afterFirst[sent.ID], fx.reminders.get(sent.ID))
	assert.Len(t, fx.whatsapp.GetSentMessages(), 1)
	assert.Len(t, fx.events.Snapshot(), events+1)
	require.Len(t, fx.runs.runs, 2)
	assert.Equal(t, []int64{int64(retried.ID)}, []int64(fx.runs.runs[1].ReminderIDs))
	assert.Equal(t, afterFirst[retried.ID].Retries+1, fx.reminders.get(retried.ID).Retries)

	// nothing due any more once every row is terminal
	fx.reminders.mu.Lock()
	fx.reminders.rows[retried.ID].Status = models.ReminderStatusFailed
	fx.reminders.mu.Unlock()
	snapshot := map[uint]models.Reminder{sent.ID: fx.reminders.get(sent.ID), retried.ID: fx.reminders.get(retried.ID)}

	third, err := fx.flow.RunReminderSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, third.Processed)
	assert.Len(t, fx.runs.runs, 2)
	assert.Len(t, fx.events.Snapshot(), events+1)
	for id, want := range snapshot {
		assert.Equal(t, want, fx.reminders.get(id))
	}
}

func TestRunReminderSweepIsolatesPanics(t *testing.T) {
	ctx := context.Background()
	fx := newSweepFixture(t, nil)
	ana := fx.client("Ana", strPtr("+525511110001"), nil)
	bea := fx.client("Bea", strPtr("+525511110002"), nil)
	caro := fx.client("Caro", strPtr("+525511110003"), nil)

	sender := &scriptedSender{inner: fx.whatsapp, before: func(to string) {
		if to == "+525511110002" {
			panic("provider client exploded")
		}
	}}
	fx.flow.pipeline.dispatcher = NewDispatcher(sender, fx.email, "")

	first := fx.reminder(ana, models.DeliveryChannelWhatsapp, fx.now.Add(-3*time.Minute))
	middle := fx.reminder(bea, models.DeliveryChannelWhatsapp, fx.now.Add(-2*time.Minute), func(r *models.Reminder) { r.Retries = 1 })
	last := fx.reminder(caro, models.DeliveryChannelWhatsapp, fx.now.Add(-time.Minute))

	res, err := fx.flow.RunReminderSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 1, res.Failed)

	assert.Equal(t, models.ReminderStatusSent, fx.reminders.get(first.ID).Status)
	assert.Equal(t, models.ReminderStatusSent, fx.reminders.get(last.ID).Status)

	stored := fx.reminders.get(middle.ID)
	assert.Equal(t, models.ReminderStatusPending, stored.Status)
	assert.Equal(t, 2, stored.Retries)
	assert.Contains(t, *stored.LastError, "panic")
	assert.Nil(t, stored.ClaimToken)

	assert.Equal(t, map[string]int{"+525511110001": 1, "+525511110003": 1}, sendsPerRecipient(fx.whatsapp.GetSentMessages()))
}

func TestOverlappingSweepsDeliverOnce(t *testing.T) {
	ctx := context.Background()
	fx := newSweepFixture(t, nil)
	ana := fx.client("Ana", strPtr("+525511110001"), nil)
	bea := fx.client("Bea", strPtr("+525511110002"), nil)
	caro := fx.client("Caro", strPtr("+525511110003"), nil)
	for _, c := range []*models.Client{ana, bea, caro} {
		fx.reminder(c, models.DeliveryChannelWhatsapp, fx.now.Add(-time.Minute))
	}

	other := NewSweepFlow(fx.reminders, fx.clients, fx.runs, nil, fx.events, nil,
		config.SchedulerConfig{BatchSize: 100, StaleClaimAfter: 15 * time.Minute}).(*SweepFlowImpl)
	other.now = fx.flow.now
	other.pipeline.now = fx.flow.now

	// every send takes ten minutes, and a second run starts while the first
	// is on its second record, past the stale window of the untouched third
	var overlapped *dto.SweepResult
	sends := 0
	sender := &scriptedSender{inner: fx.whatsapp}
	sender.before = func(to string) {
		sends++
		fx.now = fx.now.Add(10 * time.Minute)
		if sends == 2 {
			res, err := other.RunReminderSweep(ctx)
			require.NoError(t, err)
			overlapped = res
		}
	}
	dispatcher := NewDispatcher(sender, fx.email, "")
	fx.flow.pipeline.dispatcher = dispatcher
	other.pipeline.dispatcher = dispatcher

	res, err := fx.flow.RunReminderSweep(ctx)
	require.NoError(t, err)

	require.NotNil(t, overlapped)
	assert.Equal(t, 1, overlapped.Processed)
	assert.Equal(t, 1, overlapped.Sent)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 0, res.Failed)

	assert.Equal(t, map[string]int{"+525511110001": 1, "+525511110002": 1, "+525511110003": 1},
		sendsPerRecipient(fx.whatsapp.GetSentMessages()))
	for _, c := range []*models.Client{ana, bea, caro} {
		rows, err := fx.reminders.ByFilter(ctx, models.ReminderFilter{GymID: uintPtr(1), ClientID: uintPtr(c.ID)}, "", 0, 0)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, models.ReminderStatusSent, rows[0].Status)
	}
}

func TestNewSweepFlowWidensStaleWindow(t *testing.T) {
	flow := NewSweepFlow(nil, nil, nil, nil, nil, nil,
		config.SchedulerConfig{StaleClaimAfter: time.Minute, SendTimeout: 45 * time.Second}).(*SweepFlowImpl)
	assert.Equal(t, 90*time.Second, flow.cfg.StaleClaimAfter)

	flow = NewSweepFlow(nil, nil, nil, nil, nil, nil,
		config.SchedulerConfig{StaleClaimAfter: time.Hour, SendTimeout: 45 * time.Second}).(*SweepFlowImpl)
	assert.Equal(t, time.Hour, flow.cfg.StaleClaimAfter)
}
