package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/gymdesk/models"
	gymtesting "github.com/amirphl/gymdesk/testing"
	"github.com/amirphl/gymdesk/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRepoTest skips the test when no PostgreSQL server is reachable
func setupRepoTest(t *testing.T) (*gymtesting.TestDB, *gymtesting.TestFixtures) {
	t.Helper()
	tdb, err := gymtesting.SetupTestDB()
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(func() { _ = tdb.TeardownTestDB() })
	return tdb, gymtesting.NewTestFixtures(tdb)
}

func TestClaimDue(t *testing.T) {
	tdb, fx := setupRepoTest(t)
	repo := NewReminderRepository(tdb.DB)
	ctx := context.Background()
	now := utils.UTCNow()

	client, err := fx.CreateTestClient(1, "Gold")
	require.NoError(t, err)

	older, err := fx.CreateTestReminder(client, now.Add(-2*time.Hour))
	require.NoError(t, err)
	newer, err := fx.CreateTestReminder(client, now.Add(-time.Minute))
	require.NoError(t, err)
	_, err = fx.CreateTestReminder(client, now.Add(time.Hour)) // not due
	require.NoError(t, err)
	exhausted, err := fx.CreateTestReminder(client, now.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, tdb.DB.Model(exhausted).Update("retries", models.MaxReminderRetries).Error)

	claimed, err := repo.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, older.ID, claimed[0].ID)
	assert.Equal(t, newer.ID, claimed[1].ID)
	for _, r := range claimed {
		assert.Equal(t, models.ReminderStatusProcessing, r.Status)
		assert.NotNil(t, r.ClaimedAt)
	}

	again, err := repo.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again, "claimed rows must not be claimed twice")
}

func TestClaimDueConcurrentSweeps(t *testing.T) {
	tdb, fx := setupRepoTest(t)
	repo := NewReminderRepository(tdb.DB)
	now := utils.UTCNow()

	client, err := fx.CreateTestClient(1, "")
	require.NoError(t, err)
	const total = 40
	for i := 0; i < total; i++ {
		_, err := fx.CreateTestReminder(client, now.Add(-time.Duration(i+1)*time.Minute))
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = map[uint]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				rows, err := repo.ClaimDue(context.Background(), now, 5)
				if err != nil || len(rows) == 0 {
					return
				}
				mu.Lock()
				for _, r := range rows {
					seen[r.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "reminder %d claimed %d times", id, n)
	}
}

func TestCompareAndSwapTransitions(t *testing.T) {
	tdb, fx := setupRepoTest(t)
	repo := NewReminderRepository(tdb.DB)
	ctx := context.Background()
	now := utils.UTCNow()

	client, err := fx.CreateTestClient(1, "")
	require.NoError(t, err)
	reminder, err := fx.CreateTestReminder(client, now.Add(time.Hour))
	require.NoError(t, err)

	ok, err := repo.MarkSent(ctx, reminder.ID, "", now, utils.ToPtr("wamid.1"))
	require.NoError(t, err)
	assert.False(t, ok, "a PENDING row is not finalized")

	claimed, err := repo.ClaimByID(ctx, reminder.ID, now)
	require.NoError(t, err)
	require.NotNil(t, claimed, "manual claim ignores send_at")

	require.NotNil(t, claimed.ClaimToken)
	token := *claimed.ClaimToken

	again, err := repo.ClaimByID(ctx, reminder.ID, now)
	require.NoError(t, err)
	assert.Nil(t, again)

	ok, err = repo.MarkSent(ctx, reminder.ID, "someone-else", now, utils.ToPtr("wamid.x"))
	require.NoError(t, err)
	assert.False(t, ok, "a foreign claim token writes nothing")

	ok, err = repo.RenewClaim(ctx, reminder.ID, token, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkSent(ctx, reminder.ID, token, now, utils.ToPtr("wamid.1"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.RenewClaim(ctx, reminder.ID, token, now)
	require.NoError(t, err)
	assert.False(t, ok, "a finalized row cannot be renewed")

	ok, err = repo.MarkAttemptFailed(ctx, reminder.ID, token, 1, models.ReminderStatusPending, "late failure")
	require.NoError(t, err)
	assert.False(t, ok, "a SENT row never goes back")

	stored, err := repo.ByID(ctx, reminder.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReminderStatusSent, stored.Status)
	require.NotNil(t, stored.ProviderMessageID)
	assert.Equal(t, "wamid.1", *stored.ProviderMessageID)
	assert.Nil(t, stored.ClaimToken)
	assert.NotNil(t, stored.Client)
}

func TestReleaseStaleClaims(t *testing.T) {
	tdb, fx := setupRepoTest(t)
	repo := NewReminderRepository(tdb.DB)
	ctx := context.Background()
	now := utils.UTCNow()

	client, err := fx.CreateTestClient(1, "")
	require.NoError(t, err)
	stale, err := fx.CreateTestReminder(client, now.Add(-time.Hour))
	require.NoError(t, err)
	fresh, err := fx.CreateTestReminder(client, now.Add(-time.Hour))
	require.NoError(t, err)

	abandoned, err := repo.ClaimByID(ctx, stale.ID, now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, abandoned)
	_, err = repo.ClaimByID(ctx, fresh.ID, now)
	require.NoError(t, err)

	released, err := repo.ReleaseStaleClaims(ctx, now.Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	row, err := repo.ByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReminderStatusPending, row.Status)
	assert.Nil(t, row.ClaimedAt)
	assert.Nil(t, row.ClaimToken)

	// the run that lost the claim cannot finalize it after a new claim
	reclaimed, err := repo.ClaimByID(ctx, stale.ID, now)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.NotEqual(t, *abandoned.ClaimToken, *reclaimed.ClaimToken)

	ok, err := repo.MarkSent(ctx, stale.ID, *abandoned.ClaimToken, now, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = repo.RenewClaim(ctx, stale.ID, *abandoned.ClaimToken, now)
	require.NoError(t, err)
	assert.False(t, ok)

	row, err = repo.ByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReminderStatusProcessing, row.Status)
}

func TestSaveIgnoringDuplicates(t *testing.T) {
	tdb, fx := setupRepoTest(t)
	repo := NewReminderRepository(tdb.DB)
	ctx := context.Background()

	client, err := fx.CreateTestClient(1, "")
	require.NoError(t, err)
	rule, err := fx.CreateTestRule(1, models.RuleKindReminder)
	require.NoError(t, err)

	sendAt := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	build := func() []*models.Reminder {
		return []*models.Reminder{{
			GymID: 1, ClientID: client.ID, RuleID: &rule.ID,
			Message: "Hola", Channel: models.DeliveryChannelWhatsapp, SendAt: sendAt,
		}}
	}

	n, err := repo.SaveIgnoringDuplicates(ctx, build())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.SaveIgnoringDuplicates(ctx, build())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	count, err := repo.Count(ctx, models.ReminderFilter{RuleID: &rule.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
