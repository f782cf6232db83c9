package service

import (
	"context"
	"testing"
	"time"

	"elearn_quiz_backend/internal/model"
	"elearn_quiz_backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCooldownFixture(t *testing.T) (*CooldownService, *fakeClock) {
	t.Helper()
	clock := newFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	svc := NewCooldownService(store.NewMemoryKV(), testQuizConfig(), clock)
	return svc, clock
}

func TestCheckAttemptFirstTime(t *testing.T) {
	svc, _ := newCooldownFixture(t)

	check, err := svc.CheckAttempt(context.Background(), "l1", "sec-1")
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, 2, check.RemainingAttempts)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), check.ResetsAt)
}

func TestCheckAttemptCooldownAfterAttempt(t *testing.T) {
	svc, clock := newCooldownFixture(t)
	ctx := context.Background()

	_, err := svc.RecordAttempt(ctx, "l1", "sec-1", 0.5, false)
	require.NoError(t, err)

	check, err := svc.CheckAttempt(ctx, "l1", "sec-1")
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, model.DenialInCooldown, check.Reason)
	require.NotNil(t, check.CooldownEndsAt)

	clock.Advance(4*time.Hour + time.Minute)
	check, err = svc.CheckAttempt(ctx, "l1", "sec-1")
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, 1, check.RemainingAttempts)
}

func TestCheckAttemptMaxAttemptsBeforeCooldown(t *testing.T) {
	svc, clock := newCooldownFixture(t)
	ctx := context.Background()

	svc.RecordAttempt(ctx, "l1", "sec-1", 0.4, false)
	clock.Advance(5 * time.Hour)
	svc.RecordAttempt(ctx, "l1", "sec-1", 0.6, false)

	// Daily quota outranks the still-running cooldown in the denial order.
	check, err := svc.CheckAttempt(ctx, "l1", "sec-1")
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, model.DenialMaxAttemptsReached, check.Reason)
}

func TestCheckAttemptTooSoon(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	cfg := testQuizConfig()
	cfg.CooldownHours = 0 // 仅验证最小间隔
	svc := NewCooldownService(store.NewMemoryKV(), cfg, clock)
	ctx := context.Background()

	svc.RecordAttempt(ctx, "l1", "sec-1", 0.4, false)

	clock.Advance(2 * time.Minute)
	check, err := svc.CheckAttempt(ctx, "l1", "sec-1")
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, model.DenialTooSoon, check.Reason)

	clock.Advance(4 * time.Minute)
	check, err = svc.CheckAttempt(ctx, "l1", "sec-1")
	require.NoError(t, err)
	assert.True(t, check.Allowed)
}

func TestCheckAttemptDayRollDoesNotMutate(t *testing.T) {
	svc, clock := newCooldownFixture(t)
	ctx := context.Background()

	svc.RecordAttempt(ctx, "l1", "sec-1", 0.4, false)
	clock.Advance(5 * time.Hour)
	svc.RecordAttempt(ctx, "l1", "sec-1", 0.5, false)

	// Past midnight the read path sees a reset quota...
	clock.Set(time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC))
	check, err := svc.CheckAttempt(ctx, "l1", "sec-1")
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, 2, check.RemainingAttempts)

	// ...but the stored record rolls only on the next write.
	record, err := svc.GetRecord(ctx, "l1", "sec-1")
	require.NoError(t, err)
	assert.Equal(t, 2, record.AttemptsToday)

	record, err = svc.RecordAttempt(ctx, "l1", "sec-1", 0.9, true)
	require.NoError(t, err)
	assert.Equal(t, 1, record.AttemptsToday)
}

func TestCheckAttemptMasteredWinsOverEverything(t *testing.T) {
	svc, _ := newCooldownFixture(t)
	ctx := context.Background()

	svc.RecordAttempt(ctx, "l1", "sec-1", 0.9, true)

	// Cooldown is running and quota is partly spent, but mastered is checked first.
	check, err := svc.CheckAttempt(ctx, "l1", "sec-1")
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, model.DenialAlreadyMastered, check.Reason)
}

func TestRecordAttemptMonotonicFields(t *testing.T) {
	svc, clock := newCooldownFixture(t)
	ctx := context.Background()

	svc.RecordAttempt(ctx, "l1", "sec-1", 0.9, true)
	clock.Advance(5 * time.Hour)
	record, err := svc.RecordAttempt(ctx, "l1", "sec-1", 0.3, false)
	require.NoError(t, err)

	assert.Equal(t, 0.9, record.BestScore, "bestScore never goes down")
	assert.True(t, record.Mastered, "mastered never reverts")
	assert.Len(t, record.History, 2)
}

func TestCooldownStatusFormatting(t *testing.T) {
	svc, clock := newCooldownFixture(t)
	ctx := context.Background()

	svc.RecordAttempt(ctx, "l1", "sec-1", 0.5, false)
	clock.Advance(time.Hour + 45*time.Minute)

	status, err := svc.GetCooldownStatus(ctx, "l1", "sec-1")
	require.NoError(t, err)
	assert.True(t, status.InCooldown)
	assert.Equal(t, "2h 15m", status.CooldownRemaining)
	assert.Equal(t, 1, status.AttemptsToday)
	assert.Equal(t, 1, status.RemainingAttempts)
}

func TestCooldownStatusFreshTopic(t *testing.T) {
	svc, _ := newCooldownFixture(t)

	status, err := svc.GetCooldownStatus(context.Background(), "l1", "sec-9")
	require.NoError(t, err)
	assert.False(t, status.InCooldown)
	assert.Equal(t, "0m", status.CooldownRemaining)
	assert.Equal(t, 2, status.RemainingAttempts)
}

func TestGetCooldownStatusesBulk(t *testing.T) {
	svc, _ := newCooldownFixture(t)
	ctx := context.Background()

	svc.RecordAttempt(ctx, "l1", "sec-1", 0.5, false)

	statuses, err := svc.GetCooldownStatuses(ctx, "l1", []string{"sec-1", "sec-2"})
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, statuses["sec-1"].InCooldown)
	assert.False(t, statuses["sec-2"].InCooldown)
}

func TestResetAttemptsClearsLedger(t *testing.T) {
	svc, _ := newCooldownFixture(t)
	ctx := context.Background()

	svc.RecordAttempt(ctx, "l1", "sec-1", 0.9, true)
	require.NoError(t, svc.ResetAttempts(ctx, "l1", "sec-1"))

	record, err := svc.GetRecord(ctx, "l1", "sec-1")
	require.NoError(t, err)
	assert.Nil(t, record)

	check, err := svc.CheckAttempt(ctx, "l1", "sec-1")
	require.NoError(t, err)
	assert.True(t, check.Allowed)
}

func TestRecordReadsAreIsolatedSnapshots(t *testing.T) {
	svc, _ := newCooldownFixture(t)
	ctx := context.Background()

	svc.RecordAttempt(ctx, "l1", "sec-1", 0.5, false)

	record, err := svc.GetRecord(ctx, "l1", "sec-1")
	require.NoError(t, err)
	record.AttemptsToday = 99
	record.Mastered = true
	record.History = append(record.History, model.AttemptHistoryEntry{Score: 1, Passed: true})

	// 读方拿到的是副本，改它不会影响账本
	again, err := svc.GetRecord(ctx, "l1", "sec-1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.AttemptsToday)
	assert.False(t, again.Mastered)
	assert.Len(t, again.History, 1)

	check, err := svc.CheckAttempt(ctx, "l1", "sec-1")
	require.NoError(t, err)
	assert.NotEqual(t, model.DenialAlreadyMastered, check.Reason)
}

func TestAttemptHistoryBounded(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	cfg := testQuizConfig()
	cfg.MaxAttemptsPerDay = 1000
	cfg.CooldownHours = 0
	cfg.MinMinutesBetween = 0
	svc := NewCooldownService(store.NewMemoryKV(), cfg, clock)
	ctx := context.Background()

	for i := 0; i < model.AttemptHistoryLimit+5; i++ {
		svc.RecordAttempt(ctx, "l1", "sec-1", 0.1, false)
	}

	record, err := svc.GetRecord(ctx, "l1", "sec-1")
	require.NoError(t, err)
	assert.Len(t, record.History, model.AttemptHistoryLimit)
}
