package dispatcher

import (
	"context"
	"testing"
	"time"

	"wisefido-motion/internal/models"
	"wisefido-motion/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestObserver_ProcessCreatesPersonalAlertOnce(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	creator := NewDispatcher(st, "caregiver-a", zap.NewNop())
	n, err := creator.CreateSystemNotification(ctx, models.AlertCandidate{
		Type: models.AlertTypeStreamStarted, Severity: models.SeverityInfo, Title: "Monitoring Started",
	})
	require.NoError(t, err)

	obs := NewObserver(NewDispatcher(st, "caregiver-b", zap.NewNop()), st, zap.NewNop())
	require.NoError(t, obs.Process(ctx, n.ID))
	require.NoError(t, obs.Process(ctx, n.ID))

	alerts, err := creator.RecentAlerts(ctx, "caregiver-b", 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertTypeStreamStarted, alerts[0].Type)

	var stored models.SystemNotification
	require.NoError(t, st.Get(ctx, models.CollectionSystemNotifications, n.ID, &stored))
	assert.ElementsMatch(t, []string{"caregiver-a", "caregiver-b"}, stored.ProcessedBy)

	// 创建者自己不会再生成个人报警
	creatorObs := NewObserver(creator, st, zap.NewNop())
	require.NoError(t, creatorObs.Process(ctx, n.ID))
	alerts, err = creator.RecentAlerts(ctx, "caregiver-a", 0)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestObserver_ProcessUsesServerCopy(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	creator := NewDispatcher(st, "caregiver-a", zap.NewNop())
	n, err := creator.CreateSystemNotification(ctx, models.AlertCandidate{Type: models.AlertTypeTest, Severity: models.SeverityInfo})
	require.NoError(t, err)

	// 另一观察者已先行处理
	require.NoError(t, st.Update(ctx, models.CollectionSystemNotifications, n.ID, map[string]any{
		"processedBy": []string{"caregiver-a", "caregiver-c"},
	}))

	obs := NewObserver(NewDispatcher(st, "caregiver-b", zap.NewNop()), st, zap.NewNop())
	require.NoError(t, obs.Process(ctx, n.ID))

	var stored models.SystemNotification
	require.NoError(t, st.Get(ctx, models.CollectionSystemNotifications, n.ID, &stored))
	assert.ElementsMatch(t, []string{"caregiver-a", "caregiver-c", "caregiver-b"}, stored.ProcessedBy)
}

func TestObserver_MissingNotificationIsIgnored(t *testing.T) {
	st := store.NewMemoryStore()
	obs := NewObserver(NewDispatcher(st, "caregiver-b", zap.NewNop()), st, zap.NewNop())
	assert.NoError(t, obs.Process(context.Background(), "missing"))
}

func TestObserver_Run(t *testing.T) {
	st := store.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs := NewObserver(NewDispatcher(st, "caregiver-b", zap.NewNop()), st, zap.NewNop())
	done := make(chan error, 1)
	go func() { done <- obs.Run(ctx) }()

	creator := NewDispatcher(st, "caregiver-a", zap.NewNop())
	_, err := creator.CreateSystemNotification(ctx, models.AlertCandidate{Type: models.AlertTypeTest, Severity: models.SeverityInfo})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		alerts, err := creator.RecentAlerts(context.Background(), "caregiver-b", 0)
		return err == nil && len(alerts) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("observer did not stop")
	}
}
