package notification

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"presence-tracker-backend/internal/model"
)

type mockSender struct {
	mu         sync.Mutex
	payloads   []string
	endpoints  []string
	statusCode int
}

func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, string(payload))
	m.endpoints = append(m.endpoints, sub.Endpoint)
	code := m.statusCode
	if code == 0 {
		code = http.StatusCreated
	}
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(bytes.NewReader(nil)),
	}, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Target{},
		&model.Session{},
		&model.StatusEvent{},
		&model.PushSubscription{},
	))
	return db
}

func subscribe(t *testing.T, db *gorm.DB, endpoint string, target *model.Target) {
	t.Helper()
	sub := model.PushSubscription{Endpoint: endpoint, P256DH: "p256dh-key", Auth: "auth-key"}
	require.NoError(t, db.Create(&sub).Error)
	require.NoError(t, db.Model(&sub).Association("Targets").Append(target))
}

func TestSendNotificationsForTarget(t *testing.T) {
	db := newTestDB(t)
	target := model.Target{DisplayName: "Alice", TrackingEnabled: true}
	require.NoError(t, db.Create(&target).Error)
	subscribe(t, db, "https://push.example/one", &target)
	subscribe(t, db, "https://push.example/two", &target)

	sender := &mockSender{}
	wp := NewWorkerPool(1, db, &webpush.Options{})
	wp.sender = sender

	wp.sendNotificationsForTarget(context.Background(), target.ID)

	require.Len(t, sender.payloads, 2)
	assert.Equal(t, "Alice is online", sender.payloads[0])
	assert.ElementsMatch(t, []string{"https://push.example/one", "https://push.example/two"}, sender.endpoints)
}

func TestSendNotificationsForTarget_NoSubscribers(t *testing.T) {
	db := newTestDB(t)
	target := model.Target{DisplayName: "Bob", TrackingEnabled: true}
	require.NoError(t, db.Create(&target).Error)

	sender := &mockSender{}
	wp := NewWorkerPool(1, db, &webpush.Options{})
	wp.sender = sender

	wp.sendNotificationsForTarget(context.Background(), target.ID)
	assert.Empty(t, sender.payloads)
}

func TestSendNotification_DeletesGoneSubscription(t *testing.T) {
	db := newTestDB(t)
	target := model.Target{DisplayName: "Carol", TrackingEnabled: true}
	require.NoError(t, db.Create(&target).Error)
	subscribe(t, db, "https://push.example/stale", &target)

	sender := &mockSender{statusCode: http.StatusGone}
	wp := NewWorkerPool(1, db, &webpush.Options{})
	wp.sender = sender

	wp.sendNotificationsForTarget(context.Background(), target.ID)

	var count int64
	require.NoError(t, db.Model(&model.PushSubscription{}).Count(&count).Error)
	assert.Zero(t, count, "a 410 response must remove the subscription")
}

func TestWorkerPool_DispatchDrainsThroughWorkers(t *testing.T) {
	db := newTestDB(t)
	target := model.Target{DisplayName: "Dave", TrackingEnabled: true}
	require.NoError(t, db.Create(&target).Error)
	subscribe(t, db, "https://push.example/dave", &target)

	sender := &mockSender{}
	wp := NewWorkerPool(2, db, &webpush.Options{})
	wp.sender = sender

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	wp.Dispatch(target.ID)

	assert.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.payloads) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
