package reminders

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/vehicle-ledger/internal/db"
	"github.com/ukydev/vehicle-ledger/internal/models"
)

func newTestEngine(t *testing.T) (*Engine, *db.Store) {
	t.Helper()
	backend, err := db.OpenSQLite(filepath.Join(t.TempDir(), "reminders.db"), db.DefaultCollections())
	require.NoError(t, err)
	store := db.NewStore(backend)
	t.Cleanup(func() { store.Close() })
	return NewEngine(store, DefaultThresholds()).WithClock(func() time.Time { return now }), store
}

func TestEngine_Upcoming(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)

	_, err := store.Create(ctx, models.CollectionMaintenance, &models.MaintenanceRecord{
		Services: []models.Service{{Name: "Oil", NextService: models.OdometerTrigger(10400)}},
	})
	require.NoError(t, err)
	_, err = store.RaiseOdometer(ctx, 10000, now)
	require.NoError(t, err)

	rs, err := engine.Upcoming(ctx)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, StatusUrgent, rs[0].Status)
	assert.Equal(t, 400.0, rs[0].Remaining)
}

func TestEngine_MarkComplete(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)

	rec := &models.MaintenanceRecord{
		Odometer:        20000,
		NextServiceDate: daysFromNow(2),
		Services: []models.Service{
			{Name: "Oil", NextService: models.OdometerTrigger(25000)},
			{Name: "Tyres"},
		},
	}
	_, err := store.Create(ctx, models.CollectionMaintenance, rec)
	require.NoError(t, err)
	_, err = store.RaiseOdometer(ctx, 24000, now)
	require.NoError(t, err)

	t.Run("service line re-armed", func(t *testing.T) {
		got, err := engine.MarkComplete(ctx, rec.ID, 0, Completion{
			Completion: models.Completion{Odometer: 25100},
			Next:       models.OdometerTrigger(35100),
		})
		require.NoError(t, err)
		require.NotNil(t, got.Services[0].LastCompleted)
		assert.Equal(t, now.Format(models.DateLayout), got.Services[0].LastCompleted.Date.String())

		stored, err := db.Get[models.MaintenanceRecord](ctx, store, models.CollectionMaintenance, rec.ID)
		require.NoError(t, err)
		dueKm, err := stored.Services[0].NextService.DueKm()
		require.NoError(t, err)
		assert.Equal(t, 35100.0, dueKm)

		p, err := store.Profile(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 25100.0, p.Odometer)
	})

	t.Run("lower completion odometer leaves profile alone", func(t *testing.T) {
		_, err := engine.MarkComplete(ctx, rec.ID, 1, Completion{Completion: models.Completion{Odometer: 100}})
		require.NoError(t, err)
		p, err := store.Profile(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 25100.0, p.Odometer)
	})

	t.Run("record level clears fulfilled trigger", func(t *testing.T) {
		got, err := engine.MarkComplete(ctx, rec.ID, RecordLevel, Completion{Completion: models.Completion{Odometer: 25100}})
		require.NoError(t, err)
		assert.Nil(t, got.NextServiceDate)
		require.NotNil(t, got.LastCompleted)

		rs, err := engine.Upcoming(ctx)
		require.NoError(t, err)
		require.Len(t, rs, 1)
		assert.Equal(t, "Oil", rs[0].Service)
	})

	t.Run("record level re-arm by date", func(t *testing.T) {
		got, err := engine.MarkComplete(ctx, rec.ID, RecordLevel, Completion{
			Completion: models.Completion{Odometer: 25100},
			Next:       models.DateTrigger(*daysFromNow(180)),
		})
		require.NoError(t, err)
		require.NotNil(t, got.NextServiceDate)
		assert.Equal(t, daysFromNow(180).String(), got.NextServiceDate.String())
	})

	t.Run("record level re-arm keeps the other trigger", func(t *testing.T) {
		both := &models.MaintenanceRecord{
			Odometer:        20000,
			NextServiceDate: daysFromNow(5),
			NextServiceKm:   km(30000),
		}
		_, err := store.Create(ctx, models.CollectionMaintenance, both)
		require.NoError(t, err)

		got, err := engine.MarkComplete(ctx, both.ID, RecordLevel, Completion{
			Completion: models.Completion{Odometer: 25100},
			Next:       models.DateTrigger(*daysFromNow(365)),
		})
		require.NoError(t, err)
		require.NotNil(t, got.NextServiceDate)
		assert.Equal(t, daysFromNow(365).String(), got.NextServiceDate.String())
		require.NotNil(t, got.NextServiceKm)
		assert.Equal(t, 30000.0, *got.NextServiceKm)

		stored, err := db.Get[models.MaintenanceRecord](ctx, store, models.CollectionMaintenance, both.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.NextServiceKm)
		assert.Equal(t, 30000.0, *stored.NextServiceKm)

		got, err = engine.MarkComplete(ctx, both.ID, RecordLevel, Completion{
			Completion: models.Completion{Odometer: 30050},
			Next:       models.OdometerTrigger(40000),
		})
		require.NoError(t, err)
		require.NotNil(t, got.NextServiceDate)
		require.NotNil(t, got.NextServiceKm)
		assert.Equal(t, 40000.0, *got.NextServiceKm)

		got, err = engine.MarkComplete(ctx, both.ID, RecordLevel, Completion{Completion: models.Completion{Odometer: 40010}})
		require.NoError(t, err)
		assert.Nil(t, got.NextServiceDate)
		assert.Nil(t, got.NextServiceKm)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := engine.MarkComplete(ctx, rec.ID, 5, Completion{})
		assert.True(t, db.IsValidation(err))

		_, err = engine.MarkComplete(ctx, 9999, 0, Completion{})
		assert.True(t, db.IsNotFound(err))

		_, err = engine.MarkComplete(ctx, rec.ID, 0, Completion{
			Next: &models.NextService{Type: "mileage", Value: []byte(`1`)},
		})
		assert.True(t, db.IsValidation(err))
	})
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(rs []Reminder) error {
	args := m.Called(rs)
	return args.Error(0)
}

func (m *MockNotifier) Close() {
	m.Called()
}

func TestScheduler_NotifiesOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything).Return(nil)

	s := NewScheduler(engine, notifier, "")

	changed, err := s.Scan(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.Scan(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = store.Create(ctx, models.CollectionMaintenance, &models.MaintenanceRecord{NextServiceDate: daysFromNow(3)})
	require.NoError(t, err)
	changed, err = s.Scan(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, s.Current(), 1)

	notifier.AssertNumberOfCalls(t, "Notify", 2)
}

func TestScheduler_NotifyError(t *testing.T) {
	engine, _ := newTestEngine(t)
	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything).Return(errors.New("broker down"))

	_, err := NewScheduler(engine, notifier, "").Scan(context.Background())
	assert.ErrorContains(t, err, "broker down")
}

func TestScheduler_StartStop(t *testing.T) {
	engine, _ := newTestEngine(t)
	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything).Return(nil)
	notifier.On("Close").Return()

	s := NewScheduler(engine, notifier, "@every 1h")
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	notifier.AssertCalled(t, "Notify", mock.Anything)
	notifier.AssertCalled(t, "Close")

	bad := NewScheduler(engine, nil, "every now and then")
	assert.Error(t, bad.Start(context.Background()))
}

type fakeToken struct {
	mqtt.Token
	err error
}

func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Error() error                   { return t.err }

type fakeClient struct {
	mqtt.Client
	topic    string
	retained bool
	payload  []byte
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topic, c.retained = topic, retained
	c.payload, _ = payload.([]byte)
	return fakeToken{}
}

func TestMQTTNotifier_Publish(t *testing.T) {
	client := &fakeClient{}
	n := newMQTTNotifier(client, MQTTConfig{Topic: "vehicle/reminders"}, log.WithField("test", true))

	require.NoError(t, n.Notify([]Reminder{{MaintenanceID: 4, Status: StatusUrgent}}))
	assert.Equal(t, "vehicle/reminders", client.topic)
	assert.True(t, client.retained)
	assert.Contains(t, string(client.payload), `"maintenanceId":4`)
	assert.Contains(t, string(client.payload), `"urgent":1`)
}

func TestNewMQTTNotifier_RequiresBroker(t *testing.T) {
	_, err := NewMQTTNotifier(MQTTConfig{})
	assert.Error(t, err)
}
