package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/vehicle-ledger/internal/models"
)

var day = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

func TestCar_DriveBurnsFuel(t *testing.T) {
	car := NewCar(1000, 1)
	car.Drive(100)
	assert.Equal(t, 1100.0, car.Odometer)
	// 6.5 L/100km with at most 15% noise either way
	assert.InDelta(t, 25-6.5, car.TankLiters, 1.0)

	car.Drive(-5)
	assert.Equal(t, 1100.0, car.Odometer)

	car.Drive(10000)
	assert.Equal(t, 0.0, car.TankLiters)
	assert.True(t, car.NeedsFuel())
}

func TestCar_FillUp(t *testing.T) {
	car := NewCar(1000, 1)
	car.TankLiters = 8.25
	fill := car.FillUp(day)

	assert.Equal(t, 41.75, fill.Liters)
	assert.Equal(t, 1000.0, fill.Odometer)
	assert.Equal(t, "2025-07-01", fill.Date.String())
	assert.InDelta(t, 1.65, fill.PricePerLiter, 0.05)
	assert.Zero(t, fill.TotalCost, "the server derives the cost")
	assert.Equal(t, car.TankCapacity, car.TankLiters)
	assert.False(t, car.NeedsFuel())
}

func TestCar_Service(t *testing.T) {
	car := NewCar(1000, 1)
	assert.False(t, car.ServiceDue())

	car.Drive(10000)
	require.True(t, car.ServiceDue())

	visit := car.Service(day)
	assert.False(t, car.ServiceDue())
	assert.True(t, visit.CreateExpense)
	require.Len(t, visit.Services, 2)

	km, err := visit.Services[0].NextService.DueKm()
	require.NoError(t, err)
	assert.Equal(t, 21000.0, km)

	due, err := visit.Services[1].NextService.DueDate()
	require.NoError(t, err)
	assert.Equal(t, "2026-07-01", due.String())
}

type recorder struct {
	mu       sync.Mutex
	fuel     []models.FuelLog
	visits   []models.MaintenanceRecord
	auth     []string
	failWith int
}

func (rec *recorder) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.auth = append(rec.auth, r.Header.Get("Authorization"))
		if rec.failWith != 0 {
			http.Error(w, "nope", rec.failWith)
			return
		}
		switch r.URL.Path {
		case "/api/records/fuel":
			var f models.FuelLog
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&f))
			rec.fuel = append(rec.fuel, f)
		case "/api/records/maintenance":
			var m models.MaintenanceRecord
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&m))
			rec.visits = append(rec.visits, m)
		default:
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
}

func newTestSimulator(url string) *Simulator {
	return &Simulator{
		car:      NewCar(9000, 7),
		client:   &Client{BaseURL: url + "/api", Token: "tok", HTTP: &http.Client{Timeout: time.Second}},
		day:      day,
		kmPerDay: 200,
	}
}

func TestSimulator_TickPostsFillUpsAndServices(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(rec.handler(t))
	defer server.Close()

	sim := newTestSimulator(server.URL)
	for i := 0; i < 100; i++ {
		sim.Tick(context.Background())
	}

	assert.NotEmpty(t, rec.fuel)
	assert.NotEmpty(t, rec.visits)
	assert.Equal(t, len(rec.fuel), sim.fillUps)
	assert.Equal(t, len(rec.visits), sim.services)
	assert.Zero(t, sim.postError)
	assert.Equal(t, "Bearer tok", rec.auth[0])

	for i := 1; i < len(rec.fuel); i++ {
		assert.Greater(t, rec.fuel[i].Odometer, rec.fuel[i-1].Odometer)
		assert.True(t, rec.fuel[i].Date.After(rec.fuel[i-1].Date.Time))
	}
}

func TestSimulator_CountsPostErrors(t *testing.T) {
	rec := &recorder{failWith: http.StatusUnprocessableEntity}
	server := httptest.NewServer(rec.handler(t))
	defer server.Close()

	sim := newTestSimulator(server.URL)
	sim.car.TankLiters = 0
	sim.Tick(context.Background())

	assert.Equal(t, 1, sim.postError)
	assert.Zero(t, sim.fillUps)
}

func TestClient_Post(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if r.URL.Path == "/bad" {
			http.Error(w, "odometer: must be >= 0", http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	c := &Client{BaseURL: server.URL, HTTP: server.Client()}
	assert.NoError(t, c.Post(context.Background(), "/ok", map[string]int{"a": 1}))

	err := c.Post(context.Background(), "/bad", map[string]int{"a": 1})
	assert.ErrorContains(t, err, "422")
	assert.ErrorContains(t, err, "odometer")

	unreachable := &Client{BaseURL: "http://127.0.0.1:1", HTTP: &http.Client{Timeout: time.Second}}
	assert.Error(t, unreachable.Post(context.Background(), "/ok", nil))
}

func TestSimulator_RunStopsOnCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		newTestSimulator(server.URL).Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("simulator did not stop")
	}
}

func TestEnvFloat(t *testing.T) {
	t.Setenv("SIM_KM_PER_DAY", "")
	assert.Equal(t, 60.0, envFloat("SIM_KM_PER_DAY", 60))
	t.Setenv("SIM_KM_PER_DAY", "120.5")
	assert.Equal(t, 120.5, envFloat("SIM_KM_PER_DAY", 60))
	t.Setenv("SIM_KM_PER_DAY", "fast")
	assert.Equal(t, 60.0, envFloat("SIM_KM_PER_DAY", 60))
	t.Setenv("SIM_KM_PER_DAY", "-3")
	assert.Equal(t, 60.0, envFloat("SIM_KM_PER_DAY", 60))
}
