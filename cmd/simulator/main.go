package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-ledger/internal/models"
)

// Car is the simulated vehicle. Each tick is one simulated day of driving.
type Car struct {
	Odometer      float64
	TankLiters    float64
	TankCapacity  float64
	LitersPer100  float64
	PricePerLiter float64
	ServiceEvery  float64
	lastServiceKm float64
	rng           *rand.Rand
}

// NewCar returns a car with a half-full tank at odometer.
func NewCar(odometer float64, seed int64) *Car {
	return &Car{
		Odometer:      odometer,
		TankCapacity:  50,
		TankLiters:    25,
		LitersPer100:  6.5,
		PricePerLiter: 1.65,
		ServiceEvery:  10000,
		lastServiceKm: odometer,
		rng:           rand.New(rand.NewSource(seed)),
	}
}

// Drive advances the odometer by km and burns fuel with some noise around
// the nominal consumption.
func (c *Car) Drive(km float64) {
	if km <= 0 {
		return
	}
	consumption := c.LitersPer100 * (0.85 + c.rng.Float64()*0.3)
	c.Odometer += km
	c.TankLiters = math.Max(0, c.TankLiters-km*consumption/100)
}

// NeedsFuel reports whether the tank is below 20%.
func (c *Car) NeedsFuel() bool {
	return c.TankLiters < c.TankCapacity*0.2
}

// FillUp fills the tank and returns the fill-up. The pump price drifts a
// little each time.
func (c *Car) FillUp(day time.Time) models.FuelLog {
	c.PricePerLiter = math.Max(0.8, c.PricePerLiter+(c.rng.Float64()*2-1)*0.05)
	liters := math.Round((c.TankCapacity-c.TankLiters)*100) / 100
	c.TankLiters = c.TankCapacity
	return models.FuelLog{
		Date:          models.NewDate(day),
		Odometer:      math.Round(c.Odometer),
		Liters:        liters,
		PricePerLiter: math.Round(c.PricePerLiter*1000) / 1000,
	}
}

// ServiceDue reports whether the next periodic service is reached.
func (c *Car) ServiceDue() bool {
	return c.Odometer-c.lastServiceKm >= c.ServiceEvery
}

// Service returns a maintenance visit that re-arms the next service.
func (c *Car) Service(day time.Time) models.MaintenanceRecord {
	c.lastServiceKm = c.Odometer
	km := math.Round(c.Odometer)
	return models.MaintenanceRecord{
		Date:     models.NewDate(day),
		Odometer: km,
		Supplier: "Simulated Garage",
		Services: []models.Service{
			{Name: "Oil change", Cost: 70, NextService: models.OdometerTrigger(km + c.ServiceEvery)},
			{Name: "Inspection", Cost: 45, NextService: models.DateTrigger(models.NewDate(day.AddDate(1, 0, 0)))},
		},
		CreateExpense: true,
	}
}

// Client posts records to the ledger API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// Post sends v as JSON and fails on any non-2xx response.
func (c *Client) Post(ctx context.Context, path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s body: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post %s failed with status %d: %s", path, resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}

// Simulator drives the car one simulated day per tick.
type Simulator struct {
	car       *Car
	client    *Client
	day       time.Time
	kmPerDay  float64
	fillUps   int
	services  int
	postError int
}

// Tick drives one day and posts whatever the day produced.
func (s *Simulator) Tick(ctx context.Context) {
	s.day = s.day.AddDate(0, 0, 1)
	km := s.kmPerDay * (0.5 + s.car.rng.Float64())
	s.car.Drive(km)

	if s.car.NeedsFuel() {
		fill := s.car.FillUp(s.day)
		if err := s.client.Post(ctx, "/records/fuel", fill); err != nil {
			s.postError++
			log.WithError(err).Error("Failed to record fill-up")
		} else {
			s.fillUps++
			log.WithFields(log.Fields{
				"odometer": fill.Odometer,
				"liters":   fill.Liters,
				"price":    fill.PricePerLiter,
			}).Info("Recorded fill-up")
		}
	}

	if s.car.ServiceDue() {
		visit := s.car.Service(s.day)
		if err := s.client.Post(ctx, "/records/maintenance", visit); err != nil {
			s.postError++
			log.WithError(err).Error("Failed to record service")
		} else {
			s.services++
			log.WithField("odometer", visit.Odometer).Info("Recorded service visit")
		}
	}
}

// Run ticks until ctx is done.
func (s *Simulator) Run(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			log.WithFields(log.Fields{
				"fill_ups": s.fillUps,
				"services": s.services,
				"errors":   s.postError,
			}).Info("Simulation stopped")
			return
		case <-tick.C:
			s.Tick(ctx)
		}
	}
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func main() {
	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api"
	}

	interval := 2 * time.Second
	if v := os.Getenv("SIM_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			interval = time.Duration(n) * time.Second
		}
	}

	sim := &Simulator{
		car: NewCar(envFloat("SIM_START_ODOMETER", 42000), time.Now().UnixNano()),
		client: &Client{
			BaseURL: apiURL,
			Token:   os.Getenv("SIM_AUTH_TOKEN"),
			HTTP:    &http.Client{Timeout: 10 * time.Second},
		},
		day:      time.Now().UTC(),
		kmPerDay: envFloat("SIM_KM_PER_DAY", 60),
	}

	log.WithFields(log.Fields{
		"api_url":    apiURL,
		"interval":   interval,
		"km_per_day": sim.kmPerDay,
		"odometer":   sim.car.Odometer,
	}).Info("Starting vehicle simulation")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sim.Run(ctx, interval)
}
