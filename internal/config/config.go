// Package config loads server and CLI settings from the environment, an
// optional .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-ledger/internal/reminders"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config is the resolved runtime configuration.
type Config struct {
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`

	DBDriver  string        `yaml:"dbDriver"`
	DBPath    string        `yaml:"dbPath"`
	MongoURI  string        `yaml:"mongoUri"`
	MongoDB   string        `yaml:"mongoDatabase"`
	JWTSecret string        `yaml:"-"`
	JWTExpiry time.Duration `yaml:"jwtExpiry"`
	// AuthDisabled turns off login for a purely local, single-machine setup.
	AuthDisabled bool `yaml:"authDisabled"`
	RateLimit    int  `yaml:"rateLimit"`

	Reminders ReminderConfig `yaml:"reminders"`
	MQTT      MQTTConfig     `yaml:"mqtt"`
}

// ReminderConfig tunes the reminder engine and its rescan.
type ReminderConfig struct {
	reminders.Thresholds `yaml:",inline"`
	Schedule             string `yaml:"schedule"`
}

// MQTTConfig configures the optional reminder publisher. An empty broker
// disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"clientId"`
	Username string `yaml:"username"`
	Password string `yaml:"-"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:      "8080",
		LogLevel:  "info",
		LogFormat: "text",
		DBDriver:  DriverSQLite,
		DBPath:    defaultDBPath(),
		MongoDB:   "vehicle_ledger",
		JWTSecret: "default-secret-key-change-in-production",
		JWTExpiry: 24 * time.Hour,
		RateLimit: 120,
		Reminders: ReminderConfig{
			Thresholds: reminders.DefaultThresholds(),
			Schedule:   reminders.DefaultSchedule,
		},
		MQTT: MQTTConfig{
			Topic:    "vehicle-ledger/reminders",
			ClientID: "vehicle-ledger",
		},
	}
}

func defaultDBPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "vehicle-ledger", "ledger.db")
	}
	return filepath.Join("data", "ledger.db")
}

// Load reads .env (if present), then the YAML file named by LEDGER_CONFIG or
// ./ledger.yaml (if present), then environment variables. Later sources win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()

	path := os.Getenv("LEDGER_CONFIG")
	explicit := path != ""
	if !explicit {
		path = "ledger.yaml"
	}
	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	log.WithField("path", path).Debug("Loaded config file")
	return nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"PORT":              &c.Port,
		"LOG_LEVEL":         &c.LogLevel,
		"LOG_FORMAT":        &c.LogFormat,
		"DB_DRIVER":         &c.DBDriver,
		"DB_PATH":           &c.DBPath,
		"MONGO_URI":         &c.MongoURI,
		"MONGO_DATABASE":    &c.MongoDB,
		"JWT_SECRET":        &c.JWTSecret,
		"MQTT_BROKER":       &c.MQTT.Broker,
		"MQTT_TOPIC":        &c.MQTT.Topic,
		"MQTT_CLIENT_ID":    &c.MQTT.ClientID,
		"MQTT_USERNAME":     &c.MQTT.Username,
		"MQTT_PASSWORD":     &c.MQTT.Password,
		"REMINDER_SCHEDULE": &c.Reminders.Schedule,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"REMINDER_URGENT_DAYS":  &c.Reminders.UrgentDays,
		"REMINDER_WARNING_DAYS": &c.Reminders.WarningDays,
		"REMINDER_URGENT_KM":    &c.Reminders.UrgentKm,
		"REMINDER_WARNING_KM":   &c.Reminders.WarningKm,
	}
	for key, dst := range floats {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}

	if v := os.Getenv("JWT_EXPIRY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("JWT_EXPIRY: %w", err)
		}
		c.JWTExpiry = d
	}
	if v := os.Getenv("AUTH_DISABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUTH_DISABLED: %w", err)
		}
		c.AuthDisabled = b
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT: %w", err)
		}
		c.RateLimit = n
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return errors.New("DB_PATH must be set for the sqlite driver")
		}
	case DriverMongo:
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	th := c.Reminders.Thresholds
	if th.UrgentDays < 0 || th.WarningDays < th.UrgentDays {
		return fmt.Errorf("reminder day thresholds must satisfy 0 <= urgent <= warning, got %v/%v", th.UrgentDays, th.WarningDays)
	}
	if th.UrgentKm < 0 || th.WarningKm < th.UrgentKm {
		return fmt.Errorf("reminder km thresholds must satisfy 0 <= urgent <= warning, got %v/%v", th.UrgentKm, th.WarningKm)
	}
	if c.JWTExpiry <= 0 {
		return errors.New("JWT_EXPIRY must be positive")
	}
	return nil
}

// ConfigureLogging applies the log level and format to the global logger.
func (c Config) ConfigureLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.WithField("level", c.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
