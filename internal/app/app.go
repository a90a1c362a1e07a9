// Package app assembles the ledger from a resolved configuration. Both the
// server and ledgerctl start from here.
package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-ledger/internal/config"
	"github.com/ukydev/vehicle-ledger/internal/db"
	"github.com/ukydev/vehicle-ledger/internal/ledger"
	"github.com/ukydev/vehicle-ledger/internal/reminders"
)

// OpenStore opens the configured backend.
func OpenStore(ctx context.Context, cfg config.Config) (*db.Store, error) {
	collections := db.DefaultCollections()

	switch cfg.DBDriver {
	case config.DriverSQLite:
		backend, err := db.OpenSQLite(cfg.DBPath, collections)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite store: %w", err)
		}
		log.WithField("path", cfg.DBPath).Info("Opened SQLite store")
		return db.NewStore(backend), nil

	case config.DriverMongo:
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		backend := db.NewMongoBackend(client, cfg.MongoDB)
		if err := backend.EnsureIndexes(ctx, collections); err != nil {
			backend.Close()
			return nil, fmt.Errorf("failed to create indexes: %w", err)
		}
		log.WithField("database", cfg.MongoDB).Info("Connected to MongoDB store")
		return db.NewStore(backend), nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}
}

// NewLedger wires a ledger over store with the configured thresholds.
func NewLedger(store *db.Store, cfg config.Config) *ledger.Ledger {
	return ledger.New(store, cfg.Reminders.Thresholds)
}

// NewNotifier publishes to MQTT when a broker is configured and the
// connection succeeds, and logs reminders otherwise.
func NewNotifier(cfg config.Config) reminders.Notifier {
	if cfg.MQTT.Broker == "" {
		return reminders.NewLogNotifier()
	}
	n, err := reminders.NewMQTTNotifier(reminders.MQTTConfig{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Topic:    cfg.MQTT.Topic,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		QoS:      1,
	})
	if err != nil {
		log.WithError(err).Warn("MQTT unavailable, reminders will only be logged")
		return reminders.NewLogNotifier()
	}
	return n
}
