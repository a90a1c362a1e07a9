package reminders

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Notifier receives the reminder set whenever a rescan changes it.
type Notifier interface {
	Notify(rs []Reminder) error
	Close()
}

// Snapshot is the payload published for each changed reminder set.
type Snapshot struct {
	GeneratedAt time.Time      `json:"generatedAt"`
	Counts      map[Status]int `json:"counts"`
	Reminders   []Reminder     `json:"reminders"`
}

func newSnapshot(rs []Reminder, now time.Time) Snapshot {
	if rs == nil {
		rs = []Reminder{}
	}
	return Snapshot{GeneratedAt: now, Counts: Counts(rs), Reminders: rs}
}

// LogNotifier writes due and overdue reminders to the log.
type LogNotifier struct {
	logger *log.Entry
}

// NewLogNotifier creates a notifier that logs through logrus.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: log.WithField("component", "reminders")}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(rs []Reminder) error {
	counts := Counts(rs)
	n.logger.WithFields(log.Fields{
		"overdue": counts[StatusOverdue],
		"urgent":  counts[StatusUrgent],
		"warning": counts[StatusWarning],
	}).Info("Reminder set changed")
	for _, r := range rs {
		if r.Status != StatusOverdue && r.Status != StatusUrgent {
			continue
		}
		n.logger.WithFields(log.Fields{
			"maintenance_id": r.MaintenanceID,
			"service":        r.Service,
			"remaining":      r.Remaining,
			"unit":           r.Unit,
		}).Warnf("Service %s", r.Status)
	}
	return nil
}

// Close implements Notifier.
func (n *LogNotifier) Close() {}

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
	Timeout  time.Duration
}

// MQTTNotifier publishes reminder snapshots as retained JSON messages, so a
// dashboard subscribing later still receives the latest set.
type MQTTNotifier struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
	logger  *log.Entry
}

// NewMQTTNotifier connects to the broker.
func NewMQTTNotifier(cfg MQTTConfig) (*MQTTNotifier, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker not configured")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	logger := log.WithFields(log.Fields{"component": "mqtt", "broker": cfg.Broker})

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.WithError(err).Warn("MQTT connection lost")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	logger.Info("Connected to MQTT broker")

	return newMQTTNotifier(client, cfg, logger), nil
}

func newMQTTNotifier(client mqtt.Client, cfg MQTTConfig, logger *log.Entry) *MQTTNotifier {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &MQTTNotifier{
		client:  client,
		topic:   cfg.Topic,
		qos:     cfg.QoS,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Notify implements Notifier.
func (n *MQTTNotifier) Notify(rs []Reminder) error {
	payload, err := json.Marshal(newSnapshot(rs, time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("encoding reminders: %w", err)
	}
	token := n.client.Publish(n.topic, n.qos, true, payload)
	if !token.WaitTimeout(n.timeout) {
		return fmt.Errorf("mqtt publish to %s timed out", n.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	n.logger.WithFields(log.Fields{"topic": n.topic, "reminders": len(rs)}).Debug("Published reminders")
	return nil
}

// Close disconnects from the broker.
func (n *MQTTNotifier) Close() {
	n.client.Disconnect(250)
}
