package notify

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ops/internal/models"
)

// Sink receives fire-and-forget notifications. Implementations must never
// let a delivery failure reach the caller.
type Sink interface {
	Notify(n models.Notification)
}

// MQTTSink publishes notifications to an MQTT broker, one topic per
// recipient under the configured prefix.
type MQTTSink struct {
	client      mqtt.Client
	topicPrefix string
}

// NewMQTTSink connects to the broker and returns a sink. The connection
// auto-reconnects; publishes while disconnected are dropped and logged.
func NewMQTTSink(brokerURL, clientID, topicPrefix string) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	if topicPrefix == "" {
		topicPrefix = "fleet/notifications"
	}
	return &MQTTSink{client: client, topicPrefix: topicPrefix}, nil
}

// Notify publishes the notification without waiting for delivery. Failures
// are logged and never surfaced.
func (s *MQTTSink) Notify(n models.Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		log.WithError(err).Error("failed to marshal notification")
		return
	}

	topic := fmt.Sprintf("%s/%s", s.topicPrefix, n.Recipient)
	token := s.client.Publish(topic, 0, false, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.WithError(token.Error()).WithFields(log.Fields{
				"recipient": n.Recipient,
				"kind":      n.Kind,
			}).Warn("notification delivery failed")
		}
	}()
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}

// LogSink writes notifications to the log. Used when no broker is
// configured.
type LogSink struct{}

// Notify logs the notification.
func (LogSink) Notify(n models.Notification) {
	log.WithFields(log.Fields{
		"recipient": n.Recipient,
		"kind":      n.Kind,
		"title":     n.Title,
	}).Info("notification")
}
