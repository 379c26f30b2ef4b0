package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"github.com/kabsujon-blip/newOCCP/internal/metrics"
)

// KafkaNotifier mirrors bridge events to a Kafka topic, keyed by station id
// so one station's events stay in one partition.
type KafkaNotifier struct {
	producer sarama.AsyncProducer
	topic    string
}

// NewKafkaNotifier creates an async producer against the given brokers.
func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 500 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka async producer: %w", err)
	}

	kn := &KafkaNotifier{producer: producer, topic: topic}
	go kn.handleSuccesses()
	go kn.handleErrors()
	return kn, nil
}

// Lifecycle publishes an action envelope.
func (n *KafkaNotifier) Lifecycle(stationID, action string, data interface{}) {
	n.publish(stationID, envelope{Action: action, Data: data})
}

// Telemetry publishes a meter frame.
func (n *KafkaNotifier) Telemetry(stationID string, connectorID int, energyKWh, powerW float64) {
	n.publish(stationID, telemetryFrame{
		StationID:   stationID,
		ConnectorID: connectorID,
		Energy:      energyKWh,
		Power:       powerW,
	})
}

// Close flushes and shuts down the producer.
func (n *KafkaNotifier) Close() error {
	if err := n.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) publish(stationID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("station_id", stationID).Msg("Failed to marshal Kafka event")
		metrics.BridgeDeliveries.WithLabelValues("error").Inc()
		return
	}
	n.producer.Input() <- &sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder(stationID),
		Value: sarama.ByteEncoder(data),
	}
}

func (n *KafkaNotifier) handleSuccesses() {
	for msg := range n.producer.Successes() {
		metrics.BridgeDeliveries.WithLabelValues("ok").Inc()
		log.Debug().
			Str("topic", msg.Topic).
			Str("key", string(msg.Key.(sarama.StringEncoder))).
			Msg("Kafka event sent")
	}
}

func (n *KafkaNotifier) handleErrors() {
	for err := range n.producer.Errors() {
		metrics.BridgeDeliveries.WithLabelValues("error").Inc()
		log.Error().
			Err(err).
			Str("topic", err.Msg.Topic).
			Msg("Failed to send Kafka event")
	}
}
