// Package bridge mirrors lifecycle and telemetry events to external systems.
// Local state stays authoritative; every delivery is fire-and-forget.
package bridge

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kabsujon-blip/newOCCP/internal/metrics"
)

// Lifecycle actions understood by the downstream record keeper.
const (
	ActionRegisterStation = "registerStation"
	ActionUpdateStation   = "updateStation"
	ActionCreateSession   = "createSession"
	ActionUpdateSession   = "updateSession"
)

// Notifier delivers events to a downstream system.
type Notifier interface {
	// Lifecycle sends an {action, data} envelope.
	Lifecycle(stationID, action string, data interface{})
	// Telemetry sends a compact meter frame.
	Telemetry(stationID string, connectorID int, energyKWh, powerW float64)
	Close() error
}

// envelope is the lifecycle wire shape.
type envelope struct {
	Action string      `json:"action"`
	Data   interface{} `json:"data"`
}

// telemetryFrame is the meter wire shape.
type telemetryFrame struct {
	StationID   string  `json:"station_id"`
	ConnectorID int     `json:"connector_id"`
	Energy      float64 `json:"energy"`
	Power       float64 `json:"power"`
}

// HTTPNotifier posts JSON to a configured bridge URL with a shared secret
// header. Failures are logged and dropped.
type HTTPNotifier struct {
	url    string
	secret string
	client *http.Client
}

// NewHTTPNotifier creates a notifier for the given endpoint.
func NewHTTPNotifier(url, secret string, timeout time.Duration) *HTTPNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPNotifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: timeout},
	}
}

// Lifecycle sends an action envelope.
func (n *HTTPNotifier) Lifecycle(stationID, action string, data interface{}) {
	go n.post(stationID, envelope{Action: action, Data: data})
}

// Telemetry sends a meter frame.
func (n *HTTPNotifier) Telemetry(stationID string, connectorID int, energyKWh, powerW float64) {
	go n.post(stationID, telemetryFrame{
		StationID:   stationID,
		ConnectorID: connectorID,
		Energy:      energyKWh,
		Power:       powerW,
	})
}

// Close is a no-op; in-flight posts finish on their own.
func (n *HTTPNotifier) Close() error { return nil }

func (n *HTTPNotifier) post(stationID string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("station_id", stationID).Msg("Failed to marshal bridge payload")
		metrics.BridgeDeliveries.WithLabelValues("error").Inc()
		return
	}

	req, err := http.NewRequest(http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Str("station_id", stationID).Msg("Failed to build bridge request")
		metrics.BridgeDeliveries.WithLabelValues("error").Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set("x-bridge-secret", n.secret)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("station_id", stationID).Msg("Bridge delivery failed")
		metrics.BridgeDeliveries.WithLabelValues("error").Inc()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().
			Int("status", resp.StatusCode).
			Str("station_id", stationID).
			Msg("Bridge returned non-2xx status")
		metrics.BridgeDeliveries.WithLabelValues("error").Inc()
		return
	}
	metrics.BridgeDeliveries.WithLabelValues("ok").Inc()
}

// NopNotifier drops every event. Used when no bridge is configured.
type NopNotifier struct{}

func (NopNotifier) Lifecycle(string, string, interface{})   {}
func (NopNotifier) Telemetry(string, int, float64, float64) {}
func (NopNotifier) Close() error                            { return nil }

// MultiNotifier fans events out to several notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier combines notifiers; nil entries are skipped.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	m := &MultiNotifier{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

func (m *MultiNotifier) Lifecycle(stationID, action string, data interface{}) {
	for _, n := range m.notifiers {
		n.Lifecycle(stationID, action, data)
	}
}

func (m *MultiNotifier) Telemetry(stationID string, connectorID int, energyKWh, powerW float64) {
	for _, n := range m.notifiers {
		n.Telemetry(stationID, connectorID, energyKWh, powerW)
	}
}

func (m *MultiNotifier) Close() error {
	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
