// Package engine implements the OCPP action semantics and the transaction
// state machine.
package engine

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kabsujon-blip/newOCCP/internal/bridge"
	"github.com/kabsujon-blip/newOCCP/internal/meter"
	"github.com/kabsujon-blip/newOCCP/internal/ocpp"
	"github.com/kabsujon-blip/newOCCP/internal/registry"
	"github.com/kabsujon-blip/newOCCP/internal/session"
)

// heartbeatInterval is the interval sent in BootNotification responses.
const heartbeatInterval = 300

// Archiver receives finalized session snapshots. Optional.
type Archiver interface {
	Store(session.Completed)
}

// Engine routes decoded calls into the registry and session store and
// produces the response payload for each.
type Engine struct {
	registry *registry.Registry
	store    *session.Store
	activity *session.ActivityLog
	notifier bridge.Notifier
	archiver Archiver
	now      func() time.Time

	txMu     sync.Mutex
	lastTxID int64
}

// New creates an engine. archiver may be nil.
func New(reg *registry.Registry, store *session.Store, activity *session.ActivityLog, notifier bridge.Notifier, archiver Archiver) *Engine {
	if notifier == nil {
		notifier = bridge.NopNotifier{}
	}
	return &Engine{
		registry: reg,
		store:    store,
		activity: activity,
		notifier: notifier,
		archiver: archiver,
		now:      time.Now,
	}
}

// SetClock overrides the time source. Test use only.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Handle processes one inbound call and returns the response payload.
// Unknown actions get an empty object; a device is never answered with a
// CallError for something the server does not support.
func (e *Engine) Handle(stationID string, action ocpp.Action, payload json.RawMessage) interface{} {
	switch action {
	case ocpp.ActionBootNotification:
		return e.handleBootNotification(stationID, payload)
	case ocpp.ActionHeartbeat:
		return e.handleHeartbeat(stationID)
	case ocpp.ActionStatusNotification:
		return e.handleStatusNotification(stationID, payload)
	case ocpp.ActionStartTransaction:
		return e.handleStartTransaction(stationID, payload)
	case ocpp.ActionStopTransaction:
		return e.handleStopTransaction(stationID, payload)
	case ocpp.ActionMeterValues:
		return e.handleMeterValues(stationID, payload)
	case ocpp.ActionAuthorize:
		return ocpp.AuthorizeResponse{IdTagInfo: ocpp.IdTagInfo{Status: ocpp.AuthorizationStatusAccepted}}
	case ocpp.ActionDataTransfer:
		return ocpp.DataTransferResponse{Status: ocpp.DataTransferStatusAccepted}
	default:
		log.Info().Str("station_id", stationID).Str("action", string(action)).Msg("Unhandled action, replying with empty result")
		return map[string]interface{}{}
	}
}

func (e *Engine) handleBootNotification(stationID string, payload json.RawMessage) interface{} {
	var req ocpp.BootNotificationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Warn().Err(err).Str("station_id", stationID).Msg("Malformed BootNotification payload")
	}

	firmware := ""
	if req.FirmwareVersion != nil {
		firmware = *req.FirmwareVersion
	}
	e.registry.UpdateBoot(stationID, req.ChargePointVendor, req.ChargePointModel, firmware)
	e.activity.Logf("Station %s booted (%s %s)", stationID, req.ChargePointVendor, req.ChargePointModel)

	if st, ok := e.registry.Lookup(stationID); ok {
		e.notifier.Lifecycle(stationID, bridge.ActionRegisterStation, map[string]interface{}{
			"station_id": st.ID,
			"vendor":     st.Vendor,
			"model":      st.Model,
			"firmware":   st.Firmware,
		})
	}

	return ocpp.BootNotificationResponse{
		Status:      ocpp.RegistrationStatusAccepted,
		CurrentTime: ocpp.NewDateTime(e.now()),
		Interval:    heartbeatInterval,
	}
}

func (e *Engine) handleHeartbeat(stationID string) interface{} {
	e.registry.Touch(stationID)
	e.notifier.Lifecycle(stationID, bridge.ActionUpdateStation, map[string]interface{}{
		"station_id":     stationID,
		"last_heartbeat": e.now().UTC().Format(time.RFC3339),
	})
	return ocpp.HeartbeatResponse{CurrentTime: ocpp.NewDateTime(e.now())}
}

// connectorState maps an OCPP status to the bridge's connector vocabulary.
func connectorState(status ocpp.ChargePointStatus) string {
	switch status {
	case ocpp.ChargePointStatusAvailable:
		return "available"
	case ocpp.ChargePointStatusCharging:
		return "charging"
	case ocpp.ChargePointStatusFaulted:
		return "error"
	default:
		return "offline"
	}
}

func (e *Engine) handleStatusNotification(stationID string, payload json.RawMessage) interface{} {
	var req ocpp.StatusNotificationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Warn().Err(err).Str("station_id", stationID).Msg("Malformed StatusNotification payload")
		return ocpp.StatusNotificationResponse{}
	}

	e.notifier.Lifecycle(stationID, bridge.ActionUpdateStation, map[string]interface{}{
		"station_id":   stationID,
		"connector_id": req.ConnectorId,
		"state":        connectorState(req.Status),
	})
	return ocpp.StatusNotificationResponse{}
}

func (e *Engine) handleStartTransaction(stationID string, payload json.RawMessage) interface{} {
	var req ocpp.StartTransactionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Warn().Err(err).Str("station_id", stationID).Msg("Malformed StartTransaction payload")
	}

	txMillis := e.nextTxID()
	txID := strconv.FormatInt(txMillis, 10)

	// Connector 0 addresses the station itself, never a charging outlet.
	// The station still gets its transaction id; no session is tracked.
	if req.ConnectorId < 1 {
		log.Warn().
			Str("station_id", stationID).
			Int("connector_id", req.ConnectorId).
			Msg("StartTransaction on non-chargeable connector, no session opened")
		return ocpp.StartTransactionResponse{
			TransactionId: int(txMillis),
			IdTagInfo:     ocpp.IdTagInfo{Status: ocpp.AuthorizationStatusAccepted},
		}
	}

	sess := e.store.Open(txID, stationID, req.ConnectorId)

	e.activity.Logf("Session %s started on %s connector %d", txID, stationID, req.ConnectorId)
	log.Info().
		Str("station_id", stationID).
		Str("transaction_id", txID).
		Int("connector_id", req.ConnectorId).
		Msg("Transaction started")

	e.notifier.Lifecycle(stationID, bridge.ActionCreateSession, map[string]interface{}{
		"transaction_id": sess.TransactionID,
		"station_id":     sess.StationID,
		"connector_id":   sess.ConnectorID,
		"start_time":     sess.StartTime.UTC().Format(time.RFC3339),
	})

	return ocpp.StartTransactionResponse{
		TransactionId: int(txMillis),
		IdTagInfo:     ocpp.IdTagInfo{Status: ocpp.AuthorizationStatusAccepted},
	}
}

// nextTxID returns the current millisecond timestamp, bumped past the
// previous id when two starts land in the same millisecond.
func (e *Engine) nextTxID() int64 {
	e.txMu.Lock()
	defer e.txMu.Unlock()
	ms := e.now().UnixMilli()
	if ms <= e.lastTxID {
		ms = e.lastTxID + 1
	}
	e.lastTxID = ms
	return ms
}

func (e *Engine) handleStopTransaction(stationID string, payload json.RawMessage) interface{} {
	var req ocpp.StopTransactionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Warn().Err(err).Str("station_id", stationID).Msg("Malformed StopTransaction payload")
	}

	txID := strconv.Itoa(req.TransactionId)
	finalEnergy := float64(req.MeterStop) / 1000
	if _, ok := e.FinalizeSession(txID, session.ReasonStop, &finalEnergy); !ok {
		// Already finalized by a sweep or a disconnect. The station still
		// gets Accepted; it cannot be blamed for a race it cannot see.
		log.Debug().Str("station_id", stationID).Str("transaction_id", txID).Msg("StopTransaction for unknown transaction")
	}

	return ocpp.StopTransactionResponse{
		IdTagInfo: &ocpp.IdTagInfo{Status: ocpp.AuthorizationStatusAccepted},
	}
}

func (e *Engine) handleMeterValues(stationID string, payload json.RawMessage) interface{} {
	var req ocpp.MeterValuesRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Warn().Err(err).Str("station_id", stationID).Msg("Malformed MeterValues payload")
		return ocpp.MeterValuesResponse{}
	}

	// Any telemetry proves the station is alive.
	e.registry.Touch(stationID)

	sess, found := e.resolveSession(stationID, req)
	if !found {
		if len(req.MeterValue) == 0 {
			return ocpp.MeterValuesResponse{}
		}
		// Connector 0 carries station-level samples; there is no outlet to
		// reconstruct a transaction for. Forward the telemetry and move on.
		if req.ConnectorId < 1 {
			reading := meter.Parse(req.MeterValue)
			e.notifier.Telemetry(stationID, req.ConnectorId, reading.EnergyKWh, reading.PowerW)
			return ocpp.MeterValuesResponse{}
		}
		// The station was charging before this server started; reconstruct
		// the session so live telemetry is not dropped.
		txID := "auto-" + strconv.FormatInt(e.now().UnixMilli(), 10)
		sess = e.store.Open(txID, stationID, req.ConnectorId)
		e.activity.Logf("Session %s auto-recovered on %s connector %d", txID, stationID, req.ConnectorId)
		log.Info().
			Str("station_id", stationID).
			Str("transaction_id", txID).
			Int("connector_id", req.ConnectorId).
			Msg("Auto-recovered orphan transaction")
		e.notifier.Lifecycle(stationID, bridge.ActionCreateSession, map[string]interface{}{
			"transaction_id": sess.TransactionID,
			"station_id":     sess.StationID,
			"connector_id":   sess.ConnectorID,
			"start_time":     sess.StartTime.UTC().Format(time.RFC3339),
		})
	}

	reading := meter.Parse(req.MeterValue)
	e.store.UpdateMeter(sess.TransactionID, reading)
	e.notifier.Telemetry(stationID, sess.ConnectorID, reading.EnergyKWh, reading.PowerW)

	return ocpp.MeterValuesResponse{}
}

func (e *Engine) resolveSession(stationID string, req ocpp.MeterValuesRequest) (session.Session, bool) {
	if req.TransactionId != nil {
		if sess, ok := e.store.FindByTx(strconv.Itoa(*req.TransactionId)); ok {
			return sess, true
		}
	}
	return e.store.FindByConnector(stationID, req.ConnectorId)
}

// FinalizeSession runs the single finalization path shared by stop,
// disconnect and the liveness sweeps. The first caller wins; later callers
// get ok=false and must take no further action.
func (e *Engine) FinalizeSession(txID, reason string, finalEnergy *float64) (session.Completed, bool) {
	done, ok := e.store.Finalize(txID, reason, e.now(), finalEnergy)
	if !ok {
		return session.Completed{}, false
	}

	e.activity.Logf("Session %s on %s completed (%s, %.3f kWh)", done.TransactionID, done.StationID, reason, done.EnergyKWh)
	log.Info().
		Str("station_id", done.StationID).
		Str("transaction_id", done.TransactionID).
		Str("reason", reason).
		Float64("energy_kwh", done.EnergyKWh).
		Msg("Transaction finalized")

	e.notifier.Lifecycle(done.StationID, bridge.ActionUpdateSession, map[string]interface{}{
		"transaction_id": done.TransactionID,
		"station_id":     done.StationID,
		"connector_id":   done.ConnectorID,
		"end_time":       done.EndTime.UTC().Format(time.RFC3339),
		"energy":         done.EnergyKWh,
		"status":         done.Status,
		"reason":         done.Reason,
	})
	if e.archiver != nil {
		e.archiver.Store(done)
	}
	return done, true
}

// FinalizeStation finalizes every active session belonging to stationID.
// Used by disconnect cleanup and the heartbeat sweep.
func (e *Engine) FinalizeStation(stationID, reason string) int {
	finalized := 0
	for _, sess := range e.store.ActiveForStation(stationID) {
		if _, ok := e.FinalizeSession(sess.TransactionID, reason, nil); ok {
			finalized++
		}
	}
	return finalized
}
