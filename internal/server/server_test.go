package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabsujon-blip/newOCCP/internal/bridge"
	"github.com/kabsujon-blip/newOCCP/internal/config"
	"github.com/kabsujon-blip/newOCCP/internal/engine"
	"github.com/kabsujon-blip/newOCCP/internal/ocpp"
	"github.com/kabsujon-blip/newOCCP/internal/registry"
	"github.com/kabsujon-blip/newOCCP/internal/session"
)

type harness struct {
	registry *registry.Registry
	store    *session.Store
	server   *Server
	ts       *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		registry: registry.New(),
		store:    session.NewStore(),
	}
	activity := session.NewActivityLog()
	eng := engine.New(h.registry, h.store, activity, bridge.NopNotifier{}, nil)
	h.server = New(config.ServerConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		WriteTimeout:    5 * time.Second,
		MaxMessageSize:  1024 * 1024,
	}, h.registry, h.store, eng, activity)

	r := mux.NewRouter()
	r.HandleFunc("/ocpp16/{id}", h.server.HandleWebSocket)
	h.ts = httptest.NewServer(r)
	t.Cleanup(h.ts.Close)
	return h
}

func (h *harness) dial(t *testing.T, stationID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ocpp16/" + stationID
	dialer := websocket.Dialer{Subprotocols: []string{Subprotocol}}
	ws, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	assert.Equal(t, Subprotocol, resp.Header.Get("Sec-WebSocket-Protocol"))
	t.Cleanup(func() { ws.Close() })
	return ws
}

func call(t *testing.T, ws *websocket.Conn, messageID string, action string, payload string) *ocpp.Frame {
	t.Helper()
	frame := fmt.Sprintf(`[2,%q,%q,%s]`, messageID, action, payload)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(frame)))

	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	reply, err := ocpp.DecodeFrame(data)
	require.NoError(t, err)
	require.Equal(t, ocpp.CallResult, reply.MessageType)
	require.Equal(t, messageID, reply.MessageID)
	return reply
}

func TestHappyPathChargingSession(t *testing.T) {
	h := newHarness(t)
	ws := h.dial(t, "CP01")

	reply := call(t, ws, "m1", "BootNotification",
		`{"chargePointVendor":"ACME","chargePointModel":"X","firmwareVersion":"1.0"}`)
	var boot ocpp.BootNotificationResponse
	require.NoError(t, json.Unmarshal(reply.Payload, &boot))
	assert.Equal(t, ocpp.RegistrationStatusAccepted, boot.Status)
	assert.Equal(t, 300, boot.Interval)

	reply = call(t, ws, "m2", "StartTransaction",
		`{"connectorId":3,"idTag":"u","meterStart":0,"timestamp":"2025-01-01T00:00:00Z"}`)
	var start ocpp.StartTransactionResponse
	require.NoError(t, json.Unmarshal(reply.Payload, &start))
	assert.Equal(t, ocpp.AuthorizationStatusAccepted, start.IdTagInfo.Status)
	require.NotZero(t, start.TransactionId)

	call(t, ws, "m3", "MeterValues", fmt.Sprintf(
		`{"connectorId":3,"transactionId":%d,"meterValue":[{"sampledValue":[
			{"measurand":"Power.Active.Import","value":"1500"},
			{"measurand":"Energy.Active.Import.Register","value":"2400"},
			{"measurand":"Voltage","phase":"L1-N","value":"230"},
			{"measurand":"Current.Import","phase":"L1-N","value":"6.5"}]}]}`,
		start.TransactionId))

	sessions := h.store.ActiveForStation("CP01")
	require.Len(t, sessions, 1)
	assert.Equal(t, 1500.0, sessions[0].PowerW)
	assert.Equal(t, 2.4, sessions[0].EnergyKWh)
	assert.Equal(t, 230.0, sessions[0].VoltageV)
	assert.Equal(t, 6.5, sessions[0].CurrentA)

	call(t, ws, "m4", "StopTransaction", fmt.Sprintf(
		`{"transactionId":%d,"meterStop":3600,"timestamp":"2025-01-01T01:00:00Z"}`,
		start.TransactionId))

	assert.Empty(t, h.store.ActiveForStation("CP01"))
	completed := h.store.CompletedAll()
	require.NotEmpty(t, completed)
	assert.Equal(t, 3.6, completed[0].EnergyKWh)
	assert.Equal(t, session.ReasonStop, completed[0].Reason)
}

func TestAutoRecoveryFromOrphanMeterValues(t *testing.T) {
	h := newHarness(t)
	ws := h.dial(t, "CP02")

	reply := call(t, ws, "m1", "MeterValues",
		`{"connectorId":1,"meterValue":[{"sampledValue":[
			{"measurand":"Power.Active.Import","value":"800"}]}]}`)
	assert.JSONEq(t, `{}`, string(reply.Payload))

	sessions := h.store.ActiveForStation("CP02")
	require.Len(t, sessions, 1)
	assert.True(t, strings.HasPrefix(sessions[0].TransactionID, "auto-"))
	assert.Equal(t, 1, sessions[0].ConnectorID)
	assert.Equal(t, 800.0, sessions[0].PowerW)
}

func TestDisconnectCleanup(t *testing.T) {
	h := newHarness(t)
	ws := h.dial(t, "CP04")

	call(t, ws, "m1", "StartTransaction",
		`{"connectorId":1,"idTag":"u","meterStart":0,"timestamp":"2025-01-01T00:00:00Z"}`)
	call(t, ws, "m2", "StartTransaction",
		`{"connectorId":2,"idTag":"u","meterStart":0,"timestamp":"2025-01-01T00:00:00Z"}`)
	require.Len(t, h.store.ActiveForStation("CP04"), 2)

	ws.Close()

	assert.Eventually(t, func() bool {
		return len(h.store.ActiveForStation("CP04")) == 0
	}, 3*time.Second, 20*time.Millisecond)

	st, ok := h.registry.Lookup("CP04")
	require.True(t, ok)
	assert.Equal(t, registry.StatusOffline, st.Status)

	completed := h.store.CompletedAll()
	require.Len(t, completed, 2)
	for _, c := range completed {
		assert.Equal(t, session.ReasonDisconnect, c.Reason)
	}

	_, err := h.server.SendCall("CP04", "Reset", nil)
	assert.ErrorIs(t, err, ErrStationOffline)
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	h := newHarness(t)
	ws := h.dial(t, "CP05")

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("this is not json")))

	// The connection survives and keeps answering.
	reply := call(t, ws, "m1", "Heartbeat", `{}`)
	var hb ocpp.HeartbeatResponse
	require.NoError(t, json.Unmarshal(reply.Payload, &hb))
	assert.False(t, hb.CurrentTime.IsZero())
}

func TestUnknownActionGetsEmptyResult(t *testing.T) {
	h := newHarness(t)
	ws := h.dial(t, "CP06")

	reply := call(t, ws, "m1", "FirmwareStatusNotification", `{"status":"Idle"}`)
	assert.JSONEq(t, `{}`, string(reply.Payload))
}

func TestCallResultFromPeerIsIgnored(t *testing.T) {
	h := newHarness(t)
	ws := h.dial(t, "CP07")

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`[3,"x1",{"status":"Accepted"}]`)))

	reply := call(t, ws, "m1", "Heartbeat", `{}`)
	assert.Equal(t, "m1", reply.MessageID)
}

func TestRejectLiteralPathSegment(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.ts.URL + "/ocpp16/ocpp16")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRejectNonWebSocketRequest(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.ts.URL + "/ocpp16/CP08")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestSendCallToConnectedStation(t *testing.T) {
	h := newHarness(t)
	ws := h.dial(t, "CP09")

	messageID, err := h.server.SendCall("CP09", "Reset", json.RawMessage(`{"type":"Soft"}`))
	require.NoError(t, err)
	require.NotEmpty(t, messageID)

	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	frame, err := ocpp.DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, ocpp.Call, frame.MessageType)
	assert.Equal(t, messageID, frame.MessageID)
	assert.Equal(t, ocpp.Action("Reset"), frame.Action)
	assert.JSONEq(t, `{"type":"Soft"}`, string(frame.Payload))
}

func TestReconnectReplacesConnection(t *testing.T) {
	h := newHarness(t)
	h.dial(t, "CP10")

	first, ok := h.registry.Lookup("CP10")
	require.True(t, ok)

	h.dial(t, "CP10")

	assert.Eventually(t, func() bool {
		st, ok := h.registry.Lookup("CP10")
		return ok && st.ConnectionID != first.ConnectionID && st.Status == registry.StatusOnline
	}, 3*time.Second, 20*time.Millisecond)

	total, online := h.registry.Counts()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, online)
}

func TestStaleConnectionCleanupKeepsNewSessions(t *testing.T) {
	h := newHarness(t)
	h.dial(t, "CP11")

	h.server.mu.RLock()
	stale := h.server.conns["CP11"]
	h.server.mu.RUnlock()
	require.NotNil(t, stale)

	ws2 := h.dial(t, "CP11")
	assert.Eventually(t, func() bool {
		st, ok := h.registry.Lookup("CP11")
		return ok && st.ConnectionID != stale.connectionID
	}, 3*time.Second, 20*time.Millisecond)

	call(t, ws2, "m1", "StartTransaction",
		`{"connectorId":1,"idTag":"u","meterStart":0,"timestamp":"2025-01-01T00:00:00Z"}`)
	require.Len(t, h.store.ActiveForStation("CP11"), 1)

	// The replaced connection's teardown must not touch sessions opened on
	// the connection that replaced it.
	h.server.cleanup(stale)

	assert.Len(t, h.store.ActiveForStation("CP11"), 1)
	assert.Empty(t, h.store.CompletedAll())

	st, ok := h.registry.Lookup("CP11")
	require.True(t, ok)
	assert.Equal(t, registry.StatusOnline, st.Status)
}
