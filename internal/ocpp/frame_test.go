package ocpp

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrameCall(t *testing.T) {
	data := []byte(`[2,"m1","BootNotification",{"chargePointVendor":"ACME","chargePointModel":"X"}]`)

	frame, err := DecodeFrame(data)
	require.NoError(t, err)

	assert.Equal(t, Call, frame.MessageType)
	assert.Equal(t, "m1", frame.MessageID)
	assert.Equal(t, ActionBootNotification, frame.Action)

	var req BootNotificationRequest
	require.NoError(t, json.Unmarshal(frame.Payload, &req))
	assert.Equal(t, "ACME", req.ChargePointVendor)
	assert.Equal(t, "X", req.ChargePointModel)
}

func TestDecodeFrameCallResult(t *testing.T) {
	data := []byte(`[3,"m2",{"status":"Accepted"}]`)

	frame, err := DecodeFrame(data)
	require.NoError(t, err)

	assert.Equal(t, CallResult, frame.MessageType)
	assert.Equal(t, "m2", frame.MessageID)
	assert.Empty(t, frame.Action)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(frame.Payload))
}

func TestDecodeFrameCallError(t *testing.T) {
	data := []byte(`[4,"m3","InternalError","something broke",{"detail":"x"}]`)

	frame, err := DecodeFrame(data)
	require.NoError(t, err)

	assert.Equal(t, CallError, frame.MessageType)
	assert.Equal(t, "m3", frame.MessageID)
	assert.Equal(t, "InternalError", frame.ErrorCode)
	assert.Equal(t, "something broke", frame.ErrorDescription)
	assert.JSONEq(t, `{"detail":"x"}`, string(frame.ErrorDetails))
}

func TestDecodeFrameMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"not an array", `{"a":1}`},
		{"too short", `[2,"m1"]`},
		{"call without payload", `[2,"m1","Heartbeat"]`},
		{"call error too short", `[4,"m1","Code","desc"]`},
		{"unknown type tag", `[9,"m1",{}]`},
		{"non numeric tag", `["two","m1","Heartbeat",{}]`},
		{"non string message id", `[2,42,"Heartbeat",{}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestEncodeCallResult(t *testing.T) {
	data, err := EncodeCallResult("m1", BootNotificationResponse{
		Status:      RegistrationStatusAccepted,
		CurrentTime: NewDateTime(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		Interval:    300,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[3,"m1",{"status":"Accepted","currentTime":"2025-01-01T00:00:00Z","interval":300}]`, string(data))
}

func TestEncodeCall(t *testing.T) {
	data, err := EncodeCall("m9", ActionHeartbeat, map[string]interface{}{})
	require.NoError(t, err)
	assert.JSONEq(t, `[2,"m9","Heartbeat",{}]`, string(data))
}

func TestEncodeCallError(t *testing.T) {
	data, err := EncodeCallError("m5", "NotSupported", "nope", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[4,"m5","NotSupported","nope",{}]`, string(data))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data, err := EncodeCall("42", ActionMeterValues, MeterValuesRequest{ConnectorId: 1})
	require.NoError(t, err)

	frame, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, Call, frame.MessageType)
	assert.Equal(t, "42", frame.MessageID)
	assert.Equal(t, ActionMeterValues, frame.Action)
}

func TestNewMessageID(t *testing.T) {
	before := time.Now().UnixMilli()
	id := NewMessageID()
	after := time.Now().UnixMilli()

	ms, err := strconv.ParseInt(id, 10, 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ms, before)
	assert.LessOrEqual(t, ms, after)
}

func TestDateTimeUnmarshal(t *testing.T) {
	var dt DateTime
	require.NoError(t, json.Unmarshal([]byte(`"2025-06-01T12:30:00Z"`), &dt))
	assert.Equal(t, time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC), dt.Time)

	require.NoError(t, json.Unmarshal([]byte(`null`), &dt))

	assert.Error(t, json.Unmarshal([]byte(`"not a time"`), &dt))
}
