package ocpp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Frame is a decoded OCPP 1.6J wire frame. The payload stays raw so upper
// layers can parse it per action.
type Frame struct {
	MessageType      MessageType
	MessageID        string
	Action           Action
	Payload          json.RawMessage
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// DecodeFrame parses an OCPP JSON array frame. It returns an error for
// anything that is not a well-formed Call, CallResult or CallError; callers
// log and keep reading, a bad frame never kills the connection.
func DecodeFrame(data []byte) (*Frame, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, fmt.Errorf("frame is not a JSON array: %w", err)
	}
	if len(elements) < 3 {
		return nil, fmt.Errorf("frame has %d elements, need at least 3", len(elements))
	}

	var msgType int
	if err := json.Unmarshal(elements[0], &msgType); err != nil {
		return nil, fmt.Errorf("invalid message type tag: %w", err)
	}

	frame := &Frame{MessageType: MessageType(msgType)}
	if err := json.Unmarshal(elements[1], &frame.MessageID); err != nil {
		return nil, fmt.Errorf("invalid message id: %w", err)
	}

	switch frame.MessageType {
	case Call:
		if len(elements) < 4 {
			return nil, fmt.Errorf("call frame has %d elements, need 4", len(elements))
		}
		if err := json.Unmarshal(elements[2], &frame.Action); err != nil {
			return nil, fmt.Errorf("invalid action: %w", err)
		}
		frame.Payload = elements[3]
	case CallResult:
		frame.Payload = elements[2]
	case CallError:
		if len(elements) < 5 {
			return nil, fmt.Errorf("call error frame has %d elements, need 5", len(elements))
		}
		if err := json.Unmarshal(elements[2], &frame.ErrorCode); err != nil {
			return nil, fmt.Errorf("invalid error code: %w", err)
		}
		if err := json.Unmarshal(elements[3], &frame.ErrorDescription); err != nil {
			return nil, fmt.Errorf("invalid error description: %w", err)
		}
		frame.ErrorDetails = elements[4]
	default:
		return nil, fmt.Errorf("unknown message type %d", msgType)
	}

	return frame, nil
}

// EncodeCall builds a [2, id, action, payload] frame.
func EncodeCall(messageID string, action Action, payload interface{}) ([]byte, error) {
	return json.Marshal([]interface{}{Call, messageID, action, payload})
}

// EncodeCallResult builds a [3, id, payload] frame.
func EncodeCallResult(messageID string, payload interface{}) ([]byte, error) {
	return json.Marshal([]interface{}{CallResult, messageID, payload})
}

// EncodeCallError builds a [4, id, code, description, details] frame.
func EncodeCallError(messageID, errorCode, errorDescription string, details interface{}) ([]byte, error) {
	if details == nil {
		details = map[string]interface{}{}
	}
	return json.Marshal([]interface{}{CallError, messageID, errorCode, errorDescription, details})
}

// NewMessageID returns the current millisecond timestamp as a decimal string.
// Uniqueness per connection follows from serialized outbound sends.
func NewMessageID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}
