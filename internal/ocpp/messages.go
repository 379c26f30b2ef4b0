package ocpp

// BootNotificationRequest announces the device identity after connect.
type BootNotificationRequest struct {
	ChargePointVendor       string  `json:"chargePointVendor" validate:"required,max=20"`
	ChargePointModel        string  `json:"chargePointModel" validate:"required,max=20"`
	ChargePointSerialNumber *string `json:"chargePointSerialNumber,omitempty" validate:"omitempty,max=25"`
	ChargeBoxSerialNumber   *string `json:"chargeBoxSerialNumber,omitempty" validate:"omitempty,max=25"`
	FirmwareVersion         *string `json:"firmwareVersion,omitempty" validate:"omitempty,max=50"`
	Iccid                   *string `json:"iccid,omitempty" validate:"omitempty,max=20"`
	Imsi                    *string `json:"imsi,omitempty" validate:"omitempty,max=20"`
	MeterType               *string `json:"meterType,omitempty" validate:"omitempty,max=25"`
	MeterSerialNumber       *string `json:"meterSerialNumber,omitempty" validate:"omitempty,max=25"`
}

// BootNotificationResponse accepts the device and sets the heartbeat interval.
type BootNotificationResponse struct {
	Status      RegistrationStatus `json:"status"`
	CurrentTime DateTime           `json:"currentTime"`
	Interval    int                `json:"interval"`
}

// HeartbeatRequest has no fields.
type HeartbeatRequest struct{}

// HeartbeatResponse returns the server's current time.
type HeartbeatResponse struct {
	CurrentTime DateTime `json:"currentTime"`
}

// StatusNotificationRequest reports a connector status change.
type StatusNotificationRequest struct {
	ConnectorId     int               `json:"connectorId" validate:"min=0"`
	ErrorCode       string            `json:"errorCode"`
	Info            *string           `json:"info,omitempty"`
	Status          ChargePointStatus `json:"status" validate:"required"`
	Timestamp       *DateTime         `json:"timestamp,omitempty"`
	VendorId        *string           `json:"vendorId,omitempty"`
	VendorErrorCode *string           `json:"vendorErrorCode,omitempty"`
}

// StatusNotificationResponse is empty.
type StatusNotificationResponse struct{}

// AuthorizeRequest asks whether an idTag may charge.
type AuthorizeRequest struct {
	IdTag string `json:"idTag" validate:"required,max=20"`
}

// AuthorizeResponse carries the verdict.
type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

// StartTransactionRequest opens a charging session.
type StartTransactionRequest struct {
	ConnectorId   int      `json:"connectorId" validate:"min=1"`
	IdTag         string   `json:"idTag"`
	MeterStart    int      `json:"meterStart" validate:"min=0"`
	ReservationId *int     `json:"reservationId,omitempty"`
	Timestamp     DateTime `json:"timestamp"`
}

// StartTransactionResponse assigns the transaction id.
type StartTransactionResponse struct {
	TransactionId int       `json:"transactionId"`
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
}

// StopTransactionRequest closes a charging session.
type StopTransactionRequest struct {
	IdTag           *string      `json:"idTag,omitempty"`
	MeterStop       int          `json:"meterStop" validate:"min=0"`
	Timestamp       DateTime     `json:"timestamp"`
	TransactionId   int          `json:"transactionId"`
	Reason          *string      `json:"reason,omitempty"`
	TransactionData []MeterValue `json:"transactionData,omitempty"`
}

// StopTransactionResponse carries the idTag verdict.
type StopTransactionResponse struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

// MeterValuesRequest streams meter samples for a connector.
type MeterValuesRequest struct {
	ConnectorId   int          `json:"connectorId" validate:"min=0"`
	TransactionId *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue"`
}

// MeterValuesResponse is empty.
type MeterValuesResponse struct{}

// DataTransferRequest carries vendor-specific data.
type DataTransferRequest struct {
	VendorId  string      `json:"vendorId"`
	MessageId *string     `json:"messageId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// DataTransferResponse carries the transfer status.
type DataTransferResponse struct {
	Status DataTransferStatus `json:"status"`
	Data   interface{}        `json:"data,omitempty"`
}
