package ocpp

import (
	"time"
)

// MessageType is the first element of every OCPP 1.6J frame.
type MessageType int

const (
	// Call is a request initiated by the peer.
	Call MessageType = 2
	// CallResult is the response to a Call.
	CallResult MessageType = 3
	// CallError is the error response to a Call.
	CallError MessageType = 4
)

// Action identifies an OCPP operation.
type Action string

const (
	ActionAuthorize          Action = "Authorize"
	ActionBootNotification   Action = "BootNotification"
	ActionDataTransfer       Action = "DataTransfer"
	ActionHeartbeat          Action = "Heartbeat"
	ActionMeterValues        Action = "MeterValues"
	ActionStartTransaction   Action = "StartTransaction"
	ActionStatusNotification Action = "StatusNotification"
	ActionStopTransaction    Action = "StopTransaction"
)

// ChargePointStatus is the connector status reported by StatusNotification.
type ChargePointStatus string

const (
	ChargePointStatusAvailable     ChargePointStatus = "Available"
	ChargePointStatusPreparing     ChargePointStatus = "Preparing"
	ChargePointStatusCharging      ChargePointStatus = "Charging"
	ChargePointStatusSuspendedEVSE ChargePointStatus = "SuspendedEVSE"
	ChargePointStatusSuspendedEV   ChargePointStatus = "SuspendedEV"
	ChargePointStatusFinishing     ChargePointStatus = "Finishing"
	ChargePointStatusReserved      ChargePointStatus = "Reserved"
	ChargePointStatusUnavailable   ChargePointStatus = "Unavailable"
	ChargePointStatusFaulted       ChargePointStatus = "Faulted"
)

// RegistrationStatus is the BootNotification response status.
type RegistrationStatus string

const (
	RegistrationStatusAccepted RegistrationStatus = "Accepted"
	RegistrationStatusPending  RegistrationStatus = "Pending"
	RegistrationStatusRejected RegistrationStatus = "Rejected"
)

// AuthorizationStatus is the idTagInfo status.
type AuthorizationStatus string

const (
	AuthorizationStatusAccepted     AuthorizationStatus = "Accepted"
	AuthorizationStatusBlocked      AuthorizationStatus = "Blocked"
	AuthorizationStatusExpired      AuthorizationStatus = "Expired"
	AuthorizationStatusInvalid      AuthorizationStatus = "Invalid"
	AuthorizationStatusConcurrentTx AuthorizationStatus = "ConcurrentTx"
)

// DataTransferStatus is the DataTransfer response status.
type DataTransferStatus string

const (
	DataTransferStatusAccepted         DataTransferStatus = "Accepted"
	DataTransferStatusRejected         DataTransferStatus = "Rejected"
	DataTransferStatusUnknownMessageId DataTransferStatus = "UnknownMessageId"
	DataTransferStatusUnknownVendorId  DataTransferStatus = "UnknownVendorId"
)

// Measurand identifies what a sampled value measures.
type Measurand string

const (
	MeasurandCurrentImport              Measurand = "Current.Import"
	MeasurandEnergyActiveImportRegister Measurand = "Energy.Active.Import.Register"
	MeasurandPowerActiveImport          Measurand = "Power.Active.Import"
	MeasurandTemperature                Measurand = "Temperature"
	MeasurandVoltage                    Measurand = "Voltage"
)

// Phase identifies the electrical phase of a sampled value.
type Phase string

const (
	PhaseL1  Phase = "L1"
	PhaseL2  Phase = "L2"
	PhaseL3  Phase = "L3"
	PhaseL1N Phase = "L1-N"
	PhaseL2N Phase = "L2-N"
	PhaseL3N Phase = "L3-N"
)

// UnitOfMeasure is the unit of a sampled value.
type UnitOfMeasure string

const (
	UnitWh      UnitOfMeasure = "Wh"
	UnitKWh     UnitOfMeasure = "kWh"
	UnitW       UnitOfMeasure = "W"
	UnitKW      UnitOfMeasure = "kW"
	UnitV       UnitOfMeasure = "V"
	UnitA       UnitOfMeasure = "A"
	UnitCelsius UnitOfMeasure = "Celsius"
)

// DateTime wraps time.Time with the ISO-8601 serialization OCPP requires.
type DateTime struct {
	time.Time
}

// NewDateTime returns a DateTime for t.
func NewDateTime(t time.Time) DateTime {
	return DateTime{Time: t}
}

// MarshalJSON emits RFC3339 in UTC.
func (dt DateTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + dt.Time.UTC().Format(time.RFC3339) + `"`), nil
}

// UnmarshalJSON accepts RFC3339 with or without fractional seconds.
func (dt *DateTime) UnmarshalJSON(data []byte) error {
	str := string(data)
	if str == "null" {
		return nil
	}
	if len(str) >= 2 && str[0] == '"' {
		str = str[1 : len(str)-1]
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return err
		}
	}
	dt.Time = t
	return nil
}

// IdTagInfo carries the authorization verdict in transaction responses.
type IdTagInfo struct {
	ExpiryDate  *DateTime           `json:"expiryDate,omitempty"`
	ParentIdTag *string             `json:"parentIdTag,omitempty"`
	Status      AuthorizationStatus `json:"status" validate:"required"`
}

// MeterValue is one timestamped group of sampled values.
type MeterValue struct {
	Timestamp    *DateTime      `json:"timestamp,omitempty"`
	SampledValue []SampledValue `json:"sampledValue"`
}

// SampledValue is a single measurement inside a MeterValue.
type SampledValue struct {
	Value     string         `json:"value"`
	Context   *string        `json:"context,omitempty"`
	Format    *string        `json:"format,omitempty"`
	Measurand *Measurand     `json:"measurand,omitempty"`
	Phase     *Phase         `json:"phase,omitempty"`
	Location  *string        `json:"location,omitempty"`
	Unit      *UnitOfMeasure `json:"unit,omitempty"`
}
