// Package meter extracts electrical readings from OCPP sampled values.
package meter

import (
	"strconv"

	"github.com/kabsujon-blip/newOCCP/internal/ocpp"
)

// Reading is the flattened result of parsing one MeterValues payload.
type Reading struct {
	PowerW    float64
	EnergyKWh float64
	VoltageV  float64
	CurrentA  float64
	TempC     float64
}

// Parse walks every sampled value and keeps the last sample per field.
// A missing measurand means the energy register. Energy arrives in Wh
// unless the unit says kWh. Voltage and current are taken from phase L1-N
// only. Non-numeric values contribute 0 instead of failing; a misreporting
// meter must not break ingestion.
func Parse(values []ocpp.MeterValue) Reading {
	var r Reading
	for _, mv := range values {
		for _, sv := range mv.SampledValue {
			measurand := ocpp.MeasurandEnergyActiveImportRegister
			if sv.Measurand != nil {
				measurand = *sv.Measurand
			}
			v := parseNumber(sv.Value)

			switch measurand {
			case ocpp.MeasurandPowerActiveImport:
				r.PowerW = v
			case ocpp.MeasurandEnergyActiveImportRegister:
				if sv.Unit != nil && *sv.Unit == ocpp.UnitKWh {
					r.EnergyKWh = v
				} else {
					r.EnergyKWh = v / 1000
				}
			case ocpp.MeasurandVoltage:
				if sv.Phase != nil && *sv.Phase == ocpp.PhaseL1N {
					r.VoltageV = v
				}
			case ocpp.MeasurandCurrentImport:
				if sv.Phase != nil && *sv.Phase == ocpp.PhaseL1N {
					r.CurrentA = v
				}
			case ocpp.MeasurandTemperature:
				r.TempC = v
			}
		}
	}
	return r
}

func parseNumber(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
