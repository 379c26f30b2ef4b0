package meter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kabsujon-blip/newOCCP/internal/ocpp"
)

func sample(measurand ocpp.Measurand, value string) ocpp.SampledValue {
	return ocpp.SampledValue{Value: value, Measurand: &measurand}
}

func phasedSample(measurand ocpp.Measurand, phase ocpp.Phase, value string) ocpp.SampledValue {
	sv := sample(measurand, value)
	sv.Phase = &phase
	return sv
}

func TestParseFullSample(t *testing.T) {
	r := Parse([]ocpp.MeterValue{{
		SampledValue: []ocpp.SampledValue{
			sample(ocpp.MeasurandPowerActiveImport, "1500"),
			sample(ocpp.MeasurandEnergyActiveImportRegister, "2400"),
			phasedSample(ocpp.MeasurandVoltage, ocpp.PhaseL1N, "230"),
			phasedSample(ocpp.MeasurandCurrentImport, ocpp.PhaseL1N, "6.5"),
			sample(ocpp.MeasurandTemperature, "31.5"),
		},
	}})

	assert.Equal(t, 1500.0, r.PowerW)
	assert.Equal(t, 2.4, r.EnergyKWh)
	assert.Equal(t, 230.0, r.VoltageV)
	assert.Equal(t, 6.5, r.CurrentA)
	assert.Equal(t, 31.5, r.TempC)
}

func TestParseMissingMeasurandMeansEnergy(t *testing.T) {
	r := Parse([]ocpp.MeterValue{{
		SampledValue: []ocpp.SampledValue{{Value: "5000"}},
	}})
	assert.Equal(t, 5.0, r.EnergyKWh)
}

func TestParseEnergyUnitKWh(t *testing.T) {
	unit := ocpp.UnitKWh
	sv := sample(ocpp.MeasurandEnergyActiveImportRegister, "3.2")
	sv.Unit = &unit

	r := Parse([]ocpp.MeterValue{{SampledValue: []ocpp.SampledValue{sv}}})
	assert.Equal(t, 3.2, r.EnergyKWh)
}

func TestParseEnergyUnitWhExplicit(t *testing.T) {
	unit := ocpp.UnitWh
	sv := sample(ocpp.MeasurandEnergyActiveImportRegister, "3200")
	sv.Unit = &unit

	r := Parse([]ocpp.MeterValue{{SampledValue: []ocpp.SampledValue{sv}}})
	assert.Equal(t, 3.2, r.EnergyKWh)
}

func TestParseVoltageCurrentPhaseFilter(t *testing.T) {
	r := Parse([]ocpp.MeterValue{{
		SampledValue: []ocpp.SampledValue{
			phasedSample(ocpp.MeasurandVoltage, ocpp.PhaseL2N, "231"),
			phasedSample(ocpp.MeasurandCurrentImport, ocpp.PhaseL3N, "7"),
			sample(ocpp.MeasurandVoltage, "232"), // no phase at all
		},
	}})

	assert.Zero(t, r.VoltageV)
	assert.Zero(t, r.CurrentA)
}

func TestParseLastSampleWins(t *testing.T) {
	r := Parse([]ocpp.MeterValue{
		{SampledValue: []ocpp.SampledValue{sample(ocpp.MeasurandPowerActiveImport, "1000")}},
		{SampledValue: []ocpp.SampledValue{sample(ocpp.MeasurandPowerActiveImport, "2000")}},
	})
	assert.Equal(t, 2000.0, r.PowerW)
}

func TestParseNonNumericValue(t *testing.T) {
	r := Parse([]ocpp.MeterValue{{
		SampledValue: []ocpp.SampledValue{sample(ocpp.MeasurandPowerActiveImport, "garbage")},
	}})
	assert.Zero(t, r.PowerW)
}

func TestParseUnrecognizedMeasurandIgnored(t *testing.T) {
	r := Parse([]ocpp.MeterValue{{
		SampledValue: []ocpp.SampledValue{sample(ocpp.Measurand("Frequency"), "50")},
	}})
	assert.Equal(t, Reading{}, r)
}

func TestParseEmptyInput(t *testing.T) {
	assert.Equal(t, Reading{}, Parse(nil))
	assert.Equal(t, Reading{}, Parse([]ocpp.MeterValue{}))
}

func TestParseIsPure(t *testing.T) {
	input := []ocpp.MeterValue{{
		SampledValue: []ocpp.SampledValue{
			sample(ocpp.MeasurandPowerActiveImport, "800"),
			sample(ocpp.MeasurandEnergyActiveImportRegister, "1200"),
		},
	}}
	assert.Equal(t, Parse(input), Parse(input))
}
