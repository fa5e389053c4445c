package events

import (
	"fmt"

	. "github.com/berfenger/luxnews2mqtt/internal/core/domain"
	"github.com/berfenger/luxnews2mqtt/pkg/lxp_modbus"
)

func floatEvent(id string, value float64, decimals uint) any {
	return FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: id,
		},
		Value:    value,
		Decimals: decimals,
	}
}

func textEvent(id string, value string) any {
	return TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: id,
		},
		Value: value,
	}
}

func RuntimeToUpdateEvents(d *lxp_modbus.InverterRuntimeData) []any {
	var events []any

	events = append(events, textEvent(SENSOR_ID_INVERTER_STATUS, d.StatusStr))

	events = append(events, floatEvent(SENSOR_ID_PV_POWER, d.PVPowerWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_PV1_POWER, d.PV1PowerWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_PV2_POWER, d.PV2PowerWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_PV3_POWER, d.PV3PowerWatt, 0))

	events = append(events, floatEvent(SENSOR_ID_CHARGE_POWER, d.ChargePowerWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_DISCHARGE_POWER, d.DischargePowerWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_BATTERY_VOLTAGE, d.BatteryVoltage, 1))
	events = append(events, floatEvent(SENSOR_ID_BATTERY_SOC, d.SOC, 0))
	events = append(events, floatEvent(SENSOR_ID_BATTERY_SOH, d.SOH, 0))

	events = append(events, floatEvent(SENSOR_ID_GRID_POWER, d.GridPowerWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_POWER_TO_GRID, d.PowerToGridWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_POWER_FROM_GRID, d.PowerFromGridWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_GRID_VOLTAGE, d.GridVoltage, 1))
	events = append(events, floatEvent(SENSOR_ID_GRID_FREQUENCY, d.GridFrequency, 2))

	events = append(events, floatEvent(SENSOR_ID_EPS_POWER, d.EPSPowerWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_LOAD_POWER, d.LoadPowerWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_INVERTER_POWER, d.InverterPowerWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_RECTIFIER_POWER, d.RectifierPowerWatt, 0))

	events = append(events, floatEvent(SENSOR_ID_INTERNAL_TEMPERATURE, d.InternalTempC, 1))
	events = append(events, floatEvent(SENSOR_ID_RADIATOR_TEMPERATURE, d.RadiatorTempC, 1))

	return events
}

func EnergyToUpdateEvents(e *lxp_modbus.InverterEnergyData) []any {
	var events []any

	events = append(events, floatEvent(SENSOR_ID_PV_ENERGY_TODAY, e.PVEnergyTodayKWh, 1))
	events = append(events, floatEvent(SENSOR_ID_CHARGE_ENERGY_TODAY, e.ChargeEnergyTodayKWh, 1))
	events = append(events, floatEvent(SENSOR_ID_DISCHARGE_ENERGY_TODAY, e.DischargeEnergyTodayKWh, 1))
	events = append(events, floatEvent(SENSOR_ID_GRID_EXPORT_TODAY, e.GridExportTodayKWh, 1))
	events = append(events, floatEvent(SENSOR_ID_GRID_IMPORT_TODAY, e.GridImportTodayKWh, 1))
	events = append(events, floatEvent(SENSOR_ID_EPS_ENERGY_TODAY, e.EPSEnergyTodayKWh, 1))

	events = append(events, floatEvent(SENSOR_ID_PV_ENERGY_TOTAL, e.PVEnergyTotalKWh, 1))
	events = append(events, floatEvent(SENSOR_ID_CHARGE_ENERGY_TOTAL, e.ChargeEnergyTotalKWh, 1))
	events = append(events, floatEvent(SENSOR_ID_DISCHARGE_ENERGY_TOTAL, e.DischargeEnergyTotalKWh, 1))
	events = append(events, floatEvent(SENSOR_ID_GRID_EXPORT_TOTAL, e.GridExportTotalKWh, 1))
	events = append(events, floatEvent(SENSOR_ID_GRID_IMPORT_TOTAL, e.GridImportTotalKWh, 1))
	events = append(events, floatEvent(SENSOR_ID_EPS_ENERGY_TOTAL, e.EPSEnergyTotalKWh, 1))

	return events
}

func BatteryToUpdateEvents(b *lxp_modbus.BatteryBankData) []any {
	var events []any

	events = append(events, floatEvent(SENSOR_ID_BATTERY_MODULE_COUNT, float64(b.ModuleCount), 0))
	events = append(events, floatEvent(SENSOR_ID_BATTERY_BANK_CURRENT, b.CurrentAmp, 1))

	for _, m := range b.Modules {
		if m.Ghost() {
			continue
		}
		events = append(events, floatEvent(BatteryModuleSensorId(m.Index, "soc"), m.SOC, 0))
		events = append(events, floatEvent(BatteryModuleSensorId(m.Index, "voltage"), m.Voltage, 2))
		events = append(events, floatEvent(BatteryModuleSensorId(m.Index, "max_cell_voltage"), m.MaxCellVoltage, 3))
		events = append(events, floatEvent(BatteryModuleSensorId(m.Index, "min_cell_voltage"), m.MinCellVoltage, 3))
		events = append(events, floatEvent(BatteryModuleSensorId(m.Index, "cycle_count"), float64(m.CycleCount), 0))
	}

	return events
}

func MidboxToUpdateEvents(m *lxp_modbus.MidboxRuntimeData) []any {
	var events []any

	events = append(events, textEvent(SENSOR_ID_MIDBOX_SMART_PORT_MODE, m.SmartPortModeStr))

	events = append(events, floatEvent(SENSOR_ID_MIDBOX_GRID_L1_POWER, m.GridL1PowerWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_MIDBOX_GRID_L2_POWER, m.GridL2PowerWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_MIDBOX_LOAD_L1_POWER, m.LoadL1PowerWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_MIDBOX_LOAD_L2_POWER, m.LoadL2PowerWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_MIDBOX_UPS_L1_POWER, m.UPSL1PowerWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_MIDBOX_UPS_L2_POWER, m.UPSL2PowerWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_MIDBOX_GEN_L1_POWER, m.GenL1PowerWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_MIDBOX_GEN_L2_POWER, m.GenL2PowerWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_MIDBOX_SMART_LOAD1_POWER, m.SmartLoad1PowerWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_MIDBOX_SMART_LOAD2_POWER, m.SmartLoad2PowerWatt, 0))

	events = append(events, floatEvent(SENSOR_ID_MIDBOX_GRID_L1_VOLTAGE, m.GridL1Voltage, 1))
	events = append(events, floatEvent(SENSOR_ID_MIDBOX_GRID_L2_VOLTAGE, m.GridL2Voltage, 1))
	events = append(events, floatEvent(SENSOR_ID_MIDBOX_GRID_FREQUENCY, m.GridFrequency, 2))

	return events
}

// IntegrityUpdateEvent carries one validator verdict to its diagnostic sensor.
func IntegrityUpdateEvent(sensorId string, verdict string) any {
	return textEvent(sensorId, verdict)
}

// CorruptIntegrityUpdateEvent summarizes the failed canaries of one snapshot.
func CorruptIntegrityUpdateEvent(sensorId string, reasons []lxp_modbus.CorruptionReason) any {
	return textEvent(sensorId, fmt.Sprintf("corrupt (%d checks failed)", len(reasons)))
}

func ActiveChannelUpdateEvent(usingLocal bool) any {
	channel := "cloud"
	if usingLocal {
		channel = "local"
	}
	return textEvent(SENSOR_ID_ACTIVE_CHANNEL, channel)
}

func ParamControlSwitchesUpdateEvents(acCharge, chargePriority bool) []any {
	var events []any
	events = append(events, ParamControlACChargeSwitchUpdateEvent(acCharge))
	events = append(events, ParamControlChargePrioritySwitchUpdateEvent(chargePriority))
	return events
}

func ParamControlACChargeSwitchUpdateEvent(enabled bool) any {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SWITCH_ID_AC_CHARGE,
		},
		Value: enabled,
	}
}

func ParamControlChargePrioritySwitchUpdateEvent(enabled bool) any {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SWITCH_ID_CHARGE_PRIORITY,
		},
		Value: enabled,
	}
}

func ParamControlACChargePowerUpdateEvent(percent float64) any {
	return InputNumberSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: INPUT_NUMBER_ID_AC_CHARGE_POWER_PCT,
		},
		Value: percent,
	}
}

func ParamControlACChargeSoCLimitUpdateEvent(limit float64) any {
	return InputNumberSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: INPUT_NUMBER_ID_AC_CHARGE_SOC_LIMIT,
		},
		Value: limit,
	}
}
