package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"

	"github.com/berfenger/luxnews2mqtt/pkg/lxp_modbus"
)

const (
	SENSOR_ID_BRIDGE_STATE   = "bridge"
	SENSOR_ID_ACTIVE_CHANNEL = "active_channel"

	SENSOR_ID_INVERTER_STATUS      = "inverter_status"
	SENSOR_ID_PV_POWER             = "pv_power"
	SENSOR_ID_PV1_POWER            = "pv1_power"
	SENSOR_ID_PV2_POWER            = "pv2_power"
	SENSOR_ID_PV3_POWER            = "pv3_power"
	SENSOR_ID_CHARGE_POWER         = "charge_power"
	SENSOR_ID_DISCHARGE_POWER      = "discharge_power"
	SENSOR_ID_BATTERY_VOLTAGE      = "battery_voltage"
	SENSOR_ID_BATTERY_SOC          = "battery_soc"
	SENSOR_ID_BATTERY_SOH          = "battery_soh"
	SENSOR_ID_GRID_POWER           = "grid_power"
	SENSOR_ID_POWER_TO_GRID        = "power_to_grid"
	SENSOR_ID_POWER_FROM_GRID      = "power_from_grid"
	SENSOR_ID_GRID_VOLTAGE         = "grid_voltage"
	SENSOR_ID_GRID_FREQUENCY       = "grid_frequency"
	SENSOR_ID_EPS_POWER            = "eps_power"
	SENSOR_ID_LOAD_POWER           = "load_power"
	SENSOR_ID_INVERTER_POWER       = "inverter_power"
	SENSOR_ID_RECTIFIER_POWER      = "rectifier_power"
	SENSOR_ID_INTERNAL_TEMPERATURE = "internal_temperature"
	SENSOR_ID_RADIATOR_TEMPERATURE = "radiator_temperature"

	SENSOR_ID_PV_ENERGY_TODAY        = "pv_energy_today"
	SENSOR_ID_CHARGE_ENERGY_TODAY    = "charge_energy_today"
	SENSOR_ID_DISCHARGE_ENERGY_TODAY = "discharge_energy_today"
	SENSOR_ID_GRID_EXPORT_TODAY      = "grid_export_today"
	SENSOR_ID_GRID_IMPORT_TODAY      = "grid_import_today"
	SENSOR_ID_EPS_ENERGY_TODAY       = "eps_energy_today"
	SENSOR_ID_PV_ENERGY_TOTAL        = "pv_energy_total"
	SENSOR_ID_CHARGE_ENERGY_TOTAL    = "charge_energy_total"
	SENSOR_ID_DISCHARGE_ENERGY_TOTAL = "discharge_energy_total"
	SENSOR_ID_GRID_EXPORT_TOTAL      = "grid_export_total"
	SENSOR_ID_GRID_IMPORT_TOTAL      = "grid_import_total"
	SENSOR_ID_EPS_ENERGY_TOTAL       = "eps_energy_total"

	SENSOR_ID_BATTERY_MODULE_COUNT = "battery_module_count"
	SENSOR_ID_BATTERY_BANK_CURRENT = "battery_bank_current"

	SENSOR_ID_RUNTIME_INTEGRITY = "runtime_integrity"
	SENSOR_ID_ENERGY_INTEGRITY  = "energy_integrity"
	SENSOR_ID_BATTERY_INTEGRITY = "battery_integrity"

	SENSOR_ID_MIDBOX_SMART_PORT_MODE   = "smart_port_mode"
	SENSOR_ID_MIDBOX_GRID_L1_POWER     = "grid_l1_power"
	SENSOR_ID_MIDBOX_GRID_L2_POWER     = "grid_l2_power"
	SENSOR_ID_MIDBOX_LOAD_L1_POWER     = "load_l1_power"
	SENSOR_ID_MIDBOX_LOAD_L2_POWER     = "load_l2_power"
	SENSOR_ID_MIDBOX_UPS_L1_POWER      = "ups_l1_power"
	SENSOR_ID_MIDBOX_UPS_L2_POWER      = "ups_l2_power"
	SENSOR_ID_MIDBOX_GEN_L1_POWER      = "gen_l1_power"
	SENSOR_ID_MIDBOX_GEN_L2_POWER      = "gen_l2_power"
	SENSOR_ID_MIDBOX_SMART_LOAD1_POWER = "smart_load1_power"
	SENSOR_ID_MIDBOX_SMART_LOAD2_POWER = "smart_load2_power"
	SENSOR_ID_MIDBOX_GRID_L1_VOLTAGE   = "grid_l1_voltage"
	SENSOR_ID_MIDBOX_GRID_L2_VOLTAGE   = "grid_l2_voltage"
	SENSOR_ID_MIDBOX_GRID_FREQUENCY    = "grid_frequency"

	SWITCH_ID_AC_CHARGE       = "ac_charge"
	SWITCH_ID_CHARGE_PRIORITY = "charge_priority"

	INPUT_NUMBER_ID_AC_CHARGE_POWER_PCT = "ac_charge_power_pct"
	INPUT_NUMBER_ID_AC_CHARGE_SOC_LIMIT = "ac_charge_soc_limit"

	STATE_CLASS_DURATION         = "duration"
	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"
	DEVICE_CLASS_BATTERY         = "battery"
	DEVICE_CLASS_CURRENT         = "current"
	DEVICE_CLASS_ENERGY          = "energy"
	DEVICE_CLASS_FREQUENCY       = "frequency"
	DEVICE_CLASS_POWER           = "power"
	DEVICE_CLASS_TEMPERATURE     = "temperature"
	DEVICE_CLASS_VOLTAGE         = "voltage"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	ENTITY_CLASS_CONFIG          = "config"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"
	INPUT_NUMBER_MODE_BOX        = "box"
	INPUT_NUMBER_MODE_SLIDER     = "slider"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("luxnews_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Luxnews",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Luxnews %s", md5HashShort(baseTopic)),
	}
}

func InverterDevice(info *lxp_modbus.DeviceInfo) Device {
	return Device{
		Id:           fmt.Sprintf("lux_inverter_%s", md5HashShort(info.Serial)),
		Version:      info.FirmwareVersion,
		Manufacturer: "LuxPower",
		Model:        info.Model,
		Name:         fmt.Sprintf("LuxPower %s %s", info.Model, md5HashShort(info.Serial)),
	}
}

func MidboxDevice(info *lxp_modbus.DeviceInfo) Device {
	return Device{
		Id:           fmt.Sprintf("lux_midbox_%s", md5HashShort(info.Serial)),
		Version:      info.FirmwareVersion,
		Manufacturer: "LuxPower",
		Model:        info.Model,
		Name:         fmt.Sprintf("LuxPower %s %s", info.Model, md5HashShort(info.Serial)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func powerSensor(device Device, id, name string) GenericSensor {
	return GenericSensor{
		Device:            device,
		Id:                id,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              name,
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(device.Id, id),
	}
}

func energySensor(device Device, id, name string) GenericSensor {
	return GenericSensor{
		Device:            device,
		Id:                id,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              name,
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
		UniqueId:          uniqueId(device.Id, id),
	}
}

func disabled(s GenericSensor) GenericSensor {
	s.EnabledByDefault = optionalBool(false)
	return s
}

func InverterRuntimeSensors(inverterDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Inverter Operating Status
	sensors = append(sensors, GenericSensor{
		Device:     inverterDevice,
		Id:         SENSOR_ID_INVERTER_STATUS,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Inverter status",
		UniqueId:   uniqueId(inverterDevice.Id, SENSOR_ID_INVERTER_STATUS),
	})

	// PV power (total + per string)
	pv := powerSensor(inverterDevice, SENSOR_ID_PV_POWER, "PV power")
	pv.Icon = "mdi:solar-power"
	sensors = append(sensors, pv)
	sensors = append(sensors, disabled(powerSensor(inverterDevice, SENSOR_ID_PV1_POWER, "PV1 power")))
	sensors = append(sensors, disabled(powerSensor(inverterDevice, SENSOR_ID_PV2_POWER, "PV2 power")))
	sensors = append(sensors, disabled(powerSensor(inverterDevice, SENSOR_ID_PV3_POWER, "PV3 power")))

	// Battery power flow
	sensors = append(sensors, powerSensor(inverterDevice, SENSOR_ID_CHARGE_POWER, "Battery charge power"))
	sensors = append(sensors, powerSensor(inverterDevice, SENSOR_ID_DISCHARGE_POWER, "Battery discharge power"))

	// Battery Voltage
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_BATTERY_VOLTAGE,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Battery voltage",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_VOLTAGE,
		UnitOfMeasurement: "V",
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_BATTERY_VOLTAGE),
	})

	// Battery SoC
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_BATTERY_SOC,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Battery SoC",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_BATTERY,
		UnitOfMeasurement: "%",
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_BATTERY_SOC),
	})

	// Battery SoH
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_BATTERY_SOH,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Battery SoH",
		StateClass:        STATE_CLASS_MEASUREMENT,
		UnitOfMeasurement: "%",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_BATTERY_SOH),
	})

	// Grid flow
	sensors = append(sensors, powerSensor(inverterDevice, SENSOR_ID_GRID_POWER, "Grid power flow"))
	sensors = append(sensors, powerSensor(inverterDevice, SENSOR_ID_POWER_TO_GRID, "Power to grid"))
	sensors = append(sensors, powerSensor(inverterDevice, SENSOR_ID_POWER_FROM_GRID, "Power from grid"))

	// Grid Voltage
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_GRID_VOLTAGE,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Grid voltage",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_VOLTAGE,
		UnitOfMeasurement: "V",
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_GRID_VOLTAGE),
	})

	// Grid Frequency
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_GRID_FREQUENCY,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Grid frequency",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_FREQUENCY,
		UnitOfMeasurement: "Hz",
		Icon:              "mdi:sine-wave",
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_GRID_FREQUENCY),
	})

	// Backup output and load
	sensors = append(sensors, powerSensor(inverterDevice, SENSOR_ID_EPS_POWER, "EPS power"))
	lp := powerSensor(inverterDevice, SENSOR_ID_LOAD_POWER, "Load power")
	lp.Icon = "mdi:home-lightning-bolt"
	sensors = append(sensors, lp)
	sensors = append(sensors, disabled(powerSensor(inverterDevice, SENSOR_ID_INVERTER_POWER, "Inverter AC power")))
	sensors = append(sensors, disabled(powerSensor(inverterDevice, SENSOR_ID_RECTIFIER_POWER, "Rectifier power")))

	// Temperatures
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_INTERNAL_TEMPERATURE,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Internal temperature",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_TEMPERATURE,
		UnitOfMeasurement: "°C",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_INTERNAL_TEMPERATURE),
	})
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_RADIATOR_TEMPERATURE,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Radiator temperature",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_TEMPERATURE,
		UnitOfMeasurement: "°C",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_RADIATOR_TEMPERATURE),
	})

	return sensors
}

func InverterEnergySensors(inverterDevice Device) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, energySensor(inverterDevice, SENSOR_ID_PV_ENERGY_TODAY, "PV energy today"))
	sensors = append(sensors, energySensor(inverterDevice, SENSOR_ID_CHARGE_ENERGY_TODAY, "Charge energy today"))
	sensors = append(sensors, energySensor(inverterDevice, SENSOR_ID_DISCHARGE_ENERGY_TODAY, "Discharge energy today"))
	sensors = append(sensors, energySensor(inverterDevice, SENSOR_ID_GRID_EXPORT_TODAY, "Grid export today"))
	sensors = append(sensors, energySensor(inverterDevice, SENSOR_ID_GRID_IMPORT_TODAY, "Grid import today"))
	sensors = append(sensors, disabled(energySensor(inverterDevice, SENSOR_ID_EPS_ENERGY_TODAY, "EPS energy today")))

	sensors = append(sensors, energySensor(inverterDevice, SENSOR_ID_PV_ENERGY_TOTAL, "PV energy total"))
	sensors = append(sensors, energySensor(inverterDevice, SENSOR_ID_CHARGE_ENERGY_TOTAL, "Charge energy total"))
	sensors = append(sensors, energySensor(inverterDevice, SENSOR_ID_DISCHARGE_ENERGY_TOTAL, "Discharge energy total"))
	sensors = append(sensors, energySensor(inverterDevice, SENSOR_ID_GRID_EXPORT_TOTAL, "Grid export total"))
	sensors = append(sensors, energySensor(inverterDevice, SENSOR_ID_GRID_IMPORT_TOTAL, "Grid import total"))
	sensors = append(sensors, disabled(energySensor(inverterDevice, SENSOR_ID_EPS_ENERGY_TOTAL, "EPS energy total")))

	return sensors
}

func BatteryBankSensors(inverterDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Module count
	sensors = append(sensors, GenericSensor{
		Device:         inverterDevice,
		Id:             SENSOR_ID_BATTERY_MODULE_COUNT,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Battery module count",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		Icon:           "mdi:battery-outline",
		UniqueId:       uniqueId(inverterDevice.Id, SENSOR_ID_BATTERY_MODULE_COUNT),
	})

	// Bank current
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_BATTERY_BANK_CURRENT,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Battery bank current",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_CURRENT,
		UnitOfMeasurement: "A",
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_BATTERY_BANK_CURRENT),
	})

	return sensors
}

// BatteryModuleSensorId builds the id of a per-module metric: modules come and
// go with the install, so ids carry the slot index.
func BatteryModuleSensorId(index int, metric string) string {
	return fmt.Sprintf("battery_module_%d_%s", index, metric)
}

func BatteryModuleSensors(inverterDevice Device, index int) []GenericSensor {

	var sensors []GenericSensor
	name := func(metric string) string {
		return fmt.Sprintf("Battery module %d %s", index, metric)
	}

	socId := BatteryModuleSensorId(index, "soc")
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                socId,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              name("SoC"),
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_BATTERY,
		UnitOfMeasurement: "%",
		UniqueId:          uniqueId(inverterDevice.Id, socId),
	})

	voltId := BatteryModuleSensorId(index, "voltage")
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                voltId,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              name("voltage"),
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_VOLTAGE,
		UnitOfMeasurement: "V",
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(inverterDevice.Id, voltId),
	})

	maxCellId := BatteryModuleSensorId(index, "max_cell_voltage")
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                maxCellId,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              name("max cell voltage"),
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_VOLTAGE,
		UnitOfMeasurement: "V",
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(inverterDevice.Id, maxCellId),
	})

	minCellId := BatteryModuleSensorId(index, "min_cell_voltage")
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                minCellId,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              name("min cell voltage"),
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_VOLTAGE,
		UnitOfMeasurement: "V",
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(inverterDevice.Id, minCellId),
	})

	cyclesId := BatteryModuleSensorId(index, "cycle_count")
	sensors = append(sensors, GenericSensor{
		Device:         inverterDevice,
		Id:             cyclesId,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           name("cycles"),
		StateClass:     STATE_CLASS_TOTAL_INCREASING,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		Icon:           "mdi:battery-sync",
		UniqueId:       uniqueId(inverterDevice.Id, cyclesId),
	})

	return sensors
}

func MidboxSensors(midboxDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Smart port mode
	sensors = append(sensors, GenericSensor{
		Device:     midboxDevice,
		Id:         SENSOR_ID_MIDBOX_SMART_PORT_MODE,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Smart port mode",
		UniqueId:   uniqueId(midboxDevice.Id, SENSOR_ID_MIDBOX_SMART_PORT_MODE),
	})

	sensors = append(sensors, powerSensor(midboxDevice, SENSOR_ID_MIDBOX_GRID_L1_POWER, "Grid L1 power"))
	sensors = append(sensors, powerSensor(midboxDevice, SENSOR_ID_MIDBOX_GRID_L2_POWER, "Grid L2 power"))
	sensors = append(sensors, powerSensor(midboxDevice, SENSOR_ID_MIDBOX_LOAD_L1_POWER, "Load L1 power"))
	sensors = append(sensors, powerSensor(midboxDevice, SENSOR_ID_MIDBOX_LOAD_L2_POWER, "Load L2 power"))
	sensors = append(sensors, powerSensor(midboxDevice, SENSOR_ID_MIDBOX_UPS_L1_POWER, "UPS L1 power"))
	sensors = append(sensors, powerSensor(midboxDevice, SENSOR_ID_MIDBOX_UPS_L2_POWER, "UPS L2 power"))
	sensors = append(sensors, disabled(powerSensor(midboxDevice, SENSOR_ID_MIDBOX_GEN_L1_POWER, "Generator L1 power")))
	sensors = append(sensors, disabled(powerSensor(midboxDevice, SENSOR_ID_MIDBOX_GEN_L2_POWER, "Generator L2 power")))
	sensors = append(sensors, powerSensor(midboxDevice, SENSOR_ID_MIDBOX_SMART_LOAD1_POWER, "Smart load 1 power"))
	sensors = append(sensors, powerSensor(midboxDevice, SENSOR_ID_MIDBOX_SMART_LOAD2_POWER, "Smart load 2 power"))

	for id, name := range map[string]string{
		SENSOR_ID_MIDBOX_GRID_L1_VOLTAGE: "Grid L1 voltage",
		SENSOR_ID_MIDBOX_GRID_L2_VOLTAGE: "Grid L2 voltage",
	} {
		sensors = append(sensors, GenericSensor{
			Device:            midboxDevice,
			Id:                id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              name,
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_VOLTAGE,
			UnitOfMeasurement: "V",
			EnabledByDefault:  optionalBool(false),
			UniqueId:          uniqueId(midboxDevice.Id, id),
		})
	}

	sensors = append(sensors, GenericSensor{
		Device:            midboxDevice,
		Id:                SENSOR_ID_MIDBOX_GRID_FREQUENCY,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Grid frequency",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_FREQUENCY,
		UnitOfMeasurement: "Hz",
		Icon:              "mdi:sine-wave",
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(midboxDevice.Id, SENSOR_ID_MIDBOX_GRID_FREQUENCY),
	})

	return sensors
}

// InverterDiagnosticSensors expose the data-integrity verdicts next to the
// telemetry they judge.
func InverterDiagnosticSensors(inverterDevice Device) []GenericSensor {

	var sensors []GenericSensor

	for id, name := range map[string]string{
		SENSOR_ID_RUNTIME_INTEGRITY: "Runtime data integrity",
		SENSOR_ID_ENERGY_INTEGRITY:  "Energy data integrity",
		SENSOR_ID_BATTERY_INTEGRITY: "Battery data integrity",
	} {
		sensors = append(sensors, GenericSensor{
			Device:         inverterDevice,
			Id:             id,
			SensorType:     SENSOR_TYPE_SENSOR,
			Name:           name,
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			Icon:           "mdi:check-decagram",
			UniqueId:       uniqueId(inverterDevice.Id, id),
		})
	}

	return sensors
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Bridge connection state
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	// Active telemetry channel (local / cloud)
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_ACTIVE_CHANNEL,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Active channel",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		Icon:           "mdi:lan-connect",
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_ACTIVE_CHANNEL),
	})

	return sensors
}

func ParamControlSwitches(inverterDevice Device) []GenericSwitch {

	var switches []GenericSwitch

	// AC charge
	switches = append(switches, GenericSwitch{
		Device:   inverterDevice,
		Id:       SWITCH_ID_AC_CHARGE,
		Name:     "AC charge",
		UniqueId: uniqueId(inverterDevice.Id, SWITCH_ID_AC_CHARGE),
		Icon:     "mdi:battery-charging",
	})
	// Charge priority
	switches = append(switches, GenericSwitch{
		Device:   inverterDevice,
		Id:       SWITCH_ID_CHARGE_PRIORITY,
		Name:     "Charge priority",
		UniqueId: uniqueId(inverterDevice.Id, SWITCH_ID_CHARGE_PRIORITY),
		Icon:     "mdi:battery-arrow-up",
	})

	return switches
}

func ParamControlInputNumbers(inverterDevice Device) []GenericInputNumber {

	var inputNumbers []GenericInputNumber

	// AC charge power
	inputNumbers = append(inputNumbers, GenericInputNumber{
		Device:       inverterDevice,
		Id:           INPUT_NUMBER_ID_AC_CHARGE_POWER_PCT,
		Name:         "AC charge power",
		UniqueId:     uniqueId(inverterDevice.Id, INPUT_NUMBER_ID_AC_CHARGE_POWER_PCT),
		Icon:         "mdi:battery-charging-high",
		Max:          100,
		Min:          0,
		Step:         1,
		Mode:         INPUT_NUMBER_MODE_SLIDER,
		InitialValue: 100,
	})

	// AC charge SoC limit
	inputNumbers = append(inputNumbers, GenericInputNumber{
		Device:       inverterDevice,
		Id:           INPUT_NUMBER_ID_AC_CHARGE_SOC_LIMIT,
		Name:         "AC charge SoC limit",
		UniqueId:     uniqueId(inverterDevice.Id, INPUT_NUMBER_ID_AC_CHARGE_SOC_LIMIT),
		Icon:         "mdi:ticket-percent",
		Max:          100,
		Min:          0,
		Step:         5,
		Mode:         INPUT_NUMBER_MODE_BOX,
		InitialValue: 100,
	})

	return inputNumbers
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
