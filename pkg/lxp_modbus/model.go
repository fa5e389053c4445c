package lxp_modbus

import (
	"fmt"
)

// device families. A family selects the register layout, not a single model:
// several device type codes map to the same family.
type DeviceFamily uint8

const (
	FamilyUnknown DeviceFamily = iota
	FamilyHybridStandard
	FamilyHybrid18K
	FamilyOffgridXP
	FamilyMidbox
)

const (
	FamilyUnknownStr        = "unknown"
	FamilyHybridStandardStr = "hybrid_standard"
	FamilyHybrid18KStr      = "hybrid_18k"
	FamilyOffgridXPStr      = "offgrid_xp"
	FamilyMidboxStr         = "midbox"
)

func (f DeviceFamily) String() string {
	switch f {
	case FamilyHybridStandard:
		return FamilyHybridStandardStr
	case FamilyHybrid18K:
		return FamilyHybrid18KStr
	case FamilyOffgridXP:
		return FamilyOffgridXPStr
	case FamilyMidbox:
		return FamilyMidboxStr
	default:
		return FamilyUnknownStr
	}
}

// inverter operating states (status register)
const (
	InverterStatusStandby      = 0
	InverterStatusFault        = 1
	InverterStatusProgram      = 2
	InverterStatusPVGrid       = 4
	InverterStatusPVCharge     = 8
	InverterStatusPVChargeGrid = 12
	InverterStatusACCharge     = 16
	InverterStatusChargeGrid   = 20
	InverterStatusBatteryEPS   = 32
	InverterStatusPVEPS        = 40
)

const (
	InverterStatusStandbyStr      = "standby"
	InverterStatusFaultStr        = "fault"
	InverterStatusProgramStr      = "programming"
	InverterStatusPVGridStr       = "pv_to_grid"
	InverterStatusPVChargeStr     = "pv_charging"
	InverterStatusPVChargeGridStr = "pv_charge_and_grid"
	InverterStatusACChargeStr     = "ac_charging"
	InverterStatusChargeGridStr   = "charge_and_grid"
	InverterStatusBatteryEPSStr   = "battery_eps"
	InverterStatusPVEPSStr        = "pv_eps"
	InverterStatusUnknownStr      = "unknown"
)

func InverterStatusToString(status uint16) string {
	switch status {
	case InverterStatusStandby:
		return InverterStatusStandbyStr
	case InverterStatusFault:
		return InverterStatusFaultStr
	case InverterStatusProgram:
		return InverterStatusProgramStr
	case InverterStatusPVGrid:
		return InverterStatusPVGridStr
	case InverterStatusPVCharge:
		return InverterStatusPVChargeStr
	case InverterStatusPVChargeGrid:
		return InverterStatusPVChargeGridStr
	case InverterStatusACCharge:
		return InverterStatusACChargeStr
	case InverterStatusChargeGrid:
		return InverterStatusChargeGridStr
	case InverterStatusBatteryEPS:
		return InverterStatusBatteryEPSStr
	case InverterStatusPVEPS:
		return InverterStatusPVEPSStr
	default:
		return fmt.Sprintf("%s(%d)", InverterStatusUnknownStr, status)
	}
}

// midbox smart port modes
const (
	SmartPortModeDisabled  = 0
	SmartPortModeSmartLoad = 1
	SmartPortModeACCouple  = 2
)

const (
	SmartPortModeDisabledStr  = "disabled"
	SmartPortModeSmartLoadStr = "smart_load"
	SmartPortModeACCoupleStr  = "ac_couple"
	SmartPortModeUnknownStr   = "unknown"
)

func SmartPortModeToString(mode uint16) string {
	switch mode {
	case SmartPortModeDisabled:
		return SmartPortModeDisabledStr
	case SmartPortModeSmartLoad:
		return SmartPortModeSmartLoadStr
	case SmartPortModeACCouple:
		return SmartPortModeACCoupleStr
	default:
		return fmt.Sprintf("%s(%d)", SmartPortModeUnknownStr, mode)
	}
}

// TransportCapabilities describes what a transport can do. Attached 1:1 to a
// transport instance and immutable after construction.
type TransportCapabilities struct {
	CanReadRuntime          bool
	CanReadEnergy           bool
	CanReadBattery          bool
	CanReadParameters       bool
	CanWriteParameters      bool
	CanDiscoverDevices      bool
	IsLocal                 bool
	RequiresAuth            bool
	SupportsConcurrentReads bool
}

// InverterRuntimeData is the normalized, already-scaled runtime snapshot every
// transport produces, whatever the underlying register layout. SOC/SOH carry
// the pre-clamp raw value next to the clamped public one: the raw value is the
// corruption signal.
type InverterRuntimeData struct {
	Serial    string
	Status    uint16
	StatusStr string

	PV1PowerWatt       float64
	PV2PowerWatt       float64
	PV3PowerWatt       float64
	PVPowerWatt        float64
	PV1Voltage         float64
	PV2Voltage         float64
	PV3Voltage         float64
	ChargePowerWatt    float64
	DischargePowerWatt float64
	BatteryVoltage     float64

	SOC    float64
	SOH    float64
	RawSOC float64
	RawSOH float64

	GridVoltage   float64
	GridFrequency float64
	// positive = importing from grid, negative = exporting
	GridPowerWatt     float64
	PowerToGridWatt   float64
	PowerFromGridWatt float64

	EPSVoltage   float64
	EPSFrequency float64
	EPSPowerWatt float64

	InverterPowerWatt  float64
	RectifierPowerWatt float64
	LoadPowerWatt      float64

	InternalTempC float64
	RadiatorTempC float64

	// from discovery, 0 when unknown
	RatedPowerWatt float64
}

// InverterEnergyData holds daily and lifetime energy counters in kWh.
// Fields the device family does not expose stay 0.
type InverterEnergyData struct {
	Serial string

	PVEnergyTodayKWh        float64
	ChargeEnergyTodayKWh    float64
	DischargeEnergyTodayKWh float64
	GridExportTodayKWh      float64
	GridImportTodayKWh      float64
	EPSEnergyTodayKWh       float64

	PVEnergyTotalKWh        float64
	ChargeEnergyTotalKWh    float64
	DischargeEnergyTotalKWh float64
	GridExportTotalKWh      float64
	GridImportTotalKWh      float64
	EPSEnergyTotalKWh       float64

	// from discovery, 0 when unknown. Carried so bounds validation can run
	// on the snapshot alone.
	RatedPowerWatt float64
}

type BatteryModuleData struct {
	Index int

	Voltage    float64
	CurrentAmp float64
	SOC        float64
	SOH        float64
	RawSOC     float64
	RawSOH     float64

	MaxCellVoltage float64
	MinCellVoltage float64
	MaxCellTempC   float64
	MinCellTempC   float64

	CycleCount uint16
}

// Ghost reports whether this module slot is physically absent (the BMS keeps
// reporting the slot with zeroed voltage and SOC). Ghost modules are excluded
// from corruption cascades.
func (b BatteryModuleData) Ghost() bool {
	return b.Voltage == 0 && b.RawSOC == 0
}

// BatteryBankData owns zero or more battery modules.
type BatteryBankData struct {
	Serial string

	// count as reported by the BMS register, before any plausibility check
	ModuleCount int

	Voltage    float64
	CurrentAmp float64
	SOC        float64
	SOH        float64
	RawSOC     float64
	RawSOH     float64

	Modules []BatteryModuleData
}

// MidboxRuntimeData is the runtime snapshot of a GridBOSS/MID unit: a
// cluster-wide controller managing shared grid/load/generator connections.
type MidboxRuntimeData struct {
	Serial string

	SmartPortMode    uint16
	SmartPortModeStr string

	GridL1Voltage float64
	GridL2Voltage float64
	UPSL1Voltage  float64
	UPSL2Voltage  float64
	LoadL1Voltage float64
	LoadL2Voltage float64
	GenL1Voltage  float64
	GenL2Voltage  float64

	GridFrequency float64

	GridL1PowerWatt     float64
	GridL2PowerWatt     float64
	LoadL1PowerWatt     float64
	LoadL2PowerWatt     float64
	GenL1PowerWatt      float64
	GenL2PowerWatt      float64
	UPSL1PowerWatt      float64
	UPSL2PowerWatt      float64
	SmartLoad1PowerWatt float64
	SmartLoad2PowerWatt float64
}

// DeviceInfo is produced once per discovery probe.
type DeviceInfo struct {
	Serial          string
	TypeCode        uint16
	Family          DeviceFamily
	Model           string
	FirmwareVersion string

	// nil when the device does not belong to a parallel cluster or the
	// registers could not be read
	ParallelNumber *int
	ParallelPhase  *int

	RatedPowerWatt float64
}

func (d DeviceInfo) IsMidbox() bool {
	return d.Family == FamilyMidbox
}

func (d DeviceInfo) IsInverter() bool {
	return d.Family != FamilyMidbox && d.Family != FamilyUnknown
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s %s (%s, fw %s)", d.Family, d.Serial, d.Model, d.FirmwareVersion)
}
