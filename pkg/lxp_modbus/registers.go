package lxp_modbus

import (
	"fmt"
	"sort"
)

// RegisterField locates one logical quantity in the register space.
// 32-bit fields occupy two consecutive registers, low word first.
type RegisterField struct {
	Address uint16
	// 1 or 2 registers (16 or 32 bit)
	Words  uint8
	Scale  ScaleFactor
	Signed bool
}

func field(address uint16, words uint8, scale ScaleFactor, signed bool) *RegisterField {
	return &RegisterField{Address: address, Words: words, Scale: scale, Signed: signed}
}

func u16(address uint16, scale ScaleFactor) *RegisterField {
	return field(address, 1, scale, false)
}

func s16(address uint16, scale ScaleFactor) *RegisterField {
	return field(address, 1, scale, true)
}

func u32(address uint16, scale ScaleFactor) *RegisterField {
	return field(address, 2, scale, false)
}

func s32(address uint16, scale ScaleFactor) *RegisterField {
	return field(address, 2, scale, true)
}

// RegisterImage is a sparse snapshot of register space, the common currency
// between block reads and field decoding.
type RegisterImage map[uint16]uint16

// Decode extracts and scales the field value from an image. The second return
// is false when the field is nil (family does not expose the quantity) or the
// image does not cover it.
func (f *RegisterField) Decode(img RegisterImage) (float64, bool) {
	if f == nil {
		return 0, false
	}
	lo, ok := img[f.Address]
	if !ok {
		return 0, false
	}
	raw := uint32(lo)
	if f.Words == 2 {
		hi, ok := img[f.Address+1]
		if !ok {
			return 0, false
		}
		raw = JoinRegisters(lo, hi)
	}
	if f.Signed {
		return ApplyScale(signedAtWidth(raw, f.Words), f.Scale), true
	}
	return ApplyScale(int64(raw), f.Scale), true
}

// DecodeOr decodes the field or returns the documented default when the
// family does not expose it.
func (f *RegisterField) DecodeOr(img RegisterImage, def float64) float64 {
	if v, ok := f.Decode(img); ok {
		return v
	}
	return def
}

// RegisterBlock is one contiguous read window.
type RegisterBlock struct {
	Start uint16
	Count uint16
}

// RuntimeRegisterMap is the per-family table of runtime quantities. A nil
// field means the family does not expose that quantity; readers fall back to
// a documented default instead of erroring.
type RuntimeRegisterMap struct {
	Blocks []RegisterBlock

	Status *RegisterField

	PV1Voltage *RegisterField
	PV2Voltage *RegisterField
	PV3Voltage *RegisterField
	PV1Power   *RegisterField
	PV2Power   *RegisterField
	PV3Power   *RegisterField

	BatteryVoltage *RegisterField
	SOC            *RegisterField
	SOH            *RegisterField
	ChargePower    *RegisterField
	DischargePower *RegisterField

	GridVoltage    *RegisterField
	GridFrequency  *RegisterField
	InverterPower  *RegisterField
	RectifierPower *RegisterField
	PowerToGrid    *RegisterField
	PowerFromGrid  *RegisterField
	LoadPower      *RegisterField

	EPSVoltage   *RegisterField
	EPSFrequency *RegisterField
	EPSPower     *RegisterField

	InternalTemp *RegisterField
	RadiatorTemp *RegisterField
}

// EnergyRegisterMap is the per-family table of energy counters.
type EnergyRegisterMap struct {
	Blocks []RegisterBlock

	PVEnergyToday        *RegisterField
	ChargeEnergyToday    *RegisterField
	DischargeEnergyToday *RegisterField
	GridExportToday      *RegisterField
	GridImportToday      *RegisterField
	EPSEnergyToday       *RegisterField

	PVEnergyTotal        *RegisterField
	ChargeEnergyTotal    *RegisterField
	DischargeEnergyTotal *RegisterField
	GridExportTotal      *RegisterField
	GridImportTotal      *RegisterField
	EPSEnergyTotal       *RegisterField
}

// MidboxRegisterMap is the GridBOSS/MID runtime table. There is a single
// midbox layout, so no family dispatch here.
type MidboxRegisterMap struct {
	Blocks []RegisterBlock

	SmartPortMode *RegisterField

	GridL1Voltage *RegisterField
	GridL2Voltage *RegisterField
	UPSL1Voltage  *RegisterField
	UPSL2Voltage  *RegisterField
	LoadL1Voltage *RegisterField
	LoadL2Voltage *RegisterField
	GenL1Voltage  *RegisterField
	GenL2Voltage  *RegisterField

	GridFrequency *RegisterField

	GridL1Power     *RegisterField
	GridL2Power     *RegisterField
	LoadL1Power     *RegisterField
	LoadL2Power     *RegisterField
	GenL1Power      *RegisterField
	GenL2Power      *RegisterField
	UPSL1Power      *RegisterField
	UPSL2Power      *RegisterField
	SmartLoad1Power *RegisterField
	SmartLoad2Power *RegisterField
}

// Standard hybrid layout (SNA/LXP 8-12K class): everything 16-bit, PV string
// powers at 7/8/9, grid voltage at 12. Only two PV strings.
var runtimeMapHybridStandard = RuntimeRegisterMap{
	Blocks: []RegisterBlock{{Start: 0, Count: 40}},

	Status: u16(0, ScaleNone),

	PV1Voltage: u16(1, ScaleDeci),
	PV2Voltage: u16(2, ScaleDeci),
	PV1Power:   u16(7, ScaleNone),
	PV2Power:   u16(8, ScaleNone),
	PV3Power:   u16(9, ScaleNone),

	BatteryVoltage: u16(4, ScaleDeci),
	SOC:            u16(5, ScaleNone),
	SOH:            u16(6, ScaleNone),
	ChargePower:    u16(10, ScaleNone),
	DischargePower: u16(11, ScaleNone),

	GridVoltage:    u16(12, ScaleDeci),
	GridFrequency:  u16(13, ScaleCenti),
	InverterPower:  u16(14, ScaleNone),
	RectifierPower: u16(15, ScaleNone),

	EPSVoltage:   u16(17, ScaleDeci),
	EPSFrequency: u16(18, ScaleCenti),
	EPSPower:     u16(19, ScaleNone),

	PowerToGrid:   u16(20, ScaleNone),
	PowerFromGrid: u16(21, ScaleNone),
	LoadPower:     u16(22, ScaleNone),

	InternalTemp: s16(23, ScaleNone),
	RadiatorTemp: s16(24, ScaleNone),
}

// 18K-class layout: PV string powers as 32-bit pairs at 6/8/10, grid voltage
// at 16, all power quantities 32-bit.
var runtimeMapHybrid18K = RuntimeRegisterMap{
	Blocks: []RegisterBlock{{Start: 0, Count: 40}},

	Status: u16(0, ScaleNone),

	PV1Voltage: u16(1, ScaleDeci),
	PV2Voltage: u16(2, ScaleDeci),
	PV3Voltage: u16(3, ScaleDeci),
	PV1Power:   u32(6, ScaleNone),
	PV2Power:   u32(8, ScaleNone),
	PV3Power:   u32(10, ScaleNone),

	BatteryVoltage: u16(4, ScaleDeci),
	SOC:            u16(5, ScaleNone),
	SOH:            u16(34, ScaleNone),
	ChargePower:    u32(12, ScaleNone),
	DischargePower: u32(14, ScaleNone),

	GridVoltage:    u16(16, ScaleDeci),
	GridFrequency:  u16(17, ScaleCenti),
	InverterPower:  u32(18, ScaleNone),
	RectifierPower: u32(20, ScaleNone),

	EPSVoltage:   u16(22, ScaleDeci),
	EPSFrequency: u16(23, ScaleCenti),
	EPSPower:     u32(24, ScaleNone),

	PowerToGrid:   u32(26, ScaleNone),
	PowerFromGrid: u32(28, ScaleNone),
	LoadPower:     u32(30, ScaleNone),

	InternalTemp: s16(32, ScaleNone),
	RadiatorTemp: s16(33, ScaleNone),
}

// Daily counters are 16-bit at 0.1 kWh; lifetime counters 32-bit at 0.1 kWh.
// The standard family has no EPS meter.
var energyMapHybridStandard = EnergyRegisterMap{
	Blocks: []RegisterBlock{{Start: 40, Count: 24}},

	PVEnergyToday:        u16(40, ScaleDeci),
	ChargeEnergyToday:    u16(41, ScaleDeci),
	DischargeEnergyToday: u16(42, ScaleDeci),
	GridExportToday:      u16(43, ScaleDeci),
	GridImportToday:      u16(44, ScaleDeci),

	PVEnergyTotal:        u32(46, ScaleDeci),
	ChargeEnergyTotal:    u32(48, ScaleDeci),
	DischargeEnergyTotal: u32(50, ScaleDeci),
	GridExportTotal:      u32(52, ScaleDeci),
	GridImportTotal:      u32(54, ScaleDeci),
}

var energyMapHybrid18K = EnergyRegisterMap{
	Blocks: []RegisterBlock{{Start: 40, Count: 32}},

	PVEnergyToday:        u16(40, ScaleDeci),
	ChargeEnergyToday:    u16(41, ScaleDeci),
	DischargeEnergyToday: u16(42, ScaleDeci),
	GridExportToday:      u16(43, ScaleDeci),
	GridImportToday:      u16(44, ScaleDeci),
	EPSEnergyToday:       u16(45, ScaleDeci),

	PVEnergyTotal:        u32(46, ScaleDeci),
	ChargeEnergyTotal:    u32(48, ScaleDeci),
	DischargeEnergyTotal: u32(50, ScaleDeci),
	GridExportTotal:      u32(52, ScaleDeci),
	GridImportTotal:      u32(54, ScaleDeci),
	EPSEnergyTotal:       u32(56, ScaleDeci),
}

var midboxRuntimeMap = MidboxRegisterMap{
	Blocks: []RegisterBlock{{Start: 0, Count: 40}},

	SmartPortMode: u16(0, ScaleNone),

	GridL1Voltage: u16(1, ScaleDeci),
	GridL2Voltage: u16(2, ScaleDeci),
	UPSL1Voltage:  u16(3, ScaleDeci),
	UPSL2Voltage:  u16(4, ScaleDeci),
	LoadL1Voltage: u16(5, ScaleDeci),
	LoadL2Voltage: u16(6, ScaleDeci),
	GenL1Voltage:  u16(7, ScaleDeci),
	GenL2Voltage:  u16(8, ScaleDeci),

	GridFrequency: u16(9, ScaleCenti),

	GridL1Power:     s32(10, ScaleNone),
	GridL2Power:     s32(12, ScaleNone),
	LoadL1Power:     u32(14, ScaleNone),
	LoadL2Power:     u32(16, ScaleNone),
	GenL1Power:      u32(18, ScaleNone),
	GenL2Power:      u32(20, ScaleNone),
	UPSL1Power:      u32(22, ScaleNone),
	UPSL2Power:      u32(24, ScaleNone),
	SmartLoad1Power: s32(26, ScaleNone),
	SmartLoad2Power: s32(28, ScaleNone),
}

// RuntimeMapForFamily returns the runtime register table for an inverter
// family, or nil when the family has none (midbox, unknown).
func RuntimeMapForFamily(family DeviceFamily) *RuntimeRegisterMap {
	switch family {
	case FamilyHybridStandard, FamilyOffgridXP:
		return &runtimeMapHybridStandard
	case FamilyHybrid18K:
		return &runtimeMapHybrid18K
	default:
		return nil
	}
}

func EnergyMapForFamily(family DeviceFamily) *EnergyRegisterMap {
	switch family {
	case FamilyHybridStandard, FamilyOffgridXP:
		return &energyMapHybridStandard
	case FamilyHybrid18K:
		return &energyMapHybrid18K
	default:
		return nil
	}
}

func MidboxMap() *MidboxRegisterMap {
	return &midboxRuntimeMap
}

// battery bank layout, shared by all inverter families (the values come from
// the BMS, not the inverter mainboard)
const (
	batteryBankStart uint16 = 80
	batteryBankCount uint16 = 10

	batteryModuleBase   uint16 = 90
	batteryModuleStride uint16 = 10
	// register space caps the module area; the plausibility limit lives in
	// the validators
	batteryMaxModules = 16
)

var (
	batteryBankModuleCount = u16(80, ScaleNone)
	batteryBankVoltage     = u16(81, ScaleCenti)
	batteryBankCurrent     = s16(82, ScaleDeci)
	batteryBankSOC         = u16(83, ScaleNone)
	batteryBankSOH         = u16(84, ScaleNone)
)

// per-module fields, relative to the module base address
func batteryModuleFields(index int) (base uint16, fields struct {
	Voltage     *RegisterField
	Current     *RegisterField
	SOC         *RegisterField
	SOH         *RegisterField
	MaxCellVolt *RegisterField
	MinCellVolt *RegisterField
	MaxCellTemp *RegisterField
	MinCellTemp *RegisterField
	CycleCount  *RegisterField
}) {
	base = batteryModuleBase + uint16(index)*batteryModuleStride
	fields.Voltage = u16(base+0, ScaleCenti)
	fields.Current = s16(base+1, ScaleDeci)
	fields.SOC = u16(base+2, ScaleNone)
	fields.SOH = u16(base+3, ScaleNone)
	fields.MaxCellVolt = u16(base+4, ScaleMilli)
	fields.MinCellVolt = u16(base+5, ScaleMilli)
	fields.MaxCellTemp = s16(base+6, ScaleDeci)
	fields.MinCellTemp = s16(base+7, ScaleDeci)
	fields.CycleCount = u16(base+8, ScaleNone)
	return base, fields
}

// discovery registers (holding space)
const (
	regDeviceTypeCode uint16 = 0
	regSerialStart    uint16 = 2
	regSerialCount    uint16 = 5
	regFirmwareStart  uint16 = 7
	regFirmwareCount  uint16 = 4
	regParallelNumber uint16 = 11
	regParallelPhase  uint16 = 12
	regRatedPowerWatt uint16 = 13
)

// named parameters (holding space)

type NamedParam struct {
	Name     string
	Register uint16
	// 1 or 2 registers
	Words uint8
	Scale ScaleFactor
}

type NamedFlag struct {
	Name     string
	Register uint16
	Bit      uint8
}

// function-control word
const regFunctionControl uint16 = 21

var namedParams = map[string]NamedParam{
	"ac_charge_power_pct":        {Name: "ac_charge_power_pct", Register: 64, Words: 1, Scale: ScaleNone},
	"ac_charge_soc_limit":        {Name: "ac_charge_soc_limit", Register: 67, Words: 1, Scale: ScaleNone},
	"charge_priority_power_pct":  {Name: "charge_priority_power_pct", Register: 74, Words: 1, Scale: ScaleNone},
	"charge_priority_soc_limit":  {Name: "charge_priority_soc_limit", Register: 77, Words: 1, Scale: ScaleNone},
	"forced_discharge_soc_limit": {Name: "forced_discharge_soc_limit", Register: 83, Words: 1, Scale: ScaleNone},
	"max_grid_export_watt":       {Name: "max_grid_export_watt", Register: 85, Words: 2, Scale: ScaleNone},
	"discharge_cutoff_soc":       {Name: "discharge_cutoff_soc", Register: 105, Words: 1, Scale: ScaleNone},
}

var namedFlags = map[string]NamedFlag{
	"eps_enable":              {Name: "eps_enable", Register: regFunctionControl, Bit: 0},
	"ac_charge_enable":        {Name: "ac_charge_enable", Register: regFunctionControl, Bit: 7},
	"forced_discharge_enable": {Name: "forced_discharge_enable", Register: regFunctionControl, Bit: 10},
	"charge_priority_enable":  {Name: "charge_priority_enable", Register: regFunctionControl, Bit: 11},
	"feed_in_grid_enable":     {Name: "feed_in_grid_enable", Register: regFunctionControl, Bit: 15},
}

// LookupNamedParam resolves a symbolic parameter name. Exactly one of the
// returns is non-nil on success.
func LookupNamedParam(name string) (*NamedParam, *NamedFlag, error) {
	if p, ok := namedParams[name]; ok {
		return &p, nil, nil
	}
	if f, ok := namedFlags[name]; ok {
		return nil, &f, nil
	}
	return nil, nil, fmt.Errorf("unknown parameter %q", name)
}

// NamedParameterNames lists every known symbolic parameter, sorted.
func NamedParameterNames() []string {
	names := make([]string, 0, len(namedParams)+len(namedFlags))
	for n := range namedParams {
		names = append(names, n)
	}
	for n := range namedFlags {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
