package lxp_modbus

import (
	"fmt"
	"math"
	"time"
)

// plausibility limits for the corruption canaries
const (
	MinPlausibleFrequencyHz = 30.0
	MaxPlausibleFrequencyHz = 90.0
	MaxPlausibleBatteryVolt = 100.0
	MinPlausibleCellVolt    = 1.0
	MaxPlausibleCellVolt    = 5.0
	MaxPlausibleModules     = 20
	MaxPlausibleCurrentAmp  = 500.0
	// per-leg voltages: below 5 V is CT leakage, 100-250 V normal, above
	// 300 V impossible for a 16-bit register; [5,50) is the dead band only
	// corrupted reads produce
	LegVoltageDeadBandLow  = 5.0
	LegVoltageDeadBandHigh = 50.0
	MaxPlausibleLegVolt    = 300.0
	// powers beyond twice the rated power are overflow sentinels
	PowerOverRatedFactor = 2.0
)

// counter validation tuning
const (
	MaxLifetimeStepKWh      = 50.0
	SelfHealThreshold       = 5
	MinPlausibleLifetimeKWh = 100.0
	DailyEnergyMargin       = 1.2
	dailyElapsedCap         = 24 * time.Hour
)

// CorruptionReason names one failed canary, human-readable.
type CorruptionReason string

func reasonf(format string, args ...any) CorruptionReason {
	return CorruptionReason(fmt.Sprintf(format, args...))
}

func percentCorrupt(field string, raw float64) []CorruptionReason {
	if raw > 100 {
		return []CorruptionReason{reasonf("%s raw value %.0f exceeds 100%%", field, raw)}
	}
	return nil
}

func frequencyCorrupt(field string, hz float64) []CorruptionReason {
	// zero is legitimate off-grid operation
	if hz != 0 && (hz < MinPlausibleFrequencyHz || hz > MaxPlausibleFrequencyHz) {
		return []CorruptionReason{reasonf("%s %.2f Hz outside [%.0f,%.0f]", field, hz, MinPlausibleFrequencyHz, MaxPlausibleFrequencyHz)}
	}
	return nil
}

// Corrupt runs the runtime canaries and returns every failed one.
func (d *InverterRuntimeData) Corrupt() []CorruptionReason {
	var reasons []CorruptionReason
	reasons = append(reasons, percentCorrupt("battery_soc", d.RawSOC)...)
	reasons = append(reasons, percentCorrupt("battery_soh", d.RawSOH)...)
	reasons = append(reasons, frequencyCorrupt("grid_frequency", d.GridFrequency)...)
	reasons = append(reasons, frequencyCorrupt("eps_frequency", d.EPSFrequency)...)
	if d.BatteryVoltage > MaxPlausibleBatteryVolt {
		reasons = append(reasons, reasonf("battery_voltage %.1f V exceeds %.0f V", d.BatteryVoltage, MaxPlausibleBatteryVolt))
	}
	// powers beyond 2x rated are 0xFFFF-style overflow artifacts; without a
	// known rating there is no baseline, so the check is skipped entirely
	if d.RatedPowerWatt > 0 {
		limit := d.RatedPowerWatt * PowerOverRatedFactor
		for field, watt := range map[string]float64{
			"pv1_power":       d.PV1PowerWatt,
			"pv2_power":       d.PV2PowerWatt,
			"pv3_power":       d.PV3PowerWatt,
			"pv_power":        d.PVPowerWatt,
			"charge_power":    d.ChargePowerWatt,
			"discharge_power": d.DischargePowerWatt,
			"power_to_grid":   d.PowerToGridWatt,
			"power_from_grid": d.PowerFromGridWatt,
			"grid_power":      d.GridPowerWatt,
			"eps_power":       d.EPSPowerWatt,
			"inverter_power":  d.InverterPowerWatt,
			"rectifier_power": d.RectifierPowerWatt,
			"load_power":      d.LoadPowerWatt,
		} {
			if math.Abs(watt) > limit {
				reasons = append(reasons, reasonf("%s %.0f W exceeds %.1fx rated power", field, watt, PowerOverRatedFactor))
			}
		}
	}
	return reasons
}

func (d *InverterRuntimeData) IsCorrupt() bool {
	return len(d.Corrupt()) > 0
}

// Corrupt runs the per-module canaries.
func (b BatteryModuleData) Corrupt() []CorruptionReason {
	var reasons []CorruptionReason
	reasons = append(reasons, percentCorrupt("soc", b.RawSOC)...)
	reasons = append(reasons, percentCorrupt("soh", b.RawSOH)...)
	if b.Voltage > MaxPlausibleBatteryVolt {
		reasons = append(reasons, reasonf("voltage %.1f V exceeds %.0f V", b.Voltage, MaxPlausibleBatteryVolt))
	}
	if math.Abs(b.CurrentAmp) > MaxPlausibleCurrentAmp {
		reasons = append(reasons, reasonf("current %.1f A exceeds %.0f A", b.CurrentAmp, MaxPlausibleCurrentAmp))
	}
	for field, v := range map[string]float64{
		"max_cell_voltage": b.MaxCellVoltage,
		"min_cell_voltage": b.MinCellVoltage,
	} {
		if v != 0 && (v < MinPlausibleCellVolt || v > MaxPlausibleCellVolt) {
			reasons = append(reasons, reasonf("%s %.3f V outside [%.1f,%.1f]", field, v, MinPlausibleCellVolt, MaxPlausibleCellVolt))
		}
	}
	if b.MinCellVoltage != 0 && b.MaxCellVoltage != 0 && b.MinCellVoltage > b.MaxCellVoltage {
		reasons = append(reasons, reasonf("min cell %.3f V above max cell %.3f V", b.MinCellVoltage, b.MaxCellVoltage))
	}
	return reasons
}

func (b BatteryModuleData) IsCorrupt() bool {
	return len(b.Corrupt()) > 0
}

// Corrupt runs the bank canaries and cascades from the modules: one corrupt
// module taints the whole bank. Ghost slots are excluded from the cascade.
func (b *BatteryBankData) Corrupt() []CorruptionReason {
	var reasons []CorruptionReason
	reasons = append(reasons, percentCorrupt("bank_soc", b.RawSOC)...)
	reasons = append(reasons, percentCorrupt("bank_soh", b.RawSOH)...)
	if b.Voltage > MaxPlausibleBatteryVolt {
		reasons = append(reasons, reasonf("bank_voltage %.1f V exceeds %.0f V", b.Voltage, MaxPlausibleBatteryVolt))
	}
	if math.Abs(b.CurrentAmp) > MaxPlausibleCurrentAmp {
		reasons = append(reasons, reasonf("bank_current %.1f A exceeds %.0f A", b.CurrentAmp, MaxPlausibleCurrentAmp))
	}
	if b.ModuleCount > MaxPlausibleModules {
		reasons = append(reasons, reasonf("module count %d exceeds %d", b.ModuleCount, MaxPlausibleModules))
	}
	for _, m := range b.Modules {
		if m.Ghost() {
			continue
		}
		for _, r := range m.Corrupt() {
			reasons = append(reasons, reasonf("module %d: %s", m.Index, r))
		}
	}
	return reasons
}

func (b *BatteryBankData) IsCorrupt() bool {
	return len(b.Corrupt()) > 0
}

// Corrupt runs the midbox canaries.
func (d *MidboxRuntimeData) Corrupt() []CorruptionReason {
	var reasons []CorruptionReason
	if d.SmartPortMode != SmartPortModeDisabled && d.SmartPortMode != SmartPortModeSmartLoad && d.SmartPortMode != SmartPortModeACCouple {
		reasons = append(reasons, reasonf("smart_port_mode %d not a known mode", d.SmartPortMode))
	}
	reasons = append(reasons, frequencyCorrupt("grid_frequency", d.GridFrequency)...)
	for field, v := range map[string]float64{
		"grid_l1_voltage": d.GridL1Voltage,
		"grid_l2_voltage": d.GridL2Voltage,
		"ups_l1_voltage":  d.UPSL1Voltage,
		"ups_l2_voltage":  d.UPSL2Voltage,
		"load_l1_voltage": d.LoadL1Voltage,
		"load_l2_voltage": d.LoadL2Voltage,
		"gen_l1_voltage":  d.GenL1Voltage,
		"gen_l2_voltage":  d.GenL2Voltage,
	} {
		if v >= LegVoltageDeadBandLow && v < LegVoltageDeadBandHigh {
			reasons = append(reasons, reasonf("%s %.1f V inside dead band [%.0f,%.0f)", field, v, LegVoltageDeadBandLow, LegVoltageDeadBandHigh))
		}
		if v > MaxPlausibleLegVolt {
			reasons = append(reasons, reasonf("%s %.1f V exceeds %.0f V", field, v, MaxPlausibleLegVolt))
		}
	}
	return reasons
}

func (d *MidboxRuntimeData) IsCorrupt() bool {
	return len(d.Corrupt()) > 0
}

// Verdict is the outcome of one counter validation.
type Verdict int

const (
	VerdictValid Verdict = iota
	VerdictRejected
	VerdictSelfHealed
)

func (v Verdict) String() string {
	switch v {
	case VerdictValid:
		return "valid"
	case VerdictRejected:
		return "rejected"
	case VerdictSelfHealed:
		return "self_healed"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// ValidationState is the per-device, per-field memory the counter validators
// work on. The reject count tracks consecutive rejected decreases; it resets
// on any acceptance and on a rejected upward spike, which is not a decrease
// event.
type ValidationState struct {
	PreviousValue float64
	RejectCount   int
	HasPrevious   bool
	LastUpdate    time.Time
}

func (s ValidationState) accept(value float64, now time.Time) ValidationState {
	return ValidationState{
		PreviousValue: value,
		HasPrevious:   true,
		LastUpdate:    now,
	}
}

// ValidateLifetimeCounter checks one lifetime energy counter against its last
// accepted value. Pure: the caller commits the returned state, or drops it
// when rejecting a whole snapshot.
func ValidateLifetimeCounter(state ValidationState, value float64, now time.Time) (Verdict, ValidationState) {
	if !state.HasPrevious {
		return VerdictValid, state.accept(value, now)
	}

	switch {
	case value >= state.PreviousValue:
		if value-state.PreviousValue > MaxLifetimeStepKWh {
			// an upward spike is not a decrease: it breaks the streak
			// instead of feeding it
			state.RejectCount = 0
			return VerdictRejected, state
		}
		return VerdictValid, state.accept(value, now)

	default: // decrease
		if state.RejectCount+1 >= SelfHealThreshold && value >= MinPlausibleLifetimeKWh {
			// persistent plausible decreases mean the meter genuinely
			// reset; adopt the new baseline
			return VerdictSelfHealed, state.accept(value, now)
		}
		state.RejectCount++
		return VerdictRejected, state
	}
}

// ValidateDailyEnergyBounds checks one daily counter against what the device
// could physically have produced. Decreases always pass (midnight rollover).
// Without a known power rating there is no physical bound, so everything
// passes.
func ValidateDailyEnergyBounds(state ValidationState, value float64, ratedPowerKW float64, now time.Time) (Verdict, ValidationState) {
	if ratedPowerKW <= 0 {
		return VerdictValid, state.accept(value, now)
	}

	if !state.HasPrevious {
		if value > ratedPowerKW*24*DailyEnergyMargin {
			state.RejectCount++
			return VerdictRejected, state
		}
		return VerdictValid, state.accept(value, now)
	}

	if value < state.PreviousValue {
		return VerdictValid, state.accept(value, now)
	}

	elapsed := now.Sub(state.LastUpdate)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > dailyElapsedCap {
		elapsed = dailyElapsedCap
	}
	if value-state.PreviousValue > ratedPowerKW*elapsed.Hours()*DailyEnergyMargin {
		state.RejectCount++
		return VerdictRejected, state
	}
	return VerdictValid, state.accept(value, now)
}

// ValidatorStore owns the validation state of one device. Callers keep one
// store per device session; there is no process-wide registry, so concurrent
// devices and tests cannot interfere. Single-writer discipline: the store is
// not internally locked.
type ValidatorStore struct {
	states map[string]ValidationState
}

func NewValidatorStore() *ValidatorStore {
	return &ValidatorStore{states: make(map[string]ValidationState)}
}

// State returns the tracked state for a field, zero when never seen.
func (s *ValidatorStore) State(field string) ValidationState {
	return s.states[field]
}

func (s *ValidatorStore) setState(field string, st ValidationState) {
	s.states[field] = st
}

// energy snapshot field keys
const (
	FieldPVEnergyToday        = "pv_energy_today"
	FieldChargeEnergyToday    = "charge_energy_today"
	FieldDischargeEnergyToday = "discharge_energy_today"
	FieldGridExportToday      = "grid_export_today"
	FieldGridImportToday      = "grid_import_today"
	FieldEPSEnergyToday       = "eps_energy_today"

	FieldPVEnergyTotal        = "pv_energy_total"
	FieldChargeEnergyTotal    = "charge_energy_total"
	FieldDischargeEnergyTotal = "discharge_energy_total"
	FieldGridExportTotal      = "grid_export_total"
	FieldGridImportTotal      = "grid_import_total"
	FieldEPSEnergyTotal       = "eps_energy_total"
)

// EnergyValidation is the wholesale verdict over one energy snapshot.
type EnergyValidation struct {
	Accepted bool
	// per-field verdicts, including the fields that were fine
	Verdicts map[string]Verdict
}

// ValidateEnergySnapshot runs every counter validator over one snapshot and
// accepts or rejects it wholesale: a desynced transaction corrupts all fields
// together, so one implausible field taints the rest. On rejection only the
// rejecting fields commit their state (the streaks must keep growing for
// self-healing to ever fire); accepted fields keep their previous baseline.
func ValidateEnergySnapshot(store *ValidatorStore, snap *InverterEnergyData, now time.Time) EnergyValidation {
	ratedKW := snap.RatedPowerWatt / 1000

	type outcome struct {
		field   string
		verdict Verdict
		next    ValidationState
	}
	outcomes := make([]outcome, 0, 12)

	lifetime := map[string]float64{
		FieldPVEnergyTotal:        snap.PVEnergyTotalKWh,
		FieldChargeEnergyTotal:    snap.ChargeEnergyTotalKWh,
		FieldDischargeEnergyTotal: snap.DischargeEnergyTotalKWh,
		FieldGridExportTotal:      snap.GridExportTotalKWh,
		FieldGridImportTotal:      snap.GridImportTotalKWh,
		FieldEPSEnergyTotal:       snap.EPSEnergyTotalKWh,
	}
	daily := map[string]float64{
		FieldPVEnergyToday:        snap.PVEnergyTodayKWh,
		FieldChargeEnergyToday:    snap.ChargeEnergyTodayKWh,
		FieldDischargeEnergyToday: snap.DischargeEnergyTodayKWh,
		FieldGridExportToday:      snap.GridExportTodayKWh,
		FieldGridImportToday:      snap.GridImportTodayKWh,
		FieldEPSEnergyToday:       snap.EPSEnergyTodayKWh,
	}

	for field, value := range lifetime {
		verdict, next := ValidateLifetimeCounter(store.State(field), value, now)
		outcomes = append(outcomes, outcome{field, verdict, next})
	}
	for field, value := range daily {
		verdict, next := ValidateDailyEnergyBounds(store.State(field), value, ratedKW, now)
		outcomes = append(outcomes, outcome{field, verdict, next})
	}

	result := EnergyValidation{Accepted: true, Verdicts: make(map[string]Verdict, len(outcomes))}
	for _, o := range outcomes {
		result.Verdicts[o.field] = o.verdict
		if o.verdict == VerdictRejected {
			result.Accepted = false
		}
	}

	for _, o := range outcomes {
		if result.Accepted || o.verdict == VerdictRejected {
			store.setState(o.field, o.next)
		}
	}
	return result
}
