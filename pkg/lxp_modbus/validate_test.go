package lxp_modbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cleanRuntime() *InverterRuntimeData {
	return &InverterRuntimeData{
		Serial:         "SER1",
		PVPowerWatt:    4000,
		PV1PowerWatt:   4000,
		BatteryVoltage: 53.1,
		SOC:            80,
		SOH:            99,
		RawSOC:         80,
		RawSOH:         99,
		GridVoltage:    240.1,
		GridFrequency:  50.02,
		RatedPowerWatt: 6000,
	}
}

func TestRuntimeCanaries(t *testing.T) {
	assert.Empty(t, cleanRuntime().Corrupt())

	soc := cleanRuntime()
	soc.RawSOC = 255
	assert.NotEmpty(t, soc.Corrupt(), "soc above 100% is a corruption canary")

	freq := cleanRuntime()
	freq.GridFrequency = 655.35
	assert.NotEmpty(t, freq.Corrupt(), "grid frequency outside [30,90] Hz")

	offgrid := cleanRuntime()
	offgrid.GridFrequency = 0
	assert.Empty(t, offgrid.Corrupt(), "zero frequency is legitimate off-grid operation")

	power := cleanRuntime()
	power.ChargePowerWatt = 65535
	assert.NotEmpty(t, power.Corrupt(), "power beyond 2x rated is an overflow artifact")

	unrated := cleanRuntime()
	unrated.RatedPowerWatt = 0
	unrated.ChargePowerWatt = 65535
	assert.Empty(t, unrated.Corrupt(), "power check is skipped without a known rating")
}

func TestBatteryBankCanariesCascadeFromModules(t *testing.T) {
	bank := &BatteryBankData{
		Serial:      "SER1",
		ModuleCount: 2,
		Voltage:     53.2,
		RawSOC:      80,
		RawSOH:      100,
		Modules: []BatteryModuleData{
			{Index: 0, Voltage: 53.2, RawSOC: 80, RawSOH: 100, MaxCellVoltage: 3.35, MinCellVoltage: 3.31},
			{Index: 1, Voltage: 53.1, RawSOC: 81, RawSOH: 100, MaxCellVoltage: 3.34, MinCellVoltage: 3.32},
		},
	}
	assert.Empty(t, bank.Corrupt())

	// one corrupt module taints the whole bank
	bank.Modules[1].RawSOC = 300
	assert.True(t, bank.IsCorrupt())

	// a ghost slot is excluded from the cascade even with absurd values
	bank.Modules[1] = BatteryModuleData{Index: 1, Voltage: 0, RawSOC: 0, CurrentAmp: 0}
	assert.Empty(t, bank.Corrupt())

	count := *bank
	count.ModuleCount = 255
	assert.NotEmpty(t, count.Corrupt(), "implausible module count")
}

func TestBatteryModuleCellVoltageCanaries(t *testing.T) {
	module := BatteryModuleData{
		Voltage: 53.2, RawSOC: 80, RawSOH: 100,
		MaxCellVoltage: 3.35, MinCellVoltage: 3.31,
	}
	assert.Empty(t, module.Corrupt())

	module.MinCellVoltage = 3.4
	assert.NotEmpty(t, module.Corrupt(), "min cell above max cell")

	module.MinCellVoltage = 6.5535
	assert.NotEmpty(t, module.Corrupt(), "cell voltage outside [1,5] V")
}

func TestMidboxLegVoltageDeadBand(t *testing.T) {
	midbox := &MidboxRuntimeData{
		GridL1Voltage: 240.1,
		GridL2Voltage: 239.8,
		GridFrequency: 60.01,
	}
	assert.Empty(t, midbox.Corrupt())

	// below 5 V is CT leakage, fine; [5,50) only corrupted reads produce
	midbox.LoadL1Voltage = 2.4
	assert.Empty(t, midbox.Corrupt())
	midbox.LoadL1Voltage = 23.1
	assert.NotEmpty(t, midbox.Corrupt())

	midbox.LoadL1Voltage = 0
	midbox.GenL2Voltage = 655.35
	assert.NotEmpty(t, midbox.Corrupt(), "leg voltage above 300 V")

	mode := &MidboxRuntimeData{SmartPortMode: 77}
	assert.NotEmpty(t, mode.Corrupt(), "unknown smart port mode")
}

func TestValidateLifetimeCounter(t *testing.T) {
	now := time.Unix(1700000000, 0)

	// first sight is always accepted and becomes the baseline
	verdict, state := ValidateLifetimeCounter(ValidationState{}, 2770.3, now)
	assert.Equal(t, VerdictValid, verdict)
	assert.True(t, state.HasPrevious)

	// normal growth
	verdict, state = ValidateLifetimeCounter(state, 2771.1, now)
	assert.Equal(t, VerdictValid, verdict)

	// an upward spike beyond the max step is rejected without moving the
	// baseline
	verdict, spiked := ValidateLifetimeCounter(state, 9000, now)
	assert.Equal(t, VerdictRejected, verdict)
	assert.Equal(t, 2771.1, spiked.PreviousValue)
	assert.Equal(t, 0, spiked.RejectCount, "spike is not a decrease event")

	// decreases are rejected and feed the streak
	verdict, state = ValidateLifetimeCounter(state, 1500.0, now)
	assert.Equal(t, VerdictRejected, verdict)
	assert.Equal(t, 1, state.RejectCount)
}

func TestLifetimeCounterSelfHeals(t *testing.T) {
	now := time.Unix(1700000000, 0)

	_, state := ValidateLifetimeCounter(ValidationState{}, 2770.3, now)

	// a persistent plausible decrease means the meter genuinely reset; the
	// 5th consecutive occurrence adopts the new baseline
	var verdict Verdict
	for i := 0; i < SelfHealThreshold-1; i++ {
		verdict, state = ValidateLifetimeCounter(state, 1500.0, now)
		assert.Equal(t, VerdictRejected, verdict)
	}
	verdict, state = ValidateLifetimeCounter(state, 1500.0, now)
	assert.Equal(t, VerdictSelfHealed, verdict)
	assert.Equal(t, 1500.0, state.PreviousValue)
	assert.Equal(t, 0, state.RejectCount)
}

func TestLifetimeCounterNeverSelfHealsBelowFloor(t *testing.T) {
	now := time.Unix(1700000000, 0)

	_, state := ValidateLifetimeCounter(ValidationState{}, 2770.3, now)

	// decreases below the plausibility floor keep being rejected forever
	for i := 0; i < SelfHealThreshold*2; i++ {
		verdict, next := ValidateLifetimeCounter(state, 3.2, now)
		assert.Equal(t, VerdictRejected, verdict)
		state = next
	}
	assert.Equal(t, 2770.3, state.PreviousValue)
}

func TestValidateDailyEnergyBounds(t *testing.T) {
	now := time.Unix(1700000000, 0)

	// no rating, no physical bound
	verdict, _ := ValidateDailyEnergyBounds(ValidationState{}, 100000, 0, now)
	assert.Equal(t, VerdictValid, verdict)

	// a 6 kW device cannot have produced 200 kWh today
	verdict, _ = ValidateDailyEnergyBounds(ValidationState{}, 200, 6, now)
	assert.Equal(t, VerdictRejected, verdict)

	verdict, state := ValidateDailyEnergyBounds(ValidationState{}, 10.5, 6, now)
	require.Equal(t, VerdictValid, verdict)

	// plausible growth over one hour
	later := now.Add(time.Hour)
	verdict, state = ValidateDailyEnergyBounds(state, 15.0, 6, later)
	assert.Equal(t, VerdictValid, verdict)

	// 50 kWh in five minutes is impossible
	verdict, _ = ValidateDailyEnergyBounds(state, 65.0, 6, later.Add(5*time.Minute))
	assert.Equal(t, VerdictRejected, verdict)

	// decreases always pass: midnight rollover
	verdict, state = ValidateDailyEnergyBounds(state, 0.1, 6, later.Add(10*time.Hour))
	assert.Equal(t, VerdictValid, verdict)
	assert.Equal(t, 0.1, state.PreviousValue)
}

func energySnapshot() *InverterEnergyData {
	return &InverterEnergyData{
		Serial:                  "SER1",
		PVEnergyTodayKWh:        12.5,
		ChargeEnergyTodayKWh:    5.1,
		DischargeEnergyTodayKWh: 3.2,
		GridExportTodayKWh:      4.4,
		GridImportTodayKWh:      0.8,
		PVEnergyTotalKWh:        2770.3,
		ChargeEnergyTotalKWh:    980.2,
		DischargeEnergyTotalKWh: 910.7,
		GridExportTotalKWh:      1100.5,
		GridImportTotalKWh:      300.1,
		EPSEnergyTotalKWh:       12.0,
		RatedPowerWatt:          6000,
	}
}

func TestValidateEnergySnapshotAccepts(t *testing.T) {
	store := NewValidatorStore()
	now := time.Unix(1700000000, 0)

	result := ValidateEnergySnapshot(store, energySnapshot(), now)
	assert.True(t, result.Accepted)
	assert.Len(t, result.Verdicts, 12)

	// later snapshot with normal growth
	snap := energySnapshot()
	snap.PVEnergyTodayKWh = 14.2
	snap.PVEnergyTotalKWh = 2772.0
	result = ValidateEnergySnapshot(store, snap, now.Add(30*time.Minute))
	assert.True(t, result.Accepted)
}

func TestValidateEnergySnapshotRejectsWholesale(t *testing.T) {
	store := NewValidatorStore()
	now := time.Unix(1700000000, 0)

	require.True(t, ValidateEnergySnapshot(store, energySnapshot(), now).Accepted)

	// one implausible lifetime counter taints the whole snapshot
	snap := energySnapshot()
	snap.ChargeEnergyTotalKWh = 99999
	result := ValidateEnergySnapshot(store, snap, now.Add(time.Minute))
	assert.False(t, result.Accepted)
	assert.Equal(t, VerdictRejected, result.Verdicts[FieldChargeEnergyTotal])
	assert.Equal(t, VerdictValid, result.Verdicts[FieldPVEnergyTotal])

	// the accepted fields kept their previous baseline
	assert.Equal(t, 2770.3, store.State(FieldPVEnergyTotal).PreviousValue)
	assert.Equal(t, 980.2, store.State(FieldChargeEnergyTotal).PreviousValue)
}

func TestValidateEnergySnapshotSelfHealsThroughRejections(t *testing.T) {
	store := NewValidatorStore()
	now := time.Unix(1700000000, 0)

	require.True(t, ValidateEnergySnapshot(store, energySnapshot(), now).Accepted)

	// the meter reset: every counter dropped to a plausible lower value. The
	// reject streak must keep growing across rejected snapshots so
	// self-healing can eventually fire.
	reset := energySnapshot()
	reset.PVEnergyTotalKWh = 1200.0
	reset.ChargeEnergyTotalKWh = 400.0
	reset.DischargeEnergyTotalKWh = 380.0
	reset.GridExportTotalKWh = 500.0
	reset.GridImportTotalKWh = 120.0
	// EPS total dropped below the floor, it can never self-heal
	reset.EPSEnergyTotalKWh = 5.0

	for i := 0; i < SelfHealThreshold-1; i++ {
		now = now.Add(time.Minute)
		result := ValidateEnergySnapshot(store, reset, now)
		assert.False(t, result.Accepted)
	}

	now = now.Add(time.Minute)
	result := ValidateEnergySnapshot(store, reset, now)
	assert.Equal(t, VerdictSelfHealed, result.Verdicts[FieldPVEnergyTotal])
	assert.Equal(t, VerdictSelfHealed, result.Verdicts[FieldChargeEnergyTotal])
	assert.Equal(t, VerdictRejected, result.Verdicts[FieldEPSEnergyTotal])
	assert.False(t, result.Accepted, "the floor-bound field still rejects the snapshot")
}
