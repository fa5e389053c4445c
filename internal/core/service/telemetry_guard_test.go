package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/berfenger/luxnews2mqtt/pkg/lxp_modbus"
)

func testGuard(t *testing.T) *DefaultTelemetryGuard {
	t.Helper()
	return NewTelemetryGuard(zap.Must(zap.NewDevelopment()))
}

func cleanRuntime() *lxp_modbus.InverterRuntimeData {
	return &lxp_modbus.InverterRuntimeData{
		Serial:         "CE18500001",
		RawSOC:         76,
		RawSOH:         100,
		GridFrequency:  60.01,
		BatteryVoltage: 53.2,
		PVPowerWatt:    6100,
		RatedPowerWatt: 18000,
	}
}

func cleanEnergy() *lxp_modbus.InverterEnergyData {
	return &lxp_modbus.InverterEnergyData{
		Serial:                  "CE18500001",
		PVEnergyTodayKWh:        24.6,
		ChargeEnergyTodayKWh:    9.1,
		DischargeEnergyTodayKWh: 6.8,
		GridExportTodayKWh:      8.2,
		GridImportTodayKWh:      0.4,
		PVEnergyTotalKWh:        2770.3,
		ChargeEnergyTotalKWh:    1150.2,
		DischargeEnergyTotalKWh: 1048.7,
		GridExportTotalKWh:      890.5,
		GridImportTotalKWh:      120.9,
		EPSEnergyTotalKWh:       3.2,
		RatedPowerWatt:          18000,
	}
}

func TestRuntimePassesCleanSnapshot(t *testing.T) {
	guard := testGuard(t)

	check := guard.CheckRuntime(cleanRuntime())
	assert.True(t, check.OK)
	assert.Empty(t, check.Reasons)
}

func TestRuntimeCatchesCorruptSnapshot(t *testing.T) {
	guard := testGuard(t)

	d := cleanRuntime()
	d.RawSOC = 255
	d.GridFrequency = 655.35

	check := guard.CheckRuntime(d)
	assert.False(t, check.OK)
	assert.Len(t, check.Reasons, 2)
}

func TestNilSnapshotsPass(t *testing.T) {
	guard := testGuard(t)

	assert.True(t, guard.CheckRuntime(nil).OK)
	assert.True(t, guard.CheckBattery(nil).OK)
	assert.True(t, guard.CheckMidbox(nil).OK)
	assert.True(t, guard.CheckEnergy(nil, time.Now()).Accepted)
}

func TestBatteryModuleCorruptionTaintsBank(t *testing.T) {
	guard := testGuard(t)

	bank := &lxp_modbus.BatteryBankData{
		Serial:      "CE18500001",
		ModuleCount: 2,
		Voltage:     53.1,
		RawSOC:      76,
		RawSOH:      100,
		Modules: []lxp_modbus.BatteryModuleData{
			{Index: 0, Voltage: 53.1, RawSOC: 76, RawSOH: 100},
			{Index: 1, Voltage: 53.0, RawSOC: 180, RawSOH: 99},
		},
	}

	check := guard.CheckBattery(bank)
	assert.False(t, check.OK)
}

func TestEnergyRejectsWholesaleOnLifetimeSpike(t *testing.T) {
	require := require.New(t)
	guard := testGuard(t)
	now := time.Now()

	// first snapshot sets the baselines
	require.True(guard.CheckEnergy(cleanEnergy(), now).Accepted)

	// one field jumping beyond the plausible step taints the whole snapshot
	spiked := cleanEnergy()
	spiked.PVEnergyTotalKWh += 300

	check := guard.CheckEnergy(spiked, now.Add(time.Minute))
	require.False(check.Accepted)
	require.Equal([]string{lxp_modbus.FieldPVEnergyTotal}, check.RejectedFields())

	// a clean follow-up snapshot is accepted again
	next := cleanEnergy()
	next.PVEnergyTotalKWh += 0.4
	require.True(guard.CheckEnergy(next, now.Add(2*time.Minute)).Accepted)
}

func TestEnergySelfHealsAfterPersistentReset(t *testing.T) {
	require := require.New(t)
	guard := testGuard(t)
	now := time.Now()

	require.True(guard.CheckEnergy(cleanEnergy(), now).Accepted)

	// the meter reset to a lower but plausible lifetime value; the decrease
	// keeps getting rejected until the streak proves it is genuine
	reset := cleanEnergy()
	reset.PVEnergyTotalKWh = 500

	for i := 1; i < lxp_modbus.SelfHealThreshold; i++ {
		now = now.Add(time.Minute)
		check := guard.CheckEnergy(reset, now)
		require.False(check.Accepted, "decrease %d must still be rejected", i)
	}

	now = now.Add(time.Minute)
	check := guard.CheckEnergy(reset, now)
	require.True(check.Accepted)
	require.Equal([]string{lxp_modbus.FieldPVEnergyTotal}, check.SelfHealedFields())
}
