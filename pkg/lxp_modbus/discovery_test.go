package lxp_modbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putString(img RegisterImage, start uint16, count uint16, s string) {
	b := []byte(s)
	for len(b) < int(count)*2 {
		b = append(b, 0x00)
	}
	for i := uint16(0); i < count; i++ {
		img[start+i] = uint16(b[i*2])<<8 | uint16(b[i*2+1])
	}
}

func TestClassifyDeviceType(t *testing.T) {
	family, model := ClassifyDeviceType(9)
	assert.Equal(t, FamilyHybrid18K, family)
	assert.Equal(t, "18KPV", model)

	family, model = ClassifyDeviceType(12)
	assert.Equal(t, FamilyMidbox, family)
	assert.Equal(t, "GRIDBOSS", model)

	family, model = ClassifyDeviceType(0)
	assert.Equal(t, FamilyUnknown, family)
	assert.Equal(t, "", model)

	family, model = ClassifyDeviceType(99)
	assert.Equal(t, FamilyUnknown, family)
	assert.Equal(t, "type_99", model)
}

func TestDiscoverDevice(t *testing.T) {
	require := require.New(t)

	bus := NewTestRegisterBus()
	bus.Holding[regDeviceTypeCode] = 9
	putString(bus.Holding, regSerialStart, regSerialCount, "CD98765432")
	putString(bus.Holding, regFirmwareStart, regFirmwareCount, "FAAB1212")
	bus.Holding[regParallelNumber] = 1
	bus.Holding[regParallelNumber+1] = 2
	bus.Holding[regRatedPowerWatt] = 18000

	info := DiscoverDevice(context.Background(), bus)
	require.NotNil(info)
	assert.Equal(t, FamilyHybrid18K, info.Family)
	assert.Equal(t, "18KPV", info.Model)
	assert.Equal(t, "CD98765432", info.Serial)
	assert.Equal(t, "FAAB1212", info.FirmwareVersion)
	require.NotNil(info.ParallelNumber)
	assert.Equal(t, 1, *info.ParallelNumber)
	require.NotNil(info.ParallelPhase)
	assert.Equal(t, 2, *info.ParallelPhase)
	assert.Equal(t, 18000.0, info.RatedPowerWatt)
}

func TestDiscoverDeviceStandalone(t *testing.T) {
	bus := NewTestRegisterBus()
	bus.Holding[regDeviceTypeCode] = 2
	putString(bus.Holding, regSerialStart, regSerialCount, "AB12345678")
	// zero parallel number means no cluster membership
	bus.Holding[regParallelNumber] = 0
	bus.Holding[regParallelNumber+1] = 0

	info := DiscoverDevice(context.Background(), bus)
	assert.Equal(t, FamilyHybridStandard, info.Family)
	assert.Nil(t, info.ParallelNumber)
	assert.Nil(t, info.ParallelPhase)
}

func TestDiscoverDeviceDegrades(t *testing.T) {
	// a failing bus yields a degraded info, never an error
	bus := NewTestRegisterBus()
	bus.Fail = errors.New("link down")

	info := DiscoverDevice(context.Background(), bus)
	assert.Equal(t, FamilyUnknown, info.Family)
	assert.Equal(t, "", info.Serial)
	assert.Nil(t, info.ParallelNumber)

	info = DiscoverDevice(context.Background(), nil)
	assert.Equal(t, FamilyUnknown, info.Family)
}

func TestDiscoverAllKeepsInputOrder(t *testing.T) {
	first := NewTestRegisterBus()
	first.Holding[regDeviceTypeCode] = 12
	putString(first.Holding, regSerialStart, regSerialCount, "MID0000001")

	second := NewTestRegisterBus()
	second.Fail = errors.New("link down")

	third := NewTestRegisterBus()
	third.Holding[regDeviceTypeCode] = 9
	putString(third.Holding, regSerialStart, regSerialCount, "INV0000001")

	infos := DiscoverAll(context.Background(), first, second, third)
	require.Len(t, infos, 3)
	assert.Equal(t, "MID0000001", infos[0].Serial)
	assert.Equal(t, FamilyUnknown, infos[1].Family, "failing bus degrades in place")
	assert.Equal(t, "INV0000001", infos[2].Serial)
}

func parallelDevice(serial string, family DeviceFamily, number, phase int) *DeviceInfo {
	return &DeviceInfo{
		Serial:         serial,
		Family:         family,
		ParallelNumber: &number,
		ParallelPhase:  &phase,
	}
}

func TestGroupParallel(t *testing.T) {
	require := require.New(t)

	devices := []*DeviceInfo{
		// cluster 2, discovered before cluster 1
		parallelDevice("INV3", FamilyHybridStandard, 2, 1),
		// cluster 1: two inverters on different phases plus the midbox
		parallelDevice("INV1", FamilyHybrid18K, 1, 1),
		parallelDevice("INV2", FamilyHybrid18K, 1, 2),
		parallelDevice("MID1", FamilyMidbox, 1, 0),
		// standalone
		{Serial: "INV4", Family: FamilyOffgridXP},
	}

	groups := GroupParallel(devices)
	require.Len(groups, 3)

	// clusters sorted by number, phase differences never split a cluster
	require.NotNil(groups[0].Number)
	assert.Equal(t, 1, *groups[0].Number)
	require.NotNil(groups[0].Controller)
	assert.Equal(t, "MID1", groups[0].Controller.Serial)
	require.Len(groups[0].Members, 2)
	assert.Equal(t, "INV1", groups[0].Members[0].Serial)
	assert.Equal(t, "INV2", groups[0].Members[1].Serial)

	require.NotNil(groups[1].Number)
	assert.Equal(t, 2, *groups[1].Number)
	assert.Nil(t, groups[1].Controller)
	require.Len(groups[1].Members, 1)

	// singletons come last without a number
	assert.Nil(t, groups[2].Number)
	require.Len(groups[2].Members, 1)
	assert.Equal(t, "INV4", groups[2].Members[0].Serial)
}
