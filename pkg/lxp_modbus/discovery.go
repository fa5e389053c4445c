package lxp_modbus

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type deviceType struct {
	family DeviceFamily
	model  string
}

// closed classification table; codes outside it map to FamilyUnknown
var deviceTypeCatalog = map[uint16]deviceType{
	2:  {FamilyHybridStandard, "LXP-12K"},
	3:  {FamilyHybridStandard, "LXP-15K"},
	5:  {FamilyOffgridXP, "XP-6000"},
	6:  {FamilyOffgridXP, "XP-8000"},
	9:  {FamilyHybrid18K, "18KPV"},
	10: {FamilyHybrid18K, "FLEXBOSS21"},
	12: {FamilyMidbox, "GRIDBOSS"},
}

// ClassifyDeviceType maps a device type code to its register-layout family
// and marketing model name.
func ClassifyDeviceType(code uint16) (DeviceFamily, string) {
	if t, ok := deviceTypeCatalog[code]; ok {
		return t.family, t.model
	}
	if code == 0 {
		return FamilyUnknown, ""
	}
	return FamilyUnknown, fmt.Sprintf("type_%d", code)
}

// DiscoverDevice probes the identity registers of whatever is on the bus.
// It never fails: each register degrades independently, so the worst case is
// FamilyUnknown with no serial and no parallel key.
func DiscoverDevice(ctx context.Context, bus RegisterBus) *DeviceInfo {
	info := &DeviceInfo{Family: FamilyUnknown}
	if bus == nil {
		return info
	}

	if regs, err := bus.ReadHoldingRegisters(ctx, regDeviceTypeCode, 1); err == nil && len(regs) == 1 {
		info.TypeCode = regs[0]
		info.Family, info.Model = ClassifyDeviceType(regs[0])
	}

	if regs, err := bus.ReadHoldingRegisters(ctx, regSerialStart, regSerialCount); err == nil {
		info.Serial = registersToString(regs)
	}

	if regs, err := bus.ReadHoldingRegisters(ctx, regFirmwareStart, regFirmwareCount); err == nil {
		info.FirmwareVersion = registersToString(regs)
	}

	if regs, err := bus.ReadHoldingRegisters(ctx, regParallelNumber, 2); err == nil && len(regs) == 2 {
		// zero means standalone; only clustered units carry a parallel key
		if regs[0] > 0 {
			number := int(regs[0])
			phase := int(regs[1])
			info.ParallelNumber = &number
			info.ParallelPhase = &phase
		}
	}

	if regs, err := bus.ReadHoldingRegisters(ctx, regRatedPowerWatt, 1); err == nil && len(regs) == 1 {
		info.RatedPowerWatt = float64(regs[0])
	}

	return info
}

// DiscoverAll probes several buses concurrently. Results keep the input
// order; a failing bus yields a degraded DeviceInfo, never an error.
func DiscoverAll(ctx context.Context, buses ...RegisterBus) []*DeviceInfo {
	infos := make([]*DeviceInfo, len(buses))
	var wg sync.WaitGroup
	for i, bus := range buses {
		wg.Add(1)
		go func(i int, bus RegisterBus) {
			defer wg.Done()
			infos[i] = DiscoverDevice(ctx, bus)
		}(i, bus)
	}
	wg.Wait()
	return infos
}

// ParallelGroup is one cluster of devices sharing a parallel number. The
// midbox managing the cluster is attached as Controller and never counted as
// a member.
type ParallelGroup struct {
	// nil for standalone devices
	Number     *int
	Controller *DeviceInfo
	Members    []DeviceInfo
}

// GroupParallel splits discovered devices into parallel clusters. Devices
// merge on parallel number alone; phase only describes a member's position
// inside its cluster. Devices without a parallel key become singleton groups.
// Clusters come out sorted by number, singletons after in input order.
func GroupParallel(devices []*DeviceInfo) []ParallelGroup {
	byNumber := make(map[int]*ParallelGroup)
	var numbers []int
	var singles []ParallelGroup

	for _, d := range devices {
		if d == nil {
			continue
		}
		if d.ParallelNumber == nil {
			g := ParallelGroup{}
			if d.IsMidbox() {
				g.Controller = d
			} else {
				g.Members = []DeviceInfo{*d}
			}
			singles = append(singles, g)
			continue
		}
		n := *d.ParallelNumber
		g, ok := byNumber[n]
		if !ok {
			number := n
			g = &ParallelGroup{Number: &number}
			byNumber[n] = g
			numbers = append(numbers, n)
		}
		if d.IsMidbox() {
			if g.Controller == nil {
				g.Controller = d
			}
			continue
		}
		g.Members = append(g.Members, *d)
	}

	sort.Ints(numbers)
	out := make([]ParallelGroup, 0, len(numbers)+len(singles))
	for _, n := range numbers {
		out = append(out, *byNumber[n])
	}
	out = append(out, singles...)
	return out
}
