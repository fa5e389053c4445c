package lxp_modbus

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// localTransport is the family-aware reader shared by the plain Modbus bus
// and the dongle bus. It discovers the device once per connection, picks the
// register tables for its family and turns block reads into normalized
// snapshots.
type localTransport struct {
	bus    RegisterBus
	cfg    TransportConfig
	caps   TransportCapabilities
	logger *zap.Logger

	mu        sync.Mutex
	connected bool
	info      *DeviceInfo
}

func newLocalTransport(bus RegisterBus, cfg TransportConfig, caps TransportCapabilities, logger *zap.Logger) *localTransport {
	return &localTransport{
		bus:    bus,
		cfg:    cfg,
		caps:   caps,
		logger: logger,
	}
}

func (t *localTransport) Connect(ctx context.Context) error {
	if err := t.bus.Open(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	t.connected = true
	t.info = nil
	t.mu.Unlock()

	// survey the device up front so every later read knows its family
	info := t.Discover(ctx)
	t.logger.Info("device connected",
		zap.String("transport", t.cfg.String()),
		zap.String("device", info.String()))
	return nil
}

func (t *localTransport) Disconnect() error {
	t.mu.Lock()
	t.connected = false
	t.info = nil
	t.mu.Unlock()
	return t.bus.Close()
}

func (t *localTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *localTransport) Capabilities() TransportCapabilities {
	return t.caps
}

func (t *localTransport) DeviceSerial() string {
	if t.cfg.InverterSerial != "" {
		return t.cfg.InverterSerial
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.info != nil {
		return t.info.Serial
	}
	return ""
}

// Discover probes the identity registers. Probe errors never surface: each
// register degrades independently to its zero default, so the worst case is
// FamilyUnknown with no parallel key.
func (t *localTransport) Discover(ctx context.Context) *DeviceInfo {
	t.mu.Lock()
	if t.info != nil {
		info := *t.info
		t.mu.Unlock()
		return &info
	}
	t.mu.Unlock()

	info := t.probe(ctx)

	t.mu.Lock()
	t.info = info
	t.mu.Unlock()
	out := *info
	return &out
}

func (t *localTransport) probe(ctx context.Context) *DeviceInfo {
	info := DiscoverDevice(ctx, t.bus)
	if info.Serial == "" {
		info.Serial = t.cfg.InverterSerial
	}
	if info.Family == FamilyUnknown {
		t.logger.Warn("device family unrecognized, falling back to standard register layout",
			zap.Uint16("type_code", info.TypeCode))
	}
	return info
}

func (t *localTransport) ReadRuntime(ctx context.Context) (*InverterRuntimeData, error) {
	info := t.Discover(ctx)
	if info.IsMidbox() {
		return nil, nil
	}
	m := RuntimeMapForFamily(readableFamily(info.Family))
	img, err := readImage(ctx, t.bus, m.Blocks)
	if err != nil {
		return nil, err
	}
	return decodeRuntime(img, m, info.Serial, info.RatedPowerWatt), nil
}

func (t *localTransport) ReadEnergy(ctx context.Context) (*InverterEnergyData, error) {
	info := t.Discover(ctx)
	if info.IsMidbox() {
		return nil, nil
	}
	m := EnergyMapForFamily(readableFamily(info.Family))
	img, err := readImage(ctx, t.bus, m.Blocks)
	if err != nil {
		return nil, err
	}
	return decodeEnergy(img, m, info.Serial, info.RatedPowerWatt), nil
}

func (t *localTransport) ReadBattery(ctx context.Context) (*BatteryBankData, error) {
	info := t.Discover(ctx)
	if info.IsMidbox() {
		return nil, nil
	}
	img, err := readImage(ctx, t.bus, []RegisterBlock{{Start: batteryBankStart, Count: batteryBankCount}})
	if err != nil {
		return nil, err
	}
	bank := decodeBatteryBank(img, info.Serial)

	// the BMS count is untrusted: read at most the register space's worth of
	// modules, but keep the raw count on the snapshot for the validators
	n := bank.ModuleCount
	if n > batteryMaxModules {
		n = batteryMaxModules
	}
	if n > 0 {
		blocks := make([]RegisterBlock, 0, n)
		for i := 0; i < n; i++ {
			base := batteryModuleBase + uint16(i)*batteryModuleStride
			blocks = append(blocks, RegisterBlock{Start: base, Count: batteryModuleStride})
		}
		mimg, err := readImage(ctx, t.bus, blocks)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			bank.Modules = append(bank.Modules, decodeBatteryModule(mimg, i))
		}
	}
	return bank, nil
}

func (t *localTransport) ReadMidbox(ctx context.Context) (*MidboxRuntimeData, error) {
	info := t.Discover(ctx)
	if !info.IsMidbox() {
		return nil, nil
	}
	m := MidboxMap()
	img, err := readImage(ctx, t.bus, m.Blocks)
	if err != nil {
		return nil, err
	}
	return decodeMidbox(img, m, info.Serial), nil
}

func (t *localTransport) ReadParameters(ctx context.Context, start uint16, count uint16) ([]uint16, error) {
	return t.bus.ReadHoldingRegisters(ctx, start, count)
}

func (t *localTransport) WriteParameters(ctx context.Context, values map[uint16]uint16) error {
	return writeSparse(ctx, t.bus, values)
}

func (t *localTransport) ReadNamedParameters(ctx context.Context, names ...string) (map[string]float64, error) {
	return readNamed(ctx, t.bus, names)
}

func (t *localTransport) WriteNamedParameters(ctx context.Context, values map[string]any) error {
	return writeNamed(ctx, t.bus, values)
}

// holdingIO is the slice of RegisterBus the parameter helpers need; the cloud
// transport satisfies it through its API adapter.
type holdingIO interface {
	ReadHoldingRegisters(ctx context.Context, start uint16, quantity uint16) ([]uint16, error)
	WriteHoldingRegister(ctx context.Context, address uint16, value uint16) error
	WriteHoldingRegisters(ctx context.Context, address uint16, values []uint16) error
}

// writeSparse writes a sparse register set, coalescing contiguous addresses
// into multi-register writes.
func writeSparse(ctx context.Context, bus holdingIO, values map[uint16]uint16) error {
	if len(values) == 0 {
		return nil
	}
	addrs := make([]uint16, 0, len(values))
	for a := range values {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	for i := 0; i < len(addrs); {
		j := i + 1
		for j < len(addrs) && addrs[j] == addrs[j-1]+1 {
			j++
		}
		if j-i == 1 {
			if err := bus.WriteHoldingRegister(ctx, addrs[i], values[addrs[i]]); err != nil {
				return err
			}
		} else {
			run := make([]uint16, 0, j-i)
			for _, a := range addrs[i:j] {
				run = append(run, values[a])
			}
			if err := bus.WriteHoldingRegisters(ctx, addrs[i], run); err != nil {
				return err
			}
		}
		i = j
	}
	return nil
}

func readNamed(ctx context.Context, bus holdingIO, names []string) (map[string]float64, error) {
	out := make(map[string]float64, len(names))
	// flags share control words; cache them across the batch
	words := make(map[uint16]uint16)
	for _, name := range names {
		param, flag, err := LookupNamedParam(name)
		if err != nil {
			return nil, &ReadError{Op: "read_named", Err: err}
		}
		switch {
		case param != nil:
			regs, err := bus.ReadHoldingRegisters(ctx, param.Register, uint16(param.Words))
			if err != nil {
				return nil, err
			}
			raw := int64(regs[0])
			if param.Words == 2 {
				raw = int64(JoinRegisters(regs[0], regs[1]))
			}
			out[name] = ApplyScale(raw, param.Scale)
		case flag != nil:
			word, ok := words[flag.Register]
			if !ok {
				regs, err := bus.ReadHoldingRegisters(ctx, flag.Register, 1)
				if err != nil {
					return nil, err
				}
				word = regs[0]
				words[flag.Register] = word
			}
			if word&(1<<flag.Bit) != 0 {
				out[name] = 1
			} else {
				out[name] = 0
			}
		}
	}
	return out, nil
}

// writeNamed writes symbolic parameters. Flags sharing one control word are
// folded into a single read-modify-write so sibling bits survive.
func writeNamed(ctx context.Context, bus holdingIO, values map[string]any) error {
	names := make([]string, 0, len(values))
	for n := range values {
		names = append(names, n)
	}
	sort.Strings(names)

	type flagEdit struct {
		set   uint16
		clear uint16
	}
	flagEdits := make(map[uint16]*flagEdit)

	for _, name := range names {
		param, flag, err := LookupNamedParam(name)
		if err != nil {
			return &WriteError{Op: "write_named", Err: err}
		}
		value, err := numericValue(values[name])
		if err != nil {
			return &WriteError{Op: "write_named", Err: fmt.Errorf("parameter %q: %w", name, err)}
		}
		switch {
		case param != nil:
			raw := int64(math.Round(value * float64(param.Scale)))
			if raw < 0 {
				return &WriteError{Op: "write_named", Err: fmt.Errorf("parameter %q: negative value %v", name, value)}
			}
			if param.Words == 2 {
				lo, hi := SplitRegisters(uint32(raw))
				if err := bus.WriteHoldingRegisters(ctx, param.Register, []uint16{lo, hi}); err != nil {
					return err
				}
			} else {
				if raw > math.MaxUint16 {
					return &WriteError{Op: "write_named", Err: fmt.Errorf("parameter %q: value %v out of range", name, value)}
				}
				if err := bus.WriteHoldingRegister(ctx, param.Register, uint16(raw)); err != nil {
					return err
				}
			}
		case flag != nil:
			e := flagEdits[flag.Register]
			if e == nil {
				e = &flagEdit{}
				flagEdits[flag.Register] = e
			}
			if value != 0 {
				e.set |= 1 << flag.Bit
			} else {
				e.clear |= 1 << flag.Bit
			}
		}
	}

	regs := make([]uint16, 0, len(flagEdits))
	for r := range flagEdits {
		regs = append(regs, r)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i] < regs[j] })
	for _, r := range regs {
		e := flagEdits[r]
		current, err := bus.ReadHoldingRegisters(ctx, r, 1)
		if err != nil {
			return asWriteError(err)
		}
		next := (current[0] | e.set) &^ e.clear
		if next == current[0] {
			continue
		}
		if err := bus.WriteHoldingRegister(ctx, r, next); err != nil {
			return err
		}
	}
	return nil
}

// readableFamily maps a family to the one whose register tables decode it.
// Unknown devices get the standard layout as a best effort; the validators
// catch the fallout if the guess is wrong.
func readableFamily(family DeviceFamily) DeviceFamily {
	switch family {
	case FamilyUnknown:
		return FamilyHybridStandard
	default:
		return family
	}
}

func decodeRuntime(img RegisterImage, m *RuntimeRegisterMap, serial string, ratedPowerWatt float64) *InverterRuntimeData {
	status := uint16(m.Status.DecodeOr(img, 0))
	d := &InverterRuntimeData{
		Serial:         serial,
		Status:         status,
		StatusStr:      InverterStatusToString(status),
		RatedPowerWatt: ratedPowerWatt,
	}

	d.PV1PowerWatt = m.PV1Power.DecodeOr(img, 0)
	d.PV2PowerWatt = m.PV2Power.DecodeOr(img, 0)
	d.PV3PowerWatt = m.PV3Power.DecodeOr(img, 0)
	d.PVPowerWatt = d.PV1PowerWatt + d.PV2PowerWatt + d.PV3PowerWatt
	d.PV1Voltage = m.PV1Voltage.DecodeOr(img, 0)
	d.PV2Voltage = m.PV2Voltage.DecodeOr(img, 0)
	d.PV3Voltage = m.PV3Voltage.DecodeOr(img, 0)

	d.BatteryVoltage = m.BatteryVoltage.DecodeOr(img, 0)
	d.ChargePowerWatt = m.ChargePower.DecodeOr(img, 0)
	d.DischargePowerWatt = m.DischargePower.DecodeOr(img, 0)

	d.RawSOC = m.SOC.DecodeOr(img, 0)
	d.RawSOH = m.SOH.DecodeOr(img, 0)
	d.SOC = ClampPercent(d.RawSOC)
	d.SOH = ClampPercent(d.RawSOH)

	d.GridVoltage = m.GridVoltage.DecodeOr(img, 0)
	d.GridFrequency = m.GridFrequency.DecodeOr(img, 0)
	d.PowerToGridWatt = m.PowerToGrid.DecodeOr(img, 0)
	d.PowerFromGridWatt = m.PowerFromGrid.DecodeOr(img, 0)
	d.GridPowerWatt = d.PowerFromGridWatt - d.PowerToGridWatt

	d.EPSVoltage = m.EPSVoltage.DecodeOr(img, 0)
	d.EPSFrequency = m.EPSFrequency.DecodeOr(img, 0)
	d.EPSPowerWatt = m.EPSPower.DecodeOr(img, 0)

	d.InverterPowerWatt = m.InverterPower.DecodeOr(img, 0)
	d.RectifierPowerWatt = m.RectifierPower.DecodeOr(img, 0)
	d.LoadPowerWatt = m.LoadPower.DecodeOr(img, 0)

	d.InternalTempC = m.InternalTemp.DecodeOr(img, 0)
	d.RadiatorTempC = m.RadiatorTemp.DecodeOr(img, 0)

	return d
}

func decodeEnergy(img RegisterImage, m *EnergyRegisterMap, serial string, ratedPowerWatt float64) *InverterEnergyData {
	return &InverterEnergyData{
		Serial: serial,

		PVEnergyTodayKWh:        m.PVEnergyToday.DecodeOr(img, 0),
		ChargeEnergyTodayKWh:    m.ChargeEnergyToday.DecodeOr(img, 0),
		DischargeEnergyTodayKWh: m.DischargeEnergyToday.DecodeOr(img, 0),
		GridExportTodayKWh:      m.GridExportToday.DecodeOr(img, 0),
		GridImportTodayKWh:      m.GridImportToday.DecodeOr(img, 0),
		EPSEnergyTodayKWh:       m.EPSEnergyToday.DecodeOr(img, 0),

		PVEnergyTotalKWh:        m.PVEnergyTotal.DecodeOr(img, 0),
		ChargeEnergyTotalKWh:    m.ChargeEnergyTotal.DecodeOr(img, 0),
		DischargeEnergyTotalKWh: m.DischargeEnergyTotal.DecodeOr(img, 0),
		GridExportTotalKWh:      m.GridExportTotal.DecodeOr(img, 0),
		GridImportTotalKWh:      m.GridImportTotal.DecodeOr(img, 0),
		EPSEnergyTotalKWh:       m.EPSEnergyTotal.DecodeOr(img, 0),

		RatedPowerWatt: ratedPowerWatt,
	}
}

func decodeBatteryBank(img RegisterImage, serial string) *BatteryBankData {
	bank := &BatteryBankData{
		Serial:      serial,
		ModuleCount: int(batteryBankModuleCount.DecodeOr(img, 0)),
		Voltage:     batteryBankVoltage.DecodeOr(img, 0),
		CurrentAmp:  batteryBankCurrent.DecodeOr(img, 0),
	}
	bank.RawSOC = batteryBankSOC.DecodeOr(img, 0)
	bank.RawSOH = batteryBankSOH.DecodeOr(img, 0)
	bank.SOC = ClampPercent(bank.RawSOC)
	bank.SOH = ClampPercent(bank.RawSOH)
	return bank
}

func decodeBatteryModule(img RegisterImage, index int) BatteryModuleData {
	_, f := batteryModuleFields(index)
	m := BatteryModuleData{
		Index:      index,
		Voltage:    f.Voltage.DecodeOr(img, 0),
		CurrentAmp: f.Current.DecodeOr(img, 0),

		MaxCellVoltage: f.MaxCellVolt.DecodeOr(img, 0),
		MinCellVoltage: f.MinCellVolt.DecodeOr(img, 0),
		MaxCellTempC:   f.MaxCellTemp.DecodeOr(img, 0),
		MinCellTempC:   f.MinCellTemp.DecodeOr(img, 0),

		CycleCount: uint16(f.CycleCount.DecodeOr(img, 0)),
	}
	m.RawSOC = f.SOC.DecodeOr(img, 0)
	m.RawSOH = f.SOH.DecodeOr(img, 0)
	m.SOC = ClampPercent(m.RawSOC)
	m.SOH = ClampPercent(m.RawSOH)
	return m
}

func decodeMidbox(img RegisterImage, m *MidboxRegisterMap, serial string) *MidboxRuntimeData {
	mode := uint16(m.SmartPortMode.DecodeOr(img, 0))
	return &MidboxRuntimeData{
		Serial:           serial,
		SmartPortMode:    mode,
		SmartPortModeStr: SmartPortModeToString(mode),

		GridL1Voltage: m.GridL1Voltage.DecodeOr(img, 0),
		GridL2Voltage: m.GridL2Voltage.DecodeOr(img, 0),
		UPSL1Voltage:  m.UPSL1Voltage.DecodeOr(img, 0),
		UPSL2Voltage:  m.UPSL2Voltage.DecodeOr(img, 0),
		LoadL1Voltage: m.LoadL1Voltage.DecodeOr(img, 0),
		LoadL2Voltage: m.LoadL2Voltage.DecodeOr(img, 0),
		GenL1Voltage:  m.GenL1Voltage.DecodeOr(img, 0),
		GenL2Voltage:  m.GenL2Voltage.DecodeOr(img, 0),

		GridFrequency: m.GridFrequency.DecodeOr(img, 0),

		GridL1PowerWatt:     m.GridL1Power.DecodeOr(img, 0),
		GridL2PowerWatt:     m.GridL2Power.DecodeOr(img, 0),
		LoadL1PowerWatt:     m.LoadL1Power.DecodeOr(img, 0),
		LoadL2PowerWatt:     m.LoadL2Power.DecodeOr(img, 0),
		GenL1PowerWatt:      m.GenL1Power.DecodeOr(img, 0),
		GenL2PowerWatt:      m.GenL2Power.DecodeOr(img, 0),
		UPSL1PowerWatt:      m.UPSL1Power.DecodeOr(img, 0),
		UPSL2PowerWatt:      m.UPSL2Power.DecodeOr(img, 0),
		SmartLoad1PowerWatt: m.SmartLoad1Power.DecodeOr(img, 0),
		SmartLoad2PowerWatt: m.SmartLoad2Power.DecodeOr(img, 0),
	}
}

// registersToString decodes ASCII packed two chars per register, high byte
// first, trimmed at the first NUL.
func registersToString(regs []uint16) string {
	b := make([]byte, 0, len(regs)*2)
	for _, r := range regs {
		b = append(b, byte(r>>8), byte(r))
	}
	if i := strings.IndexByte(string(b), 0x00); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}

func numericValue(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}
