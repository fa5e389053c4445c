package lxp_modbus

import (
	"context"
)

// CreateTestRegisterTransport returns a canned transport for test
// deployments: realistic values, no sockets.
func CreateTestRegisterTransport() (RegisterTransport, error) {
	return TestRegisterTransport{}, nil
}

type TestRegisterTransport struct {
}

func (t TestRegisterTransport) Connect(ctx context.Context) error {
	return nil
}

func (t TestRegisterTransport) Disconnect() error {
	return nil
}

func (t TestRegisterTransport) Connected() bool {
	return true
}

func (t TestRegisterTransport) Capabilities() TransportCapabilities {
	return localCapabilities(true)
}

func (t TestRegisterTransport) DeviceSerial() string {
	return "CE18500001"
}

func (t TestRegisterTransport) Discover(ctx context.Context) *DeviceInfo {
	return &DeviceInfo{
		Serial:          "CE18500001",
		TypeCode:        9,
		Family:          FamilyHybrid18K,
		Model:           "18KPV",
		FirmwareVersion: "FAAB1818",
		RatedPowerWatt:  18000,
	}
}

func (t TestRegisterTransport) ReadRuntime(ctx context.Context) (*InverterRuntimeData, error) {
	return &InverterRuntimeData{
		Serial:    "CE18500001",
		Status:    InverterStatusPVCharge,
		StatusStr: InverterStatusToString(InverterStatusPVCharge),

		PV1PowerWatt: 3120,
		PV2PowerWatt: 2980,
		PV3PowerWatt: 0,
		PVPowerWatt:  6100,
		PV1Voltage:   348.2,
		PV2Voltage:   342.7,
		PV3Voltage:   0,

		ChargePowerWatt:    2450,
		DischargePowerWatt: 0,
		BatteryVoltage:     53.1,

		SOC:    76,
		SOH:    100,
		RawSOC: 76,
		RawSOH: 100,

		GridVoltage:       241.6,
		GridFrequency:     60.02,
		GridPowerWatt:     -1250,
		PowerToGridWatt:   1250,
		PowerFromGridWatt: 0,

		EPSVoltage:   0,
		EPSFrequency: 0,
		EPSPowerWatt: 0,

		InverterPowerWatt:  2400,
		RectifierPowerWatt: 0,
		LoadPowerWatt:      2400,

		InternalTempC: 41,
		RadiatorTempC: 38,

		RatedPowerWatt: 18000,
	}, nil
}

func (t TestRegisterTransport) ReadEnergy(ctx context.Context) (*InverterEnergyData, error) {
	return &InverterEnergyData{
		Serial: "CE18500001",

		PVEnergyTodayKWh:        24.6,
		ChargeEnergyTodayKWh:    9.1,
		DischargeEnergyTodayKWh: 6.8,
		GridExportTodayKWh:      8.2,
		GridImportTodayKWh:      0.4,
		EPSEnergyTodayKWh:       0,

		PVEnergyTotalKWh:        2770.3,
		ChargeEnergyTotalKWh:    1150.2,
		DischargeEnergyTotalKWh: 1048.7,
		GridExportTotalKWh:      890.5,
		GridImportTotalKWh:      120.9,
		EPSEnergyTotalKWh:       3.2,

		RatedPowerWatt: 18000,
	}, nil
}

func (t TestRegisterTransport) ReadBattery(ctx context.Context) (*BatteryBankData, error) {
	return &BatteryBankData{
		Serial:      "CE18500001",
		ModuleCount: 2,

		Voltage:    53.1,
		CurrentAmp: 46.2,
		SOC:        76,
		SOH:        100,
		RawSOC:     76,
		RawSOH:     100,

		Modules: []BatteryModuleData{
			{
				Index:          0,
				Voltage:        53.1,
				CurrentAmp:     23.4,
				SOC:            76,
				SOH:            100,
				RawSOC:         76,
				RawSOH:         100,
				MaxCellVoltage: 3.342,
				MinCellVoltage: 3.318,
				MaxCellTempC:   28.5,
				MinCellTempC:   26.1,
				CycleCount:     112,
			},
			{
				Index:          1,
				Voltage:        53.0,
				CurrentAmp:     22.8,
				SOC:            75,
				SOH:            99,
				RawSOC:         75,
				RawSOH:         99,
				MaxCellVoltage: 3.339,
				MinCellVoltage: 3.312,
				MaxCellTempC:   28.1,
				MinCellTempC:   25.8,
				CycleCount:     114,
			},
		},
	}, nil
}

func (t TestRegisterTransport) ReadMidbox(ctx context.Context) (*MidboxRuntimeData, error) {
	return nil, nil
}

func (t TestRegisterTransport) ReadParameters(ctx context.Context, start uint16, count uint16) ([]uint16, error) {
	return make([]uint16, count), nil
}

func (t TestRegisterTransport) WriteParameters(ctx context.Context, values map[uint16]uint16) error {
	return nil
}

func (t TestRegisterTransport) ReadNamedParameters(ctx context.Context, names ...string) (map[string]float64, error) {
	out := make(map[string]float64, len(names))
	for _, name := range names {
		if _, _, err := LookupNamedParam(name); err != nil {
			return nil, &ReadError{Op: "read_named", Err: err}
		}
		out[name] = 0
	}
	return out, nil
}

func (t TestRegisterTransport) WriteNamedParameters(ctx context.Context, values map[string]any) error {
	return nil
}

// TestRegisterBus is a scriptable in-memory register bus: preload the input
// and holding images, point transports at it, inspect the recorded writes.
type TestRegisterBus struct {
	Input   RegisterImage
	Holding RegisterImage

	// OpenErr fails Open; Fail fails every register operation
	OpenErr error
	Fail    error

	Writes []RegisterWrite
	Opened bool
}

type RegisterWrite struct {
	Address uint16
	Values  []uint16
}

func NewTestRegisterBus() *TestRegisterBus {
	return &TestRegisterBus{
		Input:   make(RegisterImage),
		Holding: make(RegisterImage),
	}
}

func (b *TestRegisterBus) Open(ctx context.Context) error {
	if b.OpenErr != nil {
		return b.OpenErr
	}
	b.Opened = true
	return nil
}

func (b *TestRegisterBus) Close() error {
	b.Opened = false
	return nil
}

func (b *TestRegisterBus) ReadInputRegisters(ctx context.Context, start uint16, quantity uint16) ([]uint16, error) {
	return b.read(b.Input, start, quantity)
}

func (b *TestRegisterBus) ReadHoldingRegisters(ctx context.Context, start uint16, quantity uint16) ([]uint16, error) {
	return b.read(b.Holding, start, quantity)
}

func (b *TestRegisterBus) read(img RegisterImage, start uint16, quantity uint16) ([]uint16, error) {
	if b.Fail != nil {
		return nil, b.Fail
	}
	out := make([]uint16, quantity)
	for i := range out {
		v, ok := img[start+uint16(i)]
		if !ok {
			return nil, &ReadError{Op: "read_registers", ExceptionCode: ExceptionIllegalDataAddress}
		}
		out[i] = v
	}
	return out, nil
}

func (b *TestRegisterBus) WriteHoldingRegister(ctx context.Context, address uint16, value uint16) error {
	return b.WriteHoldingRegisters(ctx, address, []uint16{value})
}

func (b *TestRegisterBus) WriteHoldingRegisters(ctx context.Context, address uint16, values []uint16) error {
	if b.Fail != nil {
		return b.Fail
	}
	for i, v := range values {
		b.Holding[address+uint16(i)] = v
	}
	b.Writes = append(b.Writes, RegisterWrite{Address: address, Values: append([]uint16(nil), values...)})
	return nil
}
