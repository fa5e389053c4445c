package lxp_modbus

import (
	"context"
	"fmt"
	"time"
)

type TransportType string

const (
	TransportModbusTCP    TransportType = "modbus_tcp"
	TransportModbusSerial TransportType = "modbus_serial"
	TransportWifiDongle   TransportType = "wifi_dongle"
	TransportHTTP         TransportType = "http"
)

const (
	DefaultModbusPort  uint  = 502
	DefaultDonglePort  uint  = 8000
	DefaultUnitID      uint8 = 1
	DefaultTimeout           = 5 * time.Second
	DefaultSettleDelay       = 100 * time.Millisecond
)

// TransportConfig is immutable after construction.
type TransportConfig struct {
	Type TransportType

	// modbus_tcp / wifi_dongle
	Host string
	Port uint

	// modbus_serial
	SerialPort string
	BaudRate   uint
	Parity     string // N, E, O
	StopBits   uint

	UnitID uint8

	InverterSerial string
	// the dongle unit has its own serial, distinct from the inverter's
	DongleSerial string

	Timeout     time.Duration
	SettleDelay time.Duration
}

func (c TransportConfig) withDefaults() TransportConfig {
	if c.Port == 0 {
		if c.Type == TransportWifiDongle {
			c.Port = DefaultDonglePort
		} else {
			c.Port = DefaultModbusPort
		}
	}
	if c.UnitID == 0 {
		c.UnitID = DefaultUnitID
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.BaudRate == 0 {
		c.BaudRate = 19200
	}
	if c.Parity == "" {
		c.Parity = "N"
	}
	if c.StopBits == 0 {
		c.StopBits = 1
	}
	return c
}

func (c TransportConfig) String() string {
	switch c.Type {
	case TransportModbusSerial:
		return fmt.Sprintf("%s[%s@%d]", c.Type, c.SerialPort, c.BaudRate)
	case TransportHTTP:
		return fmt.Sprintf("%s[%s]", c.Type, c.InverterSerial)
	default:
		return fmt.Sprintf("%s[%s:%d]", c.Type, c.Host, c.Port)
	}
}

// RegisterTransport is the single polymorphic surface every channel
// implements: raw Modbus, the WiFi dongle framing and the cloud API all end
// up behind this contract.
//
// Snapshot reads return (nil, nil) when the connected device has no such
// section (a midbox has no inverter runtime and vice versa). Concurrent
// requests on one transport are serialized internally; callers still must not
// assume pipelining.
type RegisterTransport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Connected() bool
	Capabilities() TransportCapabilities

	// DeviceSerial is the serial this transport is bound to.
	DeviceSerial() string

	// Discover classifies the connected device. It never fails: probe
	// errors degrade to conservative defaults (FamilyUnknown, no parallel
	// key).
	Discover(ctx context.Context) *DeviceInfo

	ReadRuntime(ctx context.Context) (*InverterRuntimeData, error)
	ReadEnergy(ctx context.Context) (*InverterEnergyData, error)
	ReadBattery(ctx context.Context) (*BatteryBankData, error)
	ReadMidbox(ctx context.Context) (*MidboxRuntimeData, error)

	ReadParameters(ctx context.Context, start uint16, count uint16) ([]uint16, error)
	WriteParameters(ctx context.Context, values map[uint16]uint16) error

	// Named access layers symbolic names over the register map, including
	// single-bit flags packed in control words. Writing a named flag does
	// read-modify-write on the host register so sibling bits survive.
	ReadNamedParameters(ctx context.Context, names ...string) (map[string]float64, error)
	WriteNamedParameters(ctx context.Context, values map[string]any) error
}

// RegisterBus is the raw register I/O primitive a local channel provides.
// The family-aware reader sits on top and is shared between the plain Modbus
// and the dongle implementations.
type RegisterBus interface {
	Open(ctx context.Context) error
	Close() error
	ReadInputRegisters(ctx context.Context, start uint16, quantity uint16) ([]uint16, error)
	ReadHoldingRegisters(ctx context.Context, start uint16, quantity uint16) ([]uint16, error)
	WriteHoldingRegister(ctx context.Context, address uint16, value uint16) error
	WriteHoldingRegisters(ctx context.Context, address uint16, values []uint16) error
}

func localCapabilities(concurrent bool) TransportCapabilities {
	return TransportCapabilities{
		CanReadRuntime:          true,
		CanReadEnergy:           true,
		CanReadBattery:          true,
		CanReadParameters:       true,
		CanWriteParameters:      true,
		CanDiscoverDevices:      true,
		IsLocal:                 true,
		RequiresAuth:            false,
		SupportsConcurrentReads: concurrent,
	}
}

func cloudCapabilities() TransportCapabilities {
	return TransportCapabilities{
		CanReadRuntime:          true,
		CanReadEnergy:           true,
		CanReadBattery:          true,
		CanReadParameters:       true,
		CanWriteParameters:      true,
		CanDiscoverDevices:      false,
		IsLocal:                 false,
		RequiresAuth:            true,
		SupportsConcurrentReads: false,
	}
}

// readImage fills a RegisterImage from the given input-register blocks.
func readImage(ctx context.Context, bus RegisterBus, blocks []RegisterBlock) (RegisterImage, error) {
	img := make(RegisterImage)
	for _, b := range blocks {
		regs, err := bus.ReadInputRegisters(ctx, b.Start, b.Count)
		if err != nil {
			return nil, err
		}
		for i, v := range regs {
			img[b.Start+uint16(i)] = v
		}
	}
	return img, nil
}
