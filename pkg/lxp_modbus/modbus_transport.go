package lxp_modbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// modbusBus adapts the wire library to RegisterBus for direct Modbus TCP and
// RTU links. The library serializes transactions internally; open/close state
// gets its own lock so a racing read cannot observe a half-closed client.
type modbusBus struct {
	client *modbus.ModbusClient
	unitID uint8
	logger *zap.Logger

	mu     sync.Mutex
	opened bool
}

func newModbusBus(cfg TransportConfig, logger *zap.Logger) (*modbusBus, error) {
	cfg = cfg.withDefaults()
	mbCfg := &modbus.ClientConfiguration{
		Timeout: cfg.Timeout,
	}
	switch cfg.Type {
	case TransportModbusSerial:
		parity, err := parityFromLetter(cfg.Parity)
		if err != nil {
			return nil, err
		}
		mbCfg.URL = fmt.Sprintf("rtu://%s", cfg.SerialPort)
		mbCfg.Speed = cfg.BaudRate
		mbCfg.DataBits = 8
		mbCfg.Parity = parity
		mbCfg.StopBits = cfg.StopBits
	default:
		mbCfg.URL = fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
	}
	client, err := modbus.NewClient(mbCfg)
	if err != nil {
		return nil, err
	}
	return &modbusBus{
		client: client,
		unitID: cfg.UnitID,
		logger: logger,
	}, nil
}

func parityFromLetter(letter string) (uint, error) {
	switch letter {
	case "N":
		return modbus.PARITY_NONE, nil
	case "E":
		return modbus.PARITY_EVEN, nil
	case "O":
		return modbus.PARITY_ODD, nil
	default:
		return 0, fmt.Errorf("unknown parity %q, want N, E or O", letter)
	}
}

func (b *modbusBus) Open(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.opened {
		return nil
	}
	if err := ctxGuard(ctx, "open"); err != nil {
		return err
	}
	if err := b.client.Open(); err != nil {
		return &ConnectionError{Op: "open", Err: err}
	}
	if err := b.client.SetUnitId(b.unitID); err != nil {
		_ = b.client.Close()
		return &ConnectionError{Op: "set_unit_id", Err: err}
	}
	b.opened = true
	b.logger.Debug("modbus link open", zap.Uint8("unit_id", b.unitID))
	return nil
}

func (b *modbusBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.opened {
		return nil
	}
	b.opened = false
	return b.client.Close()
}

func (b *modbusBus) ReadInputRegisters(ctx context.Context, start uint16, quantity uint16) ([]uint16, error) {
	if err := ctxGuard(ctx, "read_input"); err != nil {
		return nil, err
	}
	values, err := b.client.ReadRegisters(start, quantity, modbus.INPUT_REGISTER)
	if err != nil {
		return nil, classifyModbusError("read_input", err, false)
	}
	return values, nil
}

func (b *modbusBus) ReadHoldingRegisters(ctx context.Context, start uint16, quantity uint16) ([]uint16, error) {
	if err := ctxGuard(ctx, "read_holding"); err != nil {
		return nil, err
	}
	values, err := b.client.ReadRegisters(start, quantity, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, classifyModbusError("read_holding", err, false)
	}
	return values, nil
}

func (b *modbusBus) WriteHoldingRegister(ctx context.Context, address uint16, value uint16) error {
	if err := ctxGuard(ctx, "write_register"); err != nil {
		return err
	}
	if err := b.client.WriteRegister(address, value); err != nil {
		return classifyModbusError("write_register", err, true)
	}
	return nil
}

func (b *modbusBus) WriteHoldingRegisters(ctx context.Context, address uint16, values []uint16) error {
	if err := ctxGuard(ctx, "write_registers"); err != nil {
		return err
	}
	if err := b.client.WriteRegisters(address, values); err != nil {
		return classifyModbusError("write_registers", err, true)
	}
	return nil
}

// ctxGuard rejects calls on an expired context. The wire library does not
// take contexts, so this is checked once before each blocking transaction.
func ctxGuard(ctx context.Context, op string) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Err: err}
	}
	return err
}

func classifyModbusError(op string, err error, write bool) error {
	var code byte
	switch {
	case errors.Is(err, modbus.ErrRequestTimedOut):
		return &TimeoutError{Op: op, Err: err}
	case errors.Is(err, modbus.ErrIllegalFunction):
		code = ExceptionIllegalFunction
	case errors.Is(err, modbus.ErrIllegalDataAddress):
		code = ExceptionIllegalDataAddress
	case errors.Is(err, modbus.ErrIllegalDataValue):
		code = ExceptionIllegalDataValue
	case errors.Is(err, modbus.ErrServerDeviceFailure):
		code = ExceptionServerFailure
	default:
		return &ConnectionError{Op: op, Err: err}
	}
	if write {
		return &WriteError{Op: op, Err: err, ExceptionCode: code}
	}
	return &ReadError{Op: op, Err: err, ExceptionCode: code}
}

// CreateModbusTransport builds the transport for a direct Modbus TCP or
// serial link to one device.
func CreateModbusTransport(cfg TransportConfig, logger *zap.Logger) (RegisterTransport, error) {
	cfg = cfg.withDefaults()
	bus, err := newModbusBus(cfg, logger)
	if err != nil {
		return nil, err
	}
	concurrent := cfg.Type == TransportModbusTCP
	return newLocalTransport(bus, cfg, localCapabilities(concurrent), logger), nil
}
