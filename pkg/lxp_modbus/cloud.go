package lxp_modbus

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// CloudService is the authenticated vendor-API surface the cloud transport
// rides on. Implementations own session, caching and response-schema
// concerns; this layer treats them as an opaque register source that happens
// to live behind HTTPS. Snapshot calls return (nil, nil) when the device has
// no such section.
type CloudService interface {
	Authenticate(ctx context.Context) error

	Runtime(ctx context.Context, serial string) (*InverterRuntimeData, error)
	Energy(ctx context.Context, serial string) (*InverterEnergyData, error)
	Battery(ctx context.Context, serial string) (*BatteryBankData, error)
	Midbox(ctx context.Context, serial string) (*MidboxRuntimeData, error)

	ReadParameters(ctx context.Context, serial string, start uint16, count uint16) ([]uint16, error)
	WriteParameters(ctx context.Context, serial string, values map[uint16]uint16) error
}

// CloudTransport adapts a CloudService to the RegisterTransport contract so
// the failover orchestrator can treat cloud and local channels uniformly.
type CloudTransport struct {
	service CloudService
	serial  string
	logger  *zap.Logger

	mu        sync.Mutex
	connected bool
}

func CreateCloudTransport(service CloudService, serial string, logger *zap.Logger) *CloudTransport {
	return &CloudTransport{
		service: service,
		serial:  serial,
		logger:  logger,
	}
}

func (t *CloudTransport) Connect(ctx context.Context) error {
	if err := t.service.Authenticate(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	t.logger.Info("cloud session established", zap.String("serial", t.serial))
	return nil
}

func (t *CloudTransport) Disconnect() error {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	return nil
}

func (t *CloudTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *CloudTransport) Capabilities() TransportCapabilities {
	return cloudCapabilities()
}

func (t *CloudTransport) DeviceSerial() string {
	return t.serial
}

// Discover cannot probe identity registers through the cloud API; it reports
// what configuration already knows.
func (t *CloudTransport) Discover(ctx context.Context) *DeviceInfo {
	return &DeviceInfo{Serial: t.serial, Family: FamilyUnknown}
}

func (t *CloudTransport) ReadRuntime(ctx context.Context) (*InverterRuntimeData, error) {
	return t.service.Runtime(ctx, t.serial)
}

func (t *CloudTransport) ReadEnergy(ctx context.Context) (*InverterEnergyData, error) {
	return t.service.Energy(ctx, t.serial)
}

func (t *CloudTransport) ReadBattery(ctx context.Context) (*BatteryBankData, error) {
	return t.service.Battery(ctx, t.serial)
}

func (t *CloudTransport) ReadMidbox(ctx context.Context) (*MidboxRuntimeData, error) {
	return t.service.Midbox(ctx, t.serial)
}

func (t *CloudTransport) ReadParameters(ctx context.Context, start uint16, count uint16) ([]uint16, error) {
	return t.service.ReadParameters(ctx, t.serial, start, count)
}

func (t *CloudTransport) WriteParameters(ctx context.Context, values map[uint16]uint16) error {
	return t.service.WriteParameters(ctx, t.serial, values)
}

func (t *CloudTransport) ReadNamedParameters(ctx context.Context, names ...string) (map[string]float64, error) {
	return readNamed(ctx, cloudHoldingIO{t}, names)
}

func (t *CloudTransport) WriteNamedParameters(ctx context.Context, values map[string]any) error {
	return writeNamed(ctx, cloudHoldingIO{t}, values)
}

// cloudHoldingIO lets the shared named-parameter helpers run over the cloud
// API's parameter endpoints.
type cloudHoldingIO struct {
	t *CloudTransport
}

func (c cloudHoldingIO) ReadHoldingRegisters(ctx context.Context, start uint16, quantity uint16) ([]uint16, error) {
	return c.t.service.ReadParameters(ctx, c.t.serial, start, quantity)
}

func (c cloudHoldingIO) WriteHoldingRegister(ctx context.Context, address uint16, value uint16) error {
	return c.t.service.WriteParameters(ctx, c.t.serial, map[uint16]uint16{address: value})
}

func (c cloudHoldingIO) WriteHoldingRegisters(ctx context.Context, address uint16, values []uint16) error {
	m := make(map[uint16]uint16, len(values))
	for i, v := range values {
		m[address+uint16(i)] = v
	}
	return c.t.service.WriteParameters(ctx, c.t.serial, m)
}
