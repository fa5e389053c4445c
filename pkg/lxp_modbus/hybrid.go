package lxp_modbus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultLocalRetryInterval is how long the orchestrator leaves the local
// channel alone after a failure before probing it again.
const DefaultLocalRetryInterval = 60 * time.Second

// HybridTransport composes a local transport and a cloud transport behind the
// plain RegisterTransport contract. The local channel is preferred while
// healthy; any local failure routes the call to the cloud and benches local
// until the retry interval elapses. Recovery is time-based, not
// success-based: a lucky local reply never clears the failure marker, which
// is what prevents flapping between channels.
type HybridTransport struct {
	local  RegisterTransport
	cloud  RegisterTransport
	logger *zap.Logger

	retryInterval time.Duration
	now           func() time.Time

	mu            sync.Mutex
	usingLocal    bool
	localFailedAt time.Time
}

func CreateHybridTransport(local RegisterTransport, cloud RegisterTransport, retryInterval time.Duration, logger *zap.Logger) *HybridTransport {
	if retryInterval <= 0 {
		retryInterval = DefaultLocalRetryInterval
	}
	return &HybridTransport{
		local:         local,
		cloud:         cloud,
		logger:        logger,
		retryInterval: retryInterval,
		now:           time.Now,
	}
}

// Connect brings up both channels concurrently. Cloud failure is fatal, there
// is nothing left to fall back to. Local failure only benches the channel.
func (h *HybridTransport) Connect(ctx context.Context) error {
	var wg sync.WaitGroup
	var cloudErr, localErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		cloudErr = h.cloud.Connect(ctx)
	}()
	go func() {
		defer wg.Done()
		localErr = h.local.Connect(ctx)
	}()
	wg.Wait()

	if cloudErr != nil {
		if localErr == nil {
			_ = h.local.Disconnect()
		}
		return cloudErr
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if localErr != nil {
		h.usingLocal = false
		h.localFailedAt = h.now()
		h.logger.Warn("local channel unavailable, starting on cloud", zap.Error(localErr))
		return nil
	}
	h.usingLocal = true
	h.localFailedAt = time.Time{}
	return nil
}

func (h *HybridTransport) Disconnect() error {
	localErr := h.local.Disconnect()
	cloudErr := h.cloud.Disconnect()
	h.mu.Lock()
	h.usingLocal = false
	h.localFailedAt = time.Time{}
	h.mu.Unlock()
	if localErr != nil {
		return localErr
	}
	return cloudErr
}

func (h *HybridTransport) Connected() bool {
	return h.cloud.Connected() || h.local.Connected()
}

// Capabilities is the union of both channels: a capability is available as
// long as one channel can serve it.
func (h *HybridTransport) Capabilities() TransportCapabilities {
	l, c := h.local.Capabilities(), h.cloud.Capabilities()
	return TransportCapabilities{
		CanReadRuntime:          l.CanReadRuntime || c.CanReadRuntime,
		CanReadEnergy:           l.CanReadEnergy || c.CanReadEnergy,
		CanReadBattery:          l.CanReadBattery || c.CanReadBattery,
		CanReadParameters:       l.CanReadParameters || c.CanReadParameters,
		CanWriteParameters:      l.CanWriteParameters || c.CanWriteParameters,
		CanDiscoverDevices:      l.CanDiscoverDevices || c.CanDiscoverDevices,
		IsLocal:                 l.IsLocal || c.IsLocal,
		RequiresAuth:            l.RequiresAuth || c.RequiresAuth,
		SupportsConcurrentReads: l.SupportsConcurrentReads || c.SupportsConcurrentReads,
	}
}

func (h *HybridTransport) DeviceSerial() string {
	if s := h.local.DeviceSerial(); s != "" {
		return s
	}
	return h.cloud.DeviceSerial()
}

// UsingLocal reports whether the local channel is the current primary.
func (h *HybridTransport) UsingLocal() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.usingLocal
}

// LocalFailedAt returns when the local channel last failed, zero if never.
func (h *HybridTransport) LocalFailedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.localFailedAt
}

type localRoute int

const (
	routeCloudOnly localRoute = iota
	// local is the healthy primary
	routeLocalPrimary
	// local is benched but the retry interval elapsed; probe it again,
	// reconnecting first
	routeLocalRetry
)

func (h *HybridTransport) route() localRoute {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.usingLocal {
		return routeLocalPrimary
	}
	if h.localFailedAt.IsZero() {
		return routeCloudOnly
	}
	if h.now().Sub(h.localFailedAt) > h.retryInterval {
		return routeLocalRetry
	}
	return routeCloudOnly
}

func (h *HybridTransport) markLocalFailed(op string, err error) {
	h.mu.Lock()
	h.usingLocal = false
	h.localFailedAt = h.now()
	h.mu.Unlock()
	h.logger.Warn("local channel failed, falling back to cloud",
		zap.String("op", op), zap.Error(err))
}

func (h *HybridTransport) markLocalRecovered() {
	h.mu.Lock()
	h.usingLocal = true
	h.localFailedAt = time.Time{}
	h.mu.Unlock()
	h.logger.Info("local channel recovered, back to primary")
}

// hybridCall runs one operation through the failover policy.
func hybridCall[T any](ctx context.Context, h *HybridTransport, op string, call func(ctx context.Context, t RegisterTransport) (T, error)) (T, error) {
	switch h.route() {
	case routeLocalPrimary:
		v, err := call(ctx, h.local)
		if err == nil {
			return v, nil
		}
		h.markLocalFailed(op, err)
	case routeLocalRetry:
		// the bench window elapsed; the socket may be long dead, so
		// reconnect before trusting the channel with the call
		if err := h.local.Connect(ctx); err != nil {
			h.markLocalFailed(op, err)
			break
		}
		v, err := call(ctx, h.local)
		if err == nil {
			h.markLocalRecovered()
			return v, nil
		}
		h.markLocalFailed(op, err)
	}
	return call(ctx, h.cloud)
}

func hybridWrite(ctx context.Context, h *HybridTransport, op string, call func(ctx context.Context, t RegisterTransport) error) error {
	_, err := hybridCall(ctx, h, op, func(ctx context.Context, t RegisterTransport) (struct{}, error) {
		return struct{}{}, call(ctx, t)
	})
	return err
}

func (h *HybridTransport) Discover(ctx context.Context) *DeviceInfo {
	if h.route() != routeCloudOnly {
		if info := h.local.Discover(ctx); info.Family != FamilyUnknown {
			return info
		}
	}
	return h.cloud.Discover(ctx)
}

func (h *HybridTransport) ReadRuntime(ctx context.Context) (*InverterRuntimeData, error) {
	return hybridCall(ctx, h, "read_runtime", func(ctx context.Context, t RegisterTransport) (*InverterRuntimeData, error) {
		return t.ReadRuntime(ctx)
	})
}

func (h *HybridTransport) ReadEnergy(ctx context.Context) (*InverterEnergyData, error) {
	return hybridCall(ctx, h, "read_energy", func(ctx context.Context, t RegisterTransport) (*InverterEnergyData, error) {
		return t.ReadEnergy(ctx)
	})
}

func (h *HybridTransport) ReadBattery(ctx context.Context) (*BatteryBankData, error) {
	return hybridCall(ctx, h, "read_battery", func(ctx context.Context, t RegisterTransport) (*BatteryBankData, error) {
		return t.ReadBattery(ctx)
	})
}

func (h *HybridTransport) ReadMidbox(ctx context.Context) (*MidboxRuntimeData, error) {
	return hybridCall(ctx, h, "read_midbox", func(ctx context.Context, t RegisterTransport) (*MidboxRuntimeData, error) {
		return t.ReadMidbox(ctx)
	})
}

func (h *HybridTransport) ReadParameters(ctx context.Context, start uint16, count uint16) ([]uint16, error) {
	return hybridCall(ctx, h, "read_parameters", func(ctx context.Context, t RegisterTransport) ([]uint16, error) {
		return t.ReadParameters(ctx, start, count)
	})
}

func (h *HybridTransport) WriteParameters(ctx context.Context, values map[uint16]uint16) error {
	return hybridWrite(ctx, h, "write_parameters", func(ctx context.Context, t RegisterTransport) error {
		return t.WriteParameters(ctx, values)
	})
}

func (h *HybridTransport) ReadNamedParameters(ctx context.Context, names ...string) (map[string]float64, error) {
	return hybridCall(ctx, h, "read_named_parameters", func(ctx context.Context, t RegisterTransport) (map[string]float64, error) {
		return t.ReadNamedParameters(ctx, names...)
	})
}

func (h *HybridTransport) WriteNamedParameters(ctx context.Context, values map[string]any) error {
	return hybridWrite(ctx, h, "write_named_parameters", func(ctx context.Context, t RegisterTransport) error {
		return t.WriteNamedParameters(ctx, values)
	})
}
