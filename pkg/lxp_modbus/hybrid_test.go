package lxp_modbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubChannel is a scriptable RegisterTransport for failover tests.
type stubChannel struct {
	serial    string
	caps      TransportCapabilities
	connected bool

	connectErr error
	runtimeErr error

	connects     int
	runtimeCalls int
}

func (s *stubChannel) Connect(ctx context.Context) error {
	s.connects++
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true
	return nil
}

func (s *stubChannel) Disconnect() error {
	s.connected = false
	return nil
}

func (s *stubChannel) Connected() bool {
	return s.connected
}

func (s *stubChannel) Capabilities() TransportCapabilities {
	return s.caps
}

func (s *stubChannel) DeviceSerial() string {
	return s.serial
}

func (s *stubChannel) Discover(ctx context.Context) *DeviceInfo {
	return &DeviceInfo{Serial: s.serial, Family: FamilyUnknown}
}

func (s *stubChannel) ReadRuntime(ctx context.Context) (*InverterRuntimeData, error) {
	s.runtimeCalls++
	if s.runtimeErr != nil {
		return nil, s.runtimeErr
	}
	return &InverterRuntimeData{Serial: s.serial}, nil
}

func (s *stubChannel) ReadEnergy(ctx context.Context) (*InverterEnergyData, error) {
	return &InverterEnergyData{Serial: s.serial}, nil
}

func (s *stubChannel) ReadBattery(ctx context.Context) (*BatteryBankData, error) {
	return &BatteryBankData{Serial: s.serial}, nil
}

func (s *stubChannel) ReadMidbox(ctx context.Context) (*MidboxRuntimeData, error) {
	return nil, nil
}

func (s *stubChannel) ReadParameters(ctx context.Context, start uint16, count uint16) ([]uint16, error) {
	return make([]uint16, count), nil
}

func (s *stubChannel) WriteParameters(ctx context.Context, values map[uint16]uint16) error {
	return nil
}

func (s *stubChannel) ReadNamedParameters(ctx context.Context, names ...string) (map[string]float64, error) {
	out := make(map[string]float64, len(names))
	for _, n := range names {
		out[n] = 0
	}
	return out, nil
}

func (s *stubChannel) WriteNamedParameters(ctx context.Context, values map[string]any) error {
	return nil
}

func newTestHybrid(local, cloud *stubChannel, retry time.Duration) *HybridTransport {
	return CreateHybridTransport(local, cloud, retry, zap.NewNop())
}

func TestHybridPrefersLocal(t *testing.T) {
	require := require.New(t)

	local := &stubChannel{serial: "LOCAL"}
	cloud := &stubChannel{serial: "CLOUD"}
	h := newTestHybrid(local, cloud, time.Minute)

	require.NoError(h.Connect(context.Background()))
	assert.True(t, h.UsingLocal())

	runtime, err := h.ReadRuntime(context.Background())
	require.NoError(err)
	assert.Equal(t, "LOCAL", runtime.Serial)
	assert.Equal(t, 0, cloud.runtimeCalls, "cloud stays idle while local is healthy")
}

func TestHybridFailsOverToCloud(t *testing.T) {
	require := require.New(t)

	local := &stubChannel{serial: "LOCAL", runtimeErr: errors.New("link down")}
	cloud := &stubChannel{serial: "CLOUD"}
	h := newTestHybrid(local, cloud, time.Minute)

	require.NoError(h.Connect(context.Background()))

	runtime, err := h.ReadRuntime(context.Background())
	require.NoError(err)
	assert.Equal(t, "CLOUD", runtime.Serial, "failed local call is retried on cloud")
	assert.False(t, h.UsingLocal())
	assert.False(t, h.LocalFailedAt().IsZero())

	// inside the bench window the local channel is not even tried
	localCalls := local.runtimeCalls
	runtime, err = h.ReadRuntime(context.Background())
	require.NoError(err)
	assert.Equal(t, "CLOUD", runtime.Serial)
	assert.Equal(t, localCalls, local.runtimeCalls, "benched local is left alone")
}

func TestHybridLocalRecoveryAfterRetryInterval(t *testing.T) {
	require := require.New(t)

	local := &stubChannel{serial: "LOCAL", runtimeErr: errors.New("link down")}
	cloud := &stubChannel{serial: "CLOUD"}
	h := newTestHybrid(local, cloud, time.Minute)

	current := time.Unix(1700000000, 0)
	h.now = func() time.Time { return current }

	require.NoError(h.Connect(context.Background()))

	_, err := h.ReadRuntime(context.Background())
	require.NoError(err)
	require.False(h.UsingLocal())

	// the link comes back, but the bench window has not elapsed yet
	local.runtimeErr = nil
	current = current.Add(30 * time.Second)
	runtime, err := h.ReadRuntime(context.Background())
	require.NoError(err)
	assert.Equal(t, "CLOUD", runtime.Serial)

	// past the window: probe reconnects local and restores it as primary
	current = current.Add(time.Minute)
	connects := local.connects
	runtime, err = h.ReadRuntime(context.Background())
	require.NoError(err)
	assert.Equal(t, "LOCAL", runtime.Serial)
	assert.Equal(t, connects+1, local.connects, "retry probe reconnects the stale socket")
	assert.True(t, h.UsingLocal())
	assert.True(t, h.LocalFailedAt().IsZero())

	// and the next call goes straight to local without another reconnect
	runtime, err = h.ReadRuntime(context.Background())
	require.NoError(err)
	assert.Equal(t, "LOCAL", runtime.Serial)
	assert.Equal(t, connects+1, local.connects)
}

func TestHybridConnectCloudFailureIsFatal(t *testing.T) {
	local := &stubChannel{serial: "LOCAL"}
	cloud := &stubChannel{serial: "CLOUD", connectErr: errors.New("bad credentials")}
	h := newTestHybrid(local, cloud, time.Minute)

	err := h.Connect(context.Background())
	assert.Error(t, err)
	assert.False(t, local.Connected(), "local is torn down when cloud cannot come up")
}

func TestHybridConnectLocalFailureStartsOnCloud(t *testing.T) {
	require := require.New(t)

	local := &stubChannel{serial: "LOCAL", connectErr: errors.New("no route")}
	cloud := &stubChannel{serial: "CLOUD"}
	h := newTestHybrid(local, cloud, time.Minute)

	require.NoError(h.Connect(context.Background()))
	assert.False(t, h.UsingLocal())
	assert.False(t, h.LocalFailedAt().IsZero())

	runtime, err := h.ReadRuntime(context.Background())
	require.NoError(err)
	assert.Equal(t, "CLOUD", runtime.Serial)
}

func TestHybridCapabilitiesUnion(t *testing.T) {
	local := &stubChannel{caps: TransportCapabilities{
		CanReadRuntime: true,
		IsLocal:        true,
	}}
	cloud := &stubChannel{caps: TransportCapabilities{
		CanReadRuntime:     true,
		CanWriteParameters: true,
		RequiresAuth:       true,
	}}
	h := newTestHybrid(local, cloud, time.Minute)

	caps := h.Capabilities()
	assert.True(t, caps.CanReadRuntime)
	assert.True(t, caps.CanWriteParameters)
	assert.True(t, caps.IsLocal)
	assert.True(t, caps.RequiresAuth)
	assert.False(t, caps.CanReadEnergy)
}
