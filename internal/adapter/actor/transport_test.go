package actor

import (
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/berfenger/luxnews2mqtt/internal/core/domain"
	"github.com/berfenger/luxnews2mqtt/internal/util/actorutil"
	"github.com/berfenger/luxnews2mqtt/pkg/lxp_modbus"
)

func TestGetDeviceInfoTransportActor(t *testing.T) {

	assert := assert.New(t)

	transport, err := lxp_modbus.CreateTestRegisterTransport()
	if err != nil {
		t.Error(err)
		return
	}

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewTransportActor(transport, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	msg := domain.GetDeviceInfoRequest{}
	result, err := context.RequestFuture(pid, msg, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetDeviceInfoResponse)

	assert.Equal("CE18500001", resp.Device.Serial, "device serial")
	assert.Equal(lxp_modbus.FamilyHybrid18K, resp.Device.Family, "device family")
	assert.Equal("18KPV", resp.Device.Model, "device model")

	context.Stop(pid)

	as.Shutdown()
}

func TestGetTelemetryTransportActor(t *testing.T) {

	assert := assert.New(t)

	transport, err := lxp_modbus.CreateTestRegisterTransport()
	if err != nil {
		t.Error(err)
		return
	}

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewTransportActor(transport, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	msg := domain.GetTelemetryRequest{WithEnergy: true}

	result, err := context.RequestFuture(pid, msg, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetTelemetryResponse)

	assert.False(resp.HasResponseError())
	assert.NotNil(resp.Runtime)
	assert.NotNil(resp.Battery)
	assert.NotNil(resp.Energy)
	assert.True(resp.Runtime.PVPowerWatt > 0, "PVPowerWatt bounds")
	assert.True(resp.Runtime.ChargePowerWatt >= 0, "ChargePowerWatt bounds")
	assert.Equal(2, resp.Battery.ModuleCount, "battery module count")
	assert.Nil(resp.UsingLocalChannel, "plain transport has no channels")

	context.Stop(pid)

	as.Shutdown()
}
