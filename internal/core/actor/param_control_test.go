package actor

import (
	"testing"
	"time"

	adactor "github.com/berfenger/luxnews2mqtt/internal/adapter/actor"
	"github.com/berfenger/luxnews2mqtt/internal/config"
	"github.com/berfenger/luxnews2mqtt/internal/core/domain"
	"github.com/berfenger/luxnews2mqtt/internal/util/actorutil"
	"github.com/berfenger/luxnews2mqtt/pkg/lxp_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestParamControlFlow(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	cfg := config.Config{}

	transport, err := lxp_modbus.CreateTestRegisterTransport()
	if err != nil {
		t.Error(err)
		return
	}

	// transport actor
	transportProps := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewTransportActor(transport, logger)
	})
	transportActorPID := context.Spawn(transportProps)

	// paramControl actor
	paramCtrlProps := actor.PropsFromProducer(func() actor.Actor {
		return NewParamControlActor(&cfg, transportActorPID, &eventstream.EventStream{}, logger)
	})
	pcActorPID := context.Spawn(paramCtrlProps)

	time.Sleep(2 * time.Second)

	hcr, err := healthCheck(context, pcActorPID)
	if err != nil {
		t.Error(err)
		return
	}
	assert.True(t, hcr.Healthy, "actor should be healthy")
	assert.Equal(t, "idle", hcr.State, "actor state should be idle")

	// initial state comes from the register readback
	res, err := context.RequestFuture(pcActorPID, domain.ParamControlGetStateRequest{}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	stateResp, ok := res.(domain.ParamControlGetStateResponse)
	assert.True(t, ok)
	assert.False(t, stateResp.HasResponseError())
	assert.False(t, stateResp.ACCharge, "ac charge defaults off")
	assert.False(t, stateResp.ChargePriority, "charge priority defaults off")

	// a switch write is confirmed by readback before the response goes out
	res, err = context.RequestFuture(pcActorPID, domain.ParamControlSetACChargeRequest{Enable: true}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	setResp, ok := res.(domain.ParamControlSetACChargeResponse)
	assert.True(t, ok)
	assert.False(t, setResp.HasResponseError())

	// number writes follow the same write-then-readback round
	res, err = context.RequestFuture(pcActorPID, domain.ParamControlSetACChargePowerRequest{Percent: 80}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	powerResp, ok := res.(domain.ParamControlSetACChargePowerResponse)
	assert.True(t, ok)
	assert.False(t, powerResp.HasResponseError())

	hcr, err = healthCheck(context, pcActorPID)
	if err != nil {
		t.Error(err)
		return
	}
	assert.True(t, hcr.Healthy, "actor should be healthy")
	assert.Equal(t, "idle", hcr.State, "actor state should be back to idle")

	context.Stop(pcActorPID)
	context.Stop(transportActorPID)

	as.Shutdown()
}
