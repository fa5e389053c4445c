package actor

import (
	"sync"
	"testing"
	"time"

	adactor "github.com/berfenger/luxnews2mqtt/internal/adapter/actor"
	"github.com/berfenger/luxnews2mqtt/internal/core/domain"
	"github.com/berfenger/luxnews2mqtt/internal/core/service"
	"github.com/berfenger/luxnews2mqtt/internal/util"
	"github.com/berfenger/luxnews2mqtt/internal/util/actorutil"
	"github.com/berfenger/luxnews2mqtt/pkg/lxp_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []any
}

func (r *eventRecorder) record(value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, value)
}

func (r *eventRecorder) snapshot() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.events...)
}

func TestPollerPublishesTelemetry(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	cfg := util.LoadTestConfig()
	cfg.MonitorConfig.PollIntervalMillis = 500
	cfg.MonitorConfig.EnergyPollIntervalTicks = 2

	transport, err := lxp_modbus.CreateTestRegisterTransport()
	if err != nil {
		t.Error(err)
		return
	}

	transportProps := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewTransportActor(transport, logger)
	})
	transportActorPID := context.Spawn(transportProps)

	recorder := &eventRecorder{}
	es := &eventstream.EventStream{}
	sub := es.Subscribe(recorder.record)
	defer es.Unsubscribe(sub)

	guard := service.NewTelemetryGuard(logger)

	pollerProps := actor.PropsFromProducer(func() actor.Actor {
		return NewPollerActor(&cfg, transportActorPID, es, guard, logger)
	})
	pollerActorPID := context.Spawn(pollerProps)

	time.Sleep(2 * time.Second)

	hcr, err := healthCheck(context, pollerActorPID)
	if err != nil {
		t.Error(err)
		return
	}
	assert.True(t, hcr.Healthy, "actor should be healthy")

	events := recorder.snapshot()
	assert.NotEmpty(t, events, "poller should have published events")

	var pvPower *domain.FloatSensorUpdateEvent
	var runtimeIntegrity *domain.TextSensorUpdateEvent
	var pvEnergyTotal *domain.FloatSensorUpdateEvent
	var moduleSOC *domain.FloatSensorUpdateEvent
	for _, ev := range events {
		switch e := ev.(type) {
		case domain.FloatSensorUpdateEvent:
			switch e.Id {
			case domain.SENSOR_ID_PV_POWER:
				pvPower = &e
			case domain.SENSOR_ID_PV_ENERGY_TOTAL:
				pvEnergyTotal = &e
			case domain.BatteryModuleSensorId(0, "soc"):
				moduleSOC = &e
			}
		case domain.TextSensorUpdateEvent:
			if e.Id == domain.SENSOR_ID_RUNTIME_INTEGRITY {
				runtimeIntegrity = &e
			}
		}
	}

	if assert.NotNil(t, pvPower, "pv power event published") {
		assert.Equal(t, 6100.0, pvPower.Value, "pv power value")
	}
	if assert.NotNil(t, runtimeIntegrity, "runtime integrity event published") {
		assert.Equal(t, "valid", runtimeIntegrity.Value, "clean snapshot is valid")
	}
	if assert.NotNil(t, pvEnergyTotal, "first cycle carries energy counters") {
		assert.Equal(t, 2770.3, pvEnergyTotal.Value, "pv lifetime energy value")
	}
	assert.NotNil(t, moduleSOC, "per-module battery events published")

	context.Stop(pollerActorPID)
	context.Stop(transportActorPID)

	as.Shutdown()
}
