package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/luxnews2mqtt/internal/config"
	"github.com/berfenger/luxnews2mqtt/internal/core/domain"
	"github.com/berfenger/luxnews2mqtt/internal/util/actorutil"
	"github.com/berfenger/luxnews2mqtt/pkg/lxp_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	HADISCOVERY_ACTOR_ID = "hadiscovery"
)

// HADiscoveryActor publishes the Home Assistant discovery catalog once, after
// checking both peers are up. Battery modules are announced per discovered
// module, so it needs a battery read on top of the device probe.
type HADiscoveryActor struct {
	cfg                   *config.Config
	behavior              actor.Behavior
	stash                 *actorutil.Stash
	transportActor        *actor.PID
	mqttActor             *actor.PID
	transportActorHealthy bool
	mqttActorHealthy      bool
	healthyRecv           int
	deviceInfo            *lxp_modbus.DeviceInfo

	logger *zap.Logger
}

func NewHADiscoveryActor(cfg *config.Config, transportActor *actor.PID, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		cfg:            cfg,
		transportActor: transportActor,
		mqttActor:      mqttActor,
		behavior:       actor.NewBehavior(),
		stash:          &actorutil.Stash{},
		logger:         actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// Check Transport and MQTT actor healthy
		state.healthyRecv = 0
		state.transportActorHealthy = false
		state.mqttActorHealthy = false
		// Transport Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.transportActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_TRANSPORT,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_TRANSPORT:
				state.transportActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {

			if state.transportActorHealthy && state.mqttActorHealthy {
				// Ask Transport GetDeviceInfoRequest
				actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.transportActor, domain.GetDeviceInfoRequest{}, 10*time.Second), func(err error) any {
					return domain.GetDeviceInfoResponse{
						ActorResponseMixIn: domain.ActorResponseMixIn{
							ResponseError: err,
						},
					}
				})
				state.behavior.Become(state.WaitingInfoReceive)
				state.stash.UnstashAll(ctx)
			} else {
				panic(errors.New("MQTT Actor or Transport Actor are not healthy"))
			}
		}
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {

}

func (state *HADiscoveryActor) WaitingInfoReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetDeviceInfoResponse:
		if msg.HasResponseError() {
			panic(msg.GetResponseError())
		}
		state.logger.Debug("hadiscovery@info: GetDeviceInfoResponse", zap.Any("response", msg))

		state.deviceInfo = msg.Device

		// battery read to know how many modules to announce
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.transportActor, domain.GetBatteryRequest{}, 10*time.Second), func(err error) any {
			return domain.GetBatteryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		state.behavior.Become(state.WaitingBatteryReceive)

	default:
		state.logger.Debug("hadiscovery@info: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) WaitingBatteryReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetBatteryResponse:
		moduleCount := 0
		if msg.HasResponseError() {
			// modules stay unannounced, everything else is still published
			state.logger.Error("hadiscovery@battery: GetBatteryResponse error", zap.Error(msg.GetResponseError()))
		} else if msg.Battery != nil {
			moduleCount = msg.Battery.ModuleCount
		}

		state.publishDiscovery(ctx, moduleCount)
		state.behavior.Become(state.Done)

	default:
		state.logger.Debug("hadiscovery@battery: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) publishDiscovery(ctx actor.Context, batteryModules int) {
	var sensors []domain.GenericSensor
	var switches []domain.GenericSwitch
	var inputNumbers []domain.GenericInputNumber

	bridgeDevice := domain.BridgeDevice(state.cfg.MQTT.BaseTopic)
	bridgeSensors := domain.BridgeSensors(bridgeDevice)
	sensors = append(sensors, bridgeSensors...)

	inverterDevice := domain.InverterDevice(state.deviceInfo)
	inverterDevice.ViaDevice = bridgeDevice.Id

	var inverterSensors []domain.GenericSensor
	inverterSensors = append(inverterSensors, domain.InverterRuntimeSensors(inverterDevice)...)
	inverterSensors = append(inverterSensors, domain.InverterEnergySensors(inverterDevice)...)
	inverterSensors = append(inverterSensors, domain.BatteryBankSensors(inverterDevice)...)
	for i := 0; i < batteryModules; i++ {
		inverterSensors = append(inverterSensors, domain.BatteryModuleSensors(inverterDevice, i)...)
	}
	inverterSensors = append(inverterSensors, domain.InverterDiagnosticSensors(inverterDevice)...)
	for i := range inverterSensors {
		if i > 0 {
			inverterSensors[i].Device = domain.IdDevice(inverterDevice)
		}
		sensors = append(sensors, inverterSensors[i])
	}

	if state.deviceInfo.IsMidbox() {
		midboxDevice := domain.MidboxDevice(state.deviceInfo)
		midboxDevice.ViaDevice = bridgeDevice.Id
		midboxSensors := domain.MidboxSensors(midboxDevice)
		for i := range midboxSensors {
			if i > 0 {
				midboxSensors[i].Device = domain.IdDevice(midboxDevice)
			}
			sensors = append(sensors, midboxSensors[i])
		}
	}

	switches = append(switches, domain.ParamControlSwitches(domain.IdDevice(inverterDevice))...)
	inputNumbers = append(inputNumbers, domain.ParamControlInputNumbers(domain.IdDevice(inverterDevice))...)

	ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
		Sensors:      sensors,
		Switches:     switches,
		InputNumbers: inputNumbers,
	})
}
