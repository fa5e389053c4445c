package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/logger"
	"go.uber.org/zap"

	"github.com/berfenger/luxnews2mqtt/internal/core/domain"
	"github.com/berfenger/luxnews2mqtt/internal/util/actorutil"
	"github.com/berfenger/luxnews2mqtt/pkg/lxp_modbus"
)

const (
	TRANSPORT_ACTOR_ID = "transport"

	singleReadTimeout = 5 * time.Second
	telemetryTimeout  = 15 * time.Second
	writeTimeout      = 10 * time.Second
)

// TransportActor owns the RegisterTransport and serializes every register
// operation through it. Requests arriving while an operation is in flight are
// stashed, so a parameter write can never interleave with a poll cycle.
type TransportActor struct {
	behavior  actor.Behavior
	stash     *actorutil.Stash
	transport lxp_modbus.RegisterTransport
	logger    *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewTransportActor(transport lxp_modbus.RegisterTransport, logger *zap.Logger) *TransportActor {
	act := &TransportActor{
		transport: transport,
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		logger:    actorutil.ActorLogger("transport", logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *TransportActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *TransportActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("transport@starting started")
		if err := state.transport.Connect(context.Background()); err != nil {
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.transport.Disconnect()
	default:
		state.logger.Debug("transport@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *TransportActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("transport@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      TRANSPORT_ACTOR_ID,
			Healthy: state.transport.Connected(),
			State:   "idle",
		})
	case domain.GetDeviceInfoRequest:
		state.logger.Debug("transport@default: GetDeviceInfoRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getDeviceInfo),
			mapTaskResult[domain.GetDeviceInfoResponse](sender)).Recover(
			recoverTask(sender, func(err error) any {
				return domain.GetDeviceInfoResponse{ActorResponseMixIn: errorMixIn(err)}
			})).WithTimeout(singleReadTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingTransport)
	case domain.GetTelemetryRequest:
		state.logger.Debug("transport@default: GetTelemetryRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		withEnergy := msg.WithEnergy
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.GetTelemetryResponse, error) {
			return state.getTelemetry(withEnergy)
		}),
			mapTaskResult[domain.GetTelemetryResponse](sender)).Recover(
			recoverTask(sender, func(err error) any {
				return domain.GetTelemetryResponse{ActorResponseMixIn: errorMixIn(err)}
			})).WithTimeout(telemetryTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingTransport)
	case domain.GetRuntimeRequest:
		state.logger.Debug("transport@default: GetRuntimeRequest")
		sender := ctx.Sender()
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getRuntime),
			mapTaskResult[domain.GetRuntimeResponse](sender)).Recover(
			recoverTask(sender, func(err error) any {
				return domain.GetRuntimeResponse{ActorResponseMixIn: errorMixIn(err)}
			})).WithTimeout(singleReadTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingTransport)
	case domain.GetEnergyRequest:
		state.logger.Debug("transport@default: GetEnergyRequest")
		sender := ctx.Sender()
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getEnergy),
			mapTaskResult[domain.GetEnergyResponse](sender)).Recover(
			recoverTask(sender, func(err error) any {
				return domain.GetEnergyResponse{ActorResponseMixIn: errorMixIn(err)}
			})).WithTimeout(singleReadTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingTransport)
	case domain.GetBatteryRequest:
		state.logger.Debug("transport@default: GetBatteryRequest")
		sender := ctx.Sender()
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getBattery),
			mapTaskResult[domain.GetBatteryResponse](sender)).Recover(
			recoverTask(sender, func(err error) any {
				return domain.GetBatteryResponse{ActorResponseMixIn: errorMixIn(err)}
			})).WithTimeout(singleReadTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingTransport)
	case domain.GetMidboxRequest:
		state.logger.Debug("transport@default: GetMidboxRequest")
		sender := ctx.Sender()
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getMidbox),
			mapTaskResult[domain.GetMidboxResponse](sender)).Recover(
			recoverTask(sender, func(err error) any {
				return domain.GetMidboxResponse{ActorResponseMixIn: errorMixIn(err)}
			})).WithTimeout(singleReadTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingTransport)
	case domain.ReadNamedParamsRequest:
		state.logger.Debug("transport@default: ReadNamedParamsRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		names := msg.Names
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.ReadNamedParamsResponse, error) {
			return state.readNamedParams(names)
		}),
			mapTaskResult[domain.ReadNamedParamsResponse](sender)).Recover(
			recoverTask(sender, func(err error) any {
				return domain.ReadNamedParamsResponse{ActorResponseMixIn: errorMixIn(err)}
			})).WithTimeout(singleReadTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingTransport)
	case domain.WriteNamedParamsRequest:
		state.logger.Debug("transport@default: WriteNamedParamsRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		values := msg.Values
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, func() *domain.WriteNamedParamsResponse {
			a := state.writeNamedParams(values)
			return &a
		}),
			mapTaskResult[domain.WriteNamedParamsResponse](sender)).Recover(
			recoverTask(sender, func(err error) any {
				return domain.WriteNamedParamsResponse{ActorResponseMixIn: errorMixIn(err)}
			})).WithTimeout(writeTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingTransport)
	case *actor.Stopping:
		state.transport.Disconnect()
	default:
		state.logger.Debug("transport@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *TransportActor) WaitingTransport(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("transport@WaitingTransport backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.transport.Disconnect()
	default:
		state.logger.Debug("transport@WaitingTransport stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *TransportActor) getDeviceInfo() (*domain.GetDeviceInfoResponse, error) {
	info := a.transport.Discover(context.Background())
	return &domain.GetDeviceInfoResponse{
		Device: info,
	}, nil
}

func (a *TransportActor) getTelemetry(withEnergy bool) (*domain.GetTelemetryResponse, error) {
	ctx := context.Background()

	runtime, err := a.transport.ReadRuntime(ctx)
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	battery, err := a.transport.ReadBattery(ctx)
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	midbox, err := a.transport.ReadMidbox(ctx)
	if err != nil {
		logger.Error(err)
		return nil, err
	}

	resp := &domain.GetTelemetryResponse{
		Runtime: runtime,
		Battery: battery,
		Midbox:  midbox,
	}
	if withEnergy {
		energy, err := a.transport.ReadEnergy(ctx)
		if err != nil {
			logger.Error(err)
			return nil, err
		}
		resp.Energy = energy
	}
	if hybrid, ok := a.transport.(*lxp_modbus.HybridTransport); ok {
		local := hybrid.UsingLocal()
		resp.UsingLocalChannel = &local
	}
	return resp, nil
}

func (a *TransportActor) getRuntime() (*domain.GetRuntimeResponse, error) {
	runtime, err := a.transport.ReadRuntime(context.Background())
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.GetRuntimeResponse{
		Runtime: runtime,
	}, nil
}

func (a *TransportActor) getEnergy() (*domain.GetEnergyResponse, error) {
	energy, err := a.transport.ReadEnergy(context.Background())
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.GetEnergyResponse{
		Energy: energy,
	}, nil
}

func (a *TransportActor) getBattery() (*domain.GetBatteryResponse, error) {
	battery, err := a.transport.ReadBattery(context.Background())
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.GetBatteryResponse{
		Battery: battery,
	}, nil
}

func (a *TransportActor) getMidbox() (*domain.GetMidboxResponse, error) {
	midbox, err := a.transport.ReadMidbox(context.Background())
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.GetMidboxResponse{
		Midbox: midbox,
	}, nil
}

func (a *TransportActor) readNamedParams(names []string) (*domain.ReadNamedParamsResponse, error) {
	values, err := a.transport.ReadNamedParameters(context.Background(), names...)
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.ReadNamedParamsResponse{
		Values: values,
	}, nil
}

func (a *TransportActor) writeNamedParams(values map[string]any) domain.WriteNamedParamsResponse {
	if err := a.transport.WriteNamedParameters(context.Background(), values); err != nil {
		logger.Error(err)
		return domain.WriteNamedParamsResponse{
			ActorResponseMixIn: errorMixIn(err),
		}
	}
	return domain.WriteNamedParamsResponse{}
}

func errorMixIn(err error) domain.ActorResponseMixIn {
	return domain.ActorResponseMixIn{
		ResponseError: err,
	}
}

func recoverTask(sender *actor.PID, build func(error) any) func(error) backgroundTaskResult {
	return func(err error) backgroundTaskResult {
		return backgroundTaskResult{
			message: build(err),
			replyTo: sender,
		}
	}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
