package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/luxnews2mqtt/internal/config"
	"github.com/berfenger/luxnews2mqtt/internal/core/domain"
	"github.com/berfenger/luxnews2mqtt/internal/core/events"
	"github.com/berfenger/luxnews2mqtt/internal/core/port"
	. "github.com/berfenger/luxnews2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// PollerActor drives the telemetry cycle: every tick it asks the transport
// actor for a bundled snapshot, runs it through the guard and publishes the
// surviving values to the event stream. Energy registers are read every
// energyTicks cycles only, they move slowly and cost a full register block.
type PollerActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	transportActor *actor.PID
	config         *config.Config
	eventStream    *eventstream.EventStream
	guard          port.TelemetryGuard

	currentEnergyTick uint
	energyTicks       uint

	logger *zap.Logger
}

type pollTick struct {
}

func NewPollerActor(config *config.Config, transportActor *actor.PID, eventStream *eventstream.EventStream,
	guard port.TelemetryGuard, logger *zap.Logger) *PollerActor {
	energyTicks := uint(config.MonitorConfig.EnergyPollIntervalTicks)
	act := &PollerActor{
		config:         config,
		transportActor: transportActor,
		behavior:       actor.NewBehavior(),
		stash:          &Stash{},
		logger:         ActorLogger(domain.ACTOR_ID_POLLER, logger),
		eventStream:    eventStream,
		guard:          guard,
		// first cycle carries energy
		currentEnergyTick: energyTicks,
		energyTicks:       energyTicks,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *PollerActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PollerActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("poller@starting started")

		if state.config.MonitorConfig.PollIntervalMillis > 0 {
			state.scheduler = scheduler.NewTimerScheduler(ctx)
			state.scheduler.RequestOnce(time.Duration(state.config.MonitorConfig.PollIntervalMillis)*time.Millisecond, ctx.Self(), pollTick{})
		}

		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.transportActor, domain.GetDeviceInfoRequest{}, 10*time.Second), func(err error) any {
			return domain.GetDeviceInfoResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		state.behavior.Become(state.WaitingInfoReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("poller@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) WaitingInfoReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetDeviceInfoResponse:
		if msg.HasResponseError() {
			state.logger.Error("poller@waitingInfo GetDeviceInfoResponse", zap.Error(msg.GetResponseError()))
			state.behavior.Become(state.DefaultReceive)
			state.stash.UnstashAll(ctx)
			return
		}
		state.logger.Info("poller: device discovered",
			zap.String("serial", msg.Device.Serial), zap.String("model", msg.Device.Model),
			zap.String("firmware", msg.Device.FirmwareVersion))
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("poller@waitingInfo: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("poller@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_POLLER,
			Healthy: true,
			State:   "idle",
		})
	case pollTick:
		state.logger.Debug("poller@default tick")

		withEnergy := false
		if state.currentEnergyTick >= state.energyTicks {
			state.currentEnergyTick = 0
			withEnergy = true
		} else {
			state.currentEnergyTick++
		}

		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.transportActor, domain.GetTelemetryRequest{WithEnergy: withEnergy}, 20*time.Second), func(err error) any {
			return domain.GetTelemetryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})

		// schedule next tick
		state.scheduler.RequestOnce(time.Duration(state.config.MonitorConfig.PollIntervalMillis)*time.Millisecond, ctx.Self(), pollTick{})
		state.behavior.BecomeStacked(state.WaitingTelemetryReceive)
	default:
		state.logger.Debug("poller@default: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) WaitingTelemetryReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetTelemetryResponse:
		if msg.HasResponseError() {
			state.logger.Error("poller@waiting GetTelemetryResponse error", zap.Error(msg.GetResponseError()))
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
			return
		}
		state.logger.Debug("poller@waiting GetTelemetryResponse")

		state.publishTelemetry(msg)

		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("poller@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) publishTelemetry(msg domain.GetTelemetryResponse) {
	if msg.UsingLocalChannel != nil {
		state.eventStream.Publish(events.ActiveChannelUpdateEvent(*msg.UsingLocalChannel))
	}

	// Runtime
	if msg.Runtime != nil {
		check := state.guard.CheckRuntime(msg.Runtime)
		if check.OK {
			for _, ev := range events.RuntimeToUpdateEvents(msg.Runtime) {
				state.eventStream.Publish(ev)
			}
			state.eventStream.Publish(events.IntegrityUpdateEvent(domain.SENSOR_ID_RUNTIME_INTEGRITY, "valid"))
		} else {
			state.logger.Warn("poller: runtime snapshot dropped", zap.Int("failed_checks", len(check.Reasons)))
			state.eventStream.Publish(events.CorruptIntegrityUpdateEvent(domain.SENSOR_ID_RUNTIME_INTEGRITY, check.Reasons))
		}
	}

	// Battery bank
	if msg.Battery != nil {
		check := state.guard.CheckBattery(msg.Battery)
		if check.OK {
			for _, ev := range events.BatteryToUpdateEvents(msg.Battery) {
				state.eventStream.Publish(ev)
			}
			state.eventStream.Publish(events.IntegrityUpdateEvent(domain.SENSOR_ID_BATTERY_INTEGRITY, "valid"))
		} else {
			state.logger.Warn("poller: battery snapshot dropped", zap.Int("failed_checks", len(check.Reasons)))
			state.eventStream.Publish(events.CorruptIntegrityUpdateEvent(domain.SENSOR_ID_BATTERY_INTEGRITY, check.Reasons))
		}
	}

	// Midbox
	if msg.Midbox != nil {
		check := state.guard.CheckMidbox(msg.Midbox)
		if check.OK {
			for _, ev := range events.MidboxToUpdateEvents(msg.Midbox) {
				state.eventStream.Publish(ev)
			}
		} else {
			state.logger.Warn("poller: midbox snapshot dropped", zap.Int("failed_checks", len(check.Reasons)))
		}
	}

	// Energy counters
	if msg.Energy != nil {
		check := state.guard.CheckEnergy(msg.Energy, time.Now())
		if check.Accepted {
			for _, ev := range events.EnergyToUpdateEvents(msg.Energy) {
				state.eventStream.Publish(ev)
			}
			if healed := check.SelfHealedFields(); len(healed) > 0 {
				state.eventStream.Publish(events.IntegrityUpdateEvent(domain.SENSOR_ID_ENERGY_INTEGRITY,
					fmt.Sprintf("self-healed (%d fields)", len(healed))))
			} else {
				state.eventStream.Publish(events.IntegrityUpdateEvent(domain.SENSOR_ID_ENERGY_INTEGRITY, "valid"))
			}
		} else {
			rejected := check.RejectedFields()
			state.logger.Warn("poller: energy snapshot rejected", zap.Strings("fields", rejected))
			state.eventStream.Publish(events.IntegrityUpdateEvent(domain.SENSOR_ID_ENERGY_INTEGRITY,
				fmt.Sprintf("rejected (%d fields)", len(rejected))))
		}
	}
}
