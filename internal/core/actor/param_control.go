package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/luxnews2mqtt/internal/config"
	"github.com/berfenger/luxnews2mqtt/internal/core/domain"
	"github.com/berfenger/luxnews2mqtt/internal/core/events"
	. "github.com/berfenger/luxnews2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const (
	paramACChargeEnable       = "ac_charge_enable"
	paramChargePriorityEnable = "charge_priority_enable"
	paramACChargePowerPct     = "ac_charge_power_pct"
	paramACChargeSoCLimit     = "ac_charge_soc_limit"
)

var paramControlParamNames = []string{
	paramACChargeEnable,
	paramChargePriorityEnable,
	paramACChargePowerPct,
	paramACChargeSoCLimit,
}

// ParamControlActor owns the writable inverter parameters. Every write goes
// through the transport actor and is confirmed by reading the registers back,
// so the published switch/number states always reflect what the inverter
// actually accepted, not what was asked for.
type ParamControlActor struct {
	ActorWithStates
	stash          *Stash
	transportActor *actor.PID
	config         *config.Config
	eventStream    *eventstream.EventStream

	acCharge         bool
	chargePriority   bool
	acChargePowerPct float64
	acChargeSoCLimit float64

	logger *zap.Logger
}

func NewParamControlActor(config *config.Config, transportActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *ParamControlActor {
	act := &ParamControlActor{
		config:         config,
		transportActor: transportActor,
		stash:          &Stash{},
		logger:         ActorLogger(domain.ACTOR_ID_PARAM_CONTROL, logger),
		eventStream:    eventStream,
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(PCStartingState{
		actor: act,
	})
	return act
}

func (state *ParamControlActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type PCStartingState struct {
	ActorState
	actor *ParamControlActor
}

func (state PCStartingState) Name() string {
	return "starting"
}

func (state PCStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("param_control@starting started")

		state.actor.requestReadback(ctx)
		state.actor.Become(PCWaitingStateState{
			actor: state.actor,
		})
	case *actor.Restarting:
	default:
		state.actor.logger.Debug("param_control@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Waiting initial state

type PCWaitingStateState struct {
	ActorState
	actor *ParamControlActor
}

func (state PCWaitingStateState) Name() string {
	return "waitingState"
}

func (state PCWaitingStateState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ReadNamedParamsResponse:
		if msg.HasResponseError() {
			state.actor.logger.Error("param_control@waitingState ReadNamedParamsResponse error", zap.Error(msg.GetResponseError()))
			panic(msg.GetResponseError())
		}
		state.actor.logger.Debug("param_control@waitingState ReadNamedParamsResponse")
		state.actor.applyValues(msg.Values)
		state.actor.publishState()
		state.actor.Become(PCIdleState{
			actor: state.actor,
		})
		state.actor.stash.UnstashAll(ctx)
	default:
		state.actor.logger.Debug("param_control@waitingState: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Idle state

type PCIdleState struct {
	ActorState
	actor *ParamControlActor
}

func (state PCIdleState) Name() string {
	return "idle"
}

func (state PCIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("param_control@idle: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_PARAM_CONTROL,
			Healthy: true,
			State:   state.Name(),
		})
	case domain.ParamControlRequest:
		replyTo := ForRequest(msg).ReplyTo(ctx)
		switch cmd := msg.(type) {
		case domain.ParamControlGetStateRequest:
			state.actor.logger.Debug("param_control@idle: cmd getState")
			if replyTo != nil {
				ctx.Send(replyTo, state.actor.stateResponse())
			}
		case domain.ParamControlSetACChargeRequest:
			state.actor.logger.Sugar().Debugf("param_control@idle: cmd acCharge %t", cmd.Enable)
			state.actor.beginWrite(ctx, cmd, map[string]any{paramACChargeEnable: cmd.Enable}, replyTo)
		case domain.ParamControlSetChargePriorityRequest:
			state.actor.logger.Sugar().Debugf("param_control@idle: cmd chargePriority %t", cmd.Enable)
			state.actor.beginWrite(ctx, cmd, map[string]any{paramChargePriorityEnable: cmd.Enable}, replyTo)
		case domain.ParamControlSetACChargePowerRequest:
			state.actor.logger.Sugar().Debugf("param_control@idle: cmd acChargePower %d%%", cmd.Percent)
			state.actor.beginWrite(ctx, cmd, map[string]any{paramACChargePowerPct: int(cmd.Percent)}, replyTo)
		case domain.ParamControlSetACChargeSoCLimitRequest:
			state.actor.logger.Sugar().Debugf("param_control@idle: cmd acChargeSoCLimit %d", cmd.TargetSoC)
			state.actor.beginWrite(ctx, cmd, map[string]any{paramACChargeSoCLimit: int(cmd.TargetSoC)}, replyTo)
		}
	default:
		state.actor.logger.Debug("param_control@idle: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Await write state

type PCAwaitWriteState struct {
	ActorState
	actor   *ParamControlActor
	req     domain.ParamControlRequest
	replyTo *actor.PID
}

func (state PCAwaitWriteState) Name() string {
	return "awaitWrite"
}

func (state PCAwaitWriteState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.WriteNamedParamsResponse:
		if msg.HasResponseError() {
			state.actor.logger.Error("param_control@awaitWrite: WriteNamedParamsResponse error", zap.Error(msg.GetResponseError()))
			if state.replyTo != nil {
				ctx.Send(state.replyTo, errorParamResponse(state.req, msg.GetResponseError()))
			}
			state.actor.UnbecomeStacked()
			state.actor.stash.UnstashAll(ctx)
			return
		}
		state.actor.logger.Debug("param_control@awaitWrite: write accepted, reading back")
		state.actor.requestReadback(ctx)
		state.actor.UnbecomeStacked()
		state.actor.BecomeStacked(PCAwaitReadbackState{
			actor:   state.actor,
			req:     state.req,
			replyTo: state.replyTo,
		})
	default:
		state.actor.logger.Debug("param_control@awaitWrite: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Await readback state

type PCAwaitReadbackState struct {
	ActorState
	actor   *ParamControlActor
	req     domain.ParamControlRequest
	replyTo *actor.PID
}

func (state PCAwaitReadbackState) Name() string {
	return "awaitReadback"
}

func (state PCAwaitReadbackState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ReadNamedParamsResponse:
		if msg.HasResponseError() {
			state.actor.logger.Error("param_control@awaitReadback: ReadNamedParamsResponse error", zap.Error(msg.GetResponseError()))
			if state.replyTo != nil {
				ctx.Send(state.replyTo, errorParamResponse(state.req, msg.GetResponseError()))
			}
			state.actor.UnbecomeStacked()
			state.actor.stash.UnstashAll(ctx)
			return
		}
		resp := state.actor.applyReadback(state.req, msg.Values)
		if state.replyTo != nil {
			ctx.Send(state.replyTo, resp)
		}
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	default:
		state.actor.logger.Debug("param_control@awaitReadback: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Other actor function helpers

func (a *ParamControlActor) beginWrite(ctx actor.Context, req domain.ParamControlRequest, values map[string]any, replyTo *actor.PID) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(a.transportActor,
		domain.WriteNamedParamsRequest{Values: values}, 15*time.Second),
		func(err error) any {
			return domain.WriteNamedParamsResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
	a.BecomeStacked(PCAwaitWriteState{
		actor:   a,
		req:     req,
		replyTo: replyTo,
	})
}

func (a *ParamControlActor) requestReadback(ctx actor.Context) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(a.transportActor,
		domain.ReadNamedParamsRequest{Names: paramControlParamNames}, 10*time.Second),
		func(err error) any {
			return domain.ReadNamedParamsResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
}

func (a *ParamControlActor) applyValues(values map[string]float64) {
	if v, ok := values[paramACChargeEnable]; ok {
		a.acCharge = v != 0
	}
	if v, ok := values[paramChargePriorityEnable]; ok {
		a.chargePriority = v != 0
	}
	if v, ok := values[paramACChargePowerPct]; ok {
		a.acChargePowerPct = v
	}
	if v, ok := values[paramACChargeSoCLimit]; ok {
		a.acChargeSoCLimit = v
	}
}

// applyReadback folds the confirmed register values into the cached state,
// republishes it and builds the typed response for the original command.
func (a *ParamControlActor) applyReadback(req domain.ParamControlRequest, values map[string]float64) any {
	prevACCharge := a.acCharge
	prevChargePriority := a.chargePriority

	a.applyValues(values)
	a.publishState()

	switch req.(type) {
	case domain.ParamControlSetACChargeRequest:
		return domain.ParamControlSetACChargeResponse{
			ParamControlResponseMixIn: okParamResponse(),
			Changed:                   prevACCharge != a.acCharge,
		}
	case domain.ParamControlSetChargePriorityRequest:
		return domain.ParamControlSetChargePriorityResponse{
			ParamControlResponseMixIn: okParamResponse(),
			Changed:                   prevChargePriority != a.chargePriority,
		}
	case domain.ParamControlSetACChargePowerRequest:
		return domain.ParamControlSetACChargePowerResponse{
			ParamControlResponseMixIn: okParamResponse(),
			Percent:                   uint(a.acChargePowerPct),
		}
	case domain.ParamControlSetACChargeSoCLimitRequest:
		return domain.ParamControlSetACChargeSoCLimitResponse{
			ParamControlResponseMixIn: okParamResponse(),
			TargetSoC:                 uint(a.acChargeSoCLimit),
		}
	default:
		return a.stateResponse()
	}
}

func (a *ParamControlActor) stateResponse() domain.ParamControlGetStateResponse {
	return domain.ParamControlGetStateResponse{
		ParamControlResponseMixIn: okParamResponse(),
		ACCharge:                  a.acCharge,
		ChargePriority:            a.chargePriority,
		ACChargePowerPct:          a.acChargePowerPct,
		ACChargeSoCLimit:          a.acChargeSoCLimit,
	}
}

func (a *ParamControlActor) publishState() {
	for _, ev := range events.ParamControlSwitchesUpdateEvents(a.acCharge, a.chargePriority) {
		a.eventStream.Publish(ev)
	}
	a.eventStream.Publish(events.ParamControlACChargePowerUpdateEvent(a.acChargePowerPct))
	a.eventStream.Publish(events.ParamControlACChargeSoCLimitUpdateEvent(a.acChargeSoCLimit))
}

func okParamResponse() domain.ParamControlResponseMixIn {
	return domain.ParamControlResponseMixIn{
		ActorResponse: domain.ActorResponseMixIn{},
	}
}

func errorParamResponse(req domain.ParamControlRequest, err error) any {
	mixin := domain.ParamControlResponseMixIn{
		ActorResponse: domain.ActorResponseMixIn{
			ResponseError: err,
		},
	}
	switch req.(type) {
	case domain.ParamControlSetACChargeRequest:
		return domain.ParamControlSetACChargeResponse{ParamControlResponseMixIn: mixin}
	case domain.ParamControlSetChargePriorityRequest:
		return domain.ParamControlSetChargePriorityResponse{ParamControlResponseMixIn: mixin}
	case domain.ParamControlSetACChargePowerRequest:
		return domain.ParamControlSetACChargePowerResponse{ParamControlResponseMixIn: mixin}
	case domain.ParamControlSetACChargeSoCLimitRequest:
		return domain.ParamControlSetACChargeSoCLimitResponse{ParamControlResponseMixIn: mixin}
	default:
		return domain.ParamControlGetStateResponse{ParamControlResponseMixIn: mixin}
	}
}
