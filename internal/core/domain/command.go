package domain

import "fmt"

// ParamControlRequest

type ParamControlRequest interface {
	ActorRequest
	ParamControlCommand() string
}

type ParamControlRequestMixIn struct {
	ActorRequestMixIn
}

func (r ParamControlRequestMixIn) ParamControlCommand() string {
	return fmt.Sprintf("%T", r)
}

// ParamControlResponse

type ParamControlResponse interface {
	ActorResponse
	ParamControlResponse() string
}

type ParamControlResponseMixIn struct {
	ActorResponse
}

func (r ParamControlResponseMixIn) ParamControlResponse() string {
	return fmt.Sprintf("%T", r)
}

// ParamControl commands

type ParamControlSetACChargeRequest struct {
	ParamControlRequestMixIn
	Enable bool
}

type ParamControlSetACChargeResponse struct {
	ParamControlResponseMixIn
	Changed bool
}

type ParamControlSetChargePriorityRequest struct {
	ParamControlRequestMixIn
	Enable bool
}

type ParamControlSetChargePriorityResponse struct {
	ParamControlResponseMixIn
	Changed bool
}

type ParamControlSetACChargePowerRequest struct {
	ParamControlRequestMixIn
	Percent uint
}

type ParamControlSetACChargePowerResponse struct {
	ParamControlResponseMixIn
	Percent uint
}

type ParamControlSetACChargeSoCLimitRequest struct {
	ParamControlRequestMixIn
	TargetSoC uint
}

type ParamControlSetACChargeSoCLimitResponse struct {
	ParamControlResponseMixIn
	TargetSoC uint
}

type ParamControlGetStateRequest struct {
	ParamControlRequestMixIn
}

type ParamControlGetStateResponse struct {
	ParamControlResponseMixIn
	ACCharge         bool
	ChargePriority   bool
	ACChargePowerPct float64
	ACChargeSoCLimit float64
}

// ensure interface compliance
var _ ParamControlRequest = (*ParamControlSetACChargeRequest)(nil)
