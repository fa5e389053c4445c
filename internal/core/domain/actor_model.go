package domain

import "github.com/berfenger/luxnews2mqtt/pkg/lxp_modbus"

const (
	ACTOR_ID_MASTER        = "master"
	ACTOR_ID_TRANSPORT     = "transport"
	ACTOR_ID_POLLER        = "poller"
	ACTOR_ID_MQTT          = "mqtt"
	ACTOR_ID_PARAM_CONTROL = "param_control"
	ACTOR_ID_HA_DISCOVERY  = "hadiscovery"
)

type GetDeviceInfoRequest struct {
	ActorRequestMixIn
}

type GetDeviceInfoResponse struct {
	ActorResponseMixIn
	Device *lxp_modbus.DeviceInfo
}

type GetRuntimeRequest struct {
	ActorRequestMixIn
}

type GetRuntimeResponse struct {
	ActorResponseMixIn
	Runtime *lxp_modbus.InverterRuntimeData
}

type GetEnergyRequest struct {
	ActorRequestMixIn
}

type GetEnergyResponse struct {
	ActorResponseMixIn
	Energy *lxp_modbus.InverterEnergyData
}

type GetBatteryRequest struct {
	ActorRequestMixIn
}

type GetBatteryResponse struct {
	ActorResponseMixIn
	Battery *lxp_modbus.BatteryBankData
}

type GetMidboxRequest struct {
	ActorRequestMixIn
}

type GetMidboxResponse struct {
	ActorResponseMixIn
	Midbox *lxp_modbus.MidboxRuntimeData
}

// GetTelemetryRequest bundles the per-tick reads in one transport round so the
// poller cannot interleave with a parameter write.
type GetTelemetryRequest struct {
	ActorRequestMixIn
	WithEnergy bool
}

type GetTelemetryResponse struct {
	ActorResponseMixIn
	Runtime *lxp_modbus.InverterRuntimeData
	Battery *lxp_modbus.BatteryBankData
	Midbox  *lxp_modbus.MidboxRuntimeData
	Energy  *lxp_modbus.InverterEnergyData

	// nil unless the transport is a local/cloud hybrid
	UsingLocalChannel *bool
}

type ReadNamedParamsRequest struct {
	ActorRequestMixIn
	Names []string
}

type ReadNamedParamsResponse struct {
	ActorResponseMixIn
	Values map[string]float64
}

type WriteNamedParamsRequest struct {
	ActorRequestMixIn
	Values map[string]any
}

type WriteNamedParamsResponse struct {
	ActorResponseMixIn
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	InputNumbers []GenericInputNumber
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
