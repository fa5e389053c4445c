package domain

import "github.com/berfenger/luxnews2mqtt/pkg/lxp_modbus"

// TelemetryCheck is the outcome of the corruption canaries over one runtime,
// battery or midbox snapshot.
type TelemetryCheck struct {
	OK      bool
	Reasons []lxp_modbus.CorruptionReason
}

// EnergyCheck is the wholesale verdict over one energy snapshot.
type EnergyCheck struct {
	Accepted bool
	Verdicts map[string]lxp_modbus.Verdict
}

func (c EnergyCheck) RejectedFields() []string {
	return c.fieldsWith(lxp_modbus.VerdictRejected)
}

func (c EnergyCheck) SelfHealedFields() []string {
	return c.fieldsWith(lxp_modbus.VerdictSelfHealed)
}

func (c EnergyCheck) fieldsWith(v lxp_modbus.Verdict) []string {
	var fields []string
	for field, verdict := range c.Verdicts {
		if verdict == v {
			fields = append(fields, field)
		}
	}
	return fields
}
