package port

import (
	"time"

	"github.com/berfenger/luxnews2mqtt/internal/core/domain"
	"github.com/berfenger/luxnews2mqtt/pkg/lxp_modbus"
)

// TelemetryGuard decides whether a polled snapshot is trustworthy enough to
// publish. Implementations are stateful: counter validation needs the last
// accepted baseline per field.
type TelemetryGuard interface {
	CheckRuntime(d *lxp_modbus.InverterRuntimeData) domain.TelemetryCheck
	CheckBattery(b *lxp_modbus.BatteryBankData) domain.TelemetryCheck
	CheckMidbox(m *lxp_modbus.MidboxRuntimeData) domain.TelemetryCheck
	CheckEnergy(e *lxp_modbus.InverterEnergyData, now time.Time) domain.EnergyCheck
}
