package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/berfenger/luxnews2mqtt/internal/core/domain"
	"github.com/berfenger/luxnews2mqtt/internal/core/port"
	"github.com/berfenger/luxnews2mqtt/pkg/lxp_modbus"
)

// DefaultTelemetryGuard filters polled snapshots before they reach MQTT:
// register-level corruption canaries on runtime data, wholesale counter
// validation on energy data. One guard per device session; the validator
// baselines must not be shared between devices.
type DefaultTelemetryGuard struct {
	store  *lxp_modbus.ValidatorStore
	Logger *zap.Logger
}

func NewTelemetryGuard(logger *zap.Logger) *DefaultTelemetryGuard {
	return &DefaultTelemetryGuard{
		store:  lxp_modbus.NewValidatorStore(),
		Logger: logger,
	}
}

func (g *DefaultTelemetryGuard) CheckRuntime(d *lxp_modbus.InverterRuntimeData) domain.TelemetryCheck {
	if d == nil {
		return domain.TelemetryCheck{OK: true}
	}
	return g.check("runtime", d.Corrupt())
}

func (g *DefaultTelemetryGuard) CheckBattery(b *lxp_modbus.BatteryBankData) domain.TelemetryCheck {
	if b == nil {
		return domain.TelemetryCheck{OK: true}
	}
	return g.check("battery", b.Corrupt())
}

func (g *DefaultTelemetryGuard) CheckMidbox(m *lxp_modbus.MidboxRuntimeData) domain.TelemetryCheck {
	if m == nil {
		return domain.TelemetryCheck{OK: true}
	}
	return g.check("midbox", m.Corrupt())
}

func (g *DefaultTelemetryGuard) check(kind string, reasons []lxp_modbus.CorruptionReason) domain.TelemetryCheck {
	if len(reasons) > 0 {
		g.Logger.Warn("telemetry_guard: snapshot discarded",
			zap.String("kind", kind), zap.Int("failed_checks", len(reasons)),
			zap.Any("reasons", reasons))
		return domain.TelemetryCheck{OK: false, Reasons: reasons}
	}
	return domain.TelemetryCheck{OK: true}
}

func (g *DefaultTelemetryGuard) CheckEnergy(e *lxp_modbus.InverterEnergyData, now time.Time) domain.EnergyCheck {
	if e == nil {
		return domain.EnergyCheck{Accepted: true}
	}
	result := lxp_modbus.ValidateEnergySnapshot(g.store, e, now)
	check := domain.EnergyCheck{
		Accepted: result.Accepted,
		Verdicts: result.Verdicts,
	}
	if !result.Accepted {
		g.Logger.Warn("telemetry_guard: energy snapshot rejected",
			zap.Strings("rejected_fields", check.RejectedFields()))
	} else if healed := check.SelfHealedFields(); len(healed) > 0 {
		g.Logger.Info("telemetry_guard: counter baseline re-adopted after persistent reset",
			zap.Strings("fields", healed))
	}
	return check
}

// ensure interface compliance
var _ port.TelemetryGuard = (*DefaultTelemetryGuard)(nil)
