package thermal

import "gopper/core"

// RunawayState is a heater's thermal-runaway watchdog state.
type RunawayState uint8

const (
	RunawayInactive RunawayState = iota
	RunawayFirstHeating
	RunawayStable
	RunawayRunaway
)

// HeaterConfig holds one heater's calibration table, safety bounds, and
// control-loop tuning. Leaving PID at its zero value selects bang-bang
// control, per spec 4.5's "bang-bang or PID as configured."
type HeaterConfig struct {
	Table *Table

	MinTempC float64 // preheating floor; duty forced to 0 below this
	MaxTempC float64 // safety ceiling; duty forced to 0 at or above this

	PID        [3]float64 // Kp, Ki, Kd; all-zero selects bang-bang
	Hysteresis float64    // bang-bang deadband, degrees C

	WatchMarginC       float64 // SetTarget only arms watch-rise if current is below target by this much
	WatchIncreaseC     float64 // minimum rise required within WatchPeriodTicks
	WatchPeriodTicks   uint32
	RunawayHysteresisC float64
	RunawayPeriodTicks uint32
}

// Controller is the non-ISR side temperature control loop for one
// heater: it converts a raw ADC reading to a calibrated temperature,
// enforces min/max and thermal-runaway safety, and computes a duty
// value. With a nonzero target, a raw reading outside the table's
// calibrated ADC span is fatal. One Controller instance serves either the
// hotend or the bed; the bed's simpler "off outside [min,max]" behavior
// falls out of the same Update by giving it an all-zero PID (bang-bang)
// and letting the min/max guard do the rest.
type Controller struct {
	Config HeaterConfig

	Target  float64
	Current float64
	trend   float64
	hasPrev bool

	heating bool // bang-bang state

	pidIntegral float64
	pidLastErr  float64
	pidLastTick uint32
	pidHasPrev  bool

	watching      bool
	watchStartT   float64
	watchNextTick uint32

	runawayState    RunawayState
	runawayDeadline uint32
}

// SetTarget changes the heater's setpoint, arms or disarms the
// watch-rise check, and restarts the thermal-runaway state machine -
// any change of target restarts it, per spec 4.5.
func (c *Controller) SetTarget(tempC float64, now uint32) {
	c.Target = tempC
	c.heating = false
	c.pidHasPrev = false
	c.watching = false

	if tempC > 0 {
		c.runawayState = RunawayFirstHeating
		if c.hasPrev && c.Current < tempC-c.Config.WatchMarginC {
			c.watching = true
			c.watchStartT = c.Current
			c.watchNextTick = now + c.Config.WatchPeriodTicks
		}
	} else {
		c.runawayState = RunawayInactive
	}
	core.RecordTiming(core.EvtThermalState, 0, now, uint32(c.runawayState), 0)
}

// Update converts raw to a calibrated temperature, enforces safety, and
// returns the heater duty the soft-PWM driver should apply. fatal
// indicates the caller must call core.TryShutdown.
func (c *Controller) Update(raw int32, now uint32) (duty uint8, fatal bool, reason string) {
	temp := c.Config.Table.ToTempC(raw)

	if c.Target > 0 {
		pts := c.Config.Table.points
		if len(pts) == 0 || !inRange(raw, pts[0].ADC, pts[len(pts)-1].ADC) {
			return 0, true, "temperature out of calibrated range"
		}
	}

	if c.hasPrev {
		c.trend = c.trend*0.9 + (temp-c.Current)*0.1
	}
	c.Current = temp
	c.hasPrev = true

	if c.Target == 0 {
		c.heating = false
		return 0, false, ""
	}

	if temp <= c.Config.MinTempC || temp >= c.Config.MaxTempC {
		duty = 0
	} else if c.Config.PID[0] == 0 && c.Config.PID[1] == 0 && c.Config.PID[2] == 0 {
		duty = c.bangBang(temp)
	} else {
		duty = c.pid(temp, now)
	}

	if c.checkWatchRise(temp, now) {
		return 0, true, "watch-rise: no temperature rise within watch period"
	}
	if c.checkRunaway(temp, now) {
		return 0, true, "thermal runaway"
	}

	return duty, false, ""
}

func (c *Controller) bangBang(temp float64) uint8 {
	if c.heating {
		if temp >= c.Target+c.Config.Hysteresis {
			c.heating = false
		}
	} else if temp <= c.Target-c.Config.Hysteresis {
		c.heating = true
	}
	if c.heating {
		return 255
	}
	return 0
}

func (c *Controller) pid(temp float64, now uint32) uint8 {
	dt := 1.0
	if c.pidHasPrev {
		dt = float64(core.TimerToUS(now-c.pidLastTick)) / 1e6
		if dt <= 0 {
			dt = 1e-3
		}
	}
	err := c.Target - temp

	c.pidIntegral += err * dt
	maxIntegral := 255.0
	if c.Config.PID[1] != 0 {
		maxIntegral = 255.0 / c.Config.PID[1]
	}
	if c.pidIntegral > maxIntegral {
		c.pidIntegral = maxIntegral
	} else if c.pidIntegral < -maxIntegral {
		c.pidIntegral = -maxIntegral
	}

	deriv := 0.0
	if c.pidHasPrev {
		deriv = (err - c.pidLastErr) / dt
	}

	out := c.Config.PID[0]*err + c.Config.PID[1]*c.pidIntegral + c.Config.PID[2]*deriv
	c.pidLastErr = err
	c.pidLastTick = now
	c.pidHasPrev = true

	if out < 0 {
		out = 0
	}
	if out > 255 {
		out = 255
	}
	return uint8(out)
}

// checkWatchRise reports whether the watch-rise sanity check has failed:
// the watch period elapsed without the required temperature rise. A
// successful check rearms for another period.
func (c *Controller) checkWatchRise(temp float64, now uint32) bool {
	if !c.watching {
		return false
	}
	if int32(now-c.watchNextTick) < 0 {
		return false
	}
	if temp-c.watchStartT >= c.Config.WatchIncreaseC {
		c.watchStartT = temp
		c.watchNextTick = now + c.Config.WatchPeriodTicks
		return false
	}
	return true
}

// checkRunaway advances the per-heater thermal-runaway state machine and
// reports whether it just transitioned into Runaway.
func (c *Controller) checkRunaway(temp float64, now uint32) bool {
	switch c.runawayState {
	case RunawayFirstHeating:
		if temp >= c.Target {
			c.runawayState = RunawayStable
			c.runawayDeadline = now + c.Config.RunawayPeriodTicks
			core.RecordTiming(core.EvtThermalState, 0, now, uint32(RunawayStable), 0)
		}
	case RunawayStable:
		if temp >= c.Target-c.Config.RunawayHysteresisC {
			c.runawayDeadline = now + c.Config.RunawayPeriodTicks
		} else if int32(now-c.runawayDeadline) >= 0 {
			c.runawayState = RunawayRunaway
			core.RecordTiming(core.EvtThermalState, 0, now, uint32(RunawayRunaway), 0)
			return true
		}
	case RunawayRunaway:
		return true
	}
	return false
}

// IsColdExtrude reports whether extrusion should be refused because the
// hotend has not reached min_extrude_temp yet.
func (c *Controller) IsColdExtrude(minExtrudeTempC float64) bool {
	return c.Current < minExtrudeTempC
}
