package thermal

import (
	"sync/atomic"

	"gopper/core"
)

// PWMMode selects between the two soft-PWM output strategies the source
// firmware compiles in one or the other of. Per the open question in the
// specification, plain-counter is the default; uniform-distribution is
// kept as an explicit, selectable alternative rather than guessed at.
type PWMMode uint8

const (
	PWMModePlainCounter PWMMode = iota
	PWMModeUniformDistribution
)

// SoftPWMChannel is one heater output driven by toggling a digital pin
// from the shared timer tick rather than by a PWM peripheral. Duty is
// the only field the foreground writes and the tick reads, so it alone
// needs to be atomic; everything else belongs to the tick side only.
type SoftPWMChannel struct {
	Pin  core.GPIOPin
	Duty atomic.Uint32 // 0..255

	counter  uint8
	accumulator uint32 // uniform-distribution mode's running remainder
}

// SetDuty updates the channel's commanded duty cycle. Safe to call from
// the foreground while the tick is running concurrently.
func (c *SoftPWMChannel) SetDuty(duty uint8) {
	c.Duty.Store(uint32(duty))
}

// SoftPWM drives a set of channels from one shared periodic timer tick,
// the same tick the ADC sampler runs on in the source firmware.
type SoftPWM struct {
	Mode         PWMMode
	Channels     []*SoftPWMChannel
	TickInterval uint32

	timer core.Timer
}

// NewSoftPWM returns a driver for channels, ticking at tickInterval
// ticks, in mode.
func NewSoftPWM(mode PWMMode, tickInterval uint32, channels ...*SoftPWMChannel) *SoftPWM {
	p := &SoftPWM{Mode: mode, Channels: channels, TickInterval: tickInterval}
	p.timer.Handler = p.onTick
	return p
}

// Start arms the driver's timer against the shared system clock.
func (p *SoftPWM) Start() {
	p.timer.WakeTime = core.GetTime() + p.TickInterval
	core.ScheduleTimer(&p.timer)
}

func (p *SoftPWM) onTick(t *core.Timer) uint8 {
	drv := core.MustGPIO()
	for _, ch := range p.Channels {
		duty := ch.Duty.Load()
		var on bool
		switch p.Mode {
		case PWMModeUniformDistribution:
			ch.accumulator += duty
			if ch.accumulator >= 256 {
				ch.accumulator -= 256
				on = true
			}
		default:
			ch.counter++
			on = uint32(ch.counter) < duty
		}
		_ = drv.SetPin(ch.Pin, on)
	}
	t.WakeTime += p.TickInterval
	return core.SF_RESCHEDULE
}
