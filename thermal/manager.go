package thermal

import "gopper/core"

// Manager ties the ADC sampler, the hotend and bed controllers, and the
// soft-PWM driver together the way the source firmware's
// manage_heater() does when called once per idle() iteration.
type Manager struct {
	Sampler *ADCSampler
	Hotend  *Controller
	Bed     *Controller

	HotendPWM *SoftPWMChannel
	BedPWM    *SoftPWMChannel
}

// NewManager wires the components together and registers a shutdown hook
// that forces both heater outputs off - this is what makes "fatal errors
// disable every heater output" hold regardless of which subsystem
// actually called TryShutdown.
func NewManager(sampler *ADCSampler, hotend, bed *Controller, hotendPWM, bedPWM *SoftPWMChannel) *Manager {
	m := &Manager{Sampler: sampler, Hotend: hotend, Bed: bed, HotendPWM: hotendPWM, BedPWM: bedPWM}
	core.RegisterShutdownHook(func(string) {
		m.HotendPWM.SetDuty(0)
		m.BedPWM.SetDuty(0)
	})
	return m
}

// Tick consumes the latest published raw ADC pair, if any, updates both
// controllers, and pushes fresh duty values to the soft-PWM channels.
// Call from idle().
func (m *Manager) Tick() {
	if core.IsShutdown() {
		return
	}
	pair, ok := m.Sampler.Consume()
	if !ok {
		return
	}
	now := core.GetTime()

	duty, fatal, reason := m.Hotend.Update(pair.Hotend, now)
	if fatal {
		core.TryShutdown(reason)
		return
	}
	m.HotendPWM.SetDuty(duty)

	duty, fatal, reason = m.Bed.Update(pair.Bed, now)
	if fatal {
		core.TryShutdown(reason)
		return
	}
	m.BedPWM.SetDuty(duty)
}
