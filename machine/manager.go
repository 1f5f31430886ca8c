// Package machine wires the planner, thermal, stepper, and persisted
// configuration packages together into one running firmware image, the
// way standalone/manager.go wires up the teacher's equivalent components.
// It is the outermost assembly layer: spec.md itself has no [MODULE]
// named "Manager", but §5's description of the foreground loop
// (command processing, block admission, manage_heater, idle()) has to
// live somewhere, and this is where the teacher puts it.
package machine

import (
	"errors"

	"gopper/config"
	"gopper/core"
	"gopper/gcode"
	"gopper/kinematics"
	"gopper/planner"
	"gopper/stepper"
	"gopper/thermal"
)

// Manager owns one machine's worth of wired components and runs the
// cooperative foreground loop spec 5 describes: parse a line, execute
// it, service the heater manager, repeat.
type Manager struct {
	Config *config.MachineConfig

	Ring       *planner.Ring
	Builder    *planner.Builder
	Kinematics *kinematics.Cartesian
	Executor   *stepper.Executor
	Thermal    *thermal.Manager
	Parser     *gcode.Parser
	Interp     *gcode.Interpreter

	outbox []string

	running bool
}

// New builds a Manager from cfg and the hardware pin assignment pins,
// wiring every component's cross-references (Ring.Idle services the
// heater manager, M112 calls the executor's Abort, shutdown hooks force
// the heaters off) the way spec 5's suspension-point and ordering rules
// require.
func New(cfg *config.MachineConfig, pins [planner.NAxes]stepper.AxisPin, hotendPin, bedPin core.ADCPin, hotendOut, bedOut core.GPIOPin) (*Manager, error) {
	ring, err := planner.NewRing(16)
	if err != nil {
		return nil, err
	}
	builder := planner.NewBuilder(ring, cfg.ToLimits())

	var limits [planner.NAxes]kinematics.AxisLimits
	limits[planner.AxisX] = kinematics.AxisLimits{Min: -1000, Max: 1000}
	limits[planner.AxisY] = kinematics.AxisLimits{Min: -1000, Max: 1000}
	limits[planner.AxisZ] = kinematics.AxisLimits{Min: -1000, Max: 1000}
	kin, err := kinematics.NewCartesian(limits)
	if err != nil {
		return nil, err
	}

	executor := stepper.NewExecutor(ring, pins)

	hotend := cfg.HeaterController("hotend")
	bed := cfg.HeaterController("bed")
	if hotend == nil || bed == nil {
		return nil, errors.New("machine: hotend and bed heater configuration required")
	}

	sampler := thermal.NewADCSampler(hotendPin, bedPin, core.TimerFromUS(1000))
	hotendPWM := &thermal.SoftPWMChannel{Pin: hotendOut}
	bedPWM := &thermal.SoftPWMChannel{Pin: bedOut}
	pwm := thermal.NewSoftPWM(thermal.PWMModePlainCounter, core.TimerFromUS(30), hotendPWM, bedPWM)
	therm := thermal.NewManager(sampler, hotend, bed, hotendPWM, bedPWM)

	m := &Manager{
		Config:     cfg,
		Ring:       ring,
		Builder:    builder,
		Kinematics: kin,
		Executor:   executor,
		Thermal:    therm,
		Parser:     gcode.NewParser(),
	}

	interp := gcode.NewInterpreter(builder, hotend, bed)
	interp.Kinematics = kin
	interp.MinExtrudeTempC = cfg.MinExtrudeTempC
	interp.Idle = m.Idle
	interp.Abort = m.EmergencyStop
	interp.Echo = func(line string) { m.outbox = append(m.outbox, line) }
	m.Interp = interp

	// The builder's ring-full wait is the only blocking operation in the
	// foreground (spec 5); it must service the heater manager while it
	// spins rather than starve thermal safety.
	ring.Idle = m.Idle

	core.RegisterShutdownHook(func(string) {
		m.running = false
		executor.Abort()
	})

	sampler.Start()
	pwm.Start()

	return m, nil
}

// Idle services whatever the foreground loop would otherwise starve
// while it spins on a blocking condition: the heater manager today, a
// watchdog pet and UI poll in a fuller assembly.
func (m *Manager) Idle() {
	m.Thermal.Tick()
}

// Start marks the manager running and starts the stepper boundary
// draining the ring.
func (m *Manager) Start() {
	m.running = true
	m.Executor.Start()
}

// IsRunning reports whether the manager has not been emergency-stopped.
func (m *Manager) IsRunning() bool { return m.running }

// ProcessLine parses and executes one line of G-code. A parse error
// (bad line number, bad checksum) is surfaced to the caller, which per
// spec 7 should emit "error:" and "Resend:" and must not enqueue
// anything from the line.
func (m *Manager) ProcessLine(line string) error {
	cmd, err := m.Parser.ParseLine(line)
	if err != nil {
		return err
	}
	if cmd == nil {
		return nil
	}
	return m.Interp.Execute(cmd)
}

// TakeOutput drains and returns any echo/error lines queued since the
// last call.
func (m *Manager) TakeOutput() []string {
	out := m.outbox
	m.outbox = nil
	return out
}

// EmergencyStop implements spec 7's emergency-stop kind: it disables
// heaters (via the shutdown hook thermal.NewManager registered), flushes
// the planner ring, and stops the stepper boundary - all achieved by
// latching core.TryShutdown, whose hooks run in registration order.
func (m *Manager) EmergencyStop() {
	core.TryShutdown("emergency stop")
}
