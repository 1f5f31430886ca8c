package thermal

import (
	"gopper/core"
)

// sampler states, advanced one per periodic tick.
const (
	stateInitHotend = iota
	stateReadHotend
	stateInitBed
	stateReadBed
)

// OversampleCount is how many individual ADC conversions are averaged
// into each published reading.
const OversampleCount = 4

// RawPair is one published hotend/bed raw-ADC reading.
type RawPair struct {
	Hotend int32
	Bed    int32
}

// ADCSampler advances a 4-state state machine on each periodic tick,
// oversampling the hotend and bed thermistor pins in turn and publishing
// the finished pair to the non-ISR side. Grounded on the teacher's
// AnalogIn oversampling/range-check timer loop, adapted from a single
// per-channel timer into one shared tick driving a fixed hotend-then-bed
// rotation, which is what the source firmware's temperature.cpp ISR does.
type ADCSampler struct {
	HotendPin core.ADCPin
	BedPin    core.ADCPin

	TickInterval uint32 // ticks between state-machine advances

	timer core.Timer
	state uint8

	hotendAccum int64
	bedAccum    int64
	sampleIdx   int

	section core.CriticalSection
	pending RawPair
	ready   bool
}

// NewADCSampler returns a sampler that has not yet been started.
func NewADCSampler(hotendPin, bedPin core.ADCPin, tickInterval uint32) *ADCSampler {
	s := &ADCSampler{HotendPin: hotendPin, BedPin: bedPin, TickInterval: tickInterval}
	s.timer.Handler = s.onTick
	return s
}

// Start arms the sampler's timer against the shared system clock.
func (s *ADCSampler) Start() {
	s.timer.WakeTime = core.GetTime() + s.TickInterval
	core.ScheduleTimer(&s.timer)
}

// onTick advances exactly one state of {init_hotend, read_hotend,
// init_bed, read_bed} per call. Each "read" state loops on the same
// state, rescheduling shortly, until OversampleCount conversions have
// accumulated, then moves on.
func (s *ADCSampler) onTick(t *core.Timer) uint8 {
	switch s.state {
	case stateInitHotend:
		_ = core.MustADC().ConfigureADC(s.HotendPin)
		s.hotendAccum = 0
		s.sampleIdx = 0
		s.state = stateReadHotend
		t.WakeTime += s.TickInterval
		return core.SF_RESCHEDULE

	case stateReadHotend:
		value, readyNow := core.MustADC().SampleADC(s.HotendPin)
		if !readyNow {
			t.WakeTime += s.TickInterval
			return core.SF_RESCHEDULE
		}
		s.hotendAccum += int64(value)
		s.sampleIdx++
		if s.sampleIdx < OversampleCount {
			t.WakeTime += s.TickInterval
			return core.SF_RESCHEDULE
		}
		s.state = stateInitBed
		t.WakeTime += s.TickInterval
		return core.SF_RESCHEDULE

	case stateInitBed:
		_ = core.MustADC().ConfigureADC(s.BedPin)
		s.bedAccum = 0
		s.sampleIdx = 0
		s.state = stateReadBed
		t.WakeTime += s.TickInterval
		return core.SF_RESCHEDULE

	case stateReadBed:
		value, readyNow := core.MustADC().SampleADC(s.BedPin)
		if !readyNow {
			t.WakeTime += s.TickInterval
			return core.SF_RESCHEDULE
		}
		s.bedAccum += int64(value)
		s.sampleIdx++
		if s.sampleIdx < OversampleCount {
			t.WakeTime += s.TickInterval
			return core.SF_RESCHEDULE
		}
		s.publish()
		s.state = stateInitHotend
		t.WakeTime += s.TickInterval
		return core.SF_RESCHEDULE
	}

	return core.SF_DONE
}

// publish makes a finished hotend+bed pair visible to the non-ISR side
// under the section, so a consumer sees either an old pair or both fresh
// values, never a mix.
func (s *ADCSampler) publish() {
	defer s.section.Enter()()
	s.pending = RawPair{
		Hotend: int32(s.hotendAccum / OversampleCount),
		Bed:    int32(s.bedAccum / OversampleCount),
	}
	s.ready = true
}

// Consume returns the most recently published pair and clears the ready
// flag, or ok=false if nothing new has been published since the last
// call.
func (s *ADCSampler) Consume() (pair RawPair, ok bool) {
	defer s.section.Enter()()
	if !s.ready {
		return RawPair{}, false
	}
	s.ready = false
	return s.pending, true
}
