package planner

import (
	"math"

	"gopper/core"
)

// Builder admits new linear moves into a Ring. It owns no state of its
// own beyond the Limits it was configured with; the per-axis position and
// junction-speed bookkeeping that has to survive between moves lives on
// the Ring, since it is conceptually part of the queue's producer side.
type Builder struct {
	Ring   *Ring
	Limits Limits
}

// NewBuilder returns a Builder admitting moves into ring under limits.
func NewBuilder(ring *Ring, limits Limits) *Builder {
	return &Builder{Ring: ring, Limits: limits}
}

// Move describes one requested linear move in the producer's own units:
// an absolute target position per axis, in millimeters, a requested
// feedrate, and the latched state (fan speed, active tool) a built block
// carries.
type Move struct {
	TargetMM  [NAxes]float64
	FeedrateS float64
	Extruder  uint8
	FanSpeed  [NumFans]uint8
}

// Enqueue builds move and, if it clears MinStepsPerSegment, admits it
// into the ring, running the look-ahead pass before returning. It blocks
// (via Ring.Reserve, which calls Ring.Idle) while the ring is full.
//
// Returns false when the move was dropped for being too short to step -
// this is not an error, per the admission algorithm.
func (bld *Builder) Enqueue(mv Move) bool {
	r := bld.Ring
	lim := &bld.Limits

	var targetSteps [NAxes]int64
	var delta [NAxes]int64
	for i := 0; i < NAxes; i++ {
		targetSteps[i] = int64(math.Round(mv.TargetMM[i] * lim.StepsPerMM[i]))
		delta[i] = targetSteps[i] - r.Position[i]
	}

	var steps [NAxes]uint32
	var directionBits uint8
	var stepEventCount uint32
	for i := 0; i < NAxes; i++ {
		if delta[i] < 0 {
			directionBits |= 1 << uint(i)
			steps[i] = uint32(-delta[i])
		} else {
			steps[i] = uint32(delta[i])
		}
		if steps[i] > stepEventCount {
			stepEventCount = steps[i]
		}
	}

	if stepEventCount < MinStepsPerSegment {
		core.RecordTiming(core.EvtBlockDropped, 0, core.GetTime(), stepEventCount, 0)
		return false
	}

	// deltaMM reconstructs the commanded-mm delta from the step-quantized
	// value so downstream speed math stays consistent with the integer
	// steps actually queued; the extruder axis additionally carries the
	// flow and volumetric multipliers, which scale the printed feed rate
	// without altering the physical step count already fixed above.
	var deltaMM [NAxes]float64
	for i := 0; i < NAxes; i++ {
		if lim.StepsPerMM[i] == 0 {
			continue
		}
		deltaMM[i] = float64(delta[i]) / lim.StepsPerMM[i]
	}
	eMultiplier := (lim.ExtrudeFlowPercent / 100) * lim.ExtrudeVolumetricMultiplier
	if eMultiplier == 0 {
		eMultiplier = 1
	}
	deltaMM[AxisE] *= eMultiplier

	xyzSteps := steps[AxisX] + steps[AxisY] + steps[AxisZ]
	var millimeters float64
	if xyzSteps < MinStepsPerSegment {
		millimeters = math.Abs(deltaMM[AxisE])
	} else {
		millimeters = math.Sqrt(deltaMM[AxisX]*deltaMM[AxisX] + deltaMM[AxisY]*deltaMM[AxisY] + deltaMM[AxisZ]*deltaMM[AxisZ])
	}
	if millimeters == 0 {
		millimeters = math.Abs(deltaMM[AxisE])
	}

	feedrate := mv.FeedrateS
	isExtruding := steps[AxisE] > 0
	if isExtruding {
		if feedrate < lim.MinFeedrate {
			feedrate = lim.MinFeedrate
		}
	} else {
		if feedrate < lim.MinTravelFeedrate {
			feedrate = lim.MinTravelFeedrate
		}
	}

	inverseMMS := feedrate / millimeters
	nominalSpeed := millimeters * inverseMMS
	nominalRate := ceilUint32(float64(stepEventCount) * inverseMMS)

	var axisVel [NAxes]float64
	for i := 0; i < NAxes; i++ {
		axisVel[i] = deltaMM[i] * inverseMMS
	}

	scale := 1.0
	for i := 0; i < NAxes; i++ {
		if lim.MaxFeedrate[i] <= 0 {
			continue
		}
		v := math.Abs(axisVel[i])
		if v > lim.MaxFeedrate[i] {
			factor := lim.MaxFeedrate[i] / v
			if factor < scale {
				scale = factor
			}
		}
	}
	if scale < 1.0 {
		nominalSpeed *= scale
		nominalRate = ceilUint32(float64(nominalRate) * scale)
		for i := 0; i < NAxes; i++ {
			axisVel[i] *= scale
		}
	}

	baseAccel := lim.TravelAcceleration
	if isExtruding {
		baseAccel = lim.Acceleration
	}
	stepsPerMM := float64(stepEventCount) / millimeters
	accelStepsPerS2 := baseAccel * stepsPerMM
	for i := 0; i < NAxes; i++ {
		if steps[i] == 0 || lim.MaxAccelSteps[i] <= 0 {
			continue
		}
		if accelStepsPerS2*float64(steps[i]) > lim.MaxAccelSteps[i]*float64(stepEventCount) {
			accelStepsPerS2 = lim.MaxAccelSteps[i] * float64(stepEventCount) / float64(steps[i])
		}
	}
	acceleration := accelStepsPerS2 / stepsPerMM

	safeSpeed := nominalSpeed
	for i := 0; i < NAxes; i++ {
		if lim.MaxJerk[i] <= 0 {
			continue
		}
		v := math.Abs(axisVel[i])
		if v > lim.MaxJerk[i] {
			candidate := lim.MaxJerk[i] * nominalSpeed / v
			if candidate < safeSpeed {
				safeSpeed = candidate
			}
		}
	}

	var vmaxJunction float64
	// A drained ring means the machine has stopped, so the previous
	// segment's speeds no longer describe the junction.
	hasPrevious := r.HasPrevious && !r.IsEmpty()
	startFromFullHalt := !hasPrevious
	if hasPrevious {
		vFactor := 1.0
		for i := 0; i < NAxes; i++ {
			if lim.MaxJerk[i] <= 0 {
				continue
			}
			prevV := r.PreviousSpeed[i]
			curV := axisVel[i]
			var jerk float64
			if (prevV >= 0) == (curV >= 0) {
				jerk = math.Abs(curV - prevV)
			} else {
				jerk = math.Max(math.Abs(prevV), math.Abs(curV))
			}
			if jerk > lim.MaxJerk[i] {
				factor := lim.MaxJerk[i] / jerk
				if factor < vFactor {
					vFactor = factor
				}
			}
		}
		vmaxJunction = math.Min(nominalSpeed, r.PreviousNominalSpeed) * vFactor
		if r.PreviousSafeSpeed > 0.99*vmaxJunction && safeSpeed > 0.99*vmaxJunction {
			vmaxJunction = safeSpeed
			startFromFullHalt = true
		}
	}

	stopDistanceSpeed := maxAllowableSpeed(-acceleration, 0, millimeters)
	maxEntrySpeed := vmaxJunction
	entrySpeed := math.Min(vmaxJunction, stopDistanceSpeed)

	blk := r.Reserve()
	blk.Steps = steps
	blk.StepEventCount = stepEventCount
	blk.DirectionBits = directionBits
	blk.Millimeters = millimeters
	blk.NominalSpeed = nominalSpeed
	blk.NominalRate = nominalRate
	blk.EntrySpeed = entrySpeed
	blk.MaxEntrySpeed = maxEntrySpeed
	blk.Acceleration = acceleration
	blk.AccelerationStepsPerS2 = accelStepsPerS2
	blk.FanSpeed = mv.FanSpeed
	blk.ActiveExtruder = mv.Extruder

	blk.SetFlag(FlagRecalculate)
	if startFromFullHalt {
		blk.SetFlag(FlagStartFromFullHalt)
	}
	if nominalSpeed <= stopDistanceSpeed {
		blk.SetFlag(FlagNominalLength)
	}

	r.PreviousSpeed = axisVel
	r.PreviousNominalSpeed = nominalSpeed
	r.PreviousSafeSpeed = safeSpeed
	r.Position = targetSteps
	r.HasPrevious = true

	r.Publish()

	Recalculate(r, lim)
	return true
}
