package planner

// accelerationRateShift is the 2^24 fixed-point scale the stepper
// boundary's step timer expects acceleration_rate in. Trapezoid divides by
// stepTickHz/8, the source's F_cpu/8; the recalculate pass passes
// core.TimerFreq for F_cpu. A caller targeting a different step-tick
// clock passes its own stepTickHz - it is not a law of the system (spec 9).
const accelerationRateShift = 1 << 24

// Trapezoid computes and, unless the block is busy, commits the
// accelerate/cruise/decelerate step partition for blk given its entry and
// exit speeds and the block's already-computed nominal rate, step count,
// and acceleration. stepTickHz is the tick rate the resulting
// acceleration_rate is scaled against (the stepper boundary's timer
// frequency).
func Trapezoid(blk *Block, entry, exit float64, stepTickHz float64) {
	initialRate := ceilUint32(entry)
	if initialRate < MinStepRate {
		initialRate = MinStepRate
	}
	finalRate := ceilUint32(exit)
	if finalRate < MinStepRate {
		finalRate = MinStepRate
	}

	nominalRate := float64(blk.NominalRate)
	accel := blk.AccelerationStepsPerS2

	accelerateSteps := ceilUint32(estimateAccelDistance(float64(initialRate), nominalRate, accel))
	decelerateSteps := floorUint32(estimateAccelDistance(nominalRate, float64(finalRate), -accel))

	var plateauSteps int64
	plateauSteps = int64(blk.StepEventCount) - int64(accelerateSteps) - int64(decelerateSteps)
	if plateauSteps < 0 {
		accelerateSteps = clampUint32(ceilUint32(intersectionDistance(float64(initialRate), float64(finalRate), accel, float64(blk.StepEventCount))), 0, blk.StepEventCount)
		plateauSteps = 0
	}

	if blk.Busy.Load() {
		return
	}

	blk.AccelerateUntil = accelerateSteps
	blk.DecelerateAfter = accelerateSteps + uint32(plateauSteps)
	blk.InitialRate = initialRate
	blk.FinalRate = finalRate
	if stepTickHz <= 0 {
		stepTickHz = 1
	}
	blk.AccelerationRate = uint32(accel * float64(accelerationRateShift) / (stepTickHz / 8))
}
