package planner

// MinStepsPerSegment is the smallest step_event_count a move may have and
// still be admitted; shorter moves are silently dropped rather than
// enqueued (they would just jitter the stepper at negligible distance).
const MinStepsPerSegment = 6

// MinStepRate is the floor every initial_rate and final_rate is clamped
// to, so the stepper's step timer never has to schedule an interval long
// enough to overflow its counter.
const MinStepRate = 120

// CutoffLong is the step_event_count above which the source firmware's
// 32-bit fixed-point acceleration limiter switches from an exact
// long-arithmetic form to a floating-point approximation, to avoid
// overflowing an integer intermediate (spec 9's "arithmetic shortcuts"
// note). The builder here carries every intermediate in float64 from the
// start - its 52-bit mantissa represents step counts up to the 24-bit
// budget in 3's invariants exactly, with headroom well past CutoffLong -
// so there is no overflow boundary to switch behavior at. Kept as a
// named constant so a caller porting this to a fixed-point target has the
// threshold on hand without re-deriving it.
const CutoffLong = 0xFFFFF

// Limits holds the per-axis and scalar motion limits the builder and
// trapezoid generator consult. One Limits is shared by a Builder and every
// Recalculate/Trapezoid call against the same ring.
type Limits struct {
	StepsPerMM    [NAxes]float64
	MaxFeedrate   [NAxes]float64
	MaxAccelSteps [NAxes]float64 // max_acceleration_steps_per_s2, already in steps/s^2
	MaxJerk       [NAxes]float64

	Acceleration        float64 // default accelerating-move acceleration, mm/s^2
	TravelAcceleration  float64 // non-extruding move acceleration, mm/s^2
	RetractAcceleration float64 // retract-only E move acceleration, mm/s^2

	MinFeedrate       float64 // floor for extruding moves, mm/s
	MinTravelFeedrate float64 // floor for non-extruding moves, mm/s
	MinSegmentTime    float64 // seconds; unused by Enqueue itself, carried for callers that throttle segment rate

	// ExtrudeFlowPercent and ExtrudeVolumetricMultiplier scale the E
	// component of the millimeter delta the builder uses for length and
	// speed math; the E step count is taken from the unscaled target.
	// 100 and 1.0 respectively are neutral.
	ExtrudeFlowPercent          float64
	ExtrudeVolumetricMultiplier float64
}

// DefaultLimits returns limits with every multiplier at its neutral value
// and MinFeedrate at the 0.05 mm/s floor of the spec's example scenarios;
// callers should override the rest from their own configuration.
func DefaultLimits() Limits {
	return Limits{
		ExtrudeFlowPercent:          100,
		ExtrudeVolumetricMultiplier: 1,
		MinFeedrate:                 0.05,
	}
}
