package planner

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scenarioLimits builds the Limits from the specification's worked
// end-to-end scenarios: steps_per_mm = {80,80,400,100},
// max_feedrate = {300,300,5,25}, max_accel = {1500,1500,100,10000} mm/s^2,
// max_jerk = {10,10,0.4,5}, acceleration = 1000.
func scenarioLimits() Limits {
	stepsPerMM := [NAxes]float64{80, 80, 400, 100}
	maxAccelMMS2 := [NAxes]float64{1500, 1500, 100, 10000}

	var maxAccelSteps [NAxes]float64
	for i := 0; i < NAxes; i++ {
		maxAccelSteps[i] = maxAccelMMS2[i] * stepsPerMM[i]
	}

	lim := DefaultLimits()
	lim.StepsPerMM = stepsPerMM
	lim.MaxFeedrate = [NAxes]float64{300, 300, 5, 25}
	lim.MaxAccelSteps = maxAccelSteps
	lim.MaxJerk = [NAxes]float64{10, 10, 0.4, 5}
	lim.Acceleration = 1000
	lim.TravelAcceleration = 1000
	lim.MinFeedrate = 0.05
	lim.MinTravelFeedrate = 0.05
	return lim
}

func newScenarioRing(t *testing.T) (*Ring, *Builder) {
	t.Helper()
	r, err := NewRing(16)
	require.NoError(t, err)
	return r, NewBuilder(r, scenarioLimits())
}

func assertBlockInvariants(t *testing.T, r *Ring) {
	t.Helper()
	for i := r.Tail(); i != r.Head(); i++ {
		b := r.At(i)
		if b.Busy.Load() {
			continue
		}
		require.GreaterOrEqual(t, b.EntrySpeed, 0.0)
		require.LessOrEqual(t, b.EntrySpeed, b.MaxEntrySpeed+1e-9)
		require.LessOrEqual(t, b.MaxEntrySpeed, b.NominalSpeed+1e-9)
		require.LessOrEqual(t, b.AccelerateUntil, b.DecelerateAfter)
		require.LessOrEqual(t, b.DecelerateAfter, b.StepEventCount)
		require.GreaterOrEqual(t, b.InitialRate, uint32(MinStepRate))
		require.GreaterOrEqual(t, b.FinalRate, uint32(MinStepRate))
	}
}

func TestSingleStraightMove(t *testing.T) {
	r, b := newScenarioRing(t)

	ok := b.Enqueue(Move{TargetMM: [NAxes]float64{10, 0, 0, 0}, FeedrateS: 60})
	require.True(t, ok)
	require.Equal(t, uint32(1), r.MovesPlanned())

	blk := r.At(r.Tail())
	require.Equal(t, uint32(800), blk.Steps[AxisX])
	require.Equal(t, uint32(0), blk.Steps[AxisY])
	require.Equal(t, uint32(800), blk.StepEventCount)
	require.InDelta(t, 10.0, blk.Millimeters, 1e-9)
	require.InDelta(t, 60.0, blk.NominalSpeed, 1e-9)
	require.InDelta(t, 0.0, blk.EntrySpeed, 1e-9)
	require.Greater(t, blk.DecelerateAfter, blk.AccelerateUntil) // a plateau exists

	assertBlockInvariants(t, r)
}

func TestCollinearJunctionReachesNominal(t *testing.T) {
	r, b := newScenarioRing(t)

	require.True(t, b.Enqueue(Move{TargetMM: [NAxes]float64{5, 0, 0, 0}, FeedrateS: 60}))
	require.True(t, b.Enqueue(Move{TargetMM: [NAxes]float64{10, 0, 0, 0}, FeedrateS: 60}))
	require.Equal(t, uint32(2), r.MovesPlanned())

	first := r.At(r.Tail())
	second := r.At(r.Tail() + 1)

	require.InDelta(t, second.NominalSpeed, second.EntrySpeed, 1e-6)
	assertBlockInvariants(t, r)
	_ = first
}

func TestRightAngleJunctionClampedByJerk(t *testing.T) {
	r, b := newScenarioRing(t)

	require.True(t, b.Enqueue(Move{TargetMM: [NAxes]float64{10, 0, 0, 0}, FeedrateS: 60}))
	require.True(t, b.Enqueue(Move{TargetMM: [NAxes]float64{10, 10, 0, 0}, FeedrateS: 60}))

	second := r.At(r.Tail() + 1)
	require.InDelta(t, 10.0, second.MaxEntrySpeed, 1e-6)
}

func TestExtruderReversalJerkAtLimitNoReduction(t *testing.T) {
	r, b := newScenarioRing(t)

	require.True(t, b.Enqueue(Move{TargetMM: [NAxes]float64{0, 0, 0, 1}, FeedrateS: 5}))
	require.True(t, b.Enqueue(Move{TargetMM: [NAxes]float64{0, 0, 0, 0}, FeedrateS: 5}))

	second := r.At(r.Tail() + 1)
	require.InDelta(t, 5.0, second.MaxEntrySpeed, 1e-6)
}

func TestShortMoveDropped(t *testing.T) {
	_, b := newScenarioRing(t)

	ok := b.Enqueue(Move{TargetMM: [NAxes]float64{0.01, 0, 0, 0}, FeedrateS: 60})
	require.False(t, ok)
}

func TestZeroFeedrateClampedToFloor(t *testing.T) {
	r, b := newScenarioRing(t)

	require.True(t, b.Enqueue(Move{TargetMM: [NAxes]float64{10, 0, 0, 0}, FeedrateS: 0}))
	blk := r.At(r.Tail())
	require.InDelta(t, 0.05, blk.NominalSpeed, 1e-9)
}

func TestRingFillsToCapacityThenBlocks(t *testing.T) {
	r, b := newScenarioRing(t)

	idleCalls := 0
	var mu sync.Mutex
	r.Idle = func() {
		mu.Lock()
		idleCalls++
		n := idleCalls
		mu.Unlock()
		if n == 1 {
			r.DiscardCurrent()
		}
		time.Sleep(time.Millisecond)
	}

	for i := 0; i < 16; i++ {
		target := [NAxes]float64{float64(i+1) * 2, 0, 0, 0}
		require.True(t, b.Enqueue(Move{TargetMM: target, FeedrateS: 60}))
	}
	require.True(t, r.IsFull())

	done := make(chan struct{})
	go func() {
		b.Enqueue(Move{TargetMM: [NAxes]float64{40, 0, 0, 0}, FeedrateS: 60})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("17th enqueue never unblocked after a retire")
	}

	mu.Lock()
	calls := idleCalls
	mu.Unlock()
	require.GreaterOrEqual(t, calls, 1)
}

func TestFlushOfEmptyQueueIsNoop(t *testing.T) {
	r, _ := newScenarioRing(t)
	require.True(t, r.IsEmpty())
	r.DiscardCurrent()
	require.True(t, r.IsEmpty())
}
