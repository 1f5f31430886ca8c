package stepper

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gopper/core"
	"gopper/planner"
)

// fakeGPIO is a no-op GPIODriver that lets the executor's pin toggles run
// without a real board attached.
type fakeGPIO struct{}

func (fakeGPIO) ConfigureOutput(core.GPIOPin) error        { return nil }
func (fakeGPIO) ConfigureInputPullUp(core.GPIOPin) error   { return nil }
func (fakeGPIO) ConfigureInputPullDown(core.GPIOPin) error { return nil }
func (fakeGPIO) SetPin(core.GPIOPin, bool) error           { return nil }
func (fakeGPIO) GetPin(core.GPIOPin) (bool, error)         { return false, nil }
func (fakeGPIO) ReadPin(core.GPIOPin) bool                 { return false }

func scenarioLimits() planner.Limits {
	stepsPerMM := [planner.NAxes]float64{80, 80, 400, 100}
	maxAccelMMS2 := [planner.NAxes]float64{1500, 1500, 100, 10000}

	var maxAccelSteps [planner.NAxes]float64
	for i := 0; i < planner.NAxes; i++ {
		maxAccelSteps[i] = maxAccelMMS2[i] * stepsPerMM[i]
	}

	lim := planner.DefaultLimits()
	lim.StepsPerMM = stepsPerMM
	lim.MaxFeedrate = [planner.NAxes]float64{300, 300, 5, 25}
	lim.MaxAccelSteps = maxAccelSteps
	lim.MaxJerk = [planner.NAxes]float64{10, 10, 0.4, 5}
	lim.Acceleration = 1000
	lim.TravelAcceleration = 1000
	lim.MinFeedrate = 0.05
	lim.MinTravelFeedrate = 0.05
	return lim
}

// TestExecutorDrainsRingEndToEnd drives the documented consumer contract
// (spec §4.1) all the way through: Builder.Enqueue publishes a block,
// Ring.GetCurrent claims it once look-ahead has cleared RECALCULATE, and
// the executor steps it out and calls DiscardCurrent to retire it. This
// is the path planner_test.go never exercised - it only ever inspected
// blocks directly via Ring.At, which let a stuck RECALCULATE flag on the
// block at tail go unnoticed.
func TestExecutorDrainsRingEndToEnd(t *testing.T) {
	core.SetGPIODriver(fakeGPIO{})

	ring, err := planner.NewRing(4)
	require.NoError(t, err)
	builder := planner.NewBuilder(ring, scenarioLimits())

	require.True(t, builder.Enqueue(planner.Move{TargetMM: [planner.NAxes]float64{10, 0, 0, 0}, FeedrateS: 60}))
	require.Equal(t, uint32(1), ring.MovesPlanned())

	// A lone block always gets its trapezoid committed and RECALCULATE
	// cleared immediately, so it must be claimable right away.
	blk := ring.GetCurrent()
	require.NotNil(t, blk, "GetCurrent must return the only queued block once look-ahead has run")
	require.True(t, blk.Busy.Load())
	ring.DiscardCurrent()
	require.True(t, ring.IsEmpty())

	// Re-enqueue and drive the same block through the real Executor, which
	// calls GetCurrent/DiscardCurrent internally via its timer callback.
	require.True(t, builder.Enqueue(planner.Move{TargetMM: [planner.NAxes]float64{20, 0, 0, 0}, FeedrateS: 60}))

	var pins [planner.NAxes]AxisPin
	exec := NewExecutor(ring, pins)
	exec.Start()
	require.True(t, exec.IsRunning(), "executor must claim the freshly built block, not stall on a stuck RECALCULATE flag")

	for i := 0; i < 200000 && exec.IsRunning(); i++ {
		core.AdvanceTime(10000)
	}

	require.False(t, exec.IsRunning(), "executor never finished draining the block")
	require.True(t, ring.IsEmpty())
	require.Equal(t, int64(800), exec.Position()[planner.AxisX])
}

// TestRingDoesNotWedgeAfterSeveralEnqueues guards the regression directly:
// with more than one block queued, every block but the newest must still
// become claimable and retirable once look-ahead settles, not just get
// stuck two-or-more positions behind tail forever.
func TestRingDoesNotWedgeAfterSeveralEnqueues(t *testing.T) {
	ring, err := planner.NewRing(8)
	require.NoError(t, err)
	builder := planner.NewBuilder(ring, scenarioLimits())

	for i := 0; i < 4; i++ {
		target := [planner.NAxes]float64{float64(i+1) * 5, 0, 0, 0}
		require.True(t, builder.Enqueue(planner.Move{TargetMM: target, FeedrateS: 60}))
	}
	require.Equal(t, uint32(4), ring.MovesPlanned())

	claimed := 0
	for !ring.IsEmpty() {
		blk := ring.GetCurrent()
		require.NotNilf(t, blk, "ring wedged after retiring %d of 4 blocks", claimed)
		ring.DiscardCurrent()
		claimed++
	}
	require.Equal(t, 4, claimed)
}
