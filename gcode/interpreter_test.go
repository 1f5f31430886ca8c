package gcode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gopper/planner"
	"gopper/thermal"
)

func newTestInterpreter(t *testing.T) (*Interpreter, *planner.Ring) {
	t.Helper()
	ring, err := planner.NewRing(16)
	require.NoError(t, err)
	lim := planner.DefaultLimits()
	lim.StepsPerMM = [planner.NAxes]float64{80, 80, 400, 100}
	lim.MaxFeedrate = [planner.NAxes]float64{300, 300, 5, 25}
	lim.MaxAccelSteps = [planner.NAxes]float64{1500 * 80, 1500 * 80, 100 * 400, 10000 * 100}
	lim.MaxJerk = [planner.NAxes]float64{10, 10, 0.4, 5}
	lim.Acceleration = 1000
	lim.TravelAcceleration = 1000
	builder := planner.NewBuilder(ring, lim)

	hotend := &thermal.Controller{Config: thermal.HeaterConfig{
		Table:    thermal.NewTable([]thermal.Point{{ADC: 0, TempC: 0}, {ADC: 1000, TempC: 300}}),
		MinTempC: 5,
		MaxTempC: 290,
	}}
	bed := &thermal.Controller{Config: thermal.HeaterConfig{
		Table:    thermal.NewTable([]thermal.Point{{ADC: 0, TempC: 0}, {ADC: 1000, TempC: 150}}),
		MinTempC: 0,
		MaxTempC: 140,
	}}

	in := NewInterpreter(builder, hotend, bed)
	return in, ring
}

func TestInterpreterEnqueuesMove(t *testing.T) {
	in, ring := newTestInterpreter(t)
	require.NoError(t, in.Execute(&Command{Type: 'G', Number: 1, Parameters: map[byte]float64{'X': 10, 'F': 3600}}))
	require.Equal(t, uint32(1), ring.MovesPlanned())
}

func TestInterpreterColdExtrudeCollapsesE(t *testing.T) {
	in, ring := newTestInterpreter(t)
	in.MinExtrudeTempC = 180
	var echoed string
	in.Echo = func(line string) { echoed = line }

	require.NoError(t, in.Execute(&Command{Type: 'G', Number: 1, Parameters: map[byte]float64{'X': 10, 'E': 5, 'F': 3600}}))
	require.NotEmpty(t, echoed)
	require.Equal(t, uint32(1), ring.MovesPlanned())
	blk := ring.At(ring.Tail())
	require.Equal(t, uint32(0), blk.Steps[planner.AxisE])
}

func TestInterpreterM112StopsViaAbort(t *testing.T) {
	in, _ := newTestInterpreter(t)
	called := false
	in.Abort = func() { called = true }
	require.NoError(t, in.Execute(&Command{Type: 'M', Number: 112}))
	require.True(t, called)
}

func TestInterpreterAbsoluteRelativeExtrusion(t *testing.T) {
	in, _ := newTestInterpreter(t)
	require.NoError(t, in.Execute(&Command{Type: 'M', Number: 83}))
	require.False(t, in.State().ExtrudeAbs)
	require.NoError(t, in.Execute(&Command{Type: 'M', Number: 82}))
	require.True(t, in.State().ExtrudeAbs)
}
