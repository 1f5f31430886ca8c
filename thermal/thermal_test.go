package thermal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func pt100TableFixture() *Table {
	// A typical NTC thermistor table: ADC falls as temperature rises.
	return NewTable([]Point{
		{ADC: 1000, TempC: 0},
		{ADC: 700, TempC: 50},
		{ADC: 300, TempC: 150},
		{ADC: 100, TempC: 250},
	})
}

func TestTableInterpolatesBetweenVertices(t *testing.T) {
	tbl := pt100TableFixture()
	require.InDelta(t, 25, tbl.ToTempC(850), 0.01)
	require.InDelta(t, 100, tbl.ToTempC(500), 0.01)
}

func TestTableClampsOutsideRange(t *testing.T) {
	tbl := pt100TableFixture()
	require.Equal(t, 0.0, tbl.ToTempC(5000))
	require.Equal(t, 250.0, tbl.ToTempC(-10))
}

func TestTableRoundTripAtVertices(t *testing.T) {
	tbl := pt100TableFixture()
	for _, p := range []Point{{ADC: 1000, TempC: 0}, {ADC: 300, TempC: 150}} {
		require.Equal(t, p.ADC, tbl.ToADC(p.TempC))
		require.InDelta(t, p.TempC, tbl.ToTempC(p.ADC), 0.01)
	}
}

func hotendConfig() HeaterConfig {
	return HeaterConfig{
		Table:              pt100TableFixture(),
		MinTempC:           -10,
		MaxTempC:            280,
		Hysteresis:         2,
		WatchMarginC:       10,
		WatchIncreaseC:     2,
		WatchPeriodTicks:   1 << 30,
		RunawayHysteresisC: 4,
		RunawayPeriodTicks: 1 << 30,
	}
}

func TestBangBangTogglesAtHysteresisBand(t *testing.T) {
	cfg := hotendConfig()
	c := &Controller{Config: cfg}
	c.SetTarget(100, 0)

	duty, fatal, _ := c.Update(pt100TableFixture().ToADC(50), 1)
	require.False(t, fatal)
	require.Equal(t, uint8(255), duty)

	duty, fatal, _ = c.Update(pt100TableFixture().ToADC(103), 2)
	require.False(t, fatal)
	require.Equal(t, uint8(0), duty)
}

func TestOutOfCalibratedRangeIsFatal(t *testing.T) {
	cfg := hotendConfig()
	cfg.MaxTempC = 200 // raw 0 below lies outside the table's 100..1000 ADC span, which trips it
	c := &Controller{Config: cfg}
	c.SetTarget(100, 0)

	_, fatal, reason := c.Update(0, 1)
	require.True(t, fatal)
	require.Equal(t, "temperature out of calibrated range", reason)
}

func TestTargetZeroIsAlwaysOff(t *testing.T) {
	cfg := hotendConfig()
	c := &Controller{Config: cfg}
	c.SetTarget(0, 0)
	duty, fatal, _ := c.Update(pt100TableFixture().ToADC(25), 1)
	require.False(t, fatal)
	require.Equal(t, uint8(0), duty)
}

func TestPIDClampsOutputAndWindup(t *testing.T) {
	cfg := hotendConfig()
	cfg.PID = [3]float64{10, 1, 0}
	c := &Controller{Config: cfg}
	c.SetTarget(200, 0)

	var now uint32
	for i := 0; i < 50; i++ {
		now += 1000
		duty, fatal, _ := c.Update(pt100TableFixture().ToADC(20), now)
		require.False(t, fatal)
		require.LessOrEqual(t, duty, uint8(255))
	}
	require.LessOrEqual(t, c.pidIntegral*cfg.PID[1], 255.0+1e-9)
}

func TestRunawayTripsWhenTemperatureFallsAndStaysLow(t *testing.T) {
	cfg := hotendConfig()
	cfg.RunawayPeriodTicks = 100
	cfg.RunawayHysteresisC = 4
	c := &Controller{Config: cfg}
	c.SetTarget(100, 0)

	// Reach target: FirstHeating -> Stable, deadline armed.
	_, fatal, _ := c.Update(pt100TableFixture().ToADC(100), 1)
	require.False(t, fatal)

	// Drop well below target-hysteresis and hold there past the deadline.
	_, fatal, reason := c.Update(pt100TableFixture().ToADC(50), 1+cfg.RunawayPeriodTicks+1)
	require.True(t, fatal)
	require.Equal(t, "thermal runaway", reason)
}

func TestRunawayDeadlineRefreshesWhileInBand(t *testing.T) {
	cfg := hotendConfig()
	cfg.RunawayPeriodTicks = 100
	cfg.RunawayHysteresisC = 4
	c := &Controller{Config: cfg}
	c.SetTarget(100, 0)

	_, fatal, _ := c.Update(pt100TableFixture().ToADC(100), 1)
	require.False(t, fatal)

	var now uint32 = 1
	for i := 0; i < 10; i++ {
		now += cfg.RunawayPeriodTicks / 2
		_, fatal, _ = c.Update(pt100TableFixture().ToADC(99), now)
		require.False(t, fatal, "deadline should keep being refreshed while within hysteresis band")
	}
}

func TestWatchRiseTripsWithoutProgress(t *testing.T) {
	cfg := hotendConfig()
	cfg.WatchPeriodTicks = 50
	cfg.WatchIncreaseC = 5
	cfg.WatchMarginC = 5
	c := &Controller{Config: cfg, Current: 20, hasPrev: true}
	c.SetTarget(100, 0)
	require.True(t, c.watching)

	_, fatal, reason := c.Update(pt100TableFixture().ToADC(21), 51)
	require.True(t, fatal)
	require.Equal(t, "watch-rise: no temperature rise within watch period", reason)
}

func TestColdExtrudeGuard(t *testing.T) {
	c := &Controller{Current: 150}
	require.True(t, c.IsColdExtrude(170))
	require.False(t, c.IsColdExtrude(140))
}
