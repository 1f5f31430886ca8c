package thermal

// Point is one calibration vertex pairing a raw ADC reading with the
// temperature, in degrees Celsius, it represents.
type Point struct {
	ADC   int32
	TempC float64
}

// Table is a monotone piecewise-linear ADC<->temperature conversion.
// Points must be supplied in ascending TempC order; the ADC column may
// run either ascending (thermocouple amplifier) or descending (a
// negative-temperature-coefficient thermistor, the common case) and the
// table detects which from its own endpoints.
type Table struct {
	points []Point
	rising bool // true when ADC increases alongside temperature
}

// NewTable builds a Table from points, which must already be sorted by
// ascending TempC and contain at least two vertices.
func NewTable(points []Point) *Table {
	t := &Table{points: append([]Point(nil), points...)}
	if len(t.points) >= 2 {
		t.rising = t.points[len(t.points)-1].ADC > t.points[0].ADC
	}
	return t
}

// ToTempC converts a raw ADC reading to a calibrated temperature,
// clamping to the table's endpoints outside its calibrated range.
func (t *Table) ToTempC(adc int32) float64 {
	pts := t.points
	if len(pts) == 0 {
		return 0
	}
	for i := 0; i < len(pts)-1; i++ {
		a0, a1 := pts[i].ADC, pts[i+1].ADC
		if inRange(adc, a0, a1) {
			if a1 == a0 {
				return pts[i].TempC
			}
			frac := float64(adc-a0) / float64(a1-a0)
			return pts[i].TempC + frac*(pts[i+1].TempC-pts[i].TempC)
		}
	}
	if t.rising == (adc < pts[0].ADC) {
		return pts[0].TempC
	}
	return pts[len(pts)-1].TempC
}

// ToADC converts a calibrated temperature back to the raw ADC reading
// the table predicts for it - the inverse of ToTempC, exact at vertices.
func (t *Table) ToADC(tempC float64) int32 {
	pts := t.points
	if len(pts) == 0 {
		return 0
	}
	if tempC <= pts[0].TempC {
		return pts[0].ADC
	}
	if tempC >= pts[len(pts)-1].TempC {
		return pts[len(pts)-1].ADC
	}
	for i := 0; i < len(pts)-1; i++ {
		t0, t1 := pts[i].TempC, pts[i+1].TempC
		if tempC >= t0 && tempC <= t1 {
			if t1 == t0 {
				return pts[i].ADC
			}
			frac := (tempC - t0) / (t1 - t0)
			return pts[i].ADC + int32(frac*float64(pts[i+1].ADC-pts[i].ADC))
		}
	}
	return pts[len(pts)-1].ADC
}

func inRange(x, a, b int32) bool {
	if a <= b {
		return x >= a && x <= b
	}
	return x <= a && x >= b
}
