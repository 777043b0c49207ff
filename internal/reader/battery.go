package reader

// BatteryCurve maps a battery voltage to a charge percentage. The real
// discharge curve depends on the cell and is supplied by the caller.
type BatteryCurve interface {
	Percentage(millivolts int) int
}

// LinearCurve interpolates linearly between Empty and Full millivolts.
type LinearCurve struct {
	Empty int
	Full  int
}

// DefaultBatteryCurve covers a single Li-ion cell.
var DefaultBatteryCurve = LinearCurve{Empty: 3300, Full: 4200}

func (c LinearCurve) Percentage(mv int) int {
	if c.Full <= c.Empty {
		return 0
	}
	switch {
	case mv <= c.Empty:
		return 0
	case mv >= c.Full:
		return 100
	}
	return (mv - c.Empty) * 100 / (c.Full - c.Empty)
}

// BatteryFunc adapts a function to BatteryCurve.
type BatteryFunc func(millivolts int) int

func (f BatteryFunc) Percentage(mv int) int { return f(mv) }
