package route

// Leg is one point-to-point segment, by waypoint index.
type Leg struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// cursor yields the leg sequence for n waypoints under mode. It is a plain
// value so a task can hold it across ticks.
type cursor struct {
	n    int
	mode Mode
	k    int // legs yielded so far
}

func newCursor(n int, mode Mode) cursor {
	return cursor{n: n, mode: mode}
}

// next returns the next leg, or false once a finite mode is exhausted.
func (c *cursor) next() (Leg, bool) {
	if c.n < 2 {
		return Leg{}, false
	}
	last := c.n - 1
	var leg Leg

	switch c.mode {
	case Once:
		if c.k >= last {
			return Leg{}, false
		}
		leg = Leg{From: c.k, To: c.k + 1}

	case Loop:
		j := c.k % c.n
		if j < last {
			leg = Leg{From: j, To: j + 1}
		} else {
			leg = Leg{From: last, To: 0}
		}

	case PingPong:
		j := c.k % (2 * last)
		leg = pingPongLeg(j, last)

	case PingPongOnce:
		// Forward over every leg, then back down to waypoint 1.
		if c.k >= 2*c.n-3 {
			return Leg{}, false
		}
		leg = pingPongLeg(c.k, last)

	default:
		return Leg{}, false
	}

	c.k++
	return leg, true
}

func pingPongLeg(j, last int) Leg {
	if j < last {
		return Leg{From: j, To: j + 1}
	}
	b := j - last
	return Leg{From: last - b, To: last - b - 1}
}

// CycleLegs is the number of legs in one pass of mode over n waypoints.
func CycleLegs(n int, mode Mode) int {
	if n < 2 {
		return 0
	}
	switch mode {
	case Loop:
		return n
	case PingPong:
		return 2 * (n - 1)
	case PingPongOnce:
		return 2*n - 3
	default:
		return n - 1
	}
}

// Plan lists up to limit legs for n waypoints under mode.
func Plan(n int, mode Mode, limit int) []Leg {
	c := newCursor(n, mode)
	var legs []Leg
	for len(legs) < limit {
		leg, ok := c.next()
		if !ok {
			break
		}
		legs = append(legs, leg)
	}
	return legs
}
