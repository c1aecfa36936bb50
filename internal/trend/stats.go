package trend

import (
	"math"

	"github.com/viterin/vek"
)

const epsilon = 1e-9

// fit is a least-squares line through (x, y).
type fit struct {
	slope float64
	se    float64
}

// linearFit returns the least-squares slope of y against x and its standard
// error. Fewer than two distinct x values give a zero slope.
func linearFit(x, y []float64) fit {
	n := len(x)
	if n < 2 {
		return fit{}
	}
	dx := vek.SubNumber(x, vek.Mean(x))
	dy := vek.SubNumber(y, vek.Mean(y))
	sxx := vek.Dot(dx, dx)
	if sxx < epsilon {
		return fit{}
	}
	slope := vek.Dot(dx, dy) / sxx
	if n <= 2 {
		return fit{slope: slope}
	}
	residuals := vek.Sub(dy, vek.MulNumber(dx, slope))
	ssr := vek.Dot(residuals, residuals)
	return fit{slope: slope, se: math.Sqrt(ssr / float64(n-2) / sxx)}
}

// confidence maps a fit onto [0, 1] as 1 - SE/max(|slope|, ε).
func (f fit) confidence() float64 {
	c := 1 - f.se/math.Max(math.Abs(f.slope), epsilon)
	return math.Min(1, math.Max(0, c))
}

// pearson returns the correlation coefficient of x and y. ok is false when
// either series is constant.
func pearson(x, y []float64) (r float64, ok bool) {
	if len(x) < 2 || len(x) != len(y) {
		return 0, false
	}
	dx := vek.SubNumber(x, vek.Mean(x))
	dy := vek.SubNumber(y, vek.Mean(y))
	den := math.Sqrt(vek.Dot(dx, dx) * vek.Dot(dy, dy))
	if den < epsilon {
		return 0, false
	}
	r = vek.Dot(dx, dy) / den
	return math.Min(1, math.Max(-1, r)), true
}
