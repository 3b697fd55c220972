package mapview

import (
	"fmt"
	"math"
)

// DefaultRampSteps is the number of distinct marker colors. Stations placed
// after the last step share its color.
// TODO: confirm with product whether stations past the ramp should keep
// sharing the last color or the ramp should stretch to the station count.
const DefaultRampSteps = 5

// RampColor returns the color of the n-th placed marker (1-based), going from
// red for the first to blue at step `steps`.
func RampColor(n, steps int) string {
	if steps < 2 {
		return "rgb(255, 0, 0)"
	}
	if n < 1 {
		n = 1
	}
	if n > steps {
		n = steps
	}
	frac := float64(n-1) / float64(steps-1)
	red := math.Round(255 - 255*frac)
	blue := math.Round(255 * frac)
	return fmt.Sprintf("rgb(%d, 0, %d)", int(red), int(blue))
}
