package core

// DefaultMassBreakpoint is the mass above which absolute tolerances are
// rescaled as the equivalent ppm error at the breakpoint.
const DefaultMassBreakpoint = 500.0

// MassTolerance returns the absolute tolerance to apply at mass. At or below
// the breakpoint the base tolerance is used as is; above it the base tolerance
// is converted to ppm at the breakpoint and reapplied at mass, so the window
// widens monotonically with mass. The arithmetic mirrors PPM followed by
// MassFromPPM step for step so scores stay comparable with tuned cutoffs.
func MassTolerance(mass, base, breakpoint float64) float64 {
	if mass <= breakpoint {
		return base
	}
	ppm := PPM(breakpoint, breakpoint+base)
	if ppm < 0 {
		ppm = -ppm
	}
	return MassFromPPM(mass, ppm)
}
