package visbuf

import "github.com/taigrr/vbshade/pkg/math3d"

// Standard multisample positions in 1/16 pixel units relative to the
// pixel center.
var samplePatterns = map[int][][2]float64{
	1: {{0, 0}},
	2: {{4, 4}, {-4, -4}},
	4: {{-2, -6}, {6, -2}, {-6, 2}, {2, 6}},
	8: {{1, -3}, {-1, 3}, {5, 1}, {-3, -5}, {-5, 5}, {-7, -1}, {3, 7}, {7, -7}},
}

// ValidSampleCount reports whether n has a standard sample pattern.
func ValidSampleCount(n int) bool {
	_, ok := samplePatterns[n]
	return ok
}

// SamplePosition returns the position of sample s, measured from the
// pixel's top-left corner in pixel units. Sample 0 of the single-sample
// pattern is the pixel center.
func SamplePosition(samples, s int) math3d.Vec2 {
	pattern, ok := samplePatterns[samples]
	if !ok || s < 0 || s >= len(pattern) {
		return math3d.V2(0.5, 0.5)
	}
	p := pattern[s]
	return math3d.V2(0.5+p[0]/16, 0.5+p[1]/16)
}
