package main

import "math"

// loudnessCurve maps a mixer percentage (0..100) onto an attenuation in dB.
//
// The curve is exponential in amplitude over dynamicRangeDB, with a linear
// taper below 10% so that low settings fade towards the floor instead of
// jumping to it. percentage must already be within [0, 100] and
// dynamicRangeDB must be > 0.
func loudnessCurve(percentage, dynamicRangeDB float64) float64 {
	x := percentage / 100.0
	yMax := math.Pow(10, dynamicRangeDB/20.0)
	a := 1 / yMax
	b := math.Log(yMax)

	y := a * math.Exp(b*x)
	if x < 0.1 {
		y = x * 10 * a * math.Exp(0.1*b)
	}
	if y == 0 {
		y = curveFloor
	}
	return 20 * math.Log10(y)
}

// mixerVolumeDB converts an MPD mixer percentage into the CamillaDSP volume.
// The offset always attenuates, whatever its sign.
func mixerVolumeDB(percentage int, dynamicRangeDB, offsetDB float64) float64 {
	return loudnessCurve(float64(percentage), dynamicRangeDB) - math.Abs(offsetDB)
}

// isMuteTransition reports whether a change from previous to current crosses 0%.
func isMuteTransition(previous *int, current int) bool {
	return current == 0 || (previous != nil && *previous == 0)
}
