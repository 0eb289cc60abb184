package sim

import "math"

// FP is a Q16.16 fixed-point scalar: a signed 32-bit integer with 16
// fractional bits. Every operation on FP must be bit-identical across
// peers — this is the substrate the rest of the engine's determinism rests
// on, so nothing here may consult host floating-point trig/sqrt at runtime
// (only at package-init time, to build the lookup table below).
type FP int32

// ToFixed converts a float64 to FP, rounding half-away-from-zero on the
// magnitude (spec 4.1: "round-half-away-from-zero ... to preserve
// reproducibility across platforms").
func ToFixed(x float64) FP {
	scaled := x * float64(FPOne)
	if scaled >= 0 {
		return FP(math.Floor(scaled + 0.5))
	}
	return FP(math.Ceil(scaled - 0.5))
}

// Float converts an FP back to float64.
func (f FP) Float() float64 {
	return float64(f) / float64(FPOne)
}

// FPMul multiplies two fixed-point scalars via a 64-bit intermediate.
func FPMul(a, b FP) FP {
	return FP((int64(a) * int64(b)) >> FPShift)
}

// FPDiv divides two fixed-point scalars via a 64-bit intermediate,
// saturating to +-INT32_MAX on division by zero (spec 4.1).
func FPDiv(a, b FP) FP {
	if b == 0 {
		if a < 0 {
			return FP(math.MinInt32 + 1) // -INT32_MAX
		}
		return FP(math.MaxInt32)
	}
	return FP((int64(a) << FPShift) / int64(b))
}

// FPAbs returns the absolute value of f.
func FPAbs(f FP) FP {
	if f < 0 {
		return -f
	}
	return f
}

// FPMin returns the smaller of a and b.
func FPMin(a, b FP) FP {
	if a < b {
		return a
	}
	return b
}

// FPMax returns the larger of a and b.
func FPMax(a, b FP) FP {
	if a > b {
		return a
	}
	return b
}

// FPClamp clamps f to [lo, hi].
func FPClamp(f, lo, hi FP) FP {
	return FPMax(lo, FPMin(hi, f))
}

// FPFloor rounds f toward negative infinity to a whole fixed-point value.
func FPFloor(f FP) FP {
	return f &^ (FPOne - 1)
}

// FPCeil rounds f toward positive infinity to a whole fixed-point value.
func FPCeil(f FP) FP {
	floored := FPFloor(f)
	if floored == f {
		return floored
	}
	return floored + FPOne
}

// sinQuarterWaveLUT holds sin(theta) for 257 evenly spaced samples over
// [0, pi/2], the same "precompute, then linearly interpolate at runtime"
// idiom as the teacher's audio_lut.go sinLUT/fastSin, sized per spec 4.1's
// "257-entry quarter-wave LUT".
var sinQuarterWaveLUT [sinLUTEntries]FP

func init() {
	for i := 0; i < sinLUTEntries; i++ {
		theta := float64(i) / float64(sinLUTEntries-1) * (math.Pi / 2)
		sinQuarterWaveLUT[i] = ToFixed(math.Sin(theta))
	}
}

// FPSin computes sin(angle) by reducing into [0, 2pi), folding into
// [0, pi/2], indexing the quarter-wave LUT with linear interpolation, and
// negating if the original angle fell in the lower half-plane (spec 4.1).
func FPSin(angle FP) FP {
	a := angle % FP2Pi
	if a < 0 {
		a += FP2Pi
	}

	negate := false
	if a > FPPi {
		a -= FPPi
		negate = true
	}
	if a > FPHalfPi {
		a = FPPi - a
	}

	// a is now in [0, FPHalfPi]; map to a fractional LUT index.
	idxScaled := int64(a) * int64(sinLUTEntries-1)
	idx := idxScaled / int64(FPHalfPi)
	frac := idxScaled - idx*int64(FPHalfPi)

	if idx >= int64(sinLUTEntries-1) {
		idx = int64(sinLUTEntries - 2)
		frac = int64(FPHalfPi)
	}

	lo := sinQuarterWaveLUT[idx]
	hi := sinQuarterWaveLUT[idx+1]
	interp := lo + FP((int64(hi-lo)*frac)/int64(FPHalfPi))

	if negate {
		return -interp
	}
	return interp
}

// FPCos computes cos(angle) = sin(angle + pi/2).
func FPCos(angle FP) FP {
	return FPSin(angle + FPHalfPi)
}

// fpAtan2Approx is the single-term linear approximation constant from spec
// 4.1 ("~0.7854 * FP_ONE", i.e. pi/4 in fixed point).
const fpAtan2Approx FP = 51472 // pi/4 * FPOne, rounded

// FPAtan2 returns the angle of (y, x) using standard octant reduction and a
// single-term linear approximation (pi/4 * ratio within each octant). The
// result is exact at multiples of 45 degrees; between them the error grows
// to about 4 degrees, so a (FPCos(t), FPSin(t)) -> FPAtan2 round trip is not
// stable to within one LUT step.
func FPAtan2(y, x FP) FP {
	if x == 0 && y == 0 {
		return 0
	}

	absY := FPAbs(y)
	absX := FPAbs(x)

	var angle FP
	if absX >= absY {
		r := FPDiv(absY, absX)
		angle = FPMul(fpAtan2Approx, r)
	} else {
		r := FPDiv(absX, absY)
		angle = FPHalfPi - FPMul(fpAtan2Approx, r)
	}

	switch {
	case x >= 0 && y >= 0:
		return angle
	case x < 0 && y >= 0:
		return FPPi - angle
	case x < 0 && y < 0:
		return -(FPPi - angle)
	default: // x >= 0 && y < 0
		return -angle
	}
}

// FPSqrt returns the fixed-point square root of x, 0 for negative inputs
// (spec 4.1: "sqrt of negatives returns 0").
func FPSqrt(x FP) FP {
	if x <= 0 {
		return 0
	}
	// Widen to avoid losing fractional precision: sqrt(x/FPOne) * FPOne
	// == sqrt(x * FPOne) computed in the int64 domain.
	return FP(isqrt(int64(x) << FPShift))
}

func isqrt(n int64) int64 {
	if n < 2 {
		return n
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}
