package services

import "math"

// weightEps absorbs floating-point error at rounding boundaries.
const weightEps = 1e-6

// RoundSpecial rounds a weight in kilograms to the billing increment.
//
//	3-5 kg : 0.00-0.04 -> floor, 0.05-0.99 -> next int (no half-kilo step)
//	else   : 0.00-0.04 -> floor, 0.05-0.50 -> +0.5, 0.51-0.99 -> next int
func RoundSpecial(val float64) float64 {
	f := math.Floor(val + weightEps)
	d := val - f

	if val >= 3 && val < 5 {
		if d < 0.05-weightEps {
			return f
		}
		return f + 1
	}

	if d < 0.05-weightEps {
		return f
	}
	if d <= 0.50+weightEps {
		return f + 0.5
	}
	return f + 1
}

// MinBillableWeight returns the minimum billable weight floor for a box, or
// 0 when no floor applies and the computed weight stands.
func MinBillableWeight(actKg, volKg float64) float64 {
	maxRaw := math.Max(actKg, volKg)
	if maxRaw < 1+weightEps {
		return 1
	}
	if maxRaw < 2+weightEps {
		return 2
	}
	return 0
}
