package services

import (
	"math"

	"github.com/mapleroute/quotebot-backend/internal/domain"
)

// seaMinimumKg is the sea-freight minimum billable weight per box.
const seaMinimumKg = 15

// CalculateBoxWeights derives the domestic and international billable
// weights for each package under the given shipping mode. Output order
// matches input order.
func CalculateBoxWeights(packages []domain.Package, mode domain.Mode) []domain.BoxWeights {
	results := make([]domain.BoxWeights, 0, len(packages))

	for i, pkg := range packages {
		vol := pkg.VolumetricWeight()
		rVol := RoundSpecial(vol)
		rAct := RoundSpecial(pkg.Weight)

		minBill := MinBillableWeight(rAct, rVol)
		if mode == domain.ModeSea && math.Max(pkg.Weight, vol) < seaMinimumKg {
			minBill = seaMinimumKg
		}

		baseDom := math.Max(rVol, rAct)

		var baseIntl float64
		switch mode {
		case domain.ModeDomestic, domain.ModeSea:
			baseIntl = baseDom
		default:
			// Air: bill by actual unless volume is disproportionately large.
			if rVol > 2*rAct {
				baseIntl = rVol
			} else {
				baseIntl = rAct
			}
		}

		results = append(results, domain.BoxWeights{
			Index:       i + 1,
			Pkg:         pkg,
			RoundedVol:  rVol,
			RoundedAct:  rAct,
			DomWeight:   math.Max(baseDom, minBill),
			IntlWeight:  math.Max(baseIntl, minBill),
			MinBillable: minBill,
		})
	}

	return results
}
