package services

import (
	"fmt"
	"strings"

	"github.com/mapleroute/quotebot-backend/internal/domain"
)

// WarehousePostal is the international consolidation warehouse used as the
// destination for the domestic leg of air and sea shipments.
const WarehousePostal = "V6X1Z7"

// International per-kilogram surcharge rates by mode and weight band.
const (
	intlRateAirLight = 14.0 // total intl weight < 3 kg
	intlRateAirHeavy = 10.0
	intlRateSea      = 5.0
	intlRateDomestic = 0.5
)

// Local-delivery surcharge for air shipments originating outside the
// metropolitan geofence, fixed in TWD and converted at a fixed rate.
const (
	localDeliveryFeeTWD = 240.0
	twdPerCAD           = 24.0
	localDeliveryFeeCAD = localDeliveryFeeTWD / twdPerCAD
)

// warnServiceNames marks services with a known discrepancy between the
// programmatic quote and the carrier's authoritative counter price.
var warnServiceNames = []string{
	"FEDEX_EXPRESS_SAVER",
	"STANDARD_OVERNIGHT",
	"UPS Expedited",
}

// IsWarnService reports whether the service name matches the
// pricing-discrepancy allow-list (substring match).
func IsWarnService(serviceName string) bool {
	for _, ws := range warnServiceNames {
		if strings.Contains(serviceName, ws) {
			return true
		}
	}
	return false
}

var warnDisclaimer = fmt.Sprintf(
	"Note: programmatic quotes for %s may differ from the carrier counter price; verify the amount on the carrier site before invoicing.",
	strings.Join(warnServiceNames, ", "))

// IntlRate returns the international per-kilogram surcharge for the mode
// given the total international billable weight of the shipment.
func IntlRate(mode domain.Mode, totalIntlWeight float64) float64 {
	switch mode {
	case domain.ModeAir:
		if totalIntlWeight < 3 {
			return intlRateAirLight
		}
		return intlRateAirHeavy
	case domain.ModeSea:
		return intlRateSea
	case domain.ModeDomestic:
		return intlRateDomestic
	}
	return 0
}

// IsMetroOrigin reports whether a postal code falls inside the metropolitan
// geofence (Greater Vancouver, loosely V3-V7).
func IsMetroOrigin(postal string) bool {
	pc := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(postal), " ", ""))
	if len(pc) < 2 {
		return false
	}
	if pc[0] != 'V' {
		return false
	}
	switch pc[1] {
	case '3', '4', '5', '6', '7':
		return true
	}
	return false
}

// BoxLine is one box's contribution to the cost breakdown.
type BoxLine struct {
	Index       int
	DimText     string
	VolWeight   float64 // raw volumetric weight
	ActWeight   float64 // raw actual weight
	RoundedVol  float64
	RoundedAct  float64
	Comparison  string // ">>" | ">" | "<" | "="
	Expr        string // the cost expression as shown to the requester
	Cost        float64
	MinBillable float64
}

// CostBreakdown is the machine-composable result of a quote computation.
// GrandTotal is the exact sum of box costs plus LocalDeliveryFee.
type CostBreakdown struct {
	Mode             domain.Mode
	FromPostal       string
	ToPostal         string
	Service          domain.ServiceQuote
	EffectiveDomRate float64 // cheapest total / aggregate domestic weight
	IntlRate         float64
	DisplayRate      float64 // effective domestic + international per-kg
	Boxes            []BoxLine
	LocalDeliveryFee float64 // 0 when not applied
	GrandTotal       float64
	Disclaimer       string // non-empty for discrepancy-flagged services
}

// BuildCostBreakdown derives the full cost narrative from the billable
// weights and the selected service quote.
func BuildCostBreakdown(mode domain.Mode, fromPostal, toPostal string,
	boxWeights []domain.BoxWeights, selected domain.ServiceQuote) CostBreakdown {

	var totalDom, totalIntl float64
	for _, bw := range boxWeights {
		totalDom += bw.DomWeight
		totalIntl += bw.IntlWeight
	}

	intlRate := IntlRate(mode, totalIntl)

	var effDomRate float64
	if totalDom > 0 {
		effDomRate = selected.Total / totalDom
	}
	displayRate := effDomRate + intlRate

	bd := CostBreakdown{
		Mode:             mode,
		FromPostal:       fromPostal,
		ToPostal:         toPostal,
		Service:          selected,
		EffectiveDomRate: effDomRate,
		IntlRate:         intlRate,
		DisplayRate:      displayRate,
	}

	isDomestic := mode == domain.ModeDomestic
	for _, bw := range boxWeights {
		cmp := "="
		switch {
		case bw.RoundedVol > 2*bw.RoundedAct:
			cmp = ">>"
		case bw.RoundedVol > bw.RoundedAct:
			cmp = ">"
		case bw.RoundedVol < bw.RoundedAct:
			cmp = "<"
		}

		var cost float64
		var expr string
		if isDomestic {
			cost = displayRate * bw.DomWeight
			expr = fmt.Sprintf("%.3f*%.1f", displayRate, bw.DomWeight)
		} else {
			cost = effDomRate*bw.DomWeight + intlRate*bw.IntlWeight
			expr = fmt.Sprintf("%.3f*%.1f + %.3f*%.1f", effDomRate, bw.DomWeight, intlRate, bw.IntlWeight)
		}

		bd.Boxes = append(bd.Boxes, BoxLine{
			Index:       bw.Index,
			DimText:     bw.Pkg.DimText(),
			VolWeight:   bw.Pkg.VolumetricWeight(),
			ActWeight:   bw.Pkg.Weight,
			RoundedVol:  bw.RoundedVol,
			RoundedAct:  bw.RoundedAct,
			Comparison:  cmp,
			Expr:        expr,
			Cost:        cost,
			MinBillable: bw.MinBillable,
		})
		bd.GrandTotal += cost
	}

	// Applied once per shipment, never per box.
	if mode == domain.ModeAir && !IsMetroOrigin(fromPostal) {
		bd.LocalDeliveryFee = localDeliveryFeeCAD
		bd.GrandTotal += localDeliveryFeeCAD
	}

	if IsWarnService(selected.Name) {
		bd.Disclaimer = warnDisclaimer
	}

	return bd
}

// Render produces the requester-facing cost narrative.
func (bd CostBreakdown) Render() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Preliminary %s quote:\n\n", modeLabel(bd.Mode)))

	eta := bd.Service.ETA
	switch bd.Mode {
	case domain.ModeAir:
		b.WriteString(fmt.Sprintf("If shipped today, expected at the international air warehouse by %s.\n", eta))
		b.WriteString("Final-leg delivery: roughly 3-8 business days after the warehouse.\n")
	case domain.ModeSea:
		b.WriteString(fmt.Sprintf("If shipped today, expected at the sea-freight warehouse by %s.\n", eta))
		b.WriteString("Ocean transit after the warehouse: roughly 1-3 months.\n")
	case domain.ModeDomestic:
		b.WriteString(fmt.Sprintf("If shipped today, expected delivery by %s.\n", eta))
	}
	b.WriteString("Actual delivery dates depend on carrier conditions.\n\n")

	if bd.Mode == domain.ModeDomestic {
		b.WriteString(fmt.Sprintf("From %s to %s\n", domain.FormatPostal(bd.FromPostal), domain.FormatPostal(bd.ToPostal)))
	} else {
		b.WriteString(fmt.Sprintf("From: %s\n", domain.FormatPostal(bd.FromPostal)))
	}
	b.WriteString(fmt.Sprintf("System rate %.3f CAD/kg via %s\n\n", bd.DisplayRate, bd.Service.Label()))

	for _, box := range bd.Boxes {
		b.WriteString(fmt.Sprintf("Box %d:\n", box.Index))
		b.WriteString(fmt.Sprintf("%s/5000 = %.2f -> %.1fkg %s %.2fkg -> %.1fkg\n",
			box.DimText, box.VolWeight, box.RoundedVol, box.Comparison, box.ActWeight, box.RoundedAct))
		b.WriteString(fmt.Sprintf("%s = %.2f CAD\n", box.Expr, box.Cost))
		switch box.MinBillable {
		case seaMinimumKg:
			b.WriteString("(sea-freight minimum: billed at 15 kg)\n")
		case 1:
			b.WriteString("(under 1 kg: billed at 1 kg)\n")
		case 2:
			b.WriteString("(between 1 and 2 kg: billed at 2 kg)\n")
		}
		b.WriteString("\n")
	}

	if bd.LocalDeliveryFee > 0 {
		b.WriteString(fmt.Sprintf("Origin outside the metro area, local-delivery surcharge: %.0f/%.1f = %.2f CAD\n",
			localDeliveryFeeTWD, twdPerCAD, bd.LocalDeliveryFee))
	}

	parts := make([]string, 0, len(bd.Boxes)+1)
	for _, box := range bd.Boxes {
		parts = append(parts, fmt.Sprintf("%.2f", box.Cost))
	}
	if bd.LocalDeliveryFee > 0 {
		parts = append(parts, fmt.Sprintf("%.2f", bd.LocalDeliveryFee))
	}
	if len(parts) > 1 {
		b.WriteString(fmt.Sprintf("Total: %s = %.2f CAD\n", strings.Join(parts, " + "), bd.GrandTotal))
	} else {
		b.WriteString(fmt.Sprintf("Total: %.2f CAD\n", bd.GrandTotal))
	}

	if bd.Disclaimer != "" {
		b.WriteString("\n" + bd.Disclaimer + "\n")
	}

	return b.String()
}

func modeLabel(m domain.Mode) string {
	switch m {
	case domain.ModeAir:
		return "air-freight"
	case domain.ModeSea:
		return "sea-freight"
	case domain.ModeDomestic:
		return "domestic"
	}
	return string(m)
}
