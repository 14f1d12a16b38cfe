package domain

import (
	"fmt"
	"strings"
)

// Mode is the shipping mode a quote is computed for.
type Mode string

const (
	ModeAir      Mode = "air"      // international air freight
	ModeSea      Mode = "sea"      // international sea freight
	ModeDomestic Mode = "domestic" // domestic-only, two Canadian postal codes
)

// VolumetricDivisor converts parcel volume (cm^3) to kilograms.
const VolumetricDivisor = 5000.0

// Package is one parcel as described by the customer. Dimensions are in
// centimeters, weight is the actual scale weight in kilograms. Immutable
// once parsed.
type Package struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Weight float64 `json:"weight"`
}

func (p Package) VolumetricWeight() float64 {
	return p.Length * p.Width * p.Height / VolumetricDivisor
}

// DimText renders "L*W*H" dropping unnecessary .0 decimals.
func (p Package) DimText() string {
	return fmt.Sprintf("%s*%s*%s", fmtDim(p.Length), fmtDim(p.Width), fmtDim(p.Height))
}

func fmtDim(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}

// ParsedInput is the structured result of parsing the customer's text so
// far. Replaced wholesale on every reparse, never mutated.
type ParsedInput struct {
	Packages    []Package `json:"packages"`
	PostalCodes []string  `json:"postal_codes"`
	RawText     string    `json:"raw_text,omitempty"`
}

// BoxWeights carries the billable-weight derivation for one package.
// Recomputed whenever mode or packages change; never stored on its own.
type BoxWeights struct {
	Index       int     // 1-based box number
	Pkg         Package
	RoundedVol  float64 // rounded volumetric weight
	RoundedAct  float64 // rounded actual weight
	DomWeight   float64 // domestic-leg billable weight
	IntlWeight  float64 // international-leg billable weight
	MinBillable float64 // applied minimum-billable override (0 = none)
}

// Quote sources.
const (
	SourceTripleEagle = "TE"
	SourceCanadaPost  = "CP"
)

// ServiceQuote is one carrier service offer normalized across quote
// capabilities.
type ServiceQuote struct {
	Carrier          string  `json:"carrier"`
	Name             string  `json:"name"`
	Freight          float64 `json:"freight"`
	Surcharges       float64 `json:"surcharges"`
	Tax              float64 `json:"tax"`
	Total            float64 `json:"total"`
	ETA              string  `json:"eta"`
	SurchargeDetails string  `json:"surcharge_details,omitempty"`
	Source           string  `json:"source"`
}

// Label is the "Carrier - Service" pair shown to the requester.
func (q ServiceQuote) Label() string {
	return q.Carrier + " - " + q.Name
}

// FormatPostal renders a six-character Canadian postal code as "XXX XXX".
func FormatPostal(pc string) string {
	pc = strings.ToUpper(strings.ReplaceAll(pc, " ", ""))
	if len(pc) == 6 {
		return pc[:3] + " " + pc[3:]
	}
	return pc
}
