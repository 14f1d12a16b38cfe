package services

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/mapleroute/quotebot-backend/internal/domain"
	"github.com/mapleroute/quotebot-backend/internal/platform/logger"
)

// postalRe matches a six-character Canadian postal code.
var postalRe = regexp.MustCompile(`[A-Za-z]\d[A-Za-z]\d[A-Za-z]\d`)

var (
	dimHintRe = regexp.MustCompile(`(?i)\d+\s*[*x×]\s*\d+`)
	boxLineRe = regexp.MustCompile(`(?i)^([\d.]+)\s*[*x×]\s*([\d.]+)\s*[*x×]\s*([\d.]+)\s+([\d.]+)\s*(.*)$`)
)

// ParseStructured parses the strict line grammar: one "L*W*H weight" line
// per box, postal codes on their own lines or trailing a box line. Returns
// nil when nothing usable was extracted.
func ParseStructured(text string) *domain.ParsedInput {
	var packages []domain.Package
	var postalCodes []string

	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		compact := strings.ToUpper(strings.ReplaceAll(line, " ", ""))
		if pcs := postalRe.FindAllString(compact, -1); len(pcs) > 0 && !dimHintRe.MatchString(line) {
			postalCodes = appendPostals(postalCodes, pcs)
			continue
		}

		m := boxLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		pkg := domain.Package{
			Length: parseFloat(m[1]),
			Width:  parseFloat(m[2]),
			Height: parseFloat(m[3]),
			Weight: parseFloat(m[4]),
		}
		if pkg.Length > 0 && pkg.Width > 0 && pkg.Height > 0 && pkg.Weight > 0 {
			packages = append(packages, pkg)
		}
		rest := strings.ToUpper(strings.ReplaceAll(m[5], " ", ""))
		postalCodes = appendPostals(postalCodes, postalRe.FindAllString(rest, -1))
	}

	if len(packages) == 0 && len(postalCodes) == 0 {
		return nil
	}
	return &domain.ParsedInput{Packages: packages, PostalCodes: postalCodes, RawText: text}
}

func appendPostals(existing []string, found []string) []string {
	for _, pc := range found {
		pc = strings.ToUpper(pc)
		dup := false
		for _, have := range existing {
			if have == pc {
				dup = true
				break
			}
		}
		if !dup {
			existing = append(existing, pc)
		}
	}
	return existing
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// ShipmentExtractor is the probabilistic free-text parse capability. It
// returns raw JSON shaped as {"packages": [...], "postal_codes": [...]}.
type ShipmentExtractor interface {
	ExtractShipment(ctx context.Context, text string) (json.RawMessage, error)
}

// InputParser turns accumulated free text into a ParsedInput, trying the
// deterministic grammar before delegating to the extraction capability.
type InputParser interface {
	Parse(ctx context.Context, text string) *domain.ParsedInput
}

type inputParser struct {
	log       *logger.Logger
	extractor ShipmentExtractor
}

func NewInputParser(log *logger.Logger, extractor ShipmentExtractor) InputParser {
	return &inputParser{
		log:       log.With("service", "InputParser"),
		extractor: extractor,
	}
}

// Parse tries the structured grammar first and falls back to the language
// model only when the grammar yields no packages.
func (p *inputParser) Parse(ctx context.Context, text string) *domain.ParsedInput {
	if parsed := ParseStructured(text); parsed != nil && len(parsed.Packages) > 0 {
		return parsed
	}
	return p.extract(ctx, text)
}

type extractedPayload struct {
	Packages []struct {
		Length float64 `json:"length"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
		Weight float64 `json:"weight"`
	} `json:"packages"`
	PostalCodes []string `json:"postal_codes"`
}

func (p *inputParser) extract(ctx context.Context, text string) *domain.ParsedInput {
	if p.extractor == nil {
		return nil
	}
	raw, err := p.extractor.ExtractShipment(ctx, text)
	if err != nil {
		p.log.Error("shipment extraction failed", "error", err)
		return nil
	}

	var payload extractedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		p.log.Error("shipment extraction returned invalid JSON", "error", err)
		return nil
	}

	parsed := &domain.ParsedInput{RawText: text}
	for _, pkg := range payload.Packages {
		if pkg.Length > 0 && pkg.Width > 0 && pkg.Height > 0 && pkg.Weight > 0 {
			parsed.Packages = append(parsed.Packages, domain.Package{
				Length: pkg.Length,
				Width:  pkg.Width,
				Height: pkg.Height,
				Weight: pkg.Weight,
			})
		}
	}
	for _, pc := range payload.PostalCodes {
		cleaned := strings.ToUpper(strings.ReplaceAll(pc, " ", ""))
		if postalRe.MatchString(cleaned) && len(cleaned) == 6 {
			parsed.PostalCodes = appendPostals(parsed.PostalCodes, []string{cleaned})
		}
	}

	if len(parsed.Packages) == 0 && len(parsed.PostalCodes) == 0 {
		return nil
	}
	return parsed
}
