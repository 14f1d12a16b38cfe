package line

import (
	"fmt"

	"github.com/mapleroute/quotebot-backend/internal/domain"
	"github.com/mapleroute/quotebot-backend/internal/services"
)

// Flex bubbles are built as raw JSON maps; the Messaging API validates the
// layout server-side and a typed model buys nothing here.

func kvRow(label, value string) map[string]any {
	return map[string]any{
		"type": "box", "layout": "horizontal",
		"contents": []any{
			map[string]any{"type": "text", "text": label,
				"size": "sm", "color": "#888888", "flex": 2},
			map[string]any{"type": "text", "text": value,
				"size": "sm", "flex": 5, "align": "end", "weight": "bold"},
		},
	}
}

func detailRow(label, value string) map[string]any {
	return map[string]any{
		"type": "box", "layout": "horizontal",
		"contents": []any{
			map[string]any{"type": "text", "text": label,
				"size": "xs", "color": "#888888", "flex": 3},
			map[string]any{"type": "text", "text": value,
				"size": "xs", "flex": 2, "align": "end", "wrap": true},
		},
	}
}

func messageButton(label, text, color string) map[string]any {
	btn := map[string]any{
		"type": "button", "height": "sm", "style": "primary",
		"action": map[string]any{"type": "message", "label": label, "text": text},
	}
	if color == "" {
		btn["style"] = "secondary"
	} else {
		btn["color"] = color
	}
	return btn
}

// shortETA compacts ISO dates for the narrow comparison column.
func shortETA(eta string) string {
	if eta == "" || eta == "N/A" {
		return "N/A"
	}
	if len(eta) == 10 && eta[4] == '-' {
		return eta[5:]
	}
	if len(eta) > 16 {
		return eta[:16]
	}
	return eta
}

func buildConfirmFlex(parsed domain.ParsedInput) map[string]any {
	body := []any{
		map[string]any{"type": "text", "text": "Package details",
			"weight": "bold", "size": "xl", "color": "#1a1a1a"},
		map[string]any{"type": "separator", "margin": "md"},
	}

	for i, pkg := range parsed.Packages {
		body = append(body, map[string]any{
			"type": "box", "layout": "vertical",
			"margin": "lg", "spacing": "sm",
			"contents": []any{
				map[string]any{"type": "text", "text": fmt.Sprintf("Box %d", i+1),
					"weight": "bold", "size": "md", "color": "#333333"},
				kvRow("Dimensions", fmt.Sprintf("%.0f × %.0f × %.0f cm", pkg.Length, pkg.Width, pkg.Height)),
				kvRow("Weight", fmt.Sprintf("%.1f kg", pkg.Weight)),
				kvRow("Volumetric", fmt.Sprintf("%.2f kg", pkg.VolumetricWeight())),
			},
		})
		body = append(body, map[string]any{"type": "separator", "margin": "md"})
	}

	var pcText string
	switch {
	case len(parsed.PostalCodes) >= 2:
		pcText = domain.FormatPostal(parsed.PostalCodes[0]) + " → " + domain.FormatPostal(parsed.PostalCodes[1])
	case len(parsed.PostalCodes) == 1:
		pcText = domain.FormatPostal(parsed.PostalCodes[0])
	default:
		pcText = "not detected"
	}

	body = append(body,
		map[string]any{
			"type": "box", "layout": "vertical", "margin": "lg", "spacing": "sm",
			"contents": []any{
				map[string]any{"type": "text", "text": "Postal code",
					"weight": "bold", "size": "md", "color": "#333333"},
				map[string]any{"type": "text", "text": pcText, "size": "sm", "weight": "bold"},
			},
		},
		map[string]any{"type": "separator", "margin": "md"},
		map[string]any{"type": "text", "text": "Is this correct?",
			"size": "sm", "color": "#888888", "margin": "lg"},
	)

	return map[string]any{
		"type": "bubble",
		"body": map[string]any{"type": "box", "layout": "vertical", "contents": body},
		"footer": map[string]any{
			"type": "box", "layout": "vertical", "spacing": "sm",
			"contents": []any{
				map[string]any{
					"type": "box", "layout": "horizontal", "spacing": "sm",
					"contents": []any{
						messageButton("Correct", services.CmdConfirm, "#28a745"),
						messageButton("Wrong", services.CmdReject, "#dc3545"),
					},
				},
				messageButton("Start over", services.CmdRetry, ""),
			},
		},
	}
}

func buildModeFlex() map[string]any {
	return map[string]any{
		"type": "bubble",
		"body": map[string]any{
			"type": "box", "layout": "vertical",
			"contents": []any{
				map[string]any{"type": "text", "text": "Pick a shipping mode",
					"weight": "bold", "size": "xl"},
				map[string]any{"type": "text", "wrap": true,
					"text": "One postal code detected. Choose how to ship from Canada to Taiwan:",
					"size": "sm", "color": "#888888", "margin": "md"},
			},
		},
		"footer": map[string]any{
			"type": "box", "layout": "horizontal", "spacing": "sm",
			"contents": []any{
				messageButton("Air", services.CmdAir, "#007bff"),
				messageButton("Sea", services.CmdSea, "#17a2b8"),
			},
		},
	}
}

func buildComparisonFlex(rows []services.ComparisonRow) map[string]any {
	body := []any{
		map[string]any{"type": "text", "text": "Rate comparison",
			"weight": "bold", "size": "xl", "color": "#1a1a1a"},
		map[string]any{"type": "separator", "margin": "md"},
	}

	for idx, row := range rows {
		svc := row.Quote
		isBest := idx == 0

		var contents []any

		var badges []any
		if isBest {
			badges = append(badges, badge("Cheapest", "#28a745"))
		}
		if row.Selected {
			badges = append(badges, badge("Selected", "#dc3545"))
		}
		if len(badges) > 0 {
			contents = append(contents, map[string]any{
				"type": "box", "layout": "horizontal", "contents": badges,
			})
		}

		textColor := "#333333"
		bgColor := ""
		if row.Selected {
			textColor, bgColor = "#dc3545", "#fff5f5"
		} else if isBest {
			textColor, bgColor = "#28a745", "#f0fff0"
		}

		heading := svc.Label()
		if row.Warn {
			heading = "⚠️ " + heading
		}

		contents = append(contents, map[string]any{
			"type": "box", "layout": "horizontal",
			"contents": []any{
				map[string]any{"type": "text", "text": heading,
					"size": "sm", "weight": "bold", "flex": 5, "wrap": true, "color": textColor},
				map[string]any{"type": "text", "text": fmt.Sprintf("$%.2f", svc.Total),
					"size": "sm", "weight": "bold", "flex": 2, "align": "end", "color": textColor},
			},
		})

		contents = append(contents, detailRow("Base", fmt.Sprintf("$%.2f", svc.Freight)))
		if svc.Surcharges > 0 {
			contents = append(contents, detailRow("Surcharges", fmt.Sprintf("$%.2f", svc.Surcharges)))
		}
		if svc.Tax > 0 {
			contents = append(contents, detailRow("Tax", fmt.Sprintf("$%.2f", svc.Tax)))
		}
		contents = append(contents, detailRow("ETA", shortETA(svc.ETA)))

		svcBox := map[string]any{
			"type": "box", "layout": "vertical",
			"margin": "lg", "spacing": "xs",
			"contents": contents,
		}
		if bgColor != "" {
			svcBox["backgroundColor"] = bgColor
			svcBox["cornerRadius"] = "md"
			svcBox["paddingAll"] = "sm"
		}

		body = append(body, svcBox)
		if idx < len(rows)-1 {
			body = append(body, map[string]any{"type": "separator", "margin": "sm"})
		}
	}

	return map[string]any{
		"type": "bubble", "size": "mega",
		"body": map[string]any{"type": "box", "layout": "vertical", "contents": body},
	}
}

func badge(text, color string) map[string]any {
	return map[string]any{
		"type": "box", "layout": "vertical",
		"backgroundColor": color, "cornerRadius": "sm",
		"paddingAll": "xs", "margin": "sm", "width": "70px",
		"contents": []any{
			map[string]any{"type": "text", "text": text, "size": "xxs",
				"color": "#ffffff", "weight": "bold", "align": "center"},
		},
	}
}

func buildActionsFlex(actions []string) map[string]any {
	var buttons []any
	for _, action := range actions {
		switch action {
		case services.ActionNewQuote:
			buttons = append(buttons, messageButton("New quote", services.CmdStart, ""))
		case services.ActionDone:
			buttons = append(buttons, messageButton("Done", "quote done", "#6c757d"))
		}
	}

	return map[string]any{
		"type": "bubble",
		"body": map[string]any{
			"type": "box", "layout": "vertical",
			"contents": []any{
				map[string]any{"type": "text", "text": "What next?",
					"weight": "bold", "size": "lg"},
				map[string]any{"type": "text", "text": "Pick a follow-up action",
					"size": "xs", "color": "#888888", "margin": "sm"},
			},
		},
		"footer": map[string]any{
			"type": "box", "layout": "vertical", "spacing": "sm",
			"contents": buttons,
		},
	}
}
