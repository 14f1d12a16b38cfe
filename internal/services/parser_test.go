package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mapleroute/quotebot-backend/internal/domain"
)

func TestParseStructured(t *testing.T) {
	cases := []struct {
		name        string
		text        string
		wantBoxes   int
		wantPostals []string
	}{
		{
			name:        "boxes_and_postal_lines",
			text:        "113*50*20 7\n80*40*30 5\nB2V1R9",
			wantBoxes:   2,
			wantPostals: []string{"B2V1R9"},
		},
		{
			name:        "x_separator_and_trailing_postal",
			text:        "113x50x20 7 V6X1Z7",
			wantBoxes:   1,
			wantPostals: []string{"V6X1Z7"},
		},
		{
			name:        "unicode_separator",
			text:        "113×50×20 7",
			wantBoxes:   1,
			wantPostals: nil,
		},
		{
			name:        "two_postals_spaced",
			text:        "b2v 1r9\nV6X 1Z7",
			wantBoxes:   0,
			wantPostals: []string{"B2V1R9", "V6X1Z7"},
		},
		{
			name:        "duplicate_postal_deduped",
			text:        "B2V1R9\nB2V1R9",
			wantBoxes:   0,
			wantPostals: []string{"B2V1R9"},
		},
		{
			name:        "zero_dimension_rejected",
			text:        "0*50*20 7",
			wantBoxes:   0,
			wantPostals: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseStructured(tc.text)
			if tc.wantBoxes == 0 && len(tc.wantPostals) == 0 {
				if got != nil {
					t.Fatalf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected parse result, got nil")
			}
			if len(got.Packages) != tc.wantBoxes {
				t.Fatalf("got %d packages, want %d: %+v", len(got.Packages), tc.wantBoxes, got.Packages)
			}
			if len(got.PostalCodes) != len(tc.wantPostals) {
				t.Fatalf("got postals %v, want %v", got.PostalCodes, tc.wantPostals)
			}
			for i, pc := range tc.wantPostals {
				if got.PostalCodes[i] != pc {
					t.Fatalf("postal %d: got %q, want %q", i, got.PostalCodes[i], pc)
				}
			}
		})
	}
}

func TestParseStructuredFreeTextYieldsNothing(t *testing.T) {
	if got := ParseStructured("hi, I would like to ship a big box to my family"); got != nil {
		t.Fatalf("expected nil for free text, got %+v", got)
	}
}

type stubExtractor struct {
	raw   json.RawMessage
	err   error
	calls int
}

func (s *stubExtractor) ExtractShipment(ctx context.Context, text string) (json.RawMessage, error) {
	s.calls++
	return s.raw, s.err
}

func TestInputParserPrefersDeterministicGrammar(t *testing.T) {
	ext := &stubExtractor{raw: json.RawMessage(`{"packages":[],"postal_codes":[]}`)}
	p := NewInputParser(testLogger(t), ext)

	got := p.Parse(context.Background(), "113*50*20 7\nB2V1R9")
	if got == nil || len(got.Packages) != 1 {
		t.Fatalf("expected structured parse, got %+v", got)
	}
	if ext.calls != 0 {
		t.Fatalf("extractor must not be called when grammar succeeds, called %d times", ext.calls)
	}
}

func TestInputParserFallsBackToExtractor(t *testing.T) {
	ext := &stubExtractor{raw: json.RawMessage(
		`{"packages":[{"length":113,"width":50,"height":20,"weight":7}],"postal_codes":["b2v 1r9","nope"]}`)}
	p := NewInputParser(testLogger(t), ext)

	got := p.Parse(context.Background(), "customer says roughly 113 by 50 by 20 cm, 7 kilos, B2V 1R9")
	if got == nil {
		t.Fatal("expected extractor fallback result")
	}
	if len(got.Packages) != 1 || got.Packages[0] != (domain.Package{Length: 113, Width: 50, Height: 20, Weight: 7}) {
		t.Fatalf("unexpected packages: %+v", got.Packages)
	}
	if len(got.PostalCodes) != 1 || got.PostalCodes[0] != "B2V1R9" {
		t.Fatalf("unexpected postals: %v", got.PostalCodes)
	}
}

func TestInputParserExtractorFailure(t *testing.T) {
	p := NewInputParser(testLogger(t), &stubExtractor{err: errors.New("model unavailable")})
	if got := p.Parse(context.Background(), "gibberish"); got != nil {
		t.Fatalf("expected nil on extractor failure, got %+v", got)
	}
}

func TestInputParserRejectsNonPositiveExtractedPackages(t *testing.T) {
	ext := &stubExtractor{raw: json.RawMessage(
		`{"packages":[{"length":113,"width":0,"height":20,"weight":7}],"postal_codes":[]}`)}
	p := NewInputParser(testLogger(t), ext)
	if got := p.Parse(context.Background(), "whatever"); got != nil {
		t.Fatalf("expected nil when all packages malformed, got %+v", got)
	}
}
