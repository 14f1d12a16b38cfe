package services

import (
	"reflect"
	"testing"

	"github.com/mapleroute/quotebot-backend/internal/domain"
)

func TestCalculateBoxWeightsAir(t *testing.T) {
	cases := []struct {
		name     string
		pkg      domain.Package
		wantDom  float64
		wantIntl float64
		wantMin  float64
	}{
		{
			// 113*50*20/5000 = 22.6 -> 23; actual 7 -> 7; vol > 2*act so intl bills by volume
			name:     "volume_dominant",
			pkg:      domain.Package{Length: 113, Width: 50, Height: 20, Weight: 7},
			wantDom:  23,
			wantIntl: 23,
			wantMin:  0,
		},
		{
			// vol 30*30*30/5000 = 5.4 -> 5.5; actual 6 -> 6; vol < 2*act so intl bills by actual
			name:     "actual_dominant",
			pkg:      domain.Package{Length: 30, Width: 30, Height: 30, Weight: 6},
			wantDom:  6,
			wantIntl: 6,
			wantMin:  0,
		},
		{
			// vol 20*25*10/5000 = 1 -> 1; actual 0.5 -> 0.5; boundary: rVol == 2*rAct bills by actual,
			// then the 1 kg floor applies (max raw weight 1 is within tolerance of the 1 kg tier)
			name:     "double_boundary_bills_actual",
			pkg:      domain.Package{Length: 20, Width: 25, Height: 10, Weight: 0.5},
			wantDom:  1,
			wantIntl: 1,
			wantMin:  1,
		},
		{
			// vol 25*20*15/5000 = 1.5 -> 1.5; actual 1.2 -> 1.5; min floor 2 kg lifts both legs
			name:     "min_two_kilo_floor",
			pkg:      domain.Package{Length: 25, Width: 20, Height: 15, Weight: 1.2},
			wantDom:  2,
			wantIntl: 2,
			wantMin:  2,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CalculateBoxWeights([]domain.Package{tc.pkg}, domain.ModeAir)
			if len(got) != 1 {
				t.Fatalf("expected 1 result, got %d", len(got))
			}
			bw := got[0]
			if bw.DomWeight != tc.wantDom || bw.IntlWeight != tc.wantIntl || bw.MinBillable != tc.wantMin {
				t.Fatalf("got dom=%v intl=%v min=%v, want dom=%v intl=%v min=%v",
					bw.DomWeight, bw.IntlWeight, bw.MinBillable, tc.wantDom, tc.wantIntl, tc.wantMin)
			}
		})
	}
}

func TestCalculateBoxWeightsSeaMinimum(t *testing.T) {
	pkgs := []domain.Package{
		{Length: 30, Width: 30, Height: 30, Weight: 6},   // max raw weight < 15 -> 15 kg floor
		{Length: 113, Width: 50, Height: 20, Weight: 7},  // vol 22.6 >= 15 -> normal floors
	}
	got := CalculateBoxWeights(pkgs, domain.ModeSea)

	if got[0].MinBillable != 15 || got[0].DomWeight != 15 || got[0].IntlWeight != 15 {
		t.Fatalf("light sea box: got min=%v dom=%v intl=%v, want 15 across",
			got[0].MinBillable, got[0].DomWeight, got[0].IntlWeight)
	}
	if got[1].MinBillable != 0 {
		t.Fatalf("heavy sea box: got min=%v, want 0", got[1].MinBillable)
	}
	if got[1].DomWeight != 23 || got[1].IntlWeight != 23 {
		t.Fatalf("heavy sea box: got dom=%v intl=%v, want 23/23", got[1].DomWeight, got[1].IntlWeight)
	}
}

func TestCalculateBoxWeightsDomestic(t *testing.T) {
	pkgs := []domain.Package{{Length: 113, Width: 50, Height: 20, Weight: 7}}
	got := CalculateBoxWeights(pkgs, domain.ModeDomestic)
	// Domestic: both legs share the max(rounded vol, rounded actual) base.
	if got[0].DomWeight != 23 || got[0].IntlWeight != 23 {
		t.Fatalf("got dom=%v intl=%v, want 23/23", got[0].DomWeight, got[0].IntlWeight)
	}
}

func TestCalculateBoxWeightsIdempotent(t *testing.T) {
	pkgs := []domain.Package{
		{Length: 113, Width: 50, Height: 20, Weight: 7},
		{Length: 80, Width: 40, Height: 30, Weight: 5},
	}
	first := CalculateBoxWeights(pkgs, domain.ModeAir)
	second := CalculateBoxWeights(pkgs, domain.ModeAir)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("recomputation differs:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestCalculateBoxWeightsPreservesOrder(t *testing.T) {
	pkgs := []domain.Package{
		{Length: 10, Width: 10, Height: 10, Weight: 1},
		{Length: 20, Width: 20, Height: 20, Weight: 2},
		{Length: 30, Width: 30, Height: 30, Weight: 3},
	}
	got := CalculateBoxWeights(pkgs, domain.ModeDomestic)
	for i, bw := range got {
		if bw.Index != i+1 {
			t.Fatalf("box %d has index %d", i, bw.Index)
		}
		if bw.Pkg != pkgs[i] {
			t.Fatalf("box %d package mismatch", i)
		}
	}
}
