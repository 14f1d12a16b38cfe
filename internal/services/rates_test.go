package services

import (
	"context"
	"errors"
	"testing"

	"github.com/mapleroute/quotebot-backend/internal/domain"
	"github.com/mapleroute/quotebot-backend/internal/platform/logger"
)

type stubQuoter struct {
	quotes []domain.ServiceQuote
	err    error
	calls  int
}

func (s *stubQuoter) GetQuotes(ctx context.Context, from, to string, packages []domain.Package) ([]domain.ServiceQuote, error) {
	s.calls++
	return s.quotes, s.err
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func TestMergeQuotesStableSort(t *testing.T) {
	a := []domain.ServiceQuote{
		{Carrier: "UPS", Name: "svcA", Total: 50, Source: domain.SourceTripleEagle},
		{Carrier: "UPS", Name: "svcB", Total: 30, Source: domain.SourceTripleEagle},
	}
	b := []domain.ServiceQuote{
		{Carrier: "Canada Post", Name: "svcC", Total: 30, Source: domain.SourceCanadaPost},
	}

	got := MergeQuotes(a, b)

	wantNames := []string{"svcB", "svcC", "svcA"}
	if len(got) != len(wantNames) {
		t.Fatalf("got %d quotes, want %d", len(got), len(wantNames))
	}
	for i, want := range wantNames {
		if got[i].Name != want {
			t.Fatalf("position %d: got %q, want %q (order: %+v)", i, got[i].Name, want, got)
		}
	}
}

func TestAggregatePartialFailure(t *testing.T) {
	carrier := &stubQuoter{err: errors.New("connection refused")}
	postal := &stubQuoter{quotes: []domain.ServiceQuote{
		{Carrier: "Canada Post", Name: "Regular Parcel", Total: 18.5, Source: domain.SourceCanadaPost},
	}}

	svc := NewRateService(testLogger(t), carrier, postal)
	got := svc.Aggregate(context.Background(), "V6X1Z7", "B2V1R9", nil)

	if len(got) != 1 || got[0].Name != "Regular Parcel" {
		t.Fatalf("expected postal quotes to survive carrier failure, got %+v", got)
	}
	if carrier.calls != 1 || postal.calls != 1 {
		t.Fatalf("both capabilities should be called once, got carrier=%d postal=%d", carrier.calls, postal.calls)
	}
}

func TestAggregateBothEmpty(t *testing.T) {
	svc := NewRateService(testLogger(t), &stubQuoter{}, &stubQuoter{err: errors.New("boom")})
	got := svc.Aggregate(context.Background(), "V6X1Z7", "B2V1R9", nil)
	if len(got) != 0 {
		t.Fatalf("expected empty aggregate, got %+v", got)
	}
}

func TestAggregateOrdersCarrierBeforePostalOnTie(t *testing.T) {
	carrier := &stubQuoter{quotes: []domain.ServiceQuote{
		{Carrier: "FedEx", Name: "FEDEX_GROUND", Total: 25, Source: domain.SourceTripleEagle},
	}}
	postal := &stubQuoter{quotes: []domain.ServiceQuote{
		{Carrier: "Canada Post", Name: "Expedited Parcel", Total: 25, Source: domain.SourceCanadaPost},
	}}

	svc := NewRateService(testLogger(t), carrier, postal)
	got := svc.Aggregate(context.Background(), "V6X1Z7", "B2V1R9", nil)

	if len(got) != 2 {
		t.Fatalf("got %d quotes, want 2", len(got))
	}
	if got[0].Source != domain.SourceTripleEagle || got[1].Source != domain.SourceCanadaPost {
		t.Fatalf("tie-break should keep carrier before postal, got %+v", got)
	}
}
