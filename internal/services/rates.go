package services

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/mapleroute/quotebot-backend/internal/domain"
	"github.com/mapleroute/quotebot-backend/internal/platform/logger"
)

var ratesTracer = otel.Tracer("services/rates")

// CarrierQuoter is a carrier-quote capability. Implementations fetch rates
// for a full shipment between two postal codes.
type CarrierQuoter interface {
	GetQuotes(ctx context.Context, fromPostal, toPostal string, packages []domain.Package) ([]domain.ServiceQuote, error)
}

// RateService aggregates quotes across the general carrier capability and
// the national-postal capability.
type RateService interface {
	Aggregate(ctx context.Context, fromPostal, toPostal string, packages []domain.Package) []domain.ServiceQuote
}

type rateService struct {
	log     *logger.Logger
	carrier CarrierQuoter // general carrier capability (TE)
	postal  CarrierQuoter // national-postal capability (CP)
}

func NewRateService(log *logger.Logger, carrier, postal CarrierQuoter) RateService {
	return &rateService{
		log:     log.With("service", "RateService"),
		carrier: carrier,
		postal:  postal,
	}
}

// Aggregate dispatches both capabilities in parallel and merges whatever
// succeeded. A capability that errors contributes an empty list; an empty
// aggregate means "no quotes available" and is the caller's concern, not an
// error here.
func (s *rateService) Aggregate(ctx context.Context, fromPostal, toPostal string, packages []domain.Package) []domain.ServiceQuote {
	ctx, span := ratesTracer.Start(ctx, "rates.Aggregate")
	defer span.End()
	span.SetAttributes(attribute.Int("quote.packages", len(packages)))

	var carrierQuotes, postalQuotes []domain.ServiceQuote

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		carrierQuotes = s.fetch(gctx, s.carrier, "carrier", fromPostal, toPostal, packages)
		return nil
	})
	g.Go(func() error {
		postalQuotes = s.fetch(gctx, s.postal, "postal", fromPostal, toPostal, packages)
		return nil
	})
	_ = g.Wait()

	merged := MergeQuotes(carrierQuotes, postalQuotes)
	span.SetAttributes(attribute.Int("quote.results", len(merged)))
	return merged
}

func (s *rateService) fetch(ctx context.Context, q CarrierQuoter, tag, from, to string, packages []domain.Package) []domain.ServiceQuote {
	if q == nil {
		return nil
	}
	ctx, span := ratesTracer.Start(ctx, "rates.fetch."+tag)
	defer span.End()
	quotes, err := q.GetQuotes(ctx, from, to, packages)
	if err != nil {
		span.RecordError(err)
		s.log.Error("carrier quote capability failed", "capability", tag, "error", err)
		return nil
	}
	s.log.Debug("carrier quote capability responded", "capability", tag, "quotes", len(quotes))
	return quotes
}

// MergeQuotes concatenates quote lists in call order and stable-sorts by
// ascending total so equal totals keep insertion order.
func MergeQuotes(lists ...[]domain.ServiceQuote) []domain.ServiceQuote {
	var merged []domain.ServiceQuote
	for _, l := range lists {
		merged = append(merged, l...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Total < merged[j].Total
	})
	return merged
}
