package app

import (
	"fmt"

	"github.com/mapleroute/quotebot-backend/internal/platform/logger"
	"github.com/mapleroute/quotebot-backend/internal/services"
)

type Services struct {
	Sessions services.SessionStore
	Parser   services.InputParser
	Rates    services.RateService
	Profiles *services.ProfileRegistry
	Flow     services.QuoteFlow
}

func wireServices(log *logger.Logger, cfg Config, c Clients) (Services, error) {
	log.Info("Wiring services...")

	sessions := services.NewRedisSessionStore(log, c.Redis)

	var extractor services.ShipmentExtractor
	if c.OpenAI != nil {
		extractor = c.OpenAI
	}
	parser := services.NewInputParser(log, extractor)

	rates := services.NewRateService(log, c.TripleEagle, c.CanadaPost)

	profiles, err := services.NewProfileRegistry(log, cfg.ProfilePath, cfg.QuoteGroupIDs, cfg.QuoteDMUserIDs)
	if err != nil {
		return Services{}, fmt.Errorf("init profile registry: %w", err)
	}

	flow := services.NewQuoteFlow(log, sessions, parser, rates, profiles, c.Line)

	return Services{
		Sessions: sessions,
		Parser:   parser,
		Rates:    rates,
		Profiles: profiles,
		Flow:     flow,
	}, nil
}
