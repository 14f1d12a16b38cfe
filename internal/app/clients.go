package app

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mapleroute/quotebot-backend/internal/clients/canadapost"
	"github.com/mapleroute/quotebot-backend/internal/clients/line"
	"github.com/mapleroute/quotebot-backend/internal/clients/openai"
	"github.com/mapleroute/quotebot-backend/internal/clients/tripleeagle"
	"github.com/mapleroute/quotebot-backend/internal/platform/logger"
	"github.com/mapleroute/quotebot-backend/internal/services"
)

type Clients struct {
	Line        line.Client
	TripleEagle tripleeagle.Client
	CanadaPost  canadapost.Client
	OpenAI      openai.Client
	Redis       *goredis.Client
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	lineClient, err := line.NewFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init line client: %w", err)
	}

	teClient, err := tripleeagle.NewFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init tripleeagle client: %w", err)
	}

	cpClient, err := canadapost.NewFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init canadapost client: %w", err)
	}

	// LLM extraction is optional; without it the flow is grammar-only.
	var oaClient openai.Client
	if !cfg.DisableLLMParse {
		oaClient, err = openai.NewClient(log)
		if err != nil {
			log.Warn("openai client unavailable, structured parsing only", "error", err)
			oaClient = nil
		}
	}

	rdb, err := services.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}

	return Clients{
		Line:        lineClient,
		TripleEagle: teClient,
		CanadaPost:  cpClient,
		OpenAI:      oaClient,
		Redis:       rdb,
	}, nil
}
