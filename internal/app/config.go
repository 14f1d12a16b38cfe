package app

import (
	"strings"

	"github.com/mapleroute/quotebot-backend/internal/platform/envutil"
	"github.com/mapleroute/quotebot-backend/internal/platform/logger"
)

type Config struct {
	Port        string
	ServiceName string
	Environment string

	LineChannelSecret string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Profile registry: YAML file wins, env lists are the fallback.
	ProfilePath     string
	QuoteGroupIDs   []string
	QuoteDMUserIDs  []string
	DisableLLMParse bool

	AllowOrigins []string
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:              envutil.Str("PORT", "8080"),
		ServiceName:       envutil.Str("SERVICE_NAME", "quotebot-backend"),
		Environment:       envutil.Str("APP_ENV", "development"),
		LineChannelSecret: envutil.Str("LINE_CHANNEL_SECRET", ""),
		RedisAddr:         envutil.Str("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     envutil.Str("REDIS_PASSWORD", ""),
		RedisDB:           envutil.Int("REDIS_DB", 0),
		ProfilePath:       envutil.Str("QUOTE_PROFILE_FILE", ""),
		QuoteGroupIDs:     splitList(envutil.Str("QUOTE_GROUP_IDS", "")),
		QuoteDMUserIDs:    splitList(envutil.Str("QUOTE_DM_USER_IDS", "")),
		DisableLLMParse:   envutil.Bool("QUOTE_DISABLE_LLM_PARSE", false),
		AllowOrigins:      splitList(envutil.Str("CORS_ALLOW_ORIGINS", "")),
	}

	if cfg.LineChannelSecret == "" {
		log.Warn("LINE_CHANNEL_SECRET not set, webhook signatures will be rejected")
	}
	if cfg.ProfilePath == "" && len(cfg.QuoteGroupIDs) == 0 && len(cfg.QuoteDMUserIDs) == 0 {
		log.Warn("no quote profiles configured, every trigger will be refused")
	}

	return cfg
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
