package app

import (
	"github.com/gin-gonic/gin"

	"github.com/mapleroute/quotebot-backend/internal/handlers"
	"github.com/mapleroute/quotebot-backend/internal/platform/logger"
	"github.com/mapleroute/quotebot-backend/internal/server"
)

type Handlers struct {
	Webhook *handlers.WebhookHandler
}

func wireHandlers(log *logger.Logger, cfg Config, svcs Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Webhook: handlers.NewWebhookHandler(log, cfg.LineChannelSecret, svcs.Flow),
	}
}

func wireRouter(cfg Config, h Handlers) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		ServiceName:    cfg.ServiceName,
		WebhookHandler: h.Webhook,
		AllowOrigins:   cfg.AllowOrigins,
	})
}
