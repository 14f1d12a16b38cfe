package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/mapleroute/quotebot-backend/internal/handlers"
)

type RouterConfig struct {
	ServiceName    string
	WebhookHandler *handlers.WebhookHandler
	AllowOrigins   []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware(cfg.ServiceName))

	if len(cfg.AllowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", "X-Line-Signature"},
			AllowCredentials: true,
		}))
	}

	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/webhook", cfg.WebhookHandler.Receive)

	return router
}
