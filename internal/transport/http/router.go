package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/User159951/IntelliPM-sub015/internal/config"
)

func NewRouter(s Services, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	RegisterHandlers(r, s)
	return r
}
