package cmd

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"

	"candor/internal/config"
	"candor/internal/handler"
)

func startHTTP(cfg *config.Config, h *handler.Handler, logger *zap.Logger) *http.Server {
	if !cfg.Logger.Pretty {
		gin.SetMode(gin.ReleaseMode)
	}
	var middlewares []gin.HandlerFunc
	if cfg.Tracing.Enabled {
		middlewares = append(middlewares, gintrace.Middleware(cfg.Tracing.Service))
	}
	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr(),
		Handler: handler.NewRouter(h, middlewares...),
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()
	return srv
}
