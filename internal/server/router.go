package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"meb-console/internal/account"
	"meb-console/internal/auth"
	"meb-console/internal/handler"
	"meb-console/internal/ledger"
	"meb-console/internal/middleware"
	"meb-console/internal/recorder"
)

type Deps struct {
	Accounts    *account.Store
	Ledger      *ledger.Ledger
	Recorder    *recorder.Recorder
	TokenConfig auth.TokenConfig
	LogDir      string
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	loginLimiter := middleware.NewLoginLimiter(10, time.Minute)
	authHandler := &handler.AuthHandler{Accounts: deps.Accounts, TokenConfig: deps.TokenConfig, LoginLimiter: loginLimiter}
	r.POST("/v1/auth", authHandler.Exchange)

	protected := r.Group("/v1")
	protected.Use(middleware.RequireAuth(deps.TokenConfig))

	datasetHandler := &handler.DatasetHandler{Recorder: deps.Recorder, Ledger: deps.Ledger, LogDir: deps.LogDir}
	protected.POST("/dataset/start", datasetHandler.Start)
	protected.POST("/dataset/stop", datasetHandler.Stop)
	protected.POST("/dataset/restart", datasetHandler.Restart)
	protected.GET("/dataset/status", datasetHandler.Status)
	protected.GET("/dataset/files", datasetHandler.Files)
	protected.DELETE("/dataset/files/:name", datasetHandler.Delete)

	return r
}
