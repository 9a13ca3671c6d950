package router

import (
	"net/http"

	"github.com/andrepetsch/secret-library/internal/config"
	"github.com/andrepetsch/secret-library/internal/gate"
	"github.com/andrepetsch/secret-library/internal/handler"
	"github.com/andrepetsch/secret-library/internal/lifecycle"
	"github.com/andrepetsch/secret-library/internal/mailer"
	"github.com/andrepetsch/secret-library/internal/middleware"
	"github.com/andrepetsch/secret-library/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Deps carries the shared components the routes are wired against.
type Deps struct {
	DB      *gorm.DB
	Blobs   *storage.LocalBlobStore
	Gate    *gate.Gate
	Manager *lifecycle.Manager
	Sweeper *lifecycle.Sweeper
	Mailer  *mailer.Mailer
	Log     zerolog.Logger
}

// SetupRouter configures the Gin engine and all routes.
func SetupRouter(cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// stored blobs (EPUB/PDF files, covers)
	r.Static("/blobs", d.Blobs.Root())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Secret Library")
	})

	// ====== invitation links & sign-in flow (no session required) ======
	authHandler := handler.NewAuthHandler(d.DB, d.Gate, cfg.Auth, cfg.Server.BaseURL)
	r.GET("/auth/signin", authHandler.SignIn)
	r.GET("/auth/callback", authHandler.Callback)
	r.GET("/auth/unauthorized", authHandler.Unauthorized)

	inviteLink := handler.NewInviteLinkHandler(d.Gate, cfg.Auth.Secret)
	r.GET("/invite/invalid", inviteLink.Invalid)
	r.GET("/invite/:token", inviteLink.Visit)

	// ====== API ======
	api := r.Group("/api")

	// 需要登录才能访问的接口
	protected := api.Group("")
	protected.Use(
		middleware.AuthMiddleware(cfg.Auth.Secret, d.DB),
		middleware.AuditMiddleware(d.DB),
	)

	protected.GET("/me", handler.GetMe)
	protected.POST("/auth/logout", authHandler.Logout)

	invitationHandler := handler.NewInvitationHandler(d.Gate, d.Mailer, cfg.Server.BaseURL, cfg.Invite.DefaultExpireDays, d.Log)
	protected.POST("/invitations", invitationHandler.Create)
	protected.GET("/invitations", invitationHandler.List)

	mediaHandler := handler.NewMediaHandler(d.DB, d.Blobs, d.Manager, d.Sweeper)
	protected.POST("/media", mediaHandler.Upload)
	protected.GET("/media", mediaHandler.List)
	protected.GET("/media/deleted", mediaHandler.ListDeleted)
	protected.POST("/media/cleanup", mediaHandler.Cleanup)
	protected.GET("/media/:id", mediaHandler.Get)
	protected.PUT("/media/:id", mediaHandler.Update)
	protected.DELETE("/media/:id", mediaHandler.Delete)
	protected.POST("/media/:id/restore", mediaHandler.Restore)

	protected.GET("/tags", handler.ListTags(d.DB))

	collectionHandler := handler.NewCollectionHandler(d.DB)
	protected.GET("/collections", collectionHandler.List)
	protected.POST("/collections", collectionHandler.Create)
	protected.GET("/collections/:id", collectionHandler.Get)
	protected.PUT("/collections/:id", collectionHandler.Update)
	protected.DELETE("/collections/:id", collectionHandler.Delete)
	protected.POST("/collections/:id/media", collectionHandler.AddMedia)
	protected.DELETE("/collections/:id/media", collectionHandler.RemoveMedia)

	exportHandler := handler.NewExportHandler(d.DB, d.Manager)
	protected.GET("/export/catalog.csv", exportHandler.ExportCSV)
	protected.GET("/export/catalog.xlsx", exportHandler.ExportXLSX)

	return r
}
