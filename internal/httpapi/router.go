package httpapi

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/config"
	"github.com/suPer8Hu/gopherchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/gopherchat/internal/httpapi/middleware"
	"go.uber.org/zap"
)

// NewRouter wires every route. limiter may be nil, which disables send rate
// limiting.
func NewRouter(h *handlers.Handler, cfg config.Config, limiter middleware.Limiter, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log.Named("access")))
	r.Use(middleware.Metrics())
	r.Use(corsMiddleware(cfg.CORSOrigins))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// users
	r.POST("/users", h.CreateUser)
	r.GET("/users/:id", h.GetUserByID)
	r.POST("/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)
	authGroup.PUT("/me", h.UpdateMe)

	// chats
	authGroup.POST("/chats", h.CreateChat)
	authGroup.GET("/chats", h.ListChats)
	send := []gin.HandlerFunc{h.AppendMessage}
	if limiter != nil && cfg.SendRateLimit > 0 {
		send = append([]gin.HandlerFunc{middleware.RateLimit(limiter, cfg.SendRateLimit, cfg.SendRateWindow, log)}, send...)
	}
	authGroup.POST("/chats/:chat_id/messages", send...)
	authGroup.GET("/chats/:chat_id/messages", h.GetHistory)

	// contacts
	authGroup.GET("/contacts", h.ListContacts)
	authGroup.POST("/contacts", h.AddContact)
	authGroup.GET("/contacts/search", h.SearchContacts)

	// presence
	authGroup.GET("/ws", h.Connect)
	authGroup.DELETE("/presence", h.UnregisterPresence)
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cc.AllowAllOrigins = true
		cc.AllowCredentials = false
	} else {
		cc.AllowOrigins = origins
	}
	return cors.New(cc)
}
