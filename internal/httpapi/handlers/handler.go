package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/config"
	"github.com/suPer8Hu/gopherchat/internal/contact"
	"github.com/suPer8Hu/gopherchat/internal/httpapi/middleware"
	"github.com/suPer8Hu/gopherchat/internal/presence"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Handler struct {
	DB       *gorm.DB
	Cfg      config.Config
	Chats    *chat.Service
	Presence *presence.Router
	Contacts *contact.Directory
	Log      *zap.Logger

	upgrader websocket.Upgrader
	wsOpts   presence.WSOptions
}

func NewHandler(db *gorm.DB, cfg config.Config, chats *chat.Service, router *presence.Router, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		DB:       db,
		Cfg:      cfg,
		Chats:    chats,
		Presence: router,
		Contacts: contact.NewDirectory(db),
		Log:      log.Named("http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the socket is token-authenticated
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		wsOpts: presence.WSOptions{
			WriteTimeout:   cfg.WSWriteTimeout,
			ReadTimeout:    cfg.WSReadTimeout,
			PingInterval:   cfg.WSPingInterval,
			MaxMessageSize: cfg.WSMaxMessageSize,
			SendBuffer:     cfg.WSSendBuffer,
		},
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{
		"pong":   true,
		"online": h.Presence.Count(),
	})
}

// currentUser writes the 401 itself when there is no identity.
func currentUser(c *gin.Context) (string, bool) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
	}
	return uid, ok
}
