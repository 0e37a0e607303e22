package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/presence"
	"go.uber.org/zap"
)

// Connect upgrades to a websocket and makes it the caller's presence
// connection until either side closes it.
func (h *Handler) Connect(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the error response
		h.Log.Debug("websocket upgrade failed", zap.String("user_id", uid), zap.Error(err))
		return
	}

	conn := presence.NewWSConn(ws, h.wsOpts, h.Log.With(zap.String("user_id", uid)))
	h.Presence.Register(uid, conn)
	h.Log.Info("presence connected", zap.String("user_id", uid))

	conn.Serve()

	h.Presence.Release(uid, conn)
	h.Log.Info("presence disconnected", zap.String("user_id", uid))
}

func (h *Handler) UnregisterPresence(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	h.Presence.Unregister(uid)
	common.OK(c, gin.H{"online": false})
}
