package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"go.uber.org/zap"
)

type createChatReq struct {
	UserID string `json:"user_id"`
}

func chatView(t *chat.Thread, viewer string) gin.H {
	counterpart, _ := t.Counterpart(viewer)
	return gin.H{
		"chat":           t,
		"counterpart_id": counterpart,
	}
}

func (h *Handler) CreateChat(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	var req createChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	other := strings.TrimSpace(req.UserID)
	if other == "" || other == uid {
		common.Fail(c, http.StatusBadRequest, 10010, "a chat needs two different users")
		return
	}

	exists, err := h.Contacts.Exists(c.Request.Context(), other)
	if err != nil {
		h.Log.Error("check user", zap.String("user_id", other), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "db error")
		return
	}
	if !exists {
		common.Fail(c, http.StatusNotFound, 40403, "user not found")
		return
	}

	t, created, err := h.Chats.GetOrCreateThread(c.Request.Context(), uid, other)
	if err != nil {
		if errors.Is(err, chat.ErrInvalidParticipants) {
			common.Fail(c, http.StatusBadRequest, 10010, "a chat needs two different users")
			return
		}
		h.Log.Error("get or create thread", zap.String("user_id", uid), zap.String("other_id", other), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to create chat")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	common.Respond(c, status, chatView(t, uid))
}

func (h *Handler) ListChats(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	chats := []gin.H{}
	for t, err := range h.Chats.ListThreadsFor(c.Request.Context(), uid) {
		if err != nil {
			h.Log.Error("list threads", zap.String("user_id", uid), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50003, "failed to list chats")
			return
		}
		chats = append(chats, chatView(&t, uid))
	}
	common.OK(c, gin.H{"chats": chats})
}

type appendMessageReq struct {
	Content string `json:"content"`
}

func (h *Handler) AppendMessage(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	var req appendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	msg, err := h.Chats.Append(c.Request.Context(), c.Param("chat_id"), uid, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyContent):
			common.Fail(c, http.StatusBadRequest, 10011, "content must not be empty")
		case errors.Is(err, chat.ErrContentTooLong):
			common.Fail(c, http.StatusBadRequest, 10012, "content too long")
		case errors.Is(err, chat.ErrThreadNotFound):
			common.Fail(c, http.StatusNotFound, 40404, "chat not found")
		case errors.Is(err, chat.ErrNotAParticipant):
			common.Fail(c, http.StatusForbidden, 40301, "not a participant of this chat")
		default:
			h.Log.Error("append message", zap.String("chat_id", c.Param("chat_id")), zap.String("user_id", uid), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50004, "failed to send message")
		}
		return
	}
	common.Respond(c, http.StatusCreated, msg)
}

func (h *Handler) GetHistory(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	since := c.Query("since")
	limit, _ := strconv.Atoi(c.Query("limit"))

	msgs, err := h.Chats.HistoryFor(c.Request.Context(), uid, c.Param("chat_id"), chat.HistoryQuery{
		Since: since,
		Limit: limit,
	})
	if err != nil {
		h.Log.Error("history", zap.String("chat_id", c.Param("chat_id")), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50005, "failed to list messages")
		return
	}

	// pollers keep their cursor when nothing new arrived
	nextSince := chat.ValidSince(since)
	if len(msgs) > 0 {
		nextSince = msgs[len(msgs)-1].ID
	}
	common.OK(c, gin.H{
		"messages":   msgs,
		"next_since": nextSince,
	})
}
