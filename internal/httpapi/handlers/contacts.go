package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/contact"
	"go.uber.org/zap"
)

func (h *Handler) ListContacts(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	contacts, err := h.Contacts.List(c.Request.Context(), uid)
	if err != nil {
		h.Log.Error("list contacts", zap.String("user_id", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50006, "failed to list contacts")
		return
	}
	common.OK(c, gin.H{"contacts": contacts})
}

type addContactReq struct {
	ContactID string `json:"contact_id"`
}

func (h *Handler) AddContact(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	var req addContactReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	contactID := strings.TrimSpace(req.ContactID)
	if contactID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "contact_id required")
		return
	}

	p, err := h.Contacts.Add(c.Request.Context(), uid, contactID)
	if err != nil {
		switch {
		case errors.Is(err, contact.ErrSelfContact):
			common.Fail(c, http.StatusBadRequest, 10014, "cannot add yourself")
		case errors.Is(err, contact.ErrUserNotFound):
			common.Fail(c, http.StatusNotFound, 40403, "user not found")
		default:
			h.Log.Error("add contact", zap.String("user_id", uid), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50007, "failed to add contact")
		}
		return
	}
	common.OK(c, p)
}

func (h *Handler) SearchContacts(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	users, err := h.Contacts.Search(c.Request.Context(), uid, c.Query("q"), limit)
	if err != nil {
		h.Log.Error("search users", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50008, "search failed")
		return
	}
	common.OK(c, gin.H{"users": users})
}
