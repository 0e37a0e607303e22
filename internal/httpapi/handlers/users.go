package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/gopherchat/internal/auth"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/contact"
	"github.com/suPer8Hu/gopherchat/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const minPasswordLength = 8

type createUserReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Username == "" || req.Email == "" || req.Password == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "username, email and password required")
		return
	}
	if len(req.Password) < minPasswordLength {
		common.Fail(c, http.StatusBadRequest, 10005, "password too short")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20002, "failed to hash password")
		return
	}
	id, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20004, "failed to allocate user id")
		return
	}

	user := models.User{
		ID:           id,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	}
	if err := h.DB.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "failed to create user (maybe username or email already exists)")
		return
	}

	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, h.Cfg.TokenTTL)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}
	h.Log.Info("user registered", zap.String("user_id", user.ID))

	common.Respond(c, http.StatusCreated, gin.H{
		"id":       user.ID,
		"email":    user.Email,
		"username": user.Username,
		"token":    token,
	})
}

type loginReq struct {
	// username or email
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	login := strings.TrimSpace(req.Login)
	if login == "" || req.Password == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "login and password required")
		return
	}

	var user models.User
	err := h.DB.WithContext(c.Request.Context()).
		Where("username = ? OR email = ?", login, strings.ToLower(login)).
		First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid credentials")
		return
	}

	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, h.Cfg.TokenTTL)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}
	common.OK(c, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"token":    token,
	})
}

func (h *Handler) Me(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	user, err := h.Contacts.Get(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, contact.ErrUserNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"email":      user.Email,
		"created_at": user.CreatedAt,
		"online":     h.Presence.Online(user.ID),
	})
}

func (h *Handler) GetUserByID(c *gin.Context) {
	user, err := h.Contacts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, contact.ErrUserNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
	})
}

type updateMeReq struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
}

func (h *Handler) UpdateMe(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	var req updateMeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	var upd contact.ProfileUpdate
	if req.Username != nil {
		upd.Username = strings.TrimSpace(*req.Username)
		if upd.Username == "" {
			common.Fail(c, http.StatusBadRequest, 10002, "username must not be empty")
			return
		}
	}
	if req.Email != nil {
		upd.Email = strings.ToLower(strings.TrimSpace(*req.Email))
		if upd.Email == "" {
			common.Fail(c, http.StatusBadRequest, 10002, "email must not be empty")
			return
		}
	}

	user, err := h.Contacts.UpdateProfile(c.Request.Context(), uid, upd)
	if err != nil {
		switch {
		case errors.Is(err, contact.ErrProfileTaken):
			common.Fail(c, http.StatusConflict, 40901, "username or email already in use")
		case errors.Is(err, contact.ErrUserNotFound):
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
		default:
			h.Log.Error("update profile", zap.String("user_id", uid), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		}
		return
	}
	common.OK(c, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"email":      user.Email,
		"created_at": user.CreatedAt,
	})
}
