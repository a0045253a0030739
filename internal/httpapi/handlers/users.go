package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/suPer8Hu/gopherchat/internal/auth"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/models"
)

const tokenTTL = 24 * time.Hour

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

type createUserReq struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	u := &models.User{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
	}
	if err := h.DB.WithContext(c.Request.Context()).Create(u).Error; err != nil {
		// unique index on username and email
		common.Fail(c, http.StatusConflict, 40901, "username or email already taken")
		return
	}

	common.OK(c, gin.H{
		"id":       u.ID,
		"username": u.Username,
		"email":    u.Email,
	})
}

type loginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	var u models.User
	err := h.DB.WithContext(c.Request.Context()).
		Where("username = ?", req.Username).
		First(&u).Error
	if err != nil || !auth.CheckPassword(u.PasswordHash, req.Password) {
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid credentials")
		return
	}

	token, err := auth.SignJWT(u.ID, h.Cfg.JWTSecret, tokenTTL)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{
		"token": token,
		"user": gin.H{
			"id":       u.ID,
			"username": u.Username,
			"email":    u.Email,
		},
	})
}

func (h *Handler) Me(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var u models.User
	if err := h.DB.WithContext(c.Request.Context()).First(&u, uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, u)
}

// ListUsers returns the contact list: every other user with their
// current online flag. Users with no profile row read as offline.
func (h *Handler) ListUsers(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	ctx := c.Request.Context()

	var users []models.User
	if err := h.DB.WithContext(ctx).
		Where("id <> ?", uid).
		Order("username ASC").
		Find(&users).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list users")
		return
	}

	var profiles []models.UserProfile
	if err := h.DB.WithContext(ctx).Find(&profiles).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list users")
		return
	}
	online := make(map[uint64]bool, len(profiles))
	for _, p := range profiles {
		online[p.UserID] = p.Online
	}

	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		out = append(out, gin.H{
			"id":       u.ID,
			"username": u.Username,
			"online":   online[u.ID],
		})
	}
	common.OK(c, gin.H{"users": out})
}

// CreateWsTicket mints a one-time ticket the browser appends to the
// websocket URL, since upgrade requests cannot carry an Authorization
// header.
func (h *Handler) CreateWsTicket(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if h.Tickets == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "ticket store unavailable")
		return
	}

	ticket, err := h.Tickets.IssueTicket(c.Request.Context(), uid, h.Cfg.TicketTTL)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to issue ticket")
		return
	}
	common.OK(c, gin.H{
		"ticket":     ticket,
		"expires_in": int(h.Cfg.TicketTTL.Seconds()),
	})
}
