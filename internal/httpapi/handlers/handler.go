package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/config"
	"github.com/suPer8Hu/gopherchat/internal/group"
	"github.com/suPer8Hu/gopherchat/internal/httpapi/middleware"
	"github.com/suPer8Hu/gopherchat/internal/notify"
	"github.com/suPer8Hu/gopherchat/internal/store/redisstore"
)

// Handler bundles the dependencies of the HTTP surface. Tickets is nil
// when redis is unavailable; the ws-ticket route degrades then.
type Handler struct {
	DB       *gorm.DB
	Cfg      config.Config
	Tickets  *redisstore.Store
	ChatSvc  *chat.Service
	GroupSvc *group.Service
	Notifier *notify.Notifier
}

func NewHandler(db *gorm.DB, cfg config.Config, tickets *redisstore.Store, chatSvc *chat.Service, groupSvc *group.Service, notifier *notify.Notifier) *Handler {
	return &Handler{
		DB:       db,
		Cfg:      cfg,
		Tickets:  tickets,
		ChatSvc:  chatSvc,
		GroupSvc: groupSvc,
		Notifier: notifier,
	}
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
