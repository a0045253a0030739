package httpapi

import (
	"gorm.io/gorm"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/gopherchat/internal/bus"
	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/config"
	"github.com/suPer8Hu/gopherchat/internal/group"
	"github.com/suPer8Hu/gopherchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/gopherchat/internal/httpapi/middleware"
	"github.com/suPer8Hu/gopherchat/internal/notify"
	"github.com/suPer8Hu/gopherchat/internal/presence"
	"github.com/suPer8Hu/gopherchat/internal/store/rabbitmq"
	"github.com/suPer8Hu/gopherchat/internal/store/redisstore"
	"github.com/suPer8Hu/gopherchat/internal/ws"
)

// NewRouter wires the whole server: bus, services, HTTP handlers, and
// the websocket routes. rds and relay may be nil; the ticket route and
// the external push relay degrade independently.
func NewRouter(gdb *gorm.DB, cfg config.Config, rds *redisstore.Store, relay *rabbitmq.Publisher) *gin.Engine {
	b := bus.New()
	notifier := &notify.Notifier{Bus: b, Relay: relay}

	chatSvc := chat.NewService(chat.NewRepo(gdb), b, notifier)
	groupSvc := group.NewService(group.NewRepo(gdb), b, notifier)
	tracker := presence.NewTracker(gdb)

	// Interface value must stay nil when the store is nil, not a typed
	// nil pointer.
	var tickets ws.TicketStore
	if rds != nil {
		tickets = rds
	}
	wsHandlers := ws.NewHandlers(b, chatSvc, groupSvc, tracker, tickets, cfg.JWTSecret)

	h := handlers.NewHandler(gdb, cfg, rds, chatSvc, groupSvc, notifier)

	r := gin.New()
	r.Use(gin.Logger(), middleware.Recovery(), middleware.RequestID())

	r.GET("/ping", h.Ping)
	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)

	r.Static("/media", cfg.UploadDir)
	r.GET("/ws/*rest", wsHandlers.Route)

	authed := r.Group("/", middleware.AuthRequired(cfg.JWTSecret))
	{
		authed.GET("/me", h.Me)
		authed.GET("/users", h.ListUsers)
		authed.POST("/ws-ticket", h.CreateWsTicket)

		authed.GET("/chat/:peerID/messages", h.GetChatMessages)
		authed.POST("/chat/upload-file", h.UploadChatFile)
		authed.GET("/chat/files/:id", h.GetChatFile)
		authed.POST("/notifications/seen", h.MarkNotificationsSeen)

		authed.POST("/groups", h.CreateGroup)
		authed.GET("/groups", h.ListGroups)
		authed.GET("/groups/:id/messages", h.GetGroupMessages)
		authed.POST("/groups/:id/upload-file", h.UploadGroupFile)
	}

	return r
}
