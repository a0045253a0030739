package ws

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/suPer8Hu/gopherchat/internal/auth"
	"github.com/suPer8Hu/gopherchat/internal/bus"
	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/group"
	"github.com/suPer8Hu/gopherchat/internal/models"
	"github.com/suPer8Hu/gopherchat/internal/notify"
	"github.com/suPer8Hu/gopherchat/internal/presence"
)

const EventOnlineStatus = "online_status"

type presenceFrame struct {
	Username     string `json:"username"`
	OnlineStatus bool   `json:"online_status"`
}

// TicketStore resolves one-time socket tickets to user ids.
type TicketStore interface {
	Consume(ctx context.Context, ticket string) (uint64, error)
}

// Handlers owns the four websocket routes.
type Handlers struct {
	Bus       *bus.Bus
	Chat      *chat.Service
	Group     *group.Service
	Presence  *presence.Tracker
	Tickets   TicketStore
	JWTSecret string

	upgrader websocket.Upgrader
}

func NewHandlers(b *bus.Bus, chatSvc *chat.Service, groupSvc *group.Service, tracker *presence.Tracker, tickets TicketStore, jwtSecret string) *Handlers {
	return &Handlers{
		Bus:       b,
		Chat:      chatSvc,
		Group:     groupSvc,
		Presence:  tracker,
		Tickets:   tickets,
		JWTSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Route dispatches GET /ws/*rest to the route handlers. gin's tree
// cannot mix the static group/notification/online segments with the
// bare peer-id wildcard, so the split happens here.
func (h *Handlers) Route(c *gin.Context) {
	rest := strings.Trim(c.Param("rest"), "/")
	parts := strings.Split(rest, "/")

	switch {
	case rest == "online":
		h.online(c)
	case len(parts) == 2 && parts[0] == "group":
		id, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil || id == 0 {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		h.groupChat(c, id)
	case len(parts) == 2 && parts[0] == "notification":
		id, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil || id == 0 {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		h.notifications(c, id)
	case len(parts) == 1 && parts[0] != "":
		id, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil || id == 0 {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		h.directChat(c, id)
	default:
		c.AbortWithStatus(http.StatusNotFound)
	}
}

// resolveUser binds the connection to an authenticated identity via a
// JWT (?token=) or a one-time redis ticket (?ticket=). Failure rejects
// the connection before any upgrade or subscription happens.
func (h *Handlers) resolveUser(c *gin.Context) (*models.User, bool) {
	ctx := c.Request.Context()

	var uid uint64
	if tok := c.Query("token"); tok != "" {
		id, err := auth.ParseJWT(tok, h.JWTSecret)
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return nil, false
		}
		uid = id
	} else if tk := c.Query("ticket"); tk != "" && h.Tickets != nil {
		id, err := h.Tickets.Consume(ctx, tk)
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return nil, false
		}
		uid = id
	}
	if uid == 0 {
		c.AbortWithStatus(http.StatusUnauthorized)
		return nil, false
	}

	user, err := h.Chat.Repo().GetUser(ctx, uid)
	if err != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return nil, false
	}
	return user, true
}

// directChat serves GET /ws/{peerID}/. The session joins the
// deterministic pair room and the user is marked present for the
// lifetime of the connection.
func (h *Handlers) directChat(c *gin.Context, peerID uint64) {
	user, ok := h.resolveUser(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	room := chat.RoomID(user.ID, peerID)
	s := newSession(conn, h.Bus, user)
	s.dispatch = func(env Envelope) {
		ctx := context.Background()
		sender := env.Username
		if sender == "" {
			sender = user.Username
		}
		switch env.Type {
		case kindText:
			if _, err := h.Chat.SendText(ctx, room, peerID, sender, env.Receiver, env.Message); err != nil {
				log.Printf("ws: direct send in %s: %v", room, err)
			}
		case kindFile:
			if _, err := h.Chat.SendFile(ctx, room, peerID, sender, env.Receiver, *env.FileData); err != nil {
				log.Printf("ws: direct file send in %s: %v", room, err)
			}
		case kindTyping:
			h.Chat.Typing(room, sender, env.IsTyping)
		case kindRead:
			if err := h.Chat.MarkRead(ctx, room, user.ID, user.Username); err != nil {
				log.Printf("ws: mark read in %s: %v", room, err)
			}
		default:
			log.Printf("ws: dropping %q frame in direct room %s", env.Type, room)
		}
	}
	s.onClose = func() {
		h.Presence.SetOnline(context.Background(), user.Username, false)
	}

	s.activate(bus.DirectRoomChannel(room))
	h.Presence.SetOnline(c.Request.Context(), user.Username, true)
	s.run()
}

// groupChat serves GET /ws/group/{groupID}/. The membership check is
// synchronous and completes before any subscription; non-members are
// closed immediately.
func (h *Handlers) groupChat(c *gin.Context, groupID uint64) {
	user, ok := h.resolveUser(c)
	if !ok {
		return
	}

	member, err := h.Group.JoinCheck(c.Request.Context(), user.ID, groupID)
	if err != nil || !member {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	s := newSession(conn, h.Bus, user)
	s.dispatch = func(env Envelope) {
		ctx := context.Background()
		// The group route carries sender as a verified id; a declared
		// sender that is not the session's identity is dropped.
		if id, present := env.senderID(); present && id != user.ID {
			log.Printf("ws: group %d: sender %d does not match session user %d", groupID, id, user.ID)
			return
		}
		switch env.Type {
		case kindText:
			if _, err := h.Group.SendText(ctx, groupID, user, env.Message); err != nil {
				log.Printf("ws: group %d send: %v", groupID, err)
			}
		case kindFile:
			if _, err := h.Group.SendFile(ctx, groupID, user, *env.FileData); err != nil {
				log.Printf("ws: group %d file send: %v", groupID, err)
			}
		case kindTyping:
			h.Group.Typing(groupID, user.Username, env.IsTyping)
		case kindRead:
			if err := h.Group.MarkRead(ctx, groupID, user.ID, user.Username); err != nil {
				log.Printf("ws: group %d mark read: %v", groupID, err)
			}
		default:
			log.Printf("ws: dropping %q frame in group %d", env.Type, groupID)
		}
	}

	s.activate(bus.GroupChannel(groupID))
	s.run()
}

// notifications serves GET /ws/notification/{userID}/, the private
// per-user channel. The initial unseen snapshot is pushed on connect.
func (h *Handlers) notifications(c *gin.Context, target uint64) {
	user, ok := h.resolveUser(c)
	if !ok {
		return
	}
	if target != user.ID {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	s := newSession(conn, h.Bus, user)
	s.activate(bus.UserChannel(user.ID))

	// Initial snapshot: direct-chat unseen followed by group unseen.
	ctx := c.Request.Context()
	items, err := h.Chat.Repo().UnseenItems(ctx, user.ID)
	if err != nil {
		log.Printf("ws: initial unseen for user %d: %v", user.ID, err)
	}
	groupItems, err := h.Group.Repo().UnseenItems(ctx, user.ID)
	if err != nil {
		log.Printf("ws: initial group unseen for user %d: %v", user.ID, err)
	}
	if evt, err := notify.ListEvent(append(items, groupItems...)); err == nil {
		s.sendDirect(evt)
	}

	s.run()
}

// online serves GET /ws/online/, the presence broadcast channel.
// Inbound frames flip the named user's flag; every subscriber sees the
// resulting status broadcast.
func (h *Handlers) online(c *gin.Context) {
	user, ok := h.resolveUser(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	s := newSession(conn, h.Bus, user)
	s.dispatch = func(env Envelope) {
		if env.Username == "" {
			return
		}
		online := env.Type == kindOpen
		h.Presence.SetOnline(context.Background(), env.Username, online)

		evt, err := bus.NewEvent(EventOnlineStatus, presenceFrame{Username: env.Username, OnlineStatus: online})
		if err != nil {
			log.Printf("ws: marshal presence frame: %v", err)
			return
		}
		h.Bus.Publish(bus.OnlineChannel, evt)
	}

	s.activate(bus.OnlineChannel)
	s.run()
}
