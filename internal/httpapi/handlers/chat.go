package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/common"
)

// threadParticipant reports whether uid is one side of a direct-room
// thread id of the form "{max}-{min}".
func threadParticipant(thread string, uid uint64) bool {
	a, b, ok := strings.Cut(thread, "-")
	if !ok {
		return false
	}
	x, err1 := strconv.ParseUint(a, 10, 64)
	y, err2 := strconv.ParseUint(b, 10, 64)
	if err1 != nil || err2 != nil {
		return false
	}
	return uid == x || uid == y
}

// GetChatMessages returns the full history of the direct room shared
// with the peer, oldest first.
func (h *Handler) GetChatMessages(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	peerID, err := strconv.ParseUint(c.Param("peerID"), 10, 64)
	if err != nil || peerID == 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid peer id")
		return
	}

	ctx := c.Request.Context()
	me, err := h.ChatSvc.Repo().GetUser(ctx, uid)
	if err != nil {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	room := chat.RoomID(uid, peerID)
	msgs, err := h.ChatSvc.Repo().ListThreadMessages(ctx, room)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	out := make([]gin.H, 0, len(msgs))
	for _, m := range msgs {
		item := gin.H{
			"id":              m.ID,
			"sender":          m.Sender,
			"message":         m.Body,
			"timestamp":       m.CreatedAt,
			"is_current_user": m.Sender == me.Username,
		}
		if m.FileID != nil {
			if f, ferr := h.ChatSvc.Repo().GetFile(ctx, *m.FileID); ferr == nil {
				item["file_data"] = chat.FilePayload{
					FileID:   f.ID,
					Filename: f.Filename,
					FileURL:  h.fileURL(f.StorageKey),
					FileType: f.FileType,
				}
			}
		}
		out = append(out, item)
	}

	common.OK(c, gin.H{
		"thread":   room,
		"messages": out,
	})
}
