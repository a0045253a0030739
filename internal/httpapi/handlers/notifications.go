package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/gopherchat/internal/common"
)

// MarkNotificationsSeen clears every direct-chat notification the
// caller has and pushes the refreshed list so open tabs drop their
// badge. Group notifications are cleared per group when its history is
// opened.
func (h *Handler) MarkNotificationsSeen(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	ctx := c.Request.Context()
	if err := h.ChatSvc.Repo().MarkAllSeen(ctx, uid); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50006, "failed to mark notifications")
		return
	}

	items, err := h.GroupSvc.Repo().UnseenItems(ctx, uid)
	if err != nil {
		items = nil
	}
	h.Notifier.PushList(uid, items)

	common.OK(c, gin.H{"status": "success"})
}
