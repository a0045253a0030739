package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/common"
)

type createGroupReq struct {
	Name    string   `json:"name" binding:"required"`
	Members []uint64 `json:"members"`
}

// CreateGroup creates the group with the caller as a member and posts
// the welcome message.
func (h *Handler) CreateGroup(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createGroupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	ctx := c.Request.Context()
	creator, err := h.GroupSvc.Repo().GetUser(ctx, uid)
	if err != nil {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	g, err := h.GroupSvc.Repo().CreateGroup(ctx, req.Name, creator, req.Members)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50005, "failed to create group")
		return
	}

	common.OK(c, gin.H{
		"id":         g.ID,
		"name":       g.Name,
		"created_by": g.CreatedByID,
	})
}

func (h *Handler) ListGroups(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	groups, err := h.GroupSvc.Repo().ListUserGroups(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list groups")
		return
	}
	common.OK(c, gin.H{"groups": groups})
}

// GetGroupMessages returns a group's history oldest first. Opening the
// history counts as reading it: the caller's unseen notifications for
// this group are cleared and their badge list refreshed.
func (h *Handler) GetGroupMessages(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	groupID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || groupID == 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid group id")
		return
	}

	ctx := c.Request.Context()
	member, err := h.GroupSvc.JoinCheck(ctx, uid, groupID)
	if err != nil || !member {
		common.Fail(c, http.StatusForbidden, 40302, "not a member of this group")
		return
	}

	msgs, err := h.GroupSvc.Repo().ListMessages(ctx, groupID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	out := make([]gin.H, 0, len(msgs))
	for _, m := range msgs {
		item := gin.H{
			"id": m.ID,
			"sender": gin.H{
				"id":       m.SenderID,
				"username": m.Sender.Username,
			},
			"content":         m.Content,
			"timestamp":       m.CreatedAt,
			"is_current_user": m.SenderID == uid,
		}
		if m.FileID != nil {
			if f, ferr := h.GroupSvc.Repo().GetFile(ctx, *m.FileID); ferr == nil {
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

	if err := h.GroupSvc.Repo().MarkGroupSeen(ctx, groupID, uid); err == nil {
		if items, lerr := h.GroupSvc.Repo().UnseenItems(ctx, uid); lerr == nil {
			h.Notifier.PushList(uid, items)
		}
	}

	common.OK(c, gin.H{
		"group_id": groupID,
		"messages": out,
	})
}
