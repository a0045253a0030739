package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/group"
)

const maxUploadBytes = 25 << 20

func (h *Handler) fileURL(storageKey string) string {
	return h.Cfg.PublicBaseURL + "/media/" + storageKey
}

// saveUpload stores the multipart file under a fresh ULID-prefixed key
// and returns the form header plus (id, storageKey).
func (h *Handler) saveUpload(c *gin.Context) (*multipart.FileHeader, string, string, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "file required")
		return nil, "", "", false
	}
	if fh.Size > maxUploadBytes {
		common.Fail(c, http.StatusRequestEntityTooLarge, 10005, "file too large")
		return nil, "", "", false
	}

	id, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return nil, "", "", false
	}
	storageKey := id + "_" + filepath.Base(fh.Filename)

	if err := os.MkdirAll(h.Cfg.UploadDir, 0o755); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to store file")
		return nil, "", "", false
	}
	if err := c.SaveUploadedFile(fh, filepath.Join(h.Cfg.UploadDir, storageKey)); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to store file")
		return nil, "", "", false
	}
	return fh, id, storageKey, true
}

// UploadChatFile accepts a multipart form (file, thread_name), stores
// the blob, and records the attachment so a following file message can
// reference it by id.
func (h *Handler) UploadChatFile(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	thread := c.PostForm("thread_name")
	if !threadParticipant(thread, uid) {
		common.Fail(c, http.StatusForbidden, 40301, "not a participant of this thread")
		return
	}

	fh, id, storageKey, okk := h.saveUpload(c)
	if !okk {
		return
	}

	f := &chat.File{
		ID:         id,
		StorageKey: storageKey,
		Filename:   fh.Filename,
		FileType:   fh.Header.Get("Content-Type"),
		UploaderID: uid,
		Thread:     thread,
	}
	if err := h.ChatSvc.Repo().CreateFile(c.Request.Context(), f); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to store file")
		return
	}

	common.OK(c, gin.H{
		"file_id":   f.ID,
		"filename":  f.Filename,
		"file_url":  h.fileURL(f.StorageKey),
		"file_type": f.FileType,
	})
}

// GetChatFile serves an attachment download. Only the two participants
// of the owning thread may fetch it.
func (h *Handler) GetChatFile(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	f, err := h.ChatSvc.Repo().GetFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "file not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if !threadParticipant(f.Thread, uid) {
		common.Fail(c, http.StatusForbidden, 40301, "not a participant of this thread")
		return
	}

	c.FileAttachment(filepath.Join(h.Cfg.UploadDir, f.StorageKey), f.Filename)
}

// UploadGroupFile is the group-room variant; membership replaces the
// thread participant check.
func (h *Handler) UploadGroupFile(c *gin.Context) {
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

	member, err := h.GroupSvc.JoinCheck(c.Request.Context(), uid, groupID)
	if err != nil || !member {
		common.Fail(c, http.StatusForbidden, 40302, "not a member of this group")
		return
	}

	fh, id, storageKey, okk := h.saveUpload(c)
	if !okk {
		return
	}

	f := &group.File{
		ID:         id,
		StorageKey: storageKey,
		Filename:   fh.Filename,
		FileType:   fh.Header.Get("Content-Type"),
		UploaderID: uid,
		GroupID:    groupID,
	}
	if err := h.GroupSvc.Repo().CreateFile(c.Request.Context(), f); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to store file")
		return
	}

	common.OK(c, gin.H{
		"file_id":   f.ID,
		"filename":  f.Filename,
		"file_url":  h.fileURL(f.StorageKey),
		"file_type": f.FileType,
	})
}
