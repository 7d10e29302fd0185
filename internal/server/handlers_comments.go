package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (h *httpHandler) handleGetComments(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	rendered, err := h.comments.Get(c.Request.Context(), identityFrom(c), id)
	if err != nil {
		h.respondFailure(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, rendered)
}

func (h *httpHandler) handleAddComment(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	var request commentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.invalidRequest(c, "comments.append.invalid_request", "malformed comment payload")
		return
	}
	rendered, err := h.comments.Append(c.Request.Context(), identityFrom(c), id, request.Comment, request.UserName)
	if err != nil {
		h.respondFailure(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, rendered)
}

func (h *httpHandler) handleDeleteCommentAt(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Query("index"))
	if err != nil {
		h.invalidRequest(c, "comments.delete_at.invalid_index", "comment index is required")
		return
	}
	rendered, err := h.comments.DeleteAt(c.Request.Context(), identityFrom(c), id, index)
	if err != nil {
		h.respondFailure(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, rendered)
}

func (h *httpHandler) handleDeleteCommentByID(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	commentID, err := uuid.Parse(c.Param("commentID"))
	if err != nil || commentID == uuid.Nil {
		h.invalidRequest(c, "comments.delete_by_id.invalid_id", "comment id is required")
		return
	}
	rendered, err := h.comments.DeleteByID(c.Request.Context(), identityFrom(c), id, commentID)
	if err != nil {
		h.respondFailure(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, rendered)
}
