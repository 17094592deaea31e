package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/content"
	"github.com/gin-gonic/gin"
)

type commentRequestPayload struct {
	Body string `json:"body"`
}

type commentPayload struct {
	CommentID        string       `json:"comment_id"`
	TargetKind       content.Kind `json:"target_kind"`
	TargetID         string       `json:"target_id"`
	AuthorID         string       `json:"author_id"`
	Body             string       `json:"body"`
	CreatedAtSeconds int64        `json:"created_at_s"`
}

func toCommentPayload(comment content.Comment) commentPayload {
	return commentPayload{
		CommentID:        comment.ID,
		TargetKind:       comment.TargetKind,
		TargetID:         comment.TargetID,
		AuthorID:         comment.AuthorID,
		Body:             comment.Body,
		CreatedAtSeconds: comment.CreatedAt.Unix(),
	}
}

func (h *httpHandler) handleAddComment(kind content.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request commentRequestPayload
		if err := c.ShouldBindJSON(&request); err != nil {
			badRequest(c, "invalid_request")
			return
		}
		ref, err := content.NewRef(kind, c.Param("id"))
		if err != nil {
			h.respondError(c, "add_comment", err)
			return
		}
		comment, err := h.engine.AddComment(c.Request.Context(), c.GetString(userIDContextKey), ref, request.Body)
		if err != nil {
			h.respondError(c, "add_comment", err)
			return
		}
		c.JSON(http.StatusCreated, toCommentPayload(comment))
	}
}

func (h *httpHandler) handleListComments(kind content.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref, err := content.NewRef(kind, c.Param("id"))
		if err != nil {
			h.respondError(c, "list_comments", err)
			return
		}
		comments, err := h.content.Comments(c.Request.Context(), ref)
		if err != nil {
			h.respondError(c, "list_comments", err)
			return
		}
		payloads := make([]commentPayload, 0, len(comments))
		for _, comment := range comments {
			payloads = append(payloads, toCommentPayload(comment))
		}
		c.JSON(http.StatusOK, gin.H{"comments": payloads})
	}
}
