package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/content"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/reputation"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/serviceerror"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/users"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/votes"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/voting"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{target: votes.ErrSelfVote, status: http.StatusForbidden, code: "self_vote"},
	{target: voting.ErrNotQuestionOwner, status: http.StatusForbidden, code: "not_question_owner"},
	{target: reputation.ErrInsufficientReputation, status: http.StatusForbidden, code: "insufficient_reputation"},
	{target: content.ErrNotAuthor, status: http.StatusForbidden, code: "not_author"},
	{target: content.ErrSelfFollow, status: http.StatusForbidden, code: "self_follow"},
	{target: users.ErrSelfFollow, status: http.StatusForbidden, code: "self_follow"},
	{target: votes.ErrContentNotFound, status: http.StatusNotFound, code: "content_not_found"},
	{target: content.ErrNotFound, status: http.StatusNotFound, code: "not_found"},
	{target: users.ErrUserNotFound, status: http.StatusNotFound, code: "user_not_found"},
	{target: notifications.ErrNotFound, status: http.StatusNotFound, code: "notification_not_found"},
	{target: voting.ErrConcurrencyConflict, status: http.StatusConflict, code: "concurrency_conflict"},
	{target: voting.ErrAnswerNotAccepted, status: http.StatusConflict, code: "answer_not_accepted"},
	{target: content.ErrAlreadyFollowing, status: http.StatusConflict, code: "already_following"},
	{target: content.ErrNotFollowing, status: http.StatusConflict, code: "not_following"},
	{target: users.ErrAlreadyFollowing, status: http.StatusConflict, code: "already_following"},
	{target: users.ErrNotFollowing, status: http.StatusConflict, code: "not_following"},
	{target: votes.ErrInvalidType, status: http.StatusBadRequest, code: "invalid_vote_type"},
	{target: content.ErrInvalidInput, status: http.StatusBadRequest, code: "invalid_input"},
	{target: content.ErrInvalidRef, status: http.StatusBadRequest, code: "invalid_reference"},
	{target: users.ErrInvalidDisplayName, status: http.StatusBadRequest, code: "invalid_display_name"},
}

// respondError maps domain errors to their status and renders everything else as a 500.
func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	for _, mapping := range errorMappings {
		if !errors.Is(err, mapping.target) {
			continue
		}
		body := gin.H{"error": mapping.code}
		var insufficient *reputation.InsufficientReputationError
		if errors.As(err, &insufficient) {
			body["privilege"] = insufficient.Privilege
			body["required"] = insufficient.Required
			body["reputation"] = insufficient.Actual
		}
		c.JSON(mapping.status, body)
		return
	}

	code := serviceerror.CodeOf(err)
	if code == "" {
		code = "internal_error"
	}
	h.logger.Error("request failed",
		zap.String("operation", operation),
		zap.String("error_code", code),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": code})
}

func badRequest(c *gin.Context, code string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": code})
}
