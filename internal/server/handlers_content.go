package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/content"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type registerRequestPayload struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

type userPayload struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Reputation  int    `json:"reputation"`
}

type registerResponsePayload struct {
	User        userPayload `json:"user"`
	AccessToken string      `json:"access_token"`
	ExpiresIn   int64       `json:"expires_in"`
	TokenType   string      `json:"token_type"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "invalid_request")
		return
	}
	user, err := h.users.CreateUser(c.Request.Context(), request.DisplayName, request.Email)
	if err != nil {
		h.respondError(c, "register", err)
		return
	}
	token, expiresIn, err := h.tokens.Issue(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to issue token", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.JSON(http.StatusCreated, registerResponsePayload{
		User:        toUserPayload(user),
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func toUserPayload(user users.User) userPayload {
	return userPayload{UserID: user.ID, DisplayName: user.DisplayName, Reputation: user.Reputation}
}

type questionRequestPayload struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

type tagPayload struct {
	TagID string `json:"tag_id"`
	Name  string `json:"name"`
}

type questionPayload struct {
	QuestionID       string       `json:"question_id"`
	AuthorID         string       `json:"author_id"`
	Title            string       `json:"title"`
	Body             string       `json:"body"`
	Tags             []tagPayload `json:"tags"`
	Score            int64        `json:"score"`
	AnswerCount      int64        `json:"answer_count"`
	CreatedAtSeconds int64        `json:"created_at_s"`
	UpdatedAtSeconds int64        `json:"updated_at_s"`
}

type answerRequestPayload struct {
	Body string `json:"body"`
}

type answerPayload struct {
	AnswerID         string `json:"answer_id"`
	QuestionID       string `json:"question_id"`
	AuthorID         string `json:"author_id"`
	Body             string `json:"body"`
	Accepted         bool   `json:"accepted"`
	Score            int64  `json:"score"`
	CreatedAtSeconds int64  `json:"created_at_s"`
	UpdatedAtSeconds int64  `json:"updated_at_s"`
}

func toTagPayloads(tags []content.Tag) []tagPayload {
	payloads := make([]tagPayload, 0, len(tags))
	for _, tag := range tags {
		payloads = append(payloads, tagPayload{TagID: tag.ID, Name: tag.Name})
	}
	return payloads
}

func toQuestionPayload(detail content.QuestionDetail, score int64) questionPayload {
	return questionPayload{
		QuestionID:       detail.ID,
		AuthorID:         detail.AuthorID,
		Title:            detail.Title,
		Body:             detail.Body,
		Tags:             toTagPayloads(detail.Tags),
		Score:            score,
		AnswerCount:      detail.AnswerCount,
		CreatedAtSeconds: detail.CreatedAt.Unix(),
		UpdatedAtSeconds: detail.UpdatedAt.Unix(),
	}
}

func toAnswerPayload(answer content.Answer, score int64) answerPayload {
	return answerPayload{
		AnswerID:         answer.ID,
		QuestionID:       answer.QuestionID,
		AuthorID:         answer.AuthorID,
		Body:             answer.Body,
		Accepted:         answer.Accepted,
		Score:            score,
		CreatedAtSeconds: answer.CreatedAt.Unix(),
		UpdatedAtSeconds: answer.UpdatedAt.Unix(),
	}
}

// questionResponse loads the question with tags, answer count and score.
func (h *httpHandler) questionResponse(ctx context.Context, questionID string) (questionPayload, error) {
	detail, err := h.content.Question(ctx, questionID)
	if err != nil {
		return questionPayload{}, err
	}
	return h.detailResponse(ctx, detail)
}

func (h *httpHandler) detailResponse(ctx context.Context, detail content.QuestionDetail) (questionPayload, error) {
	score, err := h.engine.Score(ctx, content.QuestionRef(detail.ID))
	if err != nil {
		return questionPayload{}, err
	}
	return toQuestionPayload(detail, score), nil
}

func (h *httpHandler) answerResponse(ctx context.Context, answer content.Answer) (answerPayload, error) {
	score, err := h.engine.Score(ctx, content.AnswerRef(answer.ID))
	if err != nil {
		return answerPayload{}, err
	}
	return toAnswerPayload(answer, score), nil
}

func (h *httpHandler) handleCreateQuestion(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	var request questionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "invalid_request")
		return
	}
	question, err := h.content.CreateQuestion(c.Request.Context(), userID, content.QuestionInput{
		Title: request.Title,
		Body:  request.Body,
		Tags:  request.Tags,
	})
	if err != nil {
		h.respondError(c, "create_question", err)
		return
	}
	if _, err := h.engine.OnQuestionCreated(c.Request.Context(), question.ID); err != nil {
		h.logger.Error("question created hook failed", zap.String("question_id", question.ID), zap.Error(err))
	}
	response, err := h.questionResponse(c.Request.Context(), question.ID)
	if err != nil {
		h.respondError(c, "create_question", err)
		return
	}
	c.JSON(http.StatusCreated, response)
}

func (h *httpHandler) handleUpdateQuestion(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	var request questionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "invalid_request")
		return
	}
	question, err := h.content.UpdateQuestion(c.Request.Context(), userID, c.Param("id"), content.QuestionInput{
		Title: request.Title,
		Body:  request.Body,
	})
	if err != nil {
		h.respondError(c, "update_question", err)
		return
	}
	h.engine.OnContentUpdated(c.Request.Context(), userID, content.QuestionRef(question.ID))
	response, err := h.questionResponse(c.Request.Context(), question.ID)
	if err != nil {
		h.respondError(c, "update_question", err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleCreateAnswer(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	var request answerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "invalid_request")
		return
	}
	answer, err := h.content.CreateAnswer(c.Request.Context(), userID, c.Param("id"), request.Body)
	if err != nil {
		h.respondError(c, "create_answer", err)
		return
	}
	h.engine.OnAnswerCreated(c.Request.Context(), answer.ID)
	c.JSON(http.StatusCreated, toAnswerPayload(answer, 0))
}

func (h *httpHandler) handleUpdateAnswer(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	var request answerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "invalid_request")
		return
	}
	answer, err := h.content.UpdateAnswer(c.Request.Context(), userID, c.Param("id"), request.Body)
	if err != nil {
		h.respondError(c, "update_answer", err)
		return
	}
	h.engine.OnContentUpdated(c.Request.Context(), userID, content.AnswerRef(answer.ID))
	response, err := h.answerResponse(c.Request.Context(), answer)
	if err != nil {
		h.respondError(c, "update_answer", err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleFollow(kind content.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(userIDContextKey)
		ref, err := content.NewRef(kind, c.Param("id"))
		if err != nil {
			h.respondError(c, "follow", err)
			return
		}
		if err := h.content.Follow(c.Request.Context(), userID, ref); err != nil {
			h.respondError(c, "follow", err)
			return
		}
		h.engine.OnContentFollowed(c.Request.Context(), userID, ref)
		c.Status(http.StatusNoContent)
	}
}

func (h *httpHandler) handleUnfollow(kind content.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref, err := content.NewRef(kind, c.Param("id"))
		if err != nil {
			h.respondError(c, "unfollow", err)
			return
		}
		if err := h.content.Unfollow(c.Request.Context(), c.GetString(userIDContextKey), ref); err != nil {
			h.respondError(c, "unfollow", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *httpHandler) handleFollowTag(c *gin.Context) {
	tagID := strings.TrimSpace(c.Param("id"))
	if err := h.content.FollowTag(c.Request.Context(), c.GetString(userIDContextKey), tagID); err != nil {
		h.respondError(c, "follow_tag", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleUnfollowTag(c *gin.Context) {
	tagID := strings.TrimSpace(c.Param("id"))
	if err := h.content.UnfollowTag(c.Request.Context(), c.GetString(userIDContextKey), tagID); err != nil {
		h.respondError(c, "unfollow_tag", err)
		return
	}
	c.Status(http.StatusNoContent)
}
