package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/content"
	"github.com/gin-gonic/gin"
)

type tagSummaryPayload struct {
	TagID         string `json:"tag_id"`
	Name          string `json:"name"`
	UsageCount    int64  `json:"usage_count"`
	FollowerCount int64  `json:"follower_count"`
}

func toTagSummaryPayload(summary content.TagSummary) tagSummaryPayload {
	return tagSummaryPayload{
		TagID:         summary.ID,
		Name:          summary.Name,
		UsageCount:    summary.UsageCount,
		FollowerCount: summary.FollowerCount,
	}
}

func (h *httpHandler) handleGetQuestion(c *gin.Context) {
	response, err := h.questionResponse(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get_question", err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleListQuestions(c *gin.Context) {
	limit, ok := parseOptionalInt(c.Query("limit"))
	if !ok {
		badRequest(c, "invalid_pagination")
		return
	}
	offset, ok := parseOptionalInt(c.Query("offset"))
	if !ok {
		badRequest(c, "invalid_pagination")
		return
	}
	details, err := h.content.ListQuestions(c.Request.Context(), content.ListOptions{
		TagName: c.Query("tag"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		h.respondError(c, "list_questions", err)
		return
	}
	questions := make([]questionPayload, 0, len(details))
	for _, detail := range details {
		response, err := h.detailResponse(c.Request.Context(), detail)
		if err != nil {
			h.respondError(c, "list_questions", err)
			return
		}
		questions = append(questions, response)
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

func (h *httpHandler) handleGetAnswer(c *gin.Context) {
	answer, err := h.content.Answer(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get_answer", err)
		return
	}
	response, err := h.answerResponse(c.Request.Context(), answer)
	if err != nil {
		h.respondError(c, "get_answer", err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleListAnswers(c *gin.Context) {
	answers, err := h.content.AnswersOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "list_answers", err)
		return
	}
	h.renderAnswers(c, "list_answers", answers)
}

func (h *httpHandler) renderAnswers(c *gin.Context, operation string, answers []content.Answer) {
	payloads := make([]answerPayload, 0, len(answers))
	for _, answer := range answers {
		response, err := h.answerResponse(c.Request.Context(), answer)
		if err != nil {
			h.respondError(c, operation, err)
			return
		}
		payloads = append(payloads, response)
	}
	c.JSON(http.StatusOK, gin.H{"answers": payloads})
}

func (h *httpHandler) handleListTags(c *gin.Context) {
	summaries, err := h.content.Tags(c.Request.Context())
	if err != nil {
		h.respondError(c, "list_tags", err)
		return
	}
	tags := make([]tagSummaryPayload, 0, len(summaries))
	for _, summary := range summaries {
		tags = append(tags, toTagSummaryPayload(summary))
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

// handleGetTag accepts either the tag id or its name.
func (h *httpHandler) handleGetTag(c *gin.Context) {
	summary, err := h.content.Tag(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get_tag", err)
		return
	}
	c.JSON(http.StatusOK, toTagSummaryPayload(summary))
}

func (h *httpHandler) handleFollowedQuestions(c *gin.Context) {
	questions, err := h.content.FollowedQuestions(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, "followed_questions", err)
		return
	}
	payloads := make([]questionPayload, 0, len(questions))
	for _, question := range questions {
		response, err := h.questionResponse(c.Request.Context(), question.ID)
		if err != nil {
			h.respondError(c, "followed_questions", err)
			return
		}
		payloads = append(payloads, response)
	}
	c.JSON(http.StatusOK, gin.H{"questions": payloads})
}

func (h *httpHandler) handleFollowedAnswers(c *gin.Context) {
	answers, err := h.content.FollowedAnswers(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, "followed_answers", err)
		return
	}
	h.renderAnswers(c, "followed_answers", answers)
}

func (h *httpHandler) handleFollowedTags(c *gin.Context) {
	tags, err := h.content.FollowedTags(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, "followed_tags", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": toTagPayloads(tags)})
}

func parseOptionalInt(raw string) (int, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, true
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}
