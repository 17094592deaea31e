package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/reputation"
	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

type historyEntryPayload struct {
	EntryID          string            `json:"entry_id"`
	Action           reputation.Action `json:"action"`
	Points           int               `json:"points"`
	Reversal         bool              `json:"reversal"`
	Description      string            `json:"description"`
	QuestionID       *string           `json:"question_id,omitempty"`
	AnswerID         *string           `json:"answer_id,omitempty"`
	VoteID           *string           `json:"vote_id,omitempty"`
	CreatedAtSeconds int64             `json:"created_at_s"`
}

func (h *httpHandler) handleReputation(c *gin.Context) {
	userID := c.Param("id")
	total, err := h.engine.Reputation(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, "reputation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "reputation": total})
}

func (h *httpHandler) handlePrivileges(c *gin.Context) {
	userID := c.Param("id")
	privileges, err := h.engine.Privileges(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, "privileges", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "privileges": privileges})
}

func (h *httpHandler) handleHistory(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	fromRaw := strings.TrimSpace(c.Query("from"))
	toRaw := strings.TrimSpace(c.Query("to"))

	var (
		entries []reputation.Entry
		err     error
	)
	if fromRaw == "" && toRaw == "" {
		entries, err = h.engine.History(c.Request.Context(), userID)
	} else {
		fromDay, toDay, ok := parseDayRange(fromRaw, toRaw)
		if !ok {
			badRequest(c, "invalid_date_range")
			return
		}
		entries, err = h.engine.HistoryBetween(c.Request.Context(), userID, fromDay, toDay)
	}
	if err != nil {
		h.respondError(c, "history", err)
		return
	}

	response := make([]historyEntryPayload, 0, len(entries))
	for _, entry := range entries {
		response = append(response, historyEntryPayload{
			EntryID:          entry.EntryID,
			Action:           entry.Action,
			Points:           entry.Points,
			Reversal:         entry.Reversal,
			Description:      entry.Description,
			QuestionID:       entry.QuestionID,
			AnswerID:         entry.AnswerID,
			VoteID:           entry.VoteID,
			CreatedAtSeconds: entry.CreatedAtSeconds,
		})
	}
	c.JSON(http.StatusOK, gin.H{"entries": response})
}

// parseDayRange accepts either bound alone; a missing bound collapses onto the other.
func parseDayRange(fromRaw, toRaw string) (time.Time, time.Time, bool) {
	if fromRaw == "" {
		fromRaw = toRaw
	}
	if toRaw == "" {
		toRaw = fromRaw
	}
	fromDay, err := time.Parse(dateLayout, fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	toDay, err := time.Parse(dateLayout, toRaw)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	if toDay.Before(fromDay) {
		return time.Time{}, time.Time{}, false
	}
	return fromDay, toDay, true
}

func (h *httpHandler) handleDailyLimit(c *gin.Context) {
	status, err := h.engine.DailyStatus(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, "daily_limit", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"day":       status.Day,
		"earned":    status.Earned,
		"cap":       status.Cap,
		"remaining": status.Remaining,
		"reached":   status.Reached,
	})
}
