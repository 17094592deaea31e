package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/content"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/votes"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/voting"
	"github.com/gin-gonic/gin"
)

type voteRequestPayload struct {
	Type string `json:"type"`
}

type voteResponsePayload struct {
	Outcome  votes.Outcome `json:"outcome"`
	VoteID   string        `json:"vote_id"`
	Previous *votes.Type   `json:"previous"`
	Current  *votes.Type   `json:"current"`
	Score    int64         `json:"score"`
}

type voteListPayload struct {
	Score int64            `json:"score"`
	Votes []storedVoteItem `json:"votes"`
}

type storedVoteItem struct {
	VoteID  string     `json:"vote_id"`
	VoterID string     `json:"voter_id"`
	Type    votes.Type `json:"type"`
}

type acceptResponsePayload struct {
	AnswerID   string   `json:"answer_id"`
	QuestionID string   `json:"question_id"`
	Changed    bool     `json:"changed"`
	Unaccepted []string `json:"unaccepted"`
}

func (h *httpHandler) handleCastVote(kind content.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request voteRequestPayload
		if err := c.ShouldBindJSON(&request); err != nil {
			badRequest(c, "invalid_request")
			return
		}
		voteType, err := votes.ParseType(request.Type)
		if err != nil {
			h.respondError(c, "cast_vote", err)
			return
		}
		ref, err := content.NewRef(kind, c.Param("id"))
		if err != nil {
			h.respondError(c, "cast_vote", err)
			return
		}
		result, err := h.engine.CastVote(c.Request.Context(), c.GetString(userIDContextKey), ref, voteType)
		if err != nil {
			h.respondError(c, "cast_vote", err)
			return
		}
		c.JSON(http.StatusOK, voteResponsePayload{
			Outcome:  result.Outcome,
			VoteID:   result.VoteID,
			Previous: result.Previous,
			Current:  result.Current,
			Score:    result.Score,
		})
	}
}

func (h *httpHandler) handleListVotes(kind content.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref, err := content.NewRef(kind, c.Param("id"))
		if err != nil {
			h.respondError(c, "list_votes", err)
			return
		}
		stored, err := h.engine.Votes(c.Request.Context(), ref)
		if err != nil {
			h.respondError(c, "list_votes", err)
			return
		}
		score, err := h.engine.Score(c.Request.Context(), ref)
		if err != nil {
			h.respondError(c, "list_votes", err)
			return
		}
		response := voteListPayload{Score: score, Votes: make([]storedVoteItem, 0, len(stored))}
		for _, vote := range stored {
			response.Votes = append(response.Votes, storedVoteItem{VoteID: vote.VoteID, VoterID: vote.VoterID, Type: vote.VoteType})
		}
		c.JSON(http.StatusOK, response)
	}
}

func (h *httpHandler) handleAccept(c *gin.Context) {
	result, err := h.engine.AcceptAnswer(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"))
	if err != nil {
		h.respondError(c, "accept_answer", err)
		return
	}
	c.JSON(http.StatusOK, toAcceptPayload(result))
}

func (h *httpHandler) handleUnaccept(c *gin.Context) {
	result, err := h.engine.UnacceptAnswer(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"))
	if err != nil {
		h.respondError(c, "unaccept_answer", err)
		return
	}
	c.JSON(http.StatusOK, toAcceptPayload(result))
}

func toAcceptPayload(result voting.AcceptResult) acceptResponsePayload {
	unaccepted := result.Unaccepted
	if unaccepted == nil {
		unaccepted = []string{}
	}
	return acceptResponsePayload{
		AnswerID:   result.AnswerID,
		QuestionID: result.QuestionID,
		Changed:    result.Changed,
		Unaccepted: unaccepted,
	}
}
