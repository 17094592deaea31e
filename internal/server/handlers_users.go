package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/users"
	"github.com/gin-gonic/gin"
)

type profilePayload struct {
	User      userPayload `json:"user"`
	Followers int64       `json:"followers"`
	Following int64       `json:"following"`
}

func (h *httpHandler) handleGetUser(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get_user", err)
		return
	}
	counts, err := h.users.FollowCounts(c.Request.Context(), user.ID)
	if err != nil {
		h.respondError(c, "get_user", err)
		return
	}
	c.JSON(http.StatusOK, profilePayload{
		User:      toUserPayload(user),
		Followers: counts.Followers,
		Following: counts.Following,
	})
}

func (h *httpHandler) handleFollowUser(c *gin.Context) {
	if err := h.users.FollowUser(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id")); err != nil {
		h.respondError(c, "follow_user", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleUnfollowUser(c *gin.Context) {
	if err := h.users.UnfollowUser(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id")); err != nil {
		h.respondError(c, "unfollow_user", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListFollowers(c *gin.Context) {
	accounts, err := h.users.Followers(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "list_followers", err)
		return
	}
	renderUsers(c, accounts)
}

func (h *httpHandler) handleListFollowing(c *gin.Context) {
	accounts, err := h.users.Following(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "list_following", err)
		return
	}
	renderUsers(c, accounts)
}

func renderUsers(c *gin.Context, accounts []users.User) {
	payloads := make([]userPayload, 0, len(accounts))
	for _, account := range accounts {
		payloads = append(payloads, toUserPayload(account))
	}
	c.JSON(http.StatusOK, gin.H{"users": payloads})
}
