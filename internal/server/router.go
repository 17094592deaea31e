package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/content"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/users"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/voting"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDContextKey = "bugboard_user_id"

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingUserService   = errors.New("user service dependency required")
	errMissingContent       = errors.New("content service dependency required")
	errMissingEngine        = errors.New("voting engine dependency required")
	errMissingInbox         = errors.New("notification inbox dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager mints and validates bearer tokens.
type TokenManager interface {
	Issue(ctx context.Context, userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP handler.
type Dependencies struct {
	TokenManager   TokenManager
	Users          *users.Service
	Content        *content.Service
	Engine         *voting.Engine
	Inbox          *notifications.Inbox
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin router serving the bugboard API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Users == nil {
		return nil, errMissingUserService
	}
	if deps.Content == nil {
		return nil, errMissingContent
	}
	if deps.Engine == nil {
		return nil, errMissingEngine
	}
	if deps.Inbox == nil {
		return nil, errMissingInbox
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		tokens:  deps.TokenManager,
		users:   deps.Users,
		content: deps.Content,
		engine:  deps.Engine,
		inbox:   deps.Inbox,
		logger:  logger,
	}

	router.POST("/users", handler.handleRegister)
	router.GET("/users/:id", handler.handleGetUser)
	router.GET("/users/:id/reputation", handler.handleReputation)
	router.GET("/users/:id/privileges", handler.handlePrivileges)
	router.GET("/users/:id/followers", handler.handleListFollowers)
	router.GET("/users/:id/following", handler.handleListFollowing)

	router.GET("/questions", handler.handleListQuestions)
	router.GET("/questions/:id", handler.handleGetQuestion)
	router.GET("/questions/:id/answers", handler.handleListAnswers)
	router.GET("/questions/:id/votes", handler.handleListVotes(content.KindQuestion))
	router.GET("/questions/:id/comments", handler.handleListComments(content.KindQuestion))
	router.GET("/answers/:id", handler.handleGetAnswer)
	router.GET("/answers/:id/votes", handler.handleListVotes(content.KindAnswer))
	router.GET("/answers/:id/comments", handler.handleListComments(content.KindAnswer))
	router.GET("/tags", handler.handleListTags)
	router.GET("/tags/:id", handler.handleGetTag)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.POST("/questions", handler.handleCreateQuestion)
	protected.PUT("/questions/:id", handler.handleUpdateQuestion)
	protected.POST("/questions/:id/answers", handler.handleCreateAnswer)
	protected.PUT("/answers/:id", handler.handleUpdateAnswer)

	protected.POST("/questions/:id/votes", handler.handleCastVote(content.KindQuestion))
	protected.POST("/answers/:id/votes", handler.handleCastVote(content.KindAnswer))
	protected.POST("/answers/:id/accept", handler.handleAccept)
	protected.DELETE("/answers/:id/accept", handler.handleUnaccept)

	protected.POST("/questions/:id/follow", handler.handleFollow(content.KindQuestion))
	protected.DELETE("/questions/:id/follow", handler.handleUnfollow(content.KindQuestion))
	protected.POST("/answers/:id/follow", handler.handleFollow(content.KindAnswer))
	protected.DELETE("/answers/:id/follow", handler.handleUnfollow(content.KindAnswer))
	protected.POST("/tags/:id/follow", handler.handleFollowTag)
	protected.DELETE("/tags/:id/follow", handler.handleUnfollowTag)
	protected.POST("/users/:id/follow", handler.handleFollowUser)
	protected.DELETE("/users/:id/follow", handler.handleUnfollowUser)

	protected.POST("/questions/:id/comments", handler.handleAddComment(content.KindQuestion))
	protected.POST("/answers/:id/comments", handler.handleAddComment(content.KindAnswer))

	protected.GET("/me/reputation/history", handler.handleHistory)
	protected.GET("/me/reputation/daily-limit", handler.handleDailyLimit)
	protected.GET("/me/follows/questions", handler.handleFollowedQuestions)
	protected.GET("/me/follows/answers", handler.handleFollowedAnswers)
	protected.GET("/me/follows/tags", handler.handleFollowedTags)
	protected.GET("/me/notifications", handler.handleListNotifications)
	protected.POST("/me/notifications/:id/read", handler.handleMarkRead)
	protected.POST("/me/notifications/read-all", handler.handleMarkAllRead)

	return router, nil
}

type httpHandler struct {
	tokens  TokenManager
	users   *users.Service
	content *content.Service
	engine  *voting.Engine
	inbox   *notifications.Inbox
	logger  *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}
